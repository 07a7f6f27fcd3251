package types

import "time"

// EventType names an event delivered to subscribers of the event bridge.
type EventType string

const (
	EventDownloadUpdated EventType = "download.updated"
	EventDownloadError   EventType = "download.error"
	EventDownloadSuccess EventType = "download.success"
	EventDownloadStopped EventType = "download.stopped"
	EventDownloadStarted EventType = "download.started"
	// EventModelsUpdated tells dependents to re-query the model list.
	EventModelsUpdated EventType = "models.updated"
)

// TransferSize carries aggregate byte counters of a download task.
type TransferSize struct {
	// example: 524288000
	Transferred uint64 `json:"transferred" example:"524288000"`
	// example: 1048576000
	Total uint64 `json:"total" example:"1048576000"`
}

// Event is a typed domain event republished from an engine push frame.
// ModelID, Percent and Size are empty for EventModelsUpdated.
type Event struct {
	Type EventType `json:"type"`
	// example: tinyllama:1b-gguf
	ModelID string `json:"modelId,omitempty" example:"tinyllama:1b-gguf"`
	// Fraction in [0,1].
	// example: 0.5
	Percent float64      `json:"percent"`
	Size    TransferSize `json:"size"`
	Time    time.Time    `json:"time"`
}
