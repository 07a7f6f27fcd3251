package events

import (
	"encoding/json"
	"fmt"

	"modelbridge/pkg/types"
)

// Push frame types sent by the engine on its event socket.
const (
	frameDownloadUpdate  = "onFileDownloadUpdate"
	frameDownloadError   = "onFileDownloadError"
	frameDownloadSuccess = "onFileDownloadSuccess"
	frameDownloadStopped = "onFileDownloadStopped"
	frameDownloadStarted = "onFileDownloadStarted"
)

var frameEventTypes = map[string]types.EventType{
	frameDownloadUpdate:  types.EventDownloadUpdated,
	frameDownloadError:   types.EventDownloadError,
	frameDownloadSuccess: types.EventDownloadSuccess,
	frameDownloadStopped: types.EventDownloadStopped,
	frameDownloadStarted: types.EventDownloadStarted,
}

// Frame is one decoded push frame.
type Frame struct {
	Type string    `json:"type"`
	Task FrameTask `json:"task"`
}

// FrameTask is the download task a frame reports on.
type FrameTask struct {
	ID    string         `json:"id"`
	Items []TransferItem `json:"items"`
}

// TransferItem is one file of a download task. Counters are JSON numbers
// and may arrive in float notation (1.5e9, 100.0).
type TransferItem struct {
	DownloadedBytes float64 `json:"downloadedBytes"`
	Bytes           float64 `json:"bytes"`
}

// DecodeFrame parses a text frame. It does not validate the type.
func DecodeFrame(b []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(b, &f); err != nil {
		return Frame{}, fmt.Errorf("decode push frame: %w", err)
	}
	return f, nil
}

// Aggregate sums the item counters of a task. percent is 0 when total is 0,
// which covers empty or missing item lists.
func Aggregate(items []TransferItem) (size types.TransferSize, percent float64) {
	for _, it := range items {
		size.Transferred += byteCount(it.DownloadedBytes)
		size.Total += byteCount(it.Bytes)
	}
	if size.Total == 0 {
		return size, 0
	}
	return size, float64(size.Transferred) / float64(size.Total)
}

// byteCount truncates a counter to whole bytes; negative or NaN reads as 0.
func byteCount(v float64) uint64 {
	if !(v > 0) {
		return 0
	}
	return uint64(v)
}

// EventType maps the frame's declared type to the republished event type.
func (f Frame) EventType() (types.EventType, bool) {
	t, ok := frameEventTypes[f.Type]
	return t, ok
}
