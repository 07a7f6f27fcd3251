package types

import "encoding/json"

// Model is a model record as reported by the engine, after normalization.
//
// The engine owns the schema of a model record; only the fields the client
// reasons about are typed. Every other key the engine sent is kept in Fields
// and written back out unchanged by MarshalJSON.
type Model struct {
	// Stable identifier for the model.
	// example: tinyllama:1b-gguf
	ID string `json:"id" example:"tinyllama:1b-gguf"`
	// Human-friendly name.
	// example: TinyLlama 1.1B
	Name string `json:"name,omitempty" example:"TinyLlama 1.1B"`
	// Engine that serves this model (e.g., llama-cpp).
	// example: llama-cpp
	Engine string `json:"engine,omitempty" example:"llama-cpp"`
	// Inference-time knobs (temperature, top_p, stop, ...).
	Parameters map[string]any `json:"parameters"`
	// Load-time knobs (ctx_len, ngl, prompt_template, ...).
	Settings map[string]any `json:"settings"`
	// Tags, size and any other descriptive data.
	Metadata map[string]any `json:"metadata"`
	// Path of the model file on disk when discovered locally.
	Path string `json:"-"`
	// Backend-supplied fields not covered above.
	Fields map[string]any `json:"-"`
}

var modelKnownKeys = map[string]struct{}{
	"id": {}, "name": {}, "engine": {}, "parameters": {}, "settings": {}, "metadata": {},
}

// MarshalJSON flattens Fields next to the typed fields. Typed fields win
// when set.
func (m Model) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Fields)+6)
	for k, v := range m.Fields {
		out[k] = v
	}
	out["id"] = m.ID
	if m.Name != "" {
		out["name"] = m.Name
	}
	if m.Engine != "" {
		out["engine"] = m.Engine
	}
	putObject(out, "parameters", m.Parameters)
	putObject(out, "settings", m.Settings)
	putObject(out, "metadata", m.Metadata)
	return json.Marshal(out)
}

// putObject keeps a pass-through value of key when the typed map is unset.
func putObject(out map[string]any, key string, v map[string]any) {
	if _, ok := out[key]; ok && v == nil {
		return
	}
	out[key] = v
}

// UnmarshalJSON fills the typed fields and keeps the rest in Fields.
func (m *Model) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*m = ModelFromMap(raw)
	return nil
}

// ModelFromMap builds a Model from a decoded JSON object. Values of the wrong
// JSON type for a typed field are left in Fields.
func ModelFromMap(raw map[string]any) Model {
	var m Model
	typed := make(map[string]bool, len(modelKnownKeys))
	var ok bool
	m.ID, ok = raw["id"].(string)
	typed["id"] = ok
	m.Name, ok = raw["name"].(string)
	typed["name"] = ok
	m.Engine, ok = raw["engine"].(string)
	typed["engine"] = ok
	m.Parameters, ok = raw["parameters"].(map[string]any)
	typed["parameters"] = ok
	m.Settings, ok = raw["settings"].(map[string]any)
	typed["settings"] = ok
	m.Metadata, ok = raw["metadata"].(map[string]any)
	typed["metadata"] = ok
	for k, v := range raw {
		if _, known := modelKnownKeys[k]; known && (typed[k] || v == nil) {
			continue
		}
		if m.Fields == nil {
			m.Fields = make(map[string]any)
		}
		m.Fields[k] = v
	}
	return m
}

// Size returns metadata.size as bytes, or 0 when absent.
func (m Model) Size() uint64 {
	if m.Metadata == nil {
		return 0
	}
	switch v := m.Metadata["size"].(type) {
	case float64:
		if v > 0 {
			return uint64(v)
		}
	case int:
		if v > 0 {
			return uint64(v)
		}
	case int64:
		if v > 0 {
			return uint64(v)
		}
	case uint64:
		return v
	}
	return 0
}
