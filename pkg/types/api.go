package types

// PullRequest is the body of POST /models/pull on the local API.
type PullRequest struct {
	// Model reference to download (id, repo or URL understood by the engine).
	// example: tinyllama:1b-gguf
	Model string `json:"model" example:"tinyllama:1b-gguf"`
	// Optional job id; the engine generates one when omitted.
	// example: 7d1c2f0e-2b4b-4f7d-9d55-2d1d7b0d0c11
	JobID string `json:"id,omitempty"`
	// Optional display name for the pulled model.
	Name string `json:"name,omitempty"`
}

// ImportRequest is the body of POST /models/import on the local API.
type ImportRequest struct {
	// Model id to register.
	Model string `json:"model"`
	// Path of the model file on the local filesystem.
	// example: /home/user/models/tinyllama.Q4_K_M.gguf
	ModelPath string `json:"modelPath"`
	Name      string `json:"name,omitempty"`
	// Import option understood by the engine (e.g., symlink, copy).
	// example: symlink
	Option string `json:"option,omitempty" example:"symlink"`
}

// ModelsResponse wraps the list of models returned by GET /models.
type ModelsResponse struct {
	// List of normalized models.
	Data []Model `json:"data"`
}

// StatusResponse is returned by GET /models/{id}/status.
type StatusResponse struct {
	ModelID string `json:"model_id"`
	// True when the engine answered the status probe successfully.
	Running bool `json:"running"`
}

// PullAccepted is returned by POST /models/pull.
type PullAccepted struct {
	Model string `json:"model"`
	JobID string `json:"id,omitempty"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}
