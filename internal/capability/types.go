package capability

// InvokeRequest is the body of POST <endpoint>.
type InvokeRequest struct {
	Prompt   string `json:"prompt"`
	Strategy string `json:"strategy"`
	Params   any    `json:"params"`
}

// InvokeResponse is the body returned by a capability endpoint.
type InvokeResponse struct {
	Success         bool    `json:"success"`
	Output          string  `json:"output"`
	Confidence      float64 `json:"confidence"`
	ExecutionTimeMS int64   `json:"execution_time_ms,omitempty"`
	Error           string  `json:"error,omitempty"`
}
