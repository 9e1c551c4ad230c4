package types

// OperationResponse is the body of every mutating /api/benchmark call.
type OperationResponse struct {
	Success      bool             `json:"success"`
	Message      string           `json:"message,omitempty"`
	Error        string           `json:"error,omitempty"`
	Status       BenchmarkStatus  `json:"status,omitempty"`
	Config       *BenchmarkConfig `json:"config,omitempty"`
	ErrorType    string           `json:"errorType,omitempty"`
	Suggestion   string           `json:"suggestion,omitempty"`
	Database     string           `json:"database,omitempty"`
	ResponseTime int64            `json:"responseTime,omitempty"`
}

// ConnectionTestRequest is posted to /api/benchmark/test-connection.
type ConnectionTestRequest struct {
	Database DatabaseSettings `json:"database"`
}
