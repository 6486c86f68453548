package dto

// ErrorResponse is the uniform error shape. Details carries an internal
// diagnostic string for store failures and is never a substitute for
// the generic message shown to users.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	DB        string `json:"db"`
}
