package http

// APIResponse represents standard API response.
type APIResponse struct {
	Status  int         `json:"status" example:"200"`
	Message string      `json:"message" example:"OK"`
	Data    interface{} `json:"data,omitempty"`
	Errors  interface{} `json:"errors,omitempty"`
}

// ValidationError represents validation error detail.
type ValidationError struct {
	Code    string                 `json:"code,omitempty" example:"ERR_REQUIRED"`
	Field   string                 `json:"field,omitempty" example:"date"`
	Message string                 `json:"message,omitempty" example:"date is required"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// HealthResponse is served by the health endpoint.
type HealthResponse struct {
	Status    string `json:"status" example:"ok"`
	Storage   string `json:"storage" example:"local"`
	LastRun   string `json:"last_run,omitempty" example:"2024-01-02"`
	LastState string `json:"last_status,omitempty" example:"success"`
}
