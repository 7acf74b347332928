package httpresp

const (
	ErrUnauthorized        = "Unauthorized"
	ErrMissingBearerToken  = "No token provided"
	ErrInvalidToken        = "Invalid token"
	ErrNotFound            = "Not found"
	ErrAccessDenied        = "Access denied"
	ErrTooManyRequests     = "too many requests"
	ErrInvalidRequestBody  = "invalid request body"
	ErrInternalServerError = "internal server error"
)

// ErrorResponse is the `{error}` shape shared by every endpoint.
type ErrorResponse struct {
	Error string `json:"error"`
}

type OKResponse struct {
	OK bool `json:"ok"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

func NewErrorResponse(message string) ErrorResponse {
	return ErrorResponse{Error: message}
}

func NewOKResponse() OKResponse {
	return OKResponse{OK: true}
}

func NewHealthResponse(status string) HealthResponse {
	return HealthResponse{Status: status}
}
