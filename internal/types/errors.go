package types

// API error codes
const (
	CodeBadRequest     = "SENSOR_400"
	CodeForbidden      = "SENSOR_403"
	CodeNotFound       = "SENSOR_404"
	CodeConflict       = "SENSOR_409"
	CodeInternal       = "SENSOR_500"
	CodeDriverRejected = "SENSOR_502"
	CodeUnavailable    = "SENSOR_503"
)

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// NewErrorResponse builds a consistent API error payload.
// details can be string, map, struct, etc.
func NewErrorResponse(code, message string, details any) ErrorResponse {
	return ErrorResponse{
		Error: ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}
