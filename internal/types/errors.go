package types

import "strconv"

// Error code scopes. Codes are <SCOPE>_<HTTP status>, e.g. RELAY_409.
const (
	ScopeAuth       = "AUTH"
	ScopeController = "CONTROLLER"
	ScopeRelay      = "RELAY"
	ScopeDosage     = "DOSAGE"
	ScopeDMX        = "DMX"
	ScopeFeed       = "FEED"
	ScopeHistory    = "HISTORY"
)

func ErrorCode(scope string, status int) string {
	return scope + "_" + strconv.Itoa(status)
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// NewErrorResponse builds the API error payload. details is optional and
// may be a string, map or struct.
func NewErrorResponse(code, message string, details any) ErrorResponse {
	return ErrorResponse{Error: ErrorBody{Code: code, Message: message, Details: details}}
}
