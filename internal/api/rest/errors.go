package rest

import (
	"errors"
	"net/http"

	"github.com/KevinKickass/OpenPoolCore/internal/controller"
	"github.com/KevinKickass/OpenPoolCore/internal/procon"
	"github.com/KevinKickass/OpenPoolCore/internal/types"
	"github.com/gin-gonic/gin"
)

// writeControllerError maps core and transport errors to HTTP responses.
// scope prefixes the error code of operand errors.
func writeControllerError(c *gin.Context, scope string, err error) {
	var status int
	var message string

	switch {
	case errors.Is(err, procon.ErrBadRelay):
		status, scope, message = http.StatusConflict, types.ScopeRelay, "Relay cannot be switched"
	case errors.Is(err, procon.ErrInvalidOperand):
		status, message = http.StatusBadRequest, "Invalid operand"
	case errors.Is(err, procon.ErrMalformedFeed):
		status, scope, message = http.StatusBadGateway, types.ScopeFeed, "Controller returned a malformed feed"
	case errors.Is(err, controller.ErrTimeout):
		status, scope, message = http.StatusGatewayTimeout, types.ScopeController, "Controller did not respond in time"
	case errors.Is(err, controller.ErrBadCredentials):
		status, scope, message = http.StatusBadGateway, types.ScopeController, "Controller rejected the configured credentials"
	default:
		var statusErr *controller.StatusError
		scope = types.ScopeController
		if errors.As(err, &statusErr) || errors.Is(err, controller.ErrRequest) {
			status, message = http.StatusBadGateway, "Controller request failed"
		} else {
			status, message = http.StatusInternalServerError, "Unexpected error"
		}
	}

	_ = c.Error(err)
	c.JSON(status, types.NewErrorResponse(types.ErrorCode(scope, status), message, err.Error()))
}

func writeNotFound(c *gin.Context, name string) {
	c.JSON(http.StatusNotFound, types.NewErrorResponse(types.ErrorCode(types.ScopeController, http.StatusNotFound), "Controller not found", gin.H{"controller": name}))
}
