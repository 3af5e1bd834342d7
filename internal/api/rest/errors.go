package rest

import (
	"errors"
	"net/http"

	"github.com/KevinKickass/OpenMachineSensors/internal/attr"
	"github.com/KevinKickass/OpenMachineSensors/internal/devices"
	"github.com/KevinKickass/OpenMachineSensors/internal/msensor"
	"github.com/KevinKickass/OpenMachineSensors/internal/types"
	"github.com/gin-gonic/gin"
)

// errorStatus maps sensor errors to HTTP status and API error code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, devices.ErrSensorNotFound),
		errors.Is(err, devices.ErrProfileNotFound),
		errors.Is(err, attr.ErrNotFound),
		errors.Is(err, msensor.ErrIndexOutOfRange):
		return http.StatusNotFound, types.CodeNotFound
	case errors.Is(err, attr.ErrReadOnly):
		return http.StatusForbidden, types.CodeForbidden
	case errors.Is(err, devices.ErrSensorExists),
		errors.Is(err, msensor.ErrNoModes):
		return http.StatusConflict, types.CodeConflict
	case errors.Is(err, msensor.ErrDriverRejected):
		return http.StatusBadGateway, types.CodeDriverRejected
	case errors.Is(err, msensor.ErrInvalidMode),
		errors.Is(err, msensor.ErrUnsupportedFormat):
		return http.StatusBadRequest, types.CodeBadRequest
	}
	return http.StatusInternalServerError, types.CodeInternal
}

func (s *Server) writeError(c *gin.Context, message string, err error) {
	status, code := errorStatus(err)
	_ = c.Error(err)
	c.JSON(status, types.NewErrorResponse(code, message, err.Error()))
}

func badRequest(c *gin.Context, message string, err error) {
	c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.CodeBadRequest, message, err.Error()))
}
