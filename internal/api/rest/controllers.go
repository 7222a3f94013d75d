package rest

import (
	"net/http"
	"strconv"

	"github.com/KevinKickass/OpenPoolCore/internal/controller"
	"github.com/KevinKickass/OpenPoolCore/internal/procon"
	"github.com/KevinKickass/OpenPoolCore/internal/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type RelayRequest struct {
	Action string `json:"action" binding:"required"`
}

type DosageRequest struct {
	Target   string `json:"target" binding:"required"`
	Duration *int   `json:"duration" binding:"required"`
}

type DMXChannelRequest struct {
	Value *int `json:"value" binding:"required"`
}

// lookup resolves :name (controller name or runtime id) and writes a 404
// if it is unknown.
func (s *Server) lookup(c *gin.Context) (*controller.Controller, bool) {
	name := c.Param("name")
	ctrl, ok := s.lm.ControllerManager().Lookup(name)
	if !ok {
		writeNotFound(c, name)
		return nil, false
	}
	return ctrl, true
}

// GET /api/v1/controllers
func (s *Server) listControllers(c *gin.Context) {
	controllers := s.lm.ControllerManager().ListControllers()

	response := make([]controller.Info, 0, len(controllers))
	for _, ctrl := range controllers {
		response = append(response, ctrl.Info())
	}

	c.JSON(http.StatusOK, gin.H{
		"controllers": response,
		"count":       len(response),
	})
}

// GET /api/v1/controllers/:name
func (s *Server) getController(c *gin.Context) {
	ctrl, ok := s.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, ctrl.Info())
}

// GET /api/v1/controllers/:name/state
func (s *Server) getState(c *gin.Context) {
	ctrl, ok := s.lookup(c)
	if !ok {
		return
	}

	var (
		snapshot *procon.Snapshot
		err      error
	)
	if refresh, _ := strconv.ParseBool(c.Query("refresh")); refresh {
		snapshot, err = ctrl.Refresh(c.Request.Context())
	} else {
		snapshot, err = ctrl.Current(c.Request.Context())
	}
	if err != nil {
		writeControllerError(c, types.ScopeController, err)
		return
	}

	c.JSON(http.StatusOK, snapshot)
}

// GET /api/v1/controllers/:name/relays
func (s *Server) getRelays(c *gin.Context) {
	ctrl, ok := s.lookup(c)
	if !ok {
		return
	}

	snapshot, err := ctrl.Current(c.Request.Context())
	if err != nil {
		writeControllerError(c, types.ScopeRelay, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"relay_extension": snapshot.IsRelayExtensionEnabled(),
		"relays":          snapshot.RelayViews(),
	})
}

// POST /api/v1/controllers/:name/relays/:id
func (s *Server) switchRelay(c *gin.Context) {
	ctrl, ok := s.lookup(c)
	if !ok {
		return
	}

	relayID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("RELAY_400", "Invalid relay id", err.Error()))
		return
	}

	var req RelayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("RELAY_400", "Invalid request body", err.Error()))
		return
	}

	action, err := procon.ParseRelayAction(req.Action)
	if err != nil {
		writeControllerError(c, types.ScopeRelay, err)
		return
	}

	if err := ctrl.SwitchRelay(c.Request.Context(), relayID, action); err != nil {
		writeControllerError(c, types.ScopeRelay, err)
		return
	}

	s.logger.Info("Relay command via API",
		zap.String("controller", ctrl.Name),
		zap.Int("relay", relayID),
		zap.String("action", action.String()),
		zap.String("client_ip", c.ClientIP()))

	c.JSON(http.StatusOK, gin.H{
		"message":    "Relay switched",
		"controller": ctrl.Name,
		"relay":      relayID,
		"action":     action.String(),
	})
}

// POST /api/v1/controllers/:name/dosage
func (s *Server) startDosage(c *gin.Context) {
	ctrl, ok := s.lookup(c)
	if !ok {
		return
	}

	var req DosageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("DOSAGE_400", "Invalid request body", err.Error()))
		return
	}

	target, err := procon.ParseDosageTarget(req.Target)
	if err != nil {
		writeControllerError(c, types.ScopeDosage, err)
		return
	}

	if err := ctrl.StartDosage(c.Request.Context(), target, *req.Duration); err != nil {
		writeControllerError(c, types.ScopeDosage, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message":    "Dosage started",
		"controller": ctrl.Name,
		"target":     target.String(),
		"duration":   *req.Duration,
	})
}

// GET /api/v1/controllers/:name/dmx
func (s *Server) getDMX(c *gin.Context) {
	ctrl, ok := s.lookup(c)
	if !ok {
		return
	}

	state, err := ctrl.DMX(c.Request.Context())
	if err != nil {
		writeControllerError(c, types.ScopeDMX, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// PUT /api/v1/controllers/:name/dmx/:channel
func (s *Server) setDMXChannel(c *gin.Context) {
	ctrl, ok := s.lookup(c)
	if !ok {
		return
	}

	channel, err := strconv.Atoi(c.Param("channel"))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("DMX_400", "Invalid channel", err.Error()))
		return
	}

	var req DMXChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("DMX_400", "Invalid request body", err.Error()))
		return
	}

	state, err := ctrl.SetDMXChannel(c.Request.Context(), channel, *req.Value)
	if err != nil {
		writeControllerError(c, types.ScopeDMX, err)
		return
	}
	c.JSON(http.StatusOK, state)
}
