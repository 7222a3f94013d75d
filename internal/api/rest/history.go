package rest

import (
	"net/http"
	"strconv"

	"github.com/KevinKickass/OpenPoolCore/internal/storage"
	"github.com/KevinKickass/OpenPoolCore/internal/types"
	"github.com/gin-gonic/gin"
)

const defaultHistoryLimit = 50

// history returns the history store or writes a 503 when the database is
// disabled.
func (s *Server) history(c *gin.Context) (storage.HistoryReader, bool) {
	h := s.lm.History()
	if h == nil {
		c.JSON(http.StatusServiceUnavailable, types.NewErrorResponse("HISTORY_503", "History storage is disabled", nil))
		return nil, false
	}
	return h, true
}

func queryLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultHistoryLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("HISTORY_400", "limit must be a positive integer", raw))
		return 0, false
	}
	return limit, true
}

// GET /api/v1/controllers/:name/history
func (s *Server) getHistory(c *gin.Context) {
	ctrl, ok := s.lookup(c)
	if !ok {
		return
	}
	h, ok := s.history(c)
	if !ok {
		return
	}
	limit, ok := queryLimit(c)
	if !ok {
		return
	}

	records, err := h.LatestSnapshots(c.Request.Context(), ctrl.Name, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("HISTORY_500", "Failed to load history", err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshots": records, "count": len(records)})
}

// GET /api/v1/controllers/:name/commands
func (s *Server) getCommands(c *gin.Context) {
	ctrl, ok := s.lookup(c)
	if !ok {
		return
	}
	h, ok := s.history(c)
	if !ok {
		return
	}
	limit, ok := queryLimit(c)
	if !ok {
		return
	}

	records, err := h.ListCommands(c.Request.Context(), ctrl.Name, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("HISTORY_500", "Failed to load commands", err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"commands": records, "count": len(records)})
}
