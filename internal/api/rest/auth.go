package rest

import (
	"errors"
	"net/http"

	"github.com/KevinKickass/OpenPoolCore/internal/auth"
	"github.com/KevinKickass/OpenPoolCore/internal/types"
	"github.com/gin-gonic/gin"
)

// Login request/response types
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"` // seconds
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

func (s *Server) tokenResponse(accessToken, refreshToken string) LoginResponse {
	return LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.authService.AccessTokenTTL().Seconds()),
	}
}

// Auth handlers
func (s *Server) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("AUTH_400", "Invalid request body", err.Error()))
		return
	}

	accessToken, refreshToken, err := s.authService.LoginUser(req.Username, req.Password, c.ClientIP())
	if err != nil {
		if errors.Is(err, auth.ErrAccountLocked) {
			c.JSON(http.StatusLocked, types.NewErrorResponse("AUTH_423", "Account locked", err.Error()))
			return
		}
		c.JSON(http.StatusUnauthorized, types.NewErrorResponse("AUTH_401", "Invalid credentials", nil))
		return
	}

	c.JSON(http.StatusOK, s.tokenResponse(accessToken, refreshToken))
}

func (s *Server) refreshToken(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("AUTH_400", "Invalid request body", err.Error()))
		return
	}

	accessToken, newRefreshToken, err := s.authService.RefreshAccessToken(req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, types.NewErrorResponse("AUTH_401", "Invalid or expired refresh token", nil))
		return
	}

	c.JSON(http.StatusOK, s.tokenResponse(accessToken, newRefreshToken))
}

func (s *Server) logout(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("AUTH_400", "Invalid request body", err.Error()))
		return
	}

	s.authService.RevokeRefreshToken(req.RefreshToken)
	c.JSON(http.StatusOK, gin.H{"message": "logged out successfully"})
}

func (s *Server) getCurrentUser(c *gin.Context) {
	permissions := auth.GetPermissions(c)

	username, ok := auth.GetUsername(c)
	if !ok {
		// Machine tokens have no user behind them
		c.JSON(http.StatusOK, gin.H{
			"user":        nil,
			"permissions": permissions,
		})
		return
	}

	user, err := s.authService.GetUser(username)
	if err != nil {
		c.JSON(http.StatusNotFound, types.NewErrorResponse("USER_404", "User not found", nil))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":        user,
		"permissions": permissions,
	})
}

// User listing (Admin only). Accounts are managed in the config file.
func (s *Server) listUsers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"users": s.authService.ListUsers()})
}
