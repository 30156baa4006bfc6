package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/marmos91/fixgate/internal/logger"
	"github.com/marmos91/fixgate/pkg/api/auth"
)

// AuthHandler serves admin login.
type AuthHandler struct {
	jwt          *auth.JWTService
	adminUser    string
	passwordHash string
}

// NewAuthHandler builds the handler around the configured admin
// credential.
func NewAuthHandler(jwt *auth.JWTService, adminUser, passwordHash string) *AuthHandler {
	return &AuthHandler{jwt: jwt, adminUser: adminUser, passwordHash: passwordHash}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login validates the admin credential and issues a bearer token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		JSON(w, http.StatusBadRequest, ErrorResponse("invalid request body"))
		return
	}

	if req.Username != h.adminUser ||
		bcrypt.CompareHashAndPassword([]byte(h.passwordHash), []byte(req.Password)) != nil {
		logger.Warn("admin login failed", "username", req.Username)
		JSON(w, http.StatusUnauthorized, ErrorResponse("invalid credentials"))
		return
	}

	token, expiry, err := h.jwt.IssueToken(req.Username)
	if err != nil {
		JSON(w, http.StatusInternalServerError, ErrorResponse("token issuance failed"))
		return
	}

	JSON(w, http.StatusOK, OKResponse(loginResponse{Token: token, ExpiresAt: expiry}))
}
