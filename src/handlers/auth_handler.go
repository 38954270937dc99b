package handlers

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"expense-tracker-server/src/logger"
	"expense-tracker-server/src/middleware"
	"expense-tracker-server/src/models"
	"expense-tracker-server/src/util"

	"github.com/golang-jwt/jwt"
	"golang.org/x/crypto/bcrypt"
)

const (
	refreshTokenBytes = 40
	resetTokenBytes   = 32
)

type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, email string, name *string, passwordHash string) (*models.User, error)
	UpdatePassword(ctx context.Context, userID int64, passwordHash string) error
}

type TokenRepository interface {
	CreateRefreshToken(ctx context.Context, userID int64, hash string, expiresAt time.Time) error
	RotateRefreshToken(ctx context.Context, oldHash, newHash string, expiresAt time.Time) (int64, error)
	RevokeRefreshToken(ctx context.Context, hash string) error
	CreateResetToken(ctx context.Context, userID int64, hash string, expiresAt time.Time) error
	ResetPassword(ctx context.Context, hash, passwordHash string) (int64, error)
}

type AuthConfig struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	ResetTTL   time.Duration
	// ExposeResetToken returns reset tokens in the response body. Only for
	// non-production environments, where no mail is sent.
	ExposeResetToken bool
}

type AuthHandler struct {
	users  UserRepository
	tokens TokenRepository
	cfg    AuthConfig
	now    func() time.Time
}

func NewAuthHandler(users UserRepository, tokens TokenRepository, cfg AuthConfig) *AuthHandler {
	return &AuthHandler{users: users, tokens: tokens, cfg: cfg, now: time.Now}
}

type accessClaims struct {
	Email string `json:"email"`
	jwt.StandardClaims
}

func (h *AuthHandler) signAccessToken(user *models.User) (string, error) {
	now := h.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims{
		Email: user.Email,
		StandardClaims: jwt.StandardClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			Issuer:    middleware.TokenIssuer,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(h.cfg.AccessTTL).Unix(),
		},
	})
	return token.SignedString([]byte(h.cfg.Secret))
}

// randomToken returns n random bytes hex encoded, and the SHA-256 of that
// string which is what gets stored.
func randomToken(n int) (token, hash string, err error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", "", err
	}
	token = hex.EncodeToString(b)
	return token, hashToken(token), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// issueTokens starts a new session for user, ending any previous one.
func (h *AuthHandler) issueTokens(ctx context.Context, user *models.User) (*models.Tokens, error) {
	refresh, hash, err := randomToken(refreshTokenBytes)
	if err != nil {
		return nil, err
	}
	expiresAt := h.now().Add(h.cfg.RefreshTTL)
	if err := h.tokens.CreateRefreshToken(ctx, user.ID, hash, expiresAt); err != nil {
		return nil, err
	}
	return h.buildTokens(user, refresh, expiresAt)
}

func (h *AuthHandler) buildTokens(user *models.User, refresh string, expiresAt time.Time) (*models.Tokens, error) {
	access, err := h.signAccessToken(user)
	if err != nil {
		return nil, err
	}
	return &models.Tokens{
		AccessToken:           access,
		RefreshToken:          refresh,
		ExpiresIn:             int64(h.cfg.AccessTTL.Seconds()),
		RefreshTokenExpiresAt: expiresAt.UTC(),
	}, nil
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	var req models.RegisterRequest
	if err := util.DecodeJSON(r, &req); err != nil {
		util.BadRequest(w, err.Error())
		return
	}
	req.Email = util.NormalizeEmail(req.Email)
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		req.Name = &name
		if name == "" {
			req.Name = nil
		}
	}
	if details := util.ValidateStruct(req); details != nil {
		util.ValidationFailed(w, details)
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Error().Err(err).Msg("failed to hash password")
		util.Internal(w)
		return
	}

	user, err := h.users.Create(r.Context(), req.Email, req.Name, string(hashedPassword))
	if errors.Is(err, models.ErrDuplicate) {
		util.Conflict(w, "email is already registered")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to create user")
		util.Internal(w)
		return
	}

	tokens, err := h.issueTokens(r.Context(), user)
	if err != nil {
		log.Error().Err(err).Int64("user_id", user.ID).Msg("failed to issue tokens")
		util.Internal(w)
		return
	}

	log.Info().Int64("user_id", user.ID).Msg("user registered")
	util.Success(w, http.StatusCreated, "user registered", models.AuthResponse{User: *user, Tokens: *tokens})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	var req models.LoginRequest
	if err := util.DecodeJSON(r, &req); err != nil {
		util.BadRequest(w, err.Error())
		return
	}
	req.Email = util.NormalizeEmail(req.Email)
	if details := util.ValidateStruct(req); details != nil {
		util.ValidationFailed(w, details)
		return
	}

	user, err := h.users.GetByEmail(r.Context(), req.Email)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		log.Error().Err(err).Msg("failed to load user for login")
		util.Internal(w)
		return
	}
	if user == nil {
		util.Unauthorized(w, "invalid email or password")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		log.Warn().Int64("user_id", user.ID).Str("remote_addr", r.RemoteAddr).Msg("invalid password attempt")
		util.Unauthorized(w, "invalid email or password")
		return
	}

	tokens, err := h.issueTokens(r.Context(), user)
	if err != nil {
		log.Error().Err(err).Int64("user_id", user.ID).Msg("failed to issue tokens")
		util.Internal(w)
		return
	}

	log.Info().Int64("user_id", user.ID).Msg("successful login")
	util.Success(w, http.StatusOK, "logged in", models.AuthResponse{User: *user, Tokens: *tokens})
}

// Refresh exchanges a refresh token for a new token pair. The presented
// token is revoked.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	var req models.RefreshRequest
	if err := util.DecodeJSON(r, &req); err != nil {
		util.BadRequest(w, err.Error())
		return
	}
	if details := util.ValidateStruct(req); details != nil {
		util.ValidationFailed(w, details)
		return
	}

	refresh, hash, err := randomToken(refreshTokenBytes)
	if err != nil {
		log.Error().Err(err).Msg("failed to generate refresh token")
		util.Internal(w)
		return
	}
	expiresAt := h.now().Add(h.cfg.RefreshTTL)

	userID, err := h.tokens.RotateRefreshToken(r.Context(), hashToken(req.RefreshToken), hash, expiresAt)
	if errors.Is(err, models.ErrNotFound) {
		util.Unauthorized(w, "refresh token is invalid or expired")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to rotate refresh token")
		util.Internal(w)
		return
	}

	user, err := h.users.GetByID(r.Context(), userID)
	if errors.Is(err, models.ErrNotFound) {
		util.NotFound(w, "user not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("failed to load user for refresh")
		util.Internal(w)
		return
	}

	tokens, err := h.buildTokens(user, refresh, expiresAt)
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("failed to sign access token")
		util.Internal(w)
		return
	}
	util.Success(w, http.StatusOK, "token refreshed", models.AuthResponse{User: *user, Tokens: *tokens})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req models.RefreshRequest
	if err := util.DecodeJSON(r, &req); err != nil {
		util.BadRequest(w, err.Error())
		return
	}
	if details := util.ValidateStruct(req); details != nil {
		util.ValidationFailed(w, details)
		return
	}
	if err := h.tokens.RevokeRefreshToken(r.Context(), hashToken(req.RefreshToken)); err != nil {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Msg("failed to revoke refresh token")
		util.Internal(w)
		return
	}
	util.Success(w, http.StatusOK, "logged out", nil)
}

const resetRequestedMessage = "if the email exists, a reset link will be sent"

// RequestPasswordReset answers the same way whether or not the email is
// registered.
func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	var req models.PasswordResetRequest
	if err := util.DecodeJSON(r, &req); err != nil {
		util.BadRequest(w, err.Error())
		return
	}
	req.Email = util.NormalizeEmail(req.Email)
	if details := util.ValidateStruct(req); details != nil {
		util.Success(w, http.StatusOK, resetRequestedMessage, nil)
		return
	}

	user, err := h.users.GetByEmail(r.Context(), req.Email)
	if errors.Is(err, models.ErrNotFound) {
		util.Success(w, http.StatusOK, resetRequestedMessage, nil)
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to load user for password reset")
		util.Internal(w)
		return
	}

	token, hash, err := randomToken(resetTokenBytes)
	if err != nil {
		log.Error().Err(err).Msg("failed to generate reset token")
		util.Internal(w)
		return
	}
	expiresAt := h.now().Add(h.cfg.ResetTTL)
	if err := h.tokens.CreateResetToken(r.Context(), user.ID, hash, expiresAt); err != nil {
		log.Error().Err(err).Int64("user_id", user.ID).Msg("failed to store reset token")
		util.Internal(w)
		return
	}

	log.Info().Int64("user_id", user.ID).Msg("password reset requested")
	if !h.cfg.ExposeResetToken {
		util.Success(w, http.StatusOK, resetRequestedMessage, nil)
		return
	}
	util.Success(w, http.StatusOK, resetRequestedMessage, map[string]interface{}{
		"resetToken": token,
		"expiresAt":  expiresAt.UTC(),
	})
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	var req models.PasswordResetConfirm
	if err := util.DecodeJSON(r, &req); err != nil {
		util.BadRequest(w, err.Error())
		return
	}
	req.Token = strings.ToLower(strings.TrimSpace(req.Token))
	if details := util.ValidateStruct(req); details != nil {
		util.ValidationFailed(w, details)
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Error().Err(err).Msg("failed to hash password")
		util.Internal(w)
		return
	}

	userID, err := h.tokens.ResetPassword(r.Context(), hashToken(req.Token), string(hashedPassword))
	if errors.Is(err, models.ErrNotFound) {
		util.BadRequest(w, "reset token is invalid or expired")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to reset password")
		util.Internal(w)
		return
	}

	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("failed to load user after reset")
		util.Internal(w)
		return
	}

	log.Info().Int64("user_id", userID).Msg("password reset")
	util.Success(w, http.StatusOK, "password updated", map[string]interface{}{"user": user})
}
