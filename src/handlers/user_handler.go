package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"expense-tracker-server/src/logger"
	"expense-tracker-server/src/middleware"
	"expense-tracker-server/src/models"
	"expense-tracker-server/src/util"

	"golang.org/x/crypto/bcrypt"
)

type ProfileRepository interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
	UpdateName(ctx context.Context, userID int64, name *string) (*models.User, error)
	UpdatePassword(ctx context.Context, userID int64, passwordHash string) error
	Delete(ctx context.Context, userID int64) error
}

type UserHandler struct {
	users ProfileRepository
}

func NewUserHandler(users ProfileRepository) *UserHandler {
	return &UserHandler{users: users}
}

func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())

	user, err := h.users.GetByID(r.Context(), userID)
	if errors.Is(err, models.ErrNotFound) {
		util.NotFound(w, "user not found")
		return
	}
	if err != nil {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Msg("failed to get user")
		util.Internal(w)
		return
	}
	util.Success(w, http.StatusOK, "", user)
}

func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	log := logger.FromContext(r.Context())

	var req models.UpdateProfileRequest
	if err := util.DecodeJSON(r, &req); err != nil {
		util.BadRequest(w, err.Error())
		return
	}
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

	user, err := h.users.UpdateName(r.Context(), userID, req.Name)
	if errors.Is(err, models.ErrNotFound) {
		util.NotFound(w, "user not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to update user profile")
		util.Internal(w)
		return
	}

	log.Info().Msg("user profile updated")
	util.Success(w, http.StatusOK, "profile updated", user)
}

// ChangePassword verifies the current password before storing the new one.
// Every refresh token of the user is revoked.
func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	log := logger.FromContext(r.Context())

	var req models.ChangePasswordRequest
	if err := util.DecodeJSON(r, &req); err != nil {
		util.BadRequest(w, err.Error())
		return
	}
	if details := util.ValidateStruct(req); details != nil {
		util.ValidationFailed(w, details)
		return
	}

	user, err := h.users.GetByID(r.Context(), userID)
	if errors.Is(err, models.ErrNotFound) {
		util.NotFound(w, "user not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to get user")
		util.Internal(w)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
		log.Warn().Msg("invalid current password on password change")
		util.Unauthorized(w, "current password is incorrect")
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Error().Err(err).Msg("failed to hash password")
		util.Internal(w)
		return
	}

	if err := h.users.UpdatePassword(r.Context(), userID, string(hashedPassword)); err != nil {
		log.Error().Err(err).Msg("failed to update password")
		util.Internal(w)
		return
	}

	log.Info().Msg("password changed")
	util.Success(w, http.StatusOK, "password updated", nil)
}

func (h *UserHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	log := logger.FromContext(r.Context())

	err := h.users.Delete(r.Context(), userID)
	if errors.Is(err, models.ErrNotFound) {
		util.NotFound(w, "user not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to delete user")
		util.Internal(w)
		return
	}

	log.Info().Msg("user deleted")
	util.Success(w, http.StatusOK, "user deleted", nil)
}
