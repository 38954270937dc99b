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
)

type CategoryRepository interface {
	List(ctx context.Context, userID int64) ([]models.Category, error)
	Get(ctx context.Context, userID, id int64) (*models.Category, error)
	Create(ctx context.Context, userID int64, name string, color *string) (*models.Category, error)
	Update(ctx context.Context, userID, id int64, name *string, color models.Nullable[string]) (*models.Category, error)
	Delete(ctx context.Context, userID, id int64) error
}

type CategoryHandler struct {
	categories CategoryRepository
	reports    ReportInvalidator
}

func NewCategoryHandler(categories CategoryRepository, reports ReportInvalidator) *CategoryHandler {
	if reports == nil {
		reports = noopInvalidator{}
	}
	return &CategoryHandler{categories: categories, reports: reports}
}

func (h *CategoryHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())

	categories, err := h.categories.List(r.Context(), userID)
	if err != nil {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Msg("failed to list categories")
		util.Internal(w)
		return
	}
	util.Success(w, http.StatusOK, "", categories)
}

func (h *CategoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		util.BadRequest(w, "invalid category id")
		return
	}

	category, err := h.categories.Get(r.Context(), userID, id)
	if errors.Is(err, models.ErrNotFound) {
		util.NotFound(w, "category not found")
		return
	}
	if err != nil {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Int64("category_id", id).Msg("failed to get category")
		util.Internal(w)
		return
	}
	util.Success(w, http.StatusOK, "", category)
}

func (h *CategoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	log := logger.FromContext(r.Context())

	var req models.CreateCategoryRequest
	if err := util.DecodeJSON(r, &req); err != nil {
		util.BadRequest(w, err.Error())
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Color != nil {
		color := util.NormalizeColor(*req.Color)
		req.Color = &color
	}
	if details := util.ValidateStruct(req); details != nil {
		util.ValidationFailed(w, details)
		return
	}

	category, err := h.categories.Create(r.Context(), userID, req.Name, req.Color)
	if errors.Is(err, models.ErrDuplicate) {
		util.Conflict(w, "a category with this name already exists")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to create category")
		util.Internal(w)
		return
	}

	log.Info().Int64("category_id", category.ID).Msg("category created")
	util.Success(w, http.StatusCreated, "category created", category)
}

func (h *CategoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	log := logger.FromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		util.BadRequest(w, "invalid category id")
		return
	}

	var req models.UpdateCategoryRequest
	if err := util.DecodeJSON(r, &req); err != nil {
		util.BadRequest(w, err.Error())
		return
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		req.Name = &name
	}
	var details []util.FieldError
	if req.Color.Set && req.Color.Value != nil {
		color := util.NormalizeColor(*req.Color.Value)
		req.Color = models.Some(color)
		details = util.ValidateStruct(struct {
			Color string `json:"color" validate:"hexcolor6"`
		}{color})
	}
	details = append(details, util.ValidateStruct(req)...)
	if req.Name == nil && !req.Color.Set {
		details = append(details, util.FieldError{Path: "body", Message: "at least one field must be provided", Code: "required"})
	}
	if len(details) > 0 {
		util.ValidationFailed(w, details)
		return
	}

	category, err := h.categories.Update(r.Context(), userID, id, req.Name, req.Color)
	switch {
	case errors.Is(err, models.ErrNotFound):
		util.NotFound(w, "category not found")
		return
	case errors.Is(err, models.ErrDuplicate):
		util.Conflict(w, "a category with this name already exists")
		return
	case err != nil:
		log.Error().Err(err).Int64("category_id", id).Msg("failed to update category")
		util.Internal(w)
		return
	}

	h.reports.InvalidateUser(userID)
	log.Info().Int64("category_id", id).Msg("category updated")
	util.Success(w, http.StatusOK, "category updated", category)
}

// Delete removes the category; its transactions become uncategorized.
func (h *CategoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	log := logger.FromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		util.BadRequest(w, "invalid category id")
		return
	}

	err := h.categories.Delete(r.Context(), userID, id)
	if errors.Is(err, models.ErrNotFound) {
		util.NotFound(w, "category not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Int64("category_id", id).Msg("failed to delete category")
		util.Internal(w)
		return
	}

	h.reports.InvalidateUser(userID)
	log.Info().Int64("category_id", id).Msg("category deleted")
	util.Success(w, http.StatusOK, "category deleted", nil)
}
