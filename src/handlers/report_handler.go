package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"expense-tracker-server/src/db"
	"expense-tracker-server/src/logger"
	"expense-tracker-server/src/middleware"
	"expense-tracker-server/src/models"
	"expense-tracker-server/src/util"
)

type ReportRepository interface {
	Summary(ctx context.Context, userID int64, f models.TransactionFilter) (*models.Summary, error)
	Monthly(ctx context.Context, userID int64, f models.TransactionFilter) ([]models.MonthlyTotal, error)
	ByCategory(ctx context.Context, userID int64, f models.TransactionFilter) (*models.CategoryReport, error)
}

// ReportCache stores reports per user. Set drops a value computed under a
// generation that has since been invalidated.
type ReportCache interface {
	Generation(userID int64) uint64
	Get(userID int64, key string) (interface{}, bool)
	Set(userID int64, generation uint64, key string, value interface{})
}

type ReportHandler struct {
	reports ReportRepository
	cache   ReportCache
}

// NewReportHandler builds the handler. cache may be nil to disable caching.
func NewReportHandler(reports ReportRepository, cache ReportCache) *ReportHandler {
	return &ReportHandler{reports: reports, cache: cache}
}

// filterKey renders the filter values that change a report's result.
func filterKey(f models.TransactionFilter) string {
	parts := make([]string, 0, 6)
	if f.Type != nil {
		parts = append(parts, "type="+string(*f.Type))
	}
	if f.Uncategorized {
		parts = append(parts, "category=none")
	} else if f.CategoryID != nil {
		parts = append(parts, "category="+strconv.FormatInt(*f.CategoryID, 10))
	}
	if f.From != nil {
		parts = append(parts, "from="+f.From.UTC().Format(time.RFC3339Nano))
	}
	if f.To != nil {
		parts = append(parts, "to="+f.To.UTC().Format(time.RFC3339Nano))
	}
	parts = append(parts, "limit="+strconv.Itoa(f.Limit), "offset="+strconv.Itoa(f.Offset))
	return strings.Join(parts, "&")
}

// serve answers a report request from the cache when possible and stores
// freshly computed results.
func (h *ReportHandler) serve(w http.ResponseWriter, r *http.Request, name string, compute func(context.Context, int64, models.TransactionFilter) (interface{}, error)) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	log := logger.FromContext(r.Context())

	filter, details := parseFilter(r)
	if len(details) > 0 {
		util.ValidationFailed(w, details)
		return
	}

	key := db.ReportKey(userID, name, filterKey(filter))
	var generation uint64
	if h.cache != nil {
		generation = h.cache.Generation(userID)
		if cached, ok := h.cache.Get(userID, key); ok {
			log.Debug().Str("report", name).Msg("report served from cache")
			util.Success(w, http.StatusOK, "", cached)
			return
		}
	}

	result, err := compute(r.Context(), userID, filter)
	if err != nil {
		log.Error().Err(err).Str("report", name).Msg("failed to compute report")
		util.Internal(w)
		return
	}
	if h.cache != nil {
		h.cache.Set(userID, generation, key, result)
	}
	util.Success(w, http.StatusOK, "", result)
}

func (h *ReportHandler) Summary(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "summary", func(ctx context.Context, userID int64, f models.TransactionFilter) (interface{}, error) {
		f.Limit, f.Offset = 0, 0
		return h.reports.Summary(ctx, userID, f)
	})
}

func (h *ReportHandler) Monthly(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "monthly", func(ctx context.Context, userID int64, f models.TransactionFilter) (interface{}, error) {
		f.Limit, f.Offset = 0, 0
		return h.reports.Monthly(ctx, userID, f)
	})
}

func (h *ReportHandler) Categories(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "categories", func(ctx context.Context, userID int64, f models.TransactionFilter) (interface{}, error) {
		return h.reports.ByCategory(ctx, userID, f)
	})
}
