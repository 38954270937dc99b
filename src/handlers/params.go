package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"expense-tracker-server/src/models"
	"expense-tracker-server/src/util"

	"github.com/go-chi/chi/v5"
)

// ReportInvalidator drops cached reports after a user's data changes.
type ReportInvalidator interface {
	InvalidateUser(userID int64)
}

type noopInvalidator struct{}

func (noopInvalidator) InvalidateUser(int64) {}

// pathID parses a positive id URL parameter.
func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// queryTime accepts RFC 3339 timestamps and plain YYYY-MM-DD dates. A date
// used as an upper bound covers the whole day.
func queryTime(value string, endOfDay bool) (*time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return nil, fmt.Errorf("must be an ISO 8601 date or timestamp")
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

// parseFilter reads the shared listing and report query parameters.
func parseFilter(r *http.Request) (models.TransactionFilter, []util.FieldError) {
	var (
		f       models.TransactionFilter
		details []util.FieldError
	)
	q := r.URL.Query()
	fail := func(path, msg string) {
		details = append(details, util.FieldError{Path: path, Message: msg, Code: "invalid"})
	}

	if v := q.Get("type"); v != "" {
		t := models.TransactionType(strings.ToLower(v))
		if !t.Valid() {
			fail("type", "must be one of income, expense")
		} else {
			f.Type = &t
		}
	}
	if v := q.Get("categoryId"); v != "" {
		if strings.EqualFold(v, "null") || strings.EqualFold(v, "none") {
			f.Uncategorized = true
		} else if id, err := strconv.ParseInt(v, 10, 64); err != nil || id <= 0 {
			fail("categoryId", "must be a positive integer")
		} else {
			f.CategoryID = &id
		}
	}
	if v := q.Get("from"); v != "" {
		t, err := queryTime(v, false)
		if err != nil {
			fail("from", err.Error())
		}
		f.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := queryTime(v, true)
		if err != nil {
			fail("to", err.Error())
		}
		f.To = t
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		fail("to", "must not be before from")
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			fail("limit", "must be a positive integer")
		}
		f.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			fail("offset", "must be a non-negative integer")
		}
		f.Offset = n
	}
	return f, details
}
