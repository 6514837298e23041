package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"smartbudget/internal/core"

	"github.com/shopspring/decimal"
)

// UserIDHeader identifies the caller. Authentication happens upstream.
const UserIDHeader = "X-User-ID"

const maxUserIDLength = 128

var errMissingUser = errors.New("missing " + UserIDHeader + " header")

func userID(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.Header.Get(UserIDHeader))
	if id == "" {
		return "", errMissingUser
	}
	if len(id) > maxUserIDLength || strings.ContainsAny(id, "|\r\n") {
		return "", fmt.Errorf("invalid %s header", UserIDHeader)
	}
	return id, nil
}

// decodeJSON reads one JSON object into dst, rejecting unknown fields and
// bodies over maxBodyBytes.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if dec.More() {
		return errors.New("request body must hold a single JSON object")
	}
	return nil
}

// parseTime accepts RFC 3339 timestamps and plain YYYY-MM-DD dates (UTC
// midnight).
func parseTime(field, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Time{}, core.NewValidationError(field, "expected YYYY-MM-DD or RFC 3339, got "+strconv.Quote(s))
}

// parsePeriod reads start and end from the query. Missing bounds default to
// fallback; a date-only end is inclusive, so it moves to the next midnight.
func parsePeriod(q url.Values, fallback core.Period) (core.Period, error) {
	p := fallback
	if v := q.Get("start"); v != "" {
		t, err := parseTime("start", v)
		if err != nil {
			return core.Period{}, err
		}
		p.Start = t
	}
	if v := q.Get("end"); v != "" {
		t, err := parseTime("end", v)
		if err != nil {
			return core.Period{}, err
		}
		if _, dateOnly := time.Parse(time.DateOnly, strings.TrimSpace(v)); dateOnly == nil {
			t = t.AddDate(0, 0, 1)
		}
		p.End = t
	}
	return p, p.Validate()
}

func parseAlertFilter(q url.Values) (core.AlertFilter, error) {
	f := core.AlertFilter{
		AlertType: core.AlertType(strings.TrimSpace(q.Get("alert_type"))),
		Priority:  core.Priority(strings.TrimSpace(q.Get("priority"))),
	}

	var err error
	if f.Page, err = optionalInt(q, "page"); err != nil {
		return f, err
	}
	if f.Limit, err = optionalInt(q, "limit"); err != nil {
		return f, err
	}
	if v := q.Get("is_read"); v != "" {
		b, perr := strconv.ParseBool(v)
		if perr != nil {
			return f, core.NewValidationError("is_read", "must be true or false")
		}
		f.IsRead = &b
	}
	if v := q.Get("start"); v != "" {
		if f.Start, err = parseTime("start", v); err != nil {
			return f, err
		}
	}
	if v := q.Get("end"); v != "" {
		if f.End, err = parseTime("end", v); err != nil {
			return f, err
		}
	}
	return f, nil
}

func optionalInt(q url.Values, key string) (int, error) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, core.NewValidationError(key, "must be an integer")
	}
	return n, nil
}

// expenseRequest is the create/update body. amount may be a JSON number or
// a string with a dot or comma separator.
type expenseRequest struct {
	Amount      json.RawMessage  `json:"amount"`
	Category    string           `json:"category"`
	PaymentType core.PaymentType `json:"payment_type"`
	OccurredAt  string           `json:"occurred_at"`
	Notes       string           `json:"notes"`
	Tags        []string         `json:"tags"`
}

func (req expenseRequest) toRecord(userID string) (core.ExpenseRecord, error) {
	raw := strings.TrimSpace(string(req.Amount))
	if unquoted, err := strconv.Unquote(raw); err == nil {
		raw = unquoted
	}
	amount, err := core.ParseAmount(raw)
	if err != nil {
		return core.ExpenseRecord{}, err
	}
	if strings.TrimSpace(req.OccurredAt) == "" {
		return core.ExpenseRecord{}, core.NewValidationError("occurred_at", "must be set")
	}
	at, err := parseTime("occurred_at", req.OccurredAt)
	if err != nil {
		return core.ExpenseRecord{}, err
	}
	return core.ExpenseRecord{
		UserID:      userID,
		Amount:      amount,
		Category:    req.Category,
		PaymentType: req.PaymentType,
		OccurredAt:  at,
		Notes:       req.Notes,
		Tags:        req.Tags,
	}, nil
}

type profileRequest struct {
	MonthlyBudget decimal.Decimal `json:"monthly_budget"`
	MonthlyIncome decimal.Decimal `json:"monthly_income"`
}

type checkBudgetRequest struct {
	CategoryLimits map[string]decimal.Decimal `json:"category_limits"`
}

type alertRequest struct {
	AlertType core.AlertType `json:"alert_type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Priority  core.Priority  `json:"priority"`
	Metadata  map[string]any `json:"metadata"`
}
