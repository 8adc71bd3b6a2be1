package snapshot

import (
	"context"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"approvals/internal/document/models"
)

// dateLayouts are the shapes legacy producers write dates in.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006",
	"02-01-2006",
	"02-01-2006 15:04:05",
}

// Float parses an amount or quantity. Thousands separators are ignored.
func Float(v models.RawValue) (float64, bool) {
	s := strings.ReplaceAll(strings.TrimSpace(v.String()), ",", "")
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Int parses a whole number. Integral decimals such as "1.0" are accepted.
func Int(v models.RawValue) (int, bool) {
	s := strings.TrimSpace(v.String())
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	f, ok := Float(v)
	if !ok || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

// Date parses a calendar date or timestamp.
func Date(v models.RawValue) (time.Time, bool) {
	s := strings.TrimSpace(v.String())
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// coercer applies Float, Int and Date to one document's fields. Blank values
// take the caller's default quietly; values that are present but unusable
// take the default and are logged.
type coercer struct {
	ctx        context.Context
	logger     *slog.Logger
	documentID string
}

func (c coercer) float(field string, v models.RawValue, def float64) float64 {
	if v.IsBlank() {
		return def
	}
	f, ok := Float(v)
	if !ok {
		c.warn(field, v)
		return 0
	}
	return f
}

func (c coercer) int(field string, v models.RawValue, def int) int {
	if v.IsBlank() {
		return def
	}
	n, ok := Int(v)
	if !ok {
		c.warn(field, v)
		return 0
	}
	return n
}

// date formats v with layout, or returns def when v is blank or unusable.
func (c coercer) date(field string, v models.RawValue, layout, def string) string {
	if v.IsBlank() {
		return def
	}
	t, ok := Date(v)
	if !ok {
		c.warn(field, v)
		return def
	}
	return t.Format(layout)
}

func (c coercer) warn(field string, v models.RawValue) {
	if c.logger == nil {
		return
	}
	c.logger.WarnContext(c.ctx, "snapshot field could not be coerced, using default",
		"document_id", c.documentID,
		"field", field,
		"value", v.String(),
	)
}
