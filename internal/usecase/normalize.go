package usecase

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// firstString returns the first non-empty value among paths.
func firstString(r gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := strings.TrimSpace(r.Get(p).String()); v != "" {
			return v
		}
	}
	return ""
}

// planIDOf coalesces the id aliases the backend uses for plans.
func planIDOf(r gjson.Result) string {
	return firstString(r, "_id", "id", "planId", "razorpayPlanId")
}

// parseMoney reads a number or a formatted string such as "₹1,599.00".
// present is false when the field is missing, null or blank.
func parseMoney(v gjson.Result) (d decimal.Decimal, present bool, err error) {
	switch v.Type {
	case gjson.Number:
		d, err = decimal.NewFromString(v.Raw)
		return d, true, err
	case gjson.String:
		s := strings.TrimSpace(v.Str)
		if s == "" {
			return decimal.Zero, false, nil
		}
		var b strings.Builder
		for _, r := range s {
			if (r >= '0' && r <= '9') || r == '.' || r == '-' {
				b.WriteRune(r)
			}
		}
		if b.Len() == 0 {
			return decimal.Zero, true, fmt.Errorf("no digits in %q", s)
		}
		d, err = decimal.NewFromString(b.String())
		if err != nil {
			return decimal.Zero, true, fmt.Errorf("parse %q: %w", s, err)
		}
		return d, true, nil
	}
	return decimal.Zero, false, nil
}

func parseTime(v gjson.Result) *time.Time {
	s := strings.TrimSpace(v.String())
	if s == "" {
		return nil
	}
	if v.Type == gjson.Number {
		t := time.UnixMilli(v.Int())
		return &t
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
