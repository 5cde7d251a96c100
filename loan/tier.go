package loan

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// LATE-FEE TIERS - Tiered penalty schedule
// =============================================================================

// TierKind is the decoded variant of a late-fee tier. The raw rows store
// tiers loosely as JSON; the kind is derived once at the persistence
// boundary so the calculator never re-inspects day bounds.
type TierKind string

const (
	// TierOneTime fires once when daysOverdue reaches StartDay
	// (startDay == endDay in the raw row).
	TierOneTime TierKind = "one_time"

	// TierBounded charges per overdue day within [StartDay, EndDay].
	TierBounded TierKind = "bounded"

	// TierUnbounded charges per overdue day from StartDay onward
	// (endDay null in the raw row, "day N+").
	TierUnbounded TierKind = "unbounded"
)

type FeeKind string

const (
	FeePercent FeeKind = "percent" // FeeValue is a percentage of principal
	FeeFixed   FeeKind = "fixed"   // FeeValue is a flat money amount
)

// LateFeeTier is one decoded rule of the late-fee schedule.
type LateFeeTier struct {
	Kind       TierKind
	StartDay   int
	EndDay     int // meaningful only for TierBounded and TierOneTime
	FeeValue   decimal.Decimal
	FeeKind    FeeKind
	GSTPercent decimal.Decimal
}

// DefaultGSTPercent applies when the first tier carries no GST rate.
var DefaultGSTPercent = decimal.NewFromInt(18)

// rawTier mirrors the JSON column written by the plan-snapshot pipeline.
type rawTier struct {
	StartDay   int              `json:"startDay"`
	EndDay     *int             `json:"endDay"`
	FeeValue   *decimal.Decimal `json:"feeValue"`
	FeeKind    string           `json:"feeKind"`
	GSTPercent *decimal.Decimal `json:"gstPercent"`
}

// DecodeTiers parses and validates a late-fee tier JSON column.
//
// Anything malformed (bad JSON, non-positive start day, end before start,
// negative fee, unknown fee kind) fails the whole column with an error
// wrapping ErrMalformedTiers. The row is then dead-letter logged and
// skipped by the runner; tiers are never silently defaulted.
//
// An empty or NULL column is valid and means "no penalty schedule".
func DecodeTiers(raw string) ([]LateFeeTier, error) {
	if raw == "" || raw == "null" {
		return nil, nil
	}

	var rows []rawTier
	if err := json.Unmarshal([]byte(raw), &rows); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTiers, err)
	}

	tiers := make([]LateFeeTier, 0, len(rows))
	prevStart := 0
	for i, r := range rows {
		if r.StartDay < 1 {
			return nil, fmt.Errorf("%w: tier %d has start day %d", ErrMalformedTiers, i, r.StartDay)
		}
		if r.StartDay < prevStart {
			return nil, fmt.Errorf("%w: tier %d out of order (start %d after %d)", ErrMalformedTiers, i, r.StartDay, prevStart)
		}
		if r.FeeValue == nil || r.FeeValue.IsNegative() {
			return nil, fmt.Errorf("%w: tier %d has invalid fee value", ErrMalformedTiers, i)
		}

		t := LateFeeTier{
			StartDay: r.StartDay,
			FeeValue: *r.FeeValue,
		}

		switch r.FeeKind {
		case "", string(FeePercent):
			t.FeeKind = FeePercent
		case string(FeeFixed):
			t.FeeKind = FeeFixed
		default:
			return nil, fmt.Errorf("%w: tier %d has unknown fee kind %q", ErrMalformedTiers, i, r.FeeKind)
		}

		switch {
		case r.EndDay == nil:
			t.Kind = TierUnbounded
		case *r.EndDay == r.StartDay:
			t.Kind = TierOneTime
			t.EndDay = *r.EndDay
		case *r.EndDay > r.StartDay:
			t.Kind = TierBounded
			t.EndDay = *r.EndDay
		default:
			return nil, fmt.Errorf("%w: tier %d ends on day %d before start day %d", ErrMalformedTiers, i, *r.EndDay, r.StartDay)
		}

		if r.GSTPercent != nil {
			if r.GSTPercent.IsNegative() {
				return nil, fmt.Errorf("%w: tier %d has negative GST", ErrMalformedTiers, i)
			}
			t.GSTPercent = *r.GSTPercent
		} else {
			t.GSTPercent = DefaultGSTPercent
		}

		tiers = append(tiers, t)
		prevStart = r.StartDay
	}

	return tiers, nil
}

// EncodeTiers serializes tiers back to the JSON column format. Used by
// tests and seed tooling; production rows are written by the snapshot
// pipeline upstream of this engine.
func EncodeTiers(tiers []LateFeeTier) (string, error) {
	rows := make([]rawTier, 0, len(tiers))
	for _, t := range tiers {
		fee := t.FeeValue
		gst := t.GSTPercent
		r := rawTier{
			StartDay:   t.StartDay,
			FeeValue:   &fee,
			FeeKind:    string(t.FeeKind),
			GSTPercent: &gst,
		}
		if t.Kind != TierUnbounded {
			end := t.EndDay
			r.EndDay = &end
		}
		rows = append(rows, r)
	}
	b, err := json.Marshal(rows)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeDueDates parses the due-date JSON column: an array of YYYY-MM-DD
// strings, kept in ascending order.
func DecodeDueDates(raw string) ([]Date, error) {
	if raw == "" || raw == "null" {
		return nil, nil
	}

	var rows []string
	if err := json.Unmarshal([]byte(raw), &rows); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDueDates, err)
	}

	dates := make([]Date, 0, len(rows))
	var prev Date
	for i, s := range rows {
		d, err := ParseDate(s)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d %q", ErrMalformedDueDates, i, s)
		}
		if !prev.IsZero() && d.Before(prev) {
			return nil, fmt.Errorf("%w: entry %d %q out of order", ErrMalformedDueDates, i, s)
		}
		dates = append(dates, d)
		prev = d
	}
	return dates, nil
}

// EncodeDueDates serializes due dates to the JSON column format.
func EncodeDueDates(dates []Date) (string, error) {
	rows := make([]string, 0, len(dates))
	for _, d := range dates {
		rows = append(rows, d.String())
	}
	b, err := json.Marshal(rows)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
