package loan_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crednest/loan-engine/loan"
)

// =============================================================================
// TIER DECODING
// =============================================================================

func TestDecodeTiers_StandardSchedule(t *testing.T) {
	// GIVEN: the production-shaped tier column
	// WHEN: decoding
	// THEN: each row gets the right variant

	raw := `[
		{"startDay":1,"endDay":1,"feeValue":"3","feeKind":"percent","gstPercent":"18"},
		{"startDay":2,"endDay":20,"feeValue":"2","feeKind":"percent","gstPercent":"18"},
		{"startDay":21,"endDay":null,"feeValue":"1","feeKind":"percent","gstPercent":"18"}
	]`

	tiers, err := loan.DecodeTiers(raw)
	require.NoError(t, err)
	require.Len(t, tiers, 3)

	assert.Equal(t, loan.TierOneTime, tiers[0].Kind)
	assert.Equal(t, loan.TierBounded, tiers[1].Kind)
	assert.Equal(t, 20, tiers[1].EndDay)
	assert.Equal(t, loan.TierUnbounded, tiers[2].Kind)
}

func TestDecodeTiers_GSTDefaults(t *testing.T) {
	// GIVEN: a tier row with no gstPercent
	// WHEN: decoding
	// THEN: the default 18% applies

	tiers, err := loan.DecodeTiers(`[{"startDay":1,"endDay":null,"feeValue":"1"}]`)
	require.NoError(t, err)
	assert.True(t, tiers[0].GSTPercent.Equal(loan.DefaultGSTPercent))
	assert.Equal(t, loan.FeePercent, tiers[0].FeeKind)
}

func TestDecodeTiers_EmptyColumn_NoSchedule(t *testing.T) {
	for _, raw := range []string{"", "null", "[]"} {
		tiers, err := loan.DecodeTiers(raw)
		require.NoError(t, err)
		assert.Empty(t, tiers)
	}
}

func TestDecodeTiers_Malformed_Rejected(t *testing.T) {
	// GIVEN: various malformed columns
	// WHEN: decoding
	// THEN: each fails with ErrMalformedTiers, none silently defaults

	cases := map[string]string{
		"bad json":          `{not json`,
		"zero start day":    `[{"startDay":0,"endDay":null,"feeValue":"1"}]`,
		"end before start":  `[{"startDay":10,"endDay":5,"feeValue":"1"}]`,
		"missing fee":       `[{"startDay":1,"endDay":null}]`,
		"negative fee":      `[{"startDay":1,"endDay":null,"feeValue":"-1"}]`,
		"unknown fee kind":  `[{"startDay":1,"endDay":null,"feeValue":"1","feeKind":"weekly"}]`,
		"out of order":      `[{"startDay":10,"endDay":null,"feeValue":"1"},{"startDay":1,"endDay":1,"feeValue":"2"}]`,
		"negative gst":      `[{"startDay":1,"endDay":null,"feeValue":"1","gstPercent":"-5"}]`,
	}

	for name, raw := range cases {
		_, err := loan.DecodeTiers(raw)
		assert.ErrorIs(t, err, loan.ErrMalformedTiers, "case %q", name)
	}
}

func TestEncodeTiers_RoundTrips(t *testing.T) {
	raw := `[{"startDay":1,"endDay":1,"feeValue":"3","feeKind":"percent","gstPercent":"18"},{"startDay":2,"endDay":null,"feeValue":"2","feeKind":"fixed","gstPercent":"12"}]`
	tiers, err := loan.DecodeTiers(raw)
	require.NoError(t, err)

	encoded, err := loan.EncodeTiers(tiers)
	require.NoError(t, err)

	again, err := loan.DecodeTiers(encoded)
	require.NoError(t, err)
	assert.Equal(t, tiers, again)
}

// =============================================================================
// DUE DATE DECODING
// =============================================================================

func TestDecodeDueDates_Ordered(t *testing.T) {
	dates, err := loan.DecodeDueDates(`["2025-03-10","2025-04-10","2025-05-10"]`)
	require.NoError(t, err)
	require.Len(t, dates, 3)
	assert.True(t, dates[0].Equal(loan.NewDate(2025, time.March, 10)))
}

func TestDecodeDueDates_Malformed_Rejected(t *testing.T) {
	cases := []string{
		`{not json`,
		`["10-03-2025"]`,
		`["2025-03-10","2025-02-10"]`, // out of order
	}
	for _, raw := range cases {
		_, err := loan.DecodeDueDates(raw)
		assert.ErrorIs(t, err, loan.ErrMalformedDueDates, "input %q", raw)
	}
}

// =============================================================================
// DATE ARITHMETIC
// =============================================================================

func TestDaysBetween(t *testing.T) {
	a := loan.NewDate(2025, time.March, 10)
	assert.Equal(t, 0, loan.DaysBetween(a, a))
	assert.Equal(t, 4, loan.DaysBetween(a, a.AddDays(4)))
	assert.Equal(t, -4, loan.DaysBetween(a.AddDays(4), a))
	// month boundary
	assert.Equal(t, 31, loan.DaysBetween(loan.NewDate(2025, time.March, 1), loan.NewDate(2025, time.April, 1)))
}

func TestDateOf_TruncatesInLocation(t *testing.T) {
	// GIVEN: 01:30 IST on March 15 (20:00 UTC March 14)
	// WHEN: truncating in Asia/Kolkata vs UTC
	// THEN: the calendar dates differ by one day

	ist, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	ts := time.Date(2025, time.March, 14, 20, 0, 0, 0, time.UTC)

	assert.True(t, loan.DateOf(ts, ist).Equal(loan.NewDate(2025, time.March, 15)))
	assert.True(t, loan.DateOf(ts, time.UTC).Equal(loan.NewDate(2025, time.March, 14)))
}
