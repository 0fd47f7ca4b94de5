package payroll

import (
	"math/big"
	"testing"
	"time"

	"github.com/everFinance/payroll/schema"
	"github.com/stretchr/testify/assert"
)

func TestCreateSchedule(t *testing.T) {
	p, relay, _, _ := newTestPayroll(t)
	now := time.Unix(1700000000, 0)
	setNow(p, now)
	first := now.Add(24 * time.Hour).Unix()

	assert.NoError(t, p.CreateSchedule(testManager, "alice", e18(100), testToken, schema.IntervalWeekly, false, first))

	s, err := p.wdb.GetSchedule("alice")
	assert.NoError(t, err)
	assert.True(t, s.Active)
	assert.Equal(t, first, s.FirstPaymentDate)
	assert.Equal(t, first, s.NextPayout)
	assert.Equal(t, schema.IntervalWeekly, s.Interval)

	// no funds move at creation
	assert.Equal(t, 0, len(relay.batches))

	err = p.CreateSchedule(testManager, "alice", e18(100), testToken, schema.IntervalWeekly, false, first)
	assert.ErrorIs(t, err, ErrScheduleAlreadyActive)
}

func TestCreateScheduleValidation(t *testing.T) {
	p, _, _, _ := newTestPayroll(t)
	now := time.Unix(1700000000, 0)
	setNow(p, now)
	first := now.Add(24 * time.Hour).Unix()

	err := p.CreateSchedule(testOutsider, "alice", e18(100), testToken, schema.IntervalWeekly, false, first)
	assert.ErrorIs(t, err, ErrUnauthorized)

	err = p.CreateSchedule(testManager, "alice", big.NewInt(0), testToken, schema.IntervalWeekly, false, first)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	err = p.CreateSchedule(testManager, "alice", e18(100), zeroAddr(), schema.IntervalWeekly, false, first)
	assert.ErrorIs(t, err, ErrInvalidToken)

	err = p.CreateSchedule(testManager, "alice", e18(100), testToken, "daily", false, first)
	assert.ErrorIs(t, err, ErrInvalidInterval)

	err = p.CreateSchedule(testManager, "alice", e18(100), testToken, schema.IntervalWeekly, false, now.Add(-time.Hour).Unix())
	assert.ErrorIs(t, err, ErrInvalidPaymentDate)

	err = p.CreateSchedule(testManager, "nobody", e18(100), testToken, schema.IntervalWeekly, false, first)
	assert.ErrorIs(t, err, ErrUsernameNotFound)
}

func TestSchedulePayoutGating(t *testing.T) {
	p, relay, _, _ := newTestPayroll(t)
	now := time.Unix(1700000000, 0)
	setNow(p, now)
	first := now.Add(24 * time.Hour).Unix()
	assert.NoError(t, p.CreateSchedule(testManager, "alice", e18(100), testToken, schema.IntervalWeekly, false, first))

	err := p.RequestSchedulePayout(testManager, "alice")
	assert.ErrorIs(t, err, ErrNotDue)

	s, err := p.wdb.GetSchedule("alice")
	assert.NoError(t, err)
	assert.Equal(t, first, s.NextPayout)
	assert.Equal(t, 0, len(relay.batches))
}

func TestWeeklySchedulePayout(t *testing.T) {
	p, relay, _, _ := newTestPayroll(t)
	start := time.Unix(1700000000, 0)
	setNow(p, start)
	first := start.Unix()
	assert.NoError(t, p.CreateSchedule(testManager, "alice", e18(100), testToken, schema.IntervalWeekly, false, first))

	assert.NoError(t, p.RequestSchedulePayout(testManager, "alice"))
	s, err := p.wdb.GetSchedule("alice")
	assert.NoError(t, err)
	assert.True(t, s.Active)
	assert.Equal(t, first+7*24*3600, s.NextPayout)

	batch := relay.lastBatch()
	assert.Equal(t, 1, len(batch.Actions)) // single treasury transfer
	assert.Equal(t, testToken.Hex(), batch.Actions[0].To)
	assert.True(t, p.store.IsExistBatchReceipt(batch.BatchId))

	// calling again immediately is not due
	err = p.RequestSchedulePayout(testManager, "alice")
	assert.ErrorIs(t, err, ErrNotDue)
}

func TestScheduleNoCatchUp(t *testing.T) {
	p, _, _, _ := newTestPayroll(t)
	start := time.Unix(1700000000, 0)
	setNow(p, start)
	assert.NoError(t, p.CreateSchedule(testManager, "alice", e18(100), testToken, schema.IntervalWeekly, false, start.Unix()))

	// three missed weeks still advance exactly one period per call
	setNow(p, start.Add(3*7*24*time.Hour))
	assert.NoError(t, p.RequestSchedulePayout(testManager, "alice"))
	s, err := p.wdb.GetSchedule("alice")
	assert.NoError(t, err)
	assert.Equal(t, start.Unix()+7*24*3600, s.NextPayout)

	assert.NoError(t, p.RequestSchedulePayout(testManager, "alice"))
	s, err = p.wdb.GetSchedule("alice")
	assert.NoError(t, err)
	assert.Equal(t, start.Unix()+2*7*24*3600, s.NextPayout)
}

func TestOneTimeSchedule(t *testing.T) {
	p, _, _, _ := newTestPayroll(t)
	start := time.Unix(1700000000, 0)
	setNow(p, start)
	assert.NoError(t, p.CreateSchedule(testManager, "alice", e18(500), testToken, schema.IntervalMonthly, true, start.Unix()))

	assert.NoError(t, p.RequestSchedulePayout(testManager, "alice"))
	s, err := p.wdb.GetSchedule("alice")
	assert.NoError(t, err)
	assert.False(t, s.Active)

	err = p.RequestSchedulePayout(testManager, "alice")
	assert.ErrorIs(t, err, ErrScheduleNotActive)
}

func TestSchedulePayoutAtomicFailure(t *testing.T) {
	p, relay, _, _ := newTestPayroll(t)
	start := time.Unix(1700000000, 0)
	setNow(p, start)
	assert.NoError(t, p.CreateSchedule(testManager, "alice", e18(100), testToken, schema.IntervalWeekly, false, start.Unix()))

	relay.failAll = true
	err := p.RequestSchedulePayout(testManager, "alice")
	assert.ErrorIs(t, err, ErrExternalCallFailed)

	s, err := p.wdb.GetSchedule("alice")
	assert.NoError(t, err)
	assert.True(t, s.Active)
	assert.Equal(t, start.Unix(), s.NextPayout)
}

func TestEditSchedule(t *testing.T) {
	p, _, _, _ := newTestPayroll(t)
	now := time.Unix(1700000000, 0)
	setNow(p, now)
	first := now.Add(24 * time.Hour).Unix()
	assert.NoError(t, p.CreateSchedule(testManager, "alice", e18(100), testToken, schema.IntervalWeekly, false, first))

	assert.NoError(t, p.EditSchedule(testManager, "alice", e18(200), schema.IntervalMonthly, true))
	s, err := p.wdb.GetSchedule("alice")
	assert.NoError(t, err)
	assert.Equal(t, e18(200).String(), s.Amount)
	assert.Equal(t, schema.IntervalMonthly, s.Interval)
	assert.True(t, s.OneTime)
	// due dates are untouched by edits
	assert.Equal(t, first, s.NextPayout)
	assert.Equal(t, first, s.FirstPaymentDate)

	err = p.EditSchedule(testManager, "bob", e18(1), schema.IntervalWeekly, false)
	assert.ErrorIs(t, err, ErrScheduleNotActive)
}

func TestCancelSchedule(t *testing.T) {
	p, _, _, _ := newTestPayroll(t)
	now := time.Unix(1700000000, 0)
	setNow(p, now)
	assert.NoError(t, p.CreateSchedule(testManager, "alice", e18(100), testToken, schema.IntervalQuarterly, false, now.Unix()))

	assert.NoError(t, p.CancelSchedule(testManager, "alice"))
	s, err := p.wdb.GetSchedule("alice")
	assert.NoError(t, err)
	assert.False(t, s.Active)

	err = p.CancelSchedule(testManager, "alice")
	assert.ErrorIs(t, err, ErrScheduleNotActive)
}

func TestIntervalDuration(t *testing.T) {
	cases := map[string]time.Duration{
		schema.IntervalWeekly:    7 * 24 * time.Hour,
		schema.IntervalMonthly:   30 * 24 * time.Hour,
		schema.IntervalQuarterly: 90 * 24 * time.Hour,
		schema.IntervalYearly:    365 * 24 * time.Hour,
	}
	for interval, want := range cases {
		got, ok := schema.IntervalDuration(interval)
		assert.True(t, ok)
		assert.Equal(t, want, got)
	}
	_, ok := schema.IntervalDuration("daily")
	assert.False(t, ok)
}
