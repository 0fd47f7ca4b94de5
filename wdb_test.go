package payroll

import (
	"testing"

	"github.com/everFinance/payroll/schema"
	"github.com/stretchr/testify/assert"
)

func newTestWdb(t *testing.T) *Wdb {
	wdb := NewSqliteDb(t.TempDir())
	assert.NoError(t, wdb.Migrate())
	return wdb
}

func TestSaveStreamUpsert(t *testing.T) {
	wdb := newTestWdb(t)

	s1 := &schema.Stream{Username: "alice", Token: testToken.Hex(), Amount: "1000", Rate: "10", EndDate: 200, LastPayout: 100, Active: true}
	bind := &schema.LlamaPayBinding{Token: testToken.Hex(), Contract: testLlamaPay.Hex()}
	assert.NoError(t, wdb.SaveStream(s1, testAlice.Hex(), bind))

	got, err := wdb.GetStream("alice")
	assert.NoError(t, err)
	assert.Equal(t, "1000", got.Amount)
	rec, err := wdb.GetStreamRecipient("alice")
	assert.NoError(t, err)
	assert.Equal(t, testAlice.Hex(), rec.Recipient)

	// second save replaces, never duplicates
	s2 := &schema.Stream{Username: "alice", Token: testToken.Hex(), Amount: "2000", Rate: "20", EndDate: 300, LastPayout: 150, Active: true}
	assert.NoError(t, wdb.SaveStream(s2, testBob.Hex(), nil))

	var cnt int64
	assert.NoError(t, wdb.Db.Model(&schema.Stream{}).Where("username = ?", "alice").Count(&cnt).Error)
	assert.Equal(t, int64(1), cnt)
	got, err = wdb.GetStream("alice")
	assert.NoError(t, err)
	assert.Equal(t, "2000", got.Amount)
	rec, err = wdb.GetStreamRecipient("alice")
	assert.NoError(t, err)
	assert.Equal(t, testBob.Hex(), rec.Recipient)

	// binding survives and is unique per token
	b, err := wdb.GetBinding(testToken.Hex())
	assert.NoError(t, err)
	assert.Equal(t, testLlamaPay.Hex(), b.Contract)
}

func TestDeactivateStream(t *testing.T) {
	wdb := newTestWdb(t)
	s := &schema.Stream{Username: "alice", Token: testToken.Hex(), Amount: "1000", Rate: "10", EndDate: 200, LastPayout: 100, Active: true}
	assert.NoError(t, wdb.SaveStream(s, testAlice.Hex(), nil))

	assert.NoError(t, wdb.DeactivateStream("alice", 180))
	got, err := wdb.GetStream("alice")
	assert.NoError(t, err)
	assert.False(t, got.Active)
	assert.Equal(t, int64(180), got.LastPayout)
	_, err = wdb.GetStreamRecipient("alice")
	assert.Error(t, err)
}

func TestAdvanceSchedule(t *testing.T) {
	wdb := newTestWdb(t)
	sched := &schema.Schedule{Username: "alice", Token: testToken.Hex(), Amount: "100",
		Interval: schema.IntervalWeekly, FirstPaymentDate: 100, NextPayout: 100, Active: true}
	assert.NoError(t, wdb.SaveSchedule(sched))

	assert.NoError(t, wdb.AdvanceSchedule("alice", 100+7*24*3600, true))
	got, err := wdb.GetSchedule("alice")
	assert.NoError(t, err)
	assert.True(t, got.Active)
	assert.Equal(t, int64(100+7*24*3600), got.NextPayout)

	assert.NoError(t, wdb.AdvanceSchedule("alice", got.NextPayout, false))
	got, err = wdb.GetSchedule("alice")
	assert.NoError(t, err)
	assert.False(t, got.Active)
}

func TestCountActive(t *testing.T) {
	wdb := newTestWdb(t)
	assert.NoError(t, wdb.SaveStream(&schema.Stream{Username: "a", Token: testToken.Hex(), Amount: "1", Rate: "1", EndDate: 10, Active: true}, testAlice.Hex(), nil))
	assert.NoError(t, wdb.SaveStream(&schema.Stream{Username: "b", Token: testToken.Hex(), Amount: "1", Rate: "1", EndDate: 10, Active: false}, testBob.Hex(), nil))
	assert.NoError(t, wdb.SaveSchedule(&schema.Schedule{Username: "a", Token: testToken.Hex(), Amount: "1", Interval: schema.IntervalWeekly, Active: true}))

	streams, err := wdb.CountActiveStreams()
	assert.NoError(t, err)
	assert.Equal(t, int64(1), streams)
	schedules, err := wdb.CountActiveSchedules()
	assert.NoError(t, err)
	assert.Equal(t, int64(1), schedules)
}

func TestEventLogInsert(t *testing.T) {
	wdb := newTestWdb(t)
	assert.NoError(t, wdb.InsertEventLog(schema.EventLog{
		Type:     schema.EventStreamCreated,
		Username: "alice",
		Payload:  map[string]interface{}{"token": testToken.Hex()},
	}))

	logs := make([]schema.EventLog, 0)
	assert.NoError(t, wdb.Db.Where("type = ?", schema.EventStreamCreated).Find(&logs).Error)
	assert.Equal(t, 1, len(logs))
	assert.Equal(t, "alice", logs[0].Username)
}
