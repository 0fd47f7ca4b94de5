package payroll

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/everFinance/payroll/schema"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CreateSchedule registers a fixed-amount periodic payment for username. No
// funds move at creation; the first transfer happens on the first
// RequestSchedulePayout at or after firstPaymentDate.
func (p *Payroll) CreateSchedule(caller common.Address, username string, amount *big.Int, token common.Address, interval string, oneTime bool, firstPaymentDate int64) error {
	p.opLocker.Lock()
	defer p.opLocker.Unlock()

	if err := p.requireManager(caller); err != nil {
		return err
	}
	now := p.nowFn().Unix()
	if token == (common.Address{}) {
		return ErrInvalidToken
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if _, ok := schema.IntervalDuration(interval); !ok {
		return ErrInvalidInterval
	}
	if firstPaymentDate < now {
		return ErrInvalidPaymentDate
	}

	if _, err := p.registry.Resolve(username); err != nil {
		return ErrUsernameNotFound
	}

	s, err := p.wdb.GetSchedule(username)
	if err == nil && s.Active {
		return ErrScheduleAlreadyActive
	}
	if err != nil && err != gorm.ErrRecordNotFound {
		return err
	}

	sched := &schema.Schedule{
		Username:         username,
		Token:            token.Hex(),
		Amount:           amount.String(),
		Interval:         interval,
		OneTime:          oneTime,
		FirstPaymentDate: firstPaymentDate,
		NextPayout:       firstPaymentDate,
		Active:           true,
	}
	if err = p.wdb.SaveSchedule(sched); err != nil {
		return err
	}
	p.emitEvent(schema.Event{
		Type:     schema.EventScheduleCreated,
		Username: username,
		Token:    token.Hex(),
		Amount:   amount.String(),
	})
	metricScheduleOp("create")
	return nil
}

// EditSchedule updates amount, interval and the one-time flag in place.
// firstPaymentDate and nextPayout are untouched, so an edit can never skip or
// duplicate a due payout.
func (p *Payroll) EditSchedule(caller common.Address, username string, newAmount *big.Int, newInterval string, oneTime bool) error {
	p.opLocker.Lock()
	defer p.opLocker.Unlock()

	if err := p.requireManager(caller); err != nil {
		return err
	}
	if newAmount == nil || newAmount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if _, ok := schema.IntervalDuration(newInterval); !ok {
		return ErrInvalidInterval
	}
	if _, err := p.registry.Resolve(username); err != nil {
		return ErrUsernameNotFound
	}

	s, err := p.wdb.GetSchedule(username)
	if err != nil || !s.Active {
		return ErrScheduleNotActive
	}

	s.Amount = newAmount.String()
	s.Interval = newInterval
	s.OneTime = oneTime
	if err = p.wdb.SaveSchedule(&s); err != nil {
		return err
	}
	p.emitEvent(schema.Event{
		Type:     schema.EventScheduleEdited,
		Username: username,
		Token:    s.Token,
		Amount:   newAmount.String(),
	})
	metricScheduleOp("edit")
	return nil
}

func (p *Payroll) CancelSchedule(caller common.Address, username string) error {
	p.opLocker.Lock()
	defer p.opLocker.Unlock()

	if err := p.requireManager(caller); err != nil {
		return err
	}
	if _, err := p.registry.Resolve(username); err != nil {
		return ErrUsernameNotFound
	}

	s, err := p.wdb.GetSchedule(username)
	if err != nil || !s.Active {
		return ErrScheduleNotActive
	}
	if err = p.wdb.DeactivateSchedule(username); err != nil {
		return err
	}
	p.emitEvent(schema.Event{
		Type:     schema.EventScheduleCancelled,
		Username: username,
		Token:    s.Token,
	})
	metricScheduleOp("cancel")
	return nil
}

// RequestSchedulePayout transfers one period's amount from the treasury to
// the resolved recipient. Each successful call advances nextPayout by exactly
// one interval; missed periods are never caught up in a single call. One-time
// schedules deactivate after their single payout.
func (p *Payroll) RequestSchedulePayout(caller common.Address, username string) error {
	p.opLocker.Lock()
	defer p.opLocker.Unlock()

	recipient, err := p.registry.Resolve(username)
	if err != nil {
		return ErrUsernameNotFound
	}
	isManager, err := p.relay.HasCapability(caller, ManagerCapability)
	if err != nil {
		return err
	}
	if !isManager && caller != recipient {
		return ErrUnauthorized
	}

	s, err := p.wdb.GetSchedule(username)
	if err != nil || !s.Active {
		return ErrScheduleNotActive
	}
	now := p.nowFn().Unix()
	if now < s.NextPayout {
		return ErrNotDue
	}
	amount, ok := new(big.Int).SetString(s.Amount, 10)
	if !ok {
		return ErrInvalidAmount
	}

	actions := []schema.Action{
		p.llamaPay.TransferAction(common.HexToAddress(s.Token), recipient, amount),
	}
	batchId := uuid.NewString()
	if err = p.relay.Execute(batchId, actions); err != nil {
		return err
	}

	active := !s.OneTime
	nextPayout := s.NextPayout
	if active {
		dur, _ := schema.IntervalDuration(s.Interval)
		nextPayout += int64(dur / time.Second)
	}
	if err = p.wdb.AdvanceSchedule(username, nextPayout, active); err != nil {
		return err
	}
	p.saveReceipt(batchId, "requestSchedulePayout", username, actions)
	p.emitEvent(schema.Event{
		Type:      schema.EventSchedulePaidOut,
		Username:  username,
		Token:     s.Token,
		Amount:    s.Amount,
		Recipient: recipient.Hex(),
		BatchId:   batchId,
	})
	metricSchedulePayout()
	return nil
}

func (p *Payroll) GetSchedule(username string) (schema.Schedule, error) {
	return p.wdb.GetSchedule(username)
}
