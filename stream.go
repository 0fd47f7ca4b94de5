package payroll

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/everFinance/payroll/schema"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CreateStream registers a continuous payment stream for username and opens
// it on the external protocol through the relay. amount is the total paid out
// over the stream's lifetime, in token base units; it is floored into a
// per-second rate so the treasury is never over-committed.
func (p *Payroll) CreateStream(caller common.Address, username string, amount *big.Int, token common.Address, endDate int64) error {
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
	if endDate <= now {
		return ErrInvalidEndDate
	}

	recipient, err := p.registry.Resolve(username)
	if err != nil {
		return ErrUsernameNotFound
	}

	s, err := p.wdb.GetStream(username)
	if err == nil && s.Active {
		return ErrStreamAlreadyActive
	}
	if err != nil && err != gorm.ErrRecordNotFound {
		return err
	}

	meta, err := p.tokenMeta(token)
	if err != nil {
		return err
	}
	rate, err := streamRate(amount, meta.Decimals, endDate-now)
	if err != nil {
		return err
	}

	contract, createAction, bind, err := p.llamaPay.GetOrCreate(token)
	if err != nil {
		return err
	}

	actions := make([]schema.Action, 0, 4)
	if createAction != nil {
		actions = append(actions, *createAction)
	}
	actions = append(actions,
		p.llamaPay.ApproveAction(token, contract, amount),
		p.llamaPay.DepositAction(contract, amount),
		p.llamaPay.CreateStreamAction(contract, recipient, rate),
	)

	batchId := uuid.NewString()
	if err = p.relay.Execute(batchId, actions); err != nil {
		return err
	}

	stream := &schema.Stream{
		Username:   username,
		Token:      token.Hex(),
		Amount:     amount.String(),
		Rate:       rate.String(),
		EndDate:    endDate,
		LastPayout: now,
		Active:     true,
	}
	if err = p.wdb.SaveStream(stream, recipient.Hex(), bind); err != nil {
		return err
	}
	p.saveReceipt(batchId, "createStream", username, actions)
	p.emitEvent(schema.Event{
		Type:      schema.EventStreamCreated,
		Username:  username,
		Token:     token.Hex(),
		Amount:    amount.String(),
		Recipient: recipient.Hex(),
		BatchId:   batchId,
	})
	metricStreamOp("create")
	log.Info("stream created", "username", username, "token", meta.Symbol, "rate", rate.String())
	return nil
}

// EditStream is cancel-then-recreate on the external protocol rather than an
// in-place rate change; the recreated stream targets the current registry
// resolution.
func (p *Payroll) EditStream(caller common.Address, username string, newAmount *big.Int, newEndDate int64) error {
	p.opLocker.Lock()
	defer p.opLocker.Unlock()

	if err := p.requireManager(caller); err != nil {
		return err
	}
	now := p.nowFn().Unix()
	if newAmount == nil || newAmount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if newEndDate <= now {
		return ErrInvalidEndDate
	}

	recipient, err := p.registry.Resolve(username)
	if err != nil {
		return ErrUsernameNotFound
	}

	s, err := p.wdb.GetStream(username)
	if err != nil || !s.Active {
		return ErrStreamNotActive
	}
	rec, err := p.wdb.GetStreamRecipient(username)
	if err != nil {
		return err
	}
	token := common.HexToAddress(s.Token)
	oldRate, _ := new(big.Int).SetString(s.Rate, 10)

	meta, err := p.tokenMeta(token)
	if err != nil {
		return err
	}
	newRate, err := streamRate(newAmount, meta.Decimals, newEndDate-now)
	if err != nil {
		return err
	}

	binding, err := p.wdb.GetBinding(s.Token)
	if err != nil {
		return err
	}
	contract := common.HexToAddress(binding.Contract)

	actions := []schema.Action{
		p.llamaPay.CancelStreamAction(contract, common.HexToAddress(rec.Recipient), oldRate),
		p.llamaPay.ApproveAction(token, contract, newAmount),
		p.llamaPay.DepositAction(contract, newAmount),
		p.llamaPay.CreateStreamAction(contract, recipient, newRate),
	}

	batchId := uuid.NewString()
	if err = p.relay.Execute(batchId, actions); err != nil {
		return err
	}

	stream := &schema.Stream{
		Username:   username,
		Token:      s.Token,
		Amount:     newAmount.String(),
		Rate:       newRate.String(),
		EndDate:    newEndDate,
		LastPayout: now,
		Active:     true,
	}
	if err = p.wdb.SaveStream(stream, recipient.Hex(), nil); err != nil {
		return err
	}
	p.saveReceipt(batchId, "editStream", username, actions)
	p.emitEvent(schema.Event{
		Type:      schema.EventStreamEdited,
		Username:  username,
		Token:     s.Token,
		Amount:    newAmount.String(),
		Recipient: recipient.Hex(),
		BatchId:   batchId,
	})
	metricStreamOp("edit")
	return nil
}

// CancelStream closes the external stream at the currently recorded recipient
// and deactivates the record. A second call fails with ErrStreamNotActive.
func (p *Payroll) CancelStream(caller common.Address, username string) error {
	p.opLocker.Lock()
	defer p.opLocker.Unlock()

	if err := p.requireManager(caller); err != nil {
		return err
	}
	if _, err := p.registry.Resolve(username); err != nil {
		return ErrUsernameNotFound
	}

	s, err := p.wdb.GetStream(username)
	if err != nil || !s.Active {
		return ErrStreamNotActive
	}
	rec, err := p.wdb.GetStreamRecipient(username)
	if err != nil {
		return err
	}
	binding, err := p.wdb.GetBinding(s.Token)
	if err != nil {
		return err
	}
	rate, _ := new(big.Int).SetString(s.Rate, 10)

	actions := []schema.Action{
		p.llamaPay.CancelStreamAction(common.HexToAddress(binding.Contract), common.HexToAddress(rec.Recipient), rate),
	}
	batchId := uuid.NewString()
	if err = p.relay.Execute(batchId, actions); err != nil {
		return err
	}

	if err = p.wdb.DeactivateStream(username, 0); err != nil {
		return err
	}
	p.saveReceipt(batchId, "cancelStream", username, actions)
	p.emitEvent(schema.Event{
		Type:      schema.EventStreamCancelled,
		Username:  username,
		Token:     s.Token,
		Recipient: rec.Recipient,
		BatchId:   batchId,
	})
	metricStreamOp("cancel")
	return nil
}

// RequestStreamPayout pulls the accrued amount to the recorded recipient.
// Nothing disburses without this explicit call. Callable by a manager or by
// the username's resolved address. Past endDate the withdrawal is final: the
// external stream is cancelled and the record deactivated.
func (p *Payroll) RequestStreamPayout(caller common.Address, username string) error {
	p.opLocker.Lock()
	defer p.opLocker.Unlock()

	resolved, err := p.registry.Resolve(username)
	if err != nil {
		return ErrUsernameNotFound
	}
	// pull payouts may also be triggered by the resolved recipient
	isManager, err := p.relay.HasCapability(caller, ManagerCapability)
	if err != nil {
		return err
	}
	if !isManager && caller != resolved {
		return ErrUnauthorized
	}

	s, err := p.wdb.GetStream(username)
	if err != nil || !s.Active {
		return ErrStreamNotActive
	}
	rec, err := p.wdb.GetStreamRecipient(username)
	if err != nil {
		return err
	}
	binding, err := p.wdb.GetBinding(s.Token)
	if err != nil {
		return err
	}
	contract := common.HexToAddress(binding.Contract)
	recipient := common.HexToAddress(rec.Recipient)
	rate, _ := new(big.Int).SetString(s.Rate, 10)
	now := p.nowFn().Unix()

	expired := now >= s.EndDate
	actions := []schema.Action{
		p.llamaPay.WithdrawAction(contract, recipient, rate),
	}
	if expired {
		actions = append(actions, p.llamaPay.CancelStreamAction(contract, recipient, rate))
	}

	batchId := uuid.NewString()
	if err = p.relay.Execute(batchId, actions); err != nil {
		return err
	}

	evType := schema.EventStreamPaidOut
	if expired {
		if err = p.wdb.DeactivateStream(username, now); err != nil {
			return err
		}
		evType = schema.EventStreamExpired
	} else {
		if err = p.wdb.UpdateStreamPayout(username, now); err != nil {
			return err
		}
	}
	p.saveReceipt(batchId, "requestStreamPayout", username, actions)
	p.emitEvent(schema.Event{
		Type:      evType,
		Username:  username,
		Token:     s.Token,
		Recipient: rec.Recipient,
		BatchId:   batchId,
	})
	metricStreamPayout()
	if rec.Recipient != resolved.Hex() {
		// migration window: funds still flow to the stale address until
		// migrateStream is called
		log.Warn("stream payout to stale recipient", "username", username,
			"recorded", rec.Recipient, "resolved", resolved.Hex())
	}
	return nil
}

// MigrateStream re-points the external stream after the username's
// controlling address changed in the registry. Never automatic: every
// registry write re-targeting every stream holder implicitly would be
// unbounded in external calls.
func (p *Payroll) MigrateStream(caller common.Address, username string) error {
	p.opLocker.Lock()
	defer p.opLocker.Unlock()

	if err := p.requireManager(caller); err != nil {
		return err
	}
	resolved, err := p.registry.Resolve(username)
	if err != nil {
		return ErrUsernameNotFound
	}

	s, err := p.wdb.GetStream(username)
	if err != nil || !s.Active {
		return ErrStreamNotActive
	}
	rec, err := p.wdb.GetStreamRecipient(username)
	if err != nil {
		return err
	}
	if rec.Recipient == resolved.Hex() {
		return ErrRecipientUnchanged
	}
	binding, err := p.wdb.GetBinding(s.Token)
	if err != nil {
		return err
	}
	contract := common.HexToAddress(binding.Contract)
	rate, _ := new(big.Int).SetString(s.Rate, 10)

	// same rate, same endDate, new recipient
	actions := []schema.Action{
		p.llamaPay.CancelStreamAction(contract, common.HexToAddress(rec.Recipient), rate),
		p.llamaPay.CreateStreamAction(contract, resolved, rate),
	}
	batchId := uuid.NewString()
	if err = p.relay.Execute(batchId, actions); err != nil {
		return err
	}

	if err = p.wdb.UpdateStreamRecipient(username, resolved.Hex()); err != nil {
		return err
	}
	p.saveReceipt(batchId, "migrateStream", username, actions)
	p.emitEvent(schema.Event{
		Type:      schema.EventStreamMigrated,
		Username:  username,
		Token:     s.Token,
		Recipient: resolved.Hex(),
		BatchId:   batchId,
	})
	metricStreamOp("migrate")
	log.Info("stream migrated", "username", username, "old", rec.Recipient, "new", resolved.Hex())
	return nil
}

func (p *Payroll) GetStream(username string) (schema.Stream, error) {
	return p.wdb.GetStream(username)
}

// StreamWithdrawable reads the currently claimable amount for username's
// recorded recipient from the external contract.
func (p *Payroll) StreamWithdrawable(username string) (amount *big.Int, lastUpdate int64, owed *big.Int, recipient string, err error) {
	s, err := p.wdb.GetStream(username)
	if err != nil || !s.Active {
		err = ErrStreamNotActive
		return
	}
	rec, err := p.wdb.GetStreamRecipient(username)
	if err != nil {
		return
	}
	binding, err := p.wdb.GetBinding(s.Token)
	if err != nil {
		return
	}
	rate, _ := new(big.Int).SetString(s.Rate, 10)
	amount, lastUpdate, owed, err = p.llamaPay.Withdrawable(
		common.HexToAddress(binding.Contract), common.HexToAddress(rec.Recipient), rate)
	recipient = rec.Recipient
	return
}

// streamRate floors amount over duration into a per-second rate carrying
// llamapay's 20-decimals precision. Floor, never round up: rounding up would
// commit funds the treasury does not have.
func streamRate(amount *big.Int, tokenDecimals int, durationSec int64) (*big.Int, error) {
	if durationSec <= 0 {
		return nil, ErrInvalidEndDate
	}
	exp := schema.RatePrecisionDecimals - tokenDecimals
	if exp < 0 {
		exp = 0
	}
	precision := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil)
	rate := new(big.Int).Mul(amount, precision)
	rate.Quo(rate, big.NewInt(durationSec))
	if rate.Sign() == 0 {
		return nil, ErrInvalidAmount
	}
	if rate.BitLen() > schema.MaxRateBits {
		return nil, ErrRateOverflow
	}
	return rate, nil
}
