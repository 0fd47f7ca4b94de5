package payroll

import (
	"errors"
)

var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrUsernameNotFound = errors.New("username_not_found")

	ErrStreamAlreadyActive   = errors.New("stream_already_active")
	ErrStreamNotActive       = errors.New("stream_not_active")
	ErrScheduleAlreadyActive = errors.New("schedule_already_active")
	ErrScheduleNotActive     = errors.New("schedule_not_active")

	ErrInvalidAmount      = errors.New("invalid_amount")
	ErrInvalidToken       = errors.New("invalid_token")
	ErrInvalidInterval    = errors.New("invalid_interval")
	ErrInvalidEndDate     = errors.New("invalid_end_date")
	ErrInvalidPaymentDate = errors.New("invalid_payment_date")
	ErrNotDue             = errors.New("not_due")
	ErrRateOverflow       = errors.New("rate_overflow")

	ErrRecipientUnchanged = errors.New("recipient_unchanged")
	ErrExternalCallFailed = errors.New("external_call_failed")
)
