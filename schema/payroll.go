package schema

import (
	"time"
)

const (
	// LlamaPay rates carry 20 decimals of precision and are uint216 on chain.
	RatePrecisionDecimals = 20
	MaxRateBits           = 216

	IntervalWeekly    = "weekly"
	IntervalMonthly   = "monthly"
	IntervalQuarterly = "quarterly"
	IntervalYearly    = "yearly"
)

// IntervalDuration returns the fixed duration of a recurrence interval.
// Approximate-month and leap-year drift is accepted, not corrected.
func IntervalDuration(interval string) (time.Duration, bool) {
	switch interval {
	case IntervalWeekly:
		return 7 * 24 * time.Hour, true
	case IntervalMonthly:
		return 30 * 24 * time.Hour, true
	case IntervalQuarterly:
		return 90 * 24 * time.Hour, true
	case IntervalYearly:
		return 365 * 24 * time.Hour, true
	default:
		return 0, false
	}
}

type Stream struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Username string `gorm:"index:stream01,unique" json:"username"`
	Token    string `json:"token"`  // erc20 address, hex
	Amount   string `json:"amount"` // total amount over the stream lifetime, token base units
	Rate     string `json:"rate"`   // per-second rate, 20-decimals precision

	EndDate    int64 `json:"endDate"`    // unix s
	LastPayout int64 `json:"lastPayout"` // unix s, never in the future
	Active     bool  `json:"active"`
}

type Schedule struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Username string `gorm:"index:sched01,unique" json:"username"`
	Token    string `json:"token"`
	Amount   string `json:"amount"` // fixed amount per period, token base units
	Interval string `json:"interval"`
	OneTime  bool   `json:"oneTime"`

	FirstPaymentDate int64 `json:"firstPaymentDate"` // unix s
	NextPayout       int64 `json:"nextPayout"`       // unix s
	Active           bool  `json:"active"`
}

// LlamaPayBinding records the lazily created token -> llamapay contract binding.
// One contract per token, shared by every stream paying out in that token.
type LlamaPayBinding struct {
	ID        uint      `gorm:"primarykey"`
	CreatedAt time.Time `json:"createdAt"`

	Token    string `gorm:"index:bind01,unique" json:"token"`
	Contract string `json:"contract"`
}

// StreamRecipient is the address the external protocol currently pays for a
// username. It can lag behind the registry after the username is re-claimed;
// migrateStream reconciles the two.
type StreamRecipient struct {
	ID        uint      `gorm:"primarykey"`
	UpdatedAt time.Time `json:"updatedAt"`

	Username  string `gorm:"index:recipient01,unique" json:"username"`
	Recipient string `json:"recipient"`
}
