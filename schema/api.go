package schema

type ReqCreateStream struct {
	Amount  string `json:"amount"`
	Token   string `json:"token"`
	EndDate int64  `json:"endDate"`
}

type ReqEditStream struct {
	Amount  string `json:"amount"`
	EndDate int64  `json:"endDate"`
}

type ReqCreateSchedule struct {
	Amount           string `json:"amount"`
	Token            string `json:"token"`
	Interval         string `json:"interval"`
	OneTime          bool   `json:"oneTime"`
	FirstPaymentDate int64  `json:"firstPaymentDate"`
}

type ReqEditSchedule struct {
	Amount   string `json:"amount"`
	Interval string `json:"interval"`
	OneTime  bool   `json:"oneTime"`
}

type RespStream struct {
	Username   string `json:"username"`
	Token      string `json:"token"`
	Symbol     string `json:"symbol,omitempty"`
	Amount     string `json:"amount"`
	AmountFmt  string `json:"amountFmt,omitempty"` // human-readable, token decimals applied
	Rate       string `json:"rate"`
	EndDate    int64  `json:"endDate"`
	LastPayout int64  `json:"lastPayout"`
	Active     bool   `json:"active"`
	Recipient  string `json:"recipient,omitempty"`
}

type RespSchedule struct {
	Username         string `json:"username"`
	Token            string `json:"token"`
	Symbol           string `json:"symbol,omitempty"`
	Amount           string `json:"amount"`
	Interval         string `json:"interval"`
	OneTime          bool   `json:"oneTime"`
	FirstPaymentDate int64  `json:"firstPaymentDate"`
	NextPayout       int64  `json:"nextPayout"`
	Active           bool   `json:"active"`
}

type RespWithdrawable struct {
	Username   string `json:"username"`
	Recipient  string `json:"recipient"`
	Amount     string `json:"amount"` // token base units
	LastUpdate int64  `json:"lastUpdate"`
	Owed       string `json:"owed"`
}

type RespInfo struct {
	Treasury        string `json:"treasury"`
	Factory         string `json:"factory"`
	ActiveStreams   int64  `json:"activeStreams"`
	ActiveSchedules int64  `json:"activeSchedules"`
}

type RespErr struct {
	Err string `json:"error"`
}

func (r RespErr) Error() string {
	return r.Err
}
