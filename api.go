package payroll

import (
	"errors"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/everFinance/payroll/schema"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func (p *Payroll) runAPI(port string) {
	r := p.engine
	r.Use(CORSMiddleware())
	r.Use(LimiterMiddleware(600, "M", nil))
	v1 := r.Group("/")
	{
		v1.POST("/stream/:username", p.createStream)
		v1.PUT("/stream/:username", p.editStream)
		v1.DELETE("/stream/:username", p.cancelStream)
		v1.POST("/stream/:username/payout", p.requestStreamPayout)
		v1.POST("/stream/:username/migrate", p.migrateStream)
		v1.GET("/stream/:username", p.getStream)
		v1.GET("/stream/:username/withdrawable", p.getWithdrawable)

		v1.POST("/schedule/:username", p.createSchedule)
		v1.PUT("/schedule/:username", p.editSchedule)
		v1.DELETE("/schedule/:username", p.cancelSchedule)
		v1.POST("/schedule/:username/payout", p.requestSchedulePayout)
		v1.GET("/schedule/:username", p.getSchedule)

		v1.GET("/info", p.getInfo)
	}

	if err := r.Run(port); err != nil {
		panic(err)
	}
}

// recoverCaller recovers the caller address from an EIP-191 signature over
// method + path + deadline. The recovered address feeds the authorization
// gate; nothing else about the request is trusted.
func (p *Payroll) recoverCaller(c *gin.Context) (common.Address, error) {
	deadlineStr := c.GetHeader("X-Caller-Deadline")
	deadline, err := strconv.ParseInt(deadlineStr, 10, 64)
	if err != nil {
		return common.Address{}, errors.New("invalid_deadline")
	}
	if p.nowFn().Unix() > deadline {
		return common.Address{}, errors.New("signature_expired")
	}
	sig, err := hexutil.Decode(c.GetHeader("X-Caller-Signature"))
	if err != nil || len(sig) != 65 {
		return common.Address{}, errors.New("invalid_signature")
	}
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	hash := accounts.TextHash([]byte(c.Request.Method + c.Request.URL.Path + deadlineStr))
	pub, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return common.Address{}, errors.New("invalid_signature")
	}
	return crypto.PubkeyToAddress(*pub), nil
}

func (p *Payroll) createStream(c *gin.Context) {
	caller, err := p.recoverCaller(c)
	if err != nil {
		unauthorizedResponse(c, err.Error())
		return
	}
	req := schema.ReqCreateStream{}
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, err.Error())
		return
	}
	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok {
		errorResponse(c, ErrInvalidAmount.Error())
		return
	}
	if err := p.CreateStream(caller, c.Param("username"), amount, common.HexToAddress(req.Token), req.EndDate); err != nil {
		opErrorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (p *Payroll) editStream(c *gin.Context) {
	caller, err := p.recoverCaller(c)
	if err != nil {
		unauthorizedResponse(c, err.Error())
		return
	}
	req := schema.ReqEditStream{}
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, err.Error())
		return
	}
	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok {
		errorResponse(c, ErrInvalidAmount.Error())
		return
	}
	if err := p.EditStream(caller, c.Param("username"), amount, req.EndDate); err != nil {
		opErrorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (p *Payroll) cancelStream(c *gin.Context) {
	caller, err := p.recoverCaller(c)
	if err != nil {
		unauthorizedResponse(c, err.Error())
		return
	}
	if err := p.CancelStream(caller, c.Param("username")); err != nil {
		opErrorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (p *Payroll) requestStreamPayout(c *gin.Context) {
	caller, err := p.recoverCaller(c)
	if err != nil {
		unauthorizedResponse(c, err.Error())
		return
	}
	if err := p.RequestStreamPayout(caller, c.Param("username")); err != nil {
		opErrorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (p *Payroll) migrateStream(c *gin.Context) {
	caller, err := p.recoverCaller(c)
	if err != nil {
		unauthorizedResponse(c, err.Error())
		return
	}
	if err := p.MigrateStream(caller, c.Param("username")); err != nil {
		opErrorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (p *Payroll) getStream(c *gin.Context) {
	username := c.Param("username")
	s, err := p.GetStream(username)
	if err != nil {
		notFoundResponse(c, ErrStreamNotActive.Error())
		return
	}
	resp := schema.RespStream{
		Username:   s.Username,
		Token:      s.Token,
		Amount:     s.Amount,
		Rate:       s.Rate,
		EndDate:    s.EndDate,
		LastPayout: s.LastPayout,
		Active:     s.Active,
	}
	if meta, ok := p.cache.GetTokenMeta(s.Token); ok {
		resp.Symbol = meta.Symbol
		if amt, ok := new(big.Int).SetString(s.Amount, 10); ok {
			resp.AmountFmt = decimal.NewFromBigInt(amt, int32(-meta.Decimals)).String()
		}
	}
	if rec, err := p.wdb.GetStreamRecipient(username); err == nil {
		resp.Recipient = rec.Recipient
	}
	c.JSON(http.StatusOK, resp)
}

func (p *Payroll) getWithdrawable(c *gin.Context) {
	username := c.Param("username")
	amount, lastUpdate, owed, recipient, err := p.StreamWithdrawable(username)
	if err != nil {
		opErrorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, schema.RespWithdrawable{
		Username:   username,
		Recipient:  recipient,
		Amount:     amount.String(),
		LastUpdate: lastUpdate,
		Owed:       owed.String(),
	})
}

func (p *Payroll) createSchedule(c *gin.Context) {
	caller, err := p.recoverCaller(c)
	if err != nil {
		unauthorizedResponse(c, err.Error())
		return
	}
	req := schema.ReqCreateSchedule{}
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, err.Error())
		return
	}
	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok {
		errorResponse(c, ErrInvalidAmount.Error())
		return
	}
	if err := p.CreateSchedule(caller, c.Param("username"), amount, common.HexToAddress(req.Token),
		req.Interval, req.OneTime, req.FirstPaymentDate); err != nil {
		opErrorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (p *Payroll) editSchedule(c *gin.Context) {
	caller, err := p.recoverCaller(c)
	if err != nil {
		unauthorizedResponse(c, err.Error())
		return
	}
	req := schema.ReqEditSchedule{}
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, err.Error())
		return
	}
	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok {
		errorResponse(c, ErrInvalidAmount.Error())
		return
	}
	if err := p.EditSchedule(caller, c.Param("username"), amount, req.Interval, req.OneTime); err != nil {
		opErrorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (p *Payroll) cancelSchedule(c *gin.Context) {
	caller, err := p.recoverCaller(c)
	if err != nil {
		unauthorizedResponse(c, err.Error())
		return
	}
	if err := p.CancelSchedule(caller, c.Param("username")); err != nil {
		opErrorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (p *Payroll) requestSchedulePayout(c *gin.Context) {
	caller, err := p.recoverCaller(c)
	if err != nil {
		unauthorizedResponse(c, err.Error())
		return
	}
	if err := p.RequestSchedulePayout(caller, c.Param("username")); err != nil {
		opErrorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (p *Payroll) getSchedule(c *gin.Context) {
	s, err := p.GetSchedule(c.Param("username"))
	if err != nil {
		notFoundResponse(c, ErrScheduleNotActive.Error())
		return
	}
	resp := schema.RespSchedule{
		Username:         s.Username,
		Token:            s.Token,
		Amount:           s.Amount,
		Interval:         s.Interval,
		OneTime:          s.OneTime,
		FirstPaymentDate: s.FirstPaymentDate,
		NextPayout:       s.NextPayout,
		Active:           s.Active,
	}
	if meta, ok := p.cache.GetTokenMeta(s.Token); ok {
		resp.Symbol = meta.Symbol
	}
	c.JSON(http.StatusOK, resp)
}

func (p *Payroll) getInfo(c *gin.Context) {
	streams, err := p.wdb.CountActiveStreams()
	if err != nil {
		internalErrorResponse(c, err.Error())
		return
	}
	schedules, err := p.wdb.CountActiveSchedules()
	if err != nil {
		internalErrorResponse(c, err.Error())
		return
	}
	c.JSON(http.StatusOK, schema.RespInfo{
		Treasury:        p.treasury.Hex(),
		Factory:         p.factory.Hex(),
		ActiveStreams:   streams,
		ActiveSchedules: schedules,
	})
}

func opErrorResponse(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrUnauthorized):
		unauthorizedResponse(c, err.Error())
	case errors.Is(err, ErrUsernameNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		notFoundResponse(c, err.Error())
	case errors.Is(err, ErrExternalCallFailed):
		internalErrorResponse(c, err.Error())
	default:
		errorResponse(c, err.Error())
	}
}

func errorResponse(c *gin.Context, err string) {
	// client error
	c.JSON(http.StatusBadRequest, schema.RespErr{
		Err: err,
	})
}

func unauthorizedResponse(c *gin.Context, err string) {
	c.JSON(http.StatusUnauthorized, schema.RespErr{
		Err: err,
	})
}

func notFoundResponse(c *gin.Context, err string) {
	c.JSON(http.StatusNotFound, schema.RespErr{
		Err: err,
	})
}

func internalErrorResponse(c *gin.Context, err string) {
	c.JSON(http.StatusInternalServerError, schema.RespErr{
		Err: err,
	})
}
