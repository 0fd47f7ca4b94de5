package payroll

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/panjf2000/ants/v2"
)

const receiptRetention = 90 * 24 * time.Hour

// runJobs starts the maintenance jobs. None of them moves funds: payouts are
// pull-only and never happen in the background.
func (p *Payroll) runJobs() {
	p.scheduler.Every(1).Minute().SingletonMode().Do(p.updateMetrics)
	p.scheduler.Every(10).Minute().SingletonMode().Do(p.refreshTokenMeta)
	p.scheduler.Every(12).Hours().SingletonMode().Do(p.pruneReceipts)

	p.scheduler.StartAsync()
}

func (p *Payroll) updateMetrics() {
	streams, err := p.wdb.CountActiveStreams()
	if err != nil {
		log.Error("count active streams", "err", err)
		return
	}
	schedules, err := p.wdb.CountActiveSchedules()
	if err != nil {
		log.Error("count active schedules", "err", err)
		return
	}
	activeStreams.Set(float64(streams))
	activeSchedules.Set(float64(schedules))
}

// refreshTokenMeta re-warms the token metadata cache for every bound token.
func (p *Payroll) refreshTokenMeta() {
	bindings, err := p.wdb.GetBindings()
	if err != nil {
		log.Error("get bindings", "err", err)
		return
	}

	var wg sync.WaitGroup
	pool, _ := ants.NewPoolWithFunc(10, func(i interface{}) {
		defer wg.Done()
		token := i.(string)
		meta, err := p.llamaPay.FetchTokenMeta(common.HexToAddress(token))
		if err != nil {
			log.Error("fetch token meta", "err", err, "token", token)
			return
		}
		p.cache.SetTokenMeta(token, meta)
	})
	defer pool.Release()

	for _, bind := range bindings {
		wg.Add(1)
		_ = pool.Invoke(bind.Token)
	}
	wg.Wait()
}

func (p *Payroll) pruneReceipts() {
	before := p.nowFn().Add(-receiptRetention).Unix()
	cnt, err := p.store.PruneBatchReceipts(before)
	if err != nil {
		log.Error("prune batch receipts", "err", err)
		return
	}
	if cnt > 0 {
		log.Info("pruned batch receipts", "count", cnt)
	}
}
