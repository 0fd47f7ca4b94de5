package payroll

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/everFinance/payroll/schema"
	"github.com/gin-gonic/gin"
	"github.com/go-co-op/gocron"
	"gorm.io/datatypes"
)

type Payroll struct {
	wdb      *Wdb
	store    *Store
	engine   *gin.Engine
	opLocker sync.Mutex

	registry Registry
	relay    Relay
	llamaPay *LlamaPay
	cache    *Cache

	scheduler *gocron.Scheduler
	kwriter   *KWriter

	treasury common.Address
	factory  common.Address

	// test hook, defaults to time.Now
	nowFn func() time.Time
}

func New(
	mysqlDsn string, sqliteDir string, useSqlite bool, boltDirPath string,
	chainRpc, registryUrl, relayUrl string,
	factoryAddr, treasuryAddr string,
	kafkaUri string,
) *Payroll {
	wdb := &Wdb{}
	if useSqlite {
		wdb = NewSqliteDb(sqliteDir)
	} else {
		wdb = NewMysqlDb(mysqlDsn)
	}
	if err := wdb.Migrate(); err != nil {
		panic(err)
	}

	kvDb, err := NewBoltStore(boltDirPath)
	if err != nil {
		panic(err)
	}

	ethCli, err := ethclient.Dial(chainRpc)
	if err != nil {
		panic(err)
	}

	factory := common.HexToAddress(factoryAddr)
	treasury := common.HexToAddress(treasuryAddr)

	var kwriter *KWriter
	if kafkaUri != "" {
		kwriter, err = NewKWriter(EventTopic, kafkaUri)
		if err != nil {
			panic(err)
		}
	}

	p := &Payroll{
		wdb:       wdb,
		store:     kvDb,
		engine:    gin.Default(),
		registry:  NewRegistryCli(registryUrl),
		relay:     NewRelayCli(relayUrl),
		cache:     NewCache(),
		scheduler: gocron.NewScheduler(time.UTC),
		kwriter:   kwriter,
		treasury:  treasury,
		factory:   factory,
		nowFn:     time.Now,
	}
	p.llamaPay = NewLlamaPay(factory, treasury, ethCli, wdb)
	return p
}

func (p *Payroll) Run(port string) {
	go p.runAPI(port)
	go p.runJobs()
}

func (p *Payroll) Close() {
	if p.scheduler != nil {
		p.scheduler.Stop()
	}
	if p.kwriter != nil {
		p.kwriter.Close()
	}
	p.store.Close()
	p.wdb.Close()
}

// requireManager is the authorization gate: it runs before any resolution or
// external call, so a denied caller causes no state change at all.
func (p *Payroll) requireManager(caller common.Address) error {
	ok, err := p.relay.HasCapability(caller, ManagerCapability)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnauthorized
	}
	return nil
}

func (p *Payroll) tokenMeta(token common.Address) (TokenMeta, error) {
	if meta, ok := p.cache.GetTokenMeta(token.Hex()); ok {
		return meta, nil
	}
	meta, err := p.llamaPay.FetchTokenMeta(token)
	if err != nil {
		return TokenMeta{}, err
	}
	p.cache.SetTokenMeta(token.Hex(), meta)
	return meta, nil
}

// emitEvent publishes to kafka (when configured) and mirrors the event into
// the event_logs table. Emission failures are logged, never propagated: the
// operation already committed.
func (p *Payroll) emitEvent(ev schema.Event) {
	ev.Timestamp = p.nowFn().Unix()
	by, err := json.Marshal(&ev)
	if err != nil {
		log.Error("marshal event", "err", err, "type", ev.Type)
		return
	}
	if p.kwriter != nil {
		if err := p.kwriter.Write(by); err != nil {
			log.Error("kafka write event", "err", err, "type", ev.Type)
		}
	}
	payload := datatypes.JSONMap{}
	if err := json.Unmarshal(by, &payload); err == nil {
		if err := p.wdb.InsertEventLog(schema.EventLog{
			Type:     ev.Type,
			Username: ev.Username,
			Payload:  payload,
		}); err != nil {
			log.Error("insert event log", "err", err, "type", ev.Type)
		}
	}
}

func (p *Payroll) saveReceipt(batchId, op, username string, actions []schema.Action) {
	receipt := schema.BatchReceipt{
		BatchId:   batchId,
		Op:        op,
		Username:  username,
		Actions:   actions,
		Timestamp: p.nowFn().Unix(),
	}
	if err := p.store.SaveBatchReceipt(receipt); err != nil {
		log.Error("save batch receipt", "err", err, "batchId", batchId)
	}
}
