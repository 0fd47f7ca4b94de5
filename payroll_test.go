package payroll

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/everFinance/payroll/schema"
	"github.com/stretchr/testify/assert"
)

var (
	testFactory  = common.HexToAddress("0xde1C04855c2828431ba637675B6929A684f84C7F")
	testTreasury = common.HexToAddress("0x1000000000000000000000000000000000000001")
	testManager  = common.HexToAddress("0x2000000000000000000000000000000000000002")
	testOutsider = common.HexToAddress("0x3000000000000000000000000000000000000003")
	testToken    = common.HexToAddress("0x4000000000000000000000000000000000000004")
	testLlamaPay = common.HexToAddress("0x5000000000000000000000000000000000000005")
	testAlice    = common.HexToAddress("0x6000000000000000000000000000000000000006")
	testBob      = common.HexToAddress("0x7000000000000000000000000000000000000007")
)

type fakeRegistry struct {
	byName map[string]common.Address
	byAddr map[common.Address]string
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		byName: make(map[string]common.Address),
		byAddr: make(map[common.Address]string),
	}
}

func (r *fakeRegistry) claim(username string, addr common.Address) {
	if old, ok := r.byName[username]; ok {
		delete(r.byAddr, old)
	}
	r.byName[username] = addr
	r.byAddr[addr] = username
}

func (r *fakeRegistry) Resolve(username string) (common.Address, error) {
	addr, ok := r.byName[username]
	if !ok {
		return common.Address{}, ErrUsernameNotFound
	}
	return addr, nil
}

func (r *fakeRegistry) ReverseResolve(addr common.Address) (string, error) {
	username, ok := r.byAddr[addr]
	if !ok {
		return "", ErrUsernameNotFound
	}
	return username, nil
}

func (r *fakeRegistry) IsAvailable(username string) (bool, error) {
	_, ok := r.byName[username]
	return !ok, nil
}

func (r *fakeRegistry) IsClaimed(addr common.Address) (bool, error) {
	_, ok := r.byAddr[addr]
	return ok, nil
}

type fakeRelay struct {
	batches  []schema.Batch
	managers map[common.Address]bool
	failAll  bool
}

func newFakeRelay() *fakeRelay {
	return &fakeRelay{
		managers: map[common.Address]bool{testManager: true},
	}
}

func (r *fakeRelay) Execute(batchId string, actions []schema.Action) error {
	if r.failAll {
		return fmt.Errorf("%w: insufficient treasury balance", ErrExternalCallFailed)
	}
	r.batches = append(r.batches, schema.Batch{BatchId: batchId, Actions: actions})
	return nil
}

func (r *fakeRelay) HasCapability(subject common.Address, capabilityId string) (bool, error) {
	return r.managers[subject], nil
}

func (r *fakeRelay) lastBatch() schema.Batch {
	return r.batches[len(r.batches)-1]
}

// fakeCaller answers the adapter's view calls by abi method selector.
type fakeCaller struct {
	llamaPayContract common.Address
	deployed         bool
	decimals         uint8
	symbol           string

	withdrawableAmt *big.Int
	lastUpdate      *big.Int
	owed            *big.Int
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{
		llamaPayContract: testLlamaPay,
		deployed:         true,
		decimals:         18,
		symbol:           "DAI",
		withdrawableAmt:  big.NewInt(0),
		lastUpdate:       big.NewInt(0),
		owed:             big.NewInt(0),
	}
}

func (f *fakeCaller) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	l := NewLlamaPay(testFactory, testTreasury, nil, nil)
	selector := hex.EncodeToString(msg.Data[:4])
	switch selector {
	case hex.EncodeToString(l.factoryAbi.Methods["getLlamaPayContractByToken"].ID):
		return l.factoryAbi.Methods["getLlamaPayContractByToken"].Outputs.Pack(f.llamaPayContract, f.deployed)
	case hex.EncodeToString(l.erc20Abi.Methods["decimals"].ID):
		return l.erc20Abi.Methods["decimals"].Outputs.Pack(f.decimals)
	case hex.EncodeToString(l.erc20Abi.Methods["symbol"].ID):
		return l.erc20Abi.Methods["symbol"].Outputs.Pack(f.symbol)
	case hex.EncodeToString(l.llamaPayAbi.Methods["withdrawable"].ID):
		return l.llamaPayAbi.Methods["withdrawable"].Outputs.Pack(f.withdrawableAmt, f.lastUpdate, f.owed)
	}
	return nil, fmt.Errorf("unexpected call: %s", selector)
}

func newTestPayroll(t *testing.T) (*Payroll, *fakeRelay, *fakeRegistry, *fakeCaller) {
	wdb := NewSqliteDb(t.TempDir())
	assert.NoError(t, wdb.Migrate())
	store, err := NewBoltStore(t.TempDir())
	assert.NoError(t, err)

	relay := newFakeRelay()
	registry := newFakeRegistry()
	registry.claim("alice", testAlice)
	registry.claim("bob", testBob)
	caller := newFakeCaller()

	p := &Payroll{
		wdb:      wdb,
		store:    store,
		registry: registry,
		relay:    relay,
		cache:    NewCache(),
		treasury: testTreasury,
		factory:  testFactory,
		nowFn:    time.Now,
	}
	p.llamaPay = NewLlamaPay(testFactory, testTreasury, caller, wdb)
	return p, relay, registry, caller
}

func setNow(p *Payroll, at time.Time) {
	p.nowFn = func() time.Time { return at }
}

func zeroAddr() common.Address {
	return common.Address{}
}
