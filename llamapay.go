package payroll

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/everFinance/payroll/schema"
)

const factoryAbiJson = `[
	{"name":"getLlamaPayContractByToken","type":"function","stateMutability":"view","inputs":[{"name":"_token","type":"address"}],"outputs":[{"name":"predictedAddress","type":"address"},{"name":"isDeployed","type":"bool"}]},
	{"name":"createLlamaPayContract","type":"function","stateMutability":"nonpayable","inputs":[{"name":"_token","type":"address"}],"outputs":[{"name":"llamaPayContract","type":"address"}]}
]`

const llamaPayAbiJson = `[
	{"name":"createStream","type":"function","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amountPerSec","type":"uint216"}],"outputs":[]},
	{"name":"cancelStream","type":"function","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amountPerSec","type":"uint216"}],"outputs":[]},
	{"name":"withdraw","type":"function","stateMutability":"nonpayable","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amountPerSec","type":"uint216"}],"outputs":[]},
	{"name":"withdrawable","type":"function","stateMutability":"view","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amountPerSec","type":"uint216"}],"outputs":[{"name":"withdrawableAmount","type":"uint256"},{"name":"lastUpdate","type":"uint256"},{"name":"owed","type":"uint256"}]},
	{"name":"deposit","type":"function","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]}
]`

const erc20AbiJson = `[
	{"name":"approve","type":"function","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"name":"transfer","type":"function","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"name":"decimals","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
	{"name":"symbol","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]}
]`

// ChainCaller is the read-only chain access the adapter needs; satisfied by
// *ethclient.Client. Mutations never go through here, only through the relay.
type ChainCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

type TokenMeta struct {
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// LlamaPay adapts engine-level stream operations to per-token llamapay
// contract instances, obtained lazily through the factory and remembered in
// the bindings table thereafter.
type LlamaPay struct {
	factory  common.Address
	treasury common.Address
	caller   ChainCaller
	wdb      *Wdb

	factoryAbi  abi.ABI
	llamaPayAbi abi.ABI
	erc20Abi    abi.ABI
}

func NewLlamaPay(factory, treasury common.Address, caller ChainCaller, wdb *Wdb) *LlamaPay {
	factoryAbi, err := abi.JSON(strings.NewReader(factoryAbiJson))
	if err != nil {
		panic(err)
	}
	llamaPayAbi, err := abi.JSON(strings.NewReader(llamaPayAbiJson))
	if err != nil {
		panic(err)
	}
	erc20Abi, err := abi.JSON(strings.NewReader(erc20AbiJson))
	if err != nil {
		panic(err)
	}
	return &LlamaPay{
		factory:     factory,
		treasury:    treasury,
		caller:      caller,
		wdb:         wdb,
		factoryAbi:  factoryAbi,
		llamaPayAbi: llamaPayAbi,
		erc20Abi:    erc20Abi,
	}
}

// GetOrCreate returns the llamapay contract bound to token. When the token
// has no deployed contract yet, it also returns the factory action that must
// lead the relay batch, and the binding row to persist once that batch
// succeeds.
func (l *LlamaPay) GetOrCreate(token common.Address) (contract common.Address, createAction *schema.Action, bind *schema.LlamaPayBinding, err error) {
	binding, err := l.wdb.GetBinding(token.Hex())
	if err == nil {
		return common.HexToAddress(binding.Contract), nil, nil, nil
	}

	data, err := l.factoryAbi.Pack("getLlamaPayContractByToken", token)
	if err != nil {
		return
	}
	out, err := l.caller.CallContract(context.Background(), ethereum.CallMsg{
		To:   &l.factory,
		Data: data,
	}, nil)
	if err != nil {
		return
	}
	res, err := l.factoryAbi.Unpack("getLlamaPayContractByToken", out)
	if err != nil {
		return
	}
	contract = res[0].(common.Address)
	deployed := res[1].(bool)

	if !deployed {
		var createData []byte
		createData, err = l.factoryAbi.Pack("createLlamaPayContract", token)
		if err != nil {
			return
		}
		createAction = &schema.Action{
			To:    l.factory.Hex(),
			Value: "0",
			Data:  hexutil.Encode(createData),
		}
	}
	bind = &schema.LlamaPayBinding{
		Token:    token.Hex(),
		Contract: contract.Hex(),
	}
	return
}

func (l *LlamaPay) ApproveAction(token, spender common.Address, amount *big.Int) schema.Action {
	data, err := l.erc20Abi.Pack("approve", spender, amount)
	if err != nil {
		panic(err)
	}
	return schema.Action{To: token.Hex(), Value: "0", Data: hexutil.Encode(data)}
}

func (l *LlamaPay) TransferAction(token, to common.Address, amount *big.Int) schema.Action {
	data, err := l.erc20Abi.Pack("transfer", to, amount)
	if err != nil {
		panic(err)
	}
	return schema.Action{To: token.Hex(), Value: "0", Data: hexutil.Encode(data)}
}

func (l *LlamaPay) DepositAction(contract common.Address, amount *big.Int) schema.Action {
	data, err := l.llamaPayAbi.Pack("deposit", amount)
	if err != nil {
		panic(err)
	}
	return schema.Action{To: contract.Hex(), Value: "0", Data: hexutil.Encode(data)}
}

func (l *LlamaPay) CreateStreamAction(contract, recipient common.Address, rate *big.Int) schema.Action {
	data, err := l.llamaPayAbi.Pack("createStream", recipient, rate)
	if err != nil {
		panic(err)
	}
	return schema.Action{To: contract.Hex(), Value: "0", Data: hexutil.Encode(data)}
}

func (l *LlamaPay) CancelStreamAction(contract, recipient common.Address, rate *big.Int) schema.Action {
	data, err := l.llamaPayAbi.Pack("cancelStream", recipient, rate)
	if err != nil {
		panic(err)
	}
	return schema.Action{To: contract.Hex(), Value: "0", Data: hexutil.Encode(data)}
}

func (l *LlamaPay) WithdrawAction(contract, recipient common.Address, rate *big.Int) schema.Action {
	data, err := l.llamaPayAbi.Pack("withdraw", l.treasury, recipient, rate)
	if err != nil {
		panic(err)
	}
	return schema.Action{To: contract.Hex(), Value: "0", Data: hexutil.Encode(data)}
}

// Withdrawable reads the amount currently claimable by recipient on the
// external contract, plus the contract's lastUpdate and any owed backlog.
func (l *LlamaPay) Withdrawable(contract, recipient common.Address, rate *big.Int) (amount *big.Int, lastUpdate int64, owed *big.Int, err error) {
	data, err := l.llamaPayAbi.Pack("withdrawable", l.treasury, recipient, rate)
	if err != nil {
		return
	}
	out, err := l.caller.CallContract(context.Background(), ethereum.CallMsg{
		To:   &contract,
		Data: data,
	}, nil)
	if err != nil {
		return
	}
	res, err := l.llamaPayAbi.Unpack("withdrawable", out)
	if err != nil {
		return
	}
	amount = res[0].(*big.Int)
	lastUpdate = res[1].(*big.Int).Int64()
	owed = res[2].(*big.Int)
	return
}

// FetchTokenMeta reads symbol and decimals from the token contract. Callers
// should go through Payroll.tokenMeta, which caches the result.
func (l *LlamaPay) FetchTokenMeta(token common.Address) (meta TokenMeta, err error) {
	data, err := l.erc20Abi.Pack("decimals")
	if err != nil {
		return
	}
	out, err := l.caller.CallContract(context.Background(), ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return
	}
	res, err := l.erc20Abi.Unpack("decimals", out)
	if err != nil {
		return
	}
	meta.Decimals = int(res[0].(uint8))

	data, err = l.erc20Abi.Pack("symbol")
	if err != nil {
		return
	}
	out, err = l.caller.CallContract(context.Background(), ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return
	}
	res, err = l.erc20Abi.Unpack("symbol", out)
	if err != nil {
		return
	}
	meta.Symbol = res[0].(string)
	return
}
