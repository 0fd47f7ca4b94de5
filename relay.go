package payroll

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/everFinance/payroll/schema"
	"github.com/tidwall/gjson"
	"gopkg.in/h2non/gentleman.v2"
	"gopkg.in/h2non/gentleman.v2/plugins/body"
)

// ManagerCapability is the capability id a caller must hold on the engine
// before any mutating operation proceeds.
const ManagerCapability = "PAYROLL_MANAGER"

// Relay is the treasury execution relay: the only path through which funds
// move. A batch either executes in full or not at all.
type Relay interface {
	Execute(batchId string, actions []schema.Action) error
	HasCapability(subject common.Address, capabilityId string) (bool, error)
}

type RelayCli struct {
	cli *gentleman.Client
}

func NewRelayCli(relayUrl string) *RelayCli {
	return &RelayCli{
		cli: gentleman.New().URL(relayUrl),
	}
}

func (r *RelayCli) Execute(batchId string, actions []schema.Action) error {
	batch := schema.Batch{BatchId: batchId, Actions: actions}
	req := r.cli.Post()
	req.AddPath("/execute")
	req.Use(body.JSON(batch))
	resp, err := req.Send()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExternalCallFailed, err)
	}
	defer resp.Close()
	if !resp.Ok {
		return fmt.Errorf("%w: %s", ErrExternalCallFailed, resp.String())
	}
	return nil
}

func (r *RelayCli) HasCapability(subject common.Address, capabilityId string) (bool, error) {
	req := r.cli.Get()
	req.AddPath(fmt.Sprintf("/capability/%s/%s", subject.Hex(), capabilityId))
	resp, err := req.Send()
	if err != nil {
		return false, err
	}
	defer resp.Close()
	if !resp.Ok {
		return false, fmt.Errorf("relay resp failed: %s", resp.String())
	}
	return gjson.Get(resp.String(), "granted").Bool(), nil
}
