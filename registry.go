package payroll

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/tidwall/gjson"
	"gopkg.in/h2non/gentleman.v2"
)

// Registry is the external identity registry: a bidirectional mapping
// between human-readable usernames and controlling addresses. The engine
// only ever reads it, and always at call time -- resolutions are never
// cached across operations.
type Registry interface {
	Resolve(username string) (common.Address, error)
	ReverseResolve(addr common.Address) (string, error)
	IsAvailable(username string) (bool, error)
	IsClaimed(addr common.Address) (bool, error)
}

type RegistryCli struct {
	cli *gentleman.Client
}

func NewRegistryCli(registryUrl string) *RegistryCli {
	return &RegistryCli{
		cli: gentleman.New().URL(registryUrl),
	}
}

func (r *RegistryCli) Resolve(username string) (common.Address, error) {
	req := r.cli.Get()
	req.AddPath(fmt.Sprintf("/resolve/%s", username))
	resp, err := req.Send()
	if err != nil {
		return common.Address{}, err
	}
	defer resp.Close()
	if !resp.Ok {
		return common.Address{}, ErrUsernameNotFound
	}
	addr := gjson.Get(resp.String(), "address").String()
	if !common.IsHexAddress(addr) || addr == "" {
		return common.Address{}, ErrUsernameNotFound
	}
	return common.HexToAddress(addr), nil
}

func (r *RegistryCli) ReverseResolve(addr common.Address) (string, error) {
	req := r.cli.Get()
	req.AddPath(fmt.Sprintf("/reverse/%s", addr.Hex()))
	resp, err := req.Send()
	if err != nil {
		return "", err
	}
	defer resp.Close()
	if !resp.Ok {
		return "", ErrUsernameNotFound
	}
	username := gjson.Get(resp.String(), "username").String()
	if username == "" {
		return "", ErrUsernameNotFound
	}
	return username, nil
}

func (r *RegistryCli) IsAvailable(username string) (bool, error) {
	req := r.cli.Get()
	req.AddPath(fmt.Sprintf("/available/%s", username))
	resp, err := req.Send()
	if err != nil {
		return false, err
	}
	defer resp.Close()
	if !resp.Ok {
		return false, fmt.Errorf("registry resp failed: %s", resp.String())
	}
	return gjson.Get(resp.String(), "available").Bool(), nil
}

func (r *RegistryCli) IsClaimed(addr common.Address) (bool, error) {
	req := r.cli.Get()
	req.AddPath(fmt.Sprintf("/claimed/%s", addr.Hex()))
	resp, err := req.Send()
	if err != nil {
		return false, err
	}
	defer resp.Close()
	if !resp.Ok {
		return false, fmt.Errorf("registry resp failed: %s", resp.String())
	}
	return gjson.Get(resp.String(), "claimed").Bool(), nil
}
