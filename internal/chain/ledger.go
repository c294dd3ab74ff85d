package chain

import (
	"context"
	"strings"

	"github.com/nspcc-dev/neo-go/pkg/encoding/address"
	"github.com/nspcc-dev/neo-go/pkg/util"

	"github.com/R3E-Network/vault_layer/internal/errors"
	"github.com/R3E-Network/vault_layer/internal/ledger"
	"github.com/R3E-Network/vault_layer/pkg/logger"
)

// GatewayLedger settles vault transfers through the on-chain gateway
// contract. Pull collects a deposit out of the depositor's approved
// allowance; Push pays out from the gateway's own holdings. Both calls
// require a HALT execution and a truthy return value.
type GatewayLedger struct {
	client      *Client
	gatewayHash string
	serviceAcct string
	log         *logger.Logger
}

var _ ledger.AssetLedger = (*GatewayLedger)(nil)

// GatewayConfig configures the gateway ledger adapter.
type GatewayConfig struct {
	// GatewayHash is the script hash of the vault gateway contract.
	GatewayHash string
	// ServiceAccount is the Neo address of the service signer account.
	ServiceAccount string
	Log            *logger.Logger
}

// NewGatewayLedger creates a ledger adapter over the given RPC client.
func NewGatewayLedger(client *Client, cfg GatewayConfig) (*GatewayLedger, error) {
	if client == nil {
		return nil, errors.Validation("chain client is required")
	}
	gateway, err := parseScriptHash(cfg.GatewayHash)
	if err != nil {
		return nil, errors.Validation("invalid gateway contract hash: %v", err)
	}
	svc, err := parseAccount(cfg.ServiceAccount)
	if err != nil {
		return nil, errors.Validation("invalid service account: %v", err)
	}

	log := cfg.Log
	if log == nil {
		log = logger.NewDefault("chain.ledger")
	}

	return &GatewayLedger{
		client:      client,
		gatewayHash: gateway,
		serviceAcct: svc,
		log:         log,
	}, nil
}

// Pull collects amount from the depositor's allowance into the gateway.
func (g *GatewayLedger) Pull(ctx context.Context, from, to string, amount int64) error {
	fromHash, err := parseAccount(from)
	if err != nil {
		return errors.Validation("invalid depositor account: %v", err)
	}

	params := []ContractParam{
		NewHash160Param(fromHash),
		NewIntegerParam(amount),
	}
	return g.invoke(ctx, "collectDeposit", params)
}

// Push pays amount out of the gateway to the recipient.
func (g *GatewayLedger) Push(ctx context.Context, to string, amount int64) error {
	toHash, err := parseAccount(to)
	if err != nil {
		return errors.Validation("invalid recipient account: %v", err)
	}

	params := []ContractParam{
		NewHash160Param(toHash),
		NewIntegerParam(amount),
	}
	return g.invoke(ctx, "payOut", params)
}

func (g *GatewayLedger) invoke(ctx context.Context, method string, params []ContractParam) error {
	signers := []Signer{{Account: g.serviceAcct, Scopes: "CalledByEntry"}}

	result, err := g.client.InvokeFunction(ctx, g.gatewayHash, method, params, signers)
	if err != nil {
		return errors.External(err, "gateway %s failed", method)
	}
	if result.State != "HALT" {
		g.log.WithField("method", method).Warnf("gateway invocation faulted: %s", result.Exception)
		return errors.External(nil, "gateway %s faulted: %s", method, result.Exception).
			WithDetails("method", method)
	}
	if !stackTrue(result.Stack) {
		return errors.External(nil, "gateway %s rejected transfer", method).
			WithDetails("method", method)
	}

	g.log.WithField("method", method).Debugf("gateway settlement complete")
	return nil
}

// stackTrue reports whether the top stack item is a boolean true.
func stackTrue(stack []StackItem) bool {
	if len(stack) == 0 {
		return false
	}
	return string(stack[0].Value) == "true"
}

// parseAccount accepts either a Neo address or a script hash and returns
// the 0x-prefixed little-endian hash the RPC layer expects.
func parseAccount(account string) (string, error) {
	if u, err := address.StringToUint160(account); err == nil {
		return "0x" + u.StringLE(), nil
	}
	return parseScriptHash(account)
}

func parseScriptHash(hash string) (string, error) {
	u, err := util.Uint160DecodeStringLE(strings.TrimPrefix(hash, "0x"))
	if err != nil {
		return "", err
	}
	return "0x" + u.StringLE(), nil
}
