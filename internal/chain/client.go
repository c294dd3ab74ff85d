// Package chain provides Neo N3 RPC access for the vault's on-chain asset
// settlement path.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultPollInterval is how often WaitForApplicationLog polls the node.
	DefaultPollInterval = 2 * time.Second
	// DefaultTxWaitTimeout bounds the wait for a transaction to execute.
	DefaultTxWaitTimeout = 2 * time.Minute
)

// Client is a minimal Neo N3 JSON-RPC client.
type Client struct {
	rpcURL     string
	httpClient *http.Client
	networkID  uint32
}

// Config holds client configuration.
type Config struct {
	RPCURL    string
	NetworkID uint32 // MainNet: 860833102, TestNet: 894710606
	Timeout   time.Duration
}

// NewClient creates a new Neo N3 client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("RPC URL required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		rpcURL: cfg.RPCURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		networkID: cfg.NetworkID,
	}, nil
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int           `json:"id"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
	ID      int             `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Call makes a raw RPC call to the node.
func (c *Client) Call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	if params == nil {
		params = []interface{}{}
	}

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}

	return rpcResp.Result, nil
}

// GetBlockCount returns the current block height.
func (c *Client) GetBlockCount(ctx context.Context) (uint32, error) {
	result, err := c.Call(ctx, "getblockcount", nil)
	if err != nil {
		return 0, err
	}

	var count uint32
	if err := json.Unmarshal(result, &count); err != nil {
		return 0, fmt.Errorf("unmarshal block count: %w", err)
	}
	return count, nil
}

// ContractParam is an invocation parameter in node wire format.
type ContractParam struct {
	Type  string      `json:"type"`
	Value interface{} `json:"value"`
}

// NewHash160Param creates a Hash160 parameter from a little-endian hash string.
func NewHash160Param(hash string) ContractParam {
	return ContractParam{Type: "Hash160", Value: hash}
}

// NewIntegerParam creates an Integer parameter. The node expects the value
// as a decimal string.
func NewIntegerParam(value int64) ContractParam {
	return ContractParam{Type: "Integer", Value: fmt.Sprintf("%d", value)}
}

// NewStringParam creates a String parameter.
func NewStringParam(value string) ContractParam {
	return ContractParam{Type: "String", Value: value}
}

// Signer is a transaction signer in node wire format.
type Signer struct {
	Account string `json:"account"`
	Scopes  string `json:"scopes"`
}

// InvokeResult is the result of invokefunction.
type InvokeResult struct {
	Script      string      `json:"script"`
	State       string      `json:"state"`
	GasConsumed string      `json:"gasconsumed"`
	Exception   string      `json:"exception,omitempty"`
	Stack       []StackItem `json:"stack"`
	Tx          string      `json:"tx,omitempty"`
}

// StackItem is a Neo VM stack item.
type StackItem struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// ApplicationLog is the execution log for a transaction.
type ApplicationLog struct {
	TxID       string      `json:"txid"`
	Executions []Execution `json:"executions"`
}

// Execution is a single execution in the application log.
type Execution struct {
	Trigger       string         `json:"trigger"`
	VMState       string         `json:"vmstate"`
	GasConsumed   string         `json:"gasconsumed"`
	Stack         []StackItem    `json:"stack"`
	Notifications []Notification `json:"notifications"`
}

// Notification is a contract notification.
type Notification struct {
	Contract  string    `json:"contract"`
	EventName string    `json:"eventname"`
	State     StackItem `json:"state"`
}

// InvokeFunction invokes a contract function with the given signers.
func (c *Client) InvokeFunction(ctx context.Context, scriptHash, method string, params []ContractParam, signers []Signer) (*InvokeResult, error) {
	if params == nil {
		params = []ContractParam{}
	}

	args := []interface{}{scriptHash, method, params}
	if len(signers) > 0 {
		args = append(args, signers)
	}

	result, err := c.Call(ctx, "invokefunction", args)
	if err != nil {
		return nil, err
	}

	var invokeResult InvokeResult
	if err := json.Unmarshal(result, &invokeResult); err != nil {
		return nil, fmt.Errorf("unmarshal invoke result: %w", err)
	}
	return &invokeResult, nil
}

// GetApplicationLog gets the application log for a transaction.
func (c *Client) GetApplicationLog(ctx context.Context, txHash string) (*ApplicationLog, error) {
	result, err := c.Call(ctx, "getapplicationlog", []interface{}{txHash})
	if err != nil {
		return nil, err
	}

	var appLog ApplicationLog
	if err := json.Unmarshal(result, &appLog); err != nil {
		return nil, fmt.Errorf("unmarshal application log: %w", err)
	}
	return &appLog, nil
}

// WaitForApplicationLog polls until the transaction has an application log
// or the context is done.
func (c *Client) WaitForApplicationLog(ctx context.Context, txHash string, pollInterval time.Duration) (*ApplicationLog, error) {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		appLog, err := c.GetApplicationLog(ctx, txHash)
		if err == nil {
			return appLog, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("wait for tx %s: %w", txHash, ctx.Err())
		case <-ticker.C:
		}
	}
}
