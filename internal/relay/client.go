package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/rsclabs/valve-backend/internal/models"
)

// SubmittedTransaction is the relay's acknowledgement of a queued
// transaction. The relay transaction id is the correlation key between the
// deployment record and the relay monitor stream; the hash may be empty
// until the relay broadcasts.
type SubmittedTransaction struct {
	TransactionID string `json:"transactionId"`
	Hash          string `json:"hash"`
}

// Client talks to one chain: read-only calls go straight to the node,
// writes go through the managed relay that signs and broadcasts.
type Client interface {
	// DeployerAddress returns the relay signer address. Deterministic
	// deployment prediction depends on it.
	DeployerAddress(ctx context.Context) (common.Address, error)
	// Call executes a read-only contract call against the node.
	Call(ctx context.Context, to common.Address, data []byte) ([]byte, error)
	// EstimateGas estimates gas for a pending relay transaction.
	EstimateGas(ctx context.Context, to common.Address, data []byte) (uint64, error)
	// SendTransaction queues a transaction on the relay.
	SendTransaction(ctx context.Context, to common.Address, data []byte, gasLimit uint64) (*SubmittedTransaction, error)
}

// Resolver selects the relay client configured for a chain.
type Resolver interface {
	ClientFor(chain models.Chain) (Client, error)
}

// ChainEndpoint configures one chain's relay and node access.
type ChainEndpoint struct {
	RelayURL string
	APIKey   string
	RPCURL   string
}

type resolver struct {
	clients map[models.Chain]Client
}

// NewResolver dials the configured chains and builds a client per chain.
func NewResolver(endpoints map[models.Chain]ChainEndpoint) (Resolver, error) {
	clients := make(map[models.Chain]Client, len(endpoints))
	for chain, endpoint := range endpoints {
		node, err := ethclient.Dial(endpoint.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to %s rpc: %w", chain, err)
		}
		clients[chain] = &httpClient{
			relayURL: endpoint.RelayURL,
			apiKey:   endpoint.APIKey,
			node:     node,
			http:     &http.Client{Timeout: 30 * time.Second},
		}
	}
	return &resolver{clients: clients}, nil
}

func (r *resolver) ClientFor(chain models.Chain) (Client, error) {
	client, ok := r.clients[chain]
	if !ok {
		return nil, fmt.Errorf("no relay configured for chain %s", chain)
	}
	return client, nil
}

type httpClient struct {
	relayURL string
	apiKey   string
	node     *ethclient.Client
	http     *http.Client
}

type relayerInfo struct {
	Address string `json:"address"`
}

func (c *httpClient) DeployerAddress(ctx context.Context) (common.Address, error) {
	var info relayerInfo
	if err := c.do(ctx, http.MethodGet, "/relayer", nil, &info); err != nil {
		return common.Address{}, err
	}
	if !common.IsHexAddress(info.Address) {
		return common.Address{}, fmt.Errorf("relay returned invalid deployer address %q", info.Address)
	}
	return common.HexToAddress(info.Address), nil
}

func (c *httpClient) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	out, err := c.node.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("contract call failed: %w", err)
	}
	return out, nil
}

func (c *httpClient) EstimateGas(ctx context.Context, to common.Address, data []byte) (uint64, error) {
	from, err := c.DeployerAddress(ctx)
	if err != nil {
		return 0, err
	}
	gas, err := c.node.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Data: data})
	if err != nil {
		return 0, fmt.Errorf("gas estimation failed: %w", err)
	}
	return gas, nil
}

type sendTransactionRequest struct {
	To       string `json:"to"`
	Data     string `json:"data"`
	GasLimit uint64 `json:"gasLimit"`
	Speed    string `json:"speed"`
}

func (c *httpClient) SendTransaction(ctx context.Context, to common.Address, data []byte, gasLimit uint64) (*SubmittedTransaction, error) {
	request := sendTransactionRequest{
		To:       to.Hex(),
		Data:     hexutil.Encode(data),
		GasLimit: gasLimit,
		Speed:    "fast",
	}
	var submitted SubmittedTransaction
	if err := c.do(ctx, http.MethodPost, "/txs", request, &submitted); err != nil {
		return nil, err
	}
	if submitted.TransactionID == "" {
		return nil, fmt.Errorf("relay accepted transaction without a transaction id")
	}
	return &submitted, nil
}

func (c *httpClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode relay request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.relayURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build relay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("relay request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("relay returned status %d: %s", resp.StatusCode, payload)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode relay response: %w", err)
	}
	return nil
}
