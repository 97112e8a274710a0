package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"paydesk/internal/models"
)

// Transaction verification status.
const (
	TxPending   = "pending"
	TxConfirmed = "confirmed"
	TxFailed    = "failed"
)

// keccak256("Transfer(address,address,uint256)")
const transferTopic = "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"

// TransferInfo is the decoded result of verifying a stablecoin transfer.
type TransferInfo struct {
	From          string
	To            string
	Asset         string
	Amount        decimal.Decimal
	BlockNumber   int64
	Confirmations int64
	Status        string
	TxHash        string
	Chain         string
}

// Verifier talks JSON-RPC to one chain's node provider.
type Verifier struct {
	chain      string
	rpcURL     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewVerifier builds a verifier for a single chain.
func NewVerifier(chain, rpcURL string, client *http.Client, logger *slog.Logger) (*Verifier, error) {
	if !KnownChain(chain) {
		return nil, models.ErrUnknownChain
	}
	if strings.TrimSpace(rpcURL) == "" {
		return nil, fmt.Errorf("chain %s: rpc url is required", chain)
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{chain: strings.ToLower(chain), rpcURL: rpcURL, httpClient: client, logger: logger}, nil
}

// Chain returns the chain this verifier is bound to.
func (v *Verifier) Chain() string { return v.chain }

// Registry holds one verifier per chain, constructed once at process start
// and passed by reference into the tracker and settlement coordinator.
type Registry struct {
	verifiers map[string]*Verifier
}

func NewRegistry() *Registry {
	return &Registry{verifiers: make(map[string]*Verifier)}
}

func (r *Registry) Add(v *Verifier) { r.verifiers[v.chain] = v }

// Verifier returns the verifier for a chain.
func (r *Registry) Verifier(chain string) (*Verifier, error) {
	v, ok := r.verifiers[strings.ToLower(chain)]
	if !ok {
		return nil, models.ErrUnknownChain
	}
	return v, nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func (v *Verifier) call(ctx context.Context, method string, params []any, out any) error {
	body, _ := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.rpcURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", v.chain, method, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: %s %s", v.chain, method, resp.Status, strings.TrimSpace(string(b)))
	}
	var rr rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return fmt.Errorf("%s %s decode: %w", v.chain, method, err)
	}
	if rr.Error != nil {
		return fmt.Errorf("%s %s: %w", v.chain, method, rr.Error)
	}
	if out != nil && len(rr.Result) > 0 {
		if err := json.Unmarshal(rr.Result, out); err != nil {
			return fmt.Errorf("%s %s result: %w", v.chain, method, err)
		}
	}
	return nil
}

type rpcTransaction struct {
	Hash        string  `json:"hash"`
	BlockNumber *string `json:"blockNumber"`
	From        string  `json:"from"`
	To          string  `json:"to"`
}

type rpcReceipt struct {
	Status string   `json:"status"`
	Logs   []rpcLog `json:"logs"`
}

type rpcLog struct {
	Address string   `json:"address"`
	Topics  []string `json:"topics"`
	Data    string   `json:"data"`
}

// VerifyTransaction fetches the transaction, its receipt and the chain head,
// decodes the first Transfer log against a known stablecoin contract and
// derives the confirmation status.
func (v *Verifier) VerifyTransaction(ctx context.Context, txHash string) (*TransferInfo, error) {
	var tx rpcTransaction
	if err := v.call(ctx, "eth_getTransactionByHash", []any{txHash}, &tx); err != nil {
		return nil, err
	}
	if tx.Hash == "" {
		return nil, fmt.Errorf("%s: transaction %s not found", v.chain, txHash)
	}

	info := &TransferInfo{Chain: v.chain, TxHash: txHash, Status: TxPending}
	if tx.BlockNumber == nil {
		// still in the mempool
		return info, nil
	}
	blockNum, err := parseHexUint(*tx.BlockNumber)
	if err != nil {
		return nil, fmt.Errorf("%s: parse block number: %w", v.chain, err)
	}
	info.BlockNumber = blockNum

	var receipt rpcReceipt
	if err := v.call(ctx, "eth_getTransactionReceipt", []any{txHash}, &receipt); err != nil {
		return nil, err
	}
	if receipt.Status == "0x0" {
		info.Status = TxFailed
		return info, nil
	}

	transfer, ok := decodeTransferLog(v.chain, receipt.Logs)
	if !ok {
		return nil, fmt.Errorf("%s: transaction %s carries no known stablecoin transfer", v.chain, txHash)
	}
	info.From = transfer.From
	info.To = transfer.To
	info.Asset = transfer.Asset
	info.Amount = transfer.Amount

	var headHex string
	if err := v.call(ctx, "eth_blockNumber", []any{}, &headHex); err != nil {
		return nil, err
	}
	head, err := parseHexUint(headHex)
	if err != nil {
		return nil, fmt.Errorf("%s: parse head block: %w", v.chain, err)
	}
	if head >= blockNum {
		info.Confirmations = head - blockNum
	}
	threshold := requiredConfirmations[v.chain]
	if info.Confirmations >= threshold {
		info.Status = TxConfirmed
	}
	return info, nil
}

type decodedTransfer struct {
	From   string
	To     string
	Asset  string
	Amount decimal.Decimal
}

// decodeTransferLog scans receipt logs for an ERC-20 Transfer against a known
// USDC/USDT contract and scales the raw integer value to an exact decimal.
func decodeTransferLog(chain string, logs []rpcLog) (decodedTransfer, bool) {
	for _, lg := range logs {
		if len(lg.Topics) != 3 || !strings.EqualFold(lg.Topics[0], transferTopic) {
			continue
		}
		asset := AssetForContract(chain, lg.Address)
		if asset == "" {
			continue
		}
		raw, ok := parseHexBig(lg.Data)
		if !ok {
			continue
		}
		return decodedTransfer{
			From:   topicAddress(lg.Topics[1]),
			To:     topicAddress(lg.Topics[2]),
			Asset:  asset,
			Amount: decimal.NewFromBigInt(raw, -AssetDecimals),
		}, true
	}
	return decodedTransfer{}, false
}

// topicAddress extracts the 20-byte address from a 32-byte indexed topic.
func topicAddress(topic string) string {
	topic = strings.TrimPrefix(strings.ToLower(topic), "0x")
	if len(topic) < 40 {
		return "0x" + topic
	}
	return "0x" + topic[len(topic)-40:]
}

func parseHexUint(s string) (int64, error) {
	n, ok := parseHexBig(s)
	if !ok {
		return 0, fmt.Errorf("invalid hex quantity %q", s)
	}
	if !n.IsInt64() {
		return 0, fmt.Errorf("hex quantity %q out of range", s)
	}
	return n.Int64(), nil
}

func parseHexBig(s string) (*big.Int, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if s == "" {
		return nil, false
	}
	n, ok := new(big.Int).SetString(s, 16)
	return n, ok
}
