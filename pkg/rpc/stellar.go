package rpc

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/stellar/go/xdr"
	"go.uber.org/zap"

	"github.com/openzeppelin-fork/monitor-go/pkg/chain"
	"github.com/openzeppelin-fork/monitor-go/pkg/chain/stellarchain"
	"github.com/openzeppelin-fork/monitor-go/pkg/model"
	"github.com/openzeppelin-fork/monitor-go/pkg/secret"
)

// StellarClient implements Client and StellarExtras over the Stellar RPC
// JSON-RPC 2.0 surface (getLatestLedger, getTransactions, getEvents,
// getContractData). No Go SDK in the example pack exposes a
// Stellar RPC transport, so this is a hand-rolled net/http JSON-RPC client —
// the one stdlib-only exception in this package (see DESIGN.md).
type StellarClient struct {
	networkID string
	pool      *Pool
	http      *http.Client
	logger    *zap.Logger
}

func NewStellarClient(ctx context.Context, logger *zap.Logger, network model.Network, resolver secret.Resolver) (*StellarClient, error) {
	policy := network.RetryPolicy
	if policy.MaxRetries == 0 && policy.InitialBackoffMS == 0 {
		policy = model.DefaultRetryPolicy()
	}
	pool, err := NewPool(ctx, logger, network.Endpoints, policy, resolver)
	if err != nil {
		return nil, err
	}
	return &StellarClient{
		networkID: network.ID,
		pool:      pool,
		http:      &http.Client{Timeout: 30 * time.Second},
		logger:    logger,
	}, nil
}

func (c *StellarClient) NetworkID() string     { return c.networkID }
func (c *StellarClient) ChainKind() chain.Kind { return chain.KindStellar }
func (c *StellarClient) Close()                {}

type jsonRPCRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int         `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type jsonRPCResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *jsonRPCError   `json:"error"`
}

// call performs one JSON-RPC 2.0 request against url, unmarshalling the
// result into out. Every call runs through the pool so retry/failover and
// the Rpc/ResponseParse error taxonomy apply uniformly across Stellar
// methods.
func (c *StellarClient) call(ctx context.Context, method string, params, out interface{}) error {
	return c.pool.Do(ctx, func(ctx context.Context, url string) error {
		body, err := json.Marshal(jsonRPCRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
		if err != nil {
			return fmt.Errorf("%w: encoding request: %v", ErrInvalidInput, err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return wrapRPC(ctx, err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrRpc, err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return wrapParse(ctx, err)
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("%w: http %d: %s", ErrRpc, resp.StatusCode, string(respBody))
		}

		var rpcResp jsonRPCResponse
		if err := json.Unmarshal(respBody, &rpcResp); err != nil {
			return wrapParse(ctx, err)
		}
		if rpcResp.Error != nil {
			if isRetentionWindowError(rpcResp.Error) {
				return &RetentionWindowError{Code: fmt.Sprint(rpcResp.Error.Code), Message: rpcResp.Error.Message}
			}
			return fmt.Errorf("%w: %s (code %d)", ErrRpc, rpcResp.Error.Message, rpcResp.Error.Code)
		}
		if out != nil {
			if err := json.Unmarshal(rpcResp.Result, out); err != nil {
				return wrapParse(ctx, err)
			}
		}
		return nil
	})
}

func isRetentionWindowError(e *jsonRPCError) bool {
	msg := []byte(e.Message)
	return bytes.Contains(msg, []byte("retention")) ||
		bytes.Contains(msg, []byte("startLedger must be within"))
}

func (c *StellarClient) LatestBlockNumber(ctx context.Context) (uint64, error) {
	var out struct {
		Sequence uint32 `json:"sequence"`
	}
	if err := c.call(ctx, "getLatestLedger", nil, &out); err != nil {
		return 0, err
	}
	return uint64(out.Sequence), nil
}

func (c *StellarClient) GetBlocks(ctx context.Context, from uint64, to *uint64) ([]chain.Block, error) {
	end := from
	if to != nil {
		end = *to
	}
	blocks := make([]chain.Block, 0, end-from+1)
	for n := from; n <= end; n++ {
		txs, _, err := c.GetTransactions(ctx, uint32(n), "")
		if err != nil {
			return nil, err
		}
		events, _, err := c.GetEvents(ctx, uint32(n), "")
		if err != nil {
			c.logger.Warn("fetching events failed, continuing without them",
				zap.Uint32("ledger", uint32(n)), zap.Error(err))
			events = nil
		}
		eventsByTx := make(map[string][]StellarEvent, len(events))
		for _, e := range events {
			eventsByTx[e.TxHash] = append(eventsByTx[e.TxHash], e)
		}

		block := &stellarchain.Block{Sequence: uint32(n)}
		for _, tx := range txs {
			decoded, err := decodeStellarTx(tx, eventsByTx[tx.Hash])
			if err != nil {
				c.logger.Warn("skipping transaction with undecodable xdr",
					zap.String("hash", tx.Hash), zap.Error(err))
				continue
			}
			block.Transactions = append(block.Transactions, decoded)
		}
		blocks = append(blocks, block)
	}
	return blocks, nil
}

// decodeStellarTx decodes tx's envelope/result/meta XDR and joins it with
// the contract events get_events reported for the same transaction hash.
func decodeStellarTx(tx StellarTx, events []StellarEvent) (stellarchain.Transaction, error) {
	var envelope xdr.TransactionEnvelope
	if err := xdr.SafeUnmarshalBase64(tx.EnvelopeXDR, &envelope); err != nil {
		return stellarchain.Transaction{}, wrapParse(context.Background(), err)
	}
	var result xdr.TransactionResult
	if tx.ResultXDR != "" {
		if err := xdr.SafeUnmarshalBase64(tx.ResultXDR, &result); err != nil {
			return stellarchain.Transaction{}, wrapParse(context.Background(), err)
		}
	}
	var meta xdr.TransactionMeta
	if tx.ResultMetaXDR != "" {
		if err := xdr.SafeUnmarshalBase64(tx.ResultMetaXDR, &meta); err != nil {
			return stellarchain.Transaction{}, wrapParse(context.Background(), err)
		}
	}

	decodedEvents := make([]stellarchain.ContractEvent, 0, len(events))
	for _, ev := range events {
		topics := make([]xdr.ScVal, 0, len(ev.TopicsXDR))
		undecodable := false
		for _, t := range ev.TopicsXDR {
			var sv xdr.ScVal
			if err := xdr.SafeUnmarshalBase64(t, &sv); err != nil {
				undecodable = true
				break
			}
			topics = append(topics, sv)
		}
		if undecodable || len(topics) == 0 {
			continue
		}
		var value xdr.ScVal
		if ev.DataXDR != "" {
			if err := xdr.SafeUnmarshalBase64(ev.DataXDR, &value); err != nil {
				continue
			}
		}
		decodedEvents = append(decodedEvents, stellarchain.ContractEvent{
			ContractID: ev.ContractID,
			Topics:     topics,
			Value:      value,
		})
	}

	return stellarchain.Transaction{Hash: tx.Hash, Envelope: envelope, Result: result, Meta: meta, Events: decodedEvents}, nil
}

func (c *StellarClient) GetTransactions(ctx context.Context, ledgerSeq uint32, cursor string) ([]StellarTx, string, error) {
	params := map[string]interface{}{"startLedger": ledgerSeq}
	if cursor != "" {
		params["pagination"] = map[string]interface{}{"cursor": cursor}
	}
	var out struct {
		Transactions []struct {
			Hash          string `json:"txHash"`
			Ledger        uint32 `json:"ledger"`
			EnvelopeXDR   string `json:"envelopeXdr"`
			ResultXDR     string `json:"resultXdr"`
			ResultMetaXDR string `json:"resultMetaXdr"`
			Status        string `json:"status"`
		} `json:"transactions"`
		Cursor string `json:"cursor"`
	}
	if err := c.call(ctx, "getTransactions", params, &out); err != nil {
		return nil, "", err
	}
	txs := make([]StellarTx, len(out.Transactions))
	for i, t := range out.Transactions {
		txs[i] = StellarTx{
			Hash:          t.Hash,
			Ledger:        t.Ledger,
			EnvelopeXDR:   t.EnvelopeXDR,
			ResultXDR:     t.ResultXDR,
			ResultMetaXDR: t.ResultMetaXDR,
			Successful:    t.Status == "SUCCESS",
		}
	}
	return txs, out.Cursor, nil
}

func (c *StellarClient) GetEvents(ctx context.Context, ledgerSeq uint32, cursor string) ([]StellarEvent, string, error) {
	params := map[string]interface{}{"startLedger": ledgerSeq}
	if cursor != "" {
		params["pagination"] = map[string]interface{}{"cursor": cursor}
	}
	var out struct {
		Events []struct {
			ContractID string   `json:"contractId"`
			Ledger     uint32   `json:"ledger"`
			TxHash     string   `json:"txHash"`
			Topic      []string `json:"topic"`
			Value      string   `json:"value"`
		} `json:"events"`
		Cursor string `json:"cursor"`
	}
	if err := c.call(ctx, "getEvents", params, &out); err != nil {
		return nil, "", err
	}
	events := make([]StellarEvent, len(out.Events))
	for i, e := range out.Events {
		events[i] = StellarEvent{
			ContractID: e.ContractID,
			Ledger:     e.Ledger,
			TxHash:     e.TxHash,
			TopicsXDR:  e.Topic,
			DataXDR:    e.Value,
		}
	}
	return events, out.Cursor, nil
}

func (c *StellarClient) GetContractSpec(ctx context.Context, contractID string) (string, error) {
	params := map[string]interface{}{
		"keys": []string{contractID},
	}
	var out struct {
		Entries []struct {
			XDR string `json:"xdr"`
		} `json:"entries"`
	}
	if err := c.call(ctx, "getContractData", params, &out); err != nil {
		return "", err
	}
	if len(out.Entries) == 0 {
		return "", fmt.Errorf("%w: no contract data entry for %s", ErrUnexpectedResponseStruct, contractID)
	}
	var entry xdr.LedgerEntryData
	if err := xdr.SafeUnmarshalBase64(out.Entries[0].XDR, &entry); err != nil {
		return "", wrapParse(ctx, err)
	}
	if entry.ContractData == nil {
		return "", fmt.Errorf("%w: ledger entry is not contract data", ErrUnexpectedResponseStruct)
	}
	specBytes, err := entry.ContractData.Val.MarshalBinary()
	if err != nil {
		return "", wrapParse(ctx, err)
	}
	return base64.StdEncoding.EncodeToString(specBytes), nil
}
