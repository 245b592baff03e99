// Package evmchain adapts go-ethereum's block/transaction/receipt types to
// the chain.Block/chain.Match contract so the Filter Engine and Expression
// DSL can treat EVM data uniformly with Stellar data.
package evmchain

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/openzeppelin-fork/monitor-go/pkg/chain"
)

// ReceiptFetcher fetches a single transaction receipt on demand.
type ReceiptFetcher func(ctx context.Context, hash common.Hash) (*gethtypes.Receipt, error)

// Block wraps a go-ethereum block. Logs for the block's transactions are
// attached separately (one eth_getLogs call across an entire fetch range,
// not one per block); receipts are fetched lazily per transaction and
// cached, since most transactions in a block are never inspected by any
// monitor.
type Block struct {
	Raw  *gethtypes.Block
	Logs []gethtypes.Log

	fetchReceipt ReceiptFetcher

	mu       sync.Mutex
	receipts map[common.Hash]*gethtypes.Receipt
}

// NewBlock wraps raw with a lazy, caching receipt fetcher.
func NewBlock(raw *gethtypes.Block, fetchReceipt ReceiptFetcher) *Block {
	return &Block{Raw: raw, fetchReceipt: fetchReceipt, receipts: make(map[common.Hash]*gethtypes.Receipt)}
}

func (b *Block) ChainKind() chain.Kind { return chain.KindEVM }
func (b *Block) BlockNumber() uint64   { return b.Raw.NumberU64() }

// Receipt returns the receipt for hash, fetching and caching it on first use.
func (b *Block) Receipt(ctx context.Context, hash common.Hash) (*gethtypes.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r, ok := b.receipts[hash]; ok {
		return r, nil
	}
	if b.fetchReceipt == nil {
		return nil, nil
	}
	r, err := b.fetchReceipt(ctx, hash)
	if err != nil {
		return nil, err
	}
	b.receipts[hash] = r
	return r, nil
}

// LogsFor returns the pre-fetched logs belonging to txHash.
func (b *Block) LogsFor(txHash common.Hash) []gethtypes.Log {
	var out []gethtypes.Log
	for _, l := range b.Logs {
		if l.TxHash == txHash {
			out = append(out, l)
		}
	}
	return out
}

// Match is an EVM function-call or event match.
type Match struct {
	NetworkIDValue string
	MonitorName_   string
	BlockNumber_   uint64
	TxHash_        string
	Kind           MatchKind
	Signature      string
	Vars           map[string]string
}

type MatchKind string

const (
	MatchKindFunction MatchKind = "function"
	MatchKindEvent    MatchKind = "event"
)

func (m *Match) ChainKind() chain.Kind          { return chain.KindEVM }
func (m *Match) MonitorName() string            { return m.MonitorName_ }
func (m *Match) NetworkID() string              { return m.NetworkIDValue }
func (m *Match) BlockNumber() uint64            { return m.BlockNumber_ }
func (m *Match) TxHash() string                 { return m.TxHash_ }
func (m *Match) TemplateVars() map[string]string { return m.Vars }
