package rpc

import (
	"context"

	"github.com/openzeppelin-fork/monitor-go/pkg/chain"
)

// Client is the chain-agnostic capability set every Chain Client
// implementation provides.
type Client interface {
	NetworkID() string
	ChainKind() chain.Kind

	// LatestBlockNumber returns the chain's current head height.
	LatestBlockNumber(ctx context.Context) (uint64, error)

	// GetBlocks returns the inclusive range [from, to]. When to is nil,
	// exactly the single block at from is returned.
	GetBlocks(ctx context.Context, from uint64, to *uint64) ([]chain.Block, error)

	// Close releases any pooled connections.
	Close()
}

// EVMExtras are the EVM-only Chain Client capabilities.
type EVMExtras interface {
	GetLogsForBlocks(ctx context.Context, from, to uint64, addresses []string) ([]EVMLog, error)
	GetTransactionReceipt(ctx context.Context, hash string) (EVMReceipt, error)
}

// StellarExtras are the Stellar-only Chain Client capabilities.
type StellarExtras interface {
	GetTransactions(ctx context.Context, ledgerSeq uint32, cursor string) ([]StellarTx, string, error)
	GetEvents(ctx context.Context, ledgerSeq uint32, cursor string) ([]StellarEvent, string, error)
	GetContractSpec(ctx context.Context, contractID string) (string, error)
}

// EVMLog is a decoded eth_getLogs entry, kept chain-package-agnostic so the
// Filter Engine does not need to import go-ethereum directly for this shape.
type EVMLog struct {
	Address     string
	Topics      []string
	Data        []byte
	TxHash      string
	BlockNumber uint64
	Index       uint
	Removed     bool
}

// EVMReceipt is the subset of a transaction receipt the Filter Engine and
// status-derivation logic need.
type EVMReceipt struct {
	TxHash      string
	Status      uint64
	GasUsed     uint64
	BlockNumber uint64
	Logs        []EVMLog
}

// StellarTx is one decoded Stellar transaction, as returned by get_transactions.
type StellarTx struct {
	Hash          string
	Ledger        uint32
	EnvelopeXDR   string
	ResultXDR     string
	ResultMetaXDR string
	Successful    bool
}

// StellarEvent is one decoded Soroban contract event, as returned by
// get_events.
type StellarEvent struct {
	ContractID string
	Ledger     uint32
	TxHash     string
	TopicsXDR  []string
	DataXDR    string
}
