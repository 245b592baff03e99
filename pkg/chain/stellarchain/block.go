// Package stellarchain adapts Stellar ledgers, transactions and Soroban
// contract events to the chain.Block/chain.Match contract. Wire values
// arrive as base64 XDR from Horizon/RPC and are decoded with stellar/go/xdr;
// this is the one dependency in the module with no grounding in the example
// pack (see DESIGN.md).
package stellarchain

import (
	"github.com/stellar/go/xdr"

	"github.com/openzeppelin-fork/monitor-go/pkg/chain"
)

// ContractEvent is one Soroban contract event emitted during a transaction,
// joined to it by matching get_events' txHash against the transaction's own
// hash. Topics[0] is the event's name, encoded as an ScvSymbol; the
// remaining topics are its indexed arguments, and Value is its one
// non-indexed argument.
type ContractEvent struct {
	ContractID string
	Topics     []xdr.ScVal
	Value      xdr.ScVal
}

// Transaction pairs a decoded envelope with its result metadata, mirroring
// what get_transactions returns from the Stellar RPC surface.
type Transaction struct {
	Hash     string
	Envelope xdr.TransactionEnvelope
	Result   xdr.TransactionResult
	Meta     xdr.TransactionMeta
	Events   []ContractEvent
}

// Block is one Stellar ledger, together with the transactions in it.
type Block struct {
	Sequence     uint32
	Transactions []Transaction
}

func (b *Block) ChainKind() chain.Kind { return chain.KindStellar }
func (b *Block) BlockNumber() uint64   { return uint64(b.Sequence) }

// Match is a Stellar contract invocation or event match.
type Match struct {
	NetworkIDValue string
	MonitorName_   string
	BlockNumber_   uint64
	TxHash_        string
	ContractID     string
	FunctionName   string
	Vars           map[string]string
}

func (m *Match) ChainKind() chain.Kind            { return chain.KindStellar }
func (m *Match) MonitorName() string              { return m.MonitorName_ }
func (m *Match) NetworkID() string                { return m.NetworkIDValue }
func (m *Match) BlockNumber() uint64              { return m.BlockNumber_ }
func (m *Match) TxHash() string                   { return m.TxHash_ }
func (m *Match) TemplateVars() map[string]string  { return m.Vars }
