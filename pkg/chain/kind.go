// Package chain defines the chain-agnostic capability set that every
// protocol adapter (EVM, Stellar, and the reserved variants) implements, plus
// the tagged-union Block/Transaction/Match types that let the filter engine
// and watcher stay generic over the underlying protocol.
package chain

// Kind identifies which protocol a Network speaks. Only EVM and Stellar have
// real decoders in this core; the rest are reserved so configuration can name
// them without the process refusing to start.
type Kind string

const (
	KindEVM     Kind = "evm"
	KindStellar Kind = "stellar"

	// Reserved: accepted in configuration, rejected at the point a decoder
	// would be needed.
	KindReservedCosmos  Kind = "cosmos"
	KindReservedSolana  Kind = "solana"
	KindReservedMidnight Kind = "midnight"
)

// Supported reports whether Kind has a working Chain Client/Filter Engine
// pair in this build.
func (k Kind) Supported() bool {
	return k == KindEVM || k == KindStellar
}

// Block is the tagged-union abstraction over a fetched block (EVM) or ledger
// (Stellar). Every chain's block must expose its number.
type Block interface {
	ChainKind() Kind
	BlockNumber() uint64
}

// Match is the tagged-union abstraction over one monitor match. Every chain's
// match exposes the fields needed for dispatch templating and logging,
// regardless of which chain produced it.
type Match interface {
	ChainKind() Kind
	MonitorName() string
	NetworkID() string
	BlockNumber() uint64
	TxHash() string
	// TemplateVars returns the flattened "events.i.args.x" / "functions.i..."
	// / "transaction.field" / "monitor.name" substitution map used to render
	// trigger message templates.
	TemplateVars() map[string]string
}

// ProcessedBlock is the unit handed from the filter stage to the dispatch
// stage: one block's worth of matches, order preserved.
type ProcessedBlock struct {
	NetworkID   string
	BlockNumber uint64
	Matches     []Match
}
