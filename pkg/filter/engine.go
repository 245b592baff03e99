package filter

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/openzeppelin-fork/monitor-go/pkg/chain"
	"github.com/openzeppelin-fork/monitor-go/pkg/chain/evmchain"
	"github.com/openzeppelin-fork/monitor-go/pkg/chain/stellarchain"
	"github.com/openzeppelin-fork/monitor-go/pkg/model"
	"github.com/openzeppelin-fork/monitor-go/pkg/rpc"
)

// Engine runs the per-monitor matching algorithm against one block for one
// network.
type Engine struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *Engine {
	return &Engine{logger: logger}
}

// FilterBlock is the public entry point: given one block for network, run
// every monitor's match conditions against it and return the resulting
// matches, resolving contract specs through specCache or client as needed.
func (e *Engine) FilterBlock(ctx context.Context, client rpc.Client, network model.Network, block chain.Block,
	monitors []model.Monitor, specCache *SpecCache) ([]chain.Match, error) {

	if block.ChainKind() != network.Kind {
		return nil, fmt.Errorf("%w: block is %s, network is %s", ErrBlockTypeMismatch, block.ChainKind(), network.Kind)
	}

	switch network.Kind {
	case chain.KindEVM:
		evmBlock, ok := block.(*evmchain.Block)
		if !ok {
			return nil, fmt.Errorf("%w: expected *evmchain.Block", ErrInternal)
		}
		return e.filterEVMBlock(ctx, evmBlock, network, monitors)

	case chain.KindStellar:
		stellarBlock, ok := block.(*stellarchain.Block)
		if !ok {
			return nil, fmt.Errorf("%w: expected *stellarchain.Block", ErrInternal)
		}
		stellarClient, _ := client.(rpc.StellarExtras)
		matches, err := e.filterStellarBlock(ctx, stellarBlock, network, monitors, specCache, stellarClient)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
		}
		return matches, nil

	default:
		return nil, fmt.Errorf("%w: unsupported chain kind %q", ErrInternal, network.Kind)
	}
}
