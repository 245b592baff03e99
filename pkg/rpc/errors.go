// Package rpc implements the Chain Client: a chain-agnostic, retrying,
// failover-capable capability set over EVM and Stellar JSON-RPC endpoints.
package rpc

import (
	"context"
	"errors"
	"fmt"

	"github.com/openzeppelin-fork/monitor-go/pkg/traceerr"
)

// Sentinel error kinds the Chain Client returns.
var (
	ErrRpc                      = errors.New("rpc: protocol-level failure")
	ErrResponseParse            = errors.New("rpc: response parse failure")
	ErrInvalidInput             = errors.New("rpc: invalid input")
	ErrUnexpectedResponseStruct = errors.New("rpc: unexpected response structure")
	ErrOutsideRetentionWindow   = errors.New("rpc: requested range is outside the retention window")
	ErrBlockNotYetAvailable     = errors.New("rpc: block not yet available")
)

// RetentionWindowError carries the extra detail a Stellar "outside
// retention window" response needs: the RPC code, message, and the ledger
// range actually retained. StellarClient fills only Code and Message;
// OldestLedger, LatestLedger and RequestedFrom are left zero.
type RetentionWindowError struct {
	Code          string
	Message       string
	OldestLedger  uint32
	LatestLedger  uint32
	RequestedFrom uint32
}

func (e *RetentionWindowError) Error() string {
	return fmt.Sprintf("rpc: ledger %d outside retention window [%d, %d]: %s (%s)",
		e.RequestedFrom, e.OldestLedger, e.LatestLedger, e.Message, e.Code)
}

func (e *RetentionWindowError) Unwrap() error { return ErrOutsideRetentionWindow }

// isTransient classifies an error for the endpoint pool's retry/failover
// policy: transient transport and block-not-yet-available both trigger
// retry on the next-best endpoint; everything else surfaces immediately.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrOutsideRetentionWindow) || errors.Is(err, ErrInvalidInput) {
		return false
	}
	return errors.Is(err, ErrRpc) || errors.Is(err, ErrBlockNotYetAvailable)
}

func wrapRPC(ctx context.Context, cause error) error {
	return traceerr.New(ctx, ErrRpc, cause)
}

func wrapParse(ctx context.Context, cause error) error {
	return traceerr.New(ctx, ErrResponseParse, cause)
}
