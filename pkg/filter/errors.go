// Package filter implements the filter engine: for one (block, network,
// monitors) triple, produce the list of monitor matches.
package filter

import "errors"

var (
	ErrBlockTypeMismatch = errors.New("filter: block chain kind does not match network kind")
	ErrNetwork           = errors.New("filter: network i/o failure")
	ErrInternal          = errors.New("filter: internal failure")
)
