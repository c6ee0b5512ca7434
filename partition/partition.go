package partition

import (
	"errors"
	"fmt"
	"strings"
)

// Count returns the offset and length of rank's block when num elements are
// divided among size ranks.
func Count(num uint64, size, rank int) (offset, count uint64) {
	s := uint64(size)
	r := uint64(rank)
	base := num / s
	extra := num % s

	offset = base*r + min(r, extra)
	count = base
	if r < extra {
		count++
	}
	return offset, count
}

// Owner returns the rank whose block contains element i.
func Owner(num uint64, size int, i uint64) int {
	s := uint64(size)
	base := num / s
	extra := num % s

	// The first extra blocks hold base+1 elements.
	wide := extra * (base + 1)
	if i < wide {
		return int(i / (base + 1))
	}
	return int(extra + (i-wide)/base)
}

// Strategy selects how owned slices are computed.
type Strategy int

const (
	// Replicated builds the complete index on every worker.
	Replicated Strategy = iota
	// Sharded builds per edge shard and redistributes runs to node owners.
	Sharded
)

func (s Strategy) String() string {
	switch s {
	case Replicated:
		return "replicated"
	case Sharded:
		return "sharded"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// ParseStrategy parses a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(s) {
	case "", "replicated":
		return Replicated, nil
	case "sharded":
		return Sharded, nil
	default:
		return 0, fmt.Errorf("partition: unknown strategy %q", s)
	}
}

// ErrCountMismatch is returned when collectively exchanged counts disagree
// with local state.
var ErrCountMismatch = errors.New("partition: count mismatch")

// MismatchError describes a disagreement found during the exchange.
type MismatchError struct {
	What string
	Want uint64
	Got  uint64
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("partition: %s: want %d, got %d", e.What, e.Want, e.Got)
}

func (e *MismatchError) Unwrap() error { return ErrCountMismatch }
