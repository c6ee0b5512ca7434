package rangeindex

import (
	"errors"
	"fmt"
)

var (
	// ErrPrecondition is returned when the input violates a precondition.
	ErrPrecondition = errors.New("rangeindex: precondition violated")
	// ErrInvalid is returned when an index fails verification.
	ErrInvalid = errors.New("rangeindex: invalid index")
)

// ErrNodeOutOfRange reports an edge whose node id is not below the node
// count.
type ErrNodeOutOfRange struct {
	Direction Direction
	EdgeID    uint64
	Node      uint64
	NodeCount uint64
}

func (e *ErrNodeOutOfRange) Error() string {
	return fmt.Sprintf("rangeindex: %s: edge %d has node id %d, node count is %d",
		e.Direction, e.EdgeID, e.Node, e.NodeCount)
}

func (e *ErrNodeOutOfRange) Unwrap() error { return ErrPrecondition }

// VerifyError describes the first violation found by Verify.
type VerifyError struct {
	Direction Direction
	Node      uint64
	Reason    string
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("rangeindex: %s: node %d: %s", e.Direction, e.Node, e.Reason)
}

func (e *VerifyError) Unwrap() error { return ErrInvalid }
