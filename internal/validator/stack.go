package validator

import (
	"fmt"

	"github.com/w2n-dev/wasm2native/internal/wasm"
)

// maxStackCells and maxBlockDepth cap the operand-stack depth and block
// nesting at 16 bits each.
const (
	maxStackCells = 1<<16 - 1
	maxBlockDepth = 1<<16 - 1
)

// controlFrameKind classifies a control-stack entry: the function body
// itself, or one of the three structured-control constructs.
type controlFrameKind int

const (
	controlFrameKindFunction controlFrameKind = iota
	controlFrameKindBlock
	controlFrameKindLoop
	controlFrameKindIf
)

func (k controlFrameKind) isLoop() bool { return k == controlFrameKindLoop }

func (k controlFrameKind) String() string {
	switch k {
	case controlFrameKindFunction:
		return "function"
	case controlFrameKindBlock:
		return "block"
	case controlFrameKindLoop:
		return "loop"
	case controlFrameKindIf:
		return "if"
	default:
		return "unknown"
	}
}

// controlFrame is one entry of the control stack.
type controlFrame struct {
	kind   controlFrameKind
	params []wasm.ValueType
	results []wasm.ValueType

	// startAddr/elseAddr/endAddr index into the function body; elseAddr is
	// -1 until an else opcode for this frame is seen.
	startAddr, elseAddr, endAddr int

	// stackCellsAtEntry is the operand-stack depth (in cells) at the point
	// this frame was pushed, i.e. below its own params.
	stackCellsAtEntry int

	// isPolymorphic is set once this frame has executed unreachable, br,
	// br_table, or return: any subsequent pop succeeds vacuously until the
	// frame's matching else/end.
	isPolymorphic bool
}

// branchArity returns the value types a branch to this frame must leave on
// the stack: for a loop, its params (the loop re-enters at its start); for
// every other kind, its results.
func (f *controlFrame) branchArity() []wasm.ValueType {
	if f.kind.isLoop() {
		return f.params
	}
	return f.results
}

// operandStack is the validator's abstract value stack: a sequence of
// value types, with push/pop tracking cell width.
type operandStack struct {
	types     []wasm.ValueType
	cells     int
	maxCells  int
}

func (s *operandStack) push(t wasm.ValueType) error {
	s.types = append(s.types, t)
	s.cells += wasm.CellsOf(t)
	if s.cells > s.maxCells {
		s.maxCells = s.cells
	}
	if s.maxCells > maxStackCells {
		return fmt.Errorf("operand stack too deep")
	}
	return nil
}

// pop removes and returns the top type, vacuously succeeding with
// ValueTypeAny when polymorphic is true and the stack has been drained to
// its floor.
func (s *operandStack) pop(floorCells int, polymorphic bool) (wasm.ValueType, error) {
	if s.cells <= floorCells {
		if polymorphic {
			return wasm.ValueTypeAny, nil
		}
		return 0, fmt.Errorf("type mismatch: expected a value, operand stack underflowed")
	}
	t := s.types[len(s.types)-1]
	s.types = s.types[:len(s.types)-1]
	s.cells -= wasm.CellsOf(t)
	return t, nil
}

// popExpect pops and checks the type matches want, treating ValueTypeAny
// (from a polymorphic stack) as matching anything.
func (s *operandStack) popExpect(want wasm.ValueType, floorCells int, polymorphic bool) error {
	got, err := s.pop(floorCells, polymorphic)
	if err != nil {
		return err
	}
	if got != wasm.ValueTypeAny && want != wasm.ValueTypeAny && got != want {
		return fmt.Errorf("type mismatch: expected %s, got %s", wasm.ValueTypeName(want), wasm.ValueTypeName(got))
	}
	return nil
}

// truncateToFloor drops every value above floorCells, used when a frame
// becomes polymorphic.
func (s *operandStack) truncateToFloor(floorCells int) {
	for s.cells > floorCells && len(s.types) > 0 {
		t := s.types[len(s.types)-1]
		s.types = s.types[:len(s.types)-1]
		s.cells -= wasm.CellsOf(t)
	}
}
