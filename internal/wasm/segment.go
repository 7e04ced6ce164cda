package wasm

// ElementSegment is an active, table-index-0 element segment.
type ElementSegment struct {
	TableIndex Index
	OffsetExpr ConstantExpression
	Init       []Index // function indices
}

// DataSegmentMode distinguishes the three encodings of the data
// section: active against memory 0, passive, or active against an
// explicit memory index.
type DataSegmentMode byte

const (
	DataSegmentModeActiveMem0 DataSegmentMode = iota
	DataSegmentModePassive
	DataSegmentModeActiveExplicit
)

// DataSegment is one entry of the data section.
type DataSegment struct {
	Mode       DataSegmentMode
	MemoryIndex Index // valid when Mode == DataSegmentModeActiveExplicit
	OffsetExpr  ConstantExpression
	Init        []byte

	// SectionOffset is where Init's payload begins relative to the data
	// section body, the coordinate space reloc.DATA offsets use.
	SectionOffset uint32

	// Name, Alignment and Flags come from the linking section's
	// segment-info sub-section, and are zero-valued when
	// absent.
	Name      string
	Alignment uint32
	Flags     uint32
}

// IsActive reports whether d has a base-offset initializer that is applied
// during instantiation, as opposed to a passive
// segment that is only ever copied by memory.init.
func (d DataSegment) IsActive() bool { return d.Mode != DataSegmentModePassive }
