// Package wasmbin implements the byte-level front door of the wasm binary
// format: magic/version verification, UTF-8 validation, and
// the section splitter that walks (id, size, body) triples and enforces
// known-section ordering ahead of the per-section decoders in
// internal/wasm/binary.
package wasmbin

import (
	"encoding/binary"
	"fmt"

	"github.com/w2n-dev/wasm2native/internal/leb128"
	"github.com/w2n-dev/wasm2native/internal/wasm"
)

// Magic is the four-byte wasm binary magic number, "\0asm".
var Magic = [4]byte{0x00, 0x61, 0x73, 0x6d}

// Version is the only binary format version this loader accepts.
var Version = [4]byte{0x01, 0x00, 0x00, 0x00}

// Section is one entry of the split binary: either a known section (ID !=
// SectionIDCustom) or a custom section, with Body pointing into the
// caller's input buffer (never copied; the buffer is borrowed for the
// module's lifetime).
type Section struct {
	ID   wasm.SectionID
	Body []byte

	// Name is populated only for custom sections, decoded eagerly because
	// the loader dispatches the "name"/"linking"/"reloc.*" custom sections
	// by name.
	Name string
}

// Split verifies the magic and version header and returns the ordered
// sequence of sections that follow, enforcing that known section ids
// appear in their fixed order (type=1 .. code=10, with datacount=12
// legally inserted immediately before code) and that any out-of-order
// known id fails with "unexpected content after last section". Custom sections (id 0) may appear anywhere and don't advance the
// ordering cursor.
func Split(buf []byte) ([]Section, error) {
	if len(buf) < 8 {
		return nil, fmt.Errorf("unexpected end of magic header")
	}
	var magic [4]byte
	copy(magic[:], buf[:4])
	if magic != Magic {
		return nil, fmt.Errorf("magic header not detected")
	}
	var version [4]byte
	copy(version[:], buf[4:8])
	if version != Version {
		// Accept the mirror-image byte order only if it round-trips to the
		// canonical version; any other pattern is an unsupported version.
		be := binary.BigEndian.Uint32(buf[4:8])
		le := binary.LittleEndian.Uint32(Version[:])
		if be != le {
			return nil, fmt.Errorf("unknown binary version")
		}
	}

	var sections []Section
	pos := 8
	lastKnown := wasm.SectionID(0)
	for pos < len(buf) {
		id := buf[pos]
		pos++
		size, n, err := leb128.LoadUint32(buf[pos:])
		if err != nil {
			return nil, fmt.Errorf("section size: %w", err)
		}
		pos += int(n)
		if pos+int(size) > len(buf) {
			return nil, fmt.Errorf("section size mismatch")
		}
		body := buf[pos : pos+int(size)]
		pos += int(size)

		s := Section{ID: id, Body: body}
		if id == wasm.SectionIDCustom {
			name, rest, err := readName(body)
			if err != nil {
				return nil, err
			}
			s.Name = name
			s.Body = rest
			sections = append(sections, s)
			continue
		}
		if id > wasm.SectionIDDataCount {
			return nil, fmt.Errorf("invalid section id: %d", id)
		}
		if !sectionOrderOK(lastKnown, id) {
			return nil, fmt.Errorf("unexpected content after last section (id %d after %d)", id, lastKnown)
		}
		lastKnown = id
		sections = append(sections, s)
	}
	return sections, nil
}

// sectionOrderOK reports whether id may legally follow last. Section ids
// are NOT monotonic with binary position: the datacount section's id (12)
// numerically exceeds code (10) and data (11), yet it must appear between
// element and code. sectionRank gives each known id its
// actual position in the required order so the comparison is correct.
func sectionOrderOK(last, id wasm.SectionID) bool {
	return sectionRank(id) > sectionRank(last)
}

// sectionRank maps a known section id to its position in the binary's
// required order. Custom (id 0) never reaches here (handled separately).
func sectionRank(id wasm.SectionID) int {
	switch id {
	case wasm.SectionIDDataCount:
		return 10 // between element (9) and code (10)
	case wasm.SectionIDCode:
		return 11
	case wasm.SectionIDData:
		return 12
	default:
		return int(id) // type(1)..element(9) already match their rank
	}
}

func readName(body []byte) (string, []byte, error) {
	n, k, err := leb128.LoadUint32(body)
	if err != nil {
		return "", nil, fmt.Errorf("custom section name length: %w", err)
	}
	start := int(k)
	end := start + int(n)
	if end > len(body) {
		return "", nil, fmt.Errorf("unexpected end of custom section name")
	}
	raw := body[start:end]
	if err := ValidateUTF8(raw); err != nil {
		return "", nil, err
	}
	return string(raw), body[end:], nil
}
