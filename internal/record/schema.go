// Package record implements the versioned, append-only record store that
// holds all durable vault state across logic generations.
//
// A Schema describes one generation's field layout. Later generations are
// derived only through Extend, which appends fields by carving capacity out
// of the reserved tail pool. Each schema carries a chained structural hash,
// so a store can verify that a candidate layout is a strict prefix extension
// of the layout it was allocated with instead of trusting the caller.
package record

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// Kind identifies the storage shape of a durable field.
type Kind uint8

const (
	// KindUint64 is a single unsigned scalar.
	KindUint64 Kind = iota + 1
	// KindBool is a single boolean scalar.
	KindBool
	// KindString is a single string scalar.
	KindString
	// KindAmountMap is a keyed space of principal -> signed amount.
	KindAmountMap
	// KindTimeMap is a keyed space of principal -> unix seconds.
	KindTimeMap
	// KindFlagMap is a keyed space of arbitrary key -> boolean.
	KindFlagMap
	// KindRequestMap is a keyed space of principal -> withdrawal request.
	KindRequestMap
)

func (k Kind) String() string {
	switch k {
	case KindUint64:
		return "uint64"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindAmountMap:
		return "amount_map"
	case KindTimeMap:
		return "time_map"
	case KindFlagMap:
		return "flag_map"
	case KindRequestMap:
		return "request_map"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Slots returns the layout capacity one field of this kind consumes.
// Keyed spaces anchor at a single slot, like scalars.
func (k Kind) Slots() int { return 1 }

// Field is one durable field in a generation's layout.
type Field struct {
	Name string
	Kind Kind
}

// Hash is the structural layout hash of a schema.
type Hash [32]byte

// String returns the full hex digest. Formatting must never shorten a
// layout hash: a truncated form that leaks into serialization would be
// rejected on restore.
func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// Schema is an immutable layout descriptor for one generation.
type Schema struct {
	generation uint64
	fields     []Field
	byName     map[string]Kind
	reserved   int
	hash       Hash
	lineage    []Hash // hashes of every generation up to and including this one
}

// NewBase builds the generation-1 schema with the given fields and a
// reserved tail pool of the given capacity.
func NewBase(fields []Field, reserved int) (*Schema, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("record: base schema needs at least one field")
	}
	if reserved < 0 {
		return nil, fmt.Errorf("record: negative reserved pool")
	}
	s := &Schema{
		generation: 1,
		reserved:   reserved,
		byName:     make(map[string]Kind, len(fields)),
	}
	if err := s.appendFields(fields); err != nil {
		return nil, err
	}
	s.hash = chainHash(Hash{}, 1, fields)
	s.lineage = []Hash{s.hash}
	return s, nil
}

// Extend derives the next generation's schema by appending fields after the
// current layout, consuming exactly their capacity from the reserved pool.
// The parent schema is not modified.
func (s *Schema) Extend(fields []Field) (*Schema, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("record: extension adds no fields")
	}
	need := 0
	for _, f := range fields {
		need += f.Kind.Slots()
	}
	if need > s.reserved {
		return nil, fmt.Errorf("record: extension needs %d slots, reserved pool has %d", need, s.reserved)
	}
	child := &Schema{
		generation: s.generation + 1,
		fields:     append([]Field(nil), s.fields...),
		reserved:   s.reserved - need,
		byName:     make(map[string]Kind, len(s.byName)+len(fields)),
	}
	for name, kind := range s.byName {
		child.byName[name] = kind
	}
	if err := child.appendFields(fields); err != nil {
		return nil, err
	}
	child.hash = chainHash(s.hash, child.generation, fields)
	child.lineage = append(append([]Hash(nil), s.lineage...), child.hash)
	return child, nil
}

func (s *Schema) appendFields(fields []Field) error {
	for _, f := range fields {
		if f.Name == "" {
			return fmt.Errorf("record: field with empty name")
		}
		if f.Kind.String() == fmt.Sprintf("kind(%d)", uint8(f.Kind)) {
			return fmt.Errorf("record: field %q has unknown kind", f.Name)
		}
		if _, dup := s.byName[f.Name]; dup {
			return fmt.Errorf("record: duplicate field %q", f.Name)
		}
		s.byName[f.Name] = f.Kind
		s.fields = append(s.fields, f)
	}
	return nil
}

func chainHash(parent Hash, generation uint64, appended []Field) Hash {
	h := sha256.New()
	h.Write(parent[:])
	var genBuf [8]byte
	binary.BigEndian.PutUint64(genBuf[:], generation)
	h.Write(genBuf[:])
	for _, f := range appended {
		h.Write([]byte(f.Name))
		h.Write([]byte{0, byte(f.Kind)})
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// Generation returns the schema's generation number.
func (s *Schema) Generation() uint64 { return s.generation }

// Reserved returns the remaining capacity of the reserved tail pool.
func (s *Schema) Reserved() int { return s.reserved }

// Capacity returns the total layout capacity, declared fields plus the
// reserved pool. Constant across all generations of one lineage.
func (s *Schema) Capacity() int {
	n := s.reserved
	for _, f := range s.fields {
		n += f.Kind.Slots()
	}
	return n
}

// Hash returns the structural layout hash of this generation.
func (s *Schema) Hash() Hash { return s.hash }

// Fields returns the layout's fields in declaration order.
func (s *Schema) Fields() []Field {
	return append([]Field(nil), s.fields...)
}

// FieldKind looks up a declared field's kind.
func (s *Schema) FieldKind(name string) (Kind, bool) {
	k, ok := s.byName[name]
	return k, ok
}

// DescendsFrom reports whether this schema's lineage contains the given
// layout hash, i.e. whether it is a prefix extension of that layout.
func (s *Schema) DescendsFrom(h Hash) bool {
	for _, ancestor := range s.lineage {
		if ancestor == h {
			return true
		}
	}
	return false
}
