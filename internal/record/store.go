package record

import (
	"fmt"

	"github.com/R3E-Network/vault_layer/internal/errors"
)

// Request is a pending two-phase withdrawal request. A zero Amount means no
// live request.
type Request struct {
	Amount      int64 `json:"amount"`
	RequestTime int64 `json:"request_time"`
}

// Store holds the durable vault state for one storage instance. It is
// allocated once against a base schema and only ever rebound to prefix
// extensions of that layout; values survive every rebind untouched.
//
// Execution is single-writer by contract: the forwarding layer serializes
// external operations, so the store does not lock. The busy latch exists for
// the one hazard that serialization does not cover, reentrant self-invocation
// while an operation is mid-flight in an external ledger call.
type Store struct {
	schema *Schema
	busy   bool

	uints    map[string]uint64
	bools    map[string]bool
	strings  map[string]string
	amounts  map[string]map[string]int64
	times    map[string]map[string]int64
	flags    map[string]map[string]bool
	requests map[string]map[string]Request

	undo []func() // active transaction's undo log; nil when no transaction
	txn  bool
}

// New allocates a store bound to the given base schema, all fields zero.
func New(schema *Schema) *Store {
	return &Store{
		schema:   schema,
		uints:    make(map[string]uint64),
		bools:    make(map[string]bool),
		strings:  make(map[string]string),
		amounts:  make(map[string]map[string]int64),
		times:    make(map[string]map[string]int64),
		flags:    make(map[string]map[string]bool),
		requests: make(map[string]map[string]Request),
	}
}

// Schema returns the currently bound layout.
func (s *Store) Schema() *Schema { return s.schema }

// Bind rebinds the store to a later generation's schema. The candidate must
// descend from the currently bound layout and keep total capacity constant;
// anything else is a layout violation and is refused.
func (s *Store) Bind(schema *Schema) error {
	if schema == nil {
		return fmt.Errorf("record: nil schema")
	}
	if !schema.DescendsFrom(s.schema.Hash()) {
		return fmt.Errorf("record: schema %s is not a prefix extension of bound layout %s",
			schema.Hash(), s.schema.Hash())
	}
	if schema.Capacity() != s.schema.Capacity() {
		return fmt.Errorf("record: layout capacity changed from %d to %d",
			s.schema.Capacity(), schema.Capacity())
	}
	s.schema = schema
	return nil
}

// Acquire takes the reentrancy latch. It fails when the latch is already
// held, which means a mutating operation re-entered while another was
// mid-flight.
func (s *Store) Acquire() error {
	if s.busy {
		return errors.Reentrant("operation already in progress")
	}
	s.busy = true
	return nil
}

// Release drops the reentrancy latch. Safe to call via defer on every exit
// path.
func (s *Store) Release() { s.busy = false }

// --- Transactions -----------------------------------------------------------

// Txn is an undo log over store mutations. Rollback restores every field to
// its value at Begin; Commit discards the log. Exactly one of the two must
// be called, and transactions do not nest.
type Txn struct {
	s    *Store
	done bool
}

// Begin starts recording mutations for all-or-nothing semantics.
func (s *Store) Begin() *Txn {
	if s.txn {
		panic("record: nested transaction")
	}
	s.txn = true
	s.undo = s.undo[:0]
	return &Txn{s: s}
}

// Commit makes the recorded mutations permanent.
func (t *Txn) Commit() {
	if t.done {
		return
	}
	t.done = true
	t.s.txn = false
	t.s.undo = t.s.undo[:0]
}

// Rollback restores the store to its state at Begin. Safe to call after
// Commit, where it does nothing, so it can sit in a defer.
func (t *Txn) Rollback() {
	if t.done {
		return
	}
	t.done = true
	for i := len(t.s.undo) - 1; i >= 0; i-- {
		t.s.undo[i]()
	}
	t.s.txn = false
	t.s.undo = t.s.undo[:0]
}

func (s *Store) record(undo func()) {
	if s.txn {
		s.undo = append(s.undo, undo)
	}
}

// --- Typed accessors --------------------------------------------------------
//
// Accessing a field that is not part of the bound schema, or with the wrong
// kind, panics: it is a layout violation by the logic module, the class of
// bug Bind exists to make impossible, never a runtime condition.

func (s *Store) mustKind(name string, want Kind) {
	got, ok := s.schema.FieldKind(name)
	if !ok {
		panic(fmt.Sprintf("record: field %q not in generation %d layout", name, s.schema.Generation()))
	}
	if got != want {
		panic(fmt.Sprintf("record: field %q is %s, accessed as %s", name, got, want))
	}
}

// Uint reads a uint64 scalar.
func (s *Store) Uint(name string) uint64 {
	s.mustKind(name, KindUint64)
	return s.uints[name]
}

// SetUint writes a uint64 scalar.
func (s *Store) SetUint(name string, v uint64) {
	s.mustKind(name, KindUint64)
	prev, had := s.uints[name]
	s.record(func() { restoreScalar(s.uints, name, prev, had) })
	s.uints[name] = v
}

// Bool reads a bool scalar.
func (s *Store) Bool(name string) bool {
	s.mustKind(name, KindBool)
	return s.bools[name]
}

// SetBool writes a bool scalar.
func (s *Store) SetBool(name string, v bool) {
	s.mustKind(name, KindBool)
	prev, had := s.bools[name]
	s.record(func() { restoreScalar(s.bools, name, prev, had) })
	s.bools[name] = v
}

// String reads a string scalar.
func (s *Store) String(name string) string {
	s.mustKind(name, KindString)
	return s.strings[name]
}

// SetString writes a string scalar.
func (s *Store) SetString(name string, v string) {
	s.mustKind(name, KindString)
	prev, had := s.strings[name]
	s.record(func() { restoreScalar(s.strings, name, prev, had) })
	s.strings[name] = v
}

// Amount reads one key of an amount space. Missing keys read as zero.
func (s *Store) Amount(name, key string) int64 {
	s.mustKind(name, KindAmountMap)
	return s.amounts[name][key]
}

// SetAmount writes one key of an amount space.
func (s *Store) SetAmount(name, key string, v int64) {
	s.mustKind(name, KindAmountMap)
	m := s.amounts[name]
	if m == nil {
		m = make(map[string]int64)
		s.amounts[name] = m
	}
	prev, had := m[key]
	s.record(func() { restoreScalar(m, key, prev, had) })
	m[key] = v
}

// SumAmounts folds an amount space. Used by invariant checks.
func (s *Store) SumAmounts(name string) int64 {
	s.mustKind(name, KindAmountMap)
	var sum int64
	for _, v := range s.amounts[name] {
		sum += v
	}
	return sum
}

// AmountKeys returns the keys with entries in an amount space, including
// entries at zero.
func (s *Store) AmountKeys(name string) []string {
	s.mustKind(name, KindAmountMap)
	keys := make([]string, 0, len(s.amounts[name]))
	for k := range s.amounts[name] {
		keys = append(keys, k)
	}
	return keys
}

// Time reads one key of a time space. Zero means never set.
func (s *Store) Time(name, key string) int64 {
	s.mustKind(name, KindTimeMap)
	return s.times[name][key]
}

// SetTime writes one key of a time space.
func (s *Store) SetTime(name, key string, v int64) {
	s.mustKind(name, KindTimeMap)
	m := s.times[name]
	if m == nil {
		m = make(map[string]int64)
		s.times[name] = m
	}
	prev, had := m[key]
	s.record(func() { restoreScalar(m, key, prev, had) })
	m[key] = v
}

// Flag reads one key of a flag space.
func (s *Store) Flag(name, key string) bool {
	s.mustKind(name, KindFlagMap)
	return s.flags[name][key]
}

// SetFlag writes one key of a flag space.
func (s *Store) SetFlag(name, key string, v bool) {
	s.mustKind(name, KindFlagMap)
	m := s.flags[name]
	if m == nil {
		m = make(map[string]bool)
		s.flags[name] = m
	}
	prev, had := m[key]
	s.record(func() { restoreScalar(m, key, prev, had) })
	m[key] = v
}

// Request reads one key of a request space. A zero-amount request means no
// live request.
func (s *Store) Request(name, key string) Request {
	s.mustKind(name, KindRequestMap)
	return s.requests[name][key]
}

// SetRequest writes one key of a request space. Writing over a live request
// replaces it.
func (s *Store) SetRequest(name, key string, v Request) {
	s.mustKind(name, KindRequestMap)
	m := s.requests[name]
	if m == nil {
		m = make(map[string]Request)
		s.requests[name] = m
	}
	prev, had := m[key]
	s.record(func() { restoreScalar(m, key, prev, had) })
	m[key] = v
}

func restoreScalar[V any](m map[string]V, key string, prev V, had bool) {
	if had {
		m[key] = prev
	} else {
		delete(m, key)
	}
}
