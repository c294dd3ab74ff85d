package record

import (
	"encoding/hex"
	"fmt"
)

// Snapshot is a serializable copy of a store's durable state, tagged with
// the layout hash it was taken under. Snapshots restore only into a store
// whose bound schema is the same layout or a prefix extension of it.
type Snapshot struct {
	Generation uint64                        `json:"generation"`
	SchemaHash string                        `json:"schema_hash"`
	Uints      map[string]uint64             `json:"uints,omitempty"`
	Bools      map[string]bool               `json:"bools,omitempty"`
	Strings    map[string]string             `json:"strings,omitempty"`
	Amounts    map[string]map[string]int64   `json:"amounts,omitempty"`
	Times      map[string]map[string]int64   `json:"times,omitempty"`
	Flags      map[string]map[string]bool    `json:"flags,omitempty"`
	Requests   map[string]map[string]Request `json:"requests,omitempty"`
}

// Snapshot copies the store's current state.
func (s *Store) Snapshot() Snapshot {
	hash := s.schema.Hash()
	return Snapshot{
		Generation: s.schema.Generation(),
		SchemaHash: hex.EncodeToString(hash[:]),
		Uints:      copyMap(s.uints),
		Bools:      copyMap(s.bools),
		Strings:    copyMap(s.strings),
		Amounts:    copyNested(s.amounts),
		Times:      copyNested(s.times),
		Flags:      copyNested(s.flags),
		Requests:   copyNested(s.requests),
	}
}

// Restore replaces the store's state with the snapshot's. The snapshot must
// have been taken under the bound schema's lineage; restoring state written
// under an unrelated or later layout is refused.
func (s *Store) Restore(snap Snapshot) error {
	if s.txn {
		return fmt.Errorf("record: restore during transaction")
	}
	taken, err := parseHash(snap.SchemaHash)
	if err != nil {
		return fmt.Errorf("record: snapshot hash: %w", err)
	}
	if !s.schema.DescendsFrom(taken) {
		return fmt.Errorf("record: snapshot layout %s not in bound schema lineage", snap.SchemaHash)
	}
	s.uints = copyMap(snap.Uints)
	s.bools = copyMap(snap.Bools)
	s.strings = copyMap(snap.Strings)
	s.amounts = copyNested(snap.Amounts)
	s.times = copyNested(snap.Times)
	s.flags = copyNested(snap.Flags)
	s.requests = copyNested(snap.Requests)
	return nil
}

func parseHash(s string) (Hash, error) {
	var h Hash
	raw, err := hex.DecodeString(s)
	if err != nil {
		return h, err
	}
	if len(raw) != len(h) {
		return h, fmt.Errorf("bad length %d", len(raw))
	}
	copy(h[:], raw)
	return h, nil
}

func copyMap[V any](in map[string]V) map[string]V {
	if len(in) == 0 {
		return map[string]V{}
	}
	out := make(map[string]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyNested[V any](in map[string]map[string]V) map[string]map[string]V {
	out := make(map[string]map[string]V, len(in))
	for k, v := range in {
		out[k] = copyMap(v)
	}
	return out
}
