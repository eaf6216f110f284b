// Package cache provides mirrorm.Cache implementations used by models to
// serve primary-key lookups: an in-process Memory cache and a Redis cache.
// Records are stored msgpack-encoded.
package cache

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/syssam/mirrorm"
)

// entry is the wire form of a Record. Keys and values are kept in two
// arrays to preserve column order.
type entry struct {
	Keys   []string `msgpack:"k"`
	Values []any    `msgpack:"v"`
}

// EncodeRecord encodes r with msgpack.
func EncodeRecord(r *mirrorm.Record) ([]byte, error) {
	b, err := msgpack.Marshal(&entry{Keys: r.Keys(), Values: r.Values()})
	if err != nil {
		return nil, fmt.Errorf("mirrorm: encode record: %w", err)
	}
	return b, nil
}

// DecodeRecord decodes a Record encoded by EncodeRecord. Decoded values
// follow the Record coercion rules, so integers come back as int64 and
// binary strings as string.
func DecodeRecord(b []byte) (*mirrorm.Record, error) {
	var e entry
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	dec.UseLooseInterfaceDecoding(true)
	if err := dec.Decode(&e); err != nil {
		return nil, fmt.Errorf("mirrorm: decode record: %w", err)
	}
	if len(e.Keys) != len(e.Values) {
		return nil, fmt.Errorf("mirrorm: decode record: %d keys for %d values", len(e.Keys), len(e.Values))
	}
	return mirrorm.RecordOf(e.Keys, e.Values), nil
}
