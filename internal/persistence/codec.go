package persistence

import (
	"github.com/vmihailenco/msgpack/v5"
)

// encode/decode wrap msgpack for every BLOB column in trading_schema.sql —
// the same nested-structure convention the teacher uses for cache payloads,
// generalized here to strategy parameters, opportunities, and step logs
// (SPEC_FULL.md's ambient-stack grounding for vmihailenco/msgpack).
func encode(v interface{}) ([]byte, error) {
	return msgpack.Marshal(v)
}

func decode(data []byte, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return msgpack.Unmarshal(data, v)
}
