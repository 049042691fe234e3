package entitystore

import (
	"encoding/json"
	"time"
)

// Operation identifies what a revision did to an entity.
type Operation string

const (
	OpCreate Operation = "create"
	OpModify Operation = "modify"
	OpDelete Operation = "delete"
)

// Record is the serialized form of one revision of an entity, the value
// stored at key Identifier⧺Revision in a type's main table.
type Record struct {
	Revision   uint64         `json:"revision"`
	Operation  Operation      `json:"operation"`
	Properties map[string]any `json:"properties"`
	Changed    []string       `json:"changed"`
	WrittenAt  time.Time      `json:"writtenAt"`
}

// IsTombstone reports whether this record represents a delete.
func (r Record) IsTombstone() bool { return r.Operation == OpDelete }

func encodeRecord(r Record) ([]byte, error) { return json.Marshal(r) }

func decodeRecord(b []byte) (Record, error) {
	var r Record
	err := json.Unmarshal(b, &r)
	return r, err
}
