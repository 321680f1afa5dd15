// Package param implements the leaf payloads held by trajectory trees.
//
// A leaf node owns exactly one Item. Two implementations are provided:
//   - Parameter: a typed value that can be exploded into an entry array
//     during exploration, with one entry per run
//   - Result: a bag of named fields produced by a run
//
// Items serialize to a Payload (named JSON documents) so the storage layer
// never inspects payload internals beyond this contract.
package param

import (
	"encoding/json"

	"github.com/matzehuels/trek/pkg/errors"
)

// Item kinds used for reconstruction on load.
const (
	KindParameter = "parameter"
	KindResult    = "result"
)

// Payload is the serializable representation of an item: named JSON
// documents. The storage layer treats field contents as opaque.
type Payload map[string]json.RawMessage

// Item is the contract every leaf payload must satisfy.
//
// The storage coordinator only ever calls these methods; it never reaches
// into implementation internals.
type Item interface {
	// Kind returns the registered kind name ("parameter", "result").
	Kind() string

	// Store returns the serializable representation of the item.
	Store() (Payload, error)

	// Load restores the item from a stored representation.
	Load(Payload) error

	// IsLocked reports whether the item rejects mutation.
	IsLocked() bool

	// Lock makes the item immutable until Unlock is called.
	Lock()

	// IsEmpty reports whether the item holds no data.
	IsEmpty() bool

	// ToDict returns a plain map view of the item's contents.
	ToDict() map[string]any
}

// Explorable is implemented by items that can fan out into one entry per
// run. Only Explorable leaves may be exploration targets.
type Explorable interface {
	Item

	// Explore expands the item into an entry array with one entry per run.
	Explore(values []any) error

	// Access returns the entry for run n.
	Access(n int) (any, error)

	// Len returns the number of entries (1 for a scalar, 0 if unset).
	Len() int

	// Shrink collapses the entry array back to a single entry.
	Shrink() error
}

// New constructs an empty item of the given kind.
// Unknown kinds return an UNSUPPORTED error.
func New(kind string) (Item, error) {
	switch kind {
	case KindParameter:
		return NewParameter(), nil
	case KindResult:
		return NewResult(), nil
	}
	return nil, errors.New(errors.ErrCodeUnsupported, "unknown item kind %q", kind)
}

// encodeValue marshals a single value into a JSON document.
func encodeValue(v any) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "value is not serializable")
	}
	return data, nil
}

// decodeValue unmarshals a JSON document into a generic value.
func decodeValue(data json.RawMessage) (any, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorage, err, "corrupt payload field")
	}
	return v, nil
}
