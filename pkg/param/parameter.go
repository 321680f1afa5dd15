package param

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/matzehuels/trek/pkg/errors"
)

// Parameter is a leaf payload holding a single value that can be exploded
// into an entry array during exploration.
//
// Lifecycle: created empty, populated via Set, optionally expanded via
// Explore or AddItems, optionally locked, optionally shrunk back to a
// single entry. Entry 0 is the parameter's default value.
type Parameter struct {
	entries  []any
	explored bool
	locked   bool
}

// NewParameter creates an empty, unlocked parameter.
func NewParameter() *Parameter {
	return &Parameter{}
}

// NewParameterValue creates a parameter already holding a default value.
func NewParameterValue(v any) (*Parameter, error) {
	p := NewParameter()
	if err := p.Set(v); err != nil {
		return nil, err
	}
	return p, nil
}

// Kind returns "parameter".
func (p *Parameter) Kind() string { return KindParameter }

// Set assigns the parameter's default value (entry 0).
// Fails if the parameter is locked or already explored.
func (p *Parameter) Set(v any) error {
	if p.locked {
		return errors.New(errors.ErrCodeParameterLocked, "parameter is locked")
	}
	if p.explored {
		return errors.New(errors.ErrCodeTypeMismatch,
			"cannot assign a scalar to an explored parameter; use ChangeValuesInArray")
	}
	if err := checkSupported(v); err != nil {
		return err
	}
	if len(p.entries) == 0 {
		p.entries = []any{v}
		return nil
	}
	if err := sameType(p.entries[0], v); err != nil {
		return err
	}
	p.entries[0] = v
	return nil
}

// Get returns the default value (entry 0), or nil if the parameter is unset.
func (p *Parameter) Get() any {
	if len(p.entries) == 0 {
		return nil
	}
	return p.entries[0]
}

// Len returns the number of entries: 0 if unset, 1 for a scalar,
// N for an explored parameter.
func (p *Parameter) Len() int { return len(p.entries) }

// IsExplored reports whether the parameter carries an entry array.
func (p *Parameter) IsExplored() bool { return p.explored }

// IsLocked reports whether the parameter rejects mutation.
func (p *Parameter) IsLocked() bool { return p.locked }

// Lock makes the parameter immutable. Locking is not reversed implicitly;
// callers must Unlock explicitly.
func (p *Parameter) Lock() { p.locked = true }

// Unlock makes the parameter mutable again.
func (p *Parameter) Unlock() { p.locked = false }

// IsEmpty reports whether the parameter holds no value at all.
func (p *Parameter) IsEmpty() bool { return len(p.entries) == 0 }

// Empty discards all entries. Fails if the parameter is locked.
func (p *Parameter) Empty() error {
	if p.locked {
		return errors.New(errors.ErrCodeParameterLocked, "parameter is locked")
	}
	p.entries = nil
	p.explored = false
	return nil
}

// Explore expands the parameter into an entry array with one entry per run.
//
// Exploration is not a user edit, so a locked parameter may still be an
// exploration target. If the parameter already holds a default value, the
// new entries must be of the same type.
func (p *Parameter) Explore(values []any) error {
	if len(values) == 0 {
		return errors.New(errors.ErrCodeInvalidInput, "explore requires at least one value")
	}
	if p.explored {
		return errors.New(errors.ErrCodeTypeMismatch, "parameter is already explored")
	}
	ref := p.Get()
	for _, v := range values {
		if err := checkSupported(v); err != nil {
			return err
		}
		if ref != nil {
			if err := sameType(ref, v); err != nil {
				return err
			}
		}
	}
	p.entries = append([]any(nil), values...)
	p.explored = true
	return nil
}

// Access returns the entry for run n.
func (p *Parameter) Access(n int) (any, error) {
	if n < 0 || n >= len(p.entries) {
		return nil, errors.New(errors.ErrCodeInvalidInput,
			"entry index %d out of range [0,%d)", n, len(p.entries))
	}
	return p.entries[n], nil
}

// AddItems appends entries to an explored parameter.
// Array-only operation: fails with PARAMETER_NOT_ARRAY on a scalar.
func (p *Parameter) AddItems(values []any) error {
	if !p.explored {
		return errors.New(errors.ErrCodeParameterNotArray, "parameter is not an array")
	}
	if p.locked {
		return errors.New(errors.ErrCodeParameterLocked, "parameter is locked")
	}
	ref := p.Get()
	for _, v := range values {
		if err := checkSupported(v); err != nil {
			return err
		}
		if ref != nil {
			if err := sameType(ref, v); err != nil {
				return err
			}
		}
	}
	p.entries = append(p.entries, values...)
	return nil
}

// ChangeValuesInArray replaces entries at the given positions.
// Array-only operation: fails with PARAMETER_NOT_ARRAY on a scalar.
func (p *Parameter) ChangeValuesInArray(positions []int, values []any) error {
	if !p.explored {
		return errors.New(errors.ErrCodeParameterNotArray, "parameter is not an array")
	}
	if p.locked {
		return errors.New(errors.ErrCodeParameterLocked, "parameter is locked")
	}
	if len(positions) != len(values) {
		return errors.New(errors.ErrCodeLengthMismatch,
			"%d positions but %d values", len(positions), len(values))
	}
	for i, pos := range positions {
		if pos < 0 || pos >= len(p.entries) {
			return errors.New(errors.ErrCodeInvalidInput,
				"position %d out of range [0,%d)", pos, len(p.entries))
		}
		if err := sameType(p.entries[pos], values[i]); err != nil {
			return err
		}
	}
	for i, pos := range positions {
		p.entries[pos] = values[i]
	}
	return nil
}

// Shrink collapses the entry array back to a single entry (entry 0).
// Fails if the parameter is locked or not explored.
func (p *Parameter) Shrink() error {
	if p.locked {
		return errors.New(errors.ErrCodeParameterLocked, "parameter is locked")
	}
	if !p.explored {
		return errors.New(errors.ErrCodeParameterNotArray, "parameter is not an array")
	}
	p.entries = p.entries[:1]
	p.explored = false
	return nil
}

// Store returns the serializable representation of the parameter.
func (p *Parameter) Store() (Payload, error) {
	entries, err := encodeValue(p.entries)
	if err != nil {
		return nil, err
	}
	explored, _ := json.Marshal(p.explored)
	return Payload{
		"entries":  entries,
		"explored": explored,
	}, nil
}

// Load restores the parameter from a stored representation.
func (p *Parameter) Load(payload Payload) error {
	entries, ok := payload["entries"]
	if !ok {
		return errors.New(errors.ErrCodeStorage, "parameter payload missing entries")
	}
	var vals []any
	if err := json.Unmarshal(entries, &vals); err != nil {
		return errors.Wrap(errors.ErrCodeStorage, err, "corrupt parameter entries")
	}
	p.entries = vals
	p.explored = false
	if raw, ok := payload["explored"]; ok {
		if err := json.Unmarshal(raw, &p.explored); err != nil {
			return errors.Wrap(errors.ErrCodeStorage, err, "corrupt explored flag")
		}
	}
	return nil
}

// ToDict returns a plain map view of the parameter's contents.
func (p *Parameter) ToDict() map[string]any {
	return map[string]any{
		"entries":  append([]any(nil), p.entries...),
		"explored": p.explored,
		"locked":   p.locked,
	}
}

// checkSupported rejects values that cannot round-trip through JSON.
func checkSupported(v any) error {
	if v == nil {
		return errors.New(errors.ErrCodeInvalidInput, "nil is not a valid parameter value")
	}
	if _, err := json.Marshal(v); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidInput, err,
			"unsupported value of type %T", v)
	}
	return nil
}

// sameType requires two values to share a JSON-compatible kind, so an
// exploration cannot silently change a parameter's type across runs.
func sameType(ref, v any) error {
	if jsonKind(ref) != jsonKind(v) {
		return errors.New(errors.ErrCodeTypeMismatch,
			"value type %T does not match existing type %T", v, ref)
	}
	return nil
}

// jsonKind maps a value to the JSON type it serializes as.
func jsonKind(v any) string {
	switch v.(type) {
	case bool:
		return "bool"
	case string:
		return "string"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64,
		float32, float64, json.Number:
		return "number"
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Map, reflect.Struct:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}
