package param

import (
	"sort"

	"github.com/matzehuels/trek/pkg/errors"
)

// Result is a leaf payload holding named fields produced by a run.
// Unlike Parameter it has no entry array; each field is an independent
// value addressed by name.
type Result struct {
	fields map[string]any
	locked bool
}

// NewResult creates an empty result.
func NewResult() *Result {
	return &Result{fields: make(map[string]any)}
}

// NewResultFields creates a result pre-populated with the given fields.
func NewResultFields(fields map[string]any) (*Result, error) {
	r := NewResult()
	for name, v := range fields {
		if err := r.Set(name, v); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Kind returns "result".
func (r *Result) Kind() string { return KindResult }

// Set assigns a named field. Fails if the result is locked.
func (r *Result) Set(name string, v any) error {
	if r.locked {
		return errors.New(errors.ErrCodeParameterLocked, "result is locked")
	}
	if err := errors.ValidateName(name); err != nil {
		return err
	}
	if err := checkSupported(v); err != nil {
		return err
	}
	r.fields[name] = v
	return nil
}

// Get returns a named field, or nil if absent.
func (r *Result) Get(name string) any { return r.fields[name] }

// Has reports whether the field exists.
func (r *Result) Has(name string) bool {
	_, ok := r.fields[name]
	return ok
}

// Delete removes a named field. Fails if the result is locked.
func (r *Result) Delete(name string) error {
	if r.locked {
		return errors.New(errors.ErrCodeParameterLocked, "result is locked")
	}
	delete(r.fields, name)
	return nil
}

// Fields returns the field names in sorted order.
func (r *Result) Fields() []string {
	names := make([]string, 0, len(r.fields))
	for name := range r.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsLocked reports whether the result rejects mutation.
func (r *Result) IsLocked() bool { return r.locked }

// Lock makes the result immutable.
func (r *Result) Lock() { r.locked = true }

// Unlock makes the result mutable again.
func (r *Result) Unlock() { r.locked = false }

// IsEmpty reports whether the result has no fields.
func (r *Result) IsEmpty() bool { return len(r.fields) == 0 }

// Empty discards all fields. Fails if the result is locked.
func (r *Result) Empty() error {
	if r.locked {
		return errors.New(errors.ErrCodeParameterLocked, "result is locked")
	}
	r.fields = make(map[string]any)
	return nil
}

// Store returns one payload document per field.
func (r *Result) Store() (Payload, error) {
	payload := make(Payload, len(r.fields))
	for name, v := range r.fields {
		data, err := encodeValue(v)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "field %s", name)
		}
		payload[name] = data
	}
	return payload, nil
}

// Load restores fields from a stored representation, replacing any
// current contents.
func (r *Result) Load(payload Payload) error {
	fields := make(map[string]any, len(payload))
	for name, data := range payload {
		v, err := decodeValue(data)
		if err != nil {
			return errors.Wrap(errors.ErrCodeStorage, err, "field %s", name)
		}
		fields[name] = v
	}
	r.fields = fields
	return nil
}

// ToDict returns a copy of the result's fields.
func (r *Result) ToDict() map[string]any {
	out := make(map[string]any, len(r.fields))
	for name, v := range r.fields {
		out[name] = v
	}
	return out
}
