package trajectory

import (
	"sort"

	"github.com/matzehuels/trek/pkg/errors"
	"github.com/matzehuels/trek/pkg/param"
)

// Explore expands the given parameter value lists into the run dimension.
//
// Every sequence must have the same length L; run i is defined by
// assigning bindings[name][i] to the leaf resolved from name. The first
// Explore call creates L run records; subsequent calls must use the same
// L or fail with LENGTH_MISMATCH.
//
// Exploration is not a user edit: locked leaves may still be targets.
// All bindings are validated before any leaf is mutated.
func (t *Trajectory) Explore(bindings map[string][]any) error {
	if len(bindings) == 0 {
		return errors.New(errors.ErrCodeInvalidInput, "explore requires at least one binding")
	}

	names := make([]string, 0, len(bindings))
	for name := range bindings {
		names = append(names, name)
	}
	sort.Strings(names)

	length := len(bindings[names[0]])
	if length == 0 {
		return errors.New(errors.ErrCodeInvalidInput,
			"binding %q has no values", names[0])
	}
	for _, name := range names {
		if len(bindings[name]) != length {
			return errors.New(errors.ErrCodeLengthMismatch,
				"binding %q has %d values, %q has %d",
				names[0], length, name, len(bindings[name]))
		}
	}
	if len(t.runs) > 0 && length != len(t.runs) {
		return errors.New(errors.ErrCodeLengthMismatch,
			"trajectory already has %d runs; explore called with %d values",
			len(t.runs), length)
	}

	// Resolve every target before mutating anything.
	leaves := make([]*param.Parameter, len(names))
	for i, name := range names {
		node, err := t.Get(name)
		if err != nil {
			return errors.Wrap(errors.GetCode(err), err, "exploration target %q", name)
		}
		if !node.IsLeaf() {
			return errors.New(errors.ErrCodeTypeMismatch,
				"exploration target %s is a group", node.FullName())
		}
		p, ok := node.Item().(*param.Parameter)
		if !ok {
			return errors.New(errors.ErrCodeTypeMismatch,
				"exploration target %s does not hold a parameter", node.FullName())
		}
		if p.IsExplored() {
			return errors.New(errors.ErrCodeTypeMismatch,
				"%s is already explored", node.FullName())
		}
		leaves[i] = p
	}

	for i, name := range names {
		if err := leaves[i].Explore(bindings[name]); err != nil {
			return errors.Wrap(errors.GetCode(err), err, "explore %q", name)
		}
	}

	if len(t.runs) == 0 {
		t.runs = make([]RunRecord, length)
		for i := range t.runs {
			t.runs[i] = RunRecord{Index: i, Name: FormatRunName(i)}
		}
	}
	t.markChanged()
	t.logger.Debug("explored parameters", "parameters", len(names), "runs", length)
	return nil
}

// Dimension is one independent axis of a cartesian exploration.
type Dimension struct {
	Name   string
	Values []any
}

// Cartesian computes the full cross product of independent dimensions and
// flattens it into equal-length bindings for Explore. The first dimension
// varies slowest, the last fastest (lexicographic product order), so the
// total run count is the product of the dimension lengths.
func Cartesian(dims []Dimension) (map[string][]any, error) {
	if len(dims) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "cartesian requires at least one dimension")
	}
	total := 1
	for _, d := range dims {
		if len(d.Values) == 0 {
			return nil, errors.New(errors.ErrCodeInvalidInput,
				"dimension %q has no values", d.Name)
		}
		total *= len(d.Values)
	}

	out := make(map[string][]any, len(dims))
	repeat := total
	for _, d := range dims {
		repeat /= len(d.Values)
		seq := make([]any, 0, total)
		for len(seq) < total {
			for _, v := range d.Values {
				for r := 0; r < repeat; r++ {
					seq = append(seq, v)
				}
			}
		}
		out[d.Name] = seq
	}
	return out, nil
}

// ExploreCartesian is a convenience wrapper: cross-product the dimensions
// and explore the flattened bindings.
func (t *Trajectory) ExploreCartesian(dims []Dimension) error {
	bindings, err := Cartesian(dims)
	if err != nil {
		return err
	}
	return t.Explore(bindings)
}
