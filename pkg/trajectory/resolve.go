package trajectory

import (
	"github.com/matzehuels/trek/pkg/errors"
	"github.com/matzehuels/trek/pkg/param"
)

// getOpts carries resolution settings.
type getOpts struct {
	shortcuts bool
	withLinks bool
	runIdx    int
	autoLoad  bool
	autoSet   bool
}

// GetOption configures one resolution call.
type GetOption func(*getOpts)

// WithShortcuts enables or disables shortcut resolution (searching the
// subtree for a uniquely named descendant when a segment has no direct
// match). Enabled by default.
func WithShortcuts(enabled bool) GetOption {
	return func(o *getOpts) { o.shortcuts = enabled }
}

// WithLinks makes link edges visible (or invisible) to resolution.
// Enabled by default; when disabled the resolver behaves as if no links
// existed at all.
func WithLinks(enabled bool) GetOption {
	return func(o *getOpts) { o.withLinks = enabled }
}

// WithRun binds the wildcard segment to the given run index for this call,
// overriding the trajectory's bound run.
func WithRun(idx int) GetOption {
	return func(o *getOpts) { o.runIdx = idx }
}

// WithAutoLoad overrides the trajectory's auto-load setting for this call.
func WithAutoLoad(enabled bool) GetOption {
	return func(o *getOpts) { o.autoLoad = enabled; o.autoSet = true }
}

// Get resolves a dot-separated path below this node.
//
// Each segment is matched against direct children first, then link edges
// (unless links are disabled), then — with shortcuts enabled — against the
// names of all descendants. A shortcut segment matching more than one
// location fails with NOT_UNIQUE_NODE. A segment matching nothing fails
// with NOT_FOUND, or with DATA_NOT_IN_STORAGE when auto-loading was
// enabled and storage had nothing either.
//
// The wildcard segment "$" is substituted with the bound run's formatted
// name; resolution fails if no run is bound.
func (n *Node) Get(path string, options ...GetOption) (*Node, error) {
	o := getOpts{shortcuts: true, withLinks: true, runIdx: -1}
	for _, opt := range options {
		opt(&o)
	}
	if !o.autoSet {
		o.autoLoad = n.traj.autoLoad
	}
	if err := errors.ValidatePath(path); err != nil {
		return nil, err
	}

	cur := n
	for _, seg := range splitPath(path) {
		if seg == WildcardToken {
			name, err := n.traj.wildcardName(o.runIdx)
			if err != nil {
				return nil, err
			}
			seg = name
		}
		next, err := cur.resolveSegment(seg, o)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

// resolveSegment resolves one literal segment below cur.
func (cur *Node) resolveSegment(seg string, o getOpts) (*Node, error) {
	if child, ok := cur.children[seg]; ok {
		return child, nil
	}
	if o.withLinks {
		if target := cur.traj.links.target(cur, seg); target != nil {
			return target, nil
		}
	}
	if o.shortcuts {
		matches := cur.findOccurrences(seg, o.withLinks)
		if len(matches) > 1 {
			return nil, errors.New(errors.ErrCodeNotUniqueNode,
				"%q is ambiguous below %s: %d matches", seg, cur.FullName(), len(matches))
		}
		if len(matches) == 1 {
			return matches[0], nil
		}
	}

	if o.autoLoad && cur.traj.loader != nil {
		if err := cur.traj.loader(cur, seg); err != nil {
			return nil, errors.Wrap(errors.ErrCodeDataNotInStorage, err,
				"%q not in tree and not in storage below %s", seg, cur.FullName())
		}
		if child, ok := cur.children[seg]; ok {
			return child, nil
		}
		if o.withLinks {
			if target := cur.traj.links.target(cur, seg); target != nil {
				return target, nil
			}
		}
		return nil, errors.New(errors.ErrCodeDataNotInStorage,
			"%q not in tree and not in storage below %s", seg, cur.FullName())
	}

	return nil, errors.New(errors.ErrCodeNotFound,
		"%s has no node %q", cur.FullName(), seg)
}

// findOccurrences collects every edge (ownership or link) below cur whose
// name matches seg. Occurrences are counted per edge, so a node reachable
// both directly and through a link counts twice; that makes shortcut
// ambiguity detection see aliases as separate locations. Subtrees are
// entered at most once so cyclic links terminate.
func (cur *Node) findOccurrences(seg string, withLinks bool) []*Node {
	var matches []*Node
	visited := map[*Node]struct{}{cur: {}}

	var walk func(n *Node)
	walk = func(n *Node) {
		for _, name := range sortedNames(n.children) {
			child := n.children[name]
			if name == seg {
				matches = append(matches, child)
			}
			if _, seen := visited[child]; !seen {
				visited[child] = struct{}{}
				walk(child)
			}
		}
		if withLinks {
			links := n.traj.links.targetsOf(n)
			for _, name := range sortedNames(links) {
				target := links[name]
				if name == seg {
					matches = append(matches, target)
				}
				if _, seen := visited[target]; !seen {
					visited[target] = struct{}{}
					walk(target)
				}
			}
		}
	}
	walk(cur)
	return matches
}

// GetAll resolves all distinct nodes matching path below this node. The
// leading segments resolve normally; the final segment collects every
// distinct node of that name in the remaining subtree. Unlike Get, an
// ambiguous final segment is not an error, and a node reachable through
// several aliases is reported once.
func (n *Node) GetAll(path string, options ...GetOption) ([]*Node, error) {
	o := getOpts{shortcuts: true, withLinks: true, runIdx: -1}
	for _, opt := range options {
		opt(&o)
	}
	if err := errors.ValidatePath(path); err != nil {
		return nil, err
	}

	segs := splitPath(path)
	if len(segs) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidPath, "path %q has no segments", path)
	}

	cur := n
	for _, seg := range segs[:len(segs)-1] {
		if seg == WildcardToken {
			name, err := n.traj.wildcardName(o.runIdx)
			if err != nil {
				return nil, err
			}
			seg = name
		}
		next, err := cur.resolveSegment(seg, o)
		if err != nil {
			return nil, err
		}
		cur = next
	}

	last := segs[len(segs)-1]
	if last == WildcardToken {
		name, err := n.traj.wildcardName(o.runIdx)
		if err != nil {
			return nil, err
		}
		last = name
	}

	var matches []*Node
	if !o.shortcuts {
		node, err := cur.resolveSegment(last, o)
		if err != nil {
			return nil, err
		}
		return []*Node{node}, nil
	}
	if child, ok := cur.children[last]; ok {
		matches = append(matches, child)
	} else if o.withLinks {
		if target := cur.traj.links.target(cur, last); target != nil {
			matches = append(matches, target)
		}
	}
	matches = append(matches, cur.findOccurrences(last, o.withLinks)...)

	// Distinct nodes only: aliases collapse.
	seen := make(map[*Node]struct{}, len(matches))
	out := matches[:0]
	for _, m := range matches {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	if len(out) == 0 {
		return nil, errors.New(errors.ErrCodeNotFound, "%s has no node %q", cur.FullName(), last)
	}
	return out, nil
}

// Access resolves path to an explorable leaf and returns its value for
// run n (or its scalar value if the leaf is not explored).
func (n *Node) Access(path string, run int) (any, error) {
	node, err := n.Get(path, WithRun(run))
	if err != nil {
		return nil, err
	}
	if !node.IsLeaf() {
		return nil, errors.New(errors.ErrCodeTypeMismatch, "%s is a group", node.FullName())
	}
	exp, ok := node.Item().(param.Explorable)
	if !ok {
		return nil, errors.New(errors.ErrCodeTypeMismatch,
			"%s does not support run access", node.FullName())
	}
	if p, isParam := exp.(*param.Parameter); isParam && !p.IsExplored() {
		return p.Get(), nil
	}
	return exp.Access(run)
}
