package trajectory

import (
	"iter"
	"strings"

	"github.com/matzehuels/trek/pkg/errors"
	"github.com/matzehuels/trek/pkg/param"
)

// Node is one entry in the ownership tree: either a group (container) or a
// leaf holding an item payload.
//
// Ownership is strictly a tree: every non-root node has exactly one parent
// and sibling names are unique. Link edges are kept separately in the
// trajectory's LinkIndex and never participate in ownership operations.
type Node struct {
	name        string
	parent      *Node
	traj        *Trajectory
	children    map[string]*Node
	item        param.Item
	comment     string
	annotations map[string]string

	// storage bookkeeping
	stored     bool // skeleton has been written at least once
	storedData bool // payload has been written at least once
}

// Name returns the node's name (the last path segment).
func (n *Node) Name() string { return n.name }

// FullName returns the dot-joined path from the root. The root itself has
// an empty full name, so its children have full names equal to their names.
func (n *Node) FullName() string {
	if n.parent == nil {
		return ""
	}
	parent := n.parent.FullName()
	if parent == "" {
		return n.name
	}
	return parent + "." + n.name
}

// Parent returns the owning node, or nil for the root.
func (n *Node) Parent() *Node { return n.parent }

// Trajectory returns the trajectory this node belongs to.
func (n *Node) Trajectory() *Trajectory { return n.traj }

// IsRoot reports whether this is the trajectory root.
func (n *Node) IsRoot() bool { return n.parent == nil }

// IsLeaf reports whether the node holds an item payload.
func (n *Node) IsLeaf() bool { return n.item != nil }

// IsGroup reports whether the node is a container.
func (n *Node) IsGroup() bool { return n.item == nil }

// Item returns the leaf payload, or nil for groups.
func (n *Node) Item() param.Item { return n.item }

// Comment returns the node comment.
func (n *Node) Comment() string { return n.comment }

// SetComment sets the node comment.
func (n *Node) SetComment(comment string) { n.comment = comment }

// Annotation returns a named annotation value.
func (n *Node) Annotation(key string) (string, bool) {
	v, ok := n.annotations[key]
	return v, ok
}

// SetAnnotation sets a named annotation value.
func (n *Node) SetAnnotation(key, value string) {
	if n.annotations == nil {
		n.annotations = make(map[string]string)
	}
	n.annotations[key] = value
}

// Annotations returns a copy of all annotations.
func (n *Node) Annotations() map[string]string {
	out := make(map[string]string, len(n.annotations))
	for k, v := range n.annotations {
		out[k] = v
	}
	return out
}

// Stored reports whether the node skeleton has been written at least once.
func (n *Node) Stored() bool { return n.stored }

// SetStored records skeleton storage state. Called by the storage layer.
func (n *Node) SetStored(stored bool) { n.stored = stored }

// StoredData reports whether the payload has been written at least once.
func (n *Node) StoredData() bool { return n.storedData }

// SetStoredData records payload storage state. Called by the storage layer.
func (n *Node) SetStoredData(stored bool) { n.storedData = stored }

// Child returns a direct child by exact name.
func (n *Node) Child(name string) (*Node, bool) {
	c, ok := n.children[name]
	return c, ok
}

// NumChildren returns the number of direct children.
func (n *Node) NumChildren() int { return len(n.children) }

// ChildNames returns the names of all direct children.
func (n *Node) ChildNames() []string {
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	return names
}

// AddGroup creates (or descends into) a group at the given dot-separated
// path below this node, auto-creating missing intermediate groups.
// Returns the final group node.
//
// The whole path is validated before any mutation: hitting a leaf or a
// link name along the way fails with TYPE_MISMATCH / INVALID_INPUT and
// leaves the tree untouched.
func (n *Node) AddGroup(path string) (*Node, error) {
	return n.addPath(path, nil, false)
}

// AddLeaf creates a leaf holding item at the given path below this node,
// auto-creating missing intermediate groups. Re-adding an existing leaf
// path is an error; use ReplaceLeaf to overwrite.
func (n *Node) AddLeaf(path string, item param.Item) (*Node, error) {
	if item == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "leaf item cannot be nil")
	}
	return n.addPath(path, item, false)
}

// ReplaceLeaf is AddLeaf but allows overwriting an existing leaf at the
// same path. Replacing a group with a leaf is still a TYPE_MISMATCH.
func (n *Node) ReplaceLeaf(path string, item param.Item) (*Node, error) {
	if item == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "leaf item cannot be nil")
	}
	return n.addPath(path, item, true)
}

// addPath walks and creates path below n. item == nil creates a group at
// the end, otherwise a leaf. All validation happens before mutation.
func (n *Node) addPath(path string, item param.Item, replace bool) (*Node, error) {
	if err := errors.ValidatePath(path); err != nil {
		return nil, err
	}
	segs := splitPath(path)
	if len(segs) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidPath, "path %q has no segments", path)
	}
	for i, seg := range segs {
		if seg == WildcardToken {
			name, err := n.traj.wildcardName(-1)
			if err != nil {
				return nil, err
			}
			segs[i] = name
		}
	}

	// Validation pass: walk the existing prefix without mutating.
	cur := n
	idx := 0
	for ; idx < len(segs); idx++ {
		seg := segs[idx]
		child, ok := cur.children[seg]
		if !ok {
			break
		}
		if child.IsLeaf() && idx < len(segs)-1 {
			return nil, errors.New(errors.ErrCodeTypeMismatch,
				"%s is a leaf and cannot contain %s", child.FullName(), seg)
		}
		cur = child
	}

	if idx == len(segs) {
		// Full path already exists.
		last := cur
		if item == nil {
			if last.IsLeaf() {
				return nil, errors.New(errors.ErrCodeTypeMismatch,
					"%s is a leaf, not a group", last.FullName())
			}
			return last, nil
		}
		if !replace {
			return nil, errors.New(errors.ErrCodeInvalidInput,
				"leaf %s already exists", last.FullName())
		}
		if last.IsGroup() {
			return nil, errors.New(errors.ErrCodeTypeMismatch,
				"cannot replace group %s with a leaf", last.FullName())
		}
		last.item = item
		last.storedData = false
		return last, nil
	}

	// Remaining segments will be created: validate them first.
	creationStart := cur
	for i := idx; i < len(segs); i++ {
		if err := errors.ValidateName(segs[i]); err != nil {
			return nil, err
		}
	}
	if creationStart.IsLeaf() {
		return nil, errors.New(errors.ErrCodeTypeMismatch,
			"%s is a leaf and cannot contain children", creationStart.FullName())
	}
	// A new child must not shadow a link name on its parent.
	if n.traj.links.target(creationStart, segs[idx]) != nil {
		return nil, errors.New(errors.ErrCodeInvalidInput,
			"%s already denotes a link on %s", segs[idx], creationStart.FullName())
	}

	// Mutation pass.
	for i := idx; i < len(segs); i++ {
		var it param.Item
		if item != nil && i == len(segs)-1 {
			it = item
		}
		child := &Node{
			name:   segs[i],
			parent: cur,
			traj:   n.traj,
			item:   it,
		}
		if cur.children == nil {
			cur.children = make(map[string]*Node)
		}
		cur.children[segs[i]] = child
		cur = child
	}
	n.traj.markChanged()
	return cur, nil
}

// RemoveOptions controls node removal.
type RemoveOptions struct {
	// Recursive allows removing a non-empty group.
	Recursive bool

	// RemoveLinks also removes links (owned elsewhere) that point into the
	// removed subtree. Without it, removal fails if such links exist so no
	// dangling edges are created.
	RemoveLinks bool
}

// RemoveChild detaches a child (or a link of that name) from this node.
// Links pointing into the removed subtree are removed as well, matching
// the permissive cascade most callers want; use Remove for strict control.
func (n *Node) RemoveChild(name string, recursive bool) error {
	return n.Remove(name, RemoveOptions{Recursive: recursive, RemoveLinks: true})
}

// Remove detaches a child (or a link of that name) from this node.
//
// If name denotes a link edge on this node, only the link is removed and
// the target is untouched. Otherwise the named child is detached; a
// non-empty group requires opts.Recursive. Links owned by removed nodes
// are always dropped; links owned elsewhere but targeting removed nodes
// are dropped only with opts.RemoveLinks, and fail the removal otherwise.
func (n *Node) Remove(name string, opts RemoveOptions) error {
	if n.traj.links.target(n, name) != nil {
		return n.traj.links.removeLink(n, name)
	}

	child, ok := n.children[name]
	if !ok {
		return errors.New(errors.ErrCodeNotFound, "%s has no child %q", n.FullName(), name)
	}
	if child.IsGroup() && len(child.children) > 0 && !opts.Recursive {
		return errors.New(errors.ErrCodeInvalidInput,
			"%s is not empty; pass recursive to remove it", child.FullName())
	}

	// Collect the subtree so link detachment sees every removed node.
	subtree := make(map[*Node]struct{})
	child.collect(subtree)

	inbound := n.traj.links.inboundFromOutside(subtree)
	if len(inbound) > 0 && !opts.RemoveLinks {
		return errors.New(errors.ErrCodeInvalidInput,
			"%s is still the target of %d link(s); pass RemoveLinks to cascade",
			child.FullName(), len(inbound))
	}

	n.traj.links.detachSubtree(subtree)
	delete(n.children, name)
	child.parent = nil
	n.traj.markChanged()
	return nil
}

// collect gathers the node and all descendants into set.
func (n *Node) collect(set map[*Node]struct{}) {
	set[n] = struct{}{}
	for _, c := range n.children {
		c.collect(set)
	}
}

// Contains reports whether path resolves below this node. Shortcut
// resolution applies; withLinks controls whether link edges are visible.
func (n *Node) Contains(path string, withLinks bool) bool {
	_, err := n.Get(path, WithLinks(withLinks))
	return err == nil
}

// IterNodes returns a restartable sequence over the nodes below this node.
//
// With recursive=false only direct children (and link targets, if
// withLinks) are produced. With recursive=true the whole subtree is
// walked depth-first; link targets are entered at most once per
// iteration so cyclic links terminate.
func (n *Node) IterNodes(recursive, withLinks bool) iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		visited := map[*Node]struct{}{n: {}}
		n.iterInto(recursive, withLinks, visited, yield)
	}
}

func (n *Node) iterInto(recursive, withLinks bool, visited map[*Node]struct{}, yield func(*Node) bool) bool {
	for _, name := range sortedNames(n.children) {
		child := n.children[name]
		if !yield(child) {
			return false
		}
		if _, seen := visited[child]; seen {
			continue
		}
		visited[child] = struct{}{}
		if recursive {
			if !child.iterInto(recursive, withLinks, visited, yield) {
				return false
			}
		}
	}
	if withLinks {
		links := n.traj.links.targetsOf(n)
		for _, name := range sortedNames(links) {
			target := links[name]
			if !yield(target) {
				return false
			}
			if _, seen := visited[target]; seen {
				continue
			}
			visited[target] = struct{}{}
			if recursive {
				if !target.iterInto(recursive, withLinks, visited, yield) {
					return false
				}
			}
		}
	}
	return true
}

// splitPath splits a dot path, dropping empty segments (shortcut notation).
func splitPath(path string) []string {
	parts := strings.Split(path, ".")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
