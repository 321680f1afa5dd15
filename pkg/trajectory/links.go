package trajectory

import (
	"sort"

	"github.com/matzehuels/trek/pkg/errors"
)

// LinkRef identifies one link edge: the owning node and the edge name.
type LinkRef struct {
	Owner *Node
	Name  string
}

// LinkIndex holds the non-owning named edges between tree nodes. Links may
// form cycles; they are traversed only during named lookup (when requested)
// and never during ownership operations.
//
// The index keeps a reverse map so removing a node can detect or cascade
// the links that point at it.
type LinkIndex struct {
	byOwner  map[*Node]map[string]*Node
	byTarget map[*Node]map[LinkRef]struct{}
}

func newLinkIndex() *LinkIndex {
	return &LinkIndex{
		byOwner:  make(map[*Node]map[string]*Node),
		byTarget: make(map[*Node]map[LinkRef]struct{}),
	}
}

// AddLink creates a named link edge owner --name--> target.
//
// The name must not collide with a real child or an existing link of the
// owner. The target must be a node of the same trajectory and must not be
// the trajectory root.
func (t *Trajectory) AddLink(owner *Node, name string, target *Node) error {
	if owner == nil || target == nil {
		return errors.New(errors.ErrCodeInvalidInput, "link owner and target must be nodes")
	}
	if err := errors.ValidateName(name); err != nil {
		return err
	}
	if target.traj != t || owner.traj != t {
		return errors.New(errors.ErrCodeInvalidInput,
			"link target must belong to the same trajectory")
	}
	if target.IsRoot() {
		return errors.New(errors.ErrCodeInvalidInput, "cannot link to the trajectory root")
	}
	if owner.IsLeaf() {
		return errors.New(errors.ErrCodeTypeMismatch,
			"%s is a leaf and cannot own links", owner.FullName())
	}
	if _, ok := owner.children[name]; ok {
		return errors.New(errors.ErrCodeInvalidInput,
			"%q already denotes a child of %s", name, owner.FullName())
	}
	if t.links.target(owner, name) != nil {
		return errors.New(errors.ErrCodeInvalidInput,
			"%q already denotes a link on %s", name, owner.FullName())
	}

	t.links.addLink(owner, name, target)
	t.markChanged()
	return nil
}

// RemoveLink removes the named link edge from owner. The target node is
// untouched.
func (t *Trajectory) RemoveLink(owner *Node, name string) error {
	if t.links.target(owner, name) == nil {
		return errors.New(errors.ErrCodeNotFound,
			"%s has no link %q", owner.FullName(), name)
	}
	if err := t.links.removeLink(owner, name); err != nil {
		return err
	}
	t.markChanged()
	return nil
}

// AddLink creates a link owned by this node. See Trajectory.AddLink.
func (n *Node) AddLink(name string, target *Node) error {
	return n.traj.AddLink(n, name, target)
}

// AddLinkTo creates a link named after the target's own name, mirroring
// the common case of aliasing a node under a second location.
func (n *Node) AddLinkTo(target *Node) error {
	if target == nil {
		return errors.New(errors.ErrCodeInvalidInput, "link target must be a node")
	}
	return n.traj.AddLink(n, target.Name(), target)
}

// RemoveLink removes a link owned by this node.
func (n *Node) RemoveLink(name string) error {
	return n.traj.RemoveLink(n, name)
}

// Links returns a copy of the link edges owned by this node.
func (n *Node) Links() map[string]*Node {
	return n.traj.links.targetsOf(n)
}

// LinkedBy returns every (owner, name) edge pointing at this node.
func (n *Node) LinkedBy() []LinkRef {
	return n.traj.links.ownersOf(n)
}

func (ix *LinkIndex) addLink(owner *Node, name string, target *Node) {
	if ix.byOwner[owner] == nil {
		ix.byOwner[owner] = make(map[string]*Node)
	}
	ix.byOwner[owner][name] = target
	if ix.byTarget[target] == nil {
		ix.byTarget[target] = make(map[LinkRef]struct{})
	}
	ix.byTarget[target][LinkRef{Owner: owner, Name: name}] = struct{}{}
}

func (ix *LinkIndex) removeLink(owner *Node, name string) error {
	target := ix.target(owner, name)
	if target == nil {
		return errors.New(errors.ErrCodeNotFound, "no such link %q", name)
	}
	delete(ix.byOwner[owner], name)
	if len(ix.byOwner[owner]) == 0 {
		delete(ix.byOwner, owner)
	}
	delete(ix.byTarget[target], LinkRef{Owner: owner, Name: name})
	if len(ix.byTarget[target]) == 0 {
		delete(ix.byTarget, target)
	}
	return nil
}

// target returns the node owner --name--> points at, or nil.
func (ix *LinkIndex) target(owner *Node, name string) *Node {
	return ix.byOwner[owner][name]
}

// targetsOf returns a copy of all edges owned by owner.
func (ix *LinkIndex) targetsOf(owner *Node) map[string]*Node {
	out := make(map[string]*Node, len(ix.byOwner[owner]))
	for name, target := range ix.byOwner[owner] {
		out[name] = target
	}
	return out
}

// ownersOf returns all edges pointing at target, in deterministic order.
func (ix *LinkIndex) ownersOf(target *Node) []LinkRef {
	refs := make([]LinkRef, 0, len(ix.byTarget[target]))
	for ref := range ix.byTarget[target] {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Owner.FullName() != refs[j].Owner.FullName() {
			return refs[i].Owner.FullName() < refs[j].Owner.FullName()
		}
		return refs[i].Name < refs[j].Name
	})
	return refs
}

// inboundFromOutside returns the links whose target lies inside subtree
// but whose owner does not.
func (ix *LinkIndex) inboundFromOutside(subtree map[*Node]struct{}) []LinkRef {
	var refs []LinkRef
	for target := range subtree {
		for ref := range ix.byTarget[target] {
			if _, inside := subtree[ref.Owner]; !inside {
				refs = append(refs, ref)
			}
		}
	}
	return refs
}

// detachSubtree removes every link owned by or targeting a node in the
// subtree. Used when a subtree is detached from the tree.
func (ix *LinkIndex) detachSubtree(subtree map[*Node]struct{}) {
	for node := range subtree {
		for name := range ix.byOwner[node] {
			_ = ix.removeLink(node, name)
		}
		for ref := range ix.byTarget[node] {
			_ = ix.removeLink(ref.Owner, ref.Name)
		}
	}
}

// sortedNames returns map keys in sorted order for deterministic walks.
func sortedNames(m map[string]*Node) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
