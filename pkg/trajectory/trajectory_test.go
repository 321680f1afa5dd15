package trajectory

import (
	"testing"

	"github.com/matzehuels/trek/pkg/errors"
	"github.com/matzehuels/trek/pkg/param"
)

func newTraj(t *testing.T) *Trajectory {
	t.Helper()
	traj, err := New("test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return traj
}

func addParam(t *testing.T, traj *Trajectory, path string, v any) *Node {
	t.Helper()
	p, err := param.NewParameterValue(v)
	if err != nil {
		t.Fatalf("NewParameterValue: %v", err)
	}
	node, err := traj.Root().AddLeaf(path, p)
	if err != nil {
		t.Fatalf("AddLeaf(%s): %v", path, err)
	}
	return node
}

func TestAddGroupAutoCreatesIntermediates(t *testing.T) {
	traj := newTraj(t)

	node, err := traj.Root().AddGroup("a.b.c")
	if err != nil {
		t.Fatalf("AddGroup: %v", err)
	}
	if node.FullName() != "a.b.c" {
		t.Errorf("FullName = %s, want a.b.c", node.FullName())
	}

	// Resolution returns the same instance until removal.
	got, err := traj.Get("a.b.c")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != node {
		t.Error("Get should return the same node instance")
	}

	// Re-adding the group path is idempotent.
	again, err := traj.Root().AddGroup("a.b.c")
	if err != nil || again != node {
		t.Errorf("re-AddGroup: %v, same=%v", err, again == node)
	}
}

func TestAddLeafErrors(t *testing.T) {
	traj := newTraj(t)
	addParam(t, traj, "x.y", 1)

	// Re-adding an existing leaf path is an error.
	p, _ := param.NewParameterValue(2)
	if _, err := traj.Root().AddLeaf("x.y", p); err == nil {
		t.Error("re-adding leaf should fail")
	}

	// ReplaceLeaf overwrites.
	if _, err := traj.Root().ReplaceLeaf("x.y", p); err != nil {
		t.Errorf("ReplaceLeaf: %v", err)
	}

	// Children under a leaf fail with TYPE_MISMATCH before any mutation.
	if _, err := traj.Root().AddGroup("x.y.z"); !errors.Is(err, errors.ErrCodeTypeMismatch) {
		t.Errorf("group under leaf: got %v, want TYPE_MISMATCH", err)
	}
	if traj.Contains("z") {
		t.Error("failed add must not leave partial nodes behind")
	}

	// Replacing a group with a leaf is a type error.
	if _, err := traj.Root().ReplaceLeaf("x", p); !errors.Is(err, errors.ErrCodeTypeMismatch) {
		t.Errorf("replace group with leaf: got %v, want TYPE_MISMATCH", err)
	}
}

func TestShortcutResolution(t *testing.T) {
	traj := newTraj(t)
	leaf := addParam(t, traj, "parameters.deep.nested.x", 7)

	// Unique descendant resolves from anywhere above it.
	got, err := traj.Get("x")
	if err != nil {
		t.Fatalf("shortcut Get(x): %v", err)
	}
	if got != leaf {
		t.Error("shortcut should find the unique descendant")
	}

	// A second node of the same name makes the shortcut ambiguous.
	addParam(t, traj, "other.x", 8)
	if _, err := traj.Get("x"); !errors.Is(err, errors.ErrCodeNotUniqueNode) {
		t.Errorf("ambiguous shortcut: got %v, want NOT_UNIQUE_NODE", err)
	}

	// Exact paths keep working.
	if _, err := traj.Get("parameters.deep.nested.x"); err != nil {
		t.Errorf("exact path: %v", err)
	}

	// Disabling shortcuts makes partial paths fail.
	if _, err := traj.Get("nested.x", WithShortcuts(false)); !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("no-shortcut partial path: got %v, want NOT_FOUND", err)
	}

	// Unknown names miss with NOT_FOUND.
	if _, err := traj.Get("nope"); !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("missing name: got %v, want NOT_FOUND", err)
	}
}

func TestLinkCycles(t *testing.T) {
	traj := newTraj(t)
	a, _ := traj.Root().AddGroup("a")
	b, _ := traj.Root().AddGroup("b")

	if err := a.AddLink("c1", b); err != nil {
		t.Fatalf("AddLink: %v", err)
	}
	if err := b.AddLink("c2", a); err != nil {
		t.Fatalf("AddLink: %v", err)
	}

	// Cyclic traversal: a.c1.c2 is a again.
	got, err := traj.Get("a.c1.c2")
	if err != nil {
		t.Fatalf("Get(a.c1.c2): %v", err)
	}
	if got != a {
		t.Error("a.c1.c2 should resolve back to a")
	}

	// Long cycles terminate too.
	got, err = traj.Get("a.c1.c2.c1.c2")
	if err != nil || got != a {
		t.Errorf("long cycle: %v, is-a=%v", err, got == a)
	}

	// Removing the link from a leaves b untouched.
	if err := a.RemoveLink("c1"); err != nil {
		t.Fatalf("RemoveLink: %v", err)
	}
	if a.Contains("c1", true) {
		t.Error("c1 should be gone from a")
	}
	if !traj.Contains("b") {
		t.Error("b must be untouched by link removal")
	}
	if len(b.Links()) != 1 {
		t.Error("b's own link should survive")
	}
}

func TestLinkValidation(t *testing.T) {
	traj := newTraj(t)
	a, _ := traj.Root().AddGroup("a")
	_, _ = a.AddGroup("child")
	b, _ := traj.Root().AddGroup("b")

	// Name collision with a real child.
	if err := a.AddLink("child", b); err == nil {
		t.Error("link name colliding with child should fail")
	}

	// Linking the root is forbidden.
	if err := a.AddLink("r", traj.Root()); err == nil {
		t.Error("linking the trajectory root should fail")
	}

	// Duplicate link names are forbidden.
	if err := a.AddLink("l", b); err != nil {
		t.Fatalf("AddLink: %v", err)
	}
	if err := a.AddLink("l", b); err == nil {
		t.Error("duplicate link name should fail")
	}

	// Adding a real child shadowing a link name is forbidden.
	if _, err := a.AddGroup("l"); err == nil {
		t.Error("child shadowing link name should fail")
	}
}

func TestLinkAmbiguityCountsAliases(t *testing.T) {
	traj := newTraj(t)
	_, _ = traj.Root().AddGroup("test.test3")
	test2, _ := traj.Root().AddGroup("test2")
	target, _ := traj.Get("test.test3")

	if err := test2.AddLink("test3", target); err != nil {
		t.Fatalf("AddLink: %v", err)
	}

	// The real node and the alias are two occurrences of the name.
	if _, err := traj.Get("test3"); !errors.Is(err, errors.ErrCodeNotUniqueNode) {
		t.Errorf("aliased name: got %v, want NOT_UNIQUE_NODE", err)
	}

	// With links invisible the real node is unique again.
	got, err := traj.Get("test3", WithLinks(false))
	if err != nil || got != target {
		t.Errorf("links-off resolution: %v", err)
	}
}

func TestLinksInvisibleWhenDisabled(t *testing.T) {
	traj := newTraj(t)
	a, _ := traj.Root().AddGroup("a")
	b, _ := traj.Root().AddGroup("b.inner")
	_ = b // inner group under b

	bGroup, _ := traj.Get("b", WithShortcuts(false))
	if err := a.AddLink("jump", bGroup); err != nil {
		t.Fatalf("AddLink: %v", err)
	}

	if _, err := traj.Get("a.jump"); err != nil {
		t.Errorf("link traversal: %v", err)
	}
	if _, err := traj.Get("a.jump", WithLinks(false)); err == nil {
		t.Error("disabled links must not be traversed")
	}
	if a.Contains("jump", false) {
		t.Error("disabled links must not be reported present")
	}

	// Shortcut search through a link finds inner, but not with links off.
	if _, err := traj.Get("a.inner"); err != nil {
		t.Errorf("shortcut through link: %v", err)
	}
	if _, err := traj.Get("a.inner", WithLinks(false)); err == nil {
		t.Error("shortcut must not pass through disabled links")
	}
}

func TestIterNodes(t *testing.T) {
	traj := newTraj(t)
	a, _ := traj.Root().AddGroup("a.sub")
	_ = a
	b, _ := traj.Root().AddGroup("b")
	aGroup, _ := traj.Get("a", WithShortcuts(false))
	if err := aGroup.AddLink("jump", b); err != nil {
		t.Fatalf("AddLink: %v", err)
	}

	seen := map[string]int{}
	for n := range traj.Root().IterNodes(true, true) {
		seen[n.Name()]++
	}
	if seen["b"] != 2 {
		t.Errorf("b should be seen as child and link target, got %d", seen["b"])
	}

	seen = map[string]int{}
	for n := range traj.Root().IterNodes(true, false) {
		seen[n.Name()]++
	}
	if seen["b"] != 1 {
		t.Errorf("links-off iteration should see b once, got %d", seen["b"])
	}

	// Restartable: a second range produces the same set.
	count := 0
	it := traj.Root().IterNodes(true, false)
	for range it {
		count++
	}
	count2 := 0
	for range it {
		count2++
	}
	if count != count2 || count != 3 {
		t.Errorf("iteration not restartable: %d vs %d", count, count2)
	}
}

func TestRemoveChild(t *testing.T) {
	traj := newTraj(t)
	_, _ = traj.Root().AddGroup("g.inner")
	addParam(t, traj, "g.inner.x", 1)

	// Non-recursive removal of a non-empty group fails.
	if err := traj.Root().RemoveChild("g", false); err == nil {
		t.Error("non-recursive removal of non-empty group should fail")
	}

	// Strict removal fails while links point into the subtree.
	inner, _ := traj.Get("inner", WithShortcuts(true))
	other, _ := traj.Root().AddGroup("other")
	if err := other.AddLink("alias", inner); err != nil {
		t.Fatalf("AddLink: %v", err)
	}
	err := traj.Root().Remove("g", RemoveOptions{Recursive: true})
	if err == nil {
		t.Error("removal with inbound links and no RemoveLinks should fail")
	}
	if !traj.Contains("inner") {
		t.Error("failed removal must leave the tree intact")
	}

	// Cascading removal drops the links too.
	if err := traj.Root().RemoveChild("g", true); err != nil {
		t.Fatalf("RemoveChild: %v", err)
	}
	if traj.Contains("inner") || other.Contains("alias", true) {
		t.Error("subtree and inbound links should be gone")
	}

	if err := traj.Root().RemoveChild("missing", false); !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("removing missing child: got %v, want NOT_FOUND", err)
	}
}

func TestRemoveChildByLinkName(t *testing.T) {
	traj := newTraj(t)
	a, _ := traj.Root().AddGroup("a")
	b, _ := traj.Root().AddGroup("b")
	_ = a.AddLink("edge", b)

	// Removing by link name removes only the edge.
	if err := a.RemoveChild("edge", false); err != nil {
		t.Fatalf("RemoveChild(edge): %v", err)
	}
	if a.Contains("edge", true) {
		t.Error("edge should be gone")
	}
	if !traj.Contains("b") {
		t.Error("target must survive link removal")
	}
}

func TestExploreProducesRuns(t *testing.T) {
	traj := newTraj(t)
	addParam(t, traj, "x", 0)

	if err := traj.Explore(map[string][]any{"x": {1, 2, 3, 4}}); err != nil {
		t.Fatalf("Explore: %v", err)
	}

	if traj.Len() != 4 || traj.NumRuns() != 4 {
		t.Errorf("Len=%d NumRuns=%d, want 4", traj.Len(), traj.NumRuns())
	}
	if traj.Runs()[2].Name != "run_00000002" {
		t.Errorf("run name = %s", traj.Runs()[2].Name)
	}

	v, err := traj.Root().Access("x", 2)
	if err != nil {
		t.Fatalf("Access: %v", err)
	}
	if v != 3 {
		t.Errorf("Access(x, 2) = %v, want 3", v)
	}

	// A second explore with a different length fails.
	addParam(t, traj, "y", 0)
	err = traj.Explore(map[string][]any{"y": {1, 2}})
	if !errors.Is(err, errors.ErrCodeLengthMismatch) {
		t.Errorf("length mismatch: got %v, want LENGTH_MISMATCH", err)
	}

	// Same length is fine.
	if err := traj.Explore(map[string][]any{"y": {9, 8, 7, 6}}); err != nil {
		t.Errorf("second Explore: %v", err)
	}
}

func TestExploreLengthValidationBeforeMutation(t *testing.T) {
	traj := newTraj(t)
	addParam(t, traj, "x", 0)
	addParam(t, traj, "y", 0)

	err := traj.Explore(map[string][]any{"x": {1, 2}, "y": {1, 2, 3}})
	if !errors.Is(err, errors.ErrCodeLengthMismatch) {
		t.Fatalf("got %v, want LENGTH_MISMATCH", err)
	}
	if traj.NumRuns() != 0 {
		t.Error("failed explore must not create runs")
	}

	x, _ := traj.Get("x")
	if x.Item().(*param.Parameter).IsExplored() {
		t.Error("failed explore must not mutate leaves")
	}
}

func TestWildcardResolution(t *testing.T) {
	traj := newTraj(t)
	addParam(t, traj, "p", 0)
	if err := traj.Explore(map[string][]any{"p": {1, 2, 3}}); err != nil {
		t.Fatalf("Explore: %v", err)
	}

	// Wildcard without a bound run fails: no guessing a default run.
	if _, err := traj.Root().AddGroup("results.$.sub"); !errors.Is(err, errors.ErrCodeNoRunBound) {
		t.Errorf("unbound wildcard: got %v, want NO_RUN_BOUND", err)
	}

	if err := traj.SetCurrentRun(1); err != nil {
		t.Fatalf("SetCurrentRun: %v", err)
	}
	node, err := traj.Root().AddGroup("results.$.sub")
	if err != nil {
		t.Fatalf("AddGroup with wildcard: %v", err)
	}
	if node.FullName() != "results.run_00000001.sub" {
		t.Errorf("FullName = %s", node.FullName())
	}

	// Per-call binding overrides the trajectory binding.
	if _, err := traj.Get("results.$.sub", WithRun(1)); err != nil {
		t.Errorf("Get with WithRun: %v", err)
	}
	if _, err := traj.Get("results.$.sub", WithRun(0)); err == nil {
		t.Error("run 0 has no groups; resolution should fail")
	}

	traj.ClearCurrentRun()
	if _, err := traj.Get("results.$.sub"); !errors.Is(err, errors.ErrCodeNoRunBound) {
		t.Errorf("cleared binding: got %v, want NO_RUN_BOUND", err)
	}
}

func TestCartesian(t *testing.T) {
	bindings, err := Cartesian([]Dimension{
		{Name: "a", Values: []any{1, 2}},
		{Name: "b", Values: []any{"x", "y", "z"}},
	})
	if err != nil {
		t.Fatalf("Cartesian: %v", err)
	}

	wantA := []any{1, 1, 1, 2, 2, 2}
	wantB := []any{"x", "y", "z", "x", "y", "z"}
	for i := range wantA {
		if bindings["a"][i] != wantA[i] {
			t.Errorf("a[%d] = %v, want %v", i, bindings["a"][i], wantA[i])
		}
		if bindings["b"][i] != wantB[i] {
			t.Errorf("b[%d] = %v, want %v", i, bindings["b"][i], wantB[i])
		}
	}

	traj := newTraj(t)
	addParam(t, traj, "a", 0)
	addParam(t, traj, "b", "")
	if err := traj.ExploreCartesian([]Dimension{
		{Name: "a", Values: []any{1, 2}},
		{Name: "b", Values: []any{"x", "y", "z"}},
	}); err != nil {
		t.Fatalf("ExploreCartesian: %v", err)
	}
	if traj.NumRuns() != 6 {
		t.Errorf("NumRuns = %d, want 6", traj.NumRuns())
	}
}

func TestGetDefault(t *testing.T) {
	traj := newTraj(t)
	addParam(t, traj, "known", 42)

	v, err := traj.GetDefault("missing", 555)
	if err != nil {
		t.Fatalf("GetDefault: %v", err)
	}
	if v != 555 {
		t.Errorf("GetDefault = %v, want 555", v)
	}

	v, err = traj.GetDefault("known", 0)
	if err != nil {
		t.Fatalf("GetDefault: %v", err)
	}
	if v != 42 {
		t.Errorf("GetDefault = %v, want 42", v)
	}

	// Ambiguity is a real error, not a fallback case.
	addParam(t, traj, "sub.known", 1)
	if _, err := traj.GetDefault("known", 0); !errors.Is(err, errors.ErrCodeNotUniqueNode) {
		t.Errorf("ambiguous GetDefault: got %v, want NOT_UNIQUE_NODE", err)
	}
}

func TestGetAll(t *testing.T) {
	traj := newTraj(t)
	addParam(t, traj, "par.test.hi", 44)
	_, _ = traj.Root().AddGroup("par.test.test.test2")
	test2, _ := traj.Root().AddGroup("test2")
	test, _ := traj.Get("par.test", WithShortcuts(false))
	_ = test2.AddLink("test", test)

	nodes, err := traj.Root().GetAll("par.test")
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(nodes) != 2 {
		t.Errorf("GetAll matched %d nodes, want 2", len(nodes))
	}

	nodes, err = traj.Root().GetAll("par.test", WithShortcuts(false))
	if err != nil {
		t.Fatalf("GetAll no shortcuts: %v", err)
	}
	if len(nodes) != 1 {
		t.Errorf("GetAll without shortcuts matched %d, want 1", len(nodes))
	}
}
