package content

import (
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func ids(sections []Section) []string {
	out := make([]string, len(sections))
	for i, s := range sections {
		out[i] = s.ID
	}
	return out
}

func newOrderedStore(t *testing.T, list ...string) *Store {
	t.Helper()
	s := NewStore(nil)
	sections := make([]Section, len(list))
	for i, id := range list {
		sections[i] = Section{ID: id, Name: id, Visible: true}
	}
	s.ReplaceSections(sections)
	return s
}

func TestReorderBoundariesAreNoOps(t *testing.T) {
	s := newOrderedStore(t, "hero", "about", "contact")
	changes := 0
	s.Subscribe(func(Channel) { changes++ })

	s.Reorder("hero", Up)
	s.Reorder("contact", Down)
	s.Reorder("missing", Down)
	s.Reorder("about", Direction("sideways"))

	if diff := cmp.Diff([]string{"hero", "about", "contact"}, ids(s.Sections())); diff != "" {
		t.Fatalf("order changed (-want +got):\n%s", diff)
	}
	if changes != 0 {
		t.Fatalf("expected no notifications, got %d", changes)
	}
}

func TestReorderSwapsNeighbour(t *testing.T) {
	s := newOrderedStore(t, "hero", "about", "contact")

	s.Reorder("about", Up)
	if diff := cmp.Diff([]string{"about", "hero", "contact"}, ids(s.Sections())); diff != "" {
		t.Fatalf("after up (-want +got):\n%s", diff)
	}
	s.Reorder("about", Down)
	s.Reorder("hero", Down)
	if diff := cmp.Diff([]string{"about", "contact", "hero"}, ids(s.Sections())); diff != "" {
		t.Fatalf("after down (-want +got):\n%s", diff)
	}
}

func TestMoveSectionMatchesRepeatedSwaps(t *testing.T) {
	moved := newOrderedStore(t, "a", "b", "c", "d", "e")
	moved.MoveSection(0, 3)

	swapped := newOrderedStore(t, "a", "b", "c", "d", "e")
	for i := 0; i < 3; i++ {
		swapped.Reorder("a", Down)
	}

	if diff := cmp.Diff(ids(swapped.Sections()), ids(moved.Sections())); diff != "" {
		t.Fatalf("move differs from swaps (-swaps +move):\n%s", diff)
	}

	moved.MoveSection(4, 0)
	if diff := cmp.Diff([]string{"e", "b", "c", "a", "d"}, ids(moved.Sections())); diff != "" {
		t.Fatalf("move back (-want +got):\n%s", diff)
	}

	before := ids(moved.Sections())
	moved.MoveSection(-1, 2)
	moved.MoveSection(1, 9)
	if !slices.Equal(before, ids(moved.Sections())) {
		t.Fatal("out of range move mutated the list")
	}
}

func TestToggleKeepsPosition(t *testing.T) {
	s := newOrderedStore(t, "hero", "about", "contact")

	s.ToggleVisibility("about")
	if s.Visible("about") {
		t.Fatal("about should be hidden")
	}
	if diff := cmp.Diff([]string{"hero", "about", "contact"}, ids(s.Sections())); diff != "" {
		t.Fatalf("toggle moved section (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"hero", "contact"}, s.Order()); diff != "" {
		t.Fatalf("Order() (-want +got):\n%s", diff)
	}

	s.ToggleVisibility("about")
	if !s.Visible("about") {
		t.Fatal("about should be visible again")
	}
	if !s.Visible("unknown-legacy-id") {
		t.Fatal("unknown ids count as visible")
	}
}

func TestAddAndRemoveSection(t *testing.T) {
	s := newOrderedStore(t, "hero")

	s.AddSection(Section{ID: "", Name: "No id"})
	s.AddSection(Section{ID: "blog", Name: ""})
	if len(s.Sections()) != 1 {
		t.Fatalf("invalid templates were added: %v", ids(s.Sections()))
	}

	s.AddSection(Section{ID: "blog", Name: "Blog", Icon: "📝", Visible: false})
	got := s.Sections()
	if len(got) != 2 || got[1].ID != "blog" || !got[1].Visible {
		t.Fatalf("unexpected sections after add: %+v", got)
	}

	s.RemoveSection("hero")
	if diff := cmp.Diff([]string{"blog"}, ids(s.Sections())); diff != "" {
		t.Fatalf("after remove (-want +got):\n%s", diff)
	}
}

func TestUnknownSectionIDsAreRetained(t *testing.T) {
	s := newOrderedStore(t, "hero", "retiredWidget", "contact")
	s.Reorder("contact", Up)
	if diff := cmp.Diff([]string{"hero", "contact", "retiredWidget"}, ids(s.Sections())); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}
