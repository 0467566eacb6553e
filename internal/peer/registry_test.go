package peer

import (
	"testing"
)

func TestRegistryStartsEmpty(t *testing.T) {
	r := NewRegistry()

	if r.Len() != 0 {
		t.Errorf("expected empty registry, got %d peers", r.Len())
	}
	if _, ok := r.First(); ok {
		t.Error("expected no first peer")
	}
}

func TestRegistryReplaceAllIsFullSwap(t *testing.T) {
	r := NewRegistry()

	snapshots := [][]Peer{
		{{Address: "A", Name: "Phone1"}, {Address: "B", Name: "Phone2"}},
		{{Address: "C", Name: "Tablet"}},
		{},
		{{Address: "B", Name: "Phone2"}},
	}

	for n, snapshot := range snapshots {
		r.ReplaceAll(snapshot)

		got := r.All()
		if len(got) != len(snapshot) {
			t.Fatalf("snapshot %d: expected %d peers, got %d", n, len(snapshot), len(got))
		}
		for i := range snapshot {
			if got[i].Address != snapshot[i].Address || got[i].Name != snapshot[i].Name {
				t.Errorf("snapshot %d: expected %v at %d, got %v", n, snapshot[i], i, got[i])
			}
		}
	}
}

func TestRegistryCollapsesDuplicateAddresses(t *testing.T) {
	r := NewRegistry()
	r.ReplaceAll([]Peer{
		{Address: "A", Name: "old"},
		{Address: "B", Name: "Phone2"},
		{Address: "A", Name: "renamed"},
	})

	if r.Len() != 2 {
		t.Fatalf("expected 2 peers, got %d", r.Len())
	}

	first, _ := r.First()
	if first.Address != "A" || first.Name != "renamed" {
		t.Errorf("expected A to keep its position with the last name, got %v", first)
	}
}

func TestRegistryStampsSequence(t *testing.T) {
	r := NewRegistry()
	r.ReplaceAll([]Peer{{Address: "A", LastSeen: 99}})
	r.ReplaceAll([]Peer{{Address: "A"}, {Address: "B"}})

	for _, p := range r.All() {
		if p.LastSeen != 2 {
			t.Errorf("expected LastSeen 2 for %s, got %d", p.Address, p.LastSeen)
		}
	}
	if r.Sequence() != 2 {
		t.Errorf("expected sequence 2, got %d", r.Sequence())
	}
}

func TestRegistryAllReturnsCopy(t *testing.T) {
	r := NewRegistry()
	r.ReplaceAll([]Peer{{Address: "A", Name: "Phone1"}})

	peers := r.All()
	peers[0].Name = "mutated"

	if p, _ := r.Lookup("A"); p.Name != "Phone1" {
		t.Errorf("registry changed through returned slice: %v", p)
	}
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	r.ReplaceAll([]Peer{{Address: "A", Name: "Phone1"}})

	if _, ok := r.Lookup("Z"); ok {
		t.Error("expected lookup miss for unknown address")
	}
	if p, ok := r.Lookup("A"); !ok || p.Name != "Phone1" {
		t.Errorf("expected Phone1, got %v (found=%v)", p, ok)
	}
}

func TestNames(t *testing.T) {
	names := Names([]Peer{{Address: "A", Name: "Phone1"}, {Address: "B"}})
	if len(names) != 2 || names[0] != "Phone1" || names[1] != "B" {
		t.Errorf("unexpected names %v", names)
	}
}
