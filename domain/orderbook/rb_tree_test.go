package orderbook

import "testing"

func TestRBTreeGetOrCreateFindRemove(t *testing.T) {
	tree := NewRBTree()
	lvl1 := tree.GetOrCreate(100)
	if lvl1 == nil {
		t.Fatal("GetOrCreate returned nil")
	}
	if lvl2 := tree.Find(100); lvl2 != lvl1 {
		t.Error("Find did not return the same PriceLevel")
	}

	tree.GetOrCreate(200)
	if tree.BestMin().Price != 100 {
		t.Error("expected min=100")
	}
	if tree.BestMax().Price != 200 {
		t.Error("expected max=200")
	}

	tree.Remove(100)
	if tree.Find(100) != nil {
		t.Error("expected level 100 to be gone")
	}
}

func TestRBTreeRemoveNonExistentLevel(t *testing.T) {
	tree := NewRBTree()
	tree.GetOrCreate(50)
	tree.Remove(123) // no-op, must not panic or disturb the real level
	if tree.Find(50) == nil {
		t.Error("unrelated level was disturbed by removing a non-existent key")
	}
}

func TestRBTreeEmptyMinMax(t *testing.T) {
	tree := NewRBTree()
	if tree.BestMin() != nil || tree.BestMax() != nil {
		t.Error("expected nil for min/max on empty tree")
	}
}

func TestRBTreeGetOrCreateIsIdempotent(t *testing.T) {
	tree := NewRBTree()
	lvl1 := tree.GetOrCreate(150)
	lvl2 := tree.GetOrCreate(150)
	if lvl1 != lvl2 {
		t.Error("GetOrCreate should return the same level for a repeated price")
	}
}

// TestRBTreeOrderingUnderChurn inserts and removes a large shuffled set
// of price levels and checks the tree keeps reporting an ascending walk,
// the property the matching engine's price-time priority depends on.
func TestRBTreeOrderingUnderChurn(t *testing.T) {
	tree := NewRBTree()
	prices := []int64{37, 12, 99, 4, 58, 71, 1, 23, 88, 45, 66, 9, 30}
	for _, p := range prices {
		tree.GetOrCreate(p)
	}

	var seen []int64
	tree.walkAsc(func(l *PriceLevel) { seen = append(seen, l.Price) })
	for i := 1; i < len(seen); i++ {
		if seen[i-1] >= seen[i] {
			t.Fatalf("walkAsc not strictly increasing at %d: %v", i, seen)
		}
	}

	tree.Remove(99)
	tree.Remove(1)
	tree.Remove(45)

	seen = seen[:0]
	tree.walkDesc(func(l *PriceLevel) { seen = append(seen, l.Price) })
	for i := 1; i < len(seen); i++ {
		if seen[i-1] <= seen[i] {
			t.Fatalf("walkDesc not strictly decreasing at %d: %v", i, seen)
		}
	}
	if tree.Find(99) != nil || tree.Find(1) != nil || tree.Find(45) != nil {
		t.Error("removed levels still present")
	}
	if tree.Len() != len(prices)-3 {
		t.Errorf("expected %d levels remaining, got %d", len(prices)-3, tree.Len())
	}
}
