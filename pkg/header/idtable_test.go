package header

import "testing"

func TestIdTableAllocatesSequentially(t *testing.T) {
	tbl := New()
	if got := tbl.Next(); got != 0 {
		t.Fatalf("first id = %d, want 0", got)
	}
	if got := tbl.Next(); got != 1 {
		t.Fatalf("second id = %d, want 1", got)
	}
}

func TestIdTableRecyclesBeforeAdvancing(t *testing.T) {
	tbl := New()
	a := tbl.Next()
	_ = tbl.Next()
	if err := tbl.Recycle(a); err != nil {
		t.Fatalf("recycle: %v", err)
	}
	if got := tbl.Next(); got != a {
		t.Fatalf("next id = %d, want recycled %d", got, a)
	}
}

func TestIdTableRejectsUnknownRecycle(t *testing.T) {
	tbl := New()
	if err := tbl.Recycle(42); err == nil {
		t.Fatal("expected error recycling an unallocated id")
	}
}

func TestIdTableSnapshotRoundTrip(t *testing.T) {
	tbl := New()
	a := tbl.Next()
	_ = tbl.Next()
	if err := tbl.Recycle(a); err != nil {
		t.Fatalf("recycle: %v", err)
	}

	snap := tbl.Snapshot()
	restored := New()
	restored.LoadFrom(snap)

	if got := restored.Next(); got != a {
		t.Fatalf("restored next id = %d, want %d", got, a)
	}
	if err := restored.Recycle(1); err != nil {
		t.Fatalf("recycle 1: %v", err)
	}
}
