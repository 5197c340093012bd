package realtime

import (
	"reflect"
	"testing"

	"github.com/evermore-ai/concierge/internal/events"
)

func row(id, status, updatedAt string) ConversationRow {
	return ConversationRow{ID: id, UserType: "planning", Status: status, UpdatedAt: updatedAt}
}

func ids(rows []ConversationRow) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ID)
	}
	return out
}

func TestReconcilerInsertOrdersByUpdatedAt(t *testing.T) {
	rec := NewReconciler(false)
	a := row("a", "new", "2026-08-30T10:00:00.000000Z")
	b := row("b", "new", "2026-08-30T11:00:00.000000Z")

	rec.Apply(events.ActionInsert, &a, nil)
	rec.Apply(events.ActionInsert, &b, nil)

	got := ids(rec.Snapshot())
	want := []string{"b", "a"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
}

func TestReconcilerInsertCollisionReplacesInPlace(t *testing.T) {
	rec := NewReconciler(false)
	a := row("a", "new", "2026-08-30T10:00:00.000000Z")
	rec.Apply(events.ActionInsert, &a, nil)

	a2 := row("a", "in_progress", "2026-08-30T10:05:00.000000Z")
	rec.Apply(events.ActionInsert, &a2, nil)

	rows := rec.Snapshot()
	if len(rows) != 1 {
		t.Fatalf("len = %d, want 1", len(rows))
	}
	if rows[0].Status != "in_progress" {
		t.Fatalf("status = %q, want in_progress", rows[0].Status)
	}
}

func TestReconcilerUpdateUpsertsMissingRow(t *testing.T) {
	rec := NewReconciler(false)
	a := row("a", "in_progress", "2026-08-30T10:00:00.000000Z")

	// Update arrives before the insert it logically follows.
	rec.Apply(events.ActionUpdate, &a, nil)
	if rec.Len() != 1 {
		t.Fatalf("len = %d, want 1 after update of unseen row", rec.Len())
	}

	stale := row("a", "new", "2026-08-30T09:00:00.000000Z")
	rec.Apply(events.ActionInsert, &stale, nil)
	rows := rec.Snapshot()
	if len(rows) != 1 {
		t.Fatalf("len = %d, want 1", len(rows))
	}
}

func TestReconcilerQueueDropsDoneConversations(t *testing.T) {
	rec := NewReconciler(true)
	rec.Seed([]ConversationRow{
		row("a", "new", "2026-08-30T10:00:00.000000Z"),
		row("b", "in_progress", "2026-08-30T11:00:00.000000Z"),
	})

	closed := row("b", "done", "2026-08-30T12:00:00.000000Z")
	rec.Apply(events.ActionUpdate, &closed, nil)

	got := ids(rec.Snapshot())
	want := []string{"a"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("queue = %v, want %v", got, want)
	}

	// Inserting an already-done conversation never enters the queue.
	done := row("c", "done", "2026-08-30T13:00:00.000000Z")
	rec.Apply(events.ActionInsert, &done, nil)
	if rec.Len() != 1 {
		t.Fatalf("len = %d, want 1", rec.Len())
	}
}

func TestReconcilerDeleteRemovesByID(t *testing.T) {
	rec := NewReconciler(false)
	a := row("a", "new", "2026-08-30T10:00:00.000000Z")
	rec.Apply(events.ActionInsert, &a, nil)

	rec.Apply(events.ActionDelete, nil, &a)
	if rec.Len() != 0 {
		t.Fatalf("len = %d, want 0", rec.Len())
	}

	// Deleting again is a no-op.
	rec.Apply(events.ActionDelete, nil, &a)
	if rec.Len() != 0 {
		t.Fatalf("len = %d after duplicate delete, want 0", rec.Len())
	}
}

func TestReconcilerIdempotentUnderDuplicateDelivery(t *testing.T) {
	a := row("a", "new", "2026-08-30T10:00:00.000000Z")
	b := row("b", "in_progress", "2026-08-30T11:00:00.000000Z")

	rec := NewReconciler(false)
	for i := 0; i < 3; i++ {
		rec.Apply(events.ActionInsert, &a, nil)
		rec.Apply(events.ActionInsert, &b, nil)
		rec.Apply(events.ActionUpdate, &b, nil)
	}

	got := ids(rec.Snapshot())
	want := []string{"b", "a"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("rows = %v, want %v", got, want)
	}
}

func TestReconcilerCommutesForDisjointIDs(t *testing.T) {
	a := row("a", "new", "2026-08-30T10:00:00.000000Z")
	b := row("b", "new", "2026-08-30T11:00:00.000000Z")
	c := row("c", "done", "2026-08-30T12:00:00.000000Z")

	apply := func(order []int) []string {
		rec := NewReconciler(false)
		steps := []func(){
			func() { rec.Apply(events.ActionInsert, &a, nil) },
			func() { rec.Apply(events.ActionInsert, &b, nil) },
			func() { rec.Apply(events.ActionInsert, &c, nil) },
		}
		for _, i := range order {
			steps[i]()
		}
		return ids(rec.Snapshot())
	}

	want := apply([]int{0, 1, 2})
	for _, order := range [][]int{{2, 1, 0}, {1, 2, 0}, {0, 2, 1}, {2, 0, 1}, {1, 0, 2}} {
		if got := apply(order); !reflect.DeepEqual(got, want) {
			t.Fatalf("order %v produced %v, want %v", order, got, want)
		}
	}
}

func TestReconcilerApplyChangeIgnoresOtherTables(t *testing.T) {
	rec := NewReconciler(false)

	change, err := events.NewChange("leads", events.ActionInsert, row("x", "new", "2026-08-30T10:00:00.000000Z"), nil)
	if err != nil {
		t.Fatalf("NewChange: %v", err)
	}
	rec.ApplyChange(change)
	if rec.Len() != 0 {
		t.Fatalf("len = %d, want 0 for foreign table", rec.Len())
	}

	change, err = events.NewChange("conversations", events.ActionInsert, row("x", "new", "2026-08-30T10:00:00.000000Z"), nil)
	if err != nil {
		t.Fatalf("NewChange: %v", err)
	}
	rec.ApplyChange(change)
	if rec.Len() != 1 {
		t.Fatalf("len = %d, want 1", rec.Len())
	}
}
