package sheets

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryTable_EnsureAppendUpdate(t *testing.T) {
	ctx := context.Background()
	table := NewMemoryTable()

	if err := table.EnsureTab(ctx, "Groups", []string{"group_id", "name"}); err != nil {
		t.Fatalf("EnsureTab() error = %v", err)
	}
	// 2回目はヘッダーを重複させない
	if err := table.EnsureTab(ctx, "Groups", []string{"group_id", "name"}); err != nil {
		t.Fatalf("EnsureTab() error = %v", err)
	}
	if err := table.Append(ctx, "Groups", []string{"g1", "Home"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := table.Update(ctx, "Groups", 1, []string{"g1", "House"}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	rows, _ := table.Rows(ctx, "Groups")
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2", len(rows))
	}
	if rows[1][1] != "House" {
		t.Errorf("rows[1][1] = %q, want %q", rows[1][1], "House")
	}

	if err := table.Update(ctx, "Groups", 5, []string{"x"}); !errors.Is(err, ErrRowOutOfRange) {
		t.Errorf("Update() out of range error = %v, want ErrRowOutOfRange", err)
	}
}

func TestMemoryTable_RowsReturnsCopy(t *testing.T) {
	ctx := context.Background()
	table := NewMemoryTable()
	table.Seed("Users", [][]string{{"email"}, {"a@example.com"}})

	rows, _ := table.Rows(ctx, "Users")
	rows[1][0] = "mutated"

	again, _ := table.Rows(ctx, "Users")
	if again[1][0] != "a@example.com" {
		t.Errorf("MemoryTable leaked internal slice: %q", again[1][0])
	}
}
