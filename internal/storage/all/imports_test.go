package all

import (
	"testing"

	"bagetl/internal/storage"
)

func TestAllKindsRegistered(t *testing.T) {
	t.Parallel()

	got := storage.ListKinds()
	want := []string{"memory", "mssql", "mysql", "postgres", "sqlite"}
	if len(got) != len(want) {
		t.Fatalf("ListKinds() = %v; want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ListKinds() = %v; want %v", got, want)
		}
	}
}
