package storage

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

type dollar struct{}

func (dollar) Quote(s string) string    { return QuoteWith(s, `"`, `"`) }
func (dollar) Placeholder(n int) string { return "$" + string(rune('0'+n)) }

func TestPredicateSQL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		p        Predicate
		next     int
		wantSQL  string
		wantArgs []any
	}{
		{name: "empty", p: nil, next: 1, wantSQL: ""},
		{
			name:     "eq_and_in",
			p:        Where(Eq("bag_files_id", int64(7)), In("sensors_id", int64(3), int64(4))),
			next:     2,
			wantSQL:  ` WHERE "bag_files_id" = $2 AND "sensors_id" IN ($3, $4)`,
			wantArgs: []any{int64(7), int64(3), int64(4)},
		},
		{name: "empty_in", p: Where(In("id")), next: 1, wantSQL: " WHERE 1 = 0"},
		{name: "null", p: Where(Eq("trips_id", nil)), next: 1, wantSQL: ` WHERE "trips_id" IS NULL`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sql, args := tt.p.SQL(dollar{}, tt.next)
			if sql != tt.wantSQL {
				t.Fatalf("SQL() = %q; want %q", sql, tt.wantSQL)
			}
			if diff := cmp.Diff(tt.wantArgs, args); diff != "" {
				t.Fatalf("args mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPredicateMatch(t *testing.T) {
	t.Parallel()

	row := map[string]any{"bag_files_id": int64(7), "sensors_id": int32(4), "name": "LTI", "trips_id": nil}
	tests := []struct {
		p    Predicate
		want bool
	}{
		{nil, true},
		{Where(Eq("bag_files_id", 7)), true},
		{Where(Eq("bag_files_id", int64(8))), false},
		{Where(In("sensors_id", int64(3), int64(4))), true},
		{Where(In("sensors_id")), false},
		{Where(Eq("name", "LTI"), Eq("trips_id", nil)), true},
		{Where(Eq("name", "lti")), false},
	}
	for i, tt := range tests {
		if got := tt.p.Match(row); got != tt.want {
			t.Errorf("case %d: Match() = %v; want %v", i, got, tt.want)
		}
	}
}

func TestQuoteWith(t *testing.T) {
	t.Parallel()

	if got, want := QuoteWith("dbo.my]table", "[", "]"), "[dbo].[my]]table]"; got != want {
		t.Fatalf("QuoteWith() = %q; want %q", got, want)
	}
	if got, want := QuoteWith(`we"ird`, `"`, `"`), `"we""ird"`; got != want {
		t.Fatalf("QuoteWith() = %q; want %q", got, want)
	}
}
