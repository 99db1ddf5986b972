package ddl

import (
	"strings"
	"testing"

	"bagetl/internal/schema"
)

func TestCreateTable_Trips(t *testing.T) {
	t.Parallel()

	var trips schema.Table
	for _, tbl := range schema.ReferenceTables() {
		if tbl.Name == schema.TableTrips {
			trips = tbl
		}
	}
	got, err := CreateTable(trips)
	if err != nil {
		t.Fatalf("CreateTable() error = %v", err)
	}
	for _, want := range []string{
		"CREATE TABLE IF NOT EXISTS `trips` (",
		"`id` BIGINT AUTO_INCREMENT NOT NULL",
		"`name` VARCHAR(255) NOT NULL",
		"`notes` TEXT,",
		"UNIQUE (`name`, `date`)",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("CreateTable() missing %q:\n%s", want, got)
		}
	}
}

func TestQuoteIdent(t *testing.T) {
	t.Parallel()

	if got, want := quoteIdent("we`ird"), "`we``ird`"; got != want {
		t.Fatalf("quoteIdent() = %q; want %q", got, want)
	}
}
