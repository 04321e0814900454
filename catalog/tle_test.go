package catalog

import (
	"strings"
	"testing"
	"time"
)

const (
	issLine1 = "1 25544U 98067A   24275.59097222  .00000204  00000-0  10270-4 0  9990"
	issLine2 = "2 25544  51.6459 115.9059 0001817  61.3028  35.9198 15.49370953257760"
	hstLine1 = "1 20580U 90037B   24274.50000000  .00000500  00000-0  25000-4 0  9991"
	hstLine2 = "2 20580  28.4690 115.2000 0002900 100.0000 260.0000 15.09200000000011"
)

func TestParseTLEThreeLineFeed(t *testing.T) {
	feed := strings.Join([]string{
		"ISS (ZARYA)", issLine1, issLine2,
		"HST", hstLine1, hstLine2,
	}, "\n")

	entries, skipped, err := ParseTLE(strings.NewReader(feed), "stations")
	if err != nil {
		t.Fatalf("ParseTLE: %v", err)
	}
	if skipped != 0 {
		t.Fatalf("skipped %d records, want 0", skipped)
	}
	if len(entries) != 2 {
		t.Fatalf("parsed %d entries, want 2", len(entries))
	}

	iss := entries[0]
	if iss.ID != "25544" || iss.Name != "ISS (ZARYA)" || iss.Category != "stations" {
		t.Fatalf("unexpected first entry: %+v", iss)
	}
	if iss.Elements.InclinationDeg != 51.6459 || iss.Elements.RAANDeg != 115.9059 {
		t.Fatalf("unexpected elements: %+v", iss.Elements)
	}
	if !iss.IsActive {
		t.Fatalf("parsed entries should default to active")
	}
}

func TestParseTLENameDefaultsToID(t *testing.T) {
	feed := issLine1 + "\n" + issLine2

	entries, _, err := ParseTLE(strings.NewReader(feed), "stations")
	if err != nil {
		t.Fatalf("ParseTLE: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "25544" {
		t.Fatalf("nameless record should use the catalog number, got %+v", entries)
	}
}

func TestParseTLESkipsMalformedRecords(t *testing.T) {
	feed := strings.Join([]string{
		"BROKEN",
		"1 11111U 98067A   24275.59097222  .00000204  00000-0  10270-4 0  9990",
		"2 22222  51.6459 115.9059 0001817  61.3028  35.9198 15.49370953257760", // number mismatch
		"2 33333  51.6459 115.9059 0001817  61.3028  35.9198 15.49370953257760", // orphan line 2
		"ISS (ZARYA)", issLine1, issLine2,
		"SHORT",
		"1 44444U",
	}, "\n")

	entries, skipped, err := ParseTLE(strings.NewReader(feed), "stations")
	if err != nil {
		t.Fatalf("ParseTLE: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "25544" {
		t.Fatalf("only the ISS record is well-formed, got %+v", entries)
	}
	if skipped != 3 {
		t.Fatalf("skipped = %d, want 3", skipped)
	}
}

func TestParseTLEEpoch(t *testing.T) {
	got, err := parseTLEEpoch("24100.50000000")
	if err != nil {
		t.Fatalf("parseTLEEpoch: %v", err)
	}
	want := time.Date(2024, 4, 9, 12, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("epoch = %v, want %v", got, want)
	}

	// Two-digit years 57-99 belong to the 1900s.
	got, err = parseTLEEpoch("98001.00000000")
	if err != nil {
		t.Fatalf("parseTLEEpoch: %v", err)
	}
	if got.Year() != 1998 {
		t.Fatalf("epoch year = %d, want 1998", got.Year())
	}

	if _, err := parseTLEEpoch("24"); err == nil {
		t.Fatalf("expected error for truncated epoch")
	}
	if _, err := parseTLEEpoch("24999.00000000"); err == nil {
		t.Fatalf("expected error for day-of-year out of range")
	}
}
