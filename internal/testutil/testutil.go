package testutil

import (
	"path/filepath"
	"testing"

	"github.com/carecompanion/n1/internal/experiment"
	"github.com/carecompanion/n1/internal/store"
)

// SetupTestStore creates a test database and returns the store.
// Uses t.TempDir() for automatic cleanup on test completion.
func SetupTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")

	s, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})

	return s
}

// MustDate parses a YYYY-MM-DD date or fails the test.
func MustDate(t *testing.T, s string) experiment.Date {
	t.Helper()

	d, err := experiment.ParseDate(s)
	if err != nil {
		t.Fatalf("failed to parse date %q: %v", s, err)
	}
	return d
}

// WeekLongDesign is the default late-snack design starting on start.
func WeekLongDesign(start experiment.Date) experiment.Design {
	return experiment.Design{
		PhaseALabel:     "A: Late snack",
		PhaseBLabel:     "B: No late snack",
		MetricLabel:     "Morning BP (systolic)",
		StartDate:       start,
		PhaseLengthDays: 7,
	}
}
