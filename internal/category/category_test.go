package category

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_Order(t *testing.T) {
	t.Parallel()

	table := Default()
	var keys []string
	for _, c := range table.Categories() {
		keys = append(keys, c.Key)
	}

	want := []string{
		"education_school", "education_college", "education_university",
		"company_hr", "company_it", "company_finance", "company_operations",
		"hostel_warden", "hostel_mess", "hostel_maintenance", "hostel_security",
		"government", "healthcare", "retail", "other",
	}
	if diff := cmp.Diff(want, keys); diff != "" {
		t.Errorf("category order mismatch (-want +got):\n%s", diff)
	}

	wantMaintenance := []string{
		"Cleaning Issues", "Repair Requests", "Plumbing Problems",
		"Electrical Issues", "Furniture Issues", "Common Area Issues", "Other",
	}
	if diff := cmp.Diff(wantMaintenance, table.Subcategories("hostel_maintenance")); diff != "" {
		t.Errorf("hostel_maintenance subcategories (-want +got):\n%s", diff)
	}
}

func TestSubcategories_UnknownKeyIsEmpty(t *testing.T) {
	t.Parallel()

	table := Default()
	for _, key := range []string{"", "nope", "HOSTEL_MESS", "other"} {
		subs := table.Subcategories(key)
		assert.NotNil(t, subs, "key %q", key)
		assert.Empty(t, subs, "key %q", key)
		assert.True(t, table.RequiresCustomInput(key), "key %q", key)
	}
}

func TestSubcategories_ReturnsCopy(t *testing.T) {
	t.Parallel()

	table := Default()
	subs := table.Subcategories("retail")
	subs[0] = "mutated"
	assert.Equal(t, "Product Quality", table.Subcategories("retail")[0])
}

func TestResolve_OtherWithBlankCustomBlocks(t *testing.T) {
	t.Parallel()

	table := Default()
	for _, c := range table.Categories() {
		if len(c.Subcategories) == 0 {
			continue
		}
		for _, custom := range []string{"", "   ", "\t\n"} {
			_, err := table.Resolve(c.Key, Other, custom)
			assert.ErrorIs(t, err, ErrCustomCategoryRequired, "category %q custom %q", c.Key, custom)
		}
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()

	table := Default()
	tests := []struct {
		name      string
		box       string
		selection string
		custom    string
		want      string
		wantErr   error
	}{
		{"listed subcategory", "hostel_maintenance", "Furniture Issues", "", "Furniture Issues", nil},
		{"selection trimmed", "hostel_maintenance", "  Furniture Issues ", "", "Furniture Issues", nil},
		{"other uses custom", "retail", "Other", "  Parking ", "Parking", nil},
		{"missing selection", "retail", "", "Parking", "", ErrCategoryRequired},
		{"subcategory of another box", "retail", "Food Quality", "", "", ErrUnknownSubcategory},
		{"free text for unknown box category", "", "Furniture Issues", "", "Furniture Issues", nil},
		{"free text falls back to custom", "other", "", "Noise", "Noise", nil},
		{"free text required", "other", " ", "", "", ErrCategoryRequired},
		{"free text too long", "other", strings.Repeat("x", 101), "", "", ErrLabelTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := table.Resolve(tt.box, tt.selection, tt.custom)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"not yaml":      "{{{",
		"empty":         "[]",
		"missing key":   "- label: X\n  subcategories: []\n",
		"duplicate key": "- key: a\n- key: a\n",
		"blank sub":     "- key: a\n  subcategories: [' ']\n",
		"duplicate sub": "- key: a\n  subcategories: [X, X]\n",
	}
	for name, doc := range tests {
		_, err := Parse([]byte(doc))
		assert.ErrorIs(t, err, ErrInvalidTable, name)
	}
}

func TestLabel(t *testing.T) {
	t.Parallel()

	table := Default()
	assert.Equal(t, "Hostel/PG - Maintenance", table.Label("hostel_maintenance"))
	assert.Equal(t, "custom_key", table.Label("custom_key"))
}

func TestRegistry_WatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "categories.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- key: a\n  label: A\n  subcategories: [One, Other]\n"), 0o644))

	initial, err := LoadFile(path)
	require.NoError(t, err)
	reg := NewRegistry(initial)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- reg.Watch(ctx, path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("- key: b\n  label: B\n  subcategories: [Two, Other]\n"), 0o644))

	require.Eventually(t, func() bool {
		return reg.Has("b") && !reg.Has("a")
	}, 5*time.Second, 50*time.Millisecond)

	// A broken file keeps the previous table.
	require.NoError(t, os.WriteFile(path, []byte("{{{"), 0o644))
	time.Sleep(2 * reloadDebounce)
	assert.True(t, reg.Has("b"))
}
