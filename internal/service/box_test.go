package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tellus/tellus/internal/category"
	"github.com/tellus/tellus/internal/metrics"
	"github.com/tellus/tellus/internal/model"
	"github.com/tellus/tellus/internal/token"
)

func newBoxFixture(t *testing.T) (*BoxService, *memStore, *memCache, *metrics.InMemoryRecorder) {
	t.Helper()
	store := newMemStore()
	boxCache := newMemCache()
	rec := metrics.NewInMemory()
	svc := NewBoxService(store, boxCache, newMemObjects(), category.NewRegistry(nil), testLogger(), rec)
	return svc, store, boxCache, rec
}

func TestBoxService_CreateBox(t *testing.T) {
	svc, _, _, rec := newBoxFixture(t)
	ctx := context.Background()

	box, err := svc.CreateBox(ctx, CreateBoxInput{
		AdminID:  "admin-1",
		Title:    "  Hostel block C  ",
		Category: "hostel_maintenance",
		Secret:   "abc123",
	})
	require.NoError(t, err)

	assert.Equal(t, "Hostel block C", box.Title)
	assert.True(t, token.IsBoxToken(box.Token), "token %q", box.Token)
	assert.True(t, box.RequiresSecret())
	assert.NotEqual(t, "abc123", box.SecretHash)
	assert.Equal(t, uint64(1), rec.Snapshot().BoxesCreated)
}

func TestBoxService_CreateBox_Validation(t *testing.T) {
	svc, _, _, _ := newBoxFixture(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		input CreateBoxInput
		want  error
	}{
		{"blank title", CreateBoxInput{Title: "   "}, ErrTitleRequired},
		{"long title", CreateBoxInput{Title: strings.Repeat("x", 201)}, ErrTextTooLong},
		{"long description", CreateBoxInput{Title: "ok", Description: strings.Repeat("d", 2001)}, ErrTextTooLong},
		{"unknown category", CreateBoxInput{Title: "ok", Category: "spaceship"}, ErrUnknownCategory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.input.AdminID = "admin-1"
			_, err := svc.CreateBox(ctx, tt.input)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestBoxService_Resolve_CachesAndNegativeCaches(t *testing.T) {
	svc, store, boxCache, rec := newBoxFixture(t)
	ctx := context.Background()

	box, err := svc.CreateBox(ctx, CreateBoxInput{AdminID: "admin-1", Title: "Library"})
	require.NoError(t, err)

	got, err := svc.Resolve(ctx, box.Token)
	require.NoError(t, err)
	assert.Equal(t, box.ID, got.ID)

	// Second lookup is served from cache even after the row disappears.
	delete(store.boxes, box.ID)
	got, err = svc.Resolve(ctx, box.Token)
	require.NoError(t, err)
	assert.Equal(t, box.ID, got.ID)

	snap := rec.Snapshot()
	assert.Equal(t, uint64(1), snap.BoxCacheHits)
	assert.Equal(t, uint64(1), snap.BoxCacheMisses)

	missing := "zzzzzzzzzzzzzzzzzzzzzzzzzz"
	_, err = svc.Resolve(ctx, missing)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, boxCache.negative[missing])

	_, err = svc.Resolve(ctx, "not a token!")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBoxService_UpdateBox(t *testing.T) {
	svc, _, boxCache, _ := newBoxFixture(t)
	ctx := context.Background()

	box, err := svc.CreateBox(ctx, CreateBoxInput{AdminID: "admin-1", Title: "Old", Secret: "s3cret"})
	require.NoError(t, err)
	_, err = svc.Resolve(ctx, box.Token)
	require.NoError(t, err)

	title := " New title "
	none := ""
	updated, err := svc.UpdateBox(ctx, UpdateBoxInput{
		ID:      box.ID,
		AdminID: "admin-1",
		Title:   &title,
		Secret:  &none,
	})
	require.NoError(t, err)
	assert.Equal(t, "New title", updated.Title)
	assert.False(t, updated.RequiresSecret(), "empty secret should clear the gate")
	assert.Contains(t, boxCache.deleted, box.Token)

	_, err = svc.UpdateBox(ctx, UpdateBoxInput{ID: box.ID, AdminID: "admin-2", Title: &title})
	assert.ErrorIs(t, err, ErrNotFound, "other admins must not see the box")

	blank := " "
	_, err = svc.UpdateBox(ctx, UpdateBoxInput{ID: box.ID, AdminID: "admin-1", Title: &blank})
	assert.ErrorIs(t, err, ErrTitleRequired)
}

func TestBoxService_DeleteBox_RemovesAttachments(t *testing.T) {
	store := newMemStore()
	objects := newMemObjects()
	boxCache := newMemCache()
	svc := NewBoxService(store, boxCache, objects, category.NewRegistry(nil), testLogger(), nil)
	ctx := context.Background()

	box, err := svc.CreateBox(ctx, CreateBoxInput{AdminID: "admin-1", Title: "Box"})
	require.NoError(t, err)

	require.NoError(t, objects.Put(ctx, "CPL-AAAAAAAAAA/x.png", strings.NewReader("png"), "image/png"))
	store.complaints["c1"] = &model.Complaint{
		ID:         "c1",
		BoxID:      box.ID,
		Attachment: &model.Attachment{Key: "CPL-AAAAAAAAAA/x.png"},
	}

	assert.ErrorIs(t, svc.DeleteBox(ctx, box.ID, "admin-2"), ErrNotFound)
	require.NoError(t, svc.DeleteBox(ctx, box.ID, "admin-1"))

	assert.Zero(t, objects.count())
	assert.Empty(t, store.complaints)
	assert.Contains(t, boxCache.deleted, box.Token)
}
