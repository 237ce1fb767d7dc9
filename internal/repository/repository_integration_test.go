//go:build integration

package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tellus/tellus/internal/model"
	"github.com/tellus/tellus/internal/testutil"
)

// ============================================================================
// Repository Integration Tests
// ============================================================================

func TestIntegrationProfile_CreateAndLookup(t *testing.T) {
	ctx, repo := newRepoTestEnv(t)

	p := testutil.NewTestProfile(t)
	if err := repo.CreateProfile(ctx, p); err != nil {
		t.Fatalf("CreateProfile failed: %v", err)
	}

	dup := testutil.NewTestProfile(t)
	dup.Email = "  " + p.Email + "  "
	if err := repo.CreateProfile(ctx, dup); !errors.Is(err, ErrEmailExists) {
		t.Errorf("Expected ErrEmailExists, got: %v", err)
	}

	got, err := repo.GetProfileByEmail(ctx, p.Email)
	if err != nil {
		t.Fatalf("GetProfileByEmail failed: %v", err)
	}
	if got.ID != p.ID {
		t.Errorf("ID mismatch: got %q, want %q", got.ID, p.ID)
	}

	if _, err := repo.GetProfileByID(ctx, "missing"); !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("Expected ErrProfileNotFound, got: %v", err)
	}
}

func TestIntegrationBox_OwnershipAndStats(t *testing.T) {
	ctx, repo := newRepoTestEnv(t)

	owner := mustProfile(ctx, t, repo)
	other := mustProfile(ctx, t, repo)

	b1 := mustBox(ctx, t, repo, owner.ID)
	b2 := mustBox(ctx, t, repo, owner.ID)

	for i := 0; i < 3; i++ {
		mustComplaint(ctx, t, repo, b1.ID)
	}
	for _, rating := range []int{4, 5} {
		f := &model.Feedback{ID: testutil.UniqueID(), BoxID: b1.ID, Rating: rating, CreatedAt: time.Now().UTC()}
		if err := repo.CreateFeedback(ctx, f); err != nil {
			t.Fatalf("CreateFeedback failed: %v", err)
		}
	}

	if _, err := repo.GetOwnedBox(ctx, b1.ID, other.ID); !errors.Is(err, ErrBoxNotFound) {
		t.Errorf("another admin's box should be not found, got %v", err)
	}

	boxes, err := repo.ListBoxesWithStats(ctx, owner.ID)
	if err != nil {
		t.Fatalf("ListBoxesWithStats failed: %v", err)
	}
	if len(boxes) != 2 {
		t.Fatalf("got %d boxes, want 2", len(boxes))
	}

	stats := map[string]model.BoxStats{}
	for _, b := range boxes {
		stats[b.ID] = b.Stats
	}
	if s := stats[b1.ID]; s.ComplaintCount != 3 || s.FeedbackCount != 2 || s.AvgRating == nil || *s.AvgRating != 4.5 {
		t.Errorf("b1 stats = %+v", s)
	}
	if s := stats[b2.ID]; s.ComplaintCount != 0 || s.FeedbackCount != 0 || s.AvgRating != nil {
		t.Errorf("b2 stats = %+v", s)
	}
}

func TestIntegrationComplaint_TokensAndLifecycle(t *testing.T) {
	ctx, repo := newRepoTestEnv(t)

	owner := mustProfile(ctx, t, repo)
	box := mustBox(ctx, t, repo, owner.ID)
	otherBox := mustBox(ctx, t, repo, owner.ID)

	c1 := mustComplaint(ctx, t, repo, box.ID)
	c2 := mustComplaint(ctx, t, repo, otherBox.ID)

	dup := testutil.NewTestComplaint(t, box.ID)
	dup.Token = c1.Token
	if err := repo.CreateComplaint(ctx, dup); !errors.Is(err, ErrTokenExists) {
		t.Errorf("Expected ErrTokenExists, got: %v", err)
	}

	mine, err := repo.ListComplaintsByTokens(ctx, box.ID, []string{c1.Token, c2.Token, "CPL-NOPE000000"})
	if err != nil {
		t.Fatalf("ListComplaintsByTokens failed: %v", err)
	}
	if len(mine) != 1 || mine[0].ID != c1.ID {
		t.Errorf("expected only c1, got %+v", mine)
	}

	updated, err := repo.UpdateComplaintStatus(ctx, c1.ID, model.StatusSolved)
	if err != nil {
		t.Fatalf("UpdateComplaintStatus failed: %v", err)
	}
	if updated.Status != model.StatusSolved {
		t.Errorf("status = %s", updated.Status)
	}

	replied, err := repo.SetComplaintReply(ctx, c1.ID, "Fixed on Monday")
	if err != nil {
		t.Fatalf("SetComplaintReply failed: %v", err)
	}
	if replied.Status != model.StatusSolved || replied.AdminReply != "Fixed on Monday" || replied.RepliedAt == nil {
		t.Errorf("reply did not persist or changed status: %+v", replied)
	}

	tracked, err := repo.GetComplaintByToken(ctx, c1.Token)
	if err != nil {
		t.Fatalf("GetComplaintByToken failed: %v", err)
	}
	if tracked.AdminReply != "Fixed on Monday" {
		t.Errorf("tracked reply = %q", tracked.AdminReply)
	}

	if _, err := repo.DeleteComplaint(ctx, c1.ID); err != nil {
		t.Fatalf("DeleteComplaint failed: %v", err)
	}
	if _, err := repo.GetComplaintByToken(ctx, c1.Token); !errors.Is(err, ErrComplaintNotFound) {
		t.Errorf("Expected ErrComplaintNotFound, got: %v", err)
	}
}

func TestIntegrationAnalytics_RecomputeDays(t *testing.T) {
	ctx, repo := newRepoTestEnv(t)
	analytics := NewAnalyticsRepository(repo)

	owner := mustProfile(ctx, t, repo)
	box := mustBox(ctx, t, repo, owner.ID)

	c := mustComplaint(ctx, t, repo, box.ID)
	mustComplaint(ctx, t, repo, box.ID)
	if _, err := repo.UpdateComplaintStatus(ctx, c.ID, model.StatusUnderReview); err != nil {
		t.Fatalf("UpdateComplaintStatus failed: %v", err)
	}
	if err := repo.CreateFeedback(ctx, &model.Feedback{
		ID: testutil.UniqueID(), BoxID: box.ID, Rating: 3, CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("CreateFeedback failed: %v", err)
	}

	key := model.DayKey{BoxID: box.ID, Date: time.Now()}
	// Twice: recomputation must be idempotent.
	for i := 0; i < 2; i++ {
		if err := analytics.RecomputeDays(ctx, []model.DayKey{key, {BoxID: "deleted-box", Date: time.Now()}}); err != nil {
			t.Fatalf("RecomputeDays failed: %v", err)
		}
	}

	today := model.TruncateDay(time.Now())
	rows, err := analytics.GetDailyRows(ctx, box.ID, today.AddDate(0, 0, -7), today)
	if err != nil {
		t.Fatalf("GetDailyRows failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	row := rows[0]
	if row.TotalComplaints != 2 || row.ReceivedCount != 1 || row.UnderReviewCount != 1 || row.SolvedCount != 0 {
		t.Errorf("complaint counts = %+v", row)
	}
	if row.TotalFeedbacks != 1 || row.AvgRating == nil || *row.AvgRating != 3 {
		t.Errorf("feedback figures = %+v", row)
	}
}

func TestIntegrationDeleteAccount_Cascades(t *testing.T) {
	ctx, repo := newRepoTestEnv(t)

	owner := mustProfile(ctx, t, repo)
	box := mustBox(ctx, t, repo, owner.ID)

	c := testutil.NewTestComplaint(t, box.ID)
	c.Attachment = &model.Attachment{
		URL:         "http://localhost/files/x/y.png",
		Name:        "y.png",
		ContentType: "image/png",
		Key:         c.Token + "/abc.png",
	}
	if err := repo.CreateComplaint(ctx, c); err != nil {
		t.Fatalf("CreateComplaint failed: %v", err)
	}

	res, err := repo.DeleteAccount(ctx, owner.ID)
	if err != nil {
		t.Fatalf("DeleteAccount failed: %v", err)
	}
	if len(res.BoxTokens) != 1 || res.BoxTokens[0] != box.Token {
		t.Errorf("BoxTokens = %v", res.BoxTokens)
	}
	if len(res.AttachmentKeys) != 1 || res.AttachmentKeys[0] != c.Attachment.Key {
		t.Errorf("AttachmentKeys = %v", res.AttachmentKeys)
	}

	if _, err := repo.GetBoxByToken(ctx, box.Token); !errors.Is(err, ErrBoxNotFound) {
		t.Errorf("box should be gone, got %v", err)
	}
	if _, err := repo.DeleteAccount(ctx, owner.ID); !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("second delete should report not found, got %v", err)
	}
}

// ============================================================================
// Test Environment Setup
// ============================================================================

func mustProfile(ctx context.Context, t *testing.T, repo *Repository) *model.Profile {
	t.Helper()
	p := testutil.NewTestProfile(t)
	if err := repo.CreateProfile(ctx, p); err != nil {
		t.Fatalf("CreateProfile failed: %v", err)
	}
	return p
}

func mustBox(ctx context.Context, t *testing.T, repo *Repository, adminID string) *model.Box {
	t.Helper()
	b := testutil.NewTestBox(t, adminID)
	if err := repo.CreateBox(ctx, b); err != nil {
		t.Fatalf("CreateBox failed: %v", err)
	}
	return b
}

func mustComplaint(ctx context.Context, t *testing.T, repo *Repository, boxID string) *model.Complaint {
	t.Helper()
	c := testutil.NewTestComplaint(t, boxID)
	if err := repo.CreateComplaint(ctx, c); err != nil {
		t.Fatalf("CreateComplaint failed: %v", err)
	}
	return c
}

func newRepoTestEnv(t *testing.T) (context.Context, *Repository) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	ctx := context.Background()
	dbURL := testutil.RequireEnv(t, "DATABASE_URL")

	repo, err := New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(repo.Close)

	unlock, err := testutil.AcquireDBLock(ctx, repo.Pool())
	if err != nil {
		t.Fatalf("acquire db lock: %v", err)
	}
	t.Cleanup(func() {
		_ = unlock()
	})

	if err := testutil.ResetSchema(ctx, repo.Pool()); err != nil {
		t.Fatalf("reset schema: %v", err)
	}

	return ctx, repo
}
