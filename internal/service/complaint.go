package service

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"

	"github.com/tellus/tellus/internal/metrics"
	"github.com/tellus/tellus/internal/model"
	"github.com/tellus/tellus/internal/repository"
	"github.com/tellus/tellus/internal/storage"
)

// Sort orders for complaint listings.
const (
	SortNewest = "newest"
	SortOldest = "oldest"
)

// DayRecomputer rebuilds daily analytics rows.
type DayRecomputer interface {
	RecomputeDays(ctx context.Context, keys []model.DayKey) error
}

// ComplaintQuery filters an admin complaint listing.
type ComplaintQuery struct {
	Q      string
	Status string
	Sort   string
}

// ComplaintService handles admin complaint management.
type ComplaintService struct {
	boxes      BoxStore
	complaints ComplaintStore
	feedback   FeedbackStore
	objects    storage.Store
	events     EventPublisher
	analytics  DayRecomputer
	logger     *slog.Logger
	metrics    metrics.Recorder
}

// NewComplaintService creates a new ComplaintService. events and analytics
// may be nil.
func NewComplaintService(boxes BoxStore, complaints ComplaintStore, feedback FeedbackStore, objects storage.Store, events EventPublisher, analytics DayRecomputer, logger *slog.Logger, recorder metrics.Recorder) *ComplaintService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if events == nil {
		events = noopPublisher{}
	}
	return &ComplaintService{
		boxes:      boxes,
		complaints: complaints,
		feedback:   feedback,
		objects:    objects,
		events:     events,
		analytics:  analytics,
		logger:     logger.With("component", "service.complaint"),
		metrics:    recorder,
	}
}

// ListComplaints returns the complaints of an owned box matching query.
func (s *ComplaintService) ListComplaints(ctx context.Context, boxID, adminID string, query ComplaintQuery) ([]*model.Complaint, error) {
	if err := s.checkOwnership(ctx, boxID, adminID); err != nil {
		return nil, err
	}

	var status model.Status
	if query.Status != "" && query.Status != "all" {
		parsed, err := model.ParseStatus(query.Status)
		if err != nil {
			return nil, ErrInvalidStatus
		}
		status = parsed
	}
	order := query.Sort
	if order == "" {
		order = SortNewest
	}
	if order != SortNewest && order != SortOldest {
		return nil, ErrInvalidSort
	}

	all, err := s.complaints.ListComplaintsByBox(ctx, boxID)
	if err != nil {
		return nil, err
	}
	filtered := FilterComplaints(all, query.Q, status)
	SortComplaints(filtered, order)
	return filtered, nil
}

// FilterComplaints keeps complaints whose title, message or token contains
// q (case-insensitive) and, when status is set, whose status equals it.
// The input order is preserved.
func FilterComplaints(complaints []*model.Complaint, q string, status model.Status) []*model.Complaint {
	needle := strings.ToLower(strings.TrimSpace(q))
	out := make([]*model.Complaint, 0, len(complaints))
	for _, c := range complaints {
		if status != "" && c.Status != status {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(c.Title), needle) &&
			!strings.Contains(strings.ToLower(c.Message), needle) &&
			!strings.Contains(strings.ToLower(c.Token), needle) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// SortComplaints orders complaints by creation time in place. Equal
// timestamps keep their relative order.
func SortComplaints(complaints []*model.Complaint, order string) {
	slices.SortStableFunc(complaints, func(a, b *model.Complaint) int {
		if order == SortOldest {
			return a.CreatedAt.Compare(b.CreatedAt)
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
}

// SetStatus moves an owned complaint to status. Any transition is allowed.
func (s *ComplaintService) SetStatus(ctx context.Context, id, adminID, status string) (*model.Complaint, error) {
	next, err := model.ParseStatus(status)
	if err != nil {
		return nil, ErrInvalidStatus
	}
	if _, err := s.getOwned(ctx, id, adminID); err != nil {
		return nil, err
	}

	updated, err := s.complaints.UpdateComplaintStatus(ctx, id, next)
	if err != nil {
		return nil, mapComplaintErr(err)
	}

	s.metrics.IncComplaintStatusChanged(string(next))
	s.publish(model.EventComplaintStatusChanged, adminID, updated)
	return updated, nil
}

// Reply sets the admin reply. The status is not changed.
func (s *ComplaintService) Reply(ctx context.Context, id, adminID, reply string) (*model.Complaint, error) {
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return nil, ErrReplyRequired
	}
	if _, err := s.getOwned(ctx, id, adminID); err != nil {
		return nil, err
	}

	updated, err := s.complaints.SetComplaintReply(ctx, id, reply)
	if err != nil {
		return nil, mapComplaintErr(err)
	}

	s.publish(model.EventComplaintReplied, adminID, updated)
	return updated, nil
}

// Delete removes an owned complaint and its attachment, then rebuilds the
// analytics row of its creation day.
func (s *ComplaintService) Delete(ctx context.Context, id, adminID string) error {
	if _, err := s.getOwned(ctx, id, adminID); err != nil {
		return err
	}

	deleted, err := s.complaints.DeleteComplaint(ctx, id)
	if err != nil {
		return mapComplaintErr(err)
	}
	s.metrics.IncComplaintDeleted()

	if deleted.Attachment != nil && deleted.Attachment.Key != "" {
		deleteObjects(ctx, s.objects, []string{deleted.Attachment.Key}, s.logger)
	}

	if s.analytics != nil {
		key := model.DayKey{BoxID: deleted.BoxID, Date: model.TruncateDay(deleted.CreatedAt)}
		if err := s.analytics.RecomputeDays(ctx, []model.DayKey{key}); err != nil {
			s.logger.Warn("analytics recompute after delete failed", "box_id", deleted.BoxID, "error", err)
		}
	}
	return nil
}

// ListFeedback returns the latest feedback of an owned box.
func (s *ComplaintService) ListFeedback(ctx context.Context, boxID, adminID string, limit int) ([]*model.Feedback, error) {
	if err := s.checkOwnership(ctx, boxID, adminID); err != nil {
		return nil, err
	}
	return s.feedback.ListFeedback(ctx, boxID, cmp.Or(limit, repository.DefaultFeedbackLimit))
}

func (s *ComplaintService) checkOwnership(ctx context.Context, boxID, adminID string) error {
	if _, err := s.boxes.GetOwnedBox(ctx, boxID, adminID); err != nil {
		if errors.Is(err, repository.ErrBoxNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (s *ComplaintService) getOwned(ctx context.Context, id, adminID string) (*model.Complaint, error) {
	c, err := s.complaints.GetOwnedComplaint(ctx, id, adminID)
	if err != nil {
		return nil, mapComplaintErr(err)
	}
	return c, nil
}

func (s *ComplaintService) publish(et model.EventType, adminID string, c *model.Complaint) {
	box := &model.Box{ID: c.BoxID, AdminID: adminID}
	s.events.PublishAsync(model.NewComplaintEvent(et, box, c))
}

func mapComplaintErr(err error) error {
	if errors.Is(err, repository.ErrComplaintNotFound) {
		return ErrNotFound
	}
	return err
}
