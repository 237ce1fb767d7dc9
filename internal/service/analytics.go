package service

import (
	"context"
	"errors"
	"time"

	"github.com/tellus/tellus/internal/model"
	"github.com/tellus/tellus/internal/repository"
)

// Analytics ranges and how many days each spans back from today.
var analyticsRanges = map[string]int{
	"week":    7,
	"month":   30,
	"quarter": 90,
	"year":    365,
}

// DefaultAnalyticsRange is used when no range is given.
const DefaultAnalyticsRange = "week"

// DailyRowReader reads daily analytics rows.
type DailyRowReader interface {
	GetDailyRows(ctx context.Context, boxID string, from, to time.Time) ([]model.AnalyticsRow, error)
}

// AnalyticsService summarizes daily analytics rows.
type AnalyticsService struct {
	boxes BoxStore
	rows  DailyRowReader
	now   func() time.Time
}

// NewAnalyticsService creates a new AnalyticsService.
func NewAnalyticsService(boxes BoxStore, rows DailyRowReader) *AnalyticsService {
	return &AnalyticsService{boxes: boxes, rows: rows, now: time.Now}
}

// Summary aggregates the rows of an owned box over rangeName, covering
// [today-N, today] in UTC.
func (s *AnalyticsService) Summary(ctx context.Context, boxID, adminID, rangeName string) (*model.AnalyticsSummary, error) {
	if rangeName == "" {
		rangeName = DefaultAnalyticsRange
	}
	days, ok := analyticsRanges[rangeName]
	if !ok {
		return nil, ErrInvalidRange
	}

	if _, err := s.boxes.GetOwnedBox(ctx, boxID, adminID); err != nil {
		if errors.Is(err, repository.ErrBoxNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	to := model.TruncateDay(s.now())
	from := to.AddDate(0, 0, -days)
	rows, err := s.rows.GetDailyRows(ctx, boxID, from, to)
	if err != nil {
		return nil, err
	}

	summary := Summarize(rows)
	summary.BoxID = boxID
	summary.Range = rangeName
	summary.From = from.Format(time.DateOnly)
	summary.To = to.Format(time.DateOnly)
	summary.GeneratedAt = s.now().UTC()
	return summary, nil
}

// Summarize sums totals and status counts over rows and averages the
// non-null daily ratings without weighting.
func Summarize(rows []model.AnalyticsRow) *model.AnalyticsSummary {
	summary := &model.AnalyticsSummary{Daily: rows}
	if summary.Daily == nil {
		summary.Daily = []model.AnalyticsRow{}
	}

	var ratingSum float64
	var ratingDays int
	for _, row := range rows {
		summary.TotalComplaints += row.TotalComplaints
		summary.TotalFeedbacks += row.TotalFeedbacks
		summary.Statuses.Received += row.ReceivedCount
		summary.Statuses.UnderReview += row.UnderReviewCount
		summary.Statuses.Solved += row.SolvedCount
		if row.AvgRating != nil {
			ratingSum += *row.AvgRating
			ratingDays++
		}
	}
	if ratingDays > 0 {
		avg := ratingSum / float64(ratingDays)
		summary.AvgRating = &avg
	}
	return summary
}
