package analytics

import (
	"errors"
	"fmt"

	"github.com/tellus/tellus/internal/model"
)

// ErrInvalidEvent wraps every validation failure.
var ErrInvalidEvent = errors.New("invalid box event")

// ValidateEvent checks the fields the worker depends on.
func ValidateEvent(e model.BoxEvent) error {
	switch {
	case e.ID == "":
		return fmt.Errorf("%w: id is required", ErrInvalidEvent)
	case !model.IsValidEventType(e.Type):
		return fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, e.Type)
	case e.BoxID == "":
		return fmt.Errorf("%w: box_id is required", ErrInvalidEvent)
	case e.AdminID == "":
		return fmt.Errorf("%w: admin_id is required", ErrInvalidEvent)
	case e.SubjectCreatedAt.IsZero():
		return fmt.Errorf("%w: subject_created_at must be set", ErrInvalidEvent)
	}

	if e.Type == model.EventFeedbackSubmitted {
		if !model.ValidRating(e.Rating) {
			return fmt.Errorf("%w: rating out of range", ErrInvalidEvent)
		}
		return nil
	}
	if e.ComplaintID == "" {
		return fmt.Errorf("%w: complaint_id is required", ErrInvalidEvent)
	}
	if e.Status != "" && !e.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidEvent, e.Status)
	}
	return nil
}
