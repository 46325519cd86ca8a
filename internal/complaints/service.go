package complaints

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"civiq/internal/core"
	"civiq/internal/notify"
)

// Service implements the complaint operations the HTTP layer exposes. It
// enforces the status machine and ownership rules and emits notifications;
// caching, locking, and idempotency live outside it in the coordinator.
type Service struct {
	store    Store
	notifier notify.Notifier
}

// NewService creates a complaint service.
func NewService(store Store, notifier notify.Notifier) *Service {
	return &Service{store: store, notifier: notifier}
}

// CreateInput holds the fields a citizen supplies when filing a complaint.
type CreateInput struct {
	Title       string
	Description string
	Category    string
	Location    string
}

// Create files a new complaint for the acting citizen.
func (s *Service) Create(ctx context.Context, identity core.Identity, in CreateInput) (*Complaint, error) {
	if identity.IsAnonymous() {
		return nil, core.NewAuthenticationError("filing a complaint requires authentication")
	}

	now := time.Now().UTC()
	c := &Complaint{
		ID:          uuid.NewString(),
		Reference:   newReference(now),
		Title:       in.Title,
		Description: in.Description,
		Category:    in.Category,
		Status:      StatusOpen,
		Priority:    PriorityNormal,
		CitizenID:   identity.UserID,
		Location:    in.Location,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create complaint: %w", err)
	}

	s.notifier.Send(ctx, notify.Notification{
		Event:       notify.EventCreated,
		Recipient:   c.CitizenID,
		ComplaintID: c.ID,
		Reference:   c.Reference,
		Detail:      c.Title,
	})
	return c, nil
}

// Get returns one complaint. Citizens may only see their own complaints;
// staff see everything.
func (s *Service) Get(ctx context.Context, identity core.Identity, id string) (*Complaint, error) {
	c, err := s.store.GetByID(ctx, id)
	if err == ErrNotFound {
		return nil, core.NewNotFoundError("complaint not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get complaint: %w", err)
	}
	if !identity.IsStaff() && c.CitizenID != identity.UserID {
		// Hidden rather than forbidden: don't leak existence.
		return nil, core.NewNotFoundError("complaint not found")
	}
	return c, nil
}

// List returns complaints visible to the acting user. Citizens see only
// their own; staff may filter freely.
func (s *Service) List(ctx context.Context, identity core.Identity, f Filter) ([]*Complaint, error) {
	if !identity.IsStaff() {
		f.CitizenID = identity.CacheScope()
	}
	out, err := s.store.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list complaints: %w", err)
	}
	if out == nil {
		out = []*Complaint{}
	}
	return out, nil
}

// UpdateStatus moves a complaint through the triage lifecycle. Staff only.
func (s *Service) UpdateStatus(ctx context.Context, identity core.Identity, id string, to Status, priority Priority) (*Complaint, error) {
	if !identity.IsStaff() {
		return nil, core.NewForbiddenError("only staff may change complaint status")
	}
	if !to.Valid() {
		return nil, core.NewValidationError(fmt.Sprintf("unknown status %q", to), nil)
	}

	c, err := s.store.GetByID(ctx, id)
	if err == ErrNotFound {
		return nil, core.NewNotFoundError("complaint not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get complaint: %w", err)
	}

	if !ValidTransition(c.Status, to) {
		return nil, core.NewValidationError(
			fmt.Sprintf("cannot move complaint from %s to %s", c.Status, to), nil)
	}

	c.Status = to
	if priority != "" {
		c.Priority = priority
	}
	c.UpdatedAt = time.Now().UTC()
	if err := s.store.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("update complaint: %w", err)
	}

	s.notifier.Send(ctx, notify.Notification{
		Event:       notify.EventStatusChanged,
		Recipient:   c.CitizenID,
		ComplaintID: c.ID,
		Reference:   c.Reference,
		Detail:      string(to),
	})
	return c, nil
}

// Assign sets the staff member responsible for a complaint. Staff only.
func (s *Service) Assign(ctx context.Context, identity core.Identity, id, assigneeID string) (*Complaint, error) {
	if !identity.IsStaff() {
		return nil, core.NewForbiddenError("only staff may assign complaints")
	}

	c, err := s.store.GetByID(ctx, id)
	if err == ErrNotFound {
		return nil, core.NewNotFoundError("complaint not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get complaint: %w", err)
	}

	c.AssigneeID = assigneeID
	c.UpdatedAt = time.Now().UTC()
	if err := s.store.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("update complaint: %w", err)
	}

	if assigneeID != "" {
		s.notifier.Send(ctx, notify.Notification{
			Event:       notify.EventAssigned,
			Recipient:   assigneeID,
			ComplaintID: c.ID,
			Reference:   c.Reference,
		})
	}
	return c, nil
}

// AddNote attaches a note to a complaint. Citizens may note their own
// complaints (never internally); staff may note any complaint.
func (s *Service) AddNote(ctx context.Context, identity core.Identity, complaintID, body string, internal bool) (*Note, *Complaint, error) {
	c, err := s.store.GetByID(ctx, complaintID)
	if err == ErrNotFound {
		return nil, nil, core.NewNotFoundError("complaint not found")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get complaint: %w", err)
	}

	if !identity.IsStaff() {
		if c.CitizenID != identity.UserID {
			return nil, nil, core.NewNotFoundError("complaint not found")
		}
		if internal {
			return nil, nil, core.NewForbiddenError("only staff may add internal notes")
		}
	}

	n := &Note{
		ID:          uuid.NewString(),
		ComplaintID: complaintID,
		AuthorID:    identity.UserID,
		Body:        body,
		Internal:    internal,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.AddNote(ctx, n); err != nil {
		return nil, nil, fmt.Errorf("add note: %w", err)
	}

	if n.AuthorID != c.CitizenID && !internal {
		s.notifier.Send(ctx, notify.Notification{
			Event:       notify.EventNoteAdded,
			Recipient:   c.CitizenID,
			ComplaintID: c.ID,
			Reference:   c.Reference,
		})
	}
	return n, c, nil
}

// ListNotes returns a complaint's notes visible to the acting user.
func (s *Service) ListNotes(ctx context.Context, identity core.Identity, complaintID string) ([]*Note, error) {
	if _, err := s.Get(ctx, identity, complaintID); err != nil {
		return nil, err
	}
	notes, err := s.store.ListNotes(ctx, complaintID, identity.IsStaff())
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	if notes == nil {
		notes = []*Note{}
	}
	return notes, nil
}

// newReference builds the human-facing reference, e.g. "CIV-2026-4F7A2C".
func newReference(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("CIV-%d-%s", now.Year(), suffix)
}
