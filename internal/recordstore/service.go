package recordstore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/jobtrack/internal/application"
	"github.com/kalambet/jobtrack/internal/storage"
)

// Store defines the persistence operations the Service needs.
// Implemented by storage.Store.
type Store interface {
	InsertApplication(ctx context.Context, a application.Application) error
	GetApplication(ctx context.Context, owner, id string) (application.Application, error)
	ListApplications(ctx context.Context, owner string) ([]application.Application, error)
	UpdateApplication(ctx context.Context, a application.Application) error
	DeleteApplication(ctx context.Context, owner, id string) error
	AppendEvent(ctx context.Context, e storage.Event) error
	ListEvents(ctx context.Context, owner, applicationID string) ([]storage.Event, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Snapshot is the full record set of one owner at a point in time. A
// snapshot with a non-nil Err is the last one on its channel.
type Snapshot struct {
	Records []application.Application
	Err     error
}

// Service owns the application records of every principal. All operations
// are scoped to the owner passed in; an empty owner is rejected with
// ErrUnauthenticated.
type Service struct {
	store    Store
	notifier Notifier
	clock    Clock
	hub      *hub
	newID    func() string
}

// New creates a Service. A nil notifier means a single-process deployment.
func New(store Store, notifier Notifier) *Service {
	return NewWithClock(store, notifier, realClock{})
}

// NewWithClock creates a Service with a custom clock (for testing).
func NewWithClock(store Store, notifier Notifier, clock Clock) *Service {
	if notifier == nil {
		notifier = LocalNotifier{}
	}
	return &Service{
		store:    store,
		notifier: notifier,
		clock:    clock,
		hub:      newHub(),
		newID:    func() string { return uuid.New().String() },
	}
}

// Run forwards change signals from other processes to local subscribers
// until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	return s.notifier.Listen(ctx, s.hub.notify)
}

// now is truncated to the second so freshly written records compare equal
// to what the store reads back.
func (s *Service) now() time.Time {
	return s.clock.Now().UTC().Truncate(time.Second)
}

// Create validates c and stores it as a new record, returning the new id.
func (s *Service) Create(ctx context.Context, owner string, c application.Candidate) (string, error) {
	if owner == "" {
		return "", ErrUnauthenticated
	}
	now := s.now()
	if errs := application.Validate(c, now); len(errs) > 0 {
		return "", &ValidationError{Fields: errs}
	}

	a := application.New(s.newID(), owner, c, now)
	if err := s.store.InsertApplication(ctx, a); err != nil {
		return "", storeErr("create", err)
	}

	s.record(ctx, a, storage.EventCreated, fmt.Sprintf("%s - %s", a.CompanyName, a.JobTitle))
	s.changed(ctx, owner)
	return a.ID, nil
}

// Update applies the fields present in p to the record id. It fails with a
// NOT_FOUND StoreError when the record does not exist or belongs to someone
// else.
func (s *Service) Update(ctx context.Context, owner, id string, p application.Patch) (application.Application, error) {
	if owner == "" {
		return application.Application{}, ErrUnauthenticated
	}
	now := s.now()
	if errs := application.ValidatePatch(p, now); len(errs) > 0 {
		return application.Application{}, &ValidationError{Fields: errs}
	}

	current, err := s.store.GetApplication(ctx, owner, id)
	if err != nil {
		return application.Application{}, storeErr("update", err)
	}

	updated := p.Apply(current, now)
	if err := s.store.UpdateApplication(ctx, updated); err != nil {
		return application.Application{}, storeErr("update", err)
	}

	if current.Status != updated.Status {
		s.record(ctx, updated, storage.EventStatusChanged, fmt.Sprintf("%s -> %s", current.Status, updated.Status))
	}
	if changed := changedFields(p); len(changed) > 0 {
		s.record(ctx, updated, storage.EventUpdated, strings.Join(changed, ", "))
	}
	s.changed(ctx, owner)
	return updated, nil
}

// Delete removes the record id.
func (s *Service) Delete(ctx context.Context, owner, id string) error {
	if owner == "" {
		return ErrUnauthenticated
	}
	current, err := s.store.GetApplication(ctx, owner, id)
	if err != nil {
		return storeErr("delete", err)
	}
	if err := s.store.DeleteApplication(ctx, owner, id); err != nil {
		return storeErr("delete", err)
	}

	s.record(ctx, current, storage.EventDeleted, fmt.Sprintf("%s - %s", current.CompanyName, current.JobTitle))
	s.changed(ctx, owner)
	return nil
}

func (s *Service) Get(ctx context.Context, owner, id string) (application.Application, error) {
	if owner == "" {
		return application.Application{}, ErrUnauthenticated
	}
	a, err := s.store.GetApplication(ctx, owner, id)
	if err != nil {
		return application.Application{}, storeErr("get", err)
	}
	return a, nil
}

func (s *Service) List(ctx context.Context, owner string) ([]application.Application, error) {
	if owner == "" {
		return nil, ErrUnauthenticated
	}
	records, err := s.store.ListApplications(ctx, owner)
	if err != nil {
		return nil, storeErr("list", err)
	}
	return records, nil
}

// Events returns the change history of one record. History is kept after the
// record is deleted.
func (s *Service) Events(ctx context.Context, owner, id string) ([]storage.Event, error) {
	if owner == "" {
		return nil, ErrUnauthenticated
	}
	events, err := s.store.ListEvents(ctx, owner, id)
	if err != nil {
		return nil, storeErr("events", err)
	}
	return events, nil
}

// Subscribe streams the owner's record set. The first snapshot is the
// current state; another follows every change. A consumer that falls behind
// only sees the latest snapshot. The channel is closed when ctx is cancelled
// or after a snapshot carrying an error.
func (s *Service) Subscribe(ctx context.Context, owner string) (<-chan Snapshot, error) {
	if owner == "" {
		return nil, ErrUnauthenticated
	}

	// Register before the first load so no change between the two is lost.
	signal := s.hub.add(owner)
	out := make(chan Snapshot, 1)

	go func() {
		defer close(out)
		defer s.hub.remove(owner, signal)

		for {
			records, err := s.store.ListApplications(ctx, owner)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				offer(out, Snapshot{Err: storeErr("subscribe", err)})
				return
			}
			offer(out, Snapshot{Records: records})

			select {
			case <-ctx.Done():
				return
			case <-signal:
			}
		}
	}()

	return out, nil
}

// offer puts snap on out, replacing a pending snapshot the consumer has not
// taken yet. Only the subscription goroutine sends on out.
func offer(out chan Snapshot, snap Snapshot) {
	select {
	case out <- snap:
		return
	default:
	}
	select {
	case <-out:
	default:
	}
	out <- snap
}

func (s *Service) changed(ctx context.Context, owner string) {
	s.hub.notify(owner)
	if err := s.notifier.Publish(ctx, owner); err != nil {
		slog.Warn("failed to publish change notification", "owner", owner, "error", err)
	}
}

// record appends a history event. The mutation has already succeeded, so a
// failure here is logged and not returned.
func (s *Service) record(ctx context.Context, a application.Application, eventType, details string) {
	e := storage.Event{
		ID:            s.newID(),
		ApplicationID: a.ID,
		OwnerID:       a.OwnerID,
		Type:          eventType,
		Details:       details,
		CreatedAt:     s.now(),
	}
	if err := s.store.AppendEvent(ctx, e); err != nil {
		slog.Warn("failed to record application event", "id", a.ID, "type", eventType, "error", err)
	}
}

func changedFields(p application.Patch) []string {
	var out []string
	add := func(set bool, name string) {
		if set {
			out = append(out, name)
		}
	}
	add(p.CompanyName != nil, "companyName")
	add(p.JobTitle != nil, "jobTitle")
	add(p.JobType != nil, "jobType")
	add(p.Location != nil, "location")
	add(p.DateApplied != nil, "dateApplied")
	add(p.JobURL != nil, "jobUrl")
	add(p.MeetingURL != nil, "meetingUrl")
	add(p.OtherURLs != nil, "otherUrls")
	add(p.JobDescription != nil, "jobDescription")
	add(p.Notes != nil, "notes")
	return out
}
