package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/kalambet/jobtrack/internal/application"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleApp(id, owner string, created time.Time) application.Application {
	return application.Application{
		ID:          id,
		OwnerID:     owner,
		CompanyName: "Acme",
		JobTitle:    "Engineer",
		JobType:     application.FullTime,
		Location:    "Berlin",
		DateApplied: "2024-01-05",
		Status:      application.Applied,
		JobURL:      "https://acme.example/jobs/1",
		OtherURLs:   []application.Link{{Name: "Glassdoor", URL: "https://glassdoor.example/acme"}},
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

// TestMigrationsOrdered verifies migrations are applied in ascending numeric order.
func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(versions) != 2 {
		t.Fatalf("expected 2 applied migrations, got %v", versions)
	}

	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not in ascending order: %v", versions)
			break
		}
	}
}

func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	for _, idx := range []string{"idx_applications_owner", "idx_application_events_app"} {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying index %s: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %s not found", idx)
		}
	}
}

func TestParseMigrationVersion(t *testing.T) {
	v, err := parseMigrationVersion("002_events_profiles.sql")
	if err != nil || v != 2 {
		t.Errorf("parseMigrationVersion = %d, %v; want 2, nil", v, err)
	}
	if _, err := parseMigrationVersion("events.sql"); err == nil {
		t.Error("expected error for filename without version")
	}
}

func TestApplicationRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	created := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)

	app := sampleApp("a1", "alice", created)
	if err := s.InsertApplication(ctx, app); err != nil {
		t.Fatalf("InsertApplication: %v", err)
	}

	got, err := s.GetApplication(ctx, "alice", "a1")
	if err != nil {
		t.Fatalf("GetApplication: %v", err)
	}
	if got.CompanyName != "Acme" || got.JobType != application.FullTime || got.Status != application.Applied {
		t.Errorf("unexpected application: %+v", got)
	}
	if !got.CreatedAt.Equal(created) || !got.UpdatedAt.Equal(created) {
		t.Errorf("timestamps = %v / %v, want %v", got.CreatedAt, got.UpdatedAt, created)
	}
	if len(got.OtherURLs) != 1 || got.OtherURLs[0].Name != "Glassdoor" {
		t.Errorf("OtherURLs = %+v", got.OtherURLs)
	}
}

func TestInsertApplication_NilLinksStoredAsEmpty(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	app := sampleApp("a1", "alice", time.Now().UTC().Truncate(time.Second))
	app.OtherURLs = nil
	if err := s.InsertApplication(ctx, app); err != nil {
		t.Fatalf("InsertApplication: %v", err)
	}

	got, err := s.GetApplication(ctx, "alice", "a1")
	if err != nil {
		t.Fatalf("GetApplication: %v", err)
	}
	if got.OtherURLs == nil || len(got.OtherURLs) != 0 {
		t.Errorf("OtherURLs = %#v, want empty non-nil slice", got.OtherURLs)
	}
}

func TestInsertApplication_DuplicateID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	if err := s.InsertApplication(ctx, sampleApp("a1", "alice", now)); err != nil {
		t.Fatalf("InsertApplication: %v", err)
	}
	err := s.InsertApplication(ctx, sampleApp("a1", "bob", now))
	if !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestGetApplication_OwnerScoped(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.InsertApplication(ctx, sampleApp("a1", "alice", time.Now().UTC())); err != nil {
		t.Fatalf("InsertApplication: %v", err)
	}

	if _, err := s.GetApplication(ctx, "bob", "a1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for other owner, got %v", err)
	}
	if _, err := s.GetApplication(ctx, "alice", "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing id, got %v", err)
	}
}

func TestListApplications_OrderAndIsolation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"c", "a", "b"} {
		if err := s.InsertApplication(ctx, sampleApp(id, "alice", base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("InsertApplication(%s): %v", id, err)
		}
	}
	if err := s.InsertApplication(ctx, sampleApp("x", "bob", base)); err != nil {
		t.Fatalf("InsertApplication(x): %v", err)
	}

	got, err := s.ListApplications(ctx, "alice")
	if err != nil {
		t.Fatalf("ListApplications: %v", err)
	}
	var ids []string
	for _, a := range got {
		ids = append(ids, a.ID)
	}
	if fmt.Sprint(ids) != "[c a b]" {
		t.Errorf("ids = %v, want [c a b]", ids)
	}

	empty, err := s.ListApplications(ctx, "carol")
	if err != nil {
		t.Fatalf("ListApplications: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", empty)
	}

}

func TestUpdateApplication(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	created := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)

	app := sampleApp("a1", "alice", created)
	if err := s.InsertApplication(ctx, app); err != nil {
		t.Fatalf("InsertApplication: %v", err)
	}

	app.Status = application.Interviewing
	app.Notes = "phone screen"
	app.UpdatedAt = created.Add(48 * time.Hour)
	app.CreatedAt = created.Add(time.Hour) // must not be written
	if err := s.UpdateApplication(ctx, app); err != nil {
		t.Fatalf("UpdateApplication: %v", err)
	}

	got, err := s.GetApplication(ctx, "alice", "a1")
	if err != nil {
		t.Fatalf("GetApplication: %v", err)
	}
	if got.Status != application.Interviewing || got.Notes != "phone screen" {
		t.Errorf("update not applied: %+v", got)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt changed to %v", got.CreatedAt)
	}
	if !got.UpdatedAt.Equal(created.Add(48 * time.Hour)) {
		t.Errorf("UpdatedAt = %v", got.UpdatedAt)
	}

	app.OwnerID = "bob"
	if err := s.UpdateApplication(ctx, app); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for other owner, got %v", err)
	}
}

func TestDeleteApplication(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.InsertApplication(ctx, sampleApp("a1", "alice", time.Now().UTC())); err != nil {
		t.Fatalf("InsertApplication: %v", err)
	}

	if err := s.DeleteApplication(ctx, "bob", "a1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for other owner, got %v", err)
	}
	if err := s.DeleteApplication(ctx, "alice", "a1"); err != nil {
		t.Fatalf("DeleteApplication: %v", err)
	}
	if err := s.DeleteApplication(ctx, "alice", "a1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestEvents(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)

	events := []Event{
		{ID: "e1", ApplicationID: "a1", OwnerID: "alice", Type: EventCreated, CreatedAt: base},
		{ID: "e2", ApplicationID: "a1", OwnerID: "alice", Type: EventStatusChanged, Details: "applied -> interviewing", CreatedAt: base.Add(time.Hour)},
		{ID: "e3", ApplicationID: "a1", OwnerID: "bob", Type: EventCreated, CreatedAt: base},
	}
	for _, e := range events {
		if err := s.AppendEvent(ctx, e); err != nil {
			t.Fatalf("AppendEvent(%s): %v", e.ID, err)
		}
	}

	got, err := s.ListEvents(ctx, "alice", "a1")
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].ID != "e1" || got[1].Details != "applied -> interviewing" {
		t.Errorf("unexpected events: %+v", got)
	}
	if !got[1].CreatedAt.Equal(base.Add(time.Hour)) {
		t.Errorf("CreatedAt = %v", got[1].CreatedAt)
	}
}

func TestProfileKeys_PerOwner(t *testing.T) {
	s := openTestStore(t)

	if err := s.SetProfileKey("alice", "displayName", "Alice"); err != nil {
		t.Fatalf("SetProfileKey: %v", err)
	}
	if err := s.SetProfileKey("alice", "displayName", "Alice B."); err != nil {
		t.Fatalf("SetProfileKey overwrite: %v", err)
	}
	if err := s.SetProfileKey("bob", "displayName", "Bob"); err != nil {
		t.Fatalf("SetProfileKey: %v", err)
	}

	v, err := s.GetProfileKey("alice", "displayName")
	if err != nil || v != "Alice B." {
		t.Errorf("GetProfileKey = %q, %v", v, err)
	}
	if _, err := s.GetProfileKey("alice", "email"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	all, err := s.GetAllProfileKeys("bob")
	if err != nil {
		t.Fatalf("GetAllProfileKeys: %v", err)
	}
	if len(all) != 1 || all["displayName"] != "Bob" {
		t.Errorf("GetAllProfileKeys = %v", all)
	}
}
