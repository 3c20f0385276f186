package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/overlaypush/broadcast-backend/internal/blob"
	appErrors "github.com/overlaypush/broadcast-backend/internal/errors"
	"github.com/overlaypush/broadcast-backend/internal/history"
	"github.com/overlaypush/broadcast-backend/internal/model"
	"github.com/overlaypush/broadcast-backend/internal/repository"
	"github.com/overlaypush/broadcast-backend/internal/service"
)

func newTestService(maxStored int) (*service.CampaignService, *repository.MemoryCampaignRepository, *blob.MemoryStore) {
	repo := repository.NewMemoryCampaignRepository()
	blobs := blob.NewMemoryStore()
	svc := &service.CampaignService{
		Repo:      repo,
		Blobs:     blobs,
		History:   history.NewMemoryRecorder(),
		MaxStored: maxStored,
		Log:       zerolog.Nop(),
	}
	return svc, repo, blobs
}

func validRequest() service.ScheduleRequest {
	return service.ScheduleRequest{
		Notification: model.NotificationConfig{Title: "hello", Body: "world"},
		Payload:      []byte("tok-1\ntok-2\n"),
		AuthToken:    "cred",
		ScheduledAt:  time.Now().Add(time.Hour),
	}
}

func TestSchedulePastTimePersistsNothing(t *testing.T) {
	svc, repo, _ := newTestService(50)

	req := validRequest()
	req.ScheduledAt = time.Now().Add(-time.Minute)

	if _, err := svc.Schedule(context.Background(), req); !appErrors.IsInvalidInput(err) {
		t.Fatalf("expected invalid input, got %v", err)
	}

	campaigns, err := repo.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(campaigns) != 0 {
		t.Fatalf("record store should be untouched, has %d campaigns", len(campaigns))
	}
}

func TestScheduleEmptyPayloadRejected(t *testing.T) {
	svc, repo, _ := newTestService(50)

	req := validRequest()
	req.Payload = []byte("  \n \n")

	if _, err := svc.Schedule(context.Background(), req); !appErrors.IsInvalidInput(err) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	campaigns, _ := repo.List(context.Background())
	if len(campaigns) != 0 {
		t.Fatal("record store should be untouched")
	}
}

func TestScheduleCreatesPendingRecordAndBlob(t *testing.T) {
	svc, repo, blobs := newTestService(50)

	c, err := svc.Schedule(context.Background(), validRequest())
	if err != nil {
		t.Fatal(err)
	}
	if c.ID == "" {
		t.Fatal("expected assigned id")
	}
	if c.Status != model.StatusPending {
		t.Fatalf("status = %s, want pending", c.Status)
	}

	stored, err := repo.GetByID(context.Background(), c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.AuthToken != "cred" {
		t.Fatal("credential not persisted")
	}
	if !blobs.Exists(c.ID) {
		t.Fatal("payload blob not stored")
	}
}

func TestScheduleIDsAreTimeSortable(t *testing.T) {
	svc, _, _ := newTestService(50)

	a, err := svc.Schedule(context.Background(), validRequest())
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(2 * time.Millisecond)
	b, err := svc.Schedule(context.Background(), validRequest())
	if err != nil {
		t.Fatal(err)
	}
	if !(a.ID < b.ID) {
		t.Fatalf("ids not time-sortable: %s !< %s", a.ID, b.ID)
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	svc, repo, blobs := newTestService(50)

	c, err := svc.Schedule(context.Background(), validRequest())
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.Cancel(context.Background(), c.ID); err != nil {
		t.Fatalf("first cancel: %v", err)
	}
	if err := svc.Cancel(context.Background(), c.ID); err != nil {
		t.Fatalf("second cancel: %v", err)
	}

	if _, err := repo.GetByID(context.Background(), c.ID); !appErrors.IsCampaignNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if blobs.Exists(c.ID) {
		t.Fatal("payload blob should be deleted")
	}
}

func TestScheduleEvictsOldestBeyondBound(t *testing.T) {
	const bound = 3
	svc, repo, blobs := newTestService(bound)

	ids := []string{}
	for i := 0; i < 5; i++ {
		c, err := svc.Schedule(context.Background(), validRequest())
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, c.ID)
		time.Sleep(2 * time.Millisecond)
	}

	campaigns, err := repo.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(campaigns) != bound {
		t.Fatalf("stored %d campaigns, want %d", len(campaigns), bound)
	}

	// The two oldest must be gone, records and blobs both.
	for _, id := range ids[:2] {
		if _, err := repo.GetByID(context.Background(), id); !appErrors.IsCampaignNotFound(err) {
			t.Fatalf("campaign %s should be evicted", id)
		}
		if blobs.Exists(id) {
			t.Fatalf("blob %s should be evicted", id)
		}
	}
	for _, id := range ids[2:] {
		if _, err := repo.GetByID(context.Background(), id); err != nil {
			t.Fatalf("campaign %s should survive: %v", id, err)
		}
	}
}

func TestListNewestFirst(t *testing.T) {
	svc, _, _ := newTestService(50)

	first, _ := svc.Schedule(context.Background(), validRequest())
	time.Sleep(2 * time.Millisecond)
	second, _ := svc.Schedule(context.Background(), validRequest())

	campaigns, err := svc.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(campaigns) != 2 {
		t.Fatalf("expected 2 campaigns, got %d", len(campaigns))
	}
	if campaigns[0].ID != second.ID || campaigns[1].ID != first.ID {
		t.Fatal("expected newest-first ordering")
	}
}
