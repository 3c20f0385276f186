package runner_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/overlaypush/broadcast-backend/internal/blob"
	"github.com/overlaypush/broadcast-backend/internal/delivery"
	"github.com/overlaypush/broadcast-backend/internal/dispatch"
	appErrors "github.com/overlaypush/broadcast-backend/internal/errors"
	"github.com/overlaypush/broadcast-backend/internal/history"
	"github.com/overlaypush/broadcast-backend/internal/model"
	"github.com/overlaypush/broadcast-backend/internal/repository"
	"github.com/overlaypush/broadcast-backend/internal/runner"
)

type fakeClient struct {
	mu         sync.Mutex
	failTokens map[string]bool
	sent       int
}

func (f *fakeClient) Send(ctx context.Context, token string, cfg model.NotificationConfig, credential string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent++
	if f.failTokens[token] {
		return &delivery.Error{StatusCode: 400, Body: "unregistered token"}
	}
	return nil
}

func (f *fakeClient) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent
}

// progressRecorder snapshots recipients_done at every checkpoint.
type progressRecorder struct {
	repository.CampaignRepositoryInterface
	mu   sync.Mutex
	done []int
}

func (p *progressRecorder) UpdateProgress(ctx context.Context, id string, result *model.CampaignResult) error {
	p.mu.Lock()
	p.done = append(p.done, result.Progress.RecipientsDone)
	p.mu.Unlock()
	return p.CampaignRepositoryInterface.UpdateProgress(ctx, id, result)
}

func newTestRunner(repo repository.CampaignRepositoryInterface, blobs blob.Store, client delivery.Client, recorder *history.MemoryRecorder, chunkSize, maxRetries int) *runner.Runner {
	return &runner.Runner{
		Repo:       repo,
		Blobs:      blobs,
		Dispatcher: dispatch.New(client, 100, 4, 1, 0, 0, zerolog.Nop()),
		History:    recorder,
		ChunkSize:  chunkSize,
		MaxRetries: maxRetries,
		Log:        zerolog.Nop(),
	}
}

func seedClaimedCampaign(t *testing.T, repo repository.CampaignRepositoryInterface, blobs blob.Store, id string, payload string) *model.Campaign {
	t.Helper()
	ctx := context.Background()
	c := &model.Campaign{
		ID:          id,
		ScheduledAt: time.Now().Add(-time.Minute),
		Status:      model.StatusPending,
		CreatedAt:   time.Now(),
	}
	if payload != "" {
		if err := blobs.Put(ctx, id, []byte(payload)); err != nil {
			t.Fatalf("put payload: %v", err)
		}
	}
	if err := repo.Create(ctx, c); err != nil {
		t.Fatalf("create campaign: %v", err)
	}
	claimed, err := repo.ClaimPending(ctx, id)
	if err != nil || !claimed {
		t.Fatalf("claim campaign: claimed=%v err=%v", claimed, err)
	}
	c.Status = model.StatusProcessing
	return c
}

func TestRunReportsExactFailedSubset(t *testing.T) {
	const total = 10000
	var payload strings.Builder
	failSet := map[string]bool{}
	for i := 0; i < total; i++ {
		token := fmt.Sprintf("tok-%05d", i)
		payload.WriteString(token + "\n")
		if i%97 == 0 {
			failSet[token] = true
		}
	}

	repo := repository.NewMemoryCampaignRepository()
	blobs := blob.NewMemoryStore()
	recorder := history.NewMemoryRecorder()
	client := &fakeClient{failTokens: failSet}

	r := newTestRunner(repo, blobs, client, recorder, 1000, 3)
	c := seedClaimedCampaign(t, repo, blobs, "camp-1", payload.String())

	r.Run(context.Background(), c)

	got, err := repo.GetByID(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("get campaign: %v", err)
	}
	if got.Status != model.StatusCompleted {
		t.Fatalf("expected completed, got %s (last error: %s)", got.Status, got.LastError)
	}
	if got.CompletedAt == nil {
		t.Fatal("completed_at not set")
	}
	if got.Result == nil {
		t.Fatal("result not set")
	}
	if got.Result.FailedCount != len(failSet) {
		t.Fatalf("failed count = %d, want %d", got.Result.FailedCount, len(failSet))
	}
	if got.Result.SuccessCount != total-len(failSet) {
		t.Fatalf("success count = %d, want %d", got.Result.SuccessCount, total-len(failSet))
	}
	if got.Result.SuccessCount+got.Result.FailedCount != got.Result.Progress.RecipientsTotal {
		t.Fatal("success+failed != recipients total")
	}
	seen := map[string]bool{}
	for _, fr := range got.Result.FailedRecipients {
		if !failSet[fr.Recipient] {
			t.Fatalf("unexpected failed recipient %s", fr.Recipient)
		}
		seen[fr.Recipient] = true
	}
	if len(seen) != len(failSet) {
		t.Fatalf("failed recipients: got %d distinct, want %d", len(seen), len(failSet))
	}

	if blobs.Exists(c.ID) {
		t.Fatal("payload blob should be deleted after completion")
	}

	records := recorder.All()
	if len(records) != 1 {
		t.Fatalf("expected 1 trigger record, got %d", len(records))
	}
	if records[0].SuccessCount != got.Result.SuccessCount || records[0].FailedCount != got.Result.FailedCount {
		t.Fatalf("trigger record counts mismatch: %+v", records[0])
	}
}

func TestRunCheckpointsAreMonotonic(t *testing.T) {
	var payload strings.Builder
	for i := 0; i < 5500; i++ {
		payload.WriteString(fmt.Sprintf("tok-%05d\n", i))
	}

	mem := repository.NewMemoryCampaignRepository()
	repo := &progressRecorder{CampaignRepositoryInterface: mem}
	blobs := blob.NewMemoryStore()

	r := newTestRunner(repo, blobs, &fakeClient{}, history.NewMemoryRecorder(), 1000, 3)
	c := seedClaimedCampaign(t, repo, blobs, "camp-mono", payload.String())

	r.Run(context.Background(), c)

	if len(repo.done) != 6 {
		t.Fatalf("expected 6 checkpoints, got %d", len(repo.done))
	}
	prev := 0
	for i, v := range repo.done {
		if v < prev {
			t.Fatalf("checkpoint %d went backwards: %d < %d", i, v, prev)
		}
		prev = v
	}
	if prev != 5500 {
		t.Fatalf("final recipients_done = %d, want 5500", prev)
	}
}

func TestRunMissingPayloadRetriesThenFails(t *testing.T) {
	const maxRetries = 3
	repo := repository.NewMemoryCampaignRepository()
	blobs := blob.NewMemoryStore()
	recorder := history.NewMemoryRecorder()
	r := newTestRunner(repo, blobs, &fakeClient{}, recorder, 1000, maxRetries)

	// No payload blob: every run fails fatally.
	seedClaimedCampaign(t, repo, blobs, "camp-fatal", "")
	ctx := context.Background()

	for attempt := 1; attempt <= maxRetries; attempt++ {
		cur, err := repo.GetByID(ctx, "camp-fatal")
		if err != nil {
			t.Fatalf("get campaign: %v", err)
		}
		if attempt > 1 {
			if cur.Status != model.StatusPending {
				t.Fatalf("attempt %d: expected pending, got %s", attempt, cur.Status)
			}
			claimed, err := repo.ClaimPending(ctx, cur.ID)
			if err != nil || !claimed {
				t.Fatalf("reclaim: claimed=%v err=%v", claimed, err)
			}
			cur.Status = model.StatusProcessing
		}
		r.Run(ctx, cur)
	}

	got, err := repo.GetByID(ctx, "camp-fatal")
	if err != nil {
		t.Fatalf("get campaign: %v", err)
	}
	if got.Status != model.StatusFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
	if got.RetryCount != maxRetries {
		t.Fatalf("retry count = %d, want %d", got.RetryCount, maxRetries)
	}
	if got.LastError == "" {
		t.Fatal("expected last error to be recorded")
	}
	if got.CompletedAt == nil {
		t.Fatal("completed_at not set on terminal failure")
	}
	if len(recorder.All()) != 0 {
		t.Fatal("no trigger record expected for failed campaign")
	}
}

// cancellingRepo deletes the campaign right after the first checkpoint, the
// way a user cancellation lands while a runner is mid-flight.
type cancellingRepo struct {
	repository.CampaignRepositoryInterface
	blobs *blob.MemoryStore
	once  sync.Once
}

func (c *cancellingRepo) UpdateProgress(ctx context.Context, id string, result *model.CampaignResult) error {
	err := c.CampaignRepositoryInterface.UpdateProgress(ctx, id, result)
	c.once.Do(func() {
		c.CampaignRepositoryInterface.Delete(ctx, id)
		c.blobs.Delete(ctx, id)
	})
	return err
}

func TestRunStopsAfterCancellation(t *testing.T) {
	var payload strings.Builder
	for i := 0; i < 3000; i++ {
		payload.WriteString(fmt.Sprintf("tok-%05d\n", i))
	}

	blobs := blob.NewMemoryStore()
	repo := &cancellingRepo{
		CampaignRepositoryInterface: repository.NewMemoryCampaignRepository(),
		blobs:                       blobs,
	}
	recorder := history.NewMemoryRecorder()
	client := &fakeClient{}

	r := newTestRunner(repo, blobs, client, recorder, 1000, 3)
	c := seedClaimedCampaign(t, repo, blobs, "camp-cancel", payload.String())

	r.Run(context.Background(), c)

	if _, err := repo.GetByID(context.Background(), c.ID); !appErrors.IsCampaignNotFound(err) {
		t.Fatalf("expected campaign to stay deleted, got err=%v", err)
	}
	if client.sentCount() > 1000 {
		t.Fatalf("dispatch continued after cancellation: %d sends", client.sentCount())
	}
	if len(recorder.All()) != 0 {
		t.Fatal("cancelled campaign must not append trigger history")
	}
}
