// internal/repository/memory_repository.go
package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	appErrors "github.com/overlaypush/broadcast-backend/internal/errors"
	"github.com/overlaypush/broadcast-backend/internal/model"
)

// MemoryCampaignRepository keeps campaigns in process memory. It backs the
// memory store driver and the test suite; the mutex gives it the same
// single-writer claim discipline as the conditional UPDATE in Postgres.
type MemoryCampaignRepository struct {
	mu        sync.Mutex
	campaigns map[string]*model.Campaign
}

func NewMemoryCampaignRepository() *MemoryCampaignRepository {
	return &MemoryCampaignRepository{campaigns: make(map[string]*model.Campaign)}
}

func (r *MemoryCampaignRepository) Create(ctx context.Context, c *model.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := cloneCampaign(c)
	r.campaigns[c.ID] = cp
	return nil
}

func (r *MemoryCampaignRepository) GetByID(ctx context.Context, id string) (*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	return cloneCampaign(c), nil
}

func (r *MemoryCampaignRepository) List(ctx context.Context) ([]*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.Campaign, 0, len(r.campaigns))
	for _, c := range r.campaigns {
		out = append(out, cloneCampaign(c))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r *MemoryCampaignRepository) ClaimPending(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok || c.Status != model.StatusPending {
		return false, nil
	}
	c.Status = model.StatusProcessing
	return true, nil
}

func (r *MemoryCampaignRepository) UpdateProgress(ctx context.Context, id string, result *model.CampaignResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok || c.Status != model.StatusProcessing {
		return appErrors.NewCampaignNotFound(id)
	}
	c.Result = cloneResult(result)
	return nil
}

func (r *MemoryCampaignRepository) MarkCompleted(ctx context.Context, id string, result *model.CampaignResult, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return appErrors.NewCampaignNotFound(id)
	}
	c.Status = model.StatusCompleted
	c.Result = cloneResult(result)
	c.CompletedAt = &at
	c.LastError = ""
	return nil
}

func (r *MemoryCampaignRepository) MarkFailed(ctx context.Context, id string, lastError string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return appErrors.NewCampaignNotFound(id)
	}
	c.Status = model.StatusFailed
	c.LastError = lastError
	c.CompletedAt = &at
	c.RetryCount++
	return nil
}

func (r *MemoryCampaignRepository) RequeueForRetry(ctx context.Context, id string, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return appErrors.NewCampaignNotFound(id)
	}
	c.Status = model.StatusPending
	c.RetryCount++
	c.LastError = lastError
	return nil
}

func (r *MemoryCampaignRepository) RequeueStuck(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.campaigns {
		if c.Status == model.StatusProcessing {
			c.Status = model.StatusPending
			n++
		}
	}
	return n, nil
}

func (r *MemoryCampaignRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.campaigns, id)
	return nil
}

func (r *MemoryCampaignRepository) EvictOldest(ctx context.Context, max int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.campaigns) <= max {
		return nil, nil
	}
	all := make([]*model.Campaign, 0, len(r.campaigns))
	for _, c := range r.campaigns {
		all = append(all, c)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})
	evicted := []string{}
	for _, c := range all[max:] {
		delete(r.campaigns, c.ID)
		evicted = append(evicted, c.ID)
	}
	return evicted, nil
}

func cloneCampaign(c *model.Campaign) *model.Campaign {
	cp := *c
	if c.CompletedAt != nil {
		at := *c.CompletedAt
		cp.CompletedAt = &at
	}
	cp.Result = cloneResult(c.Result)
	return &cp
}

func cloneResult(res *model.CampaignResult) *model.CampaignResult {
	if res == nil {
		return nil
	}
	cp := *res
	cp.FailedRecipients = append([]model.FailedRecipient(nil), res.FailedRecipients...)
	return &cp
}

var _ CampaignRepositoryInterface = (*MemoryCampaignRepository)(nil)
