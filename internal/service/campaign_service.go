// internal/service/campaign_service.go
package service

import (
	"bytes"
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/overlaypush/broadcast-backend/internal/blob"
	appErrors "github.com/overlaypush/broadcast-backend/internal/errors"
	"github.com/overlaypush/broadcast-backend/internal/history"
	"github.com/overlaypush/broadcast-backend/internal/model"
	"github.com/overlaypush/broadcast-backend/internal/repository"
)

type CampaignService struct {
	Repo      repository.CampaignRepositoryInterface
	Blobs     blob.Store
	History   history.Reader
	MaxStored int
	Log       zerolog.Logger
}

type ScheduleRequest struct {
	Notification model.NotificationConfig
	Payload      []byte
	AuthToken    string
	ScheduledAt  time.Time
}

// Schedule validates and persists a new campaign: record plus payload blob,
// joined only by the campaign id. Validation failures persist nothing.
// Crossing the stored-campaign bound evicts the oldest records and their
// blobs.
func (s *CampaignService) Schedule(ctx context.Context, req ScheduleRequest) (*model.Campaign, error) {
	if !req.ScheduledAt.After(time.Now()) {
		return nil, appErrors.NewInvalidInput("scheduled time must be in the future")
	}
	if len(bytes.TrimSpace(req.Payload)) == 0 {
		return nil, appErrors.NewInvalidInput("recipient payload is empty")
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}

	c := &model.Campaign{
		ID:           id.String(),
		Notification: req.Notification,
		AuthToken:    req.AuthToken,
		ScheduledAt:  req.ScheduledAt,
		Status:       model.StatusPending,
		CreatedAt:    time.Now(),
	}

	if err := s.Blobs.Put(ctx, c.ID, req.Payload); err != nil {
		return nil, err
	}
	if err := s.Repo.Create(ctx, c); err != nil {
		// Don't leave an orphaned blob behind a failed record write.
		if delErr := s.Blobs.Delete(ctx, c.ID); delErr != nil {
			s.Log.Error().Err(delErr).Str("campaign_id", c.ID).Msg("failed to clean up payload blob")
		}
		return nil, err
	}

	evicted, err := s.Repo.EvictOldest(ctx, s.MaxStored)
	if err != nil {
		s.Log.Error().Err(err).Msg("failed to evict old campaigns")
	}
	for _, evictedID := range evicted {
		if err := s.Blobs.Delete(ctx, evictedID); err != nil {
			s.Log.Error().Err(err).Str("campaign_id", evictedID).Msg("failed to delete evicted payload blob")
		}
		s.Log.Info().Str("campaign_id", evictedID).Msg("evicted old campaign")
	}

	s.Log.Info().
		Str("campaign_id", c.ID).
		Time("scheduled_at", c.ScheduledAt).
		Int("payload_bytes", len(req.Payload)).
		Msg("campaign scheduled")
	return c, nil
}

// List returns all stored campaigns, newest first.
func (s *CampaignService) List(ctx context.Context) ([]*model.Campaign, error) {
	return s.Repo.List(ctx)
}

func (s *CampaignService) Get(ctx context.Context, id string) (*model.Campaign, error) {
	return s.Repo.GetByID(ctx, id)
}

// Cancel removes the record and the payload blob. Idempotent: cancelling an
// absent campaign is not an error. A runner mid-flight for this id notices
// the missing record at its next chunk boundary and stops.
func (s *CampaignService) Cancel(ctx context.Context, id string) error {
	if err := s.Repo.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.Blobs.Delete(ctx, id); err != nil {
		return err
	}
	s.Log.Info().Str("campaign_id", id).Msg("campaign cancelled")
	return nil
}

func (s *CampaignService) GetHistory(ctx context.Context, campaignID string) ([]model.TriggerRecord, error) {
	return s.History.ListByCampaign(ctx, campaignID)
}
