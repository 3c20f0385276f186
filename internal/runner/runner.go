// internal/runner/runner.go
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/overlaypush/broadcast-backend/internal/blob"
	"github.com/overlaypush/broadcast-backend/internal/dispatch"
	appErrors "github.com/overlaypush/broadcast-backend/internal/errors"
	"github.com/overlaypush/broadcast-backend/internal/history"
	"github.com/overlaypush/broadcast-backend/internal/model"
	"github.com/overlaypush/broadcast-backend/internal/repository"
)

// errCancelled aborts a run quietly: the record was removed (or reclaimed)
// while the runner was mid-flight.
var errCancelled = errors.New("campaign cancelled")

// Runner drives one claimed campaign end to end: pages the payload into
// chunks, dispatches each chunk, checkpoints cumulative progress after every
// chunk, and finalizes the record. Individual recipient failures are
// absorbed into the result; only orchestration failures are fatal and go
// through the campaign-level retry budget.
type Runner struct {
	Repo       repository.CampaignRepositoryInterface
	Blobs      blob.Store
	Dispatcher *dispatch.Dispatcher
	History    history.Appender
	ChunkSize  int
	MaxRetries int
	Log        zerolog.Logger
}

func (r *Runner) Run(ctx context.Context, c *model.Campaign) {
	log := r.Log.With().Str("campaign_id", c.ID).Logger()

	err := r.process(ctx, c, log)
	if err == nil {
		return
	}
	if errors.Is(err, errCancelled) || errors.Is(err, context.Canceled) {
		log.Info().Msg("campaign cancelled, dispatch aborted")
		return
	}

	if c.RetryCount+1 < r.MaxRetries {
		log.Warn().Err(err).
			Int("retry_count", c.RetryCount+1).
			Int("max_retries", r.MaxRetries).
			Msg("campaign run failed, requeueing for retry")
		if reqErr := r.Repo.RequeueForRetry(ctx, c.ID, err.Error()); reqErr != nil {
			log.Error().Err(reqErr).Msg("failed to requeue campaign")
		}
		return
	}

	log.Error().Err(err).Msg("campaign failed after exhausting retries")
	if mErr := r.Repo.MarkFailed(ctx, c.ID, err.Error(), time.Now()); mErr != nil {
		log.Error().Err(mErr).Msg("failed to mark campaign failed")
		return
	}
	if dErr := r.Blobs.Delete(ctx, c.ID); dErr != nil {
		log.Error().Err(dErr).Msg("failed to delete payload blob")
	}
}

func (r *Runner) process(ctx context.Context, c *model.Campaign, log zerolog.Logger) error {
	chunkSize := r.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 5000
	}

	total, err := countRecipients(ctx, r.Blobs, c.ID, chunkSize)
	if err != nil {
		return fmt.Errorf("read payload: %w", err)
	}
	if total == 0 {
		return errors.New("payload contained no recipients")
	}
	chunksTotal := (total + chunkSize - 1) / chunkSize

	log.Info().Int("recipients", total).Int("chunks", chunksTotal).Msg("campaign run started")

	reader, err := newTokenReader(ctx, r.Blobs, c.ID)
	if err != nil {
		return fmt.Errorf("read payload: %w", err)
	}

	result := &model.CampaignResult{
		FailedRecipients: []model.FailedRecipient{},
		Progress: model.Progress{
			ChunksTotal:     chunksTotal,
			RecipientsTotal: total,
		},
	}

	for chunk := 0; chunk < chunksTotal; chunk++ {
		if err := r.checkCancelled(ctx, c.ID); err != nil {
			return err
		}

		tokens, err := reader.Next(ctx, chunkSize)
		if err != nil {
			return fmt.Errorf("read payload chunk %d: %w", chunk, err)
		}
		if len(tokens) == 0 {
			break
		}

		res := r.Dispatcher.Dispatch(ctx, tokens, c.Notification, c.AuthToken)

		result.SuccessCount += res.SuccessCount
		result.FailedCount += res.FailedCount
		result.FailedRecipients = append(result.FailedRecipients, res.FailedRecipients...)
		result.Progress.ChunksDone = chunk + 1
		result.Progress.RecipientsDone += len(tokens)

		if err := r.Repo.UpdateProgress(ctx, c.ID, result); err != nil {
			if appErrors.IsCampaignNotFound(err) {
				return errCancelled
			}
			return fmt.Errorf("checkpoint chunk %d: %w", chunk, err)
		}

		log.Debug().
			Int("chunk", chunk+1).
			Int("chunks_total", chunksTotal).
			Int("recipients_done", result.Progress.RecipientsDone).
			Msg("chunk checkpointed")
	}

	completedAt := time.Now()
	if err := r.Repo.MarkCompleted(ctx, c.ID, result, completedAt); err != nil {
		return fmt.Errorf("finalize campaign: %w", err)
	}
	if err := r.Blobs.Delete(ctx, c.ID); err != nil {
		log.Error().Err(err).Msg("failed to delete payload blob after completion")
	}

	rec := model.TriggerRecord{
		CampaignID:       c.ID,
		ConfigID:         c.Notification.ConfigID,
		TriggeredAt:      completedAt,
		TriggeredBy:      "scheduler",
		SuccessCount:     result.SuccessCount,
		FailedCount:      result.FailedCount,
		FailedRecipients: result.FailedRecipients,
	}
	if err := r.History.Append(ctx, rec); err != nil {
		log.Error().Err(err).Msg("failed to append trigger history")
	}

	log.Info().
		Int("success", result.SuccessCount).
		Int("failed", result.FailedCount).
		Msg("campaign completed")
	return nil
}

// checkCancelled is the cooperative cancellation point between chunks: a
// record that is gone, or no longer processing, means the owner lost the
// run and must stop dispatching.
func (r *Runner) checkCancelled(ctx context.Context, id string) error {
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	default:
	}
	cur, err := r.Repo.GetByID(ctx, id)
	if err != nil {
		if appErrors.IsCampaignNotFound(err) {
			return errCancelled
		}
		return fmt.Errorf("re-read campaign: %w", err)
	}
	if cur.Status != model.StatusProcessing {
		return errCancelled
	}
	return nil
}
