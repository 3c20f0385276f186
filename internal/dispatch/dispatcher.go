// internal/dispatch/dispatcher.go
package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/overlaypush/broadcast-backend/internal/delivery"
	"github.com/overlaypush/broadcast-backend/internal/model"
)

// Result aggregates one Dispatch call. success+failed always equals the
// number of recipients passed in.
type Result struct {
	SuccessCount     int
	FailedCount      int
	FailedRecipients []model.FailedRecipient
}

// Dispatcher is a pure send primitive: it knows nothing about campaigns,
// chunks or persistence. Recipients are split into sub-batches of BatchSize;
// at most MaxParallelBatches sub-batches run concurrently; the members of a
// sub-batch are sent concurrently, each send paced through the shared rate
// limiter. Every recipient gets up to Attempts tries with a fixed delay
// between tries; the last error is recorded for recipients that exhaust
// their budget.
type Dispatcher struct {
	Client     delivery.Client
	BatchSize  int
	Parallel   int
	Attempts   int
	RetryDelay time.Duration
	Limiter    *rate.Limiter
	Log        zerolog.Logger
}

func New(client delivery.Client, batchSize, parallel, attempts int, retryDelay time.Duration, ratePerSec int, log zerolog.Logger) *Dispatcher {
	limit := rate.Inf
	burst := 1
	if ratePerSec > 0 {
		limit = rate.Limit(ratePerSec)
		burst = ratePerSec
	}
	return &Dispatcher{
		Client:     client,
		BatchSize:  batchSize,
		Parallel:   parallel,
		Attempts:   attempts,
		RetryDelay: retryDelay,
		Limiter:    rate.NewLimiter(limit, burst),
		Log:        log,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, recipients []string, cfg model.NotificationConfig, credential string) Result {
	batchSize := d.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}
	parallel := d.Parallel
	if parallel <= 0 {
		parallel = 1
	}

	var success, failed int64
	var mu sync.Mutex
	failedRecipients := []model.FailedRecipient{}

	sem := make(chan struct{}, parallel)
	var wg sync.WaitGroup

	for start := 0; start < len(recipients); start += batchSize {
		end := start + batchSize
		if end > len(recipients) {
			end = len(recipients)
		}
		batch := recipients[start:end]

		wg.Add(1)
		sem <- struct{}{}
		go func(batch []string) {
			defer wg.Done()
			defer func() { <-sem }()

			var batchWG sync.WaitGroup
			for _, token := range batch {
				batchWG.Add(1)
				go func(token string) {
					defer batchWG.Done()
					if err := d.sendWithRetry(ctx, token, cfg, credential); err != nil {
						atomic.AddInt64(&failed, 1)
						mu.Lock()
						failedRecipients = append(failedRecipients, model.FailedRecipient{
							Recipient: token,
							Error:     err.Error(),
						})
						mu.Unlock()
						return
					}
					atomic.AddInt64(&success, 1)
				}(token)
			}
			batchWG.Wait()
		}(batch)
	}
	wg.Wait()

	d.Log.Debug().
		Int("recipients", len(recipients)).
		Int64("success", success).
		Int64("failed", failed).
		Msg("dispatch finished")

	return Result{
		SuccessCount:     int(success),
		FailedCount:      int(failed),
		FailedRecipients: failedRecipients,
	}
}

func (d *Dispatcher) sendWithRetry(ctx context.Context, token string, cfg model.NotificationConfig, credential string) error {
	attempts := d.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if d.Limiter != nil {
			if err := d.Limiter.Wait(ctx); err != nil {
				return err
			}
		}
		lastErr = d.Client.Send(ctx, token, cfg, credential)
		if lastErr == nil {
			return nil
		}
		if attempt < attempts {
			select {
			case <-time.After(d.RetryDelay):
			case <-ctx.Done():
				return lastErr
			}
		}
	}
	return lastErr
}
