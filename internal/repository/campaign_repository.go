// internal/repository/campaign_repository.go
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	appErrors "github.com/overlaypush/broadcast-backend/internal/errors"
	"github.com/overlaypush/broadcast-backend/internal/model"
)

type CampaignRepositoryInterface interface {
	Create(ctx context.Context, c *model.Campaign) error
	GetByID(ctx context.Context, id string) (*model.Campaign, error)
	List(ctx context.Context) ([]*model.Campaign, error)

	// ClaimPending is the atomic pending->processing transition. It reports
	// whether this caller won the claim; a second concurrent claim for the
	// same id must observe false.
	ClaimPending(ctx context.Context, id string) (bool, error)

	UpdateProgress(ctx context.Context, id string, result *model.CampaignResult) error
	MarkCompleted(ctx context.Context, id string, result *model.CampaignResult, at time.Time) error
	MarkFailed(ctx context.Context, id string, lastError string, at time.Time) error
	RequeueForRetry(ctx context.Context, id string, lastError string) error

	// RequeueStuck moves processing campaigns back to pending. Called on
	// boot so that runs interrupted by a crash are re-executed from the
	// beginning (delivery is at-least-once).
	RequeueStuck(ctx context.Context) (int, error)

	Delete(ctx context.Context, id string) error

	// EvictOldest removes oldest-by-created_at campaigns beyond max and
	// returns the evicted ids so callers can release the payload blobs.
	EvictOldest(ctx context.Context, max int) ([]string, error)
}

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, notification, auth_token, scheduled_at, status, created_at, completed_at, retry_count, last_error, result`

func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) error {
	notification, err := json.Marshal(c.Notification)
	if err != nil {
		return err
	}
	query := `
        INSERT INTO campaigns (id, notification, auth_token, scheduled_at, status, created_at, retry_count, last_error)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `
	_, err = r.DB.ExecContext(ctx, query,
		c.ID, notification, c.AuthToken, c.ScheduledAt, c.Status, c.CreatedAt, c.RetryCount, c.LastError)
	return err
}

func (r *CampaignRepository) GetByID(ctx context.Context, id string) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1`
	c, err := scanCampaign(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return c, nil
}

func (r *CampaignRepository) List(ctx context.Context) ([]*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

func (r *CampaignRepository) ClaimPending(ctx context.Context, id string) (bool, error) {
	query := `UPDATE campaigns SET status=$1 WHERE id=$2 AND status=$3`
	res, err := r.DB.ExecContext(ctx, query, model.StatusProcessing, id, model.StatusPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *CampaignRepository) UpdateProgress(ctx context.Context, id string, result *model.CampaignResult) error {
	b, err := json.Marshal(result)
	if err != nil {
		return err
	}
	query := `UPDATE campaigns SET result=$1 WHERE id=$2 AND status=$3`
	res, err := r.DB.ExecContext(ctx, query, b, id, model.StatusProcessing)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return appErrors.NewCampaignNotFound(id)
	}
	return nil
}

func (r *CampaignRepository) MarkCompleted(ctx context.Context, id string, result *model.CampaignResult, at time.Time) error {
	b, err := json.Marshal(result)
	if err != nil {
		return err
	}
	query := `UPDATE campaigns SET status=$1, result=$2, completed_at=$3, last_error='' WHERE id=$4`
	_, err = r.DB.ExecContext(ctx, query, model.StatusCompleted, b, at, id)
	return err
}

func (r *CampaignRepository) MarkFailed(ctx context.Context, id string, lastError string, at time.Time) error {
	// The terminal failure consumes the last retry slot, so retry_count
	// lands exactly on the configured cap.
	query := `UPDATE campaigns SET status=$1, last_error=$2, completed_at=$3, retry_count=retry_count+1 WHERE id=$4`
	_, err := r.DB.ExecContext(ctx, query, model.StatusFailed, lastError, at, id)
	return err
}

func (r *CampaignRepository) RequeueForRetry(ctx context.Context, id string, lastError string) error {
	query := `UPDATE campaigns SET status=$1, retry_count=retry_count+1, last_error=$2 WHERE id=$3`
	_, err := r.DB.ExecContext(ctx, query, model.StatusPending, lastError, id)
	return err
}

func (r *CampaignRepository) RequeueStuck(ctx context.Context) (int, error) {
	query := `UPDATE campaigns SET status=$1 WHERE status=$2`
	res, err := r.DB.ExecContext(ctx, query, model.StatusPending, model.StatusProcessing)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *CampaignRepository) Delete(ctx context.Context, id string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM campaigns WHERE id=$1`, id)
	return err
}

func (r *CampaignRepository) EvictOldest(ctx context.Context, max int) ([]string, error) {
	query := `
        DELETE FROM campaigns
        WHERE id IN (
            SELECT id FROM campaigns
            ORDER BY created_at DESC, id DESC
            OFFSET $1
        )
        RETURNING id
    `
	rows, err := r.DB.QueryContext(ctx, query, max)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	evicted := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		evicted = append(evicted, id)
	}
	return evicted, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCampaign(row rowScanner) (*model.Campaign, error) {
	var (
		c            model.Campaign
		notification []byte
		result       []byte
	)
	err := row.Scan(&c.ID, &notification, &c.AuthToken, &c.ScheduledAt, &c.Status,
		&c.CreatedAt, &c.CompletedAt, &c.RetryCount, &c.LastError, &result)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(notification, &c.Notification); err != nil {
		return nil, fmt.Errorf("decode notification for %s: %w", c.ID, err)
	}
	if len(result) > 0 {
		c.Result = &model.CampaignResult{}
		if err := json.Unmarshal(result, c.Result); err != nil {
			return nil, fmt.Errorf("decode result for %s: %w", c.ID, err)
		}
	}
	return &c, nil
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
