// internal/repository/history_repository.go
package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/overlaypush/broadcast-backend/internal/model"
)

// HistoryRepository stores trigger-history rows: one row per completed
// campaign run, written by the history worker and read by the API.
type HistoryRepository struct {
	DB *sql.DB
}

func (r *HistoryRepository) Append(ctx context.Context, rec model.TriggerRecord) error {
	failed, err := json.Marshal(rec.FailedRecipients)
	if err != nil {
		return err
	}
	query := `
        INSERT INTO trigger_history (campaign_id, config_id, triggered_at, triggered_by, success_count, failed_count, failed_recipients)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `
	_, err = r.DB.ExecContext(ctx, query,
		rec.CampaignID, rec.ConfigID, rec.TriggeredAt, rec.TriggeredBy,
		rec.SuccessCount, rec.FailedCount, failed)
	return err
}

func (r *HistoryRepository) ListByCampaign(ctx context.Context, campaignID string) ([]model.TriggerRecord, error) {
	query := `
        SELECT campaign_id, config_id, triggered_at, triggered_by, success_count, failed_count, failed_recipients
        FROM trigger_history
        WHERE campaign_id=$1
        ORDER BY triggered_at DESC
    `
	rows, err := r.DB.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []model.TriggerRecord{}
	for rows.Next() {
		var rec model.TriggerRecord
		var failed []byte
		if err := rows.Scan(&rec.CampaignID, &rec.ConfigID, &rec.TriggeredAt, &rec.TriggeredBy,
			&rec.SuccessCount, &rec.FailedCount, &failed); err != nil {
			return nil, err
		}
		if len(failed) > 0 {
			if err := json.Unmarshal(failed, &rec.FailedRecipients); err != nil {
				return nil, err
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
