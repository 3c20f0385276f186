// internal/model/campaign.go
package model

import "time"

type CampaignStatus string

const (
	StatusPending    CampaignStatus = "pending"
	StatusProcessing CampaignStatus = "processing"
	StatusCompleted  CampaignStatus = "completed"
	StatusFailed     CampaignStatus = "failed"
)

// NotificationConfig is the payload broadcast to every recipient. The engine
// never interprets it beyond serialization; it is handed to the delivery
// transport as-is.
type NotificationConfig struct {
	ConfigID    string         `json:"config_id,omitempty"`
	Title       string         `json:"title"`
	Body        string         `json:"body"`
	ImageURL    string         `json:"image_url,omitempty"`
	Action      string         `json:"action,omitempty"`
	Link        string         `json:"link,omitempty"`
	Method      string         `json:"method,omitempty"`
	RequestBody map[string]any `json:"req_body,omitempty"`
}

type FailedRecipient struct {
	Recipient string `json:"recipient"`
	Error     string `json:"error"`
}

// Progress counters are cumulative and only grow while a campaign is
// processing; they are frozen at finalization.
type Progress struct {
	ChunksDone      int `json:"chunks_done"`
	ChunksTotal     int `json:"chunks_total"`
	RecipientsDone  int `json:"recipients_done"`
	RecipientsTotal int `json:"recipients_total"`
}

type CampaignResult struct {
	SuccessCount     int               `json:"success_count"`
	FailedCount      int               `json:"failed_count"`
	FailedRecipients []FailedRecipient `json:"failed_recipients"`
	Progress         Progress          `json:"progress"`
}

type Campaign struct {
	ID           string             `json:"id"`
	Notification NotificationConfig `json:"notification"`
	AuthToken    string             `json:"-"`
	ScheduledAt  time.Time          `json:"scheduled_at"`
	Status       CampaignStatus     `json:"status"`
	CreatedAt    time.Time          `json:"created_at"`
	CompletedAt  *time.Time         `json:"completed_at,omitempty"`
	RetryCount   int                `json:"retry_count"`
	LastError    string             `json:"last_error,omitempty"`
	Result       *CampaignResult    `json:"result,omitempty"`
}

// TriggerRecord is appended toward the reporting collaborator when a
// campaign finishes delivering.
type TriggerRecord struct {
	CampaignID       string            `json:"campaign_id"`
	ConfigID         string            `json:"config_id,omitempty"`
	TriggeredAt      time.Time         `json:"triggered_at"`
	TriggeredBy      string            `json:"triggered_by"`
	SuccessCount     int               `json:"success_count"`
	FailedCount      int               `json:"failed_count"`
	FailedRecipients []FailedRecipient `json:"failed_recipients"`
}
