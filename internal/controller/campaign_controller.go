// internal/controller/campaign_controller.go
package controller

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	appErrors "github.com/overlaypush/broadcast-backend/internal/errors"
	"github.com/overlaypush/broadcast-backend/internal/model"
	"github.com/overlaypush/broadcast-backend/internal/service"
)

type CampaignController struct {
	CampaignService *service.CampaignService
	Log             zerolog.Logger
}

func (c *CampaignController) Routes(r chi.Router) {
	r.Post("/campaigns", c.ScheduleCampaign)
	r.Get("/campaigns", c.ListCampaigns)
	r.Get("/campaigns/{id}", c.GetCampaign)
	r.Get("/campaigns/{id}/history", c.GetCampaignHistory)
	r.Delete("/campaigns/{id}", c.CancelCampaign)
}

func (c *CampaignController) ScheduleCampaign(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Notification model.NotificationConfig `json:"notification"`
		Recipients   string                   `json:"recipients"`
		AuthToken    string                   `json:"auth_token"`
		ScheduledAt  time.Time                `json:"scheduled_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	campaign, err := c.CampaignService.Schedule(r.Context(), service.ScheduleRequest{
		Notification: body.Notification,
		Payload:      []byte(body.Recipients),
		AuthToken:    body.AuthToken,
		ScheduledAt:  body.ScheduledAt,
	})
	if err != nil {
		if appErrors.IsInvalidInput(err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		c.Log.Error().Err(err).Msg("failed to schedule campaign")
		http.Error(w, "failed to schedule campaign", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(campaign)
}

func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns, err := c.CampaignService.List(r.Context())
	if err != nil {
		c.Log.Error().Err(err).Msg("failed to list campaigns")
		http.Error(w, "failed to list campaigns", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"data":  campaigns,
		"count": len(campaigns),
	})
}

func (c *CampaignController) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	campaign, err := c.CampaignService.Get(r.Context(), id)
	if err != nil {
		if appErrors.IsCampaignNotFound(err) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		c.Log.Error().Err(err).Str("campaign_id", id).Msg("failed to fetch campaign")
		http.Error(w, "failed to fetch campaign", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(campaign)
}

func (c *CampaignController) GetCampaignHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	records, err := c.CampaignService.GetHistory(r.Context(), id)
	if err != nil {
		c.Log.Error().Err(err).Str("campaign_id", id).Msg("failed to fetch trigger history")
		http.Error(w, "failed to fetch trigger history", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"data":  records,
		"count": len(records),
	})
}

func (c *CampaignController) CancelCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := c.CampaignService.Cancel(r.Context(), id); err != nil {
		c.Log.Error().Err(err).Str("campaign_id", id).Msg("failed to cancel campaign")
		http.Error(w, "failed to cancel campaign", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
