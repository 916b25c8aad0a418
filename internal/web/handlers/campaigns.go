package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/arbitrageos/campaignd/internal/campaign"
	"github.com/arbitrageos/campaignd/internal/mailbox"
	"github.com/arbitrageos/campaignd/internal/models"
	"github.com/arbitrageos/campaignd/internal/web/middleware"
)

type CampaignHandler struct {
	campaigns *campaign.Service
	mailboxes *mailbox.Service
}

func NewCampaignHandler(campaigns *campaign.Service, mailboxes *mailbox.Service) *CampaignHandler {
	return &CampaignHandler{campaigns: campaigns, mailboxes: mailboxes}
}

type leadPayload struct {
	Email     string            `json:"email"`
	FirstName string            `json:"first_name"`
	LastName  string            `json:"last_name"`
	Company   string            `json:"company"`
	Title     string            `json:"title"`
	Variables map[string]string `json:"variables"`
}

type createCampaignPayload struct {
	MailboxID            string        `json:"mailbox_id"`
	Name                 string        `json:"name"`
	Subject              string        `json:"subject"`
	Body                 string        `json:"body"`
	ScheduleMode         string        `json:"schedule_mode"`
	ScheduledAt          *time.Time    `json:"scheduled_at"`
	AutoReply            bool          `json:"auto_reply"`
	AutoReplyBody        string        `json:"auto_reply_body"`
	AutoFollowup         bool          `json:"auto_followup"`
	FollowupIntervalDays int           `json:"followup_interval_days"`
	MaxFollowups         int           `json:"max_followups"`
	Leads                []leadPayload `json:"leads"`
}

type campaignResponse struct {
	ID              uuid.UUID  `json:"id"`
	Name            string     `json:"name"`
	Status          string     `json:"status"`
	ScheduleMode    string     `json:"schedule_mode"`
	AutoReply       bool       `json:"auto_reply"`
	AutoFollowup    bool       `json:"auto_followup"`
	EmailsSent      int        `json:"emails_sent"`
	LastProcessedAt *time.Time `json:"last_processed_at,omitempty"`
	LeadCount       int        `json:"lead_count,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func campaignToResponse(c *models.Campaign, leadCount int) campaignResponse {
	return campaignResponse{
		ID:              c.PublicID,
		Name:            c.Name,
		Status:          c.Status,
		ScheduleMode:    c.ScheduleMode,
		AutoReply:       c.AutoReply,
		AutoFollowup:    c.AutoFollowup,
		EmailsSent:      c.EmailsSent,
		LastProcessedAt: c.LastProcessedAt,
		LeadCount:       leadCount,
		CreatedAt:       c.CreatedAt,
	}
}

func (h *CampaignHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, jsonResponse{Error: "unauthorized"})
		return
	}

	var payload createCampaignPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, jsonResponse{Error: "invalid JSON payload"})
		return
	}

	mailboxPublicID, err := uuid.Parse(payload.MailboxID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, jsonResponse{Error: "mailbox_id must be a valid UUID"})
		return
	}
	mb, err := h.mailboxes.GetByPublicID(r.Context(), mailboxPublicID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, jsonResponse{Error: "mailbox not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, jsonResponse{Error: "failed to load mailbox"})
		return
	}
	if mb.UserID != principal.UserID {
		writeJSON(w, http.StatusNotFound, jsonResponse{Error: "mailbox not found"})
		return
	}

	leads := make([]models.LeadCreateParams, 0, len(payload.Leads))
	for _, l := range payload.Leads {
		leads = append(leads, models.LeadCreateParams{
			Email:     l.Email,
			FirstName: l.FirstName,
			LastName:  l.LastName,
			Company:   l.Company,
			Title:     l.Title,
			Variables: l.Variables,
		})
	}

	c, created, err := h.campaigns.Create(r.Context(), models.CampaignCreateParams{
		UserID:               principal.UserID,
		MailboxID:            mb.ID,
		Name:                 payload.Name,
		Subject:              payload.Subject,
		Body:                 payload.Body,
		ScheduleMode:         payload.ScheduleMode,
		ScheduledAt:          payload.ScheduledAt,
		AutoReply:            payload.AutoReply,
		AutoReplyBody:        payload.AutoReplyBody,
		AutoFollowup:         payload.AutoFollowup,
		FollowupIntervalDays: payload.FollowupIntervalDays,
		MaxFollowups:         payload.MaxFollowups,
	}, leads)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, jsonResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusCreated, campaignToResponse(c, len(created)))
}

func (h *CampaignHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, jsonResponse{Error: "unauthorized"})
		return
	}

	campaigns, err := h.campaigns.ListByUserID(r.Context(), principal.UserID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, jsonResponse{Error: "failed to list campaigns"})
		return
	}

	out := make([]campaignResponse, 0, len(campaigns))
	for i := range campaigns {
		out = append(out, campaignToResponse(&campaigns[i], 0))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *CampaignHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadOwned(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, campaignToResponse(c, 0))
}

func (h *CampaignHandler) HandlePause(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadOwned(w, r)
	if !ok {
		return
	}
	if err := h.campaigns.Pause(r.Context(), c); err != nil {
		writeJSON(w, http.StatusConflict, jsonResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{OK: true})
}

func (h *CampaignHandler) HandleResume(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadOwned(w, r)
	if !ok {
		return
	}
	if err := h.campaigns.Resume(r.Context(), c); err != nil {
		writeJSON(w, http.StatusConflict, jsonResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{OK: true})
}

func (h *CampaignHandler) loadOwned(w http.ResponseWriter, r *http.Request) (*models.Campaign, bool) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, jsonResponse{Error: "unauthorized"})
		return nil, false
	}

	publicID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, jsonResponse{Error: "id must be a valid UUID"})
		return nil, false
	}

	c, err := h.campaigns.GetByPublicID(r.Context(), publicID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, jsonResponse{Error: "campaign not found"})
			return nil, false
		}
		writeJSON(w, http.StatusInternalServerError, jsonResponse{Error: "failed to load campaign"})
		return nil, false
	}
	if c.UserID != principal.UserID {
		writeJSON(w, http.StatusNotFound, jsonResponse{Error: "campaign not found"})
		return nil, false
	}
	return c, true
}
