package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/arbitrageos/campaignd/internal/mailbox"
	"github.com/arbitrageos/campaignd/internal/models"
	"github.com/arbitrageos/campaignd/internal/web/middleware"
)

type MailboxHandler struct {
	mailboxes *mailbox.Service
}

func NewMailboxHandler(mailboxes *mailbox.Service) *MailboxHandler {
	return &MailboxHandler{mailboxes: mailboxes}
}

type connectMailboxPayload struct {
	Address      string `json:"address"`
	Provider     string `json:"provider"`
	SMTPHost     string `json:"smtp_host"`
	SMTPPort     int    `json:"smtp_port"`
	SMTPUsername string `json:"smtp_username"`
	SMTPPassword string `json:"smtp_password"`
	APIBaseURL   string `json:"api_base_url"`
	APIToken     string `json:"api_token"`
}

type mailboxResponse struct {
	ID         uuid.UUID  `json:"id"`
	Address    string     `json:"address"`
	Provider   string     `json:"provider"`
	Enabled    bool       `json:"enabled"`
	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func mailboxToResponse(m *models.Mailbox) mailboxResponse {
	return mailboxResponse{
		ID:         m.PublicID,
		Address:    m.Address,
		Provider:   m.Provider,
		Enabled:    m.Enabled,
		LastSyncAt: m.LastSyncAt,
		CreatedAt:  m.CreatedAt,
	}
}

func (h *MailboxHandler) HandleConnect(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, jsonResponse{Error: "unauthorized"})
		return
	}

	var payload connectMailboxPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, jsonResponse{Error: "invalid JSON payload"})
		return
	}

	mb, err := h.mailboxes.Connect(r.Context(), models.MailboxCreateParams{
		UserID:       principal.UserID,
		Address:      payload.Address,
		Provider:     payload.Provider,
		SMTPHost:     payload.SMTPHost,
		SMTPPort:     payload.SMTPPort,
		SMTPUsername: payload.SMTPUsername,
		SMTPPassword: payload.SMTPPassword,
		APIBaseURL:   payload.APIBaseURL,
		APIToken:     payload.APIToken,
	})
	if err != nil {
		writeJSON(w, http.StatusBadRequest, jsonResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusCreated, mailboxToResponse(mb))
}

func (h *MailboxHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, jsonResponse{Error: "unauthorized"})
		return
	}

	mailboxes, err := h.mailboxes.List(r.Context(), principal.UserID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, jsonResponse{Error: "failed to list mailboxes"})
		return
	}

	out := make([]mailboxResponse, 0, len(mailboxes))
	for i := range mailboxes {
		out = append(out, mailboxToResponse(&mailboxes[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *MailboxHandler) HandleEnable(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, true)
}

func (h *MailboxHandler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, false)
}

func (h *MailboxHandler) setEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, jsonResponse{Error: "unauthorized"})
		return
	}

	publicID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, jsonResponse{Error: "id must be a valid UUID"})
		return
	}

	mb, err := h.mailboxes.GetByPublicID(r.Context(), publicID)
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

	if err := h.mailboxes.SetEnabled(r.Context(), mb.ID, enabled); err != nil {
		writeJSON(w, http.StatusInternalServerError, jsonResponse{Error: "failed to update mailbox"})
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{OK: true})
}
