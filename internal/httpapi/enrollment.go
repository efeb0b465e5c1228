package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/access"
	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/invitation"
	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/stage"
	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/user"
)

var errAdminRequired = errors.New("admin token required")

func (h *Handler) authenticateAdmin(r *http.Request) bool {
	if strings.TrimSpace(h.adminToken) == "" {
		return false
	}
	return strings.TrimSpace(r.Header.Get("X-Admin-Token")) == h.adminToken
}

// creatorRef names a creator by id or, failing that, by email.
type creatorRef struct {
	UserID user.ID `json:"user_id"`
	Email  string  `json:"email"`
}

func (h *Handler) resolve(ctx context.Context, ref creatorRef) (user.ID, error) {
	if id := user.ID(strings.TrimSpace(string(ref.UserID))); id != "" {
		if _, err := h.users.GetByID(ctx, id); err != nil {
			return "", err
		}
		return id, nil
	}
	u, err := h.users.GetByEmail(ctx, ref.Email)
	if err != nil {
		return "", err
	}
	return u.ID, nil
}

type issueRequest struct {
	Email         string `json:"email"`
	ApplicationID string `json:"application_id"`
	TTL           string `json:"ttl"`
}

type issueResponse struct {
	TokenID   string  `json:"token_id"`
	Token     string  `json:"token"`
	UserID    user.ID `json:"user_id"`
	Email     string  `json:"email"`
	ExpiresAt string  `json:"expires_at"`
}

func (h *Handler) handleIssueInvitation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !h.authenticateAdmin(r) {
		h.writeError(w, http.StatusUnauthorized, errAdminRequired)
		return
	}
	if h.invitations == nil {
		h.writeError(w, http.StatusInternalServerError, errors.New("invitation service not configured"))
		return
	}

	var req issueRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	issue := invitation.IssueRequest{Email: req.Email, ApplicationID: req.ApplicationID}
	if raw := strings.TrimSpace(req.TTL); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil || ttl <= 0 {
			h.writeError(w, http.StatusBadRequest, errors.New("ttl must be a positive duration"))
			return
		}
		issue.TTL = ttl
	}

	issued, err := h.invitations.Issue(r.Context(), issue)
	if err != nil {
		switch {
		case errors.Is(err, user.ErrInvalidInput), errors.Is(err, invitation.ErrInvalidInput):
			h.writeError(w, http.StatusBadRequest, err)
		default:
			h.writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	writeJSON(w, http.StatusCreated, issueResponse{
		TokenID:   issued.Token.ID,
		Token:     issued.Secret,
		UserID:    issued.User.ID,
		Email:     issued.User.Email,
		ExpiresAt: issued.Token.ExpiresAt.UTC().Format(timeLayout),
	})
}

type deliveryRequest struct {
	TokenID string `json:"token_id"`
	Status  string `json:"status"`
}

type deliveryResponse struct {
	TokenID       string  `json:"token_id"`
	UserID        user.ID `json:"user_id"`
	Status        string  `json:"status"`
	SentAt        *string `json:"sent_at,omitempty"`
	LinkClickedAt *string `json:"link_clicked_at,omitempty"`
	LinkUsedAt    *string `json:"link_used_at,omitempty"`
}

func (h *Handler) handleDeliveryStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !h.authenticateAdmin(r) {
		h.writeError(w, http.StatusUnauthorized, errAdminRequired)
		return
	}
	if h.invitations == nil {
		h.writeError(w, http.StatusInternalServerError, errors.New("invitation service not configured"))
		return
	}

	var req deliveryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	d, err := h.invitations.RecordDelivery(r.Context(), req.TokenID, invitation.DeliveryStatus(req.Status))
	if err != nil {
		switch {
		case errors.Is(err, invitation.ErrNotFound):
			h.writeError(w, http.StatusNotFound, err)
		case errors.Is(err, invitation.ErrInvalidInput):
			h.writeError(w, http.StatusBadRequest, err)
		default:
			h.writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, deliveryResponse{
		TokenID:       d.TokenID,
		UserID:        d.UserID,
		Status:        string(d.Status),
		SentAt:        formatTime(d.SentAt),
		LinkClickedAt: formatTime(d.LinkClickedAt),
		LinkUsedAt:    formatTime(d.LinkUsedAt),
	})
}

type meetingRequest struct {
	creatorRef
	Status      string `json:"status"`
	MeetingDate string `json:"meeting_date"`
}

type changeResponse struct {
	UserID  user.ID `json:"user_id"`
	From    string  `json:"from"`
	To      string  `json:"to"`
	Changed bool    `json:"changed"`
}

func (h *Handler) handleMeetingStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !h.authenticateAdmin(r) {
		h.writeError(w, http.StatusUnauthorized, errAdminRequired)
		return
	}
	if h.access == nil || h.users == nil {
		h.writeError(w, http.StatusInternalServerError, errors.New("access service not configured"))
		return
	}

	var req meetingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	status, err := access.ParseMeetingStatus(strings.TrimSpace(req.Status))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	var date *time.Time
	if raw := strings.TrimSpace(req.MeetingDate); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, errors.New("meeting_date must be RFC3339"))
			return
		}
		date = &parsed
	}

	id, err := h.resolve(r.Context(), req.creatorRef)
	if err != nil {
		h.writeAccessError(w, err)
		return
	}
	change, err := h.access.RecordMeetingStatus(r.Context(), id, status, date)
	if err != nil {
		h.writeAccessError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toChangeResponse(id, change))
}

func (h *Handler) handleEarlyAccess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !h.authenticateAdmin(r) {
		h.writeError(w, http.StatusUnauthorized, errAdminRequired)
		return
	}
	if h.access == nil || h.users == nil {
		h.writeError(w, http.StatusInternalServerError, errors.New("access service not configured"))
		return
	}

	var req creatorRef
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	id, err := h.resolve(r.Context(), req)
	if err != nil {
		h.writeAccessError(w, err)
		return
	}
	change, err := h.access.GrantEarlyAccess(r.Context(), id)
	if err != nil {
		h.writeAccessError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toChangeResponse(id, change))
}

func toChangeResponse(id user.ID, c access.Change) changeResponse {
	return changeResponse{UserID: id, From: c.From.String(), To: c.To.String(), Changed: c.Changed()}
}

func (h *Handler) writeAccessError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, access.ErrInvalidTransition):
		h.writeError(w, http.StatusConflict, err)
	case errors.Is(err, user.ErrNotFound):
		h.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, user.ErrInvalidInput), errors.Is(err, access.ErrInvalidInput), errors.Is(err, access.ErrInvalidMeetingStatus):
		h.writeError(w, http.StatusBadRequest, err)
	default:
		h.writeError(w, http.StatusInternalServerError, err)
	}
}

type emailStatusResponse struct {
	Status        string  `json:"status"`
	SentAt        *string `json:"sent_at,omitempty"`
	LinkClickedAt *string `json:"link_clicked_at,omitempty"`
	LinkUsedAt    *string `json:"link_used_at,omitempty"`
}

type triageEntryResponse struct {
	UserID        user.ID             `json:"user_id"`
	Email         string              `json:"email"`
	Stage         stage.Stage         `json:"stage"`
	Urgency       int                 `json:"urgency"`
	MeetingStatus string              `json:"meeting_status"`
	MeetingDate   *string             `json:"meeting_date,omitempty"`
	EmailStatus   emailStatusResponse `json:"email_status"`
}

type triageResponse struct {
	Entries []triageEntryResponse `json:"entries"`
}

func (h *Handler) handleTriage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !h.authenticateAdmin(r) {
		h.writeError(w, http.StatusUnauthorized, errAdminRequired)
		return
	}
	if h.triage == nil {
		h.writeError(w, http.StatusInternalServerError, errors.New("triage service not configured"))
		return
	}

	entries, err := h.triage.Triage(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	resp := triageResponse{Entries: make([]triageEntryResponse, 0, len(entries))}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, triageEntryResponse{
			UserID:        e.UserID,
			Email:         e.Email,
			Stage:         e.Stage,
			Urgency:       e.Urgency,
			MeetingStatus: string(e.MeetingStatus),
			MeetingDate:   formatTime(e.MeetingDate),
			EmailStatus: emailStatusResponse{
				Status:        e.EmailStatus.Status,
				SentAt:        formatTime(e.EmailStatus.SentAt),
				LinkClickedAt: formatTime(e.EmailStatus.LinkClickedAt),
				LinkUsedAt:    formatTime(e.EmailStatus.LinkUsedAt),
			},
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
