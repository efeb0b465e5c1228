package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/access"
	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/auth"
	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/invitation"
	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/onboarding"
	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/securelog"
	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/stage"
	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/user"
)

const (
	maxBodyBytes = 1 << 20
	timeLayout   = time.RFC3339Nano
)

// errReinvite is what a creator sees for a dead invitation link.
var errReinvite = errors.New("this invitation can no longer be used, ask for a new invitation")

type Handler struct {
	users       *user.Service
	auth        *auth.Service
	invitations *invitation.Service
	access      *access.Service
	onboarding  *onboarding.Service
	triage      *stage.Service
	log         *securelog.Logger
	adminToken  string
}

func NewHandler(users *user.Service, auth *auth.Service, invitations *invitation.Service, access *access.Service, onboarding *onboarding.Service, triage *stage.Service, log *securelog.Logger, adminToken string) *Handler {
	return &Handler{
		users:       users,
		auth:        auth,
		invitations: invitations,
		access:      access,
		onboarding:  onboarding,
		triage:      triage,
		log:         log,
		adminToken:  adminToken,
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/invitations/verify", h.handleVerifyInvitation)
	mux.HandleFunc("/invitations/complete", h.handleCompleteSetup)
	mux.HandleFunc("/auth/login", h.handleLogin)
	mux.HandleFunc("/auth/logout", h.handleLogout)
	mux.HandleFunc("/me/access", h.handleMyAccess)
	mux.HandleFunc("/me/onboarding", h.handleMyOnboarding)
	mux.HandleFunc("/me/onboarding/sections", h.handleOnboardingSection)
	mux.HandleFunc("/enrollment/invitations", h.handleIssueInvitation)
	mux.HandleFunc("/enrollment/deliveries", h.handleDeliveryStatus)
	mux.HandleFunc("/enrollment/meetings", h.handleMeetingStatus)
	mux.HandleFunc("/enrollment/early-access", h.handleEarlyAccess)
	mux.HandleFunc("/operator/triage", h.handleTriage)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type verifyRequest struct {
	Token string `json:"token"`
}

type verifyResponse struct {
	TokenID string  `json:"token_id"`
	UserID  user.ID `json:"user_id"`
	Email   string  `json:"email"`
}

func (h *Handler) handleVerifyInvitation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h.invitations == nil {
		h.writeError(w, http.StatusInternalServerError, errors.New("invitation service not configured"))
		return
	}

	var req verifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	v, err := h.invitations.Verify(r.Context(), req.Token)
	if err != nil {
		h.writeInvitationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, verifyResponse{TokenID: v.TokenID, UserID: v.UserID, Email: v.Email})
}

type completeRequest struct {
	TokenID  string `json:"token_id"`
	Password string `json:"password"`
}

type completeResponse struct {
	Email string `json:"email"`
}

func (h *Handler) handleCompleteSetup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h.invitations == nil {
		h.writeError(w, http.StatusInternalServerError, errors.New("invitation service not configured"))
		return
	}

	var req completeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	email, err := h.invitations.CompleteSetup(r.Context(), req.TokenID, req.Password)
	if err != nil {
		h.writeInvitationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, completeResponse{Email: email})
}

func (h *Handler) writeInvitationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, invitation.ErrExpired), errors.Is(err, invitation.ErrAlreadyUsed):
		h.writeError(w, http.StatusGone, errReinvite)
	case errors.Is(err, invitation.ErrNotFound), errors.Is(err, user.ErrNotFound):
		h.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, invitation.ErrWeakSecret):
		h.writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, invitation.ErrInvalidInput), errors.Is(err, user.ErrInvalidInput), errors.Is(err, auth.ErrInvalidInput):
		h.writeError(w, http.StatusBadRequest, err)
	default:
		h.writeError(w, http.StatusInternalServerError, err)
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string  `json:"token"`
	UserID    user.ID `json:"user_id"`
	Email     string  `json:"email"`
	ExpiresAt string  `json:"expires_at"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h.auth == nil {
		h.writeError(w, http.StatusInternalServerError, errors.New("auth service not configured"))
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	found, session, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUnauthorized):
			h.writeError(w, http.StatusUnauthorized, err)
		case errors.Is(err, auth.ErrInvalidInput):
			h.writeError(w, http.StatusBadRequest, err)
		default:
			h.writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     session.Token,
		UserID:    found.ID,
		Email:     found.Email,
		ExpiresAt: session.ExpiresAt.UTC().Format(timeLayout),
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	session, err := h.authenticate(r)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, err)
		return
	}
	h.auth.Logout(session.Token)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) authenticate(r *http.Request) (auth.Session, error) {
	if h.auth == nil {
		return auth.Session{}, auth.ErrUnauthorized
	}
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		parts := strings.Fields(header)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return h.auth.ValidateToken(parts[1])
		}
	}
	return auth.Session{}, auth.ErrUnauthorized
}

type accessResponse struct {
	UserID        user.ID  `json:"user_id"`
	Level         string   `json:"level"`
	Features      []string `json:"features"`
	MeetingStatus string   `json:"meeting_status"`
	MeetingDate   *string  `json:"meeting_date,omitempty"`
}

func (h *Handler) handleMyAccess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	session, err := h.authenticate(r)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, err)
		return
	}
	if h.access == nil {
		h.writeError(w, http.StatusInternalServerError, errors.New("access service not configured"))
		return
	}

	c, err := h.access.Creator(r.Context(), session.UserID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	level := c.Level()
	writeJSON(w, http.StatusOK, accessResponse{
		UserID:        session.UserID,
		Level:         level.String(),
		Features:      access.Features(level),
		MeetingStatus: string(c.MeetingStatus),
		MeetingDate:   formatTime(c.MeetingDate),
	})
}

type recordResponse struct {
	CurrentStep          int                        `json:"current_step"`
	CompletedSteps       []int                      `json:"completed_steps"`
	IsCompleted          bool                       `json:"is_completed"`
	CompletionPercentage int                        `json:"completion_percentage"`
	Sections             map[int]onboarding.Section `json:"sections"`
	UpdatedAt            *string                    `json:"updated_at,omitempty"`
}

type progressResponse struct {
	recordResponse
	Level                   string                `json:"level"`
	Steps                   []onboarding.StepView `json:"steps"`
	FirstPostMeetingStep    int                   `json:"first_post_meeting_step"`
	LastPreMeetingStep      int                   `json:"last_pre_meeting_step"`
	ShowMeetingInterstitial bool                  `json:"show_meeting_interstitial"`
}

func toRecordResponse(rec onboarding.Record) recordResponse {
	resp := recordResponse{
		CurrentStep:          rec.CurrentStep,
		CompletedSteps:       rec.CompletedSteps,
		IsCompleted:          rec.IsCompleted,
		CompletionPercentage: rec.CompletionPercentage,
		Sections:             rec.Sections,
	}
	if resp.CompletedSteps == nil {
		resp.CompletedSteps = []int{}
	}
	if resp.Sections == nil {
		resp.Sections = map[int]onboarding.Section{}
	}
	if !rec.UpdatedAt.IsZero() {
		resp.UpdatedAt = formatTime(&rec.UpdatedAt)
	}
	return resp
}

func (h *Handler) handleMyOnboarding(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	session, err := h.authenticate(r)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, err)
		return
	}
	if h.onboarding == nil {
		h.writeError(w, http.StatusInternalServerError, errors.New("onboarding service not configured"))
		return
	}

	p, err := h.onboarding.Progress(r.Context(), session.UserID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, progressResponse{
		recordResponse:          toRecordResponse(p.Record),
		Level:                   p.Level.String(),
		Steps:                   p.Steps,
		FirstPostMeetingStep:    p.FirstPostMeetingStep,
		LastPreMeetingStep:      p.LastPreMeetingStep,
		ShowMeetingInterstitial: p.ShowMeetingInterstitial,
	})
}

type sectionRequest struct {
	SectionID int                `json:"section_id"`
	Data      onboarding.Section `json:"data"`
}

func (h *Handler) handleOnboardingSection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	session, err := h.authenticate(r)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, err)
		return
	}
	if h.onboarding == nil {
		h.writeError(w, http.StatusInternalServerError, errors.New("onboarding service not configured"))
		return
	}

	var req sectionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	rec, err := h.onboarding.ApplyCompletion(r.Context(), session.UserID, req.SectionID, req.Data)
	if err != nil {
		switch {
		case errors.Is(err, onboarding.ErrUnknownSection):
			h.log.Misuse("httpapi.onboarding section", err)
			h.writeError(w, http.StatusBadRequest, err)
		case errors.Is(err, onboarding.ErrStepLocked):
			h.writeError(w, http.StatusForbidden, err)
		case errors.Is(err, onboarding.ErrInvalidInput):
			h.writeError(w, http.StatusBadRequest, err)
		default:
			h.writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, toRecordResponse(rec))
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	v := t.UTC().Format(timeLayout)
	return &v
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("multiple json objects are not allowed")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError only logs server faults; the error type chain goes to the
// log, never the message.
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		h.log.Failure("httpapi", err)
		err = errors.New(http.StatusText(status))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
