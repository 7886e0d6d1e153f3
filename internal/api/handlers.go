// Package api exposes HTTP handlers for the event service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"example.com/eventhub/internal/auth"
	"example.com/eventhub/internal/domain"
	"example.com/eventhub/internal/persistence"
)

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/activities", h.activities)
	mux.HandleFunc("/v1/activities/", h.activitySubroutes)
	mux.HandleFunc("/v1/users/login", h.login)
	mux.HandleFunc("/v1/users/", h.userSubroutes)
	mux.HandleFunc("/v1/comments", h.createComment)
	mux.HandleFunc("/v1/comments/", h.deleteComment)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) activities(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createActivity(w, r)
	case http.MethodGet:
		h.listActivities(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) activitySubroutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/activities/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing activity id")
		return
	}

	switch {
	case sub == "" && r.Method == http.MethodGet:
		h.getActivity(w, r, id)
	case sub == "register" && r.Method == http.MethodPost:
		h.registerParticipant(w, r, id)
	case sub == "checkin" && r.Method == http.MethodPost:
		h.checkIn(w, r, id)
	case sub == "participants" && r.Method == http.MethodGet:
		h.listParticipants(w, r, id)
	case sub == "checkins" && r.Method == http.MethodGet:
		h.listCheckIns(w, r, id)
	case sub == "comments" && r.Method == http.MethodGet:
		h.listComments(w, r, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) createActivity(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	var req CreateActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	media := make([]domain.MediaItem, 0, len(req.Media))
	for _, item := range req.Media {
		media = append(media, domain.MediaItem{Type: item.Type, URL: item.URL})
	}

	activity, err := h.service.CreateActivity(r.Context(), domain.CreateActivityInput{
		Title:       req.Title,
		Category:    req.Category,
		Description: req.Description,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Location: domain.Location{
			Name:      req.Location.Name,
			Address:   req.Location.Address,
			Latitude:  req.Location.Latitude,
			Longitude: req.Location.Longitude,
		},
		CoverURL:        req.CoverURL,
		MaxParticipants: req.MaxParticipants,
		CreatorID:       claims.Subject,
		Media:           media,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toActivityView(*activity))
}

func (h *Handler) getActivity(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := requireScope(w, r, auth.ScopeActivitiesRead, auth.ScopeActivitiesWrite); !ok {
		return
	}

	activity, err := h.service.GetActivity(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toActivityView(*activity))
}

func (h *Handler) listActivities(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireScope(w, r, auth.ScopeActivitiesRead, auth.ScopeActivitiesWrite); !ok {
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	activities, next, err := h.service.ListActivities(r.Context(), cursor, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	items := make([]ActivityView, 0, len(activities))
	for _, activity := range activities {
		items = append(items, toActivityView(activity))
	}
	writeJSON(w, http.StatusOK, ListActivitiesResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(next),
	})
}

func (h *Handler) registerParticipant(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := requireScope(w, r, auth.ScopeActivitiesWrite); !ok {
		return
	}

	var req RegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	participant, err := h.service.RegisterParticipant(r.Context(), id, req.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ParticipantView{
		ActivityID: participant.ActivityID,
		UserID:     participant.UserID,
		JoinedAt:   participant.JoinedAt,
	})
}

func (h *Handler) checkIn(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := requireScope(w, r, auth.ScopeActivitiesWrite); !ok {
		return
	}

	var req RegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	checkIn, err := h.service.CheckIn(r.Context(), id, req.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, CheckInView{
		ActivityID:  checkIn.ActivityID,
		UserID:      checkIn.UserID,
		CheckedInAt: checkIn.CheckedInAt,
	})
}

func (h *Handler) listParticipants(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := requireScope(w, r, auth.ScopeActivitiesRead, auth.ScopeActivitiesWrite); !ok {
		return
	}

	participants, err := h.service.ListParticipants(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	items := make([]ParticipantView, 0, len(participants))
	for _, p := range participants {
		items = append(items, ParticipantView{ActivityID: p.ActivityID, UserID: p.UserID, JoinedAt: p.JoinedAt})
	}
	writeJSON(w, http.StatusOK, ParticipantListResponse{Items: items})
}

func (h *Handler) listCheckIns(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := requireScope(w, r, auth.ScopeActivitiesRead, auth.ScopeActivitiesWrite); !ok {
		return
	}

	checkIns, err := h.service.ListCheckIns(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	items := make([]CheckInView, 0, len(checkIns))
	for _, c := range checkIns {
		items = append(items, CheckInView{ActivityID: c.ActivityID, UserID: c.UserID, CheckedInAt: c.CheckedInAt})
	}
	writeJSON(w, http.StatusOK, CheckInListResponse{Items: items})
}

func (h *Handler) listComments(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := requireScope(w, r, auth.ScopeActivitiesRead, auth.ScopeActivitiesWrite); !ok {
		return
	}

	comments, err := h.service.ListComments(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	items := make([]CommentView, 0, len(comments))
	for _, c := range comments {
		items = append(items, toCommentView(c))
	}
	writeJSON(w, http.StatusOK, CommentListResponse{Items: items})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}

	var req LoginRequest
	if r.Body != nil {
		// Profile fields are optional; an empty body is fine.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	user, created, err := h.service.Login(r.Context(), claims.Subject, req.Nickname, req.AvatarURL)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, LoginResponse{
		UserID:    user.ID,
		Nickname:  user.Nickname,
		AvatarURL: user.AvatarURL,
		IsNewUser: created,
	})
}

func (h *Handler) userSubroutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/users/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing user id")
		return
	}

	switch {
	case sub == "" && r.Method == http.MethodGet:
		h.getUser(w, r, id)
	case sub == "" && r.Method == http.MethodPut:
		h.updateUser(w, r, id)
	case sub == "created-activities" && r.Method == http.MethodGet:
		h.listUserActivities(w, r, id, h.service.ListCreatedActivities)
	case sub == "joined-activities" && r.Method == http.MethodGet:
		h.listUserActivities(w, r, id, h.service.ListJoinedActivities)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := requireScope(w, r, auth.ScopeActivitiesRead, auth.ScopeActivitiesWrite); !ok {
		return
	}

	user, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, UserView{
		UserID:    user.ID,
		Nickname:  user.Nickname,
		AvatarURL: user.AvatarURL,
		CreatedAt: user.CreatedAt,
	})
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := requireScope(w, r, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}
	if claims.Subject != id {
		writeError(w, http.StatusForbidden, "forbidden", "profiles may only be updated by their owner")
		return
	}

	var req UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	if err := h.service.UpdateUserProfile(r.Context(), id, req.Nickname, req.AvatarURL); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listUserActivities(w http.ResponseWriter, r *http.Request, id string, list func(ctx context.Context, userID string) ([]domain.Activity, error)) {
	if _, ok := requireScope(w, r, auth.ScopeActivitiesRead, auth.ScopeActivitiesWrite); !ok {
		return
	}

	activities, err := list(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	items := make([]ActivityView, 0, len(activities))
	for _, activity := range activities {
		items = append(items, toActivityView(activity))
	}
	writeJSON(w, http.StatusOK, ListActivitiesResponse{Items: items})
}

func (h *Handler) createComment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	var req CreateCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	comment, err := h.service.CreateComment(r.Context(), domain.CreateCommentInput{
		ActivityID: req.ActivityID,
		AuthorID:   claims.Subject,
		Content:    req.Content,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCommentView(*comment))
}

func (h *Handler) deleteComment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/comments/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing comment id")
		return
	}

	if err := h.service.DeleteComment(r.Context(), id, claims.Subject); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func requireScope(w http.ResponseWriter, r *http.Request, scopes ...string) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	for _, scope := range scopes {
		if claims.HasScope(scope) {
			return claims, true
		}
	}
	writeError(w, http.StatusForbidden, "forbidden", "insufficient scope")
	return nil, false
}

// writeDomainError maps each typed domain rejection to a distinct,
// stable response so clients can react differently to "event full" and
// "already joined". Unexpected storage failures are logged here, at the
// boundary.
func writeDomainError(w http.ResponseWriter, err error) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, "validation_failed", ve.Error())
	case errors.Is(err, domain.ErrActivityNotFound),
		errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrCommentNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrAlreadyRegistered):
		writeError(w, http.StatusConflict, "already_registered", err.Error())
	case errors.Is(err, domain.ErrCapacityExceeded):
		writeError(w, http.StatusConflict, "capacity_exceeded", err.Error())
	case errors.Is(err, domain.ErrNotRegistered):
		writeError(w, http.StatusConflict, "not_registered", err.Error())
	case errors.Is(err, domain.ErrAlreadyCheckedIn):
		writeError(w, http.StatusConflict, "already_checked_in", err.Error())
	case errors.Is(err, domain.ErrNotCommentAuthor):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case domain.IsTransient(err):
		writeError(w, http.StatusServiceUnavailable, "storage_busy", "storage busy, retry with the same input")
	default:
		log.Printf("unexpected storage error: %v", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
