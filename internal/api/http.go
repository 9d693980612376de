// Package api exposes the request/response surface of the engine. Handlers
// only parse, call the lifecycle engine, and map the error taxonomy to
// status codes: validation 400, forbidden 403, not-found 404, rest 500.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"dm_core/internal/auth"
	"dm_core/internal/chat"
	"dm_core/internal/domain"
)

type Handler struct {
	svc      *chat.Service
	verifier *auth.Verifier
	log      *slog.Logger
}

func NewHandler(svc *chat.Service, verifier *auth.Verifier, log *slog.Logger) *Handler {
	return &Handler{svc: svc, verifier: verifier, log: log}
}

// Register mounts all message routes on r behind the auth middleware.
func (h *Handler) Register(r *mux.Router) {
	api := r.PathPrefix("/api").Subrouter()
	api.Use(h.authenticate)

	api.HandleFunc("/contacts", h.handleContacts).Methods(http.MethodGet)
	api.HandleFunc("/chats", h.handleChatPartners).Methods(http.MethodGet)
	api.HandleFunc("/messages/unread", h.handleUnreadCounts).Methods(http.MethodGet)
	api.HandleFunc("/messages/send/{id}", h.handleSend).Methods(http.MethodPost)
	api.HandleFunc("/messages/edit/{messageId}", h.handleEdit).Methods(http.MethodPut)
	api.HandleFunc("/messages/react/{messageId}", h.handleReact).Methods(http.MethodPost)
	api.HandleFunc("/messages/read/{senderId}", h.handleMarkRead).Methods(http.MethodPut)
	api.HandleFunc("/messages/forward/{messageId}", h.handleForward).Methods(http.MethodPost)
	api.HandleFunc("/messages/{messageId}", h.handleDelete).Methods(http.MethodDelete)
	api.HandleFunc("/messages/{id}", h.handleConversation).Methods(http.MethodGet)
}

func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody{Message: "missing token"})
			return
		}
		userID, err := h.verifier.Verify(token)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorBody{Message: "invalid token"})
			return
		}
		ctx := auth.WithUserID(r.Context(), userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) handleContacts(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	users, err := h.svc.Contacts(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *Handler) handleChatPartners(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	partners, err := h.svc.ChatPartners(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, partners)
}

func (h *Handler) handleUnreadCounts(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	unread, err := h.svc.UnreadBySender(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	// Keyed by sender id string for the client.
	out := make(map[string]domain.UnreadSummary, len(unread))
	for id, sum := range unread {
		out[id.String()] = sum
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleConversation(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	peerID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	messages, err := h.svc.Conversation(r.Context(), userID, peerID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if messages == nil {
		messages = []*domain.Message{}
	}
	writeJSON(w, http.StatusOK, messages)
}

func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	receiverID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var in chat.SendInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Message: "invalid body"})
		return
	}
	msg, err := h.svc.Send(r.Context(), userID, receiverID, in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *Handler) handleEdit(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	messageID, ok := pathUUID(w, r, "messageId")
	if !ok {
		return
	}
	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Message: "invalid body"})
		return
	}
	msg, err := h.svc.Edit(r.Context(), messageID, userID, body.Text)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	messageID, ok := pathUUID(w, r, "messageId")
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), messageID, userID); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "message deleted"})
}

func (h *Handler) handleReact(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	messageID, ok := pathUUID(w, r, "messageId")
	if !ok {
		return
	}
	var body struct {
		Emoji string `json:"emoji"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Message: "invalid body"})
		return
	}
	msg, err := h.svc.React(r.Context(), messageID, userID, body.Emoji)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	senderID, ok := pathUUID(w, r, "senderId")
	if !ok {
		return
	}
	count, err := h.svc.MarkRead(r.Context(), userID, senderID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "messages marked as read", "count": count})
}

func (h *Handler) handleForward(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	messageID, ok := pathUUID(w, r, "messageId")
	if !ok {
		return
	}
	var body struct {
		TargetUserIDs []uuid.UUID `json:"targetUserIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Message: "invalid body"})
		return
	}
	copies, err := h.svc.Forward(r.Context(), messageID, userID, body.TargetUserIDs)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, copies)
}

type errorBody struct {
	Message string `json:"message"`
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorBody{Message: err.Error()})
	case errors.Is(err, domain.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorBody{Message: err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Message: err.Error()})
	default:
		h.log.Error("request failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Message: "internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Message: "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}
