package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/workmate-hq/workmate/internal/api/respond"
	"github.com/workmate-hq/workmate/internal/api/validate"
	"github.com/workmate-hq/workmate/internal/auth"
	"github.com/workmate-hq/workmate/internal/engine"
	"github.com/workmate-hq/workmate/internal/model"
	"github.com/workmate-hq/workmate/internal/store"
)

// ChatHandler is the HTTP transport for chat turns and conversation access.
type ChatHandler struct {
	engine     *engine.Engine
	store      store.Store
	authorizer auth.Authorizer
}

func NewChatHandler(eng *engine.Engine, s store.Store, authorizer auth.Authorizer) *ChatHandler {
	return &ChatHandler{engine: eng, store: s, authorizer: authorizer}
}

func (h *ChatHandler) user(w http.ResponseWriter, r *http.Request) (*model.UserContext, bool) {
	apiKey, err := auth.ExtractAPIKey(r)
	if err != nil {
		respond.WriteUnauthorized(w, err.Error())
		return nil, false
	}
	user, err := h.authorizer.Authorize(r.Context(), apiKey)
	if err != nil {
		respond.WriteUnauthorized(w, err.Error())
		return nil, false
	}
	return user, true
}

// HandleChat POST /api/chat
func (h *ChatHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	user, ok := h.user(w, r)
	if !ok {
		return
	}
	var req struct {
		ConversationID string `json:"conversationId"`
		Message        string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	if err := validate.Message(req.Message); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	if err := validate.ConversationID(req.ConversationID); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}

	reply, err := h.engine.HandleMessage(r.Context(), req.ConversationID, *user, req.Message)
	if err != nil {
		respond.WriteModelError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, reply)
}

// ListConversations GET /api/chat/conversations
func (h *ChatHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	user, ok := h.user(w, r)
	if !ok {
		return
	}
	convs, err := h.store.Conversations().List(r.Context(), user.UserID)
	if err != nil {
		respond.WriteInternalError(w, err.Error())
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"conversations": convs, "count": len(convs)})
}

// GetConversation GET /api/chat/conversations/{conversationId}
func (h *ChatHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	user, ok := h.user(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["conversationId"]
	cv, err := h.store.Conversations().Get(r.Context(), id)
	if err != nil {
		respond.WriteModelError(w, err)
		return
	}
	if cv.UserID != user.UserID {
		respond.WriteNotFound(w, "conversation not found")
		return
	}
	msgs, err := h.store.Messages().List(r.Context(), model.ListMessagesRequest{ConversationID: id})
	if err != nil {
		respond.WriteInternalError(w, err.Error())
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"conversation": cv, "messages": msgs})
}

// ArchiveConversation POST /api/chat/conversations/{conversationId}/archive
// Conversations are archived, never deleted.
func (h *ChatHandler) ArchiveConversation(w http.ResponseWriter, r *http.Request) {
	user, ok := h.user(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["conversationId"]
	cv, err := h.store.Conversations().Get(r.Context(), id)
	if err != nil {
		respond.WriteModelError(w, err)
		return
	}
	if cv.UserID != user.UserID {
		respond.WriteNotFound(w, "conversation not found")
		return
	}
	if err := h.store.Conversations().Archive(r.Context(), id); err != nil {
		respond.WriteModelError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
