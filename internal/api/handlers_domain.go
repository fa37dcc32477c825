package api

import (
	"net/http"
	"strconv"

	"github.com/workmate-hq/workmate/internal/api/respond"
	"github.com/workmate-hq/workmate/internal/auth"
	"github.com/workmate-hq/workmate/internal/domain"
	"github.com/workmate-hq/workmate/internal/model"
)

// DomainHandler serves the read-only views of leave, booking and claim data.
// All writes go through the chat engine.
type DomainHandler struct {
	services   *domain.Services
	authorizer auth.Authorizer
}

func NewDomainHandler(services *domain.Services, authorizer auth.Authorizer) *DomainHandler {
	return &DomainHandler{services: services, authorizer: authorizer}
}

func (h *DomainHandler) user(w http.ResponseWriter, r *http.Request) (*model.UserContext, bool) {
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

func limitParam(r *http.Request) int {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return 0
}

// ListLeaves GET /api/leaves
func (h *DomainHandler) ListLeaves(w http.ResponseWriter, r *http.Request) {
	user, ok := h.user(w, r)
	if !ok {
		return
	}
	leaves, err := h.services.LeaveRequests(r.Context(), user.UserID, limitParam(r))
	if err != nil {
		respond.WriteInternalError(w, err.Error())
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"leaves": leaves, "count": len(leaves)})
}

// GetLeaveBalance GET /api/leaves/balance
func (h *DomainHandler) GetLeaveBalance(w http.ResponseWriter, r *http.Request) {
	user, ok := h.user(w, r)
	if !ok {
		return
	}
	balances, err := h.services.Balances(r.Context(), user.UserID)
	if err != nil {
		respond.WriteInternalError(w, err.Error())
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"balances": balances})
}

// ListRooms GET /api/rooms
func (h *DomainHandler) ListRooms(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.user(w, r); !ok {
		return
	}
	rooms, err := h.services.Rooms(r.Context())
	if err != nil {
		respond.WriteInternalError(w, err.Error())
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"rooms": rooms, "count": len(rooms)})
}

// ListBookings GET /api/bookings
func (h *DomainHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	user, ok := h.user(w, r)
	if !ok {
		return
	}
	bookings, err := h.services.Bookings(r.Context(), user.UserID, limitParam(r))
	if err != nil {
		respond.WriteInternalError(w, err.Error())
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"bookings": bookings, "count": len(bookings)})
}

// ListClaims GET /api/claims
func (h *DomainHandler) ListClaims(w http.ResponseWriter, r *http.Request) {
	user, ok := h.user(w, r)
	if !ok {
		return
	}
	claims, err := h.services.Claims(r.Context(), user.UserID, limitParam(r))
	if err != nil {
		respond.WriteInternalError(w, err.Error())
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"claims": claims, "count": len(claims)})
}

// ListClaimCategories GET /api/claims/categories
func (h *DomainHandler) ListClaimCategories(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.user(w, r); !ok {
		return
	}
	cats, err := h.services.ClaimCategories(r.Context())
	if err != nil {
		respond.WriteInternalError(w, err.Error())
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"categories": cats, "count": len(cats)})
}
