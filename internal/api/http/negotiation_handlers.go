package httpapi

import (
	"net/http"

	"github.com/bazaar-hub/bazaar/internal/domain/negotiation"
)

func (s *Server) listConversations(w http.ResponseWriter, r *http.Request) {
	u := authUserFromContext(r.Context())
	list, err := s.negotiationSvc.ListForUser(r.Context(), u.UserID)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

// listMessages returns a conversation's history to its participants only.
func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	u := authUserFromContext(r.Context())
	id, err := parseUUIDParam(r, "conversationId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid conversationId")
		return
	}
	conv, err := s.negotiationSvc.GetConversation(r.Context(), id)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	if !conv.HasParticipant(u.UserID) {
		s.respondDomainError(w, negotiation.ErrUnauthorized)
		return
	}
	msgs, err := s.negotiationSvc.GetMessages(r.Context(), id)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, msgs)
}

func (s *Server) getCart(w http.ResponseWriter, r *http.Request) {
	u := authUserFromContext(r.Context())
	items, err := s.carts.ListItems(r.Context(), u.UserID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}
