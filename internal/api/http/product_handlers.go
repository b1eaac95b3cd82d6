package httpapi

import (
	"net/http"

	appCatalog "github.com/bazaar-hub/bazaar/internal/application/catalog"
)

type productCreateRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Price       *float64 `json:"price"`
}

func (s *Server) createProduct(w http.ResponseWriter, r *http.Request) {
	u := authUserFromContext(r.Context())
	var req productCreateRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	if req.Price == nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "price is required")
		return
	}
	p, err := s.catalogSvc.CreateProduct(r.Context(), u.UserID, appCatalog.CreateInput{
		Name:        req.Name,
		Description: req.Description,
		Price:       *req.Price,
	})
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "productId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid productId")
		return
	}
	p, err := s.catalogSvc.GetProduct(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	if p == nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "product not found")
		return
	}
	respondJSON(w, http.StatusOK, p)
}
