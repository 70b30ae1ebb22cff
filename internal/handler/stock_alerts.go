package handler

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/mmeshcher/livrini/internal/service"
)

type stockAlertRequest struct {
	ProductID    string     `json:"idProduit"`
	ProductName  string     `json:"nomProduit"`
	SupplierID   *uuid.UUID `json:"fournisseur"`
	Threshold    int        `json:"seuilMinimum"`
	CurrentStock int        `json:"quantiteStock"`
}

// ListStockAlerts возвращает все алерты о низком запасе.
func (h *Handler) ListStockAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.stockAlerts.List(r.Context())
	if err != nil {
		h.writeServiceError(w, "list stock alerts", err)
		return
	}
	h.ok(w, http.StatusOK, alerts, "")
}

// GetStockAlert возвращает алерт по идентификатору.
func (h *Handler) GetStockAlert(w http.ResponseWriter, r *http.Request) {
	alertID, ok := h.pathID(w, r)
	if !ok {
		return
	}

	a, err := h.stockAlerts.Get(r.Context(), alertID)
	if err != nil {
		h.writeServiceError(w, "get stock alert", err)
		return
	}
	h.ok(w, http.StatusOK, a, "")
}

// CreateStockAlert заводит алерт от имени текущего пользователя.
func (h *Handler) CreateStockAlert(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(r)
	if !ok {
		h.fail(w, http.StatusUnauthorized, "Accès non autorisé", "token_missing")
		return
	}

	var req stockAlertRequest
	if err := decodeJSON(r, &req); err != nil {
		h.badRequest(w, "Corps de requête invalide")
		return
	}

	a, err := h.stockAlerts.Create(r.Context(), service.CreateStockAlertInput{
		ProductID:    req.ProductID,
		ProductName:  req.ProductName,
		SupplierID:   req.SupplierID,
		Threshold:    req.Threshold,
		CurrentStock: req.CurrentStock,
		CreatedBy:    id.UserID,
	})
	if err != nil {
		h.writeServiceError(w, "create stock alert", err)
		return
	}
	h.ok(w, http.StatusCreated, a, "Alerte de stock créée")
}

// ResolveStockAlert закрывает алерт.
func (h *Handler) ResolveStockAlert(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(r)
	if !ok {
		h.fail(w, http.StatusUnauthorized, "Accès non autorisé", "token_missing")
		return
	}
	alertID, ok := h.pathID(w, r)
	if !ok {
		return
	}

	a, err := h.stockAlerts.Resolve(r.Context(), alertID, id.UserID)
	if err != nil {
		h.writeServiceError(w, "resolve stock alert", err)
		return
	}
	h.ok(w, http.StatusOK, a, "Alerte résolue")
}

// DeleteStockAlert удаляет алерт.
func (h *Handler) DeleteStockAlert(w http.ResponseWriter, r *http.Request) {
	alertID, ok := h.pathID(w, r)
	if !ok {
		return
	}

	if err := h.stockAlerts.Delete(r.Context(), alertID); err != nil {
		h.writeServiceError(w, "delete stock alert", err)
		return
	}
	h.ok(w, http.StatusOK, nil, "Alerte supprimée")
}
