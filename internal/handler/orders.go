package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/livrini/internal/model"
	"github.com/mmeshcher/livrini/internal/service"
)

type createOrderRequest struct {
	NumeroCommande   string            `json:"numeroCommande"`
	Produits         []model.OrderItem `json:"produits"`
	AdresseLivraison string            `json:"adresseLivraison"`
	TaxesAppliquees  float64           `json:"taxesAppliquees"`
	FraisLivraison   *float64          `json:"fraisLivraison"`
	MethodePaiement  string            `json:"methodePaiement"`
	Notes            string            `json:"notes"`
}

type updateStatusRequest struct {
	Statut string `json:"statut"`
}

type notesRequest struct {
	Notes string `json:"notesLivreur"`
}

// CreateOrder создаёт заказ текущего клиента вместе со строками и доставкой.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(r)
	if !ok {
		h.fail(w, http.StatusUnauthorized, "Accès non autorisé", "token_missing")
		return
	}

	var req createOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		h.badRequest(w, "Corps de requête invalide")
		return
	}

	o, err := h.orders.CreateOrder(r.Context(), service.CreateOrderInput{
		ClientID:      id.UserID,
		Number:        req.NumeroCommande,
		Items:         req.Produits,
		Address:       req.AdresseLivraison,
		Taxes:         req.TaxesAppliquees,
		DeliveryFee:   req.FraisLivraison,
		PaymentMethod: req.MethodePaiement,
		Notes:         req.Notes,
	})
	if err != nil {
		h.writeServiceError(w, "create order", err)
		return
	}
	h.ok(w, http.StatusCreated, o, "Commande créée avec succès")
}

// ListOrders возвращает заказы: все для персонала, собственные для клиента.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(r)
	if !ok {
		h.fail(w, http.StatusUnauthorized, "Accès non autorisé", "token_missing")
		return
	}

	orders, err := h.orders.ListOrders(r.Context(), viewerOf(id))
	if err != nil {
		h.writeServiceError(w, "list orders", err)
		return
	}
	h.ok(w, http.StatusOK, orders, "")
}

// ListSupplierOrders возвращает заказы, в которых есть товары текущего поставщика.
func (h *Handler) ListSupplierOrders(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(r)
	if !ok {
		h.fail(w, http.StatusUnauthorized, "Accès non autorisé", "token_missing")
		return
	}

	orders, err := h.orders.ListSupplierOrders(r.Context(), id.UserID)
	if err != nil {
		h.writeServiceError(w, "list supplier orders", err)
		return
	}
	h.ok(w, http.StatusOK, orders, "")
}

// GetOrder возвращает заказ по номеру.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(r)
	if !ok {
		h.fail(w, http.StatusUnauthorized, "Accès non autorisé", "token_missing")
		return
	}

	o, err := h.orders.GetOrder(r.Context(), chi.URLParam(r, "numero"), viewerOf(id))
	if err != nil {
		h.writeServiceError(w, "get order", err)
		return
	}
	h.ok(w, http.StatusOK, o, "")
}

// ListOrderLines возвращает строки заказа.
func (h *Handler) ListOrderLines(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(r)
	if !ok {
		h.fail(w, http.StatusUnauthorized, "Accès non autorisé", "token_missing")
		return
	}

	lines, err := h.orders.ListOrderLines(r.Context(), chi.URLParam(r, "numero"), viewerOf(id))
	if err != nil {
		h.writeServiceError(w, "list order lines", err)
		return
	}
	h.ok(w, http.StatusOK, lines, "")
}

// GetOrderDelivery возвращает доставку заказа.
func (h *Handler) GetOrderDelivery(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(r)
	if !ok {
		h.fail(w, http.StatusUnauthorized, "Accès non autorisé", "token_missing")
		return
	}

	d, err := h.orders.GetOrderDelivery(r.Context(), chi.URLParam(r, "numero"), viewerOf(id))
	if err != nil {
		h.writeServiceError(w, "get order delivery", err)
		return
	}
	h.ok(w, http.StatusOK, d, "")
}

// UpdateOrderStatus меняет статус заказа.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		h.badRequest(w, "Corps de requête invalide")
		return
	}
	if req.Statut == "" {
		h.badRequest(w, "Le statut est requis")
		return
	}

	number := chi.URLParam(r, "numero")
	o, err := h.orders.UpdateOrderStatus(r.Context(), number, req.Statut)
	if err != nil {
		h.writeServiceError(w, "update order status", err)
		return
	}
	h.ok(w, http.StatusOK, o, "Statut de la commande mis à jour")
}

// ListDeliveries возвращает все доставки.
func (h *Handler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	deliveries, err := h.orders.ListDeliveries(r.Context())
	if err != nil {
		h.writeServiceError(w, "list deliveries", err)
		return
	}
	h.ok(w, http.StatusOK, deliveries, "")
}

// GetDelivery возвращает доставку по идентификатору.
func (h *Handler) GetDelivery(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(r)
	if !ok {
		h.fail(w, http.StatusUnauthorized, "Accès non autorisé", "token_missing")
		return
	}
	deliveryID, ok := h.pathID(w, r)
	if !ok {
		return
	}

	d, err := h.orders.GetDelivery(r.Context(), deliveryID, viewerOf(id))
	if err != nil {
		h.writeServiceError(w, "get delivery", err)
		return
	}
	h.ok(w, http.StatusOK, d, "")
}

// UpdateDeliveryNotes сохраняет заметки курьера.
func (h *Handler) UpdateDeliveryNotes(w http.ResponseWriter, r *http.Request) {
	deliveryID, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var req notesRequest
	if err := decodeJSON(r, &req); err != nil {
		h.badRequest(w, "Corps de requête invalide")
		return
	}

	d, err := h.orders.UpdateDeliveryNotes(r.Context(), deliveryID, req.Notes)
	if err != nil {
		h.writeServiceError(w, "update delivery notes", err)
		return
	}
	h.ok(w, http.StatusOK, d, "Notes mises à jour")
}

// SyncDeliveries запускает сверку доставок со статусами заказов.
func (h *Handler) SyncDeliveries(w http.ResponseWriter, r *http.Request) {
	report, err := h.orders.SyncAllDeliveries(r.Context())
	if err != nil {
		h.writeServiceError(w, "sync deliveries", err)
		return
	}

	h.logger.Info("manual delivery sync finished",
		zap.Int("scanned", report.Scanned),
		zap.Int("created", report.Created),
		zap.Int("updated", report.Updated),
		zap.Int("failed", report.Failed),
	)
	h.ok(w, http.StatusOK, report, "Synchronisation terminée")
}
