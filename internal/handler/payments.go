package handler

import (
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/mmeshcher/livrini/internal/model"
	"github.com/mmeshcher/livrini/internal/payment"
	"github.com/mmeshcher/livrini/internal/service"
)

// maxWebhookBody ограничивает размер тела webhook.
const maxWebhookBody = 64 << 10

type paymentIntentRequest struct {
	Amount   float64           `json:"amount"`
	Currency string            `json:"currency"`
	Metadata map[string]string `json:"metadata"`
}

type paymentIntentResponse struct {
	ClientSecret    string `json:"clientSecret"`
	PaymentIntentID string `json:"paymentIntentId"`
}

type confirmPaymentRequest struct {
	PaymentIntentID string `json:"paymentIntentId"`
	OrderData       struct {
		Items           []model.OrderItem `json:"items"`
		ShippingAddress string            `json:"shippingAddress"`
	} `json:"orderData"`
}

// CreatePaymentIntent создаёт платёжное намерение.
func (h *Handler) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(r)
	if !ok {
		h.fail(w, http.StatusUnauthorized, "Accès non autorisé", "token_missing")
		return
	}

	var req paymentIntentRequest
	if err := decodeJSON(r, &req); err != nil {
		h.badRequest(w, "Corps de requête invalide")
		return
	}

	intent, err := h.orders.CreatePaymentIntent(r.Context(), id.UserID, req.Amount, req.Currency, req.Metadata)
	if err != nil {
		h.writeServiceError(w, "create payment intent", err)
		return
	}
	h.ok(w, http.StatusOK, paymentIntentResponse{
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.ID,
	}, "")
}

// ConfirmPayment создаёт заказ по проведённому платежу. Повторный вызов возвращает тот же заказ.
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(r)
	if !ok {
		h.fail(w, http.StatusUnauthorized, "Accès non autorisé", "token_missing")
		return
	}

	var req confirmPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		h.badRequest(w, "Corps de requête invalide")
		return
	}

	o, created, err := h.orders.CreateOrderFromPayment(r.Context(), service.PaymentOrderInput{
		ClientID:        id.UserID,
		PaymentIntentID: req.PaymentIntentID,
		Items:           req.OrderData.Items,
		Address:         req.OrderData.ShippingAddress,
	})
	if err != nil {
		h.writeServiceError(w, "confirm payment", err)
		return
	}

	if !created {
		h.ok(w, http.StatusOK, o, "Commande déjà créée pour ce paiement")
		return
	}
	h.ok(w, http.StatusCreated, o, "Paiement confirmé et commande créée")
}

// PaymentHistory возвращает оплаченные заказы текущего клиента.
func (h *Handler) PaymentHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(r)
	if !ok {
		h.fail(w, http.StatusUnauthorized, "Accès non autorisé", "token_missing")
		return
	}

	orders, err := h.orders.PaymentHistory(r.Context(), id.UserID)
	if err != nil {
		h.writeServiceError(w, "payment history", err)
		return
	}
	h.ok(w, http.StatusOK, orders, "")
}

// PaymentWebhook принимает события платёжного провайдера и обновляет статус оплаты заказа.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.badRequest(w, "Corps de requête invalide")
		return
	}

	ev, err := h.webhooks.ParseWebhook(payload, r.Header.Get("Stripe-Signature"))
	switch {
	case errors.Is(err, payment.ErrWebhookNotConfigured):
		h.logger.Error("payment webhook rejected: secret not configured")
		h.fail(w, http.StatusServiceUnavailable, "Webhook non configuré", "webhook_not_configured")
		return
	case err != nil:
		h.logger.Warn("payment webhook rejected", zap.Error(err))
		h.fail(w, http.StatusBadRequest, "Signature du webhook invalide", "invalid_signature")
		return
	}

	if err := h.orders.HandlePaymentEvent(r.Context(), ev); err != nil {
		h.writeServiceError(w, "payment webhook", err)
		return
	}
	h.ok(w, http.StatusOK, map[string]bool{"received": true}, "")
}
