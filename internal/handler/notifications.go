package handler

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/mmeshcher/livrini/internal/model"
	"github.com/mmeshcher/livrini/internal/service"
)

type notificationsResponse struct {
	Notifications []model.Notification `json:"notifications"`
	UnreadCount   int                  `json:"unreadCount"`
}

type broadcastRequest struct {
	UserID  *uuid.UUID             `json:"userId"`
	UserIDs []uuid.UUID            `json:"userIds"`
	Role    model.Role             `json:"role"`
	Type    model.NotificationType `json:"type"`
	Title   string                 `json:"title"`
	Message string                 `json:"message"`
	Link    *string                `json:"link"`
}

type lowStockRequest struct {
	SupplierID   uuid.UUID `json:"fournisseurId"`
	ProductName  string    `json:"productName"`
	CurrentStock int       `json:"currentStock"`
}

// ListNotifications возвращает последние уведомления текущего пользователя.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(r)
	if !ok {
		h.fail(w, http.StatusUnauthorized, "Accès non autorisé", "token_missing")
		return
	}

	items, unread, err := h.notifications.ListMine(r.Context(), id.UserID)
	if err != nil {
		h.writeServiceError(w, "list notifications", err)
		return
	}
	h.ok(w, http.StatusOK, notificationsResponse{Notifications: items, UnreadCount: unread}, "")
}

// UnreadCount возвращает число непрочитанных уведомлений.
func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(r)
	if !ok {
		h.fail(w, http.StatusUnauthorized, "Accès non autorisé", "token_missing")
		return
	}

	count, err := h.notifications.UnreadCount(r.Context(), id.UserID)
	if err != nil {
		h.writeServiceError(w, "count notifications", err)
		return
	}
	h.ok(w, http.StatusOK, map[string]int{"count": count}, "")
}

// MarkNotificationRead помечает уведомление прочитанным.
func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(r)
	if !ok {
		h.fail(w, http.StatusUnauthorized, "Accès non autorisé", "token_missing")
		return
	}
	notificationID, ok := h.pathID(w, r)
	if !ok {
		return
	}

	n, err := h.notifications.MarkRead(r.Context(), notificationID, id.UserID)
	if err != nil {
		h.writeServiceError(w, "mark notification read", err)
		return
	}
	h.ok(w, http.StatusOK, n, "")
}

// MarkAllNotificationsRead помечает прочитанными все уведомления пользователя.
func (h *Handler) MarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(r)
	if !ok {
		h.fail(w, http.StatusUnauthorized, "Accès non autorisé", "token_missing")
		return
	}

	count, err := h.notifications.MarkAllRead(r.Context(), id.UserID)
	if err != nil {
		h.writeServiceError(w, "mark all notifications read", err)
		return
	}
	h.ok(w, http.StatusOK, map[string]int{"count": count}, "Toutes les notifications ont été marquées comme lues")
}

// DeleteNotification удаляет уведомление пользователя.
func (h *Handler) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(r)
	if !ok {
		h.fail(w, http.StatusUnauthorized, "Accès non autorisé", "token_missing")
		return
	}
	notificationID, ok := h.pathID(w, r)
	if !ok {
		return
	}

	if err := h.notifications.Delete(r.Context(), notificationID, id.UserID); err != nil {
		h.writeServiceError(w, "delete notification", err)
		return
	}
	h.ok(w, http.StatusOK, nil, "Notification supprimée")
}

// DeleteAllNotifications удаляет все уведомления пользователя.
func (h *Handler) DeleteAllNotifications(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(r)
	if !ok {
		h.fail(w, http.StatusUnauthorized, "Accès non autorisé", "token_missing")
		return
	}

	count, err := h.notifications.DeleteAll(r.Context(), id.UserID)
	if err != nil {
		h.writeServiceError(w, "delete notifications", err)
		return
	}
	h.ok(w, http.StatusOK, map[string]int{"count": count}, "Toutes les notifications ont été supprimées")
}

// CreateNotification выполняет административную рассылку.
func (h *Handler) CreateNotification(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := decodeJSON(r, &req); err != nil {
		h.badRequest(w, "Corps de requête invalide")
		return
	}

	count, err := h.notifications.Broadcast(r.Context(), service.BroadcastInput{
		UserID:  req.UserID,
		UserIDs: req.UserIDs,
		Role:    req.Role,
		Type:    req.Type,
		Title:   req.Title,
		Message: req.Message,
		Link:    req.Link,
	})
	if err != nil {
		h.writeServiceError(w, "create notification", err)
		return
	}
	h.ok(w, http.StatusCreated, map[string]int{"count": count}, "Notification(s) créée(s) avec succès")
}

// LowStockAlert предупреждает поставщика о низком остатке.
func (h *Handler) LowStockAlert(w http.ResponseWriter, r *http.Request) {
	var req lowStockRequest
	if err := decodeJSON(r, &req); err != nil {
		h.badRequest(w, "Corps de requête invalide")
		return
	}
	if req.SupplierID == uuid.Nil || strings.TrimSpace(req.ProductName) == "" {
		h.badRequest(w, "fournisseurId et productName sont requis")
		return
	}
	if req.CurrentStock < 0 {
		h.badRequest(w, "Le stock ne peut pas être négatif")
		return
	}

	n := h.notifications.NotifyLowStock(r.Context(), req.SupplierID, strings.TrimSpace(req.ProductName), req.CurrentStock)
	if n == nil {
		h.fail(w, http.StatusInternalServerError, "Impossible de créer l'alerte", "internal_error")
		return
	}
	h.ok(w, http.StatusCreated, n, "Alerte de stock envoyée")
}
