package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/livrini/internal/model"
)

const (
	maxTitleLength   = 200
	maxMessageLength = 500
	notificationsCap = 50
)

type notificationText struct {
	title   string
	message string
}

// Шаблоны уведомлений о статусе заказа; вместо %s подставляется номер заказа.
var orderStatusTexts = map[model.OrderStatus]notificationText{
	model.OrderStatusPending:       {"Commande en attente", "Votre commande #%s est en attente de traitement."},
	model.OrderStatusConfirmed:     {"Commande confirmée", "Votre commande #%s a été confirmée!"},
	model.OrderStatusInPreparation: {"Commande en préparation", "Votre commande #%s est en cours de préparation."},
	model.OrderStatusShipped:       {"Commande expédiée", "Votre commande #%s a été expédiée!"},
	model.OrderStatusDelivered:     {"Commande livrée", "Votre commande #%s a été livrée. Merci de votre confiance!"},
	model.OrderStatusCancelled:     {"Commande annulée", "Votre commande #%s a été annulée."},
}

// Шаблоны уведомлений о доставке; ключом служит статус в нижнем регистре.
var deliveryStatusTexts = map[string]notificationText{
	"en transit": {"🚚 Livraison en cours", "Votre colis est en route!"},
	"en_cours":   {"🚚 Livraison en cours", "Votre colis est en route!"},
	"livrée":     {"✅ Livraison effectuée", "Votre colis a été livré avec succès!"},
	"livree":     {"✅ Livraison effectuée", "Votre colis a été livré avec succès!"},
	"echec":      {"❌ Échec de livraison", "La livraison a échoué. Nous vous contacterons."},
}

// Notifier создаёт уведомления внутри приложения.
// Методы Notify* никогда не возвращают ошибку: при сбое они логируют его и возвращают nil.
type Notifier struct {
	repo   NotificationRepository
	logger *zap.Logger
}

// NewNotifier создаёт Notifier.
func NewNotifier(repo NotificationRepository, logger *zap.Logger) *Notifier {
	return &Notifier{repo: repo, logger: logger}
}

// NotifyUser создаёт одно уведомление пользователю.
func (n *Notifier) NotifyUser(ctx context.Context, userID uuid.UUID, typ model.NotificationType, title, message string, link *string) *model.Notification {
	notification := &model.Notification{
		ID:       uuid.New(),
		UserID:   userID,
		Type:     typ,
		Title:    truncate(title, maxTitleLength),
		Message:  truncate(message, maxMessageLength),
		Link:     link,
		Metadata: map[string]any{},
	}

	if err := n.repo.CreateNotification(ctx, notification); err != nil {
		n.logger.Warn("create notification failed",
			zap.String("user", userID.String()),
			zap.String("type", string(typ)),
			zap.Error(err),
		)
		return nil
	}
	return notification
}

// NotifyOrderStatus уведомляет клиента об изменении статуса заказа.
func (n *Notifier) NotifyOrderStatus(ctx context.Context, userID uuid.UUID, orderNumber, status string) *model.Notification {
	var title, message string
	if st, ok := model.ParseOrderStatus(status); ok {
		text := orderStatusTexts[st]
		title, message = text.title, fmt.Sprintf(text.message, orderNumber)
	} else {
		title = "Mise à jour commande"
		message = fmt.Sprintf("Votre commande #%s a été mise à jour: %s", orderNumber, status)
	}

	link := "/orders/" + orderNumber
	return n.NotifyUser(ctx, userID, model.NotificationOrder, title, message, &link)
}

// NotifyDelivery уведомляет клиента об изменении статуса доставки.
func (n *Notifier) NotifyDelivery(ctx context.Context, userID, deliveryID uuid.UUID, status string) *model.Notification {
	text, ok := deliveryStatusTexts[strings.ToLower(strings.TrimSpace(status))]
	if !ok {
		text = notificationText{"Mise à jour livraison", "Statut de livraison: " + status}
	}

	link := "/deliveries/" + deliveryID.String()
	return n.NotifyUser(ctx, userID, model.NotificationDelivery, text.title, text.message, &link)
}

// NotifyLowStock предупреждает поставщика о низком остатке товара.
func (n *Notifier) NotifyLowStock(ctx context.Context, supplierID uuid.UUID, productName string, currentStock int) *model.Notification {
	link := "/fournisseur-dashboard"
	return n.NotifyUser(ctx, supplierID, model.NotificationStock,
		"⚠️ Stock faible",
		fmt.Sprintf(`Le produit "%s" n'a plus que %d unités en stock.`, productName, currentStock),
		&link,
	)
}

// ListMine возвращает последние уведомления пользователя и число непрочитанных.
func (n *Notifier) ListMine(ctx context.Context, userID uuid.UUID) ([]model.Notification, int, error) {
	items, err := n.repo.ListNotifications(ctx, userID, notificationsCap)
	if err != nil {
		return nil, 0, err
	}
	unread, err := n.repo.CountUnreadNotifications(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	if items == nil {
		items = []model.Notification{}
	}
	return items, unread, nil
}

// UnreadCount возвращает число непрочитанных уведомлений.
func (n *Notifier) UnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	return n.repo.CountUnreadNotifications(ctx, userID)
}

// MarkRead помечает уведомление пользователя прочитанным.
func (n *Notifier) MarkRead(ctx context.Context, id, userID uuid.UUID) (*model.Notification, error) {
	return n.repo.MarkNotificationRead(ctx, id, userID)
}

// MarkAllRead помечает прочитанными все уведомления пользователя.
func (n *Notifier) MarkAllRead(ctx context.Context, userID uuid.UUID) (int, error) {
	return n.repo.MarkAllNotificationsRead(ctx, userID)
}

// Delete удаляет уведомление пользователя.
func (n *Notifier) Delete(ctx context.Context, id, userID uuid.UUID) error {
	return n.repo.DeleteNotification(ctx, id, userID)
}

// DeleteAll удаляет все уведомления пользователя.
func (n *Notifier) DeleteAll(ctx context.Context, userID uuid.UUID) (int, error) {
	return n.repo.DeleteAllNotifications(ctx, userID)
}

// BroadcastInput - параметры административной рассылки. Задаётся ровно одна цель:
// UserID, UserIDs или Role.
type BroadcastInput struct {
	UserID  *uuid.UUID
	UserIDs []uuid.UUID
	Role    model.Role
	Type    model.NotificationType
	Title   string
	Message string
	Link    *string
}

// Broadcast создаёт уведомление для одного пользователя, списка пользователей или всех пользователей роли.
// Возвращает количество созданных уведомлений.
func (n *Notifier) Broadcast(ctx context.Context, in BroadcastInput) (int, error) {
	title := strings.TrimSpace(in.Title)
	message := strings.TrimSpace(in.Message)
	if title == "" || message == "" {
		return 0, invalid("Titre et message sont requis")
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return 0, invalid("Le titre ne peut pas dépasser 200 caractères")
	}
	if utf8.RuneCountInString(message) > maxMessageLength {
		return 0, invalid("Le message ne peut pas dépasser 500 caractères")
	}

	typ := in.Type
	if typ == "" {
		typ = model.NotificationInfo
	}
	if !typ.Valid() {
		return 0, invalid("Type de notification invalide")
	}

	targets := 0
	if in.UserID != nil {
		targets++
	}
	if len(in.UserIDs) > 0 {
		targets++
	}
	if in.Role != "" {
		targets++
	}
	if targets != 1 {
		return 0, invalid("Indiquez un destinataire: userId, userIds ou role")
	}

	tmpl := model.Notification{Type: typ, Title: title, Message: message, Link: in.Link, Metadata: map[string]any{}}

	switch {
	case in.UserID != nil:
		tmpl.ID = uuid.New()
		tmpl.UserID = *in.UserID
		if err := n.repo.CreateNotification(ctx, &tmpl); err != nil {
			return 0, err
		}
		return 1, nil
	case len(in.UserIDs) > 0:
		return n.repo.CreateNotifications(ctx, in.UserIDs, tmpl)
	default:
		if !in.Role.Valid() {
			return 0, invalid("Rôle invalide")
		}
		return n.repo.CreateNotificationsForRole(ctx, in.Role, tmpl)
	}
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}
