package model

import "strings"

// OrderStatus - каноническое значение статуса заказа.
type OrderStatus string

const (
	OrderStatusPending       OrderStatus = "en_attente"
	OrderStatusConfirmed     OrderStatus = "confirmee"
	OrderStatusInPreparation OrderStatus = "en_preparation"
	OrderStatusShipped       OrderStatus = "expediee"
	OrderStatusDelivered     OrderStatus = "livree"
	OrderStatusCancelled     OrderStatus = "annulee"
)

// DeliveryStatus - каноническое значение статуса доставки.
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "En Attente"
	DeliveryStatusInTransit DeliveryStatus = "En Transit"
	DeliveryStatusDelivered DeliveryStatus = "Livrée"
)

// orderStatusAliases сопоставляет нормализованное входное написание каноническому статусу.
var orderStatusAliases = map[string]OrderStatus{
	"en_attente": OrderStatusPending,
	"pending":    OrderStatusPending,

	"confirmee": OrderStatusConfirmed,
	"confirmée": OrderStatusConfirmed,
	"confirme":  OrderStatusConfirmed,
	"confirmé":  OrderStatusConfirmed,
	"confirmed": OrderStatusConfirmed,

	"en_preparation": OrderStatusInPreparation,
	"en_préparation": OrderStatusInPreparation,
	"in_preparation": OrderStatusInPreparation,

	"expediee": OrderStatusShipped,
	"expédiée": OrderStatusShipped,
	"shipped":  OrderStatusShipped,

	"livree":    OrderStatusDelivered,
	"livrée":    OrderStatusDelivered,
	"delivered": OrderStatusDelivered,

	"annulee":   OrderStatusCancelled,
	"annulée":   OrderStatusCancelled,
	"cancelled": OrderStatusCancelled,
	"canceled":  OrderStatusCancelled,
}

var deliveryStatusByOrderStatus = map[OrderStatus]DeliveryStatus{
	OrderStatusPending:       DeliveryStatusPending,
	OrderStatusConfirmed:     DeliveryStatusPending,
	OrderStatusInPreparation: DeliveryStatusPending,
	OrderStatusShipped:       DeliveryStatusInTransit,
	OrderStatusDelivered:     DeliveryStatusDelivered,
	OrderStatusCancelled:     DeliveryStatusPending,
}

func normalizeStatus(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}

// ParseOrderStatus приводит любое допустимое написание статуса заказа к каноническому значению.
func ParseOrderStatus(raw string) (OrderStatus, bool) {
	st, ok := orderStatusAliases[normalizeStatus(raw)]
	return st, ok
}

// DeliveryStatusFor возвращает статус доставки для статуса заказа.
// Функция тотальна: нераспознанный ввод даёт DeliveryStatusPending.
func DeliveryStatusFor(raw string) DeliveryStatus {
	st, ok := ParseOrderStatus(raw)
	if !ok {
		return DeliveryStatusPending
	}
	return deliveryStatusByOrderStatus[st]
}

// ParseDeliveryStatus проверяет, что строка является каноническим статусом доставки.
func ParseDeliveryStatus(raw string) (DeliveryStatus, bool) {
	switch DeliveryStatus(strings.TrimSpace(raw)) {
	case DeliveryStatusPending:
		return DeliveryStatusPending, true
	case DeliveryStatusInTransit:
		return DeliveryStatusInTransit, true
	case DeliveryStatusDelivered:
		return DeliveryStatusDelivered, true
	}
	return "", false
}
