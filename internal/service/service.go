// Package service реализует бизнес-логику сервиса LIVRINI.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/livrini/internal/model"
	"github.com/mmeshcher/livrini/internal/payment"
	"github.com/mmeshcher/livrini/internal/token"
)

// UserRepository описывает хранилище пользователей.
type UserRepository interface {
	CreateUser(ctx context.Context, u *model.User) error
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	UpdateUser(ctx context.Context, u *model.User) error
	DeleteUser(ctx context.Context, id uuid.UUID) error
	UpdatePendingRegistration(ctx context.Context, u *model.User, otp model.OTP) (int64, error)
	SetUserOTP(ctx context.Context, userID uuid.UUID, otp model.OTP) (int64, error)
	ConsumeVerificationOTP(ctx context.Context, userID uuid.UUID, version int64) (bool, error)
	ConsumeResetOTP(ctx context.Context, userID uuid.UUID, version int64, passwordHash []byte) (bool, error)
}

// OrderRepository описывает хранилище заказов, строк заказа и доставок.
type OrderRepository interface {
	CreateOrder(ctx context.Context, o *model.Order) error
	GetOrderByNumber(ctx context.Context, number string) (*model.Order, error)
	GetOrderByPaymentIntent(ctx context.Context, paymentIntentID string) (*model.Order, error)
	ListOrders(ctx context.Context) ([]model.Order, error)
	ListOrdersByClient(ctx context.Context, clientID uuid.UUID) ([]model.Order, error)
	ListPaidOrdersByClient(ctx context.Context, clientID uuid.UUID) ([]model.Order, error)
	ListOrdersBySupplier(ctx context.Context, supplierID uuid.UUID) ([]model.Order, error)
	UpdatePaymentStatus(ctx context.Context, paymentIntentID string, status model.PaymentStatus, at time.Time) (*model.Order, bool, error)
	UpdateOrderStatus(ctx context.Context, number string, status model.OrderStatus) (*model.Order, model.OrderStatus, error)
	CreateOrderLines(ctx context.Context, lines []model.OrderLine) error
	ListOrderLines(ctx context.Context, orderID uuid.UUID) ([]model.OrderLine, error)

	EnsureDelivery(ctx context.Context, d *model.Delivery) (*model.Delivery, bool, error)
	UpdateDeliveryStatus(ctx context.Context, orderID uuid.UUID, status model.DeliveryStatus, at time.Time) (*model.Delivery, model.DeliveryStatus, error)
	GetDeliveryByID(ctx context.Context, id uuid.UUID) (*model.Delivery, error)
	GetDeliveryByOrderID(ctx context.Context, orderID uuid.UUID) (*model.Delivery, error)
	ListDeliveries(ctx context.Context) ([]model.Delivery, error)
	UpdateDeliveryNotes(ctx context.Context, id uuid.UUID, notes string) (*model.Delivery, error)
}

// NotificationRepository описывает хранилище уведомлений.
type NotificationRepository interface {
	CreateNotification(ctx context.Context, n *model.Notification) error
	CreateNotifications(ctx context.Context, userIDs []uuid.UUID, tmpl model.Notification) (int, error)
	CreateNotificationsForRole(ctx context.Context, role model.Role, tmpl model.Notification) (int, error)
	ListNotifications(ctx context.Context, userID uuid.UUID, limit int) ([]model.Notification, error)
	CountUnreadNotifications(ctx context.Context, userID uuid.UUID) (int, error)
	MarkNotificationRead(ctx context.Context, id, userID uuid.UUID) (*model.Notification, error)
	MarkAllNotificationsRead(ctx context.Context, userID uuid.UUID) (int, error)
	DeleteNotification(ctx context.Context, id, userID uuid.UUID) error
	DeleteAllNotifications(ctx context.Context, userID uuid.UUID) (int, error)
}

// StockAlertRepository описывает хранилище алертов о запасе.
type StockAlertRepository interface {
	CreateStockAlert(ctx context.Context, a *model.StockAlert) error
	ListStockAlerts(ctx context.Context) ([]model.StockAlert, error)
	GetStockAlert(ctx context.Context, id uuid.UUID) (*model.StockAlert, error)
	ResolveStockAlert(ctx context.Context, id, resolvedBy uuid.UUID, at time.Time) (*model.StockAlert, bool, error)
	DeleteStockAlert(ctx context.Context, id uuid.UUID) error
}

// Mailer отправляет письма с кодами и приветствием.
type Mailer interface {
	SendOTP(ctx context.Context, to, code string, purpose model.OTPPurpose, ttl time.Duration) error
	SendWelcome(ctx context.Context, to, firstName string) error
}

// TokenIssuer выпускает токены сессии.
type TokenIssuer interface {
	Issue(id token.Identity) (string, time.Time, error)
}

// Throttle ограничивает частоту отправки кодов.
// Reset снимает окно ожидания, если код так и не был отправлен.
type Throttle interface {
	Allow(ctx context.Context, key string) (bool, error)
	Reset(ctx context.Context, key string) error
}

// PaymentGateway - платёжный провайдер.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, amount float64, currency string, metadata map[string]string) (*payment.Intent, error)
	GetIntent(ctx context.Context, id string) (*payment.Intent, error)
}

// Viewer - пользователь, от имени которого выполняется запрос.
type Viewer struct {
	UserID uuid.UUID
	Role   model.Role
}

// canSee сообщает, может ли viewer видеть ресурс клиента ownerID.
func (v Viewer) canSee(ownerID uuid.UUID) bool {
	return v.Role == model.RoleAdmin || v.Role == model.RoleFournisseur || v.UserID == ownerID
}
