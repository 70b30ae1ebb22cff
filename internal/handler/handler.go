// Package handler содержит HTTP-обработчики API сервиса LIVRINI.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/livrini/internal/middleware"
	"github.com/mmeshcher/livrini/internal/model"
	"github.com/mmeshcher/livrini/internal/payment"
	"github.com/mmeshcher/livrini/internal/repository"
	"github.com/mmeshcher/livrini/internal/service"
	"github.com/mmeshcher/livrini/internal/token"
)

// AuthService определяет контракт аутентификации и управления пользователями.
type AuthService interface {
	Register(ctx context.Context, in service.RegisterInput) (*model.User, error)
	VerifyOTP(ctx context.Context, email, code string) (*service.VerifyResult, error)
	ResendOTP(ctx context.Context, email string) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, email, code, newPassword string) error
	Login(ctx context.Context, email, password string) (*service.Session, error)
	Me(ctx context.Context, userID uuid.UUID) (*model.User, error)
	CreateUserByAdmin(ctx context.Context, in service.CreateUserInput) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*model.User, error)
	UpdateUser(ctx context.Context, id uuid.UUID, in service.UpdateUserInput) (*model.User, error)
	DeleteUser(ctx context.Context, id uuid.UUID) error
}

// OrderService определяет контракт заказов, доставок и платежей.
type OrderService interface {
	CreateOrder(ctx context.Context, in service.CreateOrderInput) (*model.Order, error)
	GetOrder(ctx context.Context, number string, viewer service.Viewer) (*model.Order, error)
	ListOrders(ctx context.Context, viewer service.Viewer) ([]model.Order, error)
	ListOrderLines(ctx context.Context, number string, viewer service.Viewer) ([]model.OrderLine, error)
	GetOrderDelivery(ctx context.Context, number string, viewer service.Viewer) (*model.Delivery, error)
	UpdateOrderStatus(ctx context.Context, number, status string) (*model.Order, error)
	ListDeliveries(ctx context.Context) ([]model.Delivery, error)
	GetDelivery(ctx context.Context, id uuid.UUID, viewer service.Viewer) (*model.Delivery, error)
	UpdateDeliveryNotes(ctx context.Context, id uuid.UUID, notes string) (*model.Delivery, error)
	SyncAllDeliveries(ctx context.Context) (service.SyncReport, error)
	CreatePaymentIntent(ctx context.Context, clientID uuid.UUID, amount float64, currency string, metadata map[string]string) (*payment.Intent, error)
	CreateOrderFromPayment(ctx context.Context, in service.PaymentOrderInput) (*model.Order, bool, error)
	PaymentHistory(ctx context.Context, clientID uuid.UUID) ([]model.Order, error)
	ListSupplierOrders(ctx context.Context, supplierID uuid.UUID) ([]model.Order, error)
	HandlePaymentEvent(ctx context.Context, ev *payment.WebhookEvent) error
}

// StockAlertService определяет контракт алертов о низком запасе.
type StockAlertService interface {
	Create(ctx context.Context, in service.CreateStockAlertInput) (*model.StockAlert, error)
	List(ctx context.Context) ([]model.StockAlert, error)
	Get(ctx context.Context, id uuid.UUID) (*model.StockAlert, error)
	Resolve(ctx context.Context, id, resolvedBy uuid.UUID) (*model.StockAlert, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// WebhookParser проверяет и разбирает события платёжного провайдера.
type WebhookParser interface {
	ParseWebhook(payload []byte, signature string) (*payment.WebhookEvent, error)
}

// NotificationService определяет контракт уведомлений.
type NotificationService interface {
	ListMine(ctx context.Context, userID uuid.UUID) ([]model.Notification, int, error)
	UnreadCount(ctx context.Context, userID uuid.UUID) (int, error)
	MarkRead(ctx context.Context, id, userID uuid.UUID) (*model.Notification, error)
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int, error)
	Delete(ctx context.Context, id, userID uuid.UUID) error
	DeleteAll(ctx context.Context, userID uuid.UUID) (int, error)
	Broadcast(ctx context.Context, in service.BroadcastInput) (int, error)
	NotifyLowStock(ctx context.Context, supplierID uuid.UUID, productName string, currentStock int) *model.Notification
}

// Pinger проверяет доступность хранилища.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps - зависимости Handler.
type Deps struct {
	Auth          AuthService
	Orders        OrderService
	Notifications NotificationService
	StockAlerts   StockAlertService
	Webhooks      WebhookParser
	Health        Pinger
	Tokens        middleware.TokenParser
	Logger        *zap.Logger
	Development   bool
}

// Handler реализует HTTP-обработчики API сервиса LIVRINI.
type Handler struct {
	auth           AuthService
	orders         OrderService
	notifications  NotificationService
	stockAlerts    StockAlertService
	webhooks       WebhookParser
	health         Pinger
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	development    bool
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(deps Deps) *Handler {
	return &Handler{
		auth:           deps.Auth,
		orders:         deps.Orders,
		notifications:  deps.Notifications,
		stockAlerts:    deps.StockAlerts,
		webhooks:       deps.Webhooks,
		health:         deps.Health,
		logger:         deps.Logger,
		authMiddleware: middleware.NewAuthMiddleware(deps.Tokens),
		development:    deps.Development,
	}
}

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("encode response error", zap.Error(err))
	}
}

func (h *Handler) ok(w http.ResponseWriter, status int, data any, message string) {
	h.writeJSON(w, status, envelope{Success: true, Data: data, Message: message})
}

func (h *Handler) fail(w http.ResponseWriter, status int, message, code string) {
	h.writeJSON(w, status, envelope{Message: message, Code: code})
}

func (h *Handler) badRequest(w http.ResponseWriter, message string) {
	h.fail(w, http.StatusBadRequest, message, "validation_error")
}

type errorKind struct {
	status  int
	code    string
	message string
}

var errorKinds = []struct {
	err  error
	kind errorKind
}{
	{service.ErrDuplicateEmail, errorKind{http.StatusBadRequest, "duplicate_email", "Cet email est déjà utilisé"}},
	{service.ErrAlreadyVerified, errorKind{http.StatusBadRequest, "already_verified", "Ce compte est déjà vérifié"}},
	{service.ErrNoPendingOTP, errorKind{http.StatusBadRequest, "no_pending_otp", "Aucun code en attente pour ce compte"}},
	{service.ErrNoResetPending, errorKind{http.StatusBadRequest, "no_reset_pending", "Aucune réinitialisation de mot de passe en cours"}},
	{service.ErrInvalidOTP, errorKind{http.StatusBadRequest, "invalid_otp", "Code invalide"}},
	{service.ErrOTPExpired, errorKind{http.StatusBadRequest, "otp_expired", "Code expiré, veuillez en demander un nouveau"}},
	{service.ErrNothingToResend, errorKind{http.StatusBadRequest, "nothing_to_resend", "Aucun code à renvoyer"}},
	{service.ErrPaymentNotSucceeded, errorKind{http.StatusBadRequest, "payment_not_succeeded", "Le paiement n'a pas été effectué"}},
	{repository.ErrOrderNumberTaken, errorKind{http.StatusBadRequest, "order_number_taken", "Ce numéro de commande existe déjà"}},
	{repository.ErrPaymentAlreadyUsed, errorKind{http.StatusBadRequest, "payment_already_used", "Ce paiement est déjà associé à une commande"}},
	{service.ErrInvalidCredentials, errorKind{http.StatusUnauthorized, "invalid_credentials", "Email ou mot de passe incorrect"}},
	{service.ErrNotVerified, errorKind{http.StatusForbidden, "not_verified", "Veuillez vérifier votre email avant de vous connecter"}},
	{service.ErrAccountDisabled, errorKind{http.StatusForbidden, "account_disabled", "Compte désactivé"}},
	{service.ErrForbidden, errorKind{http.StatusForbidden, "forbidden", "Accès refusé"}},
	{repository.ErrUserNotFound, errorKind{http.StatusNotFound, "not_found", "Utilisateur non trouvé"}},
	{repository.ErrOrderNotFound, errorKind{http.StatusNotFound, "not_found", "Commande non trouvée"}},
	{repository.ErrDeliveryNotFound, errorKind{http.StatusNotFound, "not_found", "Livraison non trouvée"}},
	{repository.ErrNotificationNotFound, errorKind{http.StatusNotFound, "not_found", "Notification non trouvée"}},
	{repository.ErrStockAlertNotFound, errorKind{http.StatusNotFound, "not_found", "Alerte non trouvée"}},
	{service.ErrTooManyRequests, errorKind{http.StatusTooManyRequests, "too_many_requests", "Veuillez patienter avant de demander un nouveau code"}},
	{service.ErrUpstream, errorKind{http.StatusInternalServerError, "upstream_error", "Service externe indisponible, réessayez plus tard"}},
}

// writeServiceError переводит ошибку сервиса в HTTP-ответ. Неизвестные ошибки логируются.
func (h *Handler) writeServiceError(w http.ResponseWriter, op string, err error) {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		h.badRequest(w, verr.Message)
		return
	}

	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			if k.err == service.ErrUpstream {
				h.logger.Warn(op+" upstream error", zap.Error(err))
			}
			h.fail(w, k.kind.status, k.kind.message, k.kind.code)
			return
		}
	}

	h.logger.Error(op+" error", zap.Error(err))
	body := envelope{Message: "Erreur serveur", Code: "internal_error"}
	if h.development {
		body.Error = err.Error()
	}
	h.writeJSON(w, http.StatusInternalServerError, body)
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}

func identity(r *http.Request) (token.Identity, bool) {
	return middleware.GetIdentity(r.Context())
}

func viewerOf(id token.Identity) service.Viewer {
	return service.Viewer{UserID: id.UserID, Role: id.Role}
}

// Health проверяет доступность базы данных.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.health.Ping(ctx); err != nil {
		h.logger.Error("health check error", zap.Error(err))
		h.fail(w, http.StatusServiceUnavailable, "Base de données indisponible", "unavailable")
		return
	}
	h.ok(w, http.StatusOK, map[string]string{"status": "ok"}, "")
}
