package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/livrini/internal/model"
	"github.com/mmeshcher/livrini/internal/payment"
	"github.com/mmeshcher/livrini/internal/repository"
	"github.com/mmeshcher/livrini/internal/validation"
)

const (
	numberAttempts  = 5
	maxNotesLength  = 1000
	base36Alphabet  = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	randomSuffixLen = 3
)

// OrderConfig содержит параметры заказов и доставок.
type OrderConfig struct {
	DeliveryLeadTime time.Duration
	DeliveryFee      float64
	Currency         string
}

// OrderService координирует жизненный цикл заказа: строки заказа, доставку и уведомления.
// Заказ является источником истины; доставка является производным состоянием, которое
// восстанавливает SyncAllDeliveries.
type OrderService struct {
	orders    OrderRepository
	payments  PaymentGateway
	notifier  *Notifier
	logger    *zap.Logger
	cfg       OrderConfig
	now       func() time.Time
	newNumber func(now time.Time) (string, error)
}

// NewOrderService создаёт OrderService.
func NewOrderService(orders OrderRepository, payments PaymentGateway, notifier *Notifier, cfg OrderConfig, logger *zap.Logger) *OrderService {
	if cfg.DeliveryLeadTime <= 0 {
		cfg.DeliveryLeadTime = 72 * time.Hour
	}
	if cfg.Currency == "" {
		cfg.Currency = "tnd"
	}

	return &OrderService{
		orders:    orders,
		payments:  payments,
		notifier:  notifier,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
		newNumber: generateOrderNumber,
	}
}

// generateOrderNumber возвращает номер вида CMD-<время в base36><3 случайных символа>.
func generateOrderNumber(now time.Time) (string, error) {
	var sb strings.Builder
	sb.WriteString("CMD-")
	sb.WriteString(strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36)))

	limit := big.NewInt(int64(len(base36Alphabet)))
	for i := 0; i < randomSuffixLen; i++ {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("generate order number: %w", err)
		}
		sb.WriteByte(base36Alphabet[n.Int64()])
	}
	return sb.String(), nil
}

// CreateOrderInput - данные нового заказа.
type CreateOrderInput struct {
	ClientID      uuid.UUID
	Number        string
	Items         []model.OrderItem
	Address       string
	Taxes         float64
	DeliveryFee   *float64
	PaymentMethod string
	Notes         string
}

// validateItems проверяет строки заказа. Заказ без строк допустим.
func validateItems(items []model.OrderItem) error {
	for _, it := range items {
		if strings.TrimSpace(it.ProductID) == "" {
			return invalid("Chaque ligne doit référencer un produit")
		}
		if it.Quantity < 1 {
			return invalid("La quantité doit être au moins 1")
		}
		if it.UnitPrice < 0 || math.IsNaN(it.UnitPrice) || math.IsInf(it.UnitPrice, 0) {
			return invalid("Le prix unitaire doit être positif")
		}
	}
	return nil
}

// roundMoney округляет сумму до миллима.
func roundMoney(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// CreateOrder создаёт заказ, его строки и доставку.
// Сбой создания строк или доставки логируется и не прерывает создание заказа.
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (*model.Order, error) {
	in.Address = strings.TrimSpace(in.Address)
	if in.Address == "" {
		return nil, invalid("L'adresse de livraison est requise")
	}
	if err := validateItems(in.Items); err != nil {
		return nil, err
	}
	if in.Taxes < 0 {
		return nil, invalid("Les taxes ne peuvent pas être négatives")
	}
	if in.Number != "" && !validation.IsValidOrderNumber(in.Number) {
		return nil, invalid("Numéro de commande invalide")
	}

	fee := s.cfg.DeliveryFee
	if in.DeliveryFee != nil {
		if *in.DeliveryFee < 0 {
			return nil, invalid("Les frais de livraison ne peuvent pas être négatifs")
		}
		fee = *in.DeliveryFee
	}

	var sum float64
	for _, it := range in.Items {
		sum += it.Subtotal()
	}

	method := in.PaymentMethod
	if method == "" {
		method = "carte"
	}

	o := &model.Order{
		ID:            uuid.New(),
		Number:        in.Number,
		ClientID:      in.ClientID,
		Items:         in.Items,
		Total:         roundMoney(sum + in.Taxes + fee),
		Taxes:         in.Taxes,
		DeliveryFee:   fee,
		Address:       in.Address,
		Status:        model.OrderStatusPending,
		PaymentStatus: model.PaymentStatusPending,
		PaymentMethod: method,
		Notes:         strings.TrimSpace(in.Notes),
	}

	if err := s.insertOrder(ctx, o); err != nil {
		return nil, err
	}

	s.afterCreate(ctx, o)
	return o, nil
}

// insertOrder сохраняет заказ, генерируя номер, если он не задан.
// При коллизии сгенерированного номера номер генерируется заново.
func (s *OrderService) insertOrder(ctx context.Context, o *model.Order) error {
	if o.Number != "" {
		return s.orders.CreateOrder(ctx, o)
	}

	var err error
	for attempt := 0; attempt < numberAttempts; attempt++ {
		o.Number, err = s.newNumber(s.now())
		if err != nil {
			return err
		}

		err = s.orders.CreateOrder(ctx, o)
		if !errors.Is(err, repository.ErrOrderNumberTaken) {
			return err
		}
	}
	return err
}

func (s *OrderService) afterCreate(ctx context.Context, o *model.Order) {
	if len(o.Items) > 0 {
		lines := make([]model.OrderLine, 0, len(o.Items))
		for _, it := range o.Items {
			lines = append(lines, model.OrderLine{
				ID:        uuid.New(),
				OrderID:   o.ID,
				ProductID: it.ProductID,
				Quantity:  it.Quantity,
				UnitPrice: it.UnitPrice,
				Subtotal:  roundMoney(it.Subtotal()),
			})
		}
		if err := s.orders.CreateOrderLines(ctx, lines); err != nil {
			s.logger.Warn("create order lines failed", zap.String("order", o.Number), zap.Error(err))
		}
	}

	if _, _, err := s.ensureDelivery(ctx, o, model.DeliveryStatusFor(string(o.Status))); err != nil {
		s.logger.Warn("create delivery failed", zap.String("order", o.Number), zap.Error(err))
	}
}

// ensureDelivery возвращает доставку заказа, создавая её со статусом status, если её нет.
func (s *OrderService) ensureDelivery(ctx context.Context, o *model.Order, status model.DeliveryStatus) (*model.Delivery, bool, error) {
	now := s.now()
	d := &model.Delivery{
		ID:         uuid.New(),
		OrderID:    o.ID,
		ClientID:   o.ClientID,
		Address:    o.Address,
		ShippedAt:  now,
		ExpectedAt: now.Add(s.cfg.DeliveryLeadTime),
		Status:     status,
		Carrier:    model.DefaultCarrier,
	}
	if status == model.DeliveryStatusDelivered {
		d.DeliveredAt = &now
	}
	return s.orders.EnsureDelivery(ctx, d)
}

// syncDelivery приводит доставку заказа к статусу, выведенному из статуса заказа.
// Возвращает доставку и признак того, что её статус изменился.
func (s *OrderService) syncDelivery(ctx context.Context, o *model.Order) (*model.Delivery, bool, bool, error) {
	target := model.DeliveryStatusFor(string(o.Status))

	d, created, err := s.ensureDelivery(ctx, o, target)
	if err != nil {
		return nil, false, false, err
	}
	if created || d.Status == target {
		return d, created, false, nil
	}

	updated, _, err := s.orders.UpdateDeliveryStatus(ctx, o.ID, target, s.now())
	if err != nil {
		return nil, false, false, err
	}
	return updated, false, true, nil
}

// UpdateOrderStatus меняет статус заказа и синхронизирует статус доставки.
// Повторный вызов с тем же статусом не меняет состояние и не создаёт уведомлений.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, number, rawStatus string) (*model.Order, error) {
	status, ok := model.ParseOrderStatus(rawStatus)
	if !ok {
		return nil, invalid("Statut de commande invalide")
	}

	o, prev, err := s.orders.UpdateOrderStatus(ctx, number, status)
	if err != nil {
		return nil, err
	}

	d, created, changed, err := s.syncDelivery(ctx, o)
	if err != nil {
		s.logger.Warn("sync delivery failed", zap.String("order", o.Number), zap.Error(err))
	}

	if prev != status {
		s.notifier.NotifyOrderStatus(ctx, o.ClientID, o.Number, string(status))
	}
	if d != nil && (changed || (created && d.Status != model.DeliveryStatusPending)) {
		s.notifier.NotifyDelivery(ctx, o.ClientID, d.ID, string(d.Status))
	}

	return o, nil
}

// SyncReport - итог сверки доставок.
type SyncReport struct {
	Scanned int `json:"scanned"`
	Created int `json:"created"`
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
}

// SyncAllDeliveries обходит все заказы, создаёт недостающие доставки и исправляет расхождения статусов.
// Повторный запуск на неизменных данных ничего не меняет.
func (s *OrderService) SyncAllDeliveries(ctx context.Context) (SyncReport, error) {
	var report SyncReport

	orders, err := s.orders.ListOrders(ctx)
	if err != nil {
		return report, err
	}

	for i := range orders {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		o := &orders[i]
		report.Scanned++

		_, created, changed, err := s.syncDelivery(ctx, o)
		switch {
		case err != nil:
			report.Failed++
			s.logger.Warn("sync delivery failed", zap.String("order", o.Number), zap.Error(err))
		case created:
			report.Created++
		case changed:
			report.Updated++
		}
	}

	return report, nil
}

// StartDeliverySync запускает периодическую сверку доставок. При interval <= 0 ничего не делает.
func (s *OrderService) StartDeliverySync(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				report, err := s.SyncAllDeliveries(ctx)
				if err != nil {
					if ctx.Err() == nil {
						s.logger.Error("delivery sync failed", zap.Error(err))
					}
					continue
				}
				s.logger.Info("delivery sync finished",
					zap.Int("scanned", report.Scanned),
					zap.Int("created", report.Created),
					zap.Int("updated", report.Updated),
					zap.Int("failed", report.Failed),
				)
			}
		}
	}()
}

// GetOrder возвращает заказ по номеру. Клиент видит только свои заказы.
func (s *OrderService) GetOrder(ctx context.Context, number string, viewer Viewer) (*model.Order, error) {
	o, err := s.orders.GetOrderByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if !viewer.canSee(o.ClientID) {
		return nil, ErrForbidden
	}
	return o, nil
}

// ListOrders возвращает все заказы для администратора и поставщика и собственные заказы для клиента.
func (s *OrderService) ListOrders(ctx context.Context, viewer Viewer) ([]model.Order, error) {
	var (
		orders []model.Order
		err    error
	)
	if viewer.Role == model.RoleClient {
		orders, err = s.orders.ListOrdersByClient(ctx, viewer.UserID)
	} else {
		orders, err = s.orders.ListOrders(ctx)
	}
	if err != nil {
		return nil, err
	}
	if orders == nil {
		orders = []model.Order{}
	}
	return orders, nil
}

// ListSupplierOrders возвращает заказы, содержащие товары поставщика.
func (s *OrderService) ListSupplierOrders(ctx context.Context, supplierID uuid.UUID) ([]model.Order, error) {
	orders, err := s.orders.ListOrdersBySupplier(ctx, supplierID)
	if err != nil {
		return nil, err
	}
	if orders == nil {
		orders = []model.Order{}
	}
	return orders, nil
}

// ListOrderLines возвращает строки заказа.
func (s *OrderService) ListOrderLines(ctx context.Context, number string, viewer Viewer) ([]model.OrderLine, error) {
	o, err := s.GetOrder(ctx, number, viewer)
	if err != nil {
		return nil, err
	}
	lines, err := s.orders.ListOrderLines(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	if lines == nil {
		lines = []model.OrderLine{}
	}
	return lines, nil
}

// GetOrderDelivery возвращает доставку заказа.
func (s *OrderService) GetOrderDelivery(ctx context.Context, number string, viewer Viewer) (*model.Delivery, error) {
	o, err := s.GetOrder(ctx, number, viewer)
	if err != nil {
		return nil, err
	}
	return s.orders.GetDeliveryByOrderID(ctx, o.ID)
}

// GetDelivery возвращает доставку по идентификатору.
func (s *OrderService) GetDelivery(ctx context.Context, id uuid.UUID, viewer Viewer) (*model.Delivery, error) {
	d, err := s.orders.GetDeliveryByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !viewer.canSee(d.ClientID) {
		return nil, ErrForbidden
	}
	return d, nil
}

// ListDeliveries возвращает все доставки.
func (s *OrderService) ListDeliveries(ctx context.Context) ([]model.Delivery, error) {
	deliveries, err := s.orders.ListDeliveries(ctx)
	if err != nil {
		return nil, err
	}
	if deliveries == nil {
		deliveries = []model.Delivery{}
	}
	return deliveries, nil
}

// UpdateDeliveryNotes сохраняет заметки курьера.
func (s *OrderService) UpdateDeliveryNotes(ctx context.Context, id uuid.UUID, notes string) (*model.Delivery, error) {
	notes = strings.TrimSpace(notes)
	if len([]rune(notes)) > maxNotesLength {
		return nil, invalid("Les notes ne peuvent pas dépasser 1000 caractères")
	}
	return s.orders.UpdateDeliveryNotes(ctx, id, notes)
}

// CreatePaymentIntent создаёт платёжное намерение от имени клиента.
func (s *OrderService) CreatePaymentIntent(ctx context.Context, clientID uuid.UUID, amount float64, currency string, metadata map[string]string) (*payment.Intent, error) {
	if amount <= 0 {
		return nil, invalid("Montant invalide")
	}
	if currency == "" {
		currency = s.cfg.Currency
	}

	meta := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	meta["userId"] = clientID.String()

	intent, err := s.payments.CreateIntent(ctx, amount, currency, meta)
	if err != nil {
		if errors.Is(err, payment.ErrInvalidAmount) {
			return nil, invalid("Montant invalide")
		}
		return nil, fmt.Errorf("%w: create payment intent: %v", ErrUpstream, err)
	}
	return intent, nil
}

// PaymentOrderInput - данные заказа, оплаченного через платёжное намерение.
type PaymentOrderInput struct {
	ClientID        uuid.UUID
	PaymentIntentID string
	Items           []model.OrderItem
	Address         string
}

// CreateOrderFromPayment создаёт подтверждённый оплаченный заказ по проведённому платежу.
// Повторный вызов для того же платежа возвращает уже созданный заказ и created = false.
func (s *OrderService) CreateOrderFromPayment(ctx context.Context, in PaymentOrderInput) (*model.Order, bool, error) {
	in.PaymentIntentID = strings.TrimSpace(in.PaymentIntentID)
	in.Address = strings.TrimSpace(in.Address)
	if in.PaymentIntentID == "" {
		return nil, false, invalid("PaymentIntent ID requis")
	}
	if in.Address == "" {
		return nil, false, invalid("L'adresse de livraison est requise")
	}
	if err := validateItems(in.Items); err != nil {
		return nil, false, err
	}

	if existing, err := s.existingPaymentOrder(ctx, in); existing != nil || err != nil {
		return existing, false, err
	}

	intent, err := s.payments.GetIntent(ctx, in.PaymentIntentID)
	if err != nil {
		if errors.Is(err, payment.ErrIntentNotFound) {
			return nil, false, invalid("Paiement introuvable")
		}
		return nil, false, fmt.Errorf("%w: get payment intent: %v", ErrUpstream, err)
	}
	if !intent.Succeeded() {
		return nil, false, ErrPaymentNotSucceeded
	}
	if owner := intent.Metadata["userId"]; owner != "" && owner != in.ClientID.String() {
		return nil, false, ErrForbidden
	}

	paidAt := s.now()
	o := &model.Order{
		ID:              uuid.New(),
		ClientID:        in.ClientID,
		Items:           in.Items,
		Total:           intent.Amount,
		Address:         in.Address,
		Status:          model.OrderStatusConfirmed,
		PaymentStatus:   model.PaymentStatusPaid,
		PaymentMethod:   "carte",
		PaymentIntentID: intent.ID,
		PaidAt:          &paidAt,
	}

	if err := s.insertOrder(ctx, o); err != nil {
		if errors.Is(err, repository.ErrPaymentAlreadyUsed) {
			existing, getErr := s.existingPaymentOrder(ctx, in)
			if getErr != nil {
				return nil, false, getErr
			}
			return existing, false, nil
		}
		return nil, false, err
	}

	s.afterCreate(ctx, o)

	link := "/orders/" + o.Number
	s.notifier.NotifyUser(ctx, o.ClientID, model.NotificationOrder,
		"✅ Paiement réussi!",
		fmt.Sprintf("Votre commande #%s a été confirmée. Montant: %s %s", o.Number, strconv.FormatFloat(o.Total, 'f', -1, 64), strings.ToUpper(intent.Currency)),
		&link,
	)

	return o, true, nil
}

func (s *OrderService) existingPaymentOrder(ctx context.Context, in PaymentOrderInput) (*model.Order, error) {
	o, err := s.orders.GetOrderByPaymentIntent(ctx, in.PaymentIntentID)
	if errors.Is(err, repository.ErrOrderNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if o.ClientID != in.ClientID {
		return nil, ErrForbidden
	}
	return o, nil
}

// PaymentHistory возвращает заказы клиента, оплаченные через платёжного провайдера.
func (s *OrderService) PaymentHistory(ctx context.Context, clientID uuid.UUID) ([]model.Order, error) {
	orders, err := s.orders.ListPaidOrdersByClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if orders == nil {
		orders = []model.Order{}
	}
	return orders, nil
}

// HandlePaymentEvent применяет событие провайдера к заказу, созданному по платежу.
// Событие без заказа подтверждается: заказ появится при подтверждении оплаты клиентом.
func (s *OrderService) HandlePaymentEvent(ctx context.Context, ev *payment.WebhookEvent) error {
	var status model.PaymentStatus
	switch ev.Type {
	case payment.EventPaymentSucceeded:
		status = model.PaymentStatusPaid
	case payment.EventPaymentFailed:
		status = model.PaymentStatusFailed
	default:
		s.logger.Debug("payment event ignored", zap.String("event", ev.ID), zap.String("type", ev.Type))
		return nil
	}

	o, changed, err := s.orders.UpdatePaymentStatus(ctx, ev.PaymentIntentID, status, s.now())
	if errors.Is(err, repository.ErrOrderNotFound) {
		s.logger.Info("payment event without order",
			zap.String("event", ev.ID), zap.String("type", ev.Type), zap.String("payment_intent", ev.PaymentIntentID))
		return nil
	}
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	s.logger.Info("order payment status updated",
		zap.String("order", o.Number), zap.String("status", string(o.PaymentStatus)))

	if status == model.PaymentStatusFailed {
		link := "/orders/" + o.Number
		msg := fmt.Sprintf("Le paiement de votre commande #%s a échoué.", o.Number)
		if ev.FailureMessage != "" {
			msg += " " + ev.FailureMessage
		}
		s.notifier.NotifyUser(ctx, o.ClientID, model.NotificationOrder, "❌ Paiement échoué", msg, &link)
	}
	return nil
}
