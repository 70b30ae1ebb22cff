package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/livrini/internal/model"
	"github.com/mmeshcher/livrini/internal/payment"
	"github.com/mmeshcher/livrini/internal/repository"
	"github.com/mmeshcher/livrini/internal/token"
)

// memStore - хранилище в памяти с семантикой PostgresRepository.
type memStore struct {
	mu sync.Mutex

	users         map[uuid.UUID]*model.User
	orders        map[string]*model.Order
	lines         map[uuid.UUID][]model.OrderLine
	deliveries    map[uuid.UUID]*model.Delivery // по order_id
	notifications []*model.Notification
	alerts        map[uuid.UUID]*model.StockAlert

	createLinesErr    error
	ensureDeliveryErr error
	notificationErr   error
	takenNumbers      map[string]bool
}

func newMemStore() *memStore {
	return &memStore{
		users:        map[uuid.UUID]*model.User{},
		orders:       map[string]*model.Order{},
		lines:        map[uuid.UUID][]model.OrderLine{},
		deliveries:   map[uuid.UUID]*model.Delivery{},
		takenNumbers: map[string]bool{},
		alerts:       map[uuid.UUID]*model.StockAlert{},
	}
}

func cloneUser(u *model.User) *model.User {
	c := *u
	if u.OTP != nil {
		otp := *u.OTP
		c.OTP = &otp
	}
	return &c
}

func (m *memStore) CreateUser(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u.Email = strings.ToLower(u.Email)
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return repository.ErrUserExists
		}
	}
	if u.OTP != nil {
		u.OTP.Version = 1
	}
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	m.users[u.ID] = cloneUser(u)
	return nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Email == strings.ToLower(email) {
			return cloneUser(u), nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (m *memStore) GetUserByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (m *memStore) ListUsers(context.Context) ([]model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res := make([]model.User, 0, len(m.users))
	for _, u := range m.users {
		res = append(res, *cloneUser(u))
	}
	return res, nil
}

func (m *memStore) UpdateUser(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.users[u.ID]
	if !ok {
		return repository.ErrUserNotFound
	}
	stored.Nom, stored.Prenom, stored.Adresse = u.Nom, u.Prenom, u.Adresse
	stored.Role, stored.Statut = u.Role, u.Statut
	return nil
}

func (m *memStore) DeleteUser(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[id]; !ok {
		return repository.ErrUserNotFound
	}
	delete(m.users, id)
	return nil
}

func (m *memStore) UpdatePendingRegistration(_ context.Context, u *model.User, otp model.OTP) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.users[u.ID]
	if !ok || stored.IsVerified {
		return 0, repository.ErrUserNotFound
	}
	version := int64(1)
	if stored.OTP != nil {
		version = stored.OTP.Version + 1
	}
	stored.Nom, stored.Prenom, stored.Adresse, stored.PasswordHash = u.Nom, u.Prenom, u.Adresse, u.PasswordHash
	otp.Version = version
	stored.OTP = &otp
	return version, nil
}

func (m *memStore) SetUserOTP(_ context.Context, userID uuid.UUID, otp model.OTP) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.users[userID]
	if !ok {
		return 0, repository.ErrUserNotFound
	}
	version := int64(1)
	if stored.OTP != nil {
		version = stored.OTP.Version + 1
	}
	otp.Version = version
	stored.OTP = &otp
	return version, nil
}

func (m *memStore) ConsumeVerificationOTP(_ context.Context, userID uuid.UUID, version int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.users[userID]
	if !ok || stored.OTP == nil || stored.OTP.Version != version {
		return false, nil
	}
	stored.IsVerified = true
	stored.OTP = nil
	return true, nil
}

func (m *memStore) ConsumeResetOTP(_ context.Context, userID uuid.UUID, version int64, hash []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.users[userID]
	if !ok || stored.OTP == nil || stored.OTP.Version != version || stored.OTP.Purpose != model.OTPPurposeReset {
		return false, nil
	}
	stored.PasswordHash = hash
	stored.OTP = nil
	return true, nil
}

func (m *memStore) CreateOrder(_ context.Context, o *model.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.orders[o.Number]; ok || m.takenNumbers[o.Number] {
		return repository.ErrOrderNumberTaken
	}
	if o.PaymentIntentID != "" {
		for _, existing := range m.orders {
			if existing.PaymentIntentID == o.PaymentIntentID {
				return repository.ErrPaymentAlreadyUsed
			}
		}
	}
	o.CreatedAt = time.Now()
	o.UpdatedAt = o.CreatedAt
	c := *o
	m.orders[o.Number] = &c
	return nil
}

func (m *memStore) GetOrderByNumber(_ context.Context, number string) (*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[number]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	c := *o
	return &c, nil
}

func (m *memStore) GetOrderByPaymentIntent(_ context.Context, id string) (*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, o := range m.orders {
		if o.PaymentIntentID == id {
			c := *o
			return &c, nil
		}
	}
	return nil, repository.ErrOrderNotFound
}

func (m *memStore) filterOrders(keep func(*model.Order) bool) []model.Order {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res []model.Order
	for _, o := range m.orders {
		if keep(o) {
			res = append(res, *o)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Number < res[j].Number })
	return res
}

func (m *memStore) ListOrders(context.Context) ([]model.Order, error) {
	return m.filterOrders(func(*model.Order) bool { return true }), nil
}

func (m *memStore) ListOrdersByClient(_ context.Context, clientID uuid.UUID) ([]model.Order, error) {
	return m.filterOrders(func(o *model.Order) bool { return o.ClientID == clientID }), nil
}

func (m *memStore) ListPaidOrdersByClient(_ context.Context, clientID uuid.UUID) ([]model.Order, error) {
	return m.filterOrders(func(o *model.Order) bool {
		return o.ClientID == clientID && o.PaymentIntentID != ""
	}), nil
}

func (m *memStore) ListOrdersBySupplier(_ context.Context, supplierID uuid.UUID) ([]model.Order, error) {
	return m.filterOrders(func(o *model.Order) bool {
		for _, it := range o.Items {
			if it.SupplierID != nil && *it.SupplierID == supplierID {
				return true
			}
		}
		return false
	}), nil
}

func (m *memStore) UpdatePaymentStatus(_ context.Context, paymentIntentID string, status model.PaymentStatus, at time.Time) (*model.Order, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, o := range m.orders {
		if o.PaymentIntentID != paymentIntentID {
			continue
		}
		if o.PaymentStatus == model.PaymentStatusPaid || o.PaymentStatus == status {
			c := *o
			return &c, false, nil
		}
		o.PaymentStatus = status
		if status == model.PaymentStatusPaid && o.PaidAt == nil {
			paid := at
			o.PaidAt = &paid
		}
		c := *o
		return &c, true, nil
	}
	return nil, false, repository.ErrOrderNotFound
}

func (m *memStore) UpdateOrderStatus(_ context.Context, number string, status model.OrderStatus) (*model.Order, model.OrderStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[number]
	if !ok {
		return nil, "", repository.ErrOrderNotFound
	}
	prev := o.Status
	o.Status = status
	c := *o
	return &c, prev, nil
}

func (m *memStore) CreateOrderLines(_ context.Context, lines []model.OrderLine) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createLinesErr != nil {
		return m.createLinesErr
	}
	for _, l := range lines {
		m.lines[l.OrderID] = append(m.lines[l.OrderID], l)
	}
	return nil
}

func (m *memStore) ListOrderLines(_ context.Context, orderID uuid.UUID) ([]model.OrderLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]model.OrderLine(nil), m.lines[orderID]...), nil
}

func (m *memStore) EnsureDelivery(_ context.Context, d *model.Delivery) (*model.Delivery, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ensureDeliveryErr != nil {
		return nil, false, m.ensureDeliveryErr
	}
	if existing, ok := m.deliveries[d.OrderID]; ok {
		c := *existing
		return &c, false, nil
	}
	c := *d
	m.deliveries[d.OrderID] = &c
	res := c
	return &res, true, nil
}

func (m *memStore) UpdateDeliveryStatus(_ context.Context, orderID uuid.UUID, status model.DeliveryStatus, at time.Time) (*model.Delivery, model.DeliveryStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.deliveries[orderID]
	if !ok {
		return nil, "", repository.ErrDeliveryNotFound
	}
	prev := d.Status
	d.Status = status
	if status == model.DeliveryStatusDelivered && d.DeliveredAt == nil {
		t := at
		d.DeliveredAt = &t
	}
	c := *d
	return &c, prev, nil
}

func (m *memStore) GetDeliveryByID(_ context.Context, id uuid.UUID) (*model.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, d := range m.deliveries {
		if d.ID == id {
			c := *d
			return &c, nil
		}
	}
	return nil, repository.ErrDeliveryNotFound
}

func (m *memStore) GetDeliveryByOrderID(_ context.Context, orderID uuid.UUID) (*model.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.deliveries[orderID]
	if !ok {
		return nil, repository.ErrDeliveryNotFound
	}
	c := *d
	return &c, nil
}

func (m *memStore) ListDeliveries(context.Context) ([]model.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res := make([]model.Delivery, 0, len(m.deliveries))
	for _, d := range m.deliveries {
		res = append(res, *d)
	}
	return res, nil
}

func (m *memStore) UpdateDeliveryNotes(_ context.Context, id uuid.UUID, notes string) (*model.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, d := range m.deliveries {
		if d.ID == id {
			d.CourierNotes = notes
			c := *d
			return &c, nil
		}
	}
	return nil, repository.ErrDeliveryNotFound
}

func (m *memStore) CreateNotification(_ context.Context, n *model.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.notificationErr != nil {
		return m.notificationErr
	}
	c := *n
	m.notifications = append(m.notifications, &c)
	return nil
}

func (m *memStore) CreateNotifications(_ context.Context, userIDs []uuid.UUID, tmpl model.Notification) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range userIDs {
		c := tmpl
		c.ID = uuid.New()
		c.UserID = id
		m.notifications = append(m.notifications, &c)
	}
	return len(userIDs), nil
}

func (m *memStore) CreateNotificationsForRole(_ context.Context, role model.Role, tmpl model.Notification) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, u := range m.users {
		if u.Role != role {
			continue
		}
		c := tmpl
		c.ID = uuid.New()
		c.UserID = u.ID
		m.notifications = append(m.notifications, &c)
		count++
	}
	return count, nil
}

func (m *memStore) ListNotifications(_ context.Context, userID uuid.UUID, limit int) ([]model.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res []model.Notification
	for i := len(m.notifications) - 1; i >= 0 && len(res) < limit; i-- {
		if m.notifications[i].UserID == userID {
			res = append(res, *m.notifications[i])
		}
	}
	return res, nil
}

func (m *memStore) CountUnreadNotifications(_ context.Context, userID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, n := range m.notifications {
		if n.UserID == userID && !n.Read {
			count++
		}
	}
	return count, nil
}

func (m *memStore) MarkNotificationRead(_ context.Context, id, userID uuid.UUID) (*model.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, n := range m.notifications {
		if n.ID == id && n.UserID == userID {
			n.Read = true
			c := *n
			return &c, nil
		}
	}
	return nil, repository.ErrNotificationNotFound
}

func (m *memStore) MarkAllNotificationsRead(_ context.Context, userID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, n := range m.notifications {
		if n.UserID == userID && !n.Read {
			n.Read = true
			count++
		}
	}
	return count, nil
}

func (m *memStore) DeleteNotification(_ context.Context, id, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, n := range m.notifications {
		if n.ID == id && n.UserID == userID {
			m.notifications = append(m.notifications[:i], m.notifications[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotificationNotFound
}

func (m *memStore) DeleteAllNotifications(_ context.Context, userID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.notifications[:0]
	deleted := 0
	for _, n := range m.notifications {
		if n.UserID == userID {
			deleted++
			continue
		}
		kept = append(kept, n)
	}
	m.notifications = kept
	return deleted, nil
}

func (m *memStore) CreateStockAlert(_ context.Context, a *model.StockAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	c := *a
	m.alerts[a.ID] = &c
	return nil
}

func (m *memStore) ListStockAlerts(context.Context) ([]model.StockAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res []model.StockAlert
	for _, a := range m.alerts {
		res = append(res, *a)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].AlertedAt.After(res[j].AlertedAt) })
	return res, nil
}

func (m *memStore) GetStockAlert(_ context.Context, id uuid.UUID) (*model.StockAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.alerts[id]
	if !ok {
		return nil, repository.ErrStockAlertNotFound
	}
	c := *a
	return &c, nil
}

func (m *memStore) ResolveStockAlert(_ context.Context, id, resolvedBy uuid.UUID, at time.Time) (*model.StockAlert, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.alerts[id]
	if !ok {
		return nil, false, repository.ErrStockAlertNotFound
	}
	if a.Status != model.StockAlertActive {
		c := *a
		return &c, false, nil
	}
	a.Status = model.StockAlertResolved
	resolvedAt := at
	a.ResolvedAt = &resolvedAt
	by := resolvedBy
	a.ResolvedBy = &by
	c := *a
	return &c, true, nil
}

func (m *memStore) DeleteStockAlert(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.alerts[id]; !ok {
		return repository.ErrStockAlertNotFound
	}
	delete(m.alerts, id)
	return nil
}

func (m *memStore) notificationsFor(userID uuid.UUID) []model.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res []model.Notification
	for _, n := range m.notifications {
		if n.UserID == userID {
			res = append(res, *n)
		}
	}
	return res
}

func (m *memStore) deliveryCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.deliveries)
}

// fakeMailer запоминает отправленные коды.
type fakeMailer struct {
	mu       sync.Mutex
	otps     []sentOTP
	welcomes []string
	err      error
}

type sentOTP struct {
	to      string
	code    string
	purpose model.OTPPurpose
}

func (f *fakeMailer) SendOTP(_ context.Context, to, code string, purpose model.OTPPurpose, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return f.err
	}
	f.otps = append(f.otps, sentOTP{to: to, code: code, purpose: purpose})
	return nil
}

func (f *fakeMailer) SendWelcome(_ context.Context, to, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return f.err
	}
	f.welcomes = append(f.welcomes, to)
	return nil
}

func (f *fakeMailer) lastOTP() sentOTP {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.otps[len(f.otps)-1]
}

// plainHasher хранит пароль с префиксом, чтобы тесты не тратили время на bcrypt.
type plainHasher struct{}

func (plainHasher) Hash(password string) ([]byte, error) {
	return []byte("hashed:" + password), nil
}

func (plainHasher) Compare(hash []byte, password string) error {
	if string(hash) != "hashed:"+password {
		return errors.New("mismatch")
	}
	return nil
}

// fakeThrottle при window=true ведёт себя как SET NX: ключ занят до Reset.
type fakeThrottle struct {
	allow  bool
	window bool
	err    error
	keys   []string
	held   map[string]bool
	resets []string
}

func (f *fakeThrottle) Allow(_ context.Context, key string) (bool, error) {
	f.keys = append(f.keys, key)
	if f.err != nil {
		return f.allow, f.err
	}
	if !f.window {
		return f.allow, nil
	}
	if f.held == nil {
		f.held = make(map[string]bool)
	}
	if f.held[key] {
		return false, nil
	}
	f.held[key] = true
	return true, nil
}

func (f *fakeThrottle) Reset(_ context.Context, key string) error {
	f.resets = append(f.resets, key)
	delete(f.held, key)
	return nil
}

type fakeGateway struct {
	intents map[string]*payment.Intent
	getErr  error
	created []map[string]string
}

func (f *fakeGateway) CreateIntent(_ context.Context, amount float64, currency string, metadata map[string]string) (*payment.Intent, error) {
	if amount <= 0 {
		return nil, payment.ErrInvalidAmount
	}
	f.created = append(f.created, metadata)
	return &payment.Intent{ID: "pi_new", ClientSecret: "secret", Status: "requires_payment_method", Currency: currency, Amount: amount, Metadata: metadata}, nil
}

func (f *fakeGateway) GetIntent(_ context.Context, id string) (*payment.Intent, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	intent, ok := f.intents[id]
	if !ok {
		return nil, payment.ErrIntentNotFound
	}
	return intent, nil
}

type authFixture struct {
	store      *memStore
	mailer     *fakeMailer
	throttle   *fakeThrottle
	dispatcher *Dispatcher
	tokens     *token.Issuer
	svc        *AuthService
	now        time.Time
}

func newAuthFixture() *authFixture {
	logger := zap.NewNop()
	store := newMemStore()
	f := &authFixture{
		store:      store,
		mailer:     &fakeMailer{},
		throttle:   &fakeThrottle{allow: true},
		dispatcher: NewDispatcher(logger, time.Second),
		tokens:     token.NewIssuer(token.Config{Secret: "test-secret", TTL: time.Hour}),
		now:        time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	f.svc = NewAuthService(AuthDeps{
		Users:      store,
		Hasher:     plainHasher{},
		Tokens:     f.tokens,
		Mailer:     f.mailer,
		Throttle:   f.throttle,
		Notifier:   NewNotifier(store, logger),
		Dispatcher: f.dispatcher,
	}, AuthConfig{OTPTTL: 10 * time.Minute, OTPLength: 6, MailTimeout: time.Second}, logger)
	f.svc.now = func() time.Time { return f.now }

	return f
}

type orderFixture struct {
	store    *memStore
	gateway  *fakeGateway
	svc      *OrderService
	now      time.Time
	clientID uuid.UUID
}

func newOrderFixture() *orderFixture {
	logger := zap.NewNop()
	store := newMemStore()
	f := &orderFixture{
		store:    store,
		gateway:  &fakeGateway{intents: map[string]*payment.Intent{}},
		now:      time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		clientID: uuid.New(),
	}

	f.svc = NewOrderService(store, f.gateway, NewNotifier(store, logger), OrderConfig{
		DeliveryLeadTime: 72 * time.Hour,
		DeliveryFee:      7,
		Currency:         "tnd",
	}, logger)
	f.svc.now = func() time.Time { return f.now }

	return f
}
