// Package model содержит доменные сущности сервиса LIVRINI.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Role описывает роль пользователя.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleClient      Role = "client"
	RoleFournisseur Role = "fournisseur"
)

// Valid сообщает, входит ли роль в допустимый набор.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleClient, RoleFournisseur:
		return true
	}
	return false
}

// UserStatus описывает административный статус учётной записи.
type UserStatus string

const (
	UserStatusActive   UserStatus = "Active"
	UserStatusInactive UserStatus = "Inactive"
	UserStatusBlocked  UserStatus = "Bloqué"
)

// OTPPurpose определяет назначение одноразового кода.
type OTPPurpose string

const (
	OTPPurposeVerification OTPPurpose = "verification"
	OTPPurposeReset        OTPPurpose = "reset"
)

// OTP - единственный слот одноразового кода пользователя.
// Version увеличивается при каждой перевыдаче и используется для compare-and-clear.
type OTP struct {
	Code      string
	ExpiresAt time.Time
	Purpose   OTPPurpose
	Version   int64
}

// Expired сообщает, истёк ли код к моменту now.
func (o OTP) Expired(now time.Time) bool {
	return now.After(o.ExpiresAt)
}

// User представляет учётную запись платформы.
type User struct {
	ID           uuid.UUID  `json:"id"`
	Nom          string     `json:"nom"`
	Prenom       string     `json:"prenom"`
	Email        string     `json:"email"`
	PasswordHash []byte     `json:"-"`
	Adresse      string     `json:"adresse"`
	Role         Role       `json:"role"`
	Statut       UserStatus `json:"statut"`
	IsVerified   bool       `json:"isVerified"`
	OTP          *OTP       `json:"-"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// DisplayName возвращает имя для приветствий и токенов.
func (u *User) DisplayName() string {
	switch {
	case u.Prenom != "" && u.Nom != "":
		return u.Prenom + " " + u.Nom
	case u.Prenom != "":
		return u.Prenom
	default:
		return u.Nom
	}
}

// PaymentStatus описывает статус оплаты заказа.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "en_attente"
	PaymentStatusPaid     PaymentStatus = "paye"
	PaymentStatusFailed   PaymentStatus = "echoue"
	PaymentStatusRefunded PaymentStatus = "rembourse"
)

// OrderItem - позиция заказа в том виде, в котором её прислал клиент.
// SupplierID указывает поставщика товара, если он известен.
type OrderItem struct {
	ProductID  string     `json:"produit"`
	Quantity   int        `json:"quantite"`
	UnitPrice  float64    `json:"prixUnitaire"`
	SupplierID *uuid.UUID `json:"fournisseur,omitempty"`
}

// Subtotal возвращает стоимость позиции.
func (i OrderItem) Subtotal() float64 {
	return float64(i.Quantity) * i.UnitPrice
}

// Order описывает заказ клиента (Commande).
type Order struct {
	ID              uuid.UUID     `json:"id"`
	Number          string        `json:"numeroCommande"`
	ClientID        uuid.UUID     `json:"client"`
	Items           []OrderItem   `json:"produits"`
	Total           float64       `json:"montantTotal"`
	Taxes           float64       `json:"taxesAppliquees"`
	DeliveryFee     float64       `json:"fraisLivraison"`
	Address         string        `json:"adresseLivraison"`
	Status          OrderStatus   `json:"statutCommande"`
	PaymentStatus   PaymentStatus `json:"statutPaiement"`
	PaymentMethod   string        `json:"methodePaiement"`
	PaymentIntentID string        `json:"stripePaymentId,omitempty"`
	PaidAt          *time.Time    `json:"datePaiement,omitempty"`
	Notes           string        `json:"notes,omitempty"`
	CreatedAt       time.Time     `json:"dateCommande"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

// OrderLine - строка заказа (LigneCommande).
type OrderLine struct {
	ID        uuid.UUID `json:"id"`
	OrderID   uuid.UUID `json:"commande"`
	ProductID string    `json:"produit"`
	Quantity  int       `json:"quantite"`
	UnitPrice float64   `json:"prixUnitaire"`
	Subtotal  float64   `json:"sousTotal"`
	CreatedAt time.Time `json:"createdAt"`
}

// Delivery описывает доставку заказа (Livraison). На один заказ приходится не более одной доставки.
type Delivery struct {
	ID           uuid.UUID      `json:"id"`
	OrderID      uuid.UUID      `json:"commande"`
	ClientID     uuid.UUID      `json:"client"`
	Address      string         `json:"adresse"`
	ShippedAt    time.Time      `json:"dateExpedition"`
	ExpectedAt   time.Time      `json:"dateLivraisonPrevue"`
	DeliveredAt  *time.Time     `json:"dateLivraisonEffective,omitempty"`
	Status       DeliveryStatus `json:"statutLivraison"`
	CourierNotes string         `json:"notesLivreur"`
	Carrier      string         `json:"transporteur"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// DefaultCarrier - перевозчик по умолчанию.
const DefaultCarrier = "LIVRINI Express"

// NotificationType - тег уведомления.
type NotificationType string

const (
	NotificationOrder    NotificationType = "order"
	NotificationDelivery NotificationType = "delivery"
	NotificationStock    NotificationType = "stock"
	NotificationPromo    NotificationType = "promo"
	NotificationInfo     NotificationType = "info"
	NotificationUser     NotificationType = "user"
	NotificationProduct  NotificationType = "product"
)

// Valid сообщает, входит ли тип в допустимый набор.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationOrder, NotificationDelivery, NotificationStock, NotificationPromo,
		NotificationInfo, NotificationUser, NotificationProduct:
		return true
	}
	return false
}

// Notification - уведомление внутри приложения. После создания меняется только флаг Read.
type Notification struct {
	ID        uuid.UUID        `json:"id"`
	UserID    uuid.UUID        `json:"user"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Read      bool             `json:"read"`
	Link      *string          `json:"link"`
	Metadata  map[string]any   `json:"metadata"`
	CreatedAt time.Time        `json:"createdAt"`
}

// StockAlertStatus - состояние алерта о запасе.
type StockAlertStatus string

const (
	StockAlertActive   StockAlertStatus = "Active"
	StockAlertResolved StockAlertStatus = "Résolue"
)

// StockAlert - алерт о низком запасе товара (AlerteStock).
// Товар задаётся непрозрачной ссылкой, как в OrderItem.
type StockAlert struct {
	ID           uuid.UUID        `json:"id"`
	ProductID    string           `json:"idProduit"`
	ProductName  string           `json:"nomProduit,omitempty"`
	SupplierID   *uuid.UUID       `json:"fournisseur,omitempty"`
	Threshold    int              `json:"seuilMinimum"`
	CurrentStock int              `json:"quantiteStock"`
	Status       StockAlertStatus `json:"statutAlerte"`
	AlertedAt    time.Time        `json:"dateAlerte"`
	ResolvedAt   *time.Time       `json:"dateResolution,omitempty"`
	CreatedBy    uuid.UUID        `json:"creePar"`
	ResolvedBy   *uuid.UUID       `json:"resoluPar,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}
