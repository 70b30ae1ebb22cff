package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/livrini/internal/model"
)

// StockAlertService ведёт алерты о низком запасе товаров.
type StockAlertService struct {
	repo     StockAlertRepository
	notifier *Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewStockAlertService создаёт StockAlertService.
func NewStockAlertService(repo StockAlertRepository, notifier *Notifier, logger *zap.Logger) *StockAlertService {
	return &StockAlertService{repo: repo, notifier: notifier, logger: logger, now: time.Now}
}

// CreateStockAlertInput - данные нового алерта.
type CreateStockAlertInput struct {
	ProductID    string
	ProductName  string
	SupplierID   *uuid.UUID
	Threshold    int
	CurrentStock int
	CreatedBy    uuid.UUID
}

// Create заводит активный алерт. Если указан поставщик, он получает уведомление о низком остатке.
func (s *StockAlertService) Create(ctx context.Context, in CreateStockAlertInput) (*model.StockAlert, error) {
	in.ProductID = strings.TrimSpace(in.ProductID)
	in.ProductName = strings.TrimSpace(in.ProductName)
	if in.ProductID == "" {
		return nil, invalid("idProduit est requis")
	}
	if in.Threshold < 0 {
		return nil, invalid("Le seuil minimum ne peut pas être négatif")
	}
	if in.CurrentStock < 0 {
		return nil, invalid("Le stock ne peut pas être négatif")
	}
	if in.SupplierID != nil && *in.SupplierID == uuid.Nil {
		in.SupplierID = nil
	}

	a := &model.StockAlert{
		ID:           uuid.New(),
		ProductID:    in.ProductID,
		ProductName:  in.ProductName,
		SupplierID:   in.SupplierID,
		Threshold:    in.Threshold,
		CurrentStock: in.CurrentStock,
		Status:       model.StockAlertActive,
		AlertedAt:    s.now(),
		CreatedBy:    in.CreatedBy,
	}
	if err := s.repo.CreateStockAlert(ctx, a); err != nil {
		return nil, err
	}

	if a.SupplierID != nil {
		name := a.ProductName
		if name == "" {
			name = a.ProductID
		}
		s.notifier.NotifyLowStock(ctx, *a.SupplierID, name, a.CurrentStock)
	}
	return a, nil
}

// List возвращает все алерты, новые первыми.
func (s *StockAlertService) List(ctx context.Context) ([]model.StockAlert, error) {
	alerts, err := s.repo.ListStockAlerts(ctx)
	if err != nil {
		return nil, err
	}
	if alerts == nil {
		alerts = []model.StockAlert{}
	}
	return alerts, nil
}

// Get возвращает алерт по идентификатору.
func (s *StockAlertService) Get(ctx context.Context, id uuid.UUID) (*model.StockAlert, error) {
	return s.repo.GetStockAlert(ctx, id)
}

// Resolve закрывает алерт от имени resolvedBy. Повторное закрытие сохраняет первую дату и автора.
// Автор алерта получает уведомление, если алерт закрыл другой пользователь.
func (s *StockAlertService) Resolve(ctx context.Context, id, resolvedBy uuid.UUID) (*model.StockAlert, error) {
	a, resolved, err := s.repo.ResolveStockAlert(ctx, id, resolvedBy, s.now())
	if err != nil {
		return nil, err
	}
	if !resolved {
		s.logger.Debug("stock alert already resolved", zap.String("alert", id.String()))
		return a, nil
	}

	if a.CreatedBy != resolvedBy {
		name := a.ProductName
		if name == "" {
			name = a.ProductID
		}
		s.notifier.NotifyUser(ctx, a.CreatedBy, model.NotificationStock,
			"Alerte de stock résolue",
			fmt.Sprintf(`L'alerte de stock du produit "%s" a été résolue.`, name),
			nil,
		)
	}
	return a, nil
}

// Delete удаляет алерт.
func (s *StockAlertService) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeleteStockAlert(ctx, id)
}
