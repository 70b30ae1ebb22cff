package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/livrini/internal/model"
)

const stockAlertColumns = `id, produit, nom_produit, fournisseur_id, seuil_minimum, quantite_stock, statut,
	date_alerte, date_resolution, cree_par, resolu_par, created_at, updated_at`

func scanStockAlert(row pgx.Row) (*model.StockAlert, error) {
	var a model.StockAlert
	err := row.Scan(
		&a.ID, &a.ProductID, &a.ProductName, &a.SupplierID, &a.Threshold, &a.CurrentStock, &a.Status,
		&a.AlertedAt, &a.ResolvedAt, &a.CreatedBy, &a.ResolvedBy, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateStockAlert сохраняет новый алерт о запасе.
func (r *PostgresRepository) CreateStockAlert(ctx context.Context, a *model.StockAlert) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO stock_alerts (id, produit, nom_produit, fournisseur_id, seuil_minimum, quantite_stock,
			statut, date_alerte, cree_par)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at, updated_at`,
		a.ID, a.ProductID, a.ProductName, a.SupplierID, a.Threshold, a.CurrentStock,
		string(a.Status), a.AlertedAt, a.CreatedBy,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create stock alert: %w", err)
	}
	return nil
}

// ListStockAlerts возвращает все алерты, новые первыми.
func (r *PostgresRepository) ListStockAlerts(ctx context.Context) ([]model.StockAlert, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+stockAlertColumns+` FROM stock_alerts ORDER BY date_alerte DESC`)
	if err != nil {
		return nil, fmt.Errorf("select stock alerts: %w", err)
	}
	defer rows.Close()

	var res []model.StockAlert
	for rows.Next() {
		a, err := scanStockAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stock alert: %w", err)
		}
		res = append(res, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// GetStockAlert возвращает алерт по идентификатору.
func (r *PostgresRepository) GetStockAlert(ctx context.Context, id uuid.UUID) (*model.StockAlert, error) {
	a, err := scanStockAlert(r.pool.QueryRow(ctx, `SELECT `+stockAlertColumns+` FROM stock_alerts WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStockAlertNotFound
		}
		return nil, fmt.Errorf("get stock alert: %w", err)
	}
	return a, nil
}

// ResolveStockAlert закрывает активный алерт. Уже закрытый алерт возвращается без изменений,
// resolved в этом случае равен false.
func (r *PostgresRepository) ResolveStockAlert(
	ctx context.Context, id, resolvedBy uuid.UUID, at time.Time,
) (*model.StockAlert, bool, error) {
	a, err := scanStockAlert(r.pool.QueryRow(ctx,
		`UPDATE stock_alerts
		 SET statut = $4, date_resolution = $3, resolu_par = $2, updated_at = now()
		 WHERE id = $1 AND statut = $5
		 RETURNING `+stockAlertColumns,
		id, resolvedBy, at, string(model.StockAlertResolved), string(model.StockAlertActive),
	))
	if err == nil {
		return a, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("resolve stock alert: %w", err)
	}

	a, err = r.GetStockAlert(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return a, false, nil
}

// DeleteStockAlert удаляет алерт.
func (r *PostgresRepository) DeleteStockAlert(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM stock_alerts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete stock alert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStockAlertNotFound
	}
	return nil
}
