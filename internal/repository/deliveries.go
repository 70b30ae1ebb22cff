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

const deliveryColumns = `id, order_id, client_id, adresse, date_expedition, date_livraison_prevue,
	date_livraison_effective, statut, notes_livreur, transporteur, created_at, updated_at`

func scanDelivery(row pgx.Row) (*model.Delivery, error) {
	var d model.Delivery
	err := row.Scan(
		&d.ID, &d.OrderID, &d.ClientID, &d.Address, &d.ShippedAt, &d.ExpectedAt,
		&d.DeliveredAt, &d.Status, &d.CourierNotes, &d.Carrier, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// EnsureDelivery создаёт доставку для заказа, если её ещё нет, и возвращает доставку заказа.
// created равен true, только если запись была вставлена этим вызовом.
// Уникальный ключ по order_id гарантирует не более одной доставки на заказ при конкурентных вызовах.
func (r *PostgresRepository) EnsureDelivery(ctx context.Context, d *model.Delivery) (*model.Delivery, bool, error) {
	if d.Carrier == "" {
		d.Carrier = model.DefaultCarrier
	}

	var (
		res     *model.Delivery
		created bool
	)

	err := r.withRetry(ctx, func() error {
		var err error
		res, err = scanDelivery(r.pool.QueryRow(ctx,
			`INSERT INTO deliveries (id, order_id, client_id, adresse, date_expedition, date_livraison_prevue,
				date_livraison_effective, statut, notes_livreur, transporteur)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 ON CONFLICT (order_id) DO NOTHING
			 RETURNING `+deliveryColumns,
			d.ID, d.OrderID, d.ClientID, d.Address, d.ShippedAt, d.ExpectedAt,
			d.DeliveredAt, string(d.Status), d.CourierNotes, d.Carrier,
		))
		if err == nil {
			created = true
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}

		// Доставка уже существует.
		created = false
		res, err = scanDelivery(r.pool.QueryRow(ctx,
			`SELECT `+deliveryColumns+` FROM deliveries WHERE order_id = $1`, d.OrderID,
		))
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("ensure delivery: %w", err)
	}

	return res, created, nil
}

// UpdateDeliveryStatus меняет статус доставки заказа и возвращает обновлённую доставку и прежний статус.
// Дата фактической доставки проставляется один раз при переходе в «Livrée» и больше не меняется.
func (r *PostgresRepository) UpdateDeliveryStatus(
	ctx context.Context, orderID uuid.UUID, status model.DeliveryStatus, at time.Time,
) (*model.Delivery, model.DeliveryStatus, error) {
	var (
		d    *model.Delivery
		prev model.DeliveryStatus
	)

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		if err := tx.QueryRow(ctx,
			`SELECT statut FROM deliveries WHERE order_id = $1 FOR UPDATE`, orderID,
		).Scan(&prev); err != nil {
			return err
		}

		d, err = scanDelivery(tx.QueryRow(ctx,
			`UPDATE deliveries
			 SET statut = $2,
			     date_livraison_effective = CASE
			         WHEN $2 = 'Livrée' AND date_livraison_effective IS NULL THEN $3::timestamptz
			         ELSE date_livraison_effective
			     END,
			     updated_at = now()
			 WHERE order_id = $1
			 RETURNING `+deliveryColumns,
			orderID, string(status), at,
		))
		if err != nil {
			return err
		}

		return tx.Commit(ctx)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", ErrDeliveryNotFound
		}
		return nil, "", fmt.Errorf("update delivery status: %w", err)
	}

	return d, prev, nil
}

// GetDeliveryByID возвращает доставку по идентификатору.
func (r *PostgresRepository) GetDeliveryByID(ctx context.Context, id uuid.UUID) (*model.Delivery, error) {
	d, err := scanDelivery(r.pool.QueryRow(ctx,
		`SELECT `+deliveryColumns+` FROM deliveries WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDeliveryNotFound
		}
		return nil, fmt.Errorf("get delivery: %w", err)
	}
	return d, nil
}

// GetDeliveryByOrderID возвращает доставку заказа.
func (r *PostgresRepository) GetDeliveryByOrderID(ctx context.Context, orderID uuid.UUID) (*model.Delivery, error) {
	d, err := scanDelivery(r.pool.QueryRow(ctx,
		`SELECT `+deliveryColumns+` FROM deliveries WHERE order_id = $1`, orderID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDeliveryNotFound
		}
		return nil, fmt.Errorf("get delivery by order: %w", err)
	}
	return d, nil
}

// ListDeliveries возвращает все доставки, новые первыми.
func (r *PostgresRepository) ListDeliveries(ctx context.Context) ([]model.Delivery, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+deliveryColumns+` FROM deliveries ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("select deliveries: %w", err)
	}
	defer rows.Close()

	var res []model.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		res = append(res, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// UpdateDeliveryNotes сохраняет заметки курьера.
func (r *PostgresRepository) UpdateDeliveryNotes(ctx context.Context, id uuid.UUID, notes string) (*model.Delivery, error) {
	d, err := scanDelivery(r.pool.QueryRow(ctx,
		`UPDATE deliveries SET notes_livreur = $2, updated_at = now()
		 WHERE id = $1
		 RETURNING `+deliveryColumns,
		id, notes,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDeliveryNotFound
		}
		return nil, fmt.Errorf("update delivery notes: %w", err)
	}
	return d, nil
}
