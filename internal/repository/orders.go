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

const orderColumns = `id, numero, client_id, produits, montant_total, taxes, frais_livraison, adresse_livraison,
	statut, statut_paiement, methode_paiement, stripe_payment_id, date_paiement, notes, created_at, updated_at`

func scanOrder(row pgx.Row) (*model.Order, error) {
	var (
		o                    model.Order
		totalM, taxesM, feeM int64
		paymentID            *string
	)

	err := row.Scan(
		&o.ID, &o.Number, &o.ClientID, &o.Items, &totalM, &taxesM, &feeM, &o.Address,
		&o.Status, &o.PaymentStatus, &o.PaymentMethod, &paymentID, &o.PaidAt, &o.Notes, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	o.Total = fromMillimes(totalM)
	o.Taxes = fromMillimes(taxesM)
	o.DeliveryFee = fromMillimes(feeM)
	if paymentID != nil {
		o.PaymentIntentID = *paymentID
	}
	if o.Items == nil {
		o.Items = []model.OrderItem{}
	}

	return &o, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// CreateOrder сохраняет заказ.
// При конфликте номера возвращает ErrOrderNumberTaken, при повторном использовании платежа ErrPaymentAlreadyUsed.
func (r *PostgresRepository) CreateOrder(ctx context.Context, o *model.Order) error {
	items := o.Items
	if items == nil {
		items = []model.OrderItem{}
	}

	err := r.pool.QueryRow(ctx,
		`INSERT INTO orders (id, numero, client_id, produits, montant_total, taxes, frais_livraison, adresse_livraison,
			statut, statut_paiement, methode_paiement, stripe_payment_id, date_paiement, notes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 RETURNING created_at, updated_at`,
		o.ID, o.Number, o.ClientID, items, toMillimes(o.Total), toMillimes(o.Taxes), toMillimes(o.DeliveryFee), o.Address,
		string(o.Status), string(o.PaymentStatus), o.PaymentMethod, nullableString(o.PaymentIntentID), o.PaidAt, o.Notes,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok {
			if constraint == "orders_stripe_payment_id_key" {
				return ErrPaymentAlreadyUsed
			}
			return fmt.Errorf("%w: %s", ErrOrderNumberTaken, o.Number)
		}
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

// GetOrderByNumber возвращает заказ по его номеру.
func (r *PostgresRepository) GetOrderByNumber(ctx context.Context, number string) (*model.Order, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE numero = $1`, number)

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

// GetOrderByPaymentIntent возвращает заказ, созданный по указанному платежу.
func (r *PostgresRepository) GetOrderByPaymentIntent(ctx context.Context, paymentIntentID string) (*model.Order, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE stripe_payment_id = $1`, paymentIntentID)

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order by payment: %w", err)
	}
	return o, nil
}

func (r *PostgresRepository) queryOrders(ctx context.Context, query string, args ...any) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var res []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		res = append(res, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// ListOrders возвращает все заказы, новые первыми.
func (r *PostgresRepository) ListOrders(ctx context.Context) ([]model.Order, error) {
	return r.queryOrders(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC`)
}

// ListOrdersByClient возвращает заказы клиента, новые первыми.
func (r *PostgresRepository) ListOrdersByClient(ctx context.Context, clientID uuid.UUID) ([]model.Order, error) {
	return r.queryOrders(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE client_id = $1 ORDER BY created_at DESC`,
		clientID,
	)
}

// ListPaidOrdersByClient возвращает заказы клиента, привязанные к платежу.
func (r *PostgresRepository) ListPaidOrdersByClient(ctx context.Context, clientID uuid.UUID) ([]model.Order, error) {
	return r.queryOrders(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE client_id = $1 AND stripe_payment_id IS NOT NULL
		 ORDER BY created_at DESC`,
		clientID,
	)
}

// ListOrdersBySupplier возвращает заказы, в которых есть позиция поставщика supplierID.
func (r *PostgresRepository) ListOrdersBySupplier(ctx context.Context, supplierID uuid.UUID) ([]model.Order, error) {
	return r.queryOrders(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE produits @> jsonb_build_array(jsonb_build_object('fournisseur', $1::text))
		 ORDER BY created_at DESC`,
		supplierID.String(),
	)
}

// UpdatePaymentStatus меняет статус оплаты заказа, привязанного к платежу.
// Оплаченный заказ и заказ с тем же статусом не меняются; changed равен false, если обновления не было.
func (r *PostgresRepository) UpdatePaymentStatus(
	ctx context.Context, paymentIntentID string, status model.PaymentStatus, at time.Time,
) (*model.Order, bool, error) {
	var paidAt *time.Time
	if status == model.PaymentStatusPaid {
		paidAt = &at
	}

	o, err := scanOrder(r.pool.QueryRow(ctx,
		`UPDATE orders
		 SET statut_paiement = $2, date_paiement = COALESCE(date_paiement, $3), updated_at = now()
		 WHERE stripe_payment_id = $1 AND statut_paiement NOT IN ($2, $4)
		 RETURNING `+orderColumns,
		paymentIntentID, string(status), paidAt, string(model.PaymentStatusPaid),
	))
	if err == nil {
		return o, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("update payment status: %w", err)
	}

	o, err = r.GetOrderByPaymentIntent(ctx, paymentIntentID)
	if err != nil {
		return nil, false, err
	}
	return o, false, nil
}

// UpdateOrderStatus сохраняет новый статус заказа и возвращает обновлённый заказ вместе с прежним статусом.
func (r *PostgresRepository) UpdateOrderStatus(ctx context.Context, number string, status model.OrderStatus) (*model.Order, model.OrderStatus, error) {
	var (
		o    *model.Order
		prev model.OrderStatus
	)

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		if err := tx.QueryRow(ctx,
			`SELECT statut FROM orders WHERE numero = $1 FOR UPDATE`, number,
		).Scan(&prev); err != nil {
			return err
		}

		o, err = scanOrder(tx.QueryRow(ctx,
			`UPDATE orders SET statut = $2, updated_at = now() WHERE numero = $1 RETURNING `+orderColumns,
			number, string(status),
		))
		if err != nil {
			return err
		}

		return tx.Commit(ctx)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", ErrOrderNotFound
		}
		return nil, "", fmt.Errorf("update order status: %w", err)
	}

	return o, prev, nil
}

// CreateOrderLines сохраняет строки заказа одним батчем.
func (r *PostgresRepository) CreateOrderLines(ctx context.Context, lines []model.OrderLine) error {
	if len(lines) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i := range lines {
		l := &lines[i]
		batch.Queue(
			`INSERT INTO order_lines (id, order_id, produit, quantite, prix_unitaire, sous_total)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING created_at`,
			l.ID, l.OrderID, l.ProductID, l.Quantity, toMillimes(l.UnitPrice), toMillimes(l.Subtotal),
		).QueryRow(func(row pgx.Row) error {
			return row.Scan(&l.CreatedAt)
		})
	}

	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert order lines: %w", err)
	}
	return nil
}

// ListOrderLines возвращает строки заказа.
func (r *PostgresRepository) ListOrderLines(ctx context.Context, orderID uuid.UUID) ([]model.OrderLine, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, order_id, produit, quantite, prix_unitaire, sous_total, created_at
		 FROM order_lines
		 WHERE order_id = $1
		 ORDER BY created_at`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("select order lines: %w", err)
	}
	defer rows.Close()

	var res []model.OrderLine
	for rows.Next() {
		var (
			l            model.OrderLine
			priceM, subM int64
			createdAt    time.Time
		)
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.Quantity, &priceM, &subM, &createdAt); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		l.UnitPrice = fromMillimes(priceM)
		l.Subtotal = fromMillimes(subM)
		l.CreatedAt = createdAt
		res = append(res, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}
