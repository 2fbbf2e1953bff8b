package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bhojanhub/qr-ordering/internal/order/application"
	"github.com/bhojanhub/qr-ordering/internal/order/domain"
)

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

const orderColumns = `id, outlet_id, outlet_slug, session_id, customer_name, table_number,
	is_package, cart, total_amount, status, notes, outlet_order_number, created_at`

func scanOrder(row pgx.Row) (domain.Order, error) {
	var (
		o       domain.Order
		rawCart []byte
	)
	err := row.Scan(&o.ID, &o.OutletID, &o.OutletSlug, &o.SessionID, &o.CustomerName,
		&o.TableNumber, &o.IsPackage, &rawCart, &o.TotalAmount, &o.Status, &o.Notes,
		&o.OutletOrderNumber, &o.CreatedAt)
	if err != nil {
		return domain.Order{}, err
	}
	o.Cart = domain.ParseCart(rawCart)
	return o, nil
}

func (r *Repository) PendingOrders(ctx context.Context, f application.ListFilter) ([]domain.Order, error) {
	conds := []string{"status = 'pending'"}
	args := []any{}

	// Expiry is evaluated lazily at read time; the admin view keeps
	// expired sessions visible.
	if !f.Admin {
		conds = append(conds, "session_expires_at > now()")
	}
	if f.OutletSlug != "" && f.OutletSlug != "all" {
		args = append(args, f.OutletSlug)
		conds = append(conds, fmt.Sprintf("outlet_slug = $%d", len(args)))
	}
	if f.Search != "" {
		args = append(args, "%"+strings.ToLower(f.Search)+"%")
		conds = append(conds, fmt.Sprintf("lower(customer_name) LIKE $%d", len(args)))
	}
	if f.Today {
		conds = append(conds, "created_at >= now() - interval '24 hours'")
	}

	sql := fmt.Sprintf(`SELECT %s FROM orders WHERE %s ORDER BY created_at ASC, id ASC`,
		orderColumns, strings.Join(conds, " AND "))

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (r *Repository) ResolveSession(ctx context.Context, key application.SessionLookup, newSessionID string) (string, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var sessionID string
	err = tx.QueryRow(ctx, `
		SELECT session_id FROM sessions
		WHERE outlet_slug = $1 AND customer_name = $2 AND table_number = $3
		  AND created_at > now() - interval '3 hours'
		ORDER BY created_at DESC
		LIMIT 1
	`, key.OutletSlug, key.CustomerName, key.TableNumber).Scan(&sessionID)

	switch {
	case err == nil:
		// Joining a live session extends its window.
		if _, err := tx.Exec(ctx, `UPDATE sessions SET created_at = now() WHERE session_id = $1`, sessionID); err != nil {
			return "", err
		}
	case errors.Is(err, pgx.ErrNoRows):
		sessionID = newSessionID
		_, err = tx.Exec(ctx, `
			INSERT INTO sessions (session_id, outlet_slug, customer_name, table_number, is_package, status, created_at)
			VALUES ($1, $2, $3, $4, $5, 'active', now())
		`, sessionID, key.OutletSlug, key.CustomerName, key.TableNumber, key.IsPackage)
		if err != nil {
			return "", err
		}
	default:
		return "", err
	}

	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return sessionID, nil
}

func (r *Repository) InsertWithOutbox(ctx context.Context, o domain.Order, traceparent string) (domain.Order, error) {
	cartJSON, err := json.Marshal(o.Cart)
	if err != nil {
		return domain.Order{}, err
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Order{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	// Serialize per-outlet numbering. Without the lock two concurrent
	// inserts can read the same max and assign duplicate numbers.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, o.OutletSlug); err != nil {
		return domain.Order{}, err
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO orders (outlet_id, outlet_slug, session_id, customer_name, table_number,
			is_package, cart, total_amount, status, notes, outlet_order_number,
			created_at, session_expires_at)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			COALESCE(MAX(outlet_order_number), 0) + 1,
			now(), now() + interval '3 hours'
		FROM orders WHERE outlet_slug = $2
		RETURNING id, outlet_order_number, created_at
	`, o.OutletID, o.OutletSlug, o.SessionID, o.CustomerName, o.TableNumber,
		o.IsPackage, string(cartJSON), o.TotalAmount, o.Status, o.Notes)

	if err := row.Scan(&o.ID, &o.OutletOrderNumber, &o.CreatedAt); err != nil {
		return domain.Order{}, err
	}

	payload, err := json.Marshal(o)
	if err != nil {
		return domain.Order{}, err
	}
	if err := enqueueOutbox(ctx, tx, o.ID, domain.EventNewOrder, payload, traceparent); err != nil {
		return domain.Order{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

func (r *Repository) UpdateStatusWithOutbox(ctx context.Context, orderID int64, status domain.Status, traceparent string) (domain.Order, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Order{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	row := tx.QueryRow(ctx, fmt.Sprintf(`
		UPDATE orders SET status = $1 WHERE id = $2
		RETURNING %s
	`, orderColumns), status, orderID)

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, application.ErrNotFound
		}
		return domain.Order{}, err
	}

	payload, err := json.Marshal(domain.StatusUpdate{OrderID: o.ID, NewStatus: o.Status})
	if err != nil {
		return domain.Order{}, err
	}
	if err := enqueueOutbox(ctx, tx, o.ID, domain.EventOrderStatusUpdate, payload, traceparent); err != nil {
		return domain.Order{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

func (r *Repository) CloseSession(ctx context.Context, sessionID string) (int64, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `UPDATE sessions SET status = 'expired' WHERE session_id = $1`, sessionID); err != nil {
		return 0, err
	}
	ct, err := tx.Exec(ctx, `UPDATE orders SET status = 'closed' WHERE session_id = $1 AND status = 'pending'`, sessionID)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

func (r *Repository) OutletID(ctx context.Context, slug string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `SELECT id FROM outlets WHERE slug = $1`, slug).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, application.ErrNotFound
	}
	return id, err
}

func (r *Repository) Subscription(ctx context.Context, outletID int64) (application.Subscription, error) {
	var sub application.Subscription
	err := r.pool.QueryRow(ctx,
		`SELECT status, plan, renewal_date FROM subscriptions WHERE outlet_id = $1`,
		outletID).Scan(&sub.Status, &sub.Plan, &sub.RenewalDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return application.Subscription{}, application.ErrNotFound
	}
	return sub, err
}

func enqueueOutbox(ctx context.Context, tx pgx.Tx, orderID int64, eventType string, payload []byte, traceparent string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, traceparent, status)
		VALUES ('order', $1, $2, $3, $4, 'pending')
	`, strconv.FormatInt(orderID, 10), eventType, payload, traceparent)
	return err
}
