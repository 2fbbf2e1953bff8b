package integration

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bhojanhub/qr-ordering/internal/order/application"
	"github.com/bhojanhub/qr-ordering/internal/order/domain"
	"github.com/bhojanhub/qr-ordering/internal/order/infrastructure/postgres"
)

func TestOrderFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()
	env, err := Setup(ctx)
	if err != nil {
		t.Fatalf("setup containers: %v", err)
	}
	defer env.Teardown(ctx)

	pool, err := pgxpool.New(ctx, env.PGURL)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer pool.Close()

	schema, err := os.ReadFile("../../internal/order/infrastructure/postgres/schema.sql")
	if err != nil {
		t.Fatalf("read schema: %v", err)
	}
	if _, err := pool.Exec(ctx, string(schema)); err != nil {
		t.Fatalf("apply schema: %v", err)
	}

	var outletID int64
	err = pool.QueryRow(ctx,
		`INSERT INTO outlets (slug, name) VALUES ('kfc', 'KFC Downtown') RETURNING id`,
	).Scan(&outletID)
	if err != nil {
		t.Fatalf("seed outlet: %v", err)
	}
	_, err = pool.Exec(ctx, `
		INSERT INTO subscriptions (outlet_id, status, plan, renewal_date)
		VALUES ($1, 'active', 'pro', now() + interval '30 days')
	`, outletID)
	if err != nil {
		t.Fatalf("seed subscription: %v", err)
	}

	repo := postgres.NewRepository(slog.Default(), pool)

	key := application.SessionLookup{
		OutletSlug:   "kfc",
		CustomerName: "Amit",
		TableNumber:  "4",
	}
	sessionID, err := repo.ResolveSession(ctx, key, uuid.NewString())
	if err != nil {
		t.Fatalf("resolve session: %v", err)
	}

	// Concurrent inserts must still get unique per-outlet numbers.
	const n = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		numbers = make(map[int]int64)
		errs    []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o, err := repo.InsertWithOutbox(ctx, domain.Order{
				OutletID:     outletID,
				OutletSlug:   "kfc",
				SessionID:    sessionID,
				CustomerName: "Amit",
				TableNumber:  "4",
				Cart:         []domain.CartItem{{ID: 1, Name: "Burger", Price: 100, Quantity: 1}},
				TotalAmount:  100,
				Status:       domain.StatusPending,
			}, "")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			numbers[o.OutletOrderNumber] = o.ID
		}()
	}
	wg.Wait()
	if len(errs) > 0 {
		t.Fatalf("insert errors: %v", errs)
	}
	if len(numbers) != n {
		t.Fatalf("got %d distinct order numbers for %d orders", len(numbers), n)
	}

	// A second resolve for the same customer joins the live session.
	joined, err := repo.ResolveSession(ctx, key, uuid.NewString())
	if err != nil {
		t.Fatalf("resolve again: %v", err)
	}
	if joined != sessionID {
		t.Errorf("session not reused: %q vs %q", joined, sessionID)
	}

	orders, err := repo.PendingOrders(ctx, application.ListFilter{OutletSlug: "kfc"})
	if err != nil {
		t.Fatalf("pending orders: %v", err)
	}
	if len(orders) != n {
		t.Errorf("pending orders = %d, want %d", len(orders), n)
	}

	var outboxPending int
	if err := pool.QueryRow(ctx,
		`SELECT count(*) FROM outbox WHERE status = 'pending' AND type = $1`,
		domain.EventNewOrder,
	).Scan(&outboxPending); err != nil {
		t.Fatalf("count outbox: %v", err)
	}
	if outboxPending != n {
		t.Errorf("pending outbox events = %d, want %d", outboxPending, n)
	}

	// Status update enqueues its event in the same transaction.
	updated, err := repo.UpdateStatusWithOutbox(ctx, orders[0].ID, domain.StatusCompleted, "")
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if updated.Status != domain.StatusCompleted {
		t.Errorf("status = %q, want completed", updated.Status)
	}

	closed, err := repo.CloseSession(ctx, sessionID)
	if err != nil {
		t.Fatalf("close session: %v", err)
	}
	if closed != n-1 {
		t.Errorf("closed = %d, want %d", closed, n-1)
	}

	// An order whose session window lapsed drops out of the customer
	// view but stays visible to admins.
	_, err = pool.Exec(ctx, `
		INSERT INTO orders (outlet_id, outlet_slug, session_id, customer_name, table_number,
			is_package, cart, total_amount, status, notes, outlet_order_number,
			created_at, session_expires_at)
		VALUES ($1, 'kfc', $2, 'Riya', '7', false,
			'[{"id":2,"name":"Momos","price":80,"quantity":1}]', 80, 'pending', '', 99,
			now() - interval '4 hours', now() - interval '1 hour')
	`, outletID, uuid.NewString())
	if err != nil {
		t.Fatalf("seed expired order: %v", err)
	}

	customerView, err := repo.PendingOrders(ctx, application.ListFilter{OutletSlug: "kfc"})
	if err != nil {
		t.Fatalf("customer view: %v", err)
	}
	for _, o := range customerView {
		if o.CustomerName == "Riya" {
			t.Errorf("expired order visible in the customer view")
		}
	}

	adminView, err := repo.PendingOrders(ctx, application.ListFilter{Admin: true})
	if err != nil {
		t.Fatalf("admin view: %v", err)
	}
	var found bool
	for _, o := range adminView {
		if o.CustomerName == "Riya" {
			found = true
		}
	}
	if !found {
		t.Errorf("expired order missing from the admin view")
	}
}
