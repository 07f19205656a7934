package orders

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"

	"github.com/AkasshP/Deliops-Backend/internal/catalog"
)

// Credentials holds Postgres connection settings.
type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

// Open connects to Postgres and verifies the connection.
func Open(cred *Credentials) (*sql.DB, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	return db, nil
}

// RunMigrations applies the orders/items schema migrations.
func RunMigrations(db *sql.DB, migrationsDir string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{
		MigrationsTable: "orders_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationsDir),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}
	return nil
}

// Store is the Postgres-backed Ledger.
type Store struct {
	db *sql.DB
}

// NewStore wraps an existing connection pool.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const orderColumns = `id, status, customer_name, customer_email, lines,
	subtotal, tax, total, currency, payment_provider, payment_intent_id,
	failure_reason, created_at, updated_at`

func (s *Store) InsertDraft(ctx context.Context, o *Order) error {
	linesJSON, err := json.Marshal(o.Lines)
	if err != nil {
		return fmt.Errorf("marshal order lines: %w", err)
	}

	query := `INSERT INTO orders (id, status, customer_name, customer_email, lines,
	                              subtotal, tax, total, currency, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)`
	_, err = s.db.ExecContext(ctx, query,
		o.ID,
		StatusDraft,
		nullStr(o.CustomerName),
		nullStr(o.CustomerEmail),
		linesJSON,
		o.Amounts.Subtotal,
		o.Amounts.Tax,
		o.Amounts.Total,
		o.Amounts.Currency,
		o.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert draft order: %w", err)
	}
	return nil
}

func (s *Store) AttachIntent(ctx context.Context, orderID, provider, intentID string, at time.Time) error {
	query := `UPDATE orders
	          SET payment_provider = $2, payment_intent_id = $3,
	              status = $4, updated_at = $5
	          WHERE id = $1`
	_, err := s.db.ExecContext(ctx, query, orderID, provider, intentID, StatusPendingPayment, at)
	if err != nil {
		return fmt.Errorf("attach payment intent: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, orderID string) (*Order, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID)
	return scanOrder(row)
}

func (s *Store) List(ctx context.Context, limit int) ([]*Order, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var out []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return out, nil
}

func (s *Store) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &pgTx{tx: tx}, nil
}

// pgTx implements Tx over a single database/sql transaction. Row locks are
// taken with SELECT ... FOR UPDATE and held until Commit or Rollback.
type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) OrderForUpdate(ctx context.Context, orderID string) (*Order, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, orderID)
	return scanOrder(row)
}

func (t *pgTx) ItemForUpdate(ctx context.Context, itemID string) (*catalog.Item, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT id, name, unit_price, active, remaining_qty, updated_at
		 FROM items WHERE id = $1 FOR UPDATE`, itemID)

	var it catalog.Item
	err := row.Scan(&it.ID, &it.Name, &it.UnitPrice, &it.Active, &it.RemainingQty, &it.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lock item row: %w", err)
	}
	return &it, nil
}

func (t *pgTx) DecrementItemQty(ctx context.Context, itemID string, qty int, at time.Time) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE items SET remaining_qty = remaining_qty - $2, updated_at = $3 WHERE id = $1`,
		itemID, qty, at)
	if err != nil {
		return fmt.Errorf("decrement item qty: %w", err)
	}
	return nil
}

func (t *pgTx) SetOrderStatus(ctx context.Context, orderID, status, failureReason string, at time.Time) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE orders SET status = $2, failure_reason = $3, updated_at = $4 WHERE id = $1`,
		orderID, status, nullStr(failureReason), at)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	return nil
}

func (t *pgTx) Commit() error   { return t.tx.Commit() }
func (t *pgTx) Rollback() error { return t.tx.Rollback() }

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*Order, error) {
	var (
		o             Order
		customerName  sql.NullString
		customerEmail sql.NullString
		linesJSON     []byte
		provider      sql.NullString
		intentID      sql.NullString
		failureReason sql.NullString
	)
	err := row.Scan(
		&o.ID, &o.Status, &customerName, &customerEmail, &linesJSON,
		&o.Amounts.Subtotal, &o.Amounts.Tax, &o.Amounts.Total, &o.Amounts.Currency,
		&provider, &intentID, &failureReason, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan order: %w", err)
	}

	if err := json.Unmarshal(linesJSON, &o.Lines); err != nil {
		return nil, fmt.Errorf("unmarshal order lines: %w", err)
	}
	o.CustomerName = customerName.String
	o.CustomerEmail = customerEmail.String
	o.PaymentProvider = provider.String
	o.PaymentIntentID = intentID.String
	o.FailureReason = failureReason.String
	return &o, nil
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
