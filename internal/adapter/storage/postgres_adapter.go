package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rl1809/restaurant/internal/core/domain"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS orders (
	id            TEXT PRIMARY KEY,
	user_id       BIGINT NOT NULL,
	status        TEXT NOT NULL,
	total         NUMERIC(12,2) NOT NULL,
	reject_reason TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS order_lines (
	order_id TEXT NOT NULL REFERENCES orders(id),
	line_no  INT  NOT NULL,
	dish     TEXT NOT NULL,
	quantity INT  NOT NULL,
	PRIMARY KEY (order_id, line_no)
);
CREATE TABLE IF NOT EXISTS order_status_log (
	order_id   TEXT NOT NULL REFERENCES orders(id),
	seq        INT  NOT NULL,
	old_status TEXT NOT NULL,
	new_status TEXT NOT NULL,
	reason     TEXT NOT NULL DEFAULT '',
	changed_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (order_id, seq)
);`

// PostgresAdapter archives terminal orders together with their status history.
type PostgresAdapter struct {
	pool *pgxpool.Pool
}

func NewPostgresAdapter(pool *pgxpool.Pool) *PostgresAdapter {
	return &PostgresAdapter{pool: pool}
}

func (p *PostgresAdapter) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (p *PostgresAdapter) ArchiveOrder(ctx context.Context, order domain.Order) error {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (id, user_id, status, total, reject_reason, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE SET status=$3, reject_reason=$5, updated_at=$7`,
		order.ID, order.UserID, string(order.Status), order.Total.StringFixed(2), order.RejectReason,
		order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	batch := &pgx.Batch{}
	for i, l := range order.Lines {
		batch.Queue(`INSERT INTO order_lines (order_id, line_no, dish, quantity)
			VALUES ($1,$2,$3,$4)
			ON CONFLICT (order_id, line_no) DO UPDATE SET dish=$3, quantity=$4`,
			order.ID, i, l.Dish, l.Quantity)
	}
	for i, h := range order.History {
		batch.Queue(`INSERT INTO order_status_log (order_id, seq, old_status, new_status, reason, changed_at)
			VALUES ($1,$2,$3,$4,$5,$6)
			ON CONFLICT (order_id, seq) DO NOTHING`,
			order.ID, i, string(h.From), string(h.To), h.Reason, h.At)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert lines and history: %w", err)
	}

	return tx.Commit(ctx)
}

// StatusLog returns the recorded transitions of an archived order in order.
func (p *PostgresAdapter) StatusLog(ctx context.Context, orderID string) ([]domain.StatusChange, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT old_status, new_status, reason, changed_at
		FROM order_status_log WHERE order_id=$1 ORDER BY seq`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query status log: %w", err)
	}
	defer rows.Close()

	var out []domain.StatusChange
	for rows.Next() {
		c := domain.StatusChange{OrderID: orderID}
		var from, to string
		if err := rows.Scan(&from, &to, &c.Reason, &c.At); err != nil {
			return nil, fmt.Errorf("scan status log: %w", err)
		}
		c.From, c.To = domain.OrderStatus(from), domain.OrderStatus(to)
		out = append(out, c)
	}
	return out, rows.Err()
}

// ArchivedStatus returns the archived status of an order.
func (p *PostgresAdapter) ArchivedStatus(ctx context.Context, orderID string) (domain.OrderStatus, error) {
	var s string
	err := p.pool.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1`, orderID).Scan(&s)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotArchived
	}
	if err != nil {
		return "", fmt.Errorf("query order: %w", err)
	}
	return domain.OrderStatus(s), nil
}
