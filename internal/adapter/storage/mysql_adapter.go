package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rl1809/restaurant/internal/core/domain"
)

var ErrNotArchived = errors.New("order not archived")

const mysqlSchema = `
CREATE TABLE IF NOT EXISTS orders (
	id            VARCHAR(36)    NOT NULL PRIMARY KEY,
	user_id       BIGINT         NOT NULL,
	status        VARCHAR(16)    NOT NULL,
	total         DECIMAL(12,2)  NOT NULL,
	reject_reason VARCHAR(255)   NOT NULL DEFAULT '',
	created_at    DATETIME(6)    NOT NULL,
	updated_at    DATETIME(6)    NOT NULL
);
CREATE TABLE IF NOT EXISTS order_lines (
	order_id VARCHAR(36)  NOT NULL,
	line_no  INT          NOT NULL,
	dish     VARCHAR(128) NOT NULL,
	quantity INT          NOT NULL,
	PRIMARY KEY (order_id, line_no)
);`

// MySQLAdapter archives orders that reached a terminal status.
type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

// Migrate creates the archive tables. The DSN must allow multiStatements.
func (m *MySQLAdapter) Migrate(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, mysqlSchema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) ArchiveOrder(ctx context.Context, order domain.Order) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, status, total, reject_reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE status = VALUES(status), reject_reason = VALUES(reject_reason), updated_at = VALUES(updated_at)`,
		order.ID, order.UserID, order.Status, order.Total.StringFixed(2), order.RejectReason,
		order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM order_lines WHERE order_id = ?`, order.ID); err != nil {
		return fmt.Errorf("clear lines: %w", err)
	}
	for i, l := range order.Lines {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_lines (order_id, line_no, dish, quantity)
			VALUES (?, ?, ?, ?)`,
			order.ID, i, l.Dish, l.Quantity,
		)
		if err != nil {
			return fmt.Errorf("insert line %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// ArchivedOrder reads an archived order back, lines included.
func (m *MySQLAdapter) ArchivedOrder(ctx context.Context, id string) (*domain.Order, error) {
	var (
		o     domain.Order
		total string
	)
	err := m.db.QueryRowContext(ctx, `
		SELECT id, user_id, status, total, reject_reason, created_at, updated_at
		FROM orders WHERE id = ?`, id,
	).Scan(&o.ID, &o.UserID, &o.Status, &total, &o.RejectReason, &o.CreatedAt, &o.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotArchived
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	if o.Total, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT dish, quantity FROM order_lines WHERE order_id = ? ORDER BY line_no`, id)
	if err != nil {
		return nil, fmt.Errorf("query lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l domain.OrderLine
		if err := rows.Scan(&l.Dish, &l.Quantity); err != nil {
			return nil, fmt.Errorf("scan line: %w", err)
		}
		o.Lines = append(o.Lines, l)
	}
	return &o, rows.Err()
}
