package history

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

type ClickHouseConfig struct {
	Addr     string
	Database string
	Username string
	Password string
}

// ClickHouseStore persists fills into a MergeTree table for analytics.
type ClickHouseStore struct {
	conn driver.Conn
}

func NewClickHouseStore(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseStore, error) {
	if cfg.Database == "" {
		cfg.Database = "settlement"
	}
	if cfg.Username == "" {
		cfg.Username = "default"
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &ClickHouseStore{conn: conn}, nil
}

// EnsureSchema creates the fills table if missing.
func (c *ClickHouseStore) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS fills (
			signature     String,
			owner         String,
			order_id      UInt64,
			input_mint    String,
			output_mint   String,
			input_amount  UInt64,
			output_amount UInt64,
			fee_amount    UInt64,
			fee_bps       UInt16,
			user_tier     UInt8,
			order_type    String,
			executed_at   DateTime64(3)
		) ENGINE = MergeTree()
		ORDER BY (executed_at, owner, order_id)
	`
	if err := c.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create fills table: %w", err)
	}
	return nil
}

func (c *ClickHouseStore) InsertFill(ctx context.Context, fill *Fill) error {
	query := `
		INSERT INTO fills (
			signature, owner, order_id, input_mint, output_mint,
			input_amount, output_amount, fee_amount, fee_bps,
			user_tier, order_type, executed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	err := c.conn.Exec(ctx, query,
		fill.Signature,
		fill.Owner,
		fill.OrderID,
		fill.InputMint,
		fill.OutputMint,
		fill.InputAmount,
		fill.OutputAmount,
		fill.FeeAmount,
		fill.FeeBps,
		fill.UserTier,
		fill.OrderType,
		fill.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert fill: %w", err)
	}

	return nil
}

func (c *ClickHouseStore) RecentFills(ctx context.Context, limit int64) ([]*Fill, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT signature, owner, order_id, input_mint, output_mint,
		       input_amount, output_amount, fee_amount, fee_bps,
		       user_tier, order_type, executed_at
		FROM fills
		ORDER BY executed_at DESC
		LIMIT ?
	`

	rows, err := c.conn.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query fills: %w", err)
	}
	defer rows.Close()

	var out []*Fill
	for rows.Next() {
		var f Fill
		if err := rows.Scan(
			&f.Signature, &f.Owner, &f.OrderID, &f.InputMint, &f.OutputMint,
			&f.InputAmount, &f.OutputAmount, &f.FeeAmount, &f.FeeBps,
			&f.UserTier, &f.OrderType, &f.ExecutedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan fill: %w", err)
		}
		out = append(out, &f)
	}

	return out, rows.Err()
}

func (c *ClickHouseStore) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

func (c *ClickHouseStore) Close() error {
	return c.conn.Close()
}
