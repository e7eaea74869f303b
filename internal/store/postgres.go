package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atmx/liquidity-ledger/internal/model"
)

// Schema creates the tables used by PostgresStore. Quantities are stored as
// NUMERIC(78,0), wide enough for any 256-bit unsigned value.
const Schema = `
CREATE TABLE IF NOT EXISTS positions (
	id              TEXT PRIMARY KEY,
	pool_id         TEXT NOT NULL,
	range_lower     INTEGER NOT NULL,
	range_upper     INTEGER NOT NULL,
	total_liquidity NUMERIC(78,0) NOT NULL,
	total_shares    NUMERIC(78,0) NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS position_shares (
	position_id TEXT NOT NULL REFERENCES positions(id),
	actor       TEXT NOT NULL,
	shares      NUMERIC(78,0) NOT NULL,
	PRIMARY KEY (position_id, actor)
);`

// PostgresStore implements Store using PostgreSQL as the source of truth.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate applies Schema. Safe to call on every start.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, Schema)
	return err
}

func (s *PostgresStore) GetPosition(ctx context.Context, id model.PositionID) (*model.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, pool_id, range_lower, range_upper,
		        total_liquidity::TEXT, total_shares::TEXT, updated_at
		 FROM positions WHERE id = $1`, id.Hex())

	p, err := scanPosition(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get position %s: %w", id.Hex(), err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT actor, shares::TEXT FROM position_shares WHERE position_id = $1`, id.Hex())
	if err != nil {
		return nil, fmt.Errorf("get shares %s: %w", id.Hex(), err)
	}
	defer rows.Close()

	for rows.Next() {
		var actor, sharesS string
		if err := rows.Scan(&actor, &sharesS); err != nil {
			return nil, err
		}
		shares, err := decodeQuantity(sharesS, "shares for "+actor)
		if err != nil {
			return nil, err
		}
		p.SetShares(common.HexToAddress(actor), shares)
	}
	return p, rows.Err()
}

func (s *PostgresStore) GetActorShares(ctx context.Context, id model.PositionID, actor common.Address) (*uint256.Int, error) {
	var sharesS string
	err := s.pool.QueryRow(ctx,
		`SELECT shares::TEXT FROM position_shares WHERE position_id = $1 AND actor = $2`,
		id.Hex(), actor.Hex()).Scan(&sharesS)
	if errors.Is(err, pgx.ErrNoRows) {
		return new(uint256.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get actor shares %s/%s: %w", id.Hex(), actor.Hex(), err)
	}
	return decodeQuantity(sharesS, "actor shares "+id.Hex()+"/"+actor.Hex())
}

func (s *PostgresStore) PutPosition(ctx context.Context, p *model.Position, actor common.Address) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO positions (id, pool_id, range_lower, range_upper, total_liquidity, total_shares, updated_at)
			 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7)
			 ON CONFLICT (id) DO UPDATE
			 SET total_liquidity = EXCLUDED.total_liquidity,
			     total_shares = EXCLUDED.total_shares,
			     updated_at = EXCLUDED.updated_at`,
			p.ID.Hex(), p.Key.PoolID.Hex(), p.Key.Lower, p.Key.Upper,
			p.TotalLiquidity.Dec(), p.TotalShares.Dec(), p.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("upsert position %s: %w", p.ID.Hex(), err)
		}

		shares := p.SharesOf(actor)
		if shares.IsZero() {
			_, err = tx.Exec(ctx,
				`DELETE FROM position_shares WHERE position_id = $1 AND actor = $2`,
				p.ID.Hex(), actor.Hex())
		} else {
			_, err = tx.Exec(ctx,
				`INSERT INTO position_shares (position_id, actor, shares)
				 VALUES ($1, $2, $3::NUMERIC)
				 ON CONFLICT (position_id, actor) DO UPDATE SET shares = EXCLUDED.shares`,
				p.ID.Hex(), actor.Hex(), shares.Dec())
		}
		if err != nil {
			return fmt.Errorf("write shares %s/%s: %w", p.ID.Hex(), actor.Hex(), err)
		}
		return nil
	})
}

func (s *PostgresStore) ListPositions(ctx context.Context) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, pool_id, range_lower, range_upper,
		        total_liquidity::TEXT, total_shares::TEXT, updated_at
		 FROM positions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []model.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, *p)
	}
	return positions, rows.Err()
}

// scanPosition reads one positions row; Shares is left empty.
func scanPosition(row pgx.Row) (*model.Position, error) {
	var (
		id, poolID   string
		lower, upper int32
		liqS, shS    string
		updatedAt    time.Time
	)
	if err := row.Scan(&id, &poolID, &lower, &upper, &liqS, &shS, &updatedAt); err != nil {
		return nil, err
	}

	p := model.NewPosition(common.HexToHash(id), model.PositionKey{
		PoolID: common.HexToHash(poolID),
		Lower:  lower,
		Upper:  upper,
	})
	var err error
	if p.TotalLiquidity, err = decodeQuantity(liqS, "liquidity for "+id); err != nil {
		return nil, err
	}
	if p.TotalShares, err = decodeQuantity(shS, "shares for "+id); err != nil {
		return nil, err
	}
	p.UpdatedAt = updatedAt
	return p, nil
}

// decodeQuantity parses a NUMERIC(78,0) column read back as text.
func decodeQuantity(raw, what string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", what, err)
	}
	return v, nil
}
