// README: Fee schedule store backed by PostgreSQL.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) GetSchedule(ctx context.Context, currency string) (FeeSchedule, error) {
	var fs FeeSchedule
	err := s.db.QueryRow(ctx, `
		SELECT currency, fee_bps, updated_at
		FROM fee_schedules
		WHERE currency = $1`, currency,
	).Scan(&fs.Currency, &fs.FeeBps, &fs.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return FeeSchedule{}, ErrNoSchedule
	}
	return fs, err
}

// SetSchedule upserts a fee. Jobs already authorized keep the fee they were
// quoted.
func (s *Store) SetSchedule(ctx context.Context, currency string, bps int) error {
	if bps < 0 || bps > MaxBps {
		return fmt.Errorf("%w: %d", ErrInvalidBps, bps)
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO fee_schedules (currency, fee_bps, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (currency) DO UPDATE
		SET fee_bps = EXCLUDED.fee_bps, updated_at = EXCLUDED.updated_at`,
		strings.ToUpper(currency), bps,
	)
	return err
}

// MemStore is an in-process fee table.
type MemStore struct {
	mu        sync.RWMutex
	schedules map[string]FeeSchedule
}

func NewMemStore() *MemStore {
	return &MemStore{schedules: make(map[string]FeeSchedule)}
}

func (s *MemStore) GetSchedule(_ context.Context, currency string) (FeeSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fs, ok := s.schedules[currency]
	if !ok {
		return FeeSchedule{}, ErrNoSchedule
	}
	return fs, nil
}

func (s *MemStore) SetSchedule(_ context.Context, currency string, bps int) error {
	if bps < 0 || bps > MaxBps {
		return fmt.Errorf("%w: %d", ErrInvalidBps, bps)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := strings.ToUpper(currency)
	s.schedules[cur] = FeeSchedule{Currency: cur, FeeBps: bps, UpdatedAt: time.Now().UTC()}
	return nil
}
