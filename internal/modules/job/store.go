// README: Job store backed by PostgreSQL with version compare-and-swap updates.
package job

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"plow/internal/types"
)

const (
	pgUniqueViolation = "23505"
	activeIndexName   = "one_active_job_per_operator"
)

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	db Querier
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// WithTx returns a store bound to tx.
func (s *Store) WithTx(tx pgx.Tx) *Store {
	return &Store{db: tx}
}

const jobColumns = `
	id, client_id, operator_id, services, address, site_lat, site_lng,
	scheduled_at, price_amount, currency, notes, payment_method,
	status, payment_status, version, evidence_ref, cancel_reason,
	created_at, updated_at, completion_time`

func (s *Store) Create(ctx context.Context, j *Job) error {
	lat, lng := sitePtrs(j.Details.Site)
	_, err := s.db.Exec(ctx, `
		INSERT INTO jobs (`+jobColumns+`) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17,
			$18, $19, $20
		)`,
		string(j.ID), string(j.ClientID), idPtr(j.OperatorID), servicesToStrings(j.Details.Services),
		j.Details.Address, lat, lng,
		j.Details.ScheduledAt, j.Details.Price.Amount, j.Details.Price.Currency, j.Details.Notes,
		string(j.PaymentMethod),
		string(j.Status), string(j.PaymentStatus), j.Version, j.EvidenceRef, j.CancelReason,
		j.CreatedAt, j.UpdatedAt, j.CompletionTime,
	)
	return mapWriteErr(err)
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Job, error) {
	row := s.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, string(id))
	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return j, err
}

func (s *Store) Update(ctx context.Context, j *Job, expected int64) (bool, error) {
	lat, lng := sitePtrs(j.Details.Site)
	tag, err := s.db.Exec(ctx, `
		UPDATE jobs
		SET operator_id = $1,
			status = $2,
			payment_status = $3,
			version = version + 1,
			evidence_ref = $4,
			cancel_reason = $5,
			updated_at = $6,
			completion_time = $7,
			site_lat = $8,
			site_lng = $9
		WHERE id = $10 AND version = $11`,
		idPtr(j.OperatorID),
		string(j.Status),
		string(j.PaymentStatus),
		j.EvidenceRef,
		j.CancelReason,
		j.UpdatedAt,
		j.CompletionTime,
		lat, lng,
		string(j.ID),
		expected,
	)
	if err != nil {
		return false, mapWriteErr(err)
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}
	j.Version = expected + 1
	return true, nil
}

func (s *Store) ListByOperator(ctx context.Context, operatorID types.ID, statuses ...Status) ([]*Job, error) {
	if len(statuses) == 0 {
		statuses = []Status{StatusPending, StatusAccepted, StatusEnRoute, StatusInProgress,
			StatusPhotoProof, StatusCompleted, StatusCancelled}
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE operator_id = $1 AND status = ANY($2)
		ORDER BY created_at, id`,
		string(operatorID), statusesToStrings(statuses),
	)
	if err != nil {
		return nil, err
	}
	return collectJobs(rows)
}

func (s *Store) ListByClient(ctx context.Context, clientID types.ID) ([]*Job, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE client_id = $1
		ORDER BY created_at, id`, string(clientID),
	)
	if err != nil {
		return nil, err
	}
	return collectJobs(rows)
}

func (s *Store) AppendEvent(ctx context.Context, e *Event) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO job_events (
			job_id, from_status, to_status, actor_id, note, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)`,
		string(e.JobID),
		string(e.FromStatus),
		string(e.ToStatus),
		idPtr(e.ActorID),
		e.Note,
		e.CreatedAt,
	)
	return err
}

func (s *Store) Events(ctx context.Context, jobID types.ID) ([]*Event, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, job_id, from_status, to_status, actor_id, note, created_at
		FROM job_events
		WHERE job_id = $1
		ORDER BY id`, string(jobID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		var e Event
		var actorID *string
		if err := rows.Scan(&e.ID, &e.JobID, &e.FromStatus, &e.ToStatus, &actorID, &e.Note, &e.CreatedAt); err != nil {
			return nil, err
		}
		if actorID != nil {
			a := types.ID(*actorID)
			e.ActorID = &a
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// LockOperator takes a transaction-scoped advisory lock keyed by operator ID.
// Outside a transaction the lock is released immediately and has no effect.
func (s *Store) LockOperator(ctx context.Context, operatorID types.ID) error {
	_, err := s.db.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, "operator:"+string(operatorID))
	return err
}

func scanJob(row pgx.Row) (*Job, error) {
	var j Job
	var operatorID *string
	var services []string
	var lat, lng *float64

	err := row.Scan(
		&j.ID, &j.ClientID, &operatorID, &services, &j.Details.Address, &lat, &lng,
		&j.Details.ScheduledAt, &j.Details.Price.Amount, &j.Details.Price.Currency, &j.Details.Notes,
		&j.PaymentMethod,
		&j.Status, &j.PaymentStatus, &j.Version, &j.EvidenceRef, &j.CancelReason,
		&j.CreatedAt, &j.UpdatedAt, &j.CompletionTime,
	)
	if err != nil {
		return nil, err
	}
	if operatorID != nil {
		op := types.ID(*operatorID)
		j.OperatorID = &op
	}
	if lat != nil && lng != nil {
		j.Details.Site = &types.Point{Lat: *lat, Lng: *lng}
	}
	for _, sv := range services {
		j.Details.Services = append(j.Details.Services, ServiceType(sv))
	}
	j.CreatedAt = j.CreatedAt.UTC()
	j.UpdatedAt = j.UpdatedAt.UTC()
	return &j, nil
}

func collectJobs(rows pgx.Rows) ([]*Job, error) {
	defer rows.Close()
	var out []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// mapWriteErr turns constraint violations into domain errors.
func mapWriteErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		if pgErr.ConstraintName == activeIndexName {
			return ErrOperatorBusy
		}
		return ErrConflict
	}
	return err
}

func idPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func sitePtrs(p *types.Point) (*float64, *float64) {
	if p == nil {
		return nil, nil
	}
	lat, lng := p.Lat, p.Lng
	return &lat, &lng
}

func servicesToStrings(v []ServiceType) []string {
	out := make([]string, len(v))
	for i, s := range v {
		out[i] = string(s)
	}
	return out
}

func statusesToStrings(v []Status) []string {
	out := make([]string, len(v))
	for i, s := range v {
		out[i] = string(s)
	}
	return out
}
