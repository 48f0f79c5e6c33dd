package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"freelancer-dashboard-billing/internal/domain"
	"freelancer-dashboard-billing/internal/domain/model"
	"freelancer-dashboard-billing/internal/domain/ports/repository"
)

// Ensure entitlementRepo implements repository.EntitlementRepository
var _ repository.EntitlementRepository = (*entitlementRepo)(nil)

// entitlementRepo persists SubscriptionRecords in the billing_accounts table,
// one row per user. UpdateIf carries the optimistic-concurrency contract: the
// UPDATE only matches while updated_at equals the caller's expectation.
type entitlementRepo struct {
	pool *pgxpool.Pool
}

func NewEntitlementRepo(pool *pgxpool.Pool) *entitlementRepo {
	return &entitlementRepo{pool: pool}
}

const recordColumns = `
user_id, email, subscription_id, status, will_cancel_at_period_end,
current_period_end, renews_at, plan, last_event_id, created_at, updated_at`

func (r *entitlementRepo) Find(ctx context.Context, userID string) (*model.SubscriptionRecord, error) {
	const q = `SELECT ` + recordColumns + ` FROM billing_accounts WHERE user_id=$1;`
	return r.queryOne(ctx, q, userID)
}

func (r *entitlementRepo) FindByEmail(ctx context.Context, email string) (*model.SubscriptionRecord, error) {
	const q = `SELECT ` + recordColumns + ` FROM billing_accounts WHERE lower(email)=lower($1);`
	return r.queryOne(ctx, q, email)
}

func (r *entitlementRepo) Create(ctx context.Context, rec *model.SubscriptionRecord) error {
	const q = `
INSERT INTO billing_accounts (` + recordColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11);`
	_, err := r.pool.Exec(ctx, q,
		rec.UserID, rec.Email, rec.SubscriptionID, rec.Status, rec.WillCancelAtPeriodEnd,
		rec.CurrentPeriodEnd, rec.RenewsAt, rec.Plan, rec.LastEventID, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAlreadyExists
		}
		return domain.ErrOperationFailed
	}
	return nil
}

// UpdateIf writes the full record state conditioned on the stored updated_at.
// Zero matched rows means either a concurrent writer got there first
// (ErrConflict) or the row is gone (ErrNotFound); the two are told apart with
// a follow-up existence probe so callers can react correctly.
func (r *entitlementRepo) UpdateIf(ctx context.Context, rec *model.SubscriptionRecord, expectedUpdatedAt time.Time) error {
	const q = `
UPDATE billing_accounts SET
  subscription_id=$3, status=$4, will_cancel_at_period_end=$5,
  current_period_end=$6, renews_at=$7, plan=$8, last_event_id=$9, updated_at=$10
WHERE user_id=$1 AND updated_at=$2;`
	tag, err := r.pool.Exec(ctx, q,
		rec.UserID, expectedUpdatedAt,
		rec.SubscriptionID, rec.Status, rec.WillCancelAtPeriodEnd,
		rec.CurrentPeriodEnd, rec.RenewsAt, rec.Plan, rec.LastEventID, rec.UpdatedAt)
	if err != nil {
		return domain.ErrOperationFailed
	}
	if tag.RowsAffected() == 0 {
		var one int
		probe := r.pool.QueryRow(ctx, `SELECT 1 FROM billing_accounts WHERE user_id=$1;`, rec.UserID)
		if err := probe.Scan(&one); err != nil {
			if err == pgx.ErrNoRows {
				return domain.ErrNotFound
			}
			return domain.ErrOperationFailed
		}
		return domain.ErrConflict
	}
	return nil
}

func (r *entitlementRepo) FindDueForExpiry(ctx context.Context, now time.Time, limit int) ([]*model.SubscriptionRecord, error) {
	const q = `
SELECT ` + recordColumns + `
  FROM billing_accounts
 WHERE status='cancelling' AND current_period_end IS NOT NULL AND current_period_end <= $1
 ORDER BY current_period_end ASC
 LIMIT $2;`
	rows, err := r.pool.Query(ctx, q, now, limit)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()
	var out []*model.SubscriptionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *entitlementRepo) CountByStatus(ctx context.Context) (map[model.SubscriptionStatus]int, error) {
	const q = `SELECT status, COUNT(*) FROM billing_accounts GROUP BY status;`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()
	counts := make(map[model.SubscriptionStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		counts[model.SubscriptionStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return counts, nil
}

func (r *entitlementRepo) queryOne(ctx context.Context, sql string, args ...any) (*model.SubscriptionRecord, error) {
	row := r.pool.QueryRow(ctx, sql, args...)
	rec, err := scanRecord(row)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func scanRecord(row pgx.Row) (*model.SubscriptionRecord, error) {
	rec := &model.SubscriptionRecord{}
	var status, plan string
	err := row.Scan(scanDest(rec, &status, &plan)...)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	rec.Status = model.SubscriptionStatus(status)
	rec.Plan = model.Plan(plan)
	return rec, nil
}

func scanDest(rec *model.SubscriptionRecord, status, plan *string) []any {
	return []any{
		&rec.UserID, &rec.Email, &rec.SubscriptionID, status, &rec.WillCancelAtPeriodEnd,
		&rec.CurrentPeriodEnd, &rec.RenewsAt, plan, &rec.LastEventID, &rec.CreatedAt, &rec.UpdatedAt,
	}
}
