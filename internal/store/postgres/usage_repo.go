// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cheatgate Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/cheatgate/cheatgate/internal/usage"
)

// consumeSQL inserts the first use or increments while below the limit.
// A conflicting row that is already at the limit is left untouched and no
// row is returned. xmax is zero only for a freshly inserted tuple.
const consumeSQL = `
	INSERT INTO usage_records (member_email, code, used_count)
	VALUES ($1, $2, 1)
	ON CONFLICT (member_email, code) DO UPDATE
	SET used_count = usage_records.used_count + 1,
	    updated_at = now()
	WHERE usage_records.used_count < $3
	RETURNING used_count, (xmax = 0) AS inserted`

// consumeUnboundedSQL increments an existing record. With no positive limit
// a missing record is never created.
const consumeUnboundedSQL = `
	UPDATE usage_records
	SET used_count = used_count + 1,
	    updated_at = now()
	WHERE member_email = $1 AND code = $2
	RETURNING used_count`

const insertLogSQL = `
	INSERT INTO redemption_log (id, member_email, code, used_count, redeemed_at)
	VALUES ($1, $2, $3, $4, $5)`

// UsageRepository implements usage.Store.
type UsageRepository struct {
	pool poolIface
	tx   *Transactor
	now  func() time.Time
}

// NewUsageRepository creates a UsageRepository.
func NewUsageRepository(pool poolIface) *UsageRepository {
	return &UsageRepository{pool: pool, tx: NewTransactor(pool), now: time.Now}
}

// Consume applies one redemption atomically. The counter update and the
// redemption log row commit together.
func (r *UsageRepository) Consume(ctx context.Context, email, code string, limit int) (usage.Consumption, error) {
	var out usage.Consumption

	err := r.tx.InTransaction(ctx, func(ctx context.Context) error {
		q := conn(ctx, r.pool)

		var (
			used     int
			inserted bool
			err      error
		)
		if limit > 0 {
			err = q.QueryRow(ctx, consumeSQL, email, code, limit).Scan(&used, &inserted)
		} else {
			err = q.QueryRow(ctx, consumeUnboundedSQL, email, code).Scan(&used)
		}
		if errors.Is(err, pgx.ErrNoRows) {
			current, cerr := r.currentCount(ctx, q, email, code)
			if cerr != nil {
				return cerr
			}
			out = usage.Consumption{UsedCount: current}
			return nil
		}
		if err != nil {
			return oops.Code("USAGE_CONSUME_FAILED").With("operation", "conditional increment").Wrap(err)
		}

		entry := usage.NewEntry(email, code, used, r.now())
		if _, err := q.Exec(ctx, insertLogSQL,
			entry.ID.String(), entry.Email, entry.Code, entry.UsedCount, entry.RedeemedAt,
		); err != nil {
			return oops.Code("USAGE_LOG_FAILED").With("operation", "insert redemption log").Wrap(err)
		}

		out = usage.Consumption{Granted: true, UsedCount: used, Created: inserted}
		return nil
	})
	if err != nil {
		return usage.Consumption{}, oops.Code("USAGE_CONSUME_FAILED").
			With("email", email).
			With("cheat_code", code).
			With("limit", limit).
			Wrap(markTransient(err))
	}
	return out, nil
}

func (r *UsageRepository) currentCount(ctx context.Context, q querier, email, code string) (int, error) {
	var used int
	err := q.QueryRow(ctx, `
		SELECT used_count FROM usage_records
		WHERE member_email = $1 AND code = $2
	`, email, code).Scan(&used)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, oops.Code("USAGE_QUERY_FAILED").With("operation", "select used count").Wrap(err)
	}
	return used, nil
}

// Get retrieves the usage record for (email, code).
func (r *UsageRepository) Get(ctx context.Context, email, code string) (*usage.Record, error) {
	rec := usage.Record{}
	err := conn(ctx, r.pool).QueryRow(ctx, `
		SELECT member_email, code, used_count, created_at, updated_at
		FROM usage_records
		WHERE member_email = $1 AND code = $2
	`, email, code).Scan(&rec.Email, &rec.Code, &rec.UsedCount, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USAGE_NOT_FOUND").
			With("email", email).
			With("cheat_code", code).
			Wrap(usage.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USAGE_QUERY_FAILED").
			With("operation", "select usage record").
			With("email", email).
			With("cheat_code", code).
			Wrap(markTransient(err))
	}
	return &rec, nil
}
