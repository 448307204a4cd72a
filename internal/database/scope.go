package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/deppfellow/shiftboard/internal/errs"
)

// OrgFunc is a unit of work run against a connection whose tenant marker is
// set. The Querier is only valid until the function returns.
type OrgFunc func(ctx context.Context, q Querier) error

func (db *Database) markerSQL(local bool) string {
	return fmt.Sprintf("SELECT set_config('%s', $1, %t)", db.sessionKey, local)
}

func (db *Database) resetSQL() string {
	return fmt.Sprintf("SELECT set_config('%s', '', false)", db.sessionKey)
}

func (db *Database) acquire(ctx context.Context, orgID string) (Conn, error) {
	if orgID == "" {
		return nil, errs.NewForbiddenError("organization context is required", false)
	}

	pool, err := db.Pool(ctx)
	if err != nil {
		return nil, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	return conn, nil
}

// WithOrgContext leases a connection, sets the tenant marker for the session
// and runs fn on it. The connection is released on every exit path.
//
// The marker is session scoped, so it is cleared again before release.
// Prefer WithOrgTransaction for writes or anything with more than one
// statement.
func (db *Database) WithOrgContext(ctx context.Context, orgID string, fn OrgFunc) (err error) {
	conn, err := db.acquire(ctx, orgID)
	if err != nil {
		return err
	}
	defer conn.Release()

	defer func() {
		if resetErr := db.resetMarker(ctx, conn); resetErr != nil {
			db.log.Error().Err(resetErr).Str("org_id", orgID).Msg("failed to reset tenant marker")
			err = errors.Join(err, resetErr)
		}
	}()

	if _, err := conn.Exec(ctx, db.markerSQL(false), orgID); err != nil {
		return NewQueryError(err)
	}

	return fn(ctx, scopedConn{conn: conn})
}

// WithOrgTransaction runs fn inside BEGIN/COMMIT on a leased connection with
// a transaction-scoped tenant marker. PostgreSQL drops the marker at COMMIT
// or ROLLBACK, so it never outlives the lease.
//
// Any error from fn or from a statement rolls back and is returned after the
// connection is released. A panic in fn rolls back, releases and re-panics.
func (db *Database) WithOrgTransaction(ctx context.Context, orgID string, fn OrgFunc) (err error) {
	conn, err := db.acquire(ctx, orgID)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "BEGIN"); err != nil {
		return NewQueryError(err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}

		p := recover()
		rbErr := db.rollback(ctx, conn)

		if p != nil {
			if rbErr != nil {
				db.log.Error().Err(rbErr).Str("org_id", orgID).Msg("rollback after panic failed")
			}
			panic(p)
		}

		if rbErr != nil {
			db.log.Error().Err(rbErr).Str("org_id", orgID).Msg("rollback failed")
			err = errors.Join(err, rbErr)
		}
	}()

	if _, err := conn.Exec(ctx, db.markerSQL(true), orgID); err != nil {
		return NewQueryError(err)
	}

	if err := fn(ctx, scopedConn{conn: conn}); err != nil {
		db.log.Debug().Err(err).Str("org_id", orgID).Msg("rolling back org transaction")
		return err
	}

	if _, err := conn.Exec(ctx, "COMMIT"); err != nil {
		return NewQueryError(err)
	}
	committed = true

	return nil
}

func (db *Database) rollback(ctx context.Context, conn Conn) error {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	if _, err := conn.Exec(cleanupCtx, "ROLLBACK"); err != nil {
		return fmt.Errorf("rollback: %w", NewQueryError(err))
	}
	return nil
}

func (db *Database) resetMarker(ctx context.Context, conn Conn) error {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	if _, err := conn.Exec(cleanupCtx, db.resetSQL()); err != nil {
		return fmt.Errorf("reset tenant marker: %w", NewQueryError(err))
	}
	return nil
}
