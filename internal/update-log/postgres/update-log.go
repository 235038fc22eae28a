package postgres

import (
	"context"
	"database/sql"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/pkg/errors"

	lr "github.com/authorizer-tech/link-registry/internal"
)

const table = "certificate-updates"

type sqlUpdateLog struct {
	db *sql.DB
}

// NewUpdateLog returns an UpdateLog that is backed by postgres for persistence.
// The schema is provided by the migrations under db/migrations.
func NewUpdateLog(db *sql.DB) (lr.UpdateLog, error) {

	if db == nil {
		return nil, errors.New("a nil database handle must not be provided")
	}

	return &sqlUpdateLog{db}, nil
}

// Append inserts the update. Updates are keyed by their id, so appending the
// same update twice fails.
func (u *sqlUpdateLog) Append(ctx context.Context, update lr.CertificateUpdate) error {

	ins := goqu.Dialect("postgres").Insert(table).Prepared(true).
		Cols("id", "server", "fingerprint", "timestamp").
		Vals(
			goqu.Vals{update.ID.String(), update.Server, update.Fingerprint, update.Timestamp.UTC()},
		)

	stmt, args, err := ins.ToSQL()
	if err != nil {
		return err
	}

	if _, err := u.db.ExecContext(ctx, stmt, args...); err != nil {
		return errors.Wrapf(err, "failed to record certificate update of '%s'", update.Server)
	}

	return nil
}

func (u *sqlUpdateLog) List(ctx context.Context, server string, limit int) ([]lr.CertificateUpdate, error) {

	sqlbuilder := goqu.Dialect("postgres").From(table).Prepared(true).
		Select("id", "server", "fingerprint", "timestamp").
		Where(goqu.Ex{"server": server}).
		Order(goqu.C("timestamp").Desc(), goqu.C("id").Asc())

	if limit >= 0 {
		sqlbuilder = sqlbuilder.Limit(uint(limit))
	}

	stmt, args, err := sqlbuilder.ToSQL()
	if err != nil {
		return nil, err
	}

	rows, err := u.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list certificate updates of '%s'", server)
	}
	defer rows.Close()

	updates := []lr.CertificateUpdate{}
	for rows.Next() {
		var update lr.CertificateUpdate
		if err := rows.Scan(&update.ID, &update.Server, &update.Fingerprint, &update.Timestamp); err != nil {
			return nil, err
		}
		update.Timestamp = update.Timestamp.UTC()

		updates = append(updates, update)
	}

	return updates, rows.Err()
}
