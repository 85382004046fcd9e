package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/wpedit/internal/resource"
)

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// GetWorkPackage returns the stored work package. Unknown ids return an
// error wrapping ErrNotFound.
func (s *Store) GetWorkPackage(ctx context.Context, id string) (*resource.WorkPackage, error) {
	wp, err := getWorkPackage(ctx, s.db, id)
	if err != nil {
		return nil, fmt.Errorf("get work package %s: %w", id, err)
	}
	return wp, nil
}

func getWorkPackage(ctx context.Context, q queryer, id string) (*resource.WorkPackage, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, parent_id, lock_version, fields
		FROM work_packages
		WHERE id = ?
	`, id)

	wp, err := scanWorkPackage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return wp, err
}

// ListWorkPackages returns every stored work package ordered by id.
//
// Returns an empty slice (not nil) if the store is empty.
func (s *Store) ListWorkPackages(ctx context.Context) ([]*resource.WorkPackage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, parent_id, lock_version, fields
		FROM work_packages
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query work packages: %w", err)
	}
	defer rows.Close()

	wps := []*resource.WorkPackage{}
	for rows.Next() {
		wp, err := scanWorkPackage(rows)
		if err != nil {
			return nil, err
		}
		wps = append(wps, wp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate work packages: %w", err)
	}
	return wps, nil
}

// ListJournals returns the journal rows of a work package ordered by
// version.
//
// Returns an empty slice (not nil) if no journals exist.
func (s *Store) ListJournals(ctx context.Context, workPackageID string) ([]resource.Journal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, work_package_id, version, changed
		FROM journals
		WHERE work_package_id = ?
		ORDER BY version ASC, id ASC
	`, workPackageID)
	if err != nil {
		return nil, fmt.Errorf("query journals: %w", err)
	}
	defer rows.Close()

	journals := []resource.Journal{}
	for rows.Next() {
		var (
			j       resource.Journal
			changed string
		)
		if err := rows.Scan(&j.ID, &j.WorkPackageID, &j.Version, &changed); err != nil {
			return nil, fmt.Errorf("scan journal: %w", err)
		}
		j.Changed, err = unmarshalChanged(changed)
		if err != nil {
			return nil, err
		}
		journals = append(journals, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journals: %w", err)
	}
	return journals, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanWorkPackage(row scanner) (*resource.WorkPackage, error) {
	var (
		wp         resource.WorkPackage
		parentID   sql.NullString
		fieldsJSON string
	)
	if err := row.Scan(&wp.ID, &parentID, &wp.LockVersion, &fieldsJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan work package: %w", err)
	}
	wp.ParentID = parentID.String

	fields, err := unmarshalFields(fieldsJSON)
	if err != nil {
		return nil, err
	}
	wp.Fields = fields
	return &wp, nil
}
