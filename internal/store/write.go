package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/wpedit/internal/ir"
	"github.com/roach88/wpedit/internal/resource"
)

// PutWorkPackage inserts or replaces a work package row as given, lock
// version included. Used for seeding; edits go through SaveWorkPackage.
func (s *Store) PutWorkPackage(ctx context.Context, wp *resource.WorkPackage) error {
	if wp == nil || wp.ID == "" {
		return fmt.Errorf("put work package: missing id")
	}
	fieldsJSON, err := marshalFields(wp.Fields)
	if err != nil {
		return fmt.Errorf("put work package: %w", err)
	}
	digest, err := wp.Digest()
	if err != nil {
		return fmt.Errorf("put work package: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO work_packages (id, parent_id, lock_version, fields, digest)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			parent_id = excluded.parent_id,
			lock_version = excluded.lock_version,
			fields = excluded.fields,
			digest = excluded.digest
	`,
		wp.ID,
		nullableString(wp.ParentID),
		wp.LockVersion,
		fieldsJSON,
		digest,
	)
	if err != nil {
		return fmt.Errorf("put work package: %w", err)
	}
	return nil
}

// SaveWorkPackage applies changes to the stored row of wp.ID.
//
// The save succeeds only when wp.LockVersion matches the stored lock
// version. Changes are applied on top of the stored fields, the lock
// version is bumped by one and a journal row naming the changed fields is
// appended, all in one transaction. The saved work package is returned.
func (s *Store) SaveWorkPackage(ctx context.Context, wp *resource.WorkPackage, changes ir.Object) (*resource.WorkPackage, error) {
	if wp == nil || wp.ID == "" {
		return nil, fmt.Errorf("save work package: missing id")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("save work package: begin: %w", err)
	}
	defer tx.Rollback()

	current, err := getWorkPackage(ctx, tx, wp.ID)
	if err != nil {
		return nil, fmt.Errorf("save work package %s: %w", wp.ID, err)
	}
	if current.LockVersion != wp.LockVersion {
		return nil, fmt.Errorf("save work package %s: %w (have %d, stored %d)",
			wp.ID, ErrConflict, wp.LockVersion, current.LockVersion)
	}

	saved := current.WithChanges(changes).WithLockVersion(current.LockVersion + 1)
	fieldsJSON, err := marshalFields(saved.Fields)
	if err != nil {
		return nil, fmt.Errorf("save work package %s: %w", wp.ID, err)
	}
	digest, err := saved.Digest()
	if err != nil {
		return nil, fmt.Errorf("save work package %s: %w", wp.ID, err)
	}
	changedJSON, err := marshalChanged(changes)
	if err != nil {
		return nil, fmt.Errorf("save work package %s: %w", wp.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE work_packages
		SET lock_version = ?, fields = ?, digest = ?
		WHERE id = ? AND lock_version = ?
	`, saved.LockVersion, fieldsJSON, digest, wp.ID, current.LockVersion); err != nil {
		return nil, fmt.Errorf("save work package %s: update: %w", wp.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO journals (work_package_id, version, changed)
		VALUES (?, ?, ?)
	`, wp.ID, saved.LockVersion, changedJSON); err != nil {
		return nil, fmt.Errorf("save work package %s: journal: %w", wp.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("save work package %s: commit: %w", wp.ID, err)
	}
	return saved, nil
}

// IsConflict reports whether err is a stale lock version error.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsNotFound reports whether err is a missing work package error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
