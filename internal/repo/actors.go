package repo

import (
	"context"
	"database/sql"

	"contractdesk/internal/domain"
)

const actorColumns = `id,display_name,role,last_activity_at,must_rotate_credential,created_at`

func scanActor(row scanner) (domain.Actor, error) {
	var a domain.Actor
	var lastActivity sql.NullString
	err := row.Scan(&a.ID, &a.DisplayName, &a.Role, &lastActivity, &a.MustRotateCredential, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	a.LastActivityAt = fromNullString(lastActivity)
	return a, nil
}

func (r Repo) InsertActor(ctx context.Context, tx *sql.Tx, a domain.Actor) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO actors(id,display_name,role,last_activity_at,must_rotate_credential,created_at) VALUES (?,?,?,?,?,?)`,
		a.ID, a.DisplayName, a.Role, nullableStringPtr(a.LastActivityAt), a.MustRotateCredential, a.CreatedAt)
	return err
}

func (r Repo) GetActor(ctx context.Context, id string) (domain.Actor, error) {
	return scanActor(r.DB.QueryRowContext(ctx, `SELECT `+actorColumns+` FROM actors WHERE id=?`, id))
}

func (r Repo) GetActorTx(ctx context.Context, tx *sql.Tx, id string) (domain.Actor, error) {
	return scanActor(tx.QueryRowContext(ctx, `SELECT `+actorColumns+` FROM actors WHERE id=?`, id))
}

func (r Repo) ListActors(ctx context.Context) ([]domain.Actor, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+actorColumns+` FROM actors ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Actor
	for rows.Next() {
		a, err := scanActor(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// ListActorsByRole returns actors holding any of the given roles. Used to
// resolve notification fan-out to lead roles.
func (r Repo) ListActorsByRole(ctx context.Context, roles ...domain.Role) ([]domain.Actor, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	query := `SELECT ` + actorColumns + ` FROM actors WHERE role IN (?`
	args := []any{string(roles[0])}
	for _, role := range roles[1:] {
		query += ",?"
		args = append(args, string(role))
	}
	query += `) ORDER BY id ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Actor
	for rows.Next() {
		a, err := scanActor(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// DeleteActor removes the actor along with their notifications and API keys.
// Contract references are the caller's concern; foreign keys reject a delete
// while any contract still points at the actor.
func (r Repo) DeleteActor(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM notifications WHERE recipient_id=?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM api_keys WHERE actor_id=?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM actors WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchActivity records the actor's most recent authenticated request.
func (r Repo) TouchActivity(ctx context.Context, actorID, now string) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE actors SET last_activity_at=? WHERE id=?`, now, actorID)
	return err
}

func (r Repo) SetMustRotateCredential(ctx context.Context, tx *sql.Tx, actorID string, v bool) error {
	res, err := tx.ExecContext(ctx, `UPDATE actors SET must_rotate_credential=? WHERE id=?`, v, actorID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// InactiveSince lists actors whose last activity predates the cutoff, for the
// external inactivity checker. Actors with no recorded activity are included.
func (r Repo) InactiveSince(ctx context.Context, cutoff string) ([]domain.Actor, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+actorColumns+` FROM actors WHERE last_activity_at IS NULL OR last_activity_at < ? ORDER BY id ASC`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Actor
	for rows.Next() {
		a, err := scanActor(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}
