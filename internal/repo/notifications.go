package repo

import (
	"context"
	"database/sql"
	"strings"

	"contractdesk/internal/domain"
)

const notificationColumns = `id,recipient_id,title,message,type,link,is_read,created_at`

func scanNotification(row scanner) (domain.Notification, error) {
	var n domain.Notification
	var link sql.NullString
	err := row.Scan(&n.ID, &n.RecipientID, &n.Title, &n.Message, &n.Type, &link, &n.IsRead, &n.CreatedAt)
	if err == sql.ErrNoRows {
		return n, ErrNotFound
	}
	if err != nil {
		return n, err
	}
	n.Link = fromNullString(link)
	return n, nil
}

// InsertNotification works with or without an enclosing transaction.
func (r Repo) InsertNotification(ctx context.Context, tx *sql.Tx, n domain.Notification) error {
	exec := func(query string, args ...any) (sql.Result, error) {
		if tx != nil {
			return tx.ExecContext(ctx, query, args...)
		}
		return r.DB.ExecContext(ctx, query, args...)
	}
	_, err := exec(`INSERT INTO notifications(id,recipient_id,title,message,type,link,is_read,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		n.ID, n.RecipientID, n.Title, n.Message, n.Type, nullableStringPtr(n.Link), n.IsRead, n.CreatedAt)
	return err
}

func (r Repo) GetNotification(ctx context.Context, id string) (domain.Notification, error) {
	return scanNotification(r.DB.QueryRowContext(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id=?`, id))
}

type NotificationFilters struct {
	RecipientID     string
	UnreadOnly      bool
	Type            string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListNotifications(ctx context.Context, f NotificationFilters) ([]domain.Notification, error) {
	var clauses []string
	var args []any
	if f.RecipientID != "" {
		clauses = append(clauses, "recipient_id=?")
		args = append(args, f.RecipientID)
	}
	if f.UnreadOnly {
		clauses = append(clauses, "is_read=0")
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + notificationColumns + ` FROM notifications ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}

// MarkNotificationRead flips is_read for a single notification owned by the
// recipient. Marking an already-read notification is a no-op success.
func (r Repo) MarkNotificationRead(ctx context.Context, id, recipientID string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE notifications SET is_read=1 WHERE id=? AND recipient_id=?`, id, recipientID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Distinguish missing row from already-read row.
		var one int
		err := r.DB.QueryRowContext(ctx, `SELECT 1 FROM notifications WHERE id=? AND recipient_id=?`, id, recipientID).Scan(&one)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (r Repo) MarkAllNotificationsRead(ctx context.Context, recipientID string) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `UPDATE notifications SET is_read=1 WHERE recipient_id=? AND is_read=0`, recipientID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r Repo) CountUnreadNotifications(ctx context.Context, recipientID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM notifications WHERE recipient_id=? AND is_read=0`, recipientID).Scan(&n)
	return n, err
}
