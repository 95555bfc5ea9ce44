package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/chikezeogu/fundflow/internal/domain"
)

const requestColumns = `
    id, member_id, COALESCE(merchant_id, 0), category, amount, fee,
    status, note, COALESCE(approver_id, 0), bank_details, attachment_key,
    created_at, updated_at`

func scanRequest(row pgx.Row) (domain.Request, error) {
	var r domain.Request
	err := row.Scan(
		&r.ID, &r.MemberID, &r.MerchantID, &r.Category, &r.Amount, &r.Fee,
		&r.Status, &r.Note, &r.ApproverID, &r.BankDetails, &r.AttachmentKey,
		&r.CreatedAt, &r.UpdatedAt,
	)
	return r, err
}

// CreateMember inserts a member with an empty ledger row.
func (s *Store) CreateMember(ctx context.Context, username string, role domain.Role) (domain.Member, error) {
	var m domain.Member
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return m, err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		"INSERT INTO members (username, role) VALUES ($1, $2) RETURNING id, username, role, created_at",
		username, role,
	).Scan(&m.ID, &m.Username, &m.Role, &m.CreatedAt)
	if err != nil {
		return m, err
	}
	if _, err := tx.Exec(ctx, "INSERT INTO ledgers (member_id) VALUES ($1)", m.ID); err != nil {
		return m, err
	}
	return m, tx.Commit(ctx)
}

func (s *Store) GetMember(ctx context.Context, id int64) (domain.Member, error) {
	var m domain.Member
	err := s.Pool.QueryRow(ctx,
		"SELECT id, username, role, created_at FROM members WHERE id = $1", id,
	).Scan(&m.ID, &m.Username, &m.Role, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return m, domain.ErrNotFound
	}
	return m, err
}

func (s *Store) GetLedger(ctx context.Context, memberID int64) (domain.Ledger, error) {
	var l domain.Ledger
	err := s.Pool.QueryRow(ctx,
		"SELECT member_id, wallet_balance, earnings, combined_earnings, updated_at FROM ledgers WHERE member_id = $1",
		memberID,
	).Scan(&l.MemberID, &l.Wallet, &l.Earnings, &l.CombinedEarnings, &l.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return l, domain.ErrNotFound
	}
	return l, err
}

func (s *Store) CreateMerchant(ctx context.Context, name string, balance int64) (domain.Merchant, error) {
	var m domain.Merchant
	err := s.Pool.QueryRow(ctx,
		"INSERT INTO merchants (name, balance) VALUES ($1, $2) RETURNING id, name, balance, updated_at",
		name, balance,
	).Scan(&m.ID, &m.Name, &m.Balance, &m.UpdatedAt)
	return m, err
}

func (s *Store) GetMerchant(ctx context.Context, id int64) (domain.Merchant, error) {
	var m domain.Merchant
	err := s.Pool.QueryRow(ctx,
		"SELECT id, name, balance, updated_at FROM merchants WHERE id = $1", id,
	).Scan(&m.ID, &m.Name, &m.Balance, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return m, domain.ErrNotFound
	}
	return m, err
}

func (s *Store) GetRequest(ctx context.Context, id int64) (domain.Request, error) {
	req, err := scanRequest(s.Pool.QueryRow(ctx,
		"SELECT"+requestColumns+" FROM requests WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return req, domain.ErrNotFound
	}
	return req, err
}

// ListRequests returns requests of one category, optionally filtered
// by status, newest first.
func (s *Store) ListRequests(ctx context.Context, category domain.RequestCategory, status domain.RequestStatus) ([]domain.Request, error) {
	q := "SELECT" + requestColumns + " FROM requests WHERE category = $1"
	args := []any{category}
	if status != "" {
		q += " AND status = $2"
		args = append(args, status)
	}
	q += " ORDER BY created_at DESC"

	rows, err := s.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) ListTransactions(ctx context.Context, memberID int64) ([]domain.Transaction, error) {
	rows, err := s.Pool.Query(ctx, `
        SELECT id, member_id, COALESCE(request_id, 0), amount, description, created_at
        FROM transactions WHERE member_id = $1 ORDER BY created_at DESC`,
		memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		if err := rows.Scan(&t.ID, &t.MemberID, &t.RequestID, &t.Amount, &t.Description, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) ListNotifications(ctx context.Context, memberID int64) ([]domain.Notification, error) {
	rows, err := s.Pool.Query(ctx, `
        SELECT id, member_id, message, is_read, created_at
        FROM notifications WHERE member_id = $1 ORDER BY created_at DESC`,
		memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(&n.ID, &n.MemberID, &n.Message, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkNotificationRead flips the read flag. Ownership is enforced in
// the WHERE clause so a member cannot touch another member's rows.
func (s *Store) MarkNotificationRead(ctx context.Context, id, memberID int64) error {
	tag, err := s.Pool.Exec(ctx,
		"UPDATE notifications SET is_read = TRUE WHERE id = $1 AND member_id = $2",
		id, memberID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
