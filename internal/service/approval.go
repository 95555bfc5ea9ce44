package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/chikezeogu/fundflow/internal/domain"
)

// Policy holds the amount bounds and fee rate applied at submission.
type Policy struct {
	WithdrawalMin    int64
	WithdrawalMax    int64
	TopUpMin         int64
	TopUpMax         int64
	WithdrawalFeeBps int64
}

type Service struct {
	db     *pgxpool.Pool
	log    *zap.Logger
	policy Policy
}

func NewService(db *pgxpool.Pool, log *zap.Logger, policy Policy) *Service {
	return &Service{db: db, log: log, policy: policy}
}

// Resolution is the outcome of a resolved request. Merchant is set
// only for approved top-ups.
type Resolution struct {
	Request  domain.Request  `json:"updatedRequest"`
	Username string          `json:"username"`
	Merchant *domain.Merchant `json:"merchant,omitempty"`
}

// ResolveRequest moves a PENDING request to a terminal state and
// applies the ledger side effects in one transaction. The request row
// is locked with FOR UPDATE and its status re-checked under the lock,
// so at most one transition away from PENDING ever commits; the loser
// of a race gets ErrAlreadyResolved.
func (s *Service) ResolveRequest(ctx context.Context, category domain.RequestCategory, requestID int64, actor domain.Actor, decision domain.RequestStatus, note string) (*Resolution, error) {
	// Guards evaluated before any write.
	if !decision.Terminal() {
		return nil, fmt.Errorf("%w: decision must be approved or rejected", domain.ErrInvalidState)
	}
	if !actor.Role.CanResolve(category) {
		return nil, domain.ErrUnauthorized
	}
	note = strings.TrimSpace(note)
	if decision == domain.StatusRejected && note == "" {
		return nil, fmt.Errorf("%w: rejection requires a note", domain.ErrInvalidState)
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	// 1. Lock the request row.
	req, err := lockRequest(ctx, tx, requestID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("lock acquisition failed: %w", err)
	}
	if req.Category != category {
		return nil, domain.ErrNotFound
	}
	if req.Status != domain.StatusPending {
		return nil, domain.ErrAlreadyResolved
	}

	var username string
	if err := tx.QueryRow(ctx, "SELECT username FROM members WHERE id = $1", req.MemberID).Scan(&username); err != nil {
		return nil, fmt.Errorf("member lookup failed: %w", err)
	}

	res := &Resolution{Username: username}

	// 2. Category-specific ledger effects.
	switch req.Category {
	case domain.CategoryWithdrawal:
		if err := s.applyWithdrawalOutcome(ctx, tx, req, decision, note); err != nil {
			return nil, err
		}
	case domain.CategoryTopUp:
		merchant, err := s.applyTopUpOutcome(ctx, tx, req, decision)
		if err != nil {
			return nil, err
		}
		res.Merchant = merchant
	default:
		return nil, fmt.Errorf("%w: unknown category %q", domain.ErrInvalidState, req.Category)
	}

	// 3. Record the transition itself.
	updated, err := scanRequestRow(tx.QueryRow(ctx, `
        UPDATE requests
        SET status = $1, note = $2, approver_id = $3, updated_at = now()
        WHERE id = $4
        RETURNING `+requestColumns,
		decision, note, actor.MemberID, req.ID))
	if err != nil {
		return nil, fmt.Errorf("request update failed: %w", err)
	}
	res.Request = updated

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("tx commit failed: %w", err)
	}

	s.log.Info("request resolved",
		zap.Int64("request_id", req.ID),
		zap.String("category", string(req.Category)),
		zap.String("decision", string(decision)),
		zap.Int64("approver_id", actor.MemberID),
	)
	return res, nil
}

// applyWithdrawalOutcome handles the withdrawal side effects. The
// wallet was already debited at submission, so approval only records
// the audit row (net of fee); rejection refunds the full amount.
func (s *Service) applyWithdrawalOutcome(ctx context.Context, tx pgx.Tx, req domain.Request, decision domain.RequestStatus, note string) error {
	auditAmount := req.Amount - req.Fee
	description := "Withdrawal approved"
	message := fmt.Sprintf("Your withdrawal request #%d was approved", req.ID)

	if decision == domain.StatusRejected {
		tag, err := tx.Exec(ctx, `
            UPDATE ledgers
            SET wallet_balance = wallet_balance + $1,
                earnings = earnings + $1,
                updated_at = now()
            WHERE member_id = $2`,
			req.Amount, req.MemberID)
		if err != nil {
			return fmt.Errorf("refund failed: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: ledger missing for member %d", domain.ErrNotFound, req.MemberID)
		}
		auditAmount = req.Amount
		description = "Withdrawal rejected"
		message = fmt.Sprintf("Your withdrawal request #%d was rejected: %s", req.ID, note)
	}

	if err := insertTransaction(ctx, tx, req.MemberID, req.ID, auditAmount, description); err != nil {
		return err
	}

	_, err := tx.Exec(ctx,
		"INSERT INTO notifications (member_id, message) VALUES ($1, $2)",
		req.MemberID, message)
	if err != nil {
		return fmt.Errorf("notification insert failed: %w", err)
	}
	return nil
}

// applyTopUpOutcome handles the top-up side effects. Approval moves
// the amount from the merchant float to the member ledger; the total
// across both is unchanged. Rejection touches no balances.
func (s *Service) applyTopUpOutcome(ctx context.Context, tx pgx.Tx, req domain.Request, decision domain.RequestStatus) (*domain.Merchant, error) {
	description := "Top-up rejected"
	var merchant *domain.Merchant

	if decision == domain.StatusApproved {
		var balance int64
		err := tx.QueryRow(ctx, "SELECT balance FROM merchants WHERE id = $1 FOR UPDATE", req.MerchantID).Scan(&balance)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("merchant %d missing for request %d: %w", req.MerchantID, req.ID, err)
			}
			return nil, fmt.Errorf("merchant lock failed: %w", err)
		}
		if balance < req.Amount {
			return nil, domain.ErrInsufficientFunds
		}

		var m domain.Merchant
		err = tx.QueryRow(ctx, `
            UPDATE merchants SET balance = balance - $1, updated_at = now()
            WHERE id = $2
            RETURNING id, name, balance, updated_at`,
			req.Amount, req.MerchantID,
		).Scan(&m.ID, &m.Name, &m.Balance, &m.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("merchant debit failed: %w", err)
		}
		merchant = &m

		// The credit must land; a member row can exist without a ledger
		// row, and committing the merchant debit alone would lose money.
		tag, err := tx.Exec(ctx, `
            UPDATE ledgers
            SET wallet_balance = wallet_balance + $1,
                combined_earnings = combined_earnings + $1,
                updated_at = now()
            WHERE member_id = $2`,
			req.Amount, req.MemberID)
		if err != nil {
			return nil, fmt.Errorf("member credit failed: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil, fmt.Errorf("%w: ledger missing for member %d", domain.ErrNotFound, req.MemberID)
		}
		description = "Top-up approved"
	}

	if err := insertTransaction(ctx, tx, req.MemberID, req.ID, req.Amount, description); err != nil {
		return nil, err
	}
	return merchant, nil
}

func insertTransaction(ctx context.Context, tx pgx.Tx, memberID, requestID, amount int64, description string) error {
	_, err := tx.Exec(ctx,
		"INSERT INTO transactions (member_id, request_id, amount, description) VALUES ($1, $2, $3, $4)",
		memberID, requestID, amount, description)
	if err != nil {
		return fmt.Errorf("audit insert failed: %w", err)
	}
	return nil
}

const requestColumns = `
    id, member_id, COALESCE(merchant_id, 0), category, amount, fee,
    status, note, COALESCE(approver_id, 0), bank_details, attachment_key,
    created_at, updated_at`

func scanRequestRow(row pgx.Row) (domain.Request, error) {
	var r domain.Request
	err := row.Scan(
		&r.ID, &r.MemberID, &r.MerchantID, &r.Category, &r.Amount, &r.Fee,
		&r.Status, &r.Note, &r.ApproverID, &r.BankDetails, &r.AttachmentKey,
		&r.CreatedAt, &r.UpdatedAt,
	)
	return r, err
}

func lockRequest(ctx context.Context, tx pgx.Tx, id int64) (domain.Request, error) {
	return scanRequestRow(tx.QueryRow(ctx,
		"SELECT"+requestColumns+" FROM requests WHERE id = $1 FOR UPDATE", id))
}

func zapRequestFields(r domain.Request) []zap.Field {
	return []zap.Field{
		zap.Int64("request_id", r.ID),
		zap.Int64("member_id", r.MemberID),
		zap.String("category", string(r.Category)),
		zap.Int64("amount", r.Amount),
	}
}
