package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/chikezeogu/fundflow/internal/domain"
)

// SubmitWithdrawal creates a PENDING withdrawal and debits the
// member's wallet and earnings up front, together with a provisional
// audit row. The debit is reversed only if the request is rejected.
func (s *Service) SubmitWithdrawal(ctx context.Context, memberID, amount int64, bankDetails string) (domain.Request, error) {
	var req domain.Request

	if amount < s.policy.WithdrawalMin || amount > s.policy.WithdrawalMax {
		return req, fmt.Errorf("%w: withdrawal amount must be between %d and %d",
			domain.ErrInvalidState, s.policy.WithdrawalMin, s.policy.WithdrawalMax)
	}
	bankDetails = strings.TrimSpace(bankDetails)
	if bankDetails == "" {
		return req, fmt.Errorf("%w: bank details are required", domain.ErrInvalidState)
	}
	fee := amount * s.policy.WithdrawalFeeBps / 10_000

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return req, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	var wallet, earnings int64
	err = tx.QueryRow(ctx,
		"SELECT wallet_balance, earnings FROM ledgers WHERE member_id = $1 FOR UPDATE",
		memberID,
	).Scan(&wallet, &earnings)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return req, domain.ErrNotFound
		}
		return req, fmt.Errorf("ledger lock failed: %w", err)
	}
	if wallet < amount || earnings < amount {
		return req, domain.ErrInsufficientFunds
	}

	_, err = tx.Exec(ctx, `
        UPDATE ledgers
        SET wallet_balance = wallet_balance - $1,
            earnings = earnings - $1,
            updated_at = now()
        WHERE member_id = $2`,
		amount, memberID)
	if err != nil {
		return req, fmt.Errorf("wallet debit failed: %w", err)
	}

	req, err = scanRequestRow(tx.QueryRow(ctx, `
        INSERT INTO requests (member_id, category, amount, fee, bank_details)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING `+requestColumns,
		memberID, domain.CategoryWithdrawal, amount, fee, bankDetails))
	if err != nil {
		return req, fmt.Errorf("request insert failed: %w", err)
	}

	if err := insertTransaction(ctx, tx, memberID, req.ID, -amount, "Withdrawal requested"); err != nil {
		return req, err
	}

	if err := tx.Commit(ctx); err != nil {
		return req, fmt.Errorf("tx commit failed: %w", err)
	}

	s.log.Info("withdrawal submitted",
		zapRequestFields(req)...,
	)
	return req, nil
}

// SubmitTopUp creates a PENDING top-up referencing an already-uploaded
// proof-of-payment attachment. The caller owns removing the attachment
// if this returns an error.
func (s *Service) SubmitTopUp(ctx context.Context, memberID, merchantID, amount int64, attachmentKey string) (domain.Request, error) {
	var req domain.Request

	if amount < s.policy.TopUpMin || amount > s.policy.TopUpMax {
		return req, fmt.Errorf("%w: top-up amount must be between %d and %d",
			domain.ErrInvalidState, s.policy.TopUpMin, s.policy.TopUpMax)
	}
	attachmentKey = strings.TrimSpace(attachmentKey)
	if attachmentKey == "" {
		return req, fmt.Errorf("%w: proof-of-payment attachment is required", domain.ErrInvalidState)
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return req, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	if err := tx.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM merchants WHERE id = $1)", merchantID).Scan(&exists); err != nil {
		return req, fmt.Errorf("merchant lookup failed: %w", err)
	}
	if !exists {
		return req, domain.ErrNotFound
	}

	req, err = scanRequestRow(tx.QueryRow(ctx, `
        INSERT INTO requests (member_id, merchant_id, category, amount, attachment_key)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING `+requestColumns,
		memberID, merchantID, domain.CategoryTopUp, amount, attachmentKey))
	if err != nil {
		return req, fmt.Errorf("request insert failed: %w", err)
	}

	if err := insertTransaction(ctx, tx, memberID, req.ID, amount, "Top-up requested"); err != nil {
		return req, err
	}

	if err := tx.Commit(ctx); err != nil {
		return req, fmt.Errorf("tx commit failed: %w", err)
	}

	s.log.Info("top-up submitted",
		zapRequestFields(req)...,
	)
	return req, nil
}
