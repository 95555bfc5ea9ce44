package service_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chikezeogu/fundflow/internal/domain"
	"github.com/chikezeogu/fundflow/internal/service"
	"github.com/chikezeogu/fundflow/internal/store"
)

var testPolicy = service.Policy{
	WithdrawalMin:    1_000,
	WithdrawalMax:    10_000_000,
	TopUpMin:         1_000,
	TopUpMax:         50_000_000,
	WithdrawalFeeBps: 500,
}

func setupDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, store.New(pool).EnsureSchema(ctx))
	_, err = pool.Exec(ctx,
		"TRUNCATE notifications, transactions, requests, merchants, ledgers, members RESTART IDENTITY CASCADE")
	require.NoError(t, err)

	return pool
}

func newService(pool *pgxpool.Pool) *service.Service {
	return service.NewService(pool, zap.NewNop(), testPolicy)
}

func seedMember(t *testing.T, pool *pgxpool.Pool, username string, role domain.Role, balance int64) int64 {
	t.Helper()
	ctx := context.Background()

	var id int64
	err := pool.QueryRow(ctx,
		"INSERT INTO members (username, role) VALUES ($1, $2) RETURNING id",
		username, role).Scan(&id)
	require.NoError(t, err)

	_, err = pool.Exec(ctx, `
        INSERT INTO ledgers (member_id, wallet_balance, earnings, combined_earnings)
        VALUES ($1, $2, $2, $2)`, id, balance)
	require.NoError(t, err)
	return id
}

func seedMerchant(t *testing.T, pool *pgxpool.Pool, name string, balance int64) int64 {
	t.Helper()
	var id int64
	err := pool.QueryRow(context.Background(),
		"INSERT INTO merchants (name, balance) VALUES ($1, $2) RETURNING id",
		name, balance).Scan(&id)
	require.NoError(t, err)
	return id
}

func getLedger(t *testing.T, pool *pgxpool.Pool, memberID int64) domain.Ledger {
	t.Helper()
	l, err := store.New(pool).GetLedger(context.Background(), memberID)
	require.NoError(t, err)
	return l
}

func getMerchantBalance(t *testing.T, pool *pgxpool.Pool, id int64) int64 {
	t.Helper()
	var balance int64
	err := pool.QueryRow(context.Background(),
		"SELECT balance FROM merchants WHERE id = $1", id).Scan(&balance)
	require.NoError(t, err)
	return balance
}

func countTransactions(t *testing.T, pool *pgxpool.Pool, requestID int64) int {
	t.Helper()
	var n int
	err := pool.QueryRow(context.Background(),
		"SELECT COUNT(*) FROM transactions WHERE request_id = $1", requestID).Scan(&n)
	require.NoError(t, err)
	return n
}

func actor(id int64, role domain.Role) domain.Actor {
	return domain.Actor{MemberID: id, Username: "test", Role: role}
}
