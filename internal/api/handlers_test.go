package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chikezeogu/fundflow/internal/api"
	"github.com/chikezeogu/fundflow/internal/auth"
	"github.com/chikezeogu/fundflow/internal/domain"
	"github.com/chikezeogu/fundflow/internal/files"
	"github.com/chikezeogu/fundflow/internal/service"
	"github.com/chikezeogu/fundflow/internal/store"
)

type testEnv struct {
	pool   *pgxpool.Pool
	server *httptest.Server
	tokens *auth.Manager
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func setupTest(t *testing.T) *testEnv {
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

	st := store.New(pool)
	require.NoError(t, st.EnsureSchema(ctx))
	_, err = pool.Exec(ctx,
		"TRUNCATE notifications, transactions, requests, merchants, ledgers, members RESTART IDENTITY CASCADE")
	require.NoError(t, err)

	attachments, err := files.NewDiskStorage(t.TempDir())
	require.NoError(t, err)

	tokens := auth.NewManager("test-secret", "fundflow")
	svc := service.NewService(pool, zap.NewNop(), service.Policy{
		WithdrawalMin:    1_000,
		WithdrawalMax:    10_000_000,
		TopUpMin:         1_000,
		TopUpMax:         50_000_000,
		WithdrawalFeeBps: 500,
	})
	handler := api.NewHandler(st, svc, attachments, zap.NewNop())

	srv := httptest.NewServer(api.NewRouter(handler, tokens, nil))
	t.Cleanup(srv.Close)

	return &testEnv{pool: pool, server: srv, tokens: tokens}
}

func (e *testEnv) seedMember(t *testing.T, username string, role domain.Role, balance int64) (int64, string) {
	t.Helper()
	ctx := context.Background()

	var id int64
	err := e.pool.QueryRow(ctx,
		"INSERT INTO members (username, role) VALUES ($1, $2) RETURNING id",
		username, role).Scan(&id)
	require.NoError(t, err)
	_, err = e.pool.Exec(ctx, `
        INSERT INTO ledgers (member_id, wallet_balance, earnings, combined_earnings)
        VALUES ($1, $2, $2, $2)`, id, balance)
	require.NoError(t, err)

	token, err := e.tokens.Sign(id, username, role, time.Hour)
	require.NoError(t, err)
	return id, token
}

func (e *testEnv) do(t *testing.T, method, path, token, body string) (*http.Response, envelope) {
	t.Helper()

	req, err := http.NewRequest(method, e.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &env), "body: %s", raw)
	}
	return resp, env
}

func TestResolutionEndpointAuth(t *testing.T) {
	env := setupTest(t)

	resp, _ := env.do(t, http.MethodPut, "/withdraw/1", "", `{"status":"APPROVED"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, memberToken := env.seedMember(t, "bob", domain.RoleMember, 10_000)
	resp, env2 := env.do(t, http.MethodPut, "/withdraw/1", memberToken, `{"status":"APPROVED"}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.NotEmpty(t, env2.Error)
}

func TestWithdrawalLifecycleOverHTTP(t *testing.T) {
	env := setupTest(t)

	_, memberToken := env.seedMember(t, "bob", domain.RoleMember, 10_000)
	accountantID, accountantToken := env.seedMember(t, "alice", domain.RoleAccountant, 0)

	// Submit.
	resp, got := env.do(t, http.MethodPost, "/api/v1/withdraw", memberToken,
		`{"amount":"1000","bank_details":"GTB 0123456789"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.True(t, got.Success)

	var created domain.Request
	require.NoError(t, json.Unmarshal(got.Data, &created))
	assert.Equal(t, domain.StatusPending, created.Status)
	assert.Equal(t, int64(50), created.Fee)

	// Resolve.
	resp, got = env.do(t, http.MethodPut, "/withdraw/1", accountantToken,
		`{"status":"APPROVED"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, got.Success)

	var res struct {
		UpdatedRequest domain.Request `json:"updatedRequest"`
		Username       string         `json:"username"`
	}
	require.NoError(t, json.Unmarshal(got.Data, &res))
	assert.Equal(t, domain.StatusApproved, res.UpdatedRequest.Status)
	assert.Equal(t, accountantID, res.UpdatedRequest.ApproverID)
	assert.Equal(t, "bob", res.Username)

	// Second resolution attempt is rejected.
	resp, got = env.do(t, http.MethodPut, "/withdraw/1", accountantToken,
		`{"status":"REJECTED","note":"changed my mind"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Request already resolved", got.Error)

	// Unknown request.
	resp, _ = env.do(t, http.MethodPut, "/withdraw/999", accountantToken,
		`{"status":"APPROVED"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Malformed status value.
	resp, _ = env.do(t, http.MethodPut, "/withdraw/1", accountantToken,
		`{"status":"MAYBE"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTopUpLifecycleOverHTTP(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	_, memberToken := env.seedMember(t, "bob", domain.RoleMember, 0)
	_, merchantToken := env.seedMember(t, "acme", domain.RoleMerchant, 0)

	var merchantID int64
	require.NoError(t, env.pool.QueryRow(ctx,
		"INSERT INTO merchants (name, balance) VALUES ('Acme', 5000) RETURNING id").Scan(&merchantID))

	// Upload the proof-of-payment first.
	key := env.uploadAttachment(t, memberToken)

	// Submit.
	resp, got := env.do(t, http.MethodPost, "/api/v1/top-up", memberToken,
		`{"amount":"2000","merchant_id":"1","attachment_key":"`+key+`"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created domain.Request
	require.NoError(t, json.Unmarshal(got.Data, &created))
	require.Equal(t, domain.StatusPending, created.Status)

	// Resolve; response carries the updated merchant float.
	resp, got = env.do(t, http.MethodPut, "/top-up/1", merchantToken,
		`{"status":"APPROVED"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var res struct {
		UpdatedRequest domain.Request   `json:"updatedRequest"`
		Merchant       *domain.Merchant `json:"merchant"`
	}
	require.NoError(t, json.Unmarshal(got.Data, &res))
	assert.Equal(t, domain.StatusApproved, res.UpdatedRequest.Status)
	require.NotNil(t, res.Merchant)
	assert.Equal(t, int64(3_000), res.Merchant.Balance)
}

func TestSubmitTopUpRequiresExistingAttachment(t *testing.T) {
	env := setupTest(t)

	_, memberToken := env.seedMember(t, "bob", domain.RoleMember, 0)

	resp, got := env.do(t, http.MethodPost, "/api/v1/top-up", memberToken,
		`{"amount":"2000","merchant_id":"1","attachment_key":"missing"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, got.Error, "attachment")
}

func TestMemberScopedReads(t *testing.T) {
	env := setupTest(t)

	memberID, memberToken := env.seedMember(t, "bob", domain.RoleMember, 10_000)
	_, otherToken := env.seedMember(t, "eve", domain.RoleMember, 0)
	_, adminToken := env.seedMember(t, "root", domain.RoleAdmin, 0)

	resp, got := env.do(t, http.MethodGet, "/api/v1/members/1/ledger", memberToken, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var ledger domain.Ledger
	require.NoError(t, json.Unmarshal(got.Data, &ledger))
	assert.Equal(t, memberID, ledger.MemberID)
	assert.Equal(t, int64(10_000), ledger.Wallet)

	// Another member is shut out; admin is not.
	resp, _ = env.do(t, http.MethodGet, "/api/v1/members/1/ledger", otherToken, "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp, _ = env.do(t, http.MethodGet, "/api/v1/members/1/ledger", adminToken, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNotificationReadFlag(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	memberID, memberToken := env.seedMember(t, "bob", domain.RoleMember, 0)
	_, otherToken := env.seedMember(t, "eve", domain.RoleMember, 0)

	var noteID int64
	require.NoError(t, env.pool.QueryRow(ctx,
		"INSERT INTO notifications (member_id, message) VALUES ($1, 'hello') RETURNING id",
		memberID).Scan(&noteID))

	// A non-owner cannot flip the flag.
	resp, _ := env.do(t, http.MethodPut, "/api/v1/notifications/1/read", otherToken, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPut, "/api/v1/notifications/1/read", memberToken, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var isRead bool
	require.NoError(t, env.pool.QueryRow(ctx,
		"SELECT is_read FROM notifications WHERE id = $1", noteID).Scan(&isRead))
	assert.True(t, isRead)
}

func TestListRequestsRequiresApproverRole(t *testing.T) {
	env := setupTest(t)

	_, memberToken := env.seedMember(t, "bob", domain.RoleMember, 10_000)
	_, accountantToken := env.seedMember(t, "alice", domain.RoleAccountant, 0)

	_, _ = env.do(t, http.MethodPost, "/api/v1/withdraw", memberToken,
		`{"amount":"1000","bank_details":"GTB 0123456789"}`)

	resp, _ := env.do(t, http.MethodGet, "/api/v1/withdraw?status=pending", memberToken, "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, got := env.do(t, http.MethodGet, "/api/v1/withdraw?status=pending", accountantToken, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var reqs []domain.Request
	require.NoError(t, json.Unmarshal(got.Data, &reqs))
	require.Len(t, reqs, 1)
	assert.Equal(t, domain.StatusPending, reqs[0].Status)

	resp, _ = env.do(t, http.MethodGet, "/api/v1/withdraw?status=bogus", accountantToken, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// newTestRouter builds the router without a database; only paths that
// respond before reaching the store or service may be exercised.
func newTestRouter(t *testing.T, fs files.Storage, limiter mux.MiddlewareFunc) (*httptest.Server, *auth.Manager) {
	t.Helper()
	tokens := auth.NewManager("test-secret", "fundflow")
	handler := api.NewHandler(nil, nil, fs, zap.NewNop())
	srv := httptest.NewServer(api.NewRouter(handler, tokens, limiter))
	t.Cleanup(srv.Close)
	return srv, tokens
}

func doRequest(t *testing.T, srv *httptest.Server, method, path, token, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

type brokenStorage struct{ err error }

func (s brokenStorage) Save(context.Context, io.Reader) (string, error) { return "", s.err }
func (s brokenStorage) Open(context.Context, string) (io.ReadCloser, error) { return nil, s.err }
func (s brokenStorage) Exists(context.Context, string) (bool, error) { return false, s.err }
func (s brokenStorage) Remove(context.Context, string) error { return s.err }

func TestResolveRoleGuardPrecedesRateLimiter(t *testing.T) {
	exhausted := mux.MiddlewareFunc(func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})
	})
	srv, tokens := newTestRouter(t, nil, exhausted)

	memberToken, err := tokens.Sign(1, "bob", domain.RoleMember, time.Hour)
	require.NoError(t, err)
	accountantToken, err := tokens.Sign(2, "alice", domain.RoleAccountant, time.Hour)
	require.NoError(t, err)

	// An actor who could never resolve answers 403, even with the
	// limiter exhausted: the role guard runs first.
	resp := doRequest(t, srv, http.MethodPut, "/withdraw/1", memberToken, `{"status":"APPROVED"}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// An accountant on a top-up route is equally out of scope.
	resp = doRequest(t, srv, http.MethodPut, "/top-up/1", accountantToken, `{"status":"APPROVED"}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// The right role reaches the limiter.
	resp = doRequest(t, srv, http.MethodPut, "/withdraw/1", accountantToken, `{"status":"APPROVED"}`)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestSubmitTopUpStorageFailureIsInternal(t *testing.T) {
	srv, tokens := newTestRouter(t,
		brokenStorage{err: errors.New("stat attachments: input/output error")}, nil)
	memberToken, err := tokens.Sign(1, "bob", domain.RoleMember, time.Hour)
	require.NoError(t, err)

	// A storage outage is not the member's mistake.
	resp := doRequest(t, srv, http.MethodPost, "/api/v1/top-up", memberToken,
		`{"amount":"2000","merchant_id":"1","attachment_key":"some-key"}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestUploadAttachmentRejectsOversize(t *testing.T) {
	dir := t.TempDir()
	storage, err := files.NewDiskStorage(dir)
	require.NoError(t, err)
	srv, tokens := newTestRouter(t, storage, nil)
	memberToken, err := tokens.Sign(1, "bob", domain.RoleMember, time.Hour)
	require.NoError(t, err)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "receipt.png")
	require.NoError(t, err)
	_, err = fw.Write(bytes.Repeat([]byte("x"), 10<<20+1))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/attachments", &buf)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+memberToken)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Nothing was stored, clipped or otherwise.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func (e *testEnv) uploadAttachment(t *testing.T, token string) string {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "receipt.png")
	require.NoError(t, err)
	_, err = fw.Write([]byte("png bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, e.server.URL+"/api/v1/attachments", &buf)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := e.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	var data struct {
		AttachmentKey string `json:"attachment_key"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.NotEmpty(t, data.AttachmentKey)
	return data.AttachmentKey
}
