package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/chikezeogu/fundflow/internal/auth"
	"github.com/chikezeogu/fundflow/internal/domain"
	"github.com/chikezeogu/fundflow/internal/files"
	"github.com/chikezeogu/fundflow/internal/service"
	"github.com/chikezeogu/fundflow/internal/store"
)

const maxAttachmentSize = 10 << 20

type Handler struct {
	store *store.Store
	svc   *service.Service
	files files.Storage
	log   *zap.Logger
}

func NewHandler(s *store.Store, svc *service.Service, fs files.Storage, log *zap.Logger) *Handler {
	return &Handler{store: s, svc: svc, files: fs, log: log}
}

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"}, "GET", "/health")
}

// --- Resolution ---

type resolveBody struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

func (h *Handler) ResolveWithdrawalHandler(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, domain.CategoryWithdrawal, "/withdraw/{requestId}")
}

func (h *Handler) ResolveTopUpHandler(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, domain.CategoryTopUp, "/top-up/{requestId}")
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request, category domain.RequestCategory, endpoint string) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("PUT", endpoint))
	defer timer.ObserveDuration()

	actor, ok := auth.ActorFrom(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "Authentication required", "PUT", endpoint)
		return
	}

	id, err := parseID(r, "requestId")
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request id", "PUT", endpoint)
		return
	}

	var body resolveBody
	if err := decodeJSON(r, &body); err != nil {
		h.respondError(w, http.StatusBadRequest, "Malformed JSON body", "PUT", endpoint)
		return
	}

	decision, ok := domain.ParseDecision(body.Status)
	if !ok {
		h.respondError(w, http.StatusBadRequest, "Status must be APPROVED or REJECTED", "PUT", endpoint)
		return
	}

	res, err := h.svc.ResolveRequest(r.Context(), category, id, actor, decision, body.Note)
	if err != nil {
		h.respondBusinessError(w, err, "PUT", endpoint)
		return
	}

	resolutionsTotal.WithLabelValues(string(category), string(decision)).Inc()
	h.respondSuccess(w, http.StatusOK, res, "PUT", endpoint)
}

// --- Submission ---

type submitWithdrawalBody struct {
	Amount      int64  `json:"amount,string"`
	BankDetails string `json:"bank_details"`
}

func (h *Handler) SubmitWithdrawalHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/v1/withdraw"
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", endpoint))
	defer timer.ObserveDuration()

	actor, ok := auth.ActorFrom(r.Context())
	if !ok || !actor.Role.CanSubmit() {
		h.respondError(w, http.StatusForbidden, "Only members may submit requests", "POST", endpoint)
		return
	}

	var body submitWithdrawalBody
	if err := decodeJSON(r, &body); err != nil {
		h.respondError(w, http.StatusBadRequest, "Malformed JSON body", "POST", endpoint)
		return
	}

	req, err := h.svc.SubmitWithdrawal(r.Context(), actor.MemberID, body.Amount, body.BankDetails)
	if err != nil {
		h.respondBusinessError(w, err, "POST", endpoint)
		return
	}
	h.respondSuccess(w, http.StatusCreated, req, "POST", endpoint)
}

type submitTopUpBody struct {
	Amount        int64  `json:"amount,string"`
	MerchantID    int64  `json:"merchant_id,string"`
	AttachmentKey string `json:"attachment_key"`
}

func (h *Handler) SubmitTopUpHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/v1/top-up"
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", endpoint))
	defer timer.ObserveDuration()

	actor, ok := auth.ActorFrom(r.Context())
	if !ok || !actor.Role.CanSubmit() {
		h.respondError(w, http.StatusForbidden, "Only members may submit requests", "POST", endpoint)
		return
	}

	var body submitTopUpBody
	if err := decodeJSON(r, &body); err != nil {
		h.respondError(w, http.StatusBadRequest, "Malformed JSON body", "POST", endpoint)
		return
	}

	exists, err := h.files.Exists(r.Context(), body.AttachmentKey)
	if err != nil {
		h.log.Error("attachment lookup failed",
			zap.String("attachment_key", body.AttachmentKey), zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "Internal Server Error", "POST", endpoint)
		return
	}
	if !exists {
		h.respondError(w, http.StatusBadRequest, "Proof-of-payment attachment not found", "POST", endpoint)
		return
	}

	req, err := h.svc.SubmitTopUp(r.Context(), actor.MemberID, body.MerchantID, body.Amount, body.AttachmentKey)
	if err != nil {
		// The attachment is orphaned if the write failed; validation
		// failures keep it so the member can resubmit.
		if !errors.Is(err, domain.ErrInvalidState) && !errors.Is(err, domain.ErrNotFound) {
			if rerr := h.files.Remove(r.Context(), body.AttachmentKey); rerr != nil {
				h.log.Warn("orphaned attachment cleanup failed",
					zap.String("attachment_key", body.AttachmentKey), zap.Error(rerr))
			}
		}
		h.respondBusinessError(w, err, "POST", endpoint)
		return
	}
	h.respondSuccess(w, http.StatusCreated, req, "POST", endpoint)
}

func (h *Handler) UploadAttachmentHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/v1/attachments"

	actor, ok := auth.ActorFrom(r.Context())
	if !ok || !actor.Role.CanSubmit() {
		h.respondError(w, http.StatusForbidden, "Only members may upload attachments", "POST", endpoint)
		return
	}

	if err := r.ParseMultipartForm(maxAttachmentSize); err != nil {
		h.respondError(w, http.StatusBadRequest, "Multipart form required", "POST", endpoint)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Missing file field", "POST", endpoint)
		return
	}
	defer file.Close()

	// Oversize uploads are rejected outright; storing a clipped
	// proof-of-payment would be worse than storing none.
	if header.Size > maxAttachmentSize {
		h.respondError(w, http.StatusBadRequest, "Attachment exceeds the size limit", "POST", endpoint)
		return
	}

	key, err := h.files.Save(r.Context(), file)
	if err != nil {
		h.log.Error("attachment save failed", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "Internal Server Error", "POST", endpoint)
		return
	}
	h.respondSuccess(w, http.StatusCreated, map[string]string{"attachment_key": key}, "POST", endpoint)
}

// --- Read paths ---

func (h *Handler) GetRequestHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/v1/requests/{id}"

	actor, ok := auth.ActorFrom(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "Authentication required", "GET", endpoint)
		return
	}
	id, err := parseID(r, "id")
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request id", "GET", endpoint)
		return
	}

	req, err := h.store.GetRequest(r.Context(), id)
	if err != nil {
		h.respondBusinessError(w, err, "GET", endpoint)
		return
	}
	if req.MemberID != actor.MemberID && !actor.Role.CanResolve(req.Category) {
		// Hide existence from unrelated members.
		h.respondError(w, http.StatusNotFound, "Not found", "GET", endpoint)
		return
	}
	h.respondSuccess(w, http.StatusOK, req, "GET", endpoint)
}

func (h *Handler) ListWithdrawalsHandler(w http.ResponseWriter, r *http.Request) {
	h.listRequests(w, r, domain.CategoryWithdrawal, "/api/v1/withdraw")
}

func (h *Handler) ListTopUpsHandler(w http.ResponseWriter, r *http.Request) {
	h.listRequests(w, r, domain.CategoryTopUp, "/api/v1/top-up")
}

func (h *Handler) listRequests(w http.ResponseWriter, r *http.Request, category domain.RequestCategory, endpoint string) {
	actor, ok := auth.ActorFrom(r.Context())
	if !ok || !actor.Role.CanResolve(category) {
		h.respondError(w, http.StatusForbidden, "Actor lacks the required role", "GET", endpoint)
		return
	}

	var status domain.RequestStatus
	if v := r.URL.Query().Get("status"); v != "" {
		switch domain.RequestStatus(v) {
		case domain.StatusPending, domain.StatusApproved, domain.StatusRejected:
			status = domain.RequestStatus(v)
		default:
			h.respondError(w, http.StatusBadRequest, "Unknown status filter", "GET", endpoint)
			return
		}
	}

	reqs, err := h.store.ListRequests(r.Context(), category, status)
	if err != nil {
		h.respondBusinessError(w, err, "GET", endpoint)
		return
	}
	h.respondSuccess(w, http.StatusOK, reqs, "GET", endpoint)
}

func (h *Handler) GetLedgerHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/v1/members/{id}/ledger"
	memberID, ok := h.memberScope(w, r, endpoint)
	if !ok {
		return
	}

	ledger, err := h.store.GetLedger(r.Context(), memberID)
	if err != nil {
		h.respondBusinessError(w, err, "GET", endpoint)
		return
	}
	h.respondSuccess(w, http.StatusOK, ledger, "GET", endpoint)
}

func (h *Handler) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/v1/members/{id}/transactions"
	memberID, ok := h.memberScope(w, r, endpoint)
	if !ok {
		return
	}

	txs, err := h.store.ListTransactions(r.Context(), memberID)
	if err != nil {
		h.respondBusinessError(w, err, "GET", endpoint)
		return
	}
	h.respondSuccess(w, http.StatusOK, txs, "GET", endpoint)
}

func (h *Handler) ListNotificationsHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/v1/members/{id}/notifications"
	memberID, ok := h.memberScope(w, r, endpoint)
	if !ok {
		return
	}

	notes, err := h.store.ListNotifications(r.Context(), memberID)
	if err != nil {
		h.respondBusinessError(w, err, "GET", endpoint)
		return
	}
	h.respondSuccess(w, http.StatusOK, notes, "GET", endpoint)
}

func (h *Handler) MarkNotificationReadHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/v1/notifications/{id}/read"

	actor, ok := auth.ActorFrom(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "Authentication required", "PUT", endpoint)
		return
	}
	id, err := parseID(r, "id")
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid notification id", "PUT", endpoint)
		return
	}

	// Ownership rides in the query; another member's row reads as 404.
	if err := h.store.MarkNotificationRead(r.Context(), id, actor.MemberID); err != nil {
		h.respondBusinessError(w, err, "PUT", endpoint)
		return
	}
	h.respondSuccess(w, http.StatusOK, nil, "PUT", endpoint)
}

// memberScope parses {id} and checks the actor owns it or is admin.
func (h *Handler) memberScope(w http.ResponseWriter, r *http.Request, endpoint string) (int64, bool) {
	actor, ok := auth.ActorFrom(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "Authentication required", "GET", endpoint)
		return 0, false
	}
	id, err := parseID(r, "id")
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid member id", "GET", endpoint)
		return 0, false
	}
	if id != actor.MemberID && actor.Role != domain.RoleAdmin {
		h.respondError(w, http.StatusForbidden, "Actor lacks the required role", "GET", endpoint)
		return 0, false
	}
	return id, true
}

// --- Helpers ---

func parseID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("unexpected trailing data")
	}
	return nil
}
