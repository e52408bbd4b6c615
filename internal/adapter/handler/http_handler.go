package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/stock-manager/internal/core/domain"
	"github.com/rl1809/stock-manager/internal/core/service"
	"github.com/rl1809/stock-manager/internal/core/stable"
	"github.com/rl1809/stock-manager/internal/port"
)

const (
	requestIDHeader   = "X-Request-ID"
	idempotencyHeader = "Idempotency-Key"
	maxBodyBytes      = 64 << 10
)

type HTTPHandler struct {
	ledger *service.Ledger
	cache  port.IdempotencyCache
	log    *zap.SugaredLogger
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// NewHTTPHandler serves ledger over JSON. cache may be nil, in which case
// Idempotency-Key headers are ignored.
func NewHTTPHandler(ledger *service.Ledger, cache port.IdempotencyCache, log *zap.SugaredLogger) *HTTPHandler {
	return &HTTPHandler{ledger: ledger, cache: cache, log: log}
}

func (h *HTTPHandler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.HealthCheck)

	mux.HandleFunc("GET /api/items", h.GetItems)
	mux.HandleFunc("POST /api/items", h.AddItem)
	mux.HandleFunc("GET /api/items/{id}", h.GetItemByID)
	mux.HandleFunc("PUT /api/items/{id}", h.UpdateItem)
	mux.HandleFunc("DELETE /api/items/{id}", h.DeleteItem)

	mux.HandleFunc("GET /api/stock", h.GetStock)
	mux.HandleFunc("POST /api/stock", h.AddStock)
	mux.HandleFunc("GET /api/stock/{id}", h.GetStockByID)
	mux.HandleFunc("PUT /api/stock/{id}", h.UpdateStock)
	mux.HandleFunc("DELETE /api/stock/{id}", h.DeleteStock)

	mux.HandleFunc("GET /api/transactions", h.GetTransactions)
	mux.HandleFunc("POST /api/transactions", h.AddTransaction)
	mux.HandleFunc("PUT /api/transactions/{id}", h.UpdateTransaction)
	mux.HandleFunc("DELETE /api/transactions/{id}", h.DeleteTransaction)

	return h.withRequestID(mux)
}

func (h *HTTPHandler) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(requestIDHeader, id)
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) GetItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.ledger.GetItems()
	h.respond(w, r, http.StatusOK, items, err)
}

func (h *HTTPHandler) GetItemByID(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	item, err := h.ledger.GetItemByID(id)
	h.respond(w, r, http.StatusOK, item, err)
}

func (h *HTTPHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var p domain.ItemPayload
	if !h.decode(w, r, &p) || !h.claim(w, r) {
		return
	}
	item, err := h.ledger.AddItem(p)
	h.respond(w, r, http.StatusCreated, item, err)
}

func (h *HTTPHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var p domain.ItemPayload
	if !h.decode(w, r, &p) {
		return
	}
	item, err := h.ledger.UpdateItem(id, p)
	h.respond(w, r, http.StatusOK, item, err)
}

func (h *HTTPHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	h.respondEmpty(w, r, h.ledger.DeleteItem(id))
}

func (h *HTTPHandler) GetStock(w http.ResponseWriter, r *http.Request) {
	stock, err := h.ledger.GetStock()
	h.respond(w, r, http.StatusOK, stock, err)
}

func (h *HTTPHandler) GetStockByID(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	stock, err := h.ledger.GetStockByID(id)
	h.respond(w, r, http.StatusOK, stock, err)
}

func (h *HTTPHandler) AddStock(w http.ResponseWriter, r *http.Request) {
	var p domain.StockPayload
	if !h.decode(w, r, &p) || !h.claim(w, r) {
		return
	}
	stock, err := h.ledger.AddStock(p)
	h.respond(w, r, http.StatusCreated, stock, err)
}

func (h *HTTPHandler) UpdateStock(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var p domain.StockPayload
	if !h.decode(w, r, &p) {
		return
	}
	stock, err := h.ledger.UpdateStock(id, p)
	h.respond(w, r, http.StatusOK, stock, err)
}

func (h *HTTPHandler) DeleteStock(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	h.respondEmpty(w, r, h.ledger.DeleteStock(id))
}

func (h *HTTPHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.ledger.GetTransactions()
	h.respond(w, r, http.StatusOK, txs, err)
}

func (h *HTTPHandler) AddTransaction(w http.ResponseWriter, r *http.Request) {
	var p domain.TransactionPayload
	if !h.decode(w, r, &p) || !h.valid(w, p) || !h.claim(w, r) {
		return
	}
	tx, err := h.ledger.AddTransaction(p)
	h.respond(w, r, http.StatusCreated, tx, err)
}

func (h *HTTPHandler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var p domain.TransactionPayload
	if !h.decode(w, r, &p) || !h.valid(w, p) {
		return
	}
	tx, err := h.ledger.UpdateTransaction(id, p)
	h.respond(w, r, http.StatusOK, tx, err)
}

func (h *HTTPHandler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	h.respondEmpty(w, r, h.ledger.DeleteTransaction(id))
}

func (h *HTTPHandler) pathID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
		return 0, false
	}
	return id, true
}

func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return false
	}
	return true
}

func (h *HTTPHandler) valid(w http.ResponseWriter, p domain.TransactionPayload) bool {
	if err := p.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return false
	}
	return true
}

// claim reserves the request's Idempotency-Key. It reports false, after
// writing the response, when the key was already used or cannot be checked.
func (h *HTTPHandler) claim(w http.ResponseWriter, r *http.Request) bool {
	key := r.Header.Get(idempotencyHeader)
	if key == "" || h.cache == nil {
		return true
	}
	ok, err := h.cache.SetIdempotency(r.Context(), key)
	if err != nil {
		h.log.Errorw("idempotency check failed",
			"request_id", r.Header.Get(requestIDHeader), "key", key, "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		return false
	}
	if !ok {
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: "duplicate request"})
		return false
	}
	return true
}

func (h *HTTPHandler) respond(w http.ResponseWriter, r *http.Request, status int, data any, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, status, data)
}

func (h *HTTPHandler) respondEmpty(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var nf *domain.NotFoundError
	switch {
	case errors.As(err, &nf):
		writeJSON(w, http.StatusNotFound, nf)
	case errors.Is(err, stable.ErrRecordTooLarge):
		writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{Error: err.Error()})
	case errors.Is(err, stable.ErrUnreadableRecord), errors.Is(err, domain.ErrInvalidTransactionType):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	default:
		h.log.Errorw("request failed", "request_id", r.Header.Get(requestIDHeader),
			"method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
