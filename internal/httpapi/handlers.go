package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"issuer-core/internal/domain"
	"issuer-core/internal/store"
)

type Handlers struct {
	st *store.Store
}

func NewHandlers(st *store.Store) *Handlers { return &Handlers{st: st} }

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

func httpStatusForErr(err error) int {
	switch {
	case err == nil:
		return http.StatusOK

	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrUnsupportedCurrency),
		errors.Is(err, domain.ErrSecurity):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrState),
		errors.Is(err, domain.ErrPinAlreadySet),
		errors.Is(err, domain.ErrPinNotSet):
		return http.StatusConflict
	case errors.Is(err, domain.ErrIncorrectPin):
		return http.StatusForbidden

	// Context / timeouts
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout

	// ErrFeeScheduleMissing and persistence failures land here: server
	// faults, not user errors.
	default:
		return http.StatusInternalServerError
	}
}

func publicErrMessage(code int, err error) string {
	// Don't leak internals on 5xx.
	if code >= 500 {
		return "internal error"
	}
	return err.Error()
}

func replyErr(w http.ResponseWriter, err error) {
	code := httpStatusForErr(err)
	if code >= 500 {
		log.Printf("[fault] %v", err)
	}
	writeErr(w, code, publicErrMessage(code, err))
}

func correlationID(r *http.Request) string {
	if corr := strings.TrimSpace(r.Header.Get("X-Correlation-Id")); corr != "" {
		return corr
	}
	return uuid.New().String()
}

func authorizeResponse(dec domain.Decision) domain.AuthorizeResponse {
	if !dec.Approved {
		return domain.AuthorizeResponse{Declined: true, Reason: string(dec.Reason)}
	}
	return domain.AuthorizeResponse{
		Approved:      true,
		AmountDebited: dec.ConvertedAmount.StringFixed(2),
		FeeAmount:     dec.Fee.StringFixed(2),
		TotalDebit:    dec.TotalDebit.StringFixed(2),
		BalanceAfter:  dec.NewBalance.StringFixed(2),
	}
}

// POST /v1/authorizations
func (h *Handlers) Authorize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req domain.AuthorizeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	dec, err := h.st.AuthorizeDebit(ctx, req, correlationID(r))
	if err != nil {
		replyErr(w, err)
		return
	}

	// Expected declines are structured results, not transport errors; the
	// two pre-state reasons still get their natural status codes.
	code := http.StatusOK
	switch dec.Reason {
	case domain.ReasonInvalidRequest:
		code = http.StatusBadRequest
	case domain.ReasonNotFound:
		code = http.StatusNotFound
	}
	writeJSON(w, code, authorizeResponse(dec))
}

// POST /v1/deposits
func (h *Handlers) Deposit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req domain.DepositRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	newBalance, err := h.st.Deposit(ctx, req.AccountNumber, req.Amount, req.CurrencyCode, correlationID(r))
	if err != nil {
		replyErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, domain.DepositResponse{NewBalance: newBalance.StringFixed(2)})
}

// CardPinByPath dispatches the PIN lifecycle routes:
//
//	POST /v1/cards/{external_id}/pin         set
//	PUT  /v1/cards/{external_id}/pin         change
//	POST /v1/cards/{external_id}/pin/verify  verify
func (h *Handlers) CardPinByPath(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/cards/")
	parts := strings.Split(path, "/")

	switch {
	case len(parts) == 2 && parts[1] == "pin":
		switch r.Method {
		case http.MethodPost:
			h.setPin(w, r, parts[0])
		case http.MethodPut:
			h.changePin(w, r, parts[0])
		default:
			writeErr(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	case len(parts) == 3 && parts[1] == "pin" && parts[2] == "verify":
		if r.Method != http.MethodPost {
			writeErr(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.verifyPin(w, r, parts[0])
	default:
		writeErr(w, http.StatusNotFound, "not found")
	}
}

func (h *Handlers) setPin(w http.ResponseWriter, r *http.Request, externalID string) {
	var req domain.SetPinRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.st.SetPin(ctx, externalID, req.ClearPin, correlationID(r)); err != nil {
		replyErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "pin set"})
}

func (h *Handlers) changePin(w http.ResponseWriter, r *http.Request, externalID string) {
	var req domain.ChangePinRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.st.ChangePin(ctx, externalID, req.CurrentPinBlock, req.NewClearPin, correlationID(r)); err != nil {
		replyErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "pin changed"})
}

func (h *Handlers) verifyPin(w http.ResponseWriter, r *http.Request, externalID string) {
	var req domain.VerifyPinRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	verified, err := h.st.VerifyPin(ctx, externalID, req.CurrentPinBlock)
	if err != nil {
		replyErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.VerifyPinResponse{Verified: verified})
}
