package contago

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

type balanceJSONResp struct {
	Balance decimal.Decimal `json:"balance"`
}

type clientJSONResp struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type accountJSONResp struct {
	Branch string `json:"branch"`
	Number uint64 `json:"number"`
}

func NewHTTPHandler(svc Service, log *zerolog.Logger) http.Handler {
	hndlr := &httpHandler{
		Svc: svc,
		Log: log,
	}
	mux := chi.NewMux()
	mux.NotFound(HTTPNotFound)
	mux.Get("/accounts", hndlr.ListAccounts)
	mux.Route("/clients", func(r chi.Router) {
		r.Post("/", hndlr.RegisterClient)
		r.Route("/{clientID}", func(rr chi.Router) {
			rr.Post("/accounts", hndlr.OpenAccount)
			rr.Route("/accounts/{acctIdx:[0-9]+}", func(rrr chi.Router) {
				rrr.Post("/deposit", hndlr.Deposit)
				rrr.Post("/withdraw", hndlr.Withdraw)
				rrr.Get("/balance", hndlr.Balance)
				rrr.Get("/statement", hndlr.Statement)
			})
		})
	})

	return mux
}

type httpHandler struct {
	Svc Service
	Log *zerolog.Logger
}

func (h *httpHandler) RegisterClient(w http.ResponseWriter, r *http.Request) {
	buf, err := io.ReadAll(r.Body)
	defer r.Body.Close()
	if err != nil {
		h.Log.Err(err).Str("method", "register").Msg("error reading HTTP request")
		WriteHTTPError(w, ErrInternalServer)
		return
	}
	var req RegisterClientReq
	if err = json.Unmarshal(buf, &req); err != nil {
		h.Log.Err(err).Str("method", "register").Msg("error unmarshalling JSON")
		WriteHTTPError(w, ErrBadRequest{Fields: map[string]string{"request body": "malformed JSON"}})
		return
	}
	cl, err := h.Svc.RegisterClient(req)
	if err != nil {
		WriteHTTPError(w, err)
		return
	}

	resp := clientJSONResp{ID: cl.ID, Name: cl.Name}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err = json.NewEncoder(w).Encode(resp); err != nil {
		h.Log.Err(err).Str("method", "register").Msg("error encoding response")
	}
}

func (h *httpHandler) OpenAccount(w http.ResponseWriter, r *http.Request) {
	req := OpenAccountReq{ClientID: chi.URLParam(r, "clientID")}
	acct, err := h.Svc.OpenAccount(req)
	if err != nil {
		WriteHTTPError(w, err)
		return
	}

	resp := accountJSONResp{Branch: acct.Branch(), Number: acct.Number()}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err = json.NewEncoder(w).Encode(resp); err != nil {
		h.Log.Err(err).Str("method", "open_account").Msg("error encoding response")
	}
}

func (h *httpHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.charge(w, r, "deposit", h.Svc.Deposit)
}

func (h *httpHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.charge(w, r, "withdraw", h.Svc.Withdraw)
}

func (h *httpHandler) charge(w http.ResponseWriter, r *http.Request, method string, op func(ChargeReq) (*decimal.Decimal, error)) {
	buf, err := io.ReadAll(r.Body)
	defer r.Body.Close()
	if err != nil {
		h.Log.Err(err).Str("method", method).Msg("error reading HTTP request")
		WriteHTTPError(w, ErrInternalServer)
		return
	}
	var req ChargeReq
	if err = json.Unmarshal(buf, &req); err != nil {
		h.Log.Err(err).Str("method", method).Msg("error unmarshalling JSON")
		WriteHTTPError(w, ErrBadRequest{Fields: map[string]string{"request body": "malformed JSON"}})
		return
	}
	req.ClientID = chi.URLParam(r, "clientID")
	idx, err := strconv.Atoi(chi.URLParam(r, "acctIdx"))
	if err != nil {
		h.Log.Err(err).Str("method", method).Msg("error parsing account index")
		WriteHTTPError(w, ErrBadRequest{Fields: map[string]string{"acctIdx": "invalid format"}})
		return
	}
	req.AccountIndex = idx

	bal, err := op(req)
	if err != nil {
		WriteHTTPError(w, err)
		return
	}

	resp := balanceJSONResp{Balance: *bal}
	w.Header().Set("Content-Type", "application/json")
	if err = json.NewEncoder(w).Encode(resp); err != nil {
		h.Log.Err(err).Str("method", method).Msg("error encoding response")
	}
}

func (h *httpHandler) Balance(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.Atoi(chi.URLParam(r, "acctIdx"))
	if err != nil {
		h.Log.Err(err).Str("method", "balance").Msg("error parsing account index")
		WriteHTTPError(w, ErrBadRequest{Fields: map[string]string{"acctIdx": "invalid format"}})
		return
	}
	req := BalanceReq{
		ClientID:     chi.URLParam(r, "clientID"),
		AccountIndex: idx,
	}
	bal, err := h.Svc.Balance(req)
	if err != nil {
		WriteHTTPError(w, err)
		return
	}

	resp := balanceJSONResp{Balance: *bal}
	w.Header().Set("Content-Type", "application/json")
	if err = json.NewEncoder(w).Encode(resp); err != nil {
		h.Log.Err(err).Str("method", "balance").Msg("error encoding response")
	}
}

func (h *httpHandler) Statement(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.Atoi(chi.URLParam(r, "acctIdx"))
	if err != nil {
		h.Log.Err(err).Str("method", "statement").Msg("error parsing account index")
		WriteHTTPError(w, ErrBadRequest{Fields: map[string]string{"acctIdx": "invalid format"}})
		return
	}
	req := StatementReq{
		ClientID:     chi.URLParam(r, "clientID"),
		AccountIndex: idx,
		Format:       r.URL.Query().Get("format"),
	}

	// rendered into a buffer first so a failure can still produce an error
	// response with the right status
	var body bytes.Buffer
	if err = h.Svc.Statement(&body, req); err != nil {
		WriteHTTPError(w, err)
		return
	}

	if req.Format == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	} else {
		w.Header().Set("Content-Type", "application/pdf")
	}
	if _, err = w.Write(body.Bytes()); err != nil {
		h.Log.Err(err).Str("method", "statement").Msg("error writing response")
	}
}

func (h *httpHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	seq, err := h.Svc.ListAccounts()
	if err != nil {
		WriteHTTPError(w, err)
		return
	}

	sums := []AccountSummary{}
	for sm := range seq {
		sums = append(sums, sm)
	}
	w.Header().Set("Content-Type", "application/json")
	if err = json.NewEncoder(w).Encode(sums); err != nil {
		h.Log.Err(err).Str("method", "list_accounts").Msg("error encoding response")
	}
}

func WriteHTTPError(w http.ResponseWriter, err error) {
	var ne error
	defer func() {
		if ne != nil {
			log.Error().
				Err(ne).
				Msg("error response encoding failed")
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	errbr := &ErrBadRequest{}
	switch {
	case errors.Is(err, ErrClientNotFound), errors.Is(err, ErrAccountNotFound):
		w.WriteHeader(http.StatusNotFound)
		ne = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
	case errors.Is(err, ErrDuplicateClient):
		w.WriteHeader(http.StatusConflict)
		ne = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
	case errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrLimitExceeded),
		errors.Is(err, ErrWithdrawalCountExceeded),
		errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrNoAccounts),
		errors.Is(err, ErrAccountIndexOutOfRange):
		w.WriteHeader(http.StatusUnprocessableEntity)
		ne = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
	case errors.As(err, errbr):
		w.WriteHeader(http.StatusBadRequest)
		ne = json.NewEncoder(w).Encode(errbr)
	case errors.Is(err, ErrOverCapacity):
		w.WriteHeader(http.StatusServiceUnavailable)
		ne = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
	default:
		w.WriteHeader(http.StatusInternalServerError)
		ne = json.NewEncoder(w).Encode(map[string]string{"message": "server error"})
	}
}

func HTTPNotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	resp := map[string]string{
		"path": r.URL.Path,
	}
	json.NewEncoder(w).Encode(resp)
}
