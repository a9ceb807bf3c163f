package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"exchange_go/internal/domain"

	"github.com/shopspring/decimal"
)

const maxBodyBytes = 1 << 20

type tokenAmountRequest struct {
	Token  string          `json:"token"`
	Amount decimal.Decimal `json:"amount"`
}

type placeOrderRequest struct {
	Type    string          `json:"type"`    // buy | sell
	Product string          `json:"product"` // "A-B"
	Amount  decimal.Decimal `json:"amount"`
	Price   decimal.Decimal `json:"price"`
}

type liquidityRequest struct {
	TokenA  string          `json:"token_a"`
	TokenB  string          `json:"token_b"`
	AmountA decimal.Decimal `json:"amount_a"`
	AmountB decimal.Decimal `json:"amount_b"`
}

type balanceResponse struct {
	User    string          `json:"user"`
	Token   string          `json:"token"`
	Balance decimal.Decimal `json:"balance"`
}

type reserveResponse struct {
	Token   string          `json:"token"`
	Reserve decimal.Decimal `json:"reserve"`
}

type rateResponse struct {
	Pair string          `json:"pair"`
	Rate decimal.Decimal `json:"rate"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type userHandler func(w http.ResponseWriter, r *http.Request, user string)

func (s *Server) withUser(next userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := r.Header.Get(UserHeader)
		if user == "" {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing " + UserHeader + " header"})
			return
		}
		next(w, r, user)
	}
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request, user string) {
	var req tokenAmountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	bal, err := s.exchange.Deposit(r.Context(), user, req.Token, req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{User: user, Token: req.Token, Balance: bal})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request, user string) {
	var req tokenAmountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	bal, err := s.exchange.Withdraw(r.Context(), user, req.Token, req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{User: user, Token: req.Token, Balance: bal})
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request, user string) {
	var req placeOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	order, err := s.exchange.PlaceOrder(r.Context(), user, req.Type, req.Product, req.Amount, req.Price)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (s *Server) handleAddLiquidity(w http.ResponseWriter, r *http.Request, user string) {
	var req liquidityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	pos, err := s.exchange.AddLiquidity(r.Context(), user, req.TokenA, req.TokenB, req.AmountA, req.AmountB)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

func (s *Server) handleRemoveLiquidity(w http.ResponseWriter, r *http.Request, user string) {
	var req liquidityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	pos, err := s.exchange.RemoveLiquidity(r.Context(), user, req.TokenA, req.TokenB)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

func (s *Server) handleFundReserve(w http.ResponseWriter, r *http.Request) {
	var req tokenAmountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	reserve, err := s.exchange.FundReserve(r.Context(), req.Token, req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reserveResponse{Token: req.Token, Reserve: reserve})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request, user string) {
	writeJSON(w, http.StatusOK, s.exchange.Balance(user))
}

func (s *Server) handleOrderBook(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.exchange.OrderBook())
}

func (s *Server) handleLiquidity(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.exchange.Liquidity())
}

func (s *Server) handleExchangeRates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.exchange.ExchangeRates())
}

func (s *Server) handleExchangeRate(w http.ResponseWriter, r *http.Request) {
	pair := r.PathValue("pair")
	rate, err := s.exchange.ExchangeRate(pair)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rateResponse{Pair: pair, Rate: rate})
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusOK, []domain.TradeRecord{})
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid limit"})
			return
		}
		limit = n
	}

	records, err := s.history.ListTrades(r.Context(), r.URL.Query().Get("user"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if records == nil {
		records = []domain.TradeRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleTickers(w http.ResponseWriter, r *http.Request) {
	if product := r.URL.Query().Get("product"); product != "" {
		t, ok := s.tickers.GetData(product)
		if !ok {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "no trades for " + product})
			return
		}
		writeJSON(w, http.StatusOK, t)
		return
	}
	writeJSON(w, http.StatusOK, s.tickers.GetAllData())
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

// statusFor maps core errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNoSuchPosition):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDivideByZero):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInsufficientBalance), domain.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("Request failed", slog.Any("error", err))
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to encode response", slog.Any("error", err))
	}
}
