// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cheatgate Contributors

// Package api exposes login, token verification and cheat code redemption
// as JSON over HTTP.
//
// Every domain outcome is a 200 response whose "result" field carries the
// outcome. Undecodable bodies get 400 and store outages get 503, both with
// result "fail".
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/samber/oops"

	"github.com/cheatgate/cheatgate/internal/auth"
	"github.com/cheatgate/cheatgate/internal/redeem"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Authenticator is the login and token verification surface.
type Authenticator interface {
	Login(ctx context.Context, email string) auth.LoginResult
	VerifyToken(token string) auth.VerifyResult
}

// Redeemer applies and inspects cheat code usage.
type Redeemer interface {
	Redeem(ctx context.Context, req redeem.Request) redeem.Result
	Usage(ctx context.Context, req redeem.Request) redeem.UsageResult
}

// HandlerConfig holds dependencies for Handler.
type HandlerConfig struct {
	Auth     Authenticator
	Redeemer Redeemer
	Logger   *slog.Logger
}

// Handler serves the public endpoints.
type Handler struct {
	auth     Authenticator
	redeemer Redeemer
	logger   *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(cfg HandlerConfig) (*Handler, error) {
	if cfg.Auth == nil {
		return nil, oops.Code("API_INVALID_CONFIG").Errorf("authenticator is required")
	}
	if cfg.Redeemer == nil {
		return nil, oops.Code("API_INVALID_CONFIG").Errorf("redeemer is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{auth: cfg.Auth, redeemer: cfg.Redeemer, logger: logger}, nil
}

// Routes returns the router with middleware applied.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(h.accessLog)
	r.Use(instrument)
	r.Use(h.recoverer)

	r.Post("/login", h.login)
	r.Post("/verify-token", h.verifyToken)
	r.Post("/use-cheat", h.useCheat)
	r.Post("/cheat-usage", h.cheatUsage)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, failure{Result: "fail"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, failure{Result: "fail"})
	})
	return r
}

type failure struct {
	Result string `json:"result"`
}

type loginRequest struct {
	Email string `json:"email"`
	// Code is accepted for compatibility and ignored.
	Code string `json:"code,omitempty"`
}

type loginResponse struct {
	Result string `json:"result"`
	Token  string `json:"token,omitempty"`
}

type verifyRequest struct {
	Token string `json:"token"`
}

type verifyResponse struct {
	Result string `json:"result"`
	Email  string `json:"email,omitempty"`
}

type cheatRequest struct {
	Token     string `json:"token"`
	CheatCode string `json:"cheat_code"`
}

type useCheatResponse struct {
	Result  string          `json:"result"`
	Effect  string          `json:"effect,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type usageResponse struct {
	Result      string `json:"result"`
	UsedCount   *int   `json:"used_count,omitempty"`
	AmountLimit *int   `json:"amount_limit,omitempty"`
	Remaining   *int   `json:"remaining,omitempty"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}

	res := h.auth.Login(r.Context(), req.Email)
	resp := loginResponse{Result: res.Outcome.Wire()}
	if res.Outcome == auth.OutcomeOK {
		resp.Token = res.Token
	}
	writeJSON(w, statusFor(res.Outcome == auth.OutcomeUnavailable), resp)
}

func (h *Handler) verifyToken(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !h.decode(w, r, &req) {
		return
	}

	res := h.auth.VerifyToken(req.Token)
	resp := verifyResponse{Result: res.Outcome.Wire()}
	if res.Outcome == auth.OutcomeOK {
		resp.Email = res.Email
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) useCheat(w http.ResponseWriter, r *http.Request) {
	var req cheatRequest
	if !h.decode(w, r, &req) {
		return
	}

	res := h.redeemer.Redeem(r.Context(), redeem.Request{
		Token: tokenFrom(r, req.Token),
		Code:  req.CheatCode,
	})
	resp := useCheatResponse{Result: res.Kind.Wire()}
	if res.Kind == redeem.KindOK {
		resp.Effect = res.Effect
		resp.Payload = res.Payload
	}
	writeJSON(w, statusFor(res.Kind == redeem.KindUnavailable), resp)
}

func (h *Handler) cheatUsage(w http.ResponseWriter, r *http.Request) {
	var req cheatRequest
	if !h.decode(w, r, &req) {
		return
	}

	res := h.redeemer.Usage(r.Context(), redeem.Request{
		Token: tokenFrom(r, req.Token),
		Code:  req.CheatCode,
	})
	resp := usageResponse{Result: res.Kind.Wire()}
	if res.Kind == redeem.KindOK {
		resp.UsedCount = &res.UsedCount
		resp.AmountLimit = &res.AmountLimit
		resp.Remaining = &res.Remaining
	}
	writeJSON(w, statusFor(res.Kind == redeem.KindUnavailable), resp)
}

// tokenFrom prefers the body token and falls back to a Bearer header.
func tokenFrom(r *http.Request, body string) string {
	if body != "" {
		return body
	}
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		status := http.StatusBadRequest
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		h.logger.DebugContext(r.Context(), "rejecting request body",
			"path", r.URL.Path,
			"request_id", RequestIDFrom(r.Context()),
			"error", err)
		writeJSON(w, status, failure{Result: "fail"})
		return false
	}
	return true
}

func statusFor(unavailable bool) int {
	if unavailable {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // client may have gone away
	json.NewEncoder(w).Encode(v)
}
