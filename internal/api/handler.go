package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/kelreel/sonichash/internal/chat"
	clierr "github.com/kelreel/sonichash/internal/errors"
	"github.com/kelreel/sonichash/internal/llm"
	"github.com/kelreel/sonichash/internal/persona"
	"github.com/kelreel/sonichash/internal/portfolio"
	"github.com/kelreel/sonichash/internal/prices"
	"github.com/kelreel/sonichash/internal/registry"
)

const maxBodyBytes = 1 << 20

type Responder interface {
	Respond(ctx context.Context, req chat.Request) (chat.Response, error)
}

type WalletReader interface {
	Snapshot(ctx context.Context, address string) (*portfolio.Snapshot, error)
}

type Handler struct {
	personas persona.Store
	chat     Responder
	wallets  WalletReader
	prices   prices.Oracle
	auth     Authenticator
	log      zerolog.Logger
}

func NewHandler(personas persona.Store, responder Responder, wallets WalletReader, oracle prices.Oracle, auth Authenticator, logger zerolog.Logger) *Handler {
	if auth == nil {
		auth = Anonymous{}
	}
	return &Handler{
		personas: personas,
		chat:     responder,
		wallets:  wallets,
		prices:   oracle,
		auth:     auth,
		log:      logger.With().Str("component", "api").Logger(),
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.handleHealth)
	mux.HandleFunc("POST /api/agents/{id}/chat", h.handleChat)
	mux.HandleFunc("GET /api/portfolio/{address}", h.handlePortfolio)
	mux.HandleFunc("GET /api/prices", h.handlePrices)
}

// Routes returns a mux with every route registered.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	h.Register(mux)
	return mux
}

type chatBody struct {
	Message          *llm.Message  `json:"message"`
	PreviousMessages []llm.Message `json:"previousMessages"`
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var body chatBody
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if body.Message == nil {
		writeError(w, http.StatusBadRequest, "Message is required")
		return
	}
	if err := chat.ValidateHistory(body.PreviousMessages); err != nil {
		h.fail(w, err)
		return
	}

	caller, err := h.auth.Authenticate(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	p, err := h.personas.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if clierr.CodeOf(err) == clierr.CodeNotFound {
			writeError(w, http.StatusNotFound, "Agent not found")
			return
		}
		h.fail(w, err)
		return
	}
	if !persona.CanAccess(p, caller) {
		writeError(w, http.StatusForbidden, "You are not authorized to chat with this agent")
		return
	}

	resp, err := h.chat.Respond(r.Context(), chat.Request{
		Persona: p,
		Message: *body.Message,
		History: body.PreviousMessages,
		Caller:  caller,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	if h.wallets == nil {
		writeError(w, http.StatusServiceUnavailable, "portfolio reader is not configured")
		return
	}
	snap, err := h.wallets.Snapshot(r.Context(), r.PathValue("address"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) handlePrices(w http.ResponseWriter, r *http.Request) {
	if h.prices == nil {
		writeError(w, http.StatusServiceUnavailable, "price oracle is not configured")
		return
	}
	symbols := registry.MarketSymbols
	if raw := strings.TrimSpace(r.URL.Query().Get("symbols")); raw != "" {
		symbols = nil
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				symbols = append(symbols, s)
			}
		}
	}
	quotes := h.prices.Prices(r.Context(), symbols)
	writeJSON(w, http.StatusOK, prices.Sorted(quotes, symbols))
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// fail maps typed errors to statuses. Terminal chat failures expose only the
// generic message.
func (h *Handler) fail(w http.ResponseWriter, err error) {
	status := clierr.HTTPStatus(err)
	msg := err.Error()
	if cErr, ok := clierr.As(err); ok {
		msg = cErr.Message
	}
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Int("status", status).Msg("request failed")
	}
	writeError(w, status, msg)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
