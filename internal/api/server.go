package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"coinbot/internal/config"
	"coinbot/internal/economy"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type contextKey string

const userContextKey contextKey = "user"

// UserHeader carries the platform-supplied opaque user id.
const UserHeader = "X-User-ID"

// Error codes sent alongside the message on refusals a client may need to
// act on. Rate limiting and in-flight keys are worth retrying; a cooldown is
// not.
const (
	CodeRateLimited = "rate_limited"
	CodeInFlight    = "in_flight"
	CodeCooldown    = "cooldown"
)

type Server struct {
	cfg     config.BotConfig
	log     *slog.Logger
	engine  *economy.Engine
	limiter *userLimiter
	idem    *idempotencyStore
	mux     *chi.Mux
}

func New(cfg config.BotConfig, logger *slog.Logger, engine *economy.Engine) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:     cfg,
		log:     logger,
		engine:  engine,
		limiter: newUserLimiter(cfg.APIRatePerSec, cfg.APIRateBurst),
		idem:    newIdempotencyStore(24 * time.Hour),
		mux:     chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.tokenMiddleware)
		r.Get("/shop", s.handleShop)
		r.Get("/jobs", s.handleJobs)
		r.Get("/leaderboard", s.handleLeaderboard)

		r.Group(func(r chi.Router) {
			r.Use(s.userMiddleware)
			r.Use(s.rateLimitMiddleware)
			r.Use(s.idempotencyMiddleware)

			r.Get("/balance", s.handleBalance)
			r.Get("/portfolio", s.handlePortfolio)
			r.Get("/inventory", s.handleInventory)
			r.Get("/achievements", s.handleAchievements)
			r.Get("/cooldowns", s.handleCooldowns)

			r.Post("/earn", s.handleEarn)
			r.Post("/buy", s.handleBuy)
			r.Post("/daily", s.handleDaily)
			r.Post("/jobs/{name}/work", s.handleWork)
			r.Post("/collect", s.handleCollect)
			r.Post("/invest", s.handleInvest)
			r.Post("/games/{game}", s.handleGame)

			r.Get("/trades/pending", s.handlePendingTrades)
			r.Post("/trades", s.handleProposeTrade)
			r.Post("/trades/accept", s.handleAcceptTrade)
			r.Delete("/trades", s.handleCancelTrade)
		})
	})
}

func (s *Server) tokenMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.APIToken != "" {
			token := bearerToken(r.Header.Get("Authorization"))
			if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.APIToken)) != 1 {
				writeError(w, http.StatusUnauthorized, "invalid bearer token")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) userMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(UserHeader))
		if userID == "" {
			writeError(w, http.StatusUnauthorized, "missing "+UserHeader+" header")
			return
		}
		ctx := context.WithValue(r.Context(), userContextKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userFromContext(ctx context.Context) string {
	userID, _ := ctx.Value(userContextKey).(string)
	return userID
}

func (s *Server) handleShop(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": s.engine.Shop()})
}

func (s *Server) handleJobs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":             s.engine.Jobs(),
		"cooldown_seconds": int64(s.engine.Gate().Duration(economy.ActionWork).Seconds()),
	})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 || v > 100 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = v
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": s.engine.Leaderboard(limit)})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	userID := userFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":        userID,
		"balance_micros": s.engine.Balance(userID),
	})
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Portfolio(userFromContext(r.Context())))
}

func (s *Server) handleInventory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"inventory": s.engine.Inventory(userFromContext(r.Context()))})
}

func (s *Server) handleAchievements(w http.ResponseWriter, r *http.Request) {
	achievements := s.engine.ListAchievements(userFromContext(r.Context()))
	if achievements == nil {
		achievements = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"achievements": achievements})
}

func (s *Server) handleCooldowns(w http.ResponseWriter, r *http.Request) {
	userID := userFromContext(r.Context())
	out := map[string]any{}
	for _, kind := range []economy.ActionKind{economy.ActionDaily, economy.ActionWork} {
		ok, remaining := s.engine.Cooldown(userID, kind)
		out[string(kind)] = map[string]any{
			"eligible":          ok,
			"remaining_seconds": int64(math.Ceil(remaining.Seconds())),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleEarn(w http.ResponseWriter, r *http.Request) {
	var in struct {
		AmountMicros int64 `json:"amount_micros"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	balance, err := s.engine.Earn(userFromContext(r.Context()), in.AmountMicros)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"amount_micros":  in.AmountMicros,
		"balance_micros": balance,
	})
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Item     string `json:"item"`
		Quantity int64  `json:"quantity"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.engine.Purchase(userFromContext(r.Context()), in.Item, in.Quantity)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDaily(w http.ResponseWriter, r *http.Request) {
	out, err := s.engine.ClaimDaily(userFromContext(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleWork(w http.ResponseWriter, r *http.Request) {
	out, err := s.engine.WorkJob(userFromContext(r.Context()), chi.URLParam(r, "name"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCollect(w http.ResponseWriter, r *http.Request) {
	out, err := s.engine.CollectAllJobs(userFromContext(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleInvest(w http.ResponseWriter, r *http.Request) {
	var in struct {
		AmountMicros int64 `json:"amount_micros"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.engine.Invest(userFromContext(r.Context()), in.AmountMicros)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGame(w http.ResponseWriter, r *http.Request) {
	out, err := s.engine.PlayMiniGame(userFromContext(r.Context()), chi.URLParam(r, "game"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePendingTrades(w http.ResponseWriter, r *http.Request) {
	userID := userFromContext(r.Context())
	incoming := s.engine.PendingTrades(userID)
	if incoming == nil {
		incoming = []economy.PendingTrade{}
	}
	out := map[string]any{"incoming": incoming}
	if t, ok := s.engine.Escrow().Outgoing(userID); ok {
		out["outgoing"] = t
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleProposeTrade(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Target   string `json:"target"`
		Item     string `json:"item"`
		Quantity int64  `json:"quantity"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(in.Target) == "" {
		writeError(w, http.StatusBadRequest, "target is required")
		return
	}
	out, err := s.engine.ProposeTrade(userFromContext(r.Context()), strings.TrimSpace(in.Target), in.Item, in.Quantity)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleAcceptTrade(w http.ResponseWriter, r *http.Request) {
	out, err := s.engine.AcceptTrade(userFromContext(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCancelTrade(w http.ResponseWriter, r *http.Request) {
	out, err := s.engine.CancelTrade(userFromContext(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func writeDomainError(w http.ResponseWriter, err error) {
	var cd *economy.CooldownError
	switch {
	case errors.As(err, &cd):
		secs := int64(math.Ceil(cd.Remaining.Seconds()))
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":             err.Error(),
			"code":              CodeCooldown,
			"remaining_seconds": secs,
		})
	case errors.Is(err, ErrDuplicateIdempotency):
		w.Header().Set("Retry-After", "1")
		writeCodedError(w, http.StatusConflict, CodeInFlight, err.Error())
	case errors.Is(err, economy.ErrInsufficientFunds), errors.Is(err, economy.ErrInsufficientInventory):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, economy.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, economy.ErrUnknownItem), errors.Is(err, economy.ErrUnknownJob),
		errors.Is(err, economy.ErrUnknownGame), errors.Is(err, economy.ErrNoPendingTrade):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}

// writeCodedError adds a machine-readable code so clients can tell a
// transient refusal from a final one that shares its status.
func writeCodedError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message), "code": code})
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
