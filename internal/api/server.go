package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"streamerstock/internal/auth"
	"streamerstock/internal/game"
	"streamerstock/internal/session"
	"streamerstock/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Game is the session surface the HTTP layer drives.
type Game interface {
	State() session.State
	Authenticate(ctx context.Context) (session.State, error)
	Logout(ctx context.Context) (session.State, error)
	Buy(commodityID string, quantity int64) (session.State, error)
	Sell(commodityID string, quantity int64) (session.State, error)
	Travel(locationID string) (session.State, error)
	PurchaseUpgrade(upgradeID string) (session.State, error)
	Events(ctx context.Context, limit int) ([]game.GameEvent, error)
	Leaderboard(ctx context.Context, limit int) ([]game.LeaderboardRow, error)
}

var _ Game = (*session.Session)(nil)

type Server struct {
	log  *slog.Logger
	game Game
	mux  *chi.Mux
}

func New(logger *slog.Logger, g Game) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		log:  logger,
		game: g,
		mux:  chi.NewRouter(),
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

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/v1", func(r chi.Router) {
		// Device-code sign-in waits for the viewer to approve, so no request timeout.
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			r.Get("/state", s.handleState)
			r.Get("/leaderboard", s.handleLeaderboard)

			r.Group(func(r chi.Router) {
				r.Use(s.requireSignIn)
				r.Post("/auth/logout", s.handleLogout)
				r.Post("/trade/buy", s.handleBuy)
				r.Post("/trade/sell", s.handleSell)
				r.Post("/travel", s.handleTravel)
				r.Post("/upgrades/{id}/purchase", s.handlePurchaseUpgrade)
				r.Get("/events", s.handleEvents)
			})
		})
	})
}

func (s *Server) requireSignIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.game.State().Authenticated {
			writeError(w, http.StatusUnauthorized, "sign in first")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"state": s.game.State()})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	st, err := s.game.Authenticate(r.Context())
	if err != nil {
		s.log.Warn("login failed", "err", err, "request_id", middleware.GetReqID(r.Context()))
		writeDomainError(w, err, st)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"state": st})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	st, err := s.game.Logout(r.Context())
	if err != nil {
		writeDomainError(w, err, st)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"state": st})
}

type tradeRequest struct {
	CommodityID string `json:"commodity_id"`
	Quantity    int64  `json:"quantity"`
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	var in tradeRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeIntent(w, r, func() (session.State, error) {
		return s.game.Buy(strings.TrimSpace(in.CommodityID), in.Quantity)
	})
}

func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	var in tradeRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeIntent(w, r, func() (session.State, error) {
		return s.game.Sell(strings.TrimSpace(in.CommodityID), in.Quantity)
	})
}

func (s *Server) handleTravel(w http.ResponseWriter, r *http.Request) {
	var in struct {
		LocationID string `json:"location_id"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeIntent(w, r, func() (session.State, error) {
		return s.game.Travel(strings.TrimSpace(in.LocationID))
	})
}

func (s *Server) handlePurchaseUpgrade(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.writeIntent(w, r, func() (session.State, error) {
		return s.game.PurchaseUpgrade(id)
	})
}

func (s *Server) writeIntent(w http.ResponseWriter, r *http.Request, intent func() (session.State, error)) {
	st, err := intent()
	if err != nil {
		if !game.IsRejection(err) {
			s.log.Error("intent failed", "err", err, "request_id", middleware.GetReqID(r.Context()))
		}
		writeDomainError(w, err, st)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"state": st})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.Events(r.Context(), queryLimit(r))
	if err != nil {
		writeDomainError(w, err, s.game.State())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.Leaderboard(r.Context(), queryLimit(r))
	if err != nil {
		writeDomainError(w, err, s.game.State())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": out})
}

func writeDomainError(w http.ResponseWriter, err error, st session.State) {
	switch {
	case game.IsRejection(err):
		writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error(), "state": st})
	case errors.Is(err, session.ErrNotAuthenticated):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, auth.ErrAuthFailed):
		writeError(w, http.StatusBadGateway, err.Error()+"; try signing in again")
	case errors.Is(err, store.ErrNotReady), errors.Is(err, store.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, "progress storage is unavailable")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeError(w, http.StatusGatewayTimeout, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func queryLimit(r *http.Request) int {
	n, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("limit")))
	if err != nil || n < 0 {
		return 0
	}
	return n
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
