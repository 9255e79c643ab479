// Package api exposes the game and the WhatsApp account login over HTTP.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/user/mafia-suspicion/config"
	"github.com/user/mafia-suspicion/internal/interfaces"
	"github.com/user/mafia-suspicion/internal/types"
	"github.com/user/mafia-suspicion/internal/whatsapp"
	"go.uber.org/zap"
)

// QRGenerator links a WhatsApp account by QR code
type QRGenerator interface {
	GenerateQRCode(sessionID, phoneNumber string) (string, error)
	QRDir() string
}

// AccountStore lists and removes linked WhatsApp accounts
type AccountStore interface {
	ListAccounts() ([]whatsapp.LinkedAccount, error)
	DeleteAccount(phoneNumber, sessionID string) error
}

// Deps are the collaborators served by the router. QR and Accounts are
// optional; their routes are only mounted when set.
type Deps struct {
	Games    interfaces.GameManager
	QR       QRGenerator
	Accounts AccountStore
	Logger   *zap.Logger
}

type handler struct {
	Deps
}

// NewRouter builds the HTTP handler
func NewRouter(cfg config.ServerConfig, deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	h := &handler{Deps: deps}

	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(timeout))

	router.Get("/health", h.health)
	router.Get("/healthcheck", h.health)

	router.Group(func(r chi.Router) {
		if cfg.RateLimit > 0 {
			r.Use(NewRateLimiter(cfg.RateLimit, cfg.RateLimitBurst).Middleware())
		}

		r.Route("/games", func(r chi.Router) {
			r.Get("/", h.listGames)
			r.Route("/{id}", func(r chi.Router) {
				r.Post("/", h.createLobby)
				r.Get("/", h.snapshot)
				r.Get("/suspicion/{observer}", h.suspicion)
				r.Post("/join", h.join)
				r.Post("/leave", h.leave)
				r.Post("/bots", h.addBots)
				r.Post("/start", h.start)
				r.Post("/night", h.nightAction)
				r.Post("/discussion", h.discussion)
				r.Post("/vote", h.vote)
				r.Post("/advance", h.advance)
				r.Post("/end", h.end)
			})
		})

		if deps.QR != nil {
			r.Post("/qr", h.generateQR)
			r.Get("/qrcodes/*", func(w http.ResponseWriter, r *http.Request) {
				http.StripPrefix("/qrcodes/", http.FileServer(http.Dir(deps.QR.QRDir()))).ServeHTTP(w, r)
			})
		}
		if deps.Accounts != nil {
			r.Get("/accounts", h.listAccounts)
			r.Delete("/accounts/{phone_number}/{session_id}", h.deleteAccount)
		}
	})

	return router
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	h.Logger.Debug("Health check request received",
		zap.String("path", r.URL.Path),
		zap.String("remote_addr", r.RemoteAddr))
	w.Write([]byte("OK"))
}

func decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errInvalidRequest, err)
	}
	return nil
}

func (h *handler) listGames(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"sessions": h.Games.ListSessions()})
}

func (h *handler) createLobby(w http.ResponseWriter, r *http.Request) {
	var host types.Identity
	if err := decode(r, &host); err != nil {
		writeError(w, err)
		return
	}
	snap, err := h.Games.CreateLobby(r.Context(), chi.URLParam(r, "id"), host)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (h *handler) snapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Games.Snapshot(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *handler) suspicion(w http.ResponseWriter, r *http.Request) {
	view, err := h.Games.Suspicion(chi.URLParam(r, "id"), chi.URLParam(r, "observer"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// dispatch decodes a request body, converts it to a command and applies it
func dispatch[T any](h *handler, convert func(T) (types.Command, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req T
		if err := decode(r, &req); err != nil {
			writeError(w, err)
			return
		}
		cmd, err := convert(req)
		if err != nil {
			writeError(w, err)
			return
		}

		sessionID := chi.URLParam(r, "id")
		res, err := h.Games.Dispatch(r.Context(), sessionID, cmd)
		if err != nil {
			h.Logger.Debug("Command rejected",
				zap.String("session_id", sessionID),
				zap.String("command", cmd.Name()),
				zap.Error(err))
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

type requesterRequest struct {
	RequesterID string `json:"requester_id"`
}

type playerRequest struct {
	PlayerID string `json:"player_id"`
}

type botsRequest struct {
	RequesterID string        `json:"requester_id"`
	Count       int           `json:"count"`
	Mode        types.BotMode `json:"mode"`
}

type actionRequest struct {
	ActorID  string           `json:"actor_id"`
	IssuerID string           `json:"issuer_id,omitempty"`
	Kind     types.ActionKind `json:"kind,omitempty"`
	TargetID string           `json:"target_id,omitempty"`
	Skip     bool             `json:"skip,omitempty"`
}

func requireField(value, name string) error {
	if value == "" {
		return fmt.Errorf("%w: %s is required", errInvalidRequest, name)
	}
	return nil
}

func (h *handler) join(w http.ResponseWriter, r *http.Request) {
	dispatch(h, func(p types.Identity) (types.Command, error) {
		if err := requireField(p.ID, "id"); err != nil {
			return nil, err
		}
		return types.JoinCommand{Player: p}, nil
	})(w, r)
}

func (h *handler) leave(w http.ResponseWriter, r *http.Request) {
	dispatch(h, func(req playerRequest) (types.Command, error) {
		return types.LeaveCommand{PlayerID: req.PlayerID}, requireField(req.PlayerID, "player_id")
	})(w, r)
}

func (h *handler) addBots(w http.ResponseWriter, r *http.Request) {
	dispatch(h, func(req botsRequest) (types.Command, error) {
		mode := req.Mode
		if mode == "" {
			mode = types.BotModeAuto
		}
		return types.AddBotsCommand{RequesterID: req.RequesterID, Count: req.Count, Mode: mode}, nil
	})(w, r)
}

func (h *handler) start(w http.ResponseWriter, r *http.Request) {
	dispatch(h, func(req requesterRequest) (types.Command, error) {
		return types.StartCommand{RequesterID: req.RequesterID}, nil
	})(w, r)
}

func (h *handler) advance(w http.ResponseWriter, r *http.Request) {
	dispatch(h, func(req requesterRequest) (types.Command, error) {
		return types.AdvanceCommand{RequesterID: req.RequesterID}, nil
	})(w, r)
}

func (h *handler) nightAction(w http.ResponseWriter, r *http.Request) {
	dispatch(h, func(req actionRequest) (types.Command, error) {
		if err := requireField(req.TargetID, "target_id"); err != nil {
			return nil, err
		}
		return types.NightActionCommand{ActorID: req.ActorID, IssuerID: req.IssuerID, TargetID: req.TargetID}, nil
	})(w, r)
}

func (h *handler) discussion(w http.ResponseWriter, r *http.Request) {
	dispatch(h, func(req actionRequest) (types.Command, error) {
		return types.DiscussionCommand{ActorID: req.ActorID, IssuerID: req.IssuerID, Kind: req.Kind, TargetID: req.TargetID}, nil
	})(w, r)
}

func (h *handler) vote(w http.ResponseWriter, r *http.Request) {
	dispatch(h, func(req actionRequest) (types.Command, error) {
		vote := types.Skip()
		if !req.Skip {
			if err := requireField(req.TargetID, "target_id"); err != nil {
				return nil, err
			}
			vote = types.Cast(req.TargetID)
		}
		return types.VoteCommand{ActorID: req.ActorID, IssuerID: req.IssuerID, Vote: vote}, nil
	})(w, r)
}

func (h *handler) end(w http.ResponseWriter, r *http.Request) {
	var req requesterRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.Games.EndGame(r.Context(), chi.URLParam(r, "id"), req.RequesterID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) generateQR(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PhoneNumber string `json:"phone_number"`
	}
	if err := decode(r, &req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if req.PhoneNumber == "" {
		http.Error(w, "phone_number is required", http.StatusBadRequest)
		return
	}

	sessionID := uuid.New().String()

	qrCode, err := h.QR.GenerateQRCode(sessionID, req.PhoneNumber)
	if err != nil {
		h.Logger.Error("Failed to generate QR code",
			zap.String("phone_number", req.PhoneNumber),
			zap.Error(err))
		http.Error(w, "Failed to generate QR code", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"qr_code":    qrCode,
		"session_id": sessionID,
		"image":      fmt.Sprintf("/qrcodes/%s_%s.png", req.PhoneNumber, sessionID),
	})
}

func (h *handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.Accounts.ListAccounts()
	if err != nil {
		h.Logger.Error("Failed to list accounts", zap.Error(err))
		http.Error(w, "Failed to list accounts", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (h *handler) deleteAccount(w http.ResponseWriter, r *http.Request) {
	phoneNumber := chi.URLParam(r, "phone_number")
	sessionID := chi.URLParam(r, "session_id")

	if err := h.Accounts.DeleteAccount(phoneNumber, sessionID); err != nil {
		h.Logger.Error("Failed to delete account",
			zap.String("phone_number", phoneNumber),
			zap.String("session_id", sessionID),
			zap.Error(err))
		http.Error(w, "Failed to delete account", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}
