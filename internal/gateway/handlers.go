package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/andreyvoland980-afk/xrp-analysis-spa/config"
	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/marketdata"
	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/model"
	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/notification"
	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/position"
	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/session"
	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/store/sqlite"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
	maxBodyBytes     = 4096
)

// Controller is the session surface driven by the REST handlers.
type Controller interface {
	Snapshot() *session.Snapshot
	Enter(ctx context.Context, side model.Side) (model.Position, error)
	Close(ctx context.Context) (model.ExitEvent, error)
	Refresh(ctx context.Context) error
	UpdateSettings(ctx context.Context, next session.Settings) error
}

// History reads the journal and tick log.
type History interface {
	Trades(ctx context.Context, limit int) ([]sqlite.TradeRecord, error)
	RecentTicks(ctx context.Context, limit int) ([]model.Tick, error)
}

// Routes holds what RegisterRoutes serves. Only Hub and Session are required.
type Routes struct {
	Hub          *Hub
	Session      Controller
	Fundamentals marketdata.FundamentalsFetcher
	History      History
	Notifier     notification.Notifier
	Health       http.Handler

	// TOTPSecret guards enter and close when set.
	TOTPSecret string
	Start      time.Time
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+totpHeader)
}

// RegisterRoutes registers the WebSocket and REST routes on mux.
func RegisterRoutes(mux *http.ServeMux, rt Routes) {
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[gateway] ws upgrade error: %v", err)
			return
		}
		rt.Hub.HandleWSRequest(conn, r.URL.Query().Get("last_ts"))
	})

	mux.HandleFunc("/api/state", rest(http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, rt.Session.Snapshot())
	}))

	mux.HandleFunc("/api/evaluation", rest(http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
		ev := rt.Session.Snapshot().Evaluation
		if ev == nil {
			writeError(w, http.StatusNotFound, "no evaluation yet")
			return
		}
		writeJSON(w, http.StatusOK, ev)
	}))

	mux.HandleFunc("/api/status", rest(http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, rt.Session.Snapshot().Status)
	}))

	mux.HandleFunc("/api/levels", rest(http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
		ev := rt.Session.Snapshot().Evaluation
		if ev == nil {
			writeError(w, http.StatusNotFound, "no evaluation yet")
			return
		}
		writeJSON(w, http.StatusOK, levelTable(ev))
	}))

	mux.HandleFunc("/api/fundamentals", rest(http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
		if rt.Fundamentals == nil {
			writeError(w, http.StatusNotImplemented, "fundamentals source not configured")
			return
		}
		vs := rt.Session.Snapshot().Status.Settings.VSCurrency
		f, err := rt.Fundamentals.FetchFundamentals(r.Context(), vs)
		if err != nil {
			log.Printf("[gateway] fundamentals: %v", err)
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, f)
	}))

	mux.HandleFunc("/api/position", rest(http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, rt.Session.Snapshot().Position)
	}))

	mux.HandleFunc("/api/position/enter", rest(http.MethodPost, func(w http.ResponseWriter, r *http.Request) {
		var req EnterRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if !rt.authorized(r, req.Code) {
			writeError(w, http.StatusUnauthorized, "invalid or missing TOTP code")
			return
		}
		side := model.Side(strings.ToUpper(string(req.Side)))
		if !side.Tradable() {
			writeError(w, http.StatusBadRequest, "side must be LONG or SHORT")
			return
		}
		pos, err := rt.Session.Enter(r.Context(), side)
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, pos)
	}))

	mux.HandleFunc("/api/position/close", rest(http.MethodPost, func(w http.ResponseWriter, r *http.Request) {
		var req CloseRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if !rt.authorized(r, req.Code) {
			writeError(w, http.StatusUnauthorized, "invalid or missing TOTP code")
			return
		}
		ev, err := rt.Session.Close(r.Context())
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, ev)
	}))

	mux.HandleFunc("/api/settings", rest(http.MethodPost, func(w http.ResponseWriter, r *http.Request) {
		var req SettingsRequest
		if !decodeBody(w, r, &req) {
			return
		}
		next := rt.Session.Snapshot().Status.Settings
		if req.Days != 0 {
			next.Days = req.Days
		}
		if req.VSCurrency != "" {
			next.VSCurrency = strings.ToLower(req.VSCurrency)
		}
		if !config.ValidDays(next.Days) || !config.ValidCurrency(next.VSCurrency) {
			writeError(w, http.StatusBadRequest, "unsupported days or currency")
			return
		}
		if err := rt.Session.UpdateSettings(r.Context(), next); err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, next)
	}))

	mux.HandleFunc("/api/refresh", rest(http.MethodPost, func(w http.ResponseWriter, r *http.Request) {
		if err := rt.Session.Refresh(r.Context()); err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "refreshing"})
	}))

	mux.HandleFunc("/api/trades", rest(http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
		if rt.History == nil {
			writeJSON(w, http.StatusOK, []sqlite.TradeRecord{})
			return
		}
		trades, err := rt.History.Trades(r.Context(), limitParam(r))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if trades == nil {
			trades = []sqlite.TradeRecord{}
		}
		writeJSON(w, http.StatusOK, trades)
	}))

	mux.HandleFunc("/api/ticks", rest(http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
		if rt.History == nil {
			writeJSON(w, http.StatusOK, []model.Tick{})
			return
		}
		ticks, err := rt.History.RecentTicks(r.Context(), limitParam(r))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if ticks == nil {
			ticks = []model.Tick{}
		}
		writeJSON(w, http.StatusOK, ticks)
	}))

	mux.HandleFunc("/api/alerts/test", rest(http.MethodPost, func(w http.ResponseWriter, r *http.Request) {
		if rt.Notifier == nil {
			writeError(w, http.StatusNotImplemented, "no notifier configured")
			return
		}
		var req AlertTestRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Message == "" {
			req.Message = "Test alert: notifications are working"
		}
		if err := notification.SendText(r.Context(), rt.Notifier, req.Message); err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
	}))

	// REST: missed envelopes for gap backfill
	mux.HandleFunc("/api/missed", rest(http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		channel := q.Get("channel")
		from, err1 := strconv.ParseInt(q.Get("from"), 10, 64)
		to, err2 := strconv.ParseInt(q.Get("to"), 10, 64)
		if channel == "" || err1 != nil || err2 != nil || from > to {
			writeError(w, http.StatusBadRequest, "channel, from and to are required")
			return
		}
		entries := rt.Hub.GetReplayRange(channel, from, to)
		buf := make([]byte, 0, 64*len(entries)+2)
		buf = append(buf, '[')
		for i, e := range entries {
			if i > 0 {
				buf = append(buf, ',')
			}
			buf = append(buf, e...)
		}
		buf = append(buf, ']')
		w.Header().Set("Content-Type", "application/json")
		w.Write(buf)
	}))

	mux.HandleFunc("/api/system", rest(http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, rt.Hub.SystemStats(rt.Start))
	}))

	if rt.Health != nil {
		mux.Handle("/health", rt.Health)
	}
}

// rest wraps a handler with CORS, preflight handling and a method check.
func rest(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		if r.Method != method {
			w.Header().Set("Allow", method)
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h(w, r)
	}
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, position.ErrSideMismatch),
		errors.Is(err, position.ErrAlreadyOpen),
		errors.Is(err, session.ErrPositionOpen):
		return http.StatusConflict
	case errors.Is(err, position.ErrNoPosition),
		errors.Is(err, position.ErrNoData):
		return http.StatusNotFound
	case errors.Is(err, session.ErrInvalidSettings):
		return http.StatusBadRequest
	case errors.Is(err, notification.ErrThrottled):
		return http.StatusTooManyRequests
	case errors.Is(err, session.ErrStopped),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}

// decodeBody decodes an optional JSON body. An empty body leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

func limitParam(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return defaultListLimit
	}
	if n > maxListLimit {
		return maxListLimit
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
