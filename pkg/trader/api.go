package trader

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"
)

// APIResponse is the envelope for all operator API replies.
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// APIServer is the operator HTTP interface: status, statistics, account
// inspection, strategy control and a websocket push channel.
type APIServer struct {
	trader *Trader
	addr   string
	mux    *http.ServeMux
	server *http.Server
	hub    *WebSocketHub
}

// NewAPIServer creates the API server listening on addr.
func NewAPIServer(trader *Trader, addr string) *APIServer {
	a := &APIServer{
		trader: trader,
		addr:   addr,
		mux:    http.NewServeMux(),
		hub:    NewWebSocketHub(trader),
	}
	a.routes()
	return a
}

func (a *APIServer) routes() {
	a.mux.HandleFunc("/api/health", a.cors(a.handleHealth))
	a.mux.HandleFunc("/api/status", a.cors(a.handleStatus))
	a.mux.HandleFunc("/api/start", a.cors(a.handleStart))
	a.mux.HandleFunc("/api/stop", a.cors(a.handleStop))
	a.mux.HandleFunc("/api/statistics", a.cors(a.handleStatistics))
	a.mux.HandleFunc("/api/account", a.cors(a.handleAccount))
	a.mux.HandleFunc("/api/history", a.cors(a.handleHistory))
	a.mux.HandleFunc("/api/strategies", a.cors(a.handleStrategies))
	a.mux.HandleFunc("/api/strategies/start", a.cors(a.handleStrategyStart))
	a.mux.HandleFunc("/api/strategies/stop", a.cors(a.handleStrategyStop))
	a.mux.Handle("/ws", a.hub.Handler())
}

// Start serves in the background.
func (a *APIServer) Start() error {
	a.server = &http.Server{
		Addr:         a.addr,
		Handler:      a.mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	a.hub.Start()
	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[API] Server error: %v", err)
		}
	}()

	log.Printf("[API] Listening on %s", a.addr)
	return nil
}

// Stop shuts the server down gracefully.
func (a *APIServer) Stop() error {
	a.hub.Stop()
	if a.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return a.server.Shutdown(ctx)
}

func (a *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	a.sendSuccess(w, "ok", map[string]interface{}{
		"running": a.trader.IsRunning(),
		"time":    time.Now().Format(time.RFC3339),
	})
}

func (a *APIServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	a.sendSuccess(w, "", a.trader.Status())
}

func (a *APIServer) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.sendError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	if err := a.trader.Start(); err != nil {
		a.sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	a.sendSuccess(w, "trader started", nil)
}

func (a *APIServer) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.sendError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	if !a.trader.IsRunning() {
		a.sendError(w, http.StatusBadRequest, "trader not running")
		return
	}
	// Stop tears this server down too; reply before shutting down.
	a.sendSuccess(w, "trader stopping", nil)
	go func() {
		if err := a.trader.Stop(); err != nil {
			log.Printf("[API] Stop: %v", err)
		}
	}()
}

func (a *APIServer) handleStatistics(w http.ResponseWriter, r *http.Request) {
	a.sendSuccess(w, "", a.trader.Statistics())
}

func (a *APIServer) handleAccount(w http.ResponseWriter, r *http.Request) {
	account := a.trader.Account()
	a.sendSuccess(w, "", map[string]interface{}{
		"cash":         account.Cash(),
		"total_equity": account.TotalEquity(),
		"positions":    account.Positions(),
	})
}

func (a *APIServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	n := 500
	if raw := r.URL.Query().Get("n"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			n = parsed
		}
	}
	a.sendSuccess(w, "", a.trader.History().Snapshot(n))
}

func (a *APIServer) handleStrategies(w http.ResponseWriter, r *http.Request) {
	a.sendSuccess(w, "", a.trader.Strategies().Stats())
}

func (a *APIServer) handleStrategyStart(w http.ResponseWriter, r *http.Request) {
	a.controlStrategy(w, r, a.trader.Strategies().StartStrategy, "started")
}

func (a *APIServer) handleStrategyStop(w http.ResponseWriter, r *http.Request) {
	a.controlStrategy(w, r, a.trader.Strategies().StopStrategy, "stopped")
}

func (a *APIServer) controlStrategy(w http.ResponseWriter, r *http.Request,
	action func(string) error, verb string) {

	if r.Method != http.MethodPost {
		a.sendError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		a.sendError(w, http.StatusBadRequest, "missing strategy id")
		return
	}
	if err := action(id); err != nil {
		a.sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	a.sendSuccess(w, fmt.Sprintf("strategy %s %s", id, verb), nil)
}

func (a *APIServer) sendSuccess(w http.ResponseWriter, message string, data interface{}) {
	a.sendJSON(w, http.StatusOK, APIResponse{Success: true, Message: message, Data: data})
}

func (a *APIServer) sendError(w http.ResponseWriter, statusCode int, errorMsg string) {
	a.sendJSON(w, statusCode, APIResponse{Success: false, Error: errorMsg})
}

func (a *APIServer) sendJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[API] Encode response: %v", err)
	}
}

func (a *APIServer) cors(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next(w, r)
	}
}
