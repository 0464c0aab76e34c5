package ws

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/kulti/stream/internal/config"
	"github.com/kulti/stream/internal/ratelimit"
	"github.com/kulti/stream/internal/relay"
	"github.com/kulti/stream/internal/stream"
)

const (
	maxBodyBytes    = 1 << 20
	maxMessageBytes = 4096
)

// StatsFunc reports one section of GET /stats.
type StatsFunc func() any

type Server struct {
	config         *config.Config
	relay          *relay.Relay
	hub            *Hub
	limiter        *ratelimit.Limiter
	apiKeys        map[string]bool
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
	upgrader       websocket.Upgrader

	statsMu sync.Mutex
	stats   map[string]StatsFunc
}

func NewServer(cfg *config.Config, r *relay.Relay, hub *Hub, limiter *ratelimit.Limiter) *Server {
	s := &Server{
		config:         cfg,
		relay:          r,
		hub:            hub,
		limiter:        limiter,
		apiKeys:        make(map[string]bool),
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
		stats:          make(map[string]StatsFunc),
	}

	for _, key := range cfg.Auth.APIKeys {
		if key = strings.TrimSpace(key); key != "" {
			s.apiKeys[key] = true
		}
	}
	for _, origin := range cfg.Server.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}

	return s
}

// AddStats registers a named section for GET /stats. Must be called before
// the server starts handling requests.
func (s *Server) AddStats(name string, fn StatsFunc) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.stats[name] = fn
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/hook", s.handleHook)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/agents", s.handleAgents)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/ws", s.handleWS)
}

// Handler returns the routed mux wrapped in the CORS and security header
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return s.cors(securityHeaders(mux))
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	switch {
	case r.Method == http.MethodGet && websocket.IsWebSocketUpgrade(r):
		s.handleWS(w, r)
	case r.Method == http.MethodGet:
		s.handleHealth(w, r)
	case r.Method == http.MethodPost:
		s.handleIngest(w, r, false)
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) handleHook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.handleIngest(w, r, true)
}

// handleIngest parses and applies one update. Hook requests are answered
// before the update is applied so adapters never wait on the relay.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request, hook bool) {
	if !s.authorize(r) {
		writeError(w, http.StatusUnauthorized, "Invalid or missing API key")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	u, err := s.relay.Parse(body)
	if err != nil {
		slog.Debug("rejected ingest", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	if !s.limiter.Allow(u.AgentID) {
		writeError(w, http.StatusTooManyRequests, "Rate limit exceeded")
		return
	}

	if hook {
		writeJSON(w, http.StatusOK, hookResponse{OK: true})
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		s.relay.Apply(u, true)
		return
	}

	s.relay.Apply(u, false)
	writeJSON(w, http.StatusOK, ingestResponse{Success: true})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Agents: s.relay.Registry().Len()})
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	summaries := s.relay.Registry().Summaries()
	if summaries == nil {
		summaries = []stream.Summary{}
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	out := map[string]any{
		"agents":  s.relay.Registry().Len(),
		"viewers": s.hub.ClientCount(),
		"relay":   s.relay.Stats(),
	}
	s.statsMu.Lock()
	for name, fn := range s.stats {
		out[name] = fn()
	}
	s.statsMu.Unlock()

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.config.WS.MaxConnections > 0 && s.hub.ClientCount() >= s.config.WS.MaxConnections {
		writeError(w, http.StatusServiceUnavailable, ErrTooManyConnections.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade error", "error", err)
		return
	}

	c := newClient(conn, s.config.WS.SendBuffer, s.config.WS.PingInterval)
	if err := s.hub.add(c); err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()),
			time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}
	go c.writePump()

	q := r.URL.Query()
	info := stream.ViewerInfo{
		ID:       uuid.NewString(),
		Name:     q.Get("name"),
		JoinedAt: time.Now().UnixMilli(),
	}
	if info.Name == "" {
		info.Name = "viewer-" + uuid.NewString()[:4]
	}

	agent, viewers := s.relay.Connect(r.Context(), q.Get("agent"), c, info)
	slog.Info("viewer connected", "agent", agent.ID(), "viewer", info.Name, "viewers", viewers)

	go s.readPump(c, agent, info)
}

// readPump handles inbound viewer messages until the connection fails,
// then unregisters the viewer.
func (s *Server) readPump(c *client, agent *stream.Agent, info stream.ViewerInfo) {
	defer func() {
		viewers := s.relay.Disconnect(agent, c)
		s.hub.remove(c)
		c.close()
		slog.Info("viewer disconnected", "agent", agent.ID(), "viewer", info.Name, "viewers", viewers)
	}()

	pongTimeout := s.config.WS.PongTimeout
	if pongTimeout <= 0 {
		pongTimeout = 60 * time.Second
	}
	c.conn.SetReadLimit(maxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("ws read error", "agent", agent.ID(), "error", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongTimeout))

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case MsgReaction:
			s.relay.React(agent, info, msg.Emoji)
		case MsgChat:
			s.relay.Chat(agent, info, relay.ChatMessage{
				Message:  msg.Message,
				Username: msg.Username,
				UserID:   msg.UserID,
			})
		}
	}
}

// authorize checks X-Kulti-Key on writes. With no keys configured every
// request is allowed.
func (s *Server) authorize(r *http.Request) bool {
	if len(s.apiKeys) == 0 {
		return true
	}
	return s.apiKeys[r.Header.Get("X-Kulti-Key")]
}

// checkOrigin accepts any origin unless allowed origins are configured.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.allowedOrigins) == 0 {
		return true
	}
	if s.allowedOrigins[origin] {
		return true
	}
	if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
		return s.allowedHosts[parsed.Host]
	}
	return false
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		switch origin := r.Header.Get("Origin"); {
		case len(s.allowedOrigins) == 0:
			h.Set("Access-Control-Allow-Origin", "*")
		case origin != "" && s.checkOrigin(r):
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
		}
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, X-Kulti-Key")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

// NewHTTPServer builds the listening server for cfg.
func NewHTTPServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}
}
