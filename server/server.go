// Package server exposes an nfcservice.Service to local applications over
// HTTP and WebSocket, and advertises itself over mDNS.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/grandcat/zeroconf"

	"github.com/dotside-studios/davi-nfc-service/buildinfo"
	"github.com/dotside-studios/davi-nfc-service/nfcservice"
	"github.com/dotside-studios/davi-nfc-service/protocol"
)

// Config holds the server configuration
type Config struct {
	Service   *nfcservice.Service
	Port      int
	APISecret string // Optional API secret for HTTP and WebSocket access
	CertFile  string // TLS is enabled when both CertFile and KeyFile are set
	KeyFile   string
	MDNS      bool
	Logger    *log.Logger

	// CACert, if set, serves the local CA at CACertPath so phones can trust
	// the service certificate.
	CACert func() ([]byte, error)
}

// Server manages the HTTP and WebSocket server
type Server struct {
	config     Config
	service    *nfcservice.Service
	logger     *log.Logger
	httpServer *http.Server
	ctx        context.Context
	cancel     context.CancelFunc
	upgrader   websocket.Upgrader
	validate   *validator.Validate

	// Client WebSocket management
	clients       map[*Conn]bool
	clientsMux    sync.RWMutex
	sessionActive bool       // Whether a WebSocket session is active
	sessionMux    sync.Mutex // Protects sessionActive

	handlerRegistry *HandlerRegistry
	mdnsServer      *zeroconf.Server
	startOnce       sync.Once
}

// New creates a new server instance
func New(config Config) *Server {
	if config.Port == 0 {
		config.Port = DefaultPort
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[server] ", log.LstdFlags)
	}

	s := &Server{
		config:  config,
		service: config.Service,
		logger:  config.Logger,
		clients: make(map[*Conn]bool),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins
			},
		},
		validate:        validator.New(),
		handlerRegistry: NewHandlerRegistry(),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	if s.service != nil {
		s.registerServiceHandlers()
	}
	return s
}

// Handle implements HandlerServer interface.
func (s *Server) Handle(messageType string, handler HandlerFunc) error {
	return s.handlerRegistry.Handle(messageType, handler)
}

// HandleWebSocket implements HandlerServer interface.
func (s *Server) HandleWebSocket(matcher func(r *http.Request) bool, handler WebSocketHandlerFunc) {
	s.handlerRegistry.HandleWebSocket(matcher, handler)
}

// StartLifecycle implements HandlerServer interface.
func (s *Server) StartLifecycle(start func(ctx context.Context)) {
	s.handlerRegistry.RegisterLifecycle(start)
}

// Broadcast sends a message to all connected clients.
func (s *Server) Broadcast(messageType string, payload any) {
	msg := protocol.WebSocketMessage{Type: messageType, Payload: payload}

	s.clientsMux.RLock()
	clients := make([]*Conn, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.clientsMux.RUnlock()

	for _, c := range clients {
		if err := c.WriteJSON(msg); err != nil {
			s.logger.Printf("WebSocket write error: %v", err)
			s.removeClient(c)
			c.Close()
		}
	}
}

// ClientCount returns the number of connected consumer clients.
func (s *Server) ClientCount() int {
	s.clientsMux.RLock()
	defer s.clientsMux.RUnlock()
	return len(s.clients)
}

func (s *Server) addClient(c *Conn) {
	s.clientsMux.Lock()
	s.clients[c] = true
	s.clientsMux.Unlock()
}

func (s *Server) removeClient(c *Conn) {
	s.clientsMux.Lock()
	delete(s.clients, c)
	s.clientsMux.Unlock()
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET "+APIPrefix+"/health", s.handleHealthCheck)
	mux.HandleFunc("GET "+APIPrefix+"/status", s.requireSecret(s.handleStatus))
	mux.HandleFunc("POST "+APIPrefix+"/status/refresh", s.requireSecret(s.handleRefresh))
	mux.HandleFunc("GET "+APIPrefix+"/mimetypes", s.requireSecret(s.handleListMimeTypes))
	mux.HandleFunc("POST "+APIPrefix+"/mimetypes", s.requireSecret(s.handleAddMimeType))
	mux.HandleFunc("DELETE "+APIPrefix+"/mimetypes/{mime...}", s.requireSecret(s.handleRemoveMimeType))

	mux.HandleFunc(WebSocketPath, s.handleWebSocket)
	mux.HandleFunc(DevicePath, s.handleWebSocket)

	if s.config.CACert != nil {
		mux.HandleFunc("GET "+CACertPath, s.handleCACert)
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(buildinfo.DisplayName + " Running"))
	})

	return enableCORS(mux)
}

// enableCORS is a middleware that adds CORS headers to responses
func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", CORSAllowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", CORSAllowMethods)
		w.Header().Set("Access-Control-Allow-Headers", CORSAllowHeaders)

		// Handle preflight OPTIONS requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authorized checks the optional API secret, passed either as ?secret= or
// as a bearer token.
func (s *Server) authorized(r *http.Request) bool {
	if s.config.APISecret == "" {
		return true
	}
	if r.URL.Query().Get("secret") == s.config.APISecret {
		return true
	}
	return r.Header.Get("Authorization") == "Bearer "+s.config.APISecret
}

func (s *Server) requireSecret(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authorized(r) {
			writeJSON(w, http.StatusUnauthorized, errorBody("Unauthorized: Invalid API secret"))
			return
		}
		next(w, r)
	}
}

// startBackground starts the event pump and the lifecycle handlers once.
func (s *Server) startBackground(ctx context.Context) {
	s.startOnce.Do(func() {
		if s.service != nil {
			names := append([]string{nfcservice.EventStatusChanged}, nfcservice.TagEvents...)
			events, cancel := s.service.Stream(eventStreamBuffer, names...)
			go func() {
				<-ctx.Done()
				cancel()
			}()
			go s.pump(events)
		}
		s.handlerRegistry.StartLifecycleHandlers(ctx)
	})
}

// pump relays service events to every client.
func (s *Server) pump(events <-chan nfcservice.Emission) {
	for em := range events {
		s.Broadcast(protocol.WSTypeNFCEvent, protocol.NFCEventPayload{Event: em.Event, Args: em.Args})
		if em.Event == nfcservice.EventStatusChanged {
			s.Broadcast(protocol.WSTypeStatus, statusPayload(s.service))
		}
	}
}

// Start starts the HTTP server and blocks until Stop is called or the
// listener fails.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		tls := s.config.CertFile != "" && s.config.KeyFile != ""
		s.logger.Printf("Starting server on %s (TLS: %v)", s.httpServer.Addr, tls)
		var err error
		if tls {
			err = s.httpServer.ListenAndServeTLS(s.config.CertFile, s.config.KeyFile)
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if s.config.MDNS {
		if err := s.startMDNS(); err != nil {
			s.logger.Printf("Warning: Failed to start mDNS service: %v", err)
			s.logger.Printf("Auto-discovery will not be available, but server will continue normally")
		}
	}

	s.startBackground(s.ctx)

	select {
	case <-s.ctx.Done():
		s.logger.Println("Server context cancelled, shutting down")
		return nil
	case err := <-errCh:
		s.Stop()
		return fmt.Errorf("HTTP server error: %w", err)
	}
}

// Stop stops the HTTP server gracefully
func (s *Server) Stop() {
	if s.mdnsServer != nil {
		s.mdnsServer.Shutdown()
		s.mdnsServer = nil
		s.logger.Printf("mDNS service stopped")
	}

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod*time.Second)
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Printf("Server shutdown error: %v", err)
		}
		cancel()
	}

	s.clientsMux.Lock()
	for c := range s.clients {
		c.Close()
		delete(s.clients, c)
	}
	s.clientsMux.Unlock()

	s.cancel()
}

// startMDNS registers the service for auto-discovery on the local network
func (s *Server) startMDNS() error {
	txtRecords := []string{
		"version=" + buildinfo.Version,
		"protocol=websocket",
		"path=" + WebSocketPath,
		"device_path=" + DevicePath,
		fmt.Sprintf("secret=%v", s.config.APISecret != ""),
	}

	server, err := zeroconf.Register(MDNSServiceName, MDNSServiceType, MDNSDomain, s.config.Port, txtRecords, nil)
	if err != nil {
		return fmt.Errorf("failed to register mDNS service: %w", err)
	}

	s.mdnsServer = server
	s.logger.Printf("mDNS service registered: %s (%s) on port %d", MDNSServiceName, MDNSServiceType, s.config.Port)
	return nil
}

// handleWebSocket upgrades HTTP connections to WebSocket connections and manages
// the client connection lifecycle
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		s.logger.Printf("WebSocket connection rejected: invalid API secret")
		http.Error(w, "Unauthorized: Invalid API secret", http.StatusUnauthorized)
		return
	}

	if s.handlerRegistry.TryCustomWebSocketHandler(w, r) {
		return
	}
	if r.URL.Path == DevicePath {
		http.Error(w, "Device connections are not enabled", http.StatusNotFound)
		return
	}

	// Check if session is already active (first come, first served)
	s.sessionMux.Lock()
	if s.sessionActive {
		s.sessionMux.Unlock()
		s.logger.Printf("WebSocket connection rejected: session already claimed")
		http.Error(w, "Session already claimed by another client", http.StatusConflict)
		return
	}
	s.sessionActive = true
	s.sessionMux.Unlock()

	releaseSession := func() {
		s.sessionMux.Lock()
		s.sessionActive = false
		s.sessionMux.Unlock()
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		releaseSession()
		s.logger.Printf("WebSocket upgrade error: %v", err)
		return
	}
	conn := newConn(ws)
	s.logger.Printf("WebSocket connected from %s", r.RemoteAddr)

	defer func() {
		s.removeClient(conn)
		conn.Close()
		releaseSession()
		s.logger.Printf("WebSocket disconnected, session released")
	}()

	if s.service != nil {
		conn.WriteJSON(protocol.WebSocketMessage{Type: protocol.WSTypeStatus, Payload: statusPayload(s.service)})
	}
	s.addClient(conn)

	for {
		messageType, message, err := ws.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var req protocol.WebSocketRequest
		if err := json.Unmarshal(message, &req); err != nil {
			s.logger.Printf("Failed to parse WebSocket message: %v", err)
			conn.SendError("", protocol.ErrCodeParseError, "Invalid message format")
			continue
		}

		handler, ok := s.handlerRegistry.Get(req.Type)
		if !ok {
			s.logger.Printf("Unknown message type: %s", req.Type)
			conn.SendError(req.ID, protocol.ErrCodeUnknownType, fmt.Sprintf("Unknown message type: %s", req.Type))
			continue
		}

		if err := handler(r.Context(), conn, req); err != nil {
			// Error already sent by handler, just log it
			s.logger.Printf("Handler error for message type '%s': %v", req.Type, err)
		}
	}
}

// handleHealthCheck provides a health check endpoint (GET /api/v1/health)
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"version":   buildinfo.FullVersion(),
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleCACert serves the local CA certificate for device setup.
func (s *Server) handleCACert(w http.ResponseWriter, r *http.Request) {
	data, err := s.config.CACert()
	if err != nil {
		http.Error(w, "CA certificate not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/x-pem-file")
	w.Header().Set("Content-Disposition", `attachment; filename="`+buildinfo.Name+`-ca.pem"`)
	w.Write(data)
	s.logger.Printf("CA certificate downloaded by %s", r.RemoteAddr)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func errorBody(message string) map[string]any {
	return map[string]any{"success": false, "error": message}
}
