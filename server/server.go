package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/martin8756/termelesinaplo/session"
	"github.com/martin8756/termelesinaplo/srvreg"

	cmtlog "github.com/cometbft/cometbft/libs/log"
)

// Assets are the HTML files served outside the API
type Assets struct {
	Static    fs.FS
	AdminPage []byte
}

// WebServer handles HTTP requests
type WebServer struct {
	httpAddr        string
	server          *http.Server
	handler         http.Handler
	logger          cmtlog.Logger
	startTime       time.Time
	serviceRegistry *srvreg.ServiceRegistry
	metrics         *Metrics
	assets          Assets
}

// NewWebServer creates a new web server
func NewWebServer(httpPort string, serviceRegistry *srvreg.ServiceRegistry, logger cmtlog.Logger, assets Assets) (*WebServer, error) {
	if serviceRegistry == nil {
		return nil, errors.New("service registry is required")
	}
	mux := http.NewServeMux()

	server := &WebServer{
		httpAddr:        ":" + httpPort,
		handler:         mux,
		logger:          logger.With("module", "server"),
		startTime:       time.Now(),
		serviceRegistry: serviceRegistry,
		metrics:         NewMetrics(),
		assets:          assets,
	}
	server.server = &http.Server{
		Addr:              server.httpAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// API endpoints
	mux.HandleFunc("/api/", server.handleAPI)
	// Form endpoints kept from the HTML pages
	mux.HandleFunc("/login", server.handleAPI)
	mux.HandleFunc("/add", server.handleAPI)
	mux.HandleFunc("/data", server.handleAPI)
	// Pages
	mux.HandleFunc("/admin", server.handleAdmin)
	mux.Handle("/metrics", server.metrics.Handler())
	mux.HandleFunc("/", server.handleStatic)

	return server, nil
}

// Handler returns the root HTTP handler
func (ws *WebServer) Handler() http.Handler {
	return ws.handler
}

// Start starts the web server
func (ws *WebServer) Start() error {
	ws.logger.Info("Starting web server", "addr", ws.httpAddr)
	go func() {
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			ws.logger.Error("web server error: ", "err", err)
		}
	}()
	return nil
}

// Shutdown gracefully shuts down the web server
func (ws *WebServer) Shutdown(ctx context.Context) error {
	ws.logger.Info("Shutting down web server", "uptime", time.Since(ws.startTime).String())
	return ws.server.Shutdown(ctx)
}

// handleAPI runs a request through the service registry
func (ws *WebServer) handleAPI(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := generateRequestID()

	route := "unmatched"
	if matched, _, ok := ws.serviceRegistry.GetRouteForPath(r.Method, r.URL.Path); ok {
		route = matched.Key.Path
	}

	request, err := srvreg.ConvertHttpRequest(r, requestID)
	if err != nil {
		ws.logger.Error("Failed to convert HTTP request", "request_id", requestID, "err", err)
		JSONError(w, "Failed to read request", http.StatusBadRequest)
		ws.metrics.Observe(r.Method, route, http.StatusBadRequest, time.Since(start))
		return
	}

	response, err := request.GenerateResponse(ws.serviceRegistry)
	if err != nil {
		// Handlers always return a client-safe response alongside the error
		ws.logger.Error("Failed to generate response", "request_id", requestID, "path", request.Path, "err", err)
	}
	if response == nil {
		JSONError(w, "Internal server error", http.StatusInternalServerError)
		ws.metrics.Observe(r.Method, route, http.StatusInternalServerError, time.Since(start))
		return
	}

	for key, value := range response.Headers {
		w.Header().Set(key, value)
	}
	for _, cookie := range response.Cookies {
		http.SetCookie(w, cookie)
	}
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(response.StatusCode)
	if _, err := w.Write(response.Body); err != nil {
		ws.logger.Error("Failed to write response", "request_id", requestID, "err", err)
	}

	elapsed := time.Since(start)
	ws.metrics.Observe(r.Method, route, response.StatusCode, elapsed)
	ws.logger.Info("=== Req-Res Pair Result ===",
		"request_id", requestID,
		"method", request.Method,
		"path", request.Path,
		"status", response.StatusCode,
		"elapsed", elapsed.String(),
	)
}

// handleAdmin serves the admin page to authenticated clients
func (ws *WebServer) handleAdmin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		JSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !ws.serviceRegistry.Gate().Authenticated(r.Context(), session.TokenFromRequest(r)) {
		JSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(ws.assets.AdminPage)
}

// handleStatic serves the public files, falling back to index.html for
// unknown paths
func (ws *WebServer) handleStatic(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		JSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if ws.assets.Static == nil {
		JSONError(w, "Not found", http.StatusNotFound)
		return
	}

	name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
	if name == "" {
		name = "index.html"
	}
	if info, err := fs.Stat(ws.assets.Static, name); err != nil || info.IsDir() {
		name = "index.html"
	}

	content, err := fs.ReadFile(ws.assets.Static, name)
	if err != nil {
		JSONError(w, "Not found", http.StatusNotFound)
		return
	}
	http.ServeContent(w, r, name, ws.startTime, bytes.NewReader(content))
}

func generateRequestID() string {
	return uuid.NewString()
}

// JSONError sends a JSON formatted error response with the given status code and message
func JSONError(w http.ResponseWriter, message string, statusCode int) {
	errorResponse := struct {
		OK      bool   `json:"ok"`
		Message string `json:"message"`
	}{
		Message: message,
	}
	jsonBytes, err := json.Marshal(errorResponse)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(jsonBytes)
}
