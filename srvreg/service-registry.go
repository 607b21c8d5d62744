package srvreg

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/martin8756/termelesinaplo/repository"
	"github.com/martin8756/termelesinaplo/session"

	cmtlog "github.com/cometbft/cometbft/libs/log"
)

// maxBodyBytes bounds request bodies read into a Request
const maxBodyBytes = 1 << 20

// Request represents the client's incoming HTTP request
type Request struct {
	Method       string            `json:"method"`
	Path         string            `json:"path"`
	Query        url.Values        `json:"query,omitempty"`
	Headers      map[string]string `json:"headers"`
	Body         string            `json:"body"`
	RemoteAddr   string            `json:"remote_addr"`
	RequestID    string            `json:"request_id"`
	Timestamp    time.Time         `json:"timestamp"`
	SessionToken string            `json:"-"`
	Params       map[string]string `json:"params,omitempty"`

	ctx context.Context
}

// Context returns the context of the originating HTTP request
func (r *Request) Context() context.Context {
	if r.ctx == nil {
		return context.Background()
	}
	return r.ctx
}

// WithContext returns a shallow copy of r carrying ctx
func (r *Request) WithContext(ctx context.Context) *Request {
	r2 := *r
	r2.ctx = ctx
	return &r2
}

// Response represents the computed response for a request
type Response struct {
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers"`
	Cookies    []*http.Cookie    `json:"-"`
	Body       []byte            `json:"body"`
}

// ServiceHandler is a function type for service handlers
type ServiceHandler func(*Request) (*Response, error)

// RouteKey is used to uniquely identify a route
type RouteKey struct {
	Method string
	Path   string
}

// Route is a registered handler together with its access rule
type Route struct {
	Key          RouteKey
	Handler      ServiceHandler
	RequiresAuth bool
	exact        bool
}

// ServiceRegistry manages all service handlers
type ServiceRegistry struct {
	routes map[RouteKey]*Route
	mu     sync.RWMutex
	store  repository.RecordStore
	gate   session.Authenticator
	logger cmtlog.Logger
}

// NewServiceRegistry creates a new service registry
func NewServiceRegistry(
	store repository.RecordStore,
	gate session.Authenticator,
	logger cmtlog.Logger,
) *ServiceRegistry {
	return &ServiceRegistry{
		routes: make(map[RouteKey]*Route),
		store:  store,
		gate:   gate,
		logger: logger.With("module", "srvreg"),
	}
}

// Gate returns the authenticator the registry enforces
func (sr *ServiceRegistry) Gate() session.Authenticator {
	return sr.gate
}

// ConvertHttpRequest converts an http.Request to Request
func ConvertHttpRequest(r *http.Request, requestID string) (*Request, error) {
	headers := make(map[string]string)
	for name, values := range r.Header {
		if len(values) > 0 {
			headers[name] = values[0]
		}
	}

	body := ""
	if r.Body != nil {
		bodyBytes, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			return nil, err
		}
		body = strings.TrimSpace(string(bodyBytes))
	}

	return &Request{
		Method:       r.Method,
		Path:         r.URL.Path,
		Query:        r.URL.Query(),
		Headers:      headers,
		Body:         body,
		RemoteAddr:   r.RemoteAddr,
		RequestID:    requestID,
		Timestamp:    time.Now(),
		SessionToken: session.TokenFromRequest(r),
		ctx:          r.Context(),
	}, nil
}

// RegisterHandler registers a new service handler
func (sr *ServiceRegistry) RegisterHandler(method, path string, isExactPath, requiresAuth bool, handler ServiceHandler) {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	key := RouteKey{Method: strings.ToUpper(method), Path: path}
	sr.routes[key] = &Route{
		Key:          key,
		Handler:      handler,
		RequiresAuth: requiresAuth,
		exact:        isExactPath,
	}
}

// GetRouteForPath finds the route for a method and path, together with the
// values of any ":param" segments
func (sr *ServiceRegistry) GetRouteForPath(method, path string) (*Route, map[string]string, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	method = strings.ToUpper(method)

	// Try exact match first
	if route, ok := sr.routes[RouteKey{Method: method, Path: path}]; ok && route.exact {
		return route, nil, true
	}

	// Try pattern matching
	for key, route := range sr.routes {
		if key.Method != method || route.exact {
			continue
		}
		if params, ok := matchPath(key.Path, path); ok {
			return route, params, true
		}
	}

	return nil, nil, false
}

// matchPath does simple pattern matching for routes.
// It supports patterns like "/records/:id" matching "/records/123"
func matchPath(pattern, path string) (map[string]string, bool) {
	patternParts := strings.Split(pattern, "/")
	pathParts := strings.Split(path, "/")

	if len(patternParts) != len(pathParts) {
		return nil, false
	}

	params := make(map[string]string)
	for i := range len(patternParts) {
		if strings.HasPrefix(patternParts[i], ":") {
			params[patternParts[i][1:]] = pathParts[i]
			continue
		}

		if patternParts[i] != pathParts[i] {
			return nil, false
		}
	}

	return params, true
}

// RegisterDefaultServices sets up the production log endpoints
func (sr *ServiceRegistry) RegisterDefaultServices() {
	// Login, both the form path and the API path
	sr.RegisterHandler("POST", "/login", true, false, sr.LoginHandler)
	sr.RegisterHandler("POST", "/api/login", true, false, sr.LoginHandler)
	// Logout
	sr.RegisterHandler("POST", "/api/logout", true, false, sr.LogoutHandler)
	// Submit record
	sr.RegisterHandler("POST", "/add", true, true, sr.CreateRecordHandler)
	sr.RegisterHandler("POST", "/api/records", true, true, sr.CreateRecordHandler)
	// Recent records
	sr.RegisterHandler("GET", "/data", true, true, sr.ListRecordsHandler)
	sr.RegisterHandler("GET", "/api/records", true, true, sr.ListRecordsHandler)
	// Admin filtered view
	sr.RegisterHandler("GET", "/api/admin/records", true, true, sr.AdminRecordsHandler)
	// Admin delete
	sr.RegisterHandler("DELETE", "/api/admin/records/:id", false, true, sr.DeleteRecordHandler)
}

// GenerateResponse resolves the route, enforces the session gate and
// executes the handler
func (req *Request) GenerateResponse(services *ServiceRegistry) (*Response, error) {
	route, params, found := services.GetRouteForPath(req.Method, req.Path)
	if !found {
		return errorResponse(http.StatusNotFound, fmt.Sprintf("Service not found for %s %s", req.Method, req.Path)), nil
	}
	req.Params = params

	if route.RequiresAuth && !services.gate.Authenticated(req.Context(), req.SessionToken) {
		return errorResponse(http.StatusUnauthorized, "Authentication required"), nil
	}

	return route.Handler(req)
}

// envelope is the JSON body shape shared by every response
type envelope map[string]interface{}

func jsonResponse(status int, body envelope) *Response {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return errorResponse(http.StatusInternalServerError, "Failed to encode response")
	}
	return &Response{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       bodyBytes,
	}
}

func errorResponse(status int, message string) *Response {
	bodyBytes, _ := json.Marshal(envelope{"ok": false, "message": message})
	return &Response{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       bodyBytes,
	}
}
