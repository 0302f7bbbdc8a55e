// Package transporthttp exposes the hub over HTTP and WebSocket: health
// and metrics endpoints, a POST /tools/call surface, and an MCP JSON-RPC
// WebSocket carrying one message per frame. The dispatcher stays
// transport-agnostic; this package only does framing, auth, and the
// taxonomy-to-status mapping.
package transporthttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/emergent-company/memoryhub/internal/config"
	"github.com/emergent-company/memoryhub/internal/dispatcher"
	"github.com/emergent-company/memoryhub/internal/governance"
	"github.com/emergent-company/memoryhub/internal/graphstore"
	"github.com/emergent-company/memoryhub/internal/mcp"
	"github.com/emergent-company/memoryhub/internal/modelrouter"
	"github.com/emergent-company/memoryhub/internal/taxonomy"
)

// Server is the HTTP+WS transport for multi-client operation.
type Server struct {
	echo       *echo.Echo
	dispatcher *dispatcher.Dispatcher
	governance *governance.Middleware
	pool       *graphstore.Pool
	router     *modelrouter.Router
	cfg        config.TransportConfig
	info       mcp.ServerInfo
	logger     *slog.Logger
	upgrader   websocket.Upgrader
	startedAt  time.Time
}

// New builds the transport around an already-wired dispatcher.
func New(cfg config.TransportConfig, d *dispatcher.Dispatcher, gov *governance.Middleware, pool *graphstore.Pool, router *modelrouter.Router, info mcp.ServerInfo, logger *slog.Logger) *Server {
	s := &Server{
		dispatcher: d,
		governance: gov,
		pool:       pool,
		router:     router,
		cfg:        cfg,
		info:       info,
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Origin is enforced by the bearer check; browsers are not the
			// expected client population.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		startedAt: time.Now(),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: strings.Split(cfg.CORSOrigins, ","),
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(s.authMiddleware)
	e.Use(s.governanceMiddleware)
	e.HTTPErrorHandler = s.errorHandler

	e.GET("/health", s.handleHealth)
	e.GET("/health/ready", s.handleUp)
	e.GET("/health/live", s.handleUp)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.POST("/tools/call", s.handleToolsCall)
	e.GET(cfg.WSPath, s.handleWS)

	s.echo = e
	return s
}

// Handler exposes the underlying router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Start listens on the configured host:port and blocks until Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%s", s.cfg.Host, s.cfg.Port)
	s.logger.Info("http transport listening", "addr", addr, "ws_path", s.cfg.WSPath)
	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting new requests and drains in-flight handlers.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// authMiddleware enforces the opaque bearer check on every route except the
// liveness/readiness probes, which orchestrators call unauthenticated.
func (s *Server) authMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		path := c.Path()
		if path == "/health/ready" || path == "/health/live" {
			return next(c)
		}
		if s.cfg.BearerToken == "" {
			return next(c)
		}
		auth := c.Request().Header.Get(echo.HeaderAuthorization)
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok && c.IsWebSocket() {
			// Browser WebSocket clients cannot set Authorization headers.
			token = c.QueryParam("token")
			ok = token != ""
		}
		if !ok || token != s.cfg.BearerToken {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid or missing bearer token")
		}
		return next(c)
	}
}

// governanceMiddleware records every non-probe HTTP dispatch, synthesizing
// an http_request record from method/path and, once the handler returns, a
// second http_request record whose action carries a "_result" suffix and
// whose result holds the response status.
func (s *Server) governanceMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		path := c.Path()
		if strings.HasPrefix(path, "/health") || path == "/metrics" {
			return next(c)
		}

		record := governance.LogRecord{
			Timestamp: time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
			Type:      "http_request",
			Source:    "http",
			Action:    c.Request().Method + " " + path,
			Metadata:  map[string]any{"request_id": c.Response().Header().Get(echo.HeaderXRequestID)},
		}
		if err := s.governance.Record(record); err != nil {
			return err
		}

		err := next(c)

		result := record
		result.Timestamp = time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
		result.Action = record.Action + "_result"
		result.Result = map[string]any{"status": c.Response().Status, "success": err == nil}
		if recErr := s.governance.Record(result); recErr != nil {
			s.logger.Warn("http result record failed to persist", "path", path, "error", recErr)
		}
		return err
	}
}

// errorHandler maps taxonomy kinds to HTTP status codes and renders the
// uniform {error: {message, timestamp, path}} body.
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var status int
	msg := err.Error()

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		status = httpErr.Code
		msg = fmt.Sprintf("%v", httpErr.Message)
	} else {
		status = StatusFor(taxonomy.KindOf(err))
	}

	body := map[string]any{
		"error": map[string]any{
			"message":   msg,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"path":      c.Request().URL.Path,
		},
	}
	if jsonErr := c.JSON(status, body); jsonErr != nil {
		s.logger.Error("failed to render error response", "error", jsonErr)
	}
}

// StatusFor maps a taxonomy kind to its HTTP status.
func StatusFor(kind taxonomy.Kind) int {
	switch kind {
	case taxonomy.InvalidInput, taxonomy.GovernanceInvalidFormat:
		return http.StatusBadRequest
	case taxonomy.NotFound:
		return http.StatusNotFound
	case taxonomy.Duplicate:
		return http.StatusConflict
	case taxonomy.GovernanceBlocked:
		return http.StatusLocked
	case taxonomy.BackendUnavailable, taxonomy.Timeout:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// handleUp serves the bare liveness/readiness probes.
func (s *Server) handleUp(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// handleHealth aggregates dependency health. 200 when everything is
// healthy, 503 when any dependency is down.
func (s *Server) handleHealth(c echo.Context) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	graphHealth := s.pool.Health(ctx)
	modelHealthy := s.router.Health(ctx)

	status := "healthy"
	code := http.StatusOK
	if !graphHealth.Healthy || !modelHealthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	deps := map[string]any{
		"graph": map[string]any{
			"healthy":    graphHealth.Healthy,
			"reason":     graphHealth.Reason,
			"latency_ms": graphHealth.LatencyMs,
		},
		"model": map[string]any{"healthy": modelHealthy},
	}

	return c.JSON(code, map[string]any{
		"status":           status,
		"timestamp":        time.Now().UTC().Format(time.RFC3339),
		"uptime":           time.Since(s.startedAt).String(),
		"dependencies":     deps,
		"response_time_ms": time.Since(start).Milliseconds(),
	})
}

// toolsCallRequest is the POST /tools/call body.
type toolsCallRequest struct {
	Server    string          `json:"server"`
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments"`
}

func (s *Server) handleToolsCall(c echo.Context) error {
	var req toolsCallRequest
	if err := c.Bind(&req); err != nil {
		return taxonomy.Wrap(taxonomy.InvalidInput, "invalid request body", err)
	}
	if req.Tool == "" {
		return taxonomy.New(taxonomy.InvalidInput, "tool is required")
	}

	result, err := s.dispatcher.ToolsCall(c.Request().Context(), req.Server, req.Tool, req.Arguments)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// handleWS upgrades the connection and serves the MCP protocol framed one
// JSON-RPC message per text frame. Each connection is independent; frames
// within a connection are handled sequentially.
func (s *Server) handleWS(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return taxonomy.Wrap(taxonomy.Internal, "websocket upgrade failed", err)
	}
	defer conn.Close()

	ctx := c.Request().Context()
	s.logger.Info("websocket client connected", "remote", conn.RemoteAddr().String())

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("websocket read failed", "error", err)
			}
			return nil
		}
		if msgType != websocket.TextMessage {
			continue
		}

		resp := s.handleRPC(ctx, data)
		if resp == nil {
			continue
		}
		out, err := json.Marshal(resp)
		if err != nil {
			s.logger.Error("failed to encode websocket response", "error", err)
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, out); err != nil {
			s.logger.Warn("websocket write failed", "error", err)
			return nil
		}
	}
}

// handleRPC executes one MCP JSON-RPC message against the dispatcher.
func (s *Server) handleRPC(ctx context.Context, data []byte) *mcp.Response {
	var req mcp.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return &mcp.Response{
			JSONRPC: "2.0",
			Error:   &mcp.RPCError{Code: mcp.ErrCodeParse, Message: "Parse error", Data: err.Error()},
		}
	}
	if req.ID == nil {
		// Notifications get no response.
		return nil
	}

	resp := &mcp.Response{JSONRPC: "2.0", ID: req.ID}

	switch req.Method {
	case "initialize":
		resp.Result = &mcp.InitializeResult{
			ProtocolVersion: "2024-11-05",
			Capabilities: mcp.ServerCapability{
				Tools:     &mcp.ToolsCapability{},
				Resources: &mcp.ResourcesCapability{},
			},
			ServerInfo: s.info,
		}
	case "tools/list":
		resp.Result = &mcp.ToolsListResult{Tools: s.dispatcher.ToolsList()}
	case "tools/call":
		var params mcp.ToolsCallParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			resp.Error = &mcp.RPCError{Code: mcp.ErrCodeInvalidParams, Message: "Invalid tools/call params", Data: err.Error()}
			break
		}
		result, err := s.dispatcher.ToolsCall(ctx, "", params.Name, params.Arguments)
		if err != nil && result == nil {
			resp.Error = &mcp.RPCError{Code: mcp.ErrCodeInternal, Message: err.Error()}
			break
		}
		resp.Result = result
	case "resources/list":
		resp.Result = &mcp.ResourcesListResult{Resources: s.dispatcher.ResourcesList()}
	case "resources/read":
		var params mcp.ResourcesReadParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			resp.Error = &mcp.RPCError{Code: mcp.ErrCodeInvalidParams, Message: "Invalid resources/read params", Data: err.Error()}
			break
		}
		result, err := s.dispatcher.ResourcesRead(params.URI)
		if err != nil {
			resp.Error = &mcp.RPCError{Code: mcp.ErrCodeMethodNotFound, Message: err.Error()}
			break
		}
		resp.Result = result
	default:
		resp.Error = &mcp.RPCError{Code: mcp.ErrCodeMethodNotFound, Message: fmt.Sprintf("method not found: %s", req.Method)}
	}

	return resp
}
