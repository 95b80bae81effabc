package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/trellisgw/trellis/internal/console/docstore"
	"github.com/trellisgw/trellis/internal/console/editor"
	"github.com/trellisgw/trellis/internal/console/engine"
	"github.com/trellisgw/trellis/internal/console/eventbus"
	"github.com/trellisgw/trellis/internal/console/events"
	"github.com/trellisgw/trellis/internal/console/hierarchy"
	"github.com/trellisgw/trellis/internal/console/schemas"
	"github.com/trellisgw/trellis/internal/gatewaycfg"
)

// revisionHeader carries the document revision token on responses and the
// client's expected revision on mutating requests.
const revisionHeader = "X-Trellis-Revision"

// New constructs the console HTTP API router backed by the engine.
func New(logger *slog.Logger, eng engine.Engine, bus eventbus.Bus) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(logger))

	if cidr := os.Getenv("TRELLIS_API_ALLOW_CIDR"); cidr != "" {
		allowList := strings.Split(cidr, ",")
		r.Use(ipFilterMiddleware(logger, allowList))
	}

	if apiKey := os.Getenv("TRELLIS_API_KEY"); apiKey != "" {
		r.Use(apiKeyMiddleware(apiKey))
	}

	api := &apiServer{logger: logger, engine: eng, bus: bus}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/openapi.json", func(c *gin.Context) {
		api.serveOpenAPI(c.Writer, c.Request)
	})

	v1 := r.Group("/api/v1")
	{
		v1.GET("/hierarchy", api.getHierarchy)
		v1.GET("/stats", api.getStats)

		v1.GET("/document", api.getDocument)
		v1.PUT("/document", api.putDocument)
		v1.GET("/document/history", api.getHistory)
		v1.GET("/document/history/:revision", api.getHistorySnapshot)

		v1.GET("/schemas", api.listSchemas)
		v1.GET("/schemas/:category", api.getSchema)
		v1.POST("/schemas/:category/resolve", api.resolveSchema)

		binds := v1.Group("/binds")
		{
			binds.POST("", api.createBind)
			binds.PUT(":port", api.updateBind)
			binds.DELETE(":port", api.deleteBind)
			binds.POST(":port/listeners", api.createListener)
			binds.PUT(":port/listeners/:index", api.updateListener)
			binds.DELETE(":port/listeners/:index", api.deleteListener)
			binds.POST(":port/listeners/:index/routes/:kind", api.createRoute)
			binds.PUT(":port/listeners/:index/routes/:kind/:rindex", api.updateRoute)
			binds.DELETE(":port/listeners/:index/routes/:kind/:rindex", api.deleteRoute)
			binds.POST(":port/listeners/:index/routes/:kind/:rindex/backends", api.createBackend)
			binds.PUT(":port/listeners/:index/routes/:kind/:rindex/backends/:bindex", api.updateBackend)
			binds.DELETE(":port/listeners/:index/routes/:kind/:rindex/backends/:bindex", api.deleteBackend)
		}

		backends := v1.Group("/backends")
		{
			backends.GET("", api.listNamedBackends)
			backends.PUT(":name", api.upsertNamedBackend)
			backends.DELETE(":name", api.deleteNamedBackend)
		}

		policies := v1.Group("/policies")
		{
			policies.GET("", api.listPolicies)
			policies.PUT(":name", api.upsertPolicy)
			policies.DELETE(":name", api.deletePolicy)
		}

		v1.GET("/events/document", api.streamDocumentEvents)
	}

	r.GET("/ws/v1/events", api.eventsWebSocket)

	return r
}

// requestLogger adapts slog to Gin's middleware interface.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		args := []any{
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.String("latency", latency.String()),
			slog.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			args = append(args, slog.String("error", c.Errors.String()))
			logger.Error("http request", args...)
		} else {
			logger.Info("http request", args...)
		}
	}
}

func ipFilterMiddleware(logger *slog.Logger, cidrs []string) gin.HandlerFunc {
	var networks []*net.IPNet
	for _, raw := range cidrs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		_, network, err := net.ParseCIDR(raw)
		if err != nil {
			logger.Warn("invalid CIDR", "cidr", raw, "error", err)
			continue
		}
		networks = append(networks, network)
	}
	if len(networks) == 0 {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		ip := net.ParseIP(c.ClientIP())
		if ip == nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid client IP"})
			return
		}
		for _, network := range networks {
			if network.Contains(ip) {
				c.Next()
				return
			}
		}
		logger.Warn("request blocked by CIDR filter", "ip", ip.String())
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "access denied"})
	}
}

func apiKeyMiddleware(expected string) gin.HandlerFunc {
	return func(c *gin.Context) {
		provided := c.GetHeader("X-Trellis-API-Key")
		if provided == "" {
			provided = c.Query("api_key")
		}
		if provided != expected {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
			return
		}
		c.Next()
	}
}

type apiServer struct {
	logger *slog.Logger
	engine engine.Engine
	bus    eventbus.Bus
}

// editRequest is the body of every node create/update call: the raw form
// value plus keys whose empty values must survive default stripping.
type editRequest struct {
	Value map[string]any `json:"value"`
	Keep  []string       `json:"keep,omitempty"`
}

// editResponse acknowledges a committed mutation.
type editResponse struct {
	Revision string          `json:"revision"`
	Stats    hierarchy.Stats `json:"stats"`
}

type statsResponse struct {
	Revision string          `json:"revision"`
	Stats    hierarchy.Stats `json:"stats"`
}

type resolveRequest struct {
	Pointer   string `json:"pointer,omitempty"`
	Value     any    `json:"value,omitempty"`
	Selection *int   `json:"selection,omitempty"`
	Enabled   *bool  `json:"enabled,omitempty"`
}

func (api *apiServer) getHierarchy(c *gin.Context) {
	snap, err := api.engine.Hierarchy(c.Request.Context())
	if err != nil {
		api.logger.Error("get hierarchy", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build hierarchy"})
		return
	}
	c.Header(revisionHeader, snap.Revision)
	c.JSON(http.StatusOK, snap)
}

func (api *apiServer) getStats(c *gin.Context) {
	snap, err := api.engine.Hierarchy(c.Request.Context())
	if err != nil {
		api.logger.Error("get stats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build hierarchy"})
		return
	}
	c.JSON(http.StatusOK, statsResponse{Revision: snap.Revision, Stats: snap.Tree.Stats})
}

func (api *apiServer) getDocument(c *gin.Context) {
	doc, revision, err := api.engine.Document(c.Request.Context())
	if err != nil {
		api.logger.Error("get document", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load document"})
		return
	}
	c.Header(revisionHeader, revision)
	c.JSON(http.StatusOK, doc)
}

func (api *apiServer) putDocument(c *gin.Context) {
	var doc gatewaycfg.Document
	if err := c.ShouldBindJSON(&doc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	snap, err := api.engine.ReplaceDocument(c.Request.Context(), doc, c.GetHeader(revisionHeader))
	if err != nil {
		api.logger.Error("replace document", "error", err)
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	c.Header(revisionHeader, snap.Revision)
	c.JSON(http.StatusOK, editResponse{Revision: snap.Revision, Stats: snap.Tree.Stats})
}

func (api *apiServer) getHistory(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	entries, err := api.engine.History(c.Request.Context(), limit)
	if err != nil {
		api.logger.Error("get history", "error", err)
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	if entries == nil {
		entries = []docstore.HistoryEntry{}
	}
	c.JSON(http.StatusOK, entries)
}

func (api *apiServer) getHistorySnapshot(c *gin.Context) {
	entry, err := api.engine.HistorySnapshot(c.Request.Context(), c.Param("revision"))
	if err != nil {
		api.logger.Error("get history snapshot", "error", err)
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	if entry == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "revision not found"})
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (api *apiServer) listSchemas(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"categories": api.engine.Categories()})
}

func (api *apiServer) getSchema(c *gin.Context) {
	schema, err := api.engine.Schema(schemas.Category(c.Param("category")))
	if err != nil {
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, schema)
}

func (api *apiServer) resolveSchema(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := api.engine.ResolveUnion(engine.ResolveRequest{
		Category:  schemas.Category(c.Param("category")),
		Pointer:   req.Pointer,
		Value:     req.Value,
		Selection: req.Selection,
		Enabled:   req.Enabled,
	})
	if err != nil {
		if errors.Is(err, schemas.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (api *apiServer) createBind(c *gin.Context) {
	req, ok := api.bindEditRequest(c)
	if !ok {
		return
	}
	// The new bind's port comes from the form value; the editor validates it.
	port := 0
	if v, ok := req.Value["port"].(float64); ok {
		port = int(v)
	}
	api.runEdit(c, gatewaycfg.BindAddress(port), gatewaycfg.NodeBind, editor.OpCreate, req)
}

func (api *apiServer) updateBind(c *gin.Context) {
	port, ok := api.pathInt(c, "port")
	if !ok {
		return
	}
	req, ok := api.bindEditRequest(c)
	if !ok {
		return
	}
	api.runEdit(c, gatewaycfg.BindAddress(port), gatewaycfg.NodeBind, editor.OpUpdate, req)
}

func (api *apiServer) deleteBind(c *gin.Context) {
	port, ok := api.pathInt(c, "port")
	if !ok {
		return
	}
	api.runDelete(c, gatewaycfg.BindAddress(port), gatewaycfg.NodeBind)
}

func (api *apiServer) createListener(c *gin.Context) {
	port, ok := api.pathInt(c, "port")
	if !ok {
		return
	}
	req, ok := api.bindEditRequest(c)
	if !ok {
		return
	}
	api.runEdit(c, gatewaycfg.BindAddress(port), gatewaycfg.NodeListener, editor.OpCreate, req)
}

func (api *apiServer) updateListener(c *gin.Context) {
	port, index, ok := api.listenerPath(c)
	if !ok {
		return
	}
	req, ok := api.bindEditRequest(c)
	if !ok {
		return
	}
	api.runEdit(c, gatewaycfg.ListenerAddress(port, index), gatewaycfg.NodeListener, editor.OpUpdate, req)
}

func (api *apiServer) deleteListener(c *gin.Context) {
	port, index, ok := api.listenerPath(c)
	if !ok {
		return
	}
	api.runDelete(c, gatewaycfg.ListenerAddress(port, index), gatewaycfg.NodeListener)
}

func (api *apiServer) createRoute(c *gin.Context) {
	port, index, ok := api.listenerPath(c)
	if !ok {
		return
	}
	kind, ok := api.pathKind(c)
	if !ok {
		return
	}
	req, ok := api.bindEditRequest(c)
	if !ok {
		return
	}
	api.runEdit(c, gatewaycfg.RouteAddress(port, index, kind, 0), gatewaycfg.NodeRoute, editor.OpCreate, req)
}

func (api *apiServer) updateRoute(c *gin.Context) {
	addr, ok := api.routePath(c)
	if !ok {
		return
	}
	req, ok := api.bindEditRequest(c)
	if !ok {
		return
	}
	api.runEdit(c, addr, gatewaycfg.NodeRoute, editor.OpUpdate, req)
}

func (api *apiServer) deleteRoute(c *gin.Context) {
	addr, ok := api.routePath(c)
	if !ok {
		return
	}
	api.runDelete(c, addr, gatewaycfg.NodeRoute)
}

func (api *apiServer) createBackend(c *gin.Context) {
	addr, ok := api.routePath(c)
	if !ok {
		return
	}
	req, ok := api.bindEditRequest(c)
	if !ok {
		return
	}
	target := gatewaycfg.BackendAddress(addr.Port, addr.Listener, addr.RouteKind, addr.Route, 0)
	api.runEdit(c, target, gatewaycfg.NodeBackend, editor.OpCreate, req)
}

func (api *apiServer) updateBackend(c *gin.Context) {
	addr, ok := api.backendPath(c)
	if !ok {
		return
	}
	req, ok := api.bindEditRequest(c)
	if !ok {
		return
	}
	api.runEdit(c, addr, gatewaycfg.NodeBackend, editor.OpUpdate, req)
}

func (api *apiServer) deleteBackend(c *gin.Context) {
	addr, ok := api.backendPath(c)
	if !ok {
		return
	}
	api.runDelete(c, addr, gatewaycfg.NodeBackend)
}

func (api *apiServer) listNamedBackends(c *gin.Context) {
	doc, revision, err := api.engine.Document(c.Request.Context())
	if err != nil {
		api.logger.Error("list backends", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load document"})
		return
	}
	backends := doc.Backends
	if backends == nil {
		backends = []gatewaycfg.NamedBackend{}
	}
	c.Header(revisionHeader, revision)
	c.JSON(http.StatusOK, backends)
}

func (api *apiServer) upsertNamedBackend(c *gin.Context) {
	var backend gatewaycfg.Backend
	if err := c.ShouldBindJSON(&backend); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	named := gatewaycfg.NamedBackend{Name: c.Param("name"), Backend: backend}
	snap, err := api.engine.UpsertNamedBackend(c.Request.Context(), named, c.GetHeader(revisionHeader))
	if err != nil {
		api.logger.Error("upsert backend", "backend", named.Name, "error", err)
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	c.Header(revisionHeader, snap.Revision)
	c.JSON(http.StatusOK, editResponse{Revision: snap.Revision, Stats: snap.Tree.Stats})
}

func (api *apiServer) deleteNamedBackend(c *gin.Context) {
	name := c.Param("name")
	snap, err := api.engine.DeleteNamedBackend(c.Request.Context(), name, c.GetHeader(revisionHeader))
	if err != nil {
		api.logger.Error("delete backend", "backend", name, "error", err)
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	c.Header(revisionHeader, snap.Revision)
	c.JSON(http.StatusOK, editResponse{Revision: snap.Revision, Stats: snap.Tree.Stats})
}

func (api *apiServer) listPolicies(c *gin.Context) {
	doc, revision, err := api.engine.Document(c.Request.Context())
	if err != nil {
		api.logger.Error("list policies", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load document"})
		return
	}
	policies := doc.Policies
	if policies == nil {
		policies = []gatewaycfg.Policy{}
	}
	c.Header(revisionHeader, revision)
	c.JSON(http.StatusOK, policies)
}

func (api *apiServer) upsertPolicy(c *gin.Context) {
	var policy gatewaycfg.Policy
	if err := c.ShouldBindJSON(&policy); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	policy.Name = c.Param("name")
	snap, err := api.engine.UpsertPolicy(c.Request.Context(), policy, c.GetHeader(revisionHeader))
	if err != nil {
		api.logger.Error("upsert policy", "policy", policy.Name, "error", err)
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	c.Header(revisionHeader, snap.Revision)
	c.JSON(http.StatusOK, editResponse{Revision: snap.Revision, Stats: snap.Tree.Stats})
}

func (api *apiServer) deletePolicy(c *gin.Context) {
	name := c.Param("name")
	snap, err := api.engine.DeletePolicy(c.Request.Context(), name, c.GetHeader(revisionHeader))
	if err != nil {
		api.logger.Error("delete policy", "policy", name, "error", err)
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	c.Header(revisionHeader, snap.Revision)
	c.JSON(http.StatusOK, editResponse{Revision: snap.Revision, Stats: snap.Tree.Stats})
}

func (api *apiServer) streamDocumentEvents(c *gin.Context) {
	if api.bus == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event streaming not available"})
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}

	ctx := c.Request.Context()
	eventsCh := make(chan any, 16)
	unsubscribe, err := api.bus.Subscribe(events.TopicDocumentEvents, eventsCh)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to subscribe"})
		return
	}
	defer unsubscribe()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-eventsCh:
			if payload == nil {
				continue
			}
			event, ok := payload.(events.DocumentEvent)
			if !ok {
				continue
			}
			data, err := json.Marshal(event)
			if err != nil {
				api.logger.Error("marshal document event", "error", err)
				continue
			}
			if _, err := c.Writer.Write([]byte("event: " + event.Type + "\n")); err != nil {
				return
			}
			if _, err := c.Writer.Write([]byte("data: " + string(data) + "\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (api *apiServer) eventsWebSocket(c *gin.Context) {
	if api.bus == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event streaming not available"})
		return
	}
	conn, err := (&websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}).Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		api.logger.Error("events ws upgrade", "error", err)
		return
	}
	defer conn.Close()

	ctx := c.Request.Context()
	eventsCh := make(chan any, 16)
	unsubscribe, err := api.bus.Subscribe(events.TopicDocumentEvents, eventsCh)
	if err != nil {
		api.logger.Error("events ws subscribe", "error", err)
		return
	}
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-eventsCh:
			if payload == nil {
				continue
			}
			event, ok := payload.(events.DocumentEvent)
			if !ok {
				continue
			}
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		}
	}
}

func (api *apiServer) bindEditRequest(c *gin.Context) (editRequest, bool) {
	var req editRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return req, false
	}
	if req.Value == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "value is required"})
		return req, false
	}
	return req, true
}

func (api *apiServer) runEdit(c *gin.Context, addr gatewaycfg.Address, nodeType gatewaycfg.NodeType, op editor.Operation, req editRequest) {
	snap, err := api.engine.ApplyEdit(c.Request.Context(), engine.EditRequest{
		Address:  addr,
		NodeType: nodeType,
		Op:       op,
		Value:    req.Value,
		Keep:     req.Keep,
		Revision: c.GetHeader(revisionHeader),
	})
	if err != nil {
		api.logger.Error("apply edit", "address", addr.String(), "op", string(op), "error", err)
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	status := http.StatusOK
	if op == editor.OpCreate {
		status = http.StatusCreated
	}
	c.Header(revisionHeader, snap.Revision)
	c.JSON(status, editResponse{Revision: snap.Revision, Stats: snap.Tree.Stats})
}

func (api *apiServer) runDelete(c *gin.Context, addr gatewaycfg.Address, nodeType gatewaycfg.NodeType) {
	snap, err := api.engine.ApplyDelete(c.Request.Context(), engine.DeleteRequest{
		Address:  addr,
		NodeType: nodeType,
		Revision: c.GetHeader(revisionHeader),
	})
	if err != nil {
		api.logger.Error("apply delete", "address", addr.String(), "error", err)
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	c.Header(revisionHeader, snap.Revision)
	c.JSON(http.StatusOK, editResponse{Revision: snap.Revision, Stats: snap.Tree.Stats})
}

func (api *apiServer) pathInt(c *gin.Context, name string) (int, bool) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil || v < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name + " segment"})
		return 0, false
	}
	return v, true
}

func (api *apiServer) pathKind(c *gin.Context) (gatewaycfg.RouteKind, bool) {
	kind := gatewaycfg.RouteKind(c.Param("kind"))
	if kind != gatewaycfg.RouteKindHTTP && kind != gatewaycfg.RouteKindTCP {
		c.JSON(http.StatusBadRequest, gin.H{"error": "route kind must be http or tcp"})
		return "", false
	}
	return kind, true
}

func (api *apiServer) listenerPath(c *gin.Context) (int, int, bool) {
	port, ok := api.pathInt(c, "port")
	if !ok {
		return 0, 0, false
	}
	index, ok := api.pathInt(c, "index")
	if !ok {
		return 0, 0, false
	}
	return port, index, true
}

func (api *apiServer) routePath(c *gin.Context) (gatewaycfg.Address, bool) {
	port, index, ok := api.listenerPath(c)
	if !ok {
		return gatewaycfg.Address{}, false
	}
	kind, ok := api.pathKind(c)
	if !ok {
		return gatewaycfg.Address{}, false
	}
	rindex, ok := api.pathInt(c, "rindex")
	if !ok {
		return gatewaycfg.Address{}, false
	}
	return gatewaycfg.RouteAddress(port, index, kind, rindex), true
}

func (api *apiServer) backendPath(c *gin.Context) (gatewaycfg.Address, bool) {
	addr, ok := api.routePath(c)
	if !ok {
		return gatewaycfg.Address{}, false
	}
	bindex, ok := api.pathInt(c, "bindex")
	if !ok {
		return gatewaycfg.Address{}, false
	}
	return gatewaycfg.BackendAddress(addr.Port, addr.Listener, addr.RouteKind, addr.Route, bindex), true
}

func statusFromError(err error) int {
	var validation gatewaycfg.ValidationError
	switch {
	case errors.Is(err, editor.ErrAddressNotFound),
		errors.Is(err, engine.ErrBackendNotFound),
		errors.Is(err, engine.ErrPolicyNotFound),
		errors.Is(err, schemas.ErrNotFound),
		errors.Is(err, docstore.ErrNoHistory):
		return http.StatusNotFound
	case errors.Is(err, editor.ErrInvariantViolation),
		errors.Is(err, docstore.ErrRevisionConflict):
		return http.StatusConflict
	case errors.As(err, &validation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
