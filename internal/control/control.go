package control

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/NodePath81/pingbar/internal/config"
	"github.com/NodePath81/pingbar/internal/history"
	"github.com/NodePath81/pingbar/internal/metrics"
	"github.com/NodePath81/pingbar/internal/present"
	"github.com/NodePath81/pingbar/internal/util"
	"github.com/NodePath81/pingbar/internal/version"
	"github.com/gorilla/websocket"
)

const (
	maxRPCBodyBytes   = 1 << 20
	rpcRatePerSecond  = 5
	rpcRateBurst      = 10
	wsTokenPrefix     = "pingbar-token."
	wsPrimaryProtocol = "pingbar"
	wsWriteWait       = 10 * time.Second
	wsPongWait        = 60 * time.Second
	wsPingInterval    = 30 * time.Second
)

// Source is the monitor surface the control server exposes.
type Source interface {
	Status() history.LatencyStatus
	View() present.View
	TogglePlaneMode() bool
	PlaneMode() bool
}

type ControlServer struct {
	fullCfg config.Config
	cfg     config.ControlConfig
	target  string
	source  Source
	metrics *metrics.Metrics
	hub     *StatusHub
	logger  util.Logger
	server  *http.Server
	limiter *rateLimiter
}

func NewControlServer(cfg config.Config, target string, source Source, metrics *metrics.Metrics, hub *StatusHub, logger util.Logger) *ControlServer {
	return &ControlServer{
		fullCfg: cfg,
		cfg:     cfg.Control,
		target:  target,
		source:  source,
		metrics: metrics,
		hub:     hub,
		logger:  logger,
		limiter: newRateLimiter(rpcRatePerSecond, rpcRateBurst, 5*time.Minute),
	}
}

func (c *ControlServer) Handler() http.Handler {
	mux := http.NewServeMux()
	if c.cfg.Metrics.IsEnabled() && c.metrics != nil {
		mux.HandleFunc("/metrics", c.handleMetrics)
	}
	mux.HandleFunc("/rpc", c.handleRPC)
	mux.HandleFunc("/status", c.handleStatus)
	mux.HandleFunc("/identity", c.handleIdentity)
	return mux
}

// Start binds the listener synchronously so a busy port is a startup error.
func (c *ControlServer) Start(ctx context.Context) error {
	addr := util.NetJoin(c.cfg.BindAddr, c.cfg.BindPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	c.server = &http.Server{
		Addr:              addr,
		Handler:           c.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = c.server.Shutdown(shutdownCtx)
	}()

	go func() {
		if err := c.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.logger.Error("control server error", "error", err)
		}
	}()
	c.logger.Info("control server started", "addr", addr)
	return nil
}

func (c *ControlServer) Shutdown(ctx context.Context) error {
	if c.server == nil {
		return nil
	}
	return c.server.Shutdown(ctx)
}

type rpcRequest struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type rpcResponse struct {
	Ok     bool        `json:"ok"`
	Error  string      `json:"error,omitempty"`
	Result interface{} `json:"result,omitempty"`
}

type statusResponse struct {
	Current   history.Sample   `json:"current"`
	Values    []history.Sample `json:"values"`
	PlaneMode bool             `json:"plane_mode"`
}

type toggleResponse struct {
	PlaneMode bool `json:"plane_mode"`
}

type identityResponse struct {
	Hostname string   `json:"hostname"`
	IPs      []string `json:"ips"`
	Target   string   `json:"target"`
	Version  string   `json:"version"`
}

func (c *ControlServer) handleRPC(w http.ResponseWriter, r *http.Request) {
	if !c.limiter.Allow(clientIP(r)) {
		writeJSON(w, http.StatusTooManyRequests, rpcResponse{Ok: false, Error: "rate limit exceeded"})
		return
	}
	if !c.checkAuth(r) {
		writeJSON(w, http.StatusUnauthorized, rpcResponse{Ok: false, Error: "unauthorized"})
		return
	}
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, rpcResponse{Ok: false, Error: "method not allowed"})
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxRPCBodyBytes)
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, rpcResponse{Ok: false, Error: "invalid json"})
		return
	}
	switch req.Method {
	case "GetStatus":
		status := c.source.Status()
		writeJSON(w, http.StatusOK, rpcResponse{Ok: true, Result: statusResponse{
			Current:   status.Current,
			Values:    status.Values,
			PlaneMode: c.source.PlaneMode(),
		}})
	case "GetView":
		writeJSON(w, http.StatusOK, rpcResponse{Ok: true, Result: c.source.View()})
	case "TogglePlaneMode":
		plane := c.source.TogglePlaneMode()
		c.logger.Info("plane mode toggled", "plane_mode", plane, "source", "rpc")
		writeJSON(w, http.StatusOK, rpcResponse{Ok: true, Result: toggleResponse{PlaneMode: plane}})
	case "GetStats":
		if c.metrics == nil {
			writeJSON(w, http.StatusServiceUnavailable, rpcResponse{Ok: false, Error: "metrics not ready"})
			return
		}
		writeJSON(w, http.StatusOK, rpcResponse{Ok: true, Result: c.metrics.Snapshot()})
	case "GetRuntimeConfig":
		writeJSON(w, http.StatusOK, rpcResponse{Ok: true, Result: c.getRuntimeConfig()})
	default:
		writeJSON(w, http.StatusBadRequest, rpcResponse{Ok: false, Error: "unknown method"})
	}
}

func (c *ControlServer) getRuntimeConfig() map[string]interface{} {
	cfg := c.fullCfg
	return map[string]interface{}{
		"target":          cfg.Target,
		"resolved_target": c.target,
		"probe": map[string]interface{}{
			"interval":     cfg.Probe.Interval.Duration().String(),
			"timeout":      cfg.Probe.Timeout.Duration().String(),
			"payload_size": cfg.Probe.PayloadSize,
			"identifier":   cfg.Probe.Identifier,
			"privileged":   cfg.Probe.Privileged,
		},
		"history": map[string]interface{}{
			"capacity": cfg.History.Capacity,
		},
		"thresholds": map[string]interface{}{
			"normal": cfg.Thresholds.Normal,
			"plane":  cfg.Thresholds.Plane,
		},
		"dns": map[string]interface{}{
			"servers":  cfg.DNS.Servers,
			"strategy": cfg.DNS.Strategy,
		},
		"control": map[string]interface{}{
			"bind_addr": cfg.Control.BindAddr,
			"bind_port": cfg.Control.BindPort,
			"metrics": map[string]interface{}{
				"enabled": cfg.Control.Metrics.IsEnabled(),
			},
		},
		"ui": map[string]interface{}{
			"refresh_interval": cfg.UI.RefreshInterval.Duration().String(),
			"headless":         cfg.UI.Headless,
		},
	}
}

func (c *ControlServer) viewMessage(now time.Time) []byte {
	view := c.source.View()
	data, _ := json.Marshal(statusMessage{
		SchemaVersion: 1,
		Type:          "view",
		Timestamp:     now.UnixMilli(),
		View:          &view,
	})
	return data
}

func errorMessage(code, message string) []byte {
	data, _ := json.Marshal(statusMessage{
		SchemaVersion: 1,
		Type:          "error",
		Code:          code,
		Message:       message,
	})
	return data
}

// statusRequest is a client message on the /status websocket.
type statusRequest struct {
	Type       string `json:"type"`
	IntervalMs int    `json:"interval_ms"`
}

func validInterval(ms int) bool {
	return ms == 1000 || ms == 2000 || ms == 5000
}

func (c *ControlServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !c.checkStatusAuth(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	upgrader := websocket.Upgrader{
		CheckOrigin:  func(r *http.Request) bool { return c.originAllowed(r) },
		Subprotocols: []string{wsPrimaryProtocol},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	client := newStatusClient()
	c.hub.Register(client)
	c.logger.Debug("status client connected", "client", client.id)

	go c.writeStatus(conn, client)
	c.readStatus(conn, client)

	c.hub.Unregister(client)
	c.logger.Debug("status client disconnected", "client", client.id)
}

// readStatus handles client requests until the connection fails. Closing the
// client afterwards stops its writer, which closes the connection.
func (c *ControlServer) readStatus(conn *websocket.Conn, client *statusClient) {
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req statusRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			continue
		}
		switch req.Type {
		case "subscribe":
			if !validInterval(req.IntervalMs) {
				client.trySend(errorMessage("invalid_interval", "interval_ms must be 1000, 2000, or 5000"))
				continue
			}
			interval := time.Duration(req.IntervalMs) * time.Millisecond
			if client.subscribe(interval, func(now time.Time) { client.trySend(c.viewMessage(now)) }) {
				client.trySend(c.viewMessage(time.Now()))
			}
		case "unsubscribe":
			client.unsubscribe()
		case "toggle_plane_mode":
			plane := c.source.TogglePlaneMode()
			c.logger.Info("plane mode toggled", "plane_mode", plane, "source", "websocket")
		}
	}
}

func (c *ControlServer) writeStatus(conn *websocket.Conn, client *statusClient) {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()
	for {
		select {
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case data, ok := <-client.send:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wsWriteWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}

func (c *ControlServer) handleIdentity(w http.ResponseWriter, r *http.Request) {
	if !c.checkAuth(r) {
		writeJSON(w, http.StatusUnauthorized, rpcResponse{Ok: false, Error: "unauthorized"})
		return
	}
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, rpcResponse{Ok: false, Error: "method not allowed"})
		return
	}
	name, _ := os.Hostname()
	resp := identityResponse{
		Hostname: name,
		IPs:      listActiveIPs(),
		Target:   c.target,
		Version:  version.Version,
	}
	writeJSON(w, http.StatusOK, rpcResponse{Ok: true, Result: resp})
}

func listActiveIPs() []string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}
	ips := make([]string, 0)
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrList, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrList {
			if ipNet, ok := addr.(*net.IPNet); ok && ipNet.IP != nil {
				ips = append(ips, ipNet.IP.String())
			}
		}
	}
	return ips
}

func (c *ControlServer) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if !c.checkAuth(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	c.metrics.Handler(w, r)
}

func (c *ControlServer) checkAuth(r *http.Request) bool {
	token, ok := bearerToken(r)
	if !ok {
		return false
	}
	return secureTokenEqual(token, c.cfg.AuthToken)
}

func (c *ControlServer) checkStatusAuth(r *http.Request) bool {
	if token, ok := bearerToken(r); ok {
		return secureTokenEqual(token, c.cfg.AuthToken)
	}
	if token, ok := tokenFromWebSocketProtocols(r); ok {
		return secureTokenEqual(token, c.cfg.AuthToken)
	}
	return false
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(auth, prefix))
	if token == "" {
		return "", false
	}
	return token, true
}

func tokenFromWebSocketProtocols(r *http.Request) (string, bool) {
	for _, proto := range websocket.Subprotocols(r) {
		if !strings.HasPrefix(proto, wsTokenPrefix) {
			continue
		}
		encoded := strings.TrimPrefix(proto, wsTokenPrefix)
		if encoded == "" {
			continue
		}
		decoded, err := base64.RawURLEncoding.DecodeString(encoded)
		if err != nil || len(decoded) == 0 {
			continue
		}
		return string(decoded), true
	}
	return "", false
}

func secureTokenEqual(a, b string) bool {
	if b == "" || len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (c *ControlServer) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	return strings.EqualFold(parsed.Host, r.Host)
}

func writeJSON(w http.ResponseWriter, status int, resp rpcResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

type rateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientLimiter
	rate    float64
	burst   float64
	ttl     time.Duration
}

type clientLimiter struct {
	tokens float64
	last   time.Time
}

func newRateLimiter(rate float64, burst int, ttl time.Duration) *rateLimiter {
	return &rateLimiter{
		clients: make(map[string]*clientLimiter),
		rate:    rate,
		burst:   float64(burst),
		ttl:     ttl,
	}
}

func (r *rateLimiter) Allow(key string) bool {
	if key == "" {
		return false
	}
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	limiter := r.clients[key]
	if limiter != nil && now.Sub(limiter.last) > r.ttl {
		delete(r.clients, key)
		limiter = nil
	}
	if limiter == nil {
		r.clients[key] = &clientLimiter{
			tokens: r.burst - 1,
			last:   now,
		}
		return true
	}
	elapsed := now.Sub(limiter.last).Seconds()
	limiter.tokens = min(r.burst, limiter.tokens+elapsed*r.rate)
	limiter.last = now
	if limiter.tokens < 1 {
		return false
	}
	limiter.tokens -= 1
	return true
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
