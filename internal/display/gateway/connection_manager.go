package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ClientKind is the declared role of a connection.
type ClientKind string

const (
	KindDisplay ClientKind = "display"
	KindControl ClientKind = "control"
)

// ConnectionManager tracks live display/control connections, grouped
// into tenant-scoped channels. A connection registered without a tenant
// id is a legacy unscoped client: it receives every tenant's broadcasts.
// Scoped tenants never see another tenant's data.
type ConnectionManager struct {
	// mu guards the tenants map and the id index only. Each tenant
	// channel carries its own lock so unrelated tenants' traffic is
	// never serialized against each other.
	mu      sync.RWMutex
	tenants map[string]*tenantChannel
	byID    map[string]*Connection

	upgrader websocket.Upgrader
	config   ConnectionConfig

	broadcastCh chan broadcastMessage
}

// tenantChannel is one tenant's fan-out group plus its delivery window:
// the timestamp and content hash of the last broadcast attempt.
type tenantChannel struct {
	mu              sync.RWMutex
	conns           map[string]*Connection
	lastBroadcastAt time.Time
	lastContentHash string
}

// Connection is one live client connection.
type Connection struct {
	ID       string
	TenantID string // empty for legacy unscoped clients
	Kind     ClientKind
	Conn     *websocket.Conn
	Send     chan []byte
	Manager  *ConnectionManager

	ConnectedAt time.Time
	LastPing    time.Time

	// sendMu guards Send against the close in Unregister. Broadcasts
	// racing a disconnect are the normal case for flaky display
	// hardware, so every send goes through trySend.
	sendMu     sync.Mutex
	sendClosed bool

	// Acknowledgment state, updated from the read pump.
	ackMu       sync.Mutex
	lastAckHash string
	lastAckAt   time.Time
	ackCount    int
}

// trySend queues data for the write pump. ok is false when the buffer
// is full or the connection is closing; the caller decides eviction.
func (c *Connection) trySend(data []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// closeSend closes the send channel exactly once.
func (c *Connection) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.sendClosed {
		c.sendClosed = true
		close(c.Send)
	}
}

// ConnectionConfig holds WebSocket tuning for client connections.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

type broadcastMessage struct {
	TenantID string
	Data     []byte
}

// DefaultConnectionConfig returns the stock WebSocket tuning.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Displays run on venue hardware without a fixed origin.
			return true
		},
	}
}

// NewConnectionManager creates an empty connection manager.
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		tenants: make(map[string]*tenantChannel),
		byID:    make(map[string]*Connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan broadcastMessage, 1000),
	}
}

// Start processes queued broadcasts until ctx is cancelled. A single
// consumer keeps per-tenant delivery ordered: messages reach the fan-out
// set in the order Broadcast was called.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP request to a WebSocket and
// registers the resulting connection. Identity/authorization is the
// caller's job; the manager performs none.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, tenantID string, kind ClientKind) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		TenantID:    tenantID,
		Kind:        kind,
		Conn:        conn,
		Send:        make(chan []byte, 256),
		Manager:     cm,
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
	}

	cm.register(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("tenant_id", tenantID).
		Str("kind", string(kind)).
		Msg("display connection established")
	return nil
}

func (cm *ConnectionManager) channel(tenantID string) *tenantChannel {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	tc, ok := cm.tenants[tenantID]
	if !ok {
		tc = &tenantChannel{conns: make(map[string]*Connection)}
		cm.tenants[tenantID] = tc
	}
	return tc
}

func (cm *ConnectionManager) lookupChannel(tenantID string) *tenantChannel {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.tenants[tenantID]
}

func (cm *ConnectionManager) register(conn *Connection) {
	tc := cm.channel(conn.TenantID)

	cm.mu.Lock()
	cm.byID[conn.ID] = conn
	cm.mu.Unlock()

	tc.mu.Lock()
	tc.conns[conn.ID] = conn
	total := len(tc.conns)
	tc.mu.Unlock()

	log.Debug().
		Str("connection_id", conn.ID).
		Str("tenant_id", conn.TenantID).
		Int("tenant_connections", total).
		Msg("connection registered")
}

// Unregister removes a connection and closes its send channel. Unknown
// ids are a no-op, so disconnect and eviction can race safely.
func (cm *ConnectionManager) Unregister(connID string) {
	cm.mu.Lock()
	conn, ok := cm.byID[connID]
	if ok {
		delete(cm.byID, connID)
	}
	cm.mu.Unlock()
	if !ok {
		return
	}

	if tc := cm.lookupChannel(conn.TenantID); tc != nil {
		tc.mu.Lock()
		delete(tc.conns, connID)
		tc.mu.Unlock()
	}
	conn.closeSend()

	log.Info().
		Str("connection_id", connID).
		Str("tenant_id", conn.TenantID).
		Msg("connection unregistered")
}

// RecordAck stores a display's applied-update report. Acks are
// idempotent and monotonic: a timestamp older than the stored one is
// ignored, which guards against out-of-order network delivery.
func (cm *ConnectionManager) RecordAck(connID, contentHash string, at time.Time) bool {
	cm.mu.RLock()
	conn := cm.byID[connID]
	cm.mu.RUnlock()
	if conn == nil {
		return false
	}

	conn.ackMu.Lock()
	defer conn.ackMu.Unlock()
	if at.Before(conn.lastAckAt) {
		return false
	}
	conn.lastAckHash = contentHash
	conn.lastAckAt = at
	conn.ackCount++
	return true
}

// MembersOf returns the connection ids a broadcast to tenantID reaches:
// the tenant's own connections plus every legacy unscoped connection.
func (cm *ConnectionManager) MembersOf(tenantID string) []string {
	var ids []string
	for _, conn := range cm.fanoutSet(tenantID) {
		ids = append(ids, conn.ID)
	}
	return ids
}

// Broadcast queues data for delivery to the tenant's fan-out set. It
// never blocks the caller; if the queue is saturated the message is
// dropped and the next full update catches clients up.
func (cm *ConnectionManager) Broadcast(tenantID string, data []byte) {
	select {
	case cm.broadcastCh <- broadcastMessage{TenantID: tenantID, Data: data}:
	default:
		log.Warn().Str("tenant_id", tenantID).Msg("broadcast queue full, dropping message")
	}
}

// SetWindow records the tenant's last broadcast attempt. The window
// reflects "last attempt", not "last successful delivery": it is set
// even when the tenant has zero connections.
func (cm *ConnectionManager) SetWindow(tenantID string, at time.Time, contentHash string) {
	tc := cm.channel(tenantID)
	tc.mu.Lock()
	tc.lastBroadcastAt = at
	tc.lastContentHash = contentHash
	tc.mu.Unlock()
}

// Window returns the tenant's last broadcast timestamp and content hash.
// ok is false when the tenant has never broadcast.
func (cm *ConnectionManager) Window(tenantID string) (time.Time, string, bool) {
	tc := cm.lookupChannel(tenantID)
	if tc == nil {
		return time.Time{}, "", false
	}
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	if tc.lastBroadcastAt.IsZero() {
		return time.Time{}, "", false
	}
	return tc.lastBroadcastAt, tc.lastContentHash, true
}

// HasAckSince reports whether any member of the tenant's fan-out set
// acknowledged at or after the given instant. Legacy unscoped clients
// receive every tenant's traffic, so for them the acknowledged hash must
// also match before the ack counts for this tenant.
func (cm *ConnectionManager) HasAckSince(tenantID string, at time.Time, contentHash string) bool {
	for _, conn := range cm.fanoutSet(tenantID) {
		conn.ackMu.Lock()
		ackAt, ackHash := conn.lastAckAt, conn.lastAckHash
		conn.ackMu.Unlock()
		if ackAt.IsZero() || ackAt.Before(at) {
			continue
		}
		if conn.TenantID == "" && ackHash != contentHash {
			continue
		}
		return true
	}
	return false
}

func (cm *ConnectionManager) fanoutSet(tenantID string) []*Connection {
	var out []*Connection
	if tc := cm.lookupChannel(tenantID); tc != nil {
		tc.mu.RLock()
		for _, conn := range tc.conns {
			out = append(out, conn)
		}
		tc.mu.RUnlock()
	}
	if tenantID == "" {
		return out
	}
	if legacy := cm.lookupChannel(""); legacy != nil {
		legacy.mu.RLock()
		for _, conn := range legacy.conns {
			out = append(out, conn)
		}
		legacy.mu.RUnlock()
	}
	return out
}

func (cm *ConnectionManager) handleBroadcast(message broadcastMessage) {
	targets := cm.fanoutSet(message.TenantID)

	for _, conn := range targets {
		if conn.trySend(message.Data) {
			continue
		}
		// Slow or already-closing client. Drop it; it will reconnect
		// and re-seed from the latest snapshot.
		log.Warn().
			Str("connection_id", conn.ID).
			Str("tenant_id", conn.TenantID).
			Msg("send failed, closing connection")
		cm.Unregister(conn.ID)
		if conn.Conn != nil {
			conn.Conn.Close()
		}
	}

	log.Debug().
		Str("tenant_id", message.TenantID).
		Int("connections", len(targets)).
		Msg("broadcast fanned out")
}

// Stats returns connection counts for the stats endpoint.
func (cm *ConnectionManager) Stats() map[string]interface{} {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	total := 0
	perTenant := make(map[string]int)
	for tenantID, tc := range cm.tenants {
		tc.mu.RLock()
		n := len(tc.conns)
		tc.mu.RUnlock()
		total += n
		if n > 0 {
			perTenant[tenantID] = n
		}
	}
	return map[string]interface{}{
		"total_connections":  total,
		"tenant_connections": perTenant,
	}
}
