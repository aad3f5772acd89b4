package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Freehand actions carry whole
	// point trails, so this is far above a chat-sized frame.
	maxMessageSize = 1 << 20
)

var defaultUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ConnManager owns all live websocket connections, keyed by user id. A user
// holds at most one connection: a reconnect under the same identity replaces
// and closes the stale one.
type ConnManager struct {
	conns   map[string]*Conn
	mu      sync.RWMutex
	connWg  *sync.WaitGroup
	context context.Context
	logger  *slog.Logger

	onConnect    func(userID string)
	onDisconnect func(userID string)

	receivedEvent chan *Event

	upgrader        websocket.Upgrader
	ReadStreamSize  int
	WriteStreamSize int
}

type ManagerOption func(*ConnManager)

func WithCheckOrigin(f func(r *http.Request) bool) ManagerOption {
	return func(m *ConnManager) {
		m.upgrader.CheckOrigin = f
	}
}

func NewConnManager(ctx context.Context, wg *sync.WaitGroup, logger *slog.Logger, opts ...ManagerOption) *ConnManager {
	m := &ConnManager{
		conns:           make(map[string]*Conn),
		connWg:          wg,
		context:         ctx,
		logger:          logger,
		upgrader:        defaultUpgrader,
		ReadStreamSize:  256,
		WriteStreamSize: 256,
		onConnect:       func(string) {},
		onDisconnect:    func(string) {},
	}

	for _, opt := range opts {
		opt(m)
	}

	m.receivedEvent = make(chan *Event, m.ReadStreamSize)

	return m
}

func (m *ConnManager) Receive() <-chan *Event {
	return m.receivedEvent
}

func (m *ConnManager) OnConnect(f func(userID string)) {
	m.onConnect = f
}

// OnDisconnect fires exactly once per closed connection whose user still
// owned it, which is what maps an abrupt close to an implicit room leave.
func (m *ConnManager) OnDisconnect(f func(userID string)) {
	m.onDisconnect = f
}

func (m *ConnManager) IsConnected(userID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.conns[userID]
	return ok
}

// Connect upgrades the request and registers the connection under userID.
func (m *ConnManager) Connect(userID string, w http.ResponseWriter, r *http.Request) error {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	wsConn := &Conn{
		userID:      userID,
		conn:        conn,
		context:     m.context,
		writeStream: make(chan *Event, m.WriteStreamSize),
		readStream:  m.receivedEvent,
		ticker:      time.NewTicker(pingPeriod),
		logger:      m.logger.With(slog.String("connection", userID)),
	}
	wsConn.notifyDisconnect = func() {
		m.disconnect(wsConn)
	}

	m.mu.Lock()
	if stale, ok := m.conns[userID]; ok {
		m.logger.Info(fmt.Sprintf("replacing stale connection for user %s", userID))
		stale.close()
	}
	m.conns[userID] = wsConn
	m.mu.Unlock()

	m.connWg.Add(1)
	go func() {
		defer m.connWg.Done()
		wsConn.readLoop()
	}()
	m.connWg.Add(1)
	go func() {
		defer m.connWg.Done()
		wsConn.writeLoop()
	}()

	m.onConnect(userID)

	return nil
}

// disconnect tears down c. When c has already been replaced by a newer
// connection for the same user, the registered entry is left alone and no
// callback fires.
func (m *ConnManager) disconnect(c *Conn) {
	m.mu.Lock()
	current, ok := m.conns[c.userID]
	if !ok || current != c {
		m.mu.Unlock()
		c.close()
		return
	}
	delete(m.conns, c.userID)
	m.mu.Unlock()

	c.close()
	m.onDisconnect(c.userID)
}

// SendTo queues an event for a single connected user, dropping it when the
// user is offline or the queue is full.
func (m *ConnManager) SendTo(e *Event, userID string) {
	m.mu.RLock()
	conn, ok := m.conns[userID]
	m.mu.RUnlock()
	if !ok {
		return
	}
	if !conn.TrySend(e) {
		m.logger.Warn(fmt.Sprintf("dropped %s for user %s", e.Type, userID))
	}
}

// Sender returns the user's live outbound queue for rooms to broadcast on.
func (m *ConnManager) Sender(userID string) (EventSender, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conn, ok := m.conns[userID]
	return conn, ok
}

// Close tears down every live connection.
func (m *ConnManager) Close() {
	m.mu.Lock()
	conns := make([]*Conn, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.conns = make(map[string]*Conn)
	m.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
}
