package server

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const writeTimeout = 5 * time.Second

// wsConn is the slice of *websocket.Conn the registry needs. Tests inject
// stubs through it.
type wsConn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type client struct {
	id   string
	conn wsConn

	// Serializes writes: broadcast and the handshake frame may race.
	mu sync.Mutex
}

func (c *client) send(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if d, ok := c.conn.(interface{ SetWriteDeadline(time.Time) error }); ok {
		_ = d.SetWriteDeadline(time.Now().Add(writeTimeout))
	}
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}

// Registry tracks live client connections and fans serialized event
// envelopes out to all of them. The registry, not the client, decides
// liveness: a connection whose send fails is dropped.
type Registry struct {
	mu      sync.Mutex
	clients map[string]*client
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]*client)}
}

// Register adds a connection to the live set and returns its id.
func (r *Registry) Register(conn wsConn) string {
	c := &client{id: uuid.NewString(), conn: conn}

	r.mu.Lock()
	r.clients[c.id] = c
	r.mu.Unlock()

	return c.id
}

// Deregister removes a connection and closes it. Unknown ids are a no-op.
func (r *Registry) Deregister(id string) {
	r.mu.Lock()
	c, ok := r.clients[id]
	if ok {
		delete(r.clients, id)
	}
	r.mu.Unlock()

	if ok {
		_ = c.conn.Close()
	}
}

// Broadcast sends msg to a snapshot of the live set. Connections whose send
// fails are removed after the pass completes, never mid-iteration.
func (r *Registry) Broadcast(msg []byte) {
	r.mu.Lock()
	snapshot := make([]*client, 0, len(r.clients))
	for _, c := range r.clients {
		snapshot = append(snapshot, c)
	}
	r.mu.Unlock()

	var failed []string
	for _, c := range snapshot {
		if err := c.send(msg); err != nil {
			log.Printf("client %s send failed, dropping: %v", c.id, err)
			failed = append(failed, c.id)
		}
	}

	for _, id := range failed {
		r.Deregister(id)
	}
}

// Len reports the number of live connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}
