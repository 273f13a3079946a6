package chat

import (
	"context"

	"github.com/rs/zerolog"

	"go-chatbot/internal/metrics"
	"go-chatbot/internal/security"
)

// Hub owns the live connection registry. Only the Run goroutine touches the
// map; everything else talks to it over channels.
type Hub struct {
	clients    map[string]*Client // keyed by ConnectionKey(user)
	register   chan *Client
	unregister chan *Client
	deliver    chan delivery
	lookup     chan lookup
	done       chan struct{}
	log        zerolog.Logger
}

type lookup struct {
	key    string
	result chan bool
}

type delivery struct {
	key     string
	payload []byte
	result  chan bool
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		deliver:    make(chan delivery),
		lookup:     make(chan lookup),
		done:       make(chan struct{}),
		log:        log,
	}
}

// ConnectionKey is the registry key for a user identifier.
func ConnectionKey(user string) string {
	return security.SHA1Hex(user)
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for key, c := range h.clients {
				close(c.send)
				delete(h.clients, key)
			}
			metrics.LiveConnections.Set(0)
			return

		case c := <-h.register:
			// Last writer wins: a reconnect replaces and closes the old connection.
			if old, ok := h.clients[c.key]; ok && old != c {
				close(old.send)
			}
			h.clients[c.key] = c
			metrics.LiveConnections.Set(float64(len(h.clients)))

		case c := <-h.unregister:
			// A stale disconnect must not evict a newer connection for the same user.
			if cur, ok := h.clients[c.key]; ok && cur == c {
				delete(h.clients, c.key)
				close(c.send)
				metrics.LiveConnections.Set(float64(len(h.clients)))
			}

		case l := <-h.lookup:
			_, ok := h.clients[l.key]
			l.result <- ok

		case d := <-h.deliver:
			c, ok := h.clients[d.key]
			if !ok {
				d.result <- false
				continue
			}
			select {
			case c.send <- d.payload:
				d.result <- true
			default:
				h.log.Warn().Str("module", "Hub/Deliver").Str("key", d.key).Msg("send buffer full, dropping connection")
				delete(h.clients, d.key)
				close(c.send)
				metrics.LiveConnections.Set(float64(len(h.clients)))
				d.result <- false
			}
		}
	}
}

// Register adds c, replacing any connection already held for the same user.
// It reports false if the hub has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Deliver queues payload for the connection registered under key and
// reports whether there was one to queue it on.
func (h *Hub) Deliver(ctx context.Context, key string, payload []byte) bool {
	d := delivery{key: key, payload: payload, result: make(chan bool, 1)}
	select {
	case h.deliver <- d:
	case <-h.done:
		return false
	case <-ctx.Done():
		return false
	}
	return <-d.result
}

// online reports whether a connection is registered under key.
func (h *Hub) online(ctx context.Context, key string) bool {
	l := lookup{key: key, result: make(chan bool, 1)}
	select {
	case h.lookup <- l:
	case <-h.done:
		return false
	case <-ctx.Done():
		return false
	}
	return <-l.result
}
