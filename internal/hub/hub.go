package hub

import (
	"encoding/json"
	"sync"

	"github.com/nelsonmaranda/tubonge-chat-app/internal/domain"
	"github.com/nelsonmaranda/tubonge-chat-app/internal/log"
)

// Hub is the central fan-out point: it delivers an encoded event to one, all,
// or all-but-one of the connected clients. Delivery is best-effort per
// recipient; a client whose outbound buffer is saturated drops the event and
// is evicted rather than blocking everyone else.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client

	deliveries chan *delivery
}

type delivery struct {
	payload []byte
	exclude string // client ID to skip, "" for none
	only    string // when set, deliver to this client ID alone
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		deliveries: make(chan *delivery, 256),
	}
}

// Run services the delivery queue. Call it once, in its own goroutine.
func (h *Hub) Run() {
	for msg := range h.deliveries {
		h.mu.RLock()
		if msg.only != "" {
			if client, ok := h.clients[msg.only]; ok {
				h.push(client, msg.payload)
			}
			h.mu.RUnlock()
			continue
		}
		for id, client := range h.clients {
			if id == msg.exclude {
				continue
			}
			h.push(client, msg.payload)
		}
		h.mu.RUnlock()
	}
}

// push never blocks: a full Send buffer means the client is too far behind
// and gets evicted asynchronously.
func (h *Hub) push(client *Client, payload []byte) {
	select {
	case client.Send <- payload:
	default:
		log.L().Warn().Str(log.FieldSessionID, client.ID).Msg("send buffer full, evicting client")
		go func() {
			h.Unregister(client)
			client.Close()
		}()
	}
}

// Register adds a client to the delivery set.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	h.clients[client.ID] = client
	h.mu.Unlock()
	log.L().Debug().Str(log.FieldSessionID, client.ID).Msg("client registered")
}

// Unregister removes a client and closes its Send channel. Idempotent.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client.ID]; ok {
		delete(h.clients, client.ID)
		close(client.Send)
	}
	h.mu.Unlock()
	log.L().Debug().Str(log.FieldSessionID, client.ID).Msg("client unregistered")
}

// BroadcastAll delivers the event to every connected client.
func (h *Hub) BroadcastAll(event *domain.Event) error {
	return h.enqueue(event, "", "")
}

// BroadcastOthers delivers the event to every client except the sender.
func (h *Hub) BroadcastOthers(sender *Client, event *domain.Event) error {
	return h.enqueue(event, sender.ID, "")
}

// SendTo delivers the event to a single client.
func (h *Hub) SendTo(client *Client, event *domain.Event) error {
	return h.enqueue(event, "", client.ID)
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) enqueue(event *domain.Event, exclude, only string) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	h.deliveries <- &delivery{payload: payload, exclude: exclude, only: only}
	return nil
}
