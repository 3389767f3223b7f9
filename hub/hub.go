package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yeremiapane/restaurant-pos/utils"
)

const writeTimeout = 5 * time.Second

// Command is what a client sends to change its room membership, e.g.
// {"action":"join","room":"orders"}.
type Command struct {
	Action string `json:"action"`
	Room   string `json:"room"`
}

// client is one websocket connection. writeMu serialises writes, gorilla
// allows a single concurrent writer per connection.
type client struct {
	conn    *websocket.Conn
	rooms   map[string]struct{}
	writeMu sync.Mutex
}

func (c *client) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub menampung semua websocket client beserta room yang diikutinya
type Hub struct {
	clients map[*websocket.Conn]*client
	mutex   sync.Mutex
}

func New() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]*client)}
}

func (h *Hub) Register(conn *websocket.Conn, rooms ...string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	c, ok := h.clients[conn]
	if !ok {
		c = &client{conn: conn, rooms: make(map[string]struct{})}
		h.clients[conn] = c
	}
	for _, room := range rooms {
		c.rooms[room] = struct{}{}
	}
}

func (h *Hub) Join(conn *websocket.Conn, room string) {
	h.Register(conn, room)
}

func (h *Hub) Leave(conn *websocket.Conn, room string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if c, ok := h.clients[conn]; ok {
		delete(c.rooms, room)
	}
}

// Unregister drops the connection from every room and closes it.
func (h *Hub) Unregister(conn *websocket.Conn) {
	h.mutex.Lock()
	_, ok := h.clients[conn]
	delete(h.clients, conn)
	h.mutex.Unlock()
	if ok {
		conn.Close()
	}
}

func (h *Hub) Subscribers(room string) int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	n := 0
	for _, c := range h.clients {
		if _, ok := c.rooms[room]; ok {
			n++
		}
	}
	return n
}

func (h *Hub) members(room string) []*client {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	var out []*client
	for _, c := range h.clients {
		if _, ok := c.rooms[room]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Publish writes the event to every member of room. Clients that fail to
// accept the write are dropped. An empty room is not an error. The hub lock
// is not held while writing, so a slow client only delays its own messages.
func (h *Hub) Publish(_ context.Context, room, event string, payload interface{}) error {
	data, err := json.Marshal(Message{Event: event, Room: room, Data: payload})
	if err != nil {
		return err
	}

	for _, c := range h.members(room) {
		if err := c.write(data); err != nil {
			utils.ErrorLogger.Printf("Error sending %s to websocket client: %v", event, err)
			h.Unregister(c.conn)
		}
	}
	return nil
}

// Serve reads membership commands from conn until it disconnects.
func (h *Hub) Serve(conn *websocket.Conn, rooms ...string) {
	h.Register(conn, rooms...)
	defer h.Unregister(conn)

	for {
		var cmd Command
		if err := conn.ReadJSON(&cmd); err != nil {
			if _, ok := err.(*json.SyntaxError); ok {
				continue
			}
			return
		}
		if cmd.Room == "" {
			continue
		}
		switch cmd.Action {
		case "join":
			h.Join(conn, cmd.Room)
		case "leave":
			h.Leave(conn, cmd.Room)
		}
	}
}
