package web

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Hub tracks the open websocket connections and sends status messages to each of them.
// Messages are of the form progress:<count>:<total>, done:<grid id> or error:<message>.
type Hub struct {
	conns map[*websocket.Conn]bool
	sync.Mutex
}

func NewHub() *Hub {
	return &Hub{conns: make(map[*websocket.Conn]bool)}
}

// Handler function for websocket connection
func (h *Hub) Websocket() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Error().Err(err).Msg("websocket upgrade")
			return
		}
		h.Lock()
		h.conns[conn] = true
		h.Unlock()
		log.Debug().Str("remote", r.RemoteAddr).Msg("websocket connected")
		// discard incoming messages until the client goes away
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					h.remove(conn)
					return
				}
			}
		}()
	}
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.Lock()
	defer h.Unlock()
	if h.conns[conn] {
		delete(h.conns, conn)
		conn.Close()
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.Lock()
	defer h.Unlock()
	return len(h.conns)
}

// Broadcast sends msg to every client, dropping any which fail.
func (h *Hub) Broadcast(msg string) {
	h.Lock()
	defer h.Unlock()
	for conn := range h.conns {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			log.Warn().Err(err).Msg("error writing to websocket")
			delete(h.conns, conn)
			conn.Close()
		}
	}
}

// Update implements the surface.Progress interface.
func (h *Hub) Update(count, total int) {
	h.Broadcast("progress:" + strconv.Itoa(count) + ":" + strconv.Itoa(total))
}

// Close disconnects all clients.
func (h *Hub) Close() {
	h.Lock()
	defer h.Unlock()
	for conn := range h.conns {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
		conn.Close()
		delete(h.conns, conn)
	}
}
