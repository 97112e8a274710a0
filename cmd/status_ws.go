package main

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The payer page is served from a different origin than the API.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type statusUpdate struct {
	Token  string `json:"-"`
	Status string `json:"status"`
}

type wsClient struct {
	token string
	conn  *websocket.Conn
}

// statusHub pushes payment-status transitions to payer pages subscribed by
// payment token. Connections that fail a write are dropped; the page falls
// back to polling.
type statusHub struct {
	logger *slog.Logger

	clients    map[string][]*websocket.Conn
	register   chan wsClient
	unregister chan wsClient
	broadcast  chan statusUpdate
}

func newStatusHub(logger *slog.Logger) *statusHub {
	return &statusHub{
		logger:     logger,
		clients:    make(map[string][]*websocket.Conn),
		register:   make(chan wsClient),
		unregister: make(chan wsClient),
		broadcast:  make(chan statusUpdate, 64),
	}
}

// PublishStatus implements the settlement coordinator's notifier. Non-
// blocking: a full broadcast buffer drops the push rather than stalling
// settlement.
func (h *statusHub) PublishStatus(paymentToken, status string) {
	select {
	case h.broadcast <- statusUpdate{Token: paymentToken, Status: status}:
	default:
		h.logger.Warn("status hub buffer full, dropping push", "status", status)
	}
}

func (h *statusHub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for _, conns := range h.clients {
				for _, conn := range conns {
					conn.Close()
				}
			}
			return
		case client := <-h.register:
			h.clients[client.token] = append(h.clients[client.token], client.conn)
		case client := <-h.unregister:
			h.drop(client.token, client.conn)
		case update := <-h.broadcast:
			for _, conn := range h.clients[update.Token] {
				if err := conn.WriteJSON(update); err != nil {
					h.logger.Warn("status push failed", "error", err)
					h.drop(update.Token, conn)
				}
			}
		}
	}
}

func (h *statusHub) drop(token string, conn *websocket.Conn) {
	conns := h.clients[token]
	for i, c := range conns {
		if c == conn {
			conns = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	if len(conns) == 0 {
		delete(h.clients, token)
	} else {
		h.clients[token] = conns
	}
	conn.Close()
}

// statusWS upgrades a payer page connection and keeps it registered until
// the peer goes away.
func (app *application) statusWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get(":token")
	if token == "" {
		http.Error(w, "missing payment token", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		app.errorLog.Printf("websocket upgrade: %v", err)
		return
	}

	app.statusHub.register <- wsClient{token: token, conn: conn}

	go func() {
		defer func() {
			app.statusHub.unregister <- wsClient{token: token, conn: conn}
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
