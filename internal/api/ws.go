package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"papertrade/internal/prices"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // same-origin enforcement happens at the proxy
	},
}

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Ticker pushes the cached price snapshot to websocket subscribers on an
// interval, so clients see fresh prices without polling the REST endpoint.
type Ticker struct {
	prices  *prices.Cache
	log     zerolog.Logger
	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

// NewTicker builds a ticker over the price cache.
func NewTicker(priceCache *prices.Cache, log zerolog.Logger) *Ticker {
	return &Ticker{
		prices:  priceCache,
		log:     log,
		clients: make(map[*wsClient]struct{}),
	}
}

// Run broadcasts until ctx is done.
func (t *Ticker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.broadcast()
		}
	}
}

func (t *Ticker) broadcast() {
	data, err := json.Marshal(t.prices.Read())
	if err != nil {
		t.log.Error().Err(err).Msg("failed to marshal price snapshot")
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for client := range t.clients {
		if err := client.send(data); err != nil {
			client.conn.Close()
			delete(t.clients, client)
		}
	}
}

// HandleWS upgrades the connection and subscribes it to price pushes.
func (t *Ticker) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &wsClient{conn: conn}
	t.mu.Lock()
	t.clients[client] = struct{}{}
	t.mu.Unlock()

	// Push the current snapshot right away, then hold the connection open
	// until the client goes away.
	if data, err := json.Marshal(t.prices.Read()); err == nil {
		client.send(data)
	}
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			t.mu.Lock()
			delete(t.clients, client)
			t.mu.Unlock()
			conn.Close()
			return
		}
	}
}
