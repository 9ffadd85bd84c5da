package sse

import (
	"encoding/json"
	"log"
	"sync"
)

// Event represents an SSE event pushed to staff dashboards
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Broker manages the staff dashboard SSE connections. Every connected client sees
// every event; sync status is an org-wide stream, not per-user.
type Broker struct {
	clients map[chan Event]bool
	mu      sync.RWMutex
}

// NewBroker creates a new SSE broker
func NewBroker() *Broker {
	return &Broker{
		clients: make(map[chan Event]bool),
	}
}

// Register adds a new client channel
func (b *Broker) Register(clientChan chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.clients[clientChan] = true
	log.Printf("📡 [SSE Broker] Registered staff client (total clients: %d)", len(b.clients))
}

// Unregister removes a client channel
func (b *Broker) Unregister(clientChan chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.clients[clientChan]; ok {
		delete(b.clients, clientChan)
		close(clientChan)
		log.Printf("📡 [SSE Broker] Unregistered staff client (remaining: %d)", len(b.clients))
	}
}

// Broadcast sends an event to all connected staff clients
func (b *Broker) Broadcast(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.clients) == 0 {
		return
	}

	// Marshal data once for efficiency
	dataJSON, err := json.Marshal(event.Data)
	if err != nil {
		log.Printf("❌ [SSE Broker] Failed to marshal event data: %v", err)
		return
	}

	// Create event copy with marshaled data to avoid race conditions
	eventCopy := Event{
		Type: event.Type,
		Data: json.RawMessage(dataJSON),
	}

	for clientChan := range b.clients {
		select {
		case clientChan <- eventCopy:
			// Successfully sent
		default:
			// Channel is full or blocked, skip this client
			log.Printf("⚠️ [SSE Broker] Staff client channel blocked, dropping event %s", event.Type)
		}
	}

	log.Printf("📡 [SSE Broker] Broadcast event %s to %d clients", event.Type, len(b.clients))
}

// GetTotalClientCount returns the total number of connected clients
func (b *Broker) GetTotalClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.clients)
}
