package rpc

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/mycitadel/citadel-runtime/model"
)

// SyncProgress is the notification pushed to the progress feed when a
// SyncContract call finishes. No notification is published while the call
// is still running.
type SyncProgress struct {
	ContractID model.ContractID `json:"contract_id"`
	KnownUtxos int              `json:"known_utxos"`
	Done       bool             `json:"done"`
	Error      string           `json:"error,omitempty"`
}

var progressUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ProgressFeed fans out SyncProgress notifications to every connected
// local UI over a websocket, independent of the ZMQ request/reply
// transport. The dispatcher publishes one notification per SyncContract
// call, after it returns; there are no intermediate notifications.
type ProgressFeed struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewProgressFeed constructs an empty feed ready to accept connections and
// publish notifications.
func NewProgressFeed() *ProgressFeed {
	return &ProgressFeed{clients: make(map[*websocket.Conn]struct{})}
}

// ServeHTTP upgrades the connection to a websocket and registers it as a
// subscriber until it disconnects or a write fails.
func (f *ProgressFeed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := progressUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("rpc: progress feed upgrade: %v", err)
		return
	}

	f.mu.Lock()
	f.clients[conn] = struct{}{}
	f.mu.Unlock()

	// Drain and discard client frames until the socket closes; this feed
	// is publish-only.
	go func() {
		defer f.remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (f *ProgressFeed) remove(conn *websocket.Conn) {
	f.mu.Lock()
	delete(f.clients, conn)
	f.mu.Unlock()
	conn.Close()
}

// Publish sends progress to every connected client, dropping and closing
// any connection whose write fails.
func (f *ProgressFeed) Publish(progress SyncProgress) {
	data, err := json.Marshal(progress)
	if err != nil {
		log.Warnf("rpc: marshal sync progress: %v", err)
		return
	}

	f.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(f.clients))
	for conn := range f.clients {
		conns = append(conns, conn)
	}
	f.mu.Unlock()

	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			f.remove(conn)
		}
	}
}
