package websocket

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"quizforge-backend/internal/logger"
	"quizforge-backend/internal/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub relays run progress from Redis pub/sub to the websocket clients
// watching that run.
type Hub struct {
	mu          sync.Mutex
	connections map[uuid.UUID][]*websocket.Conn
	redisClient *redis.Client
	cancelFuncs map[uuid.UUID]context.CancelFunc
	log         *logger.Logger
}

func NewHub(redisClient *redis.Client, log *logger.Logger) *Hub {
	return &Hub{
		connections: make(map[uuid.UUID][]*websocket.Conn),
		redisClient: redisClient,
		cancelFuncs: make(map[uuid.UUID]context.CancelFunc),
		log:         log.With("component", "websocket"),
	}
}

// HandleWebSocket upgrades GET /ws?run_id=<uuid>.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(r.URL.Query().Get("run_id"))
	if err != nil {
		http.Error(w, "run_id query parameter is required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	h.registerConnection(runID, conn)

	// Keep connection alive and handle disconnect
	go func() {
		defer h.unregisterConnection(runID, conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (h *Hub) registerConnection(runID uuid.UUID, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.connections[runID] = append(h.connections[runID], conn)

	// First watcher of a run opens the subscription
	if len(h.connections[runID]) == 1 && h.redisClient != nil {
		ctx, cancel := context.WithCancel(context.Background())
		h.cancelFuncs[runID] = cancel
		go h.subscribeToPubSub(ctx, runID)
	}

	h.log.Debug("websocket connected", "run_id", runID, "watchers", len(h.connections[runID]))
}

func (h *Hub) unregisterConnection(runID uuid.UUID, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn.Close()

	conns := h.connections[runID]
	for i, c := range conns {
		if c == conn {
			h.connections[runID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}

	if len(h.connections[runID]) == 0 {
		delete(h.connections, runID)
		if cancel, ok := h.cancelFuncs[runID]; ok {
			cancel()
			delete(h.cancelFuncs, runID)
		}
	}

	h.log.Debug("websocket disconnected", "run_id", runID)
}

func (h *Hub) subscribeToPubSub(ctx context.Context, runID uuid.UUID) {
	pubsub := h.redisClient.Subscribe(ctx, services.ProgressChannel(runID))
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast(runID, []byte(msg.Payload))
		}
	}
}

// broadcast takes the exclusive lock: one writer per conn, no Close mid-write.
func (h *Hub) broadcast(runID uuid.UUID, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, conn := range h.connections[runID] {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.log.Debug("websocket write failed", "run_id", runID, "error", err)
		}
	}
}
