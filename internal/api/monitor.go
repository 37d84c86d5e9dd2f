package api

import (
	"log"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"arena-agent/internal/orchestrator"
)

// TurnSummary is one line of the operator stream: what arrived and what the
// agent decided, without the heavy sensor payloads.
type TurnSummary struct {
	SessionID           string   `json:"sessionId"`
	PredictionRequestID string   `json:"predictionRequestId"`
	Utterance           string   `json:"utterance,omitempty"`
	ActionTypes         []string `json:"actionTypes"`
}

func summarize(req *orchestrator.Request, resp *orchestrator.Response) TurnSummary {
	s := TurnSummary{
		SessionID:           resp.SessionID,
		PredictionRequestID: resp.PredictionRequestID,
	}
	for _, sensor := range req.Request.Sensors {
		for _, tok := range sensor.Tokens {
			if s.Utterance != "" {
				s.Utterance += " "
			}
			s.Utterance += tok.Value
		}
	}
	for _, a := range resp.Actions {
		if t, ok := a["type"].(string); ok {
			s.ActionTypes = append(s.ActionTypes, t)
		}
	}
	return s
}

// Monitor broadcasts turn summaries to connected operator websockets. Slow
// or broken connections are dropped rather than allowed to stall a turn.
type Monitor struct {
	mu       sync.Mutex
	conns    map[*websocket.Conn]bool
	upgrader websocket.Upgrader
}

func NewMonitor() *Monitor {
	return &Monitor{
		conns: map[*websocket.Conn]bool{},
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler upgrades the connection and keeps it registered until the peer
// closes it. The read loop only exists to observe the close.
func (m *Monitor) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := m.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("[Monitor] upgrade failed: %v", err)
			return
		}
		m.mu.Lock()
		m.conns[conn] = true
		m.mu.Unlock()

		go func() {
			defer m.drop(conn)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}
}

// Publish sends the summary to every connected operator.
func (m *Monitor) Publish(s TurnSummary) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for conn := range m.conns {
		if err := conn.WriteJSON(s); err != nil {
			log.Printf("[Monitor] dropping client: %v", err)
			conn.Close()
			delete(m.conns, conn)
		}
	}
}

func (m *Monitor) drop(conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conns[conn] {
		conn.Close()
		delete(m.conns, conn)
	}
}
