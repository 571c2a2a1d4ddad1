package http

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"

	"scoreboard-service/internal/app"
	"scoreboard-service/internal/metrics"
)

// WSHandler upgrades clients to websockets, streams full scoreboard
// snapshots on every change, and accepts submission messages from
// contestants.
type WSHandler struct {
	service  *app.ContestService
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.ContestService, m *metrics.Metrics) *WSHandler {
	return &WSHandler{
		service: service,
		metrics: m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type submitPayload struct {
	TaskID string `json:"taskId"`
	CSV    string `json:"csv"`
}

type submissionResult struct {
	TaskID    string   `json:"taskId"`
	Score     float64  `json:"score"`
	ScoreText string   `json:"scoreText"`
	Attempts  int      `json:"attempts"`
	BestScore *float64 `json:"bestScore"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS wires a websocket client into the scoreboard. Spectators connect
// without a teamId and only receive pushes; contestants bind their teamId
// at connect time and may send submit messages.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	teamID := r.URL.Query().Get("teamId")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	if h.metrics != nil {
		h.metrics.ConnectedClients.Inc()
		defer h.metrics.ConnectedClients.Dec()
	}

	updates, cancel := h.service.Subscribe()
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// Single writer goroutine; gorilla connections do not allow concurrent
	// writes.
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "scoreboard", Payload: update}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "submit":
			if teamID == "" {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "connect with a teamId to submit"}}
				continue
			}
			var payload submitPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid submit payload"}}
				continue
			}
			sub, _, err := h.service.SubmitSolution(r.Context(), teamID, payload.TaskID, payload.CSV)
			if err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
				continue
			}
			latest := sub.History[len(sub.History)-1]
			send <- outboundMessage[any]{Type: "submissionResult", Payload: submissionResult{
				TaskID:    payload.TaskID,
				Score:     latest.Score,
				ScoreText: strconv.FormatFloat(latest.Score, 'f', 1, 64),
				Attempts:  sub.Attempts,
				BestScore: sub.Score,
			}}
			// The ranked scoreboard reaches this client through its own
			// subscription like everyone else.
		default:
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}
