package http

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"

	"quizroom-service/internal/app"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type WSHandler struct {
	service  *app.RoomService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.RoomService) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// inboundMessage is one client request. ID is echoed in the acknowledgement.
type inboundMessage struct {
	ID      int64           `json:"id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// ackPayload answers every inbound message, success or not.
type ackPayload struct {
	ID      int64  `json:"id"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
	Correct *bool  `json:"correct,omitempty"`
}

type createRoomPayload struct {
	HostName string `json:"hostName"`
	Bank     string `json:"bank"`
}

type joinRoomPayload struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type startRoundPayload struct {
	Code    string `json:"code"`
	Seconds any    `json:"seconds"`
}

type submitAnswerPayload struct {
	Code   string `json:"code"`
	Answer any    `json:"answer"`
}

type roomOnlyPayload struct {
	Code string `json:"code"`
}

// ServeWS upgrades the request, assigns the connection a transient identity,
// and runs the request/acknowledgement loop until the client goes away.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	connID := uuid.NewString()
	defer h.service.Disconnect(connID)

	send := make(chan outboundMessage, 32)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	var forwarders sync.WaitGroup
	var cancelCurrent func()

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	// attach switches this connection's event feed to the given room.
	attach := func(code string) {
		events, cancel, err := h.service.Subscribe(code)
		if err != nil {
			return
		}
		if cancelCurrent != nil {
			cancelCurrent()
		}
		cancelCurrent = cancel

		forwarders.Add(1)
		go func() {
			defer forwarders.Done()
			for {
				select {
				case ev, ok := <-events:
					if !ok {
						return
					}
					select {
					case send <- outboundMessage{Type: ev.Type, Payload: ev.Payload}:
					case <-closeSignals:
						return
					}
				case <-closeSignals:
					return
				}
			}
		}()
	}

readLoop:
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		ack := h.dispatch(r, connID, inbound, attach)
		select {
		case send <- outboundMessage{Type: "ack", Payload: ack}:
		case <-writerDone:
			// The writer exited on a write error and no longer drains send;
			// stop servicing requests so teardown runs instead of wedging.
			break readLoop
		}
	}

	if cancelCurrent != nil {
		cancelCurrent()
	}
	close(closeSignals)
	forwarders.Wait()
	close(send)
	<-writerDone
}

func (h *WSHandler) dispatch(r *http.Request, connID string, inbound inboundMessage, attach func(code string)) ackPayload {
	ack := ackPayload{ID: inbound.ID}

	switch inbound.Type {
	case "create_room":
		var payload createRoomPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return ack.fail("invalid payload")
		}
		code, err := h.service.CreateRoom(r.Context(), connID, payload.HostName, payload.Bank)
		if err != nil {
			return ack.fail(err.Error())
		}
		attach(code)
		ack.OK = true
		ack.Code = code
		return ack

	case "join_room":
		var payload joinRoomPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return ack.fail("invalid payload")
		}
		if err := h.service.JoinRoom(connID, payload.Code, payload.Name); err != nil {
			return ack.fail(err.Error())
		}
		attach(payload.Code)
		ack.OK = true
		return ack

	case "start_round":
		var payload startRoundPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return ack.fail("invalid payload")
		}
		if err := h.service.StartRound(connID, payload.Code, coerceSeconds(payload.Seconds)); err != nil {
			return ack.fail(err.Error())
		}
		ack.OK = true
		return ack

	case "submit_answer":
		var payload submitAnswerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return ack.fail("invalid payload")
		}
		correct, err := h.service.SubmitAnswer(connID, payload.Code, answerToString(payload.Answer))
		if err != nil {
			return ack.fail(err.Error())
		}
		ack.OK = true
		ack.Correct = &correct
		return ack

	case "next_question":
		var payload roomOnlyPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return ack.fail("invalid payload")
		}
		if err := h.service.NextQuestion(connID, payload.Code); err != nil {
			return ack.fail(err.Error())
		}
		ack.OK = true
		return ack

	default:
		return ack.fail("unsupported message type")
	}
}

func (a ackPayload) fail(msg string) ackPayload {
	a.OK = false
	a.Error = msg
	return a
}

// coerceSeconds accepts numbers and numeric strings; anything else falls
// back to the server default by returning zero.
func coerceSeconds(v any) int {
	switch s := v.(type) {
	case float64:
		return int(s)
	case string:
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return 0
}

// answerToString keeps choice indices submitted as JSON numbers comparable
// to ones submitted as strings.
func answerToString(v any) string {
	switch a := v.(type) {
	case string:
		return a
	case float64:
		return strconv.FormatFloat(a, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", a)
	}
}
