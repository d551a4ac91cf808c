package http

import (
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"telegram-quiz-bot/internal/app"
)

// ResultsHandler streams finished attempts to websocket clients.
type ResultsHandler struct {
	feed     *app.ResultFeed
	upgrader websocket.Upgrader
}

func NewResultsHandler(feed *app.ResultFeed) *ResultsHandler {
	return &ResultsHandler{
		feed: feed,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type subscribedPayload struct {
	QuizID int64 `json:"quizId,omitempty"`
}

// ServeWS upgrades the request and forwards every published result, optionally
// filtered by the quizId query parameter. Inbound frames are read only to notice
// the client going away.
func (h *ResultsHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	var quizID int64
	if raw := r.URL.Query().Get("quizId"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.Error(w, "invalid quizId", http.StatusBadRequest)
			return
		}
		quizID = v
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	updates, cancel := h.feed.Subscribe()
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// Only this goroutine writes to conn.
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug().Err(err).Msg("ws write error")
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case res, ok := <-updates:
				if !ok {
					return
				}
				if quizID != 0 && res.QuizID != quizID {
					continue
				}
				select {
				case send <- outboundMessage[any]{Type: "result", Payload: res}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	send <- outboundMessage[any]{Type: "subscribed", Payload: subscribedPayload{QuizID: quizID}}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}
