package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"telegram-quiz-bot/internal/app"
	"telegram-quiz-bot/internal/domain"
)

func TestResultsFeedStreamsFilteredResults(t *testing.T) {
	feed := app.NewResultFeed()
	server := httptest.NewServer(NewRouter(feed))
	defer server.Close()

	u := "ws" + server.URL[len("http"):] + "/ws/results?quizId=7"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// The subscription exists once the greeting arrives.
	readNext(conn, t, "subscribed")

	feed.Publish(app.Result{AttemptID: 1, QuizID: 8, Status: domain.StatusCompleted})
	feed.Publish(app.Result{AttemptID: 2, QuizID: 7, Score: 3, Status: domain.StatusCompleted})

	payload := readNext(conn, t, "result")
	var res app.Result
	if err := json.Unmarshal(payload, &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.AttemptID != 2 || res.Score != 3 {
		t.Fatalf("expected attempt 2 of quiz 7, got %+v", res)
	}
}

func TestResultsFeedReleasesSubscriptionOnClose(t *testing.T) {
	feed := app.NewResultFeed()
	server := httptest.NewServer(NewRouter(feed))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+server.URL[len("http"):]+"/ws/results", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	readNext(conn, t, "subscribed")
	if feed.Subscribers() != 1 {
		t.Fatalf("expected one subscriber, got %d", feed.Subscribers())
	}
	conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for feed.Subscribers() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscription not released")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestResultsFeedRejectsBadQuizID(t *testing.T) {
	server := httptest.NewServer(NewRouter(app.NewResultFeed()))
	defer server.Close()

	resp, err := http.Get(server.URL + "/ws/results?quizId=abc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	server := httptest.NewServer(NewRouter(app.NewResultFeed()))
	defer server.Close()

	resp, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("unexpected body %v", body)
	}
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) json.RawMessage {
	t.Helper()
	var msg struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if msg.Type != expect {
		t.Fatalf("expected type %s, got %s", expect, msg.Type)
	}
	return msg.Payload
}
