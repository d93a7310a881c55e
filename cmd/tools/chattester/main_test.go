package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/docchat/internal/model/chat"
)

// fakeServer speaks the chat protocol: init after the document, then a
// fixed two-fragment answer per question, or an error for "boom".
func fakeServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		_ = conn.WriteJSON(chat.InitMessage())

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			q := string(data)
			_ = conn.WriteJSON(chat.EchoMessage(q))
			_ = conn.WriteJSON(chat.StartMessage())
			if q == "boom" {
				_ = conn.WriteJSON(chat.ErrorMessage("Sorry, something went wrong. Try again."))
				continue
			}
			_ = conn.WriteJSON(chat.StreamMessage("It is"))
			_ = conn.WriteJSON(chat.StreamMessage(" Paris."))
			_ = conn.WriteJSON(chat.EndMessage())
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// slowServer streams five fragments per answer, gap apart.
func slowServer(t *testing.T, gap time.Duration) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		_ = conn.WriteJSON(chat.InitMessage())

		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.WriteJSON(chat.EchoMessage(string(data)))
		_ = conn.WriteJSON(chat.StartMessage())
		for i := 0; i < 5; i++ {
			time.Sleep(gap)
			if err := conn.WriteJSON(chat.StreamMessage(".")); err != nil {
				return
			}
		}
		_ = conn.WriteJSON(chat.EndMessage())
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTester(t *testing.T, srv *httptest.Server, out *bytes.Buffer) *tester {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial err: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &tester{conn: conn, out: out, timeout: 5 * time.Second, logger: zap.NewNop()}
}

func TestTesterPrintsStreamedAnswers(t *testing.T) {
	var out bytes.Buffer
	p := newTester(t, fakeServer(t), &out)

	if err := p.run(context.Background(), "The capital of France is Paris.", []string{"Capital?", "Again?"}); err != nil {
		t.Fatalf("run err: %v", err)
	}

	want := "> Capital?\nIt is Paris.\n> Again?\nIt is Paris.\n"
	if out.String() != want {
		t.Fatalf("unexpected output:\n%s", out.String())
	}
}

func TestTesterCountsFailedTurns(t *testing.T) {
	var out bytes.Buffer
	p := newTester(t, fakeServer(t), &out)

	err := p.run(context.Background(), "doc", []string{"boom", "fine"})
	if err == nil || !strings.Contains(err.Error(), "1 of 2") {
		t.Fatalf("expected one failed question, got %v", err)
	}
	if !strings.Contains(out.String(), "! Sorry, something went wrong. Try again.") {
		t.Fatalf("error not printed:\n%s", out.String())
	}
}

func TestTesterTimeoutCoversWholeAnswer(t *testing.T) {
	var out bytes.Buffer
	p := newTester(t, slowServer(t, 100*time.Millisecond), &out)
	p.timeout = 300 * time.Millisecond

	started := time.Now()
	err := p.run(context.Background(), "doc", []string{"slow?"})
	if err == nil {
		t.Fatal("expected the answer to exceed the question timeout")
	}
	if elapsed := time.Since(started); elapsed > 2*time.Second {
		t.Fatalf("timeout fired too late: %v", elapsed)
	}
}

func TestReadLinesSkipsBlank(t *testing.T) {
	got := readLines(strings.NewReader("one\n\n  two  \n"))
	if len(got) != 2 || got[0] != "one" || got[1] != "two" {
		t.Fatalf("unexpected lines %q", got)
	}
}
