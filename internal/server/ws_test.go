package server

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"contractlens/internal/ws"
)

func dialWS(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v (resp=%v)", err, resp)
	}
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) ws.ServerMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var msg ws.ServerMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func TestWebSocketCommentFlow(t *testing.T) {
	e := newTestEnv(t)
	srv := httptest.NewServer(e.handler)
	defer srv.Close()

	_, aliceToken := e.signup(t, "alice@example.com")
	_, bobToken := e.signup(t, "bob@example.com")
	contract := e.uploadReady(t, aliceToken, "nda.txt", "the quick brown fox")

	alice := dialWS(t, srv, aliceToken)
	bob := dialWS(t, srv, bobToken)

	for _, conn := range []*websocket.Conn{alice, bob} {
		if err := conn.WriteJSON(ws.ClientMessage{Type: ws.TypeSubscribe, ContractID: contract.ID}); err != nil {
			t.Fatalf("subscribe: %v", err)
		}
		if msg := readMessage(t, conn); msg.Type != ws.TypeSubscribed || msg.ContractID != contract.ID {
			t.Fatalf("subscribe ack = %+v", msg)
		}
	}

	if err := alice.WriteJSON(ws.ClientMessage{
		Type:       ws.TypeNewComment,
		ContractID: contract.ID,
		Body:       "check this clause",
	}); err != nil {
		t.Fatalf("send comment: %v", err)
	}

	echo := readMessage(t, alice)
	if echo.Type != ws.TypeCommentAdded || echo.Comment == nil || echo.Comment.Body != "check this clause" {
		t.Fatalf("producer echo = %+v", echo)
	}
	if echo.Comment.AuthorName != "alice" {
		t.Fatalf("author bound at handshake, got %q", echo.Comment.AuthorName)
	}

	broadcast := readMessage(t, bob)
	if broadcast.Type != ws.TypeCommentAdded || broadcast.Comment == nil || broadcast.Comment.ID != echo.Comment.ID {
		t.Fatalf("room broadcast = %+v", broadcast)
	}
}

func TestWebSocketCommentErrorStaysPrivate(t *testing.T) {
	e := newTestEnv(t)
	srv := httptest.NewServer(e.handler)
	defer srv.Close()

	_, aliceToken := e.signup(t, "alice@example.com")
	_, bobToken := e.signup(t, "bob@example.com")
	contract := e.uploadReady(t, aliceToken, "nda.txt", "the quick brown fox")

	alice := dialWS(t, srv, aliceToken)
	bob := dialWS(t, srv, bobToken)
	for _, conn := range []*websocket.Conn{alice, bob} {
		if err := conn.WriteJSON(ws.ClientMessage{Type: ws.TypeSubscribe, ContractID: contract.ID}); err != nil {
			t.Fatalf("subscribe: %v", err)
		}
		readMessage(t, conn)
	}

	if err := alice.WriteJSON(ws.ClientMessage{
		Type:       ws.TypeNewComment,
		ContractID: contract.ID,
		Body:       "   ",
	}); err != nil {
		t.Fatalf("send: %v", err)
	}

	errMsg := readMessage(t, alice)
	if errMsg.Type != ws.TypeCommentError || errMsg.Code != "empty_body" {
		t.Fatalf("error frame = %+v", errMsg)
	}

	// Bob must not see anything from the failed append.
	_ = bob.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	var leaked ws.ServerMessage
	if err := bob.ReadJSON(&leaked); err == nil {
		t.Fatalf("bystander received %+v after failed persist", leaked)
	}
}

func TestWebSocketRequiresToken(t *testing.T) {
	e := newTestEnv(t)
	srv := httptest.NewServer(e.handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected dial to fail without a token")
	}
	if resp != nil {
		defer resp.Body.Close()
		if resp.StatusCode != 401 {
			t.Fatalf("status = %d, want 401", resp.StatusCode)
		}
	}
}
