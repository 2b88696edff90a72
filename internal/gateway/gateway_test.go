package gateway_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/basket/fastgtp/internal/gateway"
	"github.com/basket/fastgtp/internal/session"
	"github.com/basket/fastgtp/internal/transport"
)

func newTestServer(t *testing.T, handler func(cmd string) (string, error)) (*gateway.Server, *session.Manager) {
	t.Helper()
	mgr := session.New(func() (transport.Transport, error) {
		return transport.NewScripted(handler), nil
	}, nil)
	srv := gateway.NewServer(gateway.Deps{Manager: mgr})
	return srv, mgr
}

func openSession(t *testing.T, srv *gateway.Server) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/open_session", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("open_session status = %d, want 201", rec.Code)
	}
	var body struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode open_session response: %v", err)
	}
	return body.SessionID
}

func TestNameEcho(t *testing.T) {
	srv, _ := newTestServer(t, func(cmd string) (string, error) {
		if cmd == "name" {
			return "=KataGo\n\n", nil
		}
		return "=\n\n", nil
	})
	sid := openSession(t, srv)

	req := httptest.NewRequest(http.MethodGet, "/"+sid+"/name", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Name != "KataGo" {
		t.Fatalf("name = %q, want KataGo", body.Name)
	}
}

func TestBoardsizeInvalidArgumentNeverReachesEngine(t *testing.T) {
	called := false
	srv, _ := newTestServer(t, func(cmd string) (string, error) {
		called = true
		return "=\n\n", nil
	})
	sid := openSession(t, srv)

	body, _ := json.Marshal(map[string]any{"x": "abc"})
	req := httptest.NewRequest(http.MethodPost, "/"+sid+"/boardsize", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422: %s", rec.Code, rec.Body.String())
	}
	if called {
		t.Fatal("engine should not have been invoked for a type-invalid body")
	}
}

func TestBoardsizeEngineErrorMapsTo502(t *testing.T) {
	srv, _ := newTestServer(t, func(cmd string) (string, error) {
		return "? boardsize not an integer\n\n", nil
	})
	sid := openSession(t, srv)

	body, _ := json.Marshal(map[string]any{"x": 0})
	req := httptest.NewRequest(http.MethodPost, "/"+sid+"/boardsize", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "boardsize not an integer") {
		t.Fatalf("body = %s, want engine message", rec.Body.String())
	}
}

func TestCommandsMultiLineList(t *testing.T) {
	srv, _ := newTestServer(t, func(cmd string) (string, error) {
		return "=\nname\nversion\nlist_commands\nquit\n\n", nil
	})
	sid := openSession(t, srv)

	req := httptest.NewRequest(http.MethodGet, "/"+sid+"/commands", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Commands []string `json:"commands"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []string{"name", "version", "list_commands", "quit"}
	if len(body.Commands) != len(want) {
		t.Fatalf("commands = %v, want %v", body.Commands, want)
	}
	for i := range want {
		if body.Commands[i] != want[i] {
			t.Fatalf("commands[%d] = %q, want %q", i, body.Commands[i], want[i])
		}
	}
}

func TestUnknownSessionReturns404(t *testing.T) {
	srv, _ := newTestServer(t, func(cmd string) (string, error) { return "=\n\n", nil })

	req := httptest.NewRequest(http.MethodGet, "/nonexistent/name", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404: %s", rec.Code, rec.Body.String())
	}
}

func TestCrashMidTurnThenSubsequentAlso502(t *testing.T) {
	mgr := session.New(func() (transport.Transport, error) {
		return transport.NewSubprocessTransport([]string{"sh", "-c", "read line; printf '=%s' \"$line\"; exit 1"}, 0)
	}, nil)
	srv := gateway.NewServer(gateway.Deps{Manager: mgr})
	sid := openSession(t, srv)

	req := httptest.NewRequest(http.MethodGet, "/"+sid+"/name", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("first request status = %d, want 502: %s", rec.Code, rec.Body.String())
	}

	req2 := httptest.NewRequest(http.MethodGet, "/"+sid+"/version", nil)
	rec2 := httptest.NewRecorder()
	srv.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusBadGateway {
		t.Fatalf("second request status = %d, want 502: %s", rec2.Code, rec2.Body.String())
	}
}

func TestPlayUppercasesVertexAndValidates(t *testing.T) {
	var gotArgs []string
	srv, _ := newTestServer(t, func(cmd string) (string, error) {
		gotArgs = strings.Fields(cmd)
		return "=\n\n", nil
	})
	sid := openSession(t, srv)

	body, _ := json.Marshal(map[string]any{"color": "b", "vertex": "d4"})
	req := httptest.NewRequest(http.MethodPost, "/"+sid+"/play", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if len(gotArgs) != 3 || gotArgs[0] != "play" || gotArgs[1] != "B" || gotArgs[2] != "D4" {
		t.Fatalf("got args %v, want [play B D4]", gotArgs)
	}
}

func TestPlayInvalidVertexReturns422(t *testing.T) {
	srv, _ := newTestServer(t, func(cmd string) (string, error) { return "=\n\n", nil })
	sid := openSession(t, srv)

	body, _ := json.Marshal(map[string]any{"color": "B", "vertex": "99"})
	req := httptest.NewRequest(http.MethodPost, "/"+sid+"/play", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422: %s", rec.Code, rec.Body.String())
	}
}

func TestGetKomiParsesFloat(t *testing.T) {
	srv, _ := newTestServer(t, func(cmd string) (string, error) {
		return "=6.5\n\n", nil
	})
	sid := openSession(t, srv)

	req := httptest.NewRequest(http.MethodGet, "/"+sid+"/komi", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Komi float64 `json:"komi"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Komi != 6.5 {
		t.Fatalf("komi = %v, want 6.5", body.Komi)
	}
}

func TestGetKomiParseFailureReturns502(t *testing.T) {
	srv, _ := newTestServer(t, func(cmd string) (string, error) {
		return "=not-a-number\n\n", nil
	})
	sid := openSession(t, srv)

	req := httptest.NewRequest(http.MethodGet, "/"+sid+"/komi", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502: %s", rec.Code, rec.Body.String())
	}
}

func TestQuitThenNameIs404(t *testing.T) {
	srv, _ := newTestServer(t, func(cmd string) (string, error) { return "=\n\n", nil })
	sid := openSession(t, srv)

	req := httptest.NewRequest(http.MethodPost, "/"+sid+"/quit", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("quit status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	req2 := httptest.NewRequest(http.MethodGet, "/"+sid+"/name", nil)
	rec2 := httptest.NewRecorder()
	srv.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusNotFound {
		t.Fatalf("status after quit = %d, want 404: %s", rec2.Code, rec2.Body.String())
	}
}

func TestHealthzReportsSessionCount(t *testing.T) {
	srv, _ := newTestServer(t, func(cmd string) (string, error) { return "=\n\n", nil })
	openSession(t, srv)
	openSession(t, srv)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Status   string `json:"status"`
		Sessions int    `json:"sessions"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" || body.Sessions != 2 {
		t.Fatalf("body = %+v, want status=ok sessions=2", body)
	}
}

func TestRawCommandPassthrough(t *testing.T) {
	var got string
	srv, _ := newTestServer(t, func(cmd string) (string, error) {
		got = cmd
		return "=done\n\n", nil
	})
	sid := openSession(t, srv)

	body, _ := json.Marshal(map[string]any{"command": "showboard"})
	req := httptest.NewRequest(http.MethodPost, "/"+sid+"/command", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if got != "showboard" {
		t.Fatalf("engine received %q, want showboard", got)
	}
}

func TestPostSGFIssuesLoadsgfNotPrintsgf(t *testing.T) {
	var gotArgs []string
	srv, _ := newTestServer(t, func(cmd string) (string, error) {
		gotArgs = strings.Fields(cmd)
		return "=\n\n", nil
	})
	sid := openSession(t, srv)

	body, _ := json.Marshal(map[string]any{"content": "(;B[hh])", "move": 1})
	req := httptest.NewRequest(http.MethodPost, "/"+sid+"/sgf", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if len(gotArgs) < 1 || gotArgs[0] != "loadsgf" {
		t.Fatalf("got args %v, want first arg loadsgf", gotArgs)
	}
	if gotArgs[len(gotArgs)-1] != "1" {
		t.Fatalf("got args %v, want trailing move number 1", gotArgs)
	}
}

func TestGetSGFStillIssuesPrintsgf(t *testing.T) {
	var got string
	srv, _ := newTestServer(t, func(cmd string) (string, error) {
		got = cmd
		return "=(;FF[4])\n\n", nil
	})
	sid := openSession(t, srv)

	req := httptest.NewRequest(http.MethodGet, "/"+sid+"/sgf", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if got != "printsgf" {
		t.Fatalf("engine received %q, want printsgf", got)
	}
}
