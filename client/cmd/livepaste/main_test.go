package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/livepaste/livepaste/pkg/protocol"
	"github.com/livepaste/livepaste/pkg/snippet"
)

// fakeServer answers the API routes the CLI uses and runs an echoing room.
func fakeServer(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var created []string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/snippets", func(w http.ResponseWriter, r *http.Request) {
		var req struct{ Slug, Content, Language string }
		json.NewDecoder(r.Body).Decode(&req) //nolint:errcheck
		created = append(created, req.Content+"|"+req.Language)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{"slug": "gen12345", "expires_at": time.Now().Add(time.Hour)}) //nolint:errcheck
	})
	mux.HandleFunc("GET /api/snippets/{slug}", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(snippet.Snippet{Slug: r.PathValue("slug"), Content: "print(1)", Images: []snippet.Image{}}) //nolint:errcheck
	})
	mux.HandleFunc("GET /api/check/{slug}", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"available": false, "slug": r.PathValue("slug")}) //nolint:errcheck
	})
	mux.HandleFunc("GET /metrics", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "k" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte("# TYPE livepaste_rooms gauge\nlivepaste_rooms 2\n")) //nolint:errcheck
	})
	mux.HandleFunc("GET /ws/{slug}", func(w http.ResponseWriter, r *http.Request) {
		up := websocket.Upgrader{}
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, protocol.MustEncode(protocol.Connected{Slug: r.PathValue("slug")})) //nolint:errcheck
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if m, err := protocol.Decode(data); err == nil {
				if e, ok := m.(protocol.Edit); ok {
					conn.WriteMessage(websocket.TextMessage, //nolint:errcheck
						protocol.MustEncode(protocol.BroadcastEdit{Content: e.Content, Language: e.Language}))
				}
			}
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &created
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestNew_FromFile(t *testing.T) {
	srv, created := fakeServer(t)
	p := filepath.Join(t.TempDir(), "hello.py")
	if err := os.WriteFile(p, []byte("print('hi')"), 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "", "--server", srv.URL, "new", p)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if strings.TrimSpace(out) != "gen12345" {
		t.Errorf("output: got %q", out)
	}
	if len(*created) != 1 || (*created)[0] != "print('hi')|python" {
		t.Errorf("created: got %v", *created)
	}
}

func TestGetAndCheck(t *testing.T) {
	srv, _ := fakeServer(t)

	out, err := run(t, "", "--server", srv.URL, "get", "abc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if out != "print(1)\n" {
		t.Errorf("get output: got %q", out)
	}

	out, err = run(t, "", "--server", srv.URL, "check", "abc")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !strings.Contains(out, "abc: taken or invalid") {
		t.Errorf("check output: got %q", out)
	}
}

func TestServerFromEnv(t *testing.T) {
	srv, _ := fakeServer(t)
	t.Setenv("LIVEPASTE_SERVER", srv.URL)
	if _, err := run(t, "", "get", "abc"); err != nil {
		t.Fatalf("get with LIVEPASTE_SERVER: %v", err)
	}
}

func TestPush_WaitsForEcho(t *testing.T) {
	srv, _ := fakeServer(t)
	if _, err := run(t, "x := 1\n", "--server", srv.URL, "push", "room1", "-l", "go"); err != nil {
		t.Fatalf("push: %v", err)
	}
}

func TestPrintMessage(t *testing.T) {
	var b bytes.Buffer
	printMessage(&b, protocol.Viewers{Count: 3})
	printMessage(&b, protocol.BroadcastRemoveImage{ID: "img1"})
	want := "# viewers: 3\n# image removed: img1\n"
	if b.String() != want {
		t.Errorf("got %q, want %q", b.String(), want)
	}
}

func TestStats_UsesAPIKeyFromEnv(t *testing.T) {
	srv, _ := fakeServer(t)
	if _, err := run(t, "", "--server", srv.URL, "stats"); err == nil {
		t.Fatal("stats without key: expected error")
	}

	t.Setenv("LIVEPASTE_API_KEY", "k")
	out, err := run(t, "", "--server", srv.URL, "stats")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if !strings.Contains(out, "rooms      2") {
		t.Errorf("stats output: got %q", out)
	}
}
