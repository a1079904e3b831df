package server

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/playsync/internal/shared"
)

type routesHandler struct {
	routes []string
}

func (h routesHandler) Routes() []string { return h.routes }

func (h routesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("handled " + r.URL.Path))
}

func TestBasicRouter(t *testing.T) {
	t.Run("Handle Filters Method", func(t *testing.T) {
		r := NewBasicRouter()
		r.Handle(http.MethodGet, "/ping", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte("pong"))
		}))

		if w := do(r, http.MethodGet, "/ping", ""); w.Code != http.StatusOK || w.Body.String() != "pong" {
			t.Errorf("unexpected response %d %q", w.Code, w.Body.String())
		}
		if w := do(r, http.MethodPost, "/ping", ""); w.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected 405, got %d", w.Code)
		}
	})

	t.Run("Handler Registers Every Route", func(t *testing.T) {
		r := NewBasicRouter()
		r.Handler(routesHandler{routes: []string{"/a", "/b"}})

		for _, path := range []string{"/a", "/b"} {
			if w := do(r, http.MethodGet, path, ""); w.Body.String() != "handled "+path {
				t.Errorf("%s: unexpected body %q", path, w.Body.String())
			}
		}
	})

	t.Run("Middleware Order", func(t *testing.T) {
		var order []string
		mark := func(name string) Middleware {
			return func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					order = append(order, name)
					next.ServeHTTP(w, r)
				})
			}
		}

		r := NewBasicRouter()
		r.Use(mark("first"), mark("second"))
		r.Handler(routesHandler{routes: []string{"/"}})
		do(r, http.MethodGet, "/", "")

		if strings.Join(order, ",") != "first,second" {
			t.Errorf("unexpected order %v", order)
		}
	})

	t.Run("Recoverer", func(t *testing.T) {
		var buf bytes.Buffer
		logger := shared.NewLogger(&buf)

		r := NewBasicRouter()
		r.Use(Recoverer(logger))
		r.Handle(http.MethodGet, "/boom", http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("boom")
		}))

		if w := do(r, http.MethodGet, "/boom", ""); w.Code != http.StatusInternalServerError {
			t.Errorf("expected 500, got %d", w.Code)
		}
		if !strings.Contains(buf.String(), "handler panic") {
			t.Errorf("expected panic to be logged, got %q", buf.String())
		}
	})

	t.Run("Request Logger", func(t *testing.T) {
		var buf bytes.Buffer
		logger := shared.NewLogger(&buf)
		logger.SetLevel(log.DebugLevel)

		r := NewBasicRouter()
		r.Use(RequestLogger(logger))
		r.Handle(http.MethodGet, "/missing", http.NotFoundHandler())
		do(r, http.MethodGet, "/missing", "")

		if out := buf.String(); !strings.Contains(out, "status=404") || !strings.Contains(out, "path=/missing") {
			t.Errorf("expected request line with status, got %q", out)
		}
	})
}

func TestServe(t *testing.T) {
	t.Run("Shuts Down On Cancel", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- Serve(ctx, "127.0.0.1:0", NewBasicRouter(), shared.NewLogger(&bytes.Buffer{}))
		}()

		time.Sleep(50 * time.Millisecond)
		cancel()

		select {
		case err := <-done:
			if err != nil {
				t.Errorf("expected clean shutdown, got %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("server did not shut down")
		}
	})

	t.Run("Listen Failure", func(t *testing.T) {
		err := Serve(context.Background(), "127.0.0.1:-1", NewBasicRouter(), shared.NewLogger(&bytes.Buffer{}))
		if err == nil {
			t.Error("expected listen error")
		}
	})
}
