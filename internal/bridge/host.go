package bridge

import (
	_ "embed"
	"net/http"
)

//go:embed host.html
var hostPage []byte

// HostPage serves the page that loads the Web Playback SDK and dials back to /bridge.
type HostPage struct{}

// Routes implements the server package's Handler interface.
func (HostPage) Routes() []string {
	return []string{"/", "/host"}
}

func (HostPage) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/host" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(hostPage)
}
