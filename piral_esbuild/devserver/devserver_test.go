package devserver

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quiet = zerolog.Nop()

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>app</html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.abc.js"), []byte("console.log(1);"), 0o644))

	s := New(dir, "", &quiet)
	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)
	return s, ts
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServe(t *testing.T) {
	_, ts := newTestServer(t)

	tests := []struct {
		name string
		path string
		want string
	}{
		{name: "root", path: "/", want: "<html>app</html>"},
		{name: "asset", path: "/index.abc.js", want: "console.log(1);"},
		{name: "client route", path: "/users/42", want: "<html>app</html>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := get(t, ts.URL+tt.path)
			assert.Equal(t, http.StatusOK, status)
			assert.Equal(t, tt.want, body)
		})
	}
}

func TestEvents(t *testing.T) {
	s, ts := newTestServer(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + EventsPath
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return s.Clients() == 1 }, 5*time.Second, 10*time.Millisecond)
	s.Notify()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var evt event
	require.NoError(t, conn.ReadJSON(&evt))
	assert.Equal(t, "reload", evt.Type)

	conn.Close()
	assert.Eventually(t, func() bool { return s.Clients() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestNotify_NoClients(t *testing.T) {
	s := New(t.TempDir(), "app.html", &quiet)
	assert.NotPanics(t, s.Notify)
	assert.Equal(t, "app.html", s.page)
}
