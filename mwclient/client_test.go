package mwclient

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

// fakeWiki is a scripted api.php endpoint. The handler receives the
// decoded parameters of each request, GET or POST alike.
type fakeWiki struct {
	t       *testing.T
	server  *httptest.Server
	handler func(params url.Values) (status int, body string)

	requests []url.Values
}

func newFakeWiki(t *testing.T) *fakeWiki {
	fw := &fakeWiki{t: t}
	fw.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var params url.Values
		if r.Method == http.MethodPost {
			body, err := io.ReadAll(r.Body)
			if err != nil {
				t.Errorf("reading request body: %v", err)
			}
			params, err = url.ParseQuery(string(body))
			if err != nil {
				t.Errorf("decoding request body: %v", err)
			}
		} else {
			params = r.URL.Query()
		}
		fw.requests = append(fw.requests, params)
		status, body := fw.handler(params)
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(fw.server.Close)
	return fw
}

// client builds a Client against the fake, with sleeps recorded
// instead of performed.
func (fw *fakeWiki) client() (*Client, *[]time.Duration) {
	c := NewClient(fw.server.URL+"/api.php", ClientOptions{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	sleeps := &[]time.Duration{}
	c.sleep = func(ctx context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		return nil
	}
	return c, sleeps
}

func respondJSON(body string) func(url.Values) (int, string) {
	return func(url.Values) (int, string) {
		return http.StatusOK, body
	}
}

func apiError(code string) string {
	return `{"error":{"code":"` + code + `","info":"scripted error"}}`
}
