package harvester

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/faculty-harvest/internal/httpclient"
)

func TestBruteForceOnlyParsesLettersPresentInResponse(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/directory", func(w http.ResponseWriter, r *http.Request) {
		letter := r.URL.Query().Get("letter")
		if letter != "S" {
			w.Write([]byte(`<html><body>no match here</body></html>`))
			return
		}

		fmt.Fprintf(w, `<html><body><div class="people-item"><h3>Sarah Smith</h3><a href="/faculty/sarah-smith">Profile</a></div></body></html>`)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := httpclient.New(httpclient.Config{Timeout: 5 * time.Second, RequestsPerSec: 1000})
	require.NoError(t, err)

	h := &Harvester{http: client}

	found := h.bruteForce(t.Context(), srv.URL+"/directory", map[string]bool{})

	require.Len(t, found, 1)
	assert.Equal(t, "Sarah Smith", found[0].Name)
}

func TestBruteForceSkipsAlreadySeenURLs(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/directory", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><body><div class="people-item"><h3>Always A Person</h3><a href="/faculty/always-a">Profile</a></div></body></html>`)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := httpclient.New(httpclient.Config{Timeout: 5 * time.Second, RequestsPerSec: 1000})
	require.NoError(t, err)

	h := &Harvester{http: client}

	seen := map[string]bool{srv.URL + "/faculty/always-a": true}
	found := h.bruteForce(t.Context(), srv.URL+"/directory", seen)

	assert.Empty(t, found)
}

func TestBruteForceUsesAmpersandSeparatorWhenQueryAlreadyPresent(t *testing.T) {
	var sawAmpersand bool

	mux := http.NewServeMux()
	mux.HandleFunc("/directory", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.RawQuery != "" && r.URL.Query().Get("dept") == "cs" && r.URL.Query().Get("letter") != "" {
			sawAmpersand = true
		}

		w.Write([]byte(`no letters here`))
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := httpclient.New(httpclient.Config{Timeout: 5 * time.Second, RequestsPerSec: 1000})
	require.NoError(t, err)

	h := &Harvester{http: client}
	h.bruteForce(t.Context(), srv.URL+"/directory?dept=cs", map[string]bool{})

	assert.True(t, sawAmpersand)
}
