package testutil

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/dnaeon/go-vcr.v2/cassette"
	"gopkg.in/dnaeon/go-vcr.v2/recorder"
)

// Headers that differ on every exchange or carry secrets. They are neither
// stored nor compared.
var volatileHeaders = []string{"Authorization", "X-Request-Id", "User-Agent"}

// CassetteClient returns an HTTP client that replays recorded chat streams
// from testdata/fixtures/<name>.yaml. With VCR_MODE=record it talks to the
// real backend and rewrites the cassette when the test ends.
func CassetteClient(t *testing.T, name string) *http.Client {
	t.Helper()

	mode := recorder.ModeReplaying
	if os.Getenv("VCR_MODE") == "record" {
		mode = recorder.ModeRecording
	}

	r, err := recorder.NewAsMode(filepath.Join("testdata", "fixtures", name), mode, nil)
	if err != nil {
		t.Fatalf("open cassette %s: %v", name, err)
	}

	// A stream is identified by method and URL; GET carries the message in the query.
	r.SetMatcher(func(req *http.Request, rec cassette.Request) bool {
		return req.Method == rec.Method && req.URL.String() == rec.URL
	})
	r.AddFilter(func(i *cassette.Interaction) error {
		for _, h := range volatileHeaders {
			delete(i.Request.Headers, h)
		}
		return nil
	})

	t.Cleanup(func() {
		if err := r.Stop(); err != nil {
			t.Errorf("close cassette %s: %v", name, err)
		}
	})
	return &http.Client{Transport: r}
}
