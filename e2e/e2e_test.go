//go:build integration

package e2e_test

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/adamwoolhether/streamfetch"
	"github.com/adamwoolhether/streamfetch/fetch"
	"github.com/adamwoolhether/streamfetch/fetch/handoff"
	"github.com/adamwoolhether/streamfetch/fetch/sink"
	"github.com/adamwoolhether/streamfetch/fetch/transport"
)

// -------------------------------------------------------------------------
// Helpers
// -------------------------------------------------------------------------

var (
	small = []byte("hello, this is test download content!")
	large = func() []byte {
		b := make([]byte, 1<<20)
		_, _ = rand.Read(b)
		return b
	}()
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/download", blobHandler(small))
	mux.HandleFunc("/large", blobHandler(large))

	srv := httptest.NewTLSServer(mux)
	t.Cleanup(srv.Close)

	return srv
}

func trustServer(srv *httptest.Server) transport.TrustStore {
	pool := x509.NewCertPool()
	pool.AddCert(srv.Certificate())
	return transport.PoolTrustStore{Pool: pool}
}

func newFetcher(t *testing.T, opts ...fetch.Option) *fetch.Fetcher {
	t.Helper()

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	f, err := streamfetch.New(append([]fetch.Option{fetch.WithLogger(log)}, opts...)...)
	if err != nil {
		t.Fatalf("building fetcher: %v", err)
	}

	return f
}

func newRequest(t *testing.T, srv *httptest.Server, method, path string) fetch.Request {
	t.Helper()

	req, err := fetch.NewRequest(method, srv.URL+path, fetch.WithTrustStore(trustServer(srv)))
	if err != nil {
		t.Fatalf("creating request: %v", err)
	}

	return req
}

// -------------------------------------------------------------------------
// Handlers
// -------------------------------------------------------------------------

func blobHandler(data []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}

// -------------------------------------------------------------------------
// Tests
// -------------------------------------------------------------------------

func TestE2E_FileDownload(t *testing.T) {
	srv := newTestServer(t)
	f := newFetcher(t)

	destPath := filepath.Join(t.TempDir(), "downloaded.bin")
	dst := &handoff.Destination{Buf: make([]byte, fetch.DefaultReadBufferSize)}
	sum := sha256.Sum256(small)

	stream, err := f.Start(t.Context(), newRequest(t, srv, http.MethodGet, "/download"), dst)
	if err != nil {
		t.Fatalf("starting fetch: %v", err)
	}

	if err := sink.ToFile(t.Context(), stream.Channel(), dst, destPath, sink.WithChecksum(sha256.New(), hex.EncodeToString(sum[:]))); err != nil {
		t.Fatalf("downloading: %v", err)
	}
	if err := stream.Err(); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	got, err := os.ReadFile(destPath)
	if err != nil {
		t.Fatalf("reading downloaded file: %v", err)
	}
	if !bytes.Equal(got, small) {
		t.Errorf("file content = %q, want %q", got, small)
	}
}

func TestE2E_LargeBodyStopsAtContentLength(t *testing.T) {
	srv := newTestServer(t)

	// The server keeps the connection alive, so finishing well inside the
	// read timeout means the fetch stopped on Content-Length.
	f := newFetcher(t, fetch.WithIOTimeout(5*time.Second))

	var out bytes.Buffer
	report, err := streamfetch.Do(t.Context(), f, newRequest(t, srv, http.MethodGet, "/large"), &out)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if !bytes.Equal(out.Bytes(), large) {
		t.Errorf("body mismatch: got %d bytes, want %d", out.Len(), len(large))
	}
	if report.Chunks < 2 || report.DeclaredLength != int64(len(large)) {
		t.Errorf("unexpected report %+v", report)
	}
	if report.Duration >= 5*time.Second {
		t.Errorf("fetch waited for the peer to close: %v", report.Duration)
	}
}

func TestE2E_NotFound(t *testing.T) {
	srv := newTestServer(t)
	f := newFetcher(t)

	var out bytes.Buffer
	report, err := streamfetch.Do(t.Context(), f, newRequest(t, srv, http.MethodGet, "/missing"), &out)
	if !errors.Is(err, fetch.ErrNotFound) {
		t.Fatalf("exp not found, got %v", err)
	}
	if out.Len() != 0 || report.Chunks != 0 || report.StatusCode != http.StatusNotFound {
		t.Errorf("404 must not deliver: %d bytes, report %+v", out.Len(), report)
	}
}

func TestE2E_UntrustedServer(t *testing.T) {
	srv := newTestServer(t)
	f := newFetcher(t)

	req, err := fetch.NewRequest(http.MethodGet, srv.URL+"/download")
	if err != nil {
		t.Fatal(err)
	}

	_, err = streamfetch.Do(t.Context(), f, req, &bytes.Buffer{})
	if !errors.Is(err, fetch.ErrConnect) {
		t.Fatalf("exp connect failure, got %v", err)
	}

	var cerr *transport.ConnectError
	if !errors.As(err, &cerr) || cerr.Code != transport.CodeUnknownCA {
		t.Errorf("exp unknown authority code, got %v", err)
	}
}

func TestE2E_Head(t *testing.T) {
	srv := newTestServer(t)
	f := newFetcher(t)

	var out bytes.Buffer
	report, err := streamfetch.Do(t.Context(), f, newRequest(t, srv, http.MethodHead, "/large"), &out)
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if out.Len() != 0 || report.DeclaredLength != int64(len(large)) {
		t.Errorf("unexpected head result: %d bytes, report %+v", out.Len(), report)
	}
}
