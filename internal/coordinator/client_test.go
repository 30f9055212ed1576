package coordinator

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/cenkalti/backoff/v5"

	"mn-go/internal/codec"
	"mn-go/internal/fault"
	"mn-go/internal/mn"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Config{
		BaseURL:    srv.URL + "/cn/",
		NodeID:     "urn:node:TEST",
		Subject:    "CN=urn:node:TEST",
		Codec:      codec.CBOR{},
		MaxTries:   3,
		NewBackOff: func() backoff.BackOff { return &backoff.ZeroBackOff{} },
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestNew(t *testing.T) {
	if _, err := New(Config{Codec: codec.CBOR{}}); err == nil {
		t.Error("New() without BaseURL should fail")
	}
	if _, err := New(Config{BaseURL: "http://cn"}); err == nil {
		t.Error("New() without Codec should fail")
	}
}

func TestClient_Describe(t *testing.T) {
	tests := []struct {
		name      string
		responses []int
		want      int
		wantCalls int32
	}{
		{name: "found", responses: []int{200}, want: 200, wantCalls: 1},
		{name: "missing", responses: []int{404}, want: 404, wantCalls: 1},
		{name: "server error then found", responses: []int{503, 200}, want: 200, wantCalls: 2},
		{name: "server errors exhaust attempts", responses: []int{500, 502, 503}, want: 503, wantCalls: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := calls.Add(1)
				if r.Method != http.MethodHead || r.URL.Path != "/cn/v2/meta/doi:10/x" {
					t.Errorf("request = %s %s", r.Method, r.URL.Path)
				}
				if got := r.Header.Get(SubjectHeader); got != "CN=urn:node:TEST" {
					t.Errorf("%s = %q", SubjectHeader, got)
				}
				w.WriteHeader(tt.responses[n-1])
			}))

			got, err := c.Describe(context.Background(), "doi:10/x")
			if err != nil {
				t.Fatalf("Describe() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Describe() = %d, want %d", got, tt.want)
			}
			if calls.Load() != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls.Load(), tt.wantCalls)
			}
		})
	}
}

func TestClient_DescribeUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c, err := New(Config{
		BaseURL:    base,
		Codec:      codec.CBOR{},
		MaxTries:   2,
		NewBackOff: func() backoff.BackOff { return &backoff.ZeroBackOff{} },
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_, err = c.Describe(context.Background(), "p1")
	if err == nil {
		t.Fatal("Describe() of an unreachable registry should fail")
	}
	if !fault.IsRetryable(err) {
		t.Errorf("IsRetryable(%v) = false, want true", err)
	}
}

func TestClient_Synchronize(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/cn/v2/synchronize" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if got := r.FormValue("pid"); got != "p1" {
			t.Errorf("pid = %q, want p1", got)
		}
		w.WriteHeader(http.StatusOK)
	}))
	got, err := c.Synchronize(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Synchronize() error = %v", err)
	}
	if got != http.StatusOK {
		t.Errorf("Synchronize() = %d, want 200", got)
	}
}

func TestClient_GetSystemMetadata(t *testing.T) {
	want := &mn.Descriptor{PID: "p1", FormatID: "text/plain", Size: 3}
	encoded, err := codec.CBOR{}.Encode(want)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/cn/v2/meta/p1":
			w.Write(encoded)
		case "/cn/v2/meta/garbage":
			w.Write([]byte("not cbor"))
		default:
			http.NotFound(w, r)
		}
	}))
	ctx := context.Background()

	got, err := c.GetSystemMetadata(ctx, "p1")
	if err != nil {
		t.Fatalf("GetSystemMetadata() error = %v", err)
	}
	if got.PID != "p1" || got.Size != 3 || got.FormatID != "text/plain" {
		t.Errorf("GetSystemMetadata() = %+v", got)
	}

	if _, err := c.GetSystemMetadata(ctx, "missing"); !fault.Is(err, fault.NotFound) {
		t.Errorf("GetSystemMetadata(missing) error = %v, want NotFound", err)
	}
	if _, err := c.GetSystemMetadata(ctx, "garbage"); !fault.Is(err, fault.InvalidSystemMetadata) {
		t.Errorf("GetSystemMetadata(garbage) error = %v, want InvalidSystemMetadata", err)
	}
}

func TestClient_SetReplicationStatus(t *testing.T) {
	var got struct{ node, status, failure string }
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/cn/v2/replicaNotifications/p1" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		got.node, got.status, got.failure = r.FormValue("nodeRef"), r.FormValue("status"), r.FormValue("failure")
		w.WriteHeader(http.StatusNoContent)
	}))

	if err := c.SetReplicationStatus(context.Background(), "p1", mn.StatusFailed, errors.New("checksum mismatch")); err != nil {
		t.Fatalf("SetReplicationStatus() error = %v", err)
	}
	if got.node != "urn:node:TEST" || got.status != "failed" || got.failure != "checksum mismatch" {
		t.Errorf("notification = %+v", got)
	}
}

func TestClient_SetReplicationStatusRejected(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	err := c.SetReplicationStatus(context.Background(), "p1", mn.StatusCompleted, nil)
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusUnauthorized {
		t.Errorf("SetReplicationStatus() error = %v, want 401 StatusError", err)
	}
}

func TestClient_GetReplica(t *testing.T) {
	var calls atomic.Int32
	peer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/mn/v2/replica/p1":
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			io.WriteString(w, "replica bytes")
		case "/mn/v2/replica/forbidden":
			http.Error(w, "no", http.StatusForbidden)
		default:
			http.NotFound(w, r)
		}
	}))
	defer peer.Close()
	c := newTestClient(t, http.NotFoundHandler())
	ctx := context.Background()

	rc, err := c.GetReplica(ctx, peer.URL+"/mn", "p1")
	if err != nil {
		t.Fatalf("GetReplica() error = %v", err)
	}
	b, err := io.ReadAll(rc)
	rc.Close()
	if err != nil || string(b) != "replica bytes" {
		t.Errorf("GetReplica() body = %q, %v", b, err)
	}

	_, err = c.GetReplica(ctx, peer.URL+"/mn", "forbidden")
	if err == nil || fault.IsRetryable(err) {
		t.Errorf("GetReplica(forbidden) error = %v, want terminal error", err)
	}
	if _, err := c.GetReplica(ctx, "", "p1"); err == nil {
		t.Error("GetReplica() without peer url should fail")
	}
}

func TestClient_OpenServerErrorIsRetryable(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	_, err := c.Open(context.Background(), c.baseURL+"/object")
	if !fault.IsRetryable(err) {
		t.Errorf("Open() error = %v, want retryable", err)
	}
}
