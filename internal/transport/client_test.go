package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewClient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		address string
		wantErr bool
	}{
		{name: "direct", address: "", wantErr: false},
		{name: "ip and port", address: "127.0.0.1:1080", wantErr: false},
		{name: "host and port", address: "localhost:9050", wantErr: false},
		{name: "missing port", address: "127.0.0.1", wantErr: true},
		{name: "empty host", address: ":1080", wantErr: true},
		{name: "port out of range", address: "127.0.0.1:70000", wantErr: true},
		{name: "port zero", address: "127.0.0.1:0", wantErr: true},
		{name: "port not a number", address: "127.0.0.1:socks", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client, err := NewClient(tt.address)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidProxyAddress) {
					t.Errorf("expected ErrInvalidProxyAddress, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if client.ProxyAddress() != tt.address {
				t.Errorf("ProxyAddress() = %q, want %q", client.ProxyAddress(), tt.address)
			}
		})
	}
}

func TestNewHTTPClient(t *testing.T) {
	t.Parallel()

	client, err := NewClient("", WithTimeout(5*time.Second))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	hc := client.NewHTTPClient()

	if hc.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", hc.Timeout)
	}
	if hc.Jar == nil {
		t.Error("expected a cookie jar")
	}
	tr, ok := hc.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("expected *http.Transport, got %T", hc.Transport)
	}
	if !tr.DisableCompression {
		t.Error("expected compression to be disabled")
	}
}

func TestHTTPClientLeavesEncodingAlone(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, r.Header.Get("Accept-Encoding")+"|"+r.Header.Get("X-Crawl"))
	}))
	defer srv.Close()

	client, err := NewClient("", WithHeaders(map[string]string{"X-Crawl": "warcrawl"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resp, err := client.NewHTTPClient().Get(srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if got, want := string(body), "|warcrawl"; got != want {
		t.Errorf("body = %q, want %q", got, want)
	}
}

func TestHeaderInjectingTransportKeepsExplicitHeaders(t *testing.T) {
	t.Parallel()

	got := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got <- r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	client, err := NewClient("", WithHeaders(map[string]string{"User-Agent": "fallback"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	req.Header.Set("User-Agent", "explicit")

	resp, err := client.NewHTTPClient().Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if ua := <-got; ua != "explicit" {
		t.Errorf("User-Agent = %q, want %q", ua, "explicit")
	}
}

func TestProxyStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status  ProxyStatus
		str     string
		wantErr error
	}{
		{ProxyStatusOK, "OK", nil},
		{ProxyStatusWrongType, "wrong type (not SOCKS5)", ErrProxyNotSOCKS5},
		{ProxyStatusCannotConnect, "cannot connect", ErrProxyCannotConnect},
		{ProxyStatusTimeout, "timeout", ErrProxyTimeout},
	}
	for _, tt := range tests {
		if got := tt.status.String(); got != tt.str {
			t.Errorf("String() = %q, want %q", got, tt.str)
		}
		if err := tt.status.Error(); !errors.Is(err, tt.wantErr) {
			t.Errorf("Error() = %v, want %v", err, tt.wantErr)
		}
	}
	if ProxyStatus(99).String() != "unknown" {
		t.Error("expected unknown for out-of-range status")
	}
}

// fakeProxy answers the SOCKS5 greeting with reply.
func fakeProxy(t *testing.T, reply []byte) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0") //nolint:noctx // test code
	if err != nil {
		t.Fatalf("failed to start mock proxy: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 3)
		_, _ = io.ReadFull(conn, buf)
		_, _ = conn.Write(reply)
	}()
	return listener.Addr().String()
}

func TestCheckProxy(t *testing.T) {
	t.Parallel()

	t.Run("direct connections need no check", func(t *testing.T) {
		t.Parallel()
		client, _ := NewClient("")
		if status := client.CheckProxy(context.Background()); status != ProxyStatusOK {
			t.Errorf("expected OK, got %v", status)
		}
	})

	t.Run("socks5 without auth", func(t *testing.T) {
		t.Parallel()
		client, err := NewClient(fakeProxy(t, []byte{0x05, 0x00}))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if status := client.CheckProxy(context.Background()); status != ProxyStatusOK {
			t.Errorf("expected OK, got %v", status)
		}
	})

	t.Run("socks5 requiring auth", func(t *testing.T) {
		t.Parallel()
		client, err := NewClient(fakeProxy(t, []byte{0x05, 0xFF}))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if status := client.CheckProxy(context.Background()); status != ProxyStatusWrongType {
			t.Errorf("expected WrongType, got %v", status)
		}
	})

	t.Run("http server", func(t *testing.T) {
		t.Parallel()
		client, err := NewClient(fakeProxy(t, []byte("HTTP/1.1 400 Bad Request\r\n\r\n")))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if status := client.CheckProxy(context.Background()); status != ProxyStatusWrongType {
			t.Errorf("expected WrongType, got %v", status)
		}
	})

	t.Run("nothing listening", func(t *testing.T) {
		t.Parallel()
		listener, err := net.Listen("tcp", "127.0.0.1:0") //nolint:noctx // test code
		if err != nil {
			t.Fatalf("failed to reserve port: %v", err)
		}
		addr := listener.Addr().String()
		listener.Close()

		client, err := NewClient(addr)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if status := client.CheckProxy(context.Background()); status != ProxyStatusCannotConnect {
			t.Errorf("expected CannotConnect, got %v", status)
		}
	})
}
