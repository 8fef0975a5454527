package prober

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nao1215/warcrawl/internal/model"
)

type fakeResolver struct {
	addrs []netip.Addr
	err   error
}

func (f fakeResolver) LookupNetIP(context.Context, string, string) ([]netip.Addr, error) {
	return f.addrs, f.err
}

type prefixBlocklist []netip.Prefix

func (b prefixBlocklist) IsIPBlocked(addr netip.Addr) bool {
	for _, p := range b {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func candidateOf(t *testing.T, raw string) *model.URL {
	t.Helper()
	u, err := model.ParseURL(raw)
	require.NoError(t, err)
	return &u
}

func TestProbeNoCandidate(t *testing.T) {
	t.Parallel()

	res := New(nil).Probe(context.Background(), "example.com", nil)
	assert.Equal(t, Error{Status: StatusNoKnownURLs}, res)
	assert.Equal(t, "error no-known-urls", res.String())
}

func TestProbeOk(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		assert.Equal(t, "/", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	res := New(srv.Client()).Probe(context.Background(), "127.0.0.1", candidateOf(t, srv.URL+"/deep/page"))
	ok, isOk := res.(Ok)
	require.True(t, isOk, "got %#v", res)
	assert.Equal(t, "/", ok.URL.Path)
	assert.Equal(t, "http", ok.URL.Scheme)
	assert.Equal(t, "127.0.0.1", ok.IP)
	assert.Equal(t, "127.0.0.1", IPOf(res))
}

func TestProbeFallsBackToGet(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		_, _ = w.Write([]byte("hello"))
	}))
	defer srv.Close()

	res := New(srv.Client()).Probe(context.Background(), "127.0.0.1", candidateOf(t, srv.URL))
	_, isOk := res.(Ok)
	assert.True(t, isOk, "got %#v", res)
}

func TestProbeBadStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	res := New(srv.Client()).Probe(context.Background(), "127.0.0.1", candidateOf(t, srv.URL))
	e, isErr := res.(Error)
	require.True(t, isErr, "got %#v", res)
	assert.Equal(t, StatusBadStatus, e.Status)
	assert.Contains(t, e.Description, "503")
}

func TestProbeOffDomainRedirect(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://elsewhere.example/", http.StatusMovedPermanently)
	}))
	defer srv.Close()

	res := New(srv.Client()).Probe(context.Background(), "127.0.0.1", candidateOf(t, srv.URL))
	assert.Equal(t, Redirect{Domain: "elsewhere.example", IP: "127.0.0.1"}, res)
	assert.Equal(t, "redirect elsewhere.example", res.String())
}

func TestProbeSchemeUpgrade(t *testing.T) {
	t.Parallel()

	tlsSrv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer tlsSrv.Close()

	plain := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, tlsSrv.URL+"/", http.StatusMovedPermanently)
	}))
	defer plain.Close()

	res := New(tlsSrv.Client()).Probe(context.Background(), "127.0.0.1", candidateOf(t, plain.URL))
	ok, isOk := res.(Ok)
	require.True(t, isOk, "got %#v", res)
	assert.Equal(t, "https", ok.URL.Scheme)
}

func TestProbeHTTPSFallsBackToHTTP(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	https := strings.Replace(srv.URL, "http://", "https://", 1)
	res := New(srv.Client()).Probe(context.Background(), "127.0.0.1", candidateOf(t, https))
	ok, isOk := res.(Ok)
	require.True(t, isOk, "got %#v", res)
	assert.Equal(t, "http", ok.URL.Scheme)
}

func TestProbeResolution(t *testing.T) {
	t.Parallel()

	blocked := prefixBlocklist{netip.MustParsePrefix("10.0.0.0/8")}

	tests := []struct {
		name     string
		resolver fakeResolver
		want     Status
	}{
		{
			name:     "blocked address",
			resolver: fakeResolver{addrs: []netip.Addr{netip.MustParseAddr("203.0.113.9"), netip.MustParseAddr("10.1.2.3")}},
			want:     StatusBlocked,
		},
		{
			name:     "dns failure",
			resolver: fakeResolver{err: errors.New("no such host")},
			want:     StatusUnreachable,
		},
		{
			name:     "no addresses",
			resolver: fakeResolver{},
			want:     StatusUnreachable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := New(nil, WithResolver(tt.resolver), WithIPBlocklist(blocked))
			res := p.Probe(context.Background(), "example.test", candidateOf(t, "https://example.test/"))
			e, isErr := res.(Error)
			require.True(t, isErr, "got %#v", res)
			assert.Equal(t, tt.want, e.Status)
		})
	}
}

func TestProbeBlockedLiteralAddress(t *testing.T) {
	t.Parallel()

	p := New(nil, WithIPBlocklist(prefixBlocklist{netip.MustParsePrefix("127.0.0.0/8")}))
	res := p.Probe(context.Background(), "127.0.0.1", candidateOf(t, "http://127.0.0.1:1/"))
	e, isErr := res.(Error)
	require.True(t, isErr, "got %#v", res)
	assert.Equal(t, StatusBlocked, e.Status)
	assert.Equal(t, "127.0.0.1", e.IP)
}
