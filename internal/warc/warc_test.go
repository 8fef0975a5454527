package warc

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() time.Time {
	return time.Date(2024, 3, 1, 12, 30, 45, 0, time.UTC)
}

func sampleRecords() []*Record {
	response := []byte("HTTP/1.1 200 OK\r\nContent-Type: text/html\r\nContent-Length: 12\r\n\r\n<p>hello</p>")
	return []*Record{
		{
			Type:        TypeInfo,
			ContentType: ContentTypeWARCFields,
			Block:       []byte("software: warcrawl\r\ndomain: example.com\r\n"),
		},
		{
			Type:        TypeRequest,
			TargetURI:   "https://example.com/",
			ContentType: ContentTypeHTTPRequest,
			Block:       []byte("GET / HTTP/1.1\r\nHost: example.com\r\n\r\n"),
		},
		{
			Type:          TypeResponse,
			TargetURI:     "https://example.com/",
			IPAddress:     "192.0.2.1",
			ContentType:   ContentTypeHTTPResponse,
			PayloadDigest: Digest(SHA256, []byte("<p>hello</p>")),
			Header:        http.Header{"X-Crawl-Note": {"first"}},
			Block:         response,
		},
		{
			Type:          TypeRefusal,
			TargetURI:     "https://example.com/private",
			RefusalReason: RefusalRobotsDisallowed,
		},
	}
}

func writeAll(t *testing.T, path string, records []*Record) {
	t.Helper()
	w, err := Create(path, WithClock(fixedClock))
	require.NoError(t, err)
	for _, rec := range records {
		require.NoError(t, w.Write(rec))
	}
	assert.Equal(t, len(records), w.Count())
	require.NoError(t, w.Close())
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"plain.warc", "compressed.warc.gz"} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), name)
			in := sampleRecords()
			writeAll(t, path, in)

			out, truncated, err := ReadAll(path)
			require.NoError(t, err)
			assert.False(t, truncated)
			require.Len(t, out, len(in))

			for i := range in {
				assert.Equal(t, in[i].Type, out[i].Type)
				assert.Equal(t, in[i].ID, out[i].ID)
				assert.True(t, strings.HasPrefix(out[i].ID, "<urn:uuid:"))
				assert.True(t, fixedClock().Equal(out[i].Date))
				assert.Equal(t, in[i].TargetURI, out[i].TargetURI)
				assert.Equal(t, in[i].RefusalReason, out[i].RefusalReason)
				assert.Equal(t, in[i].Block, out[i].Block)
				assert.NoError(t, Verify(out[i]))
			}
			assert.Equal(t, "192.0.2.1", out[2].IPAddress)
			assert.Equal(t, "first", out[2].Header.Get("X-Crawl-Note"))
			assert.Equal(t, []byte("<p>hello</p>"), out[2].Payload())
		})
	}
}

func TestCompressedFileIsGzip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "a.warc.gz")
	writeAll(t, path, sampleRecords()[:1])

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(data), 2)
	assert.Equal(t, []byte{0x1f, 0x8b}, data[:2])
}

func TestTruncatedTail(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		file string
		cut  int
	}{
		{name: "gzip member cut", file: "a.warc.gz", cut: 40},
		{name: "plain block cut", file: "a.warc", cut: 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), tt.file)
			writeAll(t, path, sampleRecords()[:3])

			info, err := os.Stat(path)
			require.NoError(t, err)
			require.NoError(t, os.Truncate(path, info.Size()-int64(tt.cut)))

			out, truncated, err := ReadAll(path)
			require.NoError(t, err)
			assert.True(t, truncated)
			require.Len(t, out, 2)
			assert.Equal(t, TypeInfo, out[0].Type)
			assert.Equal(t, TypeRequest, out[1].Type)
		})
	}
}

func TestReaderCorruptContentLength(t *testing.T) {
	t.Parallel()

	good := "WARC/1.1\r\nWARC-Type: warcinfo\r\nContent-Length: 2\r\n\r\nok\r\n\r\n"
	tests := []struct {
		name   string
		input  string
		before int
	}{
		{name: "length beyond limit", input: "WARC/1.1\r\nWARC-Type: response\r\nContent-Length: 9223372036854775807\r\n\r\nabc"},
		{name: "length beyond file", input: "WARC/1.1\r\nWARC-Type: response\r\nContent-Length: 1000000000\r\n\r\nabc"},
		{name: "negative length", input: "WARC/1.1\r\nWARC-Type: response\r\nContent-Length: -1\r\n\r\nabc"},
		{name: "corrupt record after a good one", input: good + "WARC/1.1\r\nWARC-Type: response\r\nContent-Length: 9223372036854775807\r\n\r\nabc", before: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := NewReader(strings.NewReader(tt.input))
			for i := 0; i < tt.before; i++ {
				_, err := r.Next()
				require.NoError(t, err)
			}
			_, err := r.Next()
			assert.ErrorIs(t, err, io.EOF)
			assert.True(t, r.Truncated())
		})
	}
}

func TestReaderEmptyAndForeignInput(t *testing.T) {
	t.Parallel()

	t.Run("empty", func(t *testing.T) {
		t.Parallel()
		r := NewReader(strings.NewReader(""))
		_, err := r.Next()
		assert.ErrorIs(t, err, io.EOF)
		assert.False(t, r.Truncated())
	})

	t.Run("not a warc", func(t *testing.T) {
		t.Parallel()
		r := NewReader(strings.NewReader("hello world\n"))
		_, err := r.Next()
		assert.ErrorIs(t, err, ErrNotWARC)
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		_, _, err := ReadAll(filepath.Join(t.TempDir(), "missing.warc"))
		assert.Error(t, err)
	})
}

func TestWriterErrors(t *testing.T) {
	t.Parallel()

	w, err := Create(filepath.Join(t.TempDir(), "sub", "dir", "a.warc"))
	require.NoError(t, err)

	err = w.Write(&Record{Type: "bogus"})
	assert.ErrorIs(t, err, ErrMalformedRecord)

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	assert.ErrorIs(t, w.Write(&Record{Type: TypeInfo}), ErrWriterClosed)
}

func TestHeaderValuesStayOnOneLine(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "a.warc")
	writeAll(t, path, []*Record{{
		Type:      TypeRefusal,
		TargetURI: "https://example.com/a\r\nWARC-Type: response",
	}})

	out, _, err := ReadAll(path)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, TypeRefusal, out[0].Type)
}

func TestDigest(t *testing.T) {
	t.Parallel()

	assert.Equal(t,
		"sha256:ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		Digest(SHA256, []byte("abc")))

	for _, algo := range []Algorithm{SHA256, BLAKE2b256} {
		d := NewDigester(algo)
		d.Update([]byte("ab"))
		_, _ = d.Write([]byte("c"))
		got := d.Finish()
		assert.Equal(t, Digest(algo, []byte("abc")), got)
		assert.True(t, strings.HasPrefix(got, string(algo)+":"))
		assert.True(t, MatchDigest(got, []byte("abc")))
		assert.False(t, MatchDigest(got, []byte("abd")))
	}

	a, ok := AlgorithmOf("blake2b-256:00")
	assert.True(t, ok)
	assert.Equal(t, BLAKE2b256, a)
	_, ok = AlgorithmOf("md5:00")
	assert.False(t, ok)

	_, err := ParseAlgorithm("md5")
	assert.ErrorIs(t, err, ErrUnknownAlgorithm)
	a, err = ParseAlgorithm("")
	require.NoError(t, err)
	assert.Equal(t, SHA256, a)
}

func TestVerifyDetectsTampering(t *testing.T) {
	t.Parallel()

	rec := sampleRecords()[2]
	rec.BlockDigest = Digest(SHA256, rec.Block)
	require.NoError(t, Verify(rec))

	rec.Block = append([]byte(nil), rec.Block...)
	rec.Block[len(rec.Block)-1] = '!'
	assert.ErrorIs(t, Verify(rec), ErrDigestMismatch)
}

func TestParseResponse(t *testing.T) {
	t.Parallel()

	block := []byte("HTTP/1.1 404 Not Found\r\nContent-Type: text/plain\r\nEtag: \"v1\"\r\nContent-Length: 4\r\n\r\ngone")
	resp, body, err := ParseResponse(block)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
	assert.Equal(t, `"v1"`, resp.Header.Get("ETag"))
	assert.Equal(t, []byte("gone"), body)

	_, _, err = ParseResponse([]byte("garbage"))
	assert.ErrorIs(t, err, ErrMalformedRecord)
}

func TestEnums(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "robots-disallowed", RefusalRobotsDisallowed.Short())
	assert.True(t, RefusalProbeTimeout.IsValid())
	assert.False(t, RefusalReason("urn:other").IsValid())

	assert.Equal(t, "not-truncated", NotTruncated.String())
	assert.Equal(t, TruncatedLength, ParseTruncation("length"))
	assert.Equal(t, TruncatedUnspecified, ParseTruncation("disconnect"))

	assert.True(t, TypeReferenceResponse.IsResponse())
	assert.False(t, TypeRefusal.IsResponse())
}
