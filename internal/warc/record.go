package warc

import (
	"net/http"
	"time"
)

// Version is the format version written on every record.
const Version = "WARC/1.1"

// Field names used by this package.
const (
	FieldType          = "WARC-Type"
	FieldRecordID      = "WARC-Record-ID"
	FieldDate          = "WARC-Date"
	FieldTargetURI     = "WARC-Target-URI"
	FieldIPAddress     = "WARC-IP-Address"
	FieldConcurrentTo  = "WARC-Concurrent-To"
	FieldRefersTo      = "WARC-Refers-To"
	FieldBlockDigest   = "WARC-Block-Digest"
	FieldPayloadDigest = "WARC-Payload-Digest"
	FieldTruncated     = "WARC-Truncated"
	FieldRefusalReason = "WARC-Refusal-Reason"
	FieldContentType   = "Content-Type"
	FieldContentLength = "Content-Length"
)

// Block content types.
const (
	ContentTypeWARCFields   = "application/warc-fields"
	ContentTypeHTTPRequest  = "application/http;msgtype=request"
	ContentTypeHTTPResponse = "application/http;msgtype=response"
)

// dateLayout is the WARC-Date layout; dates are always UTC.
const dateLayout = "2006-01-02T15:04:05Z"

// RecordType tags what a record holds.
type RecordType string

// Record types.
const (
	// TypeInfo carries crawl metadata and is the first record of an archive.
	TypeInfo RecordType = "warcinfo"
	// TypeRequest carries a reconstructed HTTP request.
	TypeRequest RecordType = "request"
	// TypeResponse carries a reconstructed HTTP response.
	TypeResponse RecordType = "response"
	// TypeReferenceResponse carries a response synthesized from an earlier
	// crawl after the server answered 304.
	TypeReferenceResponse RecordType = "reference-response"
	// TypeRefusal notes a URL that was deliberately not fetched, or failed.
	TypeRefusal RecordType = "refusal"
)

// String returns the wire value of the record type.
func (t RecordType) String() string {
	return string(t)
}

// IsValid returns true if this is a known record type.
func (t RecordType) IsValid() bool {
	switch t {
	case TypeInfo, TypeRequest, TypeResponse, TypeReferenceResponse, TypeRefusal:
		return true
	default:
		return false
	}
}

// IsResponse reports whether records of this type hold an HTTP response.
func (t RecordType) IsResponse() bool {
	return t == TypeResponse || t == TypeReferenceResponse
}

// Truncation tells why a response block is incomplete.
type Truncation string

// Truncation reasons. NotTruncated is written by omitting the field.
const (
	NotTruncated         Truncation = ""
	TruncatedLength      Truncation = "length"
	TruncatedTime        Truncation = "time"
	TruncatedUnspecified Truncation = "unspecified"
)

// String returns a human-readable truncation reason.
func (t Truncation) String() string {
	switch t {
	case NotTruncated:
		return "not-truncated"
	case TruncatedLength, TruncatedTime, TruncatedUnspecified:
		return string(t)
	default:
		return "unspecified"
	}
}

// ParseTruncation converts a WARC-Truncated value. Unknown values map to
// TruncatedUnspecified.
func ParseTruncation(s string) Truncation {
	switch Truncation(s) {
	case NotTruncated, TruncatedLength, TruncatedTime, TruncatedUnspecified:
		return Truncation(s)
	default:
		return TruncatedUnspecified
	}
}

// RefusalReason identifies a class of refusal. The set is closed.
type RefusalReason string

// Refusal reasons.
const (
	RefusalRobotsDisallowed RefusalReason = "urn:warcrawl:refusal:robots-disallowed"
	RefusalBadContentType   RefusalReason = "urn:warcrawl:refusal:bad-content-type"
	RefusalUnspecifiedError RefusalReason = "urn:warcrawl:refusal:unspecified-error"
	RefusalProbeTimeout     RefusalReason = "urn:warcrawl:refusal:probe-timeout"
)

// String returns the URN of the reason.
func (r RefusalReason) String() string {
	return string(r)
}

// IsValid returns true if this is a known refusal reason.
func (r RefusalReason) IsValid() bool {
	switch r {
	case RefusalRobotsDisallowed, RefusalBadContentType, RefusalUnspecifiedError, RefusalProbeTimeout:
		return true
	default:
		return false
	}
}

// Short returns the last segment of the URN, e.g. "robots-disallowed".
func (r RefusalReason) Short() string {
	s := string(r)
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == ':' {
			return s[i+1:]
		}
	}
	return s
}

// Record is one archive entry.
type Record struct {
	Type          RecordType
	ID            string
	Date          time.Time
	TargetURI     string
	IPAddress     string
	ConcurrentTo  string
	RefersTo      string
	BlockDigest   string
	PayloadDigest string
	Truncated     Truncation
	RefusalReason RefusalReason
	ContentType   string

	// Header holds any additional named fields.
	Header http.Header

	// Block is the record content.
	Block []byte
}

// Payload returns the HTTP body of a response-like record, i.e. the
// bytes after the header block. For other records it returns Block.
func (r *Record) Payload() []byte {
	if !r.Type.IsResponse() {
		return r.Block
	}
	return r.Block[PayloadOffset(r.Block):]
}
