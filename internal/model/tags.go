package model

import "net/http"

// ContentTags carries the validators used for conditional re-fetches.
// Both fields are optional.
type ContentTags struct {
	// ETag is the entity tag reported by the server.
	ETag string `json:"etag,omitempty"`

	// LastModified is the raw Last-Modified header value.
	LastModified string `json:"last_modified,omitempty"`
}

// TagsFromHeader extracts content tags from response headers.
func TagsFromHeader(h http.Header) ContentTags {
	if h == nil {
		return ContentTags{}
	}
	return ContentTags{
		ETag:         h.Get("ETag"),
		LastModified: h.Get("Last-Modified"),
	}
}

// IsEmpty reports whether neither validator is present.
func (t ContentTags) IsEmpty() bool {
	return t.ETag == "" && t.LastModified == ""
}

// Apply sets the conditional request headers on h.
func (t ContentTags) Apply(h http.Header) {
	if t.ETag != "" {
		h.Set("If-None-Match", t.ETag)
	}
	if t.LastModified != "" {
		h.Set("If-Modified-Since", t.LastModified)
	}
}

// Merge returns t with every non-empty field of fresh taking precedence.
func (t ContentTags) Merge(fresh ContentTags) ContentTags {
	if fresh.ETag != "" {
		t.ETag = fresh.ETag
	}
	if fresh.LastModified != "" {
		t.LastModified = fresh.LastModified
	}
	return t
}

// WriteTo overwrites the validator headers in h with the non-empty tags.
func (t ContentTags) WriteTo(h http.Header) {
	if t.ETag != "" {
		h.Set("ETag", t.ETag)
	}
	if t.LastModified != "" {
		h.Set("Last-Modified", t.LastModified)
	}
}
