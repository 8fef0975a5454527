// Package transport builds the HTTP clients used by the crawler.
//
// Connections go out directly, or through a SOCKS5 proxy when one is
// configured. Compression is never negotiated by the transport: the
// recorder sets Accept-Encoding itself and decodes bodies, so the archive
// can hold the exact framing the server sent.
package transport
