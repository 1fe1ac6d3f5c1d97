// Copyright 2026 The WebWX Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides bounded HTTP response readers for the
// gateway client.
//
// Every gateway response body read goes through ReadResponse, which
// caps the read at MaxResponseSize so a misbehaving server cannot
// exhaust memory. The helpers are for API responses (JSON, JS-literal
// handshake bodies, XML fragments); media downloads stream through
// io.Copy and are not bounded here.
package netutil

import (
	"io"
)

// MaxResponseSize bounds API response body reads: 64 MB. Real gateway
// responses top out around the initial contact dump, which is a few
// megabytes for large rosters; the limit is generous so it never
// interferes with normal operation.
const MaxResponseSize int64 = 64 << 20

// errorBodyLimit caps how much of a response body is quoted inside an
// error message.
const errorBodyLimit = 512

// ReadResponse reads an API response body up to MaxResponseSize bytes.
// Use instead of io.ReadAll when reading HTTP response bodies.
func ReadResponse(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, MaxResponseSize))
}

// ErrorBody reads an HTTP error response body and returns a truncated
// string for diagnostic error messages. Read errors are ignored; a
// partial or empty body is still useful in an error message.
func ErrorBody(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, errorBodyLimit))
	return string(data)
}

// Truncate returns body as a string capped for inclusion in an error
// message.
func Truncate(body []byte) string {
	if len(body) > errorBodyLimit {
		return string(body[:errorBodyLimit]) + "..."
	}
	return string(body)
}
