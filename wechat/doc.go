// Copyright 2026 The WebWX Authors
// SPDX-License-Identifier: Apache-2.0

// Package wechat implements a client for the web WeChat gateway: the
// QR-code login handshake, the perpetual long-poll synchronization
// loop, and the outbound messaging, upload, and roster operations.
//
// The package provides three core types. [Client] is an unauthenticated
// gateway client holding the four gateway base URLs (api, login, push,
// file) and the HTTP transport. [Client.Login] drives the QR handshake
// (ticket issuance, scan polling, one-time redirect) and returns an
// authenticated [Session]. [Session.Init] bootstraps the session
// (self identity, initial roster, sync cursors) and returns a [Syncer]
// whose Next method performs one long-poll iteration and yields the
// decoded message batch.
//
// The gateway speaks three wire formats: JSON with CamelCase keys for
// almost everything, JavaScript-literal bodies for the three handshake
// endpoints (jslogin, login poll, synccheck), and XML fragments for the
// credential redirect and the structured message payloads. JSON
// responses embed a BaseResponse block; a nonzero Ret code there is
// surfaced as a [GatewayError] even when the HTTP status is 200.
//
// Messages arrive as a union-of-fields record whose serialization rules
// depend on the type and sub-type fields. The decoder normalizes each
// record exactly once: line-break markup and emoji placeholder spans
// are rendered, room messages have their sender prefix split off, and
// the type-specific XML payloads (app messages, emoticons, recalls,
// share cards, locations) are parsed into typed structs. Decoding is
// not idempotent: never feed a decoded [Message] back through the
// decoder. A record whose payload fails to parse degrades to its
// normalized string content; decoding never fails a batch.
//
// The Syncer is not safe for concurrent use: run it on one goroutine.
// Outbound operations (sends, uploads, roster mutation) may run
// concurrently with the sync loop; they read the session credentials
// through an atomic pointer and never touch cursor state. All blocking
// calls take a context and abort promptly on cancellation, including
// the long-poll wait, which the gateway may otherwise hold open for
// tens of seconds.
//
// Session state lives only in process memory. When the gateway
// invalidates the session (nonzero synccheck retcode), Next returns
// [ErrSessionExpired] and the caller must log in again.
package wechat
