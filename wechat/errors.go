// Copyright 2026 The WebWX Authors
// SPDX-License-Identifier: Apache-2.0

package wechat

import (
	"errors"
	"fmt"
)

// GatewayError represents a rejection embedded in an otherwise
// successful HTTP response: the BaseResponse block carried a nonzero
// Ret code. It is scoped to the operation that triggered it and does
// not affect session state. Callers can use errors.As to extract the
// structured information:
//
//	var gatewayErr *GatewayError
//	if errors.As(err, &gatewayErr) {
//	    if gatewayErr.Ret == 1101 { ... }
//	}
type GatewayError struct {
	// Ret is the gateway status code (e.g. 1101 for an expired
	// session cookie).
	Ret int
	// Message is the human-readable ErrMsg from the gateway. Often
	// empty.
	Message string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("wechat: gateway ret %d: %s", e.Ret, e.Message)
}

// IsGatewayRet checks whether err is a *GatewayError with the given
// Ret code.
func IsGatewayRet(err error, ret int) bool {
	var gatewayErr *GatewayError
	if errors.As(err, &gatewayErr) {
		return gatewayErr.Ret == ret
	}
	return false
}

// ProtocolError reports a handshake response that did not contain the
// JavaScript literal the protocol requires. The handshake endpoints
// return unstructured script bodies; a missing marker means the
// gateway changed shape and the login attempt cannot proceed.
type ProtocolError struct {
	// Marker is the literal that was expected (e.g. "window.code").
	Marker string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("wechat: protocol violation: %s literal not found in response", e.Marker)
}

var (
	// ErrLoginRejected is returned by Login when the user declined
	// the scan or the QR ticket expired (login status 400). No
	// session exists; issue a fresh Login to retry.
	ErrLoginRejected = errors.New("wechat: login rejected or ticket expired")

	// ErrSessionExpired is returned by Syncer.Next when the gateway
	// reports a nonzero synccheck retcode. The sync sequence is over
	// and the credentials have been cleared; the caller must log in
	// again to resume.
	ErrSessionExpired = errors.New("wechat: session invalidated by gateway")

	// ErrLoggedOut is returned by operations invoked on a session
	// whose credentials have been cleared (or never minted).
	ErrLoggedOut = errors.New("wechat: session has no credentials")
)
