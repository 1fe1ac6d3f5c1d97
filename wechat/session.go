// Copyright 2026 The WebWX Authors
// SPDX-License-Identifier: Apache-2.0

package wechat

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
)

// Session is an authenticated gateway session: the credentials minted
// by the login redirect, the account's own identity (set by Init), the
// roster, and the active conversation list. Exactly one Session exists
// per login; every outbound call reads the credentials through an
// atomic pointer so concurrent operations never observe a partially
// written value.
//
// The sync engine and the login machinery are the only writers of
// session state. Outbound operations only read it, so they are safe to
// run concurrently with the sync loop.
type Session struct {
	client      *Client
	credentials atomic.Pointer[Credentials]
	self        atomic.Pointer[User]
	roster      *Roster

	// chatMu guards the active conversation list.
	chatMu sync.Mutex
	chats  []string
}

// Credentials returns a copy of the session credentials, or false if
// the session has been logged out.
func (s *Session) Credentials() (Credentials, bool) {
	credentials := s.credentials.Load()
	if credentials == nil {
		return Credentials{}, false
	}
	return *credentials, true
}

// baseRequest returns the live credential block for embedding in an
// outbound payload.
func (s *Session) baseRequest() (*Credentials, error) {
	credentials := s.credentials.Load()
	if credentials == nil {
		return nil, ErrLoggedOut
	}
	return credentials, nil
}

// Self returns the account's own identity record. The zero User is
// returned before Init has run.
func (s *Session) Self() User {
	self := s.self.Load()
	if self == nil {
		return User{}
	}
	return *self
}

// selfName returns the account's own user name, or "" before Init.
func (s *Session) selfName() string {
	self := s.self.Load()
	if self == nil {
		return ""
	}
	return self.UserName
}

// IsSelf reports whether userName is the account's own identity.
func (s *Session) IsSelf(userName string) bool {
	return userName == s.selfName()
}

// Roster returns the session's contact store.
func (s *Session) Roster() *Roster {
	return s.roster
}

// ActiveChats returns the current conversation list: the identifiers
// the gateway reported as having open conversations, in gateway order.
func (s *Session) ActiveChats() []string {
	s.chatMu.Lock()
	defer s.chatMu.Unlock()
	chats := make([]string, len(s.chats))
	copy(chats, s.chats)
	return chats
}

// setActiveChats replaces the conversation list with ids (empty
// entries dropped) and queues identifiers the roster has never seen
// for batched resolution.
func (s *Session) setActiveChats(ids []string) {
	s.chatMu.Lock()
	s.chats = s.chats[:0]
	for _, id := range ids {
		if id == "" {
			continue
		}
		s.chats = append(s.chats, id)
		s.roster.QueueIfUnknown(id)
	}
	s.chatMu.Unlock()
}

// apiURL joins a path (with optional query suffix) onto the main
// gateway base.
func (s *Session) apiURL(path string) string {
	return s.client.apiURL + path
}

// Logout notifies the gateway and clears the session credentials.
// Safe to call on an already logged-out session. The notification is
// best-effort: credentials are cleared even when the request fails, so
// the session is unusable afterwards either way.
func (s *Session) Logout(ctx context.Context) error {
	credentials := s.credentials.Load()
	if credentials == nil {
		return nil
	}
	s.credentials.Store(nil)

	request, err := s.client.newRequest(ctx, http.MethodPost, s.apiURL("/cgi-bin/mmwebwx-bin/webwxlogout"), nil)
	if err != nil {
		return err
	}
	response, err := s.client.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("wechat: logout notification failed: %w", err)
	}
	response.Body.Close()
	s.client.logger.Info("logged out", "uin", credentials.UIN)
	return nil
}
