// Copyright 2026 The WebWX Authors
// SPDX-License-Identifier: Apache-2.0

package wechat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"syscall"
)

// syncCheckPattern extracts the status pair from the long-poll
// response, another JS-literal body.
var syncCheckPattern = regexp.MustCompile(`window\.synccheck=\{retcode:"(.*)",selector:"(.*)"\}`)

// baseRequestBody is the envelope for endpoints that take only the
// credential block.
type baseRequestBody struct {
	BaseRequest *Credentials `json:"BaseRequest"`
}

// contactRef names a contact in a batch request or a removal list.
type contactRef struct {
	UserName        string `json:"UserName"`
	EncryChatRoomID string `json:"EncryChatRoomId"`
}

// Syncer is the session's sync engine. It owns the two mailbox
// cursors and advances them as batches are consumed.
//
// A Syncer must be driven from a single goroutine: Next mutates the
// cursors and the session's roster. Outbound operations on the same
// Session may run concurrently with it.
type Syncer struct {
	session *Session

	// checkKey is rendered into the synccheck query; syncKey is posted
	// to the delta fetch. They advance together after each fetch.
	checkKey SyncKey
	syncKey  SyncKey
}

type initResponse struct {
	User        User              `json:"User"`
	SyncKey     SyncKey           `json:"SyncKey"`
	ContactList []json.RawMessage `json:"ContactList"`
	ChatSet     string            `json:"ChatSet"`
}

// Init bootstraps the authenticated session: it fetches the account's
// own identity and initial state, announces the client to the gateway,
// pages through the full roster, and returns the sync engine
// positioned at the current mailbox cursor.
func (s *Session) Init(ctx context.Context) (*Syncer, error) {
	credentials, err := s.baseRequest()
	if err != nil {
		return nil, err
	}

	var initial initResponse
	initURL := s.apiURL("/cgi-bin/mmwebwx-bin/webwxinit")
	if err := s.client.postJSON(ctx, initURL, baseRequestBody{BaseRequest: credentials}, &initial); err != nil {
		return nil, fmt.Errorf("wechat: session bootstrap failed: %w", err)
	}
	if initial.SyncKey.IsZero() {
		return nil, &ProtocolError{Marker: "SyncKey"}
	}
	s.self.Store(&initial.User)

	for _, raw := range initial.ContactList {
		if _, err := s.roster.Merge(raw, initial.User.UserName); err != nil {
			s.client.logger.Warn("skipping unparsable contact record", "error", err)
		}
	}
	s.setActiveChats(strings.Split(initial.ChatSet, ","))

	if err := s.Notify(ctx, StatusNotifyInited, initial.User.UserName); err != nil {
		return nil, fmt.Errorf("wechat: init status notify failed: %w", err)
	}
	if err := s.fetchAllContacts(ctx); err != nil {
		return nil, err
	}
	if err := s.resolvePending(ctx); err != nil {
		return nil, err
	}

	s.client.logger.Info("session initialized",
		"self", initial.User.UserName,
		"contacts", s.roster.Len())
	return &Syncer{
		session:  s,
		checkKey: initial.SyncKey,
		syncKey:  initial.SyncKey,
	}, nil
}

// fetchAllContacts pages through the full roster dump. The gateway
// returns a continuation sequence with each page; zero means the dump
// is complete.
func (s *Session) fetchAllContacts(ctx context.Context) error {
	selfName := s.selfName()
	sequence := int64(0)
	for {
		var page struct {
			MemberList []json.RawMessage `json:"MemberList"`
			Seq        int64             `json:"Seq"`
		}
		pageURL := s.apiURL("/cgi-bin/mmwebwx-bin/webwxgetcontact?seq=" + strconv.FormatInt(sequence, 10))
		if err := s.client.getJSON(ctx, pageURL, &page); err != nil {
			return fmt.Errorf("wechat: roster fetch failed: %w", err)
		}
		for _, raw := range page.MemberList {
			if _, err := s.roster.Merge(raw, selfName); err != nil {
				s.client.logger.Warn("skipping unparsable contact record", "error", err)
			}
		}
		if page.Seq == 0 {
			return nil
		}
		sequence = page.Seq
	}
}

// resolvePending batch-fetches full records for every identifier on
// the roster's pending list. Identifiers the response does not cover
// stay pending and are retried on the next sync iteration.
func (s *Session) resolvePending(ctx context.Context) error {
	pending := s.roster.Pending()
	if len(pending) == 0 {
		return nil
	}
	credentials, err := s.baseRequest()
	if err != nil {
		return err
	}

	refs := make([]contactRef, len(pending))
	for index, id := range pending {
		refs[index] = contactRef{UserName: id}
	}
	request := struct {
		BaseRequest *Credentials `json:"BaseRequest"`
		Count       int          `json:"Count"`
		List        []contactRef `json:"List"`
	}{credentials, len(refs), refs}

	var response struct {
		ContactList []json.RawMessage `json:"ContactList"`
	}
	batchURL := s.apiURL("/cgi-bin/mmwebwx-bin/webwxbatchgetcontact?type=ex")
	if err := s.client.postJSON(ctx, batchURL, request, &response); err != nil {
		return fmt.Errorf("wechat: batch contact fetch failed: %w", err)
	}

	selfName := s.selfName()
	for _, raw := range response.ContactList {
		if _, err := s.roster.Merge(raw, selfName); err != nil {
			s.client.logger.Warn("skipping unparsable contact record", "error", err)
		}
	}
	if remaining := len(s.roster.Pending()); remaining > 0 {
		s.client.logger.Debug("contacts still unresolved after batch fetch", "count", remaining)
	}
	return nil
}

// Next runs one sync iteration: a long-poll on the notification
// endpoint followed, when the poll reports activity, by a delta fetch.
// It blocks until the gateway reports something, the poll returns
// empty, or ctx is cancelled.
//
// A nil error with an empty batch is normal (the poll timed out
// server-side with nothing new). ErrSessionExpired means the gateway
// retired the session; the Syncer is dead and the caller must log in
// again.
func (y *Syncer) Next(ctx context.Context) ([]Message, error) {
	selector, err := y.checkSync(ctx)
	if err != nil {
		return nil, err
	}
	if selector == "0" {
		return nil, nil
	}
	return y.fetchDelta(ctx)
}

// checkSync long-polls the notification endpoint with the check
// cursor. Transient transport failures while the poll is parked are
// retried in place on a fresh connection; they are expected during a
// wait that routinely outlives NAT and proxy idle timeouts.
func (y *Syncer) checkSync(ctx context.Context) (selector string, err error) {
	session := y.session
	credentials, err := session.baseRequest()
	if err != nil {
		return "", err
	}
	checkURL := session.client.pushURL + "/cgi-bin/mmwebwx-bin/synccheck?sid=" + url.QueryEscape(credentials.SID) +
		"&uin=" + strconv.FormatInt(credentials.UIN, 10) +
		"&synckey=" + url.QueryEscape(y.checkKey.queryString())

	for {
		body, err := session.client.get(ctx, checkURL)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			if isTransientSyncError(err) {
				session.client.logger.Debug("long-poll connection dropped, retrying", "error", err)
				session.client.CloseIdleConnections()
				continue
			}
			return "", err
		}

		match := syncCheckPattern.FindSubmatch(body)
		if match == nil {
			return "", &ProtocolError{Marker: "window.synccheck"}
		}
		retcode, selector := string(match[1]), string(match[2])
		if retcode != "0" {
			session.client.logger.Info("session retired by gateway", "retcode", retcode)
			if err := session.Logout(ctx); err != nil {
				session.client.logger.Warn("logout notification failed", "error", err)
			}
			return "", ErrSessionExpired
		}
		return selector, nil
	}
}

// isTransientSyncError reports whether a long-poll failure is a
// connection-level drop worth retrying in place. Anything else (DNS
// failure, TLS error, non-2xx status) surfaces to the caller.
func isTransientSyncError(err error) bool {
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	// The HTTP/1 client reports a connection dropped mid-status-line
	// as a malformed response rather than a net error.
	message := err.Error()
	return strings.Contains(message, "malformed HTTP response") ||
		strings.Contains(message, "malformed HTTP status code")
}

type syncResponse struct {
	SyncCheckKey   SyncKey           `json:"SyncCheckKey"`
	SyncKey        SyncKey           `json:"SyncKey"`
	AddMsgList     []Msg             `json:"AddMsgList"`
	ModContactList []json.RawMessage `json:"ModContactList"`
	DelContactList []contactRef      `json:"DelContactList"`
}

// fetchDelta posts the commit cursor, applies the returned roster
// changes, decodes the new messages, and advances both cursors.
func (y *Syncer) fetchDelta(ctx context.Context) ([]Message, error) {
	session := y.session
	credentials, err := session.baseRequest()
	if err != nil {
		return nil, err
	}

	request := struct {
		BaseRequest *Credentials `json:"BaseRequest"`
		SyncKey     SyncKey      `json:"SyncKey"`
	}{credentials, y.syncKey}

	var delta syncResponse
	syncURL := session.apiURL("/cgi-bin/mmwebwx-bin/webwxsync?sid=" + url.QueryEscape(credentials.SID))
	if err := session.client.postJSON(ctx, syncURL, request, &delta); err != nil {
		return nil, fmt.Errorf("wechat: delta fetch failed: %w", err)
	}

	selfName := session.selfName()
	for _, raw := range delta.ModContactList {
		if _, err := session.roster.Merge(raw, selfName); err != nil {
			session.client.logger.Warn("skipping unparsable contact record", "error", err)
		}
	}
	for _, removed := range delta.DelContactList {
		session.roster.Remove(removed.UserName)
	}

	messages := make([]Message, 0, len(delta.AddMsgList))
	for _, raw := range delta.AddMsgList {
		message := session.decodeMessage(raw)
		if message.MsgType == MsgTypeStatusNotify && message.StatusNotifyCode == StatusNotifySyncConv {
			session.setActiveChats(strings.Split(message.StatusNotifyUserName, ","))
		}
		messages = append(messages, message)
	}

	if err := session.resolvePending(ctx); err != nil {
		session.client.logger.Warn("pending contact resolution failed", "error", err)
	}

	if !delta.SyncCheckKey.IsZero() {
		y.checkKey = delta.SyncCheckKey
	} else if !delta.SyncKey.IsZero() {
		y.checkKey = delta.SyncKey
	}
	if !delta.SyncKey.IsZero() {
		y.syncKey = delta.SyncKey
	}
	return messages, nil
}
