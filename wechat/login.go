// Copyright 2026 The WebWX Authors
// SPDX-License-Identifier: Apache-2.0

package wechat

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
)

// appID identifies the web client to the login service. It is a fixed
// public constant, not a per-deployment secret.
const appID = "wx782c26e4c19acffb"

// qrBaseURL is where the QR code points. It is rendered by the scanning
// phone, not fetched by this client, so it is not a configurable base.
const qrBaseURL = "https://login.weixin.qq.com/l/"

// Handshake endpoints answer with JavaScript assignments rather than
// JSON. The values are pulled out with these patterns.
var (
	qrTicketPattern  = regexp.MustCompile(`window\.QRLogin\.uuid = "(.*)"`)
	loginCodePattern = regexp.MustCompile(`window\.code=(\d+)`)
	redirectPattern  = regexp.MustCompile(`window\.redirect_uri="(.*)"`)
)

// LoginOptions configures the login handshake.
type LoginOptions struct {
	// RenderQR is called once with the URI the user must scan. Required
	// unless Resume succeeds: rendering (terminal QR, image file, ...)
	// is the caller's concern.
	RenderQR func(uri string)

	// Resume, if set, attempts a push login with the credentials of a
	// previous session: the gateway sends a confirmation prompt to the
	// account's phone instead of requiring a QR scan. On any failure
	// the handshake falls back to the QR flow.
	Resume *Credentials
}

// Login performs the full login handshake and returns an authenticated
// Session. It blocks until the user completes (or rejects) the login on
// their phone, or ctx is cancelled.
//
// The returned session has credentials but no self identity or roster
// content yet; call Session.Init to bootstrap those and obtain the
// sync engine.
func (c *Client) Login(ctx context.Context, options LoginOptions) (*Session, error) {
	uuid, pushed, err := c.obtainTicket(ctx, options)
	if err != nil {
		return nil, err
	}
	if !pushed {
		if options.RenderQR == nil {
			return nil, errors.New("wechat: LoginOptions.RenderQR is required for QR login")
		}
		options.RenderQR(qrBaseURL + uuid)
	}

	redirectURI, err := c.awaitScan(ctx, uuid)
	if err != nil {
		return nil, err
	}

	credentials, err := c.mintCredentials(ctx, redirectURI)
	if err != nil {
		return nil, err
	}
	c.logger.Info("login complete", "uin", credentials.UIN)

	session := &Session{
		client: c,
		roster: NewRoster(),
	}
	session.credentials.Store(credentials)
	return session, nil
}

// obtainTicket returns the login ticket, trying the push fast path
// first when resume credentials are available. pushed reports whether
// the ticket came from a push login, in which case no QR scan is
// needed.
func (c *Client) obtainTicket(ctx context.Context, options LoginOptions) (uuid string, pushed bool, err error) {
	if options.Resume != nil {
		uuid, err := c.pushLogin(ctx, options.Resume.UIN)
		if err == nil {
			return uuid, true, nil
		}
		if ctx.Err() != nil {
			return "", false, err
		}
		c.logger.Info("push login unavailable, falling back to QR", "error", err)
	}
	uuid, err = c.fetchQRTicket(ctx)
	return uuid, false, err
}

// fetchQRTicket asks the login service for a fresh QR login ticket.
func (c *Client) fetchQRTicket(ctx context.Context) (string, error) {
	body, err := c.get(ctx, c.loginURL+"/jslogin?appid="+appID)
	if err != nil {
		return "", err
	}
	match := qrTicketPattern.FindSubmatch(body)
	if match == nil {
		return "", &ProtocolError{Marker: "window.QRLogin.uuid"}
	}
	return string(match[1]), nil
}

// pushLogin asks the gateway to prompt the phone directly, reusing the
// uin of a previous session. The response is JSON with a string ret
// code; anything but "0" means the fast path is unavailable.
func (c *Client) pushLogin(ctx context.Context, uin int64) (string, error) {
	var result struct {
		Ret  string `json:"ret"`
		Msg  string `json:"msg"`
		UUID string `json:"uuid"`
	}
	requestURL := c.apiURL + "/cgi-bin/mmwebwx-bin/webwxpushloginurl?uin=" + strconv.FormatInt(uin, 10)
	if err := c.getJSON(ctx, requestURL, &result); err != nil {
		return "", err
	}
	if result.Ret != "0" || result.UUID == "" {
		return "", fmt.Errorf("wechat: push login refused: ret %s: %s", result.Ret, result.Msg)
	}
	return result.UUID, nil
}

// awaitScan polls the login service until the user confirms the login
// on their phone, returning the one-time redirect URI. The endpoint
// long-polls server-side, so the loop re-requests immediately on every
// intermediate code (201 scanned, 408 still waiting). A 400 means the
// ticket expired or the user cancelled on the phone.
func (c *Client) awaitScan(ctx context.Context, uuid string) (string, error) {
	pollURL := c.loginURL + "/cgi-bin/mmwebwx-bin/login?uuid=" + url.QueryEscape(uuid)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		body, err := c.get(ctx, pollURL)
		if err != nil {
			return "", err
		}
		match := loginCodePattern.FindSubmatch(body)
		if match == nil {
			return "", &ProtocolError{Marker: "window.code"}
		}
		switch code := string(match[1]); code {
		case "200":
			redirect := redirectPattern.FindSubmatch(body)
			if redirect == nil {
				return "", &ProtocolError{Marker: "window.redirect_uri"}
			}
			return string(redirect[1]), nil
		case "400":
			return "", ErrLoginRejected
		case "201":
			c.logger.Debug("QR scanned, awaiting confirmation")
		default:
			c.logger.Debug("login pending", "code", code)
		}
	}
}

// loginRedirect is the XML body of the redirect target carrying the
// session credentials.
type loginRedirect struct {
	XMLName xml.Name `xml:"error"`
	SID     string   `xml:"wxsid"`
	UIN     int64    `xml:"wxuin"`
}

// mintCredentials follows the one-time redirect URI manually (the
// redirect must not be auto-followed, it is only valid once) and parses
// the credential XML out of the response body.
func (c *Client) mintCredentials(ctx context.Context, redirectURI string) (*Credentials, error) {
	request, err := c.newRequest(ctx, http.MethodGet, redirectURI+"&fun=new&version=v2", nil)
	if err != nil {
		return nil, err
	}

	response, err := c.noRedirectClient().Do(request)
	if err != nil {
		return nil, fmt.Errorf("wechat: login redirect request failed: %w", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK && response.StatusCode != http.StatusMovedPermanently {
		return nil, fmt.Errorf("wechat: unexpected %d response from login redirect", response.StatusCode)
	}

	var redirect loginRedirect
	if err := xml.NewDecoder(response.Body).Decode(&redirect); err != nil {
		return nil, fmt.Errorf("wechat: failed to parse login redirect body: %w", err)
	}
	if redirect.SID == "" || redirect.UIN == 0 {
		return nil, &ProtocolError{Marker: "wxsid/wxuin"}
	}
	return &Credentials{SID: redirect.SID, UIN: redirect.UIN}, nil
}
