// Copyright 2026 The WebWX Authors
// SPDX-License-Identifier: Apache-2.0

package wechat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/webwx-foundation/webwx/lib/netutil"
)

// copyMedia streams a media download into w.
func (s *Session) copyMedia(ctx context.Context, requestURL string, extraHeader http.Header, w io.Writer) error {
	body, err := s.client.download(ctx, requestURL, extraHeader)
	if err != nil {
		return err
	}
	defer body.Close()
	if _, err := io.Copy(w, body); err != nil {
		return fmt.Errorf("wechat: media download failed: %w", err)
	}
	return nil
}

// DownloadImage streams the full-size image of a message into w.
func (s *Session) DownloadImage(ctx context.Context, msgID string, w io.Writer) error {
	return s.copyMedia(ctx, s.apiURL("/cgi-bin/mmwebwx-bin/webwxgetmsgimg?MsgID="+url.QueryEscape(msgID)), nil, w)
}

// DownloadVoice streams the audio clip of a voice message into w.
func (s *Session) DownloadVoice(ctx context.Context, msgID string, w io.Writer) error {
	return s.copyMedia(ctx, s.apiURL("/cgi-bin/mmwebwx-bin/webwxgetvoice?msgid="+url.QueryEscape(msgID)), nil, w)
}

// DownloadVideo streams the video of a video message into w. The
// gateway only serves video to ranged requests, so the full range is
// requested explicitly.
func (s *Session) DownloadVideo(ctx context.Context, msgID string, w io.Writer) error {
	header := http.Header{"Range": []string{"bytes=0-"}}
	return s.copyMedia(ctx, s.apiURL("/cgi-bin/mmwebwx-bin/webwxgetvideo?msgid="+url.QueryEscape(msgID)), header, w)
}

// DownloadMedia streams an attachment from the media store into w.
// mediaID and fileName come from the app message's attachment block.
func (s *Session) DownloadMedia(ctx context.Context, mediaID, fileName string, w io.Writer) error {
	requestURL := s.client.fileURL + "/cgi-bin/mmwebwx-bin/webwxgetmedia?mediaid=" +
		url.QueryEscape(mediaID) + "&encryfilename=" + url.QueryEscape(fileName)
	return s.copyMedia(ctx, requestURL, nil, w)
}

// CheckURL resolves a link from a message through the gateway's URL
// checker, returning the real destination. Links in app messages point
// at an interstitial; the checker answers with a JSON body naming the
// target in FullURL. Redirects stay disabled so the interstitial's own
// redirect is never followed.
func (s *Session) CheckURL(ctx context.Context, target string) (string, error) {
	credentials, err := s.baseRequest()
	if err != nil {
		return "", err
	}
	requestURL := s.apiURL("/cgi-bin/mmwebwx-bin/webwxcheckurl?requrl=" + url.QueryEscape(target) +
		"&uin=" + fmt.Sprint(credentials.UIN))

	request, err := s.client.newRequest(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return "", err
	}
	response, err := s.client.noRedirectClient().Do(request)
	if err != nil {
		return "", fmt.Errorf("wechat: URL check failed: %w", err)
	}
	defer response.Body.Close()

	body, err := netutil.ReadResponse(response.Body)
	if err != nil {
		return "", fmt.Errorf("wechat: URL check failed: %w", err)
	}
	var result struct {
		FullURL string `json:"FullURL"`
	}
	if err := json.Unmarshal(body, &result); err != nil || result.FullURL == "" {
		return "", &ProtocolError{Marker: "FullURL"}
	}
	return result.FullURL, nil
}
