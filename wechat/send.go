// Copyright 2026 The WebWX Authors
// SPDX-License-Identifier: Apache-2.0

package wechat

import (
	"context"
	"fmt"
	"strconv"
)

// sendAppID is the application id stamped on outbound attachment
// payloads. Fixed for the web client, like appID.
const sendAppID = "wxeb7ec651dd0aefa9"

// outboundMsg is the message block common to all send endpoints.
type outboundMsg struct {
	ClientMsgID  string `json:"ClientMsgId"`
	LocalID      string `json:"LocalID"`
	FromUserName string `json:"FromUserName"`
	ToUserName   string `json:"ToUserName"`
	Type         int    `json:"Type"`
	Content      string `json:"Content,omitempty"`
	MediaID      string `json:"MediaId,omitempty"`
	EmojiFlag    int    `json:"EmojiFlag,omitempty"`
}

// postMessage sends one message block to the given endpoint and
// returns the server-assigned message id. The client message id is
// minted from the clock, so two sends in the same nanosecond would
// collide; the clock is injectable precisely so tests can pin it.
func (s *Session) postMessage(ctx context.Context, path string, message outboundMsg) (string, error) {
	credentials, err := s.baseRequest()
	if err != nil {
		return "", err
	}

	clientID := strconv.FormatInt(s.client.clock.Now().UnixNano(), 10)
	message.ClientMsgID = clientID
	message.LocalID = clientID
	message.FromUserName = s.selfName()

	request := struct {
		BaseRequest *Credentials `json:"BaseRequest"`
		Msg         outboundMsg  `json:"Msg"`
		Scene       int          `json:"Scene"`
	}{credentials, message, 0}

	var response struct {
		MsgID   string `json:"MsgID"`
		LocalID string `json:"LocalID"`
	}
	if err := s.client.postJSON(ctx, s.apiURL(path), request, &response); err != nil {
		return "", err
	}
	return response.MsgID, nil
}

// Send delivers a plain text message to the given contact or room and
// returns the server-assigned message id.
func (s *Session) Send(ctx context.Context, content, to string) (string, error) {
	return s.postMessage(ctx, "/cgi-bin/mmwebwx-bin/webwxsendmsg", outboundMsg{
		ToUserName: to,
		Type:       MsgTypeText,
		Content:    content,
	})
}

// SendImage delivers a previously uploaded image by media id.
func (s *Session) SendImage(ctx context.Context, mediaID, to string) (string, error) {
	return s.postMessage(ctx, "/cgi-bin/mmwebwx-bin/webwxsendmsgimg?fun=async&f=json", outboundMsg{
		ToUserName: to,
		Type:       MsgTypeImage,
		MediaID:    mediaID,
	})
}

// SendVideo delivers a previously uploaded video by media id.
func (s *Session) SendVideo(ctx context.Context, mediaID, to string) (string, error) {
	return s.postMessage(ctx, "/cgi-bin/mmwebwx-bin/webwxsendvideomsg?f=json", outboundMsg{
		ToUserName: to,
		Type:       MsgTypeVideo,
		MediaID:    mediaID,
	})
}

// SendEmoticon delivers a previously uploaded sticker by media id.
func (s *Session) SendEmoticon(ctx context.Context, mediaID, to string) (string, error) {
	return s.postMessage(ctx, "/cgi-bin/mmwebwx-bin/webwxsendemoticon?fun=sys", outboundMsg{
		ToUserName: to,
		Type:       MsgTypeEmoticon,
		MediaID:    mediaID,
		EmojiFlag:  2,
	})
}

// SendApp delivers a previously uploaded file attachment. title is the
// name shown to the recipient, totalLen the file size in bytes and
// attachID the media id from Upload.
func (s *Session) SendApp(ctx context.Context, title string, totalLen int64, attachID, fileExt, to string) (string, error) {
	payload := AppMessage{
		AppID: sendAppID,
		Title: title,
		Type:  AppMsgTypeAttach,
		Attachment: AppAttachment{
			TotalLen: totalLen,
			AttachID: attachID,
			FileExt:  fileExt,
		},
	}
	content, err := payload.xmlString()
	if err != nil {
		return "", err
	}
	return s.postMessage(ctx, "/cgi-bin/mmwebwx-bin/webwxsendappmsg?fun=async&f=json", outboundMsg{
		ToUserName: to,
		Type:       AppMsgTypeAttach,
		Content:    content,
	})
}

// Revoke withdraws a previously sent message. svrMsgID is the
// server-assigned id returned by the send; to is the conversation it
// was sent to. Recall is only honored by the gateway within its
// recall window.
func (s *Session) Revoke(ctx context.Context, svrMsgID, to string) error {
	credentials, err := s.baseRequest()
	if err != nil {
		return err
	}
	request := struct {
		BaseRequest *Credentials `json:"BaseRequest"`
		SvrMsgID    string       `json:"SvrMsgId"`
		ToUserName  string       `json:"ToUserName"`
		ClientMsgID string       `json:"ClientMsgId"`
	}{
		BaseRequest: credentials,
		SvrMsgID:    svrMsgID,
		ToUserName:  to,
		ClientMsgID: strconv.FormatInt(s.client.clock.Now().UnixNano(), 10),
	}
	if err := s.client.postJSON(ctx, s.apiURL("/cgi-bin/mmwebwx-bin/webwxrevokemsg"), request, nil); err != nil {
		return fmt.Errorf("wechat: revoke failed: %w", err)
	}
	return nil
}

// Notify reports a client status change (conversation read, session
// entered) to the gateway.
func (s *Session) Notify(ctx context.Context, code int, to string) error {
	credentials, err := s.baseRequest()
	if err != nil {
		return err
	}
	request := struct {
		BaseRequest  *Credentials `json:"BaseRequest"`
		Code         int          `json:"Code"`
		FromUserName string       `json:"FromUserName"`
		ToUserName   string       `json:"ToUserName"`
		ClientMsgID  int64        `json:"ClientMsgId"`
	}{
		BaseRequest:  credentials,
		Code:         code,
		FromUserName: s.selfName(),
		ToUserName:   to,
		ClientMsgID:  s.client.clock.Now().UnixNano(),
	}
	return s.client.postJSON(ctx, s.apiURL("/cgi-bin/mmwebwx-bin/webwxstatusnotify"), request, nil)
}
