// Copyright 2026 The WebWX Authors
// SPDX-License-Identifier: Apache-2.0

package wechat

import (
	"encoding/xml"
	"fmt"
	"html"
)

// AppMessage is the structured payload of an app message: link shares,
// file attachments, transfers. The same shape is serialized for
// outbound attachment sends, where the gateway expects the bare
// <appmsg> element; inbound payloads usually arrive wrapped in a <msg>
// envelope, which parseAppMessage also accepts.
type AppMessage struct {
	XMLName     xml.Name      `xml:"appmsg"`
	AppID       string        `xml:"appid,attr,omitempty"`
	Title       string        `xml:"title"`
	Description string        `xml:"des,omitempty"`
	URL         string        `xml:"url,omitempty"`
	Type        int           `xml:"type"`
	Attachment  AppAttachment `xml:"appattach"`
}

// AppAttachment describes the file carried by an attachment app
// message.
type AppAttachment struct {
	TotalLen int64  `xml:"totallen"`
	AttachID string `xml:"attachid"`
	FileExt  string `xml:"fileext,omitempty"`
}

// appMessageEnvelope matches the inbound wire shape, where the appmsg
// element sits inside a msg envelope.
type appMessageEnvelope struct {
	XMLName xml.Name   `xml:"msg"`
	App     AppMessage `xml:"appmsg"`
}

// parseAppMessage parses an app message payload from HTML-escaped
// message content. Both the bare <appmsg> root and the <msg> envelope
// are accepted.
func parseAppMessage(content string) (*AppMessage, error) {
	unescaped := html.UnescapeString(content)

	var direct AppMessage
	if err := xml.Unmarshal([]byte(unescaped), &direct); err == nil {
		return &direct, nil
	}
	var envelope appMessageEnvelope
	if err := xml.Unmarshal([]byte(unescaped), &envelope); err != nil {
		return nil, fmt.Errorf("wechat: failed to parse app message payload: %w", err)
	}
	return &envelope.App, nil
}

// xmlString serializes the payload for an outbound send.
func (m AppMessage) xmlString() (string, error) {
	encoded, err := xml.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("wechat: failed to encode app message payload: %w", err)
	}
	return string(encoded), nil
}

// EmoticonPayload is the structured payload of a sticker message.
type EmoticonPayload struct {
	XMLName xml.Name    `xml:"msg"`
	Emoji   EmoticonRef `xml:"emoji"`
}

// EmoticonRef carries the sticker's content-addressed download
// location.
type EmoticonRef struct {
	Type   int    `xml:"type,attr"`
	MD5    string `xml:"md5,attr"`
	CDNURL string `xml:"cdnurl,attr"`
	Length int64  `xml:"len,attr"`
}

func parseEmoticonPayload(content string) (*EmoticonPayload, error) {
	var payload EmoticonPayload
	if err := xml.Unmarshal([]byte(html.UnescapeString(content)), &payload); err != nil {
		return nil, fmt.Errorf("wechat: failed to parse emoticon payload: %w", err)
	}
	return &payload, nil
}

// RecallNotice is the structured payload of a recall notification,
// identifying the message the sender withdrew.
type RecallNotice struct {
	XMLName    xml.Name `xml:"sysmsg"`
	Session    string   `xml:"revokemsg>session"`
	OldMsgID   string   `xml:"revokemsg>msgid"`
	NewMsgID   int64    `xml:"revokemsg>newmsgid"`
	ReplaceMsg string   `xml:"revokemsg>replacemsg"`
}

func parseRecallNotice(content string) (*RecallNotice, error) {
	var notice RecallNotice
	if err := xml.Unmarshal([]byte(html.UnescapeString(content)), &notice); err != nil {
		return nil, fmt.Errorf("wechat: failed to parse recall notice: %w", err)
	}
	return &notice, nil
}

// ShareCard is the structured payload of a contact card message.
type ShareCard struct {
	XMLName         xml.Name `xml:"msg"`
	UserName        string   `xml:"username,attr"`
	NickName        string   `xml:"nickname,attr"`
	Alias           string   `xml:"alias,attr"`
	Province        string   `xml:"province,attr"`
	City            string   `xml:"city,attr"`
	Sex             int      `xml:"sex,attr"`
	CertFlag        int      `xml:"certflag,attr"`
	SmallHeadImgURL string   `xml:"smallheadimgurl,attr"`
}

func parseShareCard(content string) (*ShareCard, error) {
	var card ShareCard
	if err := xml.Unmarshal([]byte(html.UnescapeString(content)), &card); err != nil {
		return nil, fmt.Errorf("wechat: failed to parse share card: %w", err)
	}
	return &card, nil
}

// LocationPayload is the structured payload carried in the OriContent
// of a location text message.
type LocationPayload struct {
	XMLName  xml.Name    `xml:"msg"`
	Location LocationRef `xml:"location"`
}

// LocationRef is the coordinate block of a location share.
type LocationRef struct {
	X       float64 `xml:"x,attr"`
	Y       float64 `xml:"y,attr"`
	Scale   int     `xml:"scale,attr"`
	Label   string  `xml:"label,attr"`
	POIName string  `xml:"poiname,attr"`
}

// parseLocationPayload parses the coordinate XML. Unlike the other
// payloads, OriContent arrives unescaped, so the content is fed to the
// XML decoder as is; unescaping first would double-decode entities in
// the label text.
func parseLocationPayload(content string) (*LocationPayload, error) {
	var payload LocationPayload
	if err := xml.Unmarshal([]byte(content), &payload); err != nil {
		return nil, fmt.Errorf("wechat: failed to parse location payload: %w", err)
	}
	return &payload, nil
}
