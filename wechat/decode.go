// Copyright 2026 The WebWX Authors
// SPDX-License-Identifier: Apache-2.0

package wechat

import (
	"regexp"
	"strconv"
	"strings"
)

// Message content arrives HTML-flavored: line breaks as <br/> tags and
// emoji as placeholder spans carrying the code point in hex.
var (
	emojiSpanPattern  = regexp.MustCompile(`<span class="emoji emoji(.*?)"></span>`)
	roomSenderPattern = regexp.MustCompile(`^(@[a-z0-9]*):\n`)
)

// renderText normalizes gateway message text: <br/> tags become
// newlines and emoji placeholder spans become the Unicode characters
// they stand for. A span whose code does not parse is left verbatim.
func renderText(content string) string {
	content = strings.ReplaceAll(content, "<br/>", "\n")
	return emojiSpanPattern.ReplaceAllStringFunc(content, func(span string) string {
		code := emojiSpanPattern.FindStringSubmatch(span)[1]
		rendered, ok := emojiRune(code)
		if !ok {
			return span
		}
		return rendered
	})
}

// emojiRune converts a placeholder hex code to its Unicode rendering.
// Most codes are a single code point, but two composite families need
// special assembly: keycaps (digit + U+FE0F U+20E3) and regional flag
// pairs (two code points). The ranges are checked on the zero-padded
// hex string, which compares correctly because the width is fixed.
func emojiRune(code string) (string, bool) {
	if padded := zeroPad(code, 6); "2320e3" <= padded && padded <= "3920e3" {
		digit, ok := hexRune(padded[:2])
		if !ok {
			return "", false
		}
		return digit + "\ufe0f\u20e3", true
	}
	if padded := zeroPad(code, 10); "1f1e61f1e6" <= padded && padded <= "1f1ff1f1ff" {
		first, ok := hexRune(padded[:5])
		if !ok {
			return "", false
		}
		second, ok := hexRune(padded[5:])
		if !ok {
			return "", false
		}
		return first + second, true
	}
	return hexRune(code)
}

// hexRune parses a hex code point into a one-rune string.
func hexRune(code string) (string, bool) {
	value, err := strconv.ParseInt(code, 16, 32)
	if err != nil || value <= 0 || value > 0x10ffff {
		return "", false
	}
	return string(rune(value)), true
}

// zeroPad left-pads code with zeros to width characters.
func zeroPad(code string, width int) string {
	if len(code) >= width {
		return code
	}
	return strings.Repeat("0", width-len(code)) + code
}

// splitRoomSender splits the member prefix off a room message body.
// The remainder keeps everything after the first prefix line,
// including further newlines.
func splitRoomSender(content string) (sender, rest string, ok bool) {
	match := roomSenderPattern.FindStringSubmatch(content)
	if match == nil {
		return "", content, false
	}
	return match[1], content[len(match[0]):], true
}

// headImgURL builds the relative avatar path for a contact or room
// member. chatRoomID scopes a member lookup to its room; it is empty
// for top-level contacts.
func headImgURL(userName, chatRoomID string) string {
	if userName == "" {
		return ""
	}
	if chatRoomID != "" {
		return "/cgi-bin/mmwebwx-bin/webwxgeticon?username=" + userName + "&chatroomid=" + chatRoomID
	}
	if IsRoomID(userName) {
		return "/cgi-bin/mmwebwx-bin/webwxgetheadimg?username=" + userName
	}
	return "/cgi-bin/mmwebwx-bin/webwxgeticon?username=" + userName
}

// decodeMessage converts a raw sync record into a normalized Message.
// It is pure over the record and the session's own identity, and runs
// exactly once per record: normalization is not idempotent (a literal
// "<br/>" typed by a user would be converted on a second pass), so
// nothing else mutates Content afterwards.
func (s *Session) decodeMessage(raw Msg) Message {
	message := Message{Msg: raw}
	self := s.selfName()
	message.IsSentBySelf = raw.FromUserName == self
	if message.IsSentBySelf {
		message.PeerUserName = raw.ToUserName
	} else {
		message.PeerUserName = raw.FromUserName
	}
	message.IsRoom = IsRoomID(message.PeerUserName)

	// Status notifications are engine-internal bookkeeping. Their
	// content is a server payload, not user text, and stays untouched.
	if raw.MsgType == MsgTypeStatusNotify {
		return message
	}

	// Normalize before the sender split: the wire separator after the
	// member prefix is a <br/> tag, so the prefix pattern only matches
	// rendered text.
	content := renderText(raw.Content)
	message.Sender = raw.FromUserName
	if message.IsRoom && !message.IsSentBySelf {
		if sender, rest, ok := splitRoomSender(content); ok {
			message.Sender = sender
			content = rest
		}
	}
	message.Content = content

	switch raw.MsgType {
	case MsgTypeText:
		switch {
		case raw.FromUserName == NewsApp:
			if app, err := parseAppMessage(content); err == nil {
				message.App = app
			}
		case raw.SubMsgType == MsgTypeLocation:
			s.decodeLocation(&message, content)
		}
	case MsgTypeApp:
		if knownAppMsgType(raw.AppMsgType) {
			if app, err := parseAppMessage(content); err == nil {
				message.App = app
			}
		}
	case MsgTypeEmoticon:
		if raw.HasProductID == 0 {
			if emoticon, err := parseEmoticonPayload(content); err == nil {
				message.Emoticon = emoticon
			}
		}
	case MsgTypeRecalled:
		if recall, err := parseRecallNotice(content); err == nil {
			message.Recall = recall
		}
	case MsgTypeShareCard:
		if card, err := parseShareCard(content); err == nil {
			message.Card = card
		}
		message.RecommendInfo.HeadImgURL = headImgURL(raw.RecommendInfo.UserName, "")
	}
	return message
}

// decodeLocation fills the location fields of a text message with the
// location sub-type. content is the normalized text,
// "<description>:\n<map URL>"; the explicit URL field wins over the
// content fallback when present. The coordinate XML rides in
// OriContent.
func (s *Session) decodeLocation(message *Message, content string) {
	description, fallbackURL, found := strings.Cut(content, ":\n")
	if found {
		message.LocationDesc = description
		message.LocationURL = fallbackURL
	}
	if message.URL != "" {
		message.LocationURL = message.URL
	}
	if payload, err := parseLocationPayload(message.OriContent); err == nil {
		message.Location = payload
	}
}
