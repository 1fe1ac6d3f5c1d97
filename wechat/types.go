// Copyright 2026 The WebWX Authors
// SPDX-License-Identifier: Apache-2.0

package wechat

import (
	"strconv"
	"strings"
)

// Message type codes from the gateway's MsgType field.
const (
	MsgTypeText         = 1
	MsgTypeImage        = 3
	MsgTypeVoice        = 34
	MsgTypeShareCard    = 42
	MsgTypeVideo        = 43
	MsgTypeEmoticon     = 47
	MsgTypeLocation     = 48
	MsgTypeApp          = 49
	MsgTypeStatusNotify = 51
	MsgTypeVoIPInvite   = 53
	MsgTypeSys          = 10000
	MsgTypeRecalled     = 10002
)

// App message sub-type codes from the AppMsgType field.
const (
	AppMsgTypeAudio                 = 3
	AppMsgTypeVideo                 = 4
	AppMsgTypeURL                   = 5
	AppMsgTypeAttach                = 6
	AppMsgTypeRealtimeShareLocation = 17
	AppMsgTypeTransfers             = 2000
)

// knownAppMsgType reports whether code is one of the app message
// sub-types whose content carries a structured XML payload. Unknown
// sub-types keep their content as plain text.
func knownAppMsgType(code int) bool {
	switch code {
	case AppMsgTypeAudio, AppMsgTypeVideo, AppMsgTypeURL, AppMsgTypeAttach,
		AppMsgTypeRealtimeShareLocation, AppMsgTypeTransfers:
		return true
	}
	return false
}

// Status notification sub-codes carried by MsgTypeStatusNotify records.
const (
	StatusNotifyReaded       = 1
	StatusNotifyEnterSession = 2
	StatusNotifyInited       = 3
	StatusNotifySyncConv     = 4
)

// Operation log command ids for the webwxoplog endpoint.
const (
	cmdIDModRemarkName = 2
	cmdIDTopContact    = 3
)

// ContactFlag bitfield values.
const (
	contactFlagBlacklist   = 0x8
	contactFlagNotifyClose = 0x200
	contactFlagTopContact  = 0x800
)

// VerifyFlag bitfield values.
const verifyFlagBizBrand = 0x8

// SnsFlag bitfield values.
const snsFlagPhotoAlbum = 0x1

// mediaTypeAttachment is the MediaType code sent with every upload.
const mediaTypeAttachment = 4

// Well-known pseudo-account identifiers.
const (
	// FileHelper is the file transfer helper pseudo-account.
	FileHelper = "filehelper"
	// RecommendHelper is the friend recommendation pseudo-account.
	RecommendHelper = "fmessage"
	// NewsApp is the news digest pseudo-account. Its text messages
	// carry an XML payload rather than plain text.
	NewsApp = "newsapp"
	// Weixin is the platform announcement pseudo-account.
	Weixin = "weixin"
)

// roomIDPrefix marks aggregate (group conversation) identifiers.
const roomIDPrefix = "@@"

// IsRoomID reports whether userName identifies a room (an aggregate
// contact with member sub-identities) rather than an individual.
func IsRoomID(userName string) bool {
	return strings.HasPrefix(userName, roomIDPrefix)
}

// Credentials are the server-issued session credentials minted by the
// login redirect: the session id and the numeric account id. They are
// attached to every authenticated call as the BaseRequest block and
// are immutable until logout clears them.
type Credentials struct {
	SID string `json:"Sid"`
	UIN int64  `json:"Uin"`
}

// BaseResponse is the status block the gateway embeds in every JSON
// response. A nonzero Ret means the operation was rejected even though
// the HTTP exchange itself succeeded.
type BaseResponse struct {
	Ret    int    `json:"Ret"`
	ErrMsg string `json:"ErrMsg"`
}

// SyncKey is the opaque mailbox cursor: an ordered set of numeric
// counters identifying the client's position in the message stream.
// Two variants are live at any time: the check cursor rendered into
// the synccheck query string, and the commit cursor posted to the
// delta fetch. Both advance together after each delta fetch.
type SyncKey struct {
	Count int           `json:"Count"`
	List  []SyncKeyItem `json:"List"`
}

// SyncKeyItem is a single (key, value) counter within a SyncKey.
type SyncKeyItem struct {
	Key int   `json:"Key"`
	Val int64 `json:"Val"`
}

// queryString renders the cursor for the synccheck query parameter:
// underscore-joined pairs separated by '|' (e.g. "1_791415259|2_0").
func (k SyncKey) queryString() string {
	parts := make([]string, len(k.List))
	for index, item := range k.List {
		parts[index] = strconv.Itoa(item.Key) + "_" + strconv.FormatInt(item.Val, 10)
	}
	return strings.Join(parts, "|")
}

// IsZero reports whether the cursor has no counters (uninitialized).
func (k SyncKey) IsZero() bool {
	return len(k.List) == 0
}

// User is the account's own identity record, returned by the session
// bootstrap call.
type User struct {
	UIN        int64  `json:"Uin"`
	UserName   string `json:"UserName"`
	NickName   string `json:"NickName"`
	HeadImgURL string `json:"HeadImgUrl"`
	Sex        int    `json:"Sex"`
	Signature  string `json:"Signature"`
	SnsFlag    int    `json:"SnsFlag"`
}

// Member is a sub-identity within a room contact. The derived fields
// are computed when the enclosing room is merged into the roster;
// DisplayName is rewritten with emoji placeholders rendered.
type Member struct {
	UserName    string `json:"UserName"`
	NickName    string `json:"NickName"`
	AttrStatus  int64  `json:"AttrStatus"`
	DisplayName string `json:"DisplayName"`
	KeyWord     string `json:"KeyWord"`

	// Derived at merge time.
	IsSelf     bool   `json:"-"`
	HeadImgURL string `json:"-"`
}

// Contact is a roster record: an individual, a pseudo-account, or a
// room. Wire fields are a superset; most are zero for a given contact
// kind. The derived booleans are recomputed on every merge from the
// bitfield values, so a partial update that omits a bitfield never
// clears a flag. DisplayName is derived (remark name over nick name,
// emoji placeholders rendered) and shadows the wire field of the same
// name, which rooms use for member display labels.
type Contact struct {
	Member

	HeadImgURL      string   `json:"HeadImgUrl"`
	ContactFlag     int      `json:"ContactFlag"`
	MemberList      []Member `json:"MemberList"`
	RemarkName      string   `json:"RemarkName"`
	Sex             int      `json:"Sex"`
	Signature       string   `json:"Signature"`
	VerifyFlag      int      `json:"VerifyFlag"`
	StarFriend      int      `json:"StarFriend"`
	Statues         int      `json:"Statues"`
	Province        string   `json:"Province"`
	City            string   `json:"City"`
	SnsFlag         int      `json:"SnsFlag"`
	EncryChatRoomID string   `json:"EncryChatRoomId"`
	IsOwner         int      `json:"IsOwner"`
	ChatRoomOwner   string   `json:"ChatRoomOwner"`

	// Identity classification, computed once when the contact first
	// enters the roster.
	IsRoom            bool `json:"-"`
	IsFileHelper      bool `json:"-"`
	IsRecommendHelper bool `json:"-"`
	IsNewsApp         bool `json:"-"`

	// Bitfield-derived flags, recomputed on every merge.
	IsBlacklisted bool `json:"-"`
	IsBrand       bool `json:"-"`
	IsMuted       bool `json:"-"`
	IsPinned      bool `json:"-"`
	HasPhotoAlbum bool `json:"-"`
}

// RecommendInfo describes the contact referenced by a share card.
// HeadImgURL is filled in by the decoder for share-card messages.
type RecommendInfo struct {
	UserName   string `json:"UserName"`
	NickName   string `json:"NickName"`
	QQNum      int64  `json:"QQNum"`
	Province   string `json:"Province"`
	City       string `json:"City"`
	Content    string `json:"Content"`
	Signature  string `json:"Signature"`
	Alias      string `json:"Alias"`
	Scene      int    `json:"Scene"`
	VerifyFlag int    `json:"VerifyFlag"`
	AttrStatus int64  `json:"AttrStatus"`
	Sex        int    `json:"Sex"`
	Ticket     string `json:"Ticket"`
	OpCode     int    `json:"OpCode"`

	HeadImgURL string `json:"-"`
}

// AppInfo identifies the application that produced an app message.
type AppInfo struct {
	AppID string `json:"AppID"`
	Type  int    `json:"Type"`
}

// Msg is the raw message record as delivered by the delta fetch. The
// fields are a union across all message types; which ones are
// meaningful depends on MsgType and SubMsgType. Feed it through the
// decoder to obtain a normalized [Message].
type Msg struct {
	MsgID                string        `json:"MsgId"`
	FromUserName         string        `json:"FromUserName"`
	ToUserName           string        `json:"ToUserName"`
	MsgType              int           `json:"MsgType"`
	Content              string        `json:"Content"`
	Status               int           `json:"Status"`
	ImgStatus            int           `json:"ImgStatus"`
	CreateTime           int64         `json:"CreateTime"`
	VoiceLength          int           `json:"VoiceLength"`
	PlayLength           int           `json:"PlayLength"`
	FileName             string        `json:"FileName"`
	FileSize             string        `json:"FileSize"`
	MediaID              string        `json:"MediaId"`
	URL                  string        `json:"Url"`
	AppMsgType           int           `json:"AppMsgType"`
	StatusNotifyCode     int           `json:"StatusNotifyCode"`
	StatusNotifyUserName string        `json:"StatusNotifyUserName"`
	RecommendInfo        RecommendInfo `json:"RecommendInfo"`
	ForwardFlag          int           `json:"ForwardFlag"`
	AppInfo              AppInfo       `json:"AppInfo"`
	HasProductID         int           `json:"HasProductId"`
	Ticket               string        `json:"Ticket"`
	ImgHeight            int           `json:"ImgHeight"`
	ImgWidth             int           `json:"ImgWidth"`
	SubMsgType           int           `json:"SubMsgType"`
	NewMsgID             int64         `json:"NewMsgId"`
	OriContent           string        `json:"OriContent"`
}

// Message is a decoded message record. The embedded Msg carries the
// wire fields with Content replaced by its normalized form (line
// breaks and emoji rendered, room sender prefix stripped). The derived
// fields are computed once at decode time and are not part of the wire
// shape. At most one of the typed payload pointers is non-nil,
// matching the message type; a payload that failed to parse stays nil
// and the normalized string content remains authoritative.
type Message struct {
	Msg

	// IsSentBySelf is true when the account itself originated the
	// message (it appears in the stream for sends from other devices).
	IsSentBySelf bool

	// PeerUserName is the conversation peer: the recipient for
	// outbound messages, the originator for inbound ones.
	PeerUserName string

	// IsRoom is true when the conversation peer is a room.
	IsRoom bool

	// Sender is the concrete author. For room messages it is the
	// member split from the content prefix; otherwise FromUserName.
	// Empty for status notifications.
	Sender string

	// Typed payloads, populated per message type.
	App      *AppMessage
	Emoticon *EmoticonPayload
	Recall   *RecallNotice
	Card     *ShareCard
	Location *LocationPayload

	// Location text split from the content of a location text
	// message: the human-readable place description and the map URL
	// (the explicit URL field when present, the content fallback
	// otherwise).
	LocationDesc string
	LocationURL  string
}
