// Copyright 2026 The WebWX Authors
// SPDX-License-Identifier: Apache-2.0

package wechat

import (
	"context"
	"fmt"
	"strings"
)

// CreateRoom creates a group conversation with the given members and
// topic, returning the new room identifier. The creating account is
// included implicitly; members must not contain it.
func (s *Session) CreateRoom(ctx context.Context, members []string, topic string) (string, error) {
	credentials, err := s.baseRequest()
	if err != nil {
		return "", err
	}
	refs := make([]contactRef, len(members))
	for index, member := range members {
		refs[index] = contactRef{UserName: member}
	}
	request := struct {
		BaseRequest *Credentials `json:"BaseRequest"`
		MemberCount int          `json:"MemberCount"`
		MemberList  []contactRef `json:"MemberList"`
		Topic       string       `json:"Topic"`
	}{credentials, len(refs), refs, topic}

	var response struct {
		ChatRoomName string `json:"ChatRoomName"`
	}
	createURL := s.apiURL("/cgi-bin/mmwebwx-bin/webwxcreatechatroom")
	if err := s.client.postJSON(ctx, createURL, request, &response); err != nil {
		return "", fmt.Errorf("wechat: room creation failed: %w", err)
	}
	if response.ChatRoomName == "" {
		return "", &ProtocolError{Marker: "ChatRoomName"}
	}
	return response.ChatRoomName, nil
}

// updateRoom issues one webwxupdatechatroom operation. memberList and
// topic are mutually exclusive; the fun parameter selects which one
// the gateway reads.
func (s *Session) updateRoom(ctx context.Context, fun, roomID string, memberList []string, topic string) error {
	credentials, err := s.baseRequest()
	if err != nil {
		return err
	}
	request := struct {
		BaseRequest      *Credentials `json:"BaseRequest"`
		ChatRoomName     string       `json:"ChatRoomName"`
		AddMemberList    string       `json:"AddMemberList,omitempty"`
		DelMemberList    string       `json:"DelMemberList,omitempty"`
		InviteMemberList string       `json:"InviteMemberList,omitempty"`
		NewTopic         *string      `json:"NewTopic,omitempty"`
	}{BaseRequest: credentials, ChatRoomName: roomID}

	joined := strings.Join(memberList, ",")
	switch fun {
	case "addmember":
		request.AddMemberList = joined
	case "delmember", "quitchatroom":
		request.DelMemberList = joined
	case "invitemember":
		request.InviteMemberList = joined
	case "modtopic":
		request.NewTopic = &topic
	}

	updateURL := s.apiURL("/cgi-bin/mmwebwx-bin/webwxupdatechatroom?fun=" + fun)
	if err := s.client.postJSON(ctx, updateURL, request, nil); err != nil {
		return fmt.Errorf("wechat: room update (%s) failed: %w", fun, err)
	}
	return nil
}

// AddMembers adds contacts to a room directly. The gateway only
// honors direct adds for small rooms; use InviteMembers above that
// size.
func (s *Session) AddMembers(ctx context.Context, roomID string, members []string) error {
	return s.updateRoom(ctx, "addmember", roomID, members, "")
}

// RemoveMembers removes contacts from a room. Requires room ownership.
func (s *Session) RemoveMembers(ctx context.Context, roomID string, members []string) error {
	return s.updateRoom(ctx, "delmember", roomID, members, "")
}

// InviteMembers sends room invitations instead of adding directly.
func (s *Session) InviteMembers(ctx context.Context, roomID string, members []string) error {
	return s.updateRoom(ctx, "invitemember", roomID, members, "")
}

// QuitRoom removes the account itself from a room.
func (s *Session) QuitRoom(ctx context.Context, roomID string) error {
	return s.updateRoom(ctx, "quitchatroom", roomID, []string{s.selfName()}, "")
}

// RenameTopic changes a room's display topic.
func (s *Session) RenameTopic(ctx context.Context, roomID, topic string) error {
	return s.updateRoom(ctx, "modtopic", roomID, nil, topic)
}

// SetRemarkName sets the private display name for a contact.
func (s *Session) SetRemarkName(ctx context.Context, userName, remarkName string) error {
	credentials, err := s.baseRequest()
	if err != nil {
		return err
	}
	request := struct {
		BaseRequest *Credentials `json:"BaseRequest"`
		CmdID       int          `json:"CmdId"`
		RemarkName  string       `json:"RemarkName"`
		UserName    string       `json:"UserName"`
	}{credentials, cmdIDModRemarkName, remarkName, userName}

	oplogURL := s.apiURL("/cgi-bin/mmwebwx-bin/webwxoplog")
	if err := s.client.postJSON(ctx, oplogURL, request, nil); err != nil {
		return fmt.Errorf("wechat: remark name update failed: %w", err)
	}
	return nil
}

// PinContact pins or unpins a conversation at the top of the list.
func (s *Session) PinContact(ctx context.Context, userName string, pinned bool) error {
	credentials, err := s.baseRequest()
	if err != nil {
		return err
	}
	op := 0
	if pinned {
		op = 1
	}
	// OP must serialize even when zero: unpinning is OP 0.
	request := struct {
		BaseRequest *Credentials `json:"BaseRequest"`
		CmdID       int          `json:"CmdId"`
		OP          int          `json:"OP"`
		UserName    string       `json:"UserName"`
	}{credentials, cmdIDTopContact, op, userName}

	oplogURL := s.apiURL("/cgi-bin/mmwebwx-bin/webwxoplog")
	if err := s.client.postJSON(ctx, oplogURL, request, nil); err != nil {
		return fmt.Errorf("wechat: pin update failed: %w", err)
	}
	return nil
}
