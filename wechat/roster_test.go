// Copyright 2026 The WebWX Authors
// SPDX-License-Identifier: Apache-2.0

package wechat

import (
	"encoding/json"
	"testing"
)

func mustMerge(t *testing.T, roster *Roster, record string) {
	t.Helper()
	if _, err := roster.Merge(json.RawMessage(record), testSelf); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
}

func TestMergeClassifiesContact(t *testing.T) {
	roster := NewRoster()
	mustMerge(t, roster, `{"UserName":"filehelper","NickName":"File Helper"}`)
	mustMerge(t, roster, `{"UserName":"`+testRoom+`","NickName":"team","MemberList":[{"UserName":"@a","NickName":"A"}]}`)

	helper, ok := roster.Get(FileHelper)
	if !ok || !helper.IsFileHelper {
		t.Errorf("filehelper not classified: %+v", helper)
	}
	room, ok := roster.Get(testRoom)
	if !ok || !room.IsRoom {
		t.Errorf("room not classified: %+v", room)
	}
}

func TestMergePartialUpdatePreservesFields(t *testing.T) {
	roster := NewRoster()
	mustMerge(t, roster, `{"UserName":"`+testPeer+`","NickName":"Ada","ContactFlag":2051,"Statues":1}`)

	before, _ := roster.Get(testPeer)
	if !before.IsPinned {
		t.Fatal("ContactFlag 2051 should derive pinned")
	}

	// A partial update without ContactFlag must not clear the flag.
	mustMerge(t, roster, `{"UserName":"`+testPeer+`","RemarkName":"boss"}`)

	after, _ := roster.Get(testPeer)
	if !after.IsPinned {
		t.Error("partial update cleared derived pin flag")
	}
	if after.NickName != "Ada" {
		t.Errorf("partial update lost nick name: %q", after.NickName)
	}
	if after.DisplayName != "boss" {
		t.Errorf("remark name should win display name: %q", after.DisplayName)
	}
}

func TestMergeDerivedFlags(t *testing.T) {
	roster := NewRoster()
	mustMerge(t, roster, `{"UserName":"`+testPeer+`","NickName":"x","ContactFlag":520,"VerifyFlag":8,"SnsFlag":17}`)

	contact, _ := roster.Get(testPeer)
	if !contact.IsBlacklisted {
		t.Error("blacklist bit not derived")
	}
	if !contact.IsMuted {
		t.Error("notify-close bit not derived")
	}
	if !contact.IsBrand {
		t.Error("brand verify bit not derived")
	}
	if !contact.HasPhotoAlbum {
		t.Error("sns flag not derived")
	}

	// Only the low bit of SnsFlag means a photo album exists.
	mustMerge(t, roster, `{"UserName":"@other","NickName":"y","SnsFlag":2}`)
	other, _ := roster.Get("@other")
	if other.HasPhotoAlbum {
		t.Error("SnsFlag 2 should not derive a photo album")
	}
}

func TestMergeRoomMuteFromStatues(t *testing.T) {
	roster := NewRoster()
	mustMerge(t, roster, `{"UserName":"`+testRoom+`","NickName":"team","Statues":0,"MemberList":[{"UserName":"@a"}]}`)
	muted, _ := roster.Get(testRoom)
	if !muted.IsMuted {
		t.Error("room with Statues 0 should be muted")
	}

	mustMerge(t, roster, `{"UserName":"`+testRoom+`","Statues":1}`)
	unmuted, _ := roster.Get(testRoom)
	if unmuted.IsMuted {
		t.Error("room with Statues 1 should not be muted")
	}
}

func TestMergeRoomMembers(t *testing.T) {
	roster := NewRoster()
	record := `{"UserName":"` + testRoom + `","NickName":"team","EncryChatRoomId":"@crypt",` +
		`"MemberList":[{"UserName":"` + testSelf + `","NickName":"me"},{"UserName":"@a","NickName":"A","DisplayName":"aa"}]}`
	mustMerge(t, roster, record)

	room, _ := roster.Get(testRoom)
	if len(room.MemberList) != 2 {
		t.Fatalf("expected 2 members, got %d", len(room.MemberList))
	}
	if !room.MemberList[0].IsSelf {
		t.Error("own member entry not marked IsSelf")
	}
	if room.MemberList[1].DisplayName != "aa" {
		t.Errorf("member display name: %q", room.MemberList[1].DisplayName)
	}
	if room.MemberList[1].HeadImgURL == "" {
		t.Error("member head image URL not derived")
	}
}

func TestMergeEmptyRoomQueuedPending(t *testing.T) {
	roster := NewRoster()
	mustMerge(t, roster, `{"UserName":"`+testRoom+`","NickName":"team"}`)

	pending := roster.Pending()
	if len(pending) != 1 || pending[0] != testRoom {
		t.Fatalf("empty room should be pending, got %v", pending)
	}

	// A later merge that brings members resolves it.
	mustMerge(t, roster, `{"UserName":"`+testRoom+`","MemberList":[{"UserName":"@a"}]}`)
	if len(roster.Pending()) != 0 {
		t.Errorf("resolved room still pending: %v", roster.Pending())
	}
}

func TestQueueIfUnknown(t *testing.T) {
	roster := NewRoster()
	mustMerge(t, roster, `{"UserName":"`+testPeer+`","NickName":"Ada"}`)

	roster.QueueIfUnknown(testPeer)
	roster.QueueIfUnknown("@stranger")
	roster.QueueIfUnknown("@stranger")

	pending := roster.Pending()
	if len(pending) != 1 || pending[0] != "@stranger" {
		t.Errorf("expected only the unknown id pending once, got %v", pending)
	}
}

func TestRemove(t *testing.T) {
	roster := NewRoster()
	mustMerge(t, roster, `{"UserName":"`+testPeer+`","NickName":"Ada"}`)
	roster.QueueIfUnknown("@stranger")

	roster.Remove(testPeer)
	roster.Remove("@stranger")

	if _, ok := roster.Get(testPeer); ok {
		t.Error("removed contact still present")
	}
	if len(roster.Pending()) != 0 {
		t.Errorf("removed id still pending: %v", roster.Pending())
	}
}

func TestMergeRendersDisplayName(t *testing.T) {
	roster := NewRoster()
	mustMerge(t, roster, `{"UserName":"`+testPeer+`","NickName":"hi<span class=\"emoji emoji2764\"></span>"}`)
	contact, _ := roster.Get(testPeer)
	if contact.DisplayName != "hi❤" {
		t.Errorf("emoji placeholder not rendered: %q", contact.DisplayName)
	}
}

func TestMergeRejectsRecordWithoutUserName(t *testing.T) {
	roster := NewRoster()
	if _, err := roster.Merge(json.RawMessage(`{"NickName":"x"}`), testSelf); err == nil {
		t.Error("record without UserName should be rejected")
	}
}
