// Copyright 2026 The WebWX Authors
// SPDX-License-Identifier: Apache-2.0

package wechat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
)

func testSyncKey(values ...int64) SyncKey {
	key := SyncKey{Count: len(values)}
	for index, value := range values {
		key.List = append(key.List, SyncKeyItem{Key: index + 1, Val: value})
	}
	return key
}

func TestSyncKeyQueryString(t *testing.T) {
	key := SyncKey{Count: 2, List: []SyncKeyItem{{Key: 1, Val: 791415259}, {Key: 2, Val: 0}}}
	if got := key.queryString(); got != "1_791415259|2_0" {
		t.Errorf("queryString = %q", got)
	}
}

func TestNextEmptySelector(t *testing.T) {
	var syncCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/cgi-bin/mmwebwx-bin/synccheck", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `window.synccheck={retcode:"0",selector:"0"}`)
	})
	mux.HandleFunc("/cgi-bin/mmwebwx-bin/webwxsync", func(w http.ResponseWriter, r *http.Request) {
		syncCalls.Add(1)
	})
	_, session := newTestSession(t, mux)
	syncer := &Syncer{session: session, checkKey: testSyncKey(1), syncKey: testSyncKey(1)}

	messages, err := syncer.Next(context.Background())
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if len(messages) != 0 {
		t.Errorf("expected empty batch, got %d messages", len(messages))
	}
	if syncCalls.Load() != 0 {
		t.Error("empty selector must not trigger a delta fetch")
	}
}

func TestNextDeltaFetch(t *testing.T) {
	var syncCalls atomic.Int32
	oldKey := testSyncKey(100, 0)
	newCheckKey := testSyncKey(101, 7)
	newSyncKey := testSyncKey(102, 7)

	mux := http.NewServeMux()
	mux.HandleFunc("/cgi-bin/mmwebwx-bin/synccheck", func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if query.Get("sid") != testSID {
			t.Errorf("synccheck sid = %q", query.Get("sid"))
		}
		if query.Get("synckey") != "1_100|2_0" {
			t.Errorf("synccheck cursor = %q", query.Get("synckey"))
		}
		fmt.Fprint(w, `window.synccheck={retcode:"0",selector:"2"}`)
	})
	mux.HandleFunc("/cgi-bin/mmwebwx-bin/webwxsync", func(w http.ResponseWriter, r *http.Request) {
		syncCalls.Add(1)
		var request struct {
			SyncKey SyncKey `json:"SyncKey"`
		}
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			t.Errorf("bad sync request: %v", err)
		}
		if len(request.SyncKey.List) != 2 || request.SyncKey.List[0].Val != 100 {
			t.Errorf("commit cursor not posted: %+v", request.SyncKey)
		}
		response := map[string]any{
			"BaseResponse": map[string]any{"Ret": 0},
			"SyncCheckKey": newCheckKey,
			"SyncKey":      newSyncKey,
			"AddMsgList": []map[string]any{{
				"MsgId":        testMsgID,
				"MsgType":      MsgTypeText,
				"FromUserName": testPeer,
				"ToUserName":   testSelf,
				"Content":      "hello<br/>world",
			}},
		}
		json.NewEncoder(w).Encode(response)
	})
	_, session := newTestSession(t, mux)
	syncer := &Syncer{session: session, checkKey: oldKey, syncKey: oldKey}

	messages, err := syncer.Next(context.Background())
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if syncCalls.Load() != 1 {
		t.Fatalf("expected exactly one delta fetch, got %d", syncCalls.Load())
	}
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	if messages[0].MsgID != testMsgID || messages[0].Content != "hello\nworld" {
		t.Errorf("decoded message wrong: %+v", messages[0])
	}

	if syncer.checkKey.List[0].Val != 101 {
		t.Errorf("check cursor not advanced: %+v", syncer.checkKey)
	}
	if syncer.syncKey.List[0].Val != 102 {
		t.Errorf("commit cursor not advanced: %+v", syncer.syncKey)
	}
}

func TestNextSessionExpired(t *testing.T) {
	var logoutCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/cgi-bin/mmwebwx-bin/synccheck", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `window.synccheck={retcode:"1101",selector:"0"}`)
	})
	mux.HandleFunc("/cgi-bin/mmwebwx-bin/webwxlogout", func(w http.ResponseWriter, r *http.Request) {
		logoutCalls.Add(1)
	})
	_, session := newTestSession(t, mux)
	syncer := &Syncer{session: session, checkKey: testSyncKey(1), syncKey: testSyncKey(1)}

	_, err := syncer.Next(context.Background())
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if logoutCalls.Load() != 1 {
		t.Error("expiry should notify logout")
	}
	if _, ok := session.Credentials(); ok {
		t.Error("credentials should be cleared after expiry")
	}
	if _, err := session.Send(context.Background(), "hi", testPeer); !errors.Is(err, ErrLoggedOut) {
		t.Errorf("operations after expiry should fail with ErrLoggedOut, got %v", err)
	}
}

func TestNextRetriesDroppedPoll(t *testing.T) {
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/cgi-bin/mmwebwx-bin/synccheck", func(w http.ResponseWriter, r *http.Request) {
		if polls.Add(1) == 1 {
			// Drop the connection mid-wait, as NAT timeouts do.
			conn, _, err := w.(http.Hijacker).Hijack()
			if err != nil {
				t.Fatalf("hijack failed: %v", err)
			}
			conn.Close()
			return
		}
		fmt.Fprint(w, `window.synccheck={retcode:"0",selector:"0"}`)
	})
	_, session := newTestSession(t, mux)
	syncer := &Syncer{session: session, checkKey: testSyncKey(1), syncKey: testSyncKey(1)}

	messages, err := syncer.Next(context.Background())
	if err != nil {
		t.Fatalf("dropped poll should be retried in place, got %v", err)
	}
	if len(messages) != 0 {
		t.Errorf("unexpected messages: %v", messages)
	}
	if polls.Load() != 2 {
		t.Errorf("expected 2 poll attempts, got %d", polls.Load())
	}
}

func TestNextRosterChanges(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/cgi-bin/mmwebwx-bin/synccheck", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `window.synccheck={retcode:"0",selector:"2"}`)
	})
	mux.HandleFunc("/cgi-bin/mmwebwx-bin/webwxsync", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"BaseResponse":{"Ret":0},
			"SyncCheckKey":{"Count":1,"List":[{"Key":1,"Val":2}]},
			"SyncKey":{"Count":1,"List":[{"Key":1,"Val":2}]},
			"ModContactList":[{"UserName":"@new","NickName":"New Friend"}],
			"DelContactList":[{"UserName":"@old"}],
			"AddMsgList":[]}`)
	})
	_, session := newTestSession(t, mux)
	session.roster.Merge(json.RawMessage(`{"UserName":"@old","NickName":"Old"}`), testSelf)
	syncer := &Syncer{session: session, checkKey: testSyncKey(1), syncKey: testSyncKey(1)}

	if _, err := syncer.Next(context.Background()); err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if _, ok := session.roster.Get("@new"); !ok {
		t.Error("modified contact not merged")
	}
	if _, ok := session.roster.Get("@old"); ok {
		t.Error("deleted contact not removed")
	}
}

func TestNextSyncConvResetsActiveChats(t *testing.T) {
	var batchCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/cgi-bin/mmwebwx-bin/synccheck", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `window.synccheck={retcode:"0",selector:"4"}`)
	})
	mux.HandleFunc("/cgi-bin/mmwebwx-bin/webwxsync", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"BaseResponse":{"Ret":0},
			"SyncCheckKey":{"Count":1,"List":[{"Key":1,"Val":2}]},
			"SyncKey":{"Count":1,"List":[{"Key":1,"Val":2}]},
			"AddMsgList":[{
				"MsgId":"1","MsgType":%d,
				"FromUserName":"%s","ToUserName":"%s",
				"StatusNotifyCode":%d,
				"StatusNotifyUserName":"%s,%s"
			}]}`, MsgTypeStatusNotify, testSelf, testSelf, StatusNotifySyncConv, testPeer, testRoom)
	})
	mux.HandleFunc("/cgi-bin/mmwebwx-bin/webwxbatchgetcontact", func(w http.ResponseWriter, r *http.Request) {
		batchCalls.Add(1)
		fmt.Fprintf(w, `{"BaseResponse":{"Ret":0},"ContactList":[
			{"UserName":"%s","NickName":"peer"},
			{"UserName":"%s","NickName":"room","MemberList":[{"UserName":"@a"}]}]}`, testPeer, testRoom)
	})
	_, session := newTestSession(t, mux)
	syncer := &Syncer{session: session, checkKey: testSyncKey(1), syncKey: testSyncKey(1)}

	if _, err := syncer.Next(context.Background()); err != nil {
		t.Fatalf("Next failed: %v", err)
	}

	chats := session.ActiveChats()
	if len(chats) != 2 || chats[0] != testPeer || chats[1] != testRoom {
		t.Errorf("active chats not reset: %v", chats)
	}
	if batchCalls.Load() != 1 {
		t.Errorf("expected one batched resolve, got %d", batchCalls.Load())
	}
	if len(session.roster.Pending()) != 0 {
		t.Errorf("resolved ids still pending: %v", session.roster.Pending())
	}
}

func TestNextUncoveredIDStaysPending(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/cgi-bin/mmwebwx-bin/synccheck", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `window.synccheck={retcode:"0",selector:"2"}`)
	})
	mux.HandleFunc("/cgi-bin/mmwebwx-bin/webwxsync", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"BaseResponse":{"Ret":0},
			"SyncCheckKey":{"Count":1,"List":[{"Key":1,"Val":2}]},
			"SyncKey":{"Count":1,"List":[{"Key":1,"Val":2}]},
			"AddMsgList":[]}`)
	})
	mux.HandleFunc("/cgi-bin/mmwebwx-bin/webwxbatchgetcontact", func(w http.ResponseWriter, r *http.Request) {
		// The gateway ignores the requested id.
		fmt.Fprint(w, `{"BaseResponse":{"Ret":0},"ContactList":[]}`)
	})
	_, session := newTestSession(t, mux)
	session.roster.QueueIfUnknown("@ghost")
	syncer := &Syncer{session: session, checkKey: testSyncKey(1), syncKey: testSyncKey(1)}

	if _, err := syncer.Next(context.Background()); err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	pending := session.roster.Pending()
	if len(pending) != 1 || pending[0] != "@ghost" {
		t.Errorf("uncovered id should stay pending, got %v", pending)
	}
}

func TestInit(t *testing.T) {
	var notifyCode atomic.Int32
	var contactPages atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/cgi-bin/mmwebwx-bin/webwxinit", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"BaseResponse":{"Ret":0},
			"User":{"UserName":"%s","NickName":"tester","Uin":%d},
			"SyncKey":{"Count":2,"List":[{"Key":1,"Val":791415259},{"Key":2,"Val":0}]},
			"ContactList":[{"UserName":"%s","NickName":"Ada"}],
			"ChatSet":"%s,%s"}`, testSelf, testUIN, testPeer, testPeer, testRoom)
	})
	mux.HandleFunc("/cgi-bin/mmwebwx-bin/webwxstatusnotify", func(w http.ResponseWriter, r *http.Request) {
		var request struct {
			Code int `json:"Code"`
		}
		json.NewDecoder(r.Body).Decode(&request)
		notifyCode.Store(int32(request.Code))
		fmt.Fprint(w, `{"BaseResponse":{"Ret":0}}`)
	})
	mux.HandleFunc("/cgi-bin/mmwebwx-bin/webwxgetcontact", func(w http.ResponseWriter, r *http.Request) {
		switch contactPages.Add(1) {
		case 1:
			if r.URL.Query().Get("seq") != "0" {
				t.Errorf("first page should start at seq 0, got %q", r.URL.Query().Get("seq"))
			}
			fmt.Fprint(w, `{"BaseResponse":{"Ret":0},"Seq":700,"MemberList":[{"UserName":"@page1","NickName":"P1"}]}`)
		default:
			if r.URL.Query().Get("seq") != "700" {
				t.Errorf("second page should continue at seq 700, got %q", r.URL.Query().Get("seq"))
			}
			fmt.Fprint(w, `{"BaseResponse":{"Ret":0},"Seq":0,"MemberList":[{"UserName":"@page2","NickName":"P2"}]}`)
		}
	})
	mux.HandleFunc("/cgi-bin/mmwebwx-bin/webwxbatchgetcontact", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"BaseResponse":{"Ret":0},"ContactList":[{"UserName":"%s","NickName":"room","MemberList":[{"UserName":"@a"}]}]}`, testRoom)
	})
	_, session := newTestSession(t, mux)
	session.self.Store(nil)

	syncer, err := session.Init(context.Background())
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	if session.Self().UserName != testSelf {
		t.Errorf("self identity not stored: %+v", session.Self())
	}
	if notifyCode.Load() != StatusNotifyInited {
		t.Errorf("init should announce status %d, sent %d", StatusNotifyInited, notifyCode.Load())
	}
	if contactPages.Load() != 2 {
		t.Errorf("expected 2 roster pages, got %d", contactPages.Load())
	}
	for _, id := range []string{testPeer, "@page1", "@page2", testRoom} {
		if _, ok := session.roster.Get(id); !ok {
			t.Errorf("contact %s missing from roster", id)
		}
	}
	if len(session.roster.Pending()) != 0 {
		t.Errorf("pending not drained: %v", session.roster.Pending())
	}
	if syncer.checkKey.queryString() != "1_791415259|2_0" {
		t.Errorf("initial cursor wrong: %q", syncer.checkKey.queryString())
	}
}

func TestInitRequiresSyncKey(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/cgi-bin/mmwebwx-bin/webwxinit", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"BaseResponse":{"Ret":0},"User":{"UserName":"%s"}}`, testSelf)
	})
	_, session := newTestSession(t, mux)

	_, err := session.Init(context.Background())
	var protocolErr *ProtocolError
	if !errors.As(err, &protocolErr) {
		t.Fatalf("expected ProtocolError for missing SyncKey, got %v", err)
	}
}
