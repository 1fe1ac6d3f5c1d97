// Copyright 2026 The WebWX Authors
// SPDX-License-Identifier: Apache-2.0

package wechat

import (
	"bytes"
	"context"
	"net/http"
	"testing"
)

func TestDownloadImage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/cgi-bin/mmwebwx-bin/webwxgetmsgimg", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("MsgID") != testMsgID {
			t.Errorf("MsgID = %q", r.URL.Query().Get("MsgID"))
		}
		w.Write([]byte("jpegbytes"))
	})
	_, session := newTestSession(t, mux)

	var sink bytes.Buffer
	if err := session.DownloadImage(context.Background(), testMsgID, &sink); err != nil {
		t.Fatalf("DownloadImage failed: %v", err)
	}
	if sink.String() != "jpegbytes" {
		t.Errorf("body = %q", sink.String())
	}
}

func TestDownloadVideoSendsRange(t *testing.T) {
	var gotRange string
	mux := http.NewServeMux()
	mux.HandleFunc("/cgi-bin/mmwebwx-bin/webwxgetvideo", func(w http.ResponseWriter, r *http.Request) {
		gotRange = r.Header.Get("Range")
		w.Write([]byte("mp4bytes"))
	})
	_, session := newTestSession(t, mux)

	var sink bytes.Buffer
	if err := session.DownloadVideo(context.Background(), testMsgID, &sink); err != nil {
		t.Fatalf("DownloadVideo failed: %v", err)
	}
	if gotRange != "bytes=0-" {
		t.Errorf("Range = %q", gotRange)
	}
}

func TestDownloadMedia(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/cgi-bin/mmwebwx-bin/webwxgetmedia", func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if query.Get("mediaid") != "@media42" || query.Get("encryfilename") != "report.pdf" {
			t.Errorf("query = %q", r.URL.RawQuery)
		}
		w.Write([]byte("pdfbytes"))
	})
	_, session := newTestSession(t, mux)

	var sink bytes.Buffer
	if err := session.DownloadMedia(context.Background(), "@media42", "report.pdf", &sink); err != nil {
		t.Fatalf("DownloadMedia failed: %v", err)
	}
	if sink.String() != "pdfbytes" {
		t.Errorf("body = %q", sink.String())
	}
}

func TestDownloadErrorStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/cgi-bin/mmwebwx-bin/webwxgetvoice", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})
	_, session := newTestSession(t, mux)

	var sink bytes.Buffer
	if err := session.DownloadVoice(context.Background(), testMsgID, &sink); err == nil {
		t.Error("404 should surface as an error")
	}
}

func TestCheckURL(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/cgi-bin/mmwebwx-bin/webwxcheckurl", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("requrl") != "http://short.example/x" {
			t.Errorf("requrl = %q", r.URL.Query().Get("requrl"))
		}
		w.Write([]byte(`{"FullURL": "http://real.example/article"}`))
	})
	_, session := newTestSession(t, mux)

	target, err := session.CheckURL(context.Background(), "http://short.example/x")
	if err != nil {
		t.Fatalf("CheckURL failed: %v", err)
	}
	if target != "http://real.example/article" {
		t.Errorf("target = %q", target)
	}
}
