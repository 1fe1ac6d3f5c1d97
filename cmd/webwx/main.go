// Copyright 2026 The WebWX Authors
// SPDX-License-Identifier: Apache-2.0

// webwx is a terminal client for the web messaging gateway. It renders
// the login QR code in the terminal, follows the message stream, and
// prints decoded messages as they arrive.
//
// With --send-to, lines read from stdin are sent to the named contact
// or room while the stream keeps printing.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"os"
	"os/signal"
	"syscall"

	"github.com/mdp/qrterminal"
	"github.com/spf13/pflag"

	"github.com/webwx-foundation/webwx/lib/config"
	"github.com/webwx-foundation/webwx/wechat"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	var sendTo string
	var logLevel string

	flagSet := pflag.NewFlagSet("webwx", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to config file (default: $"+config.EnvVar+")")
	flagSet.StringVar(&sendTo, "send-to", "", "send stdin lines to this contact or room")
	flagSet.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	level, err := cfg.Log.SlogLevel()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The gateway tracks the session partly through cookies set during
	// the login redirect, so the client needs a jar.
	jar, err := cookiejar.New(nil)
	if err != nil {
		return err
	}
	client, err := wechat.NewClient(wechat.ClientConfig{
		APIURL:     cfg.Gateway.API,
		LoginURL:   cfg.Gateway.Login,
		PushURL:    cfg.Gateway.Push,
		FileURL:    cfg.Gateway.File,
		UserAgent:  cfg.Gateway.UserAgent,
		HTTPClient: &http.Client{Jar: jar},
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	fmt.Println("Scan the QR code with the mobile app to log in:")
	session, err := client.Login(ctx, wechat.LoginOptions{
		RenderQR: func(uri string) {
			qrterminal.GenerateHalfBlock(uri, qrterminal.L, os.Stdout)
		},
	})
	if err != nil {
		return err
	}
	defer session.Logout(context.Background())

	syncer, err := session.Init(ctx)
	if err != nil {
		return err
	}
	self := session.Self()
	fmt.Printf("Logged in as %s\n", self.NickName)

	if sendTo != "" {
		go sendLoop(ctx, session, sendTo, logger)
	}

	for {
		messages, err := syncer.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		for _, message := range messages {
			printMessage(session, message)
		}
	}
}

// sendLoop reads stdin lines and sends each as a text message.
func sendLoop(ctx context.Context, session *wechat.Session, to string, logger *slog.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if _, err := session.Send(ctx, line, to); err != nil {
			logger.Error("send failed", "to", to, "error", err)
		}
	}
}

// printMessage renders one decoded message for the terminal.
func printMessage(session *wechat.Session, message wechat.Message) {
	if message.MsgType == wechat.MsgTypeStatusNotify {
		return
	}
	sender := message.Sender
	if contact, ok := session.Roster().Get(sender); ok {
		sender = contact.DisplayName
	}
	peer := message.PeerUserName
	if contact, ok := session.Roster().Get(peer); ok {
		peer = contact.DisplayName
	}

	switch message.MsgType {
	case wechat.MsgTypeText:
		if message.LocationDesc != "" {
			fmt.Printf("[%s] %s shared a location: %s\n", peer, sender, message.LocationDesc)
			return
		}
		fmt.Printf("[%s] %s: %s\n", peer, sender, message.Content)
	case wechat.MsgTypeImage:
		fmt.Printf("[%s] %s sent an image (msgid %s)\n", peer, sender, message.MsgID)
	case wechat.MsgTypeVoice:
		fmt.Printf("[%s] %s sent a voice clip (msgid %s)\n", peer, sender, message.MsgID)
	case wechat.MsgTypeVideo:
		fmt.Printf("[%s] %s sent a video (msgid %s)\n", peer, sender, message.MsgID)
	case wechat.MsgTypeEmoticon:
		fmt.Printf("[%s] %s sent a sticker\n", peer, sender)
	case wechat.MsgTypeShareCard:
		name := message.RecommendInfo.NickName
		fmt.Printf("[%s] %s shared a contact card: %s\n", peer, sender, name)
	case wechat.MsgTypeApp:
		title := message.Content
		if message.App != nil {
			title = message.App.Title
		}
		fmt.Printf("[%s] %s shared: %s\n", peer, sender, title)
	case wechat.MsgTypeRecalled:
		fmt.Printf("[%s] %s recalled a message\n", peer, sender)
	case wechat.MsgTypeSys:
		fmt.Printf("[%s] %s\n", peer, message.Content)
	default:
		fmt.Printf("[%s] %s sent a message of type %d\n", peer, sender, message.MsgType)
	}
}
