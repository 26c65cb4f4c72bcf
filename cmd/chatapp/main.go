package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/TechieQuokka/chatapp-go/internal/chatproto"
	"github.com/TechieQuokka/chatapp-go/internal/config"
	"github.com/TechieQuokka/chatapp-go/internal/controller"
	"github.com/TechieQuokka/chatapp-go/internal/identity"
	"github.com/TechieQuokka/chatapp-go/internal/netdriver"
	"github.com/TechieQuokka/chatapp-go/internal/netdriver/redisoverlay"
	"github.com/TechieQuokka/chatapp-go/internal/netdriver/wsoverlay"
	"github.com/TechieQuokka/chatapp-go/internal/term"
)

func main() {
	listenAddr := flag.String("listen", "0.0.0.0:0", "address to accept gossip connections on")
	overlay := flag.String("overlay", "ws", "gossip backend: ws or redis")
	redisURL := flag.String("redis-url", "redis://127.0.0.1:6379", "redis server to relay through when -overlay=redis")
	flag.Parse()

	// Structured logging to stderr: stdout is the chat transcript.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	id, err := identity.LoadOrCreate(cfg)
	if err != nil {
		slog.Error("failed to load identity", "error", err)
		os.Exit(1)
	}

	if cfg.Nickname == "" {
		nick := promptNickname()
		id.Nickname = nick
		cfg.Nickname = nick
	}
	if err := cfg.Save(); err != nil {
		slog.Error("failed to save config", "error", err)
		os.Exit(1)
	}

	var driver netdriver.Driver
	switch *overlay {
	case "ws":
		driver = wsoverlay.New(id.PeerID, *listenAddr, logger)
	case "redis":
		d, err := redisoverlay.NewDriver(*redisURL, id.PeerID, logger)
		if err != nil {
			slog.Error("failed to connect to redis overlay", "error", err)
			os.Exit(1)
		}
		driver = d
	default:
		slog.Error("unknown overlay backend", "overlay", *overlay)
		os.Exit(1)
	}

	cliCmds := make(chan chatproto.CliCommand, 256)
	netEvents := make(chan chatproto.NetworkEvent, 256)
	netCmds := make(chan chatproto.NetworkCommand, 256)
	uiEvents := make(chan chatproto.UiEvent, 256)

	ctrl := controller.New(id, cfg, cliCmds, netEvents, netCmds, uiEvents, logger)
	ui := term.New(cliCmds, uiEvents, os.Stdin, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	netDone := make(chan error, 1)
	go func() { netDone <- driver.Run(ctx, netCmds, netEvents) }()

	ctrlDone := make(chan error, 1)
	go func() { ctrlDone <- ctrl.Run(ctx) }()

	// The Interface owns the terminal and runs on the main goroutine; it
	// returns when the user quits or stdin closes.
	if err := ui.Run(ctx); err != nil {
		slog.Error("interface error", "error", err)
	}
	stop()

	select {
	case <-ctrlDone:
	case <-time.After(500 * time.Millisecond):
		slog.Warn("controller did not shut down in time, abandoning")
	}
	if err := ctrl.Close(); err != nil {
		slog.Warn("error closing controller", "error", err)
	}

	select {
	case <-netDone:
	case <-time.After(500 * time.Millisecond):
		slog.Warn("network driver did not shut down in time, abandoning")
	}
}

// promptNickname is a blocking stdin prompt run before the Interface takes
// over the terminal, so plain line-based I/O is fine here.
func promptNickname() string {
	fmt.Print("Welcome! Enter your nickname: ")
	scanner := bufio.NewScanner(os.Stdin)
	nick := ""
	if scanner.Scan() {
		nick = strings.TrimSpace(scanner.Text())
	}
	if nick == "" {
		return "Anonymous"
	}
	if runes := []rune(nick); len(runes) > 32 {
		return string(runes[:32])
	}
	return nick
}
