// Package term is the Interface actor: a line-oriented terminal front end
// that renders UiEvents and turns typed input into CliCommands. Screen
// layout, key-by-key input handling, and menu navigation are explicitly
// peripheral to the core (spec'd only as "consumes a UI-event stream,
// produces CliCommands"), so this is a plain scanner-driven REPL rather
// than a raw-mode full-screen renderer.
package term

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/TechieQuokka/chatapp-go/internal/chatproto"
)

const defaultWidth = 100

// screen is a tagged union over what input the next line of text means,
// mirroring the controller's own mode type rather than a pile of bools.
type screen int

const (
	screenMenu screen = iota
	screenCreateName
	screenCreatePassword
	screenJoinCode
	screenJoinPassword
	screenChat
)

// Interface drives the terminal side of the three-actor loop.
type Interface struct {
	cliCmds  chan<- chatproto.CliCommand
	uiEvents <-chan chatproto.UiEvent
	in       *bufio.Scanner
	out      io.Writer

	screen      screen
	pendingName string
	pendingCode string
}

// New builds an Interface reading lines from in and writing rendered output
// to out.
func New(cliCmds chan<- chatproto.CliCommand, uiEvents <-chan chatproto.UiEvent, in io.Reader, out io.Writer) *Interface {
	return &Interface{
		cliCmds:  cliCmds,
		uiEvents: uiEvents,
		in:       bufio.NewScanner(in),
		out:      out,
		screen:   screenMenu,
	}
}

// Run drives the Interface until ctx is cancelled, the user quits from the
// main menu, or stdin is closed. On stdin close it sends CliQuit so the
// Controller shuts down cleanly.
func (ui *Interface) Run(ctx context.Context) error {
	lines := make(chan string)
	done := make(chan struct{})
	go ui.readLines(lines, done)

	ui.printMainMenu()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-done:
			ui.cliCmds <- chatproto.CliCommand{Kind: chatproto.CliQuit}
			return nil

		case line := <-lines:
			quit := ui.screen == screenMenu && strings.EqualFold(strings.TrimSpace(line), "q")
			ui.handleLine(line)
			if quit {
				return nil
			}

		case evt, ok := <-ui.uiEvents:
			if !ok {
				return nil
			}
			ui.handleUiEvent(evt)
		}
	}
}

func (ui *Interface) readLines(lines chan<- string, done chan<- struct{}) {
	for ui.in.Scan() {
		lines <- ui.in.Text()
	}
	close(done)
}

func (ui *Interface) handleLine(line string) {
	switch ui.screen {
	case screenMenu:
		ui.handleMenuLine(line)

	case screenCreateName:
		ui.pendingName = strings.TrimSpace(line)
		ui.screen = screenCreatePassword
		fmt.Fprint(ui.out, "Password (leave blank for none): ")

	case screenCreatePassword:
		ui.screen = screenMenu
		ui.cliCmds <- chatproto.CliCommand{Kind: chatproto.CliCreateRoom, Name: ui.pendingName, Password: line}

	case screenJoinCode:
		ui.pendingCode = strings.TrimSpace(line)
		ui.screen = screenJoinPassword
		fmt.Fprint(ui.out, "Password (leave blank for none): ")

	case screenJoinPassword:
		ui.screen = screenMenu
		ui.cliCmds <- chatproto.CliCommand{Kind: chatproto.CliJoinRoom, Code: ui.pendingCode, Password: line}

	case screenChat:
		ui.handleChatLine(line)
	}
}

func (ui *Interface) handleMenuLine(line string) {
	switch strings.TrimSpace(line) {
	case "1":
		ui.screen = screenCreateName
		fmt.Fprint(ui.out, "Room name: ")
	case "2":
		ui.screen = screenJoinCode
		fmt.Fprint(ui.out, "Room code: ")
	case "q", "Q":
		ui.cliCmds <- chatproto.CliCommand{Kind: chatproto.CliQuit}
	default:
		ui.printMainMenu()
	}
}

func (ui *Interface) handleChatLine(line string) {
	input := strings.TrimSpace(line)
	if input == "" {
		return
	}
	switch {
	case input == "/quit":
		ui.cliCmds <- chatproto.CliCommand{Kind: chatproto.CliLeaveRoom}
	case input == "/peers":
		ui.cliCmds <- chatproto.CliCommand{Kind: chatproto.CliListPeers}
	case input == "/help":
		ui.cliCmds <- chatproto.CliCommand{Kind: chatproto.CliHelp}
	case strings.HasPrefix(input, "/"):
		ui.cliCmds <- chatproto.CliCommand{Kind: chatproto.CliHelp}
	default:
		ui.cliCmds <- chatproto.CliCommand{Kind: chatproto.CliSendMessage, Text: input}
	}
}

func (ui *Interface) handleUiEvent(evt chatproto.UiEvent) {
	switch evt.Kind {
	case chatproto.UiNewMessage:
		fmt.Fprintln(ui.out, evt.Message.Render(ui.width()))

	case chatproto.UiStatusUpdate:
		fmt.Fprintf(ui.out, "-- Room: %s | %d peer(s) online --\n", roomOrNone(evt.Room), evt.Peers)

	case chatproto.UiShowMainMenu:
		ui.screen = screenMenu
		ui.printMainMenu()

	case chatproto.UiRoomCreated:
		ui.screen = screenChat
		fmt.Fprintf(ui.out, "Room '%s' created. Share this code: %s\n", evt.Room, evt.Code)

	case chatproto.UiRoomJoined:
		ui.screen = screenChat
		fmt.Fprintf(ui.out, "Joined room '%s'\n", evt.Room)

	case chatproto.UiAccessDenied:
		fmt.Fprintln(ui.out, "Access denied — wrong password.")

	case chatproto.UiError:
		fmt.Fprintf(ui.out, "[!] %s\n", evt.Err)
	}
}

func (ui *Interface) printMainMenu() {
	fmt.Fprintln(ui.out, "=== P2P Chat ===")
	fmt.Fprintln(ui.out, "[1] Create room")
	fmt.Fprintln(ui.out, "[2] Join room")
	fmt.Fprintln(ui.out, "[Q] Quit")
	fmt.Fprint(ui.out, "> ")
}

func roomOrNone(room string) string {
	if room == "" {
		return "(no room)"
	}
	return room
}

func (ui *Interface) width() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return defaultWidth
	}
	return w
}
