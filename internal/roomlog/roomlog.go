// Package roomlog appends a plain-text transcript of each room's chat and
// system events to a per-room file under the configured log directory.
package roomlog

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/TechieQuokka/chatapp-go/internal/chatproto"
)

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// Logger appends lines to a single room's log file.
type Logger struct {
	file   *os.File
	writer *bufio.Writer
}

// Open creates (or appends to) the log file for roomName inside logDir. The
// room name is sanitised before use as a filename.
func Open(logDir, roomName string) (*Logger, error) {
	safeName := unsafeFilenameChars.ReplaceAllString(roomName, "_")
	path := filepath.Join(logDir, safeName+".log")

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("roomlog: open %s: %w", path, err)
	}

	return &Logger{file: file, writer: bufio.NewWriter(file)}, nil
}

// LogMessage appends a chat message or system event line.
func (l *Logger) LogMessage(msg chatproto.DisplayMessage) error {
	ts := msg.Timestamp.Format(time.RFC3339)
	var line string
	if msg.IsSystem {
		line = fmt.Sprintf("[%s] *** %s\n", ts, msg.Text)
	} else {
		line = fmt.Sprintf("[%s] %s: %s\n", ts, msg.Sender, msg.Text)
	}
	return l.writeLine(line)
}

// LogEvent appends a plain system string, e.g. "session started".
func (l *Logger) LogEvent(text string) error {
	line := fmt.Sprintf("[%s] *** %s\n", time.Now().Format(time.RFC3339), text)
	return l.writeLine(line)
}

func (l *Logger) writeLine(line string) error {
	if _, err := l.writer.WriteString(line); err != nil {
		return fmt.Errorf("roomlog: write: %w", err)
	}
	return l.writer.Flush()
}

// Close flushes and closes the underlying file.
func (l *Logger) Close() error {
	if err := l.writer.Flush(); err != nil {
		l.file.Close()
		return fmt.Errorf("roomlog: flush: %w", err)
	}
	return l.file.Close()
}
