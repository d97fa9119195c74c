package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Techcyte/context-sync/sdk/base/ctxsync"
	"github.com/Techcyte/context-sync/sdk/contracts/syncmsg"
)

var errUsage = errors.New("usage: connect | change <case> | accept | reject <reason> | desync <message> | status | close | quit")

// session is the part of *ctxsync.Client the command loop drives.
type session interface {
	Connect(ctx context.Context) error
	Close() error
	RequestContextChange(items syncmsg.Context) error
	Accept() error
	Reject(reason string, status syncmsg.StatusCode) error
	ReportOutOfSync(message string, status syncmsg.StatusCode) error
	Snapshot() ctxsync.Session
}

// runCommand executes one stdin line against s.
func runCommand(ctx context.Context, s session, out io.Writer, line string) (quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), fields[0]))
	switch strings.ToLower(fields[0]) {
	case "connect":
		return false, s.Connect(ctx)
	case "close":
		return false, s.Close()
	case "change":
		if rest == "" {
			return false, errUsage
		}
		return false, s.RequestContextChange(syncmsg.CaseContext(rest))
	case "accept":
		return false, s.Accept()
	case "reject":
		if rest == "" {
			rest = "User rejected context change."
		}
		return false, s.Reject(rest, 0)
	case "desync":
		if rest == "" {
			rest = "Context differs from host."
		}
		return false, s.ReportOutOfSync(rest, 0)
	case "status":
		b, err := json.MarshalIndent(s.Snapshot(), "", "  ")
		if err != nil {
			return false, err
		}
		_, err = fmt.Fprintln(out, string(b))
		return false, err
	case "quit", "exit":
		return true, nil
	default:
		return false, errUsage
	}
}
