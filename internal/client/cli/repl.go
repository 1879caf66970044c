package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the command surface the REPL and one-shot commands
// dispatch to. The real App type satisfies this interface; tests can
// provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Keygen(ctx context.Context) error
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Logout(ctx context.Context) error

	Send(ctx context.Context, args []string) error
	List(ctx context.Context, args []string) error
	Show(ctx context.Context, args []string) error
	Mark(ctx context.Context, args []string) error
	Delete(ctx context.Context, args []string) error
	Restore(ctx context.Context, args []string) error
	Attachment(ctx context.Context, args []string) error
	Export(ctx context.Context, args []string) error
	Reply(ctx context.Context, args []string) error
	Watch(ctx context.Context, args []string) error
}

const (
	helpLoggedOut = "Available commands: keygen, register, login, exit"
	helpLoggedIn  = "Available commands: send, (l)ist [inbox|sent|cc|important|trash], show <id>, " +
		"mark <id> <flag>, delete <id>, restore <id>, attachment <id> <n> [path], export <id> [path], " +
		"reply <id>, watch, logout, exit"
)

// dispatch runs cmd. known is false for commands it does not recognise.
func dispatch(ctx context.Context, a execIface, cmd string, args []string) (known bool, err error) {
	switch cmd {
	case "keygen":
		return true, a.Keygen(ctx)
	case "register":
		return true, a.Register(ctx)
	case "login":
		return true, a.Login(ctx)
	case "logout":
		return true, a.Logout(ctx)
	case "send":
		return true, a.Send(ctx, args)
	case "l", "list":
		return true, a.List(ctx, args)
	case "show":
		return true, a.Show(ctx, args)
	case "mark":
		return true, a.Mark(ctx, args)
	case "delete":
		return true, a.Delete(ctx, args)
	case "restore":
		return true, a.Restore(ctx, args)
	case "attachment":
		return true, a.Attachment(ctx, args)
	case "export":
		return true, a.Export(ctx, args)
	case "reply":
		return true, a.Reply(ctx, args)
	case "watch":
		return true, a.Watch(ctx, args)
	}
	return false, nil
}

// runREPL reads commands from scanner until EOF, "exit" or "quit".
//
// The first token of a line is the command and the rest are its arguments.
// Command errors are printed and the loop goes on.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("sealmail %s> ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn(helpLoggedIn)
			} else {
				printlnFn(helpLoggedOut)
			}
			continue
		case "exit", "quit":
			printlnFn("Bye!")
			return
		}

		known, err := dispatch(ctx, a, cmd, args)
		switch {
		case !known:
			printlnFn("Unknown command:", cmd)
		case err != nil:
			printlnFn("Error:", err)
		}
	}
}

// Root logs in, starts the connectivity watcher and runs the REPL on stdin.
func (a *App) Root(ctx context.Context) {
	printlnFn("Welcome to SealMail (type 'help' for commands)")

	if err := a.Login(ctx); err != nil {
		printlnFn("Error:", err)
	}

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go a.StartOnlineStatusWatcher(wctx, a.config.OnlineCheckInterval)

	runREPL(ctx, a, a.getStatus, bufio.NewScanner(a.reader))
}
