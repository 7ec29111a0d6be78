package commands

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/fachschaft/fsbot/internal/bot"
	"github.com/fachschaft/fsbot/internal/fsstore"
	"github.com/fachschaft/fsbot/internal/rocketchat"
)

const defaultOrderBinary = "dms"

// Runner runs an external program and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

type OrderOptions struct {
	Binary string
	// Token and RCFile configure the client; the rc file is written only
	// when it does not exist yet.
	Token  string
	RCFile string
	Run    Runner
}

// Order forwards drink orders to the drink management CLI.
type Order struct {
	chat   Messenger
	binary string
	run    Runner
}

func NewOrder(chat Messenger, opts OrderOptions) (*Order, error) {
	binary := strings.TrimSpace(opts.Binary)
	if binary == "" {
		binary = defaultOrderBinary
	}
	if token := strings.TrimSpace(opts.Token); token != "" && strings.TrimSpace(opts.RCFile) != "" {
		content := fmt.Sprintf("[general]\ntoken = %s\n", token)
		if _, err := fsstore.WriteText(opts.RCFile, content, fsstore.FileOptions{}); err != nil {
			return nil, fmt.Errorf("write order rc file: %w", err)
		}
	}
	run := opts.Run
	if run == nil {
		run = execRunner
	}
	return &Order{chat: chat, binary: binary, run: run}, nil
}

// WithChat returns a copy of c that replies through chat.
func (c *Order) WithChat(chat Messenger) *Order {
	cp := *c
	cp.chat = chat
	return &cp
}

func (c *Order) Usage() []bot.UsageLine {
	return []bot.UsageLine{
		{Command: "order", Description: "Orders product in dms for yourself."},
		{Command: "dms | drink | drinks", Description: "Access dms client."},
	}
}

func (c *Order) CanHandle(name string) bool { return hasName(name, "dms", "drink", "drinks", "order") }

func (c *Order) Handle(ctx context.Context, name, args string, msg rocketchat.Message) error {
	argv := OrderArgs(name, args, msg.CreatedBy.Username)
	out, err := c.run(ctx, c.binary, argv...)
	text := strings.TrimRight(string(out), "\n")
	switch {
	case text != "":
	case err != nil:
		text = err.Error()
	default:
		text = "Done."
	}
	if _, sendErr := c.chat.SendMessage(ctx, msg.RoomID, text); sendErr != nil {
		return sendErr
	}
	return nil
}

// OrderArgs builds the CLI arguments: "order" is a subcommand of its own,
// ordering commands act for the sender unless a user is given, and orders
// skip the interactive confirmation.
func OrderArgs(command, args, sender string) []string {
	argv := strings.Fields(args)
	if command == "order" {
		argv = append([]string{"order"}, argv...)
	}
	if len(argv) == 0 {
		return argv
	}
	if hasName(argv[0], "order", "buy", "comment") {
		explicit := false
		for _, a := range argv {
			if strings.HasPrefix(a, "-u") || strings.HasPrefix(a, "--user") {
				explicit = true
				break
			}
		}
		if !explicit {
			argv = append(argv, "--user="+sender)
		}
	}
	if hasName(argv[0], "order", "buy") && !hasName("--force", argv...) {
		argv = append(argv, "--force")
	}
	return argv
}
