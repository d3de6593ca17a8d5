package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tyrowin/roomcast/internal/chat"
	"github.com/Tyrowin/roomcast/internal/client"
	"github.com/Tyrowin/roomcast/internal/server"
)

const usage = `Usage: chatclient [-server URL] <command> [flags]

Commands:
  send     -room R -author A <content>   post a message
  webhook  -room R [-author A] <content> post as an integration
  history  -room R                       print retained messages
  stats                                  print server statistics
  tail     [-room R] [-id ID] [-replay]  follow the live stream
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "chatclient: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	global := flag.NewFlagSet("chatclient", flag.ContinueOnError)
	baseURL := global.String("server", envOr("ROOMCAST_URL", "http://localhost:8080"), "server base URL")
	verbose := global.Bool("v", false, "log reconnect attempts")
	global.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		global.Usage()
		return errors.New("missing command")
	}

	level := zerolog.WarnLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).With().Timestamp().Logger()

	c := client.New(*baseURL, client.WithLogger(logger))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd, rest := global.Arg(0), global.Args()[1:]
	switch cmd {
	case "send":
		return post(rest, func(room, author, content string) (any, error) {
			return c.Send(ctx, room, author, content)
		})
	case "webhook":
		return post(rest, func(room, author, content string) (any, error) {
			return c.Webhook(ctx, room, author, content)
		})
	case "history":
		fs := flag.NewFlagSet("history", flag.ContinueOnError)
		room := fs.String("room", "general", "room to read")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		msgs, err := c.History(ctx, *room)
		if err != nil {
			return err
		}
		for _, msg := range msgs {
			printMessage(msg)
		}
		return nil
	case "stats":
		stats, err := c.Stats(ctx)
		if err != nil {
			return err
		}
		return printJSON(stats)
	case "tail":
		return tail(ctx, c, rest)
	default:
		global.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func post(args []string, send func(room, author, content string) (any, error)) error {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	room := fs.String("room", "general", "target room")
	author := fs.String("author", "", "message author")
	if err := fs.Parse(args); err != nil {
		return err
	}

	out, err := send(*room, *author, strings.Join(fs.Args(), " "))
	if err != nil {
		return err
	}
	return printJSON(out)
}

func tail(ctx context.Context, c *client.Client, args []string) error {
	fs := flag.NewFlagSet("tail", flag.ContinueOnError)
	room := fs.String("room", "", "room to follow, empty for all rooms")
	id := fs.String("id", "", "connection identifier")
	replay := fs.Bool("replay", false, "print the room's history on every connect")
	if err := fs.Parse(args); err != nil {
		return err
	}

	err := c.Subscribe(ctx, client.SubscribeOptions{Room: *room, ClientID: *id, Replay: *replay}, func(evt client.Event) {
		switch evt.Type {
		case server.EventMessage:
			if msg, err := evt.Message(); err == nil {
				printMessage(msg)
			}
		case server.EventPresence:
			if p, err := evt.Presence(); err == nil {
				fmt.Fprintf(os.Stderr, "online in #%s: %s\n", p.Room, strings.Join(p.Users, ", "))
			}
		case server.EventError:
			fmt.Fprintf(os.Stderr, "server error: %s\n", evt.Data)
		}
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func printMessage(msg chat.Message) {
	when := time.UnixMilli(msg.Timestamp).Format(time.TimeOnly)
	fmt.Printf("[%s] #%s %s: %s\n", when, msg.Room, msg.Author, msg.Content)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
