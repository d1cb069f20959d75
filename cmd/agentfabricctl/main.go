// Command agentfabricctl is a thin operator CLI over the bus: it can
// publish one envelope the way the gateway's POST /send does ("send") and
// tail a topic's raw messages ("tail"), without going through HTTP.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chris-alexander-pop/agentfabric/internal/bus"
	"github.com/chris-alexander-pop/agentfabric/internal/model"
	"github.com/chris-alexander-pop/agentfabric/internal/routing"
	"github.com/chris-alexander-pop/agentfabric/pkg/config"
)

type busConfig struct {
	Bus bus.Config
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "send":
		runSend(os.Args[2:])
	case "tail":
		runTail(os.Args[2:])
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", os.Args[1])
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `agentfabricctl - thin operator CLI over the bus

Usage:
  agentfabricctl send -conversation ID -sender S -recipient R [-content TEXT] [-type message|control]
  agentfabricctl tail -topic TOPIC [-last-id ID] [-limit N] [-follow]

Bus connection is configured the same way as cmd/gateway and cmd/worker:
BUS_DRIVER, BUS_REDIS_URL, etc (see internal/bus.Config).`)
}

func loadBus() (bus.Bus, func() error) {
	var cfg busConfig
	if err := config.Load(&cfg); err != nil {
		fmt.Fprintln(os.Stderr, "config load failed:", err)
		os.Exit(1)
	}
	b, closeBus, err := bus.New(cfg.Bus, bus.ResilientConfig{})
	if err != nil {
		fmt.Fprintln(os.Stderr, "bus construction failed:", err)
		os.Exit(1)
	}
	return b, closeBus
}

func runSend(args []string) {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	conversationID := fs.String("conversation", "", "conversation id (required)")
	sender := fs.String("sender", "", "sender, e.g. user:alice (required)")
	recipient := fs.String("recipient", "", "recipient, e.g. agent:Dev or chat:<conversation_id> (required)")
	content := fs.String("content", "", "message text")
	envType := fs.String("type", string(model.EnvelopeMessage), "message or control")
	id := fs.String("id", "", "envelope id (generated when empty)")
	metadataJSON := fs.String("metadata", "", "JSON object merged into envelope metadata")
	_ = fs.Parse(args)

	if *conversationID == "" || *sender == "" || *recipient == "" {
		fmt.Fprintln(os.Stderr, "send requires -conversation, -sender, and -recipient")
		fs.Usage()
		os.Exit(2)
	}

	var metadata map[string]any
	if *metadataJSON != "" {
		if err := json.Unmarshal([]byte(*metadataJSON), &metadata); err != nil {
			fmt.Fprintln(os.Stderr, "invalid -metadata JSON:", err)
			os.Exit(2)
		}
	}

	b, closeBus := loadBus()
	defer closeBus()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := routing.Route(ctx, b, routing.SendRequest{
		ID:             *id,
		ConversationID: *conversationID,
		Sender:         *sender,
		Recipient:      *recipient,
		Type:           model.EnvelopeType(*envType),
		Content:        *content,
		Metadata:       metadata,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "send failed:", err)
		os.Exit(1)
	}

	out, _ := json.Marshal(map[string]any{"status": "ok", "topic": result.Topic, "id": result.Envelope.ID})
	fmt.Println(string(out))
}

func runTail(args []string) {
	fs := flag.NewFlagSet("tail", flag.ExitOnError)
	topic := fs.String("topic", "", "topic to read, e.g. stream:c1 (required)")
	lastID := fs.String("last-id", "", "resume cursor; empty starts with the most recent -limit messages")
	limit := fs.Int("limit", 10, "max messages per read")
	follow := fs.Bool("follow", false, "keep reading new messages until interrupted")
	blockMs := fs.Int("block-ms", 2000, "block duration per read when -follow is set")
	_ = fs.Parse(args)

	if *topic == "" {
		fmt.Fprintln(os.Stderr, "tail requires -topic")
		fs.Usage()
		os.Exit(2)
	}

	b, closeBus := loadBus()
	defer closeBus()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cursor := *lastID
	for {
		var (
			msgs []model.BusMessage
			err  error
		)
		if *follow {
			msgs, err = b.ReadBlocking(ctx, *topic, cursor, *limit, *blockMs)
		} else {
			msgs, err = b.Read(ctx, *topic, cursor, *limit)
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			fmt.Fprintln(os.Stderr, "read failed:", err)
			os.Exit(1)
		}

		for _, m := range msgs {
			line, _ := json.Marshal(map[string]any{"id": m.ID, "payload": m.Payload})
			fmt.Println(string(line))
			cursor = m.ID
		}

		if !*follow {
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}
