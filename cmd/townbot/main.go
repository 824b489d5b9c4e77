// Package main provides a headless town client: it joins a town, walks to a
// point, optionally chats and issues one interactable command, then prints the
// events it receives.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/covey/internal/client"
	"github.com/cory-johannsen/covey/internal/protocol"
)

// rawPayload sends a command object given on the command line as-is.
type rawPayload struct {
	kind protocol.CommandType
	body json.RawMessage
}

func (p rawPayload) CommandType() protocol.CommandType { return p.kind }

func (p rawPayload) MarshalJSON() ([]byte, error) { return p.body, nil }

func parsePayload(s string) (rawPayload, error) {
	var head struct {
		Type protocol.CommandType `json:"type"`
	}
	if err := json.Unmarshal([]byte(s), &head); err != nil {
		return rawPayload{}, fmt.Errorf("parsing command: %w", err)
	}
	if head.Type == "" {
		return rawPayload{}, errors.New(`command needs a "type" field`)
	}
	return rawPayload{kind: head.Type, body: json.RawMessage(s)}, nil
}

func main() {
	url := flag.String("url", "ws://localhost:8081/ws", "websocket endpoint")
	townID := flag.String("town", "", "town ID to join (required)")
	name := flag.String("name", "townbot", "user name")
	x := flag.Float64("x", 0, "x coordinate to walk to")
	y := flag.Float64("y", 0, "y coordinate to walk to")
	chat := flag.String("chat", "", "chat message to send after moving")
	target := flag.String("interactable", "", "interactable ID for -command")
	command := flag.String("command", "", `command object, e.g. {"type":"AdoptPet","petType":"dog"}`)
	watch := flag.Duration("watch", 5*time.Second, "how long to print events before leaving")
	timeout := flag.Duration("timeout", client.DefaultCommandTimeout, "command timeout")
	flag.Parse()

	if *townID == "" {
		flag.Usage()
		os.Exit(1)
	}
	var payload rawPayload
	if *command != "" {
		if *target == "" {
			log.Fatalf("-command requires -interactable")
		}
		var err error
		if payload, err = parsePayload(*command); err != nil {
			log.Fatalf("%v", err)
		}
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	start := time.Now()
	c, err := client.Dial(ctx, *url, *townID, *name, client.Options{
		CommandTimeout: *timeout,
		Logger:         logger,
	})
	if err != nil {
		logger.Fatal("joining town", zap.String("town", *townID), zap.Error(err))
	}
	defer c.Close()

	snap := c.Initialize()
	fmt.Fprintf(os.Stdout, "joined %s (%s) as %s in %s: %d player(s), %d interactable(s)\n",
		snap.FriendlyName, snap.TownID, c.ID(), time.Since(start).Round(time.Millisecond),
		len(snap.Players), len(snap.Areas))

	if err := c.Move(protocol.Location{X: *x, Y: *y, Rotation: protocol.Front}); err != nil {
		logger.Fatal("moving", zap.Error(err))
	}
	if *chat != "" {
		if err := c.Chat(*chat, ""); err != nil {
			logger.Fatal("chatting", zap.Error(err))
		}
	}
	if *command != "" {
		res, err := c.Command(context.Background(), *target, payload)
		var cmdErr *client.CommandError
		switch {
		case errors.As(err, &cmdErr):
			fmt.Fprintf(os.Stdout, "command %s failed: %s\n", payload.kind, cmdErr.Message)
		case err != nil:
			logger.Fatal("sending command", zap.Error(err))
		default:
			fmt.Fprintf(os.Stdout, "command %s ok: %s\n", payload.kind, string(res))
		}
	}

	if !printEvents(os.Stdout, c.Events(), time.After(*watch)) {
		fmt.Fprintln(os.Stdout, "connection closed by server")
	}
	if bal, ok := c.Balance(); ok {
		fmt.Fprintf(os.Stdout, "balance: %d\n", bal)
	}
	fmt.Fprintf(os.Stdout, "players online: %d\n", len(c.Players()))
}

// printEvents writes one line per frame until deadline fires or the stream
// closes.
//
// Postcondition: Returns false when the stream closed first.
func printEvents(w io.Writer, frames <-chan protocol.Message, deadline <-chan time.Time) bool {
	for {
		select {
		case msg, ok := <-frames:
			if !ok {
				return false
			}
			fmt.Fprintf(w, "%-22s %s\n", msg.Type, string(msg.Payload))
		case <-deadline:
			return true
		}
	}
}
