// Command busclient dials a remote bridge Broker and either subscribes
// to a topic, printing every received frame to stdout, or publishes a
// single Notice and exits. It exercises internal/bridge.BusClient (§4.9)
// the way cmd/worker exercises the job pipeline in the teacher repo.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/OmarEhab007/busd/internal/bridge"
	"github.com/OmarEhab007/busd/internal/codec"
	"github.com/OmarEhab007/busd/internal/domain"
)

func main() {
	_ = godotenv.Load()
	_ = godotenv.Load("../.env")
	_ = godotenv.Load("../../.env")

	addr := flag.String("addr", "127.0.0.1:9090", "broker TCP address")
	topic := flag.String("topic", "", "topic to subscribe or publish to")
	name := flag.String("name", "busclient", "subscriber name")
	mode := flag.String("mode", "sub", "sub or pub")
	message := flag.String("message", "", "Notice message to publish (pub mode)")
	maxRate := flag.Int("max-rate", 0, "advisory max messages/sec for the subscription")
	flag.Parse()

	if *topic == "" {
		fmt.Fprintln(os.Stderr, "busclient: -topic is required")
		os.Exit(2)
	}

	c := codec.New()
	c.Register(domain.Heartbeat{})
	c.Register(domain.Notice{})

	client, err := bridge.Connect(*addr, 0, c, nil)
	if err != nil {
		slog.Error("failed to connect to broker", "addr", *addr, "error", err)
		os.Exit(1)
	}
	defer client.Close()

	switch *mode {
	case "pub":
		runPublish(client, *topic, *message)
	case "sub":
		runSubscribe(client, *topic, *name, int32(*maxRate))
	default:
		fmt.Fprintf(os.Stderr, "busclient: unknown mode %q\n", *mode)
		os.Exit(2)
	}
}

func runPublish(client *bridge.BusClient, topic, message string) {
	notice := domain.Notice{
		Level:   domain.NoticeLevelInfo,
		Source:  "busclient",
		Message: message,
		At:      time.Now().UTC(),
	}
	if err := client.Publish(topic, notice, false); err != nil {
		slog.Error("publish failed", "topic", topic, "error", err)
		os.Exit(1)
	}
	fmt.Printf("published to %s: %s\n", topic, message)
}

func runSubscribe(client *bridge.BusClient, topic, name string, maxRate int32) {
	err := client.Subscribe(topic, name, func(payload any) {
		out, err := json.Marshal(payload)
		if err != nil {
			slog.Error("failed to marshal received payload", "error", err)
			return
		}
		fmt.Printf("%s %s\n", topic, string(out))
	}, 64, maxRate, false)
	if err != nil {
		slog.Error("subscribe failed", "topic", topic, "error", err)
		os.Exit(1)
	}

	fmt.Printf("subscribed to %s as %s, waiting for messages (ctrl-c to exit)\n", topic, name)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
}
