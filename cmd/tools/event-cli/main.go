// event-cli читает события мира из NATS JetStream и печатает их в консоль.
//
//	event-cli -url nats://127.0.0.1:4222 -types BlockChanged,WorldSaved -limit 50
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/annel0/voxel-sandbox/internal/eventbus"
)

const timeFormat = "2006-01-02T15:04:05Z"

func main() {
	var (
		url       = flag.String("url", "nats://127.0.0.1:4222", "NATS server URL")
		stream    = flag.String("stream", "VOXEL_EVENTS", "JetStream stream name")
		types     = flag.String("types", "", "Event types filter (comma-separated)")
		sources   = flag.String("sources", "", "Event sources filter (comma-separated)")
		limit     = flag.Int("limit", 0, "Stop after N events (0 = follow forever)")
		rawOutput = flag.Bool("json", false, "Print envelopes as JSON lines")
	)
	flag.Parse()

	bus, err := eventbus.NewJetStreamBus(*url, *stream, 24*time.Hour)
	if err != nil {
		log.Fatalf("❌ Failed to connect to NATS: %v", err)
	}
	defer bus.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	filter := eventbus.Filter{
		Types:   parseStringList(*types),
		Sources: parseStringList(*sources),
	}

	var count int64
	_, err = bus.Subscribe(ctx, filter, func(_ context.Context, ev *eventbus.Envelope) {
		if *rawOutput {
			data, _ := json.Marshal(ev)
			fmt.Println(string(data))
		} else {
			printEvent(ev)
		}
		if n := atomic.AddInt64(&count, 1); *limit > 0 && n >= int64(*limit) {
			cancel()
		}
	})
	if err != nil {
		log.Fatalf("❌ Subscribe failed: %v", err)
	}

	fmt.Fprintf(os.Stderr, "🎬 Tailing %s on %s (types: %s)\n", *stream, *url, orAll(*types))
	<-ctx.Done()
	fmt.Fprintf(os.Stderr, "\n📊 Total events: %d\n", atomic.LoadInt64(&count))
}

func printEvent(ev *eventbus.Envelope) {
	fmt.Printf("[%s] %s/%s prio=%d\n",
		ev.Timestamp.Format(timeFormat), ev.Source, ev.EventType, ev.Priority)

	switch ev.EventType {
	case eventbus.TypeBlockChanged:
		var p eventbus.BlockChangedPayload
		if eventbus.DecodePayload(ev, &p) == nil {
			fmt.Printf("  Block: (%d,%d,%d) %d -> %d (%s)\n", p.X, p.Y, p.Z, p.Old, p.New, p.Kind)
		}
	case eventbus.TypeWorldSaved:
		var p eventbus.WorldSavedPayload
		if eventbus.DecodePayload(ev, &p) == nil {
			fmt.Printf("  Slot: %s Blocks: %d Bytes: %d Trigger: %s\n", p.Slot, p.Blocks, p.Bytes, p.Trigger)
		}
	case eventbus.TypeWorldLoaded:
		var p eventbus.WorldLoadedPayload
		if eventbus.DecodePayload(ev, &p) == nil {
			fmt.Printf("  Blocks: %d Origin: %s\n", p.Blocks, p.Origin)
		}
	}
}

func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func orAll(s string) string {
	if s == "" {
		return "all"
	}
	return s
}
