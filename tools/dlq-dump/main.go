// dlq-dump exports dead-lettered telemetry batches as JSON lines so operators
// can inspect (and later replay) samples that exhausted their write retries.
// It reads the capped dead-letter streams directly and never touches the live
// queues or their consumer groups.
//
// Usage examples:
//
//	dlq-dump -redis=127.0.0.1:6379                      # both streams to stdout
//	dlq-dump -redis=127.0.0.1:6379 -stream=meter -out=meter-dlq.jsonl
//
// Each output line is one parked entry: stream, entry id, failure reason,
// origin queue id, park time, and the sample payload (embedded as JSON when it
// still parses, carried verbatim otherwise).
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	redis "github.com/redis/go-redis/v9"

	"evtel/internal/charging/core"
	"evtel/internal/charging/queue"
)

type dumpEntry struct {
	Stream   string          `json:"stream"`
	ID       string          `json:"id"`
	Reason   string          `json:"reason"`
	OriginID string          `json:"originId"`
	ParkedAt string          `json:"parkedAt"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Raw      string          `json:"raw,omitempty"`
}

func main() {
	var (
		redisAddr = flag.String("redis", "127.0.0.1:6379", "Redis backing the durable queues")
		stream    = flag.String("stream", "", "Stream to dump (meter|vehicle); empty dumps both")
		out       = flag.String("out", "-", "Output path; - writes to stdout")
		timeout   = flag.Duration("timeout", 30*time.Second, "Overall timeout")
	)
	flag.Parse()

	var streams []string
	switch *stream {
	case "":
		streams = []string{core.StreamMeter, core.StreamVehicle}
	case core.StreamMeter, core.StreamVehicle:
		streams = []string{*stream}
	default:
		fmt.Fprintf(os.Stderr, "unknown stream %q\n", *stream)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	rc := redis.NewClient(&redis.Options{Addr: *redisAddr})
	defer rc.Close()
	if err := rc.Ping(ctx).Err(); err != nil {
		fmt.Fprintf(os.Stderr, "redis unreachable at %s: %v\n", *redisAddr, err)
		os.Exit(1)
	}

	w := bufio.NewWriterSize(os.Stdout, 1<<20)
	if *out != "-" {
		f, err := os.OpenFile(*out, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open %s: %v\n", *out, err)
			os.Exit(1)
		}
		defer f.Close()
		w = bufio.NewWriterSize(f, 1<<20)
	}
	enc := json.NewEncoder(w)

	total := 0
	for _, s := range streams {
		key := queue.DeadLetterStreamKey(s)
		msgs, err := rc.XRange(ctx, key, "-", "+").Result()
		if err != nil {
			fmt.Fprintf(os.Stderr, "read %s: %v\n", key, err)
			os.Exit(1)
		}
		for _, m := range msgs {
			e := dumpEntry{
				Stream:   s,
				ID:       m.ID,
				Reason:   str(m.Values["reason"]),
				OriginID: str(m.Values["origin_id"]),
				ParkedAt: str(m.Values["parked_at"]),
			}
			payload := str(m.Values["payload"])
			if json.Valid([]byte(payload)) {
				e.Payload = json.RawMessage(payload)
			} else {
				e.Raw = payload
			}
			if err := enc.Encode(&e); err != nil {
				fmt.Fprintf(os.Stderr, "write entry %s: %v\n", m.ID, err)
				os.Exit(1)
			}
			total++
		}
	}
	if err := w.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "flush output: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "dlq-dump: streams=%d entries=%d out=%s\n", len(streams), total, *out)
}

// str tolerates absent fields in hand-written or older entries.
func str(v interface{}) string {
	s, _ := v.(string)
	return s
}
