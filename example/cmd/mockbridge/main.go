// Standalone mock chat bridge for trying the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockbridge
//
// Then in another terminal:
//
//	go run ./cmd/matterlog serve -c example/matterlog.toml
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"time"
)

type bridgeMessage struct {
	Username  string `json:"username"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

func main() {
	addr := flag.String("addr", ":4242", "listen address")
	failEvery := flag.Int("fail-every", 0, "answer every Nth request with 503 (0 disables)")
	flag.Parse()

	fmt.Printf("Mock bridge starting on %s\n", *addr)
	fmt.Println("Channels are served at /<channel>/api/messages")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	var (
		pending  = make(map[string][]bridgeMessage)
		nextAt   = make(map[string]time.Time)
		requests int
		mu       sync.Mutex
		users    = []string{"alice", "bob", "carol"}
		lines    = []string{"hello", "how is everyone?", "multi\nline\nmessage", "brb"}
	)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{channel}/api/messages", func(w http.ResponseWriter, r *http.Request) {
		channel := r.PathValue("channel")

		mu.Lock()
		requests++
		if *failEvery > 0 && requests%*failEvery == 0 {
			mu.Unlock()
			slog.Info("simulating outage", "channel", channel)
			http.Error(w, "bridge unavailable", http.StatusServiceUnavailable)
			return
		}

		now := time.Now()
		if now.After(nextAt[channel]) {
			// bridges report local time with an offset
			pending[channel] = append(pending[channel], bridgeMessage{
				Username:  users[rand.Intn(len(users))],
				Text:      lines[rand.Intn(len(lines))],
				Timestamp: now.Local().Format("2006-01-02T15:04:05.999999999-07:00"),
			})
			nextAt[channel] = now.Add(time.Duration(1+rand.Intn(5)) * time.Second)
		}
		batch := pending[channel]
		pending[channel] = nil
		mu.Unlock()

		if batch == nil {
			batch = []bridgeMessage{}
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(batch); err != nil {
			slog.Error("failed to write response", "error", err)
		}
	})

	if err := http.ListenAndServe(*addr, mux); err != nil {
		slog.Error("mock bridge error", "error", err)
		os.Exit(1)
	}
}
