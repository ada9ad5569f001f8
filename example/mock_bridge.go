package main

import (
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"
)

var (
	mockUsers = []string{"alice", "bob", "carol"}
	mockLines = []string{
		"morning all",
		"deploy is green",
		"anyone seen the flaky test?",
		"first line\nsecond line",
		"lunch?",
	}
)

// bridgeMessage mirrors one element of the bridge /api/messages response.
type bridgeMessage struct {
	Username  string `json:"username"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// StartMockBridge runs a mock chat bridge. Every channel path
// (/<channel>/api/messages) accumulates a random message every 2-6 seconds
// and drains its backlog on each GET, the way the bridge API does.
// Call this in a goroutine before creating matterlog channels.
func StartMockBridge(addr string) {
	var (
		pending = make(map[string][]bridgeMessage)
		nextAt  = make(map[string]time.Time)
		mu      sync.Mutex
	)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{channel}/api/messages", func(w http.ResponseWriter, r *http.Request) {
		channel := r.PathValue("channel")

		mu.Lock()
		now := time.Now()
		if now.After(nextAt[channel]) {
			pending[channel] = append(pending[channel], bridgeMessage{
				Username:  mockUsers[rand.Intn(len(mockUsers))],
				Text:      mockLines[rand.Intn(len(mockLines))],
				Timestamp: now.Format("2006-01-02T15:04:05.999999999-07:00"),
			})
			nextAt[channel] = now.Add(time.Duration(2+rand.Intn(5)) * time.Second)
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

	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("mock bridge error", "error", err)
	}
}
