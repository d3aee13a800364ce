// WebSocket load testing tool for roomsync.
// Usage: go run test/loadtest/ws-loadtest.go -url http://127.0.0.1:8080 -voters 50 -duration 60s
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

var options = []string{"1", "2", "3", "5", "8", "13"}

func main() {
	baseURL := flag.String("url", "http://127.0.0.1:8080", "Server base URL")
	voters := flag.Int("voters", 10, "Number of voters joining the room")
	duration := flag.Duration("duration", 30*time.Second, "Test duration")
	round := flag.Duration("round", 5*time.Second, "Length of one voting round")
	flag.Parse()

	fmt.Printf("roomsync load test\n")
	fmt.Printf("  URL:      %s\n", *baseURL)
	fmt.Printf("  Voters:   %d\n", *voters)
	fmt.Printf("  Duration: %s\n", *duration)
	fmt.Printf("  Round:    %s\n", *round)
	fmt.Println()

	code, err := createRoom(*baseURL)
	if err != nil {
		log.Fatalf("creating room: %v", err)
	}
	fmt.Printf("  Room:     %s\n\n", code)

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	// Handle interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		cancel()
	}()

	var (
		connected    atomic.Int64
		sent         atomic.Int64
		updates      atomic.Int64
		errors       atomic.Int64
		connectFails atomic.Int64
	)

	wsURL := "ws" + strings.TrimPrefix(*baseURL, "http") + "/ws/" + code

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i <= *voters; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			header := http.Header{}
			header.Set("Cookie", "rs_pid="+uuid.NewString())
			c, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: header})
			if err != nil {
				connectFails.Add(1)
				return
			}
			connected.Add(1)
			defer c.CloseNow()

			// Read goroutine
			go func() {
				for {
					_, data, err := c.Read(ctx)
					if err != nil {
						return
					}
					if bytes.Contains(data, []byte(`"RoomUpdate"`)) {
						updates.Add(1)
					}
				}
			}()

			send := func(msg string) bool {
				if err := c.Write(ctx, websocket.MessageText, []byte(msg)); err != nil {
					if ctx.Err() == nil {
						errors.Add(1)
					}
					return false
				}
				sent.Add(1)
				return true
			}

			// Participant 0 joins first and becomes moderator.
			if id > 0 {
				time.Sleep(200 * time.Millisecond)
			}
			if !send(fmt.Sprintf(`{"event":"Join","name":"load-%d"}`, id)) {
				return
			}

			ticker := time.NewTicker(*round / 2)
			defer ticker.Stop()
			for tick := 0; ; tick++ {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
				var msg string
				switch {
				case id == 0 && tick%2 == 0:
					msg = `{"event":"StartVoting"}`
				case id == 0:
					msg = `{"event":"StopVoting"}`
				case tick%2 == 0:
					msg = fmt.Sprintf(`{"event":"OptionSelected","selection":%s}`, options[(id+tick)%len(options)])
				default:
					msg = "PING"
				}
				if !send(msg) {
					return
				}
			}
		}(i)
	}

	// Progress reporting
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				elapsed := time.Since(start).Round(time.Second)
				fmt.Printf("[%s] connected=%d sent=%d updates=%d errors=%d connect_fails=%d\n",
					elapsed, connected.Load(), sent.Load(), updates.Load(), errors.Load(), connectFails.Load())
			}
		}
	}()

	wg.Wait()
	elapsed := time.Since(start)

	fmt.Println()
	fmt.Println("Results:")
	fmt.Printf("  Duration:        %s\n", elapsed.Round(time.Millisecond))
	fmt.Printf("  Connected:       %d / %d\n", connected.Load(), *voters+1)
	fmt.Printf("  Connect fails:   %d\n", connectFails.Load())
	fmt.Printf("  Messages sent:   %d\n", sent.Load())
	fmt.Printf("  Room updates:    %d\n", updates.Load())
	fmt.Printf("  Errors:          %d\n", errors.Load())
	if elapsed.Seconds() > 0 {
		fmt.Printf("  Send rate:       %.1f msg/s\n", float64(sent.Load())/elapsed.Seconds())
		fmt.Printf("  Update rate:     %.1f msg/s\n", float64(updates.Load())/elapsed.Seconds())
	}

	if connectFails.Load() > 0 || errors.Load() > 0 {
		log.Fatal("Load test completed with errors")
	}
}

func createRoom(baseURL string) (string, error) {
	body, _ := json.Marshal(map[string]any{"options": options})
	resp, err := http.Post(baseURL+"/api/rooms", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var out struct {
		RoomCode string `json:"roomCode"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.RoomCode, nil
}
