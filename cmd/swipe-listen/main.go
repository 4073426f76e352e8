package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

func main() {
	var wsURL string
	var raw bool

	root := &cobra.Command{
		Use:          "swipe-listen",
		Short:        "Print magnetswiped websocket events",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(*cobra.Command, []string) error {
			return listen(wsURL, raw)
		},
	}
	root.Flags().StringVar(&wsURL, "ws", "ws://127.0.0.1:3002/ws", "magnetswiped websocket URL")
	root.Flags().BoolVar(&raw, "raw", false, "Print frames as received instead of pretty JSON")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func listen(wsURL string, raw bool) error {
	u, err := url.Parse(wsURL)
	if err != nil {
		return fmt.Errorf("invalid websocket URL: %w", err)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	d := websocket.Dialer{HandshakeTimeout: 5 * time.Second}

	log.Printf("connecting to %s...", u.String())
	conn, _, err := d.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()
	log.Printf("connected! (press Ctrl+C to exit)")

	var writeMu sync.Mutex

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	// The daemon pings us; answering resets our deadline too.
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second))
	})

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()
	go func() {
		for range pingTicker.C {
			writeMu.Lock()
			err := conn.WriteMessage(websocket.PingMessage, nil)
			writeMu.Unlock()
			if err != nil {
				log.Printf("ping failed: %v", err)
				return
			}
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("websocket error: %v", err)
				}
				return
			}
			if messageType == websocket.TextMessage {
				printFrame(message, raw)
			}
		}
	}()

	select {
	case <-sigc:
		log.Printf("shutting down...")
		writeMu.Lock()
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		writeMu.Unlock()
		if err != nil {
			log.Printf("error closing connection: %v", err)
		}
	case <-done:
		log.Printf("connection closed")
	}
	return nil
}

func printFrame(message []byte, raw bool) {
	var frame struct {
		Type string          `json:"type"`
		Ts   string          `json:"ts"`
		Data json.RawMessage `json:"data"`
	}
	if raw || json.Unmarshal(message, &frame) != nil {
		fmt.Printf("%s\n", message)
		return
	}

	switch frame.Type {
	case "trigger":
		fmt.Printf("[TRIGGER] %s\n", frame.Ts)
	case "error":
		fmt.Printf("[ERROR] %s %s\n", frame.Ts, frame.Data)
	default:
		var pretty map[string]any
		_ = json.Unmarshal(message, &pretty)
		out, _ := json.MarshalIndent(pretty, "", "  ")
		fmt.Printf("[%s]\n%s\n", frame.Type, out)
	}
}
