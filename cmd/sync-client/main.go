package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

type AnyEvent map[string]any

func main() {
	url := flag.String("url", "ws://127.0.0.1:8080/ws", "websocket event stream url")
	token := flag.String("token", os.Getenv("STACNAV_SESSION_TOKEN"), "session token to follow an existing session")
	pretty := flag.Bool("pretty", true, "pretty print JSON events")
	flag.Parse()

	log := logrus.WithField("component", "sync-client")
	for {
		if err := run(*url, *token, *pretty, log); err != nil {
			log.WithError(err).Warn("disconnected")
		}
		time.Sleep(1 * time.Second) // auto reconnect
	}
}

func run(url, token string, pretty bool, log logrus.FieldLogger) error {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	ws, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer ws.Close()

	entry := log.WithField("url", url)
	if t := resp.Header.Get("X-Session-Token"); t != "" {
		// a fresh session; reuse the token to reconnect to it
		entry = entry.WithField("token", t)
	}
	entry.Info("connected")

	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			return err
		}

		if !pretty {
			fmt.Println(string(msg))
			continue
		}

		var obj AnyEvent
		if err := json.Unmarshal(msg, &obj); err != nil {
			// not JSON? print raw
			fmt.Println(string(msg))
			continue
		}

		b, _ := json.MarshalIndent(obj, "", "  ")
		fmt.Println(string(b))
	}
}
