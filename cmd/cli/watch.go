package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/yourusername/ytmux/internal/app"
	"github.com/yourusername/ytmux/internal/domain"
)

// websocketURL converts the server URL to its ws:// or wss:// form
func websocketURL(path string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	return u.String(), nil
}

// dial opens a websocket that is closed when ctx ends
func dial(ctx context.Context, path string) (*websocket.Conn, func(), error) {
	wsURL, err := websocketURL(path)
	if err != nil {
		return nil, nil, err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to %s: %w", wsURL, err)
	}

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	return conn, func() {
		stop()
		conn.Close()
	}, nil
}

// watchDownload renders progress for one download until its final update
func watchDownload(ctx context.Context, id string) (app.ProgressUpdate, error) {
	conn, closeConn, err := dial(ctx, "/api/v1/downloads/"+url.PathEscape(id)+"/progress")
	if err != nil {
		return app.ProgressUpdate{}, err
	}
	defer closeConn()

	bar := newProgressBar()
	for {
		var update app.ProgressUpdate
		if err := conn.ReadJSON(&update); err != nil {
			bar.finish()
			if ctx.Err() != nil {
				return update, ctx.Err()
			}
			return update, fmt.Errorf("progress stream closed: %w", err)
		}

		bar.render(update.Stage, update.Stream, update.Percent)
		if !update.Final() {
			continue
		}

		bar.finish()
		switch update.Status {
		case domain.StatusCompleted:
			fmt.Printf("Saved: %s\n", update.FilePath)
		case domain.StatusFailed:
			fmt.Printf("Failed: %s\n", update.Error)
		default:
			fmt.Println("Cancelled")
		}
		return update, nil
	}
}

// followLogs prints log entries from the server as they are written
func followLogs(ctx context.Context, category string, jsonOutput bool) error {
	conn, closeConn, err := dial(ctx, "/api/v1/logs/"+url.PathEscape(category)+"/stream")
	if err != nil {
		return err
	}
	defer closeConn()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("log stream closed: %w", err)
		}

		if jsonOutput {
			fmt.Println(string(data))
			continue
		}

		var entry struct {
			Timestamp string                 `json:"timestamp"`
			Level     string                 `json:"level"`
			Message   string                 `json:"message"`
			Fields    map[string]interface{} `json:"fields"`
		}
		if err := json.Unmarshal(data, &entry); err != nil {
			fmt.Println(string(data))
			continue
		}
		fmt.Println(formatLogLine(entry.Timestamp, entry.Level, entry.Message, entry.Fields))
	}
}
