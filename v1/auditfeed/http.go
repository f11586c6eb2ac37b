package auditfeed

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
)

// watchKey derives the feed key from the request's tenant, entity_type and
// entity_id query parameters. The tenant parameter is mandatory: the key is
// tenant-scoped, so a caller can only ever tail its own records.
func watchKey(r *http.Request) (string, error) {
	tenantID := r.URL.Query().Get("tenant")
	entityType := r.URL.Query().Get("entity_type")
	if tenantID == "" || entityType == "" {
		return "", fmt.Errorf("auditfeed: missing tenant or entity_type")
	}
	entityID, err := strconv.ParseInt(r.URL.Query().Get("entity_id"), 10, 64)
	if err != nil {
		return "", fmt.Errorf("auditfeed: bad entity_id: %w", err)
	}
	return EntityKey(tenantID, entityType, entityID), nil
}

// SSEHandler tails an entity's audit records over Server-Sent Events.
func SSEHandler(feed Feed) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, err := watchKey(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		ctx, cancel := context.WithCancel(r.Context())
		ch, err := feed.Watch(ctx, key)
		if err != nil {
			cancel()
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		defer func() {
			cancel()
			_ = feed.Unwatch(context.Background(), key, ch)
		}()
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "stream unsupported", http.StatusInternalServerError)
			return
		}
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", msg); err != nil {
					return
				}
				flusher.Flush()
			case <-ctx.Done():
				return
			}
		}
	}
}

var upgrader = websocket.Upgrader{}

// WebSocketHandler tails an entity's audit records over WebSocket.
func WebSocketHandler(feed Feed) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, err := watchKey(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		ctx, cancel := context.WithCancel(r.Context())
		ch, err := feed.Watch(ctx, key)
		if err != nil {
			cancel()
			return
		}
		defer func() {
			cancel()
			_ = feed.Unwatch(context.Background(), key, ch)
		}()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}
}
