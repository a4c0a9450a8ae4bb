package main

import (
	"context"
	"fmt"
	"io"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/xiaot623/dealroom/internal/domain"
	"github.com/xiaot623/dealroom/internal/integrity"
)

func newWatchCmd(client func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <session-id>",
		Short: "Stream the events of a negotiation",
		Long: `Print the messages recorded so far, then follow the session until it
completes or fails.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return watchSession(cmd.Context(), client(), args[0], cmd.OutOrStdout())
		},
	}
}

func watchSession(ctx context.Context, c *Client, sessionID string, out io.Writer) error {
	conn, err := c.Watch(ctx, sessionID)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	w := &watcher{out: out, seen: make(map[string]bool)}
	for {
		var event domain.SessionEvent
		if err := conn.ReadJSON(&event); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read event: %w", err)
		}
		if w.handle(event) {
			return nil
		}
	}
}

// watcher prints session events. Messages already printed from the
// snapshot are skipped when their live event arrives.
type watcher struct {
	out  io.Writer
	seen map[string]bool
}

// handle prints event and reports whether the session has ended.
func (w *watcher) handle(event domain.SessionEvent) bool {
	switch event.Type {
	case domain.SessionEventSnapshot:
		if event.Session == nil {
			return false
		}
		fmt.Fprintf(w.out, "watching %s (%s)\n", event.Session.SessionID, event.Session.Status)
		for _, m := range event.Session.Messages {
			w.print(m)
		}
		if event.Session.Status.Terminal() {
			fmt.Fprintf(w.out, "%s: final price %s\n", event.Session.Status, formatPrice(event.Session.FinalPrice))
			return true
		}
	case domain.SessionEventMessage:
		w.print(event.Message)
	case domain.SessionEventCompleted:
		fmt.Fprintf(w.out, "completed: final price %s\n", formatPrice(event.FinalPrice))
		return true
	case domain.SessionEventFailed:
		fmt.Fprintf(w.out, "failed: %s\n", event.Reason)
		return true
	}
	return false
}

func (w *watcher) print(m *domain.SignedMessage) {
	if m == nil {
		return
	}
	key := m.Hash
	if key == "" {
		h, err := integrity.ContentHash(m)
		if err == nil {
			key = h
		}
	}
	if key != "" {
		if w.seen[key] {
			return
		}
		w.seen[key] = true
	}
	fmt.Fprintln(w.out, formatMessage(m))
}
