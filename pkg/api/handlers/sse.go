package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/kubestellar/console-assistant/pkg/assistant"
)

const sseBufferSize = 64

// writeSSEEvent writes one SSE event to the buffered writer and flushes.
func writeSSEEvent(w *bufio.Writer, eventName string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[sse] marshal error: %v", err)
		return nil
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventName, jsonData); err != nil {
		return err
	}
	return w.Flush()
}

type refreshOutcome struct {
	result assistant.DiscoveryResult
	err    error
}

// RefreshStream re-runs discovery and streams a "backend" event for each
// backend as soon as it is discovered, followed by a "done" event carrying
// the summary, or an "error" event.
func (h *AssistantHandler) RefreshStream(c *fiber.Ctx) error {
	if h.refresh == nil {
		return fiber.NewError(fiber.StatusNotImplemented, "refresh is not configured")
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		// backends already known are replaced by new values when rediscovered
		known := make(map[*assistant.Backend]bool)
		for _, b := range h.session.State().Backends {
			known[b] = true
		}

		events := make(chan assistant.State, sseBufferSize)
		unsubscribe := h.session.Subscribe(assistant.StateObserverFunc(func(st assistant.State) {
			select {
			case events <- st:
			default:
			}
		}))
		defer unsubscribe()

		done := make(chan refreshOutcome, 1)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
			defer cancel()
			result, err := h.refresh(ctx)
			done <- refreshOutcome{result: result, err: err}
		}()

		emit := func(st assistant.State) {
			for _, b := range st.Backends {
				if known[b] {
					continue
				}
				known[b] = true
				if err := writeSSEEvent(w, "backend", newBackendResponse(b)); err != nil {
					log.Printf("[sse] client went away: %v", err)
				}
			}
		}

		for {
			select {
			case st := <-events:
				emit(st)
			case out := <-done:
				for drained := false; !drained; {
					select {
					case st := <-events:
						emit(st)
					default:
						drained = true
					}
				}
				if out.err != nil {
					writeSSEEvent(w, "error", fiber.Map{"error": out.err.Error()})
					return
				}
				writeSSEEvent(w, "done", newRefreshResponse(out.result, h.session.State()))
				return
			}
		}
	})
	return nil
}
