package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ernie/fortress-ops/internal/domain"
	"github.com/ernie/fortress-ops/internal/storage"
)

const (
	chatFlushInterval = 10 * time.Second
	chatBatchLimit    = 50
)

// ChatLogger archives chat events into the database in batches.
type ChatLogger struct {
	store *storage.Store

	mu      sync.Mutex
	pending []storage.ChatMessage

	done chan struct{}
	wg   sync.WaitGroup
}

// NewChatLogger creates the chat archive subscriber
func NewChatLogger(store *storage.Store) *ChatLogger {
	return &ChatLogger{store: store, done: make(chan struct{})}
}

// Start launches the periodic flush loop
func (c *ChatLogger) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(chatFlushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-c.done:
				c.flush(ctx)
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.flush(ctx)
			}
		}
	}()
}

// Stop flushes what is buffered and stops the loop
func (c *ChatLogger) Stop() {
	close(c.done)
	c.wg.Wait()
}

// Handle is the broker subscriber entry point
func (c *ChatLogger) Handle(event domain.Event) {
	if event.Kind != domain.EventChat {
		return
	}

	c.mu.Lock()
	c.pending = append(c.pending, storage.ChatMessage{
		Server:  event.Server,
		SteamID: event.Chat.From.SteamID,
		Name:    event.Chat.From.Name,
		Message: event.Chat.Text,
		SaidAt:  event.Timestamp,
	})
	full := len(c.pending) >= chatBatchLimit
	c.mu.Unlock()

	if full {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c.flush(ctx)
	}
}

func (c *ChatLogger) flush(ctx context.Context) {
	c.mu.Lock()
	batch := c.pending
	c.pending = nil
	c.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	if err := c.store.InsertChatMessages(ctx, batch); err != nil {
		log.Error().Err(err).Int("messages", len(batch)).Msg("Chat archive flush failed")
		// Put the batch back so the next flush retries it.
		c.mu.Lock()
		c.pending = append(batch, c.pending...)
		c.mu.Unlock()
	}
}
