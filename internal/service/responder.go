package service

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/arturoeanton/campus-market/internal/domain"
)

// AutoReplyText is what the simulated counterpart answers.
const AutoReplyText = "Thanks! I'm available — let's discuss pickup."

// Responder posts a user's chat message and schedules a simulated reply
// from the other participant after a short random delay.
type Responder struct {
	market *MarketService
	delay  func() time.Duration

	mu      sync.Mutex
	pending map[*time.Timer]struct{}
	closed  bool
	wg      sync.WaitGroup
}

// NewResponder creates a responder replying after 900ms to 2.1s.
func NewResponder(market *MarketService) *Responder {
	return &Responder{
		market:  market,
		delay:   func() time.Duration { return 900*time.Millisecond + rand.N(1200*time.Millisecond) },
		pending: make(map[*time.Timer]struct{}),
	}
}

// WithDelay replaces the reply delay source.
func (r *Responder) WithDelay(delay func() time.Duration) *Responder {
	r.delay = delay
	return r
}

// Send appends the user's message and schedules the reply. It returns nil
// when the chat does not exist.
func (r *Responder) Send(ctx context.Context, chatID, from, text string) (*domain.Message, error) {
	msg, err := r.market.PushMessage(ctx, chatID, from, text)
	if err != nil || msg == nil {
		return msg, err
	}

	if chat, ok := r.market.GetChat(chatID); ok {
		r.schedule(chat.ID, chat.Counterpart(from, "seller"))
	}
	return msg, nil
}

func (r *Responder) schedule(chatID, replier string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	var t *time.Timer
	r.wg.Add(1)
	t = time.AfterFunc(r.delay(), func() {
		defer r.wg.Done()

		r.mu.Lock()
		delete(r.pending, t)
		closed := r.closed
		r.mu.Unlock()
		if closed {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := r.market.PushMessage(ctx, chatID, replier, AutoReplyText); err != nil {
			slog.Warn("auto reply failed", "chat_id", chatID, "error", err)
		}
	})
	r.pending[t] = struct{}{}
}

// Close cancels pending replies and waits for running ones.
func (r *Responder) Close() {
	r.mu.Lock()
	r.closed = true
	for t := range r.pending {
		if t.Stop() {
			r.wg.Done()
		}
		delete(r.pending, t)
	}
	r.mu.Unlock()

	r.wg.Wait()
}
