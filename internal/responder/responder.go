// Package responder bridges inbound messages to generated replies. It listens
// on the event bus, keeps a short per-sender conversation history, and sends
// whatever the orchestrator produces back through the supervisor.
package responder

import (
	"context"
	"errors"
	"sync"

	"github.com/soyeahso/autoreply/internal/domain"
	"github.com/soyeahso/autoreply/internal/events"
	"github.com/soyeahso/autoreply/internal/logging"
	"github.com/soyeahso/autoreply/internal/orchestrator"
)

// historyKeep bounds the per-conversation turn history held in memory.
const historyKeep = 20

// Generator produces a reply for a conversation.
type Generator interface {
	Generate(ctx context.Context, convo orchestrator.Conversation) (*domain.GenerationResult, error)
}

// Sender delivers an outbound message from an account.
type Sender interface {
	Send(ctx context.Context, accountID, recipient, text string, media *domain.MediaOptions) (*domain.SendResult, error)
}

// Responder turns inbound message events into outbound replies.
type Responder struct {
	gen Generator
	snd Sender
	log *logging.Logger

	mu      sync.Mutex
	history map[string][]domain.Turn
}

// New creates a responder.
func New(gen Generator, snd Sender, log *logging.Logger) *Responder {
	return &Responder{
		gen:     gen,
		snd:     snd,
		log:     log.Sub("responder"),
		history: make(map[string][]domain.Turn),
	}
}

// Run consumes message events until the channel closes or ctx is cancelled.
// Messages are answered sequentially in arrival order.
func (r *Responder) Run(ctx context.Context, ch <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.Type != events.TypeMessage || ev.Message == nil {
				continue
			}
			if ev.Message.IsGroupOrigin {
				// group chats are observed but never answered
				continue
			}
			r.respond(ctx, ev)
		}
	}
}

func (r *Responder) respond(ctx context.Context, ev events.Event) {
	msg := ev.Message
	key := ev.AccountID + "|" + msg.SenderID

	r.mu.Lock()
	turns := appendTurn(r.history[key], domain.Turn{Role: "user", Content: msg.TextSummary})
	r.history[key] = turns
	snapshot := make([]domain.Turn, len(turns))
	copy(snapshot, turns)
	r.mu.Unlock()

	res, err := r.gen.Generate(ctx, orchestrator.Conversation{
		Customer: domain.CustomerContext{Name: msg.DisplayName},
		Turns:    snapshot,
	})
	if err != nil {
		if errors.Is(err, orchestrator.ErrAllProvidersExhausted) {
			r.log.Warn().Str("account", ev.AccountID).Str("sender", msg.SenderID).
				Msg("all providers exhausted, message left unanswered")
		} else {
			r.log.Error().Err(err).Str("account", ev.AccountID).Msg("reply generation failed")
		}
		return
	}

	if _, err := r.snd.Send(ctx, ev.AccountID, msg.SenderID, res.Text, nil); err != nil {
		r.log.Error().Err(err).Str("account", ev.AccountID).Str("to", msg.SenderID).Msg("reply send failed")
		return
	}

	r.mu.Lock()
	r.history[key] = appendTurn(r.history[key], domain.Turn{Role: "assistant", Content: res.Text})
	r.mu.Unlock()

	r.log.Debug().
		Str("account", ev.AccountID).
		Str("to", msg.SenderID).
		Str("provider", res.ProviderID).
		Msg("reply delivered")
}

// History returns a copy of the stored turns for one account/sender pair.
func (r *Responder) History(accountID, senderID string) []domain.Turn {
	r.mu.Lock()
	defer r.mu.Unlock()
	turns := r.history[accountID+"|"+senderID]
	out := make([]domain.Turn, len(turns))
	copy(out, turns)
	return out
}

func appendTurn(turns []domain.Turn, t domain.Turn) []domain.Turn {
	turns = append(turns, t)
	if len(turns) > historyKeep {
		turns = turns[len(turns)-historyKeep:]
	}
	return turns
}
