// internal/engine/engine.go
package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/PietroScorza/copytrade-bot/internal/bundle"
	"github.com/PietroScorza/copytrade-bot/internal/decoder"
	"github.com/PietroScorza/copytrade-bot/internal/events"
	"github.com/PietroScorza/copytrade-bot/internal/types"
)

// submitQueueDepth bounds the per-token submit queue. Submission latency is
// a few RPC round trips; a deep backlog means stale decisions anyway.
const submitQueueDepth = 16

// Engine drives the full pipeline: decode the transaction feed, decide, and
// submit bundles. Decoding runs on a worker pool; submission runs on one
// serial queue per token so bundles for a token land in decision order while
// tokens never block each other.
type Engine struct {
	feed      <-chan *decoder.RawTransaction
	decoder   *decoder.Decoder
	decider   *Decider
	builder   *bundle.Builder
	submitter *bundle.Submitter
	bus       *events.Bus
	logger    *zap.Logger
	workers   int

	seen *signatureSet

	mu         sync.Mutex
	queues     map[solana.PublicKey]chan *bundle.Bundle
	newestSlot map[solana.PublicKey]uint64
	wg         sync.WaitGroup
}

func New(
	feed <-chan *decoder.RawTransaction,
	dec *decoder.Decoder,
	decider *Decider,
	builder *bundle.Builder,
	submitter *bundle.Submitter,
	bus *events.Bus,
	workers int,
	logger *zap.Logger,
) *Engine {
	if workers <= 0 {
		workers = 4
	}
	return &Engine{
		feed:       feed,
		decoder:    dec,
		decider:    decider,
		builder:    builder,
		submitter:  submitter,
		bus:        bus,
		logger:     logger.Named("engine"),
		workers:    workers,
		seen:       newSignatureSet(8192),
		queues:     make(map[solana.PublicKey]chan *bundle.Bundle),
		newestSlot: make(map[solana.PublicKey]uint64),
	}
}

// Run processes the feed until the context is cancelled or the feed closes.
func (e *Engine) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < e.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case tx, ok := <-e.feed:
					if !ok {
						return nil
					}
					e.process(ctx, tx)
				}
			}
		})
	}

	err := g.Wait()
	e.drainQueues()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// process runs one transaction through decode, decide, and enqueue. Failures
// are logged and skipped; one bad transaction never stalls the feed.
func (e *Engine) process(ctx context.Context, tx *decoder.RawTransaction) {
	// Feeds replay transactions on reconnect; a signature is processed once.
	if !e.seen.Add(tx.Signature) {
		e.logger.Debug("skipping replayed transaction", zap.Stringer("signature", tx.Signature))
		return
	}

	for _, event := range e.decoder.Decode(tx) {
		if !e.decider.Monitors(event.Trader) {
			continue
		}

		_ = e.bus.Publish(&events.TradeObservedEvent{
			BaseEvent: events.NewBaseEvent(events.TradeObserved),
			Trade:     event,
		})

		actions := e.decider.Decide(event)
		if len(actions) == 0 {
			continue
		}
		for _, a := range actions {
			_ = e.bus.Publish(&events.ActionDecidedEvent{
				BaseEvent: events.NewBaseEvent(events.ActionDecided),
				Action:    a,
			})
		}

		bundles, err := e.builder.Build(ctx, actions)
		if err != nil {
			e.logger.Error("failed to build bundles, dropping actions",
				zap.Stringer("token", event.TokenMint),
				zap.Int("actions", len(actions)),
				zap.Error(err))
			for _, a := range actions {
				e.publishDropped(a, "bundle build failed: "+err.Error())
			}
			continue
		}

		for _, b := range bundles {
			e.enqueue(ctx, b)
		}
	}
}

// enqueue hands the bundle to its token's serial submit queue, creating the
// queue on first use. Decode workers race each other between the store commit
// and this point, so a bundle whose slot precedes the newest one already
// queued for the token was decided from older state: it is dropped here,
// which keeps each token's queue monotonic in slot and means an exit can
// never reach the network behind a later exit for the same token. Enqueueing
// never blocks decoding: a full queue also drops the bundle and reports it.
func (e *Engine) enqueue(ctx context.Context, b *bundle.Bundle) {
	e.mu.Lock()
	if newest, ok := e.newestSlot[b.TokenMint]; ok && b.SlotStart < newest {
		e.mu.Unlock()
		e.logger.Warn("dropping bundle decided from older state",
			zap.Stringer("token", b.TokenMint),
			zap.String("correlation_id", b.CorrelationID),
			zap.Uint64("slot", b.SlotStart),
			zap.Uint64("newest_slot", newest))
		for _, a := range b.Actions {
			e.publishDropped(a, "superseded by newer decision")
		}
		return
	}
	e.newestSlot[b.TokenMint] = b.SlotStart
	q, ok := e.queues[b.TokenMint]
	if !ok {
		q = make(chan *bundle.Bundle, submitQueueDepth)
		e.queues[b.TokenMint] = q
		e.wg.Add(1)
		go e.submitLoop(ctx, b.TokenMint, q)
	}
	e.mu.Unlock()

	select {
	case q <- b:
	default:
		e.logger.Error("submit queue full, dropping bundle",
			zap.Stringer("token", b.TokenMint),
			zap.String("correlation_id", b.CorrelationID))
		for _, a := range b.Actions {
			e.publishDropped(a, "submit queue full")
		}
	}
}

func (e *Engine) submitLoop(ctx context.Context, mint solana.PublicKey, q chan *bundle.Bundle) {
	defer e.wg.Done()
	logger := e.logger.With(zap.Stringer("token", mint))
	for {
		select {
		case <-ctx.Done():
			e.drainQueue(q)
			return
		case b := <-q:
			result, err := e.submitter.Submit(ctx, b)
			if err != nil {
				logger.Error("bundle submission failed",
					zap.String("correlation_id", b.CorrelationID),
					zap.Error(err))
				e.publishRejected(b, err.Error())
				continue
			}
			if !result.Accepted {
				e.publishRejected(b, result.Reason)
				continue
			}
			_ = e.bus.Publish(&events.BundleAcceptedEvent{
				BaseEvent:     events.NewBaseEvent(events.BundleAccepted),
				BundleID:      result.BundleID,
				CorrelationID: b.CorrelationID,
				TokenMint:     b.TokenMint.String(),
				TipLamports:   b.TipLamports,
				Emergency:     b.TipLevel == types.TipEmergency,
				Actions:       b.Actions,
			})
		}
	}
}

func (e *Engine) publishRejected(b *bundle.Bundle, reason string) {
	_ = e.bus.Publish(&events.BundleRejectedEvent{
		BaseEvent:     events.NewBaseEvent(events.BundleRejected),
		CorrelationID: b.CorrelationID,
		TokenMint:     b.TokenMint.String(),
		Reason:        reason,
		Emergency:     b.TipLevel == types.TipEmergency,
		Actions:       b.Actions,
	})
	for _, a := range b.Actions {
		e.publishDropped(a, reason)
	}
}

func (e *Engine) publishDropped(a types.TradeAction, reason string) {
	_ = e.bus.Publish(&events.ActionDroppedEvent{
		BaseEvent: events.NewBaseEvent(events.ActionDropped),
		Action:    a,
		Reason:    reason,
	})
}

func (e *Engine) drainQueues() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.wg.Wait()
}

// drainQueue reports every bundle still queued when the loop stops; nothing
// decided disappears without a journal record.
func (e *Engine) drainQueue(q chan *bundle.Bundle) {
	for {
		select {
		case b := <-q:
			for _, a := range b.Actions {
				e.publishDropped(a, "shutting down")
			}
		default:
			return
		}
	}
}

// signatureSet is a bounded set of recently seen signatures. Once full, the
// oldest entry is evicted in insertion order.
type signatureSet struct {
	mu    sync.Mutex
	seen  map[solana.Signature]struct{}
	order []solana.Signature
	next  int
}

func newSignatureSet(capacity int) *signatureSet {
	return &signatureSet{
		seen:  make(map[solana.Signature]struct{}, capacity),
		order: make([]solana.Signature, capacity),
	}
}

// Add records the signature and reports whether it was new.
func (s *signatureSet) Add(sig solana.Signature) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[sig]; ok {
		return false
	}
	if len(s.seen) == len(s.order) {
		delete(s.seen, s.order[s.next])
	}
	s.seen[sig] = struct{}{}
	s.order[s.next] = sig
	s.next = (s.next + 1) % len(s.order)
	return true
}
