// internal/journal/journal.go
package journal

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/PietroScorza/copytrade-bot/internal/events"
	"github.com/PietroScorza/copytrade-bot/internal/types"
)

const flushInterval = 5 * time.Second

var csvHeader = []string{
	"timestamp", "event", "correlation_id", "token", "kind",
	"tier", "quantity", "sol_amount", "sell_percent", "tip", "bundle_id", "reason",
}

// Journal appends every decided, landed, and dropped action to a CSV file so
// a session can be reconstructed after the fact. Records are buffered and
// flushed periodically; Close flushes the remainder.
type Journal struct {
	mu     sync.Mutex
	writer *csv.Writer
	file   *os.File
	ticker *time.Ticker
	done   chan struct{}
	logger *zap.Logger

	subs []events.Subscription
}

// New opens (or creates) the journal file in append mode, writing the header
// only for a fresh file.
func New(path string, logger *zap.Logger) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal file: %w", err)
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat journal file: %w", err)
	}

	j := &Journal{
		writer: csv.NewWriter(file),
		file:   file,
		ticker: time.NewTicker(flushInterval),
		done:   make(chan struct{}),
		logger: logger.Named("journal"),
	}

	if stat.Size() == 0 {
		if err := j.writer.Write(csvHeader); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write journal header: %w", err)
		}
		j.writer.Flush()
	}

	go j.periodicFlush()
	return j, nil
}

// Attach subscribes the journal to the pipeline events worth keeping.
func (j *Journal) Attach(bus *events.Bus) {
	j.subs = append(j.subs,
		bus.SubscribeFunc(events.ActionDecided, j.onActionDecided),
		bus.SubscribeFunc(events.ActionDropped, j.onActionDropped),
		bus.SubscribeFunc(events.BundleAccepted, j.onBundleAccepted),
		bus.SubscribeFunc(events.BundleRejected, j.onBundleRejected),
	)
}

func (j *Journal) onActionDecided(_ context.Context, e events.Event) error {
	ev, ok := e.(*events.ActionDecidedEvent)
	if !ok {
		return fmt.Errorf("unexpected event payload for %s", e.Type())
	}
	return j.writeAction("decided", &ev.Action, "", "")
}

func (j *Journal) onActionDropped(_ context.Context, e events.Event) error {
	ev, ok := e.(*events.ActionDroppedEvent)
	if !ok {
		return fmt.Errorf("unexpected event payload for %s", e.Type())
	}
	return j.writeAction("dropped", &ev.Action, "", ev.Reason)
}

func (j *Journal) onBundleAccepted(_ context.Context, e events.Event) error {
	ev, ok := e.(*events.BundleAcceptedEvent)
	if !ok {
		return fmt.Errorf("unexpected event payload for %s", e.Type())
	}
	for i := range ev.Actions {
		if err := j.writeAction("landed", &ev.Actions[i], ev.BundleID, ""); err != nil {
			return err
		}
	}
	return nil
}

func (j *Journal) onBundleRejected(_ context.Context, e events.Event) error {
	ev, ok := e.(*events.BundleRejectedEvent)
	if !ok {
		return fmt.Errorf("unexpected event payload for %s", e.Type())
	}
	for i := range ev.Actions {
		if err := j.writeAction("rejected", &ev.Actions[i], "", ev.Reason); err != nil {
			return err
		}
	}
	return nil
}

func (j *Journal) writeAction(event string, a *types.TradeAction, bundleID, reason string) error {
	record := []string{
		time.Now().UTC().Format(time.RFC3339Nano),
		event,
		a.CorrelationID,
		a.TokenMint.String(),
		a.Kind.String(),
		strconv.Itoa(a.TierIndex),
		strconv.FormatUint(a.Quantity, 10),
		strconv.FormatUint(a.SolAmount, 10),
		strconv.FormatFloat(a.SellPercent, 'f', 2, 64),
		a.Tip.String(),
		bundleID,
		reason,
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.writer.Write(record); err != nil {
		return fmt.Errorf("failed to write journal record: %w", err)
	}
	return nil
}

// Flush forces buffered records to disk.
func (j *Journal) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.writer.Flush()
	if err := j.writer.Error(); err != nil {
		return fmt.Errorf("journal writer error: %w", err)
	}
	if err := j.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync journal file: %w", err)
	}
	return nil
}

func (j *Journal) periodicFlush() {
	for {
		select {
		case <-j.ticker.C:
			if err := j.Flush(); err != nil {
				j.logger.Error("periodic journal flush failed", zap.Error(err))
			}
		case <-j.done:
			return
		}
	}
}

// Close unsubscribes from the bus and flushes remaining records.
func (j *Journal) Close() error {
	for _, s := range j.subs {
		s.Unsubscribe()
	}
	close(j.done)
	j.ticker.Stop()

	j.mu.Lock()
	defer j.mu.Unlock()

	j.writer.Flush()
	if err := j.writer.Error(); err != nil {
		return fmt.Errorf("journal writer error on close: %w", err)
	}
	if err := j.file.Close(); err != nil {
		return fmt.Errorf("failed to close journal file: %w", err)
	}
	return nil
}
