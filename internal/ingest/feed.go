// internal/ingest/feed.go
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/websocket"
	"github.com/mr-tron/base58"
	"go.uber.org/zap"

	"github.com/PietroScorza/copytrade-bot/internal/decoder"
	"github.com/PietroScorza/copytrade-bot/internal/events"
)

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 5 * time.Second
	// pongWait bounds how long a silent connection is trusted before the
	// read loop gives up and reconnects.
	pongWait     = 60 * time.Second
	pingInterval = 20 * time.Second
)

// Config holds the feed connection settings.
type Config struct {
	// WSEndpoint is the enriched websocket RPC endpoint supporting
	// transactionSubscribe.
	WSEndpoint string
	// MonitoredWallet narrows the subscription server side.
	MonitoredWallet solana.PublicKey
	// Commitment for notifications, defaults to processed for lowest latency.
	Commitment string
}

// Feed maintains a websocket subscription for the monitored wallet's
// transactions and delivers them as raw transactions. Disconnects are
// retried with exponential backoff for as long as the context lives.
type Feed struct {
	cfg    Config
	out    chan *decoder.RawTransaction
	bus    *events.Bus
	logger *zap.Logger
}

func NewFeed(cfg Config, bus *events.Bus, logger *zap.Logger) *Feed {
	if cfg.Commitment == "" {
		cfg.Commitment = "processed"
	}
	return &Feed{
		cfg:    cfg,
		out:    make(chan *decoder.RawTransaction, 256),
		bus:    bus,
		logger: logger.Named("feed"),
	}
}

// Transactions is the channel the pipeline consumes. It is closed when Run
// returns.
func (f *Feed) Transactions() <-chan *decoder.RawTransaction {
	return f.out
}

// Run connects, subscribes, and pumps notifications until the context is
// cancelled. Each disconnect re-dials with exponential backoff; the backoff
// resets after a healthy session.
func (f *Feed) Run(ctx context.Context) error {
	defer close(f.out)

	for {
		conn, err := f.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("connect feed: %w", err)
		}

		_ = f.bus.Publish(&events.FeedConnectedEvent{
			BaseEvent: events.NewBaseEvent(events.FeedConnected),
			Endpoint:  f.cfg.WSEndpoint,
		})

		err = f.pump(ctx, conn)
		conn.Close()
		if ctx.Err() != nil {
			return nil
		}

		f.logger.Warn("feed disconnected, reconnecting", zap.Error(err))
		_ = f.bus.Publish(&events.FeedDisconnectedEvent{
			BaseEvent: events.NewBaseEvent(events.FeedDisconnected),
			Endpoint:  f.cfg.WSEndpoint,
			Err:       err,
		})
	}
}

// connect dials and subscribes, retrying with exponential backoff.
func (f *Feed) connect(ctx context.Context) (*websocket.Conn, error) {
	operation := func() (*websocket.Conn, error) {
		dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
		conn, _, err := dialer.DialContext(ctx, f.cfg.WSEndpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", f.cfg.WSEndpoint, err)
		}
		if err := f.subscribe(conn); err != nil {
			conn.Close()
			return nil, err
		}
		return conn, nil
	}

	notify := func(err error, next time.Duration) {
		f.logger.Warn("feed connection attempt failed",
			zap.Error(err),
			zap.Duration("retry_in", next))
	}

	backoffPolicy := backoff.NewExponentialBackOff()
	backoffPolicy.InitialInterval = 500 * time.Millisecond
	backoffPolicy.MaxInterval = 30 * time.Second

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoffPolicy),
		backoff.WithNotify(notify))
}

func (f *Feed) subscribe(conn *websocket.Conn) error {
	req := subscribeRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "transactionSubscribe",
		Params: []any{
			map[string]any{
				"accountInclude": []string{f.cfg.MonitoredWallet.String()},
				"failed":         false,
			},
			map[string]any{
				"commitment":                     f.cfg.Commitment,
				"encoding":                       "json",
				"transactionDetails":             "full",
				"maxSupportedTransactionVersion": 0,
			},
		},
	}

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("send subscription: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	var resp subscribeResponse
	if err := conn.ReadJSON(&resp); err != nil {
		return fmt.Errorf("read subscription ack: %w", err)
	}
	if resp.Error != nil {
		return fmt.Errorf("subscription rejected: %s", resp.Error.Message)
	}

	f.logger.Info("subscribed to transaction feed",
		zap.Stringer("wallet", f.cfg.MonitoredWallet),
		zap.Uint64("subscription_id", resp.Result))
	return nil
}

// pump reads notifications until the connection fails, keeping the link
// alive with pings.
func (f *Feed) pump(ctx context.Context, conn *websocket.Conn) error {
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	pingCtx, cancelPing := context.WithCancel(ctx)
	defer cancelPing()
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-pingCtx.Done():
				return
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		tx, err := parseNotification(payload)
		if err != nil {
			f.logger.Warn("skipping malformed feed notification", zap.Error(err))
			continue
		}
		if tx == nil {
			continue // not a transaction notification
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case f.out <- tx:
		}
	}
}

// parseNotification turns a transactionNotification payload into the raw
// transaction contract. Non-notification frames return (nil, nil).
func parseNotification(payload []byte) (*decoder.RawTransaction, error) {
	var note notification
	if err := json.Unmarshal(payload, &note); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if note.Method != "transactionNotification" {
		return nil, nil
	}

	result := note.Params.Result
	if len(result.Transaction.Transaction.Signatures) == 0 {
		return nil, fmt.Errorf("notification carries no signature")
	}

	sig, err := solana.SignatureFromBase58(result.Transaction.Transaction.Signatures[0])
	if err != nil {
		return nil, fmt.Errorf("parse signature: %w", err)
	}

	msg := result.Transaction.Transaction.Message
	keys := make([]solana.PublicKey, 0, len(msg.AccountKeys))
	for _, k := range msg.AccountKeys {
		pk, err := solana.PublicKeyFromBase58(k)
		if err != nil {
			return nil, fmt.Errorf("parse account key %q: %w", k, err)
		}
		keys = append(keys, pk)
	}

	instructions := make([]decoder.RawInstruction, 0, len(msg.Instructions))
	for _, ix := range msg.Instructions {
		data, err := base58.Decode(ix.Data)
		if err != nil {
			return nil, fmt.Errorf("decode instruction data: %w", err)
		}
		accounts := make([]uint16, len(ix.Accounts))
		for i, a := range ix.Accounts {
			accounts[i] = uint16(a)
		}
		instructions = append(instructions, decoder.RawInstruction{
			ProgramIDIndex: uint16(ix.ProgramIDIndex),
			AccountIndexes: accounts,
			Data:           data,
		})
	}

	balances := make([]decoder.TokenBalance, 0, len(result.Transaction.Meta.PostTokenBalances))
	for _, tb := range result.Transaction.Meta.PostTokenBalances {
		mint, err := solana.PublicKeyFromBase58(tb.Mint)
		if err != nil {
			return nil, fmt.Errorf("parse token balance mint: %w", err)
		}
		owner, err := solana.PublicKeyFromBase58(tb.Owner)
		if err != nil {
			return nil, fmt.Errorf("parse token balance owner: %w", err)
		}
		balances = append(balances, decoder.TokenBalance{
			AccountIndex: uint16(tb.AccountIndex),
			Mint:         mint,
			Owner:        owner,
		})
	}

	return &decoder.RawTransaction{
		Slot:          result.Slot,
		Signature:     sig,
		AccountKeys:   keys,
		Instructions:  instructions,
		TokenBalances: balances,
		Timestamp:     time.Now(),
	}, nil
}

type subscribeRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type subscribeResponse struct {
	Result uint64 `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type notification struct {
	Method string `json:"method"`
	Params struct {
		Result struct {
			Slot        uint64 `json:"slot"`
			Transaction struct {
				Transaction struct {
					Signatures []string `json:"signatures"`
					Message    struct {
						AccountKeys  []string `json:"accountKeys"`
						Instructions []struct {
							ProgramIDIndex int    `json:"programIdIndex"`
							Accounts       []int  `json:"accounts"`
							Data           string `json:"data"`
						} `json:"instructions"`
					} `json:"message"`
				} `json:"transaction"`
				Meta struct {
					PostTokenBalances []struct {
						AccountIndex int    `json:"accountIndex"`
						Mint         string `json:"mint"`
						Owner        string `json:"owner"`
					} `json:"postTokenBalances"`
				} `json:"meta"`
			} `json:"transaction"`
		} `json:"result"`
	} `json:"params"`
}
