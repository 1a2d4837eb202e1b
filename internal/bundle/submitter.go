// internal/bundle/submitter.go
package bundle

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/PietroScorza/copytrade-bot/internal/types"
)

// SubmitResult reports the block engine's answer for one submission attempt.
type SubmitResult struct {
	Accepted bool
	BundleID string
	Reason   string
}

// Submitter sends signed bundles to a Jito block engine over JSON-RPC.
type Submitter struct {
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
	timeout  time.Duration
	builder  *Builder
	logger   *zap.Logger
}

// SubmitterConfig carries the block-engine endpoint and submission limits.
type SubmitterConfig struct {
	// BlockEngineURL is the region base URL, e.g.
	// https://mainnet.block-engine.jito.wtf
	BlockEngineURL string
	// SubmitTimeout bounds each submission attempt end to end.
	SubmitTimeout time.Duration
	// RequestsPerSecond throttles calls so the engine does not rate-limit us
	// server side.
	RequestsPerSecond float64
}

func NewSubmitter(cfg SubmitterConfig, builder *Builder, logger *zap.Logger) *Submitter {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	timeout := cfg.SubmitTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Submitter{
		endpoint: cfg.BlockEngineURL + "/api/v1/bundles",
		client:   &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(rate.Limit(rps), 1),
		timeout:  timeout,
		builder:  builder,
		logger:   logger.Named("submitter"),
	}
}

// Submit sends the bundle once within the submission deadline. A failed
// normal bundle is abandoned: the market has moved and a blind retry would
// execute a stale decision. A failed emergency bundle is rebuilt once with a
// fresh blockhash and a boosted tip; if the tip cap is already exhausted the
// exit is dropped and reported loudly.
func (s *Submitter) Submit(ctx context.Context, bundle *Bundle) (*SubmitResult, error) {
	result, err := s.submitOnce(ctx, bundle)
	if err == nil && result.Accepted {
		return result, nil
	}

	if bundle.TipLevel != types.TipEmergency {
		if err != nil {
			return nil, err
		}
		s.logger.Warn("bundle rejected, abandoning",
			zap.String("correlation_id", bundle.CorrelationID),
			zap.Stringer("mint", bundle.TokenMint),
			zap.String("reason", result.Reason))
		return result, nil
	}

	if err != nil {
		s.logger.Warn("emergency bundle submission failed, retrying with boosted tip",
			zap.String("correlation_id", bundle.CorrelationID),
			zap.Error(err))
	} else {
		s.logger.Warn("emergency bundle rejected, retrying with boosted tip",
			zap.String("correlation_id", bundle.CorrelationID),
			zap.String("reason", result.Reason))
	}

	fresh, ok, rebuildErr := s.builder.Rebuild(ctx, bundle)
	if rebuildErr != nil {
		return nil, fmt.Errorf("rebuild emergency bundle: %w", rebuildErr)
	}
	if !ok {
		s.logger.Error("tip cap exhausted, dropping emergency exit",
			zap.String("correlation_id", bundle.CorrelationID),
			zap.Stringer("mint", bundle.TokenMint),
			zap.Uint64("tip_lamports", bundle.TipLamports))
		return &SubmitResult{Accepted: false, Reason: "tip cap exhausted"}, nil
	}

	return s.submitOnce(ctx, fresh)
}

func (s *Submitter) submitOnce(ctx context.Context, bundle *Bundle) (*SubmitResult, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	encoded := make([]string, 0, len(bundle.Transactions))
	for _, tx := range bundle.Transactions {
		raw, err := tx.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("serialize transaction: %w", err)
		}
		encoded = append(encoded, base64.StdEncoding.EncodeToString(raw))
	}

	reqBody, err := json.Marshal(jsonRPCRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "sendBundle",
		Params:  []any{encoded, map[string]string{"encoding": "base64"}},
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send bundle: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &SubmitResult{
			Accepted: false,
			Reason:   fmt.Sprintf("http %d: %s", resp.StatusCode, bytes.TrimSpace(body)),
		}, nil
	}

	var rpcResp jsonRPCResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return &SubmitResult{Accepted: false, Reason: rpcResp.Error.Message}, nil
	}

	s.logger.Info("bundle accepted by block engine",
		zap.String("bundle_id", rpcResp.Result),
		zap.String("correlation_id", bundle.CorrelationID),
		zap.Stringer("mint", bundle.TokenMint),
		zap.Stringer("tip_level", bundle.TipLevel),
		zap.Uint64("tip_lamports", bundle.TipLamports),
		zap.Duration("latency", time.Since(start)))

	return &SubmitResult{Accepted: true, BundleID: rpcResp.Result}, nil
}

type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type jsonRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Result  string        `json:"result"`
	Error   *jsonRPCError `json:"error"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
