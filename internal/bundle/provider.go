// internal/bundle/provider.go
package bundle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// RPCBlockhashProvider fetches recent blockhashes from a Solana RPC node,
// caching briefly so a burst of bundles in one decision cycle does not hammer
// the endpoint.
type RPCBlockhashProvider struct {
	client *rpc.Client

	mu        sync.Mutex
	cached    solana.Hash
	fetchedAt time.Time
}

// blockhashCacheTTL is well inside a blockhash's validity (~60s on mainnet).
const blockhashCacheTTL = 2 * time.Second

func NewRPCBlockhashProvider(rpcURL string) *RPCBlockhashProvider {
	return &RPCBlockhashProvider{client: rpc.New(rpcURL)}
}

func (p *RPCBlockhashProvider) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.cached.IsZero() && time.Since(p.fetchedAt) < blockhashCacheTTL {
		return p.cached, nil
	}

	result, err := p.client.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("failed to get latest blockhash: %w", err)
	}
	p.cached = result.Value.Blockhash
	p.fetchedAt = time.Now()
	return p.cached, nil
}
