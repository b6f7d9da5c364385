// Package chain reads chain ids from EVM JSON-RPC endpoints.
package chain

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/ethclient"
)

// Reader lazily dials an RPC endpoint and reports its chain id.
type Reader struct {
	url string

	mu     sync.Mutex
	client *ethclient.Client
}

func NewReader(url string) *Reader {
	return &Reader{url: url}
}

func (r *Reader) ChainID(ctx context.Context) (int64, error) {
	c, err := r.dial(ctx)
	if err != nil {
		return 0, err
	}
	id, err := c.ChainID(ctx)
	if err != nil {
		return 0, fmt.Errorf("eth_chainId: %w", err)
	}
	if !id.IsInt64() {
		return 0, fmt.Errorf("chain id %s overflows int64", id)
	}
	return id.Int64(), nil
}

func (r *Reader) dial(ctx context.Context) (*ethclient.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client != nil {
		return r.client, nil
	}
	c, err := ethclient.DialContext(ctx, r.url)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	r.client = c
	return c, nil
}

func (r *Reader) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client != nil {
		r.client.Close()
		r.client = nil
	}
}
