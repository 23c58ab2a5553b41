package chain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"golang.org/x/time/rate"

	"binScope/internal/model"
)

// AccountReader is the account lookup used by Client.
type AccountReader interface {
	GetAccountInfoWithOpts(ctx context.Context, account solana.PublicKey, opts *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error)
}

// ClientConfig controls account reads.
type ClientConfig struct {
	Commitment   rpc.CommitmentType
	MaxRetries   int
	RetryBackoff time.Duration
	// RequestsPerSecond throttles reads; zero disables throttling.
	RequestsPerSecond float64
}

var _ AccountReader = (*rpc.Client)(nil)

// Client wraps the Solana RPC and decodes DLMM accounts.
type Client struct {
	rpcClient *rpc.Client
	reader    AccountReader
	cfg       ClientConfig
	limiter   *rate.Limiter

	mu            sync.RWMutex
	tokenPrograms map[solana.PublicKey]solana.PublicKey
}

// NewClient creates a chain client for rpcURL.
func NewClient(rpcURL string, cfg ClientConfig) *Client {
	rpcClient := rpc.New(rpcURL)
	c := newClient(rpcClient, cfg)
	c.rpcClient = rpcClient
	return c
}

func newClient(reader AccountReader, cfg ClientConfig) *Client {
	if cfg.Commitment == "" {
		cfg.Commitment = rpc.CommitmentConfirmed
	}
	c := &Client{
		reader:        reader,
		cfg:           cfg,
		tokenPrograms: make(map[solana.PublicKey]solana.PublicKey),
	}
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return c
}

// RPC exposes the underlying client for transaction submission.
func (c *Client) RPC() *rpc.Client {
	return c.rpcClient
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		_ = c.rpcClient.Close()
	}
}

// GetPool reads the current state of an lb pair.
func (c *Client) GetPool(ctx context.Context, address solana.PublicKey) (model.Pool, error) {
	account, err := c.account(ctx, address)
	if err != nil {
		return model.Pool{}, fmt.Errorf("get lb pair: %w", err)
	}
	return DecodePool(address, account.Data.GetBinary())
}

// GetPosition reads a position and the liquidity it currently holds.
func (c *Client) GetPosition(ctx context.Context, address solana.PublicKey) (model.Position, model.PositionObservation, error) {
	account, err := c.account(ctx, address)
	if err != nil {
		return model.Position{}, model.PositionObservation{}, fmt.Errorf("get position: %w", err)
	}
	return DecodePosition(address, account.Data.GetBinary())
}

// ObservePosition returns only the liquidity observation of a position.
func (c *Client) ObservePosition(ctx context.Context, address solana.PublicKey) (*model.PositionObservation, error) {
	_, obs, err := c.GetPosition(ctx, address)
	if err != nil {
		return nil, err
	}
	return &obs, nil
}

// TokenProgramOf returns the program owning mint, using an in-memory cache.
func (c *Client) TokenProgramOf(ctx context.Context, mint solana.PublicKey) (solana.PublicKey, error) {
	c.mu.RLock()
	owner, ok := c.tokenPrograms[mint]
	c.mu.RUnlock()
	if ok {
		return owner, nil
	}

	account, err := c.account(ctx, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("get mint %s: %w", mint, err)
	}
	owner = account.Owner
	if !owner.Equals(solana.TokenProgramID) && !owner.Equals(solana.Token2022ProgramID) {
		return solana.PublicKey{}, fmt.Errorf("mint %s is owned by %s, not a token program", mint, owner)
	}

	c.mu.Lock()
	c.tokenPrograms[mint] = owner
	c.mu.Unlock()

	return owner, nil
}

func (c *Client) account(ctx context.Context, address solana.PublicKey) (*rpc.Account, error) {
	var out *rpc.Account
	err := withRetry(ctx, c.cfg.MaxRetries, c.cfg.RetryBackoff, func(ctx context.Context) error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		resp, err := c.reader.GetAccountInfoWithOpts(ctx, address, &rpc.GetAccountInfoOpts{
			Encoding:   solana.EncodingBase64,
			Commitment: c.cfg.Commitment,
		})
		if err != nil {
			return err
		}
		if resp == nil || resp.Value == nil {
			return rpc.ErrNotFound
		}
		out = resp.Value
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
