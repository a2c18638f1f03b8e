// Package gaprecovery implements spec.md §4.8's GapRecovery: when
// StreamClient reports a DowntimeGap, this package performs a bounded
// historical backfill over the Solana RPC API for the venue programs
// this core tracks, rate-limited so the backfill never overwhelms the
// RPC provider it shares with live traffic.
//
// Grounded on nick199910-SolRoute/pkg/sol/rpc_wrapper.go's
// rate-limiter-wrapped *rpc.Client methods
// (pkg/sol/rate_limiter.go's RateLimiter over golang.org/x/time/rate)
// generalized from "every outbound RPC call" to just the two calls a
// backfill needs: listing historical signatures and fetching a
// transaction's full body.
package gaprecovery

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"golang.org/x/time/rate"

	"github.com/pumpfeed/ingest-core/internal/errs"
)

// Client wraps a solana-go RPC client with the rate limiter every
// outbound call in this package goes through.
type Client struct {
	rpcClient *rpc.Client
	limiter   *rate.Limiter
}

// NewClient builds a Client against endpoint, limited to
// requestsPerSecond outbound RPC calls (matching
// pkg/sol/rate_limiter.go's NewRateLimiter(requestsPerSecond) shape:
// limit and burst both set to the same value).
func NewClient(endpoint string, requestsPerSecond int) *Client {
	return &Client{
		rpcClient: rpc.New(endpoint),
		limiter:   rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
	}
}

// signaturesBefore lists up to limit signatures for programID older
// than (and excluding) before, newest first — one page of the
// backward-paging walk Recover performs.
func (c *Client) signaturesBefore(ctx context.Context, programID solana.PublicKey, before solana.Signature, limit int) ([]*rpc.TransactionSignature, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errs.Wrap(errs.KindTransportTransient, "rate limiter wait", err)
	}
	opts := &rpc.GetSignaturesForAddressOpts{
		Limit:      &limit,
		Commitment: rpc.CommitmentConfirmed,
	}
	if before != (solana.Signature{}) {
		opts.Before = before
	}
	sigs, err := c.rpcClient.GetSignaturesForAddressWithOpts(ctx, programID, opts)
	if err != nil {
		return nil, errs.Wrap(errs.KindTransportTransient, "get signatures for address", err)
	}
	return sigs, nil
}

// transaction fetches one transaction's full body (meta + message).
func (c *Client) transaction(ctx context.Context, sig solana.Signature) (*rpc.GetTransactionResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errs.Wrap(errs.KindTransportTransient, "rate limiter wait", err)
	}
	maxVersion := uint64(0)
	result, err := c.rpcClient.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil {
		return nil, errs.Wrap(errs.KindTransportTransient, "get transaction", err)
	}
	return result, nil
}

// blockTimeOrZero converts an optional on-chain block time to a
// time.Time, defaulting to the zero value when absent.
func blockTimeOrZero(t *solana.UnixTimeSeconds) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.Time()
}
