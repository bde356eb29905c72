// Package relay delivers signed transactions to the cluster, either as a Jito
// bundle or one by one over RPC.
package relay

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"ore-autominer/internal/solana"
)

var ErrBundleRejected = errors.New("bundle rejected")

// Sender submits transactions that must land in order. The returned id is the
// bundle id for Jito and the first signature for RPC.
type Sender interface {
	Send(ctx context.Context, txs []*solana.Transaction) (string, error)
}

type caller interface {
	Call(ctx context.Context, method string, params []any, result any) error
}

// JitoSender speaks the block engine's bundle JSON-RPC.
type JitoSender struct {
	rpc caller
}

// NewJitoSender targets baseURL's bundle endpoint. Retries are left to the
// caller so each attempt can be checked against the round deadline.
func NewJitoSender(baseURL string, opts ...solana.ClientOption) *JitoSender {
	endpoint := strings.TrimRight(baseURL, "/") + "/api/v1/bundles"
	opts = append([]solana.ClientOption{solana.WithMaxRetries(0)}, opts...)
	return &JitoSender{rpc: solana.NewRPCClient(endpoint, opts...)}
}

func (s *JitoSender) Send(ctx context.Context, txs []*solana.Transaction) (string, error) {
	if len(txs) == 0 {
		return "", fmt.Errorf("%w: empty bundle", ErrBundleRejected)
	}
	encoded := make([]string, 0, len(txs))
	for _, tx := range txs {
		raw, err := tx.Serialize()
		if err != nil {
			return "", err
		}
		encoded = append(encoded, base64.StdEncoding.EncodeToString(raw))
	}
	var bundleID string
	err := s.rpc.Call(ctx, "sendBundle", []any{encoded, map[string]any{"encoding": "base64"}}, &bundleID)
	var rpcErr *solana.RPCError
	if errors.As(err, &rpcErr) {
		return "", fmt.Errorf("%w: %s", ErrBundleRejected, rpcErr.Message)
	}
	if err != nil {
		return "", err
	}
	return bundleID, nil
}

type BundleStatus struct {
	BundleID           string   `json:"bundle_id"`
	Transactions       []string `json:"transactions"`
	Slot               uint64   `json:"slot"`
	ConfirmationStatus string   `json:"confirmation_status"`
}

// Statuses returns the landed status of each bundle; unknown ones are nil.
func (s *JitoSender) Statuses(ctx context.Context, bundleIDs ...string) ([]*BundleStatus, error) {
	var out struct {
		Value []*BundleStatus `json:"value"`
	}
	if err := s.rpc.Call(ctx, "getBundleStatuses", []any{bundleIDs}, &out); err != nil {
		return nil, err
	}
	return out.Value, nil
}

type transactionSender interface {
	SendTransaction(ctx context.Context, tx *solana.Transaction) (string, error)
}

// RPCSender sends each transaction through sendTransaction in order.
type RPCSender struct {
	rpc transactionSender
}

func NewRPCSender(rpc transactionSender) *RPCSender {
	return &RPCSender{rpc: rpc}
}

func (s *RPCSender) Send(ctx context.Context, txs []*solana.Transaction) (string, error) {
	var first string
	for i, tx := range txs {
		sig, err := s.rpc.SendTransaction(ctx, tx)
		var rpcErr *solana.RPCError
		if errors.As(err, &rpcErr) {
			return "", fmt.Errorf("%w: tx %d: %s", ErrBundleRejected, i, rpcErr.Message)
		}
		if err != nil {
			return "", fmt.Errorf("send tx %d: %w", i, err)
		}
		if i == 0 {
			first = sig
		}
	}
	return first, nil
}
