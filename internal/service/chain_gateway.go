package service

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/certchain-io/certchain-api/internal/chain"
	"github.com/certchain-io/certchain-api/internal/models"
)

// chainSession is one nonce-cursor submission run.
type chainSession interface {
	Submit(ctx context.Context, call chain.IssuanceCall) (common.Hash, error)
	Close()
}

// chainGateway is the slice of the chain client the services depend on.
type chainGateway interface {
	OpenSession(ctx context.Context) (chainSession, error)
	Issue(ctx context.Context, call chain.IssuanceCall) (common.Hash, error)
	Confirm(ctx context.Context, txHash common.Hash) (models.TransactionOutcome, error)
	TotalIssued(ctx context.Context) (uint64, error)
	GetCertificate(ctx context.Context, certificateID string) (*models.ChainCertificate, error)
}

// chainClientGateway adapts *chain.Client to the gateway interface.
type chainClientGateway struct {
	client *chain.Client
}

// NewChainGateway wraps a chain client for service consumption.
func NewChainGateway(client *chain.Client) *chainClientGateway { //nolint:revive
	return &chainClientGateway{client: client}
}

func (g *chainClientGateway) OpenSession(ctx context.Context) (chainSession, error) {
	return g.client.BeginBatch(ctx)
}

func (g *chainClientGateway) Issue(ctx context.Context, call chain.IssuanceCall) (common.Hash, error) {
	return g.client.Issue(ctx, call)
}

func (g *chainClientGateway) Confirm(ctx context.Context, txHash common.Hash) (models.TransactionOutcome, error) {
	return g.client.Confirm(ctx, txHash)
}

func (g *chainClientGateway) TotalIssued(ctx context.Context) (uint64, error) {
	return g.client.TotalIssued(ctx)
}

func (g *chainClientGateway) GetCertificate(ctx context.Context, certificateID string) (*models.ChainCertificate, error) {
	return g.client.GetCertificate(ctx, certificateID)
}
