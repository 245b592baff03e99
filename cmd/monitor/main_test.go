package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/openzeppelin-fork/monitor-go/pkg/chain"
	"github.com/openzeppelin-fork/monitor-go/pkg/model"
	"github.com/openzeppelin-fork/monitor-go/pkg/secret"
)

func TestNewChainClient_UnsupportedKindErrors(t *testing.T) {
	network := model.Network{ID: "n1", Kind: chain.KindReservedCosmos}
	_, err := newChainClient(context.Background(), zap.NewNop(), network, secret.NewDefaultResolver(zap.NewNop()))
	assert.Error(t, err)
}

func TestNewChainClient_EVMBuildsPooledClient(t *testing.T) {
	network := model.Network{
		ID:   "eth",
		Kind: chain.KindEVM,
		Endpoints: []model.Endpoint{
			{URL: model.SecretSpec{Kind: model.SecretKindPlain, Value: "http://127.0.0.1:1"}, Weight: 1},
		},
	}
	client, err := newChainClient(context.Background(), zap.NewNop(), network, secret.NewDefaultResolver(zap.NewNop()))
	assert.NoError(t, err)
	assert.Equal(t, "eth", client.NetworkID())
	client.Close()
}
