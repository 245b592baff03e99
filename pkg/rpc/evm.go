package rpc

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"github.com/openzeppelin-fork/monitor-go/pkg/chain"
	"github.com/openzeppelin-fork/monitor-go/pkg/chain/evmchain"
	"github.com/openzeppelin-fork/monitor-go/pkg/model"
	"github.com/openzeppelin-fork/monitor-go/pkg/secret"
)

// EVMClient implements Client and EVMExtras over go-ethereum's ethclient,
// with a weighted-endpoint retry/failover pool in front of every call.
type EVMClient struct {
	networkID string
	pool      *Pool
	logger    *zap.Logger

	conns map[string]*ethclient.Client
}

// NewEVMClient resolves the network's endpoints and builds a pooled client.
// Connections are dialed lazily per endpoint URL and cached.
func NewEVMClient(ctx context.Context, logger *zap.Logger, network model.Network, resolver secret.Resolver) (*EVMClient, error) {
	policy := network.RetryPolicy
	if policy.MaxRetries == 0 && policy.InitialBackoffMS == 0 {
		policy = model.DefaultRetryPolicy()
	}
	pool, err := NewPool(ctx, logger, network.Endpoints, policy, resolver)
	if err != nil {
		return nil, err
	}
	return &EVMClient{
		networkID: network.ID,
		pool:      pool,
		logger:    logger,
		conns:     make(map[string]*ethclient.Client),
	}, nil
}

func (c *EVMClient) NetworkID() string      { return c.networkID }
func (c *EVMClient) ChainKind() chain.Kind  { return chain.KindEVM }

func (c *EVMClient) Close() {
	for _, conn := range c.conns {
		conn.Close()
	}
}

// connFor dials (or reuses) the ethclient for a resolved endpoint url.
func (c *EVMClient) connFor(ctx context.Context, url string) (*ethclient.Client, error) {
	if conn, ok := c.conns[url]; ok {
		return conn, nil
	}
	rc, err := gethrpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: dialing %s: %v", ErrRpc, url, err)
	}
	conn := ethclient.NewClient(rc)
	c.conns[url] = conn
	return conn, nil
}

func classifyEVMErr(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	return wrapRPC(ctx, err)
}

func (c *EVMClient) LatestBlockNumber(ctx context.Context) (uint64, error) {
	var result uint64
	err := c.pool.Do(ctx, func(ctx context.Context, url string) error {
		conn, err := c.connFor(ctx, url)
		if err != nil {
			return err
		}
		n, err := conn.BlockNumber(ctx)
		if err != nil {
			return classifyEVMErr(ctx, err)
		}
		result = n
		return nil
	})
	return result, err
}

func (c *EVMClient) GetBlocks(ctx context.Context, from uint64, to *uint64) ([]chain.Block, error) {
	end := from
	if to != nil {
		end = *to
	}
	if end < from {
		return nil, fmt.Errorf("%w: to (%d) precedes from (%d)", ErrInvalidInput, end, from)
	}
	blocks := make([]chain.Block, 0, end-from+1)
	for n := from; n <= end; n++ {
		b, err := c.getBlock(ctx, n)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}
	return blocks, nil
}

func (c *EVMClient) getBlock(ctx context.Context, number uint64) (*evmchain.Block, error) {
	var block *gethtypes.Block
	err := c.pool.Do(ctx, func(ctx context.Context, url string) error {
		conn, err := c.connFor(ctx, url)
		if err != nil {
			return err
		}
		b, err := conn.BlockByNumber(ctx, new(big.Int).SetUint64(number))
		if err != nil {
			if err.Error() == "not found" {
				return fmt.Errorf("%w: block %d not yet available", ErrBlockNotYetAvailable, number)
			}
			return classifyEVMErr(ctx, err)
		}
		block = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return evmchain.NewBlock(block, c.receiptFor), nil
}

func (c *EVMClient) receiptFor(ctx context.Context, hash common.Hash) (*gethtypes.Receipt, error) {
	var receipt *gethtypes.Receipt
	err := c.pool.Do(ctx, func(ctx context.Context, url string) error {
		conn, err := c.connFor(ctx, url)
		if err != nil {
			return err
		}
		r, err := conn.TransactionReceipt(ctx, hash)
		if err != nil {
			return classifyEVMErr(ctx, err)
		}
		receipt = r
		return nil
	})
	return receipt, err
}

func (c *EVMClient) GetTransactionReceipt(ctx context.Context, hash string) (EVMReceipt, error) {
	receipt, err := c.receiptFor(ctx, common.HexToHash(hash))
	if err != nil {
		return EVMReceipt{}, err
	}
	return toEVMReceipt(receipt), nil
}

func (c *EVMClient) GetLogsForBlocks(ctx context.Context, from, to uint64, addresses []string) ([]EVMLog, error) {
	addrs := make([]common.Address, len(addresses))
	for i, a := range addresses {
		addrs[i] = common.HexToAddress(a)
	}
	var logs []gethtypes.Log
	err := c.pool.Do(ctx, func(ctx context.Context, url string) error {
		conn, err := c.connFor(ctx, url)
		if err != nil {
			return err
		}
		q := ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(from),
			ToBlock:   new(big.Int).SetUint64(to),
			Addresses: addrs,
		}
		l, err := conn.FilterLogs(ctx, q)
		if err != nil {
			return classifyEVMErr(ctx, err)
		}
		logs = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]EVMLog, len(logs))
	for i, l := range logs {
		out[i] = toEVMLog(l)
	}
	return out, nil
}

func toEVMLog(l gethtypes.Log) EVMLog {
	topics := make([]string, len(l.Topics))
	for i, t := range l.Topics {
		topics[i] = t.Hex()
	}
	return EVMLog{
		Address:     l.Address.Hex(),
		Topics:      topics,
		Data:        l.Data,
		TxHash:      l.TxHash.Hex(),
		BlockNumber: l.BlockNumber,
		Index:       l.Index,
		Removed:     l.Removed,
	}
}

func toEVMReceipt(r *gethtypes.Receipt) EVMReceipt {
	logs := make([]EVMLog, len(r.Logs))
	for i, l := range r.Logs {
		logs[i] = toEVMLog(*l)
	}
	return EVMReceipt{
		TxHash:      r.TxHash.Hex(),
		Status:      r.Status,
		GasUsed:     r.GasUsed,
		BlockNumber: r.BlockNumber.Uint64(),
		Logs:        logs,
	}
}
