package filter

import (
	"context"
	"math/big"
	"strings"
	"testing"

	gethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/trie"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openzeppelin-fork/monitor-go/pkg/chain"
	"github.com/openzeppelin-fork/monitor-go/pkg/chain/evmchain"
	"github.com/openzeppelin-fork/monitor-go/pkg/model"
)

const erc20ABI = `[
	{"type":"function","name":"transfer","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}]},
	{"type":"event","name":"Transfer","anonymous":false,"inputs":[
		{"name":"from","type":"address","indexed":true},
		{"name":"to","type":"address","indexed":true},
		{"name":"value","type":"uint256","indexed":false}
	]}
]`

func buildEVMTestBlock(t *testing.T, contract common.Address, to common.Address, amount *big.Int,
	from common.Address, eventTo common.Address, value *big.Int) (*evmchain.Block, gethabi.ABI) {
	t.Helper()

	parsed, err := gethabi.JSON(strings.NewReader(erc20ABI))
	require.NoError(t, err)

	data, err := parsed.Pack("transfer", to, amount)
	require.NoError(t, err)

	tx := gethtypes.NewTx(&gethtypes.LegacyTx{
		To:   &contract,
		Data: data,
	})

	header := &gethtypes.Header{Number: big.NewInt(100)}
	body := &gethtypes.Body{Transactions: gethtypes.Transactions{tx}}
	raw := gethtypes.NewBlock(header, body, nil, trie.NewStackTrie(nil))

	evt := parsed.Events["Transfer"]
	nonIndexed, err := evt.Inputs.NonIndexed().Pack(value)
	require.NoError(t, err)

	log := gethtypes.Log{
		Address: contract,
		Topics: []common.Hash{
			evt.ID,
			common.BytesToHash(common.LeftPadBytes(from.Bytes(), 32)),
			common.BytesToHash(common.LeftPadBytes(eventTo.Bytes(), 32)),
		},
		Data:   nonIndexed,
		TxHash: tx.Hash(),
	}

	block := evmchain.NewBlock(raw, nil)
	block.Logs = []gethtypes.Log{log}
	return block, parsed
}

func TestFilterEVMBlock_MatchesFunctionAndEvent(t *testing.T) {
	contract := common.HexToAddress("0x1111111111111111111111111111111111111111")
	from := common.HexToAddress("0x2222222222222222222222222222222222222222")
	to := common.HexToAddress("0x3333333333333333333333333333333333333333")

	block, _ := buildEVMTestBlock(t, contract, to, big.NewInt(1000), from, to, big.NewInt(500))

	monitor := model.Monitor{
		Name:      "mon1",
		Addresses: []model.MonitorAddress{{Address: contract.Hex(), ContractSpec: erc20ABI}},
		MatchConditions: model.MatchConditions{
			Functions: []model.FunctionCondition{{Signature: "transfer(address,uint256)", Expression: "amount > 100"}},
			Events:    []model.EventCondition{{Signature: "Transfer(address,address,uint256)", Expression: "value > 100"}},
		},
	}
	network := model.Network{ID: "evm-net", Kind: chain.KindEVM}

	engine := New(zap.NewNop())
	matches, err := engine.FilterBlock(context.Background(), nil, network, block, []model.Monitor{monitor}, nil)
	require.NoError(t, err)
	require.Len(t, matches, 1)

	m := matches[0]
	assert.Equal(t, "mon1", m.MonitorName())
	assert.Equal(t, "transfer(address,uint256)", m.TemplateVars()["functions.0.signature"])
	assert.Equal(t, "Transfer(address,address,uint256)", m.TemplateVars()["events.0.signature"])
}

func TestFilterEVMBlock_NoMatchWhenAddressNotMonitored(t *testing.T) {
	contract := common.HexToAddress("0x1111111111111111111111111111111111111111")
	other := common.HexToAddress("0x9999999999999999999999999999999999999999")
	from := common.HexToAddress("0x2222222222222222222222222222222222222222")
	to := common.HexToAddress("0x3333333333333333333333333333333333333333")

	block, _ := buildEVMTestBlock(t, contract, to, big.NewInt(1000), from, to, big.NewInt(500))

	monitor := model.Monitor{
		Name:      "mon1",
		Addresses: []model.MonitorAddress{{Address: other.Hex(), ContractSpec: erc20ABI}},
		MatchConditions: model.MatchConditions{
			Events: []model.EventCondition{{Signature: "Transfer(address,address,uint256)"}},
		},
	}
	network := model.Network{ID: "evm-net", Kind: chain.KindEVM}

	engine := New(zap.NewNop())
	matches, err := engine.FilterBlock(context.Background(), nil, network, block, []model.Monitor{monitor}, nil)
	require.NoError(t, err)
	assert.Empty(t, matches)
}
