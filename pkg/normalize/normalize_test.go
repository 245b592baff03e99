package normalize_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openzeppelin-fork/monitor-go/pkg/normalize"
)

func TestSameAddress(t *testing.T) {
	assert.True(t, normalize.SameAddress("0xABC123", "abc123"))
	assert.True(t, normalize.SameAddress(" 0xabc123 ", "0XABC123"))
	assert.False(t, normalize.SameAddress("0xabc123", "0xabc124"))
}

func TestAddress_Idempotent(t *testing.T) {
	once := normalize.Address("0xABC123")
	twice := normalize.Address(once)
	assert.Equal(t, once, twice)
}

func TestSameSignature(t *testing.T) {
	assert.True(t, normalize.SameSignature("Transfer(address,uint256)", "Transfer(Address,Uint256)"))
	assert.True(t, normalize.SameSignature("Transfer(address, uint256)", "Transfer(address,uint256)"))
	assert.False(t, normalize.SameSignature("transfer(address,uint256)", "Transfer(address,uint256)"),
		"function name comparison is case-sensitive")
	assert.False(t, normalize.SameSignature("Transfer(address)", "Transfer(address,uint256)"),
		"parameter counts must match exactly")
}

func TestSignature_NestedTuples(t *testing.T) {
	sig := normalize.Signature("Swap((uint256,address)[],bool)")
	assert.Equal(t, "Swap((uint256,address)[],bool)", sig)
}

func TestSignature_Idempotent(t *testing.T) {
	once := normalize.Signature("Transfer(Address,Uint256)")
	twice := normalize.Signature(once)
	assert.Equal(t, once, twice)
}
