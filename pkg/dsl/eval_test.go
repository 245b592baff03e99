package dsl_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openzeppelin-fork/monitor-go/pkg/dsl"
)

func TestEvaluate_OperatorPrecedence(t *testing.T) {
	// AND binds tighter than OR: "a OR b AND c" reads as "a OR (b AND c)".
	env := dsl.Environment{
		"val": dsl.StringParam(dsl.KindNumeric, "3"),
		"str": dsl.StringParam(dsl.KindString, "hello"),
		"b":   dsl.BoolParam(true),
	}
	ok, err := dsl.Evaluate(`val > 5 OR str == 'hello' AND b == true`, env)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = dsl.Evaluate(`val > 5 OR str == 'hello' AND b == false`, env)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluate_Parentheses(t *testing.T) {
	env := dsl.Environment{
		"val": dsl.StringParam(dsl.KindNumeric, "3"),
		"str": dsl.StringParam(dsl.KindString, "hello"),
	}
	ok, err := dsl.Evaluate(`(val > 5 OR str == 'hello') AND val < 10`, env)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluate_Numeric(t *testing.T) {
	env := dsl.Environment{"amount": dsl.StringParam(dsl.KindNumeric, "1000000000000000000")}
	cases := []struct {
		expr string
		want bool
	}{
		{"amount == 1000000000000000000", true},
		{"amount > 999999999999999999", true},
		{"amount >= 1000000000000000000", true},
		{"amount < 1000000000000000000", false},
		{"amount != 5", true},
	}
	for _, c := range cases {
		ok, err := dsl.Evaluate(c.expr, env)
		require.NoError(t, err, c.expr)
		assert.Equal(t, c.want, ok, c.expr)
	}
}

func TestEvaluate_Address(t *testing.T) {
	env := dsl.Environment{
		"from": dsl.StringParam(dsl.KindAddress, "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"),
	}
	ok, err := dsl.Evaluate(`from == 0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48`, env)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = dsl.Evaluate(`from contains a0b869`, env)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluate_Vec_Contains(t *testing.T) {
	env := dsl.Environment{
		"topics": dsl.VecParam(`["Transfer", "Approval"]`),
	}
	ok, err := dsl.Evaluate(`topics contains Transfer`, env)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = dsl.Evaluate(`topics contains Withdraw`, env)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluate_Vec_EqualityOrderSensitive(t *testing.T) {
	env := dsl.Environment{"topics": dsl.VecParam(`["a", "b"]`)}
	ok, err := dsl.Evaluate(`topics == '["a", "b"]'`, env)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = dsl.Evaluate(`topics == '["b", "a"]'`, env)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluate_Map_SemanticEquality(t *testing.T) {
	env := dsl.Environment{"meta": dsl.MapParam(`{"a": 1, "b": {"c": 2}}`)}
	ok, err := dsl.Evaluate(`meta == '{"b": {"c": 2}, "a": 1}'`, env)
	require.NoError(t, err)
	assert.True(t, ok, "key order must not matter")

	ok, err = dsl.Evaluate(`meta contains 2`, env)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluate_NestedPath(t *testing.T) {
	env := dsl.Environment{
		"log": dsl.MapParam(`{"args": {"to": "0xabc"}}`),
	}
	ok, err := dsl.Evaluate(`log.args.to == 0xabc`, env)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluate_FieldNotFound(t *testing.T) {
	env := dsl.Environment{"val": dsl.StringParam(dsl.KindNumeric, "1")}
	_, err := dsl.Evaluate(`missing == 1`, env)
	assert.ErrorIs(t, err, dsl.ErrFieldNotFound)
}

func TestEvaluate_Bool_CaseSensitiveStringRepresentation(t *testing.T) {
	env := dsl.Environment{"flag": dsl.StringParam(dsl.KindBool, "true")}
	ok, err := dsl.Evaluate(`flag == true`, env)
	require.NoError(t, err)
	assert.True(t, ok)

	env = dsl.Environment{"flag": dsl.StringParam(dsl.KindBool, "True")}
	_, err = dsl.Evaluate(`flag == true`, env)
	assert.ErrorIs(t, err, dsl.ErrTypeMismatch)
}
