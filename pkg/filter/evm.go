package filter

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	gethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/openzeppelin-fork/monitor-go/pkg/chain"
	"github.com/openzeppelin-fork/monitor-go/pkg/chain/evmchain"
	"github.com/openzeppelin-fork/monitor-go/pkg/dsl"
	"github.com/openzeppelin-fork/monitor-go/pkg/model"
	"github.com/openzeppelin-fork/monitor-go/pkg/normalize"
)

// evmAddressBook resolves the parsed ABI to use for a given address, either
// from the monitor's inline MonitorAddress.ContractSpec or the per-tick
// SpecCache.
type evmAddressBook struct {
	specs map[common.Address]*gethabi.ABI
}

func (e *Engine) buildEVMAddressBook(monitor model.Monitor) (*evmAddressBook, error) {
	book := &evmAddressBook{specs: make(map[common.Address]*gethabi.ABI)}
	for _, ma := range monitor.Addresses {
		if ma.ContractSpec == "" {
			continue
		}
		addr := common.HexToAddress(ma.Address)
		parsed, err := gethabi.JSON(strings.NewReader(ma.ContractSpec))
		if err != nil {
			e.logger.Warn("skipping malformed contract spec",
				zap.String("monitor", monitor.Name), zap.String("address", ma.Address), zap.Error(err))
			continue
		}
		book.specs[addr] = &parsed
	}
	return book, nil
}

func (e *Engine) filterEVMBlock(ctx context.Context, block *evmchain.Block, network model.Network, monitors []model.Monitor) ([]chain.Match, error) {
	var matches []chain.Match

	for _, monitor := range monitors {
		if monitor.Paused {
			continue
		}
		book, err := e.buildEVMAddressBook(monitor)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInternal, err)
		}
		monitored := normalizedAddressSet(monitor.Addresses)
		needsReceipt := monitor.MatchConditions.HasTransactions()

		for i, tx := range block.Raw.Transactions() {
			var receipt *gethtypes.Receipt
			if needsReceipt {
				receipt, err = block.Receipt(ctx, tx.Hash())
				if err != nil {
					e.logger.Warn("receipt fetch failed",
						zap.String("monitor", monitor.Name), zap.String("tx", tx.Hash().Hex()), zap.Error(err))
				}
			}

			txMatch, txOK, err := e.evalEVMTransaction(monitor, tx, receipt, block, i)
			if err != nil {
				e.logger.Warn("transaction condition evaluation error",
					zap.String("monitor", monitor.Name), zap.Error(err))
			}

			funcMatches := e.evalEVMFunctions(monitor, book, tx)
			logs := block.LogsFor(tx.Hash())
			var eventMatches []evmEventMatch
			if len(logs) > 0 {
				eventMatches = e.evalEVMEvents(monitor, book, logs, monitored)
			}

			hasE := len(eventMatches) > 0
			hasF := len(funcMatches) > 0
			hasT := txOK

			if !decide(monitor.MatchConditions.HasEvents(), monitor.MatchConditions.HasFunctions(),
				monitor.MatchConditions.HasTransactions(), hasE, hasF, hasT) {
				continue
			}

			vars := buildEVMTemplateVars(monitor, tx, receipt, txMatch, funcMatches, eventMatches)
			m := &evmchain.Match{
				NetworkIDValue: network.ID,
				MonitorName_:   monitor.Name,
				BlockNumber_:   block.BlockNumber(),
				TxHash_:        tx.Hash().Hex(),
				Kind:           matchKindFor(hasF, hasE),
				Vars:           vars,
			}
			matches = append(matches, m)
		}
	}
	return matches, nil
}

func matchKindFor(hasF, hasE bool) evmchain.MatchKind {
	if hasF {
		return evmchain.MatchKindFunction
	}
	if hasE {
		return evmchain.MatchKindEvent
	}
	return evmchain.MatchKindFunction
}

func normalizedAddressSet(addrs []model.MonitorAddress) map[string]bool {
	set := make(map[string]bool, len(addrs))
	for _, a := range addrs {
		set[normalize.Address(a.Address)] = true
	}
	return set
}

// evmTxEnv builds the standard EVM transaction parameter set exposed to expressions.
func evmTxEnv(tx *gethtypes.Transaction, receipt *gethtypes.Receipt, block *evmchain.Block, txIndex int) dsl.Environment {
	from := ""
	if signer := gethtypes.LatestSignerForChainID(tx.ChainId()); signer != nil {
		if addr, err := gethtypes.Sender(signer, tx); err == nil {
			from = addr.Hex()
		}
	}
	to := ""
	if tx.To() != nil {
		to = tx.To().Hex()
	}
	status := "unknown"
	if receipt != nil {
		if receipt.Status == gethtypes.ReceiptStatusSuccessful {
			status = "success"
		} else {
			status = "failure"
		}
	}
	return dsl.Environment{
		"value":             dsl.StringParam(dsl.KindNumeric, tx.Value().String()),
		"gas_price":         dsl.StringParam(dsl.KindNumeric, tx.GasPrice().String()),
		"gas_limit":         dsl.StringParam(dsl.KindNumeric, strconv.FormatUint(tx.Gas(), 10)),
		"from":              dsl.StringParam(dsl.KindAddress, from),
		"to":                dsl.StringParam(dsl.KindAddress, to),
		"nonce":             dsl.StringParam(dsl.KindNumeric, strconv.FormatUint(tx.Nonce(), 10)),
		"input":             dsl.StringParam(dsl.KindBytes, common.Bytes2Hex(tx.Data())),
		"hash":              dsl.StringParam(dsl.KindString, tx.Hash().Hex()),
		"status":            dsl.StringParam(dsl.KindString, status),
		"chain_id":          dsl.StringParam(dsl.KindNumeric, tx.ChainId().String()),
		"block_number":      dsl.StringParam(dsl.KindNumeric, strconv.FormatUint(block.BlockNumber(), 10)),
		"transaction_index": dsl.StringParam(dsl.KindNumeric, strconv.Itoa(txIndex)),
	}
}

func (e *Engine) evalEVMTransaction(monitor model.Monitor, tx *gethtypes.Transaction, receipt *gethtypes.Receipt, block *evmchain.Block, txIndex int) (dsl.Environment, bool, error) {
	conds := monitor.MatchConditions.Transactions
	if len(conds) == 0 {
		return nil, true, nil
	}
	env := evmTxEnv(tx, receipt, block, txIndex)
	for _, cond := range conds {
		if !statusMatches(cond.Status, receipt) {
			continue
		}
		if cond.Expression == "" {
			return env, true, nil
		}
		ok, err := dsl.Evaluate(cond.Expression, env)
		if err != nil {
			return env, false, err
		}
		if ok {
			return env, true, nil
		}
	}
	return env, false, nil
}

func statusMatches(want model.TxStatus, receipt *gethtypes.Receipt) bool {
	if want == model.TxStatusAny || want == "" {
		return true
	}
	if receipt == nil {
		return false
	}
	success := receipt.Status == gethtypes.ReceiptStatusSuccessful
	if want == model.TxStatusSuccess {
		return success
	}
	return !success
}

type evmFunctionMatch struct {
	Signature string
	Args      map[string]interface{}
}

func (e *Engine) evalEVMFunctions(monitor model.Monitor, book *evmAddressBook, tx *gethtypes.Transaction) []evmFunctionMatch {
	if len(monitor.MatchConditions.Functions) == 0 || tx.To() == nil {
		return nil
	}
	parsed, ok := book.specs[*tx.To()]
	if !ok || len(tx.Data()) < 4 {
		return nil
	}
	method, err := parsed.MethodById(tx.Data()[:4])
	if err != nil {
		return nil
	}
	args := make(map[string]interface{})
	if err := method.Inputs.UnpackIntoMap(args, tx.Data()[4:]); err != nil {
		e.logger.Warn("skipping function decode error", zap.String("monitor", monitor.Name), zap.Error(err))
		return nil
	}
	serialized := serializeEVMArgs(args)
	sig := method.RawName + "(" + joinTypes(method.Inputs) + ")"

	var out []evmFunctionMatch
	for _, cond := range monitor.MatchConditions.Functions {
		if !normalize.SameSignature(cond.Signature, sig) {
			continue
		}
		if cond.Expression != "" {
			ok, err := dsl.Evaluate(cond.Expression, argsEnvironment(serialized, method.Inputs))
			if err != nil {
				e.logger.Warn("function expression error", zap.Error(err))
				continue
			}
			if !ok {
				continue
			}
		}
		out = append(out, evmFunctionMatch{Signature: sig, Args: serialized})
	}
	return out
}

type evmEventMatch struct {
	Signature string
	Args      map[string]interface{}
}

func (e *Engine) evalEVMEvents(monitor model.Monitor, book *evmAddressBook, logs []gethtypes.Log, monitored map[string]bool) []evmEventMatch {
	if len(monitor.MatchConditions.Events) == 0 {
		return nil
	}
	var out []evmEventMatch
	for _, log := range logs {
		if !monitored[normalize.Address(log.Address.Hex())] {
			continue
		}
		parsed, ok := book.specs[log.Address]
		if !ok || len(log.Topics) == 0 {
			continue
		}
		event, err := parsed.EventByID(log.Topics[0])
		if err != nil {
			continue
		}
		args := make(map[string]interface{})
		var indexed gethabi.Arguments
		for _, in := range event.Inputs {
			if in.Indexed {
				indexed = append(indexed, in)
			}
		}
		if len(indexed) > 0 {
			if err := gethabi.ParseTopicsIntoMap(args, indexed, log.Topics[1:]); err != nil {
				e.logger.Warn("skipping indexed event decode error", zap.Error(err))
				continue
			}
		}
		var nonIndexed gethabi.Arguments
		for _, in := range event.Inputs {
			if !in.Indexed {
				nonIndexed = append(nonIndexed, in)
			}
		}
		if len(nonIndexed) > 0 {
			if err := nonIndexed.UnpackIntoMap(args, log.Data); err != nil {
				e.logger.Warn("skipping non-indexed event decode error", zap.Error(err))
				continue
			}
		}
		serialized := serializeEVMArgs(args)
		sig := event.RawName + "(" + joinTypes(event.Inputs) + ")"

		for _, cond := range monitor.MatchConditions.Events {
			if !normalize.SameSignature(cond.Signature, sig) {
				continue
			}
			if cond.Expression != "" {
				ok, err := dsl.Evaluate(cond.Expression, argsEnvironment(serialized, event.Inputs))
				if err != nil {
					e.logger.Warn("event expression error", zap.Error(err))
					continue
				}
				if !ok {
					continue
				}
			}
			out = append(out, evmEventMatch{Signature: sig, Args: serialized})
		}
	}
	return out
}

func joinTypes(args gethabi.Arguments) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.Type.String()
	}
	return strings.Join(parts, ",")
}

// argNames returns args' names in their declared ABI order.
func argNames(args gethabi.Arguments) []string {
	names := make([]string, len(args))
	for i, a := range args {
		names[i] = a.Name
	}
	return names
}

// serializeEVMArgs turns go-ethereum's decoded Go types into JSON-friendly
// values the DSL can walk.
func serializeEVMArgs(args map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(args))
	for k, v := range args {
		out[k] = serializeEVMValue(v)
	}
	return out
}

func serializeEVMValue(v interface{}) interface{} {
	switch t := v.(type) {
	case *big.Int:
		return t.String()
	case common.Address:
		return t.Hex()
	case common.Hash:
		return t.Hex()
	case []byte:
		return common.Bytes2Hex(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = serializeEVMValue(item)
		}
		return out
	case map[string]interface{}:
		return serializeEVMArgs(t)
	default:
		return v
	}
}

// argsEnvironment turns decoded, named arguments into a DSL environment
// where every value is resolvable both by name and by positional numeric
// identifier. Positions come from inputs (the ABI's declared input order),
// never from ranging over args directly, since Go map iteration order is
// randomized and would make positional lookups nondeterministic. Inputs
// declared as intN/uintN are exposed as numeric parameters even though
// serializeEVMArgs has turned big integers into decimal strings.
func argsEnvironment(args map[string]interface{}, inputs gethabi.Arguments) dsl.Environment {
	env := make(dsl.Environment, len(args)*2)
	for i, name := range argNames(inputs) {
		v, ok := args[name]
		if !ok {
			continue
		}
		p := paramFor(v)
		if t := inputs[i].Type.T; t == gethabi.IntTy || t == gethabi.UintTy {
			p = dsl.StringParam(dsl.KindNumeric, fmt.Sprintf("%v", v))
		}
		env[name] = p
		env[strconv.Itoa(i)] = p
	}
	return env
}

func paramFor(v interface{}) dsl.Param {
	switch t := v.(type) {
	case string:
		if strings.HasPrefix(t, "0x") && (len(t) == 42 || len(t) == 66) {
			return dsl.StringParam(dsl.KindAddress, t)
		}
		return dsl.StringParam(dsl.KindString, t)
	case bool:
		return dsl.BoolParam(t)
	case []interface{}:
		return dsl.VecParam(t)
	case map[string]interface{}:
		return dsl.MapParam(t)
	default:
		return dsl.StringParam(dsl.KindNumeric, fmt.Sprintf("%v", t))
	}
}

func buildEVMTemplateVars(monitor model.Monitor, tx *gethtypes.Transaction, receipt *gethtypes.Receipt,
	txEnv dsl.Environment, funcs []evmFunctionMatch, events []evmEventMatch) map[string]string {
	vars := map[string]string{"monitor.name": monitor.Name, "transaction.hash": tx.Hash().Hex()}
	for k, p := range txEnv {
		if s, ok := p.Value.(string); ok {
			vars["transaction."+k] = s
		}
	}
	for i, f := range funcs {
		prefix := fmt.Sprintf("functions.%d.", i)
		vars[prefix+"signature"] = f.Signature
		for k, v := range f.Args {
			vars[prefix+"args."+k] = fmt.Sprintf("%v", v)
		}
	}
	for i, ev := range events {
		prefix := fmt.Sprintf("events.%d.", i)
		vars[prefix+"signature"] = ev.Signature
		for k, v := range ev.Args {
			vars[prefix+"args."+k] = fmt.Sprintf("%v", v)
		}
	}
	return vars
}
