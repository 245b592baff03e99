package filter

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/stellar/go/xdr"
	"go.uber.org/zap"

	"github.com/openzeppelin-fork/monitor-go/pkg/chain"
	"github.com/openzeppelin-fork/monitor-go/pkg/chain/stellarchain"
	"github.com/openzeppelin-fork/monitor-go/pkg/dsl"
	"github.com/openzeppelin-fork/monitor-go/pkg/model"
	"github.com/openzeppelin-fork/monitor-go/pkg/normalize"
	"github.com/openzeppelin-fork/monitor-go/pkg/rpc"
)

// stellarContractSpec is the SEP-48-derived shape a monitor's inline spec,
// the per-tick cache, or get_contract_spec all resolve to: function and
// event signatures with named, typed parameters.
type stellarContractSpec struct {
	Functions []stellarSpecEntry `json:"functions"`
	Events    []stellarSpecEntry `json:"events"`
}

type stellarSpecEntry struct {
	Name   string   `json:"name"`
	Params []string `json:"params"`
}

func (s stellarSpecEntry) signature() string {
	sig := s.Name + "("
	for i, p := range s.Params {
		if i > 0 {
			sig += ","
		}
		sig += p
	}
	return sig + ")"
}

func (e *Engine) resolveStellarSpec(ctx context.Context, ma model.MonitorAddress, cache *SpecCache, client rpc.StellarExtras) (*stellarContractSpec, error) {
	raw := ma.ContractSpec
	if raw == "" && cache != nil && client != nil {
		var err error
		raw, err = cache.GetOrFetch(ctx, normalize.Address(ma.Address), func(ctx context.Context) (string, error) {
			return client.GetContractSpec(ctx, ma.Address)
		})
		if err != nil {
			return nil, err
		}
	}
	if raw == "" {
		return nil, nil
	}
	var spec stellarContractSpec
	if err := json.Unmarshal([]byte(raw), &spec); err != nil {
		return nil, fmt.Errorf("invalid contract spec for %s: %w", ma.Address, err)
	}
	return &spec, nil
}

func (e *Engine) filterStellarBlock(ctx context.Context, block *stellarchain.Block, network model.Network,
	monitors []model.Monitor, cache *SpecCache, client rpc.StellarExtras) ([]chain.Match, error) {

	var matches []chain.Match
	for _, monitor := range monitors {
		if monitor.Paused {
			continue
		}
		specs := make(map[string]*stellarContractSpec)
		monitored := normalizedAddressSet(monitor.Addresses)
		for _, ma := range monitor.Addresses {
			spec, err := e.resolveStellarSpec(ctx, ma, cache, client)
			if err != nil {
				e.logger.Warn("skipping unresolvable contract spec",
					zap.String("monitor", monitor.Name), zap.String("address", ma.Address), zap.Error(err))
				continue
			}
			specs[normalize.Address(ma.Address)] = spec
		}

		for _, tx := range block.Transactions {
			txEnv := stellarTxEnv(tx, block.Sequence)
			hasT := true
			if len(monitor.MatchConditions.Transactions) > 0 {
				hasT = e.evalStellarTransaction(monitor, tx, txEnv)
			}

			invoked, contractID, ok := stellarInvocation(tx)
			var funcMatches []stellarArgMatch
			if ok {
				if spec, present := specs[normalize.Address(contractID)]; present && spec != nil {
					funcMatches = matchStellarFunctions(spec.Functions, monitor.MatchConditions.Functions, invoked)
				}
			}
			// Events are matched independently of any invoked function: a
			// transaction's events are decoded from its own topics/value and
			// joined to it by tx hash, not by what was called.
			eventMatches := matchStellarEventsForTx(tx, monitor.MatchConditions.Events, monitored)

			hasE := len(eventMatches) > 0
			hasF := len(funcMatches) > 0
			if !decide(monitor.MatchConditions.HasEvents(), monitor.MatchConditions.HasFunctions(),
				monitor.MatchConditions.HasTransactions(), hasE, hasF, hasT) {
				continue
			}

			vars := buildStellarTemplateVars(monitor, tx, funcMatches, eventMatches)
			matches = append(matches, &stellarchain.Match{
				NetworkIDValue: network.ID,
				MonitorName_:   monitor.Name,
				BlockNumber_:   uint64(block.Sequence),
				TxHash_:        tx.Hash,
				ContractID:     contractID,
				FunctionName:   invoked.Name,
				Vars:           vars,
			})
		}
	}
	return matches, nil
}

func stellarTxEnv(tx stellarchain.Transaction, ledger uint32) dsl.Environment {
	status := "failure"
	if tx.Result.Result.Code == xdr.TransactionResultCodeTxnFeeBumpInnerSuccess ||
		tx.Result.Result.Code == xdr.TransactionResultCodeTxnSuccess {
		status = "success"
	}
	return dsl.Environment{
		"hash":   dsl.StringParam(dsl.KindString, tx.Hash),
		"ledger": dsl.StringParam(dsl.KindNumeric, fmt.Sprint(ledger)),
		"status": dsl.StringParam(dsl.KindString, status),
	}
}

func (e *Engine) evalStellarTransaction(monitor model.Monitor, tx stellarchain.Transaction, env dsl.Environment) bool {
	for _, cond := range monitor.MatchConditions.Transactions {
		success := env["status"].Value == "success"
		if cond.Status == model.TxStatusSuccess && !success {
			continue
		}
		if cond.Status == model.TxStatusFailure && success {
			continue
		}
		if cond.Expression == "" {
			return true
		}
		ok, err := dsl.Evaluate(cond.Expression, env)
		if err != nil {
			e.logger.Warn("stellar transaction expression error", zap.Error(err))
			continue
		}
		if ok {
			return true
		}
	}
	return false
}

type invocation struct {
	Name string
	Args []string
}

// stellarInvocation extracts the invoked contract id and function name from
// a Soroban InvokeHostFunction operation, best-effort: anything else
// (classic payment ops, etc.) reports ok=false so function conditions
// simply don't match for that transaction. Events are matched separately
// and are unaffected.
func stellarInvocation(tx stellarchain.Transaction) (invocation, string, bool) {
	ops := tx.Envelope.Operations()
	for _, op := range ops {
		if op.Body.Type != xdr.OperationTypeInvokeHostFunction {
			continue
		}
		hostFn := op.Body.InvokeHostFunctionOp
		if hostFn == nil || hostFn.HostFunction.InvokeContract == nil {
			continue
		}
		ic := hostFn.HostFunction.InvokeContract
		contractID := ic.ContractAddress.String()
		fnName := string(ic.FunctionName)
		args := make([]string, 0, len(ic.Args))
		for _, a := range ic.Args {
			args = append(args, scValToString(a))
		}
		return invocation{Name: fnName, Args: args}, contractID, true
	}
	return invocation{}, "", false
}

func scValToString(v xdr.ScVal) string {
	s, err := v.MarshalBinary()
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%x", s)
}

type stellarArgMatch struct {
	Signature string
	Args      []string
}

func matchStellarFunctions(specEntries []stellarSpecEntry, conds []model.FunctionCondition, inv invocation) []stellarArgMatch {
	sig, ok := stellarSignatureFor(specEntries, inv)
	if !ok {
		return nil
	}
	var out []stellarArgMatch
	env := stellarArgsEnvironment(inv.Args)
	for _, cond := range conds {
		if !normalize.SameSignature(cond.Signature, sig) {
			continue
		}
		if cond.Expression != "" {
			matched, err := dsl.Evaluate(cond.Expression, env)
			if err != nil || !matched {
				continue
			}
		}
		out = append(out, stellarArgMatch{Signature: sig, Args: inv.Args})
	}
	return out
}

type stellarEventMatch struct {
	Signature string
	Args      []dsl.Param
}

// matchStellarEventsForTx matches tx's own decoded contract events against
// conds, independent of whichever function the transaction invoked: the
// event's contract id, name and argument types come entirely from its own
// topics and value.
func matchStellarEventsForTx(tx stellarchain.Transaction, conds []model.EventCondition, monitored map[string]bool) []stellarEventMatch {
	if len(conds) == 0 {
		return nil
	}
	var out []stellarEventMatch
	for _, ev := range tx.Events {
		if !monitored[normalize.Address(ev.ContractID)] {
			continue
		}
		sig, args, ok := decodeStellarEvent(ev)
		if !ok {
			continue
		}
		env := stellarParamsEnvironment(args)
		for _, cond := range conds {
			if !normalize.SameSignature(cond.Signature, sig) {
				continue
			}
			if cond.Expression != "" {
				matched, err := dsl.Evaluate(cond.Expression, env)
				if err != nil || !matched {
					continue
				}
			}
			out = append(out, stellarEventMatch{Signature: sig, Args: args})
		}
	}
	return out
}

// decodeStellarEvent reads ev.Topics[0] as the event's name (an ScvSymbol),
// the remaining topics as its indexed arguments and ev.Value as its one
// non-indexed argument, and builds a signature of name(kind1,kind2,...) from
// each argument's own XDR type.
func decodeStellarEvent(ev stellarchain.ContractEvent) (string, []dsl.Param, bool) {
	if len(ev.Topics) == 0 {
		return "", nil, false
	}
	nameVal := ev.Topics[0]
	if nameVal.Type != xdr.ScValTypeScvSymbol || nameVal.Sym == nil {
		return "", nil, false
	}
	name := string(*nameVal.Sym)

	args := make([]dsl.Param, 0, len(ev.Topics))
	kinds := make([]string, 0, len(ev.Topics))
	for _, t := range ev.Topics[1:] {
		args = append(args, scValToParam(t))
		kinds = append(kinds, scValTypeName(t))
	}
	args = append(args, scValToParam(ev.Value))
	kinds = append(kinds, scValTypeName(ev.Value))

	return name + "(" + strings.Join(kinds, ",") + ")", args, true
}

// stellarParamsEnvironment exposes decoded event arguments by their
// positional index only: unlike function calls, Soroban events carry no
// per-argument names, just a topics/value ordering.
func stellarParamsEnvironment(args []dsl.Param) dsl.Environment {
	env := make(dsl.Environment, len(args))
	for i, p := range args {
		env[strconv.Itoa(i)] = p
	}
	return env
}

// scValTypeName names v's XDR variant the way a Soroban contract spec would
// ("I128", "Address", "String", ...), for building match signatures.
func scValTypeName(v xdr.ScVal) string {
	return strings.TrimPrefix(v.Type.String(), "ScValTypeScv")
}

// scValToParam decodes a Soroban ScVal into the DSL's typed parameter model.
func scValToParam(v xdr.ScVal) dsl.Param {
	switch v.Type {
	case xdr.ScValTypeScvBool:
		if v.B == nil {
			return dsl.BoolParam(false)
		}
		return dsl.BoolParam(bool(*v.B))
	case xdr.ScValTypeScvU32:
		if v.U32 == nil {
			return dsl.StringParam(dsl.KindNumeric, "0")
		}
		return dsl.StringParam(dsl.KindNumeric, strconv.FormatUint(uint64(*v.U32), 10))
	case xdr.ScValTypeScvI32:
		if v.I32 == nil {
			return dsl.StringParam(dsl.KindNumeric, "0")
		}
		return dsl.StringParam(dsl.KindNumeric, strconv.FormatInt(int64(*v.I32), 10))
	case xdr.ScValTypeScvU64:
		if v.U64 == nil {
			return dsl.StringParam(dsl.KindNumeric, "0")
		}
		return dsl.StringParam(dsl.KindNumeric, strconv.FormatUint(uint64(*v.U64), 10))
	case xdr.ScValTypeScvI64:
		if v.I64 == nil {
			return dsl.StringParam(dsl.KindNumeric, "0")
		}
		return dsl.StringParam(dsl.KindNumeric, strconv.FormatInt(int64(*v.I64), 10))
	case xdr.ScValTypeScvU128:
		if v.U128 == nil {
			return dsl.StringParam(dsl.KindNumeric, "0")
		}
		return dsl.StringParam(dsl.KindNumeric, uint128String(*v.U128))
	case xdr.ScValTypeScvI128:
		if v.I128 == nil {
			return dsl.StringParam(dsl.KindNumeric, "0")
		}
		return dsl.StringParam(dsl.KindNumeric, int128String(*v.I128))
	case xdr.ScValTypeScvBytes:
		if v.Bytes == nil {
			return dsl.StringParam(dsl.KindBytes, "")
		}
		return dsl.StringParam(dsl.KindBytes, hex.EncodeToString(*v.Bytes))
	case xdr.ScValTypeScvString:
		if v.Str == nil {
			return dsl.StringParam(dsl.KindString, "")
		}
		return dsl.StringParam(dsl.KindString, string(*v.Str))
	case xdr.ScValTypeScvSymbol:
		if v.Sym == nil {
			return dsl.StringParam(dsl.KindSymbol, "")
		}
		return dsl.StringParam(dsl.KindSymbol, string(*v.Sym))
	case xdr.ScValTypeScvAddress:
		if v.Address == nil {
			return dsl.StringParam(dsl.KindAddress, "")
		}
		return dsl.StringParam(dsl.KindAddress, v.Address.String())
	case xdr.ScValTypeScvVec:
		if v.Vec == nil {
			return dsl.VecParam([]interface{}{})
		}
		items := *v.Vec
		out := make([]interface{}, len(items))
		for i, item := range items {
			out[i] = scValToParam(item).Value
		}
		return dsl.VecParam(out)
	case xdr.ScValTypeScvMap:
		if v.Map == nil {
			return dsl.MapParam(map[string]interface{}{})
		}
		out := make(map[string]interface{}, len(*v.Map))
		for _, entry := range *v.Map {
			out[scValKeyString(entry.Key)] = scValToParam(entry.Val).Value
		}
		return dsl.MapParam(out)
	default:
		raw, _ := v.MarshalBinary()
		return dsl.StringParam(dsl.KindBytes, hex.EncodeToString(raw))
	}
}

// scValKeyString renders a map entry's key for use as a DSL map field name.
func scValKeyString(k xdr.ScVal) string {
	p := scValToParam(k)
	if s, ok := p.Value.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", p.Value)
}

func int128String(p xdr.Int128Parts) string {
	v := big.NewInt(int64(p.Hi))
	v.Lsh(v, 64)
	v.Add(v, new(big.Int).SetUint64(uint64(p.Lo)))
	return v.String()
}

func uint128String(p xdr.UInt128Parts) string {
	v := new(big.Int).SetUint64(uint64(p.Hi))
	v.Lsh(v, 64)
	v.Add(v, new(big.Int).SetUint64(uint64(p.Lo)))
	return v.String()
}

func stellarSignatureFor(specEntries []stellarSpecEntry, inv invocation) (string, bool) {
	for _, entry := range specEntries {
		if entry.Name == inv.Name {
			return entry.signature(), true
		}
	}
	return "", false
}

func stellarArgsEnvironment(args []string) dsl.Environment {
	env := make(dsl.Environment, len(args))
	for i, a := range args {
		env[fmt.Sprint(i)] = dsl.StringParam(dsl.KindBytes, a)
	}
	return env
}

func buildStellarTemplateVars(monitor model.Monitor, tx stellarchain.Transaction, funcs []stellarArgMatch, events []stellarEventMatch) map[string]string {
	vars := map[string]string{"monitor.name": monitor.Name, "transaction.hash": tx.Hash}
	for i, f := range funcs {
		vars[fmt.Sprintf("functions.%d.signature", i)] = f.Signature
	}
	for i, ev := range events {
		prefix := fmt.Sprintf("events.%d.", i)
		vars[prefix+"signature"] = ev.Signature
		for j, arg := range ev.Args {
			if s, ok := arg.Value.(string); ok {
				vars[prefix+fmt.Sprintf("args.%d", j)] = s
			}
		}
	}
	return vars
}
