package multicall

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"poolScope/internal/metrics"
)

var errCallReverted = errors.New("required call reverted")

// Caller is the eth_call surface the executor needs. *chain.Client satisfies it.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Batcher executes call batches. Consumers depend on this instead of *Executor.
type Batcher interface {
	Execute(ctx context.Context, calls []CallSpec) ([]Result, error)
}

// CallSpec is one read-only contract call inside a batch.
type CallSpec struct {
	Target       common.Address
	Method       string
	CallData     []byte
	Outputs      abi.Arguments
	AllowFailure bool
}

// Result is the outcome of the call at the same position. Value is nil when Success is false.
type Result struct {
	Success bool
	Value   interface{}
}

// NewCall packs method with args from parsed and declares the method outputs as the shape.
func NewCall(target common.Address, parsed abi.ABI, method string, allowFailure bool, args ...interface{}) (CallSpec, error) {
	m, ok := parsed.Methods[method]
	if !ok {
		return CallSpec{}, fmt.Errorf("method %s not found in abi", method)
	}
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return CallSpec{}, fmt.Errorf("pack %s: %w", method, err)
	}
	return CallSpec{
		Target:       target,
		Method:       method,
		CallData:     data,
		Outputs:      m.Outputs,
		AllowFailure: allowFailure,
	}, nil
}

// Executor batches calls through Multicall3.aggregate3.
type Executor struct {
	caller  Caller
	address common.Address
	logger  *zap.Logger
}

// NewExecutor creates an executor for the Multicall3 contract at address.
func NewExecutor(caller Caller, address common.Address, logger *zap.Logger) *Executor {
	if address == (common.Address{}) {
		address = DefaultAddress
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{caller: caller, address: address, logger: logger}
}

// Execute performs exactly one eth_call for all calls and returns one Result per call, in order.
func (e *Executor) Execute(ctx context.Context, calls []CallSpec) ([]Result, error) {
	if len(calls) == 0 {
		return []Result{}, nil
	}

	parsed, err := Multicall3ABI()
	if err != nil {
		return nil, fmt.Errorf("parse multicall abi: %w", err)
	}

	payload := make([]Call3, len(calls))
	for i, call := range calls {
		payload[i] = Call3{
			Target:       call.Target,
			AllowFailure: call.AllowFailure,
			CallData:     call.CallData,
		}
	}
	data, err := parsed.Pack("aggregate3", payload)
	if err != nil {
		return nil, fmt.Errorf("pack aggregate3: %w", err)
	}

	to := e.address
	resp, err := e.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		metrics.MulticallBatches.WithLabelValues("transport_error").Inc()
		return nil, newTransportError(ctx, "aggregate3", err)
	}

	out, err := parsed.Unpack("aggregate3", resp)
	if err != nil {
		metrics.MulticallBatches.WithLabelValues("decode_error").Inc()
		return nil, &DecodeError{Method: "aggregate3", Err: err}
	}
	if len(out) != 1 {
		metrics.MulticallBatches.WithLabelValues("decode_error").Inc()
		return nil, &DecodeError{Method: "aggregate3", Err: fmt.Errorf("unexpected output count %d", len(out))}
	}
	raw := *abi.ConvertType(out[0], new([]Result3)).(*[]Result3)
	if len(raw) != len(calls) {
		metrics.MulticallBatches.WithLabelValues("length_mismatch").Inc()
		return nil, fmt.Errorf("%w: sent %d, received %d", ErrLengthMismatch, len(calls), len(raw))
	}

	results := make([]Result, len(calls))
	for i, call := range calls {
		res := raw[i]
		if !res.Success {
			if !call.AllowFailure {
				metrics.MulticallBatches.WithLabelValues("call_reverted").Inc()
				return nil, &TransportError{Op: call.Method, Err: errCallReverted}
			}
			metrics.MulticallCalls.WithLabelValues("reverted").Inc()
			continue
		}

		if len(call.Outputs) == 0 {
			results[i] = Result{Success: true, Value: res.ReturnData}
			metrics.MulticallCalls.WithLabelValues("ok").Inc()
			continue
		}

		value, err := Decode(call.Method, call.Outputs, res.ReturnData)
		if err != nil {
			// Undecodable data never aborts the batch, required or not.
			e.logger.Debug("call result dropped",
				zap.String("target", call.Target.Hex()),
				zap.String("method", call.Method),
				zap.Error(err),
			)
			metrics.MulticallCalls.WithLabelValues("decode_error").Inc()
			continue
		}
		results[i] = Result{Success: true, Value: value}
		metrics.MulticallCalls.WithLabelValues("ok").Inc()
	}

	metrics.MulticallBatches.WithLabelValues("ok").Inc()
	return results, nil
}
