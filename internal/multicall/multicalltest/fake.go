// Package multicalltest provides an in-memory Multicall3 node for tests.
package multicalltest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"poolScope/internal/multicall"
)

// HandlerFunc returns output values for decoded call arguments. A non-nil error reverts the call.
type HandlerFunc func(args []interface{}) ([]interface{}, error)

type handlerKey struct {
	target   common.Address
	selector [4]byte
}

type handler struct {
	method abi.Method
	raw    []byte
	fn     HandlerFunc
}

// Caller answers aggregate3 eth_calls from registered handlers.
// Unregistered calls revert.
type Caller struct {
	mu         sync.Mutex
	handlers   map[handlerKey]handler
	roundTrips int
	lastBatch  int

	// Err is returned from every CallContract when set.
	Err error
	// DropResults removes that many results from the tail of every response.
	DropResults int
}

// New creates an empty fake.
func New() *Caller {
	return &Caller{handlers: make(map[handlerKey]handler)}
}

// Return registers static output values for target.method.
func (c *Caller) Return(target common.Address, parsed abi.ABI, method string, values ...interface{}) {
	c.Handle(target, parsed, method, func([]interface{}) ([]interface{}, error) {
		return values, nil
	})
}

// Revert registers target.method as reverting.
func (c *Caller) Revert(target common.Address, parsed abi.ABI, method string) {
	c.Handle(target, parsed, method, func([]interface{}) ([]interface{}, error) {
		return nil, errors.New("execution reverted")
	})
}

// Handle registers a handler that sees decoded call arguments.
func (c *Caller) Handle(target common.Address, parsed abi.ABI, method string, fn HandlerFunc) {
	m, ok := parsed.Methods[method]
	if !ok {
		panic(fmt.Sprintf("multicalltest: method %s not in abi", method))
	}
	var key handlerKey
	key.target = target
	copy(key.selector[:], m.ID)

	c.mu.Lock()
	c.handlers[key] = handler{method: m, fn: fn}
	c.mu.Unlock()
}

// Raw registers raw return bytes for target.method, bypassing output packing.
func (c *Caller) Raw(target common.Address, parsed abi.ABI, method string, data []byte) {
	m, ok := parsed.Methods[method]
	if !ok {
		panic(fmt.Sprintf("multicalltest: method %s not in abi", method))
	}
	var key handlerKey
	key.target = target
	copy(key.selector[:], m.ID)

	c.mu.Lock()
	c.handlers[key] = handler{method: m, raw: data}
	c.mu.Unlock()
}

// RoundTrips returns how many eth_calls were made.
func (c *Caller) RoundTrips() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roundTrips
}

// LastBatchSize returns the number of calls in the most recent batch.
func (c *Caller) LastBatchSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastBatch
}

// CallContract implements multicall.Caller.
func (c *Caller) CallContract(ctx context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	c.mu.Lock()
	c.roundTrips++
	c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.Err != nil {
		return nil, c.Err
	}

	parsed, err := multicall.Multicall3ABI()
	if err != nil {
		return nil, err
	}
	method := parsed.Methods["aggregate3"]
	if len(msg.Data) < 4 {
		return nil, errors.New("multicalltest: short calldata")
	}
	args, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, fmt.Errorf("multicalltest: unpack input: %w", err)
	}
	calls := *abi.ConvertType(args[0], new([]multicall.Call3)).(*[]multicall.Call3)

	c.mu.Lock()
	c.lastBatch = len(calls)
	c.mu.Unlock()

	results := make([]multicall.Result3, 0, len(calls))
	for _, call := range calls {
		data, ok := c.answer(call)
		if !ok && !call.AllowFailure {
			return nil, errors.New("execution reverted: Multicall3: call failed")
		}
		results = append(results, multicall.Result3{Success: ok, ReturnData: data})
	}
	if c.DropResults > 0 && c.DropResults <= len(results) {
		results = results[:len(results)-c.DropResults]
	}

	return method.Outputs.Pack(results)
}

func (c *Caller) answer(call multicall.Call3) ([]byte, bool) {
	if len(call.CallData) < 4 {
		return nil, false
	}
	var key handlerKey
	key.target = call.Target
	copy(key.selector[:], call.CallData[:4])

	c.mu.Lock()
	h, ok := c.handlers[key]
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	if h.raw != nil {
		return h.raw, true
	}

	args, err := h.method.Inputs.Unpack(call.CallData[4:])
	if err != nil {
		return nil, false
	}
	values, err := h.fn(args)
	if err != nil {
		return nil, false
	}
	data, err := h.method.Outputs.Pack(values...)
	if err != nil {
		panic(fmt.Sprintf("multicalltest: pack %s outputs: %v", h.method.Name, err))
	}
	return data, true
}
