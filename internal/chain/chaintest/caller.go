// Package chaintest provides an in-memory tank contract for tests.
package chaintest

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/dyluth/thinktank/internal/chain"
)

// Caller answers read-only calls for one or more tanks from in-memory fields.
type Caller struct {
	mu    sync.Mutex
	tanks map[common.Address]map[string]string
	fail  map[string]error
	calls int
}

// NewCaller creates an empty fake.
func NewCaller() *Caller {
	return &Caller{
		tanks: make(map[common.Address]map[string]string),
		fail:  make(map[string]error),
	}
}

// Set sets the value a getter returns for tank.
func (c *Caller) Set(tank common.Address, method, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tanks[tank] == nil {
		c.tanks[tank] = make(map[string]string)
	}
	c.tanks[tank][method] = value
}

// Fail makes every call to method return err.
func (c *Caller) Fail(method string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail[method] = err
}

// Calls returns the number of calls served.
func (c *Caller) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// CallContract implements chain.ContractCaller.
func (c *Caller) CallContract(ctx context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	parsed, err := chain.TankABI()
	if err != nil {
		return nil, err
	}
	if call.To == nil || len(call.Data) < 4 {
		return nil, fmt.Errorf("malformed call")
	}

	method, err := parsed.MethodById(call.Data[:4])
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++

	if err := c.fail[method.Name]; err != nil {
		return nil, err
	}

	fields, ok := c.tanks[*call.To]
	if !ok {
		return nil, fmt.Errorf("execution reverted: no contract at %s", call.To.Hex())
	}
	return method.Outputs.Pack(fields[method.Name])
}
