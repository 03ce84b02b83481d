// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ledger

import (
	"context"
	"fmt"
	"sync"
)

// MockClient is a scripted in-memory Client implementation for tests. The
// zero value is usable; populate the script fields or append events before
// handing it to the code under test.
type MockClient struct {
	mu sync.Mutex

	// events holds the scripted log per event kind
	events map[EventKind][]Event
	// callResults maps "method" or "method/args" to a canned result
	callResults map[string]any
	// callErrors maps the same keys to errors, checked before results
	callErrors map[string]error
	// settlements maps tx hash to a scripted settlement
	settlements map[string]Settlement
	// settlementGates maps tx hash to a channel that must be closed before
	// AwaitSettlement returns, to simulate slow confirmation
	settlementGates map[string]chan struct{}

	// QueryErr, when set, fails every Query call
	QueryErr error
	// SubmitErr, when set, fails every Submit call
	SubmitErr error

	queryCalls  map[EventKind]int
	submitCalls []string
	nextTxNum   int
}

func NewMockClient() *MockClient {
	return &MockClient{
		events:          make(map[EventKind][]Event),
		callResults:     make(map[string]any),
		callErrors:      make(map[string]error),
		settlements:     make(map[string]Settlement),
		settlementGates: make(map[string]chan struct{}),
		queryCalls:      make(map[EventKind]int),
	}
}

// AppendEvent adds an event to the scripted log for its kind
func (m *MockClient) AppendEvent(evt Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[evt.Kind()] = append(m.events[evt.Kind()], evt)
}

// SetCallResult scripts the result for a read method. Pass args to scope
// the result to a specific argument list; it must match the Call exactly.
func (m *MockClient) SetCallResult(method string, result any, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callResults[callKey(method, args...)] = result
}

// SetCallError scripts an error for a read method
func (m *MockClient) SetCallError(method string, err error, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callErrors[callKey(method, args...)] = err
}

// SetSettlement scripts the settlement outcome for a transaction hash
func (m *MockClient) SetSettlement(txHash string, s Settlement) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settlements[txHash] = s
}

// GateSettlement makes AwaitSettlement for the given hash block until the
// returned function is called
func (m *MockClient) GateSettlement(txHash string) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	gate := make(chan struct{})
	m.settlementGates[txHash] = gate
	var once sync.Once
	return func() {
		once.Do(func() { close(gate) })
	}
}

// QueryCount returns the number of Query calls seen for a kind
func (m *MockClient) QueryCount(kind EventKind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queryCalls[kind]
}

// SubmittedMethods returns the write methods submitted so far, in order
func (m *MockClient) SubmittedMethods() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ret := make([]string, len(m.submitCalls))
	copy(ret, m.submitCalls)
	return ret
}

func (m *MockClient) Query(
	_ context.Context,
	kind EventKind,
	from Position,
) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queryCalls[kind]++
	if m.QueryErr != nil {
		return nil, m.QueryErr
	}
	var ret []Event
	for _, evt := range m.events[kind] {
		if evt.Position() >= from {
			ret = append(ret, evt)
		}
	}
	return ret, nil
}

func (m *MockClient) Call(
	_ context.Context,
	method string,
	args ...any,
) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Prefer an arg-scoped script over a method-wide one
	for _, key := range []string{callKey(method, args...), callKey(method)} {
		if err, ok := m.callErrors[key]; ok {
			return nil, err
		}
		if result, ok := m.callResults[key]; ok {
			return result, nil
		}
	}
	return nil, fmt.Errorf("mock: no scripted result for %s", method)
}

func (m *MockClient) Submit(
	_ context.Context,
	method string,
	_ ...any,
) (*PendingTx, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SubmitErr != nil {
		return nil, m.SubmitErr
	}
	m.nextTxNum++
	tx := &PendingTx{
		Hash:   fmt.Sprintf("0xmock%04d", m.nextTxNum),
		Method: method,
	}
	m.submitCalls = append(m.submitCalls, method)
	return tx, nil
}

func (m *MockClient) AwaitSettlement(
	ctx context.Context,
	tx *PendingTx,
) (Settlement, error) {
	m.mu.Lock()
	gate := m.settlementGates[tx.Hash]
	m.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return Settlement{Status: SettlementUnknown}, ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.settlements[tx.Hash]; ok {
		return s, nil
	}
	// Default to confirmed for convenience
	return Settlement{Status: SettlementConfirmed}, nil
}

func callKey(method string, args ...any) string {
	if len(args) == 0 {
		return method
	}
	return fmt.Sprintf("%s/%v", method, args)
}
