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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

const (
	DefaultPollInterval   = 2 * time.Second
	defaultRequestTimeout = 30 * time.Second
)

type RpcClientConfig struct {
	Logger       *slog.Logger
	HttpClient   *http.Client
	Endpoint     string
	PollInterval time.Duration
}

// RpcClient talks JSON-RPC over HTTP to a ledger gateway. It decodes event
// payloads into typed variants at this boundary and maps transport failures
// to ErrUnavailable so callers can tell retryable conditions apart.
type RpcClient struct {
	config     RpcClientConfig
	httpClient *http.Client
	logger     *slog.Logger
	lastReqId  atomic.Uint64
}

type rpcRequest struct {
	Jsonrpc string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	Id      uint64 `json:"id"`
}

type rpcResponse struct {
	Jsonrpc string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
	Id      uint64          `json:"id"`
}

type rpcError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcEvent struct {
	Kind       string `json:"kind"`
	Position   uint64 `json:"position"`
	ProposalId string `json:"proposalId"`
	Proposer   string `json:"proposer"`
	// Description carries the proposal description for proposal events
	Description string `json:"description"`
	CertId      string `json:"certId"`
	Name        string `json:"name"`
	Course      string `json:"course"`
	Grade       string `json:"grade"`
	Date        string `json:"date"`
}

type rpcSettlement struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func NewRpcClient(config RpcClientConfig) *RpcClient {
	c := &RpcClient{
		config: config,
	}
	if config.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		c.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	} else {
		c.logger = config.Logger
	}
	if config.HttpClient != nil {
		c.httpClient = config.HttpClient
	} else {
		c.httpClient = &http.Client{
			Timeout: defaultRequestTimeout,
		}
	}
	if c.config.PollInterval <= 0 {
		c.config.PollInterval = DefaultPollInterval
	}
	return c
}

func (c *RpcClient) Query(
	ctx context.Context,
	kind EventKind,
	from Position,
) ([]Event, error) {
	var rawEvents []rpcEvent
	err := c.doRequest(
		ctx,
		"agora_queryEvents",
		[]any{string(kind), uint64(from)},
		&rawEvents,
	)
	if err != nil {
		return nil, err
	}
	events := make([]Event, 0, len(rawEvents))
	for _, raw := range rawEvents {
		switch EventKind(raw.Kind) {
		case EventKindProposalCreated:
			events = append(events, ProposalCreatedEvent{
				ProposalID:  raw.ProposalId,
				Proposer:    raw.Proposer,
				Description: raw.Description,
				LogPosition: Position(raw.Position),
			})
		case EventKindCertificateIssued:
			events = append(events, CertificateIssuedEvent{
				CertID:      raw.CertId,
				Name:        raw.Name,
				Course:      raw.Course,
				Grade:       raw.Grade,
				Date:        raw.Date,
				LogPosition: Position(raw.Position),
			})
		default:
			return nil, fmt.Errorf("unknown event kind in response: %q", raw.Kind)
		}
	}
	return events, nil
}

func (c *RpcClient) Call(
	ctx context.Context,
	method string,
	args ...any,
) (any, error) {
	var raw json.RawMessage
	err := c.doRequest(ctx, "agora_call", []any{method, args}, &raw)
	if err != nil {
		return nil, err
	}
	return decodeCallResult(method, raw)
}

func (c *RpcClient) Submit(
	ctx context.Context,
	method string,
	args ...any,
) (*PendingTx, error) {
	var txHash string
	err := c.doRequest(ctx, "agora_submit", []any{method, args}, &txHash)
	if err != nil {
		return nil, err
	}
	return &PendingTx{
		Hash:   txHash,
		Method: method,
	}, nil
}

// AwaitSettlement polls the gateway at a bounded interval until the
// transaction settles or the context is cancelled. Cancellation abandons
// only the local wait.
func (c *RpcClient) AwaitSettlement(
	ctx context.Context,
	tx *PendingTx,
) (Settlement, error) {
	ticker := time.NewTicker(c.config.PollInterval)
	defer ticker.Stop()
	for {
		var raw rpcSettlement
		err := c.doRequest(ctx, "agora_getSettlement", []any{tx.Hash}, &raw)
		if err != nil {
			return Settlement{}, err
		}
		switch raw.Status {
		case "confirmed":
			return Settlement{Status: SettlementConfirmed}, nil
		case "rejected":
			return Settlement{
				Status: SettlementRejected,
				Reason: raw.Reason,
			}, nil
		case "pending":
			// Keep polling
		default:
			return Settlement{}, fmt.Errorf(
				"unknown settlement status: %q",
				raw.Status,
			)
		}
		select {
		case <-ctx.Done():
			return Settlement{Status: SettlementUnknown}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *RpcClient) doRequest(
	ctx context.Context,
	rpcMethod string,
	params []any,
	result any,
) error {
	reqBody, err := json.Marshal(rpcRequest{
		Jsonrpc: "2.0",
		Method:  rpcMethod,
		Params:  params,
		Id:      c.lastReqId.Add(1),
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.config.Endpoint,
		bytes.NewReader(reqBody),
	)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUnavailable, err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf(
			"%w: unexpected HTTP status %d",
			ErrUnavailable,
			resp.StatusCode,
		)
	}
	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("%w: decode response: %s", ErrUnavailable, err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("unmarshal result: %w", err)
		}
	}
	return nil
}

// decodeCallResult maps raw JSON read results into the Go types the rest of
// the system expects for each known read method
func decodeCallResult(method string, raw json.RawMessage) (any, error) {
	switch method {
	case MethodState:
		var code int
		if err := json.Unmarshal(raw, &code); err != nil {
			return nil, fmt.Errorf("decode %s result: %w", method, err)
		}
		return code, nil
	case MethodProposalVotes:
		var tally struct {
			For     uint64 `json:"for"`
			Against uint64 `json:"against"`
			Abstain uint64 `json:"abstain"`
		}
		if err := json.Unmarshal(raw, &tally); err != nil {
			return nil, fmt.Errorf("decode %s result: %w", method, err)
		}
		return TallyResult{
			For:     tally.For,
			Against: tally.Against,
			Abstain: tally.Abstain,
		}, nil
	case MethodGetVotes, MethodGetVotingPower:
		var amount uint64
		if err := json.Unmarshal(raw, &amount); err != nil {
			return nil, fmt.Errorf("decode %s result: %w", method, err)
		}
		return amount, nil
	case MethodHasRole:
		var granted bool
		if err := json.Unmarshal(raw, &granted); err != nil {
			return nil, fmt.Errorf("decode %s result: %w", method, err)
		}
		return granted, nil
	default:
		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			return nil, fmt.Errorf("decode %s result: %w", method, err)
		}
		return value, nil
	}
}
