package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
)

const Version = "2.0"

var ErrInvalidResponse = errors.New("invalid rpc response")

type (
	Request struct {
		Version string          `json:"jsonrpc"`
		Id      uint64          `json:"id"`
		Method  string          `json:"method"`
		Params  json.RawMessage `json:"params,omitempty"`
	}
	Response struct {
		Version string          `json:"jsonrpc"`
		Id      uint64          `json:"id"`
		Result  json.RawMessage `json:"result,omitempty"`
		Error   *Error          `json:"error,omitempty"`
	}
	// Error is the JSON-RPC error object. Implementations map their sentinel errors to codes
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
)

func (e *Error) Error() (s string) {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type Client struct {
	url     string
	headers map[string]string
	client  *http.Client
	id      atomic.Uint64
}

func New(config Config) (client *Client) {
	client = &Client{
		url:     config.Url,
		headers: config.CustomHeaders,
		client:  config.Client,
	}
	if client.client == nil {
		client.client = http.DefaultClient
	}
	return client
}

// Call invokes method with params and decodes the result into result, which may be nil
func (c *Client) Call(ctx context.Context, method string, params any, result any) (err error) {
	request := Request{
		Version: Version,
		Id:      c.id.Add(1),
		Method:  method,
	}
	if params != nil {
		request.Params, err = json.Marshal(params)
		if err != nil {
			return fmt.Errorf("failed to marshal params: %w", err)
		}
	}

	body, err := json.Marshal(&request)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to prepare request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for key, value := range c.headers {
		httpReq.Header.Set(key, value)
	}

	httpRes, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to do request: %w", err)
	}
	defer httpRes.Body.Close()

	if httpRes.StatusCode != http.StatusOK {
		contents, _ := io.ReadAll(io.LimitReader(httpRes.Body, 1024))
		return fmt.Errorf("%w: status %d: %s", ErrInvalidResponse, httpRes.StatusCode, string(contents))
	}

	var response Response
	err = json.NewDecoder(httpRes.Body).Decode(&response)
	if err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if response.Id != request.Id {
		return fmt.Errorf("%w: expecting id %d got %d", ErrInvalidResponse, request.Id, response.Id)
	}

	if response.Error != nil {
		return response.Error
	}

	if result == nil {
		return nil
	}

	err = json.Unmarshal(response.Result, result)
	if err != nil {
		return fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return nil
}
