// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
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

package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"vsa/internal/loanreplay/record"
)

// HTTPConfig configures a DirectRequestPublisher: base URL, path, pool
// size, and timeout.
type HTTPConfig struct {
	BaseURL string
	Path    string
	// MaxPool bounds idle connections kept per host; the pool is shared
	// across calls within one publisher instance (one per lane).
	MaxPool int
	// TimeoutS is the total per-request timeout; it doubles as the read
	// timeout ("read timeout equal to total").
	TimeoutS float64
}

// ComposeURL joins baseURL and path with exactly one "/" between them,
// regardless of leading/trailing slashes on either side. An empty path
// returns baseURL verbatim.
func ComposeURL(baseURL, path string) string {
	if path == "" {
		return baseURL
	}
	base := strings.TrimRight(baseURL, "/")
	p := strings.TrimLeft(path, "/")
	if p == "" {
		return base
	}
	return base + "/" + p
}

// DirectRequestPublisher is the request-per-message sink variant: one
// network round-trip per record, with retriable statuses retried under a
// bounded backoff schedule.
type DirectRequestPublisher struct {
	url    string
	client *http.Client
}

// NewDirectRequestPublisher builds a publisher with its own connection
// pool shared across every Send call on this instance.
func NewDirectRequestPublisher(cfg HTTPConfig) *DirectRequestPublisher {
	maxPool := cfg.MaxPool
	if maxPool <= 0 {
		maxPool = 256
	}
	timeout := cfg.TimeoutS
	if timeout <= 0 {
		timeout = 3
	}

	dialer := &net.Dialer{Timeout: 1 * time.Second}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		MaxIdleConns:        maxPool,
		MaxIdleConnsPerHost: maxPool,
		MaxConnsPerHost:     maxPool,
		IdleConnTimeout:     90 * time.Second,
	}

	return &DirectRequestPublisher{
		url: ComposeURL(cfg.BaseURL, cfg.Path),
		client: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(timeout * float64(time.Second)),
		},
	}
}

type directRequestBody struct {
	LoanNumber string `json:"loanNumber"`
	EventName  string `json:"eventName"`
	Payload    any    `json:"payload"`
}

// Send POSTs the record as compact JSON to the composed URL. 2xx is a
// success; 429/500/502/503/504 and transport errors retry under the
// shared backoff schedule; any other non-2xx fails immediately with no
// retry.
func (p *DirectRequestPublisher) Send(r record.Record) (bool, error) {
	body, err := json.Marshal(directRequestBody{
		LoanNumber: r.Loan,
		EventName:  r.EventName,
		Payload:    r.Payload,
	})
	if err != nil {
		return false, fmt.Errorf("publish: marshal request body: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.client.Timeout+2*time.Second)
	defer cancel()

	ok := false
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := p.client.Do(req)
		if err != nil {
			return err // transport error: retriable
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			ok = true
			return nil
		case isRetriableStatus(resp.StatusCode):
			return fmt.Errorf("publish: retriable status %d", resp.StatusCode)
		default:
			return backoff.Permanent(fmt.Errorf("publish: non-retriable status %d", resp.StatusCode))
		}
	}

	_ = runWithRetry(ctx, op)
	return ok, nil
}

func isRetriableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// Flush is a no-op: the direct-request variant holds no state between
// calls beyond its shared connection pool.
func (p *DirectRequestPublisher) Flush() (successes, failures int) { return 0, 0 }
