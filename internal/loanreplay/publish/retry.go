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

// Package publish implements the two downstream sink adapters behind the
// lanes.Publisher capability: a direct-request HTTP publisher and a
// batched pub/sub publisher.
package publish

import (
	"context"
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"

	"vsa/internal/loanreplay/telemetry"
)

// maxAttempts is the hard ceiling on total send attempts (the initial try
// plus retries) for both publisher variants. Chosen and followed literally
// as three real attempts — see DESIGN.md.
const maxAttempts = 3

// retrySchedule implements backoff.BackOff with a per-attempt sleep of
// min(0.5*attempt + U(0,0.2), 2.0) seconds, where attempt is the 1-based
// count of the retry about to be attempted.
type retrySchedule struct{ attempt int }

func (s *retrySchedule) NextBackOff() time.Duration {
	s.attempt++
	secs := 0.5*float64(s.attempt) + rand.Float64()*0.2
	if secs > 2.0 {
		secs = 2.0
	}
	return time.Duration(secs * float64(time.Second))
}

func (s *retrySchedule) Reset() { s.attempt = 0 }

// newRetryPolicy returns a bounded backoff policy good for maxAttempts-1
// retries (maxAttempts total tries, since backoff.Retry always performs
// the first attempt before consulting the policy), honoring ctx
// cancellation/deadlines.
func newRetryPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.WithMaxRetries(&retrySchedule{}, uint64(maxAttempts-1))
	return backoff.WithContext(b, ctx)
}

// runWithRetry executes op, retrying per newRetryPolicy when op returns a
// retriable error, stopping immediately on a permanent one
// (backoff.Permanent-wrapped). It returns the final error, if any. Every
// retry (a failed attempt followed by another) is reported to telemetry.
func runWithRetry(ctx context.Context, op backoff.Operation) error {
	return backoff.RetryNotify(op, newRetryPolicy(ctx), func(err error, d time.Duration) {
		telemetry.ObserveRetry()
	})
}
