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
	"time"

	"github.com/google/uuid"

	"vsa/internal/loanreplay/record"
	"vsa/internal/loanreplay/telemetry"
)

// maxEntryBytes is the per-message size limit: oversize payloads are
// rejected as failures, never split or offloaded.
const maxEntryBytes = 256_000

// maxBatchEntries is the hard ceiling a single BatchSink call accepts.
const maxBatchEntries = 10

// BatchEntry is one rendered, buffered message awaiting a batch flush.
type BatchEntry struct {
	ID         string
	Payload    []byte
	GroupKey   string
	DedupKey   string
	Attributes map[string]string
}

// BatchSink abstracts the downstream pub/sub transport (e.g. SNS FIFO).
// PublishBatch submits up to maxBatchEntries entries. A nil error with a
// non-empty failedIDs set means the call succeeded but some entries were
// individually rejected; those are retried. A non-nil error means the
// whole batch should be retried (transport-level failure).
type BatchSink interface {
	PublishBatch(ctx context.Context, entries []BatchEntry) (failedIDs map[string]bool, err error)
}

// BatchedPublisher accumulates up to BatchSize entries and flushes them
// to a BatchSink, preserving per-loan order via each entry's GroupKey.
// Its retry-then-fall-through shape generalizes a single idempotent write
// adapter to a multi-entry batch.
type BatchedPublisher struct {
	sink      BatchSink
	batchSize int
	jobID     string

	pending []BatchEntry
}

// NewBatchedPublisher clamps batchSize to [1, 10].
func NewBatchedPublisher(sink BatchSink, batchSize int, jobID string) *BatchedPublisher {
	if batchSize < 1 {
		batchSize = 1
	}
	if batchSize > maxBatchEntries {
		batchSize = maxBatchEntries
	}
	return &BatchedPublisher{sink: sink, batchSize: batchSize, jobID: jobID}
}

// Send renders the record into a batched entry and buffers it, flushing
// synchronously once the buffer reaches BatchSize. An oversize rendered
// payload fails immediately without being buffered.
func (p *BatchedPublisher) Send(r record.Record) (bool, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(r.Payload); err != nil {
		return false, fmt.Errorf("publish: marshal batch payload: %w", err)
	}
	payload := bytes.TrimRight(buf.Bytes(), "\n")

	if len(payload) > maxEntryBytes {
		return false, nil
	}

	jobID := p.jobID
	if v, ok := r.Attributes["jobId"]; ok && v != "" {
		jobID = v
	}

	entry := BatchEntry{
		ID:         uuid.NewString(),
		Payload:    payload,
		GroupKey:   r.Loan,
		DedupKey:   fmt.Sprintf("%s:%s:%s:%d:%s", jobID, r.Loan, r.EventName, r.Seq, uuid.NewString()),
		Attributes: r.Attributes,
	}
	p.pending = append(p.pending, entry)

	if len(p.pending) >= p.batchSize {
		// Flush synchronously and report whether THIS call's own entry
		// specifically survived the flush.
		return p.flushOne(entry.ID), nil
	}
	return true, nil
}

// Flush empties the remaining buffer in batches of at most
// maxBatchEntries, reporting the total successes/failures produced.
func (p *BatchedPublisher) Flush() (successes, failures int) {
	for len(p.pending) > 0 {
		before := len(p.pending)
		s, f := p.flushBatchCounts()
		successes += s
		failures += f
		if len(p.pending) == before {
			// Defensive: flushBatchCounts must always shrink pending by
			// the attempted batch. If it somehow didn't, stop to avoid
			// spinning forever.
			break
		}
	}
	return successes, failures
}

// flushOne flushes the current pending buffer (expected to be exactly
// batchSize long when called from Send) and reports whether entryID
// survived that flush.
func (p *BatchedPublisher) flushOne(entryID string) bool {
	if len(p.pending) == 0 {
		return true
	}
	outcomes := p.flushBatch()
	return outcomes[entryID]
}

func (p *BatchedPublisher) flushBatchCounts() (successes, failures int) {
	if len(p.pending) == 0 {
		return 0, 0
	}
	outcomes := p.flushBatch()
	for _, ok := range outcomes {
		if ok {
			successes++
		} else {
			failures++
		}
	}
	return successes, failures
}

// flushBatch snapshots the first <=10 pending entries, submits them
// (retrying only the ids a response reports as failed), removes exactly
// the snapshotted entries from pending regardless of outcome, and returns
// a per-id success map.
func (p *BatchedPublisher) flushBatch() map[string]bool {
	n := len(p.pending)
	if n > maxBatchEntries {
		n = maxBatchEntries
	}
	batch := make([]BatchEntry, n)
	copy(batch, p.pending[:n])
	snapshotIDs := make(map[string]bool, n)
	for _, e := range batch {
		snapshotIDs[e.ID] = true
	}
	// Remove the snapshot from pending now: subsequent flushes never
	// retry entries from this batch, even if some fail below.
	p.pending = p.pending[n:]

	outcomes := make(map[string]bool, n)
	for _, e := range batch {
		outcomes[e.ID] = true // optimistic; corrected below on failure
	}

	remaining := batch
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for attempt := 1; attempt <= maxAttempts && len(remaining) > 0; attempt++ {
		failedIDs, err := p.sink.PublishBatch(ctx, remaining)
		if err != nil {
			// Transport exception: retry the whole (remaining) batch.
			if attempt == maxAttempts {
				for _, e := range remaining {
					outcomes[e.ID] = false
				}
				remaining = nil
				break
			}
			telemetry.ObserveRetry()
			sleepRetry(attempt)
			continue
		}
		if len(failedIDs) == 0 {
			break
		}
		var retryNext []BatchEntry
		for _, e := range remaining {
			if failedIDs[e.ID] {
				retryNext = append(retryNext, e)
			}
		}
		remaining = retryNext
		if len(remaining) == 0 {
			break
		}
		if attempt == maxAttempts {
			for _, e := range remaining {
				outcomes[e.ID] = false
			}
			remaining = nil
		} else {
			telemetry.ObserveRetry()
			sleepRetry(attempt)
		}
	}

	return outcomes
}

func sleepRetry(attempt int) {
	s := &retrySchedule{attempt: attempt - 1}
	time.Sleep(s.NextBackOff())
}
