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
	"context"
	"strings"
	"sync"
	"testing"

	"vsa/internal/loanreplay/record"
)

// fakeBatchSink records every PublishBatch call and can be configured to
// reject specific ids a fixed number of times or to return a transport
// error a fixed number of times, modeling the two retry paths a batched
// publisher must handle.
type fakeBatchSink struct {
	mu sync.Mutex

	calls         int
	batches       [][]BatchEntry
	rejectIDs     map[string]int // id -> remaining times to reject
	transportErrs int            // remaining times to return an error
}

func (s *fakeBatchSink) PublishBatch(ctx context.Context, entries []BatchEntry) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	cp := make([]BatchEntry, len(entries))
	copy(cp, entries)
	s.batches = append(s.batches, cp)

	if s.transportErrs > 0 {
		s.transportErrs--
		return nil, context.DeadlineExceeded
	}

	failed := map[string]bool{}
	for _, e := range entries {
		if n, ok := s.rejectIDs[e.ID]; ok && n > 0 {
			s.rejectIDs[e.ID] = n - 1
			failed[e.ID] = true
		}
	}
	return failed, nil
}

func TestBatchedPublisher_FlushesAtBatchSize(t *testing.T) {
	sink := &fakeBatchSink{}
	p := NewBatchedPublisher(sink, 3, "JOB-1")

	for i := int64(0); i < 3; i++ {
		ok, err := p.Send(record.Record{Loan: "0000000001", EventName: "Foo", Payload: map[string]any{"i": i}, Seq: i, Attributes: map[string]string{"jobId": "JOB-1"}})
		if err != nil {
			t.Fatalf("Send error: %v", err)
		}
		if !ok {
			t.Fatalf("Send(%d) = false, want true", i)
		}
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.calls != 1 {
		t.Fatalf("sink.calls=%d, want 1 (flush at batch size)", sink.calls)
	}
	if len(sink.batches[0]) != 3 {
		t.Fatalf("batch size=%d, want 3", len(sink.batches[0]))
	}
	for _, e := range sink.batches[0] {
		if e.GroupKey != "0000000001" {
			t.Fatalf("GroupKey=%q, want loan", e.GroupKey)
		}
		if !strings.HasPrefix(e.DedupKey, "JOB-1:0000000001:Foo:") {
			t.Fatalf("DedupKey=%q, want JOB-1:loan:event:seq:uuid shape", e.DedupKey)
		}
	}
}

func TestBatchedPublisher_OversizePayloadFailsWithoutBuffering(t *testing.T) {
	sink := &fakeBatchSink{}
	p := NewBatchedPublisher(sink, 5, "JOB-1")

	huge := strings.Repeat("x", maxEntryBytes+1)
	ok, err := p.Send(record.Record{Loan: "0000000001", EventName: "Foo", Payload: huge})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected oversize payload to fail")
	}
	if len(p.pending) != 0 {
		t.Fatalf("oversize entry must not be buffered, pending=%d", len(p.pending))
	}
}

func TestBatchedPublisher_RetriesOnlyFailedIDs(t *testing.T) {
	var sink *fakeBatchSink
	var ids []string

	sink = &fakeBatchSink{rejectIDs: map[string]int{}}
	p := NewBatchedPublisher(sink, 3, "JOB-1")

	// Fill two entries, then inspect pending ids so we can selectively
	// reject one of them before the third Send triggers the flush.
	for i := int64(0); i < 2; i++ {
		_, err := p.Send(record.Record{Loan: "0000000001", EventName: "Foo", Seq: i})
		if err != nil {
			t.Fatalf("Send error: %v", err)
		}
	}
	for _, e := range p.pending {
		ids = append(ids, e.ID)
	}
	sink.rejectIDs[ids[0]] = 1 // fail once, then succeed on retry

	ok, err := p.Send(record.Record{Loan: "0000000001", EventName: "Foo", Seq: 2})
	if err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if !ok {
		t.Fatalf("expected the triggering entry to succeed")
	}

	if sink.calls != 2 {
		t.Fatalf("sink.calls=%d, want 2 (initial + one retry of the failed id)", sink.calls)
	}
	if len(sink.batches[1]) != 1 || sink.batches[1][0].ID != ids[0] {
		t.Fatalf("retry batch should contain only the failed id, got %+v", sink.batches[1])
	}
}

func TestBatchedPublisher_TransportErrorRetriesWholeBatch(t *testing.T) {
	sink := &fakeBatchSink{transportErrs: 1}
	p := NewBatchedPublisher(sink, 2, "JOB-1")

	_, err := p.Send(record.Record{Loan: "0000000001", EventName: "Foo", Seq: 0})
	if err != nil {
		t.Fatalf("Send error: %v", err)
	}
	ok, err := p.Send(record.Record{Loan: "0000000001", EventName: "Foo", Seq: 1})
	if err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if !ok {
		t.Fatalf("expected success after the transport error is retried")
	}
	if sink.calls != 2 {
		t.Fatalf("sink.calls=%d, want 2 (initial transport error + full-batch retry)", sink.calls)
	}
	if len(sink.batches[1]) != 2 {
		t.Fatalf("retry batch should contain the whole original batch, got %d entries", len(sink.batches[1]))
	}
}

func TestBatchedPublisher_ExhaustedRetriesCountAsFailureAndAreNotRetriedAgain(t *testing.T) {
	sink := &fakeBatchSink{transportErrs: 10} // always fails
	p := NewBatchedPublisher(sink, 1, "JOB-1")

	ok, err := p.Send(record.Record{Loan: "0000000001", EventName: "Foo", Seq: 0})
	if err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if ok {
		t.Fatalf("expected failure after exhausting retries")
	}
	if sink.calls != maxAttempts {
		t.Fatalf("sink.calls=%d, want %d", sink.calls, maxAttempts)
	}
	if len(p.pending) != 0 {
		t.Fatalf("failed entries must be removed from pending, not retried by a later flush")
	}
}

func TestBatchedPublisher_FlushDrainsRemainderInBatchesOfTen(t *testing.T) {
	sink := &fakeBatchSink{}
	p := NewBatchedPublisher(sink, 100, "JOB-1") // clamped to 10, so Send auto-flushes at the 10th send

	for i := int64(0); i < 15; i++ {
		_, err := p.Send(record.Record{Loan: "0000000001", EventName: "Foo", Seq: i})
		if err != nil {
			t.Fatalf("Send error: %v", err)
		}
	}
	if p.batchSize != 10 {
		t.Fatalf("batchSize=%d, want clamped to 10", p.batchSize)
	}

	// 15 sends with a batch size of 10 trigger one in-Send flush of 10 at
	// the 10th send; only the remaining 5 are still pending for Flush.
	successes, failures := p.Flush()
	if failures != 0 {
		t.Fatalf("unexpected failures: %d", failures)
	}
	if successes != 5 {
		t.Fatalf("successes=%d, want 5 (only the still-pending remainder)", successes)
	}
	if len(p.pending) != 0 {
		t.Fatalf("pending should be empty after Flush, got %d", len(p.pending))
	}
	for _, b := range sink.batches {
		if len(b) > maxBatchEntries {
			t.Fatalf("batch of size %d exceeds maxBatchEntries", len(b))
		}
	}
}
