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

package lanes

import (
	"errors"
	"sync"
	"testing"
	"time"

	"vsa/internal/loanreplay/record"
)

// recordingPublisher appends every Send it observes, in call order, so
// tests can assert strict per-lane FIFO.
type recordingPublisher struct {
	mu      sync.Mutex
	seen    []int64
	fail    map[int64]bool
	flushOK int
	flushNG int
}

func (p *recordingPublisher) Send(r record.Record) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen = append(p.seen, r.Seq)
	if p.fail != nil && p.fail[r.Seq] {
		return false, nil
	}
	return true, nil
}

func (p *recordingPublisher) Flush() (int, int) {
	return p.flushOK, p.flushNG
}

func TestLaneWorker_ProcessesInEnqueueOrder(t *testing.T) {
	pub := &recordingPublisher{}
	w := NewLaneWorker(0, pub, 0)

	for i := int64(0); i < 50; i++ {
		w.Submit(record.Record{Loan: "x", Seq: i})
	}
	w.Close()
	if !w.Join(2 * time.Second) {
		t.Fatalf("lane did not drain in time")
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.seen) != 50 {
		t.Fatalf("got %d sends, want 50", len(pub.seen))
	}
	for i, seq := range pub.seen {
		if seq != int64(i) {
			t.Fatalf("send %d observed seq %d, want %d (order violated)", i, seq, i)
		}
	}
	if w.Processed() != 50 || w.Failed() != 0 {
		t.Fatalf("processed=%d failed=%d, want 50/0", w.Processed(), w.Failed())
	}
}

func TestLaneWorker_SendFailureCountsAsFailed_NeverRequeued(t *testing.T) {
	pub := &recordingPublisher{fail: map[int64]bool{2: true}}
	w := NewLaneWorker(0, pub, 0)

	for i := int64(0); i < 5; i++ {
		w.Submit(record.Record{Loan: "x", Seq: i})
	}
	w.Close()
	if !w.Join(2 * time.Second) {
		t.Fatalf("lane did not drain in time")
	}
	if w.Processed() != 4 || w.Failed() != 1 {
		t.Fatalf("processed=%d failed=%d, want 4/1", w.Processed(), w.Failed())
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	count := 0
	for _, seq := range pub.seen {
		if seq == 2 {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("seq 2 observed %d times, want exactly 1 (no re-queue)", count)
	}
}

type panicPublisher struct{}

func (panicPublisher) Send(r record.Record) (bool, error) {
	panic("boom")
}
func (panicPublisher) Flush() (int, int) { return 0, 0 }

func TestLaneWorker_SendPanicCountsAsFailure(t *testing.T) {
	w := NewLaneWorker(0, panicPublisher{}, 0)
	w.Submit(record.Record{Loan: "x", Seq: 0})
	w.Close()
	if !w.Join(2 * time.Second) {
		t.Fatalf("lane did not drain in time")
	}
	if w.Failed() != 1 || w.Processed() != 0 {
		t.Fatalf("processed=%d failed=%d, want 0/1", w.Processed(), w.Failed())
	}
}

func TestLaneWorker_FlushCountsAddToTotals(t *testing.T) {
	pub := &recordingPublisher{flushOK: 3, flushNG: 2}
	w := NewLaneWorker(0, pub, 0)
	w.Submit(record.Record{Loan: "x", Seq: 0})
	w.Close()
	if !w.Join(2 * time.Second) {
		t.Fatalf("lane did not drain in time")
	}
	if w.Processed() != 4 { // 1 direct send + 3 from flush
		t.Fatalf("processed=%d, want 4", w.Processed())
	}
	if w.Failed() != 2 {
		t.Fatalf("failed=%d, want 2", w.Failed())
	}
}

type blockingPublisher struct {
	unblock chan struct{}
}

func (p blockingPublisher) Send(r record.Record) (bool, error) {
	<-p.unblock
	return true, nil
}
func (blockingPublisher) Flush() (int, int) { return 0, 0 }

func TestLaneWorker_ForceCloseDropsPendingAndExitsPromptly(t *testing.T) {
	unblock := make(chan struct{})
	pub := blockingPublisher{unblock: unblock}
	w := NewLaneWorker(0, pub, 10)

	w.Submit(record.Record{Loan: "x", Seq: 0}) // occupies the worker's Send call
	for i := int64(1); i < 5; i++ {
		w.Submit(record.Record{Loan: "x", Seq: i})
	}

	w.ForceClose()
	close(unblock) // release the in-flight Send so run() can observe the stop

	if !w.Join(2 * time.Second) {
		t.Fatalf("worker did not exit after ForceClose")
	}
}

var errTransport = errors.New("transport error")

type erroringPublisher struct{}

func (erroringPublisher) Send(record.Record) (bool, error) { return false, errTransport }
func (erroringPublisher) Flush() (int, int)                { return 0, 0 }

func TestLaneWorker_SendErrorCountsAsFailure(t *testing.T) {
	w := NewLaneWorker(0, erroringPublisher{}, 0)
	w.Submit(record.Record{Loan: "x", Seq: 0})
	w.Close()
	if !w.Join(2 * time.Second) {
		t.Fatalf("lane did not drain in time")
	}
	if w.Failed() != 1 {
		t.Fatalf("failed=%d, want 1", w.Failed())
	}
}
