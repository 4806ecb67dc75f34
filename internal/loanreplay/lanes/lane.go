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
	"sync"
	"sync/atomic"
	"time"

	"vsa/internal/loanreplay/record"
	"vsa/internal/loanreplay/telemetry"
)

// DefaultQueueCapacity is the lane queue capacity, the sole backpressure
// mechanism. Submitters block once a lane's queue is full.
const DefaultQueueCapacity = 10_000

type queueItem struct {
	rec      record.Record
	sentinel bool
}

// LaneWorker owns one FIFO queue and one Publisher instance. It consumes
// strictly in enqueue order, counting successes/failures, generalizing a
// background committer lifecycle (start/stop over a channel) into a
// per-lane blocking-channel consumer instead of a ticker loop.
type LaneWorker struct {
	id  int
	pub Publisher

	queue  chan queueItem
	stopCh chan struct{}
	done   chan struct{}

	stopOnce sync.Once

	processed atomic.Int64
	failed    atomic.Int64
}

// NewLaneWorker constructs a lane and starts its consumer goroutine.
// queueCapacity <= 0 uses DefaultQueueCapacity.
func NewLaneWorker(id int, pub Publisher, queueCapacity int) *LaneWorker {
	if queueCapacity <= 0 {
		queueCapacity = DefaultQueueCapacity
	}
	w := &LaneWorker{
		id:     id,
		pub:    pub,
		queue:  make(chan queueItem, queueCapacity),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go w.run()
	return w
}

// Submit enqueues a record, blocking if the lane's queue is full. This
// block is the system's only backpressure mechanism.
func (w *LaneWorker) Submit(r record.Record) {
	w.queue <- queueItem{rec: r}
}

// Close enqueues a sentinel after any already-queued work, signalling the
// worker to drain and exit once it reaches the sentinel.
func (w *LaneWorker) Close() {
	w.queue <- queueItem{sentinel: true}
}

// ForceClose discards pending work and requests immediate exit. Safe to
// call more than once and safe to call from a defer/finally-style guard.
func (w *LaneWorker) ForceClose() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	for {
		select {
		case <-w.queue:
		default:
			return
		}
	}
}

// Join blocks until the worker has exited (normally or forced) or timeout
// elapses, reporting whether it exited in time.
func (w *LaneWorker) Join(timeout time.Duration) bool {
	if timeout < 0 {
		timeout = 0
	}
	select {
	case <-w.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Processed and Failed are safe to read at any time; they are monotonic
// while the worker runs and final once Join returns true.
func (w *LaneWorker) Processed() int64 { return w.processed.Load() }
func (w *LaneWorker) Failed() int64    { return w.failed.Load() }

func (w *LaneWorker) run() {
	defer close(w.done)

loop:
	for {
		select {
		case <-w.stopCh:
			break loop
		case item := <-w.queue:
			if item.sentinel {
				break loop
			}
			if w.sendOne(item.rec) {
				w.processed.Add(1)
			} else {
				w.failed.Add(1)
			}
		}
	}

	fs, ff := w.flushPublisher()
	w.processed.Add(int64(fs))
	w.failed.Add(int64(ff))
}

// sendOne calls the publisher and treats both a returned error and a
// recovered panic as a failure. A record is never re-queued.
func (w *LaneWorker) sendOne(r record.Record) (ok bool) {
	start := time.Now()
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	sent, err := w.pub.Send(r)
	ok = err == nil && sent
	if ok {
		telemetry.ObserveSend(1, 1, 0, time.Since(start))
	} else {
		telemetry.ObserveSend(1, 0, 1, time.Since(start))
	}
	return ok
}

func (w *LaneWorker) flushPublisher() (successes, failures int) {
	start := time.Now()
	defer func() {
		if recover() != nil {
			// A panicking flush contributes neither successes nor failures
			// beyond what it already reported; best effort only.
		}
	}()
	successes, failures = w.pub.Flush()
	telemetry.ObserveSend(successes+failures, successes, failures, time.Since(start))
	return successes, failures
}
