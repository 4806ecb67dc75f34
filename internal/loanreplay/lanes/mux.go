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
	"time"

	"vsa/internal/loanreplay/record"
	"vsa/internal/loanreplay/telemetry"
)

// Mux is the fixed array of L lane workers. Once constructed its lane
// array never changes, so the only state shared between lane goroutines
// is this read-only slice.
type Mux struct {
	lanes []*LaneWorker
}

// New creates laneCount lane workers, each with its own publisher
// instance from factory, and starts each as an independent goroutine.
//
// maxWorkers is accepted for configuration parity with publish.max_workers
// but does not throttle anything here: lanes are cheap goroutines and
// every lane always runs, a cheap way to keep every lane ready before the
// first submission.
func New(laneCount, maxWorkers int, factory Factory) *Mux {
	_ = maxWorkers
	m := &Mux{lanes: make([]*LaneWorker, laneCount)}
	for i := 0; i < laneCount; i++ {
		m.lanes[i] = NewLaneWorker(i, factory(i), DefaultQueueCapacity)
	}
	return m
}

// LaneCount reports L.
func (m *Mux) LaneCount() int { return len(m.lanes) }

// Submit delegates to the target lane's Submit, blocking under
// backpressure if that lane's queue is full.
func (m *Mux) Submit(laneID int, r record.Record) {
	w := m.lanes[laneID]
	w.Submit(r)
	telemetry.ObserveLaneQueueDepth(laneID, len(w.queue))
}

// DrainAndClose enqueues a sentinel on every lane (after any work already
// queued), then waits for each lane to terminate with a timeout derived
// from deadline. Lanes that miss the deadline are left running and must
// be cleaned up by a subsequent ForceClose. Returns the sum of processed
// and failed counters observed after join attempts.
func (m *Mux) DrainAndClose(deadline time.Time) (processed, failed int) {
	for _, w := range m.lanes {
		w.Close()
	}
	for _, w := range m.lanes {
		timeout := time.Until(deadline)
		if timeout < 0 {
			timeout = 0
		}
		w.Join(timeout)
	}
	for _, w := range m.lanes {
		processed += int(w.Processed())
		failed += int(w.Failed())
	}
	return processed, failed
}

// forceCloseJoinTimeout bounds how long ForceClose waits for each lane to
// notice the stop signal and exit; it is intentionally short since
// ForceClose is the "give up now" path.
const forceCloseJoinTimeout = 100 * time.Millisecond

// ForceClose signals an abrupt stop on every lane, drops pending items,
// attempts a short publisher flush via each lane's own exit path, and
// joins with a short timeout. Always safe to call, including more than
// once, from a defer guard.
func (m *Mux) ForceClose() {
	for _, w := range m.lanes {
		w.ForceClose()
	}
	for _, w := range m.lanes {
		w.Join(forceCloseJoinTimeout)
	}
}

// Counters returns the current sum of processed/failed across all lanes.
// Safe to call at any time; values observed before a join completes are a
// lower bound.
func (m *Mux) Counters() (processed, failed int) {
	for _, w := range m.lanes {
		processed += int(w.Processed())
		failed += int(w.Failed())
	}
	return processed, failed
}
