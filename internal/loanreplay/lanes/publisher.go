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

// Package lanes implements the keyed fan-out multiplexer: a fixed array of
// serial lane workers, each bound to a stable hash range of loan ids, each
// owning one downstream Publisher.
package lanes

import "vsa/internal/loanreplay/record"

// Publisher is the capability the two sink variants (direct-request and
// batched) share; a LaneWorker depends only on this, never on a concrete
// sink type, the same adapter-interface discipline as a persistence
// layer's swappable backends.
type Publisher interface {
	// Send delivers one record. A false return or error both count as one
	// failure; the caller never retries at this layer (retries, if any,
	// are the publisher's own internal concern).
	Send(r record.Record) (bool, error)

	// Flush releases any buffered state (no-op for stateless publishers).
	// It returns the number of additional successes and failures produced
	// by the flush itself, since a batched publisher's pending buffer may
	// still hold unacknowledged entries.
	Flush() (successes, failures int)
}

// Factory builds the publisher instance owned by one lane. Called lazily
// when the lane worker starts.
type Factory func(laneID int) Publisher
