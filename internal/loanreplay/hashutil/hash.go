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

// Package hashutil holds the small building blocks the publishing pipeline
// is built on: a stable per-loan digest (blake2b, from golang.org/x/crypto),
// loan number normalization/synthesis, and event-name derivation.
package hashutil

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// StableHash is a fixed, deterministic 64-bit digest of s. It must never
// depend on process-local randomization (no maphash, no fnv seeded per
// process) because lane assignment has to be stable across retries of the
// same invocation for resumability to hold.
func StableHash(s string) uint64 {
	h, err := blake2b.New(8, nil)
	if err != nil {
		// digest size 8 is always valid for blake2b; this cannot happen.
		panic(fmt.Sprintf("hashutil: blake2b init: %v", err))
	}
	_, _ = h.Write([]byte(s))
	return binary.BigEndian.Uint64(h.Sum(nil))
}

// LaneFor returns stable_hash(loan) mod laneCount. laneCount must be > 0.
func LaneFor(loan string, laneCount int) int {
	if laneCount <= 0 {
		panic("hashutil: laneCount must be > 0")
	}
	return int(StableHash(loan) % uint64(laneCount))
}

// digestHex16 returns the first 8 bytes of blake2b(s) as 16 lowercase hex
// characters, matching the original Python's
// hashlib.blake2b(..., digest_size=8).hexdigest().
func digestHex16(s string) string {
	h, err := blake2b.New(8, nil)
	if err != nil {
		panic(fmt.Sprintf("hashutil: blake2b init: %v", err))
	}
	_, _ = h.Write([]byte(s))
	return hex.EncodeToString(h.Sum(nil))
}
