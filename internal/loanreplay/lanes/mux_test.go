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
	"testing"
	"time"

	"vsa/internal/loanreplay/hashutil"
	"vsa/internal/loanreplay/record"
)

func TestMux_StableRoutingAndOrderPreservation(t *testing.T) {
	const laneCount = 8
	var mu sync.Mutex
	perLoan := map[string][]int64{}

	factory := func(laneID int) Publisher {
		return publisherFunc(func(r record.Record) (bool, error) {
			mu.Lock()
			perLoan[r.Loan] = append(perLoan[r.Loan], r.Seq)
			mu.Unlock()
			return true, nil
		})
	}

	mux := New(laneCount, laneCount, factory)

	loans := []string{"0000000001", "0000000002", "0000000003"}
	for seq := int64(0); seq < 30; seq++ {
		loan := loans[seq%int64(len(loans))]
		laneID := hashutil.LaneFor(loan, laneCount)
		mux.Submit(laneID, record.Record{Loan: loan, Seq: seq})
	}

	processed, failed := mux.DrainAndClose(time.Now().Add(5 * time.Second))
	if failed != 0 {
		t.Fatalf("unexpected failures: %d", failed)
	}
	if processed != 30 {
		t.Fatalf("processed=%d, want 30", processed)
	}

	mu.Lock()
	defer mu.Unlock()
	for loan, seqs := range perLoan {
		for i := 1; i < len(seqs); i++ {
			if seqs[i] <= seqs[i-1] {
				t.Fatalf("loan %s observed out-of-order seqs: %v", loan, seqs)
			}
		}
	}
}

func TestMux_ForceCloseIsIdempotentAndSafe(t *testing.T) {
	mux := New(4, 4, func(int) Publisher {
		return publisherFunc(func(record.Record) (bool, error) { return true, nil })
	})
	mux.ForceClose()
	mux.ForceClose() // must not panic or block
}

// publisherFunc adapts a plain function to the Publisher interface for
// tests, analogous to http.HandlerFunc.
type publisherFunc func(record.Record) (bool, error)

func (f publisherFunc) Send(r record.Record) (bool, error) { return f(r) }
func (publisherFunc) Flush() (int, int)                    { return 0, 0 }
