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

package driver

import (
	"sync"
	"testing"
	"time"

	"vsa/internal/loanreplay/hashutil"
	"vsa/internal/loanreplay/lanes"
	"vsa/internal/loanreplay/record"
)

// recordingPublisher captures every record handed to it; safe for
// concurrent use since each lane owns its own instance but tests may
// inspect after a drain completes.
type recordingPublisher struct {
	mu   sync.Mutex
	sent []record.Record
}

func (p *recordingPublisher) Send(r record.Record) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, r)
	return true, nil
}
func (p *recordingPublisher) Flush() (int, int) { return 0, 0 }

type fakeIterator struct {
	records []map[string]any
	pos     int
}

func (it *fakeIterator) Next() (int64, map[string]any, bool, error) {
	if it.pos >= len(it.records) {
		return 0, nil, false, nil
	}
	seq := int64(it.pos)
	rec := it.records[it.pos]
	it.pos++
	return seq, rec, true, nil
}

func recordingFactory() (*Config, map[int]*recordingPublisher) {
	pubs := map[int]*recordingPublisher{}
	var mu sync.Mutex
	factory := func(laneID int) lanes.Publisher {
		mu.Lock()
		defer mu.Unlock()
		p := &recordingPublisher{}
		pubs[laneID] = p
		return p
	}
	return &Config{LaneCount: 4, Factory: factory}, pubs
}

// Cloning a template N times derives a distinct, deterministic loan
// number per sequence position from the job id and sequence.
func TestRun_CloneDerivedLoans(t *testing.T) {
	cfg, pubs := recordingFactory()
	cfg.Mode = ModeTemplateClone
	cfg.JobID = "JOB-1234"
	cfg.Clone = CloneConfig{
		Template:       map[string]any{},
		Count:          2,
		SeqStart:       0,
		SequencePrefix: "",
		LoanRule:       LoanRuleDerivePerSeq,
		EventName:      "LoanEvent",
	}

	result, err := Run(*cfg, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Processed != 2 || result.Failed != 0 {
		t.Fatalf("result=%+v, want processed=2 failed=0", result)
	}
	if result.NextOffset == nil || *result.NextOffset != 2 {
		t.Fatalf("NextOffset=%v, want 2", result.NextOffset)
	}

	var got []record.Record
	for _, p := range pubs {
		got = append(got, p.sent...)
	}
	if len(got) != 2 {
		t.Fatalf("got %d sent records, want 2", len(got))
	}
	for _, r := range got {
		want := hashutil.GenerateLoan("", r.Seq, "JOB-1234")
		if r.Loan != want {
			t.Fatalf("loan for seq %d = %q, want %q", r.Seq, r.Loan, want)
		}
		if r.EventName != "LoanEvent" {
			t.Fatalf("EventName=%q, want LoanEvent", r.EventName)
		}
	}
}

func TestRun_ReplayExtractsLoanByFieldAliasOrder(t *testing.T) {
	cfg, pubs := recordingFactory()
	cfg.Mode = ModeS3Replay
	cfg.JobID = "JOB-1"
	cfg.Replay = ReplayConfig{
		Iterator: &fakeIterator{records: []map[string]any{
			{"loanNumber": "12-34"},
			{"LoanNumber": "5678"},
			{"loan_no": "999"},
		}},
		SourceName: "loan_file.json",
	}

	result, err := Run(*cfg, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Processed != 3 {
		t.Fatalf("Processed=%d, want 3", result.Processed)
	}

	byLoan := map[string]bool{}
	for _, p := range pubs {
		for _, r := range p.sent {
			byLoan[r.Loan] = true
			if r.EventName != "LoanOnboardCompleted" {
				t.Fatalf("EventName=%q, want LoanOnboardCompleted (loan_ prefix)", r.EventName)
			}
		}
	}
	for _, want := range []string{"0000001234", "0000005678", "0000000999"} {
		if !byLoan[want] {
			t.Fatalf("missing normalized loan %q in %v", want, byLoan)
		}
	}
}

func TestRun_MaxMessagesCapMarksPartialAndStopsEarly(t *testing.T) {
	cfg, pubs := recordingFactory()
	cfg.Mode = ModeTemplateClone
	cfg.JobID = "JOB-1"
	cfg.MaxMessagesPerInvocation = 1
	cfg.Clone = CloneConfig{Template: map[string]any{}, Count: 5, LoanRule: LoanRuleDerivePerSeq}

	result, err := Run(*cfg, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Partial {
		t.Fatalf("expected Partial=true when the cap stops enqueueing early")
	}
	if result.Processed != 1 {
		t.Fatalf("Processed=%d, want 1", result.Processed)
	}
	if result.NextOffset == nil || *result.NextOffset != 1 {
		t.Fatalf("NextOffset=%v, want 1", result.NextOffset)
	}
	_ = pubs
}

func TestRun_DeadlineNearStopsEnqueueingAndMarksPartial(t *testing.T) {
	cfg, _ := recordingFactory()
	cfg.Mode = ModeTemplateClone
	cfg.JobID = "JOB-1"
	cfg.Clone = CloneConfig{Template: map[string]any{}, Count: 1000, LoanRule: LoanRuleDerivePerSeq}

	// A deadline already inside the 5s soft margin stops before the first
	// iteration's post-submit check even allows more than one record
	// through, and always marks the result partial.
	result, err := Run(*cfg, time.Now().Add(2*time.Second))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Partial {
		t.Fatalf("expected Partial=true when the deadline stops enqueueing early")
	}
	if result.Processed >= 1000 {
		t.Fatalf("Processed=%d, should have stopped well short of 1000", result.Processed)
	}
}

// Re-invoking with offset = previous.next_offset yields submissions
// for seq >= next_offset only.
func TestRun_ResumabilityWithOffset(t *testing.T) {
	recs := []map[string]any{
		{"loanNumber": "1"}, {"loanNumber": "2"}, {"loanNumber": "3"},
	}

	cfg1, _ := recordingFactory()
	cfg1.Mode = ModeS3Replay
	cfg1.JobID = "JOB-1"
	cfg1.MaxMessagesPerInvocation = 2
	cfg1.Replay = ReplayConfig{Iterator: &fakeIterator{records: recs}, SourceName: "x.json"}

	result1, err := Run(*cfg1, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("Run 1: %v", err)
	}
	if result1.NextOffset == nil || *result1.NextOffset != 2 {
		t.Fatalf("first run NextOffset=%v, want 2", result1.NextOffset)
	}

	// Resume: the caller is responsible for an iterator that starts at
	// next_offset; here that means skipping the first two records.
	cfg2, pubs2 := recordingFactory()
	cfg2.Mode = ModeS3Replay
	cfg2.JobID = "JOB-1"
	cfg2.Replay = ReplayConfig{Iterator: &fakeIterator{records: recs[2:]}, SourceName: "x.json"}

	result2, err := Run(*cfg2, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("Run 2: %v", err)
	}
	if result2.Processed != 1 {
		t.Fatalf("second run Processed=%d, want 1", result2.Processed)
	}
	var got string
	for _, p := range pubs2 {
		for _, r := range p.sent {
			got = r.Loan
		}
	}
	if got != "0000000003" {
		t.Fatalf("resumed loan=%q, want 0000000003", got)
	}
}

func TestRun_CloneTemplateLoanRuleNormalizesTemplateField(t *testing.T) {
	cfg, pubs := recordingFactory()
	cfg.Mode = ModeTemplateClone
	cfg.JobID = "JOB-1"
	cfg.Clone = CloneConfig{
		Template: map[string]any{"loanNumber": "77-77"},
		Count:    1,
		LoanRule: LoanRuleTemplate,
	}

	result, err := Run(*cfg, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Processed != 1 {
		t.Fatalf("Processed=%d, want 1", result.Processed)
	}
	var got string
	for _, p := range pubs {
		for _, r := range p.sent {
			got = r.Loan
		}
	}
	if got != "0000007777" {
		t.Fatalf("loan=%q, want 0000007777", got)
	}
}

func TestConfig_Validate_RejectsBadMode(t *testing.T) {
	cfg := Config{Mode: "BOGUS", LaneCount: 1, Factory: func(int) lanes.Publisher { return nil }}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for invalid mode")
	}
}

func TestConfig_Validate_RejectsNonPositiveCloneCount(t *testing.T) {
	cfg := Config{Mode: ModeTemplateClone, LaneCount: 1, Factory: func(int) lanes.Publisher { return nil }, Clone: CloneConfig{Count: 0}}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for count <= 0")
	}
}

func TestConfig_Validate_RejectsTemplateLoanRuleWithoutLoanField(t *testing.T) {
	cfg := Config{
		Mode:      ModeTemplateClone,
		LaneCount: 1,
		Factory:   func(int) lanes.Publisher { return nil },
		Clone:     CloneConfig{Count: 1, LoanRule: LoanRuleTemplate, Template: map[string]any{}},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for missing template loanNumber")
	}
}
