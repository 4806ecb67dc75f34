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
	"fmt"
	"time"

	"vsa/internal/loanreplay/hashutil"
	"vsa/internal/loanreplay/lanes"
	"vsa/internal/loanreplay/record"
	"vsa/internal/loanreplay/source"
)

// softDeadlineMargin is how much time must remain before the driver stops
// enqueueing new work and moves to drain.
const softDeadlineMargin = 5 * time.Second

// fallbackLoanAliases are the record keys tried, in order, to find a replay
// record's loan number after the configured loan field.
var fallbackLoanAliases = []string{"LoanNumber", "loan_no", "loanId", "loan_id", "Loan_No"}

// Run drives one invocation to completion: it iterates the configured
// record source, computes lane routing and attributes for each record,
// submits into a freshly built lane multiplexer, and drains it under
// deadline. ForceClose always runs on every exit path.
func Run(cfg Config, deadline time.Time) (record.InvocationResult, error) {
	start := time.Now()
	if err := cfg.Validate(); err != nil {
		return record.InvocationResult{}, err
	}

	mux := lanes.New(cfg.LaneCount, cfg.LaneCount, cfg.Factory)
	defer mux.ForceClose()

	var (
		nextOffset *int64
		partial    bool
		enqueueErr error
	)

	switch cfg.Mode {
	case ModeS3Replay:
		nextOffset, partial, _, enqueueErr = runReplay(cfg, mux, deadline)
	case ModeTemplateClone:
		nextOffset, partial, _, enqueueErr = runClone(cfg, mux, deadline)
	}
	if enqueueErr != nil {
		return record.InvocationResult{}, enqueueErr
	}

	drainedProcessed, drainedFailed := mux.DrainAndClose(deadline)

	return record.InvocationResult{
		Processed:  drainedProcessed,
		Failed:     drainedFailed,
		NextOffset: nextOffset,
		Partial:    partial,
		ElapsedMs:  time.Since(start).Milliseconds(),
	}, nil
}

func runReplay(cfg Config, mux *lanes.Mux, deadline time.Time) (nextOffset *int64, partial bool, processed int64, err error) {
	loanField := cfg.LoanField
	if loanField == "" {
		loanField = "loanNumber"
	}
	aliases := loanAliases(loanField)

	for {
		seq, rec, ok, iterErr := cfg.Replay.Iterator.Next()
		if iterErr != nil {
			return nextOffset, partial, processed, fmt.Errorf("driver: reading replay source: %w", iterErr)
		}
		if !ok {
			break
		}

		loan, lerr := extractLoan(rec, aliases)
		if lerr != nil {
			return nextOffset, partial, processed, lerr
		}
		eventName := hashutil.DeriveEventName(cfg.Replay.SourceName, cfg.Replay.EventName, rec)

		payload := rec["payload"]
		if payload == nil {
			payload = rec
		}

		attrs := buildAttributes(cfg.BaseAttributes, cfg.JobID, eventName, loan)
		laneID := hashutil.LaneFor(loan, cfg.LaneCount)
		mux.Submit(laneID, record.Record{Loan: loan, EventName: eventName, Payload: payload, Attributes: attrs, Seq: seq})

		processed++
		off := seq + 1
		nextOffset = &off

		if cfg.MaxMessagesPerInvocation > 0 && processed >= cfg.MaxMessagesPerInvocation {
			partial = true
			break
		}
		if time.Until(deadline) <= softDeadlineMargin {
			partial = true
			break
		}
	}
	return nextOffset, partial, processed, nil
}

func runClone(cfg Config, mux *lanes.Mux, deadline time.Time) (nextOffset *int64, partial bool, processed int64, err error) {
	tmpl := cfg.Clone.Template
	defaultEventName := hashutil.DeriveEventName(cfg.Clone.TemplateName, cfg.Clone.EventName, tmpl)

	loanRule := cfg.Clone.LoanRule
	if loanRule == "" {
		loanRule = LoanRuleDerivePerSeq
	}

	var templateNormalizedLoan string
	if loanRule == LoanRuleTemplate {
		raw, terr := templateLoan(tmpl)
		if terr != nil {
			return nextOffset, partial, processed, terr
		}
		norm, nerr := hashutil.NormalizeLoan(raw)
		if nerr != nil {
			return nextOffset, partial, processed, fmt.Errorf("driver: template loan number: %w", nerr)
		}
		templateNormalizedLoan = norm
	}

	it := source.NewCloneIterator(tmpl, cfg.Clone.SeqStart, cfg.Clone.Count)
	for {
		seq, rawTmpl, ok, iterErr := it.Next()
		if iterErr != nil {
			return nextOffset, partial, processed, fmt.Errorf("driver: reading clone source: %w", iterErr)
		}
		if !ok {
			break
		}

		var loan string
		if loanRule == LoanRuleTemplate {
			loan = templateNormalizedLoan
		} else {
			loan = hashutil.GenerateLoan(cfg.Clone.SequencePrefix, seq, cfg.JobID)
		}

		rendered, ok := source.RenderWithLoan(rawTmpl, loan, seq).(map[string]any)
		if !ok {
			rendered = map[string]any{}
		}

		attrs := buildAttributes(cfg.BaseAttributes, cfg.JobID, defaultEventName, loan)
		laneID := hashutil.LaneFor(loan, cfg.LaneCount)
		mux.Submit(laneID, record.Record{Loan: loan, EventName: defaultEventName, Payload: rendered, Attributes: attrs, Seq: seq})

		processed++
		off := seq + 1
		nextOffset = &off

		if cfg.MaxMessagesPerInvocation > 0 && processed >= cfg.MaxMessagesPerInvocation {
			partial = true
			break
		}
		if time.Until(deadline) <= softDeadlineMargin {
			partial = true
			break
		}
	}
	return nextOffset, partial, processed, nil
}

func loanAliases(loanField string) []string {
	aliases := make([]string, 0, 1+len(fallbackLoanAliases))
	aliases = append(aliases, loanField)
	for _, a := range fallbackLoanAliases {
		if a != loanField {
			aliases = append(aliases, a)
		}
	}
	return aliases
}

func extractLoan(rec map[string]any, aliases []string) (string, error) {
	for _, k := range aliases {
		if v, ok := rec[k]; ok {
			return hashutil.NormalizeLoan(fmt.Sprint(v))
		}
	}
	return "", fmt.Errorf("driver: loan field not found in record; checked %v", aliases)
}

func templateLoan(tmpl map[string]any) (string, error) {
	for _, k := range []string{"loanNumber", "LoanNumber"} {
		if v, ok := tmpl[k]; ok {
			if s := fmt.Sprint(v); s != "" {
				return s, nil
			}
		}
	}
	return "", fmt.Errorf("driver: template missing loanNumber; set loan_number_rule=derive_per_seq or provide loanNumber in the template")
}

func buildAttributes(base map[string]string, jobID, eventName, loan string) map[string]string {
	attrs := make(map[string]string, len(base)+2)
	for k, v := range base {
		attrs[k] = v
	}
	if _, ok := attrs["jobId"]; !ok {
		attrs["jobId"] = jobID
	}
	attrs["eventName"] = eventName
	attrs["loanNumber"] = loan
	return attrs
}
