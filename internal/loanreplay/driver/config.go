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

// Package driver owns the deadline, drives the record source, resolves
// loan and event name per record, and submits into the lane multiplexer.
package driver

import (
	"fmt"

	"vsa/internal/loanreplay/lanes"
	"vsa/internal/loanreplay/source"
)

// Mode selects how records are produced.
type Mode string

const (
	ModeS3Replay      Mode = "S3_REPLAY"
	ModeTemplateClone Mode = "TEMPLATE_CLONE"
)

// LoanRule selects how a clone's loan number is obtained.
type LoanRule string

const (
	LoanRuleDerivePerSeq LoanRule = "derive_per_seq"
	LoanRuleTemplate     LoanRule = "template"
)

// ReplayConfig configures S3_REPLAY mode. Iterator has already been built
// by the caller (plain NDJSON, gzip, or JSON-array) from s3_replay
// dials; SourceName is the basename of the replayed key, used for
// event-name convention matching.
type ReplayConfig struct {
	Iterator   source.Iterator
	SourceName string
	EventName  string // explicit override; empty defers to derivation
}

// CloneConfig configures TEMPLATE_CLONE mode.
type CloneConfig struct {
	Template       map[string]any
	TemplateName   string
	Count          int64
	SeqStart       int64
	SequencePrefix string
	LoanRule       LoanRule
	EventName      string
}

// Config is everything the driver needs for one invocation, already
// resolved by the caller (the dispatcher decodes the raw event, builds an
// S3 client and a lane factory, and loads any template).
type Config struct {
	Mode      Mode
	JobID     string
	LaneCount int
	Factory   lanes.Factory

	MaxMessagesPerInvocation int64
	LoanField                string
	BaseAttributes           map[string]string

	Replay ReplayConfig
	Clone  CloneConfig
}

// Validate performs the synchronous configuration checks that must fail
// before any submission: invalid mode, missing required fields, a
// non-positive clone count, or a clone template missing a loan number
// when LoanRuleTemplate is requested.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeS3Replay:
		if c.Replay.Iterator == nil {
			return fmt.Errorf("driver: s3_replay.s3_uri is required in %s mode", ModeS3Replay)
		}
	case ModeTemplateClone:
		if c.Clone.Count <= 0 {
			return fmt.Errorf("driver: template_clone.count must be > 0")
		}
		if c.Clone.LoanRule == LoanRuleTemplate {
			if _, err := templateLoan(c.Clone.Template); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("driver: mode must be %s or %s, got %q", ModeS3Replay, ModeTemplateClone, c.Mode)
	}
	if c.LaneCount <= 0 {
		return fmt.Errorf("driver: lane count must be > 0")
	}
	if c.Factory == nil {
		return fmt.Errorf("driver: publisher factory is required")
	}
	return nil
}
