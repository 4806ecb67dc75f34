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
	"fmt"

	"vsa/internal/loanreplay/lanes"
)

// Backend selects the downstream sink.
type Backend string

const (
	BackendSubmitterHTTP Backend = "submitter_http"
	BackendSNS           Backend = "sns"
)

// Config carries every dial needed to build either sink variant; only the
// fields relevant to the chosen Backend are read.
type Config struct {
	Backend Backend

	HTTP HTTPConfig

	SNSTopicARN string
	SNSClient   SNSAPI
	BatchSize   int
	JobID       string
}

// BuildFactory returns a lanes.Factory that builds one publisher per lane,
// generalizing a single process-wide persister adapter-selector into one
// publisher instance per lane, created lazily by the factory.
func BuildFactory(cfg Config) (lanes.Factory, error) {
	switch cfg.Backend {
	case "", BackendSubmitterHTTP:
		if cfg.HTTP.BaseURL == "" {
			return nil, fmt.Errorf("publish: http.base_url is required for backend %q", BackendSubmitterHTTP)
		}
		return func(laneID int) lanes.Publisher {
			return NewDirectRequestPublisher(cfg.HTTP)
		}, nil
	case BackendSNS:
		if cfg.SNSTopicARN == "" {
			return nil, fmt.Errorf("publish: sns.topic_arn is required for backend %q", BackendSNS)
		}
		if cfg.SNSClient == nil {
			return nil, fmt.Errorf("publish: sns client is required for backend %q", BackendSNS)
		}
		return func(laneID int) lanes.Publisher {
			sink := NewSNSBatchSink(cfg.SNSClient, cfg.SNSTopicARN)
			return NewBatchedPublisher(sink, cfg.BatchSize, cfg.JobID)
		}, nil
	default:
		return nil, fmt.Errorf("publish: unknown backend %q, want %q or %q", cfg.Backend, BackendSubmitterHTTP, BackendSNS)
	}
}
