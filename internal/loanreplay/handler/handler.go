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

package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"path"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"vsa/internal/loanreplay/checkpoint"
	"vsa/internal/loanreplay/driver"
	"vsa/internal/loanreplay/lanes"
	"vsa/internal/loanreplay/publish"
	"vsa/internal/loanreplay/source"
)

// defaultTimeBudgetSecs is the original Lambda's default time budget of
// 14 minutes.
const defaultTimeBudgetSecs = 840

// albResponse is the HTTP-gateway response shape an ALB target group
// front-end expects back from a Lambda integration.
type albResponse struct {
	StatusCode      int               `json:"statusCode"`
	Headers         map[string]string `json:"headers"`
	IsBase64Encoded bool              `json:"isBase64Encoded"`
	Body            string            `json:"body"`
}

// Handle decodes one invocation (raw or ALB-wrapped), runs the driver,
// and returns either the bare InvocationResult JSON or, when invoked
// through the HTTP-gateway front-end, an ALB-wrapped response.
func Handle(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	event, albWrapped, err := decodeInvocation(raw)
	if err != nil {
		return nil, err
	}

	cfg, deadline, store, err := buildConfig(ctx, event)
	if err != nil {
		return nil, err
	}

	result, err := driver.Run(cfg, deadline)
	if err != nil {
		return nil, err
	}

	if store != nil && result.NextOffset != nil {
		if serr := store.SetNextOffset(ctx, cfg.JobID, *result.NextOffset); serr != nil {
			log.Printf("handler: persisting checkpoint for job=%s offset=%d: %v", cfg.JobID, *result.NextOffset, serr)
		}
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("handler: marshal result: %w", err)
	}
	if !albWrapped {
		return resultJSON, nil
	}

	resp := albResponse{
		StatusCode:      200,
		Headers:         map[string]string{"Content-Type": "application/json"},
		IsBase64Encoded: false,
		Body:            string(resultJSON),
	}
	out, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("handler: marshal alb response: %w", err)
	}
	return out, nil
}

// buildConfig translates the decoded event into a driver.Config, the
// wall-clock deadline this invocation must respect, and the checkpoint
// store (nil if not configured) the caller should persist next_offset to
// once the driver returns.
//
// The deadline is publish.time_budget_secs (or its 840s default) from now,
// clamped to the Lambda runtime's own context deadline minus 5 seconds of
// headroom when that is earlier.
func buildConfig(ctx context.Context, event Event) (driver.Config, time.Time, checkpoint.Store, error) {
	m := map[string]any(event)

	start := time.Now()
	jobID := getString(m, "job_id", "")
	if jobID == "" {
		jobID = fmt.Sprintf("JOB-%d", start.Unix())
	}

	mode := driver.Mode(getString(m, "mode", ""))
	if mode != driver.ModeS3Replay && mode != driver.ModeTemplateClone {
		return driver.Config{}, time.Time{}, nil, fmt.Errorf("handler: mode must be %s or %s", driver.ModeS3Replay, driver.ModeTemplateClone)
	}

	laneCount := int(getInt(m, "publish.lane_count", 64))
	timeBudgetSecs := getInt(m, "publish.time_budget_secs", defaultTimeBudgetSecs)
	maxMessages := getInt(m, "publish.max_messages_per_invocation", 0)

	deadline := start.Add(time.Duration(timeBudgetSecs) * time.Second)
	if rtDeadline, ok := ctx.Deadline(); ok {
		clamped := rtDeadline.Add(-5 * time.Second)
		if clamped.Before(deadline) {
			deadline = clamped
		}
	}

	loanField := getString(m, "grouping.loan_field", "loanNumber")
	baseAttrs := getStringMap(m, "attributes")
	if _, ok := baseAttrs["jobId"]; !ok {
		baseAttrs["jobId"] = jobID
	}

	factory, err := buildFactory(ctx, m, jobID)
	if err != nil {
		return driver.Config{}, time.Time{}, nil, err
	}

	store, err := buildCheckpointStore(m)
	if err != nil {
		return driver.Config{}, time.Time{}, nil, err
	}

	cfg := driver.Config{
		Mode:                     mode,
		JobID:                    jobID,
		LaneCount:                laneCount,
		Factory:                  factory,
		MaxMessagesPerInvocation: maxMessages,
		LoanField:                loanField,
		BaseAttributes:           baseAttrs,
	}

	switch mode {
	case driver.ModeS3Replay:
		var checkpointOffset int64
		if store != nil {
			if off, ok, gerr := store.GetNextOffset(ctx, jobID); gerr != nil {
				return driver.Config{}, time.Time{}, nil, fmt.Errorf("handler: loading checkpoint for job=%s: %w", jobID, gerr)
			} else if ok {
				checkpointOffset = off
			}
		}
		replay, err := buildReplayConfig(ctx, m, checkpointOffset)
		if err != nil {
			return driver.Config{}, time.Time{}, nil, err
		}
		cfg.Replay = replay
	case driver.ModeTemplateClone:
		clone, err := buildCloneConfig(ctx, m)
		if err != nil {
			return driver.Config{}, time.Time{}, nil, err
		}
		cfg.Clone = clone
	}

	return cfg, deadline, store, nil
}

// buildCheckpointStore constructs the Redis-backed checkpoint store when
// checkpoint.enabled is set, so a chain of invocations for the same job
// id can resume from where the previous one left off without the caller
// tracking s3_replay.offset itself. Returns a nil Store when disabled.
func buildCheckpointStore(m map[string]any) (checkpoint.Store, error) {
	if !getBool(m, "checkpoint.enabled", false) {
		return nil, nil
	}
	addr := getString(m, "checkpoint.redis_addr", "")
	if addr == "" {
		return nil, fmt.Errorf("handler: checkpoint.redis_addr is required when checkpoint.enabled is true")
	}
	ttl := time.Duration(getInt(m, "checkpoint.ttl_secs", 0)) * time.Second
	client := checkpoint.NewGoRedisEvaler(addr)
	return checkpoint.NewRedisStore(client, ttl), nil
}

func buildFactory(ctx context.Context, m map[string]any, jobID string) (lanes.Factory, error) {
	backend := publish.Backend(getString(m, "backend", string(publish.BackendSubmitterHTTP)))

	pcfg := publish.Config{Backend: backend, JobID: jobID, BatchSize: 10}

	switch backend {
	case "", publish.BackendSubmitterHTTP:
		pcfg.HTTP = publish.HTTPConfig{
			BaseURL:  getString(m, "http.base_url", ""),
			Path:     getString(m, "http.path", "/sendMessage"),
			MaxPool:  int(getInt(m, "http.max_pool", 256)),
			TimeoutS: getFloat(m, "http.timeout_s", 3),
		}
	case publish.BackendSNS:
		pcfg.SNSTopicARN = getString(m, "sns.topic_arn", "")
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("handler: loading aws config for sns: %w", err)
		}
		pcfg.SNSClient = sns.NewFromConfig(awsCfg)
	}

	return publish.BuildFactory(pcfg)
}

// buildReplayConfig parses the s3_replay.* section. checkpointOffset is
// the offset the checkpoint store resumed to, if any; it is used only
// when the event doesn't set s3_replay.offset explicitly, letting an
// explicit offset in the event always win over a stored checkpoint.
func buildReplayConfig(ctx context.Context, m map[string]any, checkpointOffset int64) (driver.ReplayConfig, error) {
	s3uri := getString(m, "s3_replay.s3_uri", "")
	if s3uri == "" {
		return driver.ReplayConfig{}, fmt.Errorf("handler: s3_replay.s3_uri is required in %s mode", driver.ModeS3Replay)
	}
	format := strings.ToLower(getString(m, "s3_replay.format", "ndjson"))
	offset := getInt(m, "s3_replay.offset", checkpointOffset)
	limit := getInt(m, "s3_replay.limit", 0)

	_, key, err := source.ParseS3URI(s3uri)
	if err != nil {
		return driver.ReplayConfig{}, err
	}
	srcName := path.Base(key)

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return driver.ReplayConfig{}, fmt.Errorf("handler: loading aws config for s3: %w", err)
	}
	s3Client := s3.NewFromConfig(awsCfg)

	var it source.Iterator
	switch format {
	case "ndjson":
		it, err = source.NewNDJSONIterator(ctx, s3Client, s3uri, offset, limit)
	case "json_array":
		it, err = source.NewJSONArrayIterator(ctx, s3Client, s3uri, offset, limit)
	default:
		return driver.ReplayConfig{}, fmt.Errorf("handler: s3_replay.format must be ndjson or json_array, got %q", format)
	}
	if err != nil {
		return driver.ReplayConfig{}, err
	}

	return driver.ReplayConfig{
		Iterator:   it,
		SourceName: srcName,
		EventName:  getString(m, "s3_replay.event_name", ""),
	}, nil
}

func buildCloneConfig(ctx context.Context, m map[string]any) (driver.CloneConfig, error) {
	tcfg := getMap(m, "template_clone")
	if tcfg == nil {
		tcfg = map[string]any{}
	}

	count := getInt(tcfg, "count", 0)
	if count <= 0 {
		return driver.CloneConfig{}, fmt.Errorf("handler: template_clone.count must be > 0")
	}

	opts := source.TemplateOptions{
		Inline: getMap(tcfg, "template_inline"),
		S3URI:  getString(tcfg, "template_s3_uri", ""),
		Name:   getString(tcfg, "template_name", ""),
	}

	var s3Client source.S3API
	if opts.Inline == nil && opts.S3URI != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return driver.CloneConfig{}, fmt.Errorf("handler: loading aws config for template s3: %w", err)
		}
		s3Client = s3.NewFromConfig(awsCfg)
	}

	tmpl, srcName, err := source.LoadTemplate(ctx, s3Client, opts)
	if err != nil {
		return driver.CloneConfig{}, err
	}

	loanRule := driver.LoanRule(strings.ToLower(getString(tcfg, "loan_number_rule", string(driver.LoanRuleDerivePerSeq))))

	return driver.CloneConfig{
		Template:       tmpl,
		TemplateName:   srcName,
		Count:          count,
		SeqStart:       getInt(tcfg, "seq_start", 0),
		SequencePrefix: getString(tcfg, "sequence_prefix", ""),
		LoanRule:       loanRule,
		EventName:      getString(tcfg, "event_name", ""),
	}, nil
}
