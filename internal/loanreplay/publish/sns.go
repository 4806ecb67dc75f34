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
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// SNSAPI is the minimal surface this adapter needs from an SNS client,
// mirroring a similar habit of depending on small adapter interfaces
// (persistence.RedisEvaler, persistence.KafkaProducer) instead of a
// concrete SDK client so tests can fake it cheaply.
type SNSAPI interface {
	PublishBatch(ctx context.Context, params *sns.PublishBatchInput, optFns ...func(*sns.Options)) (*sns.PublishBatchOutput, error)
}

// SNSBatchSink publishes entries to an SNS FIFO topic.
// MessageGroupId carries the loan so the topic preserves intra-group
// order, and MessageDeduplicationId is the caller-provided dedup key.
type SNSBatchSink struct {
	client   SNSAPI
	topicArn string
}

func NewSNSBatchSink(client SNSAPI, topicArn string) *SNSBatchSink {
	return &SNSBatchSink{client: client, topicArn: topicArn}
}

// PublishBatch implements BatchSink.
func (s *SNSBatchSink) PublishBatch(ctx context.Context, entries []BatchEntry) (map[string]bool, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	req := &sns.PublishBatchInput{
		TopicArn:                   aws.String(s.topicArn),
		PublishBatchRequestEntries: make([]types.PublishBatchRequestEntry, 0, len(entries)),
	}
	for _, e := range entries {
		attrs := make(map[string]types.MessageAttributeValue, len(e.Attributes))
		for k, v := range e.Attributes {
			attrs[k] = types.MessageAttributeValue{
				DataType:    aws.String("String"),
				StringValue: aws.String(v),
			}
		}
		req.PublishBatchRequestEntries = append(req.PublishBatchRequestEntries, types.PublishBatchRequestEntry{
			Id:                     aws.String(e.ID),
			Message:                aws.String(string(e.Payload)),
			MessageGroupId:         aws.String(e.GroupKey),
			MessageDeduplicationId: aws.String(e.DedupKey),
			MessageAttributes:      attrs,
		})
	}

	resp, err := s.client.PublishBatch(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("publish: sns PublishBatch: %w", err)
	}

	if len(resp.Failed) == 0 {
		return nil, nil
	}
	failed := make(map[string]bool, len(resp.Failed))
	for _, f := range resp.Failed {
		if f.Id != nil {
			failed[*f.Id] = true
		}
	}
	return failed, nil
}
