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

package source

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3API is the minimal surface this adapter needs from an S3 client,
// mirroring persistence.RedisEvaler's small-adapter-interface habit
// (internal/ratelimiter/persistence/clients.go) so tests can fake it
// without a real bucket.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// ParseS3URI splits an "s3://bucket/key" URI.
func ParseS3URI(uri string) (bucket, key string, err error) {
	const prefix = "s3://"
	if !strings.HasPrefix(uri, prefix) {
		return "", "", fmt.Errorf("source: s3_uri must start with s3://, got %q", uri)
	}
	rest := uri[len(prefix):]
	slash := strings.IndexByte(rest, '/')
	if slash < 0 {
		return rest, "", nil
	}
	return rest[:slash], strings.TrimLeft(rest[slash+1:], "/"), nil
}

func isGzipEncoded(out *s3.GetObjectOutput, key string) bool {
	if out.ContentEncoding != nil && *out.ContentEncoding == "gzip" {
		return true
	}
	return strings.HasSuffix(key, ".gz")
}

// NDJSONIterator streams newline-delimited JSON objects from S3, decoding
// transparently through gzip when the object or key indicates it.
type NDJSONIterator struct {
	scanner *bufio.Scanner
	closer  io.Closer
	idx     int64
	offset  int64
	limit   int64
	emitted int64
}

// NewNDJSONIterator fetches the object once and prepares line-by-line
// scanning starting at offset; limit caps the number of records emitted
// (0 = unlimited), matching s3_replay.{offset,limit}.
func NewNDJSONIterator(ctx context.Context, client S3API, s3uri string, offset, limit int64) (*NDJSONIterator, error) {
	bucket, key, err := ParseS3URI(s3uri)
	if err != nil {
		return nil, err
	}
	out, err := client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return nil, fmt.Errorf("source: s3 GetObject %s: %w", s3uri, err)
	}

	var reader io.Reader = out.Body
	var closer io.Closer = out.Body
	if isGzipEncoded(out, key) {
		gz, err := gzip.NewReader(out.Body)
		if err != nil {
			out.Body.Close()
			return nil, fmt.Errorf("source: gzip decode %s: %w", s3uri, err)
		}
		reader = gz
		closer = gz
	}

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	return &NDJSONIterator{scanner: scanner, closer: closer, offset: offset, limit: limit}, nil
}

// Next implements Iterator.
func (it *NDJSONIterator) Next() (int64, map[string]any, bool, error) {
	if it.limit > 0 && it.emitted >= it.limit {
		return 0, nil, false, nil
	}
	for it.scanner.Scan() {
		idx := it.idx
		it.idx++
		line := it.scanner.Bytes()
		if idx < it.offset || len(line) == 0 {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal(line, &rec); err != nil {
			return 0, nil, false, fmt.Errorf("source: decode ndjson line %d: %w", idx, err)
		}
		it.emitted++
		return idx, rec, true, nil
	}
	if err := it.scanner.Err(); err != nil {
		return 0, nil, false, fmt.Errorf("source: scan ndjson: %w", err)
	}
	return 0, nil, false, nil
}

// Close releases the underlying object body.
func (it *NDJSONIterator) Close() error {
	return it.closer.Close()
}

// JSONArrayIterator loads a whole JSON array into memory before iterating,
// for small replay files only.
type JSONArrayIterator struct {
	records []map[string]any
	offset  int64
	limit   int64
	pos     int
	emitted int64
}

func NewJSONArrayIterator(ctx context.Context, client S3API, s3uri string, offset, limit int64) (*JSONArrayIterator, error) {
	bucket, key, err := ParseS3URI(s3uri)
	if err != nil {
		return nil, err
	}
	out, err := client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return nil, fmt.Errorf("source: s3 GetObject %s: %w", s3uri, err)
	}
	defer out.Body.Close()

	var body io.Reader = out.Body
	if isGzipEncoded(out, key) {
		gz, err := gzip.NewReader(out.Body)
		if err != nil {
			return nil, fmt.Errorf("source: gzip decode %s: %w", s3uri, err)
		}
		defer gz.Close()
		body = gz
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("source: read %s: %w", s3uri, err)
	}
	var records []map[string]any
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("source: decode json array %s: %w", s3uri, err)
	}
	return &JSONArrayIterator{records: records, offset: offset, limit: limit}, nil
}

// Next implements Iterator.
func (it *JSONArrayIterator) Next() (int64, map[string]any, bool, error) {
	if it.limit > 0 && it.emitted >= it.limit {
		return 0, nil, false, nil
	}
	for it.pos < len(it.records) {
		idx := int64(it.pos)
		it.pos++
		if idx < it.offset {
			continue
		}
		it.emitted++
		return idx, it.records[idx], true, nil
	}
	return 0, nil, false, nil
}
