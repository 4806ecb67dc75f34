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

// Package handler decodes one Lambda invocation event (direct invoke or
// ALB-wrapped, base64 or not), builds a driver.Config, runs the driver,
// and wraps the InvocationResult as an ALB response when invoked through
// the HTTP-gateway front-end.
package handler

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Event is the decoded invocation body, a loose map mirroring the
// original invocation payload shape (mode, backend, http/sns, publish,
// grouping, s3_replay/template_clone, attributes).
type Event map[string]any

// decodeInvocation accepts either a raw invocation event or an
// ALB-wrapped one ({requestContext.elb, body, isBase64Encoded}) and
// returns the inner Event plus whether the caller expects an ALB-shaped
// response back.
func decodeInvocation(raw []byte) (Event, bool, error) {
	var outer map[string]any
	if err := json.Unmarshal(raw, &outer); err != nil {
		return nil, false, fmt.Errorf("handler: decoding invocation event: %w", err)
	}

	if !isALBWrapped(outer) {
		return Event(outer), false, nil
	}

	body, _ := outer["body"].(string)
	if encoded, _ := outer["isBase64Encoded"].(bool); encoded {
		decoded, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return nil, false, fmt.Errorf("handler: decoding base64 ALB body: %w", err)
		}
		body = string(decoded)
	}

	var inner map[string]any
	if err := json.Unmarshal([]byte(body), &inner); err != nil {
		return nil, false, fmt.Errorf("handler: decoding ALB body as JSON: %w", err)
	}
	return Event(inner), true, nil
}

func isALBWrapped(outer map[string]any) bool {
	rc, ok := outer["requestContext"].(map[string]any)
	if !ok {
		return false
	}
	_, ok = rc["elb"]
	return ok
}

// get does a dotted-path lookup into a nested map, mirroring the
// original dispatcher's convention of addressing "publish.lane_count"
// style keys without a config struct per section.
func get(d map[string]any, path string) (any, bool) {
	cur := any(d)
	for _, p := range splitPath(path) {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[p]
		if !ok || v == nil {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

func splitPath(path string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			parts = append(parts, path[start:i])
			start = i + 1
		}
	}
	parts = append(parts, path[start:])
	return parts
}

func getString(d map[string]any, path, def string) string {
	v, ok := get(d, path)
	if !ok {
		return def
	}
	s, ok := v.(string)
	if !ok {
		return def
	}
	return s
}

func getInt(d map[string]any, path string, def int64) int64 {
	v, ok := get(d, path)
	if !ok {
		return def
	}
	switch t := v.(type) {
	case float64:
		return int64(t)
	case int64:
		return t
	case int:
		return int64(t)
	default:
		return def
	}
}

func getMap(d map[string]any, path string) map[string]any {
	v, ok := get(d, path)
	if !ok {
		return nil
	}
	m, _ := v.(map[string]any)
	return m
}

func getFloat(d map[string]any, path string, def float64) float64 {
	v, ok := get(d, path)
	if !ok {
		return def
	}
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	default:
		return def
	}
}

func getBool(d map[string]any, path string, def bool) bool {
	v, ok := get(d, path)
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

func getStringMap(d map[string]any, path string) map[string]string {
	m := getMap(d, path)
	if m == nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		if s, ok := v.(string); ok {
			out[k] = s
		} else {
			out[k] = fmt.Sprint(v)
		}
	}
	return out
}
