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

// Package record defines the in-flight unit the publishing pipeline moves:
// one loan event, its derived attributes, and its source-order position.
package record

// Record is one loan event flowing through a lane. Loan is always a
// normalized 10-digit string (see hashutil.NormalizeLoan); Seq is the
// source-order index within the current invocation and is what
// InvocationResult.NextOffset resumes from.
type Record struct {
	Loan       string
	EventName  string
	Payload    any
	Attributes map[string]string
	Seq        int64
}

// InvocationResult is the response shape returned by one driver run,
// the outcome reported to the caller.
type InvocationResult struct {
	Processed  int    `json:"processed"`
	Failed     int    `json:"failed"`
	NextOffset *int64 `json:"next_offset"`
	Partial    bool   `json:"partial"`
	ElapsedMs  int64  `json:"elapsed_ms"`
}
