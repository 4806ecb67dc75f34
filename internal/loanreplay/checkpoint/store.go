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

// Package checkpoint persists the next_offset a driver invocation leaves
// off at, keyed by job id, so a chain of retried or resumed Lambda
// invocations can continue without an external orchestrator tracking
// offsets itself. Storage is optional: a nil Store simply means the
// caller (the handler) supplies offset on every invocation instead.
package checkpoint

import "context"

// Store is the minimal checkpoint surface the driver's caller depends on.
// SetNextOffset must be monotonic: an offset lower than the one already
// stored for jobID is a no-op, mirroring the record-source invariant that
// next_offset only ever advances.
type Store interface {
	GetNextOffset(ctx context.Context, jobID string) (offset int64, ok bool, err error)
	SetNextOffset(ctx context.Context, jobID string, offset int64) error
}
