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

// Package source implements the external record-source collaborators: the
// S3 NDJSON/JSON-array replay reader and the template-clone iterator.
// Neither loan extraction nor event-name derivation lives here; the driver
// applies those rules uniformly across both modes.
package source

// Iterator produces a finite, ordered sequence of (seq, record) pairs.
// Next returns ok=false once the sequence is exhausted; a non-nil err
// always implies ok=false.
type Iterator interface {
	Next() (seq int64, rec map[string]any, ok bool, err error)
}
