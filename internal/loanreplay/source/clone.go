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

// CloneIterator synthesizes records by rendering a fixed template once per
// seq in [seqStart, seqStart+count). Loan extraction (derive_per_seq vs.
// template) and rendering are the driver's concern; this iterator only
// yields each seq together with the unrendered template.
type CloneIterator struct {
	template map[string]any
	seq      int64
	end      int64
}

// NewCloneIterator builds an iterator over [seqStart, seqStart+count).
func NewCloneIterator(template map[string]any, seqStart, count int64) *CloneIterator {
	return &CloneIterator{template: template, seq: seqStart, end: seqStart + count}
}

// Next implements Iterator. The loan placeholder is not substituted here —
// RenderWithLoan requires a resolved loan, which the driver computes per
// seq (derived from the job id and seq, or read from the template's own
// loan field), and then renders the returned template with it.
func (it *CloneIterator) Next() (int64, map[string]any, bool, error) {
	if it.seq >= it.end {
		return 0, nil, false, nil
	}
	seq := it.seq
	it.seq++
	return seq, it.template, true, nil
}
