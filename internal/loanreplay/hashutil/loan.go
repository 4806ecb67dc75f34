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

package hashutil

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// ErrEmptyLoan is returned by NormalizeLoan when raw has no digits at all.
var ErrEmptyLoan = errors.New("hashutil: loan number has no digits")

// NormalizeLoan strips every non-digit rune from raw, left-pads with zeros
// to 10 characters, and keeps the rightmost 10 digits if there are more
// than 10. It fails if raw has no digits.
func NormalizeLoan(raw string) (string, error) {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return "", ErrEmptyLoan
	}
	if len(digits) < 10 {
		return strings.Repeat("0", 10-len(digits)) + digits, nil
	}
	return digits[len(digits)-10:], nil
}

// GenerateLoan synthesizes a deterministic 10-digit loan number from a
// digits-only prefix and (jobID, seq). If prefix already has 10 digits it
// is returned as-is (truncated to 10 if longer). Otherwise the remaining
// digits come from a 16-hex-digit digest of "jobID:seq", reduced modulo
// 10^(10-len(prefix)) and zero-padded. Pure and stable across processes.
func GenerateLoan(prefix string, seq int64, jobID string) string {
	var b strings.Builder
	b.Grow(len(prefix))
	for _, r := range prefix {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	p := b.String()
	if len(p) > 10 {
		p = p[:10]
	}
	if len(p) == 10 {
		return p
	}

	rem := 10 - len(p)
	digest := digestHex16(fmt.Sprintf("%s:%d", jobID, seq))

	n := new(big.Int)
	n.SetString(digest, 16)
	mod := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(rem)), nil)
	n.Mod(n, mod)

	return fmt.Sprintf("%s%0*d", p, rem, n.Int64())
}
