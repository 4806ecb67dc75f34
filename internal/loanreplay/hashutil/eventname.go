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
	"fmt"
	"strings"
)

// eventNameFallbackFields is the order in which record fields are checked
// when neither explicit nor source_name conventions apply.
var eventNameFallbackFields = []string{"eventName", "event_type", "eventType"}

// DeriveEventName resolves the event name for a record: explicit wins if non-empty;
// otherwise source name prefixes (LOAN_, REPORTINGPAYLOAD_) map to fixed
// event names; otherwise the first present record field from
// eventNameFallbackFields is used; otherwise "UnknownEvent".
func DeriveEventName(sourceName, explicit string, record map[string]any) string {
	if explicit != "" {
		return explicit
	}
	upper := strings.ToUpper(strings.TrimSpace(sourceName))
	switch {
	case strings.HasPrefix(upper, "LOAN_"):
		return "LoanOnboardCompleted"
	case strings.HasPrefix(upper, "REPORTINGPAYLOAD_"):
		return "ServicerFileReported"
	}
	for _, k := range eventNameFallbackFields {
		if v, ok := record[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
			return toStringValue(v)
		}
	}
	return "UnknownEvent"
}

func toStringValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}
