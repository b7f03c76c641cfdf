// Copyright (c) 2026 John Earle
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

package synth

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Percent coerces a raw score value into a float. Numbers, json.Number and
// numeric strings are accepted; anything else, NaN and infinities are not.
func Percent(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(n), "%"), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// FormatScore renders a score for display: clamped to [0,100], rounded to a
// whole percent. A nil score renders as the placeholder.
func FormatScore(v *float64) string {
	if v == nil {
		return Placeholder
	}
	f, ok := Percent(*v)
	if !ok {
		return Placeholder
	}
	return fmt.Sprintf("%d%%", int(math.Round(clamp(f))))
}

// FormatRaw is FormatScore for an uncoerced backend value.
func FormatRaw(v any) string {
	f, ok := Percent(v)
	if !ok {
		return Placeholder
	}
	return FormatScore(&f)
}

func clamp(f float64) float64 {
	return math.Max(0, math.Min(100, f))
}
