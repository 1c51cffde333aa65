// Package strings cleans list-valued settings.
package strings

import (
	"strings"
)

// SplitList flattens comma separated entries, trims whitespace and drops
// blanks and repeats. Order of first appearance is kept.
//
//	SplitList([]string{"kafka-1:9092, kafka-2:9092", "kafka-1:9092", " "})
//	// []string{"kafka-1:9092", "kafka-2:9092"}
func SplitList(values []string) []string {
	if values == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		for part := range strings.SplitSeq(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if _, dup := seen[part]; dup {
				continue
			}
			seen[part] = struct{}{}
			out = append(out, part)
		}
	}
	return out
}
