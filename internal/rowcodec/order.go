package rowcodec

import (
	"sort"
	"strings"
)

// OrderColumns returns columns sorted by case-insensitive name, the
// deterministic parameter order required by component-design.md section
// 4.1 ("Parameter order is deterministic: columns sorted by case-insensitive
// name. This matters for positional-parameter backends.") and section 4.2
// ("Column set for UPDATE is sorted case-insensitively for deterministic
// parameter binding.").
func OrderColumns(columns []string) []string {
	out := make([]string, len(columns))
	copy(out, columns)

	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i]) < strings.ToLower(out[j])
	})

	return out
}
