package tracker

import "strings"

// Op is the parsed form of a ChangeLogEntry's operation string
// (component-design.md section 4.3, "Operation string grammar").
type Op struct {
	Kind    string   // "INSERT", "DELETE", or "UPDATE"
	Columns []string // dirty column set for UPDATE; nil means "full-row update"
}

// ParseOperation parses an operation string. UPDATE may carry a
// parenthesized, comma-separated column list: UPDATE(colA,colB). The empty
// list UPDATE or UPDATE() means "no column info, treat as full-row update."
// Unknown operation strings default to UPDATE.
func ParseOperation(s string) Op {
	switch {
	case s == "INSERT":
		return Op{Kind: "INSERT"}
	case s == "DELETE":
		return Op{Kind: "DELETE"}
	case s == "UPDATE" || s == "UPDATE()":
		return Op{Kind: "UPDATE"}
	case strings.HasPrefix(s, "UPDATE(") && strings.HasSuffix(s, ")"):
		inner := strings.TrimSuffix(strings.TrimPrefix(s, "UPDATE("), ")")
		if inner == "" {
			return Op{Kind: "UPDATE"}
		}

		parts := strings.Split(inner, ",")
		cols := make([]string, 0, len(parts))

		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cols = append(cols, p)
			}
		}

		if len(cols) == 0 {
			return Op{Kind: "UPDATE"}
		}

		return Op{Kind: "UPDATE", Columns: cols}
	default:
		return Op{Kind: "UPDATE"}
	}
}

// FormatOperation renders an Op back to its change-log string form.
func FormatOperation(op Op) string {
	if op.Kind != "UPDATE" || len(op.Columns) == 0 {
		return op.Kind
	}

	return "UPDATE(" + strings.Join(op.Columns, ",") + ")"
}
