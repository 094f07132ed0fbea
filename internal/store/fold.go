package store

import "golang.org/x/text/cases"

var idCaser = cases.Fold()

// foldID returns the canonical comparison key for a primary-key ID string,
// matching the case-insensitive dedupe rule in component-design.md section
// 4.2 and the case-insensitive local-ID set built by the conflict resolver
// (component-design.md section 4.4).
func foldID(id string) string {
	return idCaser.String(id)
}
