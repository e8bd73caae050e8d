package process

import "strings"

// QuoteLiteral returns s as a single-quoted literal, doubling embedded single
// quotes the way powershell expects.
func QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
