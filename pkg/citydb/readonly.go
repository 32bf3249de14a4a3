package citydb

import (
	"fmt"
	"strings"
	"unicode"
)

var readOnlyKeywords = map[string]bool{
	"SELECT":   true,
	"WITH":     true,
	"EXPLAIN":  true,
	"VALUES":   true,
	"SHOW":     true,
	"DESCRIBE": true,
}

var writeKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "CREATE", "ALTER", "TRUNCATE",
	"MERGE", "GRANT", "REVOKE", "ATTACH", "DETACH", "PRAGMA",
	"VACUUM", "COPY", "CALL", "DO", "SET", "LOCK", "REINDEX",
}

// CheckReadOnly rejects anything but a single query statement. The statement
// also runs in a read-only transaction; this check gives a clear error early.
func CheckReadOnly(query string) error {
	stmt, rest := splitStatement(stripComments(query))
	if strings.TrimSpace(rest) != "" {
		return fmt.Errorf("%w: multiple statements", ErrNotReadOnly)
	}
	words := keywords(stmt)
	if len(words) == 0 {
		return fmt.Errorf("%w: empty statement", ErrNotReadOnly)
	}
	if !readOnlyKeywords[words[0]] {
		return fmt.Errorf("%w: %s", ErrNotReadOnly, words[0])
	}
	if words[0] == "WITH" || words[0] == "EXPLAIN" {
		for _, w := range words[1:] {
			for _, k := range writeKeywords {
				if w == k {
					return fmt.Errorf("%w: %s", ErrNotReadOnly, w)
				}
			}
		}
	}
	return nil
}

// stripComments removes -- and /* */ comments outside string literals.
func stripComments(s string) string {
	var b strings.Builder
	var quote rune
	rs := []rune(s)
	for i := 0; i < len(rs); i++ {
		c := rs[i]
		if quote != 0 {
			b.WriteRune(c)
			if c == quote {
				quote = 0
			}
			continue
		}
		switch {
		case c == '\'' || c == '"':
			quote = c
			b.WriteRune(c)
		case c == '-' && i+1 < len(rs) && rs[i+1] == '-':
			for i < len(rs) && rs[i] != '\n' {
				i++
			}
			b.WriteRune(' ')
		case c == '/' && i+1 < len(rs) && rs[i+1] == '*':
			i += 2
			for i+1 < len(rs) && !(rs[i] == '*' && rs[i+1] == '/') {
				i++
			}
			i++
			b.WriteRune(' ')
		default:
			b.WriteRune(c)
		}
	}
	return b.String()
}

// splitStatement returns the first statement and whatever follows its
// terminating semicolon.
func splitStatement(s string) (string, string) {
	var quote rune
	for i, c := range s {
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == ';':
			return s[:i], s[i+1:]
		}
	}
	return s, ""
}

// keywords returns the upper-cased bare words outside string literals.
func keywords(s string) []string {
	var (
		out   []string
		cur   strings.Builder
		quote rune
	)
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, strings.ToUpper(cur.String()))
			cur.Reset()
		}
	}
	for _, c := range s {
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch {
		case c == '\'' || c == '"':
			flush()
			quote = c
		case unicode.IsLetter(c) || c == '_':
			cur.WriteRune(c)
		case unicode.IsDigit(c) && cur.Len() > 0:
			cur.WriteRune(c)
		default:
			flush()
		}
	}
	flush()
	return out
}
