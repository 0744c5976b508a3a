package tools

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrStatementRefused is returned for SQL the read-only policy does not allow
var ErrStatementRefused = errors.New("statement refused")

var readOnlyKeywords = map[string]struct{}{
	"select":  {},
	"with":    {},
	"explain": {},
	"show":    {},
	"values":  {},
	"table":   {},
}

// refusedWords mark statements that write or have side effects even when
// they start with a read keyword (SELECT ... INTO, sequence and lock functions)
var refusedWords = map[string]struct{}{
	"insert": {}, "update": {}, "delete": {}, "merge": {}, "upsert": {}, "replace": {},
	"drop": {}, "alter": {}, "truncate": {}, "create": {}, "grant": {}, "revoke": {},
	"into": {}, "copy": {}, "call": {}, "do": {}, "lock": {}, "vacuum": {}, "reindex": {},
	"attach": {}, "detach": {}, "pragma": {}, "notify": {},
	"nextval": {}, "setval": {}, "pg_advisory_lock": {}, "pg_advisory_xact_lock": {},
	"pg_terminate_backend": {}, "pg_cancel_backend": {}, "lo_import": {}, "lo_export": {},
	"set_config": {}, "dblink_exec": {},
}

// CheckReadOnly accepts a single statement starting with a read keyword and
// containing none of refusedWords, quoted text included. It is a first line
// only: read-only execution is enforced by the database (see
// store.QueryReadOnly).
func CheckReadOnly(query string) error {
	stmt := strings.TrimSpace(stripLeadingComments(query))
	stmt = strings.TrimRight(stmt, "; \t\r\n")
	if stmt == "" {
		return fmt.Errorf("%w: empty statement", ErrStatementRefused)
	}
	if strings.Contains(stmt, ";") {
		return fmt.Errorf("%w: multiple statements", ErrStatementRefused)
	}

	words := strings.FieldsFunc(strings.ToLower(stmt), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	if len(words) == 0 {
		return fmt.Errorf("%w: no keyword", ErrStatementRefused)
	}
	if _, ok := readOnlyKeywords[words[0]]; !ok {
		return fmt.Errorf("%w: %s is not a read statement", ErrStatementRefused, strings.ToUpper(words[0]))
	}
	for _, w := range words[1:] {
		if _, ok := refusedWords[w]; ok {
			return fmt.Errorf("%w: contains %s", ErrStatementRefused, strings.ToUpper(w))
		}
	}
	return nil
}

func stripLeadingComments(s string) string {
	for {
		s = strings.TrimLeft(s, " \t\r\n")
		switch {
		case strings.HasPrefix(s, "--"):
			i := strings.IndexByte(s, '\n')
			if i < 0 {
				return ""
			}
			s = s[i+1:]
		case strings.HasPrefix(s, "/*"):
			i := strings.Index(s, "*/")
			if i < 0 {
				return ""
			}
			s = s[i+2:]
		default:
			return s
		}
	}
}
