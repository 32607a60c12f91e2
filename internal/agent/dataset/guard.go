package dataset

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrForbiddenStatement is returned for any statement the read-only guard rejects.
var ErrForbiddenStatement = errors.New("operación no permitida")

var (
	readOnlyPrefix = regexp.MustCompile(`(?i)^SELECT\b`)

	// Mutating verbs and schema statements, matched as whole words.
	forbiddenKeyword = regexp.MustCompile(`(?i)\b(DROP|DELETE|INSERT|UPDATE|ALTER|CREATE|ATTACH|DETACH|PRAGMA|VACUUM|REINDEX|TRUNCATE|REPLACE\s+INTO|UPSERT)\b`)
)

// Guard validates that query is a single read-only SELECT statement.
// The check is purely syntactic and runs before anything reaches the database.
func Guard(query string) error {
	q := strings.TrimSpace(query)
	if q == "" {
		return fmt.Errorf("%w: consulta vacía", ErrForbiddenStatement)
	}
	if !readOnlyPrefix.MatchString(q) {
		return fmt.Errorf("%w: solo se permiten consultas SELECT", ErrForbiddenStatement)
	}
	if kw := forbiddenKeyword.FindString(q); kw != "" {
		return fmt.Errorf("%w: la palabra clave '%s' está prohibida", ErrForbiddenStatement, strings.ToUpper(kw))
	}
	if strings.Contains(strings.TrimRight(q, "; \t\r\n"), ";") {
		return fmt.Errorf("%w: solo se permite una sentencia", ErrForbiddenStatement)
	}
	return nil
}
