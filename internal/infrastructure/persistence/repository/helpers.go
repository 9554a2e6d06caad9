package repository

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/garyjia/formflow/internal/infrastructure/persistence/sqlite"
)

// wrapErr adds the operation and maps SQLite contention and uniqueness
// violations onto the workflow error kinds
func wrapErr(op string, err error) error {
	return fmt.Errorf("failed to %s: %w", op, sqlite.TranslateError(err))
}

func marshalText(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalText(s string, v interface{}) error {
	if s == "" {
		return nil
	}
	return json.Unmarshal([]byte(s), v)
}

// placeholders returns "?, ?, ?" for n arguments
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}
