package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// TimeLayout is the on-disk representation of timestamps.
const TimeLayout = time.RFC3339

// FormatTime renders t for storage (always UTC).
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// Now returns the current time formatted for storage.
func Now() string {
	return FormatTime(time.Now())
}

// ScanTime returns a scanner that parses stored timestamps into dst.
// NULL leaves dst at its zero value.
func ScanTime(dst *time.Time) sql.Scanner {
	return (*timeScanner)(dst)
}

type timeScanner time.Time

func (s *timeScanner) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*s = timeScanner(time.Time{})
		return nil
	case time.Time:
		*s = timeScanner(v)
		return nil
	case string:
		return s.parse(v)
	case []byte:
		return s.parse(string(v))
	default:
		return fmt.Errorf("cannot scan %T into time", src)
	}
}

func (s *timeScanner) parse(v string) error {
	if v == "" {
		*s = timeScanner(time.Time{})
		return nil
	}
	for _, layout := range []string{TimeLayout, time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			*s = timeScanner(t)
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", v)
}

// ScanNullInt64 returns a scanner that stores NULL as a nil pointer.
func ScanNullInt64(dst **int64) sql.Scanner {
	return &nullInt64Scanner{dst: dst}
}

type nullInt64Scanner struct {
	dst **int64
}

func (s *nullInt64Scanner) Scan(src interface{}) error {
	var n sql.NullInt64
	if err := n.Scan(src); err != nil {
		return err
	}
	if !n.Valid {
		*s.dst = nil
		return nil
	}
	v := n.Int64
	*s.dst = &v
	return nil
}

// ScanNullString returns a scanner that stores NULL as "".
func ScanNullString(dst *string) sql.Scanner {
	return (*nullStringScanner)(dst)
}

type nullStringScanner string

func (s *nullStringScanner) Scan(src interface{}) error {
	var n sql.NullString
	if err := n.Scan(src); err != nil {
		return err
	}
	*s = nullStringScanner(n.String)
	return nil
}

// NullInt64 converts an optional id into a driver value.
func NullInt64(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

// NullString converts an optional string into a driver value, storing "" as NULL.
func NullString(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}

// IsUniqueViolation reports whether err is a UNIQUE constraint failure.
func IsUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// IsForeignKeyViolation reports whether err is a FOREIGN KEY constraint failure.
func IsForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
