package store

import (
	"strconv"
	"strings"
)

// QueryOptions filters log entries. Zero values leave a dimension
// unfiltered.
type QueryOptions struct {
	Channel    string
	Levels     []string
	Namespaces []string
	MinTime    int64 // unix milliseconds, inclusive
	Search     string
	Limit      int
	Offset     int
}

// where builds the WHERE clause with ? placeholders and its argument list.
// The caller rebinds placeholders for the active driver.
func (o QueryOptions) where() (string, []any) {
	var clauses []string
	var args []any

	if o.Channel != "" {
		clauses = append(clauses, "channel = ?")
		args = append(args, o.Channel)
	}
	if len(o.Levels) > 0 {
		placeholders := make([]string, len(o.Levels))
		for i, level := range o.Levels {
			placeholders[i] = "?"
			args = append(args, level)
		}
		clauses = append(clauses, "level_label IN ("+strings.Join(placeholders, ",")+")")
	}
	if len(o.Namespaces) > 0 {
		placeholders := make([]string, len(o.Namespaces))
		for i, ns := range o.Namespaces {
			placeholders[i] = "?"
			args = append(args, ns)
		}
		clauses = append(clauses, "namespace IN ("+strings.Join(placeholders, ",")+")")
	}
	if o.MinTime > 0 {
		clauses = append(clauses, "time >= ?")
		args = append(args, o.MinTime)
	}
	if o.Search != "" {
		pattern := "%" + o.Search + "%"
		clauses = append(clauses, "(msg LIKE ? OR data LIKE ?)")
		args = append(args, pattern, pattern)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

// rebind rewrites ? placeholders to the $n form for the pgx driver. MySQL
// uses ? natively.
func (s *Store) rebind(query string) string {
	if s.driver != "pgx" {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
