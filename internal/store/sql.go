package store

import (
	"strings"
)

// Dialect is the SQL surface that differs between backends.
type Dialect interface {
	// Quote returns a safely quoted identifier.
	Quote(ident string) string
	// Placeholder returns the n-th (1-based) bind parameter marker.
	Placeholder(n int) string
}

// BuildUpsert renders an INSERT for cols into table. With a primary key it
// adds ON CONFLICT (pk) DO UPDATE for the non-key columns, or DO NOTHING when
// every column is part of the key.
func BuildUpsert(d Dialect, table string, cols, pk []string) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(d.Quote(table))
	b.WriteString(" (")
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.Quote(c))
	}
	b.WriteString(") VALUES (")
	for i := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.Placeholder(i + 1))
	}
	b.WriteString(")")

	if len(pk) == 0 {
		return b.String()
	}

	b.WriteString(" ON CONFLICT (")
	for i, k := range pk {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.Quote(k))
	}
	b.WriteString(")")

	var updates []string
	for _, c := range cols {
		if containsFold(pk, c) {
			continue
		}
		q := d.Quote(c)
		updates = append(updates, q+" = excluded."+q)
	}
	if len(updates) == 0 {
		b.WriteString(" DO NOTHING")
		return b.String()
	}
	b.WriteString(" DO UPDATE SET ")
	b.WriteString(strings.Join(updates, ", "))
	return b.String()
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
