package database

// IS NULL OR helpers: convert empty Go values to nil so PostgreSQL
// sees NULL and the ($1::type IS NULL OR ...) pattern skips the filter.

func pqInt64(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}

func pqString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
