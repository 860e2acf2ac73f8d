package sqlutil

import (
	"database/sql"
	"time"
)

// Helper functions for converting between Go types and sql.Null* types

// ToSqlString converts a Go string pointer to sql.NullString
func ToSqlString(val *string) sql.NullString {
	if val == nil {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: *val, Valid: true}
}

// FromSqlStringPtr converts sql.NullString to Go string pointer
func FromSqlStringPtr(val sql.NullString) *string {
	if !val.Valid {
		return nil
	}
	return &val.String
}

// ToSqlInt converts a Go int pointer to sql.NullInt64
func ToSqlInt(val *int) sql.NullInt64 {
	if val == nil {
		return sql.NullInt64{Valid: false}
	}
	return sql.NullInt64{Int64: int64(*val), Valid: true}
}

// FromSqlInt converts sql.NullInt64 to Go int pointer
func FromSqlInt(val sql.NullInt64) *int {
	if !val.Valid {
		return nil
	}
	i := int(val.Int64)
	return &i
}

// ToUnix stores a time as whole UTC seconds.
func ToUnix(t time.Time) int64 {
	return t.UTC().Unix()
}

// FromUnix is the inverse of ToUnix.
func FromUnix(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

// FromSqlUnix converts nullable unix seconds to a Go time pointer
func FromSqlUnix(val sql.NullInt64) *time.Time {
	if !val.Valid {
		return nil
	}
	t := FromUnix(val.Int64)
	return &t
}
