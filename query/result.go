package query

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Value is one non-NULL column value of a row.
type Value struct {
	Column string
	Data   any
}

// Row holds the non-NULL values of one result row in column order.
type Row []Value

// ResultSet is a fully materialized select result.
type ResultSet struct {
	Columns []string
	Rows    []Row
}

func (rs *ResultSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.Rows)
}

// Empty reports whether the select produced no rows.
func (rs *ResultSet) Empty() bool {
	return rs.Len() == 0
}

// Lookup returns the value of column, matched case-insensitively. A NULL
// column is reported as absent.
func (r Row) Lookup(column string) (any, bool) {
	for _, v := range r {
		if strings.EqualFold(v.Column, column) {
			return v.Data, true
		}
	}
	return nil, false
}

// String renders the value of column as text, or "" when it is NULL.
func (r Row) String(column string) string {
	data, ok := r.Lookup(column)
	if !ok {
		return ""
	}
	return formatValue(data)
}

// Int64 returns the value of column as an integer. ok is false for NULL or
// non-numeric values.
func (r Row) Int64(column string) (int64, bool) {
	data, found := r.Lookup(column)
	if !found {
		return 0, false
	}
	switch v := data.(type) {
	case int64:
		return v, true
	case float64:
		return int64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return n, err == nil
	}
	return 0, false
}

// Time returns the value of column as a timestamp.
func (r Row) Time(column string) (time.Time, bool) {
	data, found := r.Lookup(column)
	if !found {
		return time.Time{}, false
	}
	t, ok := data.(time.Time)
	return t, ok
}

func formatValue(data any) string {
	switch v := data.(type) {
	case string:
		return v
	case time.Time:
		return v.Format(time.RFC3339)
	default:
		return fmt.Sprint(v)
	}
}

// normalize folds driver specific representations into string, int64,
// float64, bool or time.Time.
func normalize(data any) any {
	switch v := data.(type) {
	case []byte:
		return string(v)
	case int:
		return int64(v)
	case int8:
		return int64(v)
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case uint8:
		return int64(v)
	case uint16:
		return int64(v)
	case uint32:
		return int64(v)
	case float32:
		return float64(v)
	}
	return data
}

func materialize(rows *sql.Rows) (*ResultSet, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	rs := &ResultSet{Columns: columns}
	for rows.Next() {
		cells := make([]any, len(columns))
		dest := make([]any, len(columns))
		for i := range cells {
			dest[i] = &cells[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}

		row := make(Row, 0, len(columns))
		for i, cell := range cells {
			if cell == nil {
				continue
			}
			row = append(row, Value{Column: columns[i], Data: normalize(cell)})
		}
		rs.Rows = append(rs.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rs, nil
}
