package costmodel

import (
	"errors"
	"fmt"
	"os"

	"github.com/mcdev12/vaxgame/go/internal/models"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// BucketCount is the number of B-cost buckets per type.
const BucketCount = 5

// Row holds the costs for one participant type.
type Row struct {
	A decimal.Decimal
	B [BucketCount]decimal.Decimal
}

// Table is the immutable cost table, one row per participant type.
type Table struct {
	rows [models.TypeCount]Row
}

// NewTable validates rows and builds a Table. Every value must be
// non-negative and each B row must be non-increasing.
func NewTable(rows []Row) (*Table, error) {
	if len(rows) != models.TypeCount {
		return nil, fmt.Errorf("cost table needs %d rows, got %d", models.TypeCount, len(rows))
	}
	t := &Table{}
	for i, row := range rows {
		if row.A.IsNegative() {
			return nil, fmt.Errorf("type %d: negative A cost %s", i+1, row.A)
		}
		for b := range row.B {
			if row.B[b].IsNegative() {
				return nil, fmt.Errorf("type %d: negative B cost in bucket %d", i+1, b+1)
			}
			if b > 0 && row.B[b].GreaterThan(row.B[b-1]) {
				return nil, fmt.Errorf("type %d: B cost increases from bucket %d to %d", i+1, b, b+1)
			}
		}
		t.rows[i] = row
	}
	return t, nil
}

// Row returns the row for a type in 1..6.
func (t *Table) Row(typ int) (Row, error) {
	if typ < 1 || typ > models.TypeCount {
		return Row{}, fmt.Errorf("unknown participant type %d", typ)
	}
	return t.rows[typ-1], nil
}

func row(a int64, b ...int64) Row {
	r := Row{A: decimal.NewFromInt(a)}
	for i, v := range b {
		r.B[i] = decimal.NewFromInt(v)
	}
	return r
}

// DefaultTable returns the built-in cost table.
func DefaultTable() *Table {
	t, err := NewTable([]Row{
		row(10, 40, 30, 20, 10, 5),
		row(15, 35, 28, 20, 12, 6),
		row(20, 30, 24, 18, 12, 6),
		row(25, 30, 22, 15, 8, 2),
		row(30, 25, 20, 15, 10, 5),
		row(35, 20, 16, 12, 8, 4),
	})
	if err != nil {
		panic(err)
	}
	return t
}

type tableFile struct {
	Types []struct {
		ACost  float64   `yaml:"a_cost"`
		BCosts []float64 `yaml:"b_costs"`
	} `yaml:"types"`
}

// ParseTable decodes a YAML cost table:
//
//	types:
//	  - a_cost: 10
//	    b_costs: [40, 30, 20, 10, 5]
func ParseTable(data []byte) (*Table, error) {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse cost table: %w", err)
	}
	if len(f.Types) == 0 {
		return nil, errors.New("cost table has no types")
	}
	rows := make([]Row, len(f.Types))
	for i, ft := range f.Types {
		if len(ft.BCosts) != BucketCount {
			return nil, fmt.Errorf("type %d: need %d b_costs, got %d", i+1, BucketCount, len(ft.BCosts))
		}
		rows[i].A = decimal.NewFromFloat(ft.ACost)
		for b, v := range ft.BCosts {
			rows[i].B[b] = decimal.NewFromFloat(v)
		}
	}
	return NewTable(rows)
}

// LoadTable reads a YAML cost table from path.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cost table: %w", err)
	}
	return ParseTable(data)
}
