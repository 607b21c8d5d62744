package repository

import (
	"fmt"
	"strings"

	"github.com/martin8756/termelesinaplo/repository/models"
)

// Operator is a comparison supported by the predicate builder
type Operator string

const (
	OpGTE      Operator = ">="
	OpLTE      Operator = "<="
	OpContains Operator = "contains"
)

// Columns that may appear in a predicate. Anything else is rejected before
// it gets near a query.
const (
	ColumnDate    = "date"
	ColumnMachine = "machine"
	ColumnProduct = "product"
)

var filterableColumns = map[string]bool{
	ColumnDate:    true,
	ColumnMachine: true,
	ColumnProduct: true,
}

// Predicate is a single (column, operator, value) condition
type Predicate struct {
	Column string
	Op     Operator
	Value  string
}

// Filter holds the optional admin query parameters. Empty fields are omitted.
type Filter struct {
	From    string `json:"from,omitempty"`
	To      string `json:"to,omitempty"`
	Machine string `json:"machine,omitempty"`
	Product string `json:"product,omitempty"`
}

// Predicates turns the filter into an AND-combined predicate list.
func (f Filter) Predicates() []Predicate {
	var preds []Predicate
	if f.From != "" {
		preds = append(preds, Predicate{Column: ColumnDate, Op: OpGTE, Value: f.From})
	}
	if f.To != "" {
		preds = append(preds, Predicate{Column: ColumnDate, Op: OpLTE, Value: f.To})
	}
	if f.Machine != "" {
		preds = append(preds, Predicate{Column: ColumnMachine, Op: OpContains, Value: f.Machine})
	}
	if f.Product != "" {
		preds = append(preds, Predicate{Column: ColumnProduct, Op: OpContains, Value: f.Product})
	}
	return preds
}

// Clause is one compiled WHERE fragment with its bound arguments
type Clause struct {
	SQL  string
	Args []interface{}
}

// CompilePredicates compiles predicates into parameterized SQL fragments.
// User input only ever travels in Args.
func CompilePredicates(preds []Predicate, caseInsensitive bool) ([]Clause, error) {
	clauses := make([]Clause, 0, len(preds))
	for _, p := range preds {
		if !filterableColumns[p.Column] {
			return nil, fmt.Errorf("column %q is not filterable", p.Column)
		}
		ident := `"` + p.Column + `"`
		switch p.Op {
		case OpGTE, OpLTE:
			clauses = append(clauses, Clause{
				SQL:  fmt.Sprintf("%s %s ?", ident, p.Op),
				Args: []interface{}{p.Value},
			})
		case OpContains:
			like := "LIKE"
			if caseInsensitive {
				like = "ILIKE"
			}
			clauses = append(clauses, Clause{
				SQL:  fmt.Sprintf(`%s %s ? ESCAPE '\'`, ident, like),
				Args: []interface{}{"%" + escapeLike(p.Value) + "%"},
			})
		default:
			return nil, fmt.Errorf("unsupported operator %q", p.Op)
		}
	}
	return clauses, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// Match evaluates the predicate against a record in memory. Date comparison
// is lexical, which is correct for ISO dates.
func (p Predicate) Match(rec *models.Record, caseInsensitive bool) bool {
	var field string
	switch p.Column {
	case ColumnDate:
		field = rec.Date
	case ColumnMachine:
		field = rec.Machine
	case ColumnProduct:
		field = rec.Product
	default:
		return false
	}

	switch p.Op {
	case OpGTE:
		return field >= p.Value
	case OpLTE:
		return field <= p.Value
	case OpContains:
		if caseInsensitive {
			return strings.Contains(strings.ToLower(field), strings.ToLower(p.Value))
		}
		return strings.Contains(field, p.Value)
	}
	return false
}
