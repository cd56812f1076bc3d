package ast

import (
	"strings"
)

// Predicate is a composable WHERE fragment. SQL returns the fragment without
// the WHERE keyword together with the arguments bound to its placeholders.
// An empty fragment matches every row.
type Predicate interface {
	SQL() (string, []any)
}

// --- Comparison predicates ---

// Comparison compares a column to a bound value.
type Comparison struct {
	Column string
	Op     string
	Value  any
}

// SQL renders "<column> <op> ?".
func (p Comparison) SQL() (string, []any) {
	return p.Column + " " + p.Op + " ?", []any{FormatArg(p.Value)}
}

// Eq matches rows where column equals value.
func Eq(column string, value any) Predicate {
	return Comparison{Column: column, Op: "=", Value: value}
}

// Neq matches rows where column differs from value.
func Neq(column string, value any) Predicate {
	return Comparison{Column: column, Op: "<>", Value: value}
}

// Gt matches rows where column > value.
func Gt(column string, value any) Predicate {
	return Comparison{Column: column, Op: ">", Value: value}
}

// Gte matches rows where column >= value.
func Gte(column string, value any) Predicate {
	return Comparison{Column: column, Op: ">=", Value: value}
}

// Lt matches rows where column < value.
func Lt(column string, value any) Predicate {
	return Comparison{Column: column, Op: "<", Value: value}
}

// Lte matches rows where column <= value.
func Lte(column string, value any) Predicate {
	return Comparison{Column: column, Op: "<=", Value: value}
}

// Like matches rows where column matches a LIKE pattern.
func Like(column, pattern string) Predicate {
	return Comparison{Column: column, Op: "LIKE", Value: pattern}
}

// --- Null checks ---

// NullCheck tests a column for NULL.
type NullCheck struct {
	Column  string
	Negated bool
}

// SQL renders "<column> IS [NOT] NULL".
func (p NullCheck) SQL() (string, []any) {
	if p.Negated {
		return p.Column + " IS NOT NULL", nil
	}
	return p.Column + " IS NULL", nil
}

// IsNull matches rows where column is NULL.
func IsNull(column string) Predicate { return NullCheck{Column: column} }

// NotNull matches rows where column is not NULL.
func NotNull(column string) Predicate { return NullCheck{Column: column, Negated: true} }

// --- Set membership ---

// Membership tests a column against a set of values.
type Membership struct {
	Column  string
	Values  []any
	Negated bool
}

// SQL renders "<column> [NOT] IN (?, ...)".
func (p Membership) SQL() (string, []any) {
	if len(p.Values) == 0 {
		if p.Negated {
			return "", nil
		}
		// Nothing is a member of the empty set.
		return "0", nil
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(p.Values)), ", ")
	op := " IN ("
	if p.Negated {
		op = " NOT IN ("
	}
	return p.Column + op + marks + ")", FormatArgs(p.Values...)
}

// In matches rows whose column value is one of values.
func In(column string, values ...any) Predicate {
	return Membership{Column: column, Values: values}
}

// NotIn matches rows whose column value is none of values.
func NotIn(column string, values ...any) Predicate {
	return Membership{Column: column, Values: values, Negated: true}
}

// --- Raw ---

// Clause is a caller-written fragment with its own bound arguments.
// Arguments are passed to the engine as given.
type Clause struct {
	Text string
	Args []any
}

// SQL returns the clause unchanged.
func (p Clause) SQL() (string, []any) { return p.Text, p.Args }

// Where wraps a raw clause and its arguments as a Predicate.
func Where(clause string, args ...any) Predicate {
	return Clause{Text: clause, Args: args}
}

// --- Boolean combinators ---

// Junction joins predicates with AND or OR. Empty members are skipped.
type Junction struct {
	Op    string
	Preds []Predicate
}

// SQL renders the members joined by the operator, each parenthesized when
// more than one member contributes.
func (p Junction) SQL() (string, []any) {
	var parts []string
	var args []any
	for _, pred := range p.Preds {
		if pred == nil {
			continue
		}
		s, a := pred.SQL()
		if s == "" {
			continue
		}
		parts = append(parts, s)
		args = append(args, a...)
	}
	switch len(parts) {
	case 0:
		return "", nil
	case 1:
		return parts[0], args
	}
	for i, s := range parts {
		parts[i] = "(" + s + ")"
	}
	return strings.Join(parts, " "+p.Op+" "), args
}

// And matches rows satisfying every predicate.
func And(preds ...Predicate) Predicate { return Junction{Op: "AND", Preds: preds} }

// Or matches rows satisfying any predicate.
func Or(preds ...Predicate) Predicate { return Junction{Op: "OR", Preds: preds} }

// Negation inverts a predicate.
type Negation struct {
	Pred Predicate
}

// SQL renders "NOT (<inner>)". Negating an empty predicate matches nothing.
func (p Negation) SQL() (string, []any) {
	if p.Pred == nil {
		return "0", nil
	}
	s, a := p.Pred.SQL()
	if s == "" {
		return "0", nil
	}
	return "NOT (" + s + ")", a
}

// Not inverts pred.
func Not(pred Predicate) Predicate { return Negation{Pred: pred} }

// Render flattens a predicate list into a single WHERE fragment. A nil or
// empty list renders as the empty string with no arguments.
func Render(preds ...Predicate) (string, []any) {
	return And(preds...).SQL()
}
