// Package query implements the predicate language used to select documents.
//
// A query such as `{"size": 27, "dress": {"$ne": "work"}, "$or": [...]}` is
// parsed into a small tree of field and logical nodes, which is then matched
// against one document at a time. The engine holds no state.
package query

import (
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/adfharrison1/go-docstore/pkg/domain"
)

// Operator represents a comparison operator (e.g., $eq, $gt, $in)
type Operator string

const (
	OpEq    Operator = "$eq"
	OpNe    Operator = "$ne"
	OpGt    Operator = "$gt"
	OpLt    Operator = "$lt"
	OpIn    Operator = "$in"
	OpRegex Operator = "$regex"
)

const (
	logicalAnd = "$and"
	logicalOr  = domain.OrKey
)

// Node is a query tree node able to match a document
type Node interface {
	Matches(doc domain.Document) bool
}

// FieldNode compares one document field against an operand
type FieldNode struct {
	Field    string
	Operator Operator
	Value    interface{}

	re *regexp.Regexp
}

// LogicalNode combines children with $and or $or
type LogicalNode struct {
	Operator string
	Children []Node
}

// Matcher is a parsed query
type Matcher struct {
	root Node
}

// Parse converts a query mapping into a Matcher
func Parse(q domain.Query) (*Matcher, error) {
	if q == nil {
		return nil, domain.InvalidArgument("query must be a mapping")
	}
	root, err := parseClause(q)
	if err != nil {
		return nil, err
	}
	return &Matcher{root: root}, nil
}

// Matches parses q and evaluates it against doc
func Matches(doc domain.Document, q domain.Query) (bool, error) {
	m, err := Parse(q)
	if err != nil {
		return false, err
	}
	return m.Matches(doc), nil
}

// Matches reports whether doc satisfies the query
func (m *Matcher) Matches(doc domain.Document) bool {
	return m.root.Matches(doc)
}

func parseClause(q map[string]interface{}) (*LogicalNode, error) {
	keys := make([]string, 0, len(q))
	for key := range q {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	node := &LogicalNode{Operator: logicalAnd}
	for _, key := range keys {
		val := q[key]

		if strings.HasPrefix(key, "$") {
			if key != logicalAnd && key != logicalOr {
				return nil, domain.InvalidArgument("unknown top-level operator %s", key)
			}
			clauses, err := clauseList(key, val)
			if err != nil {
				return nil, err
			}
			group := &LogicalNode{Operator: key, Children: make([]Node, 0, len(clauses))}
			for _, clause := range clauses {
				child, err := parseClause(clause)
				if err != nil {
					return nil, err
				}
				group.Children = append(group.Children, child)
			}
			node.Children = append(node.Children, group)
			continue
		}

		if ops, ok := operatorMap(val); ok {
			opNames := make([]string, 0, len(ops))
			for op := range ops {
				opNames = append(opNames, op)
			}
			sort.Strings(opNames)
			for _, op := range opNames {
				field, err := newFieldNode(key, Operator(op), ops[op])
				if err != nil {
					return nil, err
				}
				node.Children = append(node.Children, field)
			}
			continue
		}

		// Implicit $eq
		node.Children = append(node.Children, &FieldNode{Field: key, Operator: OpEq, Value: val})
	}

	return node, nil
}

// clauseList normalizes the operand of $and / $or into independent clauses.
// A mapping operand is accepted and split into one clause per entry.
func clauseList(key string, val interface{}) ([]map[string]interface{}, error) {
	if m, ok := asMap(val); ok {
		if len(m) == 0 {
			return nil, domain.InvalidArgument("%s requires at least one clause", key)
		}
		fields := make([]string, 0, len(m))
		for field := range m {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		clauses := make([]map[string]interface{}, 0, len(m))
		for _, field := range fields {
			clauses = append(clauses, map[string]interface{}{field: m[field]})
		}
		return clauses, nil
	}

	rv := reflect.ValueOf(val)
	if val == nil || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, domain.InvalidArgument("value for %s must be a list", key)
	}
	if rv.Len() == 0 {
		return nil, domain.InvalidArgument("%s requires at least one clause", key)
	}

	clauses := make([]map[string]interface{}, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		clause, ok := asMap(rv.Index(i).Interface())
		if !ok {
			return nil, domain.InvalidArgument("element %d of %s must be a mapping", i, key)
		}
		clauses = append(clauses, clause)
	}
	return clauses, nil
}

func newFieldNode(field string, op Operator, value interface{}) (*FieldNode, error) {
	node := &FieldNode{Field: field, Operator: op, Value: value}

	switch op {
	case OpEq, OpNe, OpGt, OpLt, OpIn:
	case OpRegex:
		switch v := value.(type) {
		case *regexp.Regexp:
			node.re = v
		case string:
			re, err := regexp.Compile(v)
			if err != nil {
				return nil, domain.InvalidArgument("invalid $regex on %s: %v", field, err)
			}
			node.re = re
		}
	default:
		return nil, domain.InvalidArgument("unknown operator %s on field %s", op, field)
	}

	return node, nil
}

// operatorMap reports whether v is an operator mapping: non-empty, every key
// starting with '$'. Any other mapping is a literal for implicit $eq.
func operatorMap(v interface{}) (map[string]interface{}, bool) {
	m, ok := asMap(v)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for key := range m {
		if !strings.HasPrefix(key, "$") {
			return nil, false
		}
	}
	return m, true
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, m != nil
	case domain.Document:
		return m, m != nil
	case domain.Query:
		return m, m != nil
	}
	return nil, false
}

// Matches checks if a document satisfies the field clause.
// A missing field only satisfies $ne.
func (n *FieldNode) Matches(doc domain.Document) bool {
	actual, exists := doc[n.Field]
	if !exists {
		return n.Operator == OpNe
	}
	return n.compare(actual)
}

func (n *FieldNode) compare(actual interface{}) bool {
	switch n.Operator {
	case OpEq:
		return Equal(actual, n.Value)
	case OpNe:
		return !Equal(actual, n.Value)
	case OpGt:
		cmp, ok := order(actual, n.Value)
		return ok && cmp > 0
	case OpLt:
		cmp, ok := order(actual, n.Value)
		return ok && cmp < 0
	case OpIn:
		return in(actual, n.Value)
	case OpRegex:
		s, ok := actual.(string)
		return ok && n.re != nil && n.re.MatchString(s)
	}
	return false
}

func in(actual, operand interface{}) bool {
	if s, ok := operand.(string); ok {
		sub, ok := actual.(string)
		return ok && strings.Contains(s, sub)
	}

	rv := reflect.ValueOf(operand)
	if operand == nil || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return false
	}
	for i := 0; i < rv.Len(); i++ {
		if Equal(actual, rv.Index(i).Interface()) {
			return true
		}
	}
	return false
}

// Matches evaluates the logical node against a document
func (n *LogicalNode) Matches(doc domain.Document) bool {
	if n.Operator == logicalOr {
		for _, child := range n.Children {
			if child.Matches(doc) {
				return true
			}
		}
		return false
	}

	for _, child := range n.Children {
		if !child.Matches(doc) {
			return false
		}
	}
	return true
}
