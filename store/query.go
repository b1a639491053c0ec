package store

import "go.mongodb.org/mongo-driver/bson"

type op int

const (
	opEq op = iota
	opNe
	opIn
)

// Cond is a single predicate on a top-level field.
type Cond struct {
	Field  string
	op     op
	Value  interface{}
	Values []interface{}
}

func Eq(field string, value interface{}) Cond {
	return Cond{Field: field, op: opEq, Value: value}
}

func Ne(field string, value interface{}) Cond {
	return Cond{Field: field, op: opNe, Value: value}
}

func In(field string, values ...interface{}) Cond {
	return Cond{Field: field, op: opIn, Values: values}
}

func InStrings(field string, values []string) Cond {
	vs := make([]interface{}, len(values))
	for i, v := range values {
		vs[i] = v
	}
	return In(field, vs...)
}

// Filter is a conjunction of conditions. An empty filter matches every row.
type Filter []Cond

func (f Filter) toBSON() bson.M {
	if len(f) == 0 {
		return bson.M{}
	}
	and := make([]bson.M, 0, len(f))
	for _, c := range f {
		switch c.op {
		case opEq:
			and = append(and, bson.M{c.Field: c.Value})
		case opNe:
			and = append(and, bson.M{c.Field: bson.M{"$ne": c.Value}})
		case opIn:
			values := c.Values
			if values == nil {
				values = []interface{}{}
			}
			and = append(and, bson.M{c.Field: bson.M{"$in": values}})
		}
	}
	return bson.M{"$and": and}
}

type Sort struct {
	Field string
	Desc  bool
}

type Query struct {
	Filter Filter
	Sort   []Sort
	Limit  int64
}

func Where(conds ...Cond) Query {
	return Query{Filter: conds}
}

func (q Query) OrderBy(field string) Query {
	q.Sort = append(q.Sort, Sort{Field: field})
	return q
}

func (q Query) OrderByDesc(field string) Query {
	q.Sort = append(q.Sort, Sort{Field: field, Desc: true})
	return q
}

func (q Query) Take(n int64) Query {
	q.Limit = n
	return q
}
