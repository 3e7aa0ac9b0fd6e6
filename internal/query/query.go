// Package query is a small typed builder for MongoDB aggregation pipelines. Predicates,
// groups, projections, sorts and limits are plain values that compile to bson, so each
// stage can be built and asserted on independently of a live store.
package query

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Stage is a single aggregation stage.
type Stage interface {
	Stage() bson.D
}

// Pipeline is an ordered list of stages.
type Pipeline []Stage

// Compile renders the pipeline into the driver representation.
func (p Pipeline) Compile() mongo.Pipeline {
	out := make(mongo.Pipeline, 0, len(p))
	for _, s := range p {
		if s == nil {
			continue
		}
		out = append(out, s.Stage())
	}
	return out
}

// Predicate is an ordered conjunction of field conditions for a $match stage.
type Predicate struct {
	clauses bson.D
}

// Where starts an empty predicate.
func Where() Predicate { return Predicate{} }

// Eq requires field == value.
func (p Predicate) Eq(field string, value any) Predicate {
	return p.with(field, value)
}

// Ne requires field != value. A nil value also excludes documents missing the field.
func (p Predicate) Ne(field string, value any) Predicate {
	return p.with(field, bson.D{{Key: "$ne", Value: value}})
}

// Gte requires field >= value.
func (p Predicate) Gte(field string, value any) Predicate {
	return p.with(field, bson.D{{Key: "$gte", Value: value}})
}

// Between constrains field to the present bounds only. With both bounds nil the
// predicate is returned unchanged, never an always-true range.
func (p Predicate) Between(field string, from, to *time.Time) Predicate {
	if from == nil && to == nil {
		return p
	}
	cond := bson.D{}
	if from != nil {
		cond = append(cond, bson.E{Key: "$gte", Value: *from})
	}
	if to != nil {
		cond = append(cond, bson.E{Key: "$lte", Value: *to})
	}
	return p.with(field, cond)
}

// Has reports whether the predicate constrains field.
func (p Predicate) Has(field string) bool {
	_, ok := p.Get(field)
	return ok
}

// Get returns the condition attached to field.
func (p Predicate) Get(field string) (any, bool) {
	for _, c := range p.clauses {
		if c.Key == field {
			return c.Value, true
		}
	}
	return nil, false
}

// Doc renders the predicate as a filter document.
func (p Predicate) Doc() bson.D {
	out := make(bson.D, len(p.clauses))
	copy(out, p.clauses)
	return out
}

func (p Predicate) with(field string, value any) Predicate {
	next := make(bson.D, 0, len(p.clauses)+1)
	for _, c := range p.clauses {
		if c.Key != field {
			next = append(next, c)
		}
	}
	next = append(next, bson.E{Key: field, Value: value})
	return Predicate{clauses: next}
}

// Match filters documents by a predicate.
type Match struct {
	Filter Predicate
}

func (m Match) Stage() bson.D {
	return bson.D{{Key: "$match", Value: m.Filter.Doc()}}
}

// Accumulator is a named output field of a $group stage.
type Accumulator struct {
	Name string
	Op   string
	Arg  any
}

// Sum accumulates $sum of expr into name.
func Sum(name string, expr any) Accumulator { return Accumulator{Name: name, Op: "$sum", Arg: expr} }

// Avg accumulates $avg of expr into name. Null and missing values are skipped by the store.
func Avg(name string, expr any) Accumulator { return Accumulator{Name: name, Op: "$avg", Arg: expr} }

// Count accumulates the number of grouped documents into name.
func Count(name string) Accumulator { return Sum(name, 1) }

// Group groups documents by ID (nil groups everything into one row).
type Group struct {
	ID     any
	Fields []Accumulator
}

func (g Group) Stage() bson.D {
	doc := bson.D{{Key: "_id", Value: g.ID}}
	for _, f := range g.Fields {
		doc = append(doc, bson.E{Key: f.Name, Value: bson.D{{Key: f.Op, Value: f.Arg}}})
	}
	return bson.D{{Key: "$group", Value: doc}}
}

// Field is a projected or computed output field.
type Field struct {
	Name  string
	Value any
}

// Include keeps an existing field in a projection.
func Include(name string) Field { return Field{Name: name, Value: 1} }

// Exclude drops a field from a projection.
func Exclude(name string) Field { return Field{Name: name, Value: 0} }

// Computed sets name to expr.
func Computed(name string, expr any) Field { return Field{Name: name, Value: expr} }

// Project reshapes documents.
type Project struct {
	Fields []Field
}

func (p Project) Stage() bson.D {
	return bson.D{{Key: "$project", Value: fieldsDoc(p.Fields)}}
}

// AddFields appends computed fields, keeping the rest of the document.
type AddFields struct {
	Fields []Field
}

func (a AddFields) Stage() bson.D {
	return bson.D{{Key: "$addFields", Value: fieldsDoc(a.Fields)}}
}

func fieldsDoc(fields []Field) bson.D {
	doc := make(bson.D, 0, len(fields))
	for _, f := range fields {
		doc = append(doc, bson.E{Key: f.Name, Value: f.Value})
	}
	return doc
}

// SortKey orders by a field; Desc reverses the natural order.
type SortKey struct {
	Field string
	Desc  bool
}

// Asc sorts ascending by field.
func Asc(field string) SortKey { return SortKey{Field: field} }

// Desc sorts descending by field.
func Desc(field string) SortKey { return SortKey{Field: field, Desc: true} }

// Sort orders documents by the keys, first key most significant.
type Sort struct {
	Keys []SortKey
}

func (s Sort) Stage() bson.D {
	doc := make(bson.D, 0, len(s.Keys))
	for _, k := range s.Keys {
		dir := 1
		if k.Desc {
			dir = -1
		}
		doc = append(doc, bson.E{Key: k.Field, Value: dir})
	}
	return bson.D{{Key: "$sort", Value: doc}}
}

// Limit caps the number of documents.
type Limit int64

func (l Limit) Stage() bson.D {
	return bson.D{{Key: "$limit", Value: int64(l)}}
}
