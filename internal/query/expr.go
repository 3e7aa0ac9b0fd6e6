package query

import "go.mongodb.org/mongo-driver/bson"

// Ref returns the aggregation path for a document field.
func Ref(field string) string { return "$" + field }

func op(name string, args ...any) bson.D {
	return bson.D{{Key: name, Value: bson.A(args)}}
}

// IfNull yields expr, or fallback when expr is null or missing.
func IfNull(expr, fallback any) bson.D { return op("$ifNull", expr, fallback) }

// Cond is a ternary expression.
func Cond(ifExpr, thenExpr, elseExpr any) bson.D { return op("$cond", ifExpr, thenExpr, elseExpr) }

// And is true when every expression is true.
func And(exprs ...any) bson.D { return op("$and", exprs...) }

// Not negates an expression.
func Not(expr any) bson.D { return op("$not", expr) }

// EqExpr compares two expressions for equality.
func EqExpr(a, b any) bson.D { return op("$eq", a, b) }

// GteExpr is a >= b.
func GteExpr(a, b any) bson.D { return op("$gte", a, b) }

// GtExpr is a > b.
func GtExpr(a, b any) bson.D { return op("$gt", a, b) }

// LteExpr is a <= b.
func LteExpr(a, b any) bson.D { return op("$lte", a, b) }

// Subtract is a - b. For two dates the result is milliseconds.
func Subtract(a, b any) bson.D { return op("$subtract", a, b) }

// Divide is a / b.
func Divide(a, b any) bson.D { return op("$divide", a, b) }

// Size is the length of an array expression.
func Size(expr any) bson.D { return bson.D{{Key: "$size", Value: expr}} }

// IsNumber is true for int, long, double and decimal values.
func IsNumber(expr any) bson.D { return bson.D{{Key: "$isNumber", Value: expr}} }

// IsDate is true when expr holds a BSON date.
func IsDate(expr any) bson.D {
	return EqExpr(bson.D{{Key: "$type", Value: expr}}, "date")
}

// CountIf yields 1 when cond holds and 0 otherwise, for use under $sum.
func CountIf(cond any) bson.D { return Cond(cond, 1, 0) }

// DateToString renders a date expression with a strftime-style format in timezone.
func DateToString(format string, date any, timezone string) bson.D {
	args := bson.D{
		{Key: "format", Value: format},
		{Key: "date", Value: date},
	}
	if timezone != "" {
		args = append(args, bson.E{Key: "timezone", Value: timezone})
	}
	return bson.D{{Key: "$dateToString", Value: args}}
}

// Branch is one case of a Switch.
type Branch struct {
	Case any
	Then any
}

// Switch evaluates branches in order and yields the first match, else fallback.
func Switch(fallback any, branches ...Branch) bson.D {
	arr := make(bson.A, 0, len(branches))
	for _, b := range branches {
		arr = append(arr, bson.D{{Key: "case", Value: b.Case}, {Key: "then", Value: b.Then}})
	}
	return bson.D{{Key: "$switch", Value: bson.D{
		{Key: "branches", Value: arr},
		{Key: "default", Value: fallback},
	}}}
}
