package expr

import (
	"time"

	"github.com/fcoury/oxidedb-sub001/internal/mongoerr"
	"github.com/fcoury/oxidedb-sub001/internal/value"
)

// evalDatePart implements the $year/$month/$dayOfMonth/$hour/$minute/
// $second family: each takes either a bare date expression or a
// {date: <expr>, timezone: <string>} document, always evaluated in UTC
// since this server has no per-request timezone database available.
func evalDatePart(op string, operand value.Value, ctx *Context) (value.Value, error) {
	var dateExpr value.Value
	ev, err := Eval(operand, ctx)
	if err != nil {
		return value.Value{}, err
	}
	if ev.Kind == value.KindDocument && ev.Doc.Has("date") {
		d, err := Eval(ev.Doc.Get("date"), ctx)
		if err != nil {
			return value.Value{}, err
		}
		dateExpr = d
	} else {
		dateExpr = ev
	}
	if nullOrMissing(dateExpr) {
		return value.Null(), nil
	}
	if dateExpr.Kind != value.KindDateTime {
		return value.Value{}, mongoerr.New(mongoerr.CodeTypeMismatch, "%s requires a date operand", op)
	}
	t := time.UnixMilli(dateExpr.DateTimeMS).UTC()
	switch op {
	case "$year":
		return value.Int32(int32(t.Year())), nil
	case "$month":
		return value.Int32(int32(t.Month())), nil
	case "$dayOfMonth":
		return value.Int32(int32(t.Day())), nil
	case "$hour":
		return value.Int32(int32(t.Hour())), nil
	case "$minute":
		return value.Int32(int32(t.Minute())), nil
	case "$second":
		return value.Int32(int32(t.Second())), nil
	default:
		return value.Value{}, mongoerr.New(mongoerr.CodeBadFrame, "unsupported date operator %q", op)
	}
}
