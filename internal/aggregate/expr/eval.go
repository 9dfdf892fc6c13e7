package expr

import (
	"strings"

	"github.com/fcoury/oxidedb-sub001/internal/mongoerr"
	"github.com/fcoury/oxidedb-sub001/internal/value"
)

// removed is the sentinel $$REMOVE resolves to and every field-producing
// stage checks for before assigning a key: a field whose expression
// evaluates to removed is omitted from the output document entirely,
// matching $project/$addFields semantics for "$$REMOVE".
var removed = value.Value{Kind: value.KindUndefined}

// IsRemove reports whether v is the $$REMOVE sentinel.
func IsRemove(v value.Value) bool { return v.Kind == value.KindUndefined }

// Eval evaluates a raw expression value -- a field reference, system
// variable, operator document, literal array, or plain literal -- from
// a pipeline stage spec against ctx.
func Eval(raw value.Value, ctx *Context) (value.Value, error) {
	switch raw.Kind {
	case value.KindString:
		return evalString(raw.Str, ctx)
	case value.KindDocument:
		return evalDocument(raw.Doc, ctx)
	case value.KindArray:
		out := make([]value.Value, len(raw.Arr))
		for i, e := range raw.Arr {
			v, err := Eval(e, ctx)
			if err != nil {
				return value.Value{}, err
			}
			out[i] = v
		}
		return value.FromArray(out), nil
	default:
		return raw, nil
	}
}

func evalString(s string, ctx *Context) (value.Value, error) {
	if !strings.HasPrefix(s, "$") {
		return value.String(s), nil
	}
	if strings.HasPrefix(s, "$$") {
		name := s[2:]
		switch name {
		case "ROOT":
			return ctx.Root, nil
		case "CURRENT":
			return ctx.Current, nil
		case "REMOVE":
			return removed, nil
		default:
			if v, ok := ctx.Vars[name]; ok {
				return v, nil
			}
			return value.Value{}, nil
		}
	}
	path := s[1:]
	return resolvePath(ctx.Current, path), nil
}

func resolvePath(v value.Value, path string) value.Value {
	if v.Kind != value.KindDocument {
		return value.Value{}
	}
	return v.Doc.GetPath(path)
}

func evalDocument(doc *value.Document, ctx *Context) (value.Value, error) {
	pairs := doc.Pairs()
	if len(pairs) == 1 && strings.HasPrefix(pairs[0].Key, "$") {
		op := pairs[0].Key
		if op == "$literal" {
			return pairs[0].Value, nil
		}
		return evalOperator(op, pairs[0].Value, ctx)
	}
	out := value.NewDocument()
	for _, p := range pairs {
		v, err := Eval(p.Value, ctx)
		if err != nil {
			return value.Value{}, err
		}
		if IsRemove(v) {
			continue
		}
		out.Set(p.Key, v)
	}
	return value.FromDocument(out), nil
}

// evalOperands evaluates an operator's operand value as a list: arrays
// expand to one operand per element, anything else is a single operand,
// matching how $add/$concat/etc accept either [a, b] or a bare value.
func evalOperands(v value.Value, ctx *Context) ([]value.Value, error) {
	var raw []value.Value
	if v.Kind == value.KindArray {
		raw = v.Arr
	} else {
		raw = []value.Value{v}
	}
	out := make([]value.Value, len(raw))
	for i, r := range raw {
		ev, err := Eval(r, ctx)
		if err != nil {
			return nil, err
		}
		out[i] = ev
	}
	return out, nil
}

func operandDoc(op string, v value.Value, ctx *Context) (*value.Document, error) {
	ev, err := Eval(v, ctx)
	if err != nil {
		return nil, err
	}
	if ev.Kind != value.KindDocument {
		return nil, mongoerr.New(mongoerr.CodeBadFrame, "%s requires a document operand", op)
	}
	return ev.Doc, nil
}

func nullOrMissing(v value.Value) bool {
	return v.IsMissing() || v.Kind == value.KindNull || IsRemove(v)
}
