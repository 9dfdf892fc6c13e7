package translate

import (
	"strings"
	"time"

	"github.com/fcoury/oxidedb-sub001/internal/mongoerr"
	"github.com/fcoury/oxidedb-sub001/internal/value"
)

// ApplyUpdate applies an update document to a shallow copy of doc (nested
// documents stay shared with doc, see Document.Clone), either as a
// replacement document (no `$`-prefixed top-level keys) or as a set of
// update operators, returning the resulting document. `_id` is never
// altered by a replacement. Updates run document-by-document under the
// caller's row-level lock (acquired via a `SELECT ... FOR UPDATE`-style
// read before this call), so ApplyUpdate itself is a pure in-memory
// transform with no backend interaction of its own.
func ApplyUpdate(doc *value.Document, update *value.Document) (*value.Document, error) {
	if update == nil || update.Len() == 0 {
		return doc, nil
	}
	if !isOperatorDocument(update) {
		return applyReplacement(doc, update), nil
	}

	out := doc.Clone()
	if err := checkRenameConflicts(update); err != nil {
		return nil, err
	}

	for _, pair := range update.Pairs() {
		op, body := pair.Key, pair.Value
		if body.Kind != value.KindDocument {
			return nil, mongoerr.New(mongoerr.CodeBadFrame, "update operator %q requires a document operand", op)
		}
		var err error
		switch op {
		case "$set":
			applyFieldwise(out, body.Doc, func(cur value.Value, v value.Value) value.Value { return v })
		case "$setOnInsert":
			// Only meaningful on upsert-insert; the caller applies this
			// stage only when the matched row was freshly inserted.
			applyFieldwise(out, body.Doc, func(cur value.Value, v value.Value) value.Value { return v })
		case "$unset":
			for _, p := range body.Doc.Pairs() {
				out.DeletePath(p.Key)
			}
		case "$inc":
			err = applyNumericOp(out, body.Doc, func(a, b float64) float64 { return a + b })
		case "$mul":
			err = applyNumericOp(out, body.Doc, func(a, b float64) float64 { return a * b })
		case "$min":
			err = applyCompareOp(out, body.Doc, func(cur, v value.Value) bool { return value.Compare(v, cur) < 0 })
		case "$max":
			err = applyCompareOp(out, body.Doc, func(cur, v value.Value) bool { return value.Compare(v, cur) > 0 })
		case "$rename":
			err = applyRename(out, body.Doc)
		case "$push":
			err = applyPush(out, body.Doc)
		case "$pull":
			err = applyPull(out, body.Doc)
		case "$addToSet":
			err = applyAddToSet(out, body.Doc)
		case "$pop":
			err = applyPop(out, body.Doc)
		case "$currentDate":
			applyCurrentDate(out, body.Doc)
		default:
			return nil, mongoerr.New(mongoerr.CodeBadFrame, "unsupported update operator %q", op)
		}
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// isOperatorDocument reports whether update is an operator document
// rather than a replacement document. Mongo decides this from the first
// top-level key: operator documents are entirely `$`-prefixed, and a
// well-formed update never mixes the two.
func isOperatorDocument(update *value.Document) bool {
	pairs := update.Pairs()
	if len(pairs) == 0 {
		return false
	}
	return strings.HasPrefix(pairs[0].Key, "$")
}

func applyReplacement(doc *value.Document, replacement *value.Document) *value.Document {
	out := value.NewDocument()
	if doc.Has("_id") {
		out.Set("_id", doc.Get("_id"))
	}
	replacement.Range(func(k string, v value.Value) bool {
		if k != "_id" {
			out.Set(k, v)
		}
		return true
	})
	return out
}

func applyFieldwise(out *value.Document, body *value.Document, combine func(cur, v value.Value) value.Value) {
	for _, p := range body.Pairs() {
		cur := out.GetPath(p.Key)
		out.SetPath(p.Key, combine(cur, p.Value))
	}
}

func applyNumericOp(out *value.Document, body *value.Document, combine func(a, b float64) float64) error {
	for _, p := range body.Pairs() {
		delta, ok := p.Value.AsFloat64()
		if !ok {
			return mongoerr.New(mongoerr.CodeTypeMismatch, "cannot apply numeric update to non-numeric operand at %q", p.Key)
		}
		cur := out.GetPath(p.Key)
		base := 0.0
		if !cur.IsMissing() {
			b, ok := cur.AsFloat64()
			if !ok {
				return mongoerr.New(mongoerr.CodeTypeMismatch, "cannot apply numeric update to non-numeric field %q", p.Key)
			}
			base = b
		}
		out.SetPath(p.Key, numericResult(cur, combine(base, delta)))
	}
	return nil
}

// numericResult returns an Int64 when the original field was an Int32 or
// Int64 and the result is a whole number; otherwise it produces a Double,
// which includes every field the update creates (a missing original).
func numericResult(original value.Value, result float64) value.Value {
	switch original.Kind {
	case value.KindInt32, value.KindInt64:
		if result == float64(int64(result)) {
			return value.Int64(int64(result))
		}
	}
	return value.Double(result)
}

func applyCompareOp(out *value.Document, body *value.Document, shouldReplace func(cur, v value.Value) bool) error {
	for _, p := range body.Pairs() {
		cur := out.GetPath(p.Key)
		if cur.IsMissing() || shouldReplace(cur, p.Value) {
			out.SetPath(p.Key, p.Value)
		}
	}
	return nil
}

// checkRenameConflicts validates $rename's structural rules before any
// field is mutated: source==target, source/target in an ancestor-
// descendant relationship, or two renames sharing a target, all error
// with ConflictingUpdateOperators.
func checkRenameConflicts(update *value.Document) error {
	rename := update.Get("$rename")
	if rename.Kind != value.KindDocument {
		return nil
	}
	targets := map[string]bool{}
	for _, p := range rename.Doc.Pairs() {
		src, dst := p.Key, stringOf(p.Value)
		if src == dst {
			return mongoerr.New(mongoerr.CodeConflictingUpdateOperators, "$rename source and target are identical: %q", src)
		}
		if isAncestorPath(src, dst) || isAncestorPath(dst, src) {
			return mongoerr.New(mongoerr.CodeConflictingUpdateOperators, "$rename %q -> %q is an ancestor/descendant conflict", src, dst)
		}
		if targets[dst] {
			return mongoerr.New(mongoerr.CodeConflictingUpdateOperators, "multiple $rename entries target %q", dst)
		}
		targets[dst] = true
	}
	return nil
}

func isAncestorPath(a, b string) bool {
	return strings.HasPrefix(b, a+".")
}

func stringOf(v value.Value) string {
	if v.Kind == value.KindString {
		return v.Str
	}
	return ""
}

func applyRename(out *value.Document, body *value.Document) error {
	for _, p := range body.Pairs() {
		src, dst := p.Key, stringOf(p.Value)
		v := out.GetPath(src)
		if v.IsMissing() {
			continue
		}
		out.DeletePath(src)
		out.SetPath(dst, v)
	}
	return nil
}

func applyPush(out *value.Document, body *value.Document) error {
	for _, p := range body.Pairs() {
		cur := out.GetPath(p.Key)
		var arr []value.Value
		if cur.Kind == value.KindArray {
			arr = append(arr, cur.Arr...)
		} else if !cur.IsMissing() {
			return mongoerr.New(mongoerr.CodeTypeMismatch, "$push requires an array field at %q", p.Key)
		}
		if p.Value.Kind == value.KindDocument && p.Value.Doc.Has("$each") {
			each := p.Value.Doc.Get("$each")
			if each.Kind == value.KindArray {
				arr = append(arr, each.Arr...)
			}
		} else {
			arr = append(arr, p.Value)
		}
		out.SetPath(p.Key, value.FromArray(arr))
	}
	return nil
}

func applyPull(out *value.Document, body *value.Document) error {
	for _, p := range body.Pairs() {
		cur := out.GetPath(p.Key)
		if cur.Kind != value.KindArray {
			continue
		}
		var kept []value.Value
		for _, elem := range cur.Arr {
			if !matchesExpr(elem, p.Value) {
				kept = append(kept, elem)
			}
		}
		out.SetPath(p.Key, value.FromArray(kept))
	}
	return nil
}

func applyAddToSet(out *value.Document, body *value.Document) error {
	for _, p := range body.Pairs() {
		cur := out.GetPath(p.Key)
		var arr []value.Value
		if cur.Kind == value.KindArray {
			arr = append(arr, cur.Arr...)
		} else if !cur.IsMissing() {
			return mongoerr.New(mongoerr.CodeTypeMismatch, "$addToSet requires an array field at %q", p.Key)
		}
		exists := false
		for _, elem := range arr {
			if value.Equal(elem, p.Value) {
				exists = true
				break
			}
		}
		if !exists {
			arr = append(arr, p.Value)
		}
		out.SetPath(p.Key, value.FromArray(arr))
	}
	return nil
}

func applyPop(out *value.Document, body *value.Document) error {
	for _, p := range body.Pairs() {
		cur := out.GetPath(p.Key)
		if cur.Kind != value.KindArray || len(cur.Arr) == 0 {
			continue
		}
		n, _ := p.Value.AsFloat64()
		if n < 0 {
			out.SetPath(p.Key, value.FromArray(cur.Arr[1:]))
		} else {
			out.SetPath(p.Key, value.FromArray(cur.Arr[:len(cur.Arr)-1]))
		}
	}
	return nil
}

func applyCurrentDate(out *value.Document, body *value.Document) {
	now := value.DateTime(time.Now().UnixMilli())
	for _, p := range body.Pairs() {
		out.SetPath(p.Key, now)
	}
}
