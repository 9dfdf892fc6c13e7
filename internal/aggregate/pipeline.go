package aggregate

import (
	"context"

	"github.com/fcoury/oxidedb-sub001/internal/mongoerr"
	"github.com/fcoury/oxidedb-sub001/internal/value"
)

// Pipeline is an ordered, runnable sequence of aggregation stages.
type Pipeline struct {
	stages []Stage
}

// Run executes every stage in order, feeding each stage's output
// documents to the next.
func (p *Pipeline) Run(ctx context.Context, docs []*value.Document) ([]*value.Document, error) {
	cur := docs
	for _, s := range p.stages {
		next, err := s.Apply(ctx, cur)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

// BuildPipeline compiles a pipeline array -- one single-key document per
// stage, as it appears in an `aggregate` command -- into a runnable
// Pipeline. env supplies the collaborators $lookup/$out/$merge need;
// stages that don't need them leave the corresponding field unused.
func BuildPipeline(specs []*value.Document, env *Env) (*Pipeline, error) {
	if env == nil {
		env = &Env{}
	}
	stages := make([]Stage, 0, len(specs))
	for i, spec := range specs {
		if spec.Len() != 1 {
			return nil, mongoerr.New(mongoerr.CodeBadFrame, "each pipeline stage must have exactly one operator")
		}
		pair := spec.Pairs()[0]
		name, body := pair.Key, pair.Value

		if name == "$geoNear" && i != 0 {
			return nil, mongoerr.New(mongoerr.CodeGeoNearNotFirst, "$geoNear is only valid as the first stage in a pipeline")
		}

		stage, err := buildStage(name, body, env)
		if err != nil {
			return nil, err
		}
		stages = append(stages, stage)
	}
	return &Pipeline{stages: stages}, nil
}

func buildStage(name string, body value.Value, env *Env) (Stage, error) {
	switch name {
	case "$match":
		if body.Kind != value.KindDocument {
			return nil, mongoerr.New(mongoerr.CodeBadFrame, "$match requires a document operand")
		}
		return newMatchStage(body.Doc), nil
	case "$project":
		if body.Kind != value.KindDocument {
			return nil, mongoerr.New(mongoerr.CodeBadFrame, "$project requires a document operand")
		}
		return newProjectStage(body.Doc), nil
	case "$addFields", "$set":
		if body.Kind != value.KindDocument {
			return nil, mongoerr.New(mongoerr.CodeBadFrame, "%s requires a document operand", name)
		}
		return newAddFieldsStage(body.Doc), nil
	case "$unset":
		fields, err := unsetFields(body)
		if err != nil {
			return nil, err
		}
		return newUnsetStage(fields), nil
	case "$replaceRoot":
		if body.Kind != value.KindDocument {
			return nil, mongoerr.New(mongoerr.CodeBadFrame, "$replaceRoot requires a document operand")
		}
		newRoot := body.Doc.Get("newRoot")
		if newRoot.IsMissing() {
			return nil, mongoerr.New(mongoerr.CodeBadFrame, "$replaceRoot requires \"newRoot\"")
		}
		return newReplaceRootStage(newRoot), nil
	case "$replaceWith":
		return newReplaceRootStage(body), nil
	case "$sort":
		if body.Kind != value.KindDocument {
			return nil, mongoerr.New(mongoerr.CodeBadFrame, "$sort requires a document operand")
		}
		return newSortStage(body.Doc)
	case "$limit":
		n, ok := asInt64(body)
		if !ok {
			return nil, mongoerr.New(mongoerr.CodeBadFrame, "$limit requires a numeric operand")
		}
		return newLimitStage(n)
	case "$skip":
		n, ok := asInt64(body)
		if !ok {
			return nil, mongoerr.New(mongoerr.CodeBadFrame, "$skip requires a numeric operand")
		}
		return newSkipStage(n)
	case "$count":
		if body.Kind != value.KindString {
			return nil, mongoerr.New(mongoerr.CodeBadFrame, "$count requires a string operand")
		}
		return newCountStage(body.Str)
	case "$sample":
		if body.Kind != value.KindDocument {
			return nil, mongoerr.New(mongoerr.CodeBadFrame, "$sample requires a document operand")
		}
		n, ok := asInt64(body.Doc.Get("size"))
		if !ok {
			return nil, mongoerr.New(mongoerr.CodeBadFrame, "$sample requires a numeric \"size\"")
		}
		return newSampleStage(n)
	case "$group":
		if body.Kind != value.KindDocument {
			return nil, mongoerr.New(mongoerr.CodeBadFrame, "$group requires a document operand")
		}
		return newGroupStage(body.Doc)
	case "$unwind":
		return newUnwindStage(body)
	case "$lookup":
		if body.Kind != value.KindDocument {
			return nil, mongoerr.New(mongoerr.CodeBadFrame, "$lookup requires a document operand")
		}
		return newLookupStage(body.Doc, env)
	case "$sortByCount":
		return newSortByCountStage(body), nil
	case "$fill":
		if body.Kind != value.KindDocument {
			return nil, mongoerr.New(mongoerr.CodeBadFrame, "$fill requires a document operand")
		}
		return newFillStage(body.Doc)
	case "$densify":
		if body.Kind != value.KindDocument {
			return nil, mongoerr.New(mongoerr.CodeBadFrame, "$densify requires a document operand")
		}
		return newDensifyStage(body.Doc)
	case "$geoNear":
		if body.Kind != value.KindDocument {
			return nil, mongoerr.New(mongoerr.CodeBadFrame, "$geoNear requires a document operand")
		}
		return newGeoNearStage(body.Doc)
	case "$out":
		return newOutStage(body, env)
	case "$merge":
		return newMergeStage(body, env)
	default:
		return nil, mongoerr.New(mongoerr.CodeCommandNotFound, "unsupported aggregation stage %q", name)
	}
}

func unsetFields(body value.Value) ([]string, error) {
	switch body.Kind {
	case value.KindString:
		return []string{body.Str}, nil
	case value.KindArray:
		fields := make([]string, 0, len(body.Arr))
		for _, v := range body.Arr {
			if v.Kind != value.KindString {
				return nil, mongoerr.New(mongoerr.CodeBadFrame, "$unset array operand must contain strings")
			}
			fields = append(fields, v.Str)
		}
		return fields, nil
	default:
		return nil, mongoerr.New(mongoerr.CodeBadFrame, "$unset requires a string or array of strings")
	}
}

func asInt64(v value.Value) (int64, bool) {
	switch v.Kind {
	case value.KindInt32:
		return int64(v.I32), true
	case value.KindInt64:
		return v.I64, true
	case value.KindDouble:
		return int64(v.F64), true
	default:
		return 0, false
	}
}
