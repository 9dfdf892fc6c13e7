package command

import (
	"context"

	"github.com/fcoury/oxidedb-sub001/internal/aggregate"
	"github.com/fcoury/oxidedb-sub001/internal/backend"
	"github.com/fcoury/oxidedb-sub001/internal/mongoerr"
	"github.com/fcoury/oxidedb-sub001/internal/value"
)

func init() {
	register("aggregate", handleAggregate)
}

// handleAggregate runs the C5 pipeline engine: ClassifyPushdown decides
// how much of the leading pipeline can be folded into the initial
// backend query, and the remaining stages run in memory through
// aggregate.Pipeline against whatever that query already returned.
func handleAggregate(ctx context.Context, dc *DispatchContext, db string, cmd *value.Document) (*value.Document, error) {
	coll, err := collectionName(cmd)
	if err != nil {
		return nil, err
	}
	pipelineVal := cmd.Get("pipeline")
	if pipelineVal.Kind != value.KindArray {
		return nil, mongoerr.New(mongoerr.CodeBadFrame, "aggregate requires a \"pipeline\" array")
	}
	specs := make([]*value.Document, 0, len(pipelineVal.Arr))
	for _, v := range pipelineVal.Arr {
		if v.Kind != value.KindDocument {
			return nil, mongoerr.New(mongoerr.CodeBadFrame, "each pipeline stage must be a document")
		}
		specs = append(specs, v.Doc)
	}

	pd, err := aggregate.ClassifyPushdown(specs)
	if err != nil {
		return nil, err
	}
	opts := backend.FindDocsOptions{
		FilterSQL:  pd.Filter.SQL,
		FilterArgs: pd.Filter.Args,
		OrderBySQL: pd.SortSQL,
	}
	if pd.Skip > 0 {
		opts.Skip = int(pd.Skip)
	}
	if pd.HasLimit {
		opts.Limit = int(pd.Limit)
	}
	rows, err := dc.Store.FindDocs(ctx, db, coll, opts)
	if err != nil {
		return nil, err
	}
	docs, err := docsFromRows(rows)
	if err != nil {
		return nil, err
	}
	if pd.Projection != nil {
		for i, d := range docs {
			docs[i] = pd.Projection.Apply(d)
		}
	}

	pipeline, err := aggregate.BuildPipeline(specs[pd.Consumed:], dc.aggregateEnv(db))
	if err != nil {
		return nil, err
	}
	result, err := pipeline.Run(ctx, docs)
	if err != nil {
		return nil, err
	}

	return cursorReply(dc, db, coll, result, batchSizeOf(cmd, defaultBatchSize)), nil
}
