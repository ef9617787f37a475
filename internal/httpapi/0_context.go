package httpapi

import (
	"context"

	"github.com/fulldump/fpindex/internal/fpindex"
)

const contextIndexKey = "fpindex_index"

func setIndex(ctx context.Context, idx *fpindex.Index) context.Context {
	return context.WithValue(ctx, contextIndexKey, idx)
}

func getIndex(ctx context.Context) *fpindex.Index {
	return ctx.Value(contextIndexKey).(*fpindex.Index)
}
