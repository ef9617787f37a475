package httpapi

import (
	"context"

	"github.com/fulldump/box"

	"github.com/fulldump/fpindex/internal/fpindex"
)

// Build wires idx into a thin box HTTP surface: update/search/
// attributes per spec.md §6, plus the supplemented status endpoint.
// It mirrors the shape of the teacher's api.Build -- one resource
// tree, injectServicer-style context wiring, pretty-printed errors.
func Build(idx *fpindex.Index, version string) *box.B {

	b := box.NewBox()

	b.WithInterceptors(
		box.RecoverFromPanic,
		RequestId,
		box.AccessLog,
		injectIndex(idx),
		PrettyErrorInterceptor,
		box.SetResponseHeader("Content-Type", "application/json"),
	)

	b.Resource("update").WithActions(box.Post(update))
	b.Resource("search").WithActions(box.Post(search))
	b.Resource("attributes").WithActions(box.Get(attributes))
	b.Resource("_status").WithActions(box.Get(status))

	b.Resource("release").WithActions(box.Get(func() string { return version }))

	return b
}

func injectIndex(idx *fpindex.Index) box.I {
	return func(next box.H) box.H {
		return func(ctx context.Context) {
			next(setIndex(ctx, idx))
		}
	}
}
