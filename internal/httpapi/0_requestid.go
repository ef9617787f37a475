package httpapi

import (
	"context"

	"github.com/fulldump/box"
	"github.com/google/uuid"
)

// RequestId stamps every request with a fresh identifier, echoed back
// on the X-Request-Id response header so a caller can correlate a
// response with the access log line box.AccessLog printed for it.
func RequestId(next box.H) box.H {
	return func(ctx context.Context) {
		id := uuid.NewString()
		box.GetResponse(ctx).Header().Set("X-Request-Id", id)
		next(context.WithValue(ctx, contextRequestIdKey, id))
	}
}

const contextRequestIdKey = "fpindex_request_id"

func getRequestId(ctx context.Context) string {
	id, _ := ctx.Value(contextRequestIdKey).(string)
	return id
}
