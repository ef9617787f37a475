package httpapi

import "context"

// attributes handles `GET /attributes`: the merged attribute map plus
// the built-in min_document_id/max_document_id bounds. Attribute
// names are free-form, so this returns a plain map for box's default
// encoding/json serializer rather than routing through sjson's
// dotted-path setter.
func attributes(ctx context.Context) (map[string]uint64, error) {
	return getIndex(ctx).GetAttributes(), nil
}
