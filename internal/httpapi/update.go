package httpapi

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/fulldump/fpindex/internal/fpindex"
	"github.com/fulldump/fpindex/internal/segment"
)

// update handles `POST /update`. The body is `{"changes":[{"kind":...},
// ...]}`; changes are pulled out with gjson rather than a bound struct
// so a caller can stream a large batch without the whole array being
// re-walked by encoding/json's reflection twice.
func update(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}

	changesJson := gjson.GetBytes(body, "changes")
	if !changesJson.Exists() || !changesJson.IsArray() {
		return fmt.Errorf("%w: field 'changes' must be an array", fpindex.ErrInvalidArgument)
	}

	changes := make([]segment.Change, 0, len(changesJson.Array()))
	for _, c := range changesJson.Array() {
		change := segment.Change{
			Kind:  segment.ChangeKind(c.Get("kind").String()),
			Id:    uint32(c.Get("id").Uint()),
			Name:  c.Get("name").String(),
			Value: c.Get("value").Uint(),
		}
		for _, h := range c.Get("hashes").Array() {
			change.Hashes = append(change.Hashes, uint32(h.Uint()))
		}
		changes = append(changes, change)
	}

	commitId, err := getIndex(ctx).Update(changes)
	if err != nil {
		return err
	}

	out, _ := sjson.SetBytes([]byte("{}"), "commit_id", commitId)
	w.Header().Set("Content-Type", "application/json")
	w.Write(out)

	return nil
}
