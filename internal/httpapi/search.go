package httpapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/fulldump/fpindex/internal/fpindex"
)

const defaultSearchTimeout = 5 * time.Second

// search handles `POST /search`. Body: `{"hashes":[...],
// "timeout_ms":...}`. Response: `{"matches":[{"id":...,"score":...},
// ...]}`, already sorted score desc, id asc by Index.Search.
func search(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}

	hashesJson := gjson.GetBytes(body, "hashes")
	if !hashesJson.Exists() || !hashesJson.IsArray() || len(hashesJson.Array()) == 0 {
		return fmt.Errorf("%w: field 'hashes' must be a non-empty array", fpindex.ErrInvalidArgument)
	}

	hashes := make([]uint32, 0, len(hashesJson.Array()))
	for _, h := range hashesJson.Array() {
		hashes = append(hashes, uint32(h.Uint()))
	}

	timeout := defaultSearchTimeout
	if ms := gjson.GetBytes(body, "timeout_ms"); ms.Exists() {
		timeout = time.Duration(ms.Int()) * time.Millisecond
	}

	results, err := getIndex(ctx).Search(hashes, time.Now().Add(timeout))
	if err != nil {
		return err
	}

	out := []byte("{}")
	for i, res := range results {
		out, _ = sjson.SetBytes(out, fmt.Sprintf("matches.%d.id", i), res.Id)
		out, _ = sjson.SetBytes(out, fmt.Sprintf("matches.%d.score", i), res.Score)
	}
	if len(results) == 0 {
		out, _ = sjson.SetBytes(out, "matches", []int{})
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(out)

	return nil
}
