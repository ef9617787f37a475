package segment

import "sort"

// SearchResult is one aggregated hit: id, the number of distinct
// query hashes matched in the highest-version segment that contains
// id, and that segment's version (used to resolve shadowing across
// segment lists).
type SearchResult struct {
	Id      uint32
	Score   int
	Version uint64
}

// ResultSet accumulates SearchResults across every segment probed by
// a single search call. Matches from a higher-version segment always
// replace matches from a lower-version segment for the same id --
// this is what makes overwrites and deletes visible without an
// explicit merge.
type ResultSet struct {
	byId map[uint32]*SearchResult
}

func NewResultSet() *ResultSet {
	return &ResultSet{byId: map[uint32]*SearchResult{}}
}

// UpsertMatch records that id matched one query hash in the segment
// identified by version.
func (rs *ResultSet) UpsertMatch(id uint32, version uint64) {
	r, ok := rs.byId[id]
	if !ok {
		rs.byId[id] = &SearchResult{Id: id, Score: 1, Version: version}
		return
	}
	switch {
	case version > r.Version:
		// A newer segment shadows every match this id had so far.
		r.Version = version
		r.Score = 1
	case version == r.Version:
		r.Score++
	default:
		// Shadowed by an already-recorded, newer segment: ignore.
	}
}

// Finish drops the score of any result that is shadowed by a strictly
// newer segment carrying id in its docs set without it being a match
// -- this is how a delete or a full overwrite makes old postings
// disappear from search output even before a merge has run.
// hasNewerVersion(id, version) must report whether any segment newer
// than version carries id in its docs set.
func (rs *ResultSet) Finish(hasNewerVersion func(id uint32, version uint64) bool) {
	for _, r := range rs.byId {
		if r.Score == 0 {
			continue
		}
		if hasNewerVersion(r.Id, r.Version) {
			r.Score = 0
		}
	}
}

// Results returns every non-zero-score result sorted by score
// descending, id ascending.
func (rs *ResultSet) Results() []SearchResult {
	out := make([]SearchResult, 0, len(rs.byId))
	for _, r := range rs.byId {
		if r.Score <= 0 {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Id < out[j].Id
	})
	return out
}
