// Package oplog implements the append-only, JSON-lines commit log of
// spec.md §4.7: one file per rotation window, each commit bracketed by
// a begin record, one apply record per change, and a commit record.
//
// The wire format is plain encoding/json, matching the teacher's own
// command log (collection/command.go): a JSON-lines file is not the
// place for a schema-driven codec, and the teacher never reaches for
// one here either.
package oplog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/fulldump/fpindex/internal/segment"
)

// Updater is the index core's side of a commit: PrepareUpdate acquires
// whatever locks must be held until the commit is either published or
// abandoned. PrepareUpdate builds nothing; the Index implementation
// builds and publishes its memory segment in CommitUpdate. Write calls
// PrepareUpdate before the log is touched and CommitUpdate/CancelUpdate
// after, exactly once each.
type Updater interface {
	PrepareUpdate(changes []segment.Change) (pending interface{}, err error)
	CommitUpdate(pending interface{}, commitId uint64) error
	CancelUpdate(pending interface{})
}

// CommitGroup is one replayed begin/apply.../commit record group.
type CommitGroup struct {
	CommitId uint64
	Changes  []segment.Change
}

type beginBody struct {
	Size int `json:"size"`
}

type record struct {
	Id     uint64          `json:"id"`
	Begin  *beginBody      `json:"begin,omitempty"`
	Apply  *segment.Change `json:"apply,omitempty"`
	Commit bool            `json:"commit,omitempty"`
}

func fileName(commitId uint64) string {
	return fmt.Sprintf("%020d.xlog", commitId)
}

func listXlogFiles(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.xlog"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

// scannedFile is the result of replaying one xlog file: every complete
// record group found, and the byte offset right after the last one --
// anything past validSize is a partial trailing group and is garbage.
type scannedFile struct {
	groups    []CommitGroup
	validSize int64
}

func scanFile(path string) (*scannedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := json.NewDecoder(f)

	sf := &scannedFile{}
	var cur *CommitGroup
	var wantSize int

	for {
		var rec record
		if err := dec.Decode(&rec); err != nil {
			if err == io.EOF {
				break
			}
			// A partial trailing JSON value looks like any other decode
			// error here; treat everything read so far as final and stop.
			break
		}

		switch {
		case rec.Begin != nil:
			cur = &CommitGroup{CommitId: rec.Id}
			wantSize = rec.Begin.Size

		case rec.Apply != nil:
			if cur == nil || rec.Id != cur.CommitId {
				cur = nil
				continue
			}
			cur.Changes = append(cur.Changes, *rec.Apply)

		case rec.Commit:
			if cur != nil && rec.Id == cur.CommitId && len(cur.Changes) == wantSize {
				sf.groups = append(sf.groups, *cur)
				sf.validSize = dec.InputOffset()
			}
			cur = nil
		}
	}

	return sf, nil
}

// Recover replays every complete commit group with CommitId greater
// than maxPublishedCommitId across all xlog files in dir, in commit
// order. It also reports the last file in directory order and the
// byte offset right after its last complete group, so Open can resume
// appending to it (after trimming any trailing partial group).
func Recover(dir string, maxPublishedCommitId uint64) (groups []CommitGroup, lastFile string, lastFileValidSize int64, err error) {
	files, err := listXlogFiles(dir)
	if err != nil {
		return nil, "", 0, fmt.Errorf("list oplog files: %w", err)
	}

	for i, path := range files {
		sf, err := scanFile(path)
		if err != nil {
			return nil, "", 0, fmt.Errorf("scan oplog file %s: %w", path, err)
		}
		for _, g := range sf.groups {
			if g.CommitId > maxPublishedCommitId {
				groups = append(groups, g)
			}
		}
		if i == len(files)-1 {
			lastFile = path
			lastFileValidSize = sf.validSize
		}
	}

	return groups, lastFile, lastFileValidSize, nil
}

// Oplog is the currently-open, appendable tail of the commit log.
//
// Oplog does not serialize concurrent Write calls with its own lock:
// spec.md's lock ordering names exactly four locks (update_lock,
// memory_segments_lock, file_segments_lock, segments_lock), and
// Updater.PrepareUpdate is documented to hold update_lock until
// CommitUpdate/CancelUpdate runs -- that already guarantees at most
// one Write is in flight at a time. Adding a second, unordered lock
// here would just be a way to reintroduce the deadlock the spec is
// careful to rule out.
type Oplog struct {
	dir         string
	maxFileSize int64

	file    *os.File
	path    string
	written int64

	lastCommitId uint64
}

// Open opens (or creates) the current appendable file. lastFile and
// lastFileValidSize normally come from a preceding call to Recover;
// pass "" / 0 for a brand new oplog directory.
func Open(dir string, maxFileSize int64, lastFile string, lastFileValidSize int64, lastCommitId uint64) (*Oplog, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create oplog dir: %w", err)
	}

	path := lastFile
	written := lastFileValidSize

	if path != "" {
		if info, err := os.Stat(path); err == nil {
			if lastFileValidSize < info.Size() {
				if err := os.Truncate(path, lastFileValidSize); err != nil {
					return nil, fmt.Errorf("truncate trailing garbage from %s: %w", path, err)
				}
			}
			if maxFileSize > 0 && lastFileValidSize >= maxFileSize {
				path = "" // this file is already full, start a fresh one
			}
		} else {
			path = ""
		}
	}

	if path == "" {
		path = filepath.Join(dir, fileName(lastCommitId+1))
		written = 0
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open oplog file %s: %w", path, err)
	}

	return &Oplog{
		dir:          dir,
		maxFileSize:  maxFileSize,
		file:         f,
		path:         path,
		written:      written,
		lastCommitId: lastCommitId,
	}, nil
}

func (o *Oplog) LastCommitId() uint64 { return o.lastCommitId }

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

func (o *Oplog) rotateIfNeeded(commitId uint64) error {
	if o.maxFileSize <= 0 || o.written < o.maxFileSize {
		return nil
	}

	if err := o.file.Sync(); err != nil {
		return fmt.Errorf("sync %s before rotation: %w", o.path, err)
	}
	if err := o.file.Close(); err != nil {
		return fmt.Errorf("close %s before rotation: %w", o.path, err)
	}

	path := filepath.Join(o.dir, fileName(commitId))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open rotated oplog file %s: %w", path, err)
	}

	o.file = f
	o.path = path
	o.written = 0
	return nil
}

// Write allocates the next commit id, drives updater through the
// prepare/commit(or cancel) protocol, and durably appends the record
// group in between. If rotating or appending fails, the updater is
// cancelled and any bytes already written for this commit are truncated
// back off the file. A CommitUpdate failure is returned as is: the
// record group stays in the log and the updater is not cancelled.
func (o *Oplog) Write(changes []segment.Change, updater Updater) (uint64, error) {
	pending, err := updater.PrepareUpdate(changes)
	if err != nil {
		return 0, fmt.Errorf("prepare update: %w", err)
	}

	commitId := o.lastCommitId + 1

	if err := o.rotateIfNeeded(commitId); err != nil {
		updater.CancelUpdate(pending)
		return 0, err
	}

	startOffset := o.written

	if err := o.appendGroup(commitId, changes); err != nil {
		updater.CancelUpdate(pending)
		if terr := os.Truncate(o.path, startOffset); terr != nil {
			return 0, fmt.Errorf("append commit %d: %w (and truncate recovery failed: %v)", commitId, err, terr)
		}
		o.written = startOffset
		return 0, fmt.Errorf("append commit %d: %w", commitId, err)
	}

	o.lastCommitId = commitId

	if err := updater.CommitUpdate(pending, commitId); err != nil {
		return 0, fmt.Errorf("commit update %d: %w", commitId, err)
	}

	return commitId, nil
}

func (o *Oplog) appendGroup(commitId uint64, changes []segment.Change) error {
	cw := &countingWriter{w: o.file}
	enc := json.NewEncoder(cw)

	if err := enc.Encode(record{Id: commitId, Begin: &beginBody{Size: len(changes)}}); err != nil {
		o.written += cw.n
		return fmt.Errorf("encode begin record: %w", err)
	}

	for i := range changes {
		if err := enc.Encode(record{Id: commitId, Apply: &changes[i]}); err != nil {
			o.written += cw.n
			return fmt.Errorf("encode apply record %d: %w", i, err)
		}
	}

	if err := enc.Encode(record{Id: commitId, Commit: true}); err != nil {
		o.written += cw.n
		return fmt.Errorf("encode commit record: %w", err)
	}

	o.written += cw.n

	if err := o.file.Sync(); err != nil {
		return fmt.Errorf("fsync oplog file: %w", err)
	}

	return nil
}

// Truncate deletes every xlog file (other than the currently open one)
// whose highest commit id is at or below commitId. It is called after
// a checkpoint advances the durable watermark.
func (o *Oplog) Truncate(commitId uint64) error {
	files, err := listXlogFiles(o.dir)
	if err != nil {
		return fmt.Errorf("list oplog files: %w", err)
	}

	for _, path := range files {
		if path == o.path {
			continue
		}

		sf, err := scanFile(path)
		if err != nil {
			return fmt.Errorf("scan %s: %w", path, err)
		}

		var maxId uint64
		for _, g := range sf.groups {
			if g.CommitId > maxId {
				maxId = g.CommitId
			}
		}

		if maxId <= commitId {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("remove %s: %w", path, err)
			}
		}
	}

	return nil
}

// Close fsyncs and closes the current file without deleting anything.
func (o *Oplog) Close() error {
	if err := o.file.Sync(); err != nil {
		o.file.Close()
		return fmt.Errorf("sync oplog file on close: %w", err)
	}
	return o.file.Close()
}
