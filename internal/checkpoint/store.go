// Package checkpoint persists training state as step-indexed files.
//
// Each save writes <dir>/model.ckpt-<step>.born, a born .born v2 file
// (SHA-256 verified) holding model parameters, optimizer slots and the
// training position, and refreshes the <dir>/checkpoint index. Existing
// checkpoint files are never overwritten or deleted.
package checkpoint

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// IndexFile is the name of the index written next to the checkpoints.
const IndexFile = "checkpoint"

var fileRe = regexp.MustCompile(`^model\.ckpt-(\d+)\.born$`)

// FileName returns the checkpoint file name for a global step.
func FileName(step int64) string {
	return fmt.Sprintf("model.ckpt-%d.born", step)
}

// Handle identifies a saved checkpoint.
type Handle struct {
	Step int64
	Path string
}

func (h Handle) String() string { return h.Path }

// Index is the content of the index file.
type Index struct {
	Latest string   `json:"latest"`
	All    []string `json:"all"`
}

// Store reads and writes checkpoints in one directory.
type Store struct {
	dir string
	now func() time.Time
}

// Open returns a store rooted at dir, creating the directory if needed.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, persistErr("open", dir, errors.WithStack(err))
	}
	return &Store{dir: dir, now: time.Now}, nil
}

// Dir is the checkpoint directory.
func (s *Store) Dir() string { return s.dir }

// Save writes state as the checkpoint for state.GlobalStep. The file
// appears atomically under its final name; saving a step that already
// exists fails with ErrExists.
func (s *Store) Save(state *State) (Handle, error) {
	h := Handle{Step: state.GlobalStep, Path: filepath.Join(s.dir, FileName(state.GlobalStep))}
	if _, err := os.Stat(h.Path); err == nil {
		return Handle{}, persistErr("save", h.Path, errors.WithStack(ErrExists))
	}

	var buf bytes.Buffer
	if err := encode(&buf, state, s.now()); err != nil {
		return Handle{}, persistErr("save", h.Path, err)
	}

	tmp, err := os.CreateTemp(s.dir, ".model.ckpt-*.tmp")
	if err != nil {
		return Handle{}, persistErr("save", h.Path, errors.WithStack(err))
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		return Handle{}, persistErr("save", h.Path, errors.WithStack(err))
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return Handle{}, persistErr("save", h.Path, errors.WithStack(err))
	}
	if err := tmp.Close(); err != nil {
		return Handle{}, persistErr("save", h.Path, errors.WithStack(err))
	}
	// Link fails when the target exists, so a concurrent writer cannot be
	// clobbered.
	if err := os.Link(tmp.Name(), h.Path); err != nil {
		if os.IsExist(err) {
			err = ErrExists
		}
		return Handle{}, persistErr("save", h.Path, errors.WithStack(err))
	}
	klog.V(1).Infof("Wrote checkpoint %s (%s)", h.Path, humanize.Bytes(uint64(buf.Len())))

	if err := s.writeIndex(); err != nil {
		return h, err
	}
	return h, nil
}

// Restore reads and verifies a checkpoint.
func (s *Store) Restore(h Handle) (*State, error) {
	return Read(h.Path)
}

// Read loads a checkpoint file from any location.
func Read(path string) (*State, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, persistErr("restore", path, errors.WithStack(err))
	}
	state, _, err := decode(buf)
	if err != nil {
		return nil, persistErr("restore", path, err)
	}
	return state, nil
}

// Info describes a checkpoint file without loading its tensors.
type Info struct {
	Path       string
	Header     *Header
	FileSize   int64
	ChecksumOK bool
}

// Inspect reads the header of a checkpoint file and verifies its checksum.
func Inspect(path string) (*Info, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, persistErr("inspect", path, errors.WithStack(err))
	}
	header, _, err := decodeHeader(buf)
	if err != nil {
		return nil, persistErr("inspect", path, err)
	}
	_, _, err = decode(buf)
	if err != nil && !errors.Is(err, ErrChecksumMismatch) {
		return nil, persistErr("inspect", path, err)
	}
	return &Info{Path: path, Header: header, FileSize: int64(len(buf)), ChecksumOK: err == nil}, nil
}

// List returns the checkpoints in the directory ordered by step.
func (s *Store) List() ([]Handle, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, persistErr("list", s.dir, errors.WithStack(err))
	}
	var handles []Handle
	for _, e := range entries {
		m := fileRe.FindStringSubmatch(e.Name())
		if m == nil || e.IsDir() {
			continue
		}
		step, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			continue
		}
		handles = append(handles, Handle{Step: step, Path: filepath.Join(s.dir, e.Name())})
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i].Step < handles[j].Step })
	return handles, nil
}

// Latest returns the checkpoint named by the index, falling back to the
// highest step on disk when the index is missing or stale.
func (s *Store) Latest() (Handle, error) {
	if idx, err := s.ReadIndex(); err == nil && idx.Latest != "" {
		if m := fileRe.FindStringSubmatch(idx.Latest); m != nil {
			path := filepath.Join(s.dir, idx.Latest)
			if _, err := os.Stat(path); err == nil {
				step, _ := strconv.ParseInt(m[1], 10, 64)
				return Handle{Step: step, Path: path}, nil
			}
		}
		klog.Warningf("Checkpoint index in %s is stale, scanning directory", s.dir)
	}
	handles, err := s.List()
	if err != nil {
		return Handle{}, err
	}
	if len(handles) == 0 {
		return Handle{}, persistErr("restore", s.dir, errors.WithStack(ErrNotFound))
	}
	return handles[len(handles)-1], nil
}

// ReadIndex parses the index file.
func (s *Store) ReadIndex() (*Index, error) {
	path := filepath.Join(s.dir, IndexFile)
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, persistErr("index", path, errors.WithStack(err))
	}
	var idx Index
	if err := json.Unmarshal(buf, &idx); err != nil {
		return nil, persistErr("index", path, errors.WithStack(err))
	}
	return &idx, nil
}

// writeIndex rewrites the index from the directory contents.
func (s *Store) writeIndex() error {
	path := filepath.Join(s.dir, IndexFile)
	handles, err := s.List()
	if err != nil {
		return err
	}
	idx := Index{All: make([]string, len(handles))}
	for i, h := range handles {
		idx.All[i] = filepath.Base(h.Path)
	}
	if len(handles) > 0 {
		idx.Latest = idx.All[len(idx.All)-1]
	}
	buf, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return persistErr("index", path, errors.WithStack(err))
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf, 0o644); err != nil {
		return persistErr("index", path, errors.WithStack(err))
	}
	if err := os.Rename(tmp, path); err != nil {
		return persistErr("index", path, errors.WithStack(err))
	}
	return nil
}
