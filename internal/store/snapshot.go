// SPDX-FileCopyrightText: 2025 ninotreve
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/ninotreve/slurm/internal/model"
	berrors "github.com/ninotreve/slurm/pkg/errors"
)

// snapshotVersion is the on-disk record format version (spec.md §4.7:
// "u16 version · u32 record_count · record*"). Bump it whenever the record
// layout changes; Load refuses to read a version it does not recognize.
const snapshotVersion uint16 = 1

const snapshotFileName = "burst_buffer_cray_state"

// record is one persistent-allocation row. emulation mode additionally
// persists Size, since without consulting the external subsystem at
// startup the plugin has no other way to learn how much space a
// previously-created persistent buffer holds.
type record struct {
	Account    string
	CreateTime time.Time
	Name       string
	Partition  string
	QoS        string
	UserID     uint32
	Size       uint64 // only written/read when emulation is true
}

// Snapshotter persists and restores the persistent-allocation subset of a
// Store's state, using the three-file shuffle: write to "<name>.new",
// rotate the current file to "<name>.old", then rename "<name>.new" over
// "<name>" (spec.md §4.7). A crash at any point during the shuffle leaves
// either the prior snapshot or the new one intact, never a partial file in
// the canonical path.
type Snapshotter struct {
	dir       string
	emulation bool
}

// NewSnapshotter creates a Snapshotter rooted at dir (spec.md §6's
// StateSaveDir).
func NewSnapshotter(dir string, emulation bool) *Snapshotter {
	return &Snapshotter{dir: dir, emulation: emulation}
}

func (s *Snapshotter) paths() (current, next, previous string) {
	base := filepath.Join(s.dir, snapshotFileName)
	return base, base + ".new", base + ".old"
}

// Save writes every persistent allocation in store to disk, using the
// three-file shuffle so a concurrent reader or a crash mid-write never
// observes a torn file at the canonical path.
func (s *Snapshotter) Save(st *Store) error {
	current, next, previous := s.paths()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return berrors.NewSnapshotIO("create state save dir", err)
	}

	records := s.recordsFrom(st)

	f, err := os.OpenFile(next, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return berrors.NewSnapshotIO("open snapshot staging file", err)
	}

	w := bufio.NewWriter(f)
	if err := writeRecords(w, records, s.emulation); err != nil {
		f.Close()
		return berrors.NewSnapshotIO("write snapshot records", err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return berrors.NewSnapshotIO("flush snapshot file", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return berrors.NewSnapshotIO("sync snapshot file", err)
	}
	if err := f.Close(); err != nil {
		return berrors.NewSnapshotIO("close snapshot file", err)
	}

	// Rotate current -> previous. Ignore "not exist": the very first save
	// has no prior snapshot to preserve.
	if err := os.Rename(current, previous); err != nil && !os.IsNotExist(err) {
		return berrors.NewSnapshotIO("rotate snapshot to .old", err)
	}
	if err := os.Rename(next, current); err != nil {
		return berrors.NewSnapshotIO("rename snapshot into place", err)
	}
	return nil
}

func (s *Snapshotter) recordsFrom(st *Store) []record {
	var out []record
	for _, a := range st.AllAllocations() {
		if !a.IsPersistent() {
			continue
		}
		r := record{
			Account:    a.Account,
			CreateTime: a.CreateTime,
			Name:       a.Name,
			Partition:  a.Partition,
			QoS:        a.QoS,
			UserID:     a.UserID,
		}
		if s.emulation {
			r.Size = a.Size
		}
		out = append(out, r)
	}
	return out
}

// Load restores persistent allocations from disk into st, trying the
// canonical file first and falling back to the ".old" rotation if the
// canonical file is missing or corrupt. It returns the recovered records
// (the caller re-attributes each to a live accounting association; see
// spec.md §4.7's "recovery re-attribution").
func (s *Snapshotter) Load() ([]*model.Allocation, error) {
	current, _, previous := s.paths()

	records, err := s.loadFile(current)
	if err != nil {
		records, err = s.loadFile(previous)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, nil
			}
			return nil, berrors.NewSnapshotIO("load snapshot (both current and .old failed)", err)
		}
	}

	out := make([]*model.Allocation, 0, len(records))
	for _, r := range records {
		out = append(out, &model.Allocation{
			UserID:     r.UserID,
			Name:       r.Name,
			Account:    r.Account,
			Partition:  r.Partition,
			QoS:        r.QoS,
			CreateTime: r.CreateTime,
			LastSeen:   r.CreateTime,
			Size:       r.Size,
			State:      model.Allocated,
		})
	}
	return out, nil
}

func (s *Snapshotter) loadFile(path string) ([]record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	return readRecords(r, s.emulation)
}

func writeRecords(w io.Writer, records []record, emulation bool) error {
	if err := binary.Write(w, binary.BigEndian, snapshotVersion); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(records))); err != nil {
		return err
	}
	for _, r := range records {
		if err := writeString(w, r.Account); err != nil {
			return err
		}
		if err := binary.Write(w, binary.BigEndian, r.CreateTime.Unix()); err != nil {
			return err
		}
		if err := writeString(w, r.Name); err != nil {
			return err
		}
		if err := writeString(w, r.Partition); err != nil {
			return err
		}
		if err := writeString(w, r.QoS); err != nil {
			return err
		}
		if err := binary.Write(w, binary.BigEndian, r.UserID); err != nil {
			return err
		}
		if emulation {
			if err := binary.Write(w, binary.BigEndian, r.Size); err != nil {
				return err
			}
		}
	}
	return nil
}

func readRecords(r io.Reader, emulation bool) ([]record, error) {
	var version uint16
	if err := binary.Read(r, binary.BigEndian, &version); err != nil {
		return nil, err
	}
	if version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", version)
	}

	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, err
	}

	records := make([]record, 0, count)
	for i := uint32(0); i < count; i++ {
		var rec record

		account, err := readString(r)
		if err != nil {
			return nil, err
		}
		rec.Account = account

		var createUnix int64
		if err := binary.Read(r, binary.BigEndian, &createUnix); err != nil {
			return nil, err
		}
		rec.CreateTime = time.Unix(createUnix, 0).UTC()

		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		rec.Name = name

		partition, err := readString(r)
		if err != nil {
			return nil, err
		}
		rec.Partition = partition

		qos, err := readString(r)
		if err != nil {
			return nil, err
		}
		rec.QoS = qos

		if err := binary.Read(r, binary.BigEndian, &rec.UserID); err != nil {
			return nil, err
		}

		if emulation {
			if err := binary.Read(r, binary.BigEndian, &rec.Size); err != nil {
				return nil, err
			}
		}

		records = append(records, rec)
	}
	return records, nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
