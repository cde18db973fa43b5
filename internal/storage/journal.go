package storage

import (
	"encoding/binary"
	"os"
	"sync"
)

// rollbackJournalMagic marks a journal file left behind by a crash
// mid-commit, so recovery can tell a real journal from a stale empty
// file.
var rollbackJournalMagic = [8]byte{0xd9, 0xd5, 0x05, 0xf9, 0x20, 0xa1, 0x63, 0xd7}

// Journal implements the rollback-journal alternative to WAL named in
// spec.md §4.4 ("else a rollback-journal file"): before a page is
// overwritten in place, its pre-image is appended here; on commit the
// journal is deleted (or truncated), and on next Open, a leftover
// journal's pre-images are replayed back into the main file to undo a
// torn transaction.
type Journal struct {
	mu       sync.Mutex
	file     *os.File
	path     string
	pageSize int
	active   bool
}

func OpenJournal(path string, pageSize int) (*Journal, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, WrapError(ErrIO, "open journal file", err)
	}
	return &Journal{file: f, path: path, pageSize: pageSize}, nil
}

// Begin starts a new journal for a transaction, writing the magic
// header. Safe to call repeatedly; only the first call in a
// transaction has an effect.
func (j *Journal) Begin() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.active {
		return nil
	}
	if err := j.file.Truncate(0); err != nil {
		return WrapError(ErrIO, "truncate journal", err)
	}
	if _, err := j.file.WriteAt(rollbackJournalMagic[:], 0); err != nil {
		return WrapError(ErrIO, "write journal header", err)
	}
	j.active = true
	return nil
}

// RecordPreImage appends a page's before-transaction contents to the
// journal, called once per page the first time it is dirtied within a
// transaction.
func (j *Journal) RecordPreImage(pageNumber int, data []byte) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	info, err := j.file.Stat()
	if err != nil {
		return WrapError(ErrIO, "stat journal", err)
	}
	record := make([]byte, 4+j.pageSize)
	binary.BigEndian.PutUint32(record[0:4], uint32(pageNumber))
	copy(record[4:], data)

	if _, err := j.file.WriteAt(record, info.Size()); err != nil {
		return WrapError(ErrIO, "append journal record", err)
	}
	return j.file.Sync()
}

// Commit discards the journal: a committed transaction no longer
// needs its pre-images.
func (j *Journal) Commit() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.active = false
	return j.file.Truncate(0)
}

// Rollback replays every recorded pre-image back into base, undoing
// an in-progress transaction.
func (j *Journal) Rollback(base *FileSource) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.replay(base)
}

// RecoverIfPresent is called on Open: if a non-empty journal with a
// valid header is found, the database was left mid-transaction by a
// crash, and the pre-images are replayed to restore the last
// committed state.
func RecoverIfPresent(path string, pageSize int, base *FileSource) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return WrapError(ErrIO, "open journal for recovery", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return WrapError(ErrIO, "stat journal for recovery", err)
	}
	if info.Size() < 8 {
		return nil
	}
	header := make([]byte, 8)
	if _, err := f.ReadAt(header, 0); err != nil {
		return WrapError(ErrIO, "read journal header", err)
	}
	if string(header) != string(rollbackJournalMagic[:]) {
		return nil
	}

	j := &Journal{file: f, pageSize: pageSize}
	if err := j.replay(base); err != nil {
		return err
	}
	return os.Remove(path)
}

func (j *Journal) replay(base *FileSource) error {
	info, err := j.file.Stat()
	if err != nil {
		return WrapError(ErrIO, "stat journal", err)
	}
	recordLen := int64(4 + j.pageSize)
	offset := int64(8)
	for offset+recordLen <= info.Size() {
		record := make([]byte, recordLen)
		if _, err := j.file.ReadAt(record, offset); err != nil {
			return WrapError(ErrIO, "read journal record", err)
		}
		pageNumber := binary.BigEndian.Uint32(record[0:4])
		if err := base.WritePage(int(pageNumber), record[4:]); err != nil {
			return err
		}
		offset += recordLen
	}
	if err := base.Sync(); err != nil {
		return err
	}
	return j.file.Truncate(0)
}

func (j *Journal) Close() error { return j.file.Close() }
