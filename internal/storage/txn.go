package storage

import (
	"path/filepath"
	"sync"
)

// JournalMode selects how a Database makes transactions durable and
// crash-recoverable, per spec.md §4.4's WAL-or-rollback-journal
// choice.
type JournalMode int

const (
	JournalModeWAL JournalMode = iota
	JournalModeRollback
)

// Database owns one page source, its write-ahead log or rollback
// journal, and the single writer slot every Transaction contends for.
// The writer mutex lives on the Database handle (not a package
// global) so two Databases open in the same process never block each
// other.
type Database struct {
	writerMu sync.Mutex

	base     PageSource
	fileSrc  *FileSource // nil for memory-backed databases
	wal      *WAL
	journal  *Journal
	mode     JournalMode
	header   FileHeader
	pool     *BufferPool
	path     string
	inMemory bool

	schemaMu sync.RWMutex // guards header reads outside a transaction
}

type Options struct {
	PageSize int
	Mode     JournalMode
}

func defaultOptions(o *Options) Options {
	if o == nil {
		return Options{PageSize: 4096, Mode: JournalModeWAL}
	}
	out := *o
	if out.PageSize == 0 {
		out.PageSize = 4096
	}
	return out
}

// Open opens (creating if necessary) a file-backed database.
func Open(path string, opts *Options) (*Database, error) {
	o := defaultOptions(opts)

	fileSrc, err := OpenFileSource(path, o.PageSize)
	if err != nil {
		return nil, err
	}

	var header FileHeader
	if fileSrc.PageCount() == 0 {
		header = NewFileHeader(uint32(o.PageSize))
		if err := fileSrc.WritePage(1, header.Encode()); err != nil {
			return nil, err
		}
	} else {
		raw, err := fileSrc.ReadPage(1)
		if err != nil {
			return nil, err
		}
		header, err = ParseFileHeader(raw[:FileHeaderSize])
		if err != nil {
			return nil, err
		}
	}

	db := &Database{
		base:     fileSrc,
		fileSrc:  fileSrc,
		header:   header,
		pool:     NewBufferPool(o.PageSize),
		path:     path,
		mode:     o.Mode,
		inMemory: false,
	}

	switch o.Mode {
	case JournalModeWAL:
		wal, err := OpenWAL(fileSrc, path+"-wal")
		if err != nil {
			return nil, err
		}
		db.wal = wal
	case JournalModeRollback:
		journalPath := filepath.Clean(path) + "-journal"
		if err := RecoverIfPresent(journalPath, o.PageSize, fileSrc); err != nil {
			return nil, err
		}
		journal, err := OpenJournal(journalPath, o.PageSize)
		if err != nil {
			return nil, err
		}
		db.journal = journal
	}

	return db, nil
}

// OpenMemory opens a purely in-process database with no backing file;
// durability/journaling is a no-op since there is nothing to crash
// back to.
func OpenMemory(opts *Options) (*Database, error) {
	o := defaultOptions(opts)
	mem := NewMemorySource(o.PageSize)
	header := NewFileHeader(uint32(o.PageSize))
	if err := mem.WritePage(1, header.Encode()); err != nil {
		return nil, err
	}
	return &Database{
		base:     mem,
		header:   header,
		pool:     NewBufferPool(o.PageSize),
		inMemory: true,
	}, nil
}

func (db *Database) PageSize() int { return db.base.PageSize() }

func (db *Database) Header() FileHeader {
	db.schemaMu.RLock()
	defer db.schemaMu.RUnlock()
	return db.header
}

// BeginTransaction starts a transaction. Writable transactions
// acquire the Database's single writer slot for their lifetime;
// read-only transactions never block on it and see a consistent
// snapshot via the shadow overlay's base pointer.
func (db *Database) BeginTransaction(writable bool) (*Transaction, error) {
	if writable {
		db.writerMu.Lock()
		if db.mode == JournalModeRollback && db.journal != nil {
			if err := db.journal.Begin(); err != nil {
				db.writerMu.Unlock()
				return nil, err
			}
		}
	}

	shadow := NewShadowSource(db.base)
	db.schemaMu.RLock()
	header := db.header
	db.schemaMu.RUnlock()

	return &Transaction{
		db:       db,
		shadow:   shadow,
		mutator:  NewMutator(shadow, int(header.PageCount)),
		header:   header,
		writable: writable,
	}, nil
}

// Transaction is the copy-on-write unit of work: every page it
// touches is written into a ShadowSource overlay and only becomes
// visible to new transactions at Commit.
type Transaction struct {
	db       *Database
	shadow   *ShadowSource
	mutator  *Mutator
	header   FileHeader
	writable bool
	done     bool
}

func (t *Transaction) Mutator() *Mutator { return t.mutator }
func (t *Transaction) Source() PageSource { return t.shadow }
func (t *Transaction) Header() *FileHeader { return &t.header }

// Commit flushes the shadow overlay's dirty pages through the
// journaling layer (WAL frames or rollback pre-images plus in-place
// writes), advances the file header fields a commit owns, fsyncs, and
// releases the writer slot.
func (t *Transaction) Commit() error {
	if t.done {
		return NewError(ErrTransactionCompleted, "transaction already finished")
	}
	if !t.writable {
		t.done = true
		return nil
	}
	defer func() {
		t.db.writerMu.Unlock()
		t.done = true
	}()

	dirty := t.shadow.DirtyPages()
	t.header.ChangeCounter++
	if pc := t.shadow.PageCount(); pc > int(t.header.PageCount) {
		t.header.PageCount = uint32(pc)
	}
	headerBytes := t.header.Encode()

	mode := t.db.mode
	if t.db.inMemory {
		mode = -1 // no WAL or journal: flushed by the default branch
	}
	switch mode {
	case JournalModeWAL:
		pages := make(map[int][]byte, len(dirty))
		for _, n := range dirty {
			data := t.shadow.PageData(n)
			if n == 1 {
				cp := make([]byte, len(data))
				copy(cp, data)
				copy(cp, headerBytes)
				data = cp
			}
			pages[n] = data
		}
		if _, ok := pages[1]; !ok && len(dirty) > 0 {
			base1, err := t.shadow.GetPage(1)
			if err != nil {
				return err
			}
			cp := make([]byte, len(base1))
			copy(cp, base1)
			copy(cp, headerBytes)
			pages[1] = cp
			dirty = append(dirty, 1)
		}
		if err := t.db.wal.AppendTransaction(pages, dirty); err != nil {
			return err
		}
		if err := t.db.wal.Checkpoint(); err != nil {
			return err
		}
	case JournalModeRollback:
		for _, n := range dirty {
			preimage, err := t.db.fileSrc.ReadPage(n)
			if err == nil {
				if err := t.db.journal.RecordPreImage(n, preimage); err != nil {
					return err
				}
			}
			data := t.shadow.PageData(n)
			if n == 1 {
				cp := make([]byte, len(data))
				copy(cp, data)
				copy(cp, headerBytes)
				data = cp
			}
			if err := t.db.fileSrc.WritePage(n, data); err != nil {
				return err
			}
		}
		if err := t.db.fileSrc.Sync(); err != nil {
			return err
		}
		if err := t.db.journal.Commit(); err != nil {
			return err
		}
	default:
		// In-memory database: copy every page the shadow overlay holds
		// into the MemorySource, with page 1 carrying the new header.
		for _, n := range dirty {
			data := t.shadow.PageData(n)
			if n == 1 {
				cp := make([]byte, len(data))
				copy(cp, data)
				copy(cp, headerBytes)
				data = cp
			}
			if err := t.db.base.WritePage(n, data); err != nil {
				return err
			}
		}
	}

	t.db.schemaMu.Lock()
	t.db.header = t.header
	t.db.schemaMu.Unlock()
	return nil
}

// Rollback discards the shadow overlay without touching committed
// state.
func (t *Transaction) Rollback() error {
	if t.done {
		return NewError(ErrTransactionCompleted, "transaction already finished")
	}
	t.shadow.Discard()
	if t.writable {
		if t.db.mode == JournalModeRollback && t.db.journal != nil {
			t.db.journal.Commit() // nothing durable was ever written in-place
		}
		t.db.writerMu.Unlock()
	}
	t.done = true
	return nil
}

// Checkpoint folds the WAL back into the main file. Only meaningful
// in JournalModeWAL.
func (db *Database) Checkpoint() error {
	if db.wal == nil {
		return nil
	}
	return db.wal.Checkpoint()
}

func (db *Database) Close() error {
	if db.wal != nil {
		if err := db.wal.Close(); err != nil {
			return err
		}
	}
	if db.journal != nil {
		if err := db.journal.Close(); err != nil {
			return err
		}
	}
	if db.fileSrc != nil {
		return db.fileSrc.Close()
	}
	return nil
}
