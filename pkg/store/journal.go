package store

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/adfharrison1/go-docstore/pkg/domain"
)

// JournalExtension is appended to the snapshot path to name the journal
const JournalExtension = ".swp"

// DurabilityLevel represents the level of durability guarantee of journal appends
type DurabilityLevel int

const (
	DurabilityOS   DurabilityLevel = iota // Flush to OS page cache (default)
	DurabilityFull                        // Full durability with fsync after every record
)

func (d DurabilityLevel) String() string {
	switch d {
	case DurabilityOS:
		return "os"
	case DurabilityFull:
		return "full"
	default:
		return fmt.Sprintf("DurabilityLevel(%d)", int(d))
	}
}

// ParseDurability resolves a durability level name
func ParseDurability(name string) (DurabilityLevel, error) {
	switch strings.ToLower(name) {
	case "", "os":
		return DurabilityOS, nil
	case "full", "fsync":
		return DurabilityFull, nil
	}
	return DurabilityOS, domain.InvalidArgument("unknown durability level %q", name)
}

// Record is one journaled mutation of one document
type Record struct {
	LSN        int64
	Collection string
	Op         domain.Event
	Data       domain.Document
}

// frame is the on-disk shape of a record: one JSON object per line.
// The checksum covers the header fields and the raw data bytes.
type frame struct {
	LSN        int64           `json:"lsn"`
	Collection string          `json:"collection"`
	Op         domain.Event    `json:"op"`
	Data       json.RawMessage `json:"data"`
	Checksum   uint32          `json:"checksum"`
}

func (f *frame) checksum() uint32 {
	h := crc32.NewIEEE()
	h.Write([]byte(strconv.FormatInt(f.LSN, 10)))
	h.Write([]byte{0})
	h.Write([]byte(f.Collection))
	h.Write([]byte{0})
	h.Write([]byte(f.Op))
	h.Write([]byte{0})
	h.Write(f.Data)
	return h.Sum32()
}

// Journal is an append-only stream of records
type Journal struct {
	mu         sync.Mutex
	path       string
	file       *os.File
	durability DurabilityLevel
	nextLSN    int64
	entries    int64
	dropped    int
}

// OpenJournal opens path for appending, creating it if needed. Records
// already in the file keep their sequence numbers; new ones continue after them.
// A torn final line is cut off first so new records start on a line of their own.
func OpenJournal(path string, durability DurabilityLevel) (*Journal, error) {
	var nextLSN int64
	records, torn, err := readJournal(path)
	if err == nil && len(records) > 0 {
		nextLSN = records[len(records)-1].LSN + 1
	}
	if err == nil && len(torn) > 0 {
		if err := truncateTail(path, len(torn)); err != nil {
			return nil, fmt.Errorf("failed to drop torn journal record: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	return &Journal{
		path:       path,
		file:       file,
		durability: durability,
		nextLSN:    nextLSN,
		dropped:    len(torn),
	}, nil
}

func truncateTail(path string, n int) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	return os.Truncate(path, info.Size()-int64(n))
}

// Dropped returns the size in bytes of the torn record cut off when the
// journal was opened
func (j *Journal) Dropped() int {
	return j.dropped
}

// Path returns the journal file path
func (j *Journal) Path() string {
	return j.path
}

// Append writes one record as a single newline-terminated line
func (j *Journal) Append(rec Record) (int64, error) {
	if !rec.Op.Valid() {
		return 0, domain.InvalidArgument("unknown journal operation %q", rec.Op)
	}

	data, err := json.Marshal(rec.Data)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal journal data: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return 0, fmt.Errorf("journal %s is closed", j.path)
	}

	f := frame{LSN: j.nextLSN, Collection: rec.Collection, Op: rec.Op, Data: data}
	f.Checksum = f.checksum()

	line, err := json.Marshal(&f)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal journal record: %w", err)
	}
	line = append(line, '\n')

	if _, err := j.file.Write(line); err != nil {
		return 0, fmt.Errorf("failed to write journal record: %w", err)
	}
	if j.durability == DurabilityFull {
		if err := j.file.Sync(); err != nil {
			return 0, fmt.Errorf("failed to sync journal: %w", err)
		}
	}

	j.nextLSN++
	j.entries++
	return f.LSN, nil
}

// Entries returns the number of records appended through this handle
func (j *Journal) Entries() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.entries
}

// Close closes the journal stream
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	return err
}

// readJournal decodes every record of the journal at path, in the order
// written. A final line without its terminating newline is a torn write and
// is returned separately instead of being decoded. Any other undecodable
// line, checksum mismatch or unknown operation fails with ErrCorruptJournal.
func readJournal(path string) (records []Record, torn []byte, err error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	for lineNo := 1; ; lineNo++ {
		line, readErr := reader.ReadBytes('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return nil, nil, fmt.Errorf("failed to read journal: %w", readErr)
		}

		if errors.Is(readErr, io.EOF) {
			if len(bytes.TrimSpace(line)) > 0 {
				torn = line
			}
			return records, torn, nil
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		rec, err := decodeRecord(line)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: line %d: %v", domain.ErrCorruptJournal, lineNo, err)
		}
		records = append(records, rec)
	}
}

func decodeRecord(line []byte) (Record, error) {
	var f frame
	if err := json.Unmarshal(line, &f); err != nil {
		return Record{}, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	if f.Checksum != f.checksum() {
		return Record{}, fmt.Errorf("checksum verification failed for LSN %d", f.LSN)
	}
	if !f.Op.Valid() {
		return Record{}, fmt.Errorf("unrecognized operation kind %q", f.Op)
	}

	var data domain.Document
	if err := json.Unmarshal(f.Data, &data); err != nil {
		return Record{}, fmt.Errorf("failed to unmarshal record data: %w", err)
	}
	if data == nil {
		return Record{}, fmt.Errorf("record LSN %d carries no document", f.LSN)
	}

	return Record{LSN: f.LSN, Collection: f.Collection, Op: f.Op, Data: data}, nil
}
