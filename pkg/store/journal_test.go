package store

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adfharrison1/go-docstore/pkg/domain"
)

// rawRecord builds a journal line with a valid checksum, whatever the op
func rawRecord(t *testing.T, lsn int64, collection string, op domain.Event, doc domain.Document) []byte {
	t.Helper()
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	f := frame{LSN: lsn, Collection: collection, Op: op, Data: data}
	f.Checksum = f.checksum()
	line, err := json.Marshal(&f)
	require.NoError(t, err)
	return append(line, '\n')
}

func TestJournal_AppendIsNewlineDelimited(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json.swp")
	j, err := OpenJournal(path, DurabilityOS)
	require.NoError(t, err)

	_, err = j.Append(Record{Collection: "inge", Op: domain.EventInsert, Data: domain.Document{"_id": "a", "note": "line\nbreak"}})
	require.NoError(t, err)
	_, err = j.Append(Record{Collection: "inge", Op: domain.EventDelete, Data: domain.Document{"_id": "a"}})
	require.NoError(t, err)
	require.NoError(t, j.Close())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, bytes.Count(content, []byte("\n")))
	assert.True(t, bytes.HasSuffix(content, []byte("\n")))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	records, torn, err := readJournal(path)
	require.NoError(t, err)
	assert.Empty(t, torn)
	require.Len(t, records, 2)
	assert.Equal(t, "line\nbreak", records[0].Data["note"])
	assert.Equal(t, domain.EventDelete, records[1].Op)
	assert.Equal(t, int64(1), records[1].LSN)
}

func TestJournal_ReopenContinuesLSN(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json.swp")

	j, err := OpenJournal(path, DurabilityFull)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := j.Append(Record{Collection: "inge", Op: domain.EventInsert, Data: domain.Document{"_id": "a"}})
		require.NoError(t, err)
	}
	assert.Equal(t, int64(3), j.Entries())
	require.NoError(t, j.Close())

	j, err = OpenJournal(path, DurabilityOS)
	require.NoError(t, err)
	defer j.Close()
	lsn, err := j.Append(Record{Collection: "inge", Op: domain.EventUpdate, Data: domain.Document{"_id": "a"}})
	require.NoError(t, err)
	assert.Equal(t, int64(3), lsn)
}

func TestJournal_ReopenCutsTornTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json.swp")
	valid := rawRecord(t, 0, "inge", domain.EventInsert, domain.Document{"_id": "a"})
	require.NoError(t, os.WriteFile(path, append(append([]byte{}, valid...), `{"lsn":1,"collection":"in`...), 0600))

	j, err := OpenJournal(path, DurabilityOS)
	require.NoError(t, err)
	defer j.Close()
	assert.Equal(t, 25, j.Dropped())

	lsn, err := j.Append(Record{Collection: "inge", Op: domain.EventInsert, Data: domain.Document{"_id": "b"}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), lsn)

	records, torn, err := readJournal(path)
	require.NoError(t, err)
	assert.Empty(t, torn)
	require.Len(t, records, 2)
	assert.Equal(t, "a", records[0].Data.ID())
	assert.Equal(t, "b", records[1].Data.ID())
}

func TestJournal_AppendRejects(t *testing.T) {
	j, err := OpenJournal(filepath.Join(t.TempDir(), "db.json.swp"), DurabilityOS)
	require.NoError(t, err)

	_, err = j.Append(Record{Collection: "inge", Op: "upsert", Data: domain.Document{"_id": "a"}})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	require.NoError(t, j.Close())
	require.NoError(t, j.Close())
	_, err = j.Append(Record{Collection: "inge", Op: domain.EventInsert, Data: domain.Document{"_id": "a"}})
	assert.Error(t, err)
}

func TestReadJournal(t *testing.T) {
	valid := rawRecord(t, 0, "inge", domain.EventInsert, domain.Document{"_id": "a"})

	tests := []struct {
		name     string
		content  []byte
		records  int
		torn     bool
		corrupts bool
	}{
		{name: "empty", content: nil},
		{name: "blank lines", content: append(append([]byte("\n"), valid...), '\n'), records: 1},
		{name: "torn tail", content: append(append([]byte{}, valid...), `{"lsn":1,"collec`...), records: 1, torn: true},
		{name: "garbage line", content: append([]byte("not json\n"), valid...), corrupts: true},
		{name: "unknown op", content: append(append([]byte{}, valid...), rawRecord(t, 1, "inge", "upsert", domain.Document{"_id": "a"})...), corrupts: true},
		{name: "checksum mismatch", content: bytes.Replace(valid, []byte(`"a"`), []byte(`"b"`), 1), corrupts: true},
		{name: "null data", content: rawRecord(t, 0, "inge", domain.EventInsert, nil), corrupts: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "db.json.swp")
			require.NoError(t, os.WriteFile(path, tt.content, 0600))

			records, torn, err := readJournal(path)
			if tt.corrupts {
				assert.ErrorIs(t, err, domain.ErrCorruptJournal)
				assert.Nil(t, records)
				return
			}
			require.NoError(t, err)
			assert.Len(t, records, tt.records)
			assert.Equal(t, tt.torn, len(torn) > 0)
		})
	}
}

func TestParseDurability(t *testing.T) {
	tests := []struct {
		in      string
		want    DurabilityLevel
		wantErr bool
	}{
		{in: "", want: DurabilityOS},
		{in: "os", want: DurabilityOS},
		{in: "FULL", want: DurabilityFull},
		{in: "fsync", want: DurabilityFull},
		{in: "paranoid", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDurability(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidArgument)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, mustParseDurability(t, got.String()))
		})
	}
}

func mustParseDurability(t *testing.T, s string) DurabilityLevel {
	t.Helper()
	level, err := ParseDurability(s)
	require.NoError(t, err)
	return level
}
