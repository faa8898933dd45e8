package store

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adfharrison1/go-docstore/pkg/collection"
	"github.com/adfharrison1/go-docstore/pkg/domain"
)

var quiet = log.New(io.Discard, "", 0)

func newStore(t *testing.T, path string, options ...Option) *Store {
	t.Helper()
	s := New(Config{Name: "test", Filename: path}, append([]Option{WithLogger(quiet)}, options...)...)
	t.Cleanup(func() { s.Close() })
	return s
}

func addCollection(t *testing.T, s *Store, name string, docs ...domain.Document) *collection.Collection {
	t.Helper()
	c := collection.New(collection.Config{Name: name}, collection.WithDocuments(docs))
	_, err := s.AddCollection(c)
	require.NoError(t, err)
	return c
}

func insertDresses(t *testing.T, c *collection.Collection) []domain.Document {
	t.Helper()
	var out []domain.Document
	for _, doc := range []domain.Document{
		{"dress": "noir", "size": float64(27)},
		{"dress": "amour", "size": float64(27)},
		{"dress": "work", "size": float64(32), "tags": []interface{}{"cord", "office"}},
	} {
		inserted, err := c.Insert(doc)
		require.NoError(t, err)
		out = append(out, inserted)
	}
	return out
}

func byID(docs []domain.Document) map[string]domain.Document {
	out := make(map[string]domain.Document, len(docs))
	for _, doc := range docs {
		out[doc.ID()] = doc
	}
	return out
}

func idsOf(docs []domain.Document) []string {
	out := make([]string, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.ID())
	}
	return out
}

// modelOnly satisfies domain.Model without the replay surface
type modelOnly struct{ name string }

func (m modelOnly) Name() string                     { return m.name }
func (m modelOnly) On(domain.Event, domain.Listener) {}

func TestStore_AddCollection(t *testing.T) {
	s := New(Config{Name: "mem"}, WithLogger(quiet))

	got, err := s.AddCollection(collection.New(collection.Config{Name: "inge"}))
	require.NoError(t, err)
	assert.Same(t, s, got)
	assert.Equal(t, []string{"inge"}, s.Collections())

	t.Run("type mismatch", func(t *testing.T) {
		got, err := s.AddCollection(modelOnly{name: "plain"})
		assert.ErrorIs(t, err, domain.ErrTypeMismatch)
		assert.Same(t, s, got)

		_, err = s.AddCollection(nil)
		assert.ErrorIs(t, err, domain.ErrTypeMismatch)
	})

	t.Run("capability", func(t *testing.T) {
		picky := New(Config{Name: "picky"}, WithLogger(quiet), WithCapability(func(m domain.Model) bool {
			return m.Name() != "rejected"
		}))
		_, err := picky.AddCollection(collection.New(collection.Config{Name: "rejected"}))
		assert.ErrorIs(t, err, domain.ErrTypeMismatch)
		_, err = picky.AddCollection(collection.New(collection.Config{Name: "accepted"}))
		assert.NoError(t, err)
	})

	t.Run("empty name", func(t *testing.T) {
		_, err := s.AddCollection(collection.New(collection.Config{}))
		assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	})

	t.Run("replaces by name", func(t *testing.T) {
		replacement := collection.New(collection.Config{Name: "inge"})
		_, err := s.AddCollection(replacement)
		require.NoError(t, err)
		m, err := s.GetModel("inge")
		require.NoError(t, err)
		assert.Same(t, replacement, m)
	})
}

func TestStore_GetModel(t *testing.T) {
	s := New(Config{}, WithLogger(quiet))
	assert.Equal(t, DefaultName, s.Name())
	c := addCollection(t, s, "inge")

	m, err := s.GetModel("inge")
	require.NoError(t, err)
	assert.Same(t, c, m)

	m, err = s.GetModel("missing")
	require.NoError(t, err)
	assert.Nil(t, m)

	_, err = s.GetModel("")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestStore_Unpersisted(t *testing.T) {
	s := New(Config{Name: "mem"}, WithLogger(quiet))
	assert.False(t, s.Persisted())
	assert.Empty(t, s.JournalPath())

	c := addCollection(t, s, "inge")
	insertDresses(t, c)
	assert.Equal(t, 3, c.Len())

	for name, op := range map[string]func() error{"commit": s.Commit, "save": s.Save, "load": s.Load} {
		err := op()
		assert.ErrorIs(t, err, domain.ErrIO, name)
		assert.ErrorIs(t, err, ErrNotPersisted, name)
	}
	assert.Zero(t, s.Stats().WriteFailures)
}

func TestStore_JournalOpenFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing-dir", "db.json")
	s := newStore(t, path)
	assert.False(t, s.Persisted())

	c := addCollection(t, s, "inge")
	insertDresses(t, c)
	assert.Equal(t, 3, c.Len())
	assert.Equal(t, int64(3), s.Stats().WriteFailures)
}

func TestStore_JournalsEveryDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	s := newStore(t, path)
	require.True(t, s.Persisted())
	c := addCollection(t, s, "inge")

	docs := insertDresses(t, c)
	_, err := c.Update(domain.Query{"size": 27}, domain.Document{"color": "red"})
	require.NoError(t, err)
	_, err = c.DeleteById(docs[2].ID())
	require.NoError(t, err)

	records, torn, err := readJournal(s.JournalPath())
	require.NoError(t, err)
	assert.Empty(t, torn)

	var ops []domain.Event
	for _, rec := range records {
		assert.Equal(t, "inge", rec.Collection)
		ops = append(ops, rec.Op)
	}
	assert.Equal(t, []domain.Event{
		domain.EventInsert, domain.EventInsert, domain.EventInsert,
		domain.EventUpdate, domain.EventUpdate,
		domain.EventDelete,
	}, ops)
	assert.Equal(t, "red", records[3].Data["color"])
	assert.Equal(t, docs[2].ID(), records[5].Data.ID())
	assert.Equal(t, int64(6), s.Stats().RecordsWritten)
}

func TestStore_DetachedCollectionNotJournaled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	s := newStore(t, path)
	old := addCollection(t, s, "inge")
	addCollection(t, s, "inge")

	_, err := old.Insert(domain.Document{"dress": "noir"})
	require.NoError(t, err)
	assert.Zero(t, s.Stats().RecordsWritten)
}

func TestStore_CommitReplaysJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")

	writer := newStore(t, path)
	c := addCollection(t, writer, "inge")
	docs := insertDresses(t, c)
	_, err := c.Update(domain.Query{"dress": "noir"}, domain.Document{"size": float64(28)})
	require.NoError(t, err)
	_, err = c.Delete(domain.Query{"dress": "amour"})
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	reader := newStore(t, path)
	replayed := addCollection(t, reader, "inge")
	require.NoError(t, reader.Commit())

	all := replayed.FindAll()
	assert.Equal(t, []string{docs[0].ID(), docs[2].ID()}, idsOf(all))
	assert.Equal(t, float64(28), all[0]["size"])

	// the journal is truncated and a fresh stream accepts new mutations
	info, err := os.Stat(reader.JournalPath())
	require.NoError(t, err)
	assert.Zero(t, info.Size())
	assert.True(t, reader.Persisted())

	stats := reader.Stats()
	assert.Equal(t, int64(1), stats.Commits)
	assert.Equal(t, int64(5), stats.RecordsReplayed)
}

func TestStore_CommitWithoutJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	s := newStore(t, path)
	require.NoError(t, os.Remove(s.JournalPath()))

	assert.NoError(t, s.Commit())
	assert.True(t, s.Persisted())
}

func TestStore_CommitIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	s := newStore(t, path)
	c := addCollection(t, s, "inge")
	docs := insertDresses(t, c)

	// the live collection already holds every journaled insert
	require.NoError(t, s.Commit())
	assert.Equal(t, idsOf(docs), idsOf(c.FindAll()))

	// and a journal replaying the same insert twice yields one document
	j, err := OpenJournal(s.JournalPath(), DurabilityOS)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err := j.Append(Record{Collection: "inge", Op: domain.EventInsert, Data: domain.Document{"_id": "dup", "dress": "twin"}})
		require.NoError(t, err)
	}
	require.NoError(t, j.Close())

	require.NoError(t, s.Commit())
	found, err := c.Find(domain.Query{"_id": "dup"})
	require.NoError(t, err)
	assert.Len(t, found, 1)
	assert.Equal(t, 4, c.Len())
}

func TestStore_ReplayedUpdateMutatesStoredDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	s := newStore(t, path)
	stored := domain.Document{"_id": "a", "dress": "noir", "size": float64(27)}
	addCollection(t, s, "inge", stored)

	j, err := OpenJournal(s.JournalPath(), DurabilityOS)
	require.NoError(t, err)
	_, err = j.Append(Record{Collection: "inge", Op: domain.EventUpdate, Data: domain.Document{"_id": "a", "size": float64(30)}})
	require.NoError(t, err)
	require.NoError(t, j.Close())

	require.NoError(t, s.Commit())
	assert.Equal(t, float64(30), stored["size"])
	assert.Equal(t, "noir", stored["dress"])
}

func TestStore_CorruptJournalAppliesNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	s := newStore(t, path)
	c := addCollection(t, s, "inge")

	var content []byte
	content = append(content, rawRecord(t, 0, "inge", domain.EventInsert, domain.Document{"_id": "a"})...)
	content = append(content, rawRecord(t, 1, "inge", "upsert", domain.Document{"_id": "b"})...)
	require.NoError(t, s.Close())
	require.NoError(t, os.WriteFile(s.JournalPath(), content, 0600))

	s = newStore(t, path)
	_, err := s.AddCollection(c)
	require.NoError(t, err)

	err = s.Commit()
	assert.ErrorIs(t, err, domain.ErrCorruptJournal)
	assert.Zero(t, c.Len())

	kept, err := os.ReadFile(s.JournalPath())
	require.NoError(t, err)
	assert.Equal(t, content, kept)
	assert.True(t, s.Persisted())
	assert.Zero(t, s.Stats().Commits)
}

func TestStore_CommitSkipsUnknownCollection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	s := newStore(t, path)
	c := addCollection(t, s, "inge")

	j, err := OpenJournal(s.JournalPath(), DurabilityOS)
	require.NoError(t, err)
	_, err = j.Append(Record{Collection: "ghost", Op: domain.EventInsert, Data: domain.Document{"_id": "g"}})
	require.NoError(t, err)
	_, err = j.Append(Record{Collection: "inge", Op: domain.EventInsert, Data: domain.Document{"_id": "a"}})
	require.NoError(t, err)
	require.NoError(t, j.Close())

	require.NoError(t, s.Commit())
	assert.Equal(t, []string{"a"}, idsOf(c.FindAll()))
	assert.Equal(t, int64(1), s.Stats().RecordsSkipped)
}

func TestStore_CommitDropsTornTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	s := newStore(t, path)
	c := addCollection(t, s, "inge")
	require.NoError(t, s.Close())

	content := rawRecord(t, 0, "inge", domain.EventInsert, domain.Document{"_id": "a"})
	content = append(content, `{"lsn":1,"collection":"in`...)
	require.NoError(t, os.WriteFile(s.JournalPath(), content, 0600))

	s = newStore(t, path)
	_, err := s.AddCollection(c)
	require.NoError(t, err)

	// written after the torn record, before anything commits
	noir, err := c.Insert(domain.Document{"dress": "noir"})
	require.NoError(t, err)

	require.NoError(t, s.Commit())
	assert.ElementsMatch(t, []string{"a", noir.ID()}, idsOf(c.FindAll()))
	assert.Equal(t, int64(2), s.Stats().RecordsReplayed)
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	for _, format := range []SnapshotFormat{FormatJSON, FormatBinary} {
		t.Run(format.String(), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "db.json")

			s := newStore(t, path, WithSnapshotFormat(format))
			c := addCollection(t, s, "inge")
			insertDresses(t, c)
			_, err := c.Insert(domain.Document{"nested": map[string]interface{}{"deep": []interface{}{true, nil, "x"}}})
			require.NoError(t, err)
			addCollection(t, s, "empty")
			require.NoError(t, s.Save())
			assert.Equal(t, int64(1), s.Stats().Saves)

			fresh := newStore(t, path)
			require.NoError(t, fresh.Load())
			assert.Equal(t, []string{"empty", "inge"}, fresh.Collections())

			m, err := fresh.GetModel("inge")
			require.NoError(t, err)
			require.NotNil(t, m)
			assert.Equal(t, idsOf(c.FindAll()), idsOf(m.FindAll()))
			if diff := cmp.Diff(byID(c.FindAll()), byID(m.FindAll())); diff != "" {
				t.Errorf("loaded documents mismatch (-saved +loaded):\n%s", diff)
			}

			empty, err := fresh.GetModel("empty")
			require.NoError(t, err)
			require.NotNil(t, empty)
			assert.Zero(t, empty.Len())
		})
	}
}

func TestStore_LoadReplacesExistingCollection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"inge":[{"_id":"a","dress":"noir"},{"_id":"a","dress":"twin"}]}`), 0644))

	s := newStore(t, path)
	c := addCollection(t, s, "inge", domain.Document{"_id": "old"})
	require.NoError(t, s.Load())

	// loaded documents are taken as stored, duplicates included
	assert.Equal(t, []string{"a", "a"}, idsOf(c.FindAll()))
	m, err := s.GetModel("inge")
	require.NoError(t, err)
	assert.Same(t, c, m)
}

func TestStore_LoadedCollectionIsJournaled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"inge":[]}`), 0644))

	var built []string
	s := newStore(t, path, WithCollectionFactory(func(name string, docs []domain.Document) domain.Persistable {
		built = append(built, name)
		return collection.New(collection.Config{Name: name}, collection.WithDocuments(docs))
	}))
	require.NoError(t, s.Load())
	assert.Equal(t, []string{"inge"}, built)

	m, err := s.GetModel("inge")
	require.NoError(t, err)
	_, err = m.Insert(domain.Document{"dress": "noir"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), s.Stats().RecordsWritten)
}

func TestStore_LoadFailures(t *testing.T) {
	dir := t.TempDir()

	missing := newStore(t, filepath.Join(dir, "missing.json"))
	err := missing.Load()
	assert.ErrorIs(t, err, domain.ErrIO)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	var ioErr *domain.IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, filepath.Join(dir, "missing.json"), ioErr.Path)

	garbled := filepath.Join(dir, "garbled.json")
	require.NoError(t, os.WriteFile(garbled, []byte(`{"inge": [`), 0644))
	assert.ErrorIs(t, newStore(t, garbled).Load(), domain.ErrIO)
}

func TestStore_LoadNullDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"inge": [null, {"_id": "a", "x": 1}]}`), 0644))

	s := newStore(t, path)
	require.NoError(t, s.Load())
	m, err := s.GetModel("inge")
	require.NoError(t, err)

	updated, err := m.Update(domain.Query{}, domain.Document{"y": float64(2)})
	require.NoError(t, err)
	require.Len(t, updated, 1)
	assert.Equal(t, "a", updated[0].ID())

	found, err := m.Find(domain.Query{"y": 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, idsOf(found))
	assert.Equal(t, 2, m.Len())

	require.NoError(t, s.Commit())
	assert.Equal(t, float64(2), byID(m.FindAll())["a"]["y"])
}

func TestStore_SaveFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot")
	require.NoError(t, os.Mkdir(path, 0755))

	s := newStore(t, path)
	addCollection(t, s, "inge")
	assert.ErrorIs(t, s.Save(), domain.ErrIO)
}

func TestStore_CheckpointKeepsJournalWhenSaveFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot")
	require.NoError(t, os.Mkdir(path, 0755))

	s := newStore(t, path)
	c := addCollection(t, s, "inge")
	insertDresses(t, c)

	assert.ErrorIs(t, s.Checkpoint(), domain.ErrIO)
	assert.True(t, s.Stats().LastCheckpoint.IsZero())

	records, _, err := readJournal(s.JournalPath())
	require.NoError(t, err)
	assert.Len(t, records, 3)

	// the journal stays open for new records
	_, err = c.Insert(domain.Document{"dress": "gala"})
	require.NoError(t, err)
	records, _, err = readJournal(s.JournalPath())
	require.NoError(t, err)
	assert.Len(t, records, 4)
}

func TestStore_CheckpointWithoutJournalSaves(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	s := newStore(t, path)
	addCollection(t, s, "inge", domain.Document{"_id": "a"})
	require.NoError(t, os.Remove(s.JournalPath()))
	require.NoError(t, s.Checkpoint())
	assert.FileExists(t, path)
	assert.Equal(t, int64(1), s.Stats().Saves)
}

func TestStore_CheckpointUnderConcurrentWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	s := newStore(t, path)
	c := addCollection(t, s, "inge")
	require.NoError(t, s.Checkpoint())

	const writers, perWriter = 4, 25
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_, err := c.Insert(domain.Document{"writer": float64(w), "seq": float64(i)})
				assert.NoError(t, err)
			}
		}(w)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for running := true; running; {
		select {
		case <-done:
			running = false
		default:
			require.NoError(t, s.Checkpoint())
		}
	}
	require.NoError(t, s.Close())

	// snapshot plus leftover journal hold every insert
	recovered := newStore(t, path)
	require.NoError(t, recovered.Load())
	require.NoError(t, recovered.Commit())
	m, err := recovered.GetModel("inge")
	require.NoError(t, err)
	assert.Equal(t, writers*perWriter, m.Len())
}

func TestStore_BackgroundCheckpoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	s := newStore(t, path, WithCheckpointInterval(10*time.Millisecond))
	c := addCollection(t, s, "inge")
	insertDresses(t, c)

	s.StartBackgroundWorkers()
	s.StartBackgroundWorkers()
	require.Eventually(t, func() bool {
		return !s.Stats().LastCheckpoint.IsZero()
	}, 2*time.Second, 5*time.Millisecond)
	s.StopBackgroundWorkers()
	s.StopBackgroundWorkers()

	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestStore_DressExample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	s := newStore(t, path)
	c := addCollection(t, s, "inge")
	docs := insertDresses(t, c)

	found, err := c.Find(domain.Query{"size": 27})
	require.NoError(t, err)
	assert.Equal(t, idsOf(docs[:2]), idsOf(found))

	found, err = c.Find(domain.Query{"$or": []interface{}{
		map[string]interface{}{"size": map[string]interface{}{"$eq": 27}},
		map[string]interface{}{"size": map[string]interface{}{"$eq": 32}},
	}})
	require.NoError(t, err)
	assert.Equal(t, idsOf(docs), idsOf(found))

	deleted, err := c.Delete(domain.Query{"size": 27})
	require.NoError(t, err)
	assert.Equal(t, idsOf(docs[:2]), idsOf(deleted))
	assert.Equal(t, idsOf(docs[2:]), idsOf(c.FindAll()))

	require.NoError(t, s.Checkpoint())
	fresh := newStore(t, path)
	require.NoError(t, fresh.Load())
	m, err := fresh.GetModel("inge")
	require.NoError(t, err)
	assert.Equal(t, idsOf(docs[2:]), idsOf(m.FindAll()))
	assert.Equal(t, fmt.Sprint(docs[2]["tags"]), fmt.Sprint(m.FindAll()[0]["tags"]))
}
