// Package leveldb implements the generation store on an embedded LevelDB
// database via github.com/syndtr/goleveldb. It trades SQL queryability for a
// single directory on disk and append-friendly writes, which suits hosts
// where even an embedded SQL engine is unwanted.
package leveldb

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	airlock "github.com/reodash/airlock/internal"
)

// Key layout:
//
//	g:<name>            -> gob(genRecord)
//	e:<name>\x00<key>   -> gob(entryRecord)
//
// The NUL separator keeps generation names that share a prefix (airlock-1,
// airlock-10) from matching each other's entry scans.
const (
	genPrefix   = "g:"
	entryPrefix = "e:"
	keySep      = "\x00"
)

// Store implements storage.GenerationStore on a LevelDB directory.
type Store struct {
	db *leveldb.DB

	// guards read-modify-write of generation metadata
	mu sync.Mutex
}

// New opens (or creates) the LevelDB directory at path.
func New(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb: %w", err)
	}
	return &Store{db: db}, nil
}

type genRecord struct {
	Version   string
	Complete  bool
	CreatedAt time.Time
}

type entryRecord struct {
	Status   int
	Header   http.Header
	Body     []byte
	StoredAt time.Time
}

func genKey(name string) []byte {
	return []byte(genPrefix + name)
}

func entryKey(generation, key string) []byte {
	return []byte(entryPrefix + generation + keySep + key)
}

func entryScanPrefix(generation string) []byte {
	return []byte(entryPrefix + generation + keySep)
}

func encodeGob(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeGob(data []byte, v any) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

// EnsureGeneration creates the generation record if it does not exist.
func (s *Store) EnsureGeneration(ctx context.Context, name, version string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ok, err := s.db.Has(genKey(name), nil)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	data, err := encodeGob(genRecord{Version: version, CreatedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	return s.db.Put(genKey(name), data, nil)
}

// CompleteGeneration marks a generation as fully populated.
func (s *Store) CompleteGeneration(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.getGenRecord(name)
	if err != nil {
		return err
	}
	rec.Complete = true
	data, err := encodeGob(*rec)
	if err != nil {
		return err
	}
	return s.db.Put(genKey(name), data, nil)
}

// GetGeneration retrieves a generation's metadata record.
func (s *Store) GetGeneration(ctx context.Context, name string) (*airlock.Generation, error) {
	rec, err := s.getGenRecord(name)
	if err != nil {
		return nil, err
	}
	return &airlock.Generation{
		Name:      name,
		Version:   rec.Version,
		Complete:  rec.Complete,
		CreatedAt: rec.CreatedAt,
	}, nil
}

func (s *Store) getGenRecord(name string) (*genRecord, error) {
	data, err := s.db.Get(genKey(name), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", name, airlock.ErrGenerationMissing)
	}
	if err != nil {
		return nil, err
	}
	var rec genRecord
	if err := decodeGob(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListGenerations returns all generations, oldest first.
func (s *Store) ListGenerations(ctx context.Context) ([]*airlock.Generation, error) {
	var gens []*airlock.Generation
	iter := s.db.NewIterator(util.BytesPrefix([]byte(genPrefix)), nil)
	defer iter.Release()

	for iter.Next() {
		name := string(iter.Key()[len(genPrefix):])
		var rec genRecord
		if err := decodeGob(iter.Value(), &rec); err != nil {
			return nil, fmt.Errorf("generation %s: %w", name, err)
		}
		gens = append(gens, &airlock.Generation{
			Name:      name,
			Version:   rec.Version,
			Complete:  rec.Complete,
			CreatedAt: rec.CreatedAt,
		})
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}

	sort.Slice(gens, func(i, j int) bool {
		if gens[i].CreatedAt.Equal(gens[j].CreatedAt) {
			return gens[i].Name < gens[j].Name
		}
		return gens[i].CreatedAt.Before(gens[j].CreatedAt)
	})
	return gens, nil
}

// DeleteGenerationsExcept removes every generation other than keep, entries
// included, in a single write batch.
func (s *Store) DeleteGenerationsExcept(ctx context.Context, keep string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	gens, err := s.ListGenerations(ctx)
	if err != nil {
		return 0, err
	}

	batch := new(leveldb.Batch)
	deleted := 0
	for _, g := range gens {
		if g.Name == keep {
			continue
		}
		batch.Delete(genKey(g.Name))
		iter := s.db.NewIterator(util.BytesPrefix(entryScanPrefix(g.Name)), nil)
		for iter.Next() {
			k := make([]byte, len(iter.Key()))
			copy(k, iter.Key())
			batch.Delete(k)
		}
		err := iter.Error()
		iter.Release()
		if err != nil {
			return 0, err
		}
		deleted++
	}
	if deleted == 0 {
		return 0, nil
	}
	return deleted, s.db.Write(batch, nil)
}

// GetEntry retrieves the stored response under key.
func (s *Store) GetEntry(ctx context.Context, generation, key string) (*airlock.StoredResponse, error) {
	data, err := s.db.Get(entryKey(generation, key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, airlock.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec entryRecord
	if err := decodeGob(data, &rec); err != nil {
		return nil, err
	}
	return &airlock.StoredResponse{
		Status:   rec.Status,
		Header:   rec.Header,
		Body:     rec.Body,
		StoredAt: rec.StoredAt,
	}, nil
}

// PutEntry stores or replaces the response under key.
func (s *Store) PutEntry(ctx context.Context, generation, key string, resp *airlock.StoredResponse) error {
	data, err := encodeGob(entryRecord{
		Status:   resp.Status,
		Header:   resp.Header,
		Body:     resp.Body,
		StoredAt: resp.StoredAt,
	})
	if err != nil {
		return err
	}
	return s.db.Put(entryKey(generation, key), data, nil)
}

// PutEntries stores a batch of responses in a single write batch.
func (s *Store) PutEntries(ctx context.Context, generation string, entries map[string]*airlock.StoredResponse) error {
	if len(entries) == 0 {
		return nil
	}
	batch := new(leveldb.Batch)
	for key, resp := range entries {
		data, err := encodeGob(entryRecord{
			Status:   resp.Status,
			Header:   resp.Header,
			Body:     resp.Body,
			StoredAt: resp.StoredAt,
		})
		if err != nil {
			return err
		}
		batch.Put(entryKey(generation, key), data)
	}
	return s.db.Write(batch, nil)
}

// CountEntries returns the number of responses stored in the generation.
func (s *Store) CountEntries(ctx context.Context, generation string) (int, error) {
	n := 0
	iter := s.db.NewIterator(util.BytesPrefix(entryScanPrefix(generation)), nil)
	defer iter.Release()
	for iter.Next() {
		n++
	}
	return n, iter.Error()
}

// Ping verifies the database handle is healthy.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.db.GetProperty("leveldb.aliveiters")
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
