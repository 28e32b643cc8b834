package dbtest

import (
	"context"
	"reflect"
	"sync"

	"github.com/davexpro/hybrid-backup/internal/db"
)

// MemoryDestination is an in-memory stand-in for db.Destination keyed by
// table and natural key. Upserting an existing key replaces the stored row.
type MemoryDestination struct {
	mu     sync.Mutex
	rows   map[string]any
	Writes []string         // table/key of every attempted upsert, in order
	Fail   map[string]error // natural key -> error to return
}

func NewMemoryDestination() *MemoryDestination {
	return &MemoryDestination{rows: map[string]any{}, Fail: map[string]error{}}
}

func (m *MemoryDestination) Upsert(ctx context.Context, row db.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := row.TableName() + "/" + row.NaturalKey()
	m.Writes = append(m.Writes, id)
	if err, ok := m.Fail[row.NaturalKey()]; ok {
		return err
	}
	m.rows[id] = reflect.Indirect(reflect.ValueOf(row)).Interface()
	return nil
}

// Rows returns a copy of the stored rows of one table, keyed by natural key.
func (m *MemoryDestination) Rows(table string) map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := map[string]any{}
	prefix := table + "/"
	for id, row := range m.rows {
		if len(id) > len(prefix) && id[:len(prefix)] == prefix {
			out[id[len(prefix):]] = row
		}
	}
	return out
}
