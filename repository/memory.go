package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/martin8756/termelesinaplo/repository/models"
)

// MemoryStore is an in-process RecordStore. It backs tests and local runs
// without PostgreSQL.
type MemoryStore struct {
	mu      sync.RWMutex
	records []models.Record
	nextID  int64
	opts    Options
	now     func() time.Time
}

var _ RecordStore = (*MemoryStore)(nil)

func NewMemoryStore(opts Options) *MemoryStore {
	return &MemoryStore{
		nextID: 1,
		opts:   opts,
		now:    time.Now,
	}
}

// SetClock replaces the creation timestamp source
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Len returns the number of stored records
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func (m *MemoryStore) Insert(_ context.Context, record *models.Record) (int64, *RepositoryError) {
	if repoErr := validateRecord(record); repoErr != nil {
		return 0, repoErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	record.ID = m.nextID
	record.CreatedAt = m.now()
	m.nextID++
	m.records = append(m.records, cloneRecord(*record))
	return record.ID, nil
}

func (m *MemoryStore) ListRecent(_ context.Context, limit int) ([]models.Record, *RepositoryError) {
	m.mu.RLock()
	rows := make([]models.Record, 0, len(m.records))
	for _, rec := range m.records {
		rows = append(rows, cloneRecord(rec))
	}
	m.mu.RUnlock()

	sort.SliceStable(rows, func(i, j int) bool {
		return newerThan(rows[i], rows[j])
	})
	if n := clampLimit(limit); len(rows) > n {
		rows = rows[:n]
	}
	return rows, nil
}

func (m *MemoryStore) QueryFiltered(_ context.Context, filter Filter) ([]models.Record, *RepositoryError) {
	preds := filter.Predicates()
	// Compile only to reject what the SQL path would reject.
	if _, err := CompilePredicates(preds, m.opts.CaseInsensitive); err != nil {
		return nil, &RepositoryError{Code: ErrCodeValidation, Message: "Invalid filter", Detail: err.Error()}
	}

	m.mu.RLock()
	rows := make([]models.Record, 0)
	for i := range m.records {
		if matchAll(preds, &m.records[i], m.opts.CaseInsensitive) {
			rows = append(rows, cloneRecord(m.records[i]))
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Date != rows[j].Date {
			return rows[i].Date > rows[j].Date
		}
		return newerThan(rows[i], rows[j])
	})
	if len(rows) > MaxRows {
		rows = rows[:MaxRows]
	}
	return rows, nil
}

func (m *MemoryStore) DeleteByID(_ context.Context, id int64) *RepositoryError {
	if id <= 0 {
		return invalidIDError(id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.records {
		if m.records[i].ID == id {
			m.records = append(m.records[:i], m.records[i+1:]...)
			return nil
		}
	}
	return &RepositoryError{
		Code:    ErrCodeNotFound,
		Message: "Record does not exist",
		Detail:  fmt.Sprintf("Record with id %d does not exist", id),
	}
}

func matchAll(preds []Predicate, rec *models.Record, caseInsensitive bool) bool {
	for _, p := range preds {
		if !p.Match(rec, caseInsensitive) {
			return false
		}
	}
	return true
}

// newerThan orders by created_at desc with id desc as tie-break
func newerThan(a, b models.Record) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

func cloneRecord(rec models.Record) models.Record {
	if rec.Note != nil {
		note := *rec.Note
		rec.Note = &note
	}
	return rec
}
