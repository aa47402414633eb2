// Package memory provides an in-process transactional Store used by tests
// and by local runs without MongoDB. Transactions are serialised and roll
// back by restoring a snapshot taken when they begin.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mamadbah2/milkchain/internal/domain/models"
	"github.com/mamadbah2/milkchain/internal/repository"
)

type txKey struct{}

type state struct {
	milkings    map[int64]models.MilkingRecord
	batches     map[string]models.MilkBatch
	payments    map[string]models.MilkPayment
	productions map[string]models.ProductionRun
	farms       map[string]models.Farm
	reports     []models.CollectionReport
	counters    map[string]int
}

func newState() *state {
	return &state{
		milkings:    make(map[int64]models.MilkingRecord),
		batches:     make(map[string]models.MilkBatch),
		payments:    make(map[string]models.MilkPayment),
		productions: make(map[string]models.ProductionRun),
		farms:       make(map[string]models.Farm),
		counters:    make(map[string]int),
	}
}

// snapshot copies the maps. Stored values are never mutated in place, so a
// shallow copy of each map is enough to restore on rollback.
func (s *state) snapshot() *state {
	c := newState()
	for k, v := range s.milkings {
		c.milkings[k] = v
	}
	for k, v := range s.batches {
		c.batches[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	for k, v := range s.productions {
		c.productions[k] = v
	}
	for k, v := range s.farms {
		c.farms[k] = v
	}
	for k, v := range s.counters {
		c.counters[k] = v
	}
	c.reports = append([]models.CollectionReport(nil), s.reports...)
	return c
}

// Store is an in-memory implementation of repository.Store.
type Store struct {
	txMu  sync.Mutex
	mu    sync.RWMutex
	state *state
	now   func() time.Time
}

var _ repository.Store = (*Store)(nil)

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{state: newState(), now: time.Now}
}

// RunInTransaction serialises fn against every other write and rolls back
// all of its writes when it returns an error. Nested calls join the outer
// transaction.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	saved := s.state.snapshot()
	s.mu.RUnlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.mu.Lock()
		s.state = saved
		s.mu.Unlock()
		return err
	}
	return nil
}

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{}).(bool)
	return v
}

func (s *Store) write(ctx context.Context, fn func(st *state) error) error {
	if err := ctx.Err(); err != nil {
		return models.Storage("context", err)
	}
	if !inTx(ctx) {
		s.txMu.Lock()
		defer s.txMu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.state)
}

// read waits for any open transaction outside its own so callers never see
// writes that may still be rolled back.
func (s *Store) read(ctx context.Context, fn func(st *state) error) error {
	if err := ctx.Err(); err != nil {
		return models.Storage("context", err)
	}
	if !inTx(ctx) {
		s.txMu.Lock()
		defer s.txMu.Unlock()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.state)
}

// AddMilking seeds a raw milking record.
func (s *Store) AddMilking(rec models.MilkingRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.milkings[rec.ID] = rec
}

// Milking returns a seeded milking record.
func (s *Store) Milking(id int64) (models.MilkingRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.state.milkings[id]
	return rec, ok
}

// AddFarm seeds a farm.
func (s *Store) AddFarm(farm models.Farm) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.farms[farm.ID] = farm
}

// Reports returns the stored collection reports.
func (s *Store) Reports() []models.CollectionReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.CollectionReport(nil), s.state.reports...)
}

// NextSequence reserves the next code sequence for prefix on day.
func (s *Store) NextSequence(ctx context.Context, prefix string, day time.Time) (int, error) {
	scope := fmt.Sprintf("%s-%s", prefix, repository.DayKey(day))
	var next int
	err := s.write(ctx, func(st *state) error {
		current, ok := st.counters[scope]
		if !ok {
			current = highestSequence(st, prefix, scope+"-")
		}
		next = current + 1
		st.counters[scope] = next
		return nil
	})
	return next, err
}

func highestSequence(st *state, prefix, codePrefix string) int {
	var codes []string
	switch prefix {
	case models.BatchCodePrefix:
		for _, b := range st.batches {
			codes = append(codes, b.BatchCode)
		}
	case models.ProductionCodePrefix:
		for _, p := range st.productions {
			codes = append(codes, p.ProductionCode)
		}
	}

	highest := 0
	for _, code := range codes {
		if !strings.HasPrefix(code, codePrefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(code, codePrefix))
		if err == nil && n > highest {
			highest = n
		}
	}
	return highest
}

// ClaimMilkings checks and claims every id in a single critical section.
func (s *Store) ClaimMilkings(ctx context.Context, farmID, batchID string, ids []int64) error {
	return s.write(ctx, func(st *state) error {
		var missing, taken []int64
		for _, id := range ids {
			rec, ok := st.milkings[id]
			if !ok || rec.FarmID != farmID {
				missing = append(missing, id)
				continue
			}
			if rec.BatchID != nil {
				taken = append(taken, id)
			}
		}
		if len(missing) > 0 {
			return fmt.Errorf("milking records %v: %w", missing, models.ErrNotFound)
		}
		if len(taken) > 0 {
			return fmt.Errorf("milking records %v: %w", taken, models.ErrMilkingAlreadyBatched)
		}

		for _, id := range ids {
			rec := st.milkings[id]
			owner := batchID
			rec.BatchID = &owner
			st.milkings[id] = rec
		}
		return nil
	})
}

// InsertBatch stores a new batch.
func (s *Store) InsertBatch(ctx context.Context, batch *models.MilkBatch) error {
	return s.write(ctx, func(st *state) error {
		if batch.ID == "" {
			batch.ID = uuid.NewString()
		}
		if _, exists := st.batches[batch.ID]; exists {
			return models.Storage("insert batch", fmt.Errorf("duplicate id %s", batch.ID))
		}
		for _, b := range st.batches {
			if b.BatchCode == batch.BatchCode {
				return models.Storage("insert batch", fmt.Errorf("duplicate batch code %s", batch.BatchCode))
			}
		}
		now := s.now()
		batch.Version = 1
		batch.CreatedAt = now
		batch.UpdatedAt = now
		st.batches[batch.ID] = cloneBatch(*batch)
		return nil
	})
}

// GetBatch loads a batch by id.
func (s *Store) GetBatch(ctx context.Context, id string) (*models.MilkBatch, error) {
	var out models.MilkBatch
	err := s.read(ctx, func(st *state) error {
		b, ok := st.batches[id]
		if !ok {
			return fmt.Errorf("batch %s: %w", id, models.ErrNotFound)
		}
		out = cloneBatch(b)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateBatch writes a batch if its version is current.
func (s *Store) UpdateBatch(ctx context.Context, batch *models.MilkBatch) error {
	return s.write(ctx, func(st *state) error {
		stored, ok := st.batches[batch.ID]
		if !ok {
			return fmt.Errorf("batch %s: %w", batch.ID, models.ErrNotFound)
		}
		if stored.Version != batch.Version {
			return fmt.Errorf("batch %s: %w", batch.ID, models.ErrConcurrentModification)
		}
		batch.Version++
		batch.UpdatedAt = s.now()
		st.batches[batch.ID] = cloneBatch(*batch)
		return nil
	})
}

// FindBatches returns batches matching filter ordered by collection date and code.
func (s *Store) FindBatches(ctx context.Context, filter repository.BatchFilter) ([]models.MilkBatch, error) {
	var out []models.MilkBatch
	err := s.read(ctx, func(st *state) error {
		for _, b := range st.batches {
			if matchesBatch(b, filter) {
				out = append(out, cloneBatch(b))
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CollectionDate.Equal(out[j].CollectionDate) {
			return out[i].CollectionDate.Before(out[j].CollectionDate)
		}
		return out[i].BatchCode < out[j].BatchCode
	})
	return out, err
}

func matchesBatch(b models.MilkBatch, f repository.BatchFilter) bool {
	if f.FarmID != "" && b.FarmID != f.FarmID {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, b.Status) {
		return false
	}
	if !f.CollectedFrom.IsZero() && b.CollectionDate.Before(f.CollectedFrom) {
		return false
	}
	if !f.CollectedTo.IsZero() && b.CollectionDate.After(f.CollectedTo) {
		return false
	}
	if len(f.IDs) > 0 {
		found := false
		for _, id := range f.IDs {
			if id == b.ID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func containsStatus(list []models.BatchStatus, s models.BatchStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// InsertPayment stores a new payment.
func (s *Store) InsertPayment(ctx context.Context, payment *models.MilkPayment) error {
	return s.write(ctx, func(st *state) error {
		if payment.ID == "" {
			payment.ID = uuid.NewString()
		}
		now := s.now()
		payment.Version = 1
		payment.CreatedAt = now
		payment.UpdatedAt = now
		st.payments[payment.ID] = clonePayment(*payment)
		return nil
	})
}

// GetPayment loads a payment by id.
func (s *Store) GetPayment(ctx context.Context, id string) (*models.MilkPayment, error) {
	var out models.MilkPayment
	err := s.read(ctx, func(st *state) error {
		p, ok := st.payments[id]
		if !ok {
			return fmt.Errorf("payment %s: %w", id, models.ErrNotFound)
		}
		out = clonePayment(p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdatePayment writes a payment if its version is current.
func (s *Store) UpdatePayment(ctx context.Context, payment *models.MilkPayment) error {
	return s.write(ctx, func(st *state) error {
		stored, ok := st.payments[payment.ID]
		if !ok {
			return fmt.Errorf("payment %s: %w", payment.ID, models.ErrNotFound)
		}
		if stored.Version != payment.Version {
			return fmt.Errorf("payment %s: %w", payment.ID, models.ErrConcurrentModification)
		}
		payment.Version++
		payment.UpdatedAt = s.now()
		st.payments[payment.ID] = clonePayment(*payment)
		return nil
	})
}

// ListPayments returns a farm's payments, newest period first.
func (s *Store) ListPayments(ctx context.Context, farmID string) ([]models.MilkPayment, error) {
	var out []models.MilkPayment
	err := s.read(ctx, func(st *state) error {
		for _, p := range st.payments {
			if p.FarmID == farmID {
				out = append(out, clonePayment(p))
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		return out[i].PaymentPeriodStart.After(out[j].PaymentPeriodStart)
	})
	return out, err
}

// PaymentExists reports whether a payment already covers the exact period.
func (s *Store) PaymentExists(ctx context.Context, farmID string, start, end time.Time) (bool, error) {
	var exists bool
	err := s.read(ctx, func(st *state) error {
		for _, p := range st.payments {
			if p.FarmID == farmID && p.PaymentPeriodStart.Equal(start) && p.PaymentPeriodEnd.Equal(end) {
				exists = true
				return nil
			}
		}
		return nil
	})
	return exists, err
}

// InsertProduction stores a production run.
func (s *Store) InsertProduction(ctx context.Context, run *models.ProductionRun) error {
	return s.write(ctx, func(st *state) error {
		if run.ID == "" {
			run.ID = uuid.NewString()
		}
		c := *run
		c.BatchIDs = append([]string(nil), run.BatchIDs...)
		st.productions[run.ID] = c
		return nil
	})
}

// GetFarm loads a farm by id.
func (s *Store) GetFarm(ctx context.Context, id string) (*models.Farm, error) {
	var out models.Farm
	err := s.read(ctx, func(st *state) error {
		f, ok := st.farms[id]
		if !ok {
			return fmt.Errorf("farm %s: %w", id, models.ErrNotFound)
		}
		out = f
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListActiveFarms returns active farms ordered by id.
func (s *Store) ListActiveFarms(ctx context.Context) ([]models.Farm, error) {
	var out []models.Farm
	err := s.read(ctx, func(st *state) error {
		for _, f := range st.farms {
			if f.Active {
				out = append(out, f)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

// SaveCollectionReport appends a collection report.
func (s *Store) SaveCollectionReport(ctx context.Context, report models.CollectionReport) error {
	return s.write(ctx, func(st *state) error {
		st.reports = append(st.reports, report)
		return nil
	})
}

func cloneBatch(b models.MilkBatch) models.MilkBatch {
	b.SourceMilkingIDs = append([]int64(nil), b.SourceMilkingIDs...)
	b.TransportHistory = append([]models.TransportEvent(nil), b.TransportHistory...)
	b.TransportPhotos = append([]string(nil), b.TransportPhotos...)
	if b.QualityData != nil {
		q := *b.QualityData
		b.QualityData = &q
	}
	return b
}

func clonePayment(p models.MilkPayment) models.MilkPayment {
	p.Deductions = append([]models.Deduction(nil), p.Deductions...)
	if p.GradeBreakdown != nil {
		gb := make(map[models.Grade]models.GradeLine, len(p.GradeBreakdown))
		for k, v := range p.GradeBreakdown {
			gb[k] = v
		}
		p.GradeBreakdown = gb
	}
	return p
}
