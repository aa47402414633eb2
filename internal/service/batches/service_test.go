package batches

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/milkchain/internal/appctx"
	"github.com/mamadbah2/milkchain/internal/domain/models"
	"github.com/mamadbah2/milkchain/internal/repository/memory"
	"github.com/mamadbah2/milkchain/internal/service/settings"
)

const farmID = "farm-1"

var collectionDay = time.Date(2025, 1, 15, 6, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []models.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n models.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

func (r *recordingNotifier) events() []models.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.EventType, 0, len(r.sent))
	for _, n := range r.sent {
		out = append(out, n.Event)
	}
	return out
}

func (r *recordingNotifier) last() models.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sent[len(r.sent)-1]
}

type fixture struct {
	svc      *Service
	store    *memory.Store
	notifier *recordingNotifier
	ctx      context.Context
}

func newFixture(t *testing.T, provider settings.Provider) *fixture {
	t.Helper()

	store := memory.NewStore()
	for id := int64(1); id <= 6; id++ {
		store.AddMilking(models.MilkingRecord{ID: id, FarmID: farmID, Session: models.SessionMorning, Volume: 10, MilkedAt: collectionDay})
	}
	store.AddMilking(models.MilkingRecord{ID: 99, FarmID: "farm-2", Session: models.SessionMorning, Volume: 10})

	notifier := &recordingNotifier{}
	svc := NewService(store, provider, notifier, nil)
	svc.now = func() time.Time { return collectionDay.Add(2 * time.Hour) }

	return &fixture{
		svc:      svc,
		store:    store,
		notifier: notifier,
		ctx:      appctx.WithActor(context.Background(), "user-7"),
	}
}

func (f *fixture) createBatch(t *testing.T, ids ...int64) *models.MilkBatch {
	t.Helper()
	batch, err := f.svc.CreateBatch(f.ctx, farmID, CreateBatchInput{
		CollectionDate:   collectionDay,
		Session:          models.SessionMorning,
		SourceMilkingIDs: ids,
		EstimatedVolume:  30,
		ActualVolume:     28,
	})
	require.NoError(t, err)
	return batch
}

func ptr[T any](v T) *T { return &v }

func TestCreateBatch(t *testing.T) {
	f := newFixture(t, nil)

	batch := f.createBatch(t, 1, 2, 3)

	assert.Equal(t, "MB-20250115-001", batch.BatchCode)
	assert.Equal(t, models.BatchCollected, batch.Status)
	assert.Equal(t, models.TransportPending, batch.TransportStatus)
	assert.Equal(t, -6.67, batch.VariancePercentage)
	assert.Equal(t, 28.0, batch.TotalVolume)
	assert.Equal(t, "user-7", batch.CollectedBy)
	require.NotNil(t, batch.CollectedAt)
	assert.Equal(t, int64(1), batch.Version)

	for _, id := range []int64{1, 2, 3} {
		rec, ok := f.store.Milking(id)
		require.True(t, ok)
		require.NotNil(t, rec.BatchID)
		assert.Equal(t, batch.ID, *rec.BatchID)
	}

	assert.Equal(t, []models.EventType{models.EventBatchCollected}, f.notifier.events())
	assert.Equal(t, farmID, f.notifier.last().Recipient)

	second := f.createBatch(t, 4)
	assert.Equal(t, "MB-20250115-002", second.BatchCode)
}

func TestCreateBatchValidation(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name  string
		input CreateBatchInput
		field string
	}{
		{"no milking ids", CreateBatchInput{CollectionDate: collectionDay, Session: models.SessionMorning}, "source_milking_ids"},
		{"duplicate ids", CreateBatchInput{CollectionDate: collectionDay, Session: models.SessionMorning, SourceMilkingIDs: []int64{1, 1}}, "source_milking_ids"},
		{"bad session", CreateBatchInput{CollectionDate: collectionDay, Session: "night", SourceMilkingIDs: []int64{1}}, "session"},
		{"negative volume", CreateBatchInput{CollectionDate: collectionDay, Session: models.SessionEvening, SourceMilkingIDs: []int64{1}, ActualVolume: -1}, "actual_volume"},
		{"missing date", CreateBatchInput{Session: models.SessionEvening, SourceMilkingIDs: []int64{1}}, "collection_date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateBatch(f.ctx, farmID, tt.input)
			var ve *models.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Contains(t, ve.Fields, tt.field)
		})
	}

	rec, _ := f.store.Milking(1)
	assert.Nil(t, rec.BatchID, "failed validation mutates nothing")
	assert.Empty(t, f.notifier.events())
}

func TestCreateBatchExclusivity(t *testing.T) {
	f := newFixture(t, nil)
	first := f.createBatch(t, 1, 2, 3)

	// Any overlap, however small, is refused and rolls back entirely.
	_, err := f.svc.CreateBatch(f.ctx, farmID, CreateBatchInput{
		CollectionDate:   collectionDay,
		Session:          models.SessionMorning,
		SourceMilkingIDs: []int64{4, 5, 3},
	})
	require.ErrorIs(t, err, models.ErrMilkingAlreadyBatched)

	for _, id := range []int64{4, 5} {
		rec, _ := f.store.Milking(id)
		assert.Nil(t, rec.BatchID, "milking %d must stay unclaimed", id)
	}
	rec, _ := f.store.Milking(3)
	assert.Equal(t, first.ID, *rec.BatchID)

	all, err := f.svc.ListBatches(f.ctx, farmID, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, all, 1)

	// The failed attempt did not consume a sequence.
	next := f.createBatch(t, 4)
	assert.Equal(t, "MB-20250115-002", next.BatchCode)
}

func TestCreateBatchUnknownOrForeignMilking(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.CreateBatch(f.ctx, farmID, CreateBatchInput{CollectionDate: collectionDay, Session: models.SessionMorning, SourceMilkingIDs: []int64{1, 404}})
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = f.svc.CreateBatch(f.ctx, farmID, CreateBatchInput{CollectionDate: collectionDay, Session: models.SessionMorning, SourceMilkingIDs: []int64{99}})
	assert.ErrorIs(t, err, models.ErrNotFound)

	rec, _ := f.store.Milking(1)
	assert.Nil(t, rec.BatchID)
}

func TestCreateBatchConcurrentOverlap(t *testing.T) {
	f := newFixture(t, nil)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.CreateBatch(f.ctx, farmID, CreateBatchInput{
				CollectionDate:   collectionDay,
				Session:          models.SessionMorning,
				SourceMilkingIDs: []int64{int64(i%2) + 1, 3},
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	var ok, conflicts int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, models.ErrMilkingAlreadyBatched):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, attempts-1, conflicts)
}

func TestRoundTripToApproval(t *testing.T) {
	f := newFixture(t, nil)
	batch := f.createBatch(t, 1, 2, 3)
	assert.Equal(t, -6.67, batch.VariancePercentage)

	received, err := f.svc.Receive(f.ctx, batch.ID, ReceiveInput{
		DeliveryTemperature: ptr(6.0),
		VisualCheck:         models.VisualNormal,
		SmellCheck:          models.SmellNormal,
	})
	require.NoError(t, err)
	assert.Equal(t, models.BatchReceived, received.Status)
	assert.Equal(t, "user-7", received.ReceivedBy)
	assert.NotNil(t, received.ReceivedAt)
	assert.Empty(t, received.TransportNotes)

	graded, err := f.svc.UpdateQualityTest(f.ctx, batch.ID, QualityTestInput{
		QualityData: models.QualityData{PH: 6.7, FatPercentage: 3.6, BacteriaCount: 50_000},
		Notes:       "lab 1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.GradeA, graded.QualityGrade)
	assert.Equal(t, models.BatchApproved, graded.Status)
	assert.Equal(t, "user-7", graded.QualityTestedBy)
	assert.Equal(t, "lab 1", graded.QualityNotes)
	assert.Empty(t, graded.RejectionReason)

	assert.Equal(t, []models.EventType{
		models.EventBatchCollected,
		models.EventBatchReceived,
		models.EventBatchQualityTested,
	}, f.notifier.events())
	assert.Equal(t, "A", f.notifier.last().Payload["grade"])

	_, err = f.svc.Receive(f.ctx, batch.ID, ReceiveInput{VisualCheck: models.VisualNormal, SmellCheck: models.SmellNormal})
	var te *models.InvalidTransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, string(models.BatchApproved), te.From)
}

func TestLaboratoryRejection(t *testing.T) {
	f := newFixture(t, nil)
	batch := f.createBatch(t, 1, 2, 3)

	_, err := f.svc.Receive(f.ctx, batch.ID, ReceiveInput{VisualCheck: models.VisualNormal, SmellCheck: models.SmellNormal})
	require.NoError(t, err)

	graded, err := f.svc.UpdateQualityTest(f.ctx, batch.ID, QualityTestInput{
		QualityData: models.QualityData{PH: 6.2, FatPercentage: 2.0, BacteriaCount: 2_000_000},
	})
	require.NoError(t, err)
	assert.Equal(t, models.GradeReject, graded.QualityGrade)
	assert.Equal(t, models.BatchRejected, graded.Status)
	assert.Equal(t, models.LabRejectionReason, graded.RejectionReason)
}

func TestQualityTestRequiresReceived(t *testing.T) {
	f := newFixture(t, nil)
	batch := f.createBatch(t, 1)

	_, err := f.svc.UpdateQualityTest(f.ctx, batch.ID, QualityTestInput{
		QualityData: models.QualityData{PH: 6.7, FatPercentage: 3.6, BacteriaCount: 50_000},
	})
	var te *models.InvalidTransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, string(models.BatchCollected), te.From)

	stored, err := f.svc.GetBatch(f.ctx, batch.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.QualityGrade)
}

func TestQualityTestUsesConfiguredStandards(t *testing.T) {
	provider := settings.Static{settings.KeyQualityStandards: `{
		"A": {"ph_min": 6.6, "ph_max": 6.8, "fat_min": 4.0, "bacteria_max": 100000},
		"B": {"ph_min": 6.5, "ph_max": 6.9, "fat_min": 3.0, "bacteria_max": 500000},
		"C": {"ph_min": 6.4, "ph_max": 7.0, "fat_min": 2.5, "bacteria_max": 1000000}
	}`}
	f := newFixture(t, provider)
	batch := f.createBatch(t, 1)
	_, err := f.svc.Receive(f.ctx, batch.ID, ReceiveInput{VisualCheck: models.VisualNormal, SmellCheck: models.SmellNormal})
	require.NoError(t, err)

	graded, err := f.svc.UpdateQualityTest(f.ctx, batch.ID, QualityTestInput{
		QualityData: models.QualityData{PH: 6.7, FatPercentage: 3.6, BacteriaCount: 50_000},
	})
	require.NoError(t, err)
	assert.Equal(t, models.GradeB, graded.QualityGrade)
}

func TestReceiveSensoryRejection(t *testing.T) {
	f := newFixture(t, nil)
	batch := f.createBatch(t, 1)

	rejected, err := f.svc.Receive(f.ctx, batch.ID, ReceiveInput{VisualCheck: models.VisualFoamy, SmellCheck: models.SmellSour})
	require.NoError(t, err)
	assert.Equal(t, models.BatchRejected, rejected.Status)
	assert.Equal(t, "Failed visual/smell check: visual=foamy, smell=sour", rejected.RejectionReason)
	assert.NotNil(t, rejected.ReceivedAt)

	n := f.notifier.last()
	assert.Equal(t, models.EventBatchRejected, n.Event)
	assert.Equal(t, rejected.RejectionReason, n.Payload["reason"])

	// A rejected batch keeps its sensory reason and cannot be graded.
	_, err = f.svc.UpdateQualityTest(f.ctx, batch.ID, QualityTestInput{QualityData: models.QualityData{PH: 6.7, FatPercentage: 3.6}})
	var te *models.InvalidTransitionError
	assert.ErrorAs(t, err, &te)
}

func TestReceiveTemperatureWarning(t *testing.T) {
	f := newFixture(t, settings.Static{settings.KeyTemperatureRange: `{"min": 2, "max": 4, "warning_threshold": 8}`})
	batch := f.createBatch(t, 1)

	received, err := f.svc.Receive(f.ctx, batch.ID, ReceiveInput{
		DeliveryTemperature: ptr(9.5),
		DurationMinutes:     ptr(45),
		VisualCheck:         models.VisualNormal,
		SmellCheck:          models.SmellNormal,
	})
	require.NoError(t, err)
	assert.Equal(t, models.BatchReceived, received.Status, "a warm delivery is not rejected")
	assert.Contains(t, received.TransportNotes, "[WARNING] Delivery temperature 9.5°C above 8.0°C threshold")
	assert.Equal(t, 45, *received.TransportDuration)
	assert.NotEmpty(t, f.notifier.last().Payload["warning"])
}

func TestReceiveValidation(t *testing.T) {
	f := newFixture(t, nil)
	batch := f.createBatch(t, 1)

	_, err := f.svc.Receive(f.ctx, batch.ID, ReceiveInput{VisualCheck: "cloudy", SmellCheck: models.SmellNormal})
	var ve *models.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "visual_check")

	_, err = f.svc.Receive(f.ctx, "missing", ReceiveInput{VisualCheck: models.VisualNormal, SmellCheck: models.SmellNormal})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestDispatchAndTransport(t *testing.T) {
	f := newFixture(t, nil)
	batch := f.createBatch(t, 1, 2)

	expected := collectionDay.Add(6 * time.Hour)
	dispatched, err := f.svc.Dispatch(f.ctx, batch.ID, DispatchInput{
		DestinationFarmID:  "factory-1",
		CourierName:        "Budi",
		VehicleNumber:      "B 1234 XY",
		ExpectedDeliveryAt: &expected,
	})
	require.NoError(t, err)
	assert.Equal(t, models.BatchInTransit, dispatched.Status)
	assert.Equal(t, models.TransportDispatched, dispatched.TransportStatus)
	assert.Regexp(t, `^TRK-[A-Z0-9]{12}$`, dispatched.TrackingNumber)
	assert.Equal(t, "user-7", dispatched.DispatchedBy)
	require.NotNil(t, dispatched.DispatchedAt)
	require.Len(t, dispatched.TransportHistory, 1)

	_, err = f.svc.Dispatch(f.ctx, batch.ID, DispatchInput{})
	var te *models.InvalidTransitionError
	require.ErrorAs(t, err, &te)

	updated, err := f.svc.UpdateTransportStatus(f.ctx, batch.ID, TransportUpdateInput{TransportStatus: models.TransportDelayed, Location: "Km 12", Notes: "traffic"})
	require.NoError(t, err)
	updated, err = f.svc.UpdateTransportStatus(f.ctx, batch.ID, TransportUpdateInput{TransportStatus: models.TransportArrived, Location: "Factory gate"})
	require.NoError(t, err)

	assert.Equal(t, models.TransportArrived, updated.TransportStatus)
	require.Len(t, updated.TransportHistory, 3)
	assert.Equal(t, models.TransportDispatched, updated.TransportHistory[0].Status)
	assert.Equal(t, models.TransportEvent{Timestamp: f.svc.now().UTC(), Status: models.TransportDelayed, Location: "Km 12", Notes: "traffic"}, updated.TransportHistory[1])
	assert.Equal(t, "Factory gate", updated.TransportHistory[2].Location)

	_, err = f.svc.UpdateTransportStatus(f.ctx, batch.ID, TransportUpdateInput{TransportStatus: models.TransportDelivered})
	var ve *models.ValidationError
	assert.ErrorAs(t, err, &ve, "delivered is only set by ConfirmDelivery")

	received, err := f.svc.Receive(f.ctx, batch.ID, ReceiveInput{VisualCheck: models.VisualNormal, SmellCheck: models.SmellNormal})
	require.NoError(t, err)
	assert.Equal(t, models.BatchReceived, received.Status)
}

func TestDispatchKeepsProvidedTrackingNumber(t *testing.T) {
	f := newFixture(t, nil)
	batch := f.createBatch(t, 1)

	dispatched, err := f.svc.Dispatch(f.ctx, batch.ID, DispatchInput{TrackingNumber: "TRK-MANUAL0001"})
	require.NoError(t, err)
	assert.Equal(t, "TRK-MANUAL0001", dispatched.TrackingNumber)
}

func TestConfirmDelivery(t *testing.T) {
	f := newFixture(t, nil)
	batch := f.createBatch(t, 1)
	_, err := f.svc.Dispatch(f.ctx, batch.ID, DispatchInput{})
	require.NoError(t, err)

	deliveredAt := collectionDay.Add(3 * time.Hour)
	confirmed, err := f.svc.ConfirmDelivery(f.ctx, batch.ID, ConfirmDeliveryInput{
		DeliveredAt:      &deliveredAt,
		ReceivedByUserID: "factory-clerk",
		Notes:            "seal intact",
	})
	require.NoError(t, err)
	assert.Equal(t, models.TransportDelivered, confirmed.TransportStatus)
	assert.Equal(t, models.BatchReceived, confirmed.Status)
	assert.Equal(t, "factory-clerk", confirmed.ReceivedBy)
	assert.True(t, deliveredAt.Equal(*confirmed.DeliveredAt))
	assert.Contains(t, confirmed.TransportNotes, "seal intact")

	_, err = f.svc.UpdateTransportStatus(f.ctx, batch.ID, TransportUpdateInput{TransportStatus: models.TransportInTransit})
	var te *models.InvalidTransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "transport", te.Entity)

	graded, err := f.svc.UpdateQualityTest(f.ctx, batch.ID, QualityTestInput{QualityData: models.QualityData{PH: 6.7, FatPercentage: 3.6, BacteriaCount: 1}})
	require.NoError(t, err)
	assert.Equal(t, models.BatchApproved, graded.Status)

	_, err = f.svc.ConfirmDelivery(f.ctx, batch.ID, ConfirmDeliveryInput{})
	assert.ErrorAs(t, err, &te, "approved batches cannot move back to received")
}

func TestConfirmDeliveryKeepsFarmSideReceipt(t *testing.T) {
	f := newFixture(t, nil)
	batch := f.createBatch(t, 1)

	received, err := f.svc.Receive(f.ctx, batch.ID, ReceiveInput{VisualCheck: models.VisualNormal, SmellCheck: models.SmellNormal})
	require.NoError(t, err)
	require.Equal(t, "user-7", received.ReceivedBy)
	require.NotNil(t, received.ReceivedAt)

	deliveredAt := collectionDay.Add(5 * time.Hour)
	confirmed, err := f.svc.ConfirmDelivery(f.ctx, batch.ID, ConfirmDeliveryInput{
		DeliveredAt:      &deliveredAt,
		ReceivedByUserID: "factory-clerk",
	})
	require.NoError(t, err)
	assert.Equal(t, "user-7", confirmed.ReceivedBy)
	assert.True(t, received.ReceivedAt.Equal(*confirmed.ReceivedAt))
	assert.Equal(t, models.TransportDelivered, confirmed.TransportStatus)
}

func TestStaleWriteIsRejected(t *testing.T) {
	f := newFixture(t, nil)
	batch := f.createBatch(t, 1)

	stale, err := f.store.GetBatch(f.ctx, batch.ID)
	require.NoError(t, err)

	_, err = f.svc.Dispatch(f.ctx, batch.ID, DispatchInput{})
	require.NoError(t, err)

	stale.Notes = "edited elsewhere"
	assert.ErrorIs(t, f.store.UpdateBatch(f.ctx, stale), models.ErrConcurrentModification)
}

func approvedBatch(t *testing.T, f *fixture, ids ...int64) *models.MilkBatch {
	t.Helper()
	batch := f.createBatch(t, ids...)
	_, err := f.svc.Receive(f.ctx, batch.ID, ReceiveInput{VisualCheck: models.VisualNormal, SmellCheck: models.SmellNormal})
	require.NoError(t, err)
	graded, err := f.svc.UpdateQualityTest(f.ctx, batch.ID, QualityTestInput{QualityData: models.QualityData{PH: 6.7, FatPercentage: 3.6, BacteriaCount: 50_000}})
	require.NoError(t, err)
	return graded
}

func TestStartProduction(t *testing.T) {
	f := newFixture(t, nil)
	a := approvedBatch(t, f, 1, 2)
	b := approvedBatch(t, f, 3)

	run, err := f.svc.StartProduction(f.ctx, farmID, StartProductionInput{BatchIDs: []string{a.ID, b.ID}, Notes: "gouda"})
	require.NoError(t, err)
	assert.Equal(t, "CP-20250115-001", run.ProductionCode)
	assert.Equal(t, 56.0, run.TotalLiters)
	assert.Equal(t, "user-7", run.StartedBy)

	for _, id := range []string{a.ID, b.ID} {
		stored, err := f.svc.GetBatch(f.ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.BatchInProduction, stored.Status)
		assert.Equal(t, run.ID, stored.ProductionID)
	}

	_, err = f.svc.StartProduction(f.ctx, farmID, StartProductionInput{BatchIDs: []string{a.ID}})
	var te *models.InvalidTransitionError
	assert.ErrorAs(t, err, &te)
}

func TestStartProductionIsAtomic(t *testing.T) {
	f := newFixture(t, nil)
	approved := approvedBatch(t, f, 1)
	pending := f.createBatch(t, 2)

	_, err := f.svc.StartProduction(f.ctx, farmID, StartProductionInput{BatchIDs: []string{approved.ID, pending.ID}})
	var te *models.InvalidTransitionError
	require.ErrorAs(t, err, &te)

	stored, err := f.svc.GetBatch(f.ctx, approved.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchApproved, stored.Status)

	_, err = f.svc.StartProduction(f.ctx, "farm-2", StartProductionInput{BatchIDs: []string{approved.ID}})
	assert.ErrorIs(t, err, models.ErrNotFound)
}
