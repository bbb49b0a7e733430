package quotes

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astrolabe-io/astrolabe/internal/apperrors"
	"github.com/astrolabe-io/astrolabe/internal/events"
	"github.com/astrolabe-io/astrolabe/internal/modules/routing"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(Schema)
	require.NoError(t, err)

	return db
}

// fakeRoutes returns a canned resolver response
type fakeRoutes struct {
	resp *routing.Response
	err  error
}

func (f *fakeRoutes) FindRoutes(context.Context, routing.Query) (*routing.Response, error) {
	return f.resp, f.err
}

func sampleRoute() *routing.Route {
	return &routing.Route{
		ID:            "rt_0000deadbeef",
		Source:        "USDC:GSOURCE",
		Destination:   "EURC:GDEST",
		SendAmount:    "100",
		ReceiveAmount: "95.5000000",
		Score:         0.91,
		GraphVersion:  3,
		Hops:          2,
	}
}

func newTestService(t *testing.T, routes RouteSource) (*Service, *events.Bus) {
	t.Helper()
	bus := events.NewBus(zerolog.Nop())
	t.Cleanup(bus.Close)
	repo := NewRepository(setupTestDB(t), zerolog.Nop())
	return NewService(repo, routes, bus, 300, zerolog.Nop()), bus
}

func TestCreateFreezesBestRoute(t *testing.T) {
	routes := &fakeRoutes{resp: &routing.Response{Routes: []*routing.Route{sampleRoute()}}}
	svc, bus := newTestService(t, routes)

	id, ch := bus.Subscribe(4)
	defer bus.Unsubscribe(id)

	q, err := svc.Create(context.Background(), routing.Query{Amount: "100"})
	require.NoError(t, err)

	assert.NotEmpty(t, q.ID)
	assert.Equal(t, "rt_0000deadbeef", q.RouteID)
	assert.Equal(t, StatusActive, q.Status)
	assert.Equal(t, "95.5000000", q.ReceiveAmount)
	assert.Equal(t, uint64(3), q.GraphVersion)
	assert.True(t, q.ExpiresAt.After(q.CreatedAt))

	evt := <-ch
	assert.Equal(t, events.QuoteCreated, evt.Type)
	data := evt.Data.(*events.QuoteLifecycleData)
	assert.Equal(t, q.ID, data.QuoteID)
}

func TestCreateNoRoutes(t *testing.T) {
	svc, _ := newTestService(t, &fakeRoutes{resp: &routing.Response{}})

	_, err := svc.Create(context.Background(), routing.Query{Amount: "100"})
	assert.True(t, apperrors.IsKind(err, apperrors.KindNoRoute), "got %v", err)
}

func TestGetRoundTripsFrozenManifest(t *testing.T) {
	svc, _ := newTestService(t, nil)

	created, err := svc.CreateFromRoute(sampleRoute())
	require.NoError(t, err)

	got, err := svc.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	route, err := got.Route()
	require.NoError(t, err)
	assert.Equal(t, "rt_0000deadbeef", route.ID)
	assert.Equal(t, "95.5000000", route.ReceiveAmount)
	assert.Equal(t, 2, route.Hops)
}

func TestGetUnknownQuote(t *testing.T) {
	svc, _ := newTestService(t, nil)

	_, err := svc.Get(uuid.New().String())
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound), "got %v", err)
}

func TestConsumeIsSingleShot(t *testing.T) {
	svc, bus := newTestService(t, nil)

	created, err := svc.CreateFromRoute(sampleRoute())
	require.NoError(t, err)

	id, ch := bus.Subscribe(4)
	defer bus.Unsubscribe(id)

	consumed, err := svc.Consume(created.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConsumed, consumed.Status)

	evt := <-ch
	assert.Equal(t, events.QuoteConsumed, evt.Type)

	// The second consumption reports the terminal status
	_, err = svc.Consume(created.ID)
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindBadRequest), "got %v", err)
	assert.Contains(t, err.Error(), StatusConsumed)
}

func TestConsumeUnknownQuote(t *testing.T) {
	svc, _ := newTestService(t, nil)

	_, err := svc.Consume(uuid.New().String())
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound), "got %v", err)
}

// insertOverdue writes a quote whose active window already ended
func insertOverdue(t *testing.T, repo *Repository) string {
	t.Helper()
	now := time.Now().UTC()
	q := &Quote{
		ID:          uuid.New().String(),
		RouteID:     "rt_000000000001",
		Source:      "USDC:GSOURCE",
		Destination: "EURC:GDEST",
		SendAmount:  "100",
		Status:      StatusActive,
		CreatedAt:   now.Add(-10 * time.Minute),
		ExpiresAt:   now.Add(-5 * time.Minute),
		routeJSON:   []byte("{}"),
	}
	require.NoError(t, repo.Create(q))
	return q.ID
}

func TestGetReportsOverdueAsExpired(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())
	svc := NewService(repo, nil, nil, 300, zerolog.Nop())

	id := insertOverdue(t, repo)

	// The sweep has not run, but readers never see a stale active status
	q, err := svc.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, q.Status)
}

func TestConsumeOverdueQuote(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())
	svc := NewService(repo, nil, nil, 300, zerolog.Nop())

	id := insertOverdue(t, repo)

	_, err := svc.Consume(id)
	assert.True(t, apperrors.IsKind(err, apperrors.KindBadRequest), "got %v", err)
}

func TestExpireOverdueSweep(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())
	svc := NewService(repo, nil, nil, 300, zerolog.Nop())

	insertOverdue(t, repo)
	live, err := svc.CreateFromRoute(sampleRoute())
	require.NoError(t, err)

	n, err := svc.ExpireOverdue()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := svc.Get(live.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, got.Status)

	// The sweep is idempotent
	n, err = svc.ExpireOverdue()
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.NoError(t, NewExpireJob(svc).Run())
}

func TestListRecentAndCount(t *testing.T) {
	svc, _ := newTestService(t, nil)

	for i := 0; i < 3; i++ {
		_, err := svc.CreateFromRoute(sampleRoute())
		require.NoError(t, err)
	}

	quotes, err := svc.List(2)
	require.NoError(t, err)
	assert.Len(t, quotes, 2)

	n, err := svc.Count()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestQuoteLive(t *testing.T) {
	now := time.Now()
	q := &Quote{Status: StatusActive, ExpiresAt: now.Add(time.Minute)}
	assert.True(t, q.Live(now))
	assert.False(t, q.Live(now.Add(2*time.Minute)))

	q.Status = StatusConsumed
	assert.False(t, q.Live(now))
}
