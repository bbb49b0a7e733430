package anchors

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astrolabe-io/astrolabe/internal/apperrors"
	"github.com/astrolabe-io/astrolabe/internal/events"
)

func newTestService(t *testing.T) (*Service, *events.Bus) {
	t.Helper()
	bus := events.NewBus(zerolog.Nop())
	t.Cleanup(bus.Close)
	repo := NewRepository(setupTestDB(t), zerolog.Nop())
	return NewService(repo, bus, zerolog.Nop()), bus
}

func registerTestAnchor(t *testing.T, svc *Service) *Anchor {
	t.Helper()
	anchor, err := svc.Register(RegisterInput{
		Name:       "Example Exchange",
		HomeDomain: "ex.io",
		Assets: []AssetInput{
			{Code: "USDX", Issuer: testIssuerA, DepositEnabled: true, WithdrawEnabled: true, Active: true, FeePercent: 1},
			{Code: "EURX", Issuer: testIssuerB, DepositEnabled: true, WithdrawEnabled: true, Active: true, FeePercent: 1},
		},
	})
	require.NoError(t, err)
	return anchor
}

func TestRegisterAnchor(t *testing.T) {
	svc, bus := newTestService(t)
	id, ch := bus.Subscribe(4)
	defer bus.Unsubscribe(id)

	anchor := registerTestAnchor(t, svc)
	assert.Equal(t, "ex.io", anchor.HomeDomain)
	assert.InDelta(t, 1.0, anchor.Health, 1e-9)
	assert.Len(t, anchor.Assets, 2)

	evt := <-ch
	assert.Equal(t, events.AnchorAdded, evt.Type)
}

func TestRegisterAnchorValidation(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Register(RegisterInput{HomeDomain: ""})
	assert.True(t, apperrors.IsKind(err, apperrors.KindBadRequest))

	_, err = svc.Register(RegisterInput{
		HomeDomain: "ex.io",
		Assets:     []AssetInput{{Code: "USDX", Issuer: "bogus"}},
	})
	assert.True(t, apperrors.IsKind(err, apperrors.KindBadRequest))

	_, err = svc.Register(RegisterInput{
		HomeDomain: "ex.io",
		Assets:     []AssetInput{{Code: "USDX", Issuer: testIssuerA, FeePercent: 150}},
	})
	assert.True(t, apperrors.IsKind(err, apperrors.KindBadRequest))
}

func TestRegisterDuplicateDomain(t *testing.T) {
	svc, _ := newTestService(t)
	registerTestAnchor(t, svc)

	_, err := svc.Register(RegisterInput{HomeDomain: "EX.IO"})
	assert.True(t, apperrors.IsKind(err, apperrors.KindBadRequest))
}

func TestGetByDomainNotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.GetByDomain("missing.example")
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
}

func TestRecordProbeSmoothsHealth(t *testing.T) {
	svc, bus := newTestService(t)
	anchor := registerTestAnchor(t, svc)

	id, ch := bus.Subscribe(8)
	defer bus.Unsubscribe(id)

	// One failed probe moves health down by the smoothing factor, not to zero
	require.NoError(t, svc.RecordProbe(anchor, false, time.Now()))
	assert.InDelta(t, 0.7, anchor.Health, 1e-9)

	// Repeated failures decay further
	require.NoError(t, svc.RecordProbe(anchor, false, time.Now()))
	assert.InDelta(t, 0.49, anchor.Health, 1e-9)

	// Recovery climbs back toward 1
	require.NoError(t, svc.RecordProbe(anchor, true, time.Now()))
	assert.InDelta(t, 0.643, anchor.Health, 1e-9)

	evt := <-ch
	assert.Equal(t, events.AnchorHealthChanged, evt.Type)
	data := evt.Data.(*events.AnchorHealthChangedData)
	assert.InDelta(t, 1.0, data.OldHealth, 1e-9)
	assert.InDelta(t, 0.7, data.NewHealth, 1e-9)

	// Persisted too
	reloaded, err := svc.GetByDomain("ex.io")
	require.NoError(t, err)
	assert.InDelta(t, 0.643, reloaded.Health, 1e-9)
}

func TestCrawlRecordsProbes(t *testing.T) {
	svc, _ := newTestService(t)
	registerTestAnchor(t, svc)

	_, err := svc.Register(RegisterInput{HomeDomain: "down.example"})
	require.NoError(t, err)

	crawler := NewCrawler(svc, zerolog.Nop())
	crawler.probe = func(ctx context.Context, domain string) bool {
		return domain == "ex.io"
	}

	require.NoError(t, crawler.Crawl(context.Background()))

	up, err := svc.GetByDomain("ex.io")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, up.Health, 1e-9)
	assert.True(t, up.LastProbeOK)
	assert.NotNil(t, up.LastProbeAt)

	down, err := svc.GetByDomain("down.example")
	require.NoError(t, err)
	assert.InDelta(t, 0.7, down.Health, 1e-9)
	assert.False(t, down.LastProbeOK)
}

func TestCrawlJobName(t *testing.T) {
	svc, _ := newTestService(t)
	job := NewCrawlJob(NewCrawler(svc, zerolog.Nop()))
	assert.Equal(t, "anchor_probe", job.Name())
}
