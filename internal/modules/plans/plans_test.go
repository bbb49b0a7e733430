package plans

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astrolabe-io/astrolabe/internal/apperrors"
	"github.com/astrolabe-io/astrolabe/internal/modules/quotes"
	"github.com/astrolabe-io/astrolabe/internal/modules/routing"
	"github.com/astrolabe-io/astrolabe/internal/modules/routing/graph"
)

type fakeRoutes struct {
	resp *routing.Response
	err  error
}

func (f *fakeRoutes) FindRoutes(context.Context, routing.Query) (*routing.Response, error) {
	return f.resp, f.err
}

type fakeQuotes struct {
	quote *quotes.Quote
	err   error
}

func (f *fakeQuotes) Get(string) (*quotes.Quote, error) {
	return f.quote, f.err
}

func newPlanService(routes RouteSource, quoteSrc QuoteSource) *Service {
	return NewService(routes, quoteSrc, zerolog.Nop())
}

func mixedRoute() *routing.Route {
	return &routing.Route{
		ID:          "rt_00000000cafe",
		Source:      "USDC:GSOURCE",
		Destination: "MXN:GDEST",
		SendAmount:  "100",
		Legs: []routing.Leg{
			{From: "USDC:GSOURCE", To: "USD:GANCHOR", Type: string(graph.EdgeDEX),
				Details: routing.DEXLegDetails{TopAsk: 1, Spread: 0.01, AskDepth: 5000}},
			{From: "USD:GANCHOR", To: "MXN:GDEST", Type: string(graph.EdgeAnchorBridge),
				Details: routing.BridgeLegDetails{AnchorDomain: "anchor.example", FeeFixed: 2, FeePercent: 1}},
		},
	}
}

func TestBuildFromRouteExpandsBridge(t *testing.T) {
	svc := newPlanService(nil, nil)

	plan := svc.BuildFromRoute(mixedRoute())

	assert.Equal(t, "rt_00000000cafe", plan.RouteID)
	assert.Equal(t, "USDC:GSOURCE", plan.Source)
	assert.Equal(t, "MXN:GDEST", plan.Destination)
	assert.Empty(t, plan.QuoteID)
	require.Len(t, plan.Steps, 3)

	// Market leg: 100 * 1 * 0.99
	market := plan.Steps[0]
	assert.Equal(t, 0, market.Index)
	assert.Equal(t, StepPathPayment, market.Type)
	assert.Equal(t, "100.0000000", market.AmountIn)
	assert.Equal(t, "99.0000000", market.AmountOut)
	assert.False(t, market.Estimated)
	assert.Equal(t, 1.0, market.TopAsk)

	// Deposit holds the fixed fee, stays on the entry asset
	deposit := plan.Steps[1]
	assert.Equal(t, StepAnchorDeposit, deposit.Type)
	assert.Equal(t, "USD:GANCHOR", deposit.From)
	assert.Equal(t, "USD:GANCHOR", deposit.To)
	assert.Equal(t, "99.0000000", deposit.AmountIn)
	assert.Equal(t, "97.0000000", deposit.AmountOut)
	assert.Equal(t, "anchor.example", deposit.AnchorDomain)
	assert.Equal(t, 2.0, deposit.FeeFixed)

	// Withdraw applies the percentage fee and crosses to the exit asset
	withdraw := plan.Steps[2]
	assert.Equal(t, StepAnchorWithdraw, withdraw.Type)
	assert.Equal(t, "USD:GANCHOR", withdraw.From)
	assert.Equal(t, "MXN:GDEST", withdraw.To)
	assert.Equal(t, "97.0000000", withdraw.AmountIn)
	assert.Equal(t, "96.0300000", withdraw.AmountOut)
	assert.Equal(t, 1.0, withdraw.FeePercent)

	assert.Equal(t, "96.0300000", plan.ReceiveAmount)
}

func TestBuildFromRouteHubHaircut(t *testing.T) {
	svc := newPlanService(nil, nil)

	plan := svc.BuildFromRoute(&routing.Route{
		ID:         "rt_000000000001",
		SendAmount: "100",
		Legs: []routing.Leg{
			{From: "A", To: "XLM:native", Type: string(graph.EdgeXLMHub),
				Details: routing.HubLegDetails{Estimated: true}},
			{From: "XLM:native", To: "B", Type: string(graph.EdgeXLMHub),
				Details: routing.HubLegDetails{Estimated: true}},
		},
	})

	require.Len(t, plan.Steps, 2)
	assert.True(t, plan.Steps[0].Estimated)
	assert.Equal(t, "98.0000000", plan.Steps[0].AmountOut)
	assert.Equal(t, "96.0400000", plan.ReceiveAmount)
}

func TestBuildFromRouteHorizonLeg(t *testing.T) {
	svc := newPlanService(nil, nil)

	plan := svc.BuildFromRoute(&routing.Route{
		ID:         "rt_000000000002",
		SendAmount: "50",
		Legs: []routing.Leg{
			{From: "A", To: "B", Type: routing.LegHorizonPath,
				Details: routing.HorizonLegDetails{Path: []string{"XLM:native"}}},
		},
	})

	require.Len(t, plan.Steps, 1)
	step := plan.Steps[0]
	assert.Equal(t, StepPathPayment, step.Type)
	assert.True(t, step.Estimated)
	assert.Equal(t, "50.0000000", step.AmountOut)
}

func TestBuildFromRouteBridgeFeeExceedsAmount(t *testing.T) {
	svc := newPlanService(nil, nil)

	plan := svc.BuildFromRoute(&routing.Route{
		ID:         "rt_000000000003",
		SendAmount: "1",
		Legs: []routing.Leg{
			{From: "A", To: "B", Type: string(graph.EdgeAnchorBridge),
				Details: routing.BridgeLegDetails{FeeFixed: 5}},
		},
	})

	assert.Equal(t, "0.0000000", plan.Steps[0].AmountOut)
	assert.Equal(t, "0.0000000", plan.ReceiveAmount)
}

func TestBuildForQuery(t *testing.T) {
	routes := &fakeRoutes{resp: &routing.Response{Routes: []*routing.Route{mixedRoute()}}}
	svc := newPlanService(routes, nil)

	plan, err := svc.BuildForQuery(context.Background(), routing.Query{Amount: "100"})
	require.NoError(t, err)
	assert.Len(t, plan.Steps, 3)
}

func TestBuildForQueryNoRoutes(t *testing.T) {
	svc := newPlanService(&fakeRoutes{resp: &routing.Response{}}, nil)

	_, err := svc.BuildForQuery(context.Background(), routing.Query{Amount: "100"})
	assert.True(t, apperrors.IsKind(err, apperrors.KindNoRoute), "got %v", err)
}

func TestBuildForQueryResolverError(t *testing.T) {
	svc := newPlanService(&fakeRoutes{err: errors.New("horizon down")}, nil)

	_, err := svc.BuildForQuery(context.Background(), routing.Query{Amount: "100"})
	assert.Error(t, err)
}

func TestBuildForQuoteRejectsDeadQuote(t *testing.T) {
	stale := &quotes.Quote{ID: "q1", Status: quotes.StatusConsumed}
	svc := newPlanService(nil, &fakeQuotes{quote: stale})

	_, err := svc.BuildForQuote("q1")
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindBadRequest), "got %v", err)
	assert.Contains(t, err.Error(), quotes.StatusConsumed)
}

func TestBuildForQuoteLookupError(t *testing.T) {
	svc := newPlanService(nil, &fakeQuotes{err: apperrors.NotFound("quote q1 not found")})

	_, err := svc.BuildForQuote("q1")
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound), "got %v", err)
}
