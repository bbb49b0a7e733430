// Package plans turns a route manifest into an ordered execution plan:
// the concrete steps a wallet would perform to move value along the
// route. Plans describe, they never execute: no transactions are built
// or submitted here.
package plans

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/astrolabe-io/astrolabe/internal/apperrors"
	"github.com/astrolabe-io/astrolabe/internal/modules/quotes"
	"github.com/astrolabe-io/astrolabe/internal/modules/routing"
	"github.com/astrolabe-io/astrolabe/internal/modules/routing/graph"
)

// Step types
const (
	StepPathPayment    = "path_payment"
	StepAnchorDeposit  = "anchor_deposit"
	StepAnchorWithdraw = "anchor_withdraw"
)

// hubHaircut mirrors the leg-walk estimate for synthetic hub hops
const hubHaircut = 0.98

// Step is one executable action of a plan
type Step struct {
	Index     int     `json:"index"`
	Type      string  `json:"type"`
	From      string  `json:"from"`
	To        string  `json:"to"`
	AmountIn  string  `json:"amountIn"`
	AmountOut string  `json:"amountOut"`
	Estimated bool    `json:"estimated"`

	// Anchor steps
	AnchorDomain string  `json:"anchorDomain,omitempty"`
	FeeFixed     float64 `json:"feeFixed,omitempty"`
	FeePercent   float64 `json:"feePercent,omitempty"`

	// Market steps
	TopAsk   float64 `json:"topAsk,omitempty"`
	Spread   float64 `json:"spread,omitempty"`
	AskDepth float64 `json:"askDepth,omitempty"`
}

// Plan is the ordered execution plan for one route
type Plan struct {
	ID            string    `json:"id"`
	RouteID       string    `json:"routeId"`
	QuoteID       string    `json:"quoteId,omitempty"`
	Source        string    `json:"source"`
	Destination   string    `json:"destination"`
	SendAmount    string    `json:"sendAmount"`
	ReceiveAmount string    `json:"receiveAmount"`
	Steps         []Step    `json:"steps"`
	CreatedAt     time.Time `json:"createdAt"`
}

// RouteSource resolves route queries; satisfied by the routing service
type RouteSource interface {
	FindRoutes(ctx context.Context, q routing.Query) (*routing.Response, error)
}

// QuoteSource resolves stored quotes; satisfied by the quote service
type QuoteSource interface {
	Get(id string) (*quotes.Quote, error)
}

// Service builds execution plans
type Service struct {
	routes RouteSource
	quotes QuoteSource
	log    zerolog.Logger
}

// NewService creates a plan service
func NewService(routes RouteSource, quoteSrc QuoteSource, log zerolog.Logger) *Service {
	return &Service{
		routes: routes,
		quotes: quoteSrc,
		log:    log.With().Str("component", "plans").Logger(),
	}
}

// BuildForQuery resolves the query and plans its best route
func (s *Service) BuildForQuery(ctx context.Context, query routing.Query) (*Plan, error) {
	resp, err := s.routes.FindRoutes(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(resp.Routes) == 0 {
		return nil, apperrors.NoRoute("no route available to plan")
	}
	return s.BuildFromRoute(resp.Routes[0]), nil
}

// BuildForQuote plans the frozen route behind a stored quote
func (s *Service) BuildForQuote(quoteID string) (*Plan, error) {
	quote, err := s.quotes.Get(quoteID)
	if err != nil {
		return nil, err
	}
	if !quote.Live(time.Now()) {
		return nil, apperrors.BadRequest("quote %s is %s", quoteID, quote.Status)
	}

	route, err := quote.Route()
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	plan := s.BuildFromRoute(route)
	plan.QuoteID = quote.ID
	return plan, nil
}

// BuildFromRoute converts a manifest into an execution plan. Market legs
// become path payments; each bridge leg expands into a deposit and a
// withdraw step carrying the anchor's fee breakdown. Per-step amounts
// thread the leg-walk estimate through the whole plan.
func (s *Service) BuildFromRoute(route *routing.Route) *Plan {
	plan := &Plan{
		ID:          uuid.New().String(),
		RouteID:     route.ID,
		Source:      route.Source,
		Destination: route.Destination,
		SendAmount:  route.SendAmount,
		CreatedAt:   time.Now().UTC(),
	}

	amount, _ := strconv.ParseFloat(route.SendAmount, 64)
	for _, leg := range route.Legs {
		amount = appendSteps(plan, leg, amount)
	}

	plan.ReceiveAmount = formatAmount(amount)
	s.log.Debug().
		Str("route", route.ID).
		Int("steps", len(plan.Steps)).
		Msg("Execution plan built")
	return plan
}

// appendSteps expands one leg into plan steps and returns the running
// amount after the leg
func appendSteps(plan *Plan, leg routing.Leg, amount float64) float64 {
	switch leg.Type {
	case string(graph.EdgeAnchorBridge):
		d, _ := leg.Details.(routing.BridgeLegDetails)

		afterDeposit := amount - d.FeeFixed
		if afterDeposit < 0 {
			afterDeposit = 0
		}
		plan.Steps = append(plan.Steps, Step{
			Index:        len(plan.Steps),
			Type:         StepAnchorDeposit,
			From:         leg.From,
			To:           leg.From,
			AmountIn:     formatAmount(amount),
			AmountOut:    formatAmount(afterDeposit),
			AnchorDomain: d.AnchorDomain,
			FeeFixed:     d.FeeFixed,
		})

		afterWithdraw := afterDeposit * (1 - d.FeePercent/100)
		plan.Steps = append(plan.Steps, Step{
			Index:        len(plan.Steps),
			Type:         StepAnchorWithdraw,
			From:         leg.From,
			To:           leg.To,
			AmountIn:     formatAmount(afterDeposit),
			AmountOut:    formatAmount(afterWithdraw),
			AnchorDomain: d.AnchorDomain,
			FeePercent:   d.FeePercent,
		})
		return afterWithdraw

	case string(graph.EdgeXLMHub):
		out := amount * hubHaircut
		plan.Steps = append(plan.Steps, Step{
			Index:     len(plan.Steps),
			Type:      StepPathPayment,
			From:      leg.From,
			To:        leg.To,
			AmountIn:  formatAmount(amount),
			AmountOut: formatAmount(out),
			Estimated: true,
		})
		return out

	default:
		// DEX and horizon-path legs are direct path payments
		out := amount
		step := Step{
			Index:    len(plan.Steps),
			Type:     StepPathPayment,
			From:     leg.From,
			To:       leg.To,
			AmountIn: formatAmount(amount),
		}
		if d, ok := leg.Details.(routing.DEXLegDetails); ok {
			if d.TopAsk > 0 {
				out = amount * d.TopAsk * (1 - d.Spread)
			}
			step.TopAsk = d.TopAsk
			step.Spread = d.Spread
			step.AskDepth = d.AskDepth
		} else {
			step.Estimated = true
		}
		step.AmountOut = formatAmount(out)
		plan.Steps = append(plan.Steps, step)
		return out
	}
}

func formatAmount(x float64) string {
	if x < 0 {
		x = 0
	}
	return strconv.FormatFloat(x, 'f', 7, 64)
}
