package anchors

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const probeTimeout = 5 * time.Second

// probeFunc checks whether an anchor's home domain is reachable
type probeFunc func(ctx context.Context, domain string) bool

// Crawler sweeps active anchors and folds probe outcomes into their
// health scores. One unreachable anchor never aborts the sweep.
type Crawler struct {
	service *Service
	probe   probeFunc
	log     zerolog.Logger
}

// NewCrawler creates a crawler with the default HTTP probe
func NewCrawler(service *Service, log zerolog.Logger) *Crawler {
	client := &http.Client{Timeout: probeTimeout}
	return &Crawler{
		service: service,
		probe:   httpProbe(client),
		log:     log.With().Str("component", "anchor-crawler").Logger(),
	}
}

// httpProbe requests the anchor's stellar.toml location. Any response the
// server manages to produce counts as reachable; only transport failures
// and server errors degrade health.
func httpProbe(client *http.Client) probeFunc {
	return func(ctx context.Context, domain string) bool {
		url := fmt.Sprintf("https://%s/.well-known/stellar.toml", domain)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return false
		}

		resp, err := client.Do(req)
		if err != nil {
			return false
		}
		defer resp.Body.Close()

		return resp.StatusCode < http.StatusInternalServerError
	}
}

// Crawl probes every active anchor once
func (c *Crawler) Crawl(ctx context.Context) error {
	anchors, err := c.service.ActiveBridges()
	if err != nil {
		return fmt.Errorf("failed to list anchors for crawl: %w", err)
	}

	now := time.Now().UTC()
	probed, failed := 0, 0

	for i := range anchors {
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		ok := c.probe(probeCtx, anchors[i].HomeDomain)
		cancel()

		if err := c.service.RecordProbe(&anchors[i], ok, now); err != nil {
			c.log.Warn().Err(err).Str("domain", anchors[i].HomeDomain).Msg("Failed to record probe")
			continue
		}

		probed++
		if !ok {
			failed++
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}

	c.log.Info().Int("probed", probed).Int("failed", failed).Msg("Anchor crawl complete")
	return nil
}

// CrawlJob adapts the crawler to the scheduler
type CrawlJob struct {
	crawler *Crawler
}

// NewCrawlJob creates the scheduled crawl job
func NewCrawlJob(crawler *Crawler) *CrawlJob {
	return &CrawlJob{crawler: crawler}
}

// Run executes one crawl sweep
func (j *CrawlJob) Run() error {
	return j.crawler.Crawl(context.Background())
}

// Name returns the job name
func (j *CrawlJob) Name() string {
	return "anchor_probe"
}
