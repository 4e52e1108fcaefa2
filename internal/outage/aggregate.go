package outage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/waterwatch/internal/domain"
	"github.com/hamed0406/waterwatch/internal/metrics"
)

type Fetcher interface {
	FetchOutageInfo(ctx context.Context, loc domain.MonitoredLocation) (*domain.RawResponse, bool)
}

type Aggregate struct {
	Interruptions       []domain.Interruption
	RepresentativeAlert *domain.RawAlert
}

type Aggregator struct {
	fetcher Fetcher
	phrase  string
	zone    *time.Location
	metrics metrics.Recorder
	log     *zap.Logger
}

func NewAggregator(f Fetcher, phrase string, zone *time.Location, m metrics.Recorder, log *zap.Logger) *Aggregator {
	if zone == nil {
		zone = time.UTC
	}
	if m == nil {
		m = metrics.Noop()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Aggregator{fetcher: f, phrase: phrase, zone: zone, metrics: m, log: log}
}

// Aggregate fetches the locations one after another, in order. Interruptions
// keep location order, then upstream order. The representative alert is the
// last alert seen on a location that was not explicitly clear.
func (a *Aggregator) Aggregate(ctx context.Context, locations []domain.MonitoredLocation, now time.Time) Aggregate {
	out := Aggregate{Interruptions: []domain.Interruption{}}
	for _, loc := range locations {
		resp, ok := a.fetcher.FetchOutageInfo(ctx, loc)
		if !ok || resp == nil {
			a.metrics.IncFetchFailures()
			continue
		}
		n := Normalize(resp, loc, now, a.phrase, a.zone)
		if n.ExplicitlyClear {
			a.log.Debug("location_clear", zap.String("location", loc.Key()))
			continue
		}
		out.Interruptions = append(out.Interruptions, n.Interruptions...)
		if resp.Alert != nil {
			alert := *resp.Alert
			out.RepresentativeAlert = &alert
		}
	}
	return out
}
