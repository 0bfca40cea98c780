// Package datasource answers data_request messages from socket clients.
package datasource

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"notification-hub/internal/cache"
	"notification-hub/internal/database"
	"notification-hub/internal/models"
	"notification-hub/internal/realtime"
)

// Supported data_request kinds.
const (
	KindConnections = "connections"
	KindDirectory   = "directory"
)

var errNotAuthenticated = errors.New("authenticate before requesting the directory")

// MetricsSource reports connection counts. *realtime.Registry implements it.
type MetricsSource interface {
	Metrics() models.ConnectionMetrics
}

// DirectorySource lists directory users. *database.UserRepository implements it.
type DirectorySource interface {
	Directory(ctx context.Context) ([]database.DirectoryEntry, error)
}

// Provider serves data_request kinds with a short per-kind cache.
type Provider struct {
	metrics   MetricsSource
	directory DirectorySource
	cache     *cache.TTLCache[string, any]
	loads     singleflight.Group
}

var _ realtime.DataSource = (*Provider)(nil)

// New creates a provider. directory may be nil, which disables the directory kind.
func New(metrics MetricsSource, directory DirectorySource, ttl time.Duration) *Provider {
	return &Provider{
		metrics:   metrics,
		directory: directory,
		cache:     cache.NewTTLCache[string, any](ttl),
	}
}

// Query implements realtime.DataSource.
func (p *Provider) Query(ctx context.Context, q realtime.DataQuery) (any, error) {
	switch q.Kind {
	case KindConnections:
		return p.load(KindConnections, func() (any, error) {
			return p.metrics.Metrics(), nil
		})
	case KindDirectory:
		if !q.Connection.Authenticated() {
			return nil, errNotAuthenticated
		}
		if p.directory == nil {
			return nil, errors.New("directory is not available")
		}
		// The load is shared by every caller waiting on this kind.
		loadCtx := context.WithoutCancel(ctx)
		return p.load(KindDirectory, func() (any, error) {
			entries, err := p.directory.Directory(loadCtx)
			if err != nil {
				return nil, errors.New("directory lookup failed")
			}
			return entries, nil
		})
	default:
		return nil, fmt.Errorf("unknown data kind %q", q.Kind)
	}
}

// load collapses concurrent misses for the same kind into one call.
func (p *Provider) load(kind string, fn func() (any, error)) (any, error) {
	return p.cache.GetOrLoad(kind, func() (any, error) {
		v, err, _ := p.loads.Do(kind, fn)
		return v, err
	})
}
