// Package connectors defines the contract every job provider adapter
// implements and the registry the worker resolves source codes through.
package connectors

import (
	"context"
	"fmt"
	"github.com/maxaizer/job-aggregator/internal/domain/errs"
	"github.com/maxaizer/job-aggregator/internal/domain/models"
	"sort"
	"sync"
	"time"
)

// RecordHandler receives each record as soon as the connector produced it.
type RecordHandler func(models.RawRecord)

// Connector fetches listings from one provider. Records are streamed through
// onRecordReady when it is non-nil and also returned as a batch; callers
// must tolerate seeing a record both ways. since, when set, asks for
// listings posted after that time.
type Connector interface {
	Fetch(ctx context.Context, query models.FetchQuery, since *time.Time, onRecordReady RecordHandler) ([]models.RawRecord, error)
}

// ConnectorFunc adapts a plain function to Connector.
type ConnectorFunc func(ctx context.Context, query models.FetchQuery, since *time.Time, onRecordReady RecordHandler) ([]models.RawRecord, error)

func (f ConnectorFunc) Fetch(ctx context.Context, query models.FetchQuery, since *time.Time, onRecordReady RecordHandler) ([]models.RawRecord, error) {
	return f(ctx, query, since, onRecordReady)
}

type Registry struct {
	mu         sync.RWMutex
	connectors map[string]Connector
}

func NewRegistry() *Registry {
	return &Registry{connectors: make(map[string]Connector)}
}

func (r *Registry) Register(code string, connector Connector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectors[code] = connector
}

// Get returns the connector for a source code, errs.ErrUnknownSource when
// none is registered.
func (r *Registry) Get(code string) (Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	connector, ok := r.connectors[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errs.ErrUnknownSource, code)
	}
	return connector, nil
}

func (r *Registry) Codes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	codes := make([]string, 0, len(r.connectors))
	for code := range r.connectors {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
