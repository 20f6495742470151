// Package repository is the single point of data access. Reads go through a
// memory tier, then a persisted key-value tier, then the remote API; writes
// go to the remote API and invalidate the tiers.
package repository

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"cambista/internal/api"
	"cambista/internal/cache"
	"cambista/internal/core"
	applog "cambista/internal/log"
	"cambista/internal/storage"
)

// Persisted keys.
const (
	KeyClients      = "cached_clients"
	KeyTransactions = "cached_transactions"
	KeyUser         = "current_user"
	KeyToken        = "auth_token"
)

// Memory tier and in-flight keys.
const (
	memClients      = "clients"
	memTransactions = "transactions"
)

const defaultPublishTimeout = 5 * time.Second

// Remote is the subset of the API client the repository needs.
type Remote interface {
	Login(ctx context.Context, email, password string) (api.LoginResult, error)
	ListClients(ctx context.Context) ([]core.Client, error)
	SaveClient(ctx context.Context, in core.ClientInput) (int, error)
	EditClient(ctx context.Context, id int, in core.ClientInput) error
	DeleteClient(ctx context.Context, id int) error
	ListTransactions(ctx context.Context) ([]core.Transaction, error)
	SaveTransaction(ctx context.Context, in core.TransactionInput) (int64, error)
	MonthlySummary(ctx context.Context, p core.Period) (core.MonthlySummary, error)
	Chat(ctx context.Context, message string) (string, error)
}

// Publisher announces successful mutations. Delivery is best-effort.
type Publisher interface {
	PublishMutation(ctx context.Context, entity, action string, id int64, date string) error
}

// Repository is safe for concurrent use.
type Repository struct {
	remote    Remote
	store     storage.Store
	publisher Publisher
	logger    *slog.Logger

	clients      *cache.LRUCache[[]core.Client]
	transactions *cache.LRUCache[[]core.Transaction]

	persistTransactions bool
	publishTimeout      time.Duration

	group singleflight.Group
	// generation is bumped on every invalidation so a fetch that started
	// before it does not write its stale result back.
	generation atomic.Uint64
}

type options struct {
	persistTransactions bool
	memoryTTL           time.Duration
	publisher           Publisher
	logger              *slog.Logger
	publishTimeout      time.Duration
}

// Option configures a Repository.
type Option func(*options)

// WithPersistTransactions stores the transaction list in the persisted tier
// as well as in memory.
func WithPersistTransactions(enabled bool) Option {
	return func(o *options) { o.persistTransactions = enabled }
}

// WithMemoryTTL expires memory tier entries after ttl. Zero keeps them until
// invalidated.
func WithMemoryTTL(ttl time.Duration) Option {
	return func(o *options) { o.memoryTTL = ttl }
}

// WithPublisher sends a mutation event after every successful write.
func WithPublisher(p Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// WithLogger sets the repository logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithPublishTimeout bounds how long a mutation waits on its event.
func WithPublishTimeout(d time.Duration) Option {
	return func(o *options) { o.publishTimeout = d }
}

func New(remote Remote, store storage.Store, opts ...Option) *Repository {
	o := options{publishTimeout: defaultPublishTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default().With(applog.FieldComponent, applog.ComponentRepository)
	}
	if o.publishTimeout <= 0 {
		o.publishTimeout = defaultPublishTimeout
	}
	return &Repository{
		remote:              remote,
		store:               store,
		publisher:           o.publisher,
		logger:              o.logger,
		clients:             cache.NewLRUCache[[]core.Client](1, o.memoryTTL),
		transactions:        cache.NewLRUCache[[]core.Transaction](1, o.memoryTTL),
		persistTransactions: o.persistTransactions,
		publishTimeout:      o.publishTimeout,
	}
}

// Cleaners exposes the memory tier to a cache.Manager for TTL sweeps.
func (r *Repository) Cleaners() []cache.Cleaner {
	return []cache.Cleaner{r.clients, r.transactions}
}

// collection describes one cached list.
type collection[T any] struct {
	name     string
	storeKey string // empty: memory only
	mem      *cache.LRUCache[[]T]
	list     func(ctx context.Context) ([]T, error)
}

// FetchClients returns the client roster. Without force it is served from
// memory or the persisted tier when either holds a copy; otherwise, and
// always with force, it comes from the network and is written through.
func (r *Repository) FetchClients(ctx context.Context, force bool) ([]core.Client, error) {
	return fetch(ctx, r, collection[core.Client]{
		name:     memClients,
		storeKey: KeyClients,
		mem:      r.clients,
		list:     r.remote.ListClients,
	}, force)
}

// FetchTransactions follows the FetchClients policy. The persisted tier is
// used only when WithPersistTransactions is set.
func (r *Repository) FetchTransactions(ctx context.Context, force bool) ([]core.Transaction, error) {
	c := collection[core.Transaction]{
		name: memTransactions,
		mem:  r.transactions,
		list: r.remote.ListTransactions,
	}
	if r.persistTransactions {
		c.storeKey = KeyTransactions
	}
	return fetch(ctx, r, c, force)
}

func fetch[T any](ctx context.Context, r *Repository, c collection[T], force bool) ([]T, error) {
	if !force {
		if items, ok := c.mem.Get(c.name); ok {
			r.logger.DebugContext(ctx, "Collection served", applog.FieldKey, c.name, applog.FieldSource, applog.SourceMemory)
			return slices.Clone(items), nil
		}
		if c.storeKey != "" {
			if items, ok := loadPersisted[[]T](ctx, r, c.storeKey); ok {
				if items == nil {
					items = []T{}
				}
				c.mem.Set(c.name, items)
				r.logger.DebugContext(ctx, "Collection served", applog.FieldKey, c.name, applog.FieldSource, applog.SourcePersisted)
				return slices.Clone(items), nil
			}
		}
	}

	key := c.name
	if force {
		key += "/force"
	}
	gen := r.generation.Load()
	v, err, shared := r.group.Do(key, func() (any, error) {
		if !force {
			// Another flight may have filled memory since the check above.
			if items, ok := c.mem.Get(c.name); ok {
				return items, nil
			}
		}
		items, err := c.list(ctx)
		if err != nil {
			return nil, err
		}
		if items == nil {
			items = []T{}
		}
		if r.generation.Load() == gen {
			c.mem.Set(c.name, items)
			if c.storeKey != "" {
				r.savePersisted(ctx, c.storeKey, items)
			}
		}
		return items, nil
	})
	if err != nil {
		r.logger.WarnContext(ctx, "Collection fetch failed", applog.FieldKey, c.name, applog.FieldError, err)
		return nil, err
	}

	items := v.([]T)
	r.logger.DebugContext(ctx, "Collection served",
		applog.FieldKey, c.name,
		applog.FieldSource, applog.SourceNetwork,
		applog.FieldForce, force,
		applog.FieldCount, len(items),
		"shared", shared)
	return slices.Clone(items), nil
}

// loadPersisted decodes key from the store. A read failure is a miss; a
// corrupt blob is deleted and is a miss too.
func loadPersisted[T any](ctx context.Context, r *Repository, key string) (T, bool) {
	var zero T
	raw, ok, err := r.store.Get(ctx, key)
	if err != nil {
		r.logger.WarnContext(ctx, "Persisted read failed", applog.FieldKey, key, applog.FieldError, err)
		return zero, false
	}
	if !ok {
		return zero, false
	}

	var out T
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		r.logger.WarnContext(ctx, "Dropping corrupt persisted entry", applog.FieldKey, key, applog.FieldError, err)
		if err := r.store.Delete(ctx, key); err != nil {
			r.logger.WarnContext(ctx, "Persisted delete failed", applog.FieldKey, key, applog.FieldError, err)
		}
		return zero, false
	}
	return out, true
}

func (r *Repository) savePersisted(ctx context.Context, key string, v any) {
	buf, err := json.Marshal(v)
	if err != nil {
		r.logger.WarnContext(ctx, "Persisted encode failed", applog.FieldKey, key, applog.FieldError, err)
		return
	}
	if err := r.store.Set(ctx, key, string(buf)); err != nil {
		r.logger.WarnContext(ctx, "Persisted write failed", applog.FieldKey, key, applog.FieldError, err)
	}
}

// InvalidateGlobalCache drops the memory tier. Persisted copies stay so the
// next read can still paint immediately.
func (r *Repository) InvalidateGlobalCache() {
	r.generation.Add(1)
	for _, key := range []string{memClients, memTransactions} {
		r.group.Forget(key)
		r.group.Forget(key + "/force")
	}
	r.clients.Clear()
	r.transactions.Clear()
}

// MonthlySummary asks the server for its cash balance of p. Never cached.
func (r *Repository) MonthlySummary(ctx context.Context, p core.Period) (core.MonthlySummary, error) {
	if err := p.Validate(); err != nil {
		return core.MonthlySummary{}, err
	}
	return r.remote.MonthlySummary(ctx, p)
}

// Chat forwards one message to the assistant agent.
func (r *Repository) Chat(ctx context.Context, message string) (string, error) {
	return r.remote.Chat(ctx, message)
}
