package edgesync

import (
	"context"
	"sync"
	"time"

	"github.com/edgesync/backend/internal/domain/edge"
	"github.com/edgesync/backend/internal/domain/shared"
	"github.com/google/uuid"
)

type repoKey struct {
	tenantID uuid.UUID
	id       uuid.UUID
}

// memRepo is an in-memory authoritative store for one record type
type memRepo[T any] struct {
	mu        sync.Mutex
	records   map[repoKey]T
	keyOf     func(*T) repoKey
	saveDelay time.Duration
	saveErr   error
	findErr   error

	creates int
	saves   int
	deletes int
	finds   int
	notify  []bool
}

func newMemRepo[T any](keyOf func(*T) repoKey) *memRepo[T] {
	return &memRepo[T]{records: make(map[repoKey]T), keyOf: keyOf}
}

func (r *memRepo[T]) FindByID(_ context.Context, tenantID, id uuid.UUID) (*T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finds++
	if r.findErr != nil {
		return nil, r.findErr
	}
	rec, ok := r.records[repoKey{tenantID, id}]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &rec, nil
}

func (r *memRepo[T]) Save(_ context.Context, rec *T, notify bool) (*T, error) {
	if r.saveDelay > 0 {
		time.Sleep(r.saveDelay)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return nil, r.saveErr
	}
	k := r.keyOf(rec)
	if _, ok := r.records[k]; !ok {
		r.creates++
	}
	r.saves++
	r.notify = append(r.notify, notify)
	r.records[k] = *rec
	out := *rec
	return &out, nil
}

func (r *memRepo[T]) Delete(_ context.Context, tenantID, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletes++
	delete(r.records, repoKey{tenantID, id})
	return nil
}

func (r *memRepo[T]) get(tenantID, id uuid.UUID) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[repoKey{tenantID, id}]
	return rec, ok
}

func (r *memRepo[T]) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

func (r *memRepo[T]) stats() (creates, saves, deletes, finds int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.creates, r.saves, r.deletes, r.finds
}

func newAssetRepo() *memRepo[edge.Asset] {
	return newMemRepo(func(a *edge.Asset) repoKey { return repoKey{a.TenantID, a.ID} })
}

func newCustomerRepo() *memRepo[edge.Customer] {
	return newMemRepo(func(c *edge.Customer) repoKey { return repoKey{c.TenantID, c.ID} })
}

func newEntityViewRepo() *memRepo[edge.EntityView] {
	return newMemRepo(func(v *edge.EntityView) repoKey { return repoKey{v.TenantID, v.ID} })
}

type memUserRepo struct {
	*memRepo[edge.User]
	credsMu  sync.Mutex
	creds    map[uuid.UUID]edge.UserCredentials
	credsErr error
}

func newUserRepo() *memUserRepo {
	return &memUserRepo{
		memRepo: newMemRepo(func(u *edge.User) repoKey { return repoKey{u.TenantID, u.ID} }),
		creds:   make(map[uuid.UUID]edge.UserCredentials),
	}
}

func (r *memUserRepo) FindCredentialsByUserID(_ context.Context, _, userID uuid.UUID) (*edge.UserCredentials, error) {
	r.credsMu.Lock()
	defer r.credsMu.Unlock()
	c, ok := r.creds[userID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &c, nil
}

func (r *memUserRepo) SaveCredentials(_ context.Context, _ uuid.UUID, creds *edge.UserCredentials) (*edge.UserCredentials, error) {
	r.credsMu.Lock()
	defer r.credsMu.Unlock()
	if r.credsErr != nil {
		return nil, r.credsErr
	}
	r.creds[creds.UserID] = *creds
	out := *creds
	return &out, nil
}

// SaveWithCredentials stores nothing when either write would fail
func (r *memUserRepo) SaveWithCredentials(ctx context.Context, user *edge.User, creds *edge.UserCredentials, notify bool) (*edge.User, error) {
	r.credsMu.Lock()
	defer r.credsMu.Unlock()
	if r.credsErr != nil {
		return nil, r.credsErr
	}
	saved, err := r.memRepo.Save(ctx, user, notify)
	if err != nil {
		return nil, err
	}
	r.creds[creds.UserID] = *creds
	return saved, nil
}

func (r *memUserRepo) credentials(userID uuid.UUID) (edge.UserCredentials, bool) {
	r.credsMu.Lock()
	defer r.credsMu.Unlock()
	c, ok := r.creds[userID]
	return c, ok
}

// recordingEmitter keeps every emitted request in order
type recordingEmitter struct {
	mu     sync.Mutex
	nextID int32
	sent   []edge.RequestDescriptor
	err    error
}

func (e *recordingEmitter) Emit(_ context.Context, tenantID uuid.UUID, req edge.RequestDescriptor) (*edge.UplinkMsg, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	e.nextID++
	e.sent = append(e.sent, req)
	return &edge.UplinkMsg{UplinkMsgID: e.nextID, TenantID: tenantID, Request: req}, nil
}

func (e *recordingEmitter) requests() []edge.RequestDescriptor {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]edge.RequestDescriptor(nil), e.sent...)
}

func (e *recordingEmitter) types() []edge.RequestType {
	var out []edge.RequestType
	for _, r := range e.requests() {
		out = append(out, r.Type)
	}
	return out
}

// memOutbox records saved entries. Only Save is used by the emitter.
type memOutbox struct {
	shared.OutboxRepository
	mu      sync.Mutex
	entries []*shared.OutboxEntry
	saveErr error
}

func (o *memOutbox) Save(_ context.Context, entries ...*shared.OutboxEntry) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.saveErr != nil {
		return o.saveErr
	}
	o.entries = append(o.entries, entries...)
	return nil
}

func (o *memOutbox) all() []*shared.OutboxEntry {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*shared.OutboxEntry(nil), o.entries...)
}

var (
	_ edge.AssetRepository      = (*memRepo[edge.Asset])(nil)
	_ edge.CustomerRepository   = (*memRepo[edge.Customer])(nil)
	_ edge.EntityViewRepository = (*memRepo[edge.EntityView])(nil)
	_ edge.UserRepository       = (*memUserRepo)(nil)
	_ RequestEmitter            = (*recordingEmitter)(nil)
	_ shared.OutboxRepository   = (*memOutbox)(nil)
)
