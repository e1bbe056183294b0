package conversation

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/greasemonkey-ai/voicecore/internal/metrics"
	conv "github.com/greasemonkey-ai/voicecore/internal/model/conversation"
)

// PageSize is the number of messages fetched per history page.
const PageSize = 10

// Remote is the durable conversation store collaborator. Implementations
// carry the authenticated user internally. Partition key semantics follow the
// message model: the empty key addresses the vehicle-less bucket.
type Remote interface {
	Query(ctx context.Context, vehicleID string, offset, limit int) (conv.Page, error)
	Insert(ctx context.Context, msg conv.Message) error
	DeletePartition(ctx context.Context, vehicleID string) error
	DeleteAll(ctx context.Context) error
}

// FetchError wraps a failed history fetch. The partition it targeted is left
// exactly as it was before the call.
type FetchError struct {
	Partition string
	Err       error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("history fetch for partition %q failed: %v", e.Partition, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// partition is the in-memory view of one vehicle's history.
type partition struct {
	messages []conv.Message
	ids      map[string]struct{}
	cursor   conv.Cursor
	loading  bool
}

// Store maintains per-vehicle paginated, deduplicated message lists. One
// fetch is in flight per partition at a time; results arriving for a
// partition that is no longer active are discarded rather than applied.
type Store struct {
	mu        sync.Mutex
	remote    Remote
	log       zerolog.Logger
	met       *metrics.Metrics
	pageSize  int
	parts     map[string]*partition
	active    string
	activeSet bool
}

// NewStore builds a store over the durable remote. A zero pageSize falls back
// to PageSize.
func NewStore(remote Remote, pageSize int, log zerolog.Logger, met *metrics.Metrics) *Store {
	if pageSize <= 0 {
		pageSize = PageSize
	}
	if met == nil {
		met = metrics.New(nil)
	}
	return &Store{
		remote:   remote,
		log:      log.With().Str("component", "conversation").Logger(),
		met:      met,
		pageSize: pageSize,
		parts:    make(map[string]*partition),
	}
}

func (s *Store) part(key string) *partition {
	p, ok := s.parts[key]
	if !ok {
		p = &partition{ids: make(map[string]struct{})}
		s.parts[key] = p
	}
	return p
}

// stale reports whether results for key should be dropped because the settled
// selection moved on while the fetch was in flight. Before any SetActive the
// store applies results for every partition, which standalone use relies on.
func (s *Store) stale(key string) bool {
	return s.activeSet && s.active != key
}

// SetActive records the settled partition. Only results matching it are
// applied from then on.
func (s *Store) SetActive(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = key
	s.activeSet = true
}

// Active returns the settled partition key and whether one was ever set.
func (s *Store) Active() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active, s.activeSet
}

// LoadInitial fetches the newest page for the partition, replacing its list
// and resetting its cursor. A call while another fetch for the same partition
// is in flight is a no-op.
func (s *Store) LoadInitial(ctx context.Context, key string) error {
	s.mu.Lock()
	p := s.part(key)
	if p.loading {
		s.mu.Unlock()
		return nil
	}
	p.loading = true
	p.cursor.IsLoading = true
	s.mu.Unlock()

	s.met.HistoryLoads.Inc()
	page, err := s.remote.Query(ctx, key, 0, s.pageSize)

	s.mu.Lock()
	defer s.mu.Unlock()
	p.loading = false
	p.cursor.IsLoading = false

	if s.stale(key) {
		s.met.StaleDiscards.Inc()
		s.log.Debug().Str("partition", key).Msg("discarding initial fetch for inactive partition")
		return nil
	}
	if err != nil {
		s.met.HistoryLoadErrors.Inc()
		return &FetchError{Partition: key, Err: err}
	}

	p.messages = p.messages[:0]
	p.ids = make(map[string]struct{}, len(page.Messages))
	for _, m := range page.Messages {
		if _, dup := p.ids[m.ID]; dup {
			continue
		}
		p.messages = append(p.messages, m)
		p.ids[m.ID] = struct{}{}
	}
	p.cursor = conv.Cursor{
		LoadedCount: len(p.messages),
		TotalCount:  page.TotalCount,
		HasMore:     len(p.messages) < page.TotalCount,
	}
	return nil
}

// LoadMore fetches the next page at offset = loadedCount and merges it in,
// dropping duplicate ids from retried or overlapping fetches. No-op while a
// fetch for the partition is in flight or when the cursor is exhausted.
func (s *Store) LoadMore(ctx context.Context, key string) error {
	s.mu.Lock()
	p := s.part(key)
	if p.loading || !p.cursor.HasMore {
		s.mu.Unlock()
		return nil
	}
	offset := p.cursor.LoadedCount
	p.loading = true
	p.cursor.IsLoading = true
	s.mu.Unlock()

	s.met.HistoryLoads.Inc()
	page, err := s.remote.Query(ctx, key, offset, s.pageSize)

	s.mu.Lock()
	defer s.mu.Unlock()
	p.loading = false
	p.cursor.IsLoading = false

	if s.stale(key) {
		s.met.StaleDiscards.Inc()
		s.log.Debug().Str("partition", key).Msg("discarding fetch for inactive partition")
		return nil
	}
	if err != nil {
		s.met.HistoryLoadErrors.Inc()
		return &FetchError{Partition: key, Err: err}
	}

	for _, m := range page.Messages {
		if _, dup := p.ids[m.ID]; dup {
			continue
		}
		p.messages = append(p.messages, m)
		p.ids[m.ID] = struct{}{}
	}
	p.cursor.LoadedCount = len(p.messages)
	p.cursor.TotalCount = page.TotalCount
	p.cursor.HasMore = p.cursor.LoadedCount < p.cursor.TotalCount
	return nil
}

// Append inserts a freshly answered message at the top of its partition. The
// message must already be durably persisted; id-based dedup makes the append
// safe against a concurrent fetch that pulled the same row.
func (s *Store) Append(msg conv.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.part(msg.VehicleID)
	if _, dup := p.ids[msg.ID]; dup {
		return
	}
	p.messages = append([]conv.Message{msg}, p.messages...)
	p.ids[msg.ID] = struct{}{}
	p.cursor.LoadedCount = len(p.messages)
	p.cursor.TotalCount++
	p.cursor.HasMore = p.cursor.LoadedCount < p.cursor.TotalCount
	s.met.MessagesAppended.Inc()
}

// Clear empties one partition and resets its cursor. Irreversible.
func (s *Store) Clear(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.parts, key)
}

// ClearAll empties every partition.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parts = make(map[string]*partition)
}

// Messages returns a copy of the partition contents, newest first.
func (s *Store) Messages(key string) []conv.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.parts[key]
	if !ok {
		return nil
	}
	out := make([]conv.Message, len(p.messages))
	copy(out, p.messages)
	return out
}

// Cursor returns the pagination state for one partition.
func (s *Store) Cursor(key string) conv.Cursor {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.parts[key]
	if !ok {
		return conv.Cursor{}
	}
	return p.cursor
}
