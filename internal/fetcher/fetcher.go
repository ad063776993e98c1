// Package fetcher retrieves a target number of items of one content type by
// issuing paginated chunk requests in bounded concurrent waves. A failed
// chunk is logged and skipped; the surviving chunks' items are still
// returned, never an all-or-nothing failure.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"librarium/contentservice/internal/breaker"
	"librarium/contentservice/internal/domain"
	"librarium/contentservice/internal/timeout"
	"librarium/contentservice/internal/transform"
	"librarium/contentservice/internal/upstream"
)

// Mode selects the deadline tier and chunk sizing for a fetch.
type Mode int

const (
	// ModePreview serves homepage-sized requests: small chunks, short deadline.
	ModePreview Mode = iota
	// ModeExhaustive serves exact-totals listing: large chunks, long deadline.
	ModeExhaustive
)

// ErrUpstreamUnavailable is returned when the circuit breaker is open and no
// network call was attempted. Callers go straight to the fallback provider.
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

type chunkProfile struct {
	chunkSize      int
	maxConcurrency int
}

// Per-type tuning. Videos paginate cheaply upstream so they take bigger
// chunks; articles come from the slowest backend and get the smallest.
var chunkProfiles = map[domain.ContentType]chunkProfile{
	domain.ContentTypeVideo:   {chunkSize: 50, maxConcurrency: 4},
	domain.ContentTypeBook:    {chunkSize: 40, maxConcurrency: 3},
	domain.ContentTypePodcast: {chunkSize: 30, maxConcurrency: 3},
	domain.ContentTypeArticle: {chunkSize: 20, maxConcurrency: 2},
}

var defaultProfile = chunkProfile{chunkSize: 25, maxConcurrency: 2}

const defaultInterWaveDelay = 150 * time.Millisecond

// Lister is the slice of the upstream client the fetcher needs.
type Lister interface {
	List(ctx context.Context, contentType domain.ContentType, page, limit int) (upstream.Envelope, error)
}

type Fetcher struct {
	upstream       Lister
	transformer    *transform.Transformer
	breaker        *breaker.Breaker
	timeouts       *timeout.Manager
	logger         *slog.Logger
	interWaveDelay time.Duration
	seq            atomic.Uint64
}

type Option func(*Fetcher)

func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

func WithInterWaveDelay(delay time.Duration) Option {
	return func(f *Fetcher) {
		if delay >= 0 {
			f.interWaveDelay = delay
		}
	}
}

func New(lister Lister, transformer *transform.Transformer, brk *breaker.Breaker, timeouts *timeout.Manager, opts ...Option) *Fetcher {
	f := &Fetcher{
		upstream:       lister,
		transformer:    transformer,
		breaker:        brk,
		timeouts:       timeouts,
		logger:         slog.Default(),
		interWaveDelay: defaultInterWaveDelay,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

type chunk struct {
	page  int
	limit int
}

// FetchN fetches up to target items of contentType. It stops issuing waves as
// soon as the accumulated count reaches the target. The returned slice may be
// shorter than target when chunks fail or the corpus runs out; that partial
// result is the contract, not an error.
func (f *Fetcher) FetchN(ctx context.Context, contentType domain.ContentType, target int, mode Mode) ([]domain.ContentItem, error) {
	if target <= 0 {
		return nil, nil
	}
	if f.breaker != nil && f.breaker.IsOpen() {
		return nil, ErrUpstreamUnavailable
	}

	profile, ok := chunkProfiles[contentType]
	if !ok {
		profile = defaultProfile
	}
	deadline := timeout.PageDeadline
	if mode == ModeExhaustive {
		deadline = timeout.AggregateDeadline
	}

	chunks := partition(target, profile.chunkSize)

	// Chunk ids are scoped to this fetch: concurrent fetches of the same
	// type must not supersede each other's chunks.
	fetchID := f.seq.Add(1)

	var (
		mu    sync.Mutex
		items []domain.ContentItem
	)

	for waveStart := 0; waveStart < len(chunks); waveStart += profile.maxConcurrency {
		if err := ctx.Err(); err != nil {
			return items, err
		}

		waveEnd := waveStart + profile.maxConcurrency
		if waveEnd > len(chunks) {
			waveEnd = len(chunks)
		}

		var wg sync.WaitGroup
		for _, ck := range chunks[waveStart:waveEnd] {
			wg.Add(1)
			go func(ck chunk) {
				defer wg.Done()

				operationID := fmt.Sprintf("fetch:%s:%d:chunk:%d", contentType, fetchID, ck.page)
				var envelope upstream.Envelope
				err := f.timeouts.Run(ctx, operationID, deadline, func(runCtx context.Context) error {
					var listErr error
					envelope, listErr = f.upstream.List(runCtx, contentType, ck.page, ck.limit)
					return listErr
				})
				if err != nil {
					if f.breaker != nil && !timeout.IsCancellation(err) {
						f.breaker.RecordFailure()
					}
					f.logger.Warn("chunk fetch failed",
						slog.String("type", string(contentType)),
						slog.Int("page", ck.page),
						slog.String("error", err.Error()),
					)
					return
				}
				if f.breaker != nil {
					f.breaker.RecordSuccess()
				}

				transformed := f.transformer.TransformAll(envelope.Conteudo, contentType)
				mu.Lock()
				items = append(items, transformed...)
				mu.Unlock()
			}(ck)
		}
		wg.Wait()

		mu.Lock()
		have := len(items)
		mu.Unlock()
		if have >= target {
			break
		}

		if waveEnd < len(chunks) && f.interWaveDelay > 0 {
			select {
			case <-ctx.Done():
				return items, ctx.Err()
			case <-time.After(f.interWaveDelay):
			}
		}
	}

	if len(items) > target {
		items = items[:target]
	}
	return items, nil
}

func partition(target, chunkSize int) []chunk {
	if chunkSize <= 0 {
		chunkSize = defaultProfile.chunkSize
	}
	chunks := make([]chunk, 0, (target+chunkSize-1)/chunkSize)
	page := 1
	for remaining := target; remaining > 0; remaining -= chunkSize {
		chunks = append(chunks, chunk{page: page, limit: chunkSize})
		page++
	}
	return chunks
}
