package pagination

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/Sternrassler/photo-batch-client/pkg/albums"
	"github.com/Sternrassler/photo-batch-client/pkg/batch"
)

// Config holds chunked fetch configuration
type Config struct {
	// ChunkSize is the maximum number of ids per fetch request
	ChunkSize int
	// MaxConcurrency is the maximum number of parallel chunk requests
	MaxConcurrency int
	// Timeout per chunk fetch
	Timeout time.Duration
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		ChunkSize:      500,
		MaxConcurrency: 4,
		Timeout:        30 * time.Second,
	}
}

// ChunkedGateway fetches large batches in parallel chunks
type ChunkedGateway struct {
	next   batch.Gateway
	config Config
	logger zerolog.Logger
}

// NewChunkedGateway wraps next with chunked fetching
func NewChunkedGateway(next batch.Gateway, config Config) *ChunkedGateway {
	if config.ChunkSize <= 0 {
		config.ChunkSize = 500
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	return &ChunkedGateway{
		next:   next,
		config: config,
		logger: log.With().Str("component", "chunked-gateway").Logger(),
	}
}

// FetchBatch fetches ids in chunks and merges the results
func (g *ChunkedGateway) FetchBatch(ctx context.Context, ids []string) (*batch.Response, error) {
	chunks := split(ids, g.config.ChunkSize)
	if len(chunks) <= 1 {
		return g.next.FetchBatch(ctx, ids)
	}

	start := time.Now()
	g.logger.Debug().
		Int("photos", len(ids)).
		Int("chunks", len(chunks)).
		Msg("Starting chunked fetch")

	results := make([]*batch.Response, len(chunks))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(g.config.MaxConcurrency)

	for i, chunk := range chunks {
		group.Go(func() error {
			chunkCtx, cancel := context.WithTimeout(groupCtx, g.config.Timeout)
			defer cancel()

			resp, err := g.next.FetchBatch(chunkCtx, chunk)
			if err != nil {
				g.logger.Warn().
					Err(err).
					Int("chunk", i).
					Int("size", len(chunk)).
					Msg("Chunk fetch failed")
				return fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
			}
			if resp == nil {
				resp = &batch.Response{}
			}
			results[i] = resp
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	merged := mergeResponses(results)

	g.logger.Debug().
		Int("photos", len(ids)).
		Int("models", len(merged.Models)).
		Int("chunks", len(chunks)).
		Dur("duration", time.Since(start)).
		Msg("Chunked fetch complete")

	return merged, nil
}

// SaveBatch forwards to the wrapped gateway unchunked
func (g *ChunkedGateway) SaveBatch(ctx context.Context, ids []string, values batch.Values) (*batch.Response, error) {
	return g.next.SaveBatch(ctx, ids, values)
}

func split(ids []string, size int) [][]string {
	var chunks [][]string
	for len(ids) > size {
		chunks = append(chunks, ids[:size:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		chunks = append(chunks, ids)
	}
	return chunks
}

// mergeResponses concatenates models in chunk order and combines aggregates.
func mergeResponses(results []*batch.Response) *batch.Response {
	merged := &batch.Response{Values: batch.Values{}}
	seen := make(map[batch.FieldName]bool)

	for _, r := range results {
		merged.Models = append(merged.Models, r.Models...)

		for name, agg := range r.Values {
			if !seen[name] {
				seen[name] = true
				merged.Values[name] = agg
				continue
			}
			merged.Values[name] = combine(merged.Values[name], agg)
		}
	}

	// A field missing from some chunk cannot be shared by the whole batch.
	for name, agg := range merged.Values {
		for _, r := range results {
			if _, ok := r.Values[name]; !ok {
				agg.Mixed = true
				agg.Value = nil
				merged.Values[name] = agg
				break
			}
		}
	}

	return merged
}

// combine merges the aggregates of two disjoint chunks of the same field.
func combine(a, b batch.FieldAggregate) batch.FieldAggregate {
	out := a
	if a.Mixed || b.Mixed || !(batch.FieldAggregate{Value: a.Value}).Equal(batch.FieldAggregate{Value: b.Value}) {
		out.Mixed = true
		out.Value = nil
	}

	if len(b.Items) > 0 {
		items := append(albums.Candidates(nil), a.Items...)
		for _, item := range b.Items {
			if !contains(items, item) {
				items = append(items, item)
			}
		}
		out.Items = items
	}

	if out.Action == "" {
		out.Action = b.Action
	}
	return out
}

func contains(items albums.Candidates, c albums.Candidate) bool {
	for _, item := range items {
		if item == c {
			return true
		}
	}
	return false
}
