// Package pagination splits large batch fetches into chunks that are fetched
// in parallel and merged back into one response.
//
// The photo service limits how many photos a single batch request may cover.
// ChunkedGateway wraps a batch.Gateway and hides that limit from the editor:
//
//	chunked := pagination.NewChunkedGateway(gatewayClient, pagination.DefaultConfig())
//	editor, err := batch.New(batch.Config{Gateway: chunked, ...})
//
// The chunked fetch:
//   - Splits ids into chunks of Config.ChunkSize
//   - Fetches up to Config.MaxConcurrency chunks at a time
//   - Returns models chunk by chunk, in the order the ids were requested
//   - Combines per-chunk field aggregates into one aggregate per field
//   - Fails as a whole if any chunk fails (no partial results)
//
// Saves are passed through unchanged so that one save stays one request.
package pagination
