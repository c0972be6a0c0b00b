// Package batch resolves many addresses in parallel through a bounded
// worker pool.
//
// Example usage:
//
//	locator := batch.New(lookupLocator, batch.DefaultConfig())
//	items, err := locator.LocateAll(ctx, []string{"1.1.1.1", "8.8.8.8"})
//
// The batch locator:
//   - Rejects batches larger than MaxItems
//   - Spawns at most MaxConcurrency workers
//   - Returns one item per input address, in input order
//   - Reports per-address failures on the item instead of failing the batch
//
// Every address goes through the single-address locator, so duplicates
// inside one batch, and addresses that other requests are already looking
// up, share one upstream call.
package batch
