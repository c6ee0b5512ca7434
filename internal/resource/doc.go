// Package resource implements per-worker memory and I/O budgets.
//
// Building a range index allocates a histogram of node_count entries and a
// scratch array of edge_count entries; loading edges allocates two more
// arrays of edge_count entries. A Controller lets a worker reserve that
// memory up front and fail fast when the budget is too small, instead of
// being killed halfway through a collective write.
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes:   2 << 30,
//	    IOLimitBytesPerSec: 200 << 20,
//	})
//
//	release, err := rc.Reserve(bytes) // non-blocking
//	if err != nil { ... }             // ErrMemoryLimitExceeded
//	defer release()
//
//	if err := rc.AcquireIO(ctx, len(buf)); err != nil { ... }
//
// All methods handle a nil Controller gracefully; they become no-ops.
package resource
