// Package shuffle implements the receive side of a superstep-synchronous
// graph computation: per-partition accumulation of serialized records in
// memory up to a byte budget, spilling to sorted on-disk files when the
// budget is exceeded, overlapping further receiving with asynchronous disk
// sorting, and finally consolidating the spill files into one globally
// sorted, peekable sequence of key-value entries.
//
// # Basic Usage
//
// Receiving into a partition and reading it back:
//
//	paths, err := shuffle.NewSpillPaths([]string{dir}, "job-1", superstep, partitionID)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	engine := extsort.NewEngine(4)
//	defer engine.Close()
//
//	p := shuffle.NewPartition(ctx, shuffle.BytesStrategy("message"), engine, paths,
//	    shuffle.WithBufferCapacity(64<<20))
//	for buf := range received {
//	    if err := p.AddBuffer(buf); err != nil {
//	        log.Fatal(err)
//	    }
//	}
//	it, err := p.Iterator()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer it.Close()
//	for it.Next() {
//	    entry := it.Entry()
//	    // consume entry.Key / entry.Value
//	}
//
// # Package Structure
//
//   - Core protocol: partition.go (Partition, AddBuffer, Iterator), buffers.go (Buffers)
//   - Collaborator contracts: sorter.go (Sorter, Strategy), paths.go (PathAllocator), iterator.go
//   - Configuration: options.go (Option, With* functions)
//   - Record routing: router.go (Router)
//   - Default sorting engine: extsort/ (worker pool, k-way merge)
//   - Spill file format: internal/kvfile/ (writer, mmap reader, checksums)
package shuffle
