// Spillbench drives the whole receive pipeline end to end: it generates
// random records, feeds them to a partition in network-sized buffers, then
// reads the final sorted iterator back, reporting throughput per phase.
//
// Usage:
//
//	go run ./cmd/spillbench -records 5000000 -capacity 64MiB -workers 4
//
// Flags:
//
//	-records   Number of records to receive (default: 1,000,000)
//	-key       Key size in bytes (default: 16)
//	-value     Value size in bytes (default: 64)
//	-buffer    Records per received buffer (default: 1024)
//	-capacity  Buffer collection byte budget before spilling (default: 32MiB)
//	-workers   Sort worker count (default: GOMAXPROCS)
//	-dir       Spill directory (default: a temp dir, removed afterwards)
package main

import (
	"context"
	"flag"
	"fmt"
	mrand "math/rand/v2"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/graphtide/shuffle"
	"github.com/graphtide/shuffle/extsort"
)

func main() {
	recordsFlag := flag.Int("records", 1_000_000, "number of records")
	keyFlag := flag.Int("key", 16, "key size in bytes")
	valueFlag := flag.Int("value", 64, "value size in bytes")
	bufferFlag := flag.Int("buffer", 1024, "records per received buffer")
	capacityFlag := flag.Int64("capacity", 32<<20, "buffer collection byte budget")
	workersFlag := flag.Int("workers", 0, "sort workers (0 = GOMAXPROCS)")
	dirFlag := flag.String("dir", "", "spill directory (default: temp dir)")
	flag.Parse()

	if err := run(*recordsFlag, *keyFlag, *valueFlag, *bufferFlag, *capacityFlag, *workersFlag, *dirFlag); err != nil {
		fmt.Fprintln(os.Stderr, "spillbench:", err)
		os.Exit(1)
	}
}

func run(records, keySize, valueSize, perBuffer int, capacity int64, workers int, dir string) error {
	if dir == "" {
		tmp, err := os.MkdirTemp("", "spillbench-*")
		if err != nil {
			return err
		}
		defer os.RemoveAll(tmp)
		dir = tmp
	}

	log, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer log.Sync()

	paths, err := shuffle.NewSpillPaths([]string{dir}, "bench", 0, 0)
	if err != nil {
		return err
	}
	engine := extsort.NewEngine(workers, extsort.WithLogger(log.Sugar()))
	defer engine.Close()

	p := shuffle.NewPartition(context.Background(), shuffle.BytesStrategy("message"), engine, paths,
		shuffle.WithBufferCapacity(capacity),
		shuffle.WithLogger(log.Sugar()),
	)

	rng := mrand.New(mrand.NewPCG(1, 2))
	key := make([]byte, keySize)
	value := make([]byte, valueSize)

	receiveStart := time.Now()
	var buf shuffle.Buffer
	for i := 0; i < records; i++ {
		fill(rng, key)
		fill(rng, value)
		buf = extsort.AppendEntry(buf, key, value)
		if (i+1)%perBuffer == 0 || i == records-1 {
			if err := p.AddBuffer(buf); err != nil {
				return err
			}
			buf = nil
		}
	}
	receiveDur := time.Since(receiveStart)

	finalizeStart := time.Now()
	it, err := p.Iterator()
	if err != nil {
		return err
	}
	defer it.Close()
	finalizeDur := time.Since(finalizeStart)

	readStart := time.Now()
	var got int
	for it.Next() {
		got++
	}
	if err := it.Err(); err != nil {
		return err
	}
	readDur := time.Since(readStart)

	total := p.TotalBytes()
	fmt.Printf("received  %s records, %s in %s (%s/s)\n",
		humanize.Comma(int64(records)), humanize.IBytes(uint64(total)), receiveDur.Round(time.Millisecond),
		humanize.IBytes(uint64(float64(total)/receiveDur.Seconds())))
	fmt.Printf("finalized in %s (flush remainder, wait sorts, consolidate)\n", finalizeDur.Round(time.Millisecond))
	fmt.Printf("read back %s sorted entries in %s (%s/s)\n",
		humanize.Comma(int64(got)), readDur.Round(time.Millisecond),
		humanize.IBytes(uint64(float64(total)/readDur.Seconds())))
	return nil
}

func fill(rng *mrand.Rand, b []byte) {
	for i := range b {
		b[i] = byte(rng.Uint32())
	}
}
