// Command smarttree-demo drives a Tree against an in-process
// transport.Loopback, standing in for a real RDMA-backed memory-node
// cluster. It exists to exercise the library end to end without a real
// disaggregated-memory fabric, the same role transport.Loopback plays in
// the package's own tests.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/dmemtree/smarttree"
	"github.com/dmemtree/smarttree/key"
	"github.com/dmemtree/smarttree/transport"
)

func main() {
	numNodes := flag.Int("nodes", 1, "number of simulated memory nodes")
	numKeys := flag.Int("keys", 1000, "number of keys to insert")
	rangeFrom := flag.Uint64("range-from", 0, "RangeQuery lower bound (inclusive)")
	rangeTo := flag.Uint64("range-to", 10, "RangeQuery upper bound (exclusive)")
	flag.Parse()

	ctx := context.Background()
	lb := transport.NewLoopback(*numNodes, 64*1024*1024)

	cfg := smarttree.DefaultConfig()
	cfg.MemoryNodeNum = uint16(*numNodes)

	tree, err := smarttree.NewTree(ctx, lb, lb, 0, cfg)
	if err != nil {
		log.Fatalf("NewTree: %v", err)
	}
	defer tree.Close()

	for i := 0; i < *numKeys; i++ {
		k := key.FromUint64(uint64(i))
		var v smarttree.Value
		v[0] = byte(i)
		if err := tree.Insert(ctx, k, v); err != nil {
			log.Fatalf("Insert(%d): %v", i, err)
		}
	}

	found := 0
	for i := 0; i < *numKeys; i++ {
		if _, ok, err := tree.Search(ctx, key.FromUint64(uint64(i))); err != nil {
			log.Fatalf("Search(%d): %v", i, err)
		} else if ok {
			found++
		}
	}
	fmt.Printf("inserted %d keys, found %d on lookup\n", *numKeys, found)

	results, err := tree.RangeQuery(ctx, key.FromUint64(*rangeFrom), key.FromUint64(*rangeTo))
	if err != nil {
		log.Fatalf("RangeQuery: %v", err)
	}
	fmt.Printf("RangeQuery [%d,%d) returned %d keys\n", *rangeFrom, *rangeTo, len(results))

	stats := tree.Statistics()
	var retries uint64
	for _, n := range stats.RetryCnt {
		retries += n
	}
	fmt.Printf("cache hit=%d miss=%d, retries=%d\n", stats.CacheHit, stats.CacheMiss, retries)
}
