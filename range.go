package smarttree

import (
	"context"

	set3 "github.com/TomTonic/Set3"

	"github.com/dmemtree/smarttree/gaddr"
	"github.com/dmemtree/smarttree/key"
	"github.com/dmemtree/smarttree/node"
	"github.com/dmemtree/smarttree/telemetry"
	"github.com/dmemtree/smarttree/transport"
)

// rangeTask is one not-yet-resolved entry a range query still needs to
// fetch and classify. fromActive/toActive mark whether this subtree sits
// on the left/right BORDER of [from, toIncl] (still needs byte-by-byte
// comparison as deeper levels are read) or is already known INSIDE
// (neither active: every leaf beneath it is in range, no further
// comparison needed) — the recursive classification §4.7.9 describes.
type rangeTask struct {
	entry      node.InternalEntry
	fromActive bool
	toActive   bool
}

// RangeQuery implements §4.7.9: collect every (key, value) pair with
// from <= key < to. Unlike Search/Insert it does not use corort — a
// single goroutine drives synchronous, batched polling (the spec's
// "range query does not use coroutines").
func (t *Tree) RangeQuery(ctx context.Context, from, to key.Key) (map[key.Key]Value, error) {
	result := make(map[key.Key]Value)
	if !key.Less(from, to) {
		return result, nil
	}
	toIncl := key.Sub1(to)
	t.tel.Try(0, telemetry.OpRangeQuery)

	start, err := t.rangeStart(ctx, from, toIncl)
	if err != nil {
		return nil, err
	}
	if start.entry.IsNull() {
		return result, nil
	}

	frontier := []rangeTask{start}
	for len(frontier) > 0 {
		frontier, err = t.rangeStep(ctx, frontier, from, toIncl, result)
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

// rangeStart implements §4.7.9 step 1: find the entry at the
// longest-common-prefix depth between from and toIncl, consulting the
// cache before falling back to a root-anchored probe of the live tree.
func (t *Tree) rangeStart(ctx context.Context, from, toIncl key.Key) (rangeTask, error) {
	prefixDepth := key.LCP(from, toIncl, 0)

	if cached, ok := t.lookupFromCache(0, from); ok && cached.depth <= prefixDepth+1 {
		return rangeTask{entry: cached.entry, fromActive: true, toActive: true}, nil
	}

	entry, err := t.readEntry(ctx, t.rootAddr)
	if err != nil {
		return rangeTask{}, err
	}
	depth := 0
	for !entry.IsNull() && !entry.IsLeaf() && depth < prefixDepth {
		declaredNum := node.NodeTypeToNum(entry.NodeType(), t.cfg.scheme, t.cfg.EnableART)
		page, perr := t.readPage(ctx, entry.Addr(), declaredNum)
		if perr != nil {
			return rangeTask{}, perr
		}
		if page.Hdr.NodeType() == node.NodeDeleted || !page.Hdr.IsMatch(from) {
			break
		}
		newDepth := page.Hdr.Depth() + page.Hdr.PartialLen()
		b := key.Partial(from, newDepth+1)
		var next node.InternalEntry
		for i := 0; i < declaredNum; i++ {
			if c := page.Entries[i]; !c.IsNull() && c.Partial() == b {
				next = c
				break
			}
		}
		if next.IsNull() {
			return rangeTask{}, nil
		}
		entry = next
		depth = newDepth + 1
	}
	return rangeTask{entry: entry, fromActive: true, toActive: true}, nil
}

// rangeStep reads every entry named by frontier in as few round trips as
// Config.ReadOroMax allows, deduping repeated addresses (a node reachable
// through more than one still-open border shares one read), and returns
// the next frontier: leaves are resolved into result directly, nodes are
// classified into their surviving children.
func (t *Tree) rangeStep(ctx context.Context, frontier []rangeTask, from, toIncl key.Key, result map[key.Key]Value) ([]rangeTask, error) {
	seen := set3.Empty[gaddr.Addr]()
	var leafTasks, nodeTasks []rangeTask
	var leafAddrs, nodeAddrs []gaddr.Addr

	for _, task := range frontier {
		addr := task.entry.Addr()
		if seen.Contains(addr) {
			continue
		}
		seen.Add(addr)
		if task.entry.IsLeaf() {
			leafTasks = append(leafTasks, task)
			leafAddrs = append(leafAddrs, addr)
		} else {
			nodeTasks = append(nodeTasks, task)
			nodeAddrs = append(nodeAddrs, addr)
		}
	}

	if err := t.rangeReadLeaves(ctx, leafTasks, leafAddrs, from, toIncl, result); err != nil {
		return nil, err
	}
	return t.rangeReadNodes(ctx, nodeTasks, nodeAddrs, from, toIncl)
}

func (t *Tree) rangeReadLeaves(ctx context.Context, tasks []rangeTask, addrs []gaddr.Addr, from, toIncl key.Key, result map[key.Key]Value) error {
	batchCap := t.cfg.ReadOroMax
	for start := 0; start < len(tasks); start += batchCap {
		end := min(start+batchCap, len(tasks))
		ops := make([]transport.ReadOp, end-start)
		for i, addr := range addrs[start:end] {
			ops[i] = transport.ReadOp{Space: transport.SpaceMain, Addr: addr, Size: node.LeafSize}
		}
		bufs, err := t.transport.ReadBatch(ctx, ops)
		if err != nil {
			return err
		}
		for i, buf := range bufs {
			leaf := node.DecodeLeaf(buf)
			if !leaf.Valid || !leaf.IsConsistent() {
				// Best-effort snapshot: a torn or superseded leaf is simply
				// absent from this result rather than retried.
				continue
			}
			task := tasks[start+i]
			if task.fromActive && key.Less(leaf.Key, from) {
				continue
			}
			if task.toActive && key.Less(toIncl, leaf.Key) {
				continue
			}
			result[leaf.Key] = leaf.Value
		}
	}
	return nil
}

func (t *Tree) rangeReadNodes(ctx context.Context, tasks []rangeTask, addrs []gaddr.Addr, from, toIncl key.Key) ([]rangeTask, error) {
	var next []rangeTask
	batchCap := t.cfg.ReadOroMax
	for start := 0; start < len(tasks); start += batchCap {
		end := min(start+batchCap, len(tasks))
		ops := make([]transport.ReadOp, end-start)
		for i, task := range tasks[start:end] {
			declared := node.NodeTypeToNum(task.entry.NodeType(), t.cfg.scheme, t.cfg.EnableART)
			size := node.RevPtrSize + node.HeaderSize + declared*node.EntrySize
			ops[i] = transport.ReadOp{Space: transport.SpaceMain, Addr: addrs[start+i], Size: size}
		}
		bufs, err := t.transport.ReadBatch(ctx, ops)
		if err != nil {
			return nil, err
		}
		for i, buf := range bufs {
			page := node.DecodeInternalPage(buf)
			next = append(next, t.classifyNode(page, tasks[start+i], from, toIncl)...)
		}
	}
	return next, nil
}

// classifyNode implements §4.7.9 step 3: narrow fromActive/toActive
// across page's own compressed header bytes, dropping the subtree
// entirely if it falls wholly before from or after toIncl, then scans
// surviving child slots the same way.
func (t *Tree) classifyNode(page *node.InternalPage, task rangeTask, from, toIncl key.Key) []rangeTask {
	if page.Hdr.NodeType() == node.NodeDeleted {
		return nil
	}

	fromActive, toActive := task.fromActive, task.toActive
	d := page.Hdr.Depth()
	for i := 0; i < page.Hdr.PartialLen() && (fromActive || toActive); i++ {
		b := page.Hdr.Partial(i)
		pos := d + i + 1
		if fromActive {
			fb := key.Partial(from, pos)
			if b < fb {
				return nil
			}
			fromActive = b == fb
		}
		if toActive {
			tb := key.Partial(toIncl, pos)
			if b > tb {
				return nil
			}
			toActive = b == tb
		}
	}

	newDepth := d + page.Hdr.PartialLen()
	declaredNum := node.NodeTypeToNum(page.Hdr.NodeType(), t.cfg.scheme, t.cfg.EnableART)
	var next []rangeTask
	for i := 0; i < declaredNum; i++ {
		e := page.Entries[i]
		if e.IsNull() {
			continue
		}
		b := e.Partial()
		childFrom, childTo := fromActive, toActive
		if childFrom {
			fb := key.Partial(from, newDepth+1)
			if b < fb {
				continue
			}
			childFrom = b == fb
		}
		if childTo {
			tb := key.Partial(toIncl, newDepth+1)
			if b > tb {
				continue
			}
			childTo = b == tb
		}
		next = append(next, rangeTask{entry: e, fromActive: childFrom, toActive: childTo})
	}
	return next
}
