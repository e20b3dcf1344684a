package locktable

import (
	"github.com/dmemtree/smarttree/key"
	"github.com/dmemtree/smarttree/node"
)

// AcquireCASLock implements CAS handover: like AcquireLock, but keyed by
// the application key rather than a remote address, since a CAS target
// (an InternalEntry slot) can shift addresses across a node-type grow —
// the key is the one thing that stays stable across such a rewrite.
func (t *Table) AcquireCASLock(k key.Key) AddrTicket {
	n := &t.slots[t.indexKey(k)]

	myTicket := n.writeTicket.Add(1) - 1
	waitForTicket(n, &n.writeCurrent, myTicket)

	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.writeHandover {
		kk := k
		n.uniqueWriteKey = &kk
	}
	handedOver := n.writeHandover && n.uniqueWriteKey != nil && *n.uniqueWriteKey == k
	return AddrTicket{handedOver: handedOver}
}

// ReleaseCASLock completes a CAS-handover epoch. res/retEntry carry the
// outcome of the caller's own CAS when it was the epoch winner
// (AcquireCASLock's handedOver==false); a handed-over caller instead
// receives the winner's published outcome.
func (t *Table) ReleaseCASLock(k key.Key, res *bool, retEntry *node.InternalEntry) {
	n := &t.slots[t.indexKey(k)]

	n.mu.Lock()
	if n.uniqueWriteKey != nil && *n.uniqueWriteKey == k {
		if !n.writeHandover {
			n.res = *res
			n.retEntry = *retEntry
		} else {
			*res = n.res
			*retEntry = n.retEntry
		}
	}

	ticket := n.writeTicket.Load()
	current := n.writeCurrent.Load()

	n.writeHandover = ticket != current+1
	n.handoverCnt++
	if n.handoverCnt > MaxHOCLHandover {
		n.writeHandover = false
	}
	if !n.writeHandover {
		n.handoverCnt = 0
	}
	n.mu.Unlock()

	advanceAndBroadcast(n, &n.writeCurrent)
}
