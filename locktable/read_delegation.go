package locktable

import "github.com/dmemtree/smarttree/key"

// AcquireReadLock implements read delegation: concurrent readers of the
// same key queue behind whichever goroutine is first into the slot's
// current read epoch. Only that goroutine (Handover()==false) performs
// the actual remote read; every other goroutine queued behind it within
// the same epoch adopts its result via ReleaseReadLock instead of issuing
// its own RDMA read.
func (t *Table) AcquireReadLock(k key.Key) Ticket {
	n := &t.slots[t.indexKey(k)]

	n.mu.Lock()
	if n.uniqueReadKey == nil {
		kk := k
		n.uniqueReadKey = &kk
	} else if *n.uniqueReadKey != k {
		n.mu.Unlock()
		return Ticket{conflict: true}
	}
	n.mu.Unlock()

	myTicket := n.readTicket.Add(1) - 1
	waitForTicket(n, &n.readCurrent, myTicket)

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.uniqueReadKey == nil || *n.uniqueReadKey != k {
		if n.readWindow > 0 {
			n.readWindow--
			if n.readWindow == 0 && n.writeWindow == 0 {
				n.windowStart.Store(false)
			}
		}
		n.readCurrent.Add(1)
		n.cond.Broadcast()
		return Ticket{conflict: true}
	}
	if n.readWindow == 0 {
		n.readHandover = false
	}
	return Ticket{handover: n.readHandover}
}

// ReleaseReadLock completes a read-delegation epoch. res/retValue are the
// outcome of the caller's own remote read when it was the epoch winner
// (acquired.Handover()==false); when the caller was a loser, res/retValue
// are overwritten with the winner's published result.
func (t *Table) ReleaseReadLock(k key.Key, acquired Ticket, res *bool, retValue *Value) {
	if acquired.conflict {
		return
	}
	n := &t.slots[t.indexKey(k)]

	n.mu.Lock()
	if !n.readHandover {
		n.res = *res
		n.retValue = *retValue
	} else {
		*res = n.res
		*retValue = n.retValue
	}

	ticket := n.readTicket.Load()
	current := n.readCurrent.Load()

	if !n.readHandover && n.windowStart.CompareAndSwap(false, true) {
		n.readWindow = int(ticket - current)
		n.wMu.Lock()
		wCurrent := n.writeCurrent.Load()
		n.writeWindow = int(n.writeTicket.Load() - wCurrent)
		n.wMu.Unlock()
	}

	n.readHandover = ticket != current+1
	if !n.readHandover {
		n.uniqueReadKey = nil
	}

	n.rMu.Lock()
	if n.readWindow > 0 {
		n.readWindow--
		if n.readWindow == 0 && n.writeWindow == 0 {
			n.windowStart.Store(false)
		}
	}
	n.rMu.Unlock()

	n.mu.Unlock()
	advanceAndBroadcast(n, &n.readCurrent)
}
