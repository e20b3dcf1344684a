package locktable

import "github.com/dmemtree/smarttree/key"

// AcquireWriteLock implements write combining: concurrent writers of the
// same key overwrite a shared per-slot buffer (the last write wins) and
// queue behind whichever goroutine is first into the slot's current write
// epoch. Only the epoch winner (Handover()==false) issues the actual
// remote write, carrying the combined buffer's final value; every loser
// queued behind it (Handover()==true) issues no remote write of its own.
func (t *Table) AcquireWriteLock(k key.Key, v Value) Ticket {
	n := &t.slots[t.indexKey(k)]

	n.mu.Lock()
	if n.uniqueWriteKey == nil {
		kk := k
		n.uniqueWriteKey = &kk
	} else if *n.uniqueWriteKey != k {
		n.mu.Unlock()
		return Ticket{conflict: true}
	}
	n.mu.Unlock()

	n.wcMu.Lock()
	n.wcBuffer = v
	n.wcMu.Unlock()

	myTicket := n.writeTicket.Add(1) - 1
	waitForTicket(n, &n.writeCurrent, myTicket)

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.uniqueWriteKey == nil || *n.uniqueWriteKey != k {
		if n.writeWindow > 0 {
			n.writeWindow--
			if n.readWindow == 0 && n.writeWindow == 0 {
				n.windowStart.Store(false)
			}
		}
		n.writeCurrent.Add(1)
		n.cond.Broadcast()
		return Ticket{conflict: true}
	}
	if n.writeWindow == 0 {
		n.writeHandover = false
	}
	return Ticket{handover: n.writeHandover}
}

// CombiningValue reports the slot's current write-combining buffer for k,
// and whether it differs from v — letting a queued writer notice another
// goroutine already overwrote its value before it got a turn.
func (t *Table) CombiningValue(k key.Key, v Value) (Value, bool) {
	n := &t.slots[t.indexKey(k)]
	n.mu.Lock()
	uniqueKey := n.uniqueWriteKey
	n.mu.Unlock()
	if uniqueKey == nil || *uniqueKey != k {
		return v, false
	}
	n.wcMu.Lock()
	defer n.wcMu.Unlock()
	return n.wcBuffer, n.wcBuffer != v
}

// ReleaseWriteLock completes a write-combining epoch.
func (t *Table) ReleaseWriteLock(k key.Key, acquired Ticket) {
	if acquired.conflict {
		return
	}
	n := &t.slots[t.indexKey(k)]

	n.mu.Lock()
	ticket := n.writeTicket.Load()
	current := n.writeCurrent.Load()

	if !n.writeHandover && n.windowStart.CompareAndSwap(false, true) {
		n.rMu.Lock()
		rCurrent := n.readCurrent.Load()
		n.readWindow = int(n.readTicket.Load() - rCurrent)
		n.rMu.Unlock()
		n.writeWindow = int(ticket - current)
	}

	n.writeHandover = ticket != current+1
	if !n.writeHandover {
		n.uniqueWriteKey = nil
	}

	n.wMu.Lock()
	if n.writeWindow > 0 {
		n.writeWindow--
		if n.readWindow == 0 && n.writeWindow == 0 {
			n.windowStart.Store(false)
		}
	}
	n.wMu.Unlock()

	n.mu.Unlock()
	advanceAndBroadcast(n, &n.writeCurrent)
}
