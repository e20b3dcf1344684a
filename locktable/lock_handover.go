package locktable

import "github.com/dmemtree/smarttree/gaddr"

// AddrTicket is returned by AcquireLock, carrying whether the caller won
// the current write epoch outright (false) or is allowed to skip the
// remote unlock/lock round-trip because a prior winner already holds the
// remote lock on the same address (true).
type AddrTicket struct {
	handedOver bool
}

// HandedOver reports whether the caller may assume the remote lock is
// already held (by a previous epoch winner on the same address) and
// should proceed straight to its remote operation without locking again.
func (a AddrTicket) HandedOver() bool { return a.handedOver }

// AcquireLock implements address-keyed lock handover: the baseline
// coordination pattern used by Config.ROWEXBaseline. Every goroutine
// queues behind the slot's write ticket; the epoch winner gets
// HandedOver()==false and acquires the remote lock itself, while a later
// caller targeting the same address while a handover chain is active gets
// HandedOver()==true and can skip re-acquiring it.
func (t *Table) AcquireLock(addr gaddr.Addr) AddrTicket {
	n := &t.slots[t.indexAddr(addr)]

	myTicket := n.writeTicket.Add(1) - 1
	waitForTicket(n, &n.writeCurrent, myTicket)

	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.writeHandover {
		n.uniqueAddr = addr
	}
	return AddrTicket{handedOver: n.writeHandover && n.uniqueAddr == addr}
}

// UnlockFunc issues the remote unlock verb for addr.
type UnlockFunc func(addr gaddr.Addr)

// ReleaseLock completes a lock-handover epoch, calling unlock once the
// handover chain decides the remote lock must actually be released —
// either because this epoch wasn't continued by the next waiter, or
// because the chain has run MaxHOCLHandover deep and is forcibly cut to
// bound how long the remote lock can go un-released.
func (t *Table) ReleaseLock(addr gaddr.Addr, unlock UnlockFunc) {
	n := &t.slots[t.indexAddr(addr)]

	n.mu.Lock()
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

	uniqueAddr := n.uniqueAddr
	handover := n.writeHandover
	n.mu.Unlock()

	if uniqueAddr != addr {
		unlock(addr)
	}
	if !handover {
		unlock(uniqueAddr)
	}

	advanceAndBroadcast(n, &n.writeCurrent)
}

// ReleaseLockCombined is the embedded/on-chip-lock variant of
// ReleaseLock: instead of a plain unlock verb, the holder batches its
// write together with the unlock decision, choosing among writeAndUnlock
// (embed the unlock into the same verb as the write) and
// writeWithoutUnlock (the next handover-chain waiter will unlock later).
func (t *Table) ReleaseLockCombined(addr gaddr.Addr, unlock, writeWithoutUnlock, writeAndUnlock UnlockFunc) {
	n := &t.slots[t.indexAddr(addr)]

	n.mu.Lock()
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

	uniqueAddr := n.uniqueAddr
	handover := n.writeHandover
	n.mu.Unlock()

	switch {
	case !handover && uniqueAddr != addr:
		unlock(uniqueAddr)
		writeAndUnlock(addr)
	case !handover:
		writeAndUnlock(addr)
	case uniqueAddr != addr:
		writeAndUnlock(addr)
	default:
		writeWithoutUnlock(addr)
	}

	advanceAndBroadcast(n, &n.writeCurrent)
}
