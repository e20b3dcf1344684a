package smarttree

import "github.com/dmemtree/smarttree/node"

// Config carries every build-time/runtime flag spec.md's configuration
// table names (TREE_ENABLE_CACHE, CACHE_ENABLE_ART, ...), expressed as a
// single Go struct per the teacher's library posture: the teacher has no
// config struct of its own (it's a data-structure library, not a
// service), so this struct is the Go-native reading of spec.md §6's table
// rather than something adapted from teacher code.
type Config struct {
	// EnableCache turns on the client-side index cache (C6). Disabled,
	// every traversal starts from the root.
	EnableCache bool
	// CacheUseRadix selects indexcache.RadixCache over indexcache.FlatCache
	// when EnableCache is set (CACHE_ENABLE_ART).
	CacheUseRadix bool
	// CacheCapacity bounds the number of cached page entries.
	CacheCapacity int

	// EnableART turns on variable NodeType capacity classes; when false,
	// every node behaves as the largest class (node.NodeTypeToNum's
	// art=false path).
	EnableART bool
	// FineGrainedNodes selects the power-of-two class set
	// {4,8,16,32,64,128,256} over the classical ART set {4,16,48,256}.
	FineGrainedNodes bool

	// InPlaceUpdate updates leaves in place (under a lock) rather than
	// out-of-place (allocate new leaf, CAS the parent entry).
	InPlaceUpdate bool
	// EmbeddedLock uses a lock bit inside the leaf itself for in-place
	// updates; when false, a lock bit in the on-chip address space is used
	// instead (hashed by leaf offset).
	EmbeddedLock bool

	// WriteCombining enables locktable's write-combining fast path for
	// concurrent same-key writes on this client.
	WriteCombining bool
	// ReadDelegation enables locktable's read-delegation fast path for
	// concurrent same-key reads on this client.
	ReadDelegation bool
	// HOCLHandover enables address-keyed lock handover across requests on
	// this client that target the same remote lock.
	HOCLHandover bool
	// ROWEXBaseline switches to the simpler per-node writer-lock baseline
	// mode (TREE_TEST_ROWEX_ART) instead of the default leaf-granularity
	// locking protocol — a comparison mode carried from original_source/,
	// not part of the distilled spec.
	ROWEXBaseline bool

	// scheme, together with EnableART, picks the concrete NodeType
	// capacity table; it is derived from FineGrainedNodes alone.
	scheme node.Scheme

	// MemoryNodeNum is how many memory nodes back this tree's transport.
	MemoryNodeNum uint16

	// MaxRetries bounds consecutive transient retries for one logical
	// operation before the traversal restarts from the root (spec.md
	// §4.7.10's "excessive retries" safety valve).
	MaxRetries int

	// ReadOroMax caps how many reads one range-query ReadBatch call
	// carries, and WriteOroMax how many page writes one fork-building
	// WriteBatch call carries (kReadOroMax / kWriteOroMax).
	ReadOroMax int
	WriteOroMax int

	// NumCoroSlots sizes the corort.Runtime RunCoroutine spins up
	// (MAX_CORO_NUM, default 8).
	NumCoroSlots int

	// Logf is an optional line-level tracing hook; nil by default (no
	// logging), matching the teacher's dependency-light, logging-free
	// posture while still giving callers an escape hatch.
	Logf func(format string, args ...any)
}

// DefaultConfig returns the zero-value-safe default configuration: cache
// and ART enabled, in-place embedded-lock leaf updates, all three local
// handover fast paths on, classical node-type scheme.
func DefaultConfig() Config {
	return Config{
		EnableCache:      true,
		CacheUseRadix:    true,
		CacheCapacity:    4096,
		EnableART:        true,
		FineGrainedNodes: false,
		InPlaceUpdate:    true,
		EmbeddedLock:     true,
		WriteCombining:   true,
		ReadDelegation:   true,
		HOCLHandover:     true,
		ROWEXBaseline:    false,
		MemoryNodeNum:    1,
		MaxRetries:       50,
		ReadOroMax:       1024,
		WriteOroMax:      24,
		NumCoroSlots:     8,
	}
}

func (c Config) nodeScheme() node.Scheme {
	if c.FineGrainedNodes {
		return node.SchemeFineGrained
	}
	return node.SchemeClassic
}

func (c Config) logf(format string, args ...any) {
	if c.Logf != nil {
		c.Logf(format, args...)
	}
}
