package node

// Scheme selects which capacity-class set a tree uses, fixed for the
// lifetime of a Tree (it changes how many bits of an entry mean what and
// how node-type grow picks the next class).
type Scheme uint8

const (
	// SchemeClassic is the original ART set {4, 16, 48, 256}.
	SchemeClassic Scheme = iota
	// SchemeFineGrained is the power-of-two set {4, 8, 16, 32, 64, 128, 256}.
	SchemeFineGrained
)

// NodeType is the logical capacity class of an internal node. The same
// numeric values are reinterpreted differently depending on Scheme — see
// NodeTypeToNum / NumToNodeType.
type NodeType uint8

// NodeDeleted is the logical tombstone written over a node's type once it
// has been superseded and is no longer reachable.
const NodeDeleted NodeType = 0

const (
	nodeType1 NodeType = iota + 1
	nodeType2
	nodeType3
	nodeType4
	nodeType5
	nodeType6
	nodeType7
)

// PageSlots is the physical entry-array capacity every InternalPage carries
// regardless of its logical NodeType, so growing a node's type never needs
// to relocate its entry array (only the node_type field changes).
const PageSlots = 256

func (t NodeType) String() string {
	switch t {
	case NodeDeleted:
		return "DELETED"
	case nodeType1:
		return "Type1"
	case nodeType2:
		return "Type2"
	case nodeType3:
		return "Type3"
	case nodeType4:
		return "Type4"
	case nodeType5:
		return "Type5"
	case nodeType6:
		return "Type6"
	case nodeType7:
		return "Type7"
	default:
		return "Unknown"
	}
}

// NodeTypeToNum returns the logical slot capacity of t under the given
// scheme. When art is false every live node behaves as the largest class
// (TREE_ENABLE_ART disabled: all nodes are full 256-slot nodes).
func NodeTypeToNum(t NodeType, scheme Scheme, art bool) int {
	if t == NodeDeleted {
		return 0
	}
	if !art {
		return PageSlots
	}
	if scheme == SchemeFineGrained {
		return 1 << (int(t) + 1)
	}
	switch t {
	case nodeType1:
		return 4
	case nodeType2:
		return 16
	case nodeType3:
		return 48
	case nodeType4:
		return 256
	default:
		panic("node: invalid classic NodeType " + t.String())
	}
}

// NumToNodeType picks the smallest class under scheme whose capacity is >=
// num slots, under both the classic and the fine-grained scheme —
// mirroring num_to_node_type's "smallest class that fits".
func NumToNodeType(num int, scheme Scheme, art bool) NodeType {
	if num == 0 {
		return NodeDeleted
	}
	if !art {
		if scheme == SchemeFineGrained {
			return nodeType7
		}
		return nodeType4
	}
	if scheme == SchemeFineGrained {
		for i := 1; i < 8; i++ {
			if num <= 1<<(i+1) {
				return NodeType(i)
			}
		}
		return nodeType7
	}
	switch {
	case num <= 4:
		return nodeType1
	case num <= 16:
		return nodeType2
	case num <= 48:
		return nodeType3
	default:
		return nodeType4
	}
}

// MaxNodeTypeOrdinal is the largest valid NodeType ordinal for scheme,
// i.e. the class that always has PageSlots capacity.
func MaxNodeTypeOrdinal(scheme Scheme) NodeType {
	if scheme == SchemeFineGrained {
		return nodeType7
	}
	return nodeType4
}
