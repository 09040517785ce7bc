package partitions

import (
	"fmt"
	"math"
	"strings"

	"github.com/notargets/FEMAdjoint/mesh"
)

// PartitionBuilder constructs partitions from mesh connectivity
type PartitionBuilder struct {
	// Mesh connectivity
	Mesh *MeshConnectivity

	// Partitioning parameters. NumPartitions, when positive, overrides
	// TargetPartitionSize.
	NumPartitions       int
	TargetPartitionSize int // Desired elements per partition
	Strategy            PartitionStrategy
}

// MeshConnectivity provides the mesh topology needed for partitioning
type MeshConnectivity struct {
	NumElements int
	Cells       []mesh.CellID // Element k is cell Cells[k]

	// Element-to-element connectivity; a boundary side points to itself
	EToE [][]int
}

// NewMeshConnectivity lists the active cells of m left to right
func NewMeshConnectivity(m *mesh.Mesh) *MeshConnectivity {
	cells := m.ActiveCells()
	mc := &MeshConnectivity{
		NumElements: len(cells),
		Cells:       cells,
		EToE:        make([][]int, len(cells)),
	}
	for k := range cells {
		left, right := k-1, k+1
		if left < 0 {
			left = k
		}
		if right >= len(cells) {
			right = k
		}
		mc.EToE[k] = []int{left, right}
	}
	return mc
}

// PartitionStrategy defines how elements are grouped
type PartitionStrategy int

const (
	// Simple strategies
	BlockPartition PartitionStrategy = iota // Consecutive elements
	RoundRobin                              // Distribute cyclically

	// Graph-based strategies
	GraphPartition // Balanced runs of a breadth-first traversal of EToE
)

func (ps PartitionStrategy) String() string {
	switch ps {
	case BlockPartition:
		return "block"
	case RoundRobin:
		return "round-robin"
	case GraphPartition:
		return "graph"
	default:
		return fmt.Sprintf("PartitionStrategy(%d)", int(ps))
	}
}

// ParseStrategy converts a strategy name to a PartitionStrategy
func ParseStrategy(name string) (PartitionStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "block":
		return BlockPartition, nil
	case "round-robin", "roundrobin":
		return RoundRobin, nil
	case "graph":
		return GraphPartition, nil
	}
	return BlockPartition, fmt.Errorf("unknown partition strategy %q", name)
}

// BuildPartitions creates a partition layout from mesh connectivity
func (pb *PartitionBuilder) BuildPartitions() (*PartitionLayout, error) {
	if pb.Mesh == nil || pb.Mesh.NumElements < 1 {
		return nil, fmt.Errorf("no elements to partition")
	}
	numPartitions := pb.calculateNumPartitions()

	eToP, err := pb.partitionElements(numPartitions)
	if err != nil {
		return nil, err
	}

	partitions := pb.createPartitions(eToP, numPartitions)

	kpartMax := calculateKpartMax(partitions)
	for i := range partitions {
		partitions[i].MaxElements = kpartMax
	}

	layout := &PartitionLayout{
		Partitions:    partitions,
		KpartMax:      kpartMax,
		TotalElements: pb.Mesh.NumElements,
		NumPartitions: numPartitions,
		EToP:          eToP,
	}

	if err := layout.ValidateLayout(); err != nil {
		return nil, fmt.Errorf("invalid partition layout: %w", err)
	}

	return layout, nil
}

// calculateNumPartitions determines the partition count, never more
// partitions than elements
func (pb *PartitionBuilder) calculateNumPartitions() int {
	numPartitions := pb.NumPartitions
	if numPartitions <= 0 {
		size := pb.TargetPartitionSize
		if size <= 0 {
			size = pb.Mesh.NumElements
		}
		numPartitions = int(math.Ceil(float64(pb.Mesh.NumElements) / float64(size)))
	}

	if numPartitions < 1 {
		numPartitions = 1
	}
	if numPartitions > pb.Mesh.NumElements {
		numPartitions = pb.Mesh.NumElements
	}

	return numPartitions
}

// partitionElements assigns elements to partitions
func (pb *PartitionBuilder) partitionElements(numPartitions int) ([]int, error) {
	n := pb.Mesh.NumElements
	eToP := make([]int, n)

	switch pb.Strategy {
	case BlockPartition:
		for i := 0; i < n; i++ {
			eToP[i] = i * numPartitions / n
		}

	case RoundRobin:
		for i := 0; i < n; i++ {
			eToP[i] = i % numPartitions
		}

	case GraphPartition:
		// Balanced runs of a breadth-first ordering keep neighbors together
		for i, elem := range pb.Mesh.bfsOrder() {
			eToP[elem] = i * numPartitions / n
		}

	default:
		return nil, fmt.Errorf("unsupported partition strategy %v", pb.Strategy)
	}

	return eToP, nil
}

// bfsOrder visits every element breadth first through EToE, starting each
// connected component at its lowest numbered element
func (mc *MeshConnectivity) bfsOrder() []int {
	order := make([]int, 0, mc.NumElements)
	seen := make([]bool, mc.NumElements)
	for start := 0; start < mc.NumElements; start++ {
		if seen[start] {
			continue
		}
		seen[start] = true
		queue := []int{start}
		for len(queue) > 0 {
			k := queue[0]
			queue = queue[1:]
			order = append(order, k)
			for _, nb := range mc.EToE[k] {
				if nb >= 0 && nb < mc.NumElements && !seen[nb] {
					seen[nb] = true
					queue = append(queue, nb)
				}
			}
		}
	}
	return order
}

// createPartitions builds partition structures from element assignments
func (pb *PartitionBuilder) createPartitions(eToP []int, numPartitions int) []Partition {
	partitions := make([]Partition, numPartitions)

	for i := range partitions {
		partitions[i] = Partition{
			ID:       i,
			Elements: make([]int, 0),
		}
	}

	for elem, part := range eToP {
		partitions[part].Elements = append(partitions[part].Elements, elem)
		partitions[part].NumElements++
	}

	return partitions
}

// calculateKpartMax finds maximum elements across all partitions
func calculateKpartMax(partitions []Partition) int {
	kpartMax := 0
	for _, p := range partitions {
		if p.NumElements > kpartMax {
			kpartMax = p.NumElements
		}
	}
	return kpartMax
}

// EdgeCut counts element adjacencies split between partitions
func (pl *PartitionLayout) EdgeCut(mc *MeshConnectivity) int {
	cut := 0
	for k, nbrs := range mc.EToE {
		for _, nb := range nbrs {
			if nb > k && pl.GetPartition(nb) != pl.GetPartition(k) {
				cut++
			}
		}
	}
	return cut
}
