package partitions

import (
	"testing"

	"github.com/notargets/FEMAdjoint/mesh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chain(t *testing.T, n int) *MeshConnectivity {
	m, err := mesh.NewUniformMesh(0, 1, n, 1, 2)
	require.NoError(t, err)
	return NewMeshConnectivity(m)
}

func TestMeshConnectivity(t *testing.T) {
	m, err := mesh.NewUniformMesh(0, 1, 2, 1, 2)
	require.NoError(t, err)
	m.UniformlyRefine()
	mc := NewMeshConnectivity(m)
	assert.Equal(t, 4, mc.NumElements)
	// children of cell 0 are 2, 3; of cell 1 are 4, 5
	assert.Equal(t, []mesh.CellID{2, 3, 4, 5}, mc.Cells)
	assert.Equal(t, [][]int{{0, 1}, {0, 2}, {1, 3}, {2, 3}}, mc.EToE)
}

func TestBuildPartitions(t *testing.T) {
	tests := []struct {
		name       string
		n          int
		builder    PartitionBuilder
		wantParts  int
		wantCounts []int
		wantCut    int
	}{
		{"single", 5, PartitionBuilder{}, 1, []int{5}, 0},
		{"block even", 8, PartitionBuilder{NumPartitions: 4}, 4, []int{2, 2, 2, 2}, 3},
		{"block uneven", 5, PartitionBuilder{NumPartitions: 4}, 4, []int{2, 1, 1, 1}, 3},
		{"target size", 10, PartitionBuilder{TargetPartitionSize: 3}, 4, []int{3, 2, 3, 2}, 3},
		{"more parts than cells", 3, PartitionBuilder{NumPartitions: 8}, 3, []int{1, 1, 1}, 2},
		{"round robin", 7, PartitionBuilder{NumPartitions: 3, Strategy: RoundRobin}, 3, []int{3, 2, 2}, 6},
		{"graph", 6, PartitionBuilder{NumPartitions: 2, Strategy: GraphPartition}, 2, []int{3, 3}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pb := tt.builder
			pb.Mesh = chain(t, tt.n)
			layout, err := pb.BuildPartitions()
			require.NoError(t, err)
			require.NoError(t, layout.ValidateLayout())
			assert.Equal(t, tt.wantParts, layout.NumPartitions)
			counts := make([]int, layout.NumPartitions)
			for i, p := range layout.Partitions {
				assert.Equal(t, i, p.ID)
				counts[i] = p.NumElements
			}
			assert.Equal(t, tt.wantCounts, counts)
			assert.Equal(t, tt.wantCut, layout.EdgeCut(pb.Mesh))
		})
	}
}

func TestGraphPartitionFollowsConnectivity(t *testing.T) {
	// Elements are numbered out of chain order: 0 - 2 - 1 - 3
	mc := &MeshConnectivity{
		NumElements: 4,
		EToE:        [][]int{{0, 2}, {2, 3}, {0, 1}, {1, 3}},
	}
	graph := PartitionBuilder{Mesh: mc, NumPartitions: 2, Strategy: GraphPartition}
	layout, err := graph.BuildPartitions()
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 0, 1}, layout.EToP)
	assert.Equal(t, 1, layout.EdgeCut(mc))

	block := PartitionBuilder{Mesh: mc, NumPartitions: 2, Strategy: BlockPartition}
	layout, err = block.BuildPartitions()
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 1, 1}, layout.EToP)
	assert.Equal(t, 2, layout.EdgeCut(mc))

	bad := PartitionBuilder{Mesh: mc, NumPartitions: 2, Strategy: PartitionStrategy(9)}
	_, err = bad.BuildPartitions()
	assert.Error(t, err)
}

func TestBuildPartitionsEmpty(t *testing.T) {
	pb := PartitionBuilder{Mesh: &MeshConnectivity{}}
	_, err := pb.BuildPartitions()
	assert.Error(t, err)
}

func TestValidateLayoutRejects(t *testing.T) {
	good := func() *PartitionLayout {
		return &PartitionLayout{
			Partitions: []Partition{
				{ID: 0, Elements: []int{0, 1}, NumElements: 2, MaxElements: 2},
				{ID: 1, Elements: []int{2}, NumElements: 1, MaxElements: 2},
			},
			KpartMax:      2,
			TotalElements: 3,
			NumPartitions: 2,
			EToP:          []int{0, 0, 1},
		}
	}
	require.NoError(t, good().ValidateLayout())

	l := good()
	l.KpartMax = 3
	assert.Error(t, l.ValidateLayout())

	l = good()
	l.EToP[2] = 0
	assert.Error(t, l.ValidateLayout())

	l = good()
	l.Partitions[1].Elements = []int{1}
	assert.Error(t, l.ValidateLayout())

	l = good()
	l.TotalElements = 4
	l.EToP = append(l.EToP, 1)
	assert.Error(t, l.ValidateLayout())
}

func TestPartitionedArray(t *testing.T) {
	pb := PartitionBuilder{Mesh: chain(t, 6), NumPartitions: 3}
	layout, err := pb.BuildPartitions()
	require.NoError(t, err)

	pa := AllocatePartitionedArray(layout, 2)
	assert.Equal(t, 6, pa.AllocatedSize)
	assert.Equal(t, []int{0, 2, 4, 6}, pa.Offsets)
	for p := 0; p < 3; p++ {
		data := pa.GetPartitionData(p)
		require.Len(t, data, 2)
		data[0] = float64(p)
		data[1] = float64(10 * p)
	}
	assert.Equal(t, []float64{0, 0, 1, 10, 2, 20}, pa.GlobalData)
	assert.Nil(t, pa.GetPartitionData(3))
	assert.Nil(t, pa.GetPartitionData(-1))
}

func TestPartitionStatistics(t *testing.T) {
	pb := PartitionBuilder{Mesh: chain(t, 5), NumPartitions: 4}
	layout, err := pb.BuildPartitions()
	require.NoError(t, err)
	stats := layout.PartitionStatistics()
	assert.Equal(t, 4, stats.NumPartitions)
	assert.Equal(t, 1, stats.MinElements)
	assert.Equal(t, 2, stats.MaxElements)
	assert.InDelta(t, 1.25, stats.AvgElements, 1.e-15)
	assert.InDelta(t, 1.6, stats.Imbalance, 1.e-15)
}

func TestParseStrategy(t *testing.T) {
	for _, s := range []PartitionStrategy{BlockPartition, RoundRobin, GraphPartition} {
		got, err := ParseStrategy(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	_, err := ParseStrategy("metis")
	assert.Error(t, err)
}
