package query

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTopK_AscendingSmallerThanRowCount(t *testing.T) {
	r := require.New(t)

	rows := []Row{{RowID: 1}, {RowID: 2}, {RowID: 3}, {RowID: 4}}
	keys := []SortKey{
		{Parts: []interface{}{int64(40)}},
		{Parts: []interface{}{int64(10)}},
		{Parts: []interface{}{int64(30)}},
		{Parts: []interface{}{int64(20)}},
	}

	out := TopK(rows, keys, 2)
	r.Len(out, 2)
	r.Equal(int64(2), out[0].RowID)
	r.Equal(int64(4), out[1].RowID)
}

func TestTopK_Descending(t *testing.T) {
	r := require.New(t)

	rows := []Row{{RowID: 1}, {RowID: 2}, {RowID: 3}}
	keys := []SortKey{
		{Parts: []interface{}{int64(1)}, Desc: []bool{true}},
		{Parts: []interface{}{int64(3)}, Desc: []bool{true}},
		{Parts: []interface{}{int64(2)}, Desc: []bool{true}},
	}

	out := TopK(rows, keys, 2)
	r.Len(out, 2)
	r.Equal(int64(2), out[0].RowID)
	r.Equal(int64(3), out[1].RowID)
}

func TestTopK_LimitZeroMeansAll(t *testing.T) {
	r := require.New(t)

	rows := []Row{{RowID: 1}, {RowID: 2}}
	keys := []SortKey{
		{Parts: []interface{}{int64(2)}},
		{Parts: []interface{}{int64(1)}},
	}

	out := TopK(rows, keys, 0)
	r.Len(out, 2)
	r.Equal(int64(2), out[0].RowID)
	r.Equal(int64(1), out[1].RowID)
}

func TestTopK_LimitExceedsRowCount(t *testing.T) {
	r := require.New(t)

	rows := []Row{{RowID: 1}}
	keys := []SortKey{{Parts: []interface{}{int64(1)}}}

	out := TopK(rows, keys, 100)
	r.Len(out, 1)
}

func TestTopK_MultiColumnKey(t *testing.T) {
	r := require.New(t)

	rows := []Row{{RowID: 1}, {RowID: 2}, {RowID: 3}}
	keys := []SortKey{
		{Parts: []interface{}{"a", int64(2)}},
		{Parts: []interface{}{"a", int64(1)}},
		{Parts: []interface{}{"b", int64(0)}},
	}

	out := TopK(rows, keys, 3)
	r.Equal([]int64{2, 1, 3}, []int64{out[0].RowID, out[1].RowID, out[2].RowID})
}

func TestUnion_DeduplicatesByDefault(t *testing.T) {
	r := require.New(t)

	left := []Row{{Values: []interface{}{int64(1), "a"}}, {Values: []interface{}{int64(2), "b"}}}
	right := []Row{{Values: []interface{}{int64(2), "b"}}, {Values: []interface{}{int64(3), "c"}}}

	out := Union(left, right, false)
	r.Len(out, 3)
}

func TestUnion_All(t *testing.T) {
	r := require.New(t)

	left := []Row{{Values: []interface{}{int64(1)}}}
	right := []Row{{Values: []interface{}{int64(1)}}}

	out := Union(left, right, true)
	r.Len(out, 2)
}

func TestIntersect(t *testing.T) {
	r := require.New(t)

	left := []Row{{Values: []interface{}{int64(1)}}, {Values: []interface{}{int64(2)}}}
	right := []Row{{Values: []interface{}{int64(2)}}, {Values: []interface{}{int64(3)}}}

	out := Intersect(left, right)
	r.Len(out, 1)
	r.Equal(int64(2), out[0].Values[0])
}

func TestExcept(t *testing.T) {
	r := require.New(t)

	left := []Row{{Values: []interface{}{int64(1)}}, {Values: []interface{}{int64(2)}}}
	right := []Row{{Values: []interface{}{int64(2)}}}

	out := Except(left, right)
	r.Len(out, 1)
	r.Equal(int64(1), out[0].Values[0])
}

func TestFingerprint_DistinguishesColumnBoundaries(t *testing.T) {
	r := require.New(t)

	fp1 := Fingerprint([]interface{}{"ab", "c"})
	fp2 := Fingerprint([]interface{}{"a", "bc"})
	r.NotEqual(fp1, fp2)
}

func TestAccumulator_CountSumAvgMinMax(t *testing.T) {
	r := require.New(t)

	values := []interface{}{int64(1), int64(5), int64(3)}

	count := NewAccumulator(AggCount)
	sum := NewAccumulator(AggSum)
	avg := NewAccumulator(AggAvg)
	min := NewAccumulator(AggMin)
	max := NewAccumulator(AggMax)
	for _, v := range values {
		count.Add(v)
		sum.Add(v)
		avg.Add(v)
		min.Add(v)
		max.Add(v)
	}

	r.Equal(int64(3), count.Result())
	r.Equal(9.0, sum.Result())
	r.Equal(3.0, avg.Result())
	r.Equal(int64(1), min.Result())
	r.Equal(int64(5), max.Result())
}

func TestAccumulator_AvgOfEmptyGroupIsZero(t *testing.T) {
	r := require.New(t)

	avg := NewAccumulator(AggAvg)
	r.Equal(0.0, avg.Result())
}

func TestGroupTable_AccumulatesPerKeyInFirstSeenOrder(t *testing.T) {
	r := require.New(t)

	g := NewGroupTable([]AggKind{AggCount, AggSum})
	g.Add("east", []interface{}{int64(1), int64(10)})
	g.Add("west", []interface{}{int64(1), int64(20)})
	g.Add("east", []interface{}{int64(1), int64(5)})

	groups := g.Groups()
	r.Len(groups, 2)
	r.Equal("east", groups[0].Key)
	r.Equal(int64(2), groups[0].Values[0])
	r.Equal(15.0, groups[0].Values[1])
	r.Equal("west", groups[1].Key)
	r.Equal(int64(1), groups[1].Values[0])
	r.Equal(20.0, groups[1].Values[1])
}
