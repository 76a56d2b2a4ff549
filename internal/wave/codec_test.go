package wave

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleInstance = `3 2 2
1 0 5
1 0 5
1 1 10
1 0 10
1 1 10
5 10
`

func TestReadInstance(t *testing.T) {
	inst, err := ReadInstance(strings.NewReader(sampleInstance))
	require.NoError(t, err)
	require.Equal(t, 3, inst.NOrders)
	require.Equal(t, 2, inst.NItems)
	require.Equal(t, 2, inst.NAisles)
	require.Equal(t, 5, inst.LB)
	require.Equal(t, 10, inst.UB)
	require.Equal(t, []int{5, 5, 10}, inst.OrderUnits)
}

func TestReadInstance_Truncated(t *testing.T) {
	_, err := ReadInstance(strings.NewReader("3 2 2\n1 0 5\n"))
	require.Error(t, err)
}

func TestSolutionRoundTrip(t *testing.T) {
	inst, err := ReadInstance(strings.NewReader(sampleInstance))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteSolution(&buf, Solution{Orders: []int{0, 1}, Aisles: []int{0}}))
	require.Equal(t, "2\n0\n1\n1\n0\n", buf.String())

	sol, err := ReadSolution(&buf, inst)
	require.NoError(t, err)
	require.True(t, sol.Feasible)
	require.Equal(t, 10, sol.TotalUnits)
	require.Equal(t, 10.0, sol.Objective)

	_, err = ReadSolution(strings.NewReader("1\n9\n0\n"), inst)
	require.Error(t, err)
}

func TestReadInstance_RejectsBadCounts(t *testing.T) {
	cases := map[string]string{
		"negative orders":  "-1 1 1",
		"negative entries": "1 1 1 -2",
		"huge aisles":      "1 1 2000000000",
		"huge entries":     "1 1 1 2000000000 0 1",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ReadInstance(strings.NewReader(in))
			require.ErrorIs(t, err, ErrInvalidInstance)
		})
	}

	// a declared count within bounds but with no data runs out of input
	_, err := ReadInstance(strings.NewReader("1000000 1 1"))
	require.Error(t, err)
}

func TestReadSolution_RejectsBadCounts(t *testing.T) {
	inst, err := ReadInstance(strings.NewReader(sampleInstance))
	require.NoError(t, err)
	for _, in := range []string{"-3", "4\n0\n1\n2\n2\n0\n", "0\n-1\n"} {
		_, err := ReadSolution(strings.NewReader(in), inst)
		require.Error(t, err, in)
	}
}
