package promotion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderDependencyChain(t *testing.T) {
	// S5: ch1 depends on ch2, ch2 depends on ch3; requesting [ch1, ch2, ch3]
	// must promote ch3 first, then ch2, then ch1.
	graph := Graph{
		"ch1": {"ch2"},
		"ch2": {"ch3"},
	}
	order, err := Order([]string{"ch1", "ch2", "ch3"}, graph)
	require.NoError(t, err)
	assert.Equal(t, []string{"ch3", "ch2", "ch1"}, order)
}

func TestOrderNoDependencies(t *testing.T) {
	order, err := Order([]string{"a", "b", "c"}, Graph{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestOrderIgnoresDependenciesOutsideRequest(t *testing.T) {
	graph := Graph{"a": {"not-requested"}}
	order, err := Order([]string{"a", "b"}, graph)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, order)
}

func TestOrderDetectsCycle(t *testing.T) {
	graph := Graph{
		"a": {"b"},
		"b": {"a"},
	}
	_, err := Order([]string{"a", "b"}, graph)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestOrderDiamond(t *testing.T) {
	// d depends on b and c, both of which depend on a.
	graph := Graph{
		"d": {"b", "c"},
		"b": {"a"},
		"c": {"a"},
	}
	order, err := Order([]string{"d", "b", "c", "a"}, graph)
	require.NoError(t, err)
	require.Len(t, order, 4)
	assert.Equal(t, "a", order[0])
	assert.Equal(t, "d", order[3])
}
