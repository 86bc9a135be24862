package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.Created()
	c.Destroyed(3)
	c.Renamed()
	c.Reparented()
	c.Rejected("conflict")
	c.Deferred("g")
	c.Flushed("g", 2)
}

func TestCollectorCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.Created()
	c.Created()
	c.Created()
	c.Destroyed(2)
	c.Renamed()
	c.Rejected("cycle")
	c.Rejected("cycle")
	c.Deferred("scenes")
	c.Flushed("scenes", 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.entities))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.created))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.destroyed))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.renamed))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.rejected.WithLabelValues("cycle")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.deferred.WithLabelValues("scenes")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
