package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xRadioAc7iv/caskdb/core"
)

func TestOnOperation(t *testing.T) {
	c := NewCollector()

	c.OnOperation(core.OpInsert, core.OutcomeOK, 30, time.Millisecond)
	c.OnOperation(core.OpInsert, core.OutcomeOK, 12, time.Millisecond)
	c.OnOperation(core.OpGet, core.OutcomeOK, 5, time.Microsecond)
	c.OnOperation(core.OpGet, core.OutcomeMiss, 0, time.Microsecond)
	c.OnOperation(core.OpGet, core.OutcomeCorrupt, 0, time.Microsecond)
	c.OnOperation(core.OpDelete, core.OutcomeError, 21, time.Microsecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.OperationsTotal.WithLabelValues("insert", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.OperationsTotal.WithLabelValues("get", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.OperationsTotal.WithLabelValues("get", "corrupt")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.OperationsTotal.WithLabelValues("delete", "error")))

	// Failed operations write nothing.
	assert.Equal(t, 42.0, testutil.ToFloat64(c.BytesWritten))
	assert.Equal(t, 5.0, testutil.ToFloat64(c.BytesRead))

	assert.Equal(t, 3, testutil.CollectAndCount(c.OperationDuration))
}

func TestOnRecovery(t *testing.T) {
	c := NewCollector()

	c.OnRecovery(core.RecoveryStats{
		FilesScanned:    3,
		RecordsReplayed: 120,
		CorruptRecords:  2,
		TruncatedFiles:  1,
		BytesScanned:    4096,
		Duration:        250 * time.Millisecond,
	})

	assert.Equal(t, 3.0, testutil.ToFloat64(c.RecoveryFiles))
	assert.Equal(t, 120.0, testutil.ToFloat64(c.RecoveryRecords))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.RecoveryCorrupt))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.RecoveryTruncated))
	assert.Equal(t, 4096.0, testutil.ToFloat64(c.RecoveryBytes))
	assert.Equal(t, 0.25, testutil.ToFloat64(c.RecoveryDuration))
}

func TestCorruptReadsAndRotations(t *testing.T) {
	c := NewCollector()

	c.OnCorruptRead("data1.dat", 40)
	c.OnRotate("data1.dat", "data2.dat")
	c.OnRotate("data2.dat", "data3.dat")

	assert.Equal(t, 1.0, testutil.ToFloat64(c.CorruptReadsTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.RotationsTotal))
}

func TestCollectorsAreIndependent(t *testing.T) {
	a := NewCollector()
	b := NewCollector()

	a.OnRotate("x", "y")

	assert.Equal(t, 1.0, testutil.ToFloat64(a.RotationsTotal))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.RotationsTotal))
}

func TestSnapshot(t *testing.T) {
	c := NewCollector()
	c.OnOperation(core.OpInsert, core.OutcomeOK, 10, time.Millisecond)

	out, err := c.Snapshot()
	require.NoError(t, err)
	assert.Contains(t, out, `caskdb_datastore_operations_total{op="insert",outcome="ok"} 1`)
	assert.Contains(t, out, "caskdb_recovery_files_scanned 0")
	assert.Contains(t, out, "# TYPE caskdb_datastore_operation_duration_seconds histogram")
}

func TestCollectorWithDatastore(t *testing.T) {
	c := NewCollector()

	ds, err := core.Open(t.TempDir(), core.WithObserver(c))
	require.NoError(t, err)
	defer ds.Close()

	require.NoError(t, ds.Insert([]byte("k"), []byte("v")))
	_, _, err = ds.Get([]byte("k"))
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.OperationsTotal.WithLabelValues("insert", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.OperationsTotal.WithLabelValues("get", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.BytesRead))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.RecoveryFiles))
}
