package archive

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/jangala-dev/daqd/internal/document"
	"github.com/jangala-dev/daqd/internal/ring"
)

func pushDoc(t *testing.T, r *ring.Buffer, kind document.Kind, v interface{}) {
	t.Helper()
	b, err := document.Encode(kind, v)
	require.NoError(t, err)
	_, err = r.Write(b)
	require.NoError(t, err)
}

func TestFlushWritesRunStreamRecordHierarchy(t *testing.T) {
	dir := t.TempDir()
	r, err := ring.Create(filepath.Join(dir, "ring.bin"), 1<<20)
	require.NoError(t, err)
	defer r.Close()

	f, err := Open(filepath.Join(dir, "archive.db"), r, time.Hour)
	require.NoError(t, err)
	defer f.Close()

	runUID := "run-1"
	start := document.Start{UID: runUID, PlanType: "Scan1D", PlanName: "scan", TimeNS: 1}
	desc := document.Descriptor{UID: "desc-1", RunUID: runUID, StreamName: "primary", DataKeys: map[string]document.DataKey{
		"stg": {DType: document.DTypeNumber, Source: "stg"},
	}, TimeNS: 2}
	ev1 := document.Event{UID: "e1", RunUID: runUID, DescriptorUID: "desc-1", SeqNum: 1, TimeNS: 3, Data: map[string]float64{"stg": 0}}
	ev2 := document.Event{UID: "e2", RunUID: runUID, DescriptorUID: "desc-1", SeqNum: 2, TimeNS: 4, Data: map[string]float64{"stg": 5}}
	stop := document.Stop{UID: "s1", RunUID: runUID, ExitStatus: document.ExitSuccess, TimeNS: 5, NumEvents: 2}

	pushDoc(t, r, document.KindStart, start)
	pushDoc(t, r, document.KindDescriptor, desc)
	pushDoc(t, r, document.KindEvent, ev1)
	pushDoc(t, r, document.KindEvent, ev2)
	pushDoc(t, r, document.KindStop, stop)

	require.NoError(t, f.flush())
	assert.Equal(t, r.WriteHead(), r.ReadTail())

	require.NoError(t, f.db.View(func(tx *bbolt.Tx) error {
		runBkt := tx.Bucket(bucketRuns).Bucket([]byte(runUID))
		require.NotNil(t, runBkt)
		assert.NotNil(t, runBkt.Get([]byte("start")))
		assert.NotNil(t, runBkt.Get([]byte("stop")))

		streamBkt := runBkt.Bucket([]byte("streams")).Bucket([]byte("primary"))
		require.NotNil(t, streamBkt)
		assert.NotNil(t, streamBkt.Get([]byte("descriptor")))

		eventsBkt := streamBkt.Bucket([]byte("events"))
		require.NotNil(t, eventsBkt)
		assert.NotNil(t, eventsBkt.Get(seqKey(1)))
		assert.NotNil(t, eventsBkt.Get(seqKey(2)))
		return nil
	}))
}

func TestRunFlushesOnNudgeAndOnShutdown(t *testing.T) {
	dir := t.TempDir()
	r, err := ring.Create(filepath.Join(dir, "ring.bin"), 1<<20)
	require.NoError(t, err)
	defer r.Close()

	f, err := Open(filepath.Join(dir, "archive.db"), r, time.Hour)
	require.NoError(t, err)
	defer f.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { _ = f.Run(ctx); close(done) }()

	pushDoc(t, r, document.KindStart, document.Start{UID: "run-2", TimeNS: 1})
	f.Nudge()

	require.Eventually(t, func() bool {
		var found bool
		_ = f.db.View(func(tx *bbolt.Tx) error {
			found = tx.Bucket(bucketRuns).Bucket([]byte("run-2")) != nil
			return nil
		})
		return found
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
