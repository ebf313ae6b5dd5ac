// internal/storage/pending_log_test.go
package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEntity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func TestPendingLog_WriteThenRead(t *testing.T) {
	log, err := NewPendingLog(t.TempDir(), 5*time.Minute)
	require.NoError(t, err)

	require.NoError(t, log.RecordWrite("sp", KindScene, "s1", fakeEntity{ID: "s1", Name: "kitchen"}))

	writes := log.RecentWrites("sp", KindScene)
	require.Contains(t, writes, "s1")
	assert.NotZero(t, writes["s1"].WrittenAt)

	// 类别与剧本之间相互隔离
	assert.Empty(t, log.RecentWrites("sp", KindCharacter))
	assert.Empty(t, log.RecentWrites("other", KindScene))
}

func TestPendingLog_DeleteCancelsWrite(t *testing.T) {
	log, err := NewPendingLog(t.TempDir(), 5*time.Minute)
	require.NoError(t, err)

	require.NoError(t, log.RecordWrite("sp", KindScene, "s1", fakeEntity{ID: "s1"}))
	require.NoError(t, log.RecordDelete("sp", KindScene, "s1"))

	assert.Empty(t, log.RecentWrites("sp", KindScene))
	assert.True(t, log.DeletedIDs("sp", KindScene)["s1"])
}

func TestPendingLog_WriteCancelsTombstone(t *testing.T) {
	log, err := NewPendingLog(t.TempDir(), 5*time.Minute)
	require.NoError(t, err)

	require.NoError(t, log.RecordDelete("sp", KindScene, "s1"))
	require.NoError(t, log.RecordWrite("sp", KindScene, "s1", fakeEntity{ID: "s1"}))

	assert.False(t, log.DeletedIDs("sp", KindScene)["s1"])
	assert.Contains(t, log.RecentWrites("sp", KindScene), "s1")
}

func TestPendingLog_WindowPruning(t *testing.T) {
	// 极短窗口：条目写入后立即过期
	log, err := NewPendingLog(t.TempDir(), time.Nanosecond)
	require.NoError(t, err)

	require.NoError(t, log.RecordWrite("sp", KindScene, "s1", fakeEntity{ID: "s1"}))
	require.NoError(t, log.RecordDelete("sp", KindScene, "s2"))

	time.Sleep(5 * time.Millisecond)

	assert.Empty(t, log.RecentWrites("sp", KindScene))
	assert.Empty(t, log.DeletedIDs("sp", KindScene))
}

func TestPendingLog_PersistAndRecover(t *testing.T) {
	dir := t.TempDir()

	log, err := NewPendingLog(dir, 5*time.Minute)
	require.NoError(t, err)
	require.NoError(t, log.RecordWrite("sp", KindCharacter, "c1", fakeEntity{ID: "c1", Name: "SARAH"}))
	require.NoError(t, log.RecordDelete("sp", KindScene, "dead"))

	// 文件按剧本分开落盘
	_, err = os.Stat(filepath.Join(dir, "pending_sp.json"))
	require.NoError(t, err)

	// 新实例从磁盘恢复
	recovered, err := NewPendingLog(dir, 5*time.Minute)
	require.NoError(t, err)

	assert.Contains(t, recovered.RecentWrites("sp", KindCharacter), "c1")
	assert.True(t, recovered.DeletedIDs("sp", KindScene)["dead"])
}

func TestPendingLog_Clear(t *testing.T) {
	log, err := NewPendingLog(t.TempDir(), 5*time.Minute)
	require.NoError(t, err)

	require.NoError(t, log.RecordWrite("sp", KindScene, "s1", fakeEntity{ID: "s1"}))
	require.NoError(t, log.RecordDelete("sp", KindScene, "s2"))

	require.NoError(t, log.Clear("sp"))

	assert.Empty(t, log.RecentWrites("sp", KindScene))
	assert.Empty(t, log.DeletedIDs("sp", KindScene))
}

func TestNewPendingLog_DefaultWindow(t *testing.T) {
	log, err := NewPendingLog(t.TempDir(), 0)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, log.Window())
}
