package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kisun-bit/undelpart/disk/filesystem/fossick/fossicktest"
	"github.com/kisun-bit/undelpart/disk/parted"
	"github.com/kisun-bit/undelpart/disk/table"
	"github.com/kisun-bit/undelpart/disk/undelete"
	"github.com/kisun-bit/undelpart/util/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

const testSectors = 20480

func init() {
	gin.SetMode(gin.TestMode)
}

// newImage 创建msdos分区表镜像: 分区1位于[2048, 8191], 8692处有一个未登记的ext文件系统.
func newImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "disk.img")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(testSectors*512))
	require.NoError(t, f.Close())

	dev, err := parted.OpenDevice(path, parted.WithDeviceLogger(logger.NewNopLogger()))
	require.NoError(t, err)
	defer dev.Close()
	d, err := parted.NewFreshDisk(dev, table.DTypeMBR)
	require.NoError(t, err)
	p, err := d.NewPartition(parted.PartitionNormal, "", 2048, 8191)
	require.NoError(t, err)
	require.NoError(t, d.AddPartition(p, parted.ConstraintExact(p.Geom)))
	require.NoError(t, d.CommitToDev())
	require.NoError(t, fossicktest.WriteExt(dev, 8692*512, 1<<20))
	return path
}

func newTestServer(t *testing.T, devices ...string) *Server {
	t.Helper()
	session := undelete.NewSession(
		undelete.WithLogger(logger.NewNopLogger()),
		undelete.WithMountCheck(false),
		undelete.WithDeviceEnumerator(func() ([]string, error) { return devices, nil }))
	return New(session, WithServerLogger(logger.NewNopLogger()))
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestDefaultAddrIsLoopback(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, "127.0.0.1:8390", s.addr)
	assert.Equal(t, ":9000", New(s.session, WithAddr(":9000")).addr)
}

func TestGetDisks(t *testing.T) {
	path := newImage(t)
	w := do(t, newTestServer(t, path), http.MethodGet, "/api/v1/disks", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"disks":[{"path":"`+path+`","record":[null,null,null,null]}]}`, w.Body.String())

	w = do(t, newTestServer(t), http.MethodGet, "/api/v1/disks", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, gjson.Get(w.Body.String(), "error").String(), "Are you root?")
}

func TestGetPartitions(t *testing.T) {
	path := newImage(t)
	s := newTestServer(t)
	w := do(t, s, http.MethodGet, "/api/v1/partitions?path="+path, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"path":"`+path+`","partitions":[[1,2048,8191]]}`, w.Body.String())

	w = do(t, s, http.MethodGet, "/api/v1/partitions", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, s, http.MethodGet, "/api/v1/partitions?path="+path+".missing", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRescueFlow(t *testing.T) {
	path := newImage(t)
	s := newTestServer(t)

	w := do(t, s, http.MethodGet, "/api/v1/rescuable?path="+path, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `[[2,8692,10739]]`, gjson.Get(w.Body.String(), "partitions").Raw)

	w = do(t, s, http.MethodPost, "/api/v1/plan",
		`{"path":"`+path+`","partitions":[[1,2048,8191],[-1,8192,20479]]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"keep":[[1,2048,8191]],"erase":[],"add":[[-1,8192,20479]]}`,
		gjson.Get(w.Body.String(), "plan").Raw)

	w = do(t, s, http.MethodPost, "/api/v1/rescue", `{"path":"`+path+`","all":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `[[2,8692,10739]]`, gjson.Get(w.Body.String(), "partitions").Raw)

	w = do(t, s, http.MethodPost, "/api/v1/rescue", `{"path":"`+path+`","all":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `[]`, gjson.Get(w.Body.String(), "partitions").Raw)
}

func TestSetPartitions(t *testing.T) {
	path := newImage(t)
	s := newTestServer(t)

	w := do(t, s, http.MethodPut, "/api/v1/partitions", `{"path":"`+path+`","partitions":[[1,2048]]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, s, http.MethodPut, "/api/v1/partitions", `{"path":"`+path+`"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, s, http.MethodPut, "/api/v1/partitions", `{"partitions":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, s, http.MethodPut, "/api/v1/partitions",
		`{"path":"`+path+`","partitions":[[1,2048,8191],[-1,12000,20479]]}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, s, http.MethodPut, "/api/v1/partitions",
		`{"path":"`+path+`","partitions":[["1","2048","8191"],[0,8192,20479]]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `[[1,2048,8191],[2,8692,10739]]`, gjson.Get(w.Body.String(), "partitions").Raw)

	w = do(t, s, http.MethodPut, "/api/v1/partitions", `{"path":"`+path+`","partitions":[[2,8692,10739]]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `[[2,8692,10739]]`, gjson.Get(w.Body.String(), "partitions").Raw)
}

func TestPathLocks(t *testing.T) {
	l := newPathLocks()
	unlock := l.lock("/dev/sda")
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.lock("/dev/sda")()
	}()
	// 不同路径互不阻塞.
	l.lock("/dev/sdb")()

	select {
	case <-done:
		t.Fatal("second lock on the same path acquired while held")
	case <-time.After(50 * time.Millisecond):
	}
	unlock()
	<-done
}

func TestListenAndServe(t *testing.T) {
	s := New(undelete.NewSession(undelete.WithLogger(logger.NewNopLogger())),
		WithAddr("127.0.0.1:0"), WithPProf(true), WithServerLogger(logger.NewNopLogger()))
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.ListenAndServe(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	assert.NoError(t, <-errCh)

	w := do(t, s, http.MethodGet, "/api/v1/pprof/", "")
	assert.Equal(t, http.StatusOK, w.Code)
}
