package server

import (
	"context"
	"sync"
	"syscall"
	"testing"
	"time"

	. "github.com/macos-fuse-t/fusent/internal/erref"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleRequests(t *testing.T) {
	ctx := context.Background()
	v := newTestVolume(t)

	rsp := v.Handle(ctx, CreateRequest{
		Path:              "/f",
		DesiredAccess:     GENERIC_READ | GENERIC_WRITE | DELETE,
		ShareAccess:       FILE_SHARE_ALL,
		CreateDisposition: FILE_CREATE,
	})
	require.NoError(t, rsp.Err)
	o := rsp.Open
	require.NotNil(t, o)

	rsp = v.Handle(ctx, WriteRequest{Open: o, Data: []byte("data")})
	require.NoError(t, rsp.Err)
	assert.Equal(t, 4, rsp.Written)

	rsp = v.Handle(ctx, ReadRequest{Open: o, Length: 10})
	require.NoError(t, rsp.Err)
	assert.Equal(t, "data", string(rsp.Data))

	rsp = v.Handle(ctx, ReadRequest{Open: o, Offset: 4, Length: 10})
	assert.Equal(t, STATUS_END_OF_FILE, rsp.Status)
	assert.Equal(t, syscall.ENODATA, rsp.Errno)

	rsp = v.Handle(ctx, QueryInfoRequest{Open: o})
	require.NoError(t, rsp.Err)
	assert.Equal(t, uint64(4), rsp.Info.EndOfFile)

	rsp = v.Handle(ctx, QueryStreamsRequest{Open: o, Restart: true})
	require.NoError(t, rsp.Err)
	assert.Len(t, rsp.Streams, 1)
	rsp = v.Handle(ctx, QueryStreamsRequest{Open: o})
	assert.Equal(t, STATUS_NO_MORE_FILES, rsp.Status)

	rsp = v.Handle(ctx, SetDispositionRequest{Open: o, Delete: true})
	require.NoError(t, rsp.Err)
	rsp = v.Handle(ctx, CloseRequest{Open: o})
	require.NoError(t, rsp.Err)
	assert.Equal(t, STATUS_SUCCESS, rsp.Status)

	rsp = v.Handle(ctx, CreateRequest{Path: "/f", DesiredAccess: GENERIC_READ, CreateDisposition: FILE_OPEN})
	assert.Equal(t, STATUS_OBJECT_NAME_NOT_FOUND, rsp.Status)
	assert.Equal(t, syscall.ENOENT, rsp.Errno)

	rsp = v.Handle(ctx, FlushRequest{})
	assert.Equal(t, STATUS_INVALID_HANDLE, rsp.Status)
	assert.Equal(t, syscall.EBADF, rsp.Errno)

	rsp = v.Handle(ctx, nil)
	assert.Equal(t, STATUS_NOT_SUPPORTED, rsp.Status)
}

func TestDispatcher(t *testing.T) {
	ctx := context.Background()
	v := newTestVolume(t)
	d := NewDispatcher(v, 4)

	rsp := d.Submit(ctx, CreateRequest{Path: "/dir", DesiredAccess: GENERIC_READ, ShareAccess: FILE_SHARE_ALL, CreateDisposition: FILE_CREATE, CreateOptions: FILE_DIRECTORY_FILE})
	require.NoError(t, rsp.Err)
	dir := rsp.Open

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rsp := d.Submit(ctx, CreateRequest{
				Path:              "/dir/f" + string(rune('a'+i%26)) + string(rune('a'+i/26)),
				DesiredAccess:     GENERIC_READ,
				ShareAccess:       FILE_SHARE_ALL,
				CreateDisposition: FILE_CREATE,
			})
			if assert.NoError(t, rsp.Err) {
				assert.NoError(t, d.Submit(ctx, CloseRequest{Open: rsp.Open}).Err)
			}
		}(i)
	}
	wg.Wait()

	rsp = d.Submit(ctx, QueryDirectoryRequest{Open: dir, Pattern: "*", Restart: true})
	require.NoError(t, rsp.Err)
	assert.Len(t, rsp.Entries, 52)
	require.NoError(t, d.Submit(ctx, CloseRequest{Open: dir}).Err)

	sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, d.Shutdown(sctx))

	rsp = d.Submit(ctx, QueryInfoRequest{Open: dir})
	assert.Equal(t, syscall.ESHUTDOWN, rsp.Errno)
	assert.Equal(t, STATUS_VOLUME_DISMOUNTED, rsp.Status)
	assert.Equal(t, 0, v.OpenCount())
}

func TestDispatcherShutdownWaitsForInflight(t *testing.T) {
	ctx := context.Background()
	v := newTestVolume(t)
	d := NewDispatcher(v, 1)
	createFile(t, v, "/f", 0)

	o := openPath(t, v, "/f", FILE_READ_DATA, FILE_SHARE_ALL)
	// hold the file lock so the request parks inside a worker
	o.entry.mu.Lock()

	done := make(chan *Response)
	go func() {
		done <- d.Submit(ctx, QueryInfoRequest{Open: o})
	}()

	shut := make(chan error)
	go func() {
		time.Sleep(50 * time.Millisecond)
		shut <- d.Shutdown(ctx)
	}()

	select {
	case <-shut:
		t.Fatal("shutdown returned with a request in flight")
	case <-time.After(150 * time.Millisecond):
	}

	o.entry.mu.Unlock()
	rsp := <-done
	require.NoError(t, rsp.Err)
	require.NoError(t, <-shut)
	require.NoError(t, v.Close(ctx, o))
}
