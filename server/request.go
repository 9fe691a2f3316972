package server

import (
	"context"
	"syscall"

	. "github.com/macos-fuse-t/fusent/internal/erref"
	"github.com/macos-fuse-t/fusent/stats"
	log "github.com/sirupsen/logrus"
)

// Request is one operation against a Volume. The set of requests is
// closed; Volume.Handle knows every variant.
type Request interface {
	kind() string
}

func (CreateRequest) kind() string { return "create" }

type CloseRequest struct {
	Open *Open
}

type ReadRequest struct {
	Open   *Open
	Offset uint64
	Length int
}

type WriteRequest struct {
	Open   *Open
	Offset uint64
	Data   []byte
}

type FlushRequest struct {
	Open *Open
}

type QueryInfoRequest struct {
	Open *Open
}

type SetBasicInfoRequest struct {
	Open *Open
	Info BasicInfo
}

type SetEndOfFileRequest struct {
	Open *Open
	Size uint64
}

type SetDispositionRequest struct {
	Open   *Open
	Delete bool
}

type QueryStreamsRequest struct {
	Open    *Open
	Restart bool
}

type QueryDirectoryRequest struct {
	Open    *Open
	Pattern string
	Restart bool
}

type RenameRequest struct {
	Open    *Open
	NewPath string
	Replace bool
}

func (CloseRequest) kind() string          { return "close" }
func (ReadRequest) kind() string           { return "read" }
func (WriteRequest) kind() string          { return "write" }
func (FlushRequest) kind() string          { return "flush" }
func (QueryInfoRequest) kind() string      { return "queryinfo" }
func (SetBasicInfoRequest) kind() string   { return "setbasicinfo" }
func (SetEndOfFileRequest) kind() string   { return "setendoffile" }
func (SetDispositionRequest) kind() string { return "setdisposition" }
func (QueryStreamsRequest) kind() string   { return "querystreams" }
func (QueryDirectoryRequest) kind() string { return "querydirectory" }
func (RenameRequest) kind() string         { return "rename" }

// Response carries the outcome of a Request in both error domains. Only
// the fields belonging to the request kind are set.
type Response struct {
	Status NtStatus
	Errno  syscall.Errno
	Err    error

	Open    *Open
	Data    []byte
	Written int
	Info    *FileInfo
	Streams []StreamInfo
	Entries []DirEntry
}

func (r *Response) setErr(err error) *Response {
	if err != nil {
		r.Err = err
		r.Status = StatusFromError(err)
		r.Errno = ErrnoFromError(err)
	}
	return r
}

func errorResponse(err error) *Response {
	return new(Response).setErr(err)
}

// Handle runs one request to completion.
func (v *Volume) Handle(ctx context.Context, req Request) *Response {
	rsp := &Response{}
	var err error

	switch r := req.(type) {
	case CreateRequest:
		rsp.Open, err = v.Create(ctx, r)
	case CloseRequest:
		err = v.closeChecked(ctx, r.Open)
	case ReadRequest:
		if err = checkOpen(r.Open); err == nil {
			rsp.Data, err = v.Read(ctx, r.Open, r.Offset, r.Length)
		}
	case WriteRequest:
		if err = checkOpen(r.Open); err == nil {
			rsp.Written, err = v.Write(ctx, r.Open, r.Offset, r.Data)
		}
	case FlushRequest:
		if err = checkOpen(r.Open); err == nil {
			err = v.Flush(ctx, r.Open)
		}
	case QueryInfoRequest:
		if err = checkOpen(r.Open); err == nil {
			rsp.Info, err = v.QueryInfo(ctx, r.Open)
		}
	case SetBasicInfoRequest:
		if err = checkOpen(r.Open); err == nil {
			err = v.SetBasicInfo(ctx, r.Open, r.Info)
		}
	case SetEndOfFileRequest:
		if err = checkOpen(r.Open); err == nil {
			err = v.SetEndOfFile(ctx, r.Open, r.Size)
		}
	case SetDispositionRequest:
		if err = checkOpen(r.Open); err == nil {
			err = v.SetDisposition(ctx, r.Open, r.Delete)
		}
	case QueryStreamsRequest:
		if err = checkOpen(r.Open); err == nil {
			rsp.Streams, err = v.QueryStreams(ctx, r.Open, r.Restart)
		}
	case QueryDirectoryRequest:
		if err = checkOpen(r.Open); err == nil {
			rsp.Entries, err = v.QueryDirectory(ctx, r.Open, r.Pattern, r.Restart)
		}
	case RenameRequest:
		if err = checkOpen(r.Open); err == nil {
			err = v.Rename(ctx, r.Open, r.NewPath, r.Replace)
		}
	default:
		log.Errorf("unknown request %T", req)
		return errorResponse(NewOpError("handle", "", STATUS_NOT_SUPPORTED))
	}
	if err != nil {
		rsp.setErr(err)
		stats.AddError(req.kind(), rsp.Status.String())
	}
	return rsp
}

func checkOpen(o *Open) error {
	if o == nil {
		return NewOpError("handle", "", STATUS_INVALID_HANDLE)
	}
	return nil
}

func (v *Volume) closeChecked(ctx context.Context, o *Open) error {
	if err := checkOpen(o); err != nil {
		return err
	}
	return v.Close(ctx, o)
}
