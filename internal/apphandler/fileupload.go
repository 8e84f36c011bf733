package apphandler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/bgrzesik/programatorus-server/internal/message"
)

// upload tracks one in-progress chunked upload: the original only
// allowed parts to arrive in order (append_part rejects an
// out-of-sequence part_no with IO_ERROR), and FileStore keeps that
// contract.
type upload struct {
	file     *os.File
	received int64
	nextPart int64
}

// FileStore serializes uploads under baseDir. All state is guarded by
// mu instead of routing through an actor.Runner: uploads are
// independent of each other and of the request/response flow, so
// there is no ordering requirement across different UploadIDs that
// would call for a single-goroutine serializer -- only per-upload
// exclusion, which a map of *os.File plus a mutex gives for free.
type FileStore struct {
	baseDir string
	log     *zap.Logger

	mu      sync.Mutex
	uploads map[string]*upload
}

func NewFileStore(baseDir string, log *zap.Logger) *FileStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &FileStore{baseDir: baseDir, log: log.Named("fileupload"), uploads: make(map[string]*upload)}
}

func (s *FileStore) start(req *message.FileUploadStart) (*message.FileUploadStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.uploads[req.UploadID]; exists {
		return nil, fmt.Errorf("apphandler: upload %q already in progress", req.UploadID)
	}

	path := filepath.Join(s.baseDir, filepath.Base(req.Name))
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("apphandler: creating upload file: %w", err)
	}

	s.uploads[req.UploadID] = &upload{file: f}
	return &message.FileUploadStatus{UploadID: req.UploadID}, nil
}

func (s *FileStore) part(req *message.FileUploadPart) (*message.FileUploadStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.uploads[req.UploadID]
	if !ok {
		return nil, fmt.Errorf("apphandler: unknown upload %q", req.UploadID)
	}
	if req.Offset != u.nextPart {
		return nil, fmt.Errorf("apphandler: out-of-order chunk for %q: want offset %d, got %d", req.UploadID, u.nextPart, req.Offset)
	}

	n, err := u.file.Write(req.Data)
	if err != nil {
		return nil, fmt.Errorf("apphandler: writing upload chunk: %w", err)
	}
	u.received += int64(n)
	u.nextPart += int64(n)

	return &message.FileUploadStatus{UploadID: req.UploadID, Received: u.received}, nil
}

func (s *FileStore) finish(req *message.FileUploadFinish) (*message.FileUploadStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.uploads[req.UploadID]
	if !ok {
		return nil, fmt.Errorf("apphandler: unknown upload %q", req.UploadID)
	}
	delete(s.uploads, req.UploadID)

	if err := u.file.Close(); err != nil {
		return nil, fmt.Errorf("apphandler: closing upload file: %w", err)
	}
	return &message.FileUploadStatus{UploadID: req.UploadID, Received: u.received, Done: true}, nil
}

// FileUploadStartResponder, FileUploadPartResponder and
// FileUploadFinishResponder are thin per-tag adapters in front of a
// shared FileStore -- the router dispatches by tag to exactly one
// Responder, so the three phases of an upload need three registered
// entry points even though they share all their state.
type FileUploadStartResponder struct{ store *FileStore }

func NewFileUploadStartResponder(store *FileStore) *FileUploadStartResponder {
	return &FileUploadStartResponder{store: store}
}

func (*FileUploadStartResponder) RequestTag() string { return message.TagFileUploadStart }

func (r *FileUploadStartResponder) UnpackRequest(req message.Payload) (any, error) {
	start, ok := req.(*message.FileUploadStart)
	if !ok {
		return nil, fmt.Errorf("apphandler: expected FileUploadStart, got %T", req)
	}
	return start, nil
}

func (r *FileUploadStartResponder) OnRequest(ctx context.Context, req any) (any, error) {
	return r.store.start(req.(*message.FileUploadStart))
}

func (r *FileUploadStartResponder) PrepareResponse(resp any) message.Payload {
	return resp.(*message.FileUploadStatus)
}

type FileUploadPartResponder struct{ store *FileStore }

func NewFileUploadPartResponder(store *FileStore) *FileUploadPartResponder {
	return &FileUploadPartResponder{store: store}
}

func (*FileUploadPartResponder) RequestTag() string { return message.TagFileUploadPart }

func (r *FileUploadPartResponder) UnpackRequest(req message.Payload) (any, error) {
	part, ok := req.(*message.FileUploadPart)
	if !ok {
		return nil, fmt.Errorf("apphandler: expected FileUploadPart, got %T", req)
	}
	return part, nil
}

func (r *FileUploadPartResponder) OnRequest(ctx context.Context, req any) (any, error) {
	return r.store.part(req.(*message.FileUploadPart))
}

func (r *FileUploadPartResponder) PrepareResponse(resp any) message.Payload {
	return resp.(*message.FileUploadStatus)
}

type FileUploadFinishResponder struct{ store *FileStore }

func NewFileUploadFinishResponder(store *FileStore) *FileUploadFinishResponder {
	return &FileUploadFinishResponder{store: store}
}

func (*FileUploadFinishResponder) RequestTag() string { return message.TagFileUploadFinish }

func (r *FileUploadFinishResponder) UnpackRequest(req message.Payload) (any, error) {
	finish, ok := req.(*message.FileUploadFinish)
	if !ok {
		return nil, fmt.Errorf("apphandler: expected FileUploadFinish, got %T", req)
	}
	return finish, nil
}

func (r *FileUploadFinishResponder) OnRequest(ctx context.Context, req any) (any, error) {
	return r.store.finish(req.(*message.FileUploadFinish))
}

func (r *FileUploadFinishResponder) PrepareResponse(resp any) message.Payload {
	return resp.(*message.FileUploadStatus)
}
