package filexfer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/mculink/pkg/frame"
	"github.com/robotalks/mculink/pkg/link"
)

// Receiver accepts files pushed by the peer. It's a link.Handler for the
// file transfer commands.
type Receiver struct {
	events

	Replier link.Replier
	// Dir is where received files are stored.
	Dir string
	// Uploader serves download requests from the peer and receives Cancel
	// and Error aimed at an upload. Optional.
	Uploader *Sender
	// UploadDir is where files requested by the peer are looked up.
	UploadDir string

	session *Session
	file    *os.File
	lastCRC uint16
	lock    sync.Mutex
}

// NewReceiver creates a Receiver storing files in dir.
func NewReceiver(r link.Replier, dir string) *Receiver {
	return &Receiver{Replier: r, Dir: dir}
}

// Session returns a snapshot of the current or last inbound transfer.
func (r *Receiver) Session() (Session, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.session == nil {
		return Session{}, false
	}
	return *r.session, true
}

// HandleRequest implements link.Handler.
func (r *Receiver) HandleRequest(ctx context.Context, req *frame.Frame) {
	var code Code
	var reply []byte
	switch req.Cmd {
	case CmdNotify:
		code = r.handleNotify(ctx, req.Data)
	case CmdStart:
		code = r.handleStart(req.Data)
	case CmdData:
		code = r.handleData(req.Data)
	case CmdComplete:
		code = r.handleComplete(req.Data)
	case CmdCancel, CmdError:
		code = r.handleAbort(req.Cmd, codeOf(req.Data))
	default:
		code = CodeInvalid
	}
	typ := frame.TypeAck
	if code != CodeNone {
		typ, reply = frame.TypeNack, []byte{byte(code)}
	}
	if err := r.Replier.Reply(req, typ, reply); err != nil {
		glog.Warningf("reply %s: %v", req, err)
	}
}

func (r *Receiver) handleNotify(ctx context.Context, data []byte) Code {
	var msg notifyMsg
	if err := msg.decode(data); err != nil {
		glog.Warning(err)
		return CodeInvalid
	}
	if msg.Direction == Download {
		// Download from the peer's point of view: it wants a file from us.
		return r.serveUpload(ctx, msg.Name)
	}
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.session != nil && !r.session.State.Done() && r.session.State != Notified {
		return CodeBusy
	}
	r.session = &Session{Direction: Download, Name: msg.Name, State: Notified}
	r.emit(EventNotified, r.session, nil)
	return CodeNone
}

func (r *Receiver) serveUpload(ctx context.Context, name string) Code {
	if r.Uploader == nil {
		return CodeInvalid
	}
	base := filepath.Base(name)
	if !safeName(base) {
		return CodeInvalid
	}
	path := filepath.Join(r.UploadDir, base)
	if _, err := os.Stat(path); err != nil {
		return CodeNotFound
	}
	// the upload issues requests on the link, which must not happen on the
	// engine goroutine.
	go func() {
		if err := r.Uploader.Send(ctx, path, name); err != nil {
			glog.Errorf("serve %s: %v", name, err)
		}
	}()
	return CodeNone
}

func safeName(base string) bool {
	return base != "" && base != "." && base != ".." && base != string(filepath.Separator)
}

func (r *Receiver) handleStart(data []byte) Code {
	var msg startMsg
	if err := msg.decode(data); err != nil {
		glog.Warning(err)
		return CodeInvalid
	}
	if !safeName(filepath.Base(msg.Name)) ||
		msg.BlockSize == 0 || msg.BlockSize > MaxBlockSize ||
		msg.TotalBlocks != BlockCount(msg.TotalSize, msg.BlockSize) {
		glog.Warningf("reject start %+v", msg)
		return CodeInvalid
	}
	r.lock.Lock()
	defer r.lock.Unlock()
	if s := r.session; s != nil && !s.State.Done() && s.State != Notified {
		// Start resent because its Ack was lost.
		if s.State == Started && s.Block == 0 && s.Name == msg.Name &&
			s.TotalSize == msg.TotalSize && s.BlockSize == msg.BlockSize {
			return CodeNone
		}
		return CodeBusy
	}
	f, err := os.CreateTemp(r.Dir, ".mculink-*.part")
	if err != nil {
		glog.Errorf("create temp file in %s: %v", r.Dir, err)
		return CodeIO
	}
	r.file = f
	r.session = &Session{
		Direction:   Download,
		Name:        msg.Name,
		Path:        filepath.Join(r.Dir, filepath.Base(msg.Name)),
		TotalSize:   msg.TotalSize,
		BlockSize:   msg.BlockSize,
		TotalBlocks: msg.TotalBlocks,
		State:       Started,
	}
	glog.Infof("download %s", r.session)
	r.emit(EventStarted, r.session, nil)
	return CodeNone
}

func (r *Receiver) handleData(data []byte) Code {
	var msg dataMsg
	if err := msg.decode(data); err != nil {
		glog.Warning(err)
		return CodeInvalid
	}
	r.lock.Lock()
	defer r.lock.Unlock()
	s := r.session
	if s == nil {
		return CodeInvalid
	}
	// a retransmission of the last block whose Ack was lost.
	if (s.State == Transmitting || s.State == Completed) &&
		s.Block > 0 && msg.Index == s.Block-1 && msg.CRC == r.lastCRC {
		return CodeNone
	}
	if r.file == nil || s.State.Done() {
		return CodeInvalid
	}
	if msg.Index != s.Block {
		glog.Warningf("download %s: block %d out of sequence", s.Name, msg.Index)
		return CodeSequence
	}
	if len(msg.Data) > int(s.BlockSize) || uint64(s.Bytes)+uint64(len(msg.Data)) > uint64(s.TotalSize) {
		return CodeSize
	}
	if crc := frame.CRC16(msg.Data); crc != msg.CRC {
		glog.Warningf("download %s: block %d crc 0x%04x, expect 0x%04x", s.Name, msg.Index, crc, msg.CRC)
		return CodeChecksum
	}
	if _, err := r.file.Write(msg.Data); err != nil {
		r.failLocked(CodeIO, err)
		return CodeIO
	}
	s.State = Transmitting
	s.Block++
	s.Bytes += uint32(len(msg.Data))
	r.lastCRC = msg.CRC
	r.emit(EventProgress, s, nil)
	if s.Block == s.TotalBlocks {
		return r.finishLocked()
	}
	return CodeNone
}

func (r *Receiver) handleComplete(data []byte) Code {
	var msg completeMsg
	if err := msg.decode(data); err != nil {
		glog.Warning(err)
		return CodeInvalid
	}
	r.lock.Lock()
	defer r.lock.Unlock()
	s := r.session
	if s == nil {
		return CodeInvalid
	}
	if msg.TotalSize != s.TotalSize || msg.TotalBlocks != s.TotalBlocks {
		if !s.State.Done() {
			r.failLocked(CodeSize, fmt.Errorf("complete %d bytes/%d blocks, started %d/%d",
				msg.TotalSize, msg.TotalBlocks, s.TotalSize, s.TotalBlocks))
		}
		return CodeSize
	}
	switch {
	case s.State == Completed:
		return CodeNone
	case s.State.Done():
		return s.Code
	case s.Block == s.TotalBlocks:
		// zero length file, no Data frame was sent.
		return r.finishLocked()
	}
	r.failLocked(CodeSize, fmt.Errorf("complete after %d of %d blocks", s.Block, s.TotalBlocks))
	return CodeSize
}

func (r *Receiver) handleAbort(cmd uint16, code Code) Code {
	r.lock.Lock()
	s := r.session
	if s == nil || s.State.Done() {
		r.lock.Unlock()
		if r.Uploader != nil {
			r.Uploader.peerAbort(cmd, code)
		}
		return CodeNone
	}
	r.closeLocked(true)
	typ := EventCancelled
	s.State, s.Code = Cancelled, code
	if cmd == CmdError {
		typ, s.State = EventError, Failed
	}
	glog.Warningf("download %s: aborted by peer (%s)", s.Name, code)
	r.emit(typ, s, &Error{Code: code})
	r.lock.Unlock()
	return CodeNone
}

func (r *Receiver) finishLocked() Code {
	s := r.session
	if s.Bytes != s.TotalSize {
		r.failLocked(CodeSize, fmt.Errorf("received %d bytes, expect %d", s.Bytes, s.TotalSize))
		return CodeSize
	}
	tmp := r.file.Name()
	if err := r.file.Close(); err != nil {
		r.file = nil
		os.Remove(tmp)
		r.failLocked(CodeIO, err)
		return CodeIO
	}
	r.file = nil
	if err := os.Rename(tmp, s.Path); err != nil {
		os.Remove(tmp)
		r.failLocked(CodeIO, err)
		return CodeIO
	}
	s.State = Completed
	glog.Infof("download %s", s)
	r.emit(EventCompleted, s, nil)
	return CodeNone
}

func (r *Receiver) failLocked(code Code, err error) {
	r.closeLocked(true)
	s := r.session
	s.State, s.Code = Failed, code
	e := &Error{Code: code, Err: err}
	glog.Errorf("download %s: %v", s, e)
	r.emit(EventError, s, e)
}

func (r *Receiver) closeLocked(remove bool) {
	if r.file == nil {
		return
	}
	name := r.file.Name()
	r.file.Close()
	r.file = nil
	if remove {
		os.Remove(name)
	}
}

// Close aborts the inbound transfer in progress and removes its partial
// file.
func (r *Receiver) Close() error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.session != nil && !r.session.State.Done() {
		r.closeLocked(true)
		r.session.State, r.session.Code = Cancelled, CodeCancelled
		r.emit(EventCancelled, r.session, nil)
	}
	return nil
}
