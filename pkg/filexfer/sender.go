package filexfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/mculink/pkg/frame"
	"github.com/robotalks/mculink/pkg/link"
	"github.com/robotalks/mculink/pkg/mcu"
)

// DefaultRetries is the number of extra attempts per frame.
const DefaultRetries = 3

var errAborted = errors.New("aborted")

// Sender uploads files to the peer and asks it for downloads.
type Sender struct {
	events

	Client    *mcu.Client
	BlockSize int
	Retries   int

	session *Session
	lock    sync.Mutex
}

// NewSender creates a Sender.
func NewSender(c *mcu.Client) *Sender {
	return &Sender{Client: c, BlockSize: DefaultBlockSize, Retries: DefaultRetries}
}

// Session returns a snapshot of the current or last transfer.
func (s *Sender) Session() (Session, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.session == nil {
		return Session{}, false
	}
	return *s.session, true
}

func (s *Sender) begin(sess *Session) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.session != nil && !s.session.State.Done() {
		return ErrInProgress
	}
	s.session = sess
	return nil
}

// update applies fn unless the session has already ended.
func (s *Sender) update(fn func(*Session)) Session {
	s.lock.Lock()
	defer s.lock.Unlock()
	if !s.session.State.Done() {
		fn(s.session)
	}
	return *s.session
}

func (s *Sender) blockSize() (int, error) {
	switch {
	case s.BlockSize == 0:
		return DefaultBlockSize, nil
	case s.BlockSize < 0 || s.BlockSize > MaxBlockSize:
		return 0, fmt.Errorf("%w: block size %d", link.ErrInvalidParameter, s.BlockSize)
	}
	return s.BlockSize, nil
}

func validName(name string) bool {
	return name != "" && len(name) <= math.MaxUint8
}

// Request asks the peer to push remoteName to the host. The transfer itself
// arrives through a Receiver.
func (s *Sender) Request(ctx context.Context, remoteName string) error {
	if !validName(remoteName) {
		return link.ErrInvalidParameter
	}
	msg := notifyMsg{Direction: Download, Name: remoteName}
	_, err := s.Client.Call(ctx, CmdNotify, msg.encode())
	return err
}

// Send uploads localPath to the peer as remoteName. An empty remoteName uses
// the base name of localPath.
func (s *Sender) Send(ctx context.Context, localPath, remoteName string) error {
	if remoteName == "" {
		remoteName = filepath.Base(localPath)
	}
	if !validName(remoteName) {
		return link.ErrInvalidParameter
	}
	blockSize, err := s.blockSize()
	if err != nil {
		return err
	}
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size() > math.MaxUint32 {
		return fmt.Errorf("%w: %s too large", link.ErrInvalidParameter, localPath)
	}
	size := uint32(info.Size())
	sess := &Session{
		Direction:   Upload,
		Name:        remoteName,
		Path:        localPath,
		TotalSize:   size,
		BlockSize:   uint16(blockSize),
		TotalBlocks: BlockCount(size, uint16(blockSize)),
	}
	if err := s.begin(sess); err != nil {
		return err
	}
	if err := s.run(ctx, f); err != nil {
		if errors.Is(err, errAborted) {
			return err
		}
		return s.fail(err)
	}
	return nil
}

// Cancel aborts the running upload.
func (s *Sender) Cancel(ctx context.Context) error {
	s.lock.Lock()
	sess := s.session
	if sess == nil || sess.State.Done() {
		s.lock.Unlock()
		return ErrNoSession
	}
	sess.State, sess.Code = Cancelled, CodeCancelled
	snapshot := *sess
	s.lock.Unlock()
	s.emit(EventCancelled, &snapshot, nil)
	_, err := s.Client.Call(ctx, CmdCancel, []byte{byte(CodeCancelled)})
	return err
}

// aborted returns a non-nil error if the session was stopped by Cancel or
// by the peer.
func (s *Sender) aborted() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.session.State.Done() {
		return &Error{Code: s.session.Code, Err: errAborted}
	}
	return nil
}

func (s *Sender) run(ctx context.Context, r io.Reader) error {
	notify := notifyMsg{Direction: Upload, Name: s.session.Name}
	if err := s.call(ctx, CmdNotify, notify.encode()); err != nil {
		return err
	}
	snapshot := s.update(func(sess *Session) { sess.State = Notified })
	s.emit(EventNotified, &snapshot, nil)

	start := startMsg{
		Name:        snapshot.Name,
		TotalSize:   snapshot.TotalSize,
		BlockSize:   snapshot.BlockSize,
		TotalBlocks: snapshot.TotalBlocks,
	}
	if err := s.call(ctx, CmdStart, start.encode()); err != nil {
		return err
	}
	snapshot = s.update(func(sess *Session) { sess.State = Started })
	s.emit(EventStarted, &snapshot, nil)
	glog.Infof("upload %s", &snapshot)

	buf := make([]byte, snapshot.BlockSize)
	for index := uint32(0); index < snapshot.TotalBlocks; index++ {
		n, err := io.ReadFull(r, buf)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
			return &Error{Code: CodeIO, Err: err}
		}
		block := buf[:n]
		msg := dataMsg{Index: index, CRC: frame.CRC16(block), Data: block}
		if err := s.call(ctx, CmdData, msg.encode()); err != nil {
			return err
		}
		snapshot = s.update(func(sess *Session) {
			sess.State = Transmitting
			sess.Block = index + 1
			sess.Bytes += uint32(n)
		})
		s.emit(EventProgress, &snapshot, nil)
	}

	complete := completeMsg{TotalSize: snapshot.TotalSize, TotalBlocks: snapshot.TotalBlocks}
	if err := s.call(ctx, CmdComplete, complete.encode()); err != nil {
		return err
	}
	snapshot = s.update(func(sess *Session) { sess.State = Completed })
	if snapshot.State != Completed {
		return s.aborted()
	}
	s.emit(EventCompleted, &snapshot, nil)
	glog.Infof("upload %s", &snapshot)
	return nil
}

// call sends one transfer frame, retrying up to Retries times.
func (s *Sender) call(ctx context.Context, cmd uint16, data []byte) (err error) {
	for attempt := 0; attempt <= s.Retries; attempt++ {
		if err = s.aborted(); err != nil {
			return err
		}
		if _, err = s.Client.Call(ctx, cmd, data); err == nil {
			return nil
		}
		if ctx.Err() != nil || errors.Is(err, link.ErrShutdown) {
			break
		}
		glog.Warningf("file transfer cmd 0x%04x attempt %d: %v", cmd, attempt+1, err)
	}
	return err
}

func (s *Sender) fail(err error) error {
	code := CodeIO
	var xferErr *Error
	var cmdErr *link.CommandError
	switch {
	case errors.As(err, &xferErr):
		code = xferErr.Code
	case errors.As(err, &cmdErr):
		if c := Code(cmdErr.Code()); c != CodeNone {
			code = c
		}
	case errors.Is(err, context.Canceled):
		code = CodeCancelled
	}
	snapshot := s.update(func(sess *Session) {
		sess.State, sess.Code = Failed, code
	})
	glog.Errorf("upload %s: %v", &snapshot, err)
	s.emit(EventError, &snapshot, err)
	// best effort; the peer may already be gone.
	ctx, cancel := context.WithTimeout(context.Background(), s.Client.CallTimeout())
	defer cancel()
	s.Client.Call(ctx, CmdError, []byte{byte(code)})
	return err
}

// peerAbort stops the running upload on Cancel or Error from the peer.
func (s *Sender) peerAbort(cmd uint16, code Code) bool {
	s.lock.Lock()
	sess := s.session
	if sess == nil || sess.State.Done() {
		s.lock.Unlock()
		return false
	}
	typ := EventCancelled
	sess.State, sess.Code = Cancelled, code
	if cmd == CmdError {
		typ, sess.State = EventError, Failed
	}
	snapshot := *sess
	s.lock.Unlock()
	s.emit(typ, &snapshot, &Error{Code: code})
	return true
}
