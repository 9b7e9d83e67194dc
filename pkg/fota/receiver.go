package fota

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"hash"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/mculink/pkg/frame"
	"github.com/robotalks/mculink/pkg/link"
)

// Receiver stores a firmware image pushed by the peer. It's a link.Handler
// for the FOTA commands and can also be driven directly.
type Receiver struct {
	events

	Replier link.Replier
	// Sender notifies the peer when the host aborts. Optional.
	Sender link.Sender
	Dir    string
	// FileName of the image in Dir, DefaultFileName if empty.
	FileName string
	// Reserve is extra free space required beyond the image size.
	Reserve uint64

	session  Session
	file     *os.File
	digest   hash.Hash
	lastSize int
	lastCRC  uint16
	lock     sync.Mutex
}

// NewReceiver creates a Receiver storing the image in dir.
func NewReceiver(r link.Replier, dir string) *Receiver {
	return &Receiver{Replier: r, Dir: dir}
}

// Path returns where the image is stored.
func (r *Receiver) Path() string {
	name := r.FileName
	if name == "" {
		name = DefaultFileName
	}
	return filepath.Join(r.Dir, name)
}

// Session returns a snapshot of the session.
func (r *Receiver) Session() Session {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.session
}

// Begin starts receiving an image of total bytes.
func (r *Receiver) Begin(total uint32) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.session.Status.Active() {
		// Start resent because its Ack was lost.
		if r.session.Status == Receiving && r.session.Bytes == 0 && r.session.TotalSize == total {
			return nil
		}
		return ErrBusy
	}
	path := r.Path()
	r.session = Session{Path: path, TotalSize: total}
	if avail, known, err := freeSpace(r.Dir); err != nil {
		return r.failLocked(fmt.Errorf("statfs %s: %w", r.Dir, err))
	} else if known && avail < uint64(total)+r.Reserve {
		return r.failLocked(fmt.Errorf("%w: %d bytes available, need %d", ErrNoSpace, avail, uint64(total)+r.Reserve))
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return r.failLocked(err)
	}
	r.file, r.digest = f, md5.New()
	r.lastSize = -1
	r.session.Status = Receiving
	glog.Infof("fota receive %s", &r.session)
	r.emit(EventStarted, &r.session, nil)
	return nil
}

// Write appends the Data packet seq. A packet out of sequence is rejected
// and nothing is written.
func (r *Receiver) Write(seq uint16, chunk []byte) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	s := &r.session
	if s.Status != Receiving || r.file == nil {
		return ErrNoSession
	}
	if seq != s.Seq {
		// the previous packet resent because its Ack was lost.
		if seq == s.Seq-1 && len(chunk) == r.lastSize && frame.CRC16(chunk) == r.lastCRC {
			return nil
		}
		glog.Warningf("fota packet %d, expect %d", seq, s.Seq)
		return ErrSequence
	}
	if uint64(s.Bytes)+uint64(len(chunk)) > uint64(s.TotalSize) {
		return fmt.Errorf("%w: %d bytes beyond %d", ErrSize, uint64(s.Bytes)+uint64(len(chunk)), s.TotalSize)
	}
	if _, err := r.file.Write(chunk); err != nil {
		return r.failLocked(err)
	}
	r.digest.Write(chunk)
	s.Seq++
	s.Bytes += uint32(len(chunk))
	r.lastSize, r.lastCRC = len(chunk), frame.CRC16(chunk)
	r.emit(EventProgress, s, nil)
	return nil
}

// Finish verifies the image against the md5 hex checksum. On any mismatch
// the image is deleted.
func (r *Receiver) Finish(checksum string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	s := &r.session
	if s.Status != Receiving || r.file == nil {
		return ErrNoSession
	}
	s.Status = Verifying
	r.emit(EventVerifying, s, nil)
	if s.Bytes != s.TotalSize {
		return r.failLocked(fmt.Errorf("%w: received %d bytes, expect %d", ErrSize, s.Bytes, s.TotalSize))
	}
	if err := r.file.Close(); err != nil {
		r.file = nil
		return r.failLocked(err)
	}
	r.file = nil
	s.Checksum = hex.EncodeToString(r.digest.Sum(nil))
	if !strings.EqualFold(s.Checksum, strings.TrimSpace(checksum)) {
		return r.failLocked(fmt.Errorf("%w: md5 %s, expect %s", link.ErrChecksumMismatch, s.Checksum, checksum))
	}
	s.Status = Success
	glog.Infof("fota receive %s md5 %s", s, s.Checksum)
	r.emit(EventSuccess, s, nil)
	return nil
}

// Abort stops the session, deletes the partial image and tells the peer.
func (r *Receiver) Abort() error {
	if !r.abort(CodeAborted) {
		return ErrNoSession
	}
	if r.Sender != nil {
		return r.Sender.Send(frame.New(frame.TypeNotify, 0, CmdAbort, []byte{byte(CodeAborted)}))
	}
	return nil
}

func (r *Receiver) abort(code Code) bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	if !r.session.Status.Active() {
		return false
	}
	r.removeLocked()
	r.session.Status, r.session.Code = Failed, code
	glog.Warningf("fota receive %s", &r.session)
	r.emit(EventAborted, &r.session, ErrAborted)
	return true
}

func (r *Receiver) failLocked(err error) error {
	r.removeLocked()
	r.session.Status, r.session.Code = Failed, codeFor(err)
	glog.Errorf("fota receive %s: %v", &r.session, err)
	r.emit(EventFailed, &r.session, err)
	return err
}

func (r *Receiver) removeLocked() {
	if r.file != nil {
		r.file.Close()
		r.file = nil
	}
	if r.session.Path != "" {
		if err := os.Remove(r.session.Path); err != nil && !os.IsNotExist(err) {
			glog.Warningf("remove %s: %v", r.session.Path, err)
		}
	}
}

// HandleRequest implements link.Handler.
func (r *Receiver) HandleRequest(ctx context.Context, req *frame.Frame) {
	var err error
	switch req.Cmd {
	case CmdStart:
		var total uint32
		if total, err = decodeStart(req.Data); err == nil {
			err = r.Begin(total)
		}
	case CmdData:
		var seq uint16
		var chunk []byte
		if seq, chunk, err = decodeData(req.Data); err == nil {
			err = r.Write(seq, chunk)
		}
	case CmdFinish:
		err = r.Finish(string(req.Data))
	case CmdAbort:
		if !r.abort(Code(firstByte(req.Data))) {
			err = ErrNoSession
		}
	case CmdStatus:
		s := r.Session()
		r.reply(req, frame.TypeResponse, encodeStatus(&s))
		return
	default:
		err = link.ErrInvalidParameter
	}
	if err != nil {
		r.reply(req, frame.TypeNack, []byte{byte(codeFor(err))})
		return
	}
	r.reply(req, frame.TypeAck, nil)
}

func (r *Receiver) reply(req *frame.Frame, typ frame.Type, data []byte) {
	if err := r.Replier.Reply(req, typ, data); err != nil {
		glog.Warningf("reply %s: %v", req, err)
	}
}

func firstByte(b []byte) byte {
	if len(b) > 0 {
		return b[0]
	}
	return byte(CodeAborted)
}
