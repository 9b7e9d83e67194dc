package fota

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/mculink/pkg/link"
	"github.com/robotalks/mculink/pkg/mcu"
)

// Pusher sends firmware images to the peer.
type Pusher struct {
	events

	Client    *mcu.Client
	ChunkSize int
	Retries   int

	session Session
	lock    sync.Mutex
}

// NewPusher creates a Pusher.
func NewPusher(c *mcu.Client) *Pusher {
	return &Pusher{Client: c, ChunkSize: DefaultChunkSize, Retries: DefaultRetries}
}

// Session returns a snapshot of the current or last push.
func (p *Pusher) Session() Session {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.session
}

// Checksum returns the md5 hex digest of r.
func Checksum(r io.Reader) (string, error) {
	h := md5.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (p *Pusher) chunkSize() (int, error) {
	switch {
	case p.ChunkSize == 0:
		return DefaultChunkSize, nil
	case p.ChunkSize < 0 || p.ChunkSize > MaxChunkSize:
		return 0, fmt.Errorf("%w: chunk size %d", link.ErrInvalidParameter, p.ChunkSize)
	}
	return p.ChunkSize, nil
}

// Push sends the image at path.
func (p *Pusher) Push(ctx context.Context, path string) error {
	chunkSize, err := p.chunkSize()
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size() > math.MaxUint32 {
		return fmt.Errorf("%w: %s too large", link.ErrInvalidParameter, path)
	}
	checksum, err := Checksum(f)
	if err != nil {
		return err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}

	p.lock.Lock()
	if p.session.Status.Active() {
		p.lock.Unlock()
		return ErrBusy
	}
	p.session = Session{Path: path, TotalSize: uint32(info.Size()), Checksum: checksum, Status: Sending}
	snapshot := p.session
	p.lock.Unlock()

	glog.Infof("fota push %s md5 %s", &snapshot, checksum)
	p.emit(EventStarted, &snapshot, nil)
	if err := p.run(ctx, f, chunkSize); err != nil {
		return p.fail(err)
	}
	return nil
}

func (p *Pusher) run(ctx context.Context, r io.Reader, chunkSize int) error {
	s := p.Session()
	if err := p.call(ctx, CmdStart, encodeStart(s.TotalSize)); err != nil {
		return err
	}
	buf := make([]byte, chunkSize)
	for s.Bytes < s.TotalSize {
		n, err := io.ReadFull(r, buf)
		if n == 0 {
			if err == nil || errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return err
		}
		if err := p.call(ctx, CmdData, encodeData(s.Seq, buf[:n])); err != nil {
			return err
		}
		var ok bool
		if s, ok = p.update(func(s *Session) {
			s.Seq++
			s.Bytes += uint32(n)
		}); !ok {
			return ErrAborted
		}
		p.emit(EventProgress, &s, nil)
	}

	if s, _ = p.update(func(s *Session) { s.Status = Verifying }); s.Status != Verifying {
		return ErrAborted
	}
	p.emit(EventVerifying, &s, nil)
	if err := p.call(ctx, CmdFinish, []byte(s.Checksum)); err != nil {
		return err
	}
	if s, _ = p.update(func(s *Session) { s.Status = Success }); s.Status != Success {
		return ErrAborted
	}
	glog.Infof("fota push %s", &s)
	p.emit(EventSuccess, &s, nil)
	return nil
}

// update applies fn while the push is active.
func (p *Pusher) update(fn func(*Session)) (Session, bool) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if !p.session.Status.Active() {
		return p.session, false
	}
	fn(&p.session)
	return p.session, true
}

// call sends one request, retrying up to Retries times.
func (p *Pusher) call(ctx context.Context, cmd uint16, data []byte) (err error) {
	for attempt := 0; attempt <= p.Retries; attempt++ {
		if !p.Session().Status.Active() {
			return ErrAborted
		}
		if _, err = p.Client.Call(ctx, cmd, data); err == nil {
			return nil
		}
		if ctx.Err() != nil || errors.Is(err, link.ErrShutdown) {
			break
		}
		glog.Warningf("fota cmd 0x%04x attempt %d: %v", cmd, attempt+1, err)
	}
	return err
}

func (p *Pusher) fail(err error) error {
	if errors.Is(err, ErrAborted) {
		return err
	}
	code := codeFor(err)
	var cmdErr *link.CommandError
	if errors.As(err, &cmdErr) && cmdErr.Code() != 0 {
		code = Code(cmdErr.Code())
	}
	p.lock.Lock()
	p.session.Status, p.session.Code = Failed, code
	s := p.session
	p.lock.Unlock()
	glog.Errorf("fota push %s: %v", &s, err)
	p.emit(EventFailed, &s, err)
	if !errors.Is(err, link.ErrShutdown) && (cmdErr == nil || cmdErr.Cmd != CmdStart) {
		p.abortRemote(code)
	}
	return err
}

// abortRemote tells the peer to discard a partial image. A Start rejected
// by the peer may belong to another session, so it's left alone.
func (p *Pusher) abortRemote(code Code) {
	ctx, cancel := context.WithTimeout(context.Background(), p.Client.CallTimeout())
	defer cancel()
	if _, err := p.Client.Call(ctx, CmdAbort, []byte{byte(code)}); err != nil {
		glog.V(1).Infof("fota abort: %v", err)
	}
}

// Abort stops the push in progress and tells the peer to discard the
// image.
func (p *Pusher) Abort(ctx context.Context) error {
	p.lock.Lock()
	active := p.session.Status.Active()
	if active {
		p.session.Status, p.session.Code = Failed, CodeAborted
	}
	s := p.session
	p.lock.Unlock()
	if active {
		glog.Warningf("fota push %s", &s)
		p.emit(EventAborted, &s, ErrAborted)
	}
	_, err := p.Client.Call(ctx, CmdAbort, []byte{byte(CodeAborted)})
	return err
}

// RemoteStatus queries the peer's receiving session.
func (p *Pusher) RemoteStatus(ctx context.Context) (Session, error) {
	data, err := p.Client.Call(ctx, CmdStatus, nil)
	if err != nil {
		return Session{}, err
	}
	return decodeStatus(data)
}
