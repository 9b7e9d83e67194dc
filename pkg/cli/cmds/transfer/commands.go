// Package transfer exposes file transfer and firmware update in the shell.
package transfer

import (
	"context"
	"fmt"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/mculink/pkg/cli/sh"
	"github.com/robotalks/mculink/pkg/filexfer"
	"github.com/robotalks/mculink/pkg/fota"
	"github.com/robotalks/mculink/pkg/mcu"
)

// showProgress displays percent from ch on a progress bar until the
// returned func is called.
func showProgress(c *ishell.Context, prefix string, ch <-chan int) func() {
	s := sh.ShellFrom(c)
	if !s.Interactive || s.OutputJSON {
		return func() {}
	}
	bar := c.ProgressBar()
	bar.Prefix(prefix + " ")
	bar.Start()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for pct := range ch {
			bar.Progress(pct)
			bar.Suffix(fmt.Sprintf(" %d%%", pct))
		}
	}()
	return func() {
		<-done
		bar.Stop()
	}
}

func fileProgress(events <-chan filexfer.Event, out chan<- int, stop <-chan struct{}) {
	defer close(out)
	for {
		select {
		case <-stop:
			return
		case ev := <-events:
			if ev.Type != filexfer.EventProgress {
				continue
			}
			select {
			case out <- ev.Session.Progress():
			case <-stop:
				return
			}
		}
	}
}

func fotaProgress(events <-chan fota.Event, out chan<- int, stop <-chan struct{}) {
	defer close(out)
	for {
		select {
		case <-stop:
			return
		case ev := <-events:
			if ev.Type != fota.EventProgress {
				continue
			}
			select {
			case out <- ev.Session.Progress():
			case <-stop:
				return
			}
		}
	}
}

func newSender(c *ishell.Context, client *mcu.Client) *filexfer.Sender {
	sender := filexfer.NewSender(client)
	sender.BlockSize = sh.ShellFrom(c).Config.BlockSize
	return sender
}

func newPusher(c *ishell.Context, client *mcu.Client) *fota.Pusher {
	pusher := fota.NewPusher(client)
	pusher.ChunkSize = sh.ShellFrom(c).Config.ChunkSize
	return pusher
}

var (
	// PushCmd uploads a file to the device.
	PushCmd = ishell.Cmd{
		Name:    "push",
		Aliases: []string{"upload"},
		Help:    "LOCAL-FILE [REMOTE-NAME]",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("LOCAL-FILE required"))
				return
			}
			local, remote := c.Args[0], ""
			if len(c.Args) > 1 {
				remote = c.Args[1]
			}
			sh.Do(c, func(ctx context.Context, client *mcu.Client) (interface{}, error) {
				sender := newSender(c, client)
				events := sender.Subscribe(64)
				defer sender.Unsubscribe(events)
				pct, stop := make(chan int, 1), make(chan struct{})
				go fileProgress(events, pct, stop)
				wait := showProgress(c, local, pct)
				err := sender.Send(ctx, local, remote)
				close(stop)
				wait()
				if err != nil {
					return nil, err
				}
				sess, _ := sender.Session()
				return sess.String(), nil
			})
		}),
	}

	// FetchCmd asks the device to send a file.
	FetchCmd = ishell.Cmd{
		Name:    "fetch",
		Aliases: []string{"download"},
		Help:    "REMOTE-NAME",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("REMOTE-NAME required"))
				return
			}
			sh.Do(c, func(ctx context.Context, client *mcu.Client) (interface{}, error) {
				return nil, filexfer.NewSender(client).Request(ctx, c.Args[0])
			})
		}),
	}

	// FOTACmd sends a firmware image.
	FOTACmd = ishell.Cmd{
		Name:    "fota",
		Aliases: []string{"flash"},
		Help:    "FIRMWARE-FILE",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("FIRMWARE-FILE required"))
				return
			}
			sh.Do(c, func(ctx context.Context, client *mcu.Client) (interface{}, error) {
				pusher := newPusher(c, client)
				events := pusher.Subscribe(64)
				defer pusher.Unsubscribe(events)
				pct, stop := make(chan int, 1), make(chan struct{})
				go fotaProgress(events, pct, stop)
				wait := showProgress(c, c.Args[0], pct)
				err := pusher.Push(ctx, c.Args[0])
				close(stop)
				wait()
				if err != nil {
					return nil, err
				}
				sess := pusher.Session()
				return sess.String(), nil
			})
		}),
	}

	// FOTAStatusCmd queries the update status of the device.
	FOTAStatusCmd = ishell.Cmd{
		Name: "fota.status",
		Help: "",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			sh.Do(c, func(ctx context.Context, client *mcu.Client) (interface{}, error) {
				return fota.NewPusher(client).RemoteStatus(ctx)
			})
		}),
	}

	// FOTAAbortCmd aborts the update running on the device.
	FOTAAbortCmd = ishell.Cmd{
		Name: "fota.abort",
		Help: "",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			sh.Do(c, func(ctx context.Context, client *mcu.Client) (interface{}, error) {
				return nil, fota.NewPusher(client).Abort(ctx)
			})
		}),
	}
)

func init() {
	sh.AddCmds(
		&PushCmd,
		&FetchCmd,
		&FOTACmd,
		&FOTAStatusCmd,
		&FOTAAbortCmd,
	)
}
