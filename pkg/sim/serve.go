package sim

import (
	"context"

	"github.com/golang/glog"

	"github.com/robotalks/mculink/pkg/filexfer"
	"github.com/robotalks/mculink/pkg/fota"
	"github.com/robotalks/mculink/pkg/framework"
	"github.com/robotalks/mculink/pkg/link"
	"github.com/robotalks/mculink/pkg/transport"
)

// Serve runs the device on t until the host goes away or ctx is done.
// Files and firmware pushed by the host are stored in Dir.
func (d *Device) Serve(ctx context.Context, t transport.Transport) error {
	dialed := false
	e := link.NewEngine(transport.DialFunc(func(string) (transport.Transport, error) {
		if dialed {
			return nil, transport.ErrClosed
		}
		dialed = true
		return t, nil
	}), "host")
	states := e.SubscribeState(8)
	defer e.UnsubscribeState(states)

	files := filexfer.NewReceiver(e, d.Dir)
	defer files.Close()
	firmware := fota.NewReceiver(e, d.Dir)
	firmware.Sender = e
	e.Handler = link.NewMux(e).
		Handle(filexfer.CmdNotify, filexfer.CmdMask, files).
		Handle(fota.CmdStart, fota.CmdMask, firmware).
		Handle(0, 0, d.Handler(e))

	fileEvents, fotaEvents := files.Subscribe(16), firmware.Subscribe(16)
	defer files.Unsubscribe(fileEvents)
	defer firmware.Unsubscribe(fotaEvents)

	return framework.NewRunnerWith(ctx).Go(
		framework.NamedRun("link", e),
		framework.NamedRun("device", framework.RunFunc(func(ctx context.Context) error {
			return d.Run(ctx, e)
		})),
		framework.NamedRun("session", framework.RunFunc(func(ctx context.Context) error {
			connected := false
			for {
				select {
				case <-ctx.Done():
					return nil
				case state := <-states:
					if state == link.Connected {
						connected = true
						if d.OnConnect != nil {
							d.OnConnect()
						}
					} else if connected && state == link.Disconnected {
						glog.Info("sim host disconnected")
						return nil
					}
				case ev := <-fileEvents:
					glog.Infof("sim file %s: %s", ev.Type, &ev.Session)
				case ev := <-fotaEvents:
					glog.Infof("sim fota %s: %s", ev.Type, &ev.Session)
				}
			}
		})),
	).Wait()
}
