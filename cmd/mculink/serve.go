package main

import (
	"context"
	"time"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/robotalks/mculink/pkg/bridge/mqtt"
	"github.com/robotalks/mculink/pkg/config"
	"github.com/robotalks/mculink/pkg/filexfer"
	"github.com/robotalks/mculink/pkg/fota"
	"github.com/robotalks/mculink/pkg/framework"
	"github.com/robotalks/mculink/pkg/link"
	"github.com/robotalks/mculink/pkg/mcu"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Keep the link up and serve device initiated transfers",
	Long: `serve keeps the link connected, reconnecting when the device goes away.

It stores files and firmware pushed by the device, serves files the device
requests, feeds the device watchdog with --watchdog, and bridges the link to
MQTT with --mqtt.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func logEvents[T any](ctx context.Context, kind string, ch <-chan T) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-ch:
			glog.Infof("%s: %v", kind, ev)
		}
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	conf := config.Default()
	engine := conf.NewEngine()
	client := conf.NewClient(engine)

	uploader := filexfer.NewSender(client)
	uploader.BlockSize = conf.BlockSize
	files := filexfer.NewReceiver(engine, conf.DownloadDir)
	files.Uploader = uploader
	files.UploadDir = conf.UploadDir
	defer files.Close()

	firmware := fota.NewReceiver(engine, conf.FirmwareDir)
	firmware.Sender = engine

	engine.Handler = link.NewMux(engine).
		Handle(filexfer.CmdNotify, filexfer.CmdMask, files).
		Handle(fota.CmdStart, fota.CmdMask, firmware)

	runner := framework.NewRunner().HandleSignals()
	var linkRun framework.Runnable = engine
	if conf.WatchdogTimeout > 0 {
		// the feeder disarms the watchdog through the link on exit.
		linkRun = framework.Layered(engine, framework.NamedRun("watchdog", &mcu.WatchdogFeeder{
			Client:  client,
			Timeout: conf.WatchdogTimeout,
		}))
	}
	runner.Go(framework.NamedRun("link", linkRun))

	fileEvents, uploadEvents, fotaEvents := files.Subscribe(64), uploader.Subscribe(64), firmware.Subscribe(64)
	defer files.Unsubscribe(fileEvents)
	defer uploader.Unsubscribe(uploadEvents)
	defer firmware.Unsubscribe(fotaEvents)

	if conf.MQTTURL != "" {
		opts, prefix, err := mqtt.ClientOptionsFromURL(conf.MQTTURL)
		if err != nil {
			return err
		}
		if opts.ClientID == "" {
			opts.SetClientID("mculink-" + conf.ID())
		}
		b := mqtt.NewBridge(mqtt.NewQueue(opts, prefix), engine, client, conf.ID()).
			WatchFiles(fileEvents).
			WatchFiles(uploadEvents).
			WatchFOTA(fotaEvents)
		runner.Go(framework.NamedRun("mqtt", b))
	} else {
		runner.Go(
			framework.NamedRun("file-events", framework.RunFunc(func(ctx context.Context) error {
				return logEvents(ctx, "file", fileEvents)
			})),
			framework.NamedRun("upload-events", framework.RunFunc(func(ctx context.Context) error {
				return logEvents(ctx, "upload", uploadEvents)
			})),
			framework.NamedRun("fota-events", framework.RunFunc(func(ctx context.Context) error {
				return logEvents(ctx, "fota", fotaEvents)
			})),
		)
	}

	glog.Infof("serving %s", describePaths(engine))
	start := time.Now()
	err := runner.Wait()
	glog.Infof("stopped after %s: %s", time.Since(start).Round(time.Second), engine.Stats())
	return err
}

func describePaths(e *link.Engine) string {
	if len(e.Paths) == 0 {
		return "default devices"
	}
	return e.Paths[0]
}
