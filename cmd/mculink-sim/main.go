package main

//go-build: CGO_ENABLED=0

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/golang/glog"
	"github.com/spf13/cobra"
	"golang.org/x/net/websocket"

	"github.com/robotalks/mculink/pkg/framework"
	"github.com/robotalks/mculink/pkg/sim"
	"github.com/robotalks/mculink/pkg/transport"
)

var (
	listenAddr     = ":8080"
	wsPath         = "/link"
	dataDir        = "."
	motors         = 2
	notifyInterval time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "mculink-sim",
	Short: "Simulated microcontroller behind a websocket bridge",
	Long: `mculink-sim accepts the link over a websocket, so mculink can be tried
without hardware:

  mculink-sim --listen :8080 &
  mculink --device ws://localhost:8080/link shell`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	fs := rootCmd.Flags()
	fs.StringVar(&listenAddr, "listen", listenAddr, "Listen address.")
	fs.StringVar(&wsPath, "path", wsPath, "Websocket path.")
	fs.StringVar(&dataDir, "dir", dataDir, "Where files and firmware pushed by the host are stored.")
	fs.IntVar(&motors, "motors", motors, "Number of motors.")
	fs.DurationVar(&notifyInterval, "notify", notifyInterval, "Send sensor notifications at this interval, 0 disables.")
	fs.AddGoFlagSet(flag.CommandLine)
}

func run(cmd *cobra.Command, args []string) error {
	flag.CommandLine.Parse(nil)
	dev := sim.NewDevice(dataDir, motors)
	dev.NotifyInterval = notifyInterval
	dev.OnConnect = func() { glog.Info("sim link up") }

	mux := http.NewServeMux()
	mux.Handle(wsPath, websocket.Handler(func(conn *websocket.Conn) {
		glog.Infof("host connected from %s", conn.Request().RemoteAddr)
		if err := dev.Serve(conn.Request().Context(), transport.NewWebSocket(conn)); err != nil {
			glog.Warningf("serve: %v", err)
		}
	}))
	server := &http.Server{Addr: listenAddr, Handler: mux}

	return framework.NewRunner().HandleSignals().Go(
		framework.NamedRun("http", framework.RunFunc(func(ctx context.Context) error {
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				server.Shutdown(shutdownCtx)
			}()
			glog.Infof("listening on %s%s", listenAddr, wsPath)
			if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})),
	).Wait()
}

func main() {
	err := rootCmd.Execute()
	glog.Flush()
	if err != nil {
		os.Exit(1)
	}
}
