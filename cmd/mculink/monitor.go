package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"github.com/robotalks/mculink/pkg/bridge/mqtt"
	"github.com/robotalks/mculink/pkg/config"
	"github.com/robotalks/mculink/pkg/framework"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor [DEVICE-ID]",
	Short: "Print messages published by bridges",
	Long: `monitor subscribes to the MQTT broker given by --mqtt and prints what
bridges of all devices, or the given one, publish.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	conf := config.Default()
	if conf.MQTTURL == "" {
		return fmt.Errorf("--mqtt required")
	}
	opts, prefix, err := mqtt.ClientOptionsFromURL(conf.MQTTURL)
	if err != nil {
		return err
	}
	filter := "#"
	if len(args) > 0 {
		filter = args[0] + "/#"
	}
	q := mqtt.NewQueue(opts, prefix)
	var lock sync.Mutex
	sub := q.Sub(filter, func(topic string, payload []byte) {
		msg, err := mqtt.Decode(topic, payload)
		lock.Lock()
		defer lock.Unlock()
		if err != nil {
			fmt.Printf("%s: bad message: %v\n", topic, err)
			return
		}
		fmt.Printf("%s: [%T] %s\n", topic, msg, msg.String())
	})
	defer sub.Close()

	return framework.NewRunner().HandleSignals().Go(
		framework.NamedRun("monitor", framework.RunFunc(func(ctx context.Context) error {
			token := q.Connect()
			token.Wait()
			if err := token.Error(); err != nil {
				return err
			}
			defer q.Close()
			<-ctx.Done()
			return nil
		})),
	).Wait()
}
