// Package device exposes microcontroller commands in the shell.
package device

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/mculink/pkg/cli/sh"
	"github.com/robotalks/mculink/pkg/mcu"
)

type queryFunc func(ctx context.Context, client *mcu.Client) (interface{}, error)

func query(fn queryFunc) func(c *ishell.Context) {
	return sh.MustBeConnected(func(c *ishell.Context) {
		sh.Do(c, fn)
	})
}

func exec(c *ishell.Context, fn func(ctx context.Context, client *mcu.Client) error) {
	sh.Do(c, func(ctx context.Context, client *mcu.Client) (interface{}, error) {
		return nil, fn(ctx, client)
	})
}

func motorID(c *ishell.Context) (byte, bool) {
	id, ok := sh.ParseUint(c, 0, "ID", 8)
	return byte(id), ok
}

var (
	// PingCmd checks the device answers.
	PingCmd = ishell.Cmd{
		Name: "ping",
		Help: "",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			sh.Do(c, func(ctx context.Context, client *mcu.Client) (interface{}, error) {
				start := time.Now()
				if err := client.Ping(ctx); err != nil {
					return nil, err
				}
				return time.Since(start).String(), nil
			})
		}),
	}

	// VersionCmd shows firmware version.
	VersionCmd = ishell.Cmd{
		Name:    "version",
		Aliases: []string{"ver"},
		Help:    "",
		Func: query(func(ctx context.Context, client *mcu.Client) (interface{}, error) {
			return client.GetVersion(ctx)
		}),
	}

	// UptimeCmd shows device uptime.
	UptimeCmd = ishell.Cmd{
		Name: "uptime",
		Help: "",
		Func: query(func(ctx context.Context, client *mcu.Client) (interface{}, error) {
			d, err := client.GetUptime(ctx)
			if err != nil {
				return nil, err
			}
			return d.String(), nil
		}),
	}

	// RebootCmd reboots the device.
	RebootCmd = ishell.Cmd{
		Name: "reboot",
		Help: "[DELAY(ms)]",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			var delay uint64
			if len(c.Args) > 0 {
				var ok bool
				if delay, ok = sh.ParseUint(c, 0, "DELAY", 32); !ok {
					return
				}
			}
			exec(c, func(ctx context.Context, client *mcu.Client) error {
				return client.Reboot(ctx, time.Duration(delay)*time.Millisecond)
			})
		}),
	}

	// SyncTimeCmd sets device clock to local time.
	SyncTimeCmd = ishell.Cmd{
		Name: "synctime",
		Help: "",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			exec(c, func(ctx context.Context, client *mcu.Client) error {
				return client.SyncTime(ctx, time.Now())
			})
		}),
	}

	// BootloaderCmd switches the device to its bootloader.
	BootloaderCmd = ishell.Cmd{
		Name: "bootloader",
		Help: "",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			exec(c, func(ctx context.Context, client *mcu.Client) error {
				return client.EnterBootloader(ctx)
			})
		}),
	}

	// InfoCmd shows device info.
	InfoCmd = ishell.Cmd{
		Name: "info",
		Help: "",
		Func: query(func(ctx context.Context, client *mcu.Client) (interface{}, error) {
			return client.GetDeviceInfo(ctx)
		}),
	}

	// NetworkCmd shows network status.
	NetworkCmd = ishell.Cmd{
		Name:    "network",
		Aliases: []string{"net"},
		Help:    "",
		Func: query(func(ctx context.Context, client *mcu.Client) (interface{}, error) {
			return client.GetNetworkStatus(ctx)
		}),
	}

	// PowerCmd shows power status.
	PowerCmd = ishell.Cmd{
		Name: "power",
		Help: "",
		Func: query(func(ctx context.Context, client *mcu.Client) (interface{}, error) {
			return client.GetPowerStatus(ctx)
		}),
	}

	// BatteryCmd shows battery status.
	BatteryCmd = ishell.Cmd{
		Name:    "battery",
		Aliases: []string{"bat"},
		Help:    "",
		Func: query(func(ctx context.Context, client *mcu.Client) (interface{}, error) {
			return client.GetBatteryStatus(ctx)
		}),
	}

	// MotorSpeedCmd runs a motor at a velocity.
	MotorSpeedCmd = ishell.Cmd{
		Name:    "motor.speed",
		Aliases: []string{"ms"},
		Help:    "ID VELOCITY",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			id, ok := motorID(c)
			if !ok {
				return
			}
			vel, ok := sh.ParseFloat(c, 1, "VELOCITY")
			if !ok {
				return
			}
			exec(c, func(ctx context.Context, client *mcu.Client) error {
				return client.SetMotorSpeed(ctx, id, vel)
			})
		}),
	}

	// MotorAngleCmd moves a motor to an angle.
	MotorAngleCmd = ishell.Cmd{
		Name:    "motor.angle",
		Aliases: []string{"ma"},
		Help:    "ID ANGLE [VELOCITY]",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			id, ok := motorID(c)
			if !ok {
				return
			}
			angle, ok := sh.ParseFloat(c, 1, "ANGLE")
			if !ok {
				return
			}
			var vel float32
			if len(c.Args) > 2 {
				if vel, ok = sh.ParseFloat(c, 2, "VELOCITY"); !ok {
					return
				}
			}
			exec(c, func(ctx context.Context, client *mcu.Client) error {
				return client.SetMotorAngle(ctx, id, angle, vel)
			})
		}),
	}

	// MotorStopCmd stops one motor, or all without ID.
	MotorStopCmd = ishell.Cmd{
		Name:    "motor.stop",
		Aliases: []string{"stop"},
		Help:    "[ID]",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) == 0 {
				exec(c, func(ctx context.Context, client *mcu.Client) error {
					return client.StopAllMotors(ctx)
				})
				return
			}
			id, ok := motorID(c)
			if !ok {
				return
			}
			exec(c, func(ctx context.Context, client *mcu.Client) error {
				return client.StopMotor(ctx, id)
			})
		}),
	}

	// MotorEnableCmd enables or disables a motor driver.
	MotorEnableCmd = ishell.Cmd{
		Name: "motor.enable",
		Help: "ID [on|off]",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			id, ok := motorID(c)
			if !ok {
				return
			}
			on := true
			if len(c.Args) > 1 {
				var err error
				if on, err = parseOnOff(c.Args[1]); err != nil {
					c.Err(err)
					return
				}
			}
			exec(c, func(ctx context.Context, client *mcu.Client) error {
				if on {
					return client.EnableMotor(ctx, id)
				}
				return client.DisableMotor(ctx, id)
			})
		}),
	}

	// MotorHomeCmd homes a motor.
	MotorHomeCmd = ishell.Cmd{
		Name: "motor.home",
		Help: "ID",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			id, ok := motorID(c)
			if !ok {
				return
			}
			exec(c, func(ctx context.Context, client *mcu.Client) error {
				return client.HomeMotor(ctx, id)
			})
		}),
	}

	// MotorPIDCmd tunes the motor controller.
	MotorPIDCmd = ishell.Cmd{
		Name: "motor.pid",
		Help: "ID KP KI KD",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			id, ok := motorID(c)
			if !ok {
				return
			}
			var gains [3]float32
			for n, name := range []string{"KP", "KI", "KD"} {
				if gains[n], ok = sh.ParseFloat(c, n+1, name); !ok {
					return
				}
			}
			exec(c, func(ctx context.Context, client *mcu.Client) error {
				return client.SetMotorPID(ctx, id, gains[0], gains[1], gains[2])
			})
		}),
	}

	// MotorStateCmd shows one motor, or all without ID.
	MotorStateCmd = ishell.Cmd{
		Name:    "motor.state",
		Aliases: []string{"motors"},
		Help:    "[ID]",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) == 0 {
				sh.Do(c, func(ctx context.Context, client *mcu.Client) (interface{}, error) {
					return client.GetMotorStates(ctx)
				})
				return
			}
			id, ok := motorID(c)
			if !ok {
				return
			}
			sh.Do(c, func(ctx context.Context, client *mcu.Client) (interface{}, error) {
				return client.GetMotorState(ctx, id)
			})
		}),
	}

	// SensorsCmd shows all sensor readings.
	SensorsCmd = ishell.Cmd{
		Name:    "sensors",
		Aliases: []string{"sen"},
		Help:    "",
		Func: query(func(ctx context.Context, client *mcu.Client) (interface{}, error) {
			return client.GetSensors(ctx)
		}),
	}

	// IMUCmd shows IMU readings.
	IMUCmd = ishell.Cmd{
		Name: "imu",
		Help: "",
		Func: query(func(ctx context.Context, client *mcu.Client) (interface{}, error) {
			return client.GetIMU(ctx)
		}),
	}

	// TemperatureCmd shows the temperature.
	TemperatureCmd = ishell.Cmd{
		Name:    "temperature",
		Aliases: []string{"temp"},
		Help:    "",
		Func: query(func(ctx context.Context, client *mcu.Client) (interface{}, error) {
			return client.GetTemperature(ctx)
		}),
	}

	// DistanceCmd shows the distance sensor in mm.
	DistanceCmd = ishell.Cmd{
		Name:    "distance",
		Aliases: []string{"dist"},
		Help:    "",
		Func: query(func(ctx context.Context, client *mcu.Client) (interface{}, error) {
			return client.GetDistance(ctx)
		}),
	}

	// LightCmd shows ambient light in lux.
	LightCmd = ishell.Cmd{
		Name: "light",
		Help: "",
		Func: query(func(ctx context.Context, client *mcu.Client) (interface{}, error) {
			return client.GetAmbientLight(ctx)
		}),
	}

	// LEDCmd sets a LED color.
	LEDCmd = ishell.Cmd{
		Name: "led",
		Help: "ID R G B",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			var vals [4]byte
			for n, name := range []string{"ID", "R", "G", "B"} {
				val, ok := sh.ParseUint(c, n, name, 8)
				if !ok {
					return
				}
				vals[n] = byte(val)
			}
			exec(c, func(ctx context.Context, client *mcu.Client) error {
				return client.SetLED(ctx, vals[0], vals[1], vals[2], vals[3])
			})
		}),
	}

	// FanCmd sets fan speed.
	FanCmd = ishell.Cmd{
		Name: "fan",
		Help: "ID PERCENT",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			id, ok := sh.ParseUint(c, 0, "ID", 8)
			if !ok {
				return
			}
			pct, ok := sh.ParseUint(c, 1, "PERCENT", 8)
			if !ok {
				return
			}
			if pct > 100 {
				c.Err(fmt.Errorf("PERCENT must be in [0, 100]"))
				return
			}
			exec(c, func(ctx context.Context, client *mcu.Client) error {
				return client.SetFan(ctx, byte(id), byte(pct))
			})
		}),
	}

	// RailCmd switches a power rail.
	RailCmd = ishell.Cmd{
		Name: "rail",
		Help: "ID on|off",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			id, ok := sh.ParseUint(c, 0, "ID", 8)
			if !ok {
				return
			}
			if len(c.Args) < 2 {
				c.Err(fmt.Errorf("on|off required"))
				return
			}
			on, err := parseOnOff(c.Args[1])
			if err != nil {
				c.Err(err)
				return
			}
			exec(c, func(ctx context.Context, client *mcu.Client) error {
				return client.SetPowerRail(ctx, byte(id), on)
			})
		}),
	}

	// BuzzerCmd beeps.
	BuzzerCmd = ishell.Cmd{
		Name:    "buzzer",
		Aliases: []string{"beep"},
		Help:    "FREQ(Hz) DURATION(ms)",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			freq, ok := sh.ParseUint(c, 0, "FREQ", 16)
			if !ok {
				return
			}
			ms, ok := sh.ParseUint(c, 1, "DURATION", 16)
			if !ok {
				return
			}
			exec(c, func(ctx context.Context, client *mcu.Client) error {
				return client.SetBuzzer(ctx, uint16(freq), time.Duration(ms)*time.Millisecond)
			})
		}),
	}

	// WatchdogCmd controls the device watchdog.
	WatchdogCmd = ishell.Cmd{
		Name:    "watchdog",
		Aliases: []string{"wdt"},
		Help:    "[enable TIMEOUT(ms)|disable|feed]",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) == 0 {
				sh.Do(c, func(ctx context.Context, client *mcu.Client) (interface{}, error) {
					return client.GetWatchdogStatus(ctx)
				})
				return
			}
			switch c.Args[0] {
			case "enable":
				ms, ok := sh.ParseUint(c, 1, "TIMEOUT", 32)
				if !ok {
					return
				}
				exec(c, func(ctx context.Context, client *mcu.Client) error {
					return client.EnableWatchdog(ctx, time.Duration(ms)*time.Millisecond)
				})
			case "disable":
				exec(c, func(ctx context.Context, client *mcu.Client) error {
					return client.DisableWatchdog(ctx)
				})
			case "feed":
				exec(c, func(ctx context.Context, client *mcu.Client) error {
					return client.FeedWatchdog(ctx)
				})
			default:
				c.Err(fmt.Errorf("unknown watchdog action %q", c.Args[0]))
			}
		}),
	}
)

func parseOnOff(s string) (bool, error) {
	switch s {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	on, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("expect on|off: %q", s)
	}
	return on, nil
}

func init() {
	sh.AddCmds(
		&PingCmd,
		&VersionCmd,
		&UptimeCmd,
		&RebootCmd,
		&SyncTimeCmd,
		&BootloaderCmd,
		&InfoCmd,
		&NetworkCmd,
		&PowerCmd,
		&BatteryCmd,
		&MotorSpeedCmd,
		&MotorAngleCmd,
		&MotorStopCmd,
		&MotorEnableCmd,
		&MotorHomeCmd,
		&MotorPIDCmd,
		&MotorStateCmd,
		&SensorsCmd,
		&IMUCmd,
		&TemperatureCmd,
		&DistanceCmd,
		&LightCmd,
		&LEDCmd,
		&FanCmd,
		&RailCmd,
		&BuzzerCmd,
		&WatchdogCmd,
	)
}
