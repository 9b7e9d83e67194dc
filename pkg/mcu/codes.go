package mcu

// System commands.
const (
	CmdPing            uint16 = 0x0001
	CmdGetVersion      uint16 = 0x0002
	CmdGetUptime       uint16 = 0x0003
	CmdReboot          uint16 = 0x0004
	CmdSyncTime        uint16 = 0x0005
	CmdEnterBootloader uint16 = 0x0006
)

// Query commands.
const (
	CmdGetNetworkStatus uint16 = 0x0101
	CmdGetPowerStatus   uint16 = 0x0102
	CmdGetDeviceInfo    uint16 = 0x0103
	CmdGetBatteryStatus uint16 = 0x0104
)

// Motor commands. 0x30xx control, 0x31xx state and tuning.
const (
	CmdSetMotorAngle  uint16 = 0x3001
	CmdSetMotorSpeed  uint16 = 0x3002
	CmdStopMotor      uint16 = 0x3003
	CmdStopAllMotors  uint16 = 0x3004
	CmdEnableMotor    uint16 = 0x3005
	CmdDisableMotor   uint16 = 0x3006
	CmdHomeMotor      uint16 = 0x3007
	CmdGetMotorState  uint16 = 0x3101
	CmdGetMotorStates uint16 = 0x3102
	CmdSetMotorPID    uint16 = 0x3103
)

// Sensor commands.
const (
	CmdGetIMU          uint16 = 0x4001
	CmdGetTemperature  uint16 = 0x4002
	CmdGetDistance     uint16 = 0x4003
	CmdGetAmbientLight uint16 = 0x4004
	CmdGetSensors      uint16 = 0x4010
)

// Device commands.
const (
	CmdSetLED            uint16 = 0x5001
	CmdSetFan            uint16 = 0x5002
	CmdSetPowerRail      uint16 = 0x5003
	CmdSetBuzzer         uint16 = 0x5004
	CmdEnableWatchdog    uint16 = 0x5010
	CmdDisableWatchdog   uint16 = 0x5011
	CmdFeedWatchdog      uint16 = 0x5012
	CmdGetWatchdogStatus uint16 = 0x5013
)

// Command groups by the high byte.
const (
	GroupSystem uint16 = 0x0000
	GroupQuery  uint16 = 0x0100
	GroupMotor  uint16 = 0x3000
	GroupSensor uint16 = 0x4000
	GroupDevice uint16 = 0x5000
	GroupFile   uint16 = 0x6000
	GroupMask   uint16 = 0xFF00
)

var cmdNames = map[uint16]string{
	CmdPing:              "ping",
	CmdGetVersion:        "version",
	CmdGetUptime:         "uptime",
	CmdReboot:            "reboot",
	CmdSyncTime:          "sync-time",
	CmdEnterBootloader:   "bootloader",
	CmdGetNetworkStatus:  "network",
	CmdGetPowerStatus:    "power",
	CmdGetDeviceInfo:     "device-info",
	CmdGetBatteryStatus:  "battery",
	CmdSetMotorAngle:     "motor-angle",
	CmdSetMotorSpeed:     "motor-speed",
	CmdStopMotor:         "motor-stop",
	CmdStopAllMotors:     "motor-stop-all",
	CmdEnableMotor:       "motor-enable",
	CmdDisableMotor:      "motor-disable",
	CmdHomeMotor:         "motor-home",
	CmdGetMotorState:     "motor-state",
	CmdGetMotorStates:    "motor-states",
	CmdSetMotorPID:       "motor-pid",
	CmdGetIMU:            "imu",
	CmdGetTemperature:    "temperature",
	CmdGetDistance:       "distance",
	CmdGetAmbientLight:   "light",
	CmdGetSensors:        "sensors",
	CmdSetLED:            "led",
	CmdSetFan:            "fan",
	CmdSetPowerRail:      "power-rail",
	CmdSetBuzzer:         "buzzer",
	CmdEnableWatchdog:    "watchdog-enable",
	CmdDisableWatchdog:   "watchdog-disable",
	CmdFeedWatchdog:      "watchdog-feed",
	CmdGetWatchdogStatus: "watchdog",
}

// CommandName returns a short name of a known command, or empty.
func CommandName(cmd uint16) string {
	return cmdNames[cmd]
}

// CommandByName looks up a command code by CommandName.
func CommandByName(name string) (uint16, bool) {
	for cmd, n := range cmdNames {
		if n == name {
			return cmd, true
		}
	}
	return 0, false
}
