package sh

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/abiosoft/ishell"
	"github.com/spf13/pflag"

	"github.com/robotalks/mculink/pkg/config"
	"github.com/robotalks/mculink/pkg/frame"
	"github.com/robotalks/mculink/pkg/link"
	"github.com/robotalks/mculink/pkg/mcu"
	"github.com/robotalks/mculink/pkg/transport"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	AutoConnect bool

	Shell  *ishell.Shell
	Config *config.Config
	Conn   *Conn
}

// Conn is a running link with a command client.
type Conn struct {
	Ctx    context.Context
	Cancel func()
	Engine *link.Engine
	Client *mcu.Client

	monitor func()
}

const (
	shellKey          = "$shell"
	unconnectedPrompt = "[none] > "

	connectWait = 3 * time.Second
)

var (
	// flags

	evalOnly   bool
	outputJSON bool

	// commands
	commands = []*ishell.Cmd{
		&PortsCmd,
		&ConnectCmd,
		&DisconnectCmd,
		&StatusCmd,
		&MonitorCmd,
		&CallCmd,
	}
)

// SetupFlags registers shell flags.
func SetupFlags(fs *pflag.FlagSet) {
	fs.BoolVarP(&evalOnly, "eval", "e", evalOnly, "Evaluation only, no interactive shell.")
	fs.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(conf *config.Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell:  ishell.New(),
		Config: conf,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unconnectedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeConnected wraps command func requires a connection.
func MustBeConnected(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).Conn == nil {
			c.Err(fmt.Errorf("not connected"))
			return
		}
		fn(c)
	}
}

// Do runs fn with the connected client and prints the result. A nil
// result prints OK.
func Do(c *ishell.Context, fn func(ctx context.Context, client *mcu.Client) (interface{}, error)) error {
	s := ShellFrom(c)
	if s.Conn == nil {
		err := fmt.Errorf("not connected")
		c.Err(err)
		return err
	}
	res, err := fn(s.Conn.Ctx, s.Conn.Client)
	if err != nil {
		c.Err(err)
		return err
	}
	return s.Print(c, res)
}

// Print writes res in the configured output format.
func (s *Shell) Print(c *ishell.Context, res interface{}) error {
	if s.OutputJSON {
		if res == nil {
			res = map[string]bool{"ok": true}
		}
		out, err := json.Marshal(res)
		if err != nil {
			c.Err(err)
			return err
		}
		c.Println(string(out))
		return nil
	}
	switch v := res.(type) {
	case nil:
		c.Println("OK")
	case fmt.Stringer:
		c.Println(v.String())
	default:
		c.Printf("%+v\n", v)
	}
	return nil
}

// WithAutoConnect sets AutoConnect.
func (s *Shell) WithAutoConnect(en bool) *Shell {
	s.AutoConnect = en
	return s
}

// Connect starts a link on path, or the configured devices when path is
// empty, and waits a moment for it to come up.
func (s *Shell) Connect(path string) error {
	engine := s.Config.NewEngine()
	if path != "" {
		engine.Paths = []string{path}
	}
	states := engine.SubscribeState(4)
	defer engine.UnsubscribeState(states)

	conn := &Conn{Engine: engine, Client: s.Config.NewClient(engine)}
	conn.Ctx, conn.Cancel = context.WithCancel(context.Background())
	engine.Start()

	timer := time.NewTimer(connectWait)
	defer timer.Stop()
wait:
	for engine.State() != link.Connected {
		select {
		case <-states:
		case <-timer.C:
			break wait
		}
	}
	if engine.State() != link.Connected {
		conn.Cancel()
		engine.Close()
		return fmt.Errorf("connect %s: %w", strings.Join(engine.Paths, ","), link.ErrDisconnected)
	}
	s.Disconnect()
	s.Conn = conn
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", engine.Path()))
	return nil
}

// Disconnect disconnects current link.
func (s *Shell) Disconnect() {
	if s.Conn != nil {
		s.Conn.stopMonitor()
		s.Conn.Cancel()
		s.Conn.Engine.Close()
		s.Conn = nil
		s.Shell.SetPrompt(unconnectedPrompt)
	}
}

func (c *Conn) startMonitor(print func(string)) {
	if c.monitor != nil {
		return
	}
	ch := c.Engine.Subscribe(64)
	done := make(chan struct{})
	stopped := make(chan struct{})
	c.monitor = func() {
		close(done)
		<-stopped
		c.Engine.Unsubscribe(ch)
	}
	go func() {
		defer close(stopped)
		for {
			select {
			case <-done:
				return
			case f, ok := <-ch:
				if !ok {
					return
				}
				print(FormatNotify(f))
			}
		}
	}()
}

func (c *Conn) stopMonitor() {
	if c.monitor != nil {
		c.monitor()
		c.monitor = nil
	}
}

// FormatNotify prints a Notify frame for display.
func FormatNotify(f *frame.Frame) string {
	name := mcu.CommandName(f.Cmd)
	if name == "" {
		name = fmt.Sprintf("0x%04x", f.Cmd)
	}
	return fmt.Sprintf("NOTIFY %s seq=%d %s", name, f.Seq, hex.EncodeToString(f.Data))
}

// Run runs the shell.
func (s *Shell) Run(args ...string) error {
	if s.AutoConnect && (len(s.Config.Devices) > 0 || len(args) > 0) {
		if s.Interactive && len(args) == 0 {
			s.Shell.Println("Connecting ...")
		}
		if err := s.Connect(""); err != nil {
			return err
		}
		defer s.Disconnect()
	}

	if len(args) > 0 {
		return s.Shell.Process(args...)
	}
	if s.Interactive {
		s.Shell.Run()
		return nil
	}
	return fmt.Errorf("command expected")
}

// ParseUint parses an unsigned integer argument of bits size, accepting 0x
// prefixed hex.
func ParseUint(c *ishell.Context, n int, name string, bits int) (uint64, bool) {
	if n >= len(c.Args) {
		c.Err(fmt.Errorf("%s required", name))
		return 0, false
	}
	val, err := strconv.ParseUint(c.Args[n], 0, bits)
	if err != nil {
		c.Err(fmt.Errorf("invalid %s: %v", name, err))
		return 0, false
	}
	return val, true
}

// ParseFloat parses a float32 argument.
func ParseFloat(c *ishell.Context, n int, name string) (float32, bool) {
	if n >= len(c.Args) {
		c.Err(fmt.Errorf("%s required", name))
		return 0, false
	}
	val, err := strconv.ParseFloat(c.Args[n], 32)
	if err != nil {
		c.Err(fmt.Errorf("invalid %s: %v", name, err))
		return 0, false
	}
	return float32(val), true
}

// ParseCommand accepts a command name or code.
func ParseCommand(s string) (uint16, error) {
	if cmd, ok := mcu.CommandByName(s); ok {
		return cmd, nil
	}
	val, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("unknown command %q", s)
	}
	return uint16(val), nil
}

// ParseHex joins hex arguments into a payload.
func ParseHex(args []string) ([]byte, error) {
	s := strings.Join(args, "")
	s = strings.TrimPrefix(s, "0x")
	return hex.DecodeString(s)
}

type linkStatus struct {
	State      string `json:"state"`
	Path       string `json:"path"`
	Pending    int    `json:"pending"`
	FramesIn   uint64 `json:"frames_in"`
	FramesOut  uint64 `json:"frames_out"`
	CRCErrors  uint64 `json:"crc_errors"`
	Timeouts   uint64 `json:"timeouts"`
	Reconnects uint64 `json:"reconnects"`
}

var (
	// PortsCmd lists serial ports.
	PortsCmd = ishell.Cmd{
		Name:    "ports",
		Aliases: []string{"list", "l"},
		Help:    "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			ports, err := transport.Ports()
			if err != nil {
				c.Err(err)
				return
			}
			if s.OutputJSON {
				s.Print(c, ports)
				return
			}
			if len(ports) == 0 {
				c.Println("No serial ports found")
				return
			}
			for _, port := range ports {
				c.Println(port)
			}
		},
	}

	// ConnectCmd connects a device.
	ConnectCmd = ishell.Cmd{
		Name:    "connect",
		Aliases: []string{"c"},
		Help:    "[PATH]",
		Func: func(c *ishell.Context) {
			var path string
			if len(c.Args) > 0 {
				path = c.Args[0]
			}
			if err := ShellFrom(c).Connect(path); err != nil {
				c.Err(err)
			}
		},
	}

	// DisconnectCmd disconnects current device.
	DisconnectCmd = ishell.Cmd{
		Name:    "disconnect",
		Aliases: []string{"d"},
		Help:    "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Disconnect()
		},
	}

	// StatusCmd shows link state and counters.
	StatusCmd = ishell.Cmd{
		Name:    "status",
		Aliases: []string{"st"},
		Help:    "",
		Func: MustBeConnected(func(c *ishell.Context) {
			s := ShellFrom(c)
			e := s.Conn.Engine
			stats := e.Stats()
			s.Print(c, &linkStatus{
				State:      e.State().String(),
				Path:       e.Path(),
				Pending:    e.Pending(),
				FramesIn:   stats.FramesIn,
				FramesOut:  stats.FramesOut,
				CRCErrors:  stats.CRCErrors,
				Timeouts:   stats.Timeouts,
				Reconnects: stats.Reconnects,
			})
		}),
	}

	// MonitorCmd toggles printing of device notifications.
	MonitorCmd = ishell.Cmd{
		Name:    "monitor",
		Aliases: []string{"mon"},
		Help:    "on|off",
		Func: MustBeConnected(func(c *ishell.Context) {
			s := ShellFrom(c)
			if len(c.Args) > 0 && c.Args[0] == "off" {
				s.Conn.stopMonitor()
				return
			}
			s.Conn.startMonitor(func(line string) { s.Shell.Println(line) })
		}),
	}

	// CallCmd sends a raw command.
	CallCmd = ishell.Cmd{
		Name:    "call",
		Aliases: []string{"raw"},
		Help:    "CMD [HEX...]",
		Func: MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("CMD required"))
				return
			}
			cmd, err := ParseCommand(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			data, err := ParseHex(c.Args[1:])
			if err != nil {
				c.Err(fmt.Errorf("invalid payload: %v", err))
				return
			}
			Do(c, func(ctx context.Context, client *mcu.Client) (interface{}, error) {
				reply, err := client.Call(ctx, cmd, data)
				if err != nil || len(reply) == 0 {
					return nil, err
				}
				return hex.EncodeToString(reply), nil
			})
		}),
	}
)
