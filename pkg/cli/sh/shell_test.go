package sh

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/mculink/pkg/frame"
	"github.com/robotalks/mculink/pkg/mcu"
)

func TestParseCommand(t *testing.T) {
	cmd, err := ParseCommand("ping")
	require.NoError(t, err)
	require.Equal(t, mcu.CmdPing, cmd)

	cmd, err = ParseCommand("0x3001")
	require.NoError(t, err)
	require.Equal(t, uint16(0x3001), cmd)

	_, err = ParseCommand("0x10000")
	require.Error(t, err)
	_, err = ParseCommand("nope")
	require.Error(t, err)
}

func TestParseHex(t *testing.T) {
	data, err := ParseHex([]string{"0x01", "ff", "A0"})
	require.NoError(t, err)
	require.Equal(t, []byte{1, 0xff, 0xa0}, data)

	data, err = ParseHex(nil)
	require.NoError(t, err)
	require.Empty(t, data)

	_, err = ParseHex([]string{"abc"})
	require.Error(t, err)
}

func TestFormatNotify(t *testing.T) {
	f := &frame.Frame{Type: frame.TypeNotify, Seq: 3, Cmd: mcu.CmdPing, Data: []byte{0xbe, 0xef}}
	require.Equal(t, "NOTIFY ping seq=3 beef", FormatNotify(f))
}
