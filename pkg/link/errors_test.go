package link

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/mculink/pkg/frame"
)

func TestCheckReply(t *testing.T) {
	req := frame.New(frame.TypeRequest, 9, 0x0102, nil)
	require.NoError(t, CheckReply(req, req.Reply(frame.TypeAck, nil)))
	require.NoError(t, CheckReply(req, req.Reply(frame.TypeResponse, []byte{1})))
	require.Equal(t, ErrProtocol, CheckReply(req, nil))

	err := CheckReply(req, req.Reply(frame.TypeNack, []byte{3}))
	var cmdErr *CommandError
	require.True(t, errors.As(err, &cmdErr))
	require.Equal(t, byte(3), cmdErr.Code())
	require.Equal(t, uint16(0x0102), cmdErr.Cmd)
	require.Equal(t, frame.TypeNack, cmdErr.Type)
}
