package mqtt

import (
	"testing"

	"github.com/golang/protobuf/proto"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	payload, err := proto.Marshal(&TransferEvent{Kind: "fota", Progress: 40})
	require.NoError(t, err)
	msg, err := Decode("robots/dev1/event/fota", payload)
	require.NoError(t, err)
	require.Equal(t, &TransferEvent{Kind: "fota", Progress: 40}, msg)

	payload, err = proto.Marshal(&RemoteResult{Id: 3, Ok: true})
	require.NoError(t, err)
	msg, err = Decode("dev1/result", payload)
	require.NoError(t, err)
	require.Equal(t, &RemoteResult{Id: 3, Ok: true}, msg)

	_, err = Decode("dev1/unknown", payload)
	require.Error(t, err)
	_, err = Decode("dev1/state", []byte{0xff})
	require.Error(t, err)
}
