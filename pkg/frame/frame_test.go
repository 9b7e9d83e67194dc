package frame

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCRC16(t *testing.T) {
	require.Equal(t, uint16(0x4b37), CRC16([]byte("123456789")))
	require.Equal(t, uint16(0xffff), CRC16(nil))
	crc := UpdateCRC16(CRC16([]byte("1234")), []byte("56789"))
	require.Equal(t, uint16(0x4b37), crc)
}

func TestEncode(t *testing.T) {
	f := New(TypeRequest, 7, 0x0102, []byte{0xde, 0xad})
	b, err := f.Encode()
	require.NoError(t, err)
	require.Len(t, b, MinSize+2)
	require.Equal(t, []byte{Sync1, Sync2, Version, 0x01, 7, 0x01, 0x02, 0x00, 0x02, 0xde, 0xad}, b[:11])
	crc := CRC16(b[2:11])
	require.Equal(t, []byte{byte(crc >> 8), byte(crc)}, b[11:])

	_, err = f.EncodeTo(make([]byte, f.EncodedLen()-1))
	require.Equal(t, ErrShortBuffer, err)

	big := New(TypeRequest, 1, 1, make([]byte, MaxDataSize+1))
	_, err = big.Encode()
	require.Equal(t, ErrDataTooLarge, err)
}

func TestRoundTrip(t *testing.T) {
	testCases := []struct {
		name  string
		frame *Frame
	}{
		{"empty data", New(TypeRequest, 0, 0x0001, nil)},
		{"ack", New(TypeAck, 255, 0x3001, []byte{1})},
		{"notify", New(TypeNotify, 12, 0x4001, []byte("hello world"))},
		{"large", New(TypeResponse, 128, 0x6002, make([]byte, 4096))},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			b, err := tc.frame.Encode()
			require.NoError(t, err)
			f, n, err := Decode(b)
			require.NoError(t, err)
			require.Equal(t, len(b), n)
			require.Equal(t, tc.frame.Version, f.Version)
			require.Equal(t, tc.frame.Type, f.Type)
			require.Equal(t, tc.frame.Seq, f.Seq)
			require.Equal(t, tc.frame.Cmd, f.Cmd)
			if len(tc.frame.Data) == 0 {
				require.Empty(t, f.Data)
			} else {
				require.Equal(t, tc.frame.Data, f.Data)
			}
			require.True(t, f.Valid())
		})
	}
}

func TestDecodeIncomplete(t *testing.T) {
	b, err := New(TypeRequest, 1, 2, []byte{1, 2, 3, 4}).Encode()
	require.NoError(t, err)
	for l := 0; l < len(b); l++ {
		f, n, err := Decode(b[:l])
		require.Nil(t, f)
		require.Zero(t, n)
		require.Equal(t, ErrIncomplete, err, "len=%d", l)
	}
}

func TestDecodeResync(t *testing.T) {
	b, err := New(TypeNotify, 3, 0x4002, []byte{9}).Encode()
	require.NoError(t, err)
	buf := append([]byte{0x00, Sync1, 0x13}, b...)

	var frames []*Frame
	var skipped int
	for len(buf) > 0 {
		f, n, err := Decode(buf)
		if err == ErrIncomplete {
			break
		}
		if err == ErrBadSync {
			require.Equal(t, 1, n)
			skipped++
		} else {
			require.NoError(t, err)
			frames = append(frames, f)
		}
		buf = buf[n:]
	}
	require.Equal(t, 3, skipped)
	require.Len(t, frames, 1)
	require.Equal(t, uint16(0x4002), frames[0].Cmd)
	require.Empty(t, buf)
}

func TestDecodeOwnsPayload(t *testing.T) {
	b, err := New(TypeResponse, 1, 2, []byte{1, 2, 3}).Encode()
	require.NoError(t, err)
	f, _, err := Decode(b)
	require.NoError(t, err)
	for i := range b {
		b[i] = 0
	}
	require.Equal(t, []byte{1, 2, 3}, f.Data)
}

func TestDecodeCRC(t *testing.T) {
	b, err := New(TypeResponse, 1, 2, []byte{1, 2, 3}).Encode()
	require.NoError(t, err)
	b[len(b)-1] ^= 0xff

	f, n, err := Decode(b)
	require.NoError(t, err, "non-strict decoder accepts bad CRC")
	require.Equal(t, len(b), n)
	require.False(t, f.Valid())

	d := Decoder{Strict: true}
	_, n, err = d.Decode(b)
	require.Equal(t, len(b), n)
	require.IsType(t, &ChecksumError{}, err)
}

func TestDecodeTooLarge(t *testing.T) {
	b, err := New(TypeResponse, 1, 2, make([]byte, 100)).Encode()
	require.NoError(t, err)
	d := Decoder{MaxData: 64}
	_, n, err := d.Decode(b)
	require.Equal(t, ErrTooLarge, err)
	require.Equal(t, 1, n)
}

func TestTypeString(t *testing.T) {
	require.Equal(t, "ACK", TypeAck.String())
	require.Equal(t, "TYPE(0x09)", Type(9).String())
	require.True(t, TypeNack.IsReply())
	require.False(t, TypeNotify.IsReply())
}
