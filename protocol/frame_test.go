package protocol

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	opts, err := EncodeOptions(
		AckRequest{Id: 3},
		NewSourceRoute([]netip.Addr{addr("10.0.0.1"), addr("10.0.0.2"), addr("10.0.0.3")}, 0),
	)
	require.NoError(t, err)
	f := &Frame{
		From:        addr("10.0.0.1"),
		To:          addr("10.0.0.2"),
		TTL:         64,
		NextHeader:  17,
		Source:      addr("10.0.0.1"),
		Destination: addr("10.0.0.3"),
		Options:     opts,
		Payload:     []byte("hello"),
	}
	raw, err := f.Marshal()
	require.NoError(t, err)
	assert.Len(t, raw, 20+FixedHeaderLen+len(opts)+5)

	got, err := ParseFrame(raw)
	require.NoError(t, err)
	assert.Equal(t, f, got)
	assert.True(t, got.IsData())

	sr, ok := got.SourceRoute()
	require.True(t, ok)
	assert.Equal(t, addr("10.0.0.2"), sr.Receiver(got.Destination))
}

func TestParseFrameRejectsShortOptions(t *testing.T) {
	f := &Frame{
		From:        addr("10.0.0.1"),
		To:          Broadcast,
		TTL:         1,
		NextHeader:  NoNextHeader,
		Source:      addr("10.0.0.1"),
		Destination: addr("10.0.0.9"),
		Options:     []byte{OptPad1, OptPad1, OptPad1, OptPad1},
	}
	raw, err := f.Marshal()
	require.NoError(t, err)
	// claim more option bytes than the packet holds
	raw[20+2] = 0
	raw[20+3] = 200
	_, err = ParseFrame(raw)
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestParseFrameRejectsForeignProtocol(t *testing.T) {
	f := &Frame{
		From:        addr("10.0.0.1"),
		To:          addr("10.0.0.2"),
		TTL:         1,
		NextHeader:  NoNextHeader,
		Source:      addr("10.0.0.1"),
		Destination: addr("10.0.0.2"),
	}
	raw, err := f.Marshal()
	require.NoError(t, err)
	raw[9] = 17
	_, err = ParseFrame(raw)
	assert.ErrorIs(t, err, ErrMalformed)
}
