package wireframe

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name      string
		mid       string
		payload   []byte
		expectAck bool
	}{
		{"empty payload, ack expected", "0042", nil, true},
		{"payload, no ack", "9999", nil, false},
		{"payload with content", "0018", []byte("042"), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			frame, err := Encode(tc.mid, tc.payload, tc.expectAck)
			require.NoError(t, err)

			d := NewDecoder(true)
			d.Feed(frame)
			frames, errs := d.Decode()
			require.Empty(t, errs)
			require.Len(t, frames, 1)

			got := frames[0]
			require.Equal(t, tc.mid, got.Header.MID)
			require.Equal(t, !tc.expectAck, got.Header.NoAck)
			if len(tc.payload) == 0 {
				require.Empty(t, got.Payload)
			} else {
				require.Equal(t, tc.payload, got.Payload)
			}
		})
	}
}

func TestDecodeResync(t *testing.T) {
	garbage := []byte("junk")
	valid, err := Encode("0042", nil, true)
	require.NoError(t, err)

	d := NewDecoder(true)
	d.Feed(append(append([]byte{}, garbage...), valid...))
	frames, errs := d.Decode()

	require.Len(t, frames, 1)
	require.Equal(t, "0042", frames[0].Header.MID)
	require.LessOrEqual(t, len(errs), len(garbage))
}

func TestDecodeStripsEmbeddedNULs(t *testing.T) {
	valid, err := Encode("0042", nil, true)
	require.NoError(t, err)

	withNULs := make([]byte, 0, len(valid)+2)
	withNULs = append(withNULs, 0)
	withNULs = append(withNULs, valid...)
	withNULs = append(withNULs, 0)

	d := NewDecoder(true)
	d.Feed(withNULs)
	frames, errs := d.Decode()

	require.Empty(t, errs)
	require.Len(t, frames, 1)
}

func TestDecodeWaitsForCompleteFrame(t *testing.T) {
	valid, err := Encode("0018", []byte("042"), true)
	require.NoError(t, err)

	d := NewDecoder(true)
	d.Feed(valid[:len(valid)-2])
	frames, errs := d.Decode()
	require.Empty(t, frames)
	require.Empty(t, errs)

	d.Feed(valid[len(valid)-2:])
	frames, errs = d.Decode()
	require.Empty(t, errs)
	require.Len(t, frames, 1)
}

func TestDecodeRejectsLengthOutOfRange(t *testing.T) {
	d := NewDecoder(true)
	d.Feed([]byte("0005junk valid data follows this"))
	_, errs := d.Decode()
	require.NotEmpty(t, errs)
	require.Equal(t, ErrLengthOutOfRange, errs[0].Type)
}

func TestEncodeRejectsBadMIDLength(t *testing.T) {
	_, err := Encode("42", nil, true)
	require.Error(t, err)
}

func TestLenientDecoderResyncsSilently(t *testing.T) {
	garbage := []byte("junk")
	valid, err := Encode("0042", nil, true)
	require.NoError(t, err)

	d := NewDecoder(false)
	d.Feed(append(append([]byte{}, garbage...), valid...))
	frames, errs := d.Decode()

	require.Len(t, frames, 1)
	require.Equal(t, "0042", frames[0].Header.MID)
	require.Empty(t, errs)
}

func TestLenientDecoderDoesNotStripNULs(t *testing.T) {
	valid, err := Encode("0042", nil, true)
	require.NoError(t, err)

	withNULs := make([]byte, 0, len(valid)+2)
	withNULs = append(withNULs, 0)
	withNULs = append(withNULs, valid...)

	d := NewDecoder(false)
	d.Feed(withNULs)
	frames, errs := d.Decode()

	// The leading NUL is not stripped, so it is resynced past silently
	// rather than being part of a frame.
	require.Empty(t, errs)
	require.Len(t, frames, 1)
	require.Equal(t, "0042", frames[0].Header.MID)
}
