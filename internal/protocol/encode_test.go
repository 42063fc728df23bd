package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeSelectParamSet(t *testing.T) {
	b, err := EncodeSelectParamSet(7)
	require.NoError(t, err)
	require.Equal(t, "007", string(b))

	_, err = EncodeSelectParamSet(1000)
	require.Error(t, err)
	_, err = EncodeSelectParamSet(-1)
	require.Error(t, err)
}

func TestEncodeSelectJob(t *testing.T) {
	b, err := EncodeSelectJob(42)
	require.NoError(t, err)
	require.Equal(t, "0042", string(b))

	_, err = EncodeSelectJob(10000)
	require.Error(t, err)
}

func TestEncodeDownloadVIN(t *testing.T) {
	b, err := EncodeDownloadVIN("ABC123")
	require.NoError(t, err)
	require.Equal(t, "ABC123"+"                   ", string(b))
	require.Len(t, b, 25)

	_, err = EncodeDownloadVIN("012345678901234567890123456")
	require.Error(t, err)
}

func TestEncodeEmptyReturnsNilPayload(t *testing.T) {
	require.Nil(t, EncodeEmpty())
}
