package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// slice extracts payload[from:to], erroring instead of panicking when
// the payload is shorter than the revision's layout promises.
func slice(payload []byte, from, to int) (string, error) {
	if from < 0 || to > len(payload) || from > to {
		return "", fmt.Errorf("protocol: payload too short for range [%d:%d), have %d bytes", from, to, len(payload))
	}
	return string(payload[from:to]), nil
}

func byteAt(payload []byte, at int) (byte, error) {
	if at < 0 || at >= len(payload) {
		return 0, fmt.Errorf("protocol: payload too short for offset %d, have %d bytes", at, len(payload))
	}
	return payload[at], nil
}

func parseInt(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

// parseFixed parses a zero-padded decimal integer field and divides it
// by scale, giving the Open Protocol convention of transmitting
// hundredths of a unit (torque values) as plain integers. Angle fields
// are whole degrees and go through parseInt unscaled.
func parseFixed(s string, scale float64) (float64, error) {
	n, err := parseInt(s)
	if err != nil {
		return 0, err
	}
	return float64(n) / scale, nil
}

func trim(s string) string {
	return strings.TrimSpace(s)
}

func statusOK(b byte) bool {
	return b == '1'
}
