package protocol

import (
	"fmt"
)

// EncodeSelectParamSet builds the payload for MID 0018 (id: 0..999).
func EncodeSelectParamSet(id int) ([]byte, error) {
	if id < 0 || id > 999 {
		return nil, fmt.Errorf("protocol: parameter set id %d out of range [0,999]", id)
	}
	return []byte(fmt.Sprintf("%03d", id)), nil
}

// EncodeSelectJob builds the payload for MID 0034 (id: 0..9999).
func EncodeSelectJob(id int) ([]byte, error) {
	if id < 0 || id > 9999 {
		return nil, fmt.Errorf("protocol: job id %d out of range [0,9999]", id)
	}
	return []byte(fmt.Sprintf("%04d", id)), nil
}

// EncodeDownloadVIN builds the payload for MID 0050: a 25-character,
// space-padded field.
func EncodeDownloadVIN(vin string) ([]byte, error) {
	if len(vin) > 25 {
		return nil, fmt.Errorf("protocol: vin %q exceeds 25 characters", vin)
	}
	return []byte(fmt.Sprintf("%-25s", vin)), nil
}

// EncodeEmpty covers every outbound MID that carries no payload: comm
// start/stop, reset/decrement batch, enable/disable tool, start,
// subscribe/unsubscribe results and alarms, acknowledge alarm, result
// ack, and the heartbeat.
func EncodeEmpty() []byte {
	return nil
}
