// Package protocol decodes and encodes the fixed set of Open Protocol
// message identifiers (MIDs) this client understands, dispatching on
// the controller-declared revision where the wire layout depends on it.
package protocol

// Inbound MIDs.
const (
	MIDCommStartAck2   = "0002" // some firmware emits MID 2 as the comm-start ACK alias
	MIDCommStartAck3   = "0003"
	MIDCommandError    = "0004"
	MIDCommandAccepted = "0005"
	MIDParamSetReply   = "0011"
	MIDBatchDecAck     = "0021"
	MIDBatchReply      = "0031"
	MIDJobReply        = "0035"
	MIDToolStatus      = "0041"
	MIDVinReply        = "0051"
	MIDVinRequired     = "0052"
	MIDLastResult      = "0061"
	MIDOldResult       = "0065"
	MIDAlarm           = "0070"
	MIDAlarmStatus     = "0076"
	MIDMultiSpindle    = "0101"
)

// Outbound MIDs.
const (
	MIDCommStart       = "0001"
	MIDCommStop        = "0002"
	MIDSelectParamSet  = "0018"
	MIDResetBatch      = "0020"
	MIDDecrementBatch  = "0021"
	MIDSelectJob       = "0034"
	MIDEnableTool      = "0042"
	MIDStart           = "0043"
	MIDDisableTool     = "0045"
	MIDDownloadVIN     = "0050"
	MIDSubscribeResult = "0060"
	MIDResultAck       = "0062"
	MIDUnsubResult     = "0063"
	MIDSubscribeAlarm  = "0070"
	MIDUnsubAlarm      = "0073"
	MIDAckAlarm        = "0078"
	MIDHeartbeat       = "9999"
)

// trackedMIDs are the outbound MIDs resolved through the generic
// MID 0005/0004 accept/fail channel. MID 0001 is excluded: its reply
// is the dedicated MID 0002/0003 comm-start ACK, handled directly by
// the state projector. MID 0002 (comm-stop), MID 0062 (result ACK)
// and MID 9999 (heartbeat) are fire-and-forget — nothing ever resolves
// them.
var trackedMIDs = map[string]bool{
	MIDSelectParamSet:  true,
	MIDResetBatch:      true,
	MIDDecrementBatch:  true,
	MIDSelectJob:       true,
	MIDEnableTool:      true,
	MIDStart:           true,
	MIDDisableTool:     true,
	MIDDownloadVIN:     true,
	MIDSubscribeResult: true,
	MIDUnsubResult:     true,
	MIDSubscribeAlarm:  true,
	MIDUnsubAlarm:      true,
	MIDAckAlarm:        true,
}

// AckRequired reports whether mid is resolved through the command
// tracker's generic MID 0005/0004 channel, and therefore should be
// sent with the wire ACK flag set and a pending entry registered
// before the bytes go out.
func AckRequired(mid string) bool {
	return trackedMIDs[mid]
}
