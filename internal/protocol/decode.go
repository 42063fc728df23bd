package protocol

import (
	"fmt"

	"github.com/hj91/node-nutrunner-open-library/internal/wireframe"
)

// Decode dispatches a frame to the decoder for its header MID and
// returns the typed payload. Callers should treat a non-nil error as a
// parse_error: recoverable, logged, and never grounds for dropping the
// connection.
func Decode(f wireframe.Frame) (any, error) {
	switch f.Header.MID {
	case MIDCommStartAck2, MIDCommStartAck3:
		return decodeCommStartAck(f.Header)
	case MIDCommandError:
		return decodeCommandError(f.Payload)
	case MIDCommandAccepted:
		return decodeCommandAccepted(f.Payload)
	case MIDParamSetReply:
		return decodeParamSetReply(f.Payload)
	case MIDBatchDecAck:
		return struct{}{}, nil
	case MIDBatchReply:
		return decodeBatchReply(f.Payload)
	case MIDJobReply:
		return decodeJobReply(f.Payload)
	case MIDToolStatus:
		return decodeToolStatus(f.Payload)
	case MIDVinReply:
		return decodeVinReply(f.Payload)
	case MIDVinRequired:
		return decodeVinRequired(f.Payload)
	case MIDLastResult, MIDOldResult:
		return DecodeResult(f.Header, f.Payload)
	case MIDAlarm:
		return decodeAlarm(f.Payload)
	case MIDAlarmStatus:
		return decodeAlarmStatus(f.Payload)
	case MIDMultiSpindle:
		return decodeMultiSpindle(f.Payload)
	default:
		return nil, fmt.Errorf("protocol: unsupported MID %q", f.Header.MID)
	}
}

func decodeCommStartAck(h wireframe.Header) (CommStartAck, error) {
	rev, err := parseInt(h.Revision)
	if err != nil {
		return CommStartAck{}, fmt.Errorf("protocol: comm-start-ack revision: %w", err)
	}
	return CommStartAck{Revision: rev}, nil
}

func decodeCommandError(payload []byte) (CommandError, error) {
	failedMID, err := slice(payload, 0, 4)
	if err != nil {
		return CommandError{}, err
	}
	codeStr, err := slice(payload, 4, 8)
	if err != nil {
		return CommandError{}, err
	}
	code, err := parseInt(codeStr)
	if err != nil {
		return CommandError{}, fmt.Errorf("protocol: command error code: %w", err)
	}
	msg := ""
	if len(payload) > 8 {
		msg = trim(string(payload[8:]))
	}
	return CommandError{FailedMID: failedMID, ErrorCode: code, Message: msg}, nil
}

func decodeCommandAccepted(payload []byte) (CommandAccepted, error) {
	mid, err := slice(payload, 0, 4)
	if err != nil {
		return CommandAccepted{}, err
	}
	return CommandAccepted{AcceptedMID: mid}, nil
}

func decodeParamSetReply(payload []byte) (ParamSetReply, error) {
	idStr, err := slice(payload, 0, 3)
	if err != nil {
		return ParamSetReply{}, err
	}
	id, err := parseInt(idStr)
	if err != nil {
		return ParamSetReply{}, fmt.Errorf("protocol: param set id: %w", err)
	}
	return ParamSetReply{ParamSetID: id}, nil
}

func decodeBatchReply(payload []byte) (BatchReply, error) {
	idStr, err := slice(payload, 0, 4)
	if err != nil {
		return BatchReply{}, err
	}
	sizeStr, err := slice(payload, 4, 8)
	if err != nil {
		return BatchReply{}, err
	}
	counterStr, err := slice(payload, 8, 12)
	if err != nil {
		return BatchReply{}, err
	}
	id, err := parseInt(idStr)
	if err != nil {
		return BatchReply{}, fmt.Errorf("protocol: batch id: %w", err)
	}
	size, err := parseInt(sizeStr)
	if err != nil {
		return BatchReply{}, fmt.Errorf("protocol: batch size: %w", err)
	}
	counter, err := parseInt(counterStr)
	if err != nil {
		return BatchReply{}, fmt.Errorf("protocol: batch counter: %w", err)
	}
	return BatchReply{BatchID: id, Size: size, Counter: counter}, nil
}

func decodeJobReply(payload []byte) (JobReply, error) {
	idStr, err := slice(payload, 0, 4)
	if err != nil {
		return JobReply{}, err
	}
	psetStr, err := slice(payload, 4, 7)
	if err != nil {
		return JobReply{}, err
	}
	activeByte, err := byteAt(payload, 7)
	if err != nil {
		return JobReply{}, err
	}
	id, err := parseInt(idStr)
	if err != nil {
		return JobReply{}, fmt.Errorf("protocol: job id: %w", err)
	}
	pset, err := parseInt(psetStr)
	if err != nil {
		return JobReply{}, fmt.Errorf("protocol: job param set id: %w", err)
	}
	return JobReply{JobID: id, ParamSetID: pset, Active: activeByte == '1'}, nil
}

func decodeToolStatus(payload []byte) (ToolStatus, error) {
	if len(payload) < 4 {
		return ToolStatus{}, fmt.Errorf("protocol: tool status payload too short: %d bytes", len(payload))
	}
	return ToolStatus{
		ControllerReady: payload[0] == '1',
		ToolEnabled:     payload[1] == '1',
		ToolRunning:     payload[2] == '1',
		AlarmActive:     payload[3] == '1',
	}, nil
}

func decodeVinReply(payload []byte) (VinReply, error) {
	s, err := slice(payload, 0, min(len(payload), 25))
	if err != nil {
		return VinReply{}, err
	}
	return VinReply{VIN: trim(s)}, nil
}

func decodeVinRequired(payload []byte) (VinRequired, error) {
	b, err := byteAt(payload, 0)
	if err != nil {
		return VinRequired{}, err
	}
	return VinRequired{Required: b == '1'}, nil
}

func decodeAlarm(payload []byte) (Alarm, error) {
	numStr, err := slice(payload, 0, min(len(payload), 4))
	if err != nil {
		return Alarm{}, err
	}
	text := ""
	if len(payload) > 4 {
		text = trim(string(payload[4:]))
	}
	return Alarm{Number: trim(numStr), Text: text}, nil
}

func decodeAlarmStatus(payload []byte) (AlarmStatus, error) {
	b, err := byteAt(payload, 0)
	if err != nil {
		return AlarmStatus{}, err
	}
	return AlarmStatus{Active: b == '1'}, nil
}

func decodeMultiSpindle(payload []byte) (MultiSpindleStatus, error) {
	countStr, err := slice(payload, 0, min(len(payload), 2))
	if err != nil {
		return MultiSpindleStatus{}, err
	}
	count, err := parseInt(countStr)
	if err != nil {
		return MultiSpindleStatus{}, fmt.Errorf("protocol: multi-spindle count: %w", err)
	}
	return MultiSpindleStatus{SpindleCount: count}, nil
}
