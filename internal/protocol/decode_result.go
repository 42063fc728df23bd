package protocol

import (
	"fmt"

	"github.com/hj91/node-nutrunner-open-library/internal/wireframe"
)

// DecodeResult decodes a MID 0061/0065 payload according to the
// revision declared in the frame header. Revision 1 carries no spindle
// number in its payload; per spec the header's 2-byte spindle field is
// authoritative for it (the source this protocol was distilled from
// hard-codes spindle 1 for revision 1, which this client deliberately
// does not follow).
func DecodeResult(h wireframe.Header, payload []byte) (Result, error) {
	rev, err := parseInt(h.Revision)
	if err != nil {
		return Result{}, fmt.Errorf("protocol: result revision: %w", err)
	}
	switch rev {
	case 1:
		return decodeResultRev1(h, payload)
	case 2, 3:
		return decodeResultRev23(rev, payload)
	case 4:
		return decodeResultRev4(payload)
	default:
		return Result{}, fmt.Errorf("protocol: unsupported result revision %d", rev)
	}
}

func decodeResultRev1(h wireframe.Header, payload []byte) (Result, error) {
	if len(payload) < 24 {
		return Result{}, fmt.Errorf("protocol: rev1 result payload too short: %d bytes", len(payload))
	}
	tighteningID, err := slice(payload, 0, 10)
	if err != nil {
		return Result{}, err
	}
	torqueStr, err := slice(payload, 10, 16)
	if err != nil {
		return Result{}, err
	}
	angleStr, err := slice(payload, 16, 22)
	if err != nil {
		return Result{}, err
	}
	torqueStatus, err := byteAt(payload, 22)
	if err != nil {
		return Result{}, err
	}
	angleStatus, err := byteAt(payload, 23)
	if err != nil {
		return Result{}, err
	}
	torque, err := parseFixed(torqueStr, 100)
	if err != nil {
		return Result{}, fmt.Errorf("protocol: rev1 torque: %w", err)
	}
	angle, err := parseInt(angleStr)
	if err != nil {
		return Result{}, fmt.Errorf("protocol: rev1 angle: %w", err)
	}

	r := Result{
		Revision:       1,
		Spindle:        h.Spindle,
		TighteningID:   trim(tighteningID),
		Torque:         torque,
		Angle:          float64(angle),
		TorqueStatusOK: statusOK(torqueStatus),
		AngleStatusOK:  statusOK(angleStatus),
	}
	r.OK = r.TorqueStatusOK && r.AngleStatusOK
	return r, nil
}

func decodeResultRev23(rev int, payload []byte) (Result, error) {
	if len(payload) < 95 {
		return Result{}, fmt.Errorf("protocol: rev%d result payload too short: %d bytes", rev, len(payload))
	}
	fields, err := sliceAll(payload, []sliceSpec{
		{"tightening_id", 0, 10},
		{"spindle", 10, 12},
		{"torque", 12, 18},
		{"angle", 18, 24},
		{"torque_min", 24, 30},
		{"torque_max", 30, 36},
		{"torque_final", 36, 42},
		{"timestamp", 44, 63},
		{"vin", 63, 88},
		{"job_id", 88, 92},
		{"param_set_id", 92, 95},
	})
	if err != nil {
		return Result{}, err
	}
	torqueStatus, err := byteAt(payload, 42)
	if err != nil {
		return Result{}, err
	}
	angleStatus, err := byteAt(payload, 43)
	if err != nil {
		return Result{}, err
	}
	batchStatus, err := byteAt(payload, 49)
	if err != nil {
		return Result{}, err
	}

	spindle, err := parseInt(fields["spindle"])
	if err != nil {
		return Result{}, fmt.Errorf("protocol: rev%d spindle: %w", rev, err)
	}
	torque, err := parseFixed(fields["torque"], 100)
	if err != nil {
		return Result{}, fmt.Errorf("protocol: rev%d torque: %w", rev, err)
	}
	angle, err := parseInt(fields["angle"])
	if err != nil {
		return Result{}, fmt.Errorf("protocol: rev%d angle: %w", rev, err)
	}
	torqueMin, err := parseFixed(fields["torque_min"], 100)
	if err != nil {
		return Result{}, fmt.Errorf("protocol: rev%d torque_min: %w", rev, err)
	}
	torqueMax, err := parseFixed(fields["torque_max"], 100)
	if err != nil {
		return Result{}, fmt.Errorf("protocol: rev%d torque_max: %w", rev, err)
	}
	torqueFinal, err := parseFixed(fields["torque_final"], 100)
	if err != nil {
		return Result{}, fmt.Errorf("protocol: rev%d torque_final: %w", rev, err)
	}

	r := Result{
		Revision:       rev,
		Spindle:        spindle,
		TighteningID:   trim(fields["tightening_id"]),
		Torque:         torque,
		Angle:          float64(angle),
		TorqueMin:      torqueMin,
		TorqueMax:      torqueMax,
		TorqueFinal:    torqueFinal,
		TorqueStatusOK: statusOK(torqueStatus),
		AngleStatusOK:  statusOK(angleStatus),
		Timestamp:      trim(fields["timestamp"]),
		BatchStatus:    batchStatus,
		VIN:            trim(fields["vin"]),
		JobID:          trim(fields["job_id"]),
		ParamSetID:     trim(fields["param_set_id"]),
	}
	r.OK = r.TorqueStatusOK && r.AngleStatusOK
	return r, nil
}

func decodeResultRev4(payload []byte) (Result, error) {
	if len(payload) < 168 {
		return Result{}, fmt.Errorf("protocol: rev4 result payload too short: %d bytes", len(payload))
	}
	fields, err := sliceAll(payload, []sliceSpec{
		{"cell_id", 0, 4},
		{"channel_id", 4, 6},
		{"controller_name", 6, 31},
		{"vin", 31, 56},
		{"job_id", 56, 60},
		{"param_set_id", 60, 63},
		{"batch_size", 63, 67},
		{"batch_counter", 67, 71},
		{"torque_min", 74, 80},
		{"torque_max", 80, 86},
		{"torque_target", 86, 92},
		{"torque_actual", 92, 98},
		{"angle_min", 98, 103},
		{"angle_max", 103, 108},
		{"angle_target", 108, 113},
		{"angle_actual", 113, 118},
		{"timestamp", 118, 137},
		{"last_pset_change", 137, 156},
		{"tightening_id", 157, 167},
	})
	if err != nil {
		return Result{}, err
	}
	ok, err := byteAt(payload, 71)
	if err != nil {
		return Result{}, err
	}
	torqueStatus, err := byteAt(payload, 72)
	if err != nil {
		return Result{}, err
	}
	angleStatus, err := byteAt(payload, 73)
	if err != nil {
		return Result{}, err
	}
	batchStatus, err := byteAt(payload, 156)
	if err != nil {
		return Result{}, err
	}

	batchSize, err := parseInt(fields["batch_size"])
	if err != nil {
		return Result{}, fmt.Errorf("protocol: rev4 batch_size: %w", err)
	}
	batchCounter, err := parseInt(fields["batch_counter"])
	if err != nil {
		return Result{}, fmt.Errorf("protocol: rev4 batch_counter: %w", err)
	}
	torqueMin, err := parseFixed(fields["torque_min"], 100)
	if err != nil {
		return Result{}, fmt.Errorf("protocol: rev4 torque_min: %w", err)
	}
	torqueMax, err := parseFixed(fields["torque_max"], 100)
	if err != nil {
		return Result{}, fmt.Errorf("protocol: rev4 torque_max: %w", err)
	}
	torqueTarget, err := parseFixed(fields["torque_target"], 100)
	if err != nil {
		return Result{}, fmt.Errorf("protocol: rev4 torque_target: %w", err)
	}
	torqueActual, err := parseFixed(fields["torque_actual"], 100)
	if err != nil {
		return Result{}, fmt.Errorf("protocol: rev4 torque_actual: %w", err)
	}
	angleMin, err := parseInt(fields["angle_min"])
	if err != nil {
		return Result{}, fmt.Errorf("protocol: rev4 angle_min: %w", err)
	}
	angleMax, err := parseInt(fields["angle_max"])
	if err != nil {
		return Result{}, fmt.Errorf("protocol: rev4 angle_max: %w", err)
	}
	angleTarget, err := parseInt(fields["angle_target"])
	if err != nil {
		return Result{}, fmt.Errorf("protocol: rev4 angle_target: %w", err)
	}
	angleActual, err := parseInt(fields["angle_actual"])
	if err != nil {
		return Result{}, fmt.Errorf("protocol: rev4 angle_actual: %w", err)
	}

	r := Result{
		Revision:       4,
		Spindle:        1,
		TighteningID:   trim(fields["tightening_id"]),
		CellID:         trim(fields["cell_id"]),
		ChannelID:      trim(fields["channel_id"]),
		ControllerName: trim(fields["controller_name"]),
		VIN:            trim(fields["vin"]),
		JobID:          trim(fields["job_id"]),
		ParamSetID:     trim(fields["param_set_id"]),
		BatchSize:      batchSize,
		BatchCounter:   batchCounter,
		TorqueMin:      torqueMin,
		TorqueMax:      torqueMax,
		TorqueTarget:   torqueTarget,
		Torque:         torqueActual,
		AngleMin:       float64(angleMin),
		AngleMax:       float64(angleMax),
		AngleTarget:    float64(angleTarget),
		Angle:          float64(angleActual),
		TorqueStatusOK: statusOK(torqueStatus),
		AngleStatusOK:  statusOK(angleStatus),
		Timestamp:      trim(fields["timestamp"]),
		LastPsetChange: trim(fields["last_pset_change"]),
		BatchStatus:    batchStatus,
	}
	// The overall-status byte is authoritative for revision 4.
	r.OK = statusOK(ok)
	return r, nil
}

type sliceSpec struct {
	name     string
	from, to int
}

func sliceAll(payload []byte, specs []sliceSpec) (map[string]string, error) {
	out := make(map[string]string, len(specs))
	for _, s := range specs {
		v, err := slice(payload, s.from, s.to)
		if err != nil {
			return nil, fmt.Errorf("protocol: field %s: %w", s.name, err)
		}
		out[s.name] = v
	}
	return out, nil
}
