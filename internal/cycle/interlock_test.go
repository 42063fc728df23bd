package cycle

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hj91/node-nutrunner-open-library/internal/state"
)

func readySnapshot() state.Snapshot {
	s := state.New()
	s.Connection.Connected = true
	s.Connection.LinkReady = true
	s.Tool.Enabled = true
	s.Controller.Ready = true
	s.Job.Active = true
	return s
}

func TestCheckStartTighteningPassesWhenEverythingHolds(t *testing.T) {
	require.NoError(t, CheckStartTightening(readySnapshot()))
}

func TestCheckStartTighteningOrderToolDisabledBeforeControllerNotReady(t *testing.T) {
	s := readySnapshot()
	s.Tool.Enabled = false
	s.Controller.Ready = false

	err := CheckStartTightening(s)
	require.Error(t, err)
	ierr, ok := err.(*InterlockError)
	require.True(t, ok)
	require.Equal(t, CodeToolDisabled, ierr.Code)
}

func TestCheckStartTighteningEachRuleInOrder(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*state.Snapshot)
		wantErr string
	}{
		{"not connected", func(s *state.Snapshot) { s.Connection.Connected = false }, CodeNotConnected},
		{"link not ready", func(s *state.Snapshot) { s.Connection.LinkReady = false }, CodeLinkNotReady},
		{"tool disabled", func(s *state.Snapshot) { s.Tool.Enabled = false }, CodeToolDisabled},
		{"tool running", func(s *state.Snapshot) { s.Tool.Running = true }, CodeToolRunning},
		{"controller not ready", func(s *state.Snapshot) { s.Controller.Ready = false }, CodeCtrlNotReady},
		{"alarm active", func(s *state.Snapshot) { s.Controller.ErrorActive = true }, CodeAlarmActive},
		{"vin required", func(s *state.Snapshot) { s.Product.VINRequired = true; s.Product.VINValid = false }, CodeVinRequired},
		{"job not active", func(s *state.Snapshot) { s.Job.Active = false }, CodeJobNotActive},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := readySnapshot()
			tc.mutate(&s)
			err := CheckStartTightening(s)
			require.Error(t, err)
			require.Equal(t, tc.wantErr, err.(*InterlockError).Code)
		})
	}
}

func TestCheckGenericOnlyChecksConnectionRules(t *testing.T) {
	s := readySnapshot()
	s.Tool.Enabled = false // would fail startTightening, but not the generic check
	require.NoError(t, CheckGeneric(s))

	s.Connection.LinkReady = false
	err := CheckGeneric(s)
	require.Error(t, err)
	require.Equal(t, CodeLinkNotReady, err.(*InterlockError).Code)
}
