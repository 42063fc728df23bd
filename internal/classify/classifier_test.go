package classify

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyReturnsFirstMatchingRule(t *testing.T) {
	rules := []Rule{
		{Severity: "critical", Expression: `number == "42"`},
		{Severity: "warning", Expression: `true`},
	}
	c, err := New(rules)
	require.NoError(t, err)

	require.Equal(t, "critical", c.Classify("42", "anything"))
	require.Equal(t, "warning", c.Classify("7", "anything"))
}

func TestClassifyFallsBackToUnclassified(t *testing.T) {
	c, err := New([]Rule{{Severity: "critical", Expression: `number == "42"`}})
	require.NoError(t, err)

	require.Equal(t, "unclassified", c.Classify("7", "anything"))
}

func TestDefaultRulesClassifyKnownAlarmText(t *testing.T) {
	c, err := New(DefaultRules())
	require.NoError(t, err)

	require.Equal(t, "critical", c.Classify("100", "E-STOP PRESSED"))
	require.Equal(t, "critical", c.Classify("101", "OVER TORQUE LIMIT"))
	require.Equal(t, "warning", c.Classify("102", "LOW BATTERY"))
	require.Equal(t, "unclassified", c.Classify("103", "SOMETHING ELSE ENTIRELY"))
}

func TestNewRejectsInvalidExpression(t *testing.T) {
	_, err := New([]Rule{{Severity: "critical", Expression: `number +++ text`}})
	require.Error(t, err)
}
