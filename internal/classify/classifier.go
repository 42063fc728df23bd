// Package classify assigns a severity tier to controller alarms using
// operator-supplied expr rules, the same rule-evaluation approach the
// workflow engine this client grew out of used for conditional step
// execution.
package classify

import (
	"fmt"

	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"
)

// Rule maps one boolean expr expression, evaluated against the
// alarm's number and text, to the severity it should be tagged with
// when the expression is true. Rules are tried in order; the first
// match wins.
type Rule struct {
	Severity   string
	Expression string
}

type compiledRule struct {
	severity string
	program  *vm.Program
}

// Classifier evaluates a priority-ordered list of expr rules against
// each alarm and returns the severity of the first match, or
// "unclassified" if nothing matches.
type Classifier struct {
	rules []compiledRule
}

// New compiles rules once at construction time. Each rule's
// expression is evaluated with "number" and "text" bound to the
// alarm's fields and must evaluate to a bool.
func New(rules []Rule) (*Classifier, error) {
	c := &Classifier{rules: make([]compiledRule, 0, len(rules))}
	env := map[string]any{"number": "", "text": ""}
	for _, r := range rules {
		program, err := expr.Compile(r.Expression, expr.Env(env), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("classify: rule %q: compile: %w", r.Severity, err)
		}
		c.rules = append(c.rules, compiledRule{severity: r.Severity, program: program})
	}
	return c, nil
}

// Classify returns the severity of the first rule whose expression
// evaluates true for number/text, or "unclassified" if none match or
// a rule errors during evaluation.
func (c *Classifier) Classify(number, text string) string {
	env := map[string]any{"number": number, "text": text}
	for _, r := range c.rules {
		result, err := expr.Run(r.program, env)
		if err != nil {
			continue
		}
		if matched, ok := result.(bool); ok && matched {
			return r.severity
		}
	}
	return "unclassified"
}

// DefaultRules is a small, conservative starting ruleset: anything
// whose text mentions an emergency stop or a torque/angle limit is
// critical, a low battery or calibration alarm is a warning, and
// everything else matches no rule and is reported as "unclassified".
func DefaultRules() []Rule {
	return []Rule{
		{Severity: "critical", Expression: `text contains "E-STOP" or text contains "EMERGENCY"`},
		{Severity: "critical", Expression: `text contains "OVER TORQUE" or text contains "OVER ANGLE"`},
		{Severity: "warning", Expression: `text contains "LOW BATTERY" or text contains "CALIBRATION"`},
	}
}
