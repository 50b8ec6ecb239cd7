package redflag

import (
	"github.com/Skufu/triage/internal/clinical"
)

// RedFlag is an urgent-condition alert.
type RedFlag struct {
	Condition string   `json:"condition"`
	Triggered bool     `json:"triggered"`
	Rationale []string `json:"rationale"`
}

// Evaluator applies a fixed rule table. It is stateless after construction.
type Evaluator struct {
	rules []Rule
}

// New builds an evaluator over rules, rejecting malformed ones.
func New(rules []Rule) (*Evaluator, error) {
	for _, r := range rules {
		if err := r.validate(); err != nil {
			return nil, err
		}
	}
	return &Evaluator{rules: append([]Rule(nil), rules...)}, nil
}

// Default returns an evaluator over DefaultRules.
func Default() *Evaluator {
	e, err := New(DefaultRules)
	if err != nil {
		panic(err)
	}
	return e
}

// Evaluate returns the triggered flags. Rules sharing a condition merge into
// one flag; flags keep the order their condition first appears in the table.
// Absent or non-numeric fields never trigger.
func (e *Evaluator) Evaluate(p clinical.Payload) []RedFlag {
	flags := []RedFlag{}
	index := map[string]int{}
	for _, r := range e.rules {
		v, ok := p.Value(r.Source, r.Field)
		if !ok || !r.Op.holds(v, r.Threshold) {
			continue
		}
		if i, seen := index[r.Condition]; seen {
			flags[i].Rationale = append(flags[i].Rationale, r.rationale())
			continue
		}
		index[r.Condition] = len(flags)
		flags = append(flags, RedFlag{
			Condition: r.Condition,
			Triggered: true,
			Rationale: []string{r.rationale()},
		})
	}
	return flags
}
