package shotgen

import (
	"fmt"
	"math"

	"scenegen/internal/config"
	"scenegen/internal/services"
)

// Attempt is one row of the attempt policy.
type Attempt struct {
	Steps     int
	Threshold float64
}

// Policy is the ordered attempt table. Its length is the attempt budget.
type Policy []Attempt

// DefaultPolicy mirrors the shipped configuration defaults.
func DefaultPolicy() Policy {
	return PolicyFromConfig(config.DefaultAttempts())
}

// PolicyFromConfig converts configured attempts into a Policy.
func PolicyFromConfig(attempts []config.Attempt) Policy {
	policy := make(Policy, 0, len(attempts))
	for _, a := range attempts {
		policy = append(policy, Attempt{Steps: a.Steps, Threshold: a.Threshold})
	}
	return policy
}

// Validate requires at least one attempt, positive steps, and thresholds in
// [0,1] that strictly decrease.
func (p Policy) Validate() error {
	if len(p) == 0 {
		return services.Wrap(services.ErrValidation, "shotgen", "policy", "at least one attempt is required", nil)
	}
	for i, a := range p {
		if a.Steps <= 0 {
			return services.Wrap(services.ErrValidation, "shotgen", "policy",
				fmt.Sprintf("attempt %d: steps must be positive", i+1), nil)
		}
		if math.IsNaN(a.Threshold) || a.Threshold < 0 || a.Threshold > 1 {
			return services.Wrap(services.ErrValidation, "shotgen", "policy",
				fmt.Sprintf("attempt %d: threshold %.3f outside [0,1]", i+1, a.Threshold), nil)
		}
		if i > 0 && a.Threshold >= p[i-1].Threshold {
			return services.Wrap(services.ErrValidation, "shotgen", "policy",
				fmt.Sprintf("attempt %d: threshold %.3f must be lower than %.3f", i+1, a.Threshold, p[i-1].Threshold), nil)
		}
	}
	return nil
}
