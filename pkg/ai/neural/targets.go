package neural

import "fmt"

// TDTargets returns reward + gamma*V(successor) for active transitions and the
// bare reward for terminal ones.
func TDTargets(rewards, successorValues []float64, active []bool, gamma float64) ([]float64, error) {
	if len(successorValues) != len(rewards) || len(active) != len(rewards) {
		return nil, fmt.Errorf("neural: %d rewards, %d successor values, %d flags", len(rewards), len(successorValues), len(active))
	}
	targets := make([]float64, len(rewards))
	for i, r := range rewards {
		targets[i] = r
		if active[i] {
			targets[i] += gamma * successorValues[i]
		}
	}
	return targets, nil
}

// TDErrors returns targets - estimates.
func TDErrors(targets, estimates []float64) []float64 {
	errs := make([]float64, len(targets))
	for i := range targets {
		errs[i] = targets[i] - estimates[i]
	}
	return errs
}

func meanSquare(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x * x
	}
	return sum / float64(len(xs))
}
