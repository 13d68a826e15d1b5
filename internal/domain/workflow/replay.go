package workflow

import "fmt"

// Step is one recorded transition as seen by Replay
type Step struct {
	Action  Action
	From    State
	To      State
	Version int64
}

// Replay re-applies recorded steps from the initial submission and returns
// the state they lead to. It fails if a step does not start where the
// previous one ended, targets a state the machine would not reach, or
// breaks the version sequence.
func (d *Definition) Replay(steps []Step) (State, error) {
	if len(steps) == 0 {
		return "", fmt.Errorf("no history to replay")
	}

	first := steps[0]
	if first.Action != ActionSubmit || first.To != d.First() || first.Version != 0 {
		return "", fmt.Errorf("history must start with submit to %s at version 0", d.First())
	}

	current := first.To
	var rejectedFrom State
	for i, step := range steps[1:] {
		if step.Version != int64(i+1) {
			return "", fmt.Errorf("step %d: version %d, expected %d", i+1, step.Version, i+1)
		}
		if step.From != current {
			return "", fmt.Errorf("step %d: starts at %s, expected %s", i+1, step.From, current)
		}

		next, err := d.Next(current, step.Action, Subject{RejectedFrom: rejectedFrom})
		if err != nil {
			return "", fmt.Errorf("step %d: %w", i+1, err)
		}
		if next != step.To {
			return "", fmt.Errorf("step %d: recorded %s, machine reaches %s", i+1, step.To, next)
		}

		if next == StateRejected {
			rejectedFrom = current
		}
		current = next
	}

	return current, nil
}
