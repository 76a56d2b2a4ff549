package opt

import "wavepick/internal/wave"

// VND runs the neighborhoods in order from a feasible wave, restarting from
// the first after every strict improvement and stopping when none improves,
// the pass cap is reached or the deadline passes. An infeasible input is
// repaired first; if repair fails the input is returned as is.
func (e *Engine) VND(s wave.Solution) wave.Solution {
	return e.vnd(s, nil)
}

// vnd calls adopt with every improving neighbor it accepts.
func (e *Engine) vnd(s wave.Solution, adopt func(step string, s wave.Solution)) wave.Solution {
	if !s.Feasible {
		fixed, ok := e.repair(s)
		if !ok {
			return s
		}
		s = fixed
	}
	hoods := e.neighborhoods()
	cur := s
	for k, passes := 0, 0; k < len(hoods); passes++ {
		if passes >= e.cfg.MaxVNDPasses || e.expired() {
			break
		}
		next := hoods[k].explore(cur)
		e.metrics.VNDPasses++
		if better(next, cur) {
			cur = next
			if adopt != nil {
				adopt(hoods[k].name, cur)
			}
			k = 0
			continue
		}
		k++
	}
	return cur
}
