package object

import "github.com/GriffinCanCode/fiberkernel/internal/sys"

// JobPolicy maps policy conditions to actions. It is a value type; jobs hand
// out copies and processes keep the copy taken at their creation.
type JobPolicy struct {
	actions [sys.PolicyConditionMax]sys.PolicyAction
}

var newConditions = []sys.PolicyCondition{
	sys.PolicyNewAny,
	sys.PolicyNewVMO,
	sys.PolicyNewChannel,
	sys.PolicyNewProcess,
}

func validCondition(c sys.PolicyCondition) bool {
	switch c {
	case sys.PolicyBadHandle, sys.PolicyWrongObject, sys.PolicyNewAny,
		sys.PolicyNewVMO, sys.PolicyNewChannel, sys.PolicyNewProcess:
		return true
	}
	return false
}

// Action returns the action configured for c. Unknown conditions allow.
func (p JobPolicy) Action(c sys.PolicyCondition) sys.PolicyAction {
	if int(c) >= len(p.actions) {
		return sys.PolicyActionAllow
	}
	return p.actions[c]
}

// WithBasic returns p with the given condition/action pairs applied.
// PolicyNewAny applies to every object creation condition. In relative mode
// a condition that already has a non-allow action keeps it; in absolute mode
// such a conflict fails with ErrAlreadyExists.
func (p JobPolicy) WithBasic(mode uint32, policies []sys.PolicyBasic) (JobPolicy, error) {
	if mode != sys.PolicyRelative && mode != sys.PolicyAbsolute {
		return p, sys.ErrInvalidArgs
	}

	out := p
	for _, pb := range policies {
		if !validCondition(pb.Condition) || pb.Policy > sys.PolicyActionKill {
			return p, sys.ErrInvalidArgs
		}

		targets := []sys.PolicyCondition{pb.Condition}
		if pb.Condition == sys.PolicyNewAny {
			targets = newConditions
		}
		for _, c := range targets {
			current := out.actions[c]
			if current == pb.Policy {
				continue
			}
			if current != sys.PolicyActionAllow {
				if mode == sys.PolicyAbsolute {
					return p, sys.ErrAlreadyExists
				}
				continue
			}
			out.actions[c] = pb.Policy
		}
	}
	return out, nil
}
