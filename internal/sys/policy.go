package sys

// PolicyCondition names an event a job policy can react to.
type PolicyCondition uint32

const (
	PolicyBadHandle   PolicyCondition = 0
	PolicyWrongObject PolicyCondition = 1
	PolicyNewAny      PolicyCondition = 3
	PolicyNewVMO      PolicyCondition = 4
	PolicyNewChannel  PolicyCondition = 5
	PolicyNewProcess  PolicyCondition = 12

	// PolicyConditionMax bounds the condition space.
	PolicyConditionMax = 16
)

func (c PolicyCondition) String() string {
	switch c {
	case PolicyBadHandle:
		return "bad_handle"
	case PolicyWrongObject:
		return "wrong_object"
	case PolicyNewAny:
		return "new_any"
	case PolicyNewVMO:
		return "new_vmo"
	case PolicyNewChannel:
		return "new_channel"
	case PolicyNewProcess:
		return "new_process"
	default:
		return "unknown"
	}
}

// IsNew reports whether the condition governs object creation and therefore
// falls back to PolicyNewAny.
func (c PolicyCondition) IsNew() bool {
	switch c {
	case PolicyNewVMO, PolicyNewChannel, PolicyNewProcess:
		return true
	}
	return false
}

// PolicyAction is what happens when a condition fires.
type PolicyAction uint32

const (
	PolicyActionAllow          PolicyAction = 0
	PolicyActionDeny           PolicyAction = 1
	PolicyActionAllowException PolicyAction = 2
	PolicyActionDenyException  PolicyAction = 3
	PolicyActionKill           PolicyAction = 4
)

func (a PolicyAction) String() string {
	switch a {
	case PolicyActionAllow:
		return "allow"
	case PolicyActionDeny:
		return "deny"
	case PolicyActionAllowException:
		return "allow_exception"
	case PolicyActionDenyException:
		return "deny_exception"
	case PolicyActionKill:
		return "kill"
	default:
		return "unknown"
	}
}

// Policy options for JobSetPolicy.
const (
	PolicyRelative uint32 = 0
	PolicyAbsolute uint32 = 1
)

// Policy topics for JobSetPolicy.
const (
	PolicyTopicBasic uint32 = 0
)

// PolicyBasic is one condition/action pair.
type PolicyBasic struct {
	Condition PolicyCondition
	Policy    PolicyAction
}
