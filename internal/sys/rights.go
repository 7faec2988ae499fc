package sys

import "strings"

// Rights is the set of operations a handle permits on its object.
type Rights uint32

const (
	RightNone          Rights = 0
	RightDuplicate     Rights = 1 << 0
	RightTransfer      Rights = 1 << 1
	RightRead          Rights = 1 << 2
	RightWrite         Rights = 1 << 3
	RightExecute       Rights = 1 << 4
	RightMap           Rights = 1 << 5
	RightGetProperty   Rights = 1 << 6
	RightSetProperty   Rights = 1 << 7
	RightEnumerate     Rights = 1 << 8
	RightDestroy       Rights = 1 << 9
	RightSetPolicy     Rights = 1 << 10
	RightGetPolicy     Rights = 1 << 11
	RightSignal        Rights = 1 << 12
	RightSignalPeer    Rights = 1 << 13
	RightWait          Rights = 1 << 14
	RightInspect       Rights = 1 << 15
	RightManageJob     Rights = 1 << 16
	RightManageProcess Rights = 1 << 17
	RightManageThread  Rights = 1 << 18
	RightApplyProfile  Rights = 1 << 19
	RightManageSocket  Rights = 1 << 20

	// RightSameRights asks duplicate and replace to keep the source rights.
	RightSameRights Rights = 1 << 31
)

const (
	RightsBasic    = RightTransfer | RightDuplicate | RightWait | RightInspect
	RightsIO       = RightRead | RightWrite
	RightsProperty = RightGetProperty | RightSetProperty
	RightsPolicy   = RightGetPolicy | RightSetPolicy

	DefaultChannelRights = (RightsBasic &^ RightDuplicate) | RightsIO | RightSignal | RightSignalPeer
	DefaultProcessRights = RightsBasic | RightsIO | RightsProperty | RightEnumerate | RightDestroy |
		RightSignal | RightManageProcess | RightManageThread
	DefaultJobRights = RightsBasic | RightsIO | RightsProperty | RightsPolicy | RightEnumerate |
		RightDestroy | RightSignal | RightManageJob | RightManageProcess | RightManageThread
	DefaultVMORights = RightsBasic | RightsIO | RightsProperty | RightMap | RightSignal
)

var rightNames = []struct {
	bit  Rights
	name string
}{
	{RightDuplicate, "DUPLICATE"},
	{RightTransfer, "TRANSFER"},
	{RightRead, "READ"},
	{RightWrite, "WRITE"},
	{RightExecute, "EXECUTE"},
	{RightMap, "MAP"},
	{RightGetProperty, "GET_PROPERTY"},
	{RightSetProperty, "SET_PROPERTY"},
	{RightEnumerate, "ENUMERATE"},
	{RightDestroy, "DESTROY"},
	{RightSetPolicy, "SET_POLICY"},
	{RightGetPolicy, "GET_POLICY"},
	{RightSignal, "SIGNAL"},
	{RightSignalPeer, "SIGNAL_PEER"},
	{RightWait, "WAIT"},
	{RightInspect, "INSPECT"},
	{RightManageJob, "MANAGE_JOB"},
	{RightManageProcess, "MANAGE_PROCESS"},
	{RightManageThread, "MANAGE_THREAD"},
	{RightApplyProfile, "APPLY_PROFILE"},
	{RightManageSocket, "MANAGE_SOCKET"},
	{RightSameRights, "SAME_RIGHTS"},
}

// Has reports whether r contains every right in required.
func (r Rights) Has(required Rights) bool {
	return r&required == required
}

// IsSubsetOf reports whether every right in r is also in other.
func (r Rights) IsSubsetOf(other Rights) bool {
	return other.Has(r)
}

// String renders the rights as NAME|NAME, or NONE.
func (r Rights) String() string {
	if r == RightNone {
		return "NONE"
	}
	var parts []string
	for _, rn := range rightNames {
		if r&rn.bit != 0 {
			parts = append(parts, rn.name)
		}
	}
	return strings.Join(parts, "|")
}
