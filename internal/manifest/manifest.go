package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/GriffinCanCode/fiberkernel/internal/sys"
)

// Manifest is the root of a boot manifest.
type Manifest struct {
	Jobs []Job `toml:"job"`
}

// Job is a job to create under its parent.
type Job struct {
	Name      string    `toml:"name"`
	Policy    []Policy  `toml:"policy,omitempty"`
	Processes []Process `toml:"process,omitempty"`
	Jobs      []Job     `toml:"job,omitempty"`
}

// Policy is one basic job policy entry.
type Policy struct {
	Condition string `toml:"condition"`
	Action    string `toml:"action"`
}

// Process is a process to create and start in its job.
type Process struct {
	Name    string   `toml:"name"`
	Program string   `toml:"program"`
	Args    []string `toml:"args,omitempty"`
	// Connect names a process this one gets a channel to.
	Connect string `toml:"connect,omitempty"`
}

// Parse decodes and validates a manifest. Unknown keys are errors.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Load reads and parses the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return Parse(data)
}

// Encode renders m as TOML.
func (m *Manifest) Encode() ([]byte, error) {
	return toml.Marshal(m)
}

// Validate checks names, policies and connections.
func (m *Manifest) Validate() error {
	procs := make(map[string]*Process)
	var errs []error
	var walk func(path string, jobs []Job)
	walk = func(path string, jobs []Job) {
		for i := range jobs {
			j := &jobs[i]
			jp := fmt.Sprintf("%s/%s", path, j.Name)
			if err := checkName(j.Name); err != nil {
				errs = append(errs, fmt.Errorf("job %q: %w", jp, err))
			}
			if _, err := j.BasicPolicies(); err != nil {
				errs = append(errs, fmt.Errorf("job %q: %w", jp, err))
			}
			for k := range j.Processes {
				p := &j.Processes[k]
				if err := checkName(p.Name); err != nil {
					errs = append(errs, fmt.Errorf("process %q in %q: %w", p.Name, jp, err))
				}
				if p.Program == "" {
					errs = append(errs, fmt.Errorf("process %q in %q: program is required", p.Name, jp))
				}
				if _, dup := procs[p.Name]; dup {
					errs = append(errs, fmt.Errorf("process %q declared twice", p.Name))
				}
				procs[p.Name] = p
			}
			walk(jp, j.Jobs)
		}
	}
	walk("", m.Jobs)

	for name, p := range procs {
		switch {
		case p.Connect == "":
		case p.Connect == name:
			errs = append(errs, fmt.Errorf("process %q connects to itself", name))
		case procs[p.Connect] == nil:
			errs = append(errs, fmt.Errorf("process %q connects to unknown process %q", name, p.Connect))
		}
	}
	return errors.Join(errs...)
}

func checkName(name string) error {
	switch {
	case name == "":
		return errors.New("name is required")
	case len(name) >= sys.MaxNameLen:
		return fmt.Errorf("name longer than %d bytes", sys.MaxNameLen-1)
	}
	return nil
}

// BasicPolicies converts the job's policy entries.
func (j *Job) BasicPolicies() ([]sys.PolicyBasic, error) {
	out := make([]sys.PolicyBasic, 0, len(j.Policy))
	for _, p := range j.Policy {
		c, err := ParseCondition(p.Condition)
		if err != nil {
			return nil, err
		}
		a, err := ParseAction(p.Action)
		if err != nil {
			return nil, err
		}
		out = append(out, sys.PolicyBasic{Condition: c, Policy: a})
	}
	return out, nil
}

// Walk visits every job depth first, parents before children.
func (m *Manifest) Walk(fn func(parent, job *Job) error) error {
	var walk func(parent *Job, jobs []Job) error
	walk = func(parent *Job, jobs []Job) error {
		for i := range jobs {
			if err := fn(parent, &jobs[i]); err != nil {
				return err
			}
			if err := walk(&jobs[i], jobs[i].Jobs); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(nil, m.Jobs)
}

var conditions = []sys.PolicyCondition{
	sys.PolicyBadHandle,
	sys.PolicyWrongObject,
	sys.PolicyNewAny,
	sys.PolicyNewVMO,
	sys.PolicyNewChannel,
	sys.PolicyNewProcess,
}

var actions = []sys.PolicyAction{
	sys.PolicyActionAllow,
	sys.PolicyActionDeny,
	sys.PolicyActionAllowException,
	sys.PolicyActionDenyException,
	sys.PolicyActionKill,
}

// ParseCondition maps a condition name such as "new_channel".
func ParseCondition(s string) (sys.PolicyCondition, error) {
	for _, c := range conditions {
		if c.String() == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown policy condition %q", s)
}

// ParseAction maps an action name such as "deny".
func ParseAction(s string) (sys.PolicyAction, error) {
	for _, a := range actions {
		if a.String() == s {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unknown policy action %q", s)
}
