package authority

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Action names an inbound command guarded by the matrix
type Action string

// Actions
const (
	ActionFileComplaint       Action = "case.file_complaint"
	ActionFileSceneReport     Action = "case.file_scene_report"
	ActionTraineeReview       Action = "case.trainee_review"
	ActionOfficerReview       Action = "case.officer_review"
	ActionSubmitResolution    Action = "case.submit_resolution"
	ActionSergeantReview      Action = "case.sergeant_review"
	ActionChiefReview         Action = "case.chief_review"
	ActionResubmit            Action = "case.resubmit"
	ActionAddComplainant      Action = "case.add_complainant"
	ActionViewCase            Action = "case.view"
	ActionAddSuspect          Action = "suspect.add"
	ActionArrestSuspect       Action = "suspect.arrest"
	ActionBoardSuspect        Action = "suspect.board"
	ActionCreateInterrogation Action = "interrogation.create"
	ActionInterrogatorScore   Action = "interrogation.interrogator_score"
	ActionSupervisorScore     Action = "interrogation.supervisor_score"
	ActionCaptainFeedback     Action = "interrogation.captain_feedback"
	ActionChiefConfirm        Action = "interrogation.chief_confirm"
	ActionCreateVerdict       Action = "verdict.create"
	ActionSetBailFine         Action = "verdict.set_bail_fine"
	ActionReportPayment       Action = "verdict.report_payment"
	ActionViewVerdict         Action = "verdict.view"
	ActionViewPursuit         Action = "pursuit.view"
)

var knownActions = map[Action]bool{
	ActionFileComplaint: true, ActionFileSceneReport: true, ActionTraineeReview: true,
	ActionOfficerReview: true, ActionSubmitResolution: true, ActionSergeantReview: true,
	ActionChiefReview: true, ActionResubmit: true, ActionAddComplainant: true,
	ActionViewCase: true, ActionAddSuspect: true, ActionArrestSuspect: true,
	ActionBoardSuspect: true, ActionCreateInterrogation: true, ActionInterrogatorScore: true,
	ActionSupervisorScore: true, ActionCaptainFeedback: true, ActionChiefConfirm: true,
	ActionCreateVerdict: true, ActionSetBailFine: true, ActionReportPayment: true,
	ActionViewVerdict: true, ActionViewPursuit: true,
}

//go:embed policy.yaml
var defaultPolicy []byte

// policyFile is the yaml shape of a matrix
type policyFile struct {
	Inherits map[string][]string    `yaml:"inherits"`
	Actions  map[string]actionEntry `yaml:"actions"`
}

type actionEntry struct {
	Roles     []string `yaml:"roles"`
	OwnerOnly bool     `yaml:"owner_only"`
}

// Rule is the expanded requirement for one action
type Rule struct {
	Roles     map[Role]bool
	OwnerOnly bool
}

// Matrix is the loaded, inheritance-expanded role x action table
type Matrix struct {
	rules map[Action]Rule
}

// DefaultMatrix returns the matrix compiled into the binary
func DefaultMatrix() (*Matrix, error) {
	return ParseMatrix(defaultPolicy)
}

// LoadMatrix reads a policy file, falling back to the embedded policy when path is empty
func LoadMatrix(path string) (*Matrix, error) {
	if path == "" {
		return DefaultMatrix()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return ParseMatrix(b)
}

// ParseMatrix decodes and validates a yaml policy. Every known action must be present
// so that a typo can never silently open or close an endpoint.
func ParseMatrix(b []byte) (*Matrix, error) {
	var pf policyFile
	if err := yaml.Unmarshal(b, &pf); err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}

	inherits := make(map[Role][]Role, len(pf.Inherits))
	for name, parents := range pf.Inherits {
		r := Role(name)
		if !r.Known() {
			return nil, fmt.Errorf("policy inherits: unknown role %q", name)
		}
		for _, p := range parents {
			if !Role(p).Known() {
				return nil, fmt.Errorf("policy inherits %s: unknown role %q", name, p)
			}
			inherits[r] = append(inherits[r], Role(p))
		}
	}
	if err := checkAcyclic(inherits); err != nil {
		return nil, err
	}

	m := &Matrix{rules: make(map[Action]Rule, len(pf.Actions))}
	for name, entry := range pf.Actions {
		a := Action(name)
		if !knownActions[a] {
			return nil, fmt.Errorf("policy: unknown action %q", name)
		}
		rule := Rule{Roles: make(map[Role]bool), OwnerOnly: entry.OwnerOnly}
		for _, rn := range entry.Roles {
			r := Role(rn)
			if !r.Known() {
				return nil, fmt.Errorf("policy action %s: unknown role %q", name, rn)
			}
			rule.Roles[r] = true
		}
		// any role that inherits a permitted role is permitted too
		for r := range knownRoles {
			for _, granted := range ancestorsOf(r, inherits) {
				if rule.Roles[granted] {
					rule.Roles[r] = true
				}
			}
		}
		m.rules[a] = rule
	}

	var missing []string
	for a := range knownActions {
		if _, ok := m.rules[a]; !ok {
			missing = append(missing, string(a))
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("policy: missing actions %v", missing)
	}
	return m, nil
}

// Rule returns the expanded rule for an action
func (m *Matrix) Rule(a Action) (Rule, bool) {
	r, ok := m.rules[a]
	return r, ok
}

// ancestorsOf walks the inheritance graph and returns every role r may act as
func ancestorsOf(r Role, inherits map[Role][]Role) []Role {
	seen := map[Role]bool{}
	stack := append([]Role(nil), inherits[r]...)
	var out []Role
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[top] {
			continue
		}
		seen[top] = true
		out = append(out, top)
		stack = append(stack, inherits[top]...)
	}
	return out
}

func checkAcyclic(inherits map[Role][]Role) error {
	const (
		white = iota
		grey
		black
	)
	color := map[Role]int{}
	var visit func(r Role) error
	visit = func(r Role) error {
		color[r] = grey
		for _, p := range inherits[r] {
			switch color[p] {
			case grey:
				return fmt.Errorf("policy inherits: cycle through %q", p)
			case white:
				if err := visit(p); err != nil {
					return err
				}
			}
		}
		color[r] = black
		return nil
	}
	for r := range inherits {
		if color[r] == white {
			if err := visit(r); err != nil {
				return err
			}
		}
	}
	return nil
}
