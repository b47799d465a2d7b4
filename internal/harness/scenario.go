package harness

import (
	"bytes"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Scenario defines one reconciliation scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Active is the plan selected on the device when the flow starts.
	Active string `yaml:"active,omitempty"`

	// Plans seeds the fake remote store.
	Plans []PlanSetup `yaml:"plans"`

	// Flow contains the steps, run in order.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final queue and remote state.
	Assertions []Assertion `yaml:"assertions"`
}

// PlanSetup is one plan on the fake remote store.
type PlanSetup struct {
	ID string `yaml:"id"`

	// Meeting is today's meeting type. Empty means no meeting today, so
	// batch items for this plan are skipped remotely.
	Meeting string `yaml:"meeting,omitempty"`

	// Lots lists the plan's lot ids.
	Lots []string `yaml:"lots"`
}

// Step is one action in the flow. Which fields apply depends on Action.
type Step struct {
	Action string `yaml:"action"`

	// submit, mark_synced, select
	Plan string `yaml:"plan,omitempty"`
	Lot  string `yaml:"lot,omitempty"`

	// submit
	Names     []string `yaml:"names,omitempty"`
	Financial bool     `yaml:"financial,omitempty"`
	Proxy     string   `yaml:"proxy,omitempty"`
	Rep       string   `yaml:"rep,omitempty"`

	// mark_synced
	Name string `yaml:"name,omitempty"`

	// fail_next: remote action to fail (default batchSubmit) and the failure kind
	Target string `yaml:"target,omitempty"`
	Error  string `yaml:"error,omitempty"`

	// remove
	ID string `yaml:"id,omitempty"`

	// Expect validates the step's trace event. Nil skips validation.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect is a subset match on a step's trace event.
// Unset fields are not checked.
type Expect struct {
	Skipped   *string `yaml:"skipped,omitempty"`
	Error     *string `yaml:"error,omitempty"`
	Batched   *int    `yaml:"batched,omitempty"`
	Processed *int    `yaml:"processed,omitempty"`
	Confirmed *int    `yaml:"confirmed,omitempty"`
	CleanedUp *int    `yaml:"cleaned_up,omitempty"`
	Queued    *int    `yaml:"queued,omitempty"`
}

// Assertion validates final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Plan scopes queue_count, queue_lots and remote_lots.
	Plan string `yaml:"plan,omitempty"`

	// Lots is the expected lot list (queue_lots, remote_lots).
	Lots []string `yaml:"lots,omitempty"`

	// Action is the remote action name (remote_calls).
	Action string `yaml:"action,omitempty"`

	// Count is the expected count (queue_count, remote_calls).
	Count int `yaml:"count,omitempty"`

	// Value is the expected halt state (halted).
	Value bool `yaml:"value,omitempty"`
}

// Step action names.
const (
	StepSubmit     = "submit"
	StepSync       = "sync"
	StepFailNext   = "fail_next"
	StepLoseAck    = "lose_ack"
	StepMarkSynced = "mark_synced"
	StepRemove     = "remove"
	StepSelect     = "select"
	StepOffline    = "offline"
	StepOnline     = "online"
	StepResume     = "resume"
)

// Assertion type constants.
const (
	AssertQueueCount  = "queue_count"
	AssertQueueLots   = "queue_lots"
	AssertRemoteLots  = "remote_lots"
	AssertRemoteCalls = "remote_calls"
	AssertHalted      = "halted"
)

// Failure kinds accepted by fail_next.
const (
	FailTransient = "transient"
	FailAuth      = "auth"
	FailInvalid   = "invalid"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields, or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Plans) == 0 {
		return fmt.Errorf("plans list is required and must be non-empty")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	plans := map[string]bool{}
	for i, p := range s.Plans {
		if p.ID == "" {
			return fmt.Errorf("plans[%d]: id is required", i)
		}
		if plans[p.ID] {
			return fmt.Errorf("plans[%d]: duplicate plan %q", i, p.ID)
		}
		if len(p.Lots) == 0 {
			return fmt.Errorf("plans[%d]: lots list is required", i)
		}
		plans[p.ID] = true
	}
	if s.Active != "" && !plans[s.Active] {
		return fmt.Errorf("active plan %q is not in plans", s.Active)
	}

	for i, step := range s.Flow {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

// validateStep validates a single flow step based on its action.
func validateStep(index int, step Step) error {
	switch step.Action {
	case "":
		return fmt.Errorf("flow[%d]: action is required", index)
	case StepSubmit:
		if step.Plan == "" || step.Lot == "" {
			return fmt.Errorf("flow[%d]: plan and lot are required for submit", index)
		}
	case StepMarkSynced:
		if step.Plan == "" || step.Lot == "" {
			return fmt.Errorf("flow[%d]: plan and lot are required for mark_synced", index)
		}
	case StepSelect:
		if step.Plan == "" {
			return fmt.Errorf("flow[%d]: plan is required for select", index)
		}
	case StepRemove:
		if step.ID == "" {
			return fmt.Errorf("flow[%d]: id is required for remove", index)
		}
	case StepFailNext:
		if !slices.Contains([]string{FailTransient, FailAuth, FailInvalid}, step.Error) {
			return fmt.Errorf("flow[%d]: error must be %s, %s or %s for fail_next", index, FailTransient, FailAuth, FailInvalid)
		}
	case StepSync, StepLoseAck, StepOffline, StepOnline, StepResume:
	default:
		return fmt.Errorf("flow[%d]: unknown action %q", index, step.Action)
	}
	if step.Expect != nil && step.Action != StepSync && step.Action != StepSubmit && step.Action != StepRemove {
		return fmt.Errorf("flow[%d]: expect is only supported for sync, submit and remove", index)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertQueueCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for queue_count", index)
		}
	case AssertQueueLots, AssertRemoteLots:
		if a.Plan == "" {
			return fmt.Errorf("assertions[%d]: plan is required for %s", index, a.Type)
		}
	case AssertRemoteCalls:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for remote_calls", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for remote_calls", index)
		}
	case AssertHalted:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
