package capability

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CurrentActionParameter is the condition parameter the threshold network
// resolves to the identifier of the action currently executing.
const CurrentActionParameter = ":currentActionIpfsId"

// DefaultPolicyChain is the chain name conditions are evaluated against.
const DefaultPolicyChain = "ethereum"

// Condition is one access-control condition.
type Condition struct {
	ContractAddress      string          `json:"contractAddress"`
	StandardContractType string          `json:"standardContractType"`
	Chain                string          `json:"chain"`
	Method               string          `json:"method"`
	Parameters           []string        `json:"parameters"`
	ReturnValueTest      ReturnValueTest `json:"returnValueTest"`
}

// ReturnValueTest compares the resolved parameter against Value.
type ReturnValueTest struct {
	Comparator string `json:"comparator"`
	Value      string `json:"value"`
}

// Policy is a disjunction of conditions: satisfying any one grants access.
// It serializes as the interleaved condition list the network expects:
//
//	[cond1, {"operator":"or"}, cond2, {"operator":"or"}, cond3]
type Policy struct {
	Conditions []Condition
}

type operator struct {
	Operator string `json:"operator"`
}

// ActionPolicy builds the policy that admits exactly the given action
// identifiers, one condition per identifier.
func ActionPolicy(chain string, actionIDs []string) (Policy, error) {
	if chain == "" {
		chain = DefaultPolicyChain
	}

	var conditions []Condition
	for i, id := range actionIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			return Policy{}, fmt.Errorf("action identifier at index %d is empty", i)
		}
		conditions = append(conditions, Condition{
			Chain:      chain,
			Parameters: []string{CurrentActionParameter},
			ReturnValueTest: ReturnValueTest{
				Comparator: "=",
				Value:      id,
			},
		})
	}

	if len(conditions) == 0 {
		return Policy{}, fmt.Errorf("policy requires at least one action identifier")
	}

	return Policy{Conditions: conditions}, nil
}

// ActionIDs returns the identifiers admitted by the policy, in order.
func (p Policy) ActionIDs() []string {
	ids := make([]string, 0, len(p.Conditions))
	for _, c := range p.Conditions {
		ids = append(ids, c.ReturnValueTest.Value)
	}
	return ids
}

// MarshalJSON renders the interleaved condition/operator list.
func (p Policy) MarshalJSON() ([]byte, error) {
	items := make([]any, 0, 2*len(p.Conditions))
	for i, c := range p.Conditions {
		if i > 0 {
			items = append(items, operator{Operator: "or"})
		}
		items = append(items, c)
	}
	return json.Marshal(items)
}

// UnmarshalJSON accepts the interleaved list. Only "or" operators are allowed.
func (p *Policy) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("policy must be a JSON array: %w", err)
	}

	p.Conditions = nil
	for i, item := range raw {
		if i%2 == 1 {
			var op operator
			if err := json.Unmarshal(item, &op); err != nil || op.Operator != "or" {
				return fmt.Errorf("policy item %d: expected {\"operator\":\"or\"}", i)
			}
			continue
		}

		var c Condition
		if err := json.Unmarshal(item, &c); err != nil {
			return fmt.Errorf("policy item %d: %w", i, err)
		}
		p.Conditions = append(p.Conditions, c)
	}

	if len(raw) > 0 && len(raw)%2 == 0 {
		return fmt.Errorf("policy cannot end with an operator")
	}

	return nil
}
