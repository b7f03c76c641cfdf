// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package models

// Agent is a claims analyst who receives emails matching one of their
// skills. A skill is "<industry>.<category>", e.g. "consumer.receipt".
type Agent struct {
	ID     string   `json:"id" yaml:"id"`
	Name   string   `json:"name" yaml:"name"`
	Skills []string `json:"skills" yaml:"skills"`
}

// Roster is the ordered list of agents. Order decides board columns and
// which agent wins when two share a skill.
type Roster []Agent

// DefaultRoster matches the categorizer's built-in assignment table.
func DefaultRoster() Roster {
	return Roster{
		{ID: "agent_001", Name: "Coach Gerver", Skills: []string{"insurance.endorsement", "insurance.docRequest"}},
		{ID: "agent_002", Name: "Alice Thompson", Skills: []string{"insurance.appetite", "insurance.billing"}},
		{ID: "agent_003", Name: "Bob Hernandez", Skills: []string{"consumer.receipt"}},
		{ID: "agent_004", Name: "Cara Park", Skills: []string{"insurance.underwriting"}},
	}
}

// For returns the first agent with the skill the labels call for.
func (r Roster) For(l Labels) (Agent, bool) {
	if l.Industry == "" || l.Category == "" {
		return Agent{}, false
	}
	skill := l.Industry + "." + string(l.Category)
	for _, a := range r {
		for _, s := range a.Skills {
			if s == skill {
				return a, true
			}
		}
	}
	return Agent{}, false
}

// IDs returns agent IDs in roster order.
func (r Roster) IDs() []string {
	ids := make([]string, len(r))
	for i, a := range r {
		ids[i] = a.ID
	}
	return ids
}

// Get returns the agent with the given ID.
func (r Roster) Get(id string) (Agent, bool) {
	for _, a := range r {
		if a.ID == id {
			return a, true
		}
	}
	return Agent{}, false
}
