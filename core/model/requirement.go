package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// UnitRequirement asks for a quantity of units satisfying any of the listed
// type tokens. A token is either a canonical "class:type" string or a legacy
// bare type name accepted across classes.
type UnitRequirement struct {
	Tokens   []string `json:"tokens"`
	Quantity int      `json:"quantity"`
}

// CountRequirement asks for a quantity of a named training or equipment item.
type CountRequirement struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// TransportEntry is one patient or prisoner on a mission manifest. Chance is
// the transport likelihood in percent; absent values default to 100.
type TransportEntry struct {
	Chance int `json:"chance"`
}

// Modifier reduces mission time while its trigger condition holds: the count
// of on-scene units matching Target (by label, equipment or training), capped
// at MaxCount, each contributing ReductionPercent.
type Modifier struct {
	Target           string  `json:"target"`
	MaxCount         int     `json:"max_count"`
	ReductionPercent float64 `json:"reduction_percent"`
}

// Penalty is a dispatcher-chosen reduction applied to requirement counts,
// reward or elapsed time.
type Penalty struct {
	Name          string         `json:"name"`
	RewardPercent float64        `json:"reward_percent"`
	TimePercent   float64        `json:"time_percent"`
	UnitDiscounts map[string]int `json:"unit_discounts"`
}

// rawQuantity carries the legacy quantity field aliases. Resolution order is
// quantity, count, qty; absent values default to 1.
type rawQuantity struct {
	Quantity *int `json:"quantity"`
	Count    *int `json:"count"`
	Qty      *int `json:"qty"`
}

func (r rawQuantity) resolve() int {
	for _, v := range []*int{r.Quantity, r.Count, r.Qty} {
		if v != nil {
			return *v
		}
	}
	return 1
}

// UnmarshalJSON normalizes the legacy field aliases once at ingestion.
func (r *UnitRequirement) UnmarshalJSON(data []byte) error {
	var raw struct {
		rawQuantity
		Tokens []string `json:"tokens"`
		Unit   string   `json:"unit"`
		Units  []string `json:"units"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	tokens := raw.Tokens
	tokens = append(tokens, raw.Units...)
	if raw.Unit != "" {
		tokens = append(tokens, raw.Unit)
	}
	if len(tokens) == 0 {
		return fmt.Errorf("unit requirement without tokens")
	}
	r.Tokens = tokens
	r.Quantity = raw.resolve()
	return nil
}

// UnmarshalJSON accepts the legacy quantity aliases for training and
// equipment requirements.
func (r *CountRequirement) UnmarshalJSON(data []byte) error {
	var raw struct {
		rawQuantity
		Name     string `json:"name"`
		Training string `json:"training"`
		Item     string `json:"item"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	name := raw.Name
	if name == "" {
		name = raw.Training
	}
	if name == "" {
		name = raw.Item
	}
	if name == "" {
		return fmt.Errorf("requirement without name")
	}
	r.Name = name
	r.Quantity = raw.resolve()
	return nil
}

// UnmarshalJSON defaults an absent chance to 100 so plain manifest entries
// always transport.
func (t *TransportEntry) UnmarshalJSON(data []byte) error {
	var raw struct {
		Chance *int `json:"chance"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Chance == nil {
		t.Chance = 100
	} else {
		t.Chance = *raw.Chance
	}
	return nil
}

// SplitToken separates a canonical "class:type" token. Legacy bare tokens
// return an empty class.
func SplitToken(tok string) (Class, string) {
	if i := strings.IndexByte(tok, ':'); i >= 0 {
		return Class(Normalize(tok[:i])), Normalize(tok[i+1:])
	}
	return "", Normalize(tok)
}
