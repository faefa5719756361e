package extractor

import (
	"encoding/json"
	"fmt"
)

// BonusMentioned is recorded when a bonus is named without an amount.
const BonusMentioned = "mentioned"

// Bonus is either a concrete amount or the "mentioned" sentinel.
type Bonus struct {
	Amount    int
	Mentioned bool
}

func (b Bonus) MarshalJSON() ([]byte, error) {
	if b.Mentioned {
		return json.Marshal(BonusMentioned)
	}
	return json.Marshal(b.Amount)
}

func (b *Bonus) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != BonusMentioned {
			return fmt.Errorf("unknown bonus sentinel %q", s)
		}
		*b = Bonus{Mentioned: true}
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("parse bonus: %w", err)
	}
	*b = Bonus{Amount: n}
	return nil
}

// Offer is a structured compensation proposal. A zero Base means no base
// salary was stated.
type Offer struct {
	Base    int      `json:"base,omitempty"`
	Perks   []string `json:"perks,omitempty"`
	Bonus   *Bonus   `json:"bonus,omitempty"`
	Trigger string   `json:"status_trigger,omitempty"` // set on acceptance pseudo-offers only
}

// AcceptanceMarker is the Trigger value of a pseudo-offer recorded when the
// candidate accepts without restating any terms.
const AcceptanceMarker = "acceptance"

// HasBase reports whether the offer carries a base salary.
func (o Offer) HasBase() bool {
	return o.Base > 0
}

// IsEmpty reports whether the offer carries nothing actionable.
func (o Offer) IsEmpty() bool {
	return o.Base == 0 && len(o.Perks) == 0 && o.Bonus == nil && o.Trigger == ""
}

// JSON renders the offer details the way they appear in prompts and transcripts.
func (o Offer) JSON() string {
	b, err := json.Marshal(o)
	if err != nil {
		return "{}"
	}
	return string(b)
}
