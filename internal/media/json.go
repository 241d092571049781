// SPDX-License-Identifier: MIT

package media

import (
	"encoding/json"
	"fmt"
)

// ParseTier maps a tier name back to its enum value.
func ParseTier(s string) (Tier, error) {
	switch s {
	case "fast":
		return TierFast, nil
	case "thumbnail":
		return TierThumbnail, nil
	case "legacy":
		return TierLegacy, nil
	case "durable":
		return TierDurable, nil
	}
	return 0, fmt.Errorf("unknown tier %q", s)
}

// Tiers and outcomes cross process boundaries (cache entries, API responses)
// as their names, not their enum ordinals.

func (t Tier) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *Tier) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	tier, err := ParseTier(s)
	if err != nil {
		return err
	}
	*t = tier
	return nil
}

func (o Outcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.String())
}

func (o *Outcome) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "success":
		*o = OutcomeSuccess
	case "not_found":
		*o = OutcomeNotFound
	case "timeout":
		*o = OutcomeTimeout
	case "network_error":
		*o = OutcomeNetworkError
	case "aborted":
		*o = OutcomeAborted
	default:
		return fmt.Errorf("unknown outcome %q", s)
	}
	return nil
}
