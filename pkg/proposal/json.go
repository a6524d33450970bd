// SPDX-License-Identifier: Apache-2.0

package proposal

import (
	"encoding/json"
	"fmt"

	"github.com/schemaflow/schemaflow/pkg/changewire"
	"github.com/schemaflow/schemaflow/pkg/schemachange"
)

// MarshalJSON renders Changes through changewire.Encode so each entry
// carries its own "kind" discriminator on the wire — a plain
// json.Marshal of the schemachange.Change interface slice would otherwise
// serialize only the concrete struct's fields, with no way to recover which
// variant it was on the way back in.
func (p Proposal) MarshalJSON() ([]byte, error) {
	type alias Proposal
	wireChanges := make([]json.RawMessage, len(p.Changes))
	for i, c := range p.Changes {
		raw, err := changewire.Encode(c)
		if err != nil {
			return nil, fmt.Errorf("encoding change %d: %w", i, err)
		}
		wireChanges[i] = raw
	}

	return json.Marshal(struct {
		alias
		Changes []json.RawMessage `json:"changes"`
	}{alias: alias(p), Changes: wireChanges})
}

// UnmarshalJSON is the inverse of MarshalJSON: each change is decoded and
// validated through changewire.DecodeJSON, reconstructing the concrete
// schemachange.Change variant its "kind" field names.
func (p *Proposal) UnmarshalJSON(data []byte) error {
	type alias Proposal
	aux := struct {
		alias
		Changes []json.RawMessage `json:"changes"`
	}{}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	*p = Proposal(aux.alias)
	p.Changes = make([]schemachange.Change, len(aux.Changes))
	for i, raw := range aux.Changes {
		c, err := changewire.DecodeJSON(raw)
		if err != nil {
			return fmt.Errorf("decoding change %d: %w", i, err)
		}
		p.Changes[i] = c
	}
	return nil
}
