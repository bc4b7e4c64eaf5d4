package marketdata

import "encoding/json"

// rawDealEntries unmarshals either a single deal object or an array of
// them, since the upstream feed may send data as a single object.
type rawDealEntries []rawDealEntry

func (d *rawDealEntries) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		*d = nil
		return nil
	}
	if b[0] == '[' {
		var entries []rawDealEntry
		if err := json.Unmarshal(b, &entries); err != nil {
			return err
		}
		*d = entries
		return nil
	}
	var single rawDealEntry
	if err := json.Unmarshal(b, &single); err != nil {
		return err
	}
	*d = rawDealEntries{single}
	return nil
}
