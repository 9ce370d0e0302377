package domain

import (
	"bytes"
	"encoding/json"
)

// WeaponRecord is one catalog entry describing a weapon or munition model.
// Label is the unique key and matches a reference corpus folder name.
type WeaponRecord struct {
	Label         string      `json:"label"`
	DisplayName   string      `json:"name"`
	LocalizedName string      `json:"name_ua"`
	Type          string      `json:"type"`
	Category      string      `json:"category"`
	Country       string      `json:"country"`
	Caliber       LooseString `json:"caliber"`
	Years         LooseString `json:"years,omitempty"`
}

// Title returns the localized name, falling back to the display name and label.
func (r *WeaponRecord) Title() string {
	switch {
	case r.LocalizedName != "":
		return r.LocalizedName
	case r.DisplayName != "":
		return r.DisplayName
	default:
		return r.Label
	}
}

// LooseString decodes a JSON string, number or boolean as text. Catalogs
// written by hand mix "1947" and 1947 for the same field.
type LooseString string

// UnmarshalJSON implements json.Unmarshaler.
func (s *LooseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*s = ""
		return nil
	case data[0] == '"':
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = LooseString(str)
		return nil
	default:
		var buf bytes.Buffer
		if err := json.Compact(&buf, data); err != nil {
			return err
		}
		*s = LooseString(buf.String())
		return nil
	}
}
