package model

import "encoding/json"

// DefaultCallingDisplaySeconds applies when the store leaves
// calling_status_display_second unset.
const DefaultCallingDisplaySeconds = 60

// StoreStatus is the response of GET /store/status.
type StoreStatus struct {
	BusinessDate string `json:"business_date"`
	IsOpen       bool   `json:"is_open"`
}

// StoreSettings holds the store-level settings object. Only the calling
// display duration is interpreted here; everything else is kept verbatim.
type StoreSettings struct {
	CallingStatusDisplaySecond int             `json:"calling_status_display_second"`
	Raw                        json.RawMessage `json:"-"`
}

// UnmarshalJSON keeps the original document alongside the typed field.
func (s *StoreSettings) UnmarshalJSON(b []byte) error {
	var typed struct {
		CallingStatusDisplaySecond int `json:"calling_status_display_second"`
	}
	if err := json.Unmarshal(b, &typed); err != nil {
		return err
	}
	s.CallingStatusDisplaySecond = typed.CallingStatusDisplaySecond
	s.Raw = append(json.RawMessage(nil), b...)
	return nil
}

// MarshalJSON returns the original document when one was decoded.
func (s StoreSettings) MarshalJSON() ([]byte, error) {
	if len(s.Raw) > 0 {
		return s.Raw, nil
	}
	return json.Marshal(map[string]int{"calling_status_display_second": s.CallingStatusDisplaySecond})
}

// DisplaySeconds returns the called-state window, falling back to the default.
func (s StoreSettings) DisplaySeconds() int {
	if s.CallingStatusDisplaySecond <= 0 {
		return DefaultCallingDisplaySeconds
	}
	return s.CallingStatusDisplaySecond
}
