package domain

// StoredSettings is the user settings record as persisted. Every field is
// optional; Merge fills the gaps from defaults.
type StoredSettings struct {
	TimeFormat           TimeFormat          `json:"timeFormat,omitempty"`
	CheckIntervalMinutes int                 `json:"checkIntervalMinutes,omitempty"`
	Notifications        *StoredPrefs        `json:"notifications,omitempty"`
	MonitoredLocations   []MonitoredLocation `json:"monitoredLocations,omitempty"`
}

type StoredPrefs struct {
	Browser *bool `json:"browser,omitempty"`
	OS      *bool `json:"os,omitempty"`
}

// Merge overlays the stored record on defaults field by field.
func (s StoredSettings) Merge(def Settings) Settings {
	out := Settings{
		TimeFormat:           def.TimeFormat,
		CheckIntervalMinutes: def.CheckIntervalMinutes,
		Notifications:        def.Notifications,
		MonitoredLocations:   []MonitoredLocation{},
	}
	if s.TimeFormat != "" {
		out.TimeFormat = s.TimeFormat
	}
	if s.CheckIntervalMinutes > 0 {
		out.CheckIntervalMinutes = s.CheckIntervalMinutes
	}
	if s.Notifications != nil {
		if s.Notifications.Browser != nil {
			out.Notifications.Browser = *s.Notifications.Browser
		}
		if s.Notifications.OS != nil {
			out.Notifications.OS = *s.Notifications.OS
		}
	}
	if len(s.MonitoredLocations) > 0 {
		out.MonitoredLocations = append(out.MonitoredLocations, s.MonitoredLocations...)
	}
	return out
}

// Stored converts full settings back into the persisted shape.
func (s Settings) Stored() StoredSettings {
	browser, os := s.Notifications.Browser, s.Notifications.OS
	locs := make([]MonitoredLocation, len(s.MonitoredLocations))
	copy(locs, s.MonitoredLocations)
	return StoredSettings{
		TimeFormat:           s.TimeFormat,
		CheckIntervalMinutes: s.CheckIntervalMinutes,
		Notifications:        &StoredPrefs{Browser: &browser, OS: &os},
		MonitoredLocations:   locs,
	}
}

// DedupLocations drops repeated (province, canton, district) entries, keeping the first.
func DedupLocations(in []MonitoredLocation) []MonitoredLocation {
	seen := make(map[string]struct{}, len(in))
	out := make([]MonitoredLocation, 0, len(in))
	for _, l := range in {
		if _, ok := seen[l.Key()]; ok {
			continue
		}
		seen[l.Key()] = struct{}{}
		out = append(out, l)
	}
	return out
}
