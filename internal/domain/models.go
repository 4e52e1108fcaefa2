package domain

import (
	"strconv"
	"strings"
	"time"
)

// LocationID is one of the upstream numeric IDs (FkProvincia, FkCanton, FkDistrito).
// Stored settings carry it either as a JSON string or a JSON number.
type LocationID string

func (id *LocationID) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*id = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		u, err := strconv.Unquote(s)
		if err != nil {
			return err
		}
		s = u
	}
	*id = LocationID(strings.TrimSpace(s))
	return nil
}

type MonitoredLocation struct {
	ProvinceID LocationID `json:"provinceId" yaml:"provinceId"`
	CantonID   LocationID `json:"cantonId" yaml:"cantonId"`
	DistrictID LocationID `json:"districtId" yaml:"districtId"`
	Name       string     `json:"name" yaml:"name"`
}

// Key identifies a location by its three upstream IDs.
func (l MonitoredLocation) Key() string {
	return string(l.ProvinceID) + "/" + string(l.CantonID) + "/" + string(l.DistrictID)
}

type RawAlert struct {
	Type    string `json:"type,omitempty"`
	Title   string `json:"title,omitempty"`
	Message string `json:"message,omitempty"`
}

// Interruption mirrors one upstream "entidad" record. Times are "dd/mm/yyyy HH:mm".
type Interruption struct {
	ID           int64  `json:"idInterrupcion"`
	Description  string `json:"descripcion"`
	StartTime    string `json:"inicioAfectacion"`
	EndTime      string `json:"finAfectacion"`
	LocationName string `json:"locationName,omitempty"`
}

// RawResponse is the upstream body for one location query.
type RawResponse struct {
	Alert    *RawAlert      `json:"alerta"`
	Entities []Interruption `json:"entidad"`
}

// AggregatedResult is the snapshot persisted after every run.
type AggregatedResult struct {
	Alert         *RawAlert      `json:"alerta"`
	Interruptions []Interruption `json:"interruptions"`
	LastUpdated   int64          `json:"lastUpdated"` // unix millis
}

func (r AggregatedResult) LastUpdatedAt() time.Time {
	return time.UnixMilli(r.LastUpdated)
}

type TimeFormat string

const (
	TimeFormat24h TimeFormat = "24h"
	TimeFormat12h TimeFormat = "12h"
)

type NotificationPrefs struct {
	Browser bool `json:"browser"`
	OS      bool `json:"os"`
}

type Settings struct {
	TimeFormat           TimeFormat          `json:"timeFormat"`
	CheckIntervalMinutes int                 `json:"checkIntervalMinutes"`
	Notifications        NotificationPrefs   `json:"notifications"`
	MonitoredLocations   []MonitoredLocation `json:"monitoredLocations"`
}
