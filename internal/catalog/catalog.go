// Package catalog is the embedded province / canton / district tree used to
// name and sanity-check monitored locations.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hamed0406/waterwatch/internal/domain"
)

//go:embed catalog.yaml
var seed []byte

var ErrUnknownLocation = errors.New("catalog: unknown location")

type District struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

type Canton struct {
	ID        string     `yaml:"id" json:"id"`
	Name      string     `yaml:"name" json:"name"`
	Districts []District `yaml:"districts" json:"districts"`
}

type Province struct {
	ID      string   `yaml:"id" json:"id"`
	Name    string   `yaml:"name" json:"name"`
	Cantons []Canton `yaml:"cantons" json:"cantons"`
}

type Catalog struct {
	Provinces []Province `yaml:"provinces" json:"provinces"`
}

// Default parses the embedded seed.
func Default() (*Catalog, error) {
	return Parse(seed)
}

func Parse(content []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(content, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	for _, p := range c.Provinces {
		if p.ID == "" || p.Name == "" {
			return nil, fmt.Errorf("parse catalog: province without id or name")
		}
	}
	return &c, nil
}

// Match is what Lookup found; nil members were not in the catalog.
type Match struct {
	Province *Province
	Canton   *Canton
	District *District
}

func (c *Catalog) Lookup(provinceID, cantonID, districtID string) Match {
	var m Match
	for i := range c.Provinces {
		if c.Provinces[i].ID == provinceID {
			m.Province = &c.Provinces[i]
			break
		}
	}
	if m.Province == nil {
		return m
	}
	for i := range m.Province.Cantons {
		if m.Province.Cantons[i].ID == cantonID {
			m.Canton = &m.Province.Cantons[i]
			break
		}
	}
	if m.Canton == nil {
		return m
	}
	for i := range m.Canton.Districts {
		if m.Canton.Districts[i].ID == districtID {
			m.District = &m.Canton.Districts[i]
			break
		}
	}
	return m
}

// Label renders "Province / Canton / District" with whatever is known.
func (m Match) Label() string {
	parts := make([]string, 0, 3)
	if m.Province != nil {
		parts = append(parts, m.Province.Name)
	}
	if m.Canton != nil {
		parts = append(parts, m.Canton.Name)
	}
	if m.District != nil {
		parts = append(parts, m.District.Name)
	}
	return strings.Join(parts, " / ")
}

// Resolve checks loc against the catalog and fills an empty name. Only a
// canton with listed districts can reject a district ID; the seed is partial.
func (c *Catalog) Resolve(loc domain.MonitoredLocation) (domain.MonitoredLocation, error) {
	m := c.Lookup(string(loc.ProvinceID), string(loc.CantonID), string(loc.DistrictID))
	if m.Canton != nil && len(m.Canton.Districts) > 0 && m.District == nil {
		return loc, fmt.Errorf("%w: district %s in %s", ErrUnknownLocation, loc.DistrictID, m.Label())
	}
	if strings.TrimSpace(loc.Name) == "" {
		switch {
		case m.District != nil:
			loc.Name = m.District.Name
		case m.Province != nil:
			loc.Name = m.Label()
		default:
			loc.Name = loc.Key()
		}
	}
	return loc, nil
}
