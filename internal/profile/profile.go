package profile

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// ErrUserNotFound is returned when the requested user is absent from the file.
var ErrUserNotFound = errors.New("profile: user not found")

// Sex encodes biological sex for the risk model.
type Sex string

const (
	Male   Sex = "male"
	Female Sex = "female"
)

// Numeric returns 1 for male and 0 otherwise.
func (s Sex) Numeric() float64 {
	if strings.EqualFold(string(s), string(Male)) {
		return 1
	}
	return 0
}

// Profile holds the static attributes of the monitored person.
type Profile struct {
	Name                  string  `toml:"name"`
	Icon                  string  `toml:"icon"`
	Age                   float64 `toml:"age"`
	Sex                   Sex     `toml:"sex"`
	WeightKg              float64 `toml:"weight_kg"`
	HeightCm              float64 `toml:"height_cm"`
	BMI                   float64 `toml:"bmi"`
	Nationality           float64 `toml:"nationality"`
	CardiovascularHistory bool    `toml:"cardiovascular_history"`
	SickleCellTrait       bool    `toml:"sickle_cell_trait"`
}

// Provider supplies the current profile.
type Provider interface {
	Profile() Profile
}

// Static is a Provider returning a fixed profile.
type Static Profile

// Profile implements Provider.
func (s Static) Profile() Profile { return Profile(s) }

// Fields returns the attribute names and values the risk model consumes.
func (p Profile) Fields() map[string]float64 {
	return map[string]float64{
		"Age":                            p.Age,
		"Sex":                            p.Sex.Numeric(),
		"Weight (kg)":                    p.WeightKg,
		"BMI":                            p.BMI,
		"Height (cm)":                    p.HeightCm,
		"Nationality":                    p.Nationality,
		"Cardiovascular disease history": boolFloat(p.CardiovascularHistory),
		"Sickle Cell Trait (SCT)":        boolFloat(p.SickleCellTrait),
	}
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

type usersFile struct {
	Users []Profile `toml:"users"`
}

// LoadFile reads a TOML users file and returns the named user, or the first
// user when name is empty. A zero BMI is derived from weight and height.
func LoadFile(path, name string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read users file: %w", err)
	}
	return Parse(data, name)
}

// Parse decodes a TOML users document.
func Parse(data []byte, name string) (Profile, error) {
	var doc usersFile
	if err := toml.Unmarshal(data, &doc); err != nil {
		return Profile{}, fmt.Errorf("parse users file: %w", err)
	}
	if len(doc.Users) == 0 {
		return Profile{}, fmt.Errorf("%w: file lists no users", ErrUserNotFound)
	}

	selected := -1
	if name == "" {
		selected = 0
	} else {
		for i, u := range doc.Users {
			if strings.EqualFold(u.Name, name) {
				selected = i
				break
			}
		}
	}
	if selected < 0 {
		return Profile{}, fmt.Errorf("%w: %s", ErrUserNotFound, name)
	}

	p := doc.Users[selected]
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	if p.BMI == 0 && p.HeightCm > 0 {
		m := p.HeightCm / 100
		p.BMI = p.WeightKg / (m * m)
	}
	return p, nil
}

// Validate performs basic sanity checks on the profile values.
func (p Profile) Validate() error {
	if p.Age < 0 || p.Age > 130 {
		return fmt.Errorf("profile %s: age %.0f out of range", p.Name, p.Age)
	}
	if p.WeightKg < 0 || p.HeightCm < 0 || p.BMI < 0 {
		return fmt.Errorf("profile %s: weight, height and bmi cannot be negative", p.Name)
	}
	switch strings.ToLower(string(p.Sex)) {
	case "", string(Male), string(Female):
	default:
		return fmt.Errorf("profile %s: unknown sex %q", p.Name, p.Sex)
	}
	return nil
}
