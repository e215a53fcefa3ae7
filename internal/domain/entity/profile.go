package entity

import (
	"fmt"
	"strings"
	"time"
)

// SurveyLength is a survey duration band.
type SurveyLength string

const (
	LengthShort  SurveyLength = "short"
	LengthMedium SurveyLength = "medium"
	LengthLong   SurveyLength = "long"
)

// Band limits in minutes: short is <= 10, long is >= 20.
const (
	shortMaxMinutes = 10
	longMinMinutes  = 20
)

// LengthBandFor maps an estimated duration onto its band.
func LengthBandFor(minutes int) SurveyLength {
	switch {
	case minutes <= shortMaxMinutes:
		return LengthShort
	case minutes >= longMinMinutes:
		return LengthLong
	default:
		return LengthMedium
	}
}

// birthdayLayout is the accepted birthday format.
const birthdayLayout = "2006-01-02"

// DemographicProfile is the user data the matching engine scores against.
// It is supplied by the profile source and never stored by the engine.
type DemographicProfile struct {
	UserID                string       `json:"user_id,omitempty"`
	Age                   *int         `json:"age,omitempty"`
	Birthday              string       `json:"birthday,omitempty"`
	Gender                string       `json:"gender,omitempty"`
	CountryCode           string       `json:"country_code,omitempty"`
	ZipCode               string       `json:"zip_code,omitempty"`
	PreferredSurveyLength SurveyLength `json:"preferred_survey_length,omitempty"`
	Interests             []string     `json:"interests,omitempty"`
}

// AgeAt derives the age in whole years at now.
// An explicit Age wins over Birthday. ok is false when neither is usable.
func (p DemographicProfile) AgeAt(now time.Time) (age int, ok bool) {
	if p.Age != nil {
		return *p.Age, *p.Age >= 0
	}
	if p.Birthday == "" {
		return 0, false
	}
	born, err := time.Parse(birthdayLayout, p.Birthday)
	if err != nil || born.After(now) {
		return 0, false
	}
	age = now.Year() - born.Year()
	if now.YearDay() < born.YearDay() {
		age--
	}
	return age, true
}

// Country returns the upper-cased ISO country code.
func (p DemographicProfile) Country() string {
	return strings.ToUpper(strings.TrimSpace(p.CountryCode))
}

// Validate checks the fields the engine relies on.
func (p DemographicProfile) Validate() error {
	if p.Age != nil && (*p.Age < 0 || *p.Age > 130) {
		return &ValidationError{Field: "age", Message: fmt.Sprintf("age %d is out of range", *p.Age)}
	}
	if p.Birthday != "" {
		if _, err := time.Parse(birthdayLayout, p.Birthday); err != nil {
			return &ValidationError{Field: "birthday", Message: "birthday must be formatted as YYYY-MM-DD"}
		}
	}
	if c := p.Country(); c != "" && len(c) != 2 {
		return &ValidationError{Field: "country_code", Message: "country_code must be a 2-letter ISO code"}
	}
	switch p.PreferredSurveyLength {
	case "", LengthShort, LengthMedium, LengthLong:
	default:
		return &ValidationError{Field: "preferred_survey_length", Message: "preferred_survey_length must be short, medium or long"}
	}
	return nil
}
