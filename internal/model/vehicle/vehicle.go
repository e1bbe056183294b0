package vehicle

import "fmt"

// Vehicle is one entry in the user's garage.
type Vehicle struct {
	ID     string `json:"id"`
	Make   string `json:"make"`
	Model  string `json:"model"`
	Year   int    `json:"year"`
	Engine string `json:"engine,omitempty"`
	Notes  string `json:"notes,omitempty"`
}

// DisplayName renders the short human-readable label used in prompts.
func (v Vehicle) DisplayName() string {
	if v.Year > 0 {
		return fmt.Sprintf("%d %s %s", v.Year, v.Make, v.Model)
	}
	return fmt.Sprintf("%s %s", v.Make, v.Model)
}

// UnitPreferences captures how measurements should be phrased in answers so
// the synthesized speech reads naturally.
type UnitPreferences struct {
	Torque      string `json:"torqueUnit"`      // newton_meters or pound_feet
	Pressure    string `json:"pressureUnit"`    // psi, bar or kpa
	Length      string `json:"lengthUnit"`      // metric or imperial
	Volume      string `json:"volumeUnit"`      // metric or imperial
	Temperature string `json:"temperatureUnit"` // celsius or fahrenheit
	Weight      string `json:"weightUnit"`      // metric or imperial
	Socket      string `json:"socketUnit"`      // metric or imperial
}

// Unit preference values.
const (
	UnitNewtonMeters = "newton_meters"
	UnitPoundFeet    = "pound_feet"
	UnitPSI          = "psi"
	UnitBar          = "bar"
	UnitKilopascals  = "kpa"
	UnitMetric       = "metric"
	UnitImperial     = "imperial"
	UnitCelsius      = "celsius"
	UnitFahrenheit   = "fahrenheit"
)

// DefaultUnitPreferences returns the imperial defaults used when the user has
// never changed their settings.
func DefaultUnitPreferences() UnitPreferences {
	return UnitPreferences{
		Torque:      UnitPoundFeet,
		Pressure:    UnitPSI,
		Length:      UnitImperial,
		Volume:      UnitImperial,
		Temperature: UnitFahrenheit,
		Weight:      UnitImperial,
		Socket:      UnitImperial,
	}
}
