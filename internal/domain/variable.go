package domain

// Variable categories used to group indicators in the dashboard.
const (
	CategoryAverageTemperatures  = "Average temperatures"
	CategoryAveragePrecipitation = "Average precipitation"
	CategoryHeat                 = "Heat"
	CategoryCold                 = "Cold"
	CategoryDrought              = "Drought"
	CategoryExtremePrecipitation = "Extreme precipitation"
)

// Categories lists the categories in display order.
var Categories = []string{
	CategoryAverageTemperatures,
	CategoryAveragePrecipitation,
	CategoryHeat,
	CategoryCold,
	CategoryDrought,
	CategoryExtremePrecipitation,
}

// Variable is one row of the variable registry.
type Variable struct {
	Code                VariableCode `json:"code"`
	Name                string       `json:"name"`
	Unit                string       `json:"unit"`
	Description         string       `json:"description"`
	Category            string       `json:"category"`
	NormalizationFactor float64      `json:"normalization_factor"`
}

// ScreeningSet is the fixed list of indicators used for a quick ERA5
// climatology overview of a location.
var ScreeningSet = []VariableCode{
	"tas", "pr", "tasmin", "tasmax", "sd", "wsdi",
	"hd30", "hd35", "hd40", "hd42",
	"tr23", "tr26", "tr29",
	"rx1day", "rx5day", "r20mm", "r50mm",
}
