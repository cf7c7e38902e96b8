package config

import "github.com/wildstyl3r/tracktoy/internal/utils"

// factors to internal units: mm, MeV, ns, T
var unitToInternal = map[string]float64{
	"um":  1e-3, // [mm]
	"mm":  1,    // [mm]
	"cm":  10,   // [mm]
	"m":   1e3,  // [mm]
	"eV":  1e-6, // [MeV]
	"keV": 1e-3, // [MeV]
	"MeV": 1,    // [MeV]
	"GeV": 1e3,  // [MeV]
	"ps":  1e-3, // [ns]
	"ns":  1,    // [ns]
	"us":  1e3,  // [ns]
	"T":   1,    // [T]
	"kG":  0.1,  // [T]
	"G":   1e-4, // [T]
}

type UnitClass int

const (
	Length UnitClass = iota
	Energy           // also momentum [MeV/c] and mass [MeV/c^2]
	Time
	Field
)

var unitsInClass = map[UnitClass][]string{
	Length: {"um", "mm", "cm", "m"},
	Energy: {"eV", "keV", "MeV", "GeV"},
	Time:   {"ps", "ns", "us"},
	Field:  {"G", "kG", "T"},
}

var classesOfUnits = map[string]UnitClass{
	"um":  Length,
	"mm":  Length,
	"cm":  Length,
	"m":   Length,
	"eV":  Energy,
	"keV": Energy,
	"MeV": Energy,
	"GeV": Energy,
	"ps":  Time,
	"ns":  Time,
	"us":  Time,
	"T":   Field,
	"kG":  Field,
	"G":   Field,
}

type UnitElement = struct {
	Class UnitClass
	Power int
}

// checkUnits reports unknown units and units of an already listed class,
// then fills the missing classes from the defaults.
func checkUnits(units []string) (extended, conflicts []string) {
	classes := map[UnitClass]struct{}{}
	for _, unit := range units {
		class, known := classesOfUnits[unit]
		if !known {
			conflicts = append(conflicts, unit)
			continue
		}
		if _, some := classes[class]; some {
			conflicts = append(conflicts, unit)
		} else {
			classes[class] = struct{}{}
		}
	}
	extended = append([]string(nil), units...)
	for _, unit := range defaultUnits {
		if _, some := classes[classesOfUnits[unit]]; !some {
			extended = append(extended, unit)
		}
	}
	return
}

// Convert scales v between the given units and internal units: into them when
// direct is set, out of them otherwise.
func Convert(v float64, classes []UnitElement, units []string, direct bool) float64 {
	for i := range classes {
		uc := classes[i]
		unit := utils.Intersect(unitsInClass[uc.Class], units)
		if unit == nil {
			continue
		}
		absPower := utils.IntAbs(uc.Power)
		if direct == (uc.Power > 0) {
			for range absPower {
				v *= unitToInternal[*unit]
			}
		} else {
			for range absPower {
				v /= unitToInternal[*unit]
			}
		}
	}
	return v
}

// UnitLabel is the unit of a quantity in the given unit set, e.g. "T/mm".
func UnitLabel(classes []UnitElement, units []string) string {
	num, den := "", ""
	for _, uc := range classes {
		unit := utils.Intersect(unitsInClass[uc.Class], units)
		if unit == nil {
			continue
		}
		for range utils.IntAbs(uc.Power) {
			if uc.Power > 0 {
				num = joinUnit(num, *unit)
			} else {
				den = joinUnit(den, *unit)
			}
		}
	}
	if num == "" {
		num = "1"
	}
	if den != "" {
		return num + "/" + den
	}
	return num
}

func joinUnit(a, b string) string {
	if a == "" {
		return b
	}
	return a + "*" + b
}
