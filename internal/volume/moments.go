package volume

// Moment describes a measured radar quantity, keyed by its ODIM name.
type Moment struct {
	Name         string // ODIM quantity identifier, e.g. "DBZH"
	Units        string
	StandardName string
	LongName     string
}

// moments is the registry of quantities this tool understands. Unknown
// quantities still decode; they just carry no standard name.
var moments = map[string]Moment{
	"DBZH": {
		Name:         "DBZH",
		Units:        "dBZ",
		StandardName: "equivalent_reflectivity_factor",
		LongName:     "Horizontal reflectivity factor",
	},
	"DBZV": {
		Name:         "DBZV",
		Units:        "dBZ",
		StandardName: "equivalent_reflectivity_factor",
		LongName:     "Vertical reflectivity factor",
	},
	"TH": {
		Name:         "TH",
		Units:        "dBZ",
		StandardName: "equivalent_reflectivity_factor",
		LongName:     "Total horizontal reflectivity factor",
	},
	"VRADH": {
		Name:         "VRADH",
		Units:        "m/s",
		StandardName: "radial_velocity_of_scatterers_away_from_instrument",
		LongName:     "Horizontal radial velocity",
	},
	"WRADH": {
		Name:         "WRADH",
		Units:        "m/s",
		StandardName: "doppler_spectrum_width",
		LongName:     "Horizontal spectrum width",
	},
	"ZDR": {
		Name:         "ZDR",
		Units:        "dB",
		StandardName: "log_differential_reflectivity_hv",
		LongName:     "Differential reflectivity",
	},
	"RHOHV": {
		Name:         "RHOHV",
		Units:        "1",
		StandardName: "cross_correlation_ratio_hv",
		LongName:     "Copolar correlation coefficient",
	},
	"PHIDP": {
		Name:         "PHIDP",
		Units:        "degrees",
		StandardName: "differential_phase_hv",
		LongName:     "Differential phase",
	},
	"KDP": {
		Name:         "KDP",
		Units:        "degrees/km",
		StandardName: "specific_differential_phase_hv",
		LongName:     "Specific differential phase",
	},
}

// MomentByName looks up a quantity in the registry. Unknown names return a
// bare Moment carrying just the name so decoding never drops a field.
func MomentByName(name string) Moment {
	if m, ok := moments[name]; ok {
		return m
	}
	return Moment{Name: name}
}

// KnownMoment reports whether the quantity is in the registry.
func KnownMoment(name string) bool {
	_, ok := moments[name]
	return ok
}
