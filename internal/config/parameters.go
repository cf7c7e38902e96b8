package config

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/wildstyl3r/tracktoy/internal/bfield"
	"github.com/wildstyl3r/tracktoy/internal/constants"
	"github.com/wildstyl3r/tracktoy/internal/utils"
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	OutputDir    string
	MomentumList string // rows "px py pz", one scenario per row
	Field        FieldParameters
	Scenarios    map[string]ScenarioParameters
	ScenarioParameters
	isDefinedMap map[string]struct{}

	InputUnits  []string
	OutputUnits []string
}

func (c *Config) isDefined(path []string, meta *toml.MetaData) bool {
	if _, sureDefined := c.isDefinedMap[strings.Join(path, "#")]; sureDefined {
		return true
	}
	return meta.IsDefined(path...)
}

func LoadConfig(configFileName string) (Config, toml.MetaData, error) {
	var config Config
	meta, err := toml.DecodeFile(strings.TrimSuffix(configFileName, ".toml")+".toml", &config)
	if err != nil {
		return config, meta, err
	}
	return config, meta, config.prepare(&meta)
}

// Parse is LoadConfig for in-memory documents.
func Parse(data string) (Config, toml.MetaData, error) {
	var config Config
	meta, err := toml.Decode(data, &config)
	if err != nil {
		return config, meta, err
	}
	return config, meta, config.prepare(&meta)
}

func (config *Config) prepare(meta *toml.MetaData) error {
	config.isDefinedMap = map[string]struct{}{}

	var unitsConflict []string
	config.InputUnits, unitsConflict = checkUnits(config.InputUnits)
	if len(unitsConflict) > 0 {
		return fmt.Errorf("%w: input unit conflict %v", ErrInvalid, unitsConflict)
	}
	if len(config.OutputUnits) == 0 {
		config.OutputUnits = config.InputUnits
	}
	config.OutputUnits, unitsConflict = checkUnits(config.OutputUnits)
	if len(unitsConflict) > 0 {
		return fmt.Errorf("%w: output unit conflict %v", ErrInvalid, unitsConflict)
	}

	if len(config.MomentumList) > 0 {
		if len(config.Scenarios) > 0 {
			return fmt.Errorf("%w: simultaneous momentum list and direct scenario specification not supported", ErrInvalid)
		}
		momenta, err := utils.ReadFloatRows(config.MomentumList, 3)
		if err != nil {
			return fmt.Errorf("momentum list: %w", err)
		}
		filename := utils.GetFilename(config.MomentumList)
		config.Scenarios = make(map[string]ScenarioParameters, len(momenta))
		for line := range momenta {
			scenarioName := filename + "_l" + strconv.Itoa(line+1)
			config.Scenarios[scenarioName] = ScenarioParameters{Momentum: momenta[line]}
			config.isDefinedMap[strings.Join([]string{"Scenarios", scenarioName, "Momentum"}, "#")] = struct{}{}
		}
	} else if len(config.Scenarios) == 0 {
		return fmt.Errorf("%w: no scenarios provided", ErrInvalid)
	}

	return config.Field.unify(meta, config.InputUnits)
}

// ScenarioNames lists the scenarios in natural order.
func (config *Config) ScenarioNames() []string {
	names := make([]string, 0, len(config.Scenarios))
	for name := range config.Scenarios {
		names = append(names, name)
	}
	utils.SortNatural(names)
	return names
}

// Scenario returns the named scenario with global values, defaults and unit
// conversion applied.
func (config *Config) Scenario(name string, meta *toml.MetaData) (ScenarioParameters, error) {
	sp, some := config.Scenarios[name]
	if !some {
		return sp, fmt.Errorf("%w: unknown scenario %q", ErrInvalid, name)
	}
	err := sp.CheckAndUnify(name, config, meta)
	return sp, err
}

type EnergyStep struct {
	Time   float64 // [time]
	DeltaE float64 // [energy], negative for a loss
}

type ScenarioParameters struct {
	Species        string    // e-, e+, mu-, mu+, pi-, pi+, proton
	Mass           float64   // [energy]
	Charge         int       // [e]
	Position       []float64 // [length]
	Momentum       []float64 // [energy]
	StartTime      float64   // [time]
	Duration       float64   // [time]
	Particles      int
	MomentumSpread float64 // relative, gaussian
	AngleSpread    float64 // [rad], gaussian
	Seed           int64

	ExtendMode  string  // z or time
	ZMax        float64 // [length]
	TEnd        float64 // [time]
	Tolerance   float64 // [length]
	PieceType   string  // helix or line
	EnergySteps []EnergyStep
	ZPlanes     []float64 // [length]
	SampleStep  float64   // [time]
	MakeDir     bool

	_outputUnits []string
	_verbose     bool
	_threads     int
}

func (p *ScenarioParameters) OutputUnits() []string {
	return p._outputUnits
}

func (p *ScenarioParameters) SetOutputUnits(u []string) {
	p._outputUnits = u
}

func (p *ScenarioParameters) Verbose() bool {
	return p._verbose
}

func (p *ScenarioParameters) SetVerbosity(verbose bool) {
	p._verbose = verbose
}

func (p *ScenarioParameters) Threads() int {
	return p._threads
}

func (p *ScenarioParameters) SetThreads(threads int) {
	p._threads = threads
}

func (p *ScenarioParameters) StartPosition() r3.Vec {
	return vec(p.Position)
}

func (p *ScenarioParameters) StartMomentum() r3.Vec {
	return vec(p.Momentum)
}

func vec(c []float64) r3.Vec {
	if len(c) != 3 {
		return r3.Vec{}
	}
	return r3.Vec{X: c[0], Y: c[1], Z: c[2]}
}

var species = map[string]struct {
	mass   float64
	charge int
}{
	"e-":     {constants.ElectronMass, -1},
	"e+":     {constants.ElectronMass, 1},
	"mu-":    {constants.MuonMass, -1},
	"mu+":    {constants.MuonMass, 1},
	"pi-":    {constants.PionMass, -1},
	"pi+":    {constants.PionMass, 1},
	"proton": {constants.ProtonMass, 1},
}

var defaultValues = map[string]any{ // internal units
	"Species":        "mu-",
	"Position":       []float64{0, 0, 0},
	"StartTime":      0.,
	"Duration":       50.,
	"Particles":      1,
	"MomentumSpread": 0.,
	"AngleSpread":    0.,
	"Seed":           int64(1),
	"ExtendMode":     "z",
	"ZMax":           1000.,
	"Tolerance":      1e-4,
	"PieceType":      "helix",
	"SampleStep":     0.1,
	"MakeDir":        false,
}

var defaultUnits = []string{"mm", "MeV", "ns", "T"}

var requiredFields = []string{"Momentum"}

var fieldsXor = map[string][]string{
	"Species": {"Mass", "Charge"},
	"Mass":    {"Species"},
	"Charge":  {"Species"},
}

var fieldsAnd = map[string][]string{
	"Mass":   {"Charge"},
	"Charge": {"Mass"},
}

var valueUnits = map[string][]UnitElement{
	"Mass":       {{Class: Energy, Power: 1}},
	"Position":   {{Class: Length, Power: 1}},
	"Momentum":   {{Class: Energy, Power: 1}},
	"StartTime":  {{Class: Time, Power: 1}},
	"Duration":   {{Class: Time, Power: 1}},
	"ZMax":       {{Class: Length, Power: 1}},
	"TEnd":       {{Class: Time, Power: 1}},
	"Tolerance":  {{Class: Length, Power: 1}},
	"ZPlanes":    {{Class: Length, Power: 1}},
	"SampleStep": {{Class: Time, Power: 1}},
}

var energyStepUnits = map[string][]UnitElement{
	"Time":   {{Class: Time, Power: 1}},
	"DeltaE": {{Class: Energy, Power: 1}},
}

// toInternal converts the named fields of the struct v in place.
func toInternal(v reflect.Value, parameterNames []string, units map[string][]UnitElement, inputUnits []string) {
	for _, name := range parameterNames {
		field := v.FieldByName(name)
		if !field.IsValid() {
			continue
		}
		if field.Kind() == reflect.Slice && field.Type().Elem().Kind() == reflect.Struct {
			for i := range field.Len() {
				elem := field.Index(i)
				names := make([]string, 0, elem.NumField())
				for j := range elem.NumField() {
					names = append(names, elem.Type().Field(j).Name)
				}
				toInternal(elem, names, energyStepUnits, inputUnits)
			}
			continue
		}
		classes, some := units[name]
		if !some {
			continue
		}
		switch {
		case field.CanFloat():
			field.SetFloat(Convert(field.Float(), classes, inputUnits, true))
		case field.Kind() == reflect.Slice && field.Type().Elem().Kind() == reflect.Float64:
			for i := range field.Len() {
				field.Index(i).SetFloat(Convert(field.Index(i).Float(), classes, inputUnits, true))
			}
		}
	}
}

// cloned copies slices so that conversions never touch shared values.
func cloned(v reflect.Value) reflect.Value {
	if v.Kind() != reflect.Slice || v.IsNil() {
		return v
	}
	c := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
	reflect.Copy(c, v)
	return c
}

func (sp *ScenarioParameters) checkFieldProblems(path []string, meta *toml.MetaData, globalConfig *Config) (ambiguities [][]string) {
	for field := range fieldsXor {
		if globalConfig.isDefined(append(slices.Clone(path), field), meta) {
			var foundAlternatives []string
			for _, alternative := range fieldsXor[field] {
				if globalConfig.isDefined(append(slices.Clone(path), alternative), meta) {
					foundAlternatives = append(foundAlternatives, alternative)
				}
			}
			if len(foundAlternatives) > 0 {
				ambiguities = append(ambiguities, append([]string{field}, foundAlternatives...))
			}
		}
	}
	return
}

/*
field value priority:
1. scenario
2. global
3. default
then derived values (species, time target) and validation.
*/

func (sp *ScenarioParameters) CheckAndUnify(scenarioName string, config *Config, meta *toml.MetaData) error {
	if ambiguities := config.checkFieldProblems(nil, meta, config); len(ambiguities) > 0 {
		return fmt.Errorf("%w: global ambiguities %v", ErrInvalid, ambiguities)
	}
	if ambiguities := sp.checkFieldProblems([]string{"Scenarios", scenarioName}, meta, config); len(ambiguities) > 0 {
		return fmt.Errorf("%w: scenario %s ambiguities %v", ErrInvalid, scenarioName, ambiguities)
	}

	var discoveredParameters []string
	excludeFromLoadingDefaultOrOuter := map[string]struct{}{}

	local := reflect.ValueOf(sp).Elem()
	localType := local.Type()
	for i := range local.NumField() {
		fieldName := localType.Field(i).Name
		if config.isDefined([]string{"Scenarios", scenarioName, fieldName}, meta) {
			local.Field(i).Set(cloned(local.Field(i)))
			discoveredParameters = append(discoveredParameters, fieldName)
			for _, x := range fieldsXor[fieldName] {
				excludeFromLoadingDefaultOrOuter[x] = struct{}{}
			}
		}
	}

	global := reflect.ValueOf(&config.ScenarioParameters).Elem()
	for i := range global.NumField() {
		fieldName := localType.Field(i).Name
		if !localType.Field(i).IsExported() {
			continue
		}
		if _, some := excludeFromLoadingDefaultOrOuter[fieldName]; !some && !slices.Contains(discoveredParameters, fieldName) && meta.IsDefined(fieldName) {
			local.Field(i).Set(cloned(global.Field(i)))
			discoveredParameters = append(discoveredParameters, fieldName)
			for _, x := range fieldsXor[fieldName] {
				excludeFromLoadingDefaultOrOuter[x] = struct{}{}
			}
		}
	}

	toInternal(local, discoveredParameters, valueUnits, config.InputUnits)

	for fieldName, value := range defaultValues {
		if _, x := excludeFromLoadingDefaultOrOuter[fieldName]; !x && !slices.Contains(discoveredParameters, fieldName) {
			local.FieldByName(fieldName).Set(cloned(reflect.ValueOf(value)))
			discoveredParameters = append(discoveredParameters, fieldName)
		}
	}

	var problems []error
	for _, required := range requiredFields {
		if !slices.Contains(discoveredParameters, required) {
			problems = append(problems, fmt.Errorf("field %s not found", required))
		}
	}
	for _, name := range discoveredParameters {
		for _, requirement := range fieldsAnd[name] {
			if !slices.Contains(discoveredParameters, requirement) {
				problems = append(problems, fmt.Errorf("for parameter %s requirement %s not found", name, requirement))
			}
		}
	}

	if slices.Contains(discoveredParameters, "Species") {
		s, some := species[sp.Species]
		if !some {
			problems = append(problems, fmt.Errorf("unknown species %q", sp.Species))
		}
		sp.Mass, sp.Charge = s.mass, s.charge
	}
	if !slices.Contains(discoveredParameters, "TEnd") {
		sp.TEnd = sp.StartTime + sp.Duration
	}
	slices.SortStableFunc(sp.EnergySteps, func(a, b EnergyStep) int {
		switch {
		case a.Time < b.Time:
			return -1
		case a.Time > b.Time:
			return 1
		}
		return 0
	})
	problems = append(problems, sp.validate()...)

	units, conflict := checkUnits(config.OutputUnits)
	if len(conflict) > 0 {
		sp._outputUnits = config.InputUnits
	} else {
		sp._outputUnits = units
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: scenario %s: %w", ErrInvalid, scenarioName, errors.Join(problems...))
	}
	return nil
}

func (sp *ScenarioParameters) validate() (problems []error) {
	if len(sp.Position) != 3 {
		problems = append(problems, fmt.Errorf("Position needs 3 components, got %d", len(sp.Position)))
	}
	if len(sp.Momentum) != 3 {
		problems = append(problems, fmt.Errorf("Momentum needs 3 components, got %d", len(sp.Momentum)))
	} else if sp.Momentum[0] == 0 && sp.Momentum[1] == 0 && sp.Momentum[2] == 0 {
		problems = append(problems, errors.New("Momentum is zero"))
	}
	if sp.Mass < 0 {
		problems = append(problems, fmt.Errorf("negative Mass %g", sp.Mass))
	}
	if !(sp.Duration > 0) {
		problems = append(problems, fmt.Errorf("non-positive Duration %g", sp.Duration))
	}
	if !(sp.Tolerance > 0) {
		problems = append(problems, fmt.Errorf("non-positive Tolerance %g", sp.Tolerance))
	}
	if !(sp.SampleStep > 0) {
		problems = append(problems, fmt.Errorf("non-positive SampleStep %g", sp.SampleStep))
	}
	if sp.Particles < 1 {
		problems = append(problems, fmt.Errorf("Particles must be at least 1, got %d", sp.Particles))
	}
	if sp.MomentumSpread < 0 || sp.AngleSpread < 0 {
		problems = append(problems, errors.New("negative spread"))
	}
	if sp.ExtendMode != "z" && sp.ExtendMode != "time" {
		problems = append(problems, fmt.Errorf("unknown ExtendMode %q", sp.ExtendMode))
	}
	if sp.PieceType != "helix" && sp.PieceType != "line" {
		problems = append(problems, fmt.Errorf("unknown PieceType %q", sp.PieceType))
	}
	for _, step := range sp.EnergySteps {
		if step.Time < sp.StartTime || step.Time > sp.StartTime+sp.Duration {
			problems = append(problems, fmt.Errorf("energy step at %g outside [%g, %g]", step.Time, sp.StartTime, sp.StartTime+sp.Duration))
		}
	}
	return problems
}

type FieldParameters struct {
	Kind     string    // uniform, solenoid, gradient or grid
	B        []float64 // uniform field vector [field]
	B0       float64   // axial field of solenoid and gradient [field]
	Z1       float64   // solenoid entrance [length]
	Z2       float64   // solenoid exit [length]
	Fringe   float64   // [length]
	Gradient float64   // [field / length]
	Z0       float64   // gradient reference [length]
	File     string    // grid rows "x y z bx by bz" in mm and T
	ZMin     float64   // [length]
	ZMax     float64   // [length]

	MaxStep float64 // [length]
	MinStep float64 // [length]
	Probe   float64 // [length]
}

var fieldDefaults = map[string]any{
	"Kind":   "uniform",
	"B":      []float64{0, 0, 1},
	"Fringe": 10.,
	"ZMin":   -1e4,
	"ZMax":   1e4,
}

var fieldRequirements = map[string][]string{
	"uniform":  {},
	"solenoid": {"B0", "Z1", "Z2"},
	"gradient": {"B0", "Gradient"},
	"grid":     {"File"},
}

var fieldUnits = map[string][]UnitElement{
	"B":        {{Class: Field, Power: 1}},
	"B0":       {{Class: Field, Power: 1}},
	"Z1":       {{Class: Length, Power: 1}},
	"Z2":       {{Class: Length, Power: 1}},
	"Fringe":   {{Class: Length, Power: 1}},
	"Gradient": {{Class: Field, Power: 1}, {Class: Length, Power: -1}},
	"Z0":       {{Class: Length, Power: 1}},
	"ZMin":     {{Class: Length, Power: 1}},
	"ZMax":     {{Class: Length, Power: 1}},
	"MaxStep":  {{Class: Length, Power: 1}},
	"MinStep":  {{Class: Length, Power: 1}},
	"Probe":    {{Class: Length, Power: 1}},
}

func (f *FieldParameters) unify(meta *toml.MetaData, inputUnits []string) error {
	v := reflect.ValueOf(f).Elem()
	var defined []string
	for i := range v.NumField() {
		name := v.Type().Field(i).Name
		if meta.IsDefined("Field", name) {
			defined = append(defined, name)
		}
	}
	toInternal(v, defined, fieldUnits, inputUnits)
	for name, value := range fieldDefaults {
		if !slices.Contains(defined, name) {
			v.FieldByName(name).Set(cloned(reflect.ValueOf(value)))
		}
	}

	f.Kind = strings.ToLower(f.Kind)
	requirements, known := fieldRequirements[f.Kind]
	if !known {
		return fmt.Errorf("%w: unknown field kind %q", ErrInvalid, f.Kind)
	}
	for _, name := range requirements {
		if !slices.Contains(defined, name) {
			return fmt.Errorf("%w: field kind %s requires %s", ErrInvalid, f.Kind, name)
		}
	}
	if len(f.B) != 3 {
		return fmt.Errorf("%w: field B needs 3 components, got %d", ErrInvalid, len(f.B))
	}
	if f.Kind != "grid" && !(f.ZMax > f.ZMin) {
		return fmt.Errorf("%w: empty field envelope [%g, %g]", ErrInvalid, f.ZMin, f.ZMax)
	}
	if f.Kind == "solenoid" && !(f.Fringe > 0) {
		return fmt.Errorf("%w: non-positive solenoid fringe %g", ErrInvalid, f.Fringe)
	}
	return nil
}

func (f FieldParameters) stepper() bfield.Stepper {
	s := bfield.DefaultStepper()
	if f.MaxStep > 0 {
		s.MaxStep = f.MaxStep
	}
	if f.MinStep > 0 {
		s.MinStep = f.MinStep
	}
	if f.Probe > 0 {
		s.Probe = f.Probe
	}
	return s
}

// Build constructs the configured field map.
func (f FieldParameters) Build() (bfield.Map, error) {
	switch f.Kind {
	case "uniform":
		m := bfield.NewUniform(vec(f.B), f.ZMin, f.ZMax)
		m.Stepper = f.stepper()
		return m, nil
	case "solenoid":
		m := bfield.NewSolenoid(f.B0, f.Z1, f.Z2, f.Fringe, f.ZMin, f.ZMax)
		m.Stepper = f.stepper()
		return m, nil
	case "gradient":
		m := bfield.NewGradient(f.B0, f.Gradient, f.Z0, f.ZMin, f.ZMax)
		m.Stepper = f.stepper()
		return m, nil
	case "grid":
		m, err := bfield.LoadGrid(f.File)
		if err != nil {
			return nil, err
		}
		m.Stepper = f.stepper()
		return m, nil
	}
	return nil, fmt.Errorf("%w: unknown field kind %q", ErrInvalid, f.Kind)
}
