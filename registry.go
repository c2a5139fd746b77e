package motorsbus

// RegisterEntry is a single control-table slot: its byte offset within the
// servo's memory map and its width in bytes (§3, always 1, 2, or 4).
type RegisterEntry struct {
	Address uint16
	Width   int
}

// ControlTable maps register name to its address/width for one motor model.
type ControlTable map[string]RegisterEntry

// Register names the driver treats specially (§4.3 step 7-8, §4.4 step 2).
const (
	RegisterGoalPosition    = "Goal_Position"
	RegisterPresentPosition = "Present_Position"
	RegisterID              = "ID"
	RegisterBaudRate        = "Baud_Rate"
)

var calibratedRegisters = map[string]bool{
	RegisterGoalPosition:    true,
	RegisterPresentPosition: true,
}

// scsSeriesControlTable is the full SCS/STS register map, carried over from
// the Python driver's SCS_SERIES_CONTROL_TABLE in full (not just the
// handful spec.md's §6.2 calls out by name) so model-aware tooling and
// configuration diagnostics have the complete memory map to work with.
var scsSeriesControlTable = ControlTable{
	"Model":                        {3, 2},
	"ID":                           {5, 1},
	"Baud_Rate":                    {6, 1},
	"Return_Delay":                 {7, 1},
	"Response_Status_Level":        {8, 1},
	"Min_Angle_Limit":              {9, 2},
	"Max_Angle_Limit":              {11, 2},
	"Max_Temperature_Limit":        {13, 1},
	"Max_Voltage_Limit":            {14, 1},
	"Min_Voltage_Limit":            {15, 1},
	"Max_Torque_Limit":             {16, 2},
	"Phase":                        {18, 1},
	"Unloading_Condition":          {19, 1},
	"LED_Alarm_Condition":          {20, 1},
	"P_Coefficient":                {21, 1},
	"D_Coefficient":                {22, 1},
	"I_Coefficient":                {23, 1},
	"Minimum_Startup_Force":        {24, 2},
	"CW_Dead_Zone":                 {26, 1},
	"CCW_Dead_Zone":                {27, 1},
	"Protection_Current":           {28, 2},
	"Angular_Resolution":           {30, 1},
	"Offset":                       {31, 2},
	"Mode":                         {33, 1},
	"Protective_Torque":            {34, 1},
	"Protection_Time":              {35, 1},
	"Overload_Torque":              {36, 1},
	"Over_Current_Protection_Time": {38, 1},
	"Torque_Enable":                {40, 1},
	"Acceleration":                 {41, 1},
	"Goal_Position":                {42, 2},
	"Goal_Time":                    {44, 2},
	"Goal_Speed":                   {46, 2},
	"Lock":                         {55, 1},
	"Present_Position":             {56, 2},
	"Present_Speed":                {58, 2},
	"Present_Load":                 {60, 2},
	"Present_Voltage":              {62, 1},
	"Present_Temperature":          {63, 1},
	"Status":                       {65, 1},
	"Moving":                       {66, 1},
	"Present_Current":              {69, 2},
}

// scsSeriesBaudTable maps the servo's Baud_Rate register code to bps (§6.2).
var scsSeriesBaudTable = map[int]int{
	0: 1_000_000,
	1: 500_000,
	2: 250_000,
	3: 128_000,
	4: 115_200,
	5: 57_600,
	6: 38_400,
	7: 19_200,
}

func defaultModelControlTables() map[string]ControlTable {
	return map[string]ControlTable{
		"scs_series": cloneControlTable(scsSeriesControlTable),
		"sts3215":    cloneControlTable(scsSeriesControlTable),
	}
}

func defaultModelResolutions() map[string]int {
	return map[string]int{
		"scs_series": 4096,
		"sts3215":    4096,
	}
}

func defaultModelBaudTables() map[string]map[int]int {
	return map[string]map[int]int{
		"scs_series": cloneBaudTable(scsSeriesBaudTable),
		"sts3215":    cloneBaudTable(scsSeriesBaudTable),
	}
}

func cloneControlTable(t ControlTable) ControlTable {
	out := make(ControlTable, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

func cloneBaudTable(t map[int]int) map[int]int {
	out := make(map[int]int, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// Registry is the immutable-after-construction control-table lookup (§4.2).
// It is cloned once per bus instance and then optionally merged with a
// caller-supplied extra control table — the same deep-copy-then-merge shape
// as the teacher's registry construction, generalized from "one shared
// controller per port" to "one control-table mapping per bus".
type Registry struct {
	tables      map[string]ControlTable
	resolutions map[string]int
	baudTables  map[string]map[int]int
}

// NewRegistry builds a registry from the built-in SCS/STS tables, optionally
// overridden per model by extraTable/extraResolution (§4.2: "The merge
// overrides entries by model").
func NewRegistry(extraTable map[string]ControlTable, extraResolution map[string]int) *Registry {
	r := &Registry{
		tables:      defaultModelControlTables(),
		resolutions: defaultModelResolutions(),
		baudTables:  defaultModelBaudTables(),
	}
	for model, table := range extraTable {
		r.tables[model] = cloneControlTable(table)
	}
	for model, res := range extraResolution {
		r.resolutions[model] = res
	}
	return r
}

// Lookup returns the (address, width) of register on model.
func (r *Registry) Lookup(model, register string) (RegisterEntry, error) {
	table, ok := r.tables[model]
	if !ok {
		return RegisterEntry{}, &UnknownControlEntryError{Register: model}
	}
	entry, ok := table[register]
	if !ok {
		return RegisterEntry{}, &UnknownControlEntryError{Model: model, Register: register}
	}
	return entry, nil
}

// Resolution returns the encoder resolution for model.
func (r *Registry) Resolution(model string) (int, error) {
	res, ok := r.resolutions[model]
	if !ok {
		return 0, &UnknownControlEntryError{Register: model}
	}
	return res, nil
}

// BaudCodes returns the baud-code -> bps table for model.
func (r *Registry) BaudCodes(model string) (map[int]int, error) {
	table, ok := r.baudTables[model]
	if !ok {
		return nil, &UnknownControlEntryError{Register: model}
	}
	return table, nil
}

// AssertSameAddress verifies every model in models shares identical
// (address, width) for register, per §4.2. A heterogeneous batch is a fatal
// configuration error (§7) caught before any I/O.
func (r *Registry) AssertSameAddress(models []string, register string) (RegisterEntry, error) {
	if len(models) == 0 {
		return RegisterEntry{}, &UnknownControlEntryError{Register: register}
	}

	addrs := make([]uint16, 0, len(models))
	widths := make([]int, 0, len(models))
	var first RegisterEntry
	mismatch := false

	for i, model := range models {
		entry, err := r.Lookup(model, register)
		if err != nil {
			return RegisterEntry{}, err
		}
		if i == 0 {
			first = entry
		} else if entry != first {
			mismatch = true
		}
		addrs = append(addrs, entry.Address)
		widths = append(widths, entry.Width)
	}

	if mismatch {
		return RegisterEntry{}, &HeterogeneousBatchError{
			Register: register,
			Models:   append([]string(nil), models...),
			Addrs:    addrs,
			Widths:   widths,
		}
	}
	return first, nil
}
