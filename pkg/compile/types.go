package compile

// Trip is a connection returned by findTrips.
type Trip struct {
	ID          string `json:"id" mapstructure:"id"`
	Origin      string `json:"origin" mapstructure:"origin"`
	Destination string `json:"destination" mapstructure:"destination"`
	Departure   string `json:"departure" mapstructure:"departure"`
	Arrival     string `json:"arrival" mapstructure:"arrival"`
	Duration    string `json:"duration,omitempty" mapstructure:"duration"`
	Transfers   int    `json:"transfers" mapstructure:"transfers"`
	TrainNumber string `json:"trainNumber,omitempty" mapstructure:"trainNumber"`
}

// Weather is a getWeather result, optionally enriched with snow conditions.
type Weather struct {
	Location    string   `json:"location,omitempty" mapstructure:"location"`
	Temperature *float64 `json:"temperature,omitempty" mapstructure:"temperature"`
	Condition   string   `json:"condition,omitempty" mapstructure:"condition"`
	WindKph     *float64 `json:"windKph,omitempty" mapstructure:"windKph"`
	Snow        *Snow    `json:"snow,omitempty" mapstructure:"-"`
}

// Snow is a getSnowConditions result.
type Snow struct {
	Location     string   `json:"location,omitempty" mapstructure:"location"`
	SnowDepthCm  *float64 `json:"snowDepthCm,omitempty" mapstructure:"snowDepthCm"`
	FreshSnowCm  *float64 `json:"freshSnowCm,omitempty" mapstructure:"freshSnowCm"`
	LiftsOpen    *int     `json:"liftsOpen,omitempty" mapstructure:"liftsOpen"`
	SlopesOpenKm *float64 `json:"slopesOpenKm,omitempty" mapstructure:"slopesOpenKm"`
}

// Station is a stop place found by name or place search.
type Station struct {
	ID   string `json:"id" mapstructure:"id"`
	Name string `json:"name" mapstructure:"name"`
}

// Event is an entry of a departure or arrival board.
type Event struct {
	ID          string `json:"id,omitempty" mapstructure:"id"`
	Time        string `json:"time" mapstructure:"time"`
	Destination string `json:"destination,omitempty" mapstructure:"destination"`
	Origin      string `json:"origin,omitempty" mapstructure:"origin"`
	Platform    string `json:"platform,omitempty" mapstructure:"platform"`
	TrainNumber string `json:"trainNumber,omitempty" mapstructure:"trainNumber"`
}

// Eco is a CO2 comparison of one trip.
type Eco struct {
	TripID      string  `json:"tripId" mapstructure:"tripId"`
	TrainCo2Kg  float64 `json:"trainCo2Kg" mapstructure:"trainCo2Kg"`
	CarCo2Kg    float64 `json:"carCo2Kg" mapstructure:"carCo2Kg"`
	SavingsKg   float64 `json:"savingsKg" mapstructure:"savingsKg"`
	SavingsRate float64 `json:"savingsRate" mapstructure:"savingsRate"`
}

// Coach is one vehicle of a train formation.
type Coach struct {
	Number     int    `json:"number" mapstructure:"number"`
	Class      string `json:"class,omitempty" mapstructure:"class"`
	Sector     string `json:"sector,omitempty" mapstructure:"sector"`
	Bike       bool   `json:"bike,omitempty" mapstructure:"bike"`
	Wheelchair bool   `json:"wheelchair,omitempty" mapstructure:"wheelchair"`
	Restaurant bool   `json:"restaurant,omitempty" mapstructure:"restaurant"`
}

// Formation is the composition of a train.
type Formation struct {
	JourneyID string   `json:"journeyId" mapstructure:"journeyId"`
	Sectors   []string `json:"sectors,omitempty" mapstructure:"sectors"`
	Coaches   []Coach  `json:"coaches,omitempty" mapstructure:"coaches"`
}

// Failure is a step that did not succeed.
type Failure struct {
	StepID string `json:"stepId"`
	Tool   string `json:"tool"`
	Error  string `json:"error"`
}

// Summary is the machine-readable digest of a plan execution.
type Summary struct {
	Tools     []string    `json:"tools"`
	Trips     []Trip      `json:"trips,omitempty"`
	Weather   []Weather   `json:"weather,omitempty"`
	Stations  []Station   `json:"stations,omitempty"`
	Events    []Event     `json:"events,omitempty"`
	Eco       []Eco       `json:"eco,omitempty"`
	Formation []Formation `json:"formation,omitempty"`
	Failures  []Failure   `json:"failures,omitempty"`
}

// Empty reports whether nothing was found and nothing failed.
func (s Summary) Empty() bool {
	return len(s.Trips)+len(s.Weather)+len(s.Stations)+len(s.Events)+len(s.Eco)+len(s.Formation)+len(s.Failures) == 0
}
