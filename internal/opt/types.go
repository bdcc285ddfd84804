package opt

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Lat float64 `json:"lat" yaml:"lat" validate:"gte=-90,lte=90"`
	Lon float64 `json:"lon" yaml:"lon" validate:"gte=-180,lte=180"`
}

// Load is a quantity in the three capacity dimensions a vehicle is loaded by.
type Load struct {
	Weight  float64 `json:"weight" yaml:"weight" validate:"gte=0"`
	Volume  float64 `json:"volume" yaml:"volume" validate:"gte=0"`
	Pallets int     `json:"pallets" yaml:"pallets" validate:"gte=0"`
}

// Add returns the sum of two loads.
func (l Load) Add(o Load) Load {
	return Load{Weight: l.Weight + o.Weight, Volume: l.Volume + o.Volume, Pallets: l.Pallets + o.Pallets}
}

// FitsIn reports whether every dimension of l is within c.
func (l Load) FitsIn(c Load) bool {
	return l.Weight <= c.Weight+capacityEps && l.Volume <= c.Volume+capacityEps && l.Pallets <= c.Pallets
}

const capacityEps = 1e-9

type Vehicle struct {
	ID              string   `json:"id" yaml:"id" validate:"required"`
	Type            string   `json:"type,omitempty" yaml:"type"`
	Capacity        Load     `json:"capacity" yaml:"capacity"`
	FuelConsumption float64  `json:"fuelConsumption" yaml:"fuelConsumption" validate:"gte=0"` // liters per 100 km
	OperatingCost   float64  `json:"operatingCost" yaml:"operatingCost" validate:"gte=0"`     // currency per km
	MaxDistance     float64  `json:"maxDistance,omitempty" yaml:"maxDistance" validate:"gte=0"`
	DriverID        string   `json:"driverId,omitempty" yaml:"driverId"`
	Location        Point    `json:"currentLocation" yaml:"currentLocation"`
	Capabilities    []string `json:"capabilities,omitempty" yaml:"capabilities"`
}

// VehicleProfile is everything route recomputation needs to know about the
// vehicle that owns a route.
type VehicleProfile struct {
	VehicleID    string
	DriverID     string
	CostPerKm    float64
	FuelPerKm    float64
	Capacity     Load
	MaxDistance  float64
	Capabilities []string
	Start        Point
}

// Profile derives the recomputation profile of v.
func (v Vehicle) Profile() VehicleProfile {
	return VehicleProfile{
		VehicleID:    v.ID,
		DriverID:     v.DriverID,
		CostPerKm:    v.OperatingCost,
		FuelPerKm:    v.FuelConsumption / 100,
		Capacity:     v.Capacity,
		MaxDistance:  v.MaxDistance,
		Capabilities: v.Capabilities,
		Start:        v.Location,
	}
}

// Supports reports whether the vehicle can serve every requirement tag of c.
// A vehicle that declares no capabilities is treated as general purpose.
func (p VehicleProfile) Supports(c Customer) bool {
	if len(c.SpecialRequirements) == 0 || len(p.Capabilities) == 0 {
		return true
	}
	have := make(map[string]struct{}, len(p.Capabilities))
	for _, s := range p.Capabilities {
		have[s] = struct{}{}
	}
	for _, s := range c.SpecialRequirements {
		if _, ok := have[s]; !ok {
			return false
		}
	}
	return true
}

// TimeWindow bounds the service start of a customer, in minutes after dispatch.
// An End of zero leaves the window open-ended.
type TimeWindow struct {
	Start float64 `json:"start" yaml:"start" validate:"gte=0"`
	End   float64 `json:"end" yaml:"end" validate:"gte=0"`
}

func (tw TimeWindow) bounded() bool { return tw.End > 0 }

type Customer struct {
	ID                  string     `json:"id" yaml:"id" validate:"required"`
	Location            Point      `json:"location" yaml:"location"`
	TimeWindow          TimeWindow `json:"timeWindow" yaml:"timeWindow"`
	ServiceTime         float64    `json:"serviceTime" yaml:"serviceTime" validate:"gte=0"` // minutes
	Priority            int        `json:"priority" yaml:"priority" validate:"min=1,max=5"`
	Demand              Load       `json:"demand" yaml:"demand"`
	SpecialRequirements []string   `json:"specialRequirements,omitempty" yaml:"specialRequirements"`
}

// Objectives selects the terms of the scalar score. See Score.
type Objectives struct {
	MinimizeCost        bool `json:"minimizeCost" yaml:"minimizeCost"`
	MinimizeDistance    bool `json:"minimizeDistance" yaml:"minimizeDistance"`
	MinimizeTime        bool `json:"minimizeTime" yaml:"minimizeTime"`
	MaximizeUtilization bool `json:"maximizeUtilization" yaml:"maximizeUtilization"`
	RespectTimeWindows  bool `json:"respectTimeWindows" yaml:"respectTimeWindows"`
}

type Constraints struct {
	MaxRouteDuration     float64 `json:"maxRouteDuration" yaml:"maxRouteDuration" validate:"gt=0"` // hours
	MaxCustomersPerRoute int     `json:"maxCustomersPerRoute" yaml:"maxCustomersPerRoute" validate:"gt=0"`
	FuelLimit            float64 `json:"fuelLimit" yaml:"fuelLimit" validate:"gt=0"` // liters
	DriverWorkingHours   float64 `json:"driverWorkingHours,omitempty" yaml:"driverWorkingHours" validate:"gte=0"`
	ReturnToDepot        bool    `json:"returnToDepot,omitempty" yaml:"returnToDepot"`
}

// MaxRouteMinutes is the effective route duration limit: the route duration
// cap, tightened by the driver's working hours when those are set.
func (c Constraints) MaxRouteMinutes() float64 {
	limit := c.MaxRouteDuration * 60
	if c.DriverWorkingHours > 0 && c.DriverWorkingHours*60 < limit {
		limit = c.DriverWorkingHours * 60
	}
	return limit
}

// Problem is the complete input of one optimization call.
type Problem struct {
	Vehicles    []Vehicle   `json:"vehicles" yaml:"vehicles" validate:"dive"`
	Customers   []Customer  `json:"customers" yaml:"customers" validate:"dive"`
	Objectives  Objectives  `json:"objectives" yaml:"objectives"`
	Constraints Constraints `json:"constraints" yaml:"constraints"`
}
