package weather

import (
	"fmt"
	"math"
	"time"

	"github.com/tidwall/gjson"
)

// Conditions are the current conditions shown on the weather panel
type Conditions struct {
	Location    string    `json:"location"`
	Temp        float64   `json:"temp"`
	FeelsLike   float64   `json:"feelsLike"`
	TempMin     float64   `json:"tempMin"`
	TempMax     float64   `json:"tempMax"`
	Humidity    int       `json:"humidity"`
	Pressure    int       `json:"pressure"`
	WindSpeed   float64   `json:"windSpeed"`
	WindDeg     int       `json:"windDeg"`
	Description string    `json:"description"`
	Icon        string    `json:"icon"`
	Sunrise     time.Time `json:"sunrise"`
	Sunset      time.Time `json:"sunset"`
	ObservedAt  time.Time `json:"observedAt"`
	Units       string    `json:"units"`
}

// Day is one day of the forecast panel
type Day struct {
	Date        string  `json:"date"` // YYYY-MM-DD, location time
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	Description string  `json:"description"`
	Icon        string  `json:"icon"`
}

// UnitSymbol returns the temperature unit matching the API units parameter
func UnitSymbol(units string) string {
	switch units {
	case "metric":
		return "°C"
	case "imperial":
		return "°F"
	default:
		return "K"
	}
}

// location returns the time zone of a response, given as an offset in seconds
func location(offset gjson.Result) *time.Location {
	if !offset.Exists() {
		return time.UTC
	}
	return time.FixedZone("", int(offset.Int()))
}

func parseConditions(body []byte, units string) (*Conditions, error) {
	r := gjson.ParseBytes(body)

	temp := r.Get("main.temp")
	if !temp.Exists() {
		return nil, fmt.Errorf("missing main.temp")
	}

	name := r.Get("name").String()
	if country := r.Get("sys.country").String(); country != "" && name != "" {
		name += ", " + country
	}

	zone := location(r.Get("timezone"))
	unix := func(path string) time.Time {
		v := r.Get(path)
		if !v.Exists() {
			return time.Time{}
		}
		return time.Unix(v.Int(), 0).In(zone)
	}

	return &Conditions{
		Location:    name,
		Temp:        temp.Float(),
		FeelsLike:   r.Get("main.feels_like").Float(),
		TempMin:     r.Get("main.temp_min").Float(),
		TempMax:     r.Get("main.temp_max").Float(),
		Humidity:    int(r.Get("main.humidity").Int()),
		Pressure:    int(r.Get("main.pressure").Int()),
		WindSpeed:   r.Get("wind.speed").Float(),
		WindDeg:     int(r.Get("wind.deg").Int()),
		Description: r.Get("weather.0.description").String(),
		Icon:        r.Get("weather.0.icon").String(),
		Sunrise:     unix("sys.sunrise"),
		Sunset:      unix("sys.sunset"),
		ObservedAt:  unix("dt"),
		Units:       units,
	}, nil
}

// parseForecast folds 3-hour forecast slots into at most maxDays days.
// The slot closest to noon gives the day its description and icon.
func parseForecast(body []byte, maxDays int) ([]Day, error) {
	r := gjson.ParseBytes(body)

	slots := r.Get("list")
	if !slots.IsArray() {
		return nil, fmt.Errorf("missing list")
	}
	zone := location(r.Get("city.timezone"))

	var days []Day
	index := map[string]int{}
	noonDistance := map[string]int{}

	for _, slot := range slots.Array() {
		dt := slot.Get("dt")
		if !dt.Exists() {
			return nil, fmt.Errorf("forecast slot without dt")
		}
		at := time.Unix(dt.Int(), 0).In(zone)
		date := at.Format("2006-01-02")

		low := slot.Get("main.temp_min")
		if !low.Exists() {
			low = slot.Get("main.temp")
		}
		high := slot.Get("main.temp_max")
		if !high.Exists() {
			high = slot.Get("main.temp")
		}

		i, seen := index[date]
		if !seen {
			if len(days) == maxDays {
				continue
			}
			days = append(days, Day{Date: date, Min: math.Inf(1), Max: math.Inf(-1)})
			i = len(days) - 1
			index[date] = i
			noonDistance[date] = math.MaxInt
		}

		day := &days[i]
		day.Min = math.Min(day.Min, low.Float())
		day.Max = math.Max(day.Max, high.Float())

		distance := at.Hour()*60 + at.Minute() - 12*60
		if distance < 0 {
			distance = -distance
		}
		if distance < noonDistance[date] {
			noonDistance[date] = distance
			day.Description = slot.Get("weather.0.description").String()
			day.Icon = slot.Get("weather.0.icon").String()
		}
	}

	return days, nil
}
