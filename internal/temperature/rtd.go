package temperature

import (
	"context"
	"math"
)

// Callendar–Van Dusen coefficients for platinum RTDs (IEC 60751).
const (
	cvdA = 3.9083e-3
	cvdB = -5.775e-7
)

// Sensor yields one temperature reading per call.
type Sensor interface {
	ReadCelsius(ctx context.Context) (float64, error)
}

// Resistance converts a 15-bit MAX31865 RTD code to ohms.
func Resistance(code uint16, referenceOhms float64) float64 {
	return float64(code) * referenceOhms / 32768
}

// Celsius converts an RTD resistance to degrees Celsius. Above 0 °C the
// quadratic Callendar–Van Dusen equation is solved directly; below it a fifth
// order polynomial fit in the normalized resistance is used.
func Celsius(resistance, nominalOhms float64) float64 {
	z1 := -cvdA
	z2 := cvdA*cvdA - 4*cvdB
	z3 := 4 * cvdB / nominalOhms
	z4 := 2 * cvdB

	temp := (math.Sqrt(z2+z3*resistance) + z1) / z4
	if temp >= 0 {
		return temp
	}

	rt := resistance / nominalOhms * 100
	temp = -242.02
	temp += 2.2228 * rt
	rpoly := rt * rt
	temp += 2.5859e-3 * rpoly
	rpoly *= rt
	temp -= 4.8260e-6 * rpoly
	rpoly *= rt
	temp -= 2.8183e-8 * rpoly
	rpoly *= rt
	temp += 1.5243e-10 * rpoly
	return temp
}
