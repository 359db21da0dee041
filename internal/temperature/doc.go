// Package temperature reads the PT1000 probe on the test stand through a
// MAX31865 RTD converter, logs timed sessions alongside a run, and fits and
// plots temperature drift from logged tables.
package temperature
