// Package summary turns the calibration spreadsheet exported from the lab
// ELOG into per-crystal summary values and histograms: the operating voltage
// at a target log gain, the 137Cs peak resolution, and the peak energy
// variation with source position.
package summary
