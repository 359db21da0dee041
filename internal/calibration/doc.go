// Package calibration derives the energy calibration of converted runs.
//
// Each run's spectrum is searched for the 208Tl 2614 keV line, which pins the
// raw-to-energy scale. The 208Tl, 40K and 137Cs photopeaks are then fitted
// with Gaussians over an exponential background, and a weighted linear fit of
// peak position against line energy gives the run's calibration. Position
// sweeps are summarized by the calibrated 137Cs response along the crystal and
// voltage sweeps by the quadratic gain curve. Results are appended to the
// crystal's CharLog.txt and drawn as PNG plots.
package calibration
