// Package plotting renders CASA reports: a static VCL histogram (PNG, via
// gonum/plot) for the CLI and an interactive motility dashboard (HTML, via
// go-echarts) for the API.
package plotting
