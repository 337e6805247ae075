package plotting

import (
	"fmt"
	"io"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/casa.report/internal/casa"
)

// DashboardPageTitle is the HTML <title> of every rendered dashboard.
const DashboardPageTitle = "CASA Report"

func motilityBar(r *casa.Report, subtitle string) *charts.Bar {
	m := r.Motility
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: DashboardPageTitle, Width: "100%", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: "Motility", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "%", Min: 0, Max: 100}),
	)
	bar.SetXAxis([]string{"Progressive", "Non-progressive", "Immotile", "Indeterminate"}).
		AddSeries("percent", []opts.BarData{
			{Value: round2(m.ProgressivePercent), ItemStyle: &opts.ItemStyle{Color: "#2e7d32"}},
			{Value: round2(m.NonProgressivePercent), ItemStyle: &opts.ItemStyle{Color: "#f9a825"}},
			{Value: round2(m.ImmotilePercent), ItemStyle: &opts.ItemStyle{Color: "#c62828"}},
			{Value: round2(m.IndeterminatePercent), ItemStyle: &opts.ItemStyle{Color: "#757575"}},
		}, charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}))
	return bar
}

func velocityBar(r *casa.Report) *charts.Bar {
	v := r.Velocity
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: DashboardPageTitle, Width: "100%", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: "Velocity", Subtitle: fmt.Sprintf("LIN %.1f%%  STR %.1f%%  WOB %.1f%%", r.Linearity, v.MeanSTR, v.MeanWOB)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "µm/s"}),
	)
	bar.SetXAxis([]string{"VCL", "VSL", "VAP", "VCL p50", "VCL p90"}).
		AddSeries("mean", []opts.BarData{
			{Value: round2(v.MeanVCL)},
			{Value: round2(v.MeanVSL)},
			{Value: round2(v.MeanVAP)},
			{Value: round2(v.P50VCL)},
			{Value: round2(v.P90VCL)},
		}, charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}))
	return bar
}

// WriteDashboard renders the motility and velocity charts for r as one
// HTML page.
func WriteDashboard(w io.Writer, r *casa.Report, subtitle string) error {
	page := components.NewPage()
	page.PageTitle = DashboardPageTitle
	page.AddCharts(motilityBar(r, subtitle), velocityBar(r))
	if err := page.Render(w); err != nil {
		return fmt.Errorf("failed to render dashboard: %w", err)
	}
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
