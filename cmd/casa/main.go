// Command casa analyses a trajectory (or detection) file and prints the
// CASA report. It runs the engine locally, optionally recording the result
// in a report database, or submits the job to a casa-server with -remote.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/banshee-data/casa.report/internal/api"
	"github.com/banshee-data/casa.report/internal/casa"
	"github.com/banshee-data/casa.report/internal/config"
	"github.com/banshee-data/casa.report/internal/db"
	"github.com/banshee-data/casa.report/internal/fsutil"
	"github.com/banshee-data/casa.report/internal/jobfile"
	"github.com/banshee-data/casa.report/internal/monitoring"
	"github.com/banshee-data/casa.report/internal/plotting"
	"github.com/banshee-data/casa.report/internal/security"
	"github.com/banshee-data/casa.report/internal/tracking"
	"github.com/banshee-data/casa.report/internal/units"
	"github.com/banshee-data/casa.report/internal/version"
)

type options struct {
	input       string
	detections  string
	calibration string
	plotDir     string
	dbPath      string
	remote      string
	workers     int
	// Display units for the text summary; -json output is always µm/s
	// and cells/mL.
	velocityUnits      string
	concentrationUnits string
	jsonOut            bool
	verbose     bool
	showVersion bool
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("casa", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var o options
	fs.StringVar(&o.input, "input", "", "Trajectory file to analyse (.json or .csv)")
	fs.StringVar(&o.detections, "detections", "", "Detection file to link and analyse (.json)")
	fs.StringVar(&o.calibration, "calibration", "", "Calibration JSON file (defaults are used for omitted fields)")
	fs.StringVar(&o.plotDir, "plot", "", "Directory to write a VCL histogram PNG into")
	fs.StringVar(&o.dbPath, "db", "", "Record the analysis in this SQLite database")
	fs.StringVar(&o.remote, "remote", "", "Submit the job to a casa-server at this base URL instead of running locally")
	fs.IntVar(&o.workers, "workers", 0, "Engine worker count (0 = GOMAXPROCS)")
	fs.StringVar(&o.velocityUnits, "velocity-units", units.UMPS, "Summary velocity units ("+units.GetValidVelocityUnitsString()+")")
	fs.StringVar(&o.concentrationUnits, "concentration-units", units.MillionPerML, "Summary concentration units ("+units.GetValidConcentrationUnitsString()+")")
	fs.BoolVar(&o.jsonOut, "json", false, "Print the full analysis as JSON")
	fs.BoolVar(&o.verbose, "v", false, "Log diagnostics to stderr")
	fs.BoolVar(&o.showVersion, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if o.showVersion {
		return &o, nil
	}
	if (o.input == "") == (o.detections == "") {
		return nil, errors.New("exactly one of -input or -detections is required")
	}
	if o.workers < 0 {
		return nil, fmt.Errorf("-workers must be >= 0, got %d", o.workers)
	}
	if !units.IsValidVelocity(o.velocityUnits) {
		return nil, fmt.Errorf("invalid -velocity-units %q, want one of: %s", o.velocityUnits, units.GetValidVelocityUnitsString())
	}
	if !units.IsValidConcentration(o.concentrationUnits) {
		return nil, fmt.Errorf("invalid -concentration-units %q, want one of: %s", o.concentrationUnits, units.GetValidConcentrationUnitsString())
	}
	if o.remote != "" && o.dbPath != "" {
		return nil, errors.New("-db cannot be combined with -remote; the server records the analysis")
	}
	return &o, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr, fsutil.OSFileSystem{})
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.Printf("casa: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, fsys fsutil.FileSystem) error {
	o, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	if o.showVersion {
		fmt.Fprintln(stdout, version.String())
		return nil
	}

	if o.verbose {
		logger := log.New(stderr, "", log.LstdFlags)
		monitoring.SetLogger(logger.Printf)
	} else {
		monitoring.SetLogger(nil)
	}

	var fileCalibration *config.CalibrationConfig
	if o.calibration != "" {
		fileCalibration, err = config.LoadCalibrationConfig(o.calibration)
		if err != nil {
			return err
		}
	}

	rec, err := analyse(ctx, o, fsys, fileCalibration)
	if err != nil {
		return err
	}

	if o.jsonOut {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
	} else {
		printSummary(stdout, rec, o.velocityUnits, o.concentrationUnits)
	}

	if o.plotDir != "" {
		path, err := writePlot(fsys, o.plotDir, rec)
		if err != nil {
			return err
		}
		fmt.Fprintf(stderr, "wrote %s\n", path)
	}
	return nil
}

// analyse loads the job and runs it locally or remotely. Parameters in the
// job file override the calibration file, which overrides the defaults.
func analyse(ctx context.Context, o *options, fsys fsutil.FileSystem, fileCalibration *config.CalibrationConfig) (*db.Analysis, error) {
	var (
		job    *jobfile.Job
		detJob *jobfile.DetectionJob
		err    error
	)
	if o.input != "" {
		if job, err = jobfile.Load(fsys, o.input); err != nil {
			return nil, err
		}
	} else {
		if detJob, err = jobfile.LoadDetections(fsys, o.detections); err != nil {
			return nil, err
		}
	}

	if o.remote != "" {
		client := api.NewClient(o.remote)
		if job != nil {
			if fileCalibration != nil {
				job.Params = fileCalibration.Merge(job.Params)
			}
			return client.Analyze(ctx, job)
		}
		if fileCalibration != nil {
			detJob.Params = fileCalibration.Merge(detJob.Params)
		}
		return client.AnalyzeDetections(ctx, detJob)
	}

	analyzer := &api.Analyzer{
		Engine:      casa.NewEngine(casa.EngineConfig{Workers: o.workers}),
		Producer:    tracking.NewNearestNeighbourLinker(),
		Calibration: config.DefaultCalibrationConfig().Merge(fileCalibration),
	}
	if o.dbPath != "" {
		store, err := db.NewDB(o.dbPath)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		analyzer.Store = store
	}

	if job != nil {
		return analyzer.Analyze(ctx, job)
	}
	return analyzer.AnalyzeDetections(ctx, detJob)
}

var unitLabels = map[string]string{
	units.UMPS:         "µm/s",
	units.MMPS:         "mm/s",
	units.PerML:        "/mL",
	units.MillionPerML: "M/mL",
}

func printSummary(w io.Writer, a *db.Analysis, velocityUnits, concentrationUnits string) {
	r := a.Report
	m := r.Motility
	v := r.Velocity
	vel := func(x float64) float64 { return units.ConvertVelocity(x, velocityUnits) }

	fmt.Fprintf(w, "job %s  %s\n", a.JobID, a.Filename)
	fmt.Fprintf(w, "trajectories:   %d\n", r.Count)
	fmt.Fprintf(w, "concentration:  %.2f %s\n", units.ConvertConcentration(r.ConcentrationPerML, concentrationUnits), unitLabels[concentrationUnits])
	fmt.Fprintf(w, "progressive:    %d (%.1f%%)\n", m.ProgressiveCount, m.ProgressivePercent)
	fmt.Fprintf(w, "non-progressive: %d (%.1f%%)\n", m.NonProgressiveCount, m.NonProgressivePercent)
	fmt.Fprintf(w, "immotile:       %d (%.1f%%)\n", m.ImmotileCount, m.ImmotilePercent)
	if m.IndeterminateCount > 0 {
		fmt.Fprintf(w, "indeterminate:  %d (%.1f%%)\n", m.IndeterminateCount, m.IndeterminatePercent)
	}
	fmt.Fprintf(w, "total motility: %.1f%%\n", m.TotalMotilityPercent)
	fmt.Fprintf(w, "VCL/VSL/VAP:    %.3f / %.3f / %.3f %s\n", vel(v.MeanVCL), vel(v.MeanVSL), vel(v.MeanVAP), unitLabels[velocityUnits])
	fmt.Fprintf(w, "LIN:            %.1f%%\n", r.Linearity)
	if r.Morphology.Available {
		fmt.Fprintf(w, "normal forms:   %.1f%%\n", r.Morphology.NormalPercent)
	} else {
		fmt.Fprintln(w, "morphology:     unavailable")
	}
}

// writePlot renders the VCL histogram into dir, named after the job file.
func writePlot(fsys fsutil.FileSystem, dir string, a *db.Analysis) (string, error) {
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create plot directory: %w", err)
	}
	stem := strings.TrimSuffix(a.Filename, filepath.Ext(a.Filename))
	if stem == "" {
		stem = a.JobID
	}
	path, err := security.OutputPath(dir, stem+"-vcl", ".png")
	if err != nil {
		return "", err
	}

	f, err := fsys.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create plot file: %w", err)
	}
	title := fmt.Sprintf("VCL distribution: %s (n=%d)", stem, a.Report.Count)
	if err := plotting.WriteVCLHistogram(f, a.Report, title, a.Params.ImmotileVCLThreshold); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close plot file: %w", err)
	}
	return path, nil
}
