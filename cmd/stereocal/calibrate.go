package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/aybabtme/uniplot/histogram"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"go.viam.com/stereocal/calibration"
	"go.viam.com/stereocal/config"
	"go.viam.com/stereocal/display"
	"go.viam.com/stereocal/logging"
	"go.viam.com/stereocal/rimage"
	"go.viam.com/stereocal/rimage/detection/chessboard"
)

func calibrateCommand(logger logging.Logger) *cli.Command {
	return &cli.Command{
		Name:      "calibrate",
		Usage:     "solve both cameras from chessboard image pairs",
		UsageText: "stereocal calibrate --config cfg.json --left 'left/*.png' --right 'right/*.png' --out params.yml",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: flagConfig, Required: true, Usage: "calibration config `FILE`"},
			&cli.StringFlag{Name: flagLeft, Required: true, Usage: "glob of camera 1 images"},
			&cli.StringFlag{Name: flagRight, Required: true, Usage: "glob of camera 2 images"},
			&cli.StringFlag{Name: flagOut, Required: true, Usage: "parameter `FILE` to write (.yml or .json)"},
			&cli.StringFlag{Name: flagReport, Usage: "write a per view reprojection error chart to `FILE`"},
			&cli.StringFlag{Name: flagCameras, Usage: "write both camera models as JSON to `FILE`"},
		},
		Action: func(c *cli.Context) error {
			return calibrate(c, logger)
		},
	}
}

func newPatternDetector(name string, logger logging.Logger) calibration.PatternDetector {
	if name == config.DetectorSaddle {
		return chessboard.NewSaddleDetector(chessboard.DefaultDetectionConf, logger)
	}
	return chessboard.NewOpenCVDetector(chessboard.DefaultRefineOptions, logger)
}

func imagePairs(leftGlob, rightGlob string) ([]string, []string, error) {
	left, err := filepath.Glob(leftGlob)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "bad pattern %q", leftGlob)
	}
	right, err := filepath.Glob(rightGlob)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "bad pattern %q", rightGlob)
	}
	if len(left) == 0 {
		return nil, nil, errors.Errorf("no image matches %q", leftGlob)
	}
	if len(left) != len(right) {
		return nil, nil, errors.Errorf("%d left images but %d right images", len(left), len(right))
	}
	return left, right, nil
}

func calibrate(c *cli.Context, logger logging.Logger) (err error) {
	cfg, err := config.Read(c.String(flagConfig))
	if err != nil {
		return err
	}
	leftPaths, rightPaths, err := imagePairs(c.String(flagLeft), c.String(flagRight))
	if err != nil {
		return err
	}

	sink, err := display.New(cfg.Display.Mode, cfg.Display.Dir, logger.Sublogger("display"))
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, sink.Close())
	}()

	var storeOpts []calibration.StoreOption
	if cfg.DebugDumpPath != "" {
		storeOpts = append(storeOpts, calibration.WithDebugDump(cfg.DebugDumpPath))
	}
	store := calibration.NewStore(logger.Sublogger("store"), storeOpts...)
	solver := calibration.NewStereoSolver(calibration.SolverOptions{
		MaxIterations: cfg.Solver.MaxIterations,
		Epsilon:       cfg.Solver.Epsilon,
		FixK3:         cfg.Solver.FixK3,
		MinViews:      cfg.Solver.MinViews,
	}, logger.Sublogger("solver"))
	var accOpts []calibration.AccumulatorOption
	if cfg.MetricObjectPoints {
		accOpts = append(accOpts, calibration.WithMetricObjectPoints())
	}
	detector := calibration.NewCornerDetector(
		newPatternDetector(cfg.Detector, logger.Sublogger("detector")),
		logger,
		calibration.WithDisplay(sink),
	)
	acc := calibration.NewAccumulator(detector, solver, store, logger, accOpts...)

	if err := acc.Start(cfg.Pattern.Nx, cfg.Pattern.Ny, cfg.Pattern.SquareSize, cfg.ImageSize()); err != nil {
		return err
	}
	for i := range leftPaths {
		img1, err := rimage.ReadImageFromFile(leftPaths[i])
		if err != nil {
			return err
		}
		img2, err := rimage.ReadImageFromFile(rightPaths[i])
		if err != nil {
			return err
		}
		found, err := acc.Compute(img1, img2, rimage.IsGray(img1) && rimage.IsGray(img2))
		if err != nil {
			return errors.Wrapf(err, "%s and %s", leftPaths[i], rightPaths[i])
		}
		status := "found"
		if !found {
			status = "not found"
		}
		fmt.Fprintf(c.App.Writer, "%s %s: %s\n", leftPaths[i], rightPaths[i], status)
	}

	report, err := acc.End()
	if err != nil {
		return err
	}
	if err := store.Save(c.String(flagOut)); err != nil {
		return err
	}
	if err := printReport(c.App.Writer, report); err != nil {
		return err
	}
	if path := c.String(flagReport); path != "" {
		if err := writeReportPlot(path, report); err != nil {
			return err
		}
	}
	if path := c.String(flagCameras); path != "" {
		if err := store.WriteCameraModels(path); err != nil {
			return err
		}
	}
	return nil
}

func printReport(w io.Writer, report *calibration.Report) error {
	fmt.Fprintf(w, "views: %d\nrms: %.4f px\niterations: %d (converged: %t)\nepipolar error: %.4f px\n",
		report.Views, report.RMS, report.Iterations, report.Converged, report.EpipolarError)
	errs := make([]float64, 0, 2*len(report.ViewErrors))
	for _, e := range report.ViewErrors {
		errs = append(errs, e[0], e[1])
	}
	if len(errs) == 0 {
		return nil
	}
	median, err := stats.Median(errs)
	if err != nil {
		return err
	}
	worst, err := stats.Max(errs)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "per view error: median %.4f px, worst %.4f px\n", median, worst)
	return histogram.Fprint(w, histogram.Hist(min(10, len(errs)), errs), histogram.Linear(40))
}
