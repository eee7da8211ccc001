// Package main is the stereocal command. It calibrates a stereo pair from chessboard images,
// rectifies image pairs with a saved calibration and prints what a calibration holds.
package main

import (
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"go.viam.com/stereocal/logging"
)

const (
	// Flags.
	flagDebug     = "debug"
	flagConfig    = "config"
	flagLeft      = "left"
	flagRight     = "right"
	flagOut       = "out"
	flagReport    = "report"
	flagCameras   = "cameras"
	flagParams    = "params"
	flagOutDir    = "out-dir"
	flagDisparity = "disparity"
)

var logger = logging.NewLogger("stereocal")

func main() {
	if err := realMain(os.Args, os.Stdout, logger); err != nil {
		logger.Error(err)
		os.Exit(1)
	}
}

func realMain(args []string, out io.Writer, logger logging.Logger) error {
	return newApp(out, logger).Run(args)
}

func newApp(out io.Writer, logger logging.Logger) *cli.App {
	return &cli.App{
		Name:      "stereocal",
		Usage:     "calibrate and rectify stereo camera pairs",
		Writer:    out,
		ErrWriter: out,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool(flagDebug) {
				logger.SetLevel(logging.DEBUG)
			}
			return nil
		},
		Commands: []*cli.Command{
			calibrateCommand(logger),
			rectifyCommand(logger),
			inspectCommand(logger),
		},
	}
}
