package main

import (
	"fmt"
	"image"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"go.viam.com/stereocal/calibration"
	"go.viam.com/stereocal/config"
	"go.viam.com/stereocal/logging"
	"go.viam.com/stereocal/rimage"
	"go.viam.com/stereocal/rimage/stereo"
)

func rectifyCommand(logger logging.Logger) *cli.Command {
	return &cli.Command{
		Name:      "rectify",
		Usage:     "rectify an image pair with a saved calibration",
		UsageText: "stereocal rectify --params params.yml --left a.png --right b.png --out-dir dir [--disparity]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: flagParams, Required: true, Usage: "parameter `FILE` written by calibrate"},
			&cli.StringFlag{Name: flagLeft, Required: true, Usage: "camera 1 image `FILE`"},
			&cli.StringFlag{Name: flagRight, Required: true, Usage: "camera 2 image `FILE`"},
			&cli.StringFlag{Name: flagOutDir, Required: true, Usage: "`DIR` for the rectified images"},
			&cli.BoolFlag{Name: flagDisparity, Usage: "also write the normalized disparity map"},
			&cli.StringFlag{Name: flagConfig, Usage: "config `FILE` whose matcher section tunes the disparity"},
		},
		Action: func(c *cli.Context) error {
			return rectify(c, logger)
		},
	}
}

func rectify(c *cli.Context, logger logging.Logger) error {
	store := calibration.NewStore(logger.Sublogger("store"))
	if _, err := store.Load(c.String(flagParams)); err != nil {
		return err
	}
	var opts []calibration.Option
	if path := c.String(flagConfig); path != "" {
		cfg, err := config.Read(path)
		if err != nil {
			return err
		}
		params, err := cfg.Matcher.MatchParams()
		if err != nil {
			return err
		}
		opts = append(opts, calibration.WithMatchParams(params))
	}
	rf := calibration.NewRectifier(store, stereo.NewBlockMatcher(logger.Sublogger("matcher")), logger, opts...)

	img1, err := rimage.ReadImageFromFile(c.String(flagLeft))
	if err != nil {
		return err
	}
	img2, err := rimage.ReadImageFromFile(c.String(flagRight))
	if err != nil {
		return err
	}
	left, right, err := rf.Rectify(img1, img2)
	if err != nil {
		return err
	}
	dir := c.String(flagOutDir)
	write := func(name string, img image.Image) error {
		path := filepath.Join(dir, name)
		if err := rimage.WriteImageToFile(path, img); err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, path)
		return nil
	}
	if err := write("left_rectified.png", left); err != nil {
		return err
	}
	if err := write("right_rectified.png", right); err != nil {
		return err
	}
	if !c.Bool(flagDisparity) {
		return nil
	}
	disparity, err := rf.ComputeDisparity(left, right)
	if err != nil {
		return err
	}
	return write("disparity.png", disparity)
}
