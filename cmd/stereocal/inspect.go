package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"go.viam.com/stereocal/calibration"
	"go.viam.com/stereocal/logging"
	"go.viam.com/stereocal/rimage/transform"
)

func inspectCommand(logger logging.Logger) *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "print the cameras of a saved calibration",
		UsageText: "stereocal inspect --params params.yml",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: flagParams, Required: true, Usage: "parameter `FILE` written by calibrate"},
		},
		Action: func(c *cli.Context) error {
			r, err := calibration.NewStore(logger.Sublogger("store")).Load(c.String(flagParams))
			if err != nil {
				return err
			}
			system, err := r.CameraSystem()
			if err != nil {
				return err
			}
			w := c.App.Writer
			fmt.Fprintf(w, "image size: %dx%d\n", r.ImageSize.X, r.ImageSize.Y)
			for _, cam := range []struct {
				name  string
				model *transform.PinholeCameraModel
			}{{"camera 1", system.Left}, {"camera 2", system.Right}} {
				in := cam.model.PinholeCameraIntrinsics
				fmt.Fprintf(w, "%s: fx %.3f fy %.3f ppx %.3f ppy %.3f distortion %v\n",
					cam.name, in.Fx, in.Fy, in.Ppx, in.Ppy, cam.model.Distortion.Parameters())
			}
			fmt.Fprintf(w, "rotation vector: %v\n", system.Rotation)
			fmt.Fprintf(w, "translation: %v\n", system.Translation)
			fmt.Fprintf(w, "baseline: %.4f\n", system.Baseline())
			return nil
		},
	}
}
