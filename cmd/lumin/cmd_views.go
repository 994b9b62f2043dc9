package main

import (
	"fmt"
	"math"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kiryteo/lumin/internal/augment"
	"github.com/kiryteo/lumin/internal/config"
	"github.com/kiryteo/lumin/internal/ctxlog"
)

// #region views

func runViews(cmd *cobra.Command, args []string) error {
	logger := ctxlog.FromContext(cmd.Context())

	if runPath == "" {
		return fmt.Errorf("--run is required")
	}
	rf, err := config.LoadRunFile(runPath)
	if err != nil {
		return err
	}
	spec, notices := augment.Validate(rf.Augment)
	for _, n := range notices {
		logger.Warn("Augmentation setting overridden", "field", n.Field, "message", n.Message)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%d views\n", spec.Multiplicity())
	for i := 0; i < spec.Multiplicity(); i++ {
		v, err := augment.EnumerateView(i, spec)
		if err != nil {
			return err
		}
		angle := "-"
		switch {
		case v.RandomAngle:
			angle = "random"
		case spec.RotationMultiplicity > 0:
			angle = fmt.Sprintf("%.1f°", v.Angle*180/math.Pi)
		}
		var flips []string
		for a, f := range v.Reflect {
			if f {
				flips = append(flips, string(spec.ReflectAxes[a]))
			}
		}
		fmt.Fprintf(out, "%4d  rotate %-8s reflect [%s]\n", v.Index, angle, strings.Join(flips, ","))
	}
	return nil
}

// #endregion views
