package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/kiryteo/lumin/internal/config"
	"github.com/kiryteo/lumin/internal/ctxlog"
	"github.com/kiryteo/lumin/internal/model"
)

var (
	env config.Env

	runPath        string
	resultsPath    string
	ensemblePath   string
	inputPipePath  string
	outputPipePath string
	overwrite      bool
	dbPath         string
	column         string
	nMembers       int
	fixturePath    string

	rootCmd = &cobra.Command{
		Use:           "lumin",
		Short:         "Build ensembles of trained models and predict fold stores with them",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			env, err = config.LoadEnv()
			if err != nil {
				return err
			}
			logger := ctxlog.New(os.Stderr, env.LogLevel, env.LogFormat)
			slog.SetDefault(logger)
			cmd.SetContext(ctxlog.WithLogger(cmd.Context(), logger))
			return nil
		},
	}

	buildCmd = &cobra.Command{
		Use:   "build",
		Short: "Select the best models from a results file and save them as an ensemble",
		RunE:  runBuild, // cmd_build.go
	}

	predictCmd = &cobra.Command{
		Use:   "predict",
		Short: "Predict every fold of a store with a saved ensemble",
		RunE:  runPredict, // cmd_predict.go
	}

	seedCmd = &cobra.Command{
		Use:   "seed",
		Short: "Load a JSON fold fixture into a fold store",
		RunE:  runSeed, // cmd_seed.go
	}

	viewsCmd = &cobra.Command{
		Use:   "views",
		Short: "List the test-time augmentation views of a run file",
		RunE:  runViews, // cmd_views.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&runPath, "run", "", "HCL run file")

	buildCmd.Flags().StringVar(&resultsPath, "results", "", "JSON list of model results")
	buildCmd.Flags().StringVar(&ensemblePath, "out", "", "directory to save the ensemble into")
	buildCmd.Flags().StringVar(&inputPipePath, "input-pipe", "", "optional input pipeline artifact")
	buildCmd.Flags().StringVar(&outputPipePath, "output-pipe", "", "optional output pipeline artifact")
	buildCmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace an existing ensemble")
	buildCmd.MarkFlagRequired("results")
	buildCmd.MarkFlagRequired("out")

	predictCmd.Flags().StringVar(&ensemblePath, "ensemble", "", "saved ensemble directory")
	predictCmd.Flags().StringVar(&dbPath, "db", "", "fold store path (default $LUMIN_DB)")
	predictCmd.Flags().StringVar(&column, "column", "pred", "column to write predictions into")
	predictCmd.Flags().IntVar(&nMembers, "n", 0, "use only the first n members (0 means all)")
	predictCmd.MarkFlagRequired("ensemble")

	seedCmd.Flags().StringVar(&fixturePath, "fixture", "", "fixture JSON written by fixture-export")
	seedCmd.Flags().StringVar(&dbPath, "db", "", "fold store path (default $LUMIN_DB)")
	seedCmd.MarkFlagRequired("fixture")

	rootCmd.AddCommand(buildCmd, predictCmd, seedCmd, viewsCmd)
}

// codec dials remote predictors at LUMIN_PREDICTOR_ADDR when set, otherwise
// at the address stored in the artifact.
func codec() model.Codec {
	if env.PredictorAddr == "" {
		return model.Codec{}
	}
	return model.Codec{Dial: func(_ string, ref string, nOut int) (model.Predictor, error) {
		return model.DialRemote(env.PredictorAddr, ref, nOut)
	}}
}
