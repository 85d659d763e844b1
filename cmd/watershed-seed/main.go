// watershed-seed loads GeoJSON watershed boundaries into postgres so the server can
// run with DATASET_SOURCE=postgres.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/paulmach/orb/geojson"
	"github.com/spf13/cobra"

	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/logger"
	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/migrate"
	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/store"
	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/utils"
	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/watershed"
)

var (
	envFile      string
	datasetKey   string
	nameProperty string
)

var rootCmd = &cobra.Command{
	Use:           "watershed-seed",
	Short:         "Load watershed boundaries into postgres",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if envFile != "" {
			_ = godotenv.Load(envFile)
		}
		logger.Setup()
	},
}

var checkCmd = &cobra.Command{
	Use:   "check <file.geojson>",
	Short: "Decode a file and report the features the server would skip",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheck,
}

var loadCmd = &cobra.Command{
	Use:   "load <file.geojson>",
	Short: "Replace a dataset in postgres with the features of a file",
	Args:  cobra.ExactArgs(1),
	RunE:  runLoad,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "dotenv file with PG_* settings")
	rootCmd.PersistentFlags().StringVar(&nameProperty, "name-property", watershed.DefaultNameProperty, "feature property holding the display name")
	loadCmd.Flags().StringVar(&datasetKey, "dataset", "watersheds", "dataset key the server loads (DATASET_KEY)")
	rootCmd.AddCommand(checkCmd, loadCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read geojson: %w", err)
	}
	coll, err := watershed.Decode(data, watershed.WithNameProperty(nameProperty))
	if err != nil {
		return err
	}
	unnamed := 0
	for _, f := range coll.Features() {
		if !f.HasLabel() {
			unnamed++
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "features: %d\nunnamed: %d\nskipped: %d\n", coll.Len(), unnamed, len(coll.Skipped()))
	for _, s := range coll.Skipped() {
		fmt.Fprintf(cmd.OutOrStdout(), "  #%d: %v\n", s.Index, s.Err)
	}
	return nil
}

func runLoad(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
	defer cancel()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read geojson: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return fmt.Errorf("parse geojson: %w", err)
	}
	db, err := utils.OpenPostgresFromEnv(ctx)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	defer db.Close()
	if err := migrate.EnsureSchema(ctx, db); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	n, err := store.AttachDB(db).ReplaceDataset(ctx, datasetKey, nameProperty, fc)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "loaded %d of %d features into %q\n", n, len(fc.Features), datasetKey)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
