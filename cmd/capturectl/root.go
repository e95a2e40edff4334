package main

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/anime-shed/id-capture-go/internal/logger"
	"github.com/anime-shed/id-capture-go/internal/profile"
)

func newRootCmd() *cobra.Command {
	var logLevel string
	var profilesFile string

	cmd := &cobra.Command{
		Use:   "capturectl",
		Short: "Offline tools for the ID document capture pipeline",
		Long: `capturectl runs the crop and auto-capture stages of the capture
pipeline against files on disk, without a browser or camera.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
			logger.SetLevel(logLevel)
		},
	}
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&profilesFile, "profiles", "", "YAML file with extra capture profiles")

	cmd.AddCommand(
		newCropCmd(&profilesFile),
		newAutoCaptureCmd(),
		newProfilesCmd(&profilesFile),
	)
	return cmd
}

func loadProfile(file, name string) (profile.Profile, error) {
	cat, err := profile.Load(file)
	if err != nil {
		return profile.Profile{}, err
	}
	p, ok := cat.Get(name)
	if !ok {
		return profile.Profile{}, fmt.Errorf("unknown profile %q", name)
	}
	return p, nil
}
