// Command study-station runs one device of the study station.
//
// The primary device owns the buttons, the session controller, the air
// sensor and the store. The secondary device follows the primary's phase
// signal over HTTP and tracks movement during breaks.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sweeney/study-station/internal/config"
	"github.com/sweeney/study-station/internal/gpio"
	"github.com/sweeney/study-station/internal/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func newRootCmd() *cobra.Command {
	v := config.New()
	var cfgPath string

	root := &cobra.Command{
		Use:           "study-station",
		Short:         "Two-device study session assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to the YAML config file")
	deviceFlags(root, v)

	load := func() (config.Config, error) {
		return config.Load(v, cfgPath)
	}

	root.AddCommand(
		newPrimaryCmd(v, load),
		newSecondaryCmd(v, load),
		newInitConfigCmd(&cfgPath),
		newStateCmd(load),
	)
	return root
}

// deviceFlags registers the flags shared by every command and binds them
// to their config keys, so flags override the file and defaults.
func deviceFlags(cmd *cobra.Command, v *viper.Viper) {
	f := cmd.PersistentFlags()
	f.Bool("simulate", false, "use simulated hardware instead of GPIO and IIO")
	f.String("http", "", "HTTP status address (empty keeps the configured value)")
	f.String("broker", "", "MQTT broker address (empty keeps the configured value)")
	f.String("device-id", "", "device id (empty keeps the configured value)")

	bind := func(key, flag string) {
		if err := v.BindPFlag(key, f.Lookup(flag)); err != nil {
			panic(err)
		}
	}
	bind("gpio.simulate", "simulate")
	bind("http.addr", "http")
	bind("mqtt.broker", "broker")
	bind("device_id", "device-id")
}

func newPrimaryCmd(v *viper.Viper, load func() (config.Config, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "primary",
		Short: "Run the desk device: buttons, session timer, air monitor and store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return runPrimary(cmd.Context(), v, cfg)
		},
	}
	return cmd
}

func newSecondaryCmd(v *viper.Viper, load func() (config.Config, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secondary",
		Short: "Run the wearable device: break timer and step tracking",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return runSecondary(cmd.Context(), cfg)
		},
	}
	cmd.Flags().String("store-url", "", "base URL of the primary's store API (empty keeps the configured value)")
	if err := v.BindPFlag("sync.store_url", cmd.Flags().Lookup("store-url")); err != nil {
		panic(err)
	}
	return cmd
}

func newInitConfigCmd(cfgPath *string) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init-config",
		Short: "Write a config file with every default setting",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := *cfgPath
			if path == "" {
				path = "study-station.yaml"
			}
			if err := config.WriteDefault(path, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func newStateCmd(load func() (config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Read the air sensor and the shared phase signal once and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return printState(cmd.Context(), cmd.OutOrStdout(), cfg)
		},
	}
}

func printState(ctx context.Context, out io.Writer, cfg config.Config) error {
	reader := levelReader(cfg)
	ppm, err := reader.ReadLevel()
	if err != nil {
		fmt.Fprintf(out, "CO2: unavailable (%v)\n", err)
	} else {
		fmt.Fprintf(out, "CO2: %.0f ppm\n", ppm)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	sig, err := store.NewRemote(cfg.Sync.StoreURL, 5*time.Second).LatestSignal(ctx)
	if errors.Is(err, store.ErrNotFound) {
		fmt.Fprintln(out, "signal: none")
		return nil
	}
	if err != nil {
		return fmt.Errorf("read signal from %s: %w", cfg.Sync.StoreURL, err)
	}
	fmt.Fprintf(out, "signal: phase=%s session=%s pause=%d updated=%s\n",
		sig.Phase, sig.SessionID, sig.PauseCount, sig.UpdatedAt.Format(time.RFC3339))
	return nil
}

// levelReader picks the air sensor of the device.
func levelReader(cfg config.Config) gpio.LevelReader {
	if cfg.GPIO.Simulate {
		return gpio.NewSimLevelReader(450, 900, 10*time.Minute, nil)
	}
	return gpio.NewIIOLevelReader(cfg.Air.SensorPath)
}
