package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ToFut/Tredy-sub001/internal/config"
)

var (
	configureProvider string
	configureAPIKey   string
	configureModel    string
	configurePort     int
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Write the daemon configuration file",
	RunE:  runConfigure,
}

func init() {
	configureCmd.Flags().StringVar(&configureProvider, "provider", "", "completion provider (anthropic, openai)")
	configureCmd.Flags().StringVar(&configureAPIKey, "api-key", "", "provider API key")
	configureCmd.Flags().StringVar(&configureModel, "model", "", "model identifier")
	configureCmd.Flags().IntVar(&configurePort, "port", 0, "gateway port")
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if configureProvider != "" {
		if err := config.NewValidator().ValidateProvider(configureProvider); err != nil {
			return err
		}
		cfg.Provider.Name = configureProvider
	}
	if configureAPIKey != "" {
		cfg.Provider.APIKey = configureAPIKey
	}
	if configureModel != "" {
		cfg.Provider.Model = configureModel
	}
	if configurePort != 0 {
		cfg.Server.Port = configurePort
	}

	if err := loader.Save(cfg); err != nil {
		return err
	}

	fmt.Println("Configuration saved")
	fmt.Println(cfg.String())
	return nil
}
