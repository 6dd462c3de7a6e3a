package cli

import (
	"errors"
	"fmt"

	"github.com/harun/gemchat/internal/config"
	"github.com/spf13/cobra"
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Run interactive configuration wizard",
	Long: `Run an interactive configuration wizard to set up gemchat.
The wizard asks for the Gemini API key, model, listen port and log level.
Leave the key empty to keep reading it from GOOGLE_API_KEY.`,
	RunE: runConfigure,
}

func init() {
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	wizard := config.NewWizardWithIO(cmd.InOrStdin(), out)

	cfg, err := wizard.Run()
	if err != nil {
		return fmt.Errorf("configuration failed: %w", err)
	}

	for _, verr := range config.NewValidator().ValidateConfig(cfg) {
		// An empty key is read from the environment at startup.
		var cfgErr *config.ConfigurationError
		if errors.As(verr, &cfgErr) && cfgErr.Field == "gemini.api_key" && cfg.Gemini.APIKey == "" {
			continue
		}
		return fmt.Errorf("invalid configuration: %w", verr)
	}

	loader := config.NewLoader(cfgFile)
	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Fprintf(out, "\nConfiguration saved to: %s\n", loader.GetConfigPath())
	fmt.Fprintln(out, "\nYou can now start gemchat with: gemchat serve")

	return nil
}
