package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/apexion-ai/turnkit/internal/config"
)

// initProviders is the menu shown by the init wizard.
var initProviders = []string{
	"openai", "anthropic", "deepseek", "minimax",
	"kimi", "qwen", "glm", "doubao", "groq", "gemini",
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Interactive configuration wizard",
		Long:  "Guides you through setting up turnkit: choose the classifier provider, enter your API key, and save the config.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func runInit(in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)
	prompt := func(format string, a ...any) string {
		fmt.Fprintf(out, format, a...)
		line, _ := reader.ReadString('\n')
		return strings.TrimSpace(line)
	}

	fmt.Fprintln(out, "Welcome to the turnkit configuration wizard!")
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Available providers:")
	for i, p := range initProviders {
		fmt.Fprintf(out, "  %d. %s\n", i+1, p)
	}
	selectedIdx := 0
	if input := prompt("\nSelect provider (1-%d) [1]: ", len(initProviders)); input != "" {
		n, err := strconv.Atoi(input)
		if err != nil || n < 1 || n > len(initProviders) {
			return fmt.Errorf("invalid selection %q", input)
		}
		selectedIdx = n - 1
	}
	providerName := initProviders[selectedIdx]
	fmt.Fprintf(out, "Selected: %s\n\n", providerName)

	apiKey := prompt("Enter API key for %s: ", providerName)
	if apiKey == "" {
		return errors.New("API key cannot be empty")
	}

	defaultModel := config.KnownProviderModels[providerName]
	model := prompt("Classifier model [%s]: ", defaultModel)

	if err := config.SaveProviderToFile(providerName, config.ProviderConfig{APIKey: apiKey, Model: model}); err != nil {
		return err
	}

	fmt.Fprintf(out, "\nConfig saved to %s\n", config.DefaultPath())
	fmt.Fprintln(out, "You can now run: turnkit route \"why does this test fail?\"")
	return nil
}
