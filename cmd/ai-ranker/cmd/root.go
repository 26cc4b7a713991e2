package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "ai-ranker",
	Short: "Measure how LLM providers represent a brand across countries and grounding modes.",
	Long: `ai-ranker manages prompt templates, dispatches them across a
country x grounding-mode matrix against OpenAI and Vertex, and records the
provider's locale-probe answers and citations for later analysis.`,
}

// Execute adds all child commands to the root command and runs it. Called
// once from main.main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./ai-ranker.yaml)")
	rootCmd.PersistentFlags().String("database", "", "path to the SQLite database file")
	rootCmd.PersistentFlags().String("log-level", "", "log level: none, error, warn, info, debug")

	_ = viper.BindPFlag("database_path", rootCmd.PersistentFlags().Lookup("database"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	if err := godotenv.Load(); err != nil {
		// Missing .env is normal outside local development; credentials may
		// come from the real environment instead.
		fmt.Fprintln(os.Stderr, "ai-ranker: no .env file loaded:", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("ai-ranker")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("AI_RANKER")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintln(os.Stderr, "ai-ranker: error reading config:", err)
		}
	}
}
