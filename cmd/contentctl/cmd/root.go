package cmd

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultAPIURL = "http://localhost:8080"

var (
	apiURL       string
	outputFormat string
	cfgFile      string
)

var rootCmd = &cobra.Command{
	Use:          "contentctl",
	Short:        "CLI for the content agent service",
	Long:         `contentctl submits marketing content jobs to the content agent service and follows them to completion.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.contentctl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", "", "service URL (default from config, CONTENTCTL_API_URL or "+defaultAPIURL+")")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "output format: table or json")
}

// initConfig resolves the API URL: flag > config file > env > default.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(filepath.Join(home, ".contentctl"))
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	_ = viper.BindEnv("api_url", "CONTENTCTL_API_URL")

	if err := viper.ReadInConfig(); err != nil && cfgFile != "" {
		fmt.Fprintf(os.Stderr, "Error reading config %s: %v\n", cfgFile, err)
	}

	if apiURL == "" {
		apiURL = viper.GetString("api_url")
	}
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
}

// GetAPIURL returns the service URL without trailing slashes.
func GetAPIURL() string {
	return strings.TrimRight(apiURL, "/")
}

func IsJSONOutput() bool {
	return outputFormat == "json"
}

var httpClient = &http.Client{Timeout: 30 * time.Second}

// streamClient has no overall timeout; streams are bounded by the server.
var streamClient = &http.Client{}
