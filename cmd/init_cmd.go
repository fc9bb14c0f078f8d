package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tidemark/tidemark/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a config file interactively",
	Long:  `Walk through prompts to create a Tidemark configuration file at ~/.tidemark/tidemark.yaml.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		reader := bufio.NewReader(os.Stdin)

		fmt.Println("Tidemark Configuration Setup")
		fmt.Println("============================")
		fmt.Println()

		fmt.Println("Desired Schema")
		fmt.Println("--------------")
		schemaFile := prompt(reader, "Schema file (yaml or sql)", "schema.yaml")
		fmt.Println()

		fmt.Println("First Target")
		fmt.Println("------------")
		name := prompt(reader, "Target name", "primary")
		dialect := prompt(reader, "Dialect (postgres/mysql/sqlite/oracle)", "postgres")

		t := config.Target{Name: name, Dialect: dialect}
		if dialect == "sqlite" {
			t.Database = prompt(reader, "Database file", "tidemark.db")
		} else {
			t.Host = prompt(reader, "Host", "localhost")
			portStr := prompt(reader, "Port", defaultPort(dialect))
			port, err := strconv.Atoi(portStr)
			if err != nil {
				return fmt.Errorf("invalid port: %s", portStr)
			}
			t.Port = port
			t.Database = prompt(reader, "Database name", "")
			t.Username = prompt(reader, "Username", "")
			t.Password = prompt(reader, "Password (or ${ENV:VAR} / ${VAULT:path#field} / ${AWS_SM:name})", "")
		}
		fmt.Println()

		cfg := &config.Config{
			Version: config.CurrentVersion,
			Schema:  config.Desired{File: schemaFile},
			DevDatabase: config.DevConfig{
				Kind: prompt(reader, "Dev database kind (sqlite/postgres/container)", "sqlite"),
			},
			Targets: []config.Target{t},
		}

		cfgPath := config.ExpandHome(config.DefaultPath)
		if cfgFile != "" {
			cfgPath = cfgFile
		}

		if err := cfg.Save(cfgPath); err != nil {
			return fmt.Errorf("saving config: %w", err)
		}

		fmt.Printf("Config written to %s\n", cfgPath)
		fmt.Println()
		fmt.Println("Next steps:")
		fmt.Println("  tidemark inspect   Dump a target's current schema")
		fmt.Println("  tidemark diff      Compare targets against the desired schema")
		fmt.Println("  tidemark apply     Reconcile every target")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func prompt(reader *bufio.Reader, label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("  %s [%s]: ", label, defaultVal)
	} else {
		fmt.Printf("  %s: ", label)
	}
	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultVal
	}
	return input
}

func defaultPort(dialect string) string {
	switch dialect {
	case "mysql":
		return "3306"
	case "oracle":
		return "1521"
	default:
		return "5432"
	}
}
