/*
Copyright (c) YugabyteDB, Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cmd

import (
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yugabyte/yb-datamover/src/config"
	"github.com/yugabyte/yb-datamover/src/constants"
	"github.com/yugabyte/yb-datamover/src/metrics"
	"github.com/yugabyte/yb-datamover/src/utils"
)

var (
	cfgFile       string
	workDir       string
	registryType  string
	etcdEndpoints string
	etcdUsername  string
	etcdPassword  string
	lockType      string
	lockDBUri     string
	metricsPort   string
	logStatements bool
	verboseMode   bool
)

var rootCmd = &cobra.Command{
	Use:   "yb-datamover",
	Short: "Moves table data between databases in restartable, verifiable jobs",
	Long: `yb-datamover copies the rows of source tables (PostgreSQL, YugabyteDB, MySQL, Oracle, SQLite) into target tables.
A migration is a job: it is split into ranged tasks, its progress is kept in a registry (sqlite or etcd) so it can
be stopped and restarted, it can be checked for consistency and it is finally committed or rolled back.`,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		overrides, err := initConfig(cmd)
		if err != nil {
			return err
		}
		if err := config.ValidateLogLevel(); err != nil {
			return err
		}
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}
		workDir = strings.TrimRight(workDir, "/")
		if workDir == "" {
			return fmt.Errorf(`required flag "work-dir" not set`)
		}
		if err := utils.MkdirAll(workDir); err != nil {
			return fmt.Errorf("create work dir: %w", err)
		}
		InitLogging(workDir, strings.ReplaceAll(cmd.CommandPath(), " ", "-"))
		for _, o := range overrides {
			log.Infof("flag %s set to %q from config key %s", o.FlagName, redactFlagValue(o.FlagName, o.Value), o.ConfigKey)
		}
		if metricsPort != "" {
			if _, err := metrics.StartMetricsServer(metricsPort); err != nil {
				return err
			}
		}
		return nil
	},

	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 {
			cmd.Help()
			os.Exit(0)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		utils.ErrExit("%v", err)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
	registerCommonGlobalFlags(rootCmd)
}

func registerCommonGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVarP(&cfgFile, "config-file", "c", "",
		"path of the config file (default $HOME/yb-datamover-config.yaml)")
	cmd.PersistentFlags().StringVarP(&workDir, "work-dir", "w", "",
		"workspace holding the sqlite registry, job lock files and logs")
	cmd.PersistentFlags().StringVarP(&config.LogLevel, "log-level", "l", config.INFO,
		"log level for yb-datamover. Accepted values: (trace, debug, info, warn, error, fatal, panic)")
	cmd.PersistentFlags().StringVar(&registryType, "registry", "sqlite",
		"where job state is kept: sqlite (in the work dir) or etcd")
	cmd.PersistentFlags().StringVar(&etcdEndpoints, "etcd-endpoints", "",
		"comma separated etcd endpoints used by the etcd registry and the etcd job lock")
	cmd.PersistentFlags().StringVar(&etcdUsername, "etcd-username", "", "etcd user")
	cmd.PersistentFlags().StringVar(&etcdPassword, "etcd-password", "", "etcd password")
	cmd.PersistentFlags().StringVar(&lockType, "lock", LOCK_FILE,
		"job lock implementation: file (single host), etcd or postgres (advisory lock)")
	cmd.PersistentFlags().StringVar(&lockDBUri, "lock-db-uri", "",
		"postgres connection uri used by the postgres job lock")
	cmd.PersistentFlags().StringVar(&metricsPort, "metrics-port", "",
		"serve prometheus metrics on this port")
	cmd.PersistentFlags().BoolVar(&logStatements, "log-statements", false,
		"log every SQL statement sent to source and target databases at debug level")
	cmd.PersistentFlags().BoolVar(&verboseMode, "verbose", false,
		"enable verbose mode for the console output")
}

func redactFlagValue(flagName, value string) string {
	switch {
	case strings.Contains(flagName, "password"):
		return constants.OBFUSCATE_STRING
	case strings.Contains(flagName, "uri"):
		return utils.RedactPassword(value)
	}
	return value
}
