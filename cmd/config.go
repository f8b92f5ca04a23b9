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

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/yugabyte/yb-datamover/src/datasource"
	"github.com/yugabyte/yb-datamover/src/job"
	"github.com/yugabyte/yb-datamover/src/utils"
)

const (
	TargetsConfigSection       = "targets"
	ShardedTablesConfigSection = "sharded-tables"
)

var allowedGlobalConfigKeys = mapset.NewThreadUnsafeSet[string](
	"work-dir", "log-level", "registry", "etcd-endpoints", "etcd-username", "etcd-password",
	"lock", "lock-db-uri", "metrics-port", "log-statements", "verbose",
)

var allowedTuningConfigKeys = []string{
	"batch-size", "sharding-size", "channel-capacity", "concurrency", "retry-times", "read-qps",
	"write-tps", "transaction-isolation",
}

var allowedSourceRegisterConfigKeys = mapset.NewThreadUnsafeSet[string](
	"db-type", "db-host", "db-port", "db-user", "db-password", "db-name", "db-schema", "ssl-mode",
	"db-uri", "num-connections",
)

var allowedMigrateScheduleConfigKeys = mapset.NewThreadUnsafeSet[string](
	append([]string{"target-db-name", "table-mappings", "wait"}, allowedTuningConfigKeys...)...,
)

var allowedMigrateCheckConfigKeys = mapset.NewThreadUnsafeSet[string](
	"estimated-count", "skip-content", "page-size", "concurrency",
)

// Sections keyed by a user chosen name, e.g. targets.<name>.db-host.
var allowedNamedSectionKeys = map[string]mapset.Set[string]{
	TargetsConfigSection: allowedSourceRegisterConfigKeys,
}

var allowedConfigSections = map[string]mapset.Set[string]{
	"source-register":  allowedSourceRegisterConfigKeys,
	"migrate-schedule": allowedMigrateScheduleConfigKeys,
	"migrate-start":    mapset.NewThreadUnsafeSet[string]("wait"),
	"migrate-check":    allowedMigrateCheckConfigKeys,
}

// appConfig is the config file of the running command, read by initConfig.
var appConfig = viper.New()

// ConfigFlagOverride represents a CLI flag whose value was set from the config file.
type ConfigFlagOverride struct {
	FlagName  string
	ConfigKey string
	Value     string
}

/*
initConfig loads the config file and applies it to the flags of cmd.

	Precedence of which config file to use: --config-file > YB_DATAMOVER_CONFIG_FILE > $HOME/yb-datamover-config.yaml.
	Flags given on the command line always win over config values.
*/
func initConfig(cmd *cobra.Command) ([]ConfigFlagOverride, error) {
	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else if os.Getenv("YB_DATAMOVER_CONFIG_FILE") != "" {
		v.SetConfigFile(os.Getenv("YB_DATAMOVER_CONFIG_FILE"))
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(home)
		v.SetConfigName("yb-datamover-config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", v.ConfigFileUsed())
	} else {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}
	if err := validateConfigFile(v); err != nil {
		return nil, err
	}
	overrides, err := bindCobraFlagsToViper(cmd, v)
	if err != nil {
		return nil, fmt.Errorf("failed to bind cobra flags to viper: %w", err)
	}
	appConfig = v
	return overrides, nil
}

/*
validateConfigFile rejects unknown global keys, unknown sections and unknown keys inside a section.
Every problem found is printed before the error is returned.
*/
func validateConfigFile(v *viper.Viper) error {
	invalidGlobalKeys := mapset.NewThreadUnsafeSet[string]()
	invalidSectionKeys := make(map[string]mapset.Set[string])
	invalidSections := mapset.NewThreadUnsafeSet[string]()

	addInvalid := func(section, key string) {
		if _, exists := invalidSectionKeys[section]; !exists {
			invalidSectionKeys[section] = mapset.NewThreadUnsafeSet[string]()
		}
		invalidSectionKeys[section].Add(key)
	}
	for _, key := range v.AllKeys() {
		parts := strings.Split(key, ".")
		if len(parts) == 1 {
			if !allowedGlobalConfigKeys.Contains(key) {
				invalidGlobalKeys.Add(key)
			}
			continue
		}
		section := parts[0]
		nestedKey := strings.Join(parts[1:], ".")
		if section == ShardedTablesConfigSection {
			if len(parts) != 2 {
				addInvalid(section, nestedKey)
			}
			continue
		}
		if allowedKeys, ok := allowedNamedSectionKeys[section]; ok {
			if len(parts) != 3 || !allowedKeys.Contains(parts[2]) {
				addInvalid(section, nestedKey)
			}
			continue
		}
		allowedKeys, ok := allowedConfigSections[section]
		if !ok {
			invalidSections.Add(section)
			continue
		}
		if !allowedKeys.Contains(nestedKey) {
			addInvalid(section, nestedKey)
		}
	}

	if invalidGlobalKeys.Cardinality() > 0 || len(invalidSectionKeys) > 0 || invalidSections.Cardinality() > 0 {
		if invalidGlobalKeys.Cardinality() > 0 {
			fmt.Printf("%s [%s]\n", color.RedString("Invalid global config keys:"), strings.Join(invalidGlobalKeys.ToSlice(), ", "))
		}
		for section, keys := range invalidSectionKeys {
			fmt.Printf("%s [%s]\n", color.RedString(fmt.Sprintf("Invalid keys in section '%s':", section)), strings.Join(keys.ToSlice(), ", "))
		}
		if invalidSections.Cardinality() > 0 {
			fmt.Printf("%s [%s]\n", color.RedString("Invalid sections:"), strings.Join(invalidSections.ToSlice(), ", "))
		}
		return fmt.Errorf("found invalid configurations in config file: %s", v.ConfigFileUsed())
	}
	return nil
}

/*
bindCobraFlagsToViper sets every flag the user did not pass from the config file, looking first
for <command-path>.<flag> (e.g. migrate-schedule.batch-size) and then for the global key.
*/
func bindCobraFlagsToViper(cmd *cobra.Command, v *viper.Viper) ([]ConfigFlagOverride, error) {
	var bindErr error
	var overrides []ConfigFlagOverride

	subCmdPath := strings.TrimSpace(strings.TrimPrefix(cmd.CommandPath(), cmd.Root().Name()))
	configKeyPrefix := strings.ReplaceAll(subCmdPath, " ", "-")

	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if bindErr != nil || f.Changed {
			return
		}
		for _, key := range []string{configKeyPrefix + "." + f.Name, f.Name} {
			if !v.IsSet(key) {
				continue
			}
			val := v.GetString(key)
			if err := cmd.Flags().Set(f.Name, val); err != nil {
				bindErr = err
				return
			}
			overrides = append(overrides, ConfigFlagOverride{FlagName: f.Name, ConfigKey: key, Value: val})
			return
		}
	})
	return overrides, bindErr
}

// targetDatabases reads the targets section into connection descriptors keyed by target database name.
func targetDatabases(v *viper.Viper) (map[string]*datasource.ConnDescriptor, error) {
	targets := map[string]*datasource.ConnDescriptor{}
	for name := range v.GetStringMap(TargetsConfigSection) {
		sub := v.Sub(TargetsConfigSection + "." + name)
		if sub == nil {
			continue
		}
		desc := &datasource.ConnDescriptor{
			DBType:         sub.GetString("db-type"),
			Host:           sub.GetString("db-host"),
			Port:           sub.GetInt("db-port"),
			User:           sub.GetString("db-user"),
			Password:       sub.GetString("db-password"),
			DBName:         sub.GetString("db-name"),
			Schema:         sub.GetString("db-schema"),
			SSLMode:        sub.GetString("ssl-mode"),
			Uri:            sub.GetString("db-uri"),
			NumConnections: sub.GetInt("num-connections"),
		}
		applyDefaultPort(desc)
		if err := desc.Validate(); err != nil {
			return nil, fmt.Errorf("target %s: %w", name, err)
		}
		targets[name] = desc
	}
	return targets, nil
}

// shardedTables reads "sharded-tables.<logic table>: schema.table,schema.table".
func shardedTables(v *viper.Viper) map[string][]job.DataNode {
	tables := map[string][]job.DataNode{}
	for logicTable, value := range v.GetStringMapString(ShardedTablesConfigSection) {
		for _, node := range utils.CsvStringToSlice(value) {
			schema, table, found := strings.Cut(node, ".")
			if !found {
				schema, table = "", node
			}
			tables[logicTable] = append(tables[logicTable], job.DataNode{Schema: schema, Table: table})
		}
	}
	return tables
}
