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

	"github.com/fatih/color"
	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/yugabyte/yb-datamover/src/constants"
	"github.com/yugabyte/yb-datamover/src/datasource"
	"github.com/yugabyte/yb-datamover/src/utils"
)

var (
	sourceName       string
	sourceDescriptor datasource.ConnDescriptor
)

var sourceCmd = &cobra.Command{
	Use:   "source",
	Short: "Register, unregister and list the migration sources jobs read from",
}

var sourceRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a named source database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := newEnvironment()
		if err != nil {
			return err
		}
		applyDefaultPort(&sourceDescriptor)
		if err := env.api.RegisterMigrationSource(cmd.Context(), sourceName, &sourceDescriptor); err != nil {
			return err
		}
		utils.PrintAndLog("Registered migration source %s (%s)", sourceName, sourceDescriptor.String())
		return nil
	},
}

var sourceUnregisterCmd = &cobra.Command{
	Use:   "unregister NAME",
	Short: "Remove a migration source no job uses",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := newEnvironment()
		if err != nil {
			return err
		}
		if err := env.api.UnregisterMigrationSource(cmd.Context(), args[0]); err != nil {
			return err
		}
		utils.PrintAndLog("Unregistered migration source %s", args[0])
		return nil
	},
}

var sourceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the registered migration sources",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := newEnvironment()
		if err != nil {
			return err
		}
		sources, err := env.api.ListMigrationSources(cmd.Context())
		if err != nil {
			return err
		}
		if len(sources) == 0 {
			fmt.Println("No migration sources registered.")
			return nil
		}
		uiTable := uitable.New()
		headerfmt := color.New(color.FgGreen, color.Underline).SprintFunc()
		uiTable.AddRow(headerfmt("NAME"), headerfmt("TYPE"), headerfmt("DATABASE"), headerfmt("SCHEMA"))
		for _, s := range sources {
			uiTable.AddRow(s.Name, s.Descriptor.DBType, s.Descriptor.String(), s.Descriptor.DefaultSchema())
		}
		fmt.Print("\n")
		fmt.Println(uiTable)
		fmt.Print("\n")
		return nil
	},
}

var defaultPorts = map[string]int{
	constants.POSTGRESQL: 5432,
	constants.YUGABYTEDB: 5433,
	constants.MYSQL:      3306,
	constants.ORACLE:     1521,
}

func applyDefaultPort(d *datasource.ConnDescriptor) {
	if d.Port == 0 && d.Uri == "" {
		d.Port = defaultPorts[d.DBType]
	}
}

func registerConnectionFlags(cmd *cobra.Command, d *datasource.ConnDescriptor) {
	cmd.Flags().StringVar(&d.DBType, "db-type", "",
		"database type: postgresql, yugabytedb, mysql, oracle or sqlite")
	cmd.Flags().StringVar(&d.Host, "db-host", "localhost", "database host")
	cmd.Flags().IntVar(&d.Port, "db-port", 0, "database port (default is the port of the database type)")
	cmd.Flags().StringVar(&d.User, "db-user", "", "database user")
	cmd.Flags().StringVar(&d.Password, "db-password", "", "database password")
	cmd.Flags().StringVar(&d.DBName, "db-name", "", "database name, or the file path for sqlite")
	cmd.Flags().StringVar(&d.Schema, "db-schema", "", "schema the tables live in")
	cmd.Flags().StringVar(&d.SSLMode, "ssl-mode", "", "ssl mode for postgresql and yugabytedb")
	cmd.Flags().StringVar(&d.Uri, "db-uri", "", "connection uri; overrides the other connection flags")
	cmd.Flags().IntVar(&d.NumConnections, "num-connections", 0, "maximum open connections to the database")
}

func init() {
	sourceRegisterCmd.Flags().StringVar(&sourceName, "name", "", "name jobs refer to this source by")
	sourceRegisterCmd.MarkFlagRequired("name")
	registerConnectionFlags(sourceRegisterCmd, &sourceDescriptor)
	sourceRegisterCmd.MarkFlagRequired("db-type")

	sourceCmd.AddCommand(sourceRegisterCmd, sourceUnregisterCmd, sourceListCmd)
	rootCmd.AddCommand(sourceCmd)
}
