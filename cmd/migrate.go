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
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/gosuri/uitable"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/exp/slices"

	"github.com/yugabyte/yb-datamover/src/config"
	"github.com/yugabyte/yb-datamover/src/constants"
	"github.com/yugabyte/yb-datamover/src/errs"
	"github.com/yugabyte/yb-datamover/src/job"
	"github.com/yugabyte/yb-datamover/src/utils"
)

var (
	targetDBName  string
	tableMappings string
	waitForFinish bool
	checkParams   job.CheckParams
)

const progressReportInterval = 10 * time.Second

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Schedule, run, check and finalise migration jobs",
}

var migrateScheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Create a migration job and start it",
	Long: `Create a migration job copying source tables into a target database and start it.
Tables are given as a comma separated list of <source>.[<schema>.]<table>[:<target table>].`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := parseTableMappings(tableMappings)
		if err != nil {
			return err
		}
		env, err := newEnvironment()
		if err != nil {
			return err
		}
		jobID, err := env.api.Schedule(cmd.Context(), entries, targetDBName)
		if err != nil {
			return err
		}
		utils.PrintAndLog("Scheduled job %s", jobID)
		return waitIfRequested(cmd.Context(), env.api, jobID)
	},
}

var migrateStartCmd = &cobra.Command{
	Use:   "start JOB_ID",
	Short: "Start a stopped job from where it left off",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := newEnvironment()
		if err != nil {
			return err
		}
		if err := env.api.Start(cmd.Context(), args[0]); err != nil {
			return err
		}
		utils.PrintAndLog("Started job %s", args[0])
		return waitIfRequested(cmd.Context(), env.api, args[0])
	},
}

var migrateStopCmd = &cobra.Command{
	Use:   "stop JOB_ID",
	Short: "Stop a running job; it can be started again later",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAPI(func(api *job.API) error {
			if err := api.Stop(cmd.Context(), args[0]); err != nil {
				return err
			}
			utils.PrintAndLog("Requested job %s to stop", args[0])
			return nil
		})
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status JOB_ID",
	Short: "Show the state and per task progress of a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAPI(func(api *job.API) error {
			info, err := api.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			progress, err := api.Progress(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printJobStatus(info, progress)
			return nil
		})
	},
}

var migrateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the jobs that are not committed or rolled back",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAPI(func(api *job.API) error {
			jobs, err := api.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				fmt.Println("No jobs.")
				return nil
			}
			uiTable := uitable.New()
			headerfmt := color.New(color.FgGreen, color.Underline).SprintFunc()
			uiTable.AddRow(headerfmt("JOB ID"), headerfmt("STATE"), headerfmt("TARGET"), headerfmt("TABLES"), headerfmt("CREATED"))
			for _, info := range jobs {
				uiTable.AddRow(info.JobID, colorState(info.State), info.TargetDatabaseName,
					strings.Join(info.Tables, ","), humanize.Time(info.CreatedAt))
			}
			fmt.Println(uiTable)
			return nil
		})
	},
}

var migrateCheckCmd = &cobra.Command{
	Use:   "check JOB_ID",
	Short: "Compare source and target tables of a finished job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAPI(func(api *job.API) error {
			check, err := api.CreateCheck(cmd.Context(), args[0], checkParams)
			if err != nil {
				return err
			}
			printCheck(check)
			return nil
		})
	},
}

var migrateCheckStatusCmd = &cobra.Command{
	Use:   "check-status CHECK_ID",
	Short: "Show the result of a consistency check",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAPI(func(api *job.API) error {
			check, err := api.GetCheckResult(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printCheck(check)
			return nil
		})
	},
}

var migrateDropCheckCmd = &cobra.Command{
	Use:   "drop-check CHECK_ID",
	Short: "Delete a consistency check result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAPI(func(api *job.API) error {
			if err := api.DropCheck(cmd.Context(), args[0]); err != nil {
				return err
			}
			utils.PrintAndLog("Dropped check %s", args[0])
			return nil
		})
	},
}

var migrateCommitCmd = &cobra.Command{
	Use:   "commit JOB_ID",
	Short: "Accept the migrated data and remove the job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAPI(func(api *job.API) error {
			if err := api.Commit(cmd.Context(), args[0]); err != nil {
				return err
			}
			utils.PrintAndLog("Committed job %s", args[0])
			return nil
		})
	},
}

var migrateRollbackCmd = &cobra.Command{
	Use:   "rollback JOB_ID",
	Short: "Drop the target tables of a job and remove it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAPI(func(api *job.API) error {
			if err := api.Rollback(cmd.Context(), args[0]); err != nil {
				return err
			}
			utils.PrintAndLog("Rolled back job %s", args[0])
			return nil
		})
	},
}

var migrateWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print job state changes as they happen",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAPI(func(api *job.API) error {
			events, err := api.WatchJobs(cmd.Context())
			if err != nil {
				return err
			}
			for ev := range events {
				fmt.Printf("%s %s %s\n", time.Now().Format("15:04:05"), ev.JobID, colorState(ev.State))
			}
			return nil
		})
	},
}

func withAPI(fn func(api *job.API) error) error {
	env, err := newEnvironment()
	if err != nil {
		return err
	}
	return fn(env.api)
}

// parseTableMappings parses "ds_0.t_order,ds_0.public.t_item:t_item_new".
func parseTableMappings(s string) ([]job.SourceTargetEntry, error) {
	var entries []job.SourceTargetEntry
	for _, mapping := range utils.CsvStringToSlice(s) {
		if mapping == "" {
			continue
		}
		source, target, _ := strings.Cut(mapping, ":")
		parts := strings.Split(source, ".")
		var e job.SourceTargetEntry
		switch len(parts) {
		case 2:
			e = job.SourceTargetEntry{SourceName: parts[0], SourceTable: parts[1]}
		case 3:
			e = job.SourceTargetEntry{SourceName: parts[0], SourceSchema: parts[1], SourceTable: parts[2]}
		default:
			return nil, errs.NewParameterError("invalid table mapping %q, expected <source>.[<schema>.]<table>[:<target table>]", mapping)
		}
		e.TargetTable = target
		if e.TargetTable == "" {
			e.TargetTable = e.SourceTable
		}
		if slices.Contains([]string{e.SourceName, e.SourceTable}, "") {
			return nil, errs.NewParameterError("invalid table mapping %q", mapping)
		}
		entries = append(entries, e)
	}
	if len(entries) == 0 {
		return nil, errs.NewParameterError(`required flag "table-mappings" not set`)
	}
	return entries, nil
}

func waitIfRequested(ctx context.Context, api *job.API, jobID string) error {
	if !waitForFinish {
		return nil
	}
	if config.IsLogLevelDebugOrBelow() {
		if info, err := api.Status(ctx, jobID); err == nil {
			log.Debugf("job: %s", spew.Sdump(info))
		}
	}
	done := make(chan error, 1)
	go func() { done <- api.Wait(ctx, jobID) }()
	ticker := time.NewTicker(progressReportInterval)
	defer ticker.Stop()
	for {
		select {
		case err := <-done:
			info, statusErr := api.Status(ctx, jobID)
			if statusErr != nil {
				return statusErr
			}
			progress, _ := api.Progress(ctx, jobID)
			printJobStatus(info, progress)
			if err != nil {
				return err
			}
			if info.State != constants.JOB_FINISHED {
				return fmt.Errorf("job %s ended in state %s", jobID, info.State)
			}
			return nil
		case <-ticker.C:
			progress, err := api.Progress(ctx, jobID)
			if err != nil {
				log.Warnf("progress of job %s: %v", jobID, err)
				continue
			}
			fmt.Println(progressSummary(progress))
		}
	}
}

func progressSummary(progress []*job.JobItemProgress) string {
	finished := 0
	var rows int64
	for _, p := range progress {
		if p.Status == constants.TASK_FINISHED {
			finished++
		}
		rows += p.RecordsImported
	}
	return fmt.Sprintf("%s %d/%d tasks finished, %s rows imported",
		time.Now().Format("15:04:05"), finished, len(progress), humanize.Comma(rows))
}

func printJobStatus(info *job.JobInfo, progress []*job.JobItemProgress) {
	fmt.Printf("\nJob %s: %s (updated %s)\n", info.JobID, colorState(info.State), humanize.Time(info.UpdatedAt))
	if info.ErrorMessage != "" {
		fmt.Printf("%s %s\n", color.RedString("Error:"), info.ErrorMessage)
	}
	if len(progress) == 0 {
		return
	}
	uiTable := uitable.New()
	headerfmt := color.New(color.FgGreen, color.Underline).SprintFunc()
	uiTable.AddRow(headerfmt("TASK"), headerfmt("SOURCE TABLE"), headerfmt("TARGET TABLE"), headerfmt("STATUS"),
		headerfmt("IMPORTED ROWS"), headerfmt("POSITION"))
	for _, p := range progress {
		uiTable.AddRow(p.TaskID, p.SourceTable, p.LogicTable, p.Status, humanize.Comma(p.RecordsImported), p.Position)
	}
	fmt.Print("\n")
	fmt.Println(uiTable)
	fmt.Print("\n")
	if verboseMode {
		fmt.Println(progressSummary(progress))
	}
}

func printCheck(check *job.CheckJob) {
	verdict := color.GreenString("MATCHED")
	if !check.Matched {
		verdict = color.RedString("NOT MATCHED")
	}
	fmt.Printf("\nCheck %s of job %s: %s, %s\n", check.CheckID, check.ParentJobID, check.State, verdict)
	if check.ErrorMessage != "" {
		fmt.Printf("%s %s\n", color.RedString("Error:"), check.ErrorMessage)
	}
	uiTable := uitable.New()
	headerfmt := color.New(color.FgGreen, color.Underline).SprintFunc()
	uiTable.AddRow(headerfmt("TABLE"), headerfmt("SOURCE ROWS"), headerfmt("TARGET ROWS"), headerfmt("COUNT"),
		headerfmt("CONTENT"), headerfmt("ALGORITHM"), headerfmt("ERROR"))
	tables := make([]string, 0, len(check.Results))
	for table := range check.Results {
		tables = append(tables, table)
	}
	slices.Sort(tables)
	for _, table := range tables {
		r := check.Results[table]
		uiTable.AddRow(table, humanize.Comma(r.SourceCount), humanize.Comma(r.TargetCount),
			r.CountMatched, r.ContentMatched, r.Algorithm, r.ErrorMessage)
	}
	fmt.Print("\n")
	fmt.Println(uiTable)
	fmt.Print("\n")
}

func colorState(state string) string {
	switch state {
	case constants.JOB_FINISHED, constants.JOB_COMMITTED:
		return color.GreenString(state)
	case constants.JOB_STOPPED, constants.JOB_ROLLED_BACK:
		return color.YellowString(state)
	}
	return state
}

func registerTuningFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&tuning.BatchSize, "batch-size", constants.DEFAULT_BATCH_SIZE,
		"rows per dump batch and per import transaction")
	cmd.Flags().Int64Var(&tuning.ShardingSize, "sharding-size", constants.DEFAULT_SHARDING_SIZE,
		"integer key values per inventory task")
	cmd.Flags().IntVar(&tuning.ChannelCapacity, "channel-capacity", constants.DEFAULT_CHANNEL_CAPACITY,
		"batches buffered between the dumper and the importer of a task")
	cmd.Flags().IntVar(&tuning.Concurrency, "concurrency", constants.DEFAULT_CONCURRENCY,
		"inventory tasks run in parallel")
	cmd.Flags().IntVar(&tuning.RetryTimes, "retry-times", constants.DEFAULT_RETRY_TIMES,
		"extra attempts for a failed import batch")
	cmd.Flags().IntVar(&tuning.ReadQPS, "read-qps", 0, "maximum source queries per second (0 = unlimited)")
	cmd.Flags().IntVar(&tuning.WriteTPS, "write-tps", 0, "maximum target rows written per second (0 = unlimited)")
	cmd.Flags().StringVar(&tuning.TransactionIsolation, "transaction-isolation", "",
		"isolation level of the dump transaction: read_uncommitted, read_committed, repeatable_read or serializable")
}

func init() {
	migrateScheduleCmd.Flags().StringVar(&targetDBName, "target-db-name", "",
		"name of the target database, as configured in the targets section of the config file")
	migrateScheduleCmd.MarkFlagRequired("target-db-name")
	migrateScheduleCmd.Flags().StringVar(&tableMappings, "table-mappings", "",
		"comma separated <source>.[<schema>.]<table>[:<target table>] list")
	registerTuningFlags(migrateScheduleCmd)
	for _, c := range []*cobra.Command{migrateScheduleCmd, migrateStartCmd} {
		c.Flags().BoolVar(&waitForFinish, "wait", true, "keep running until the job finishes or is stopped")
	}

	migrateCheckCmd.Flags().BoolVar(&checkParams.EstimatedCount, "estimated-count", false,
		"use the engine's row estimate instead of COUNT(*) where available")
	migrateCheckCmd.Flags().BoolVar(&checkParams.SkipContent, "skip-content", false, "compare row counts only")
	migrateCheckCmd.Flags().IntVar(&checkParams.PageSize, "page-size", 1000, "rows compared per page")
	migrateCheckCmd.Flags().IntVar(&checkParams.Concurrency, "concurrency", 0,
		"tables checked in parallel (default is the job concurrency)")

	migrateCmd.AddCommand(migrateScheduleCmd, migrateStartCmd, migrateStopCmd, migrateStatusCmd, migrateListCmd,
		migrateCheckCmd, migrateCheckStatusCmd, migrateDropCheckCmd, migrateCommitCmd, migrateRollbackCmd, migrateWatchCmd)
	rootCmd.AddCommand(migrateCmd)
}
