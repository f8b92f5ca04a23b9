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
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/yugabyte/yb-datamover/src/config"
	"github.com/yugabyte/yb-datamover/src/constants"
)

type MyFormatter struct{}

var levelList = []string{
	"PANIC",
	"FATAL",
	"ERROR",
	"WARN",
	"INFO",
	"DEBUG",
	"TRACE",
}

func (mf *MyFormatter) Format(entry *log.Entry) ([]byte, error) {
	level := levelList[int(entry.Level)]
	caller := "-"
	if entry.Caller != nil {
		caller = fmt.Sprintf("%s:%d", filepath.Base(entry.Caller.File), entry.Caller.Line)
	}
	// Example log line:
	// 2022-03-23 12:16:42 INFO runner.go:27 job 8f0c...: split into 4 tasks
	msg := fmt.Sprintf("%s %s %s %s\n",
		entry.Time.Format("2006-01-02 15:04:05"), level, caller, entry.Message)
	return []byte(msg), nil
}

func InitLogging(workDir string, cmdName string) {
	logFileName := filepath.Join(workDir, "logs", fmt.Sprintf("yb-datamover-%s.log", cmdName))

	// logRotator creates the "logs" folder and the log file when they do not exist.
	logRotator := &lumberjack.Logger{
		Filename:   logFileName,
		MaxSize:    200, // 200 MB log size before rotation
		MaxBackups: 10,  // Allow upto 10 logs at once before deleting oldest logs.
	}
	log.SetOutput(logRotator)

	level, err := log.ParseLevel(config.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	log.SetReportCaller(true)
	log.SetFormatter(&MyFormatter{})
	log.Info("Logging initialised.")
	redactPasswordFromArgs()
	log.Infof("Args: %v", os.Args)
	log.Infof("\n%s", getVersionInfo())
}

func redactPasswordFromArgs() {
	for i := 0; i < len(os.Args)-1; i++ {
		switch os.Args[i] {
		case "--db-password", "--target-db-password", "--etcd-password":
			os.Args[i+1] = constants.OBFUSCATE_STRING
		}
	}
}
