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

package datasource

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/yugabyte/yb-datamover/src/constants"
	"github.com/yugabyte/yb-datamover/src/dbtype"
	"github.com/yugabyte/yb-datamover/src/errs"
	"github.com/yugabyte/yb-datamover/src/utils"
)

// ConnDescriptor describes how to reach one database. It is persisted as part of
// registered migration sources and job configurations.
type ConnDescriptor struct {
	DBType         string            `json:"db_type"`
	Host           string            `json:"host"`
	Port           int               `json:"port"`
	User           string            `json:"user"`
	Password       string            `json:"password"`
	DBName         string            `json:"db_name"`
	Schema         string            `json:"schema"`
	SSLMode        string            `json:"ssl_mode"`
	Uri            string            `json:"uri"`
	NumConnections int               `json:"num_connections"`
	Params         map[string]string `json:"params,omitempty"`
}

func (d *ConnDescriptor) Clone() *ConnDescriptor {
	newD := *d
	if d.Params != nil {
		newD.Params = make(map[string]string, len(d.Params))
		for k, v := range d.Params {
			newD.Params[k] = v
		}
	}
	return &newD
}

func (d *ConnDescriptor) Validate() error {
	if _, err := dbtype.Get(d.DBType); err != nil {
		return err
	}
	if d.Uri != "" {
		return nil
	}
	if d.DBType == constants.SQLITE {
		if d.DBName == "" {
			return errs.NewParameterError("sqlite data source needs a database file path")
		}
		return nil
	}
	if d.Host == "" || d.DBName == "" {
		return errs.NewParameterError("%s data source needs host and database name", d.DBType)
	}
	return nil
}

// DefaultSchema is the schema tables of this data source live in when none is given.
func (d *ConnDescriptor) DefaultSchema() string {
	if d.Schema != "" {
		return d.Schema
	}
	switch d.DBType {
	case constants.POSTGRESQL, constants.YUGABYTEDB:
		return "public"
	case constants.ORACLE:
		return strings.ToUpper(d.User)
	default:
		return ""
	}
}

// Key identifies the physical database, ignoring credentials.
func (d *ConnDescriptor) Key() string {
	if d.Uri != "" {
		return d.DBType + "|" + utils.RedactPassword(d.Uri)
	}
	return fmt.Sprintf("%s|%s|%s:%d|%s", d.DBType, d.User, d.Host, d.Port, d.DBName)
}

func (d *ConnDescriptor) String() string {
	return fmt.Sprintf("%s://%s@%s:%d/%s", d.DBType, d.User, d.Host, d.Port, d.DBName)
}

func (d *ConnDescriptor) DSN() (string, error) {
	if d.Uri != "" {
		return d.Uri, nil
	}
	switch d.DBType {
	case constants.POSTGRESQL, constants.YUGABYTEDB:
		return d.postgresDSN(), nil
	case constants.MYSQL:
		return d.mysqlDSN(), nil
	case constants.ORACLE:
		return d.oracleDSN(), nil
	case constants.SQLITE:
		return d.sqliteDSN(), nil
	default:
		return "", errs.NewParameterError("unsupported database type %q", d.DBType)
	}
}

func (d *ConnDescriptor) postgresDSN() string {
	query := url.Values{}
	if d.SSLMode != "" {
		query.Set("sslmode", d.SSLMode)
	}
	for k, v := range d.Params {
		query.Set(k, v)
	}
	u := &url.URL{
		Scheme:   "postgresql",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     d.DBName,
		RawQuery: query.Encode(),
	}
	return u.String()
}

func (d *ConnDescriptor) mysqlDSN() string {
	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Password
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", d.Host, d.Port)
	cfg.DBName = d.DBName
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	switch d.SSLMode {
	case "disable":
		cfg.TLSConfig = "false"
	case "prefer":
		cfg.TLSConfig = "preferred"
	case "require":
		cfg.TLSConfig = "skip-verify"
	}
	if len(d.Params) > 0 {
		cfg.Params = d.Params
	}
	return cfg.FormatDSN()
}

func (d *ConnDescriptor) oracleDSN() string {
	connectString := fmt.Sprintf("%s:%d/%s", d.Host, d.Port, d.DBName)
	return fmt.Sprintf(`user="%s" password="%s" connectString="%s"`, d.User, d.Password, connectString)
}

func (d *ConnDescriptor) sqliteDSN() string {
	query := url.Values{}
	query.Set("_timeout", "30000")
	for k, v := range d.Params {
		query.Set(k, v)
	}
	return fmt.Sprintf("file:%s?%s", d.DBName, query.Encode())
}
