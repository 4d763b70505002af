package main

import (
	"database/sql"
	"flag"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/golang/glog"

	"github.com/hb9tf/ssbscan/config"
	"github.com/hb9tf/ssbscan/probe"
	"github.com/hb9tf/ssbscan/scan"
	"github.com/hb9tf/ssbscan/store"
	"github.com/hb9tf/ssbscan/web"

	// Blind import support for sqlite3 used by the sqlite store.
	_ "github.com/mattn/go-sqlite3"
)

// Flags
var (
	listen     = flag.String("listen", ":8443", "")
	certFile   = flag.String("certFile", "", "Path of the file containing the certificate (including the chained intermediates and root) for the TLS connection.")
	keyFile    = flag.String("keyFile", "", "Path of the file containing the key for the TLS connection.")
	configFile = flag.String("configFile", "/etc/ssbscan/config.json", "Path of the JSON settings file (created on first update if missing).")
	output     = flag.String("output", "sqlite", "Result store to use (one of: csv, sqlite, mysql)")

	// CSV
	csvFile = flag.String("csvFile", "/var/lib/ssbscan/detections.csv", "File path of the CSV detection store.")

	// SQLite
	sqliteFile = flag.String("sqliteFile", "/var/lib/ssbscan/ssbscan.db", "File path of the sqlite DB file to use.")

	// MySQL
	mysqlServer       = flag.String("mysqlServer", "127.0.0.1:3306", "MySQL TCP server endpoint to connect to (IP/DNS and port).")
	mysqlUser         = flag.String("mysqlUser", "", "MySQL DB user.")
	mysqlPasswordFile = flag.String("mysqlPasswordFile", "", "Path to the file containing the password for the MySQL user.")
	mysqlDBName       = flag.String("mysqlDBName", "ssbscan", "Name of the DB to use.")

	// Probe
	probeExecutable = flag.String("probeExecutable", "", "Override for the probe executable path (defaults to the config file setting).")
)

func main() {
	// Set defaults for glog flags. Can be overridden via cmdline.
	flag.Set("logtostderr", "false")
	flag.Set("stderrthreshold", "WARNING")
	flag.Set("v", "1")
	// Parse flags globally.
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		glog.Exitf("unable to load config: %s", err)
	}
	settings := cfg.Get()
	if *probeExecutable != "" {
		settings.Probe.ExecutablePath = *probeExecutable
		if err := cfg.Update(settings); err != nil {
			glog.Exitf("unable to persist probe executable override: %s", err)
		}
	}

	// Store setup
	var st store.Store
	switch strings.ToLower(*output) {
	case "csv":
		st = &store.CSV{Path: *csvFile}
	case "sqlite":
		db, err := sql.Open("sqlite3", *sqliteFile)
		if err != nil {
			glog.Exitf("unable to open sqlite DB %q: %s", *sqliteFile, err)
		}
		st, err = store.NewSQL(db)
		if err != nil {
			glog.Exitf("unable to initialize sqlite store: %s", err)
		}
	case "mysql":
		pass, err := os.ReadFile(*mysqlPasswordFile)
		if err != nil {
			glog.Exitf("unable to read MySQL password file %q: %s", *mysqlPasswordFile, err)
		}
		mysqlCfg := mysql.Config{
			User:   *mysqlUser,
			Passwd: strings.TrimSpace(string(pass)),
			Net:    "tcp",
			Addr:   *mysqlServer,
			DBName: *mysqlDBName,
		}
		db, err := sql.Open("mysql", mysqlCfg.FormatDSN())
		if err != nil {
			glog.Exitf("unable to open MySQL DB %q: %s", *mysqlServer, err)
		}
		db.SetConnMaxLifetime(3 * time.Minute)
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		st, err = store.NewSQL(db)
		if err != nil {
			glog.Exitf("unable to initialize MySQL store: %s", err)
		}
	default:
		glog.Exitf("%q is not a supported store, pick one of: csv, sqlite, mysql", *output)
	}

	// Probe and session manager setup. The runner rebuilds itself from
	// the persisted settings on every invocation, so config updates
	// through the UI apply to the next probe run.
	settings = cfg.Get()
	runner := &probe.LiveRunner{Config: cfg}
	manager := scan.NewManager(runner, st, scan.Options{
		Attempts:    settings.Probe.RetryAttempts,
		SampleRate:  settings.Probe.DDCRate,
		DataDir:     settings.Paths.DataDirectory,
		MaxLogLines: settings.UI.MaxLogEntries,
	})
	runner.LogLine = manager.AddLog

	// Configure and run webserver.
	ws := &web.Server{
		Scanner: manager,
		Store:   st,
		Config:  cfg,
	}
	server := &http.Server{
		Addr:    *listen,
		Handler: ws.Router(),
	}
	if *certFile != "" || *keyFile != "" {
		glog.Fatal(server.ListenAndServeTLS(*certFile, *keyFile))
	} else {
		glog.Infoln("Resorting to serving HTTP because there was no certificate and key defined.")
		glog.Fatal(server.ListenAndServe())
	}

	glog.Flush()
}
