package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"vcpsim/api"
	"vcpsim/config"
	"vcpsim/fleet"
	"vcpsim/internal"
	"vcpsim/metrics"
)

func main() {
	var configPath, singleCpId, singleCsURL string
	flag.StringVar(&configPath, "config", "config.yml", "configuration file")
	flag.StringVar(&singleCpId, "cp", "", "run a single charger with this id and exit when its session closes")
	flag.StringVar(&singleCsURL, "cs", "", "central system url override")
	flag.Parse()

	_ = godotenv.Load()

	conf, err := config.GetConfig(configPath)
	if err != nil {
		fmt.Println("configuration failed:", err)
		os.Exit(1)
	}
	if singleCsURL != "" {
		conf.WsURL = singleCsURL
	}

	sink := logrus.New()
	logger := internal.NewLogger(sink)
	logger.SetDebugMode(conf.IsDebug)
	var database *internal.MongoDB
	if conf.Mongo.Enabled {
		database, err = internal.NewMongoClient(conf.Mongo.URI, conf.Mongo.Database, conf.Mongo.User, conf.Mongo.Password)
		if err != nil {
			logger.Error("mongodb setup failed", err)
			database = nil
		} else {
			logger.SetDatabase(database)
		}
	}

	manager := fleet.NewManager(conf, logger)

	go func() {
		if err := metrics.Listen(conf); err != nil {
			logger.Error("metrics server failed", err)
		}
	}()

	if singleCpId != "" {
		runSingle(manager, singleCpId, logger)
		return
	}

	printRoster(manager)

	apiServer := api.NewServer(conf, manager, logger)
	if database != nil {
		apiServer.SetDatabase(database)
	}
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("admin api failed", err)
			os.Exit(1)
		}
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	<-signals
	logger.Debug("shutting down")
	for _, view := range manager.List() {
		if view.Connected {
			_ = manager.Disconnect(view.CpId)
		}
	}
}

// runSingle drives exactly one charger and terminates with the session, the
// way a charge point binary on real hardware would.
func runSingle(manager *fleet.Manager, cpId string, logger *internal.Logger) {
	if _, err := manager.Get(cpId); err != nil {
		fmt.Println("unknown charger:", cpId)
		os.Exit(1)
	}
	if err := manager.Connect(cpId); err != nil {
		fmt.Println("connect failed:", err)
		os.Exit(1)
	}
	logger.FeatureEvent("Run", cpId, "single charger mode, exit on close")

	closed := make(chan struct{})
	manager.OnSessionClose(cpId, func(code int, reason string) {
		close(closed)
	})

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-signals:
		_ = manager.Disconnect(cpId)
	case <-closed:
	}
}

func printRoster(manager *fleet.Manager) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"CP ID", "Vendor", "Model", "Connectors", "Phases"})
	for _, view := range manager.List() {
		t.AppendRow(table.Row{view.CpId, view.Config.Vendor, view.Config.Model,
			view.Config.NumConnectors, view.Config.Phases})
	}
	t.Render()
}
