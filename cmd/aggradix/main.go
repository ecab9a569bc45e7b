/*
 * Copyright (C) 2021 IBM, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	jsoniter "github.com/json-iterator/go"
	"github.com/netobserv/aggradix/pkg/aggradix"
	"github.com/netobserv/aggradix/pkg/config"
	"github.com/netobserv/aggradix/pkg/operational/health"
	"github.com/netobserv/aggradix/pkg/radix"
	"github.com/netobserv/aggradix/pkg/utils"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

var (
	buildVersion       = "unknown"
	buildDate          = "unknown"
	cfgFile            string
	envPrefix          = "AGGRADIX"
	defaultCfgFileName = ".aggradix"
	opts               = &config.Opt
)

// rootCmd represents the root command
var rootCmd = &cobra.Command{
	Use:   "aggradix",
	Short: "Aggregate flow-logs into a bounded prefix table",
	Run: func(_ *cobra.Command, _ []string) {
		run()
	},
}

// initConfig use config file and ENV variables if set.
func initConfig() {
	v := viper.New()

	if cfgFile != "" {
		// Use config file from the flag.
		v.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		if err != nil {
			log.Fatal(err)
		}
		// Search config in home directory with name ".aggradix" (without extension).
		v.AddConfigPath(home)
		v.SetConfigName(defaultCfgFileName)
	}

	// Read environment variables that match prefix
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	// If a config file is found, read it in.
	cfgErr := v.ReadInConfig()

	bindFlags(rootCmd, v)

	// initialize logger
	initLogger()

	if cfgErr != nil {
		log.Errorf("Read config error: %v", cfgErr)
	}
}

func initLogger() {
	ll, err := log.ParseLevel(opts.LogLevel)
	if err != nil {
		ll = log.ErrorLevel
	}
	log.SetLevel(ll)
	log.SetFormatter(&log.TextFormatter{DisableColors: false, FullTimestamp: true, PadLevelText: true, DisableQuote: true})
}

func dumpConfig(opts *config.Options) {
	configAsJSON, err := json.MarshalIndent(opts, "", "    ")
	if err != nil {
		panic(fmt.Sprintf("error dumping config: %v", err))
	}
	fmt.Printf("Using configuration:\n%s\n", configAsJSON)
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if strings.Contains(f.Name, ".") {
			envVarSuffix := strings.ToUpper(strings.ReplaceAll(f.Name, ".", "_"))
			_ = v.BindEnv(f.Name, fmt.Sprintf("%s_%s", envPrefix, envVarSuffix))
		}

		// Apply the viper config value to the flag when the flag is not set and viper has a value
		if !f.Changed && v.IsSet(f.Name) {
			val := v.Get(f.Name)
			switch val.(type) {
			case bool, uint, string, int32, int16, int8, int, uint32, uint64, int64, float64, float32, []string, []int:
				_ = cmd.Flags().Set(f.Name, fmt.Sprintf("%v", val))
			default:
				var jsonNew = jsoniter.ConfigCompatibleWithStandardLibrary
				b, err := jsonNew.Marshal(&val)
				if err != nil {
					log.Fatalf("can't parse flag %s into json with value %v got error %s", f.Name, val, err)
					return
				}
				_ = cmd.Flags().Set(f.Name, string(b))
			}
		}
	})
}

func initFlags() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", fmt.Sprintf("config file (default is $HOME/%s)", defaultCfgFileName))
	rootCmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "error", "Log level: debug, info, warning, error")
	rootCmd.PersistentFlags().StringVar(&opts.Input.Filename, "input.file", "-", "JSON-lines flow records file, \"-\" for stdin")
	rootCmd.PersistentFlags().StringVar(&opts.Input.Seeds, "input.seeds", "", "YAML file of prefixes to pre-populate the table with")
	rootCmd.PersistentFlags().DurationVar(&opts.Report.Interval, "report.interval", 30*time.Second, "interval between aggregate reports")
	rootCmd.PersistentFlags().IntVar(&opts.Report.Top, "report.top", 10, "number of aggregates per report")
	rootCmd.PersistentFlags().StringVar(&opts.Health.Port, "health.port", "8080", "Health server port")
	rootCmd.PersistentFlags().StringVar(&opts.Metrics.Address, "metrics.address", "", "Prometheus server address")
	rootCmd.PersistentFlags().IntVar(&opts.Metrics.Port, "metrics.port", 9090, "Prometheus server port")
	rootCmd.PersistentFlags().StringVar(&opts.Aggradix.Root, "aggradix.root", "::/0", "prefix bounding the monitored address space")
	rootCmd.PersistentFlags().IntVar(&opts.Aggradix.MaxNodes, "aggradix.maxNodes", 1024, "node pool capacity")
	rootCmd.PersistentFlags().Uint64Var(&opts.Aggradix.HotMinimum, "aggradix.hotMinimum", 0, "floor of the hot-subtree threshold")
	rootCmd.PersistentFlags().Float64Var(&opts.Aggradix.HotFraction, "aggradix.hotFraction", 0, "fraction of observed packets above which a subtree is hot")
	rootCmd.PersistentFlags().IntVar(&opts.Aggradix.ReclaimRetries, "aggradix.reclaimRetries", 0, "hot victims a reclaim pass may skip before giving up")
}

func main() {
	// Initialize flags (command line parameters)
	initFlags()

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// flowRecord is the minimal shape ingested from JSON-lines input; extra
// fields are ignored.
type flowRecord struct {
	SrcAddr string `json:"SrcAddr"`
	DstAddr string `json:"DstAddr"`
}

type seedList struct {
	Prefixes []string `yaml:"prefixes"`
}

func seedTable(table *aggradix.Table, filename string) error {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	var seeds seedList
	if err := yaml.Unmarshal(raw, &seeds); err != nil {
		return err
	}
	for _, s := range seeds.Prefixes {
		p, err := radix.ParsePrefix(s)
		if err != nil {
			return err
		}
		if _, err := table.FindOrInsert(p.Network(), p.Bitlen()); err != nil {
			return err
		}
	}
	log.Infof("seeded %d prefixes from %s", len(seeds.Prefixes), filename)
	return nil
}

func report(table *aggradix.Table, top int) {
	records := table.Records()
	sort.Slice(records, func(i, j int) bool {
		var ti, tj uint64
		for _, c := range records[i].Data {
			ti += c
		}
		for _, c := range records[j].Data {
			tj += c
		}
		return ti > tj
	})
	if top < len(records) {
		records = records[:top]
	}
	log.Infof("aggregates: %d packets across %d nodes (%d free)",
		table.PacketCount(), table.AllocatedNodes(), table.FreeNodes())
	for _, rec := range records {
		var total uint64
		for _, c := range rec.Data {
			total += c
		}
		log.Infof("  %s: %d packets from %d sources", rec.Prefix, total, len(rec.Data))
	}
}

func ingest(table *aggradix.Table, in io.Reader, exitChan <-chan struct{}, clk clock.Clock) {
	records := make(chan flowRecord)
	go func() {
		defer close(records)
		decoder := jsoniter.ConfigCompatibleWithStandardLibrary.NewDecoder(in)
		for {
			var rec flowRecord
			if err := decoder.Decode(&rec); err != nil {
				if err != io.EOF {
					log.Errorf("decoding flow record: %v", err)
				}
				return
			}
			records <- rec
		}
	}()

	ticker := clk.Ticker(opts.Report.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-exitChan:
			log.Debugf("exiting ingest loop")
			return
		case <-ticker.C:
			report(table, opts.Report.Top)
		case rec, ok := <-records:
			if !ok {
				return
			}
			if rec.DstAddr == "" {
				continue
			}
			if _, err := table.Observe(rec.SrcAddr, rec.DstAddr); err != nil {
				log.WithError(err).Debugf("dropping record for %s", rec.DstAddr)
			}
		}
	}
}

func run() {
	// Initial log message
	fmt.Printf("Starting %s:\n=====\nBuild version: %s\nBuild date: %s\n\n", filepath.Base(os.Args[0]), buildVersion, buildDate)

	// Dump configuration
	dumpConfig(opts)

	table, err := aggradix.New(opts.Aggradix)
	if err != nil {
		log.Errorf("error in table configuration: %v", err)
		os.Exit(1)
	}

	if opts.Input.Seeds != "" {
		if err := seedTable(table, opts.Input.Seeds); err != nil {
			log.Errorf("error seeding table: %v", err)
			os.Exit(1)
		}
	}

	// Setup (threads) exit manager
	utils.SetupElegantExit()
	exitChan := make(chan struct{})
	utils.RegisterExitChannel(exitChan)

	promServer := &http.Server{}
	go func() {
		_ = utils.StartPromServer(&opts.Metrics, promServer)
	}()

	// Start health report server
	health.NewHealthServer(opts.Health.Port, table.Err)

	in := os.Stdin
	if opts.Input.Filename != "" && opts.Input.Filename != "-" {
		f, err := os.Open(opts.Input.Filename)
		if err != nil {
			log.Errorf("error opening input: %v", err)
			os.Exit(1)
		}
		defer f.Close()
		in = f
	}

	ingest(table, in, exitChan, clock.New())
	report(table, opts.Report.Top)

	_ = promServer.Shutdown(context.Background())

	// Give all threads a chance to exit and then exit the process
	time.Sleep(time.Second)
	log.Debugf("exiting main run")
	os.Exit(0)
}
