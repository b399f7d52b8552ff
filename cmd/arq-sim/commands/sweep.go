package commands

import (
	"fmt"
	"net/http"

	"github.com/pkg/profile"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/denisstrizhkin/network-labs/internal/metrics"
	"github.com/denisstrizhkin/network-labs/pkg/experiment"
)

var (
	outDir      string
	profileMode string
	profileDir  string
	metricsAddr string
)

func init() {
	rootCmd.AddCommand(sweepCmd)
	sweepCmd.Flags().StringVarP(&outDir, "out", "o", "report/data", "directory of the .dat files")
	sweepCmd.Flags().StringVar(&profileMode, "profile", "none", "enable profiling. Mode: none or one of: [cpu, mem, mutex, block, trace]")
	sweepCmd.Flags().StringVar(&profileDir, "profile-dir", "./logs/arq-sim", "directory of profile output")
	sweepCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address to serve /metrics and /records on, overrides the config")
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Measures efficiency against loss rate and window size",
	Run: func(_ *cobra.Command, _ []string) {
		defer startProfiler()()

		store, err := conf.ResultStore()
		catch(err, "failed to open result store:")
		defer func() {
			if err := store.Close(); err != nil {
				logger.WithError(err).Warn("Failed to close result store")
			}
		}()

		if metricsAddr == "" {
			metricsAddr = conf.MetricsAddr
		}
		m := metrics.NewPrometheus("arq_sim", nil)
		if metricsAddr != "" {
			go func() {
				logger.Infof("Serving metrics and records on %s", metricsAddr)
				if err := http.ListenAndServe(metricsAddr, experiment.NewAPI(store, promhttp.Handler())); err != nil {
					logger.WithError(err).Error("HTTP server stopped")
				}
			}()
		}

		opts := []experiment.Option{
			experiment.WithRetrier(conf.Retrier().WithLogger(logger)),
			experiment.WithRecorder(m),
			experiment.WithLinkRecorder(m),
			experiment.WithLogger(logger),
		}
		if conf.Experiment.Seed != nil {
			opts = append(opts, experiment.WithSeed(*conf.Experiment.Seed))
		}
		rn := experiment.NewRunner(conf.ARQ, store, opts...)
		msg := conf.Message()
		e := conf.Experiment

		lossRecords, err := rn.LossSweep(e.FixedWindow, e.LossRates, msg)
		catch(err, "loss sweep failed:")
		writeDat(lossRecords, experiment.AxisLoss)

		windowRecords, err := rn.WindowSweep(e.FixedLoss, e.WindowSizes, msg)
		catch(err, "window sweep failed:")
		writeDat(windowRecords, experiment.AxisWindow)

		logger.Info("Data collection complete.")
	},
}

func writeDat(records []*experiment.Record, axis experiment.Axis) {
	for _, r := range records {
		fmt.Println(r)
	}
	paths, err := experiment.WriteDatFiles(outDir, records, axis)
	catch(err, "failed to write data files:")
	for _, p := range paths {
		logger.Infof("Wrote %s", p)
	}
}

func startProfiler() (stop func()) {
	var option func(*profile.Profile)
	switch profileMode {
	case "none", "":
		return func() {}
	case "cpu":
		option = profile.CPUProfile
	case "mem":
		option = profile.MemProfile
	case "mutex":
		option = profile.MutexProfile
	case "block":
		option = profile.BlockProfile
	case "trace":
		option = profile.TraceProfile
	default:
		catch(fmt.Errorf("unknown profile mode %q", profileMode))
	}
	return profile.Start(profile.ProfilePath(profileDir), option, profile.NoShutdownHook).Stop
}
