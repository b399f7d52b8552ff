package commands

import (
	"fmt"
	"io/ioutil"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/denisstrizhkin/network-labs/pkg/arq"
	"github.com/denisstrizhkin/network-labs/pkg/experiment"
	"github.com/denisstrizhkin/network-labs/pkg/transfer"
)

var (
	protocol    = arq.GoBackN
	windowSize  int
	lossRate    float64
	message     string
	messageFile string
	seed        int64
	direct      bool
	printText   bool
)

func init() {
	rootCmd.AddCommand(transferCmd)
	transferCmd.Flags().VarP(&protocol, "protocol", "p", fmt.Sprintf("ARQ variant. One of: %v", arq.Protocols()))
	transferCmd.Flags().IntVarP(&windowSize, "window", "w", experiment.DefaultFixedWindow, "window size in segments")
	transferCmd.Flags().Float64Var(&lossRate, "loss", experiment.DefaultFixedLoss, "drop probability of the link, in [0, 1]")
	transferCmd.Flags().StringVarP(&message, "message", "m", "", "message to send. Defaults to the configured experiment message")
	transferCmd.Flags().StringVarP(&messageFile, "file", "f", "", "read the message from a file")
	transferCmd.Flags().Int64Var(&seed, "seed", 0, "seed of the link drops. Random if 0")
	transferCmd.Flags().BoolVar(&direct, "direct", false, "connect the endpoints without a lossy link")
	transferCmd.Flags().BoolVar(&printText, "print", false, "print the received message")
}

var transferCmd = &cobra.Command{
	Use:   "transfer",
	Short: "Transfers one message and reports the sender efficiency",
	Run: func(_ *cobra.Command, _ []string) {
		msg := message
		switch {
		case messageFile != "":
			raw, err := ioutil.ReadFile(filepath.Clean(messageFile))
			catch(err, "failed to read message file:")
			msg = string(raw)
		case msg == "":
			msg = conf.Message()
		}

		store, err := conf.ResultStore()
		catch(err, "failed to open result store:")
		defer func() {
			if err := store.Close(); err != nil {
				logger.WithError(err).Warn("Failed to close result store")
			}
		}()

		opts := []transfer.Option{transfer.WithLogger(logger)}
		if seed != 0 {
			opts = append(opts, transfer.WithSeed(seed))
		}
		p := transfer.Params{Protocol: protocol, WindowSize: windowSize, Loss: lossRate, Direct: direct}

		res, err := transfer.Run(conf.ARQ, p, msg, opts...)
		if res == nil {
			catch(err, "transfer failed:")
		}

		rec := experiment.NewRecord(res)
		if err := store.Put(rec); err != nil {
			logger.WithError(err).Warn("Failed to store record")
		}

		fmt.Println(rec)
		fmt.Printf("segments: %s retransmissions=%d\n", res.Stats, res.Stats.Retransmissions())
		if !direct {
			fmt.Printf("link: %+v\n", res.Link)
		}
		if printText && err == nil {
			fmt.Println(res.Received)
		}
		catch(err, "transfer failed:")
	},
}
