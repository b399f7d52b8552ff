package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/denisstrizhkin/network-labs/pkg/arq"
	"github.com/denisstrizhkin/network-labs/pkg/experiment"
)

var (
	filterProtocol string
	failedOnly     bool
)

func init() {
	rootCmd.AddCommand(resultsCmd)
	resultsCmd.Flags().StringVarP(&filterProtocol, "protocol", "p", "", "only show records of this protocol")
	resultsCmd.Flags().BoolVar(&failedOnly, "failed", false, "only show failed transfers")
}

var resultsCmd = &cobra.Command{
	Use:   "results [record-id]",
	Short: "Lists stored transfer records",
	Args:  cobra.MaximumNArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		store, err := conf.ResultStore()
		catch(err, "failed to open result store:")
		defer func() {
			if err := store.Close(); err != nil {
				logger.WithError(err).Warn("Failed to close result store")
			}
		}()

		var records []*experiment.Record
		if len(args) == 1 {
			rec, err := store.Get(parseUUID("record-id", args[0]))
			catch(err)
			records = append(records, rec)
		} else {
			records, err = store.All()
			catch(err, "failed to list records:")
		}

		var proto arq.Protocol
		if filterProtocol != "" {
			proto, err = arq.ParseProtocol(filterProtocol)
			catch(err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, err = fmt.Fprintln(w, "id\tprotocol\twindow\tloss\tsent\ttotal\tefficiency\tattempts\tcreated\terror")
		catch(err, "failed to write:")
		for _, r := range records {
			if proto != "" && r.Protocol != proto {
				continue
			}
			if failedOnly && !r.Failed() {
				continue
			}
			_, err = fmt.Fprintf(w, "%s\t%s\t%d\t%.2f\t%d\t%d\t%.4f\t%d\t%s\t%s\n",
				r.ID, r.Protocol, r.WindowSize, r.Loss, r.Sent, r.Total, r.Efficiency,
				r.Attempts, r.CreatedAt.Format("2006-01-02 15:04:05"), r.Err)
			catch(err, "failed to write:")
		}
		catch(w.Flush(), "failed to write:")
	},
}
