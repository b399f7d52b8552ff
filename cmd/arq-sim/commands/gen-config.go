package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/denisstrizhkin/network-labs/pkg/experiment"
	"github.com/denisstrizhkin/network-labs/pkg/util/pathutil"
)

var (
	output        string
	replace       bool
	storeType     string
	configLocType = pathutil.WorkingDirLoc
)

func init() {
	rootCmd.AddCommand(genConfigCmd)
	genConfigCmd.Flags().StringVarP(&output, "output", "o", "", "path of output config file. Uses default of 'type' flag if unspecified.")
	genConfigCmd.Flags().BoolVarP(&replace, "replace", "r", false, "whether to allow rewrite of a file that already exists.")
	genConfigCmd.Flags().VarP(&configLocType, "type", "m", fmt.Sprintf("config generation mode. Valid values: %v", pathutil.AllConfigLocationTypes()))
	genConfigCmd.Flags().StringVarP(&storeType, "store", "s", experiment.StoreBoltDB,
		fmt.Sprintf("result store. One of: %v", []string{experiment.StoreMemory, experiment.StoreFile, experiment.StoreBoltDB}))
}

var genConfigCmd = &cobra.Command{
	Use:   "gen-config",
	Short: "generates a configuration file",
	PreRun: func(_ *cobra.Command, _ []string) {
		if output == "" {
			var err error
			output, err = pathutil.SimDefaults().Get(configLocType)
			catch(err)
			logger.Infof("'output,o' flag is empty, using default path: %s", output)
		}
		var err error
		if output, err = filepath.Abs(output); err != nil {
			logger.WithError(err).Fatalln("invalid output provided")
		}
	},
	Run: func(_ *cobra.Command, _ []string) {
		c := experiment.DefaultConfig()
		c.Store.Type = storeType

		dir := filepath.Dir(output)
		switch storeType {
		case experiment.StoreFile:
			c.Store.Location = filepath.Join(dir, "records")
		case experiment.StoreBoltDB:
			c.Store.Location = filepath.Join(dir, "records.db")
		}
		catch(c.Validate(), "invalid config:")
		catch(pathutil.WriteJSONConfig(c, output, replace), "failed to write config:")
	},
}
