package experiment

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/denisstrizhkin/network-labs/pkg/arq"
	"github.com/denisstrizhkin/network-labs/pkg/util/pathutil"
)

// Axis is the swept parameter a data file is plotted against.
type Axis string

// Axes.
const (
	AxisLoss   Axis = "loss"
	AxisWindow Axis = "window"
)

func (a Axis) value(r *Record) string {
	if a == AxisWindow {
		return strconv.Itoa(r.WindowSize)
	}
	return strconv.FormatFloat(r.Loss, 'f', -1, 64)
}

// DatFileName returns the data file name of a protocol and axis, for example
// "gbn_vs_loss.dat".
func DatFileName(p arq.Protocol, axis Axis) string {
	return fmt.Sprintf("%s_vs_%s.dat", p, axis)
}

// WriteDat writes one "x efficiency" line per record, in record order.
func WriteDat(w io.Writer, records []*Record, axis Axis) error {
	bw := bufio.NewWriter(w)
	for _, r := range records {
		eff := strconv.FormatFloat(r.Efficiency, 'f', -1, 64)
		if _, err := fmt.Fprintf(bw, "%s %s\n", axis.value(r), eff); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteDatFiles splits records by protocol and writes one data file per
// protocol into dir. It returns the written paths.
func WriteDatFiles(dir string, records []*Record, axis Axis) ([]string, error) {
	dir, err := pathutil.EnsureDir(dir)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, p := range arq.Protocols() {
		var rs []*Record
		for _, r := range records {
			if r.Protocol == p {
				rs = append(rs, r)
			}
		}
		if len(rs) == 0 {
			continue
		}

		path := filepath.Join(dir, DatFileName(p, axis))
		f, err := os.Create(path)
		if err != nil {
			return paths, err
		}
		err = WriteDat(f, rs, axis)
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}
