// Package graph turns folded series into gnuplot charts and an HTML page
// that indexes them.
package graph

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/nicktill/tracedump/pkg/series"
)

// Emitter renders one series to <basePath>.png.
type Emitter interface {
	Emit(ctx context.Context, name, basePath string, rows []series.Row) error
}

// WriteData writes the plot data of rows, one line per second:
//
//	offset readB readBavg -writeB -writeBavg readP readPavg -writeP -writePavg
func WriteData(w io.Writer, rows []series.Row) error {
	bw := bufio.NewWriter(w)
	for _, r := range rows {
		line := strconv.FormatInt(r.Offset, 10) + " " +
			strconv.FormatInt(r.ReadBytes, 10) + " " + formatFloat(r.ReadBytesAvg) + " " +
			strconv.FormatInt(r.WriteBytes, 10) + " " + formatFloat(r.WriteBytesAvg) + " " +
			strconv.FormatInt(r.ReadPackets, 10) + " " + formatFloat(r.ReadPacketsAvg) + " " +
			strconv.FormatInt(r.WritePackets, 10) + " " + formatFloat(r.WritePacketsAvg) + "\n"
		if _, err := bw.WriteString(line); err != nil {
			return fmt.Errorf("failed to write data row %d: %w", r.Offset, err)
		}
	}
	return bw.Flush()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

var fileNameReplacer = strings.NewReplacer("[", "_", "]", "_", ":", "")

// FileName derives the image base name of an endpoint key.
func FileName(key string) string {
	return fileNameReplacer.Replace(key)
}
