package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/hpungsan/uartscope/internal/uart"
)

var csvHeader = []string{
	"index", "start-time", "end-time", "event?", "event-type",
	"RxD event", "TxD event", "RxD data", "TxD data", "error",
}

func writeCSV(w io.Writer, r *Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	for i := 0; i < r.Log.Len(); i++ {
		s := r.Log.At(i)
		row := make([]string, len(csvHeader))
		row[0] = strconv.Itoa(i)
		row[1] = DisplayTime(s.Start, r.SampleRate)
		row[2] = DisplayTime(s.End, r.SampleRate)
		row[3] = strconv.FormatBool(s.IsEvent())

		switch {
		case s.IsEvent() && s.Scope == uart.ScopeBoth:
			row[4] = s.Event
		case s.IsEvent() && s.Scope == uart.ScopeRx:
			row[5] = s.Event
		case s.IsEvent() && s.Scope == uart.ScopeTx:
			row[6] = s.Event
		case s.IsData() && s.Scope == uart.ScopeRx:
			row[7] = strconv.Itoa(s.Value)
		case s.IsData() && s.Scope == uart.ScopeTx:
			row[8] = strconv.Itoa(s.Value)
		}
		row[9] = string(s.Error)

		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
