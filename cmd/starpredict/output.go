package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/star/starpredict/internal/observe"
	"github.com/star/starpredict/internal/passes"
	"github.com/star/starpredict/internal/visibility"
)

const timeLayout = "2006-01-02 15:04:05"

// emit writes v as indented JSON or, for table output, through fill.
func (a *app) emit(cmd *cobra.Command, v any, fill func(*table)) error {
	out := cmd.OutOrStdout()
	if a.output == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	t := newTable(out)
	fill(t)
	return t.Flush()
}

// table is a tabwriter with printers for each result type.
type table struct {
	*tabwriter.Writer
}

func newTable(w io.Writer) *table {
	return &table{tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)}
}

func (t *table) observations(list []observe.Observation) {
	if len(list) == 0 {
		fmt.Fprintln(t, "no samples")
		return
	}
	withLook := list[0].Look != nil
	if withLook {
		fmt.Fprintln(t, "TIME (UTC)\tLAT\tLON\tALT (km)\tSUNLIT\tAZ\tEL\tRANGE (km)\tDOPPLER")
	} else {
		fmt.Fprintln(t, "TIME (UTC)\tLAT\tLON\tALT (km)\tSUNLIT\tFOOTPRINT (km)")
	}
	for _, o := range list {
		fmt.Fprintf(t, "%s\t%.4f\t%.4f\t%.1f\t%v", o.Time.Format(timeLayout), o.Latitude, o.Longitude, o.Altitude, o.Sunlit)
		if withLook && o.Look != nil {
			fmt.Fprintf(t, "\t%.1f\t%.1f\t%.1f\t%.9f\n", o.Look.Azimuth, o.Look.Elevation, o.Look.Range, o.Look.Doppler)
		} else {
			fmt.Fprintf(t, "\t%.0f\n", o.Footprint)
		}
	}
}

func (t *table) transits(list []passes.Transit) {
	if len(list) == 0 {
		fmt.Fprintln(t, "no transits")
		return
	}
	fmt.Fprintln(t, "START (UTC)\tEND (UTC)\tDURATION\tMAX EL\tAPEX AZ\tAZ RANGE")
	for _, tr := range list {
		fmt.Fprintf(t, "%s\t%s\t%s\t%.0f\t%.0f\t%.0f-%.0f\n",
			tr.Start.Format(timeLayout), tr.End.Format(timeLayout), tr.Duration.Round(time.Second),
			tr.MaxElevation, tr.ApexAzimuth, tr.MinAzimuth, tr.MaxAzimuth)
	}
}

func (t *table) windows(list []visibility.Window) {
	if len(list) == 0 {
		fmt.Fprintln(t, "no windows")
		return
	}
	fmt.Fprintln(t, "START (UTC)\tEND (UTC)\tDURATION")
	for _, w := range list {
		fmt.Fprintf(t, "%s\t%s\t%s\n", w.Start.Format(timeLayout), w.End.Format(timeLayout), w.Duration().Round(time.Second))
	}
}

func (t *table) batch(results []passes.SatelliteTransits) {
	fmt.Fprintln(t, "NORAD\tNAME\tSTART (UTC)\tDURATION\tMAX EL\tNOTE")
	for _, r := range results {
		if r.Error != "" || len(r.Transits) == 0 {
			note := r.Error
			if note == "" {
				note = "no transits"
			}
			fmt.Fprintf(t, "%d\t%s\t-\t-\t-\t%s\n", r.NORADID, r.Name, note)
			continue
		}
		for _, tr := range r.Transits {
			fmt.Fprintf(t, "%d\t%s\t%s\t%s\t%.0f\t\n",
				r.NORADID, r.Name, tr.Start.Format(timeLayout), tr.Duration.Round(time.Second), tr.MaxElevation)
		}
	}
}

func (t *table) period(p periodResult) {
	fmt.Fprintln(t, "NORAD\tPERIOD\tPERIOD (s)\tSEMI-MAJOR AXIS (km)")
	id := "-"
	if p.NORADID > 0 {
		id = fmt.Sprint(p.NORADID)
	}
	fmt.Fprintf(t, "%s\t%s\t%.1f\t%.1f\n", id, time.Duration(p.PeriodSeconds*float64(time.Second)).Round(time.Second), p.PeriodSeconds, p.SemiMajorAxis)
}
