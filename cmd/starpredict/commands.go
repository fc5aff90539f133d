package main

import (
	"math"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/star/starpredict/internal/observe"
	"github.com/star/starpredict/internal/passes"
	"github.com/star/starpredict/internal/propagation"
	"github.com/star/starpredict/internal/visibility"
)

// parseInstant reads an RFC 3339 timestamp or Unix seconds; "" and "now"
// mean the current time.
func parseInstant(s string) (time.Time, error) {
	if s == "" || s == "now" {
		return time.Now().UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	sec, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(sec) || math.IsInf(sec, 0) {
		return time.Time{}, errors.Errorf("time %q is neither RFC 3339 nor Unix seconds", s)
	}
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC(), nil
}

// interval reads --start and --end; end defaults to start plus def.
func interval(startFlag, endFlag string, def time.Duration) (time.Time, time.Time, error) {
	start, err := parseInstant(startFlag)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end := start.Add(def)
	if endFlag != "" {
		if end, err = parseInstant(endFlag); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, errors.New("--end must be after --start")
	}
	return start, end, nil
}

// observerFlags are the ground-site flags shared by several commands.
type observerFlags struct {
	lat, lon, alt float64
}

func (f *observerFlags) register(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&f.lat, "lat", 0, "observer latitude in degrees")
	cmd.Flags().Float64Var(&f.lon, "lon", 0, "observer longitude in degrees")
	cmd.Flags().Float64Var(&f.alt, "alt", 0, "observer altitude in km")
}

// location returns the observer, or nil when neither --lat nor --lon was set
// and required is false.
func (f *observerFlags) location(cmd *cobra.Command, required bool) (*observe.Location, error) {
	set := cmd.Flags().Changed("lat") || cmd.Flags().Changed("lon")
	if !set {
		if required {
			return nil, errors.New("--lat and --lon are required")
		}
		return nil, nil
	}
	if f.lat < -90 || f.lat > 90 {
		return nil, errors.Errorf("--lat %v outside [-90, 90]", f.lat)
	}
	if f.lon < -180 || f.lon > 180 {
		return nil, errors.Errorf("--lon %v outside [-180, 180]", f.lon)
	}
	return &observe.Location{Latitude: f.lat, Longitude: f.lon, Altitude: f.alt}, nil
}

func (a *app) positionCmd() *cobra.Command {
	var (
		norad int
		at    string
		obs   observerFlags
	)
	cmd := &cobra.Command{
		Use:   "position",
		Short: "Sample a satellite at one instant",
		Example: `  starpredict position --tle-file stations.tle --norad 25544 --time 2025-02-14T12:00:00Z
  starpredict position --norad 25544 --lat 51.5 --lon -0.12 -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, err := parseInstant(at)
			if err != nil {
				return err
			}
			loc, err := obs.location(cmd, false)
			if err != nil {
				return err
			}
			o, err := a.orbit(cmd.Context(), norad)
			if err != nil {
				return err
			}
			sample, err := a.sampler().Position(o, loc, t)
			if err != nil {
				return err
			}
			return a.emit(cmd, sample, func(w *table) { w.observations([]observe.Observation{sample}) })
		},
	}
	cmd.Flags().IntVar(&norad, "norad", 0, "catalog number")
	cmd.Flags().StringVar(&at, "time", "", "instant (RFC 3339 or Unix seconds, default now)")
	obs.register(cmd)
	return cmd
}

func (a *app) ephemerisCmd() *cobra.Command {
	var (
		norad      int
		start, end string
		step       time.Duration
		obs        observerFlags
	)
	cmd := &cobra.Command{
		Use:   "ephemeris",
		Short: "Sample a satellite at a fixed interval",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			from, to, err := interval(start, end, 90*time.Minute)
			if err != nil {
				return err
			}
			loc, err := obs.location(cmd, false)
			if err != nil {
				return err
			}
			o, err := a.orbit(cmd.Context(), norad)
			if err != nil {
				return err
			}
			samples, err := a.sampler().Ephemeris(o, loc, from, to, step)
			if err != nil {
				return err
			}
			return a.emit(cmd, samples, func(w *table) { w.observations(samples) })
		},
	}
	cmd.Flags().IntVar(&norad, "norad", 0, "catalog number")
	cmd.Flags().StringVar(&start, "start", "", "first sample (default now)")
	cmd.Flags().StringVar(&end, "end", "", "end of the interval, exclusive (default start + 90m)")
	cmd.Flags().DurationVar(&step, "interval", time.Minute, "sampling interval")
	obs.register(cmd)
	return cmd
}

func (a *app) transitsCmd() *cobra.Command {
	var (
		norad       int
		start, end  string
		minEl       float64
		maxTransits int
		obs         observerFlags
	)
	cmd := &cobra.Command{
		Use:   "transits",
		Short: "List the passes of a satellite over an observer",
		Example: `  starpredict transits --norad 25544 --lat 40.7 --lon -74 --start 2025-02-14T12:00:00Z --end 2025-02-15T12:00:00Z`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			from, to, err := interval(start, end, 24*time.Hour)
			if err != nil {
				return err
			}
			loc, err := obs.location(cmd, true)
			if err != nil {
				return err
			}
			o, err := a.orbit(cmd.Context(), norad)
			if err != nil {
				return err
			}
			if o.IsGeostationary() {
				return errors.Wrapf(passes.ErrGeostationary, "NORAD %d, use windows instead", norad)
			}
			if err := o.Validate(&loc.Latitude, from); err != nil {
				return err
			}
			list := a.scanner().Transits(o, *loc, from, to, minEl, maxTransits)
			return a.emit(cmd, list, func(w *table) { w.transits(list) })
		},
	}
	cmd.Flags().IntVar(&norad, "norad", 0, "catalog number")
	cmd.Flags().StringVar(&start, "start", "", "start of the search (default now)")
	cmd.Flags().StringVar(&end, "end", "", "end of the search (default start + 24h)")
	cmd.Flags().Float64Var(&minEl, "min-elevation", 0, "culmination threshold in degrees (0 = 4)")
	cmd.Flags().IntVar(&maxTransits, "max-transits", 0, "stop after this many passes (0 = no limit)")
	obs.register(cmd)
	return cmd
}

func (a *app) windowsCmd() *cobra.Command {
	var (
		norad      int
		start, end string
		obs        observerFlags
	)
	cmd := &cobra.Command{
		Use:   "windows",
		Short: "List the intervals a satellite is above an observer's horizon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			from, to, err := interval(start, end, 24*time.Hour)
			if err != nil {
				return err
			}
			loc, err := obs.location(cmd, true)
			if err != nil {
				return err
			}
			o, err := a.orbit(cmd.Context(), norad)
			if err != nil {
				return err
			}
			if err := o.Validate(&loc.Latitude, from); err != nil {
				return err
			}
			list := a.scanner().GroundWindows(o, *loc, from, to)
			return a.emit(cmd, list, func(w *table) { w.windows(list) })
		},
	}
	cmd.Flags().IntVar(&norad, "norad", 0, "catalog number")
	cmd.Flags().StringVar(&start, "start", "", "start of the search (default now)")
	cmd.Flags().StringVar(&end, "end", "", "end of the search (default start + 24h)")
	obs.register(cmd)
	return cmd
}

func (a *app) passesCmd() *cobra.Command {
	var (
		ids         []int
		start, end  string
		minEl       float64
		maxTransits int
		obs         observerFlags
	)
	cmd := &cobra.Command{
		Use:   "passes",
		Short: "List passes over an observer for many satellites at once",
		Long:  "Lists transits for every satellite given with --norad, or for the whole catalog when none is given.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			from, to, err := interval(start, end, 24*time.Hour)
			if err != nil {
				return err
			}
			loc, err := obs.location(cmd, true)
			if err != nil {
				return err
			}
			cat, err := a.catalog(cmd.Context())
			if err != nil {
				return err
			}

			var orbits []*propagation.Orbit
			if len(ids) == 0 {
				if orbits, err = cat.Orbits(); err != nil {
					return err
				}
			}
			for _, id := range ids {
				o, err := cat.Orbit(id)
				if err != nil {
					return err
				}
				orbits = append(orbits, o)
			}

			results := a.scanner().PredictAll(cmd.Context(), passes.Request{
				Location:     *loc,
				Orbits:       orbits,
				Start:        from,
				End:          to,
				MinElevation: minEl,
				MaxTransits:  maxTransits,
			})
			return a.emit(cmd, results, func(w *table) { w.batch(results) })
		},
	}
	cmd.Flags().IntSliceVar(&ids, "norad", nil, "catalog numbers (default the whole catalog)")
	cmd.Flags().StringVar(&start, "start", "", "start of the search (default now)")
	cmd.Flags().StringVar(&end, "end", "", "end of the search (default start + 24h)")
	cmd.Flags().Float64Var(&minEl, "min-elevation", 0, "culmination threshold in degrees (0 = 4)")
	cmd.Flags().IntVar(&maxTransits, "max-transits", 0, "passes per satellite (0 = no limit)")
	obs.register(cmd)
	return cmd
}

func (a *app) satvisCmd() *cobra.Command {
	var (
		first, second int
		start, end    string
		step          time.Duration
	)
	cmd := &cobra.Command{
		Use:   "satvis",
		Short: "List the intervals two satellites have line of sight past the Earth",
		Example: `  starpredict satvis --a 25544 --b 41866 --start 2025-02-14T12:00:00Z --end 2025-02-14T18:00:00Z`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			from, to, err := interval(start, end, 24*time.Hour)
			if err != nil {
				return err
			}
			if first <= 0 || second <= 0 {
				return errors.New("--a and --b are required")
			}
			cat, err := a.catalog(cmd.Context())
			if err != nil {
				return err
			}
			oa, err := cat.Orbit(first)
			if err != nil {
				return err
			}
			ob, err := cat.Orbit(second)
			if err != nil {
				return err
			}
			list, err := a.visibility().Windows(oa, ob, from, to, step)
			if err != nil {
				return err
			}
			return a.emit(cmd, list, func(w *table) { w.windows(list) })
		},
	}
	cmd.Flags().IntVar(&first, "a", 0, "first catalog number")
	cmd.Flags().IntVar(&second, "b", 0, "second catalog number")
	cmd.Flags().StringVar(&start, "start", "", "start of the search (default now)")
	cmd.Flags().StringVar(&end, "end", "", "end of the search (default start + 24h)")
	cmd.Flags().DurationVar(&step, "step", visibility.DefaultStep, "nominal step while in view")
	return cmd
}

// periodResult is the period command's output.
type periodResult struct {
	NORADID       int     `json:"norad_id,omitempty"`
	PeriodSeconds float64 `json:"period_seconds"`
	SemiMajorAxis float64 `json:"semi_major_axis_km"`
}

func (a *app) periodCmd() *cobra.Command {
	var (
		norad  int
		radius float64
	)
	cmd := &cobra.Command{
		Use:   "period",
		Short: "Print the orbital period of a satellite or of a circular orbit",
		Example: `  starpredict period --norad 25544
  starpredict period --radius 42164`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var res periodResult
			switch {
			case cmd.Flags().Changed("radius"):
				if radius <= 0 {
					return errors.Errorf("--radius must be positive, got %v", radius)
				}
				res = periodResult{PeriodSeconds: propagation.PeriodFromRadius(radius).Seconds(), SemiMajorAxis: radius}
			default:
				o, err := a.orbit(cmd.Context(), norad)
				if err != nil {
					return err
				}
				res = periodResult{NORADID: norad, PeriodSeconds: o.Period().Seconds(), SemiMajorAxis: o.SemiMajorAxis()}
			}
			return a.emit(cmd, res, func(w *table) { w.period(res) })
		},
	}
	cmd.Flags().IntVar(&norad, "norad", 0, "catalog number")
	cmd.Flags().Float64Var(&radius, "radius", 0, "orbit radius or semi-major axis in km, instead of --norad")
	return cmd
}
