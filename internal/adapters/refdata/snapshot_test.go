package refdata_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cadencefin/riskpipe/internal/adapters/refdata"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMemorySnapshot(t *testing.T) {
	ctx := context.Background()

	jan := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	mar := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
	jun := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)

	values := []refdata.Value{
		{Geography: "US-CA", At: mar, Metrics: map[string]float64{"unemployment_rate": 5.1}},
		{Geography: "US-CA", At: jan, Metrics: map[string]float64{"unemployment_rate": 4.8}},
		{Geography: "US-CA", At: jun, Metrics: map[string]float64{"unemployment_rate": 5.6}},
		{Geography: "US-TX", At: jan, Metrics: map[string]float64{"unemployment_rate": 3.9}},
	}

	Convey("Given a snapshot over unsorted observations", t, func() {
		snap := refdata.NewMemorySnapshot(values, refdata.WithID("macro-2024"))

		Convey("When looking up exactly on an observation date", func() {
			v, ok, err := snap.AsOf(ctx, "US-CA", mar)

			Convey("Then the observation at that date is returned", func() {
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(v.Metrics["unemployment_rate"], ShouldEqual, 5.1)
			})
		})

		Convey("When looking up between observations", func() {
			v, ok, err := snap.AsOf(ctx, "US-CA", mar.AddDate(0, 1, 0))

			Convey("Then the nearest prior observation wins, never a later one", func() {
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(v.At, ShouldEqual, mar)
				So(v.Metrics["unemployment_rate"], ShouldEqual, 5.1)
			})
		})

		Convey("When looking up before the first observation", func() {
			_, ok, err := snap.AsOf(ctx, "US-CA", jan.AddDate(0, -1, 0))

			Convey("Then no value is found rather than a future one", func() {
				So(err, ShouldBeNil)
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When looking up an unknown geography", func() {
			_, ok, err := snap.AsOf(ctx, "US-ZZ", jun)

			Convey("Then no value is found", func() {
				So(err, ShouldBeNil)
				So(ok, ShouldBeFalse)
			})
		})

		Convey("Then the snapshot carries its configured identifier", func() {
			So(snap.ID(), ShouldEqual, "macro-2024")
		})
	})

	Convey("Given a cancelled context", t, func() {
		snap := refdata.NewMemorySnapshot(values)
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		Convey("When looking up", func() {
			_, _, err := snap.AsOf(cancelled, "US-CA", jun)

			Convey("Then the lookup fails", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}

func TestLoadYAML(t *testing.T) {
	ctx := context.Background()

	Convey("Given a reference data YAML file", t, func() {
		dir := t.TempDir()
		path := filepath.Join(dir, "refdata.yaml")
		content := `id: macro-2024-q2
values:
  - geography: US-CA
    at: 2024-05-31T00:00:00Z
    metrics:
      unemployment_rate: 5.2
      house_price_index: 312.4
  - geography: US-TX
    at: 2024-05-31T00:00:00Z
    metrics:
      unemployment_rate: 4.0
`
		So(os.WriteFile(path, []byte(content), 0o600), ShouldBeNil)

		Convey("When loading it", func() {
			snap, err := refdata.LoadYAML(ctx, path)

			Convey("Then the snapshot serves the observations with the file's id", func() {
				So(err, ShouldBeNil)
				So(snap.ID(), ShouldEqual, "macro-2024-q2")

				v, ok, err := snap.AsOf(ctx, "US-CA", time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC))
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(v.Metrics["unemployment_rate"], ShouldEqual, 5.2)
				So(v.Metrics["house_price_index"], ShouldEqual, 312.4)
			})
		})
	})

	Convey("Given a missing file", t, func() {
		Convey("When loading it", func() {
			_, err := refdata.LoadYAML(ctx, filepath.Join(t.TempDir(), "absent.yaml"))

			Convey("Then loading fails with ErrLoadSnapshot", func() {
				So(err, ShouldWrap, refdata.ErrLoadSnapshot)
			})
		})
	})

	Convey("Given a file with an unparseable date", t, func() {
		dir := t.TempDir()
		path := filepath.Join(dir, "bad.yaml")
		content := `values:
  - geography: US-CA
    at: not-a-date
    metrics:
      unemployment_rate: 5.2
`
		So(os.WriteFile(path, []byte(content), 0o600), ShouldBeNil)

		Convey("When loading it", func() {
			_, err := refdata.LoadYAML(ctx, path)

			Convey("Then loading fails with ErrLoadSnapshot", func() {
				So(err, ShouldWrap, refdata.ErrLoadSnapshot)
			})
		})
	})
}
