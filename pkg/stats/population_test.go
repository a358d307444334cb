package stats

import (
	"math"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestPercentile(t *testing.T) {
	Convey("Percentile", t, func() {
		pop := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

		Convey("counts values at or below", func() {
			So(Percentile(pop, 7), ShouldEqual, 70.0)
			So(Percentile(pop, 10), ShouldEqual, 100.0)
			So(Percentile(pop, 0.5), ShouldEqual, 0.0)
		})
		Convey("ties count as below", func() {
			So(Percentile([]float64{3, 3, 3, 9}, 3), ShouldEqual, 75.0)
		})
		Convey("a tiny population or NaN gives zero", func() {
			So(Percentile([]float64{4}, 4), ShouldEqual, 0.0)
			So(Percentile(pop, math.NaN()), ShouldEqual, 0.0)
		})
	})
}

func TestReduce(t *testing.T) {
	Convey("Reduce", t, func() {
		values := []float64{4, 1, 7}

		Convey("mean, sum and median", func() {
			mean, err := Reduce(values, AggMean)
			So(err, ShouldBeNil)
			So(mean, ShouldAlmostEqual, 4.0)

			sum, _ := Reduce(values, AggSum)
			So(sum, ShouldEqual, 12.0)

			median, _ := Reduce(values, AggMedian)
			So(median, ShouldEqual, 4.0)
			So(values, ShouldResemble, []float64{4, 1, 7})
		})
		Convey("an unknown aggregation is an error", func() {
			_, err := Reduce(values, "max")
			So(err, ShouldNotBeNil)
		})
	})
}

func TestPearson(t *testing.T) {
	Convey("Pearson", t, func() {
		Convey("perfect positive and negative relations", func() {
			r, ok := Pearson([]float64{1, 2, 3}, []float64{2, 4, 6})
			So(ok, ShouldBeTrue)
			So(r, ShouldAlmostEqual, 1.0)

			r, ok = Pearson([]float64{1, 2, 3}, []float64{3, 2, 1})
			So(ok, ShouldBeTrue)
			So(r, ShouldAlmostEqual, -1.0)
		})
		Convey("a constant side has no correlation", func() {
			_, ok := Pearson([]float64{1, 2, 3}, []float64{5, 5, 5})
			So(ok, ShouldBeFalse)
		})
		Convey("too few or mismatched pairs", func() {
			_, ok := Pearson([]float64{1}, []float64{1})
			So(ok, ShouldBeFalse)
			_, ok = Pearson([]float64{1, 2}, []float64{1})
			So(ok, ShouldBeFalse)
		})
	})
}

func TestFitLine(t *testing.T) {
	Convey("FitLine", t, func() {
		Convey("recovers an exact line", func() {
			fit, ok := FitLine([]float64{0, 1, 2, 3}, []float64{1, 3, 5, 7})
			So(ok, ShouldBeTrue)
			So(fit.Slope, ShouldAlmostEqual, 2.0)
			So(fit.Intercept, ShouldAlmostEqual, 1.0)
		})
		Convey("vertical data cannot be fitted", func() {
			_, ok := FitLine([]float64{2, 2}, []float64{1, 5})
			So(ok, ShouldBeFalse)
		})
	})
}
