package logger

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLoggerInit(t *testing.T) {
	Convey("Given the global logger", t, func() {
		Convey("When initialized with defaults", func() {
			So(Init(), ShouldBeNil)
			So(Get(), ShouldNotBeNil)
			So(Sync(), ShouldBeNil)
		})

		Convey("When initialized with JSON output", func() {
			var buf bytes.Buffer
			So(Init(WithJSON(), WithOutput(&buf)), ShouldBeNil)

			Get().Info(context.Background(), "consensus computed",
				String("event_id", "e1"),
				Int("providers", 3),
				Float64("confidence", 0.61),
				Bool("cached", false),
				Duration("took", time.Millisecond),
			)

			Convey("Then fields are written as JSON", func() {
				out := buf.String()
				So(out, ShouldContainSubstring, `"msg":"consensus computed"`)
				So(out, ShouldContainSubstring, `"event_id":"e1"`)
				So(out, ShouldContainSubstring, `"providers":3`)
				So(out, ShouldContainSubstring, `"source":"`)
			})
		})
	})
}

func TestLoggerNamed(t *testing.T) {
	Convey("Given a named logger with bound fields", t, func() {
		var buf bytes.Buffer
		So(Init(WithOutput(&buf)), ShouldBeNil)

		l := Named("worker").With(String("league", "epl"))
		l.Warn(context.Background(), "probabilities do not sum to one", Error(errors.New("boom")))

		out := buf.String()
		So(out, ShouldContainSubstring, "component=worker")
		So(out, ShouldContainSubstring, "league=epl")
		So(out, ShouldContainSubstring, "error=boom")
	})
}

func TestSetLevelString(t *testing.T) {
	Convey("Given a logger at info level", t, func() {
		var buf bytes.Buffer
		So(Init(WithOutput(&buf)), ShouldBeNil)

		Convey("When debug is disabled", func() {
			Get().Debug(context.Background(), "hidden")
			So(strings.Contains(buf.String(), "hidden"), ShouldBeFalse)
		})

		Convey("When the level is lowered to debug", func() {
			So(SetLevelString("DEBUG"), ShouldBeNil)
			Get().Debug(context.Background(), "visible")
			So(buf.String(), ShouldContainSubstring, "visible")
		})

		Convey("When the level is unknown", func() {
			So(SetLevelString("verbose"), ShouldNotBeNil)
		})
	})
}
