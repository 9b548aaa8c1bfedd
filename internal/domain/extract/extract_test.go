package extract_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/okian/aura/internal/domain/extract"
	. "github.com/smartystreets/goconvey/convey"
)

func TestExtract(t *testing.T) {
	Convey("Given a fenced payload surrounded by prose", t, func() {
		raw := "Sure!\n```json\n{\"A\": 5, \"B\": -2}\n```\nThanks."

		Convey("When extracting", func() {
			d, err := extract.Extract(raw)

			Convey("Then the mapping is recovered with folded keys", func() {
				So(err, ShouldBeNil)
				So(d.Len(), ShouldEqual, 2)
				a, ok := d.Lookup("a")
				So(ok, ShouldBeTrue)
				So(a, ShouldEqual, json.Number("5"))
				b, ok := d.Lookup("B")
				So(ok, ShouldBeTrue)
				So(b, ShouldEqual, json.Number("-2"))
			})
		})
	})

	Convey("Given a bare JSON object", t, func() {
		d, err := extract.Extract(`{"Jane Doe": 12.5, "John Roe": "-3"}`)

		Convey("Then lookups ignore case", func() {
			So(err, ShouldBeNil)
			v, ok := d.Lookup("jane doe")
			So(ok, ShouldBeTrue)
			So(v, ShouldEqual, json.Number("12.5"))

			v, ok = d.Lookup("JOHN ROE")
			So(ok, ShouldBeTrue)
			So(v, ShouldEqual, "-3")

			_, ok = d.Lookup("Nobody")
			So(ok, ShouldBeFalse)
			So(d.Len(), ShouldEqual, 2)
		})
	})

	Convey("Given keys that collide after folding", t, func() {
		d, err := extract.Extract(`{"Jane Doe": 1, "JANE DOE": 2}`)

		Convey("Then the first key wins and the collision is reported", func() {
			So(err, ShouldBeNil)
			v, _ := d.Lookup("Jane Doe")
			So(v, ShouldEqual, json.Number("1"))
			So(d.Collisions, ShouldResemble, []string{"JANE DOE"})
			So(d.Len(), ShouldEqual, 1)
		})
	})

	Convey("Given non-numeric values", t, func() {
		d, err := extract.Extract(`{"A": "n/a", "B": null, "C": true, "D": [1]}`)

		Convey("Then they are kept for the updater to coerce", func() {
			So(err, ShouldBeNil)
			a, _ := d.Lookup("a")
			So(a, ShouldEqual, "n/a")
			b, ok := d.Lookup("b")
			So(ok, ShouldBeTrue)
			So(b, ShouldBeNil)
			c, _ := d.Lookup("c")
			So(c, ShouldEqual, true)
			dv, _ := d.Lookup("d")
			So(dv, ShouldResemble, []any{json.Number("1")})
		})
	})

	Convey("Given a brace inside a string value", t, func() {
		d, err := extract.Extract(`{"A": "has } brace", "B": 2}`)

		Convey("Then the greedy span still parses", func() {
			So(err, ShouldBeNil)
			So(d.Len(), ShouldEqual, 2)
		})
	})

	Convey("Given an object followed by an unrelated one", t, func() {
		d, err := extract.Extract(`Result: {"A": 1} (see also {"note": "x"})`)

		Convey("Then the first balanced object is salvaged", func() {
			So(err, ShouldBeNil)
			v, ok := d.Lookup("a")
			So(ok, ShouldBeTrue)
			So(v, ShouldEqual, json.Number("1"))
			_, ok = d.Lookup("note")
			So(ok, ShouldBeFalse)
		})
	})

	Convey("Given an empty object", t, func() {
		d, err := extract.Extract(`{}`)

		Convey("Then extraction succeeds with no entries", func() {
			So(err, ShouldBeNil)
			So(d.Len(), ShouldEqual, 0)
		})
	})
}

func TestExtractFailures(t *testing.T) {
	Convey("Given an empty response", t, func() {
		_, err := extract.Extract("  \n ")

		Convey("Then it fails as empty", func() {
			var xe *extract.Error
			So(errors.As(err, &xe), ShouldBeTrue)
			So(xe.Reason, ShouldEqual, extract.ReasonEmpty)
			So(errors.Is(err, extract.ErrExtraction), ShouldBeTrue)
		})
	})

	Convey("Given prose with no object", t, func() {
		raw := "I cannot assess these people right now."
		_, err := extract.Extract(raw)

		Convey("Then it fails with the raw text attached", func() {
			var xe *extract.Error
			So(errors.As(err, &xe), ShouldBeTrue)
			So(xe.Reason, ShouldEqual, extract.ReasonNoObject)
			So(xe.Raw, ShouldEqual, raw)
			So(err.Error(), ShouldContainSubstring, raw)
		})
	})

	Convey("Given a top-level array", t, func() {
		_, err := extract.Extract(`[1, 2, 3]`)

		Convey("Then no object is found", func() {
			var xe *extract.Error
			So(errors.As(err, &xe), ShouldBeTrue)
			So(xe.Reason, ShouldEqual, extract.ReasonNoObject)
		})
	})

	Convey("Given a closing brace before any opening one", t, func() {
		_, err := extract.Extract(`} nothing {`)

		Convey("Then no object is found", func() {
			var xe *extract.Error
			So(errors.As(err, &xe), ShouldBeTrue)
			So(xe.Reason, ShouldEqual, extract.ReasonNoObject)
		})
	})

	Convey("Given a span that is not valid JSON", t, func() {
		raw := "{A: 5, B: -2}"
		_, err := extract.Extract(raw)

		Convey("Then it fails as invalid JSON and keeps the cause", func() {
			var xe *extract.Error
			So(errors.As(err, &xe), ShouldBeTrue)
			So(xe.Reason, ShouldEqual, extract.ReasonInvalidJSON)
			So(xe.Err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "{A: 5, B: -2}")
		})
	})

	Convey("Given a truncated object", t, func() {
		_, err := extract.Extract(`{"A": 5, "B": {"nested": 1}`)

		Convey("Then it fails as invalid JSON", func() {
			So(errors.Is(err, extract.ErrExtraction), ShouldBeTrue)
		})
	})
}

func TestTruncate(t *testing.T) {
	Convey("Given long text", t, func() {
		So(extract.Truncate("abcdef", 3), ShouldEqual, "abc…")
		So(extract.Truncate("abc", 10), ShouldEqual, "abc")
		So(extract.Truncate("abc", 0), ShouldEqual, "abc")
	})

	Convey("Given multi-byte text", t, func() {
		// "é" is two bytes; cutting at 2 must not split it.
		So(extract.Truncate("aéb", 2), ShouldEqual, "a…")
	})
}
