package model_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/okian/judgeboard/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestErrorKinds(t *testing.T) {
	convey.Convey("Given the domain error types", t, func() {
		convey.Convey("When a validation error carries several fields", func() {
			verr := &model.ValidationError{}
			verr.Add("username", "is required")
			verr.Add("email", "must be a valid email address")
			err := fmt.Errorf("register: %w", verr.OrNil())

			convey.Convey("Then it matches ErrValidation and keeps every field", func() {
				convey.So(errors.Is(err, model.ErrValidation), convey.ShouldBeTrue)
				var target *model.ValidationError
				convey.So(errors.As(err, &target), convey.ShouldBeTrue)
				convey.So(target.Fields, convey.ShouldHaveLength, 2)
				convey.So(err.Error(), convey.ShouldContainSubstring, "username: is required")
			})
		})

		convey.Convey("When a validation error is empty", func() {
			verr := &model.ValidationError{}

			convey.Convey("Then OrNil returns nil", func() {
				convey.So(verr.OrNil(), convey.ShouldBeNil)
			})
		})

		convey.Convey("When a duplicate error is built", func() {
			err := &model.DuplicateError{Fields: []string{"username", "email"}}

			convey.Convey("Then it matches only ErrDuplicate", func() {
				convey.So(errors.Is(err, model.ErrDuplicate), convey.ShouldBeTrue)
				convey.So(errors.Is(err, model.ErrConflict), convey.ShouldBeFalse)
				convey.So(err.Error(), convey.ShouldContainSubstring, "username, email")
			})
		})

		convey.Convey("When a storage cause is wrapped with a kind", func() {
			cause := errors.New("connection reset")
			err := model.E("ledger.submit", model.ErrStorage, cause)

			convey.Convey("Then both kind and cause are reachable", func() {
				convey.So(errors.Is(err, model.ErrStorage), convey.ShouldBeTrue)
				convey.So(errors.Is(err, cause), convey.ShouldBeTrue)
				convey.So(model.KindOf(err), convey.ShouldEqual, model.ErrStorage)
			})
		})

		convey.Convey("When a not found error is built", func() {
			err := model.NotFound("ledger.submit", "participant", "p-9")

			convey.Convey("Then it names the missing entity", func() {
				convey.So(model.KindOf(err), convey.ShouldEqual, model.ErrNotFound)
				convey.So(err.Error(), convey.ShouldContainSubstring, `participant "p-9"`)
			})
		})

		convey.Convey("When an error carries no kind", func() {
			convey.So(model.KindOf(errors.New("plain")), convey.ShouldBeNil)
		})
	})
}
