package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"golang.org/x/crypto/bcrypt"

	"github.com/okian/judgeboard/internal/adapters/auth"
	"github.com/okian/judgeboard/internal/adapters/repository"
	"github.com/okian/judgeboard/internal/domain/model"
)

func seedJudge(ctx context.Context, s repository.Store, h auth.BcryptHasher, id, user, pw string, active bool) {
	hash, err := h.Hash(pw)
	So(err, ShouldBeNil)
	err = s.Update(ctx, func(tx repository.Tx) error {
		return tx.InsertJudge(model.Judge{
			ID:           id,
			PasswordHash: hash,
			Active:       active,
			JudgeProfile: model.JudgeProfile{Username: user, DisplayName: "Judge " + user, Email: user + "@court.io"},
		})
	})
	So(err, ShouldBeNil)
}

func TestBcryptHasher(t *testing.T) {
	Convey("Given a hasher with an out of range cost", t, func() {
		h := auth.NewBcryptHasher(99)

		Convey("Then hashing still works and verifies", func() {
			hash, err := h.Hash("secret-pass")
			So(err, ShouldBeNil)
			cost, err := bcrypt.Cost([]byte(hash))
			So(err, ShouldBeNil)
			So(cost, ShouldEqual, bcrypt.DefaultCost)
			So(h.Compare(hash, "secret-pass"), ShouldBeTrue)
			So(h.Compare(hash, "wrong-pass"), ShouldBeFalse)
		})
	})
}

func TestAuthenticator(t *testing.T) {
	Convey("Given an authenticator over a store with judges", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		h := auth.NewBcryptHasher(bcrypt.MinCost)
		seedJudge(ctx, store, h, "j1", "judy", "hunter22", true)
		seedJudge(ctx, store, h, "j2", "retired", "hunter22", false)

		now := time.Unix(1_700_000_000, 0).UTC()
		a := auth.NewAuthenticator(store, h, "test-secret", time.Hour).
			WithClock(func() time.Time { return now })

		Convey("When a judge logs in with the right password", func() {
			sess, err := a.Login(ctx, " judy ", "hunter22")

			Convey("Then a token carrying the judge id is issued", func() {
				So(err, ShouldBeNil)
				So(sess.JudgeID, ShouldEqual, "j1")
				So(sess.DisplayName, ShouldEqual, "Judge judy")
				So(sess.ExpiresAt, ShouldEqual, now.Add(time.Hour))

				id, err := a.Verify(sess.Token)
				So(err, ShouldBeNil)
				So(id, ShouldResemble, model.Identity{JudgeID: "j1"})
			})

			Convey("Then the token stops verifying once expired", func() {
				now = now.Add(2 * time.Hour)
				_, err := a.Verify(sess.Token)
				So(errors.Is(err, auth.ErrTokenExpired), ShouldBeTrue)
			})

			Convey("Then another secret rejects it", func() {
				other := auth.NewAuthenticator(store, h, "other-secret", time.Hour).
					WithClock(func() time.Time { return now })
				_, err := other.Verify(sess.Token)
				So(errors.Is(err, auth.ErrInvalidToken), ShouldBeTrue)
			})
		})

		Convey("When credentials are wrong", func() {
			_, wrongPw := a.Login(ctx, "judy", "nope-nope")
			_, unknown := a.Login(ctx, "ghost", "hunter22")
			_, inactive := a.Login(ctx, "retired", "hunter22")

			Convey("Then every case reads the same", func() {
				So(wrongPw, ShouldEqual, auth.ErrInvalidCredentials)
				So(unknown, ShouldEqual, auth.ErrInvalidCredentials)
				So(inactive, ShouldEqual, auth.ErrInvalidCredentials)
			})
		})

		Convey("When the token is garbage", func() {
			_, err := a.Verify("not.a.jwt")
			So(errors.Is(err, auth.ErrInvalidToken), ShouldBeTrue)
		})

		Convey("When the store is closed", func() {
			So(store.Close(), ShouldBeNil)
			_, err := a.Login(ctx, "judy", "hunter22")
			So(errors.Is(err, repository.ErrClosed), ShouldBeTrue)
		})
	})
}
