// Package registration creates judges together with their tag rows in a
// single transaction.
package registration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/okian/judgeboard/internal/adapters/repository"
	"github.com/okian/judgeboard/internal/domain/model"
	"github.com/okian/judgeboard/pkg/logger"
	"github.com/okian/judgeboard/pkg/metrics"
)

// Registration is everything a new judge submits.
type Registration struct {
	Profile          model.JudgeProfile
	Password         string
	Specializations  []string
	CourtAssignments []string
}

// Hasher turns a password into an opaque credential.
type Hasher interface {
	Hash(password string) (string, error)
}

// Registrar validates and persists new judges.
type Registrar struct {
	store    repository.Store
	hasher   Hasher
	validate *validator.Validate
	now      func() time.Time
	newID    func() string
	logger   logger.Logger
}

// New returns a Registrar writing to store.
func New(store repository.Store, hasher Hasher, opts ...Option) (*Registrar, error) {
	v, err := newValidator()
	if err != nil {
		return nil, err
	}
	r := &Registrar{
		store:    store,
		hasher:   hasher,
		validate: v,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logger.Named("registration")
	}
	return r, nil
}

// RegisterJudge validates reg, checks username and email availability, and
// writes the judge row plus every tag row atomically. It returns the new
// judge id.
func (r *Registrar) RegisterJudge(ctx context.Context, reg Registration) (string, error) {
	const op = "registration.register"

	prof := normalizeProfile(reg.Profile)
	specs := normalizeTags(reg.Specializations)
	courts := normalizeTags(reg.CourtAssignments)

	if err := r.check(prof, reg.Password, specs, courts); err != nil {
		metrics.RecordRegistration("invalid")
		return "", err
	}

	// Advisory only; the unique indexes decide.
	if err := r.precheck(ctx, prof); err != nil {
		return "", r.fail(ctx, op, err)
	}

	hash, err := r.hasher.Hash(reg.Password)
	if err != nil {
		return "", r.fail(ctx, op, fmt.Errorf("hash password: %w", err))
	}

	judge := model.Judge{
		ID:           r.newID(),
		PasswordHash: hash,
		Active:       true,
		CreatedAt:    r.now().UTC(),
		JudgeProfile: prof,
	}
	err = r.store.Update(ctx, func(tx repository.Tx) error {
		if err := tx.InsertJudge(judge); err != nil {
			return err
		}
		for _, tag := range specs {
			if err := tx.InsertSpecialization(judge.ID, tag); err != nil {
				return fmt.Errorf("specialization %q: %w", tag, err)
			}
		}
		for _, court := range courts {
			if err := tx.InsertCourtAssignment(judge.ID, court); err != nil {
				return fmt.Errorf("court assignment %q: %w", court, err)
			}
		}
		return nil
	})
	if err != nil {
		return "", r.fail(ctx, op, err)
	}

	metrics.RecordRegistration("created")
	r.logger.Info(ctx, "judge registered",
		logger.String("judge_id", judge.ID),
		logger.String("username", prof.Username),
		logger.Int("specializations", len(specs)),
		logger.Int("court_assignments", len(courts)))
	return judge.ID, nil
}

func (r *Registrar) check(p model.JudgeProfile, password string, specs, courts []string) error {
	in := input{
		Username:         p.Username,
		DisplayName:      p.DisplayName,
		FirstName:        p.FirstName,
		LastName:         p.LastName,
		Email:            p.Email,
		Phone:            p.Phone,
		City:             p.City,
		State:            p.State,
		ZipCode:          p.ZipCode,
		BarNumber:        p.BarNumber,
		LicenseState:     p.LicenseState,
		YearsExperience:  p.YearsExperience,
		EmergencyContact: p.EmergencyContact,
		EmergencyPhone:   p.EmergencyPhone,
		Password:         password,
		Specializations:  specs,
		CourtAssignments: courts,
	}
	if err := r.validate.Struct(in); err != nil {
		return toValidationError(err)
	}
	return nil
}

func (r *Registrar) precheck(ctx context.Context, p model.JudgeProfile) error {
	var taken []string
	err := r.store.View(ctx, func(rd repository.Reader) error {
		for _, c := range []struct {
			field  string
			lookup func(string) (model.Judge, error)
			value  string
		}{
			{"username", rd.JudgeByUsername, p.Username},
			{"email", rd.JudgeByEmail, p.Email},
		} {
			_, err := c.lookup(c.value)
			switch {
			case err == nil:
				taken = append(taken, c.field)
			case !errors.Is(err, repository.ErrNotFound):
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(taken) > 0 {
		return &model.DuplicateError{Fields: taken}
	}
	return nil
}

// fail classifies err, records it and returns the error callers see.
func (r *Registrar) fail(ctx context.Context, op string, err error) error {
	if c, ok := repository.ViolatedConstraint(err); ok {
		switch c {
		case repository.ConstraintJudgeUsername:
			err = &model.DuplicateError{Fields: []string{"username"}}
		case repository.ConstraintJudgeEmail:
			err = &model.DuplicateError{Fields: []string{"email"}}
		}
	}
	if errors.Is(err, model.ErrDuplicate) {
		metrics.RecordRegistration("duplicate")
		return err
	}
	metrics.RecordRegistration("error")
	r.logger.Error(ctx, "judge registration failed", logger.Error(err))
	return model.E(op, model.ErrStorage, err)
}
