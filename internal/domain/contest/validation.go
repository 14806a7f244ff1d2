package contest

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"
	"tle_zone_contest/internal/common"
	"tle_zone_contest/internal/domain/model"

	"github.com/go-playground/validator/v10"
)

var labelPattern = regexp.MustCompile(`^[A-Z]$`)

// contestValidate checks contest shapes. Initialized in init() with the label rule.
var contestValidate *validator.Validate

func init() {
	contestValidate = validator.New()
	contestValidate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	_ = contestValidate.RegisterValidation("contestlabel", func(fl validator.FieldLevel) bool {
		return labelPattern.MatchString(fl.Field().String())
	})
}

type contestShape struct {
	Title           string              `json:"title" validate:"required,max=200"`
	Type            model.ContestType   `json:"type" validate:"oneof=public private protected"`
	Mode            model.ContestMode   `json:"mode" validate:"oneof=ACM OI"`
	DurationMinutes int                 `json:"duration_minutes" validate:"gte=30,lte=10080"`
	FreezeMinutes   int                 `json:"freeze_minutes" validate:"gte=0,lte=300"`
	MaxParticipants int                 `json:"max_participants" validate:"gte=0"`
	OIScorePolicy   model.OIScorePolicy `json:"oi_score_policy" validate:"omitempty,oneof=first_accepted max_score"`
	Problems        []problemShape      `json:"problems" validate:"min=1,max=26,unique=Label,dive"`
}

type problemShape struct {
	ProblemID string `json:"problem_id" validate:"required"`
	Label     string `json:"label" validate:"contestlabel"`
	Weight    *int   `json:"weight" validate:"omitempty,gt=0"`
}

// Validate enforces the contest record invariants. Failures come back as
// *common.ValidationErrors, which match common.ErrValidation.
func Validate(c *model.Contest) error {
	verrs := common.NewValidationErrors()

	shape := contestShape{
		Title:           c.Title,
		Type:            c.Type,
		Mode:            c.Mode,
		DurationMinutes: c.DurationMinutes,
		FreezeMinutes:   c.FreezeMinutes,
		MaxParticipants: c.MaxParticipants,
		OIScorePolicy:   c.OIScorePolicy,
	}
	for _, p := range c.Problems {
		shape.Problems = append(shape.Problems, problemShape{ProblemID: p.ProblemID, Label: p.Label, Weight: p.Weight})
	}

	if err := contestValidate.Struct(shape); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return common.Errorf("validating contest: %w", err)
		}
		for _, fe := range fieldErrs {
			verrs.Add(fieldPath(fe), describe(fe))
		}
	}

	if !c.EndTime.After(c.StartTime) {
		verrs.Add("end_time", "must be after start_time")
	} else if c.EndTime.Sub(c.StartTime) != time.Duration(c.DurationMinutes)*time.Minute {
		verrs.Add("duration_minutes", "must equal end_time - start_time")
	}
	if c.FreezeMinutes > c.DurationMinutes {
		verrs.Add("freeze_minutes", "must not exceed the contest duration")
	}
	switch {
	case c.Type == model.ContestTypeProtected && c.PasswordHash == "":
		verrs.Add("password", "required for protected contests")
	case c.Type != model.ContestTypeProtected && c.PasswordHash != "":
		verrs.Add("password", "only protected contests take a password")
	}

	return verrs.Err()
}

// fieldPath drops the root struct name: "contestShape.problems[1].label" -> "problems[1].label".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "contestlabel":
		return "must be a single uppercase letter A-Z"
	case "unique":
		return "labels must be unique"
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "min", "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max", "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}
