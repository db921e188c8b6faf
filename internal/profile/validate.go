package profile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"jobportal/internal/model"
)

type Skill struct {
	Name  string `json:"name" validate:"required,max=80"`
	Level string `json:"level,omitempty" validate:"omitempty,oneof=beginner intermediate advanced expert"`
}

type Education struct {
	Institution  string `json:"institution" validate:"required,max=200"`
	Degree       string `json:"degree" validate:"required,max=120"`
	FieldOfStudy string `json:"fieldOfStudy,omitempty" validate:"max=120"`
	StartYear    string `json:"startYear,omitempty" validate:"omitempty,numeric,len=4"`
	EndYear      string `json:"endYear,omitempty" validate:"omitempty,numeric,len=4"`
}

type Experience struct {
	Company     string `json:"company" validate:"required,max=200"`
	Title       string `json:"title" validate:"required,max=120"`
	StartDate   string `json:"startDate" validate:"required,datetime=2006-01"`
	EndDate     string `json:"endDate,omitempty" validate:"omitempty,datetime=2006-01"`
	Description string `json:"description,omitempty" validate:"max=2000"`
}

type Certification struct {
	Name          string `json:"name" validate:"required,max=200"`
	Issuer        string `json:"issuer" validate:"required,max=200"`
	IssuedOn      string `json:"issuedOn,omitempty" validate:"omitempty,datetime=2006-01-02"`
	CredentialURL string `json:"credentialUrl,omitempty" validate:"omitempty,url"`
}

var validate = sync.OnceValue(func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterStructValidation(educationYears, Education{})
	v.RegisterStructValidation(experienceDates, Experience{})
	return v
})

// Years and YYYY-MM dates have fixed width, so string order is date order.
func educationYears(sl validator.StructLevel) {
	e := sl.Current().Interface().(Education)
	if e.StartYear != "" && e.EndYear != "" && e.EndYear < e.StartYear {
		sl.ReportError(e.EndYear, "endYear", "EndYear", "notbefore", "startYear")
	}
}

func experienceDates(sl validator.StructLevel) {
	e := sl.Current().Interface().(Experience)
	if e.EndDate != "" && e.EndDate < e.StartDate {
		sl.ReportError(e.EndDate, "endDate", "EndDate", "notbefore", "startDate")
	}
}

func newPayloadStruct(kind SubKind) (any, error) {
	switch kind {
	case SubSkills:
		return &Skill{}, nil
	case SubEducations:
		return &Education{}, nil
	case SubExperiences:
		return &Experience{}, nil
	case SubCertifications:
		return &Certification{}, nil
	default:
		return nil, fmt.Errorf("unknown sub-resource kind %q", kind)
	}
}

// NormalizePayload checks p against the typed payload for kind and returns
// its canonical form: values trimmed and empty optional fields dropped.
// Unknown fields are rejected.
func NormalizePayload(kind SubKind, p Payload) (Payload, error) {
	op := "validate " + string(kind)
	target, err := newPayloadStruct(kind)
	if err != nil {
		return nil, model.Errorf(model.KindValidation, op, "%v", err)
	}

	trimmed := make(Payload, len(p))
	for k, v := range p {
		trimmed[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	raw, err := json.Marshal(trimmed)
	if err != nil {
		return nil, model.Wrap(model.KindValidation, op, err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return nil, model.Errorf(model.KindValidation, op, "%s", strings.TrimPrefix(err.Error(), "json: "))
	}

	if err := validate().Struct(target); err != nil {
		return nil, model.Errorf(model.KindValidation, op, "%s", describeValidation(err))
	}

	canonical, err := json.Marshal(target)
	if err != nil {
		return nil, model.Wrap(model.KindValidation, op, err)
	}
	out := Payload{}
	if err := json.Unmarshal(canonical, &out); err != nil {
		return nil, model.Wrap(model.KindValidation, op, err)
	}
	return out, nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param()))
		case "datetime":
			msgs = append(msgs, fmt.Sprintf("%s must match layout %s", fe.Field(), fe.Param()))
		case "notbefore":
			msgs = append(msgs, fmt.Sprintf("%s must not be before %s", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}
