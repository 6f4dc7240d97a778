package middleware

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/capitalize-ai/presales-assistant/internal/model"
)

const (
	maxQuestionRunes  = 2000
	maxTitleRunes     = 256
	maxKnowledgeBases = 32
	maxKBLabelRunes   = 64
)

var notBlank = validation.By(func(value interface{}) error {
	if s, _ := value.(string); strings.TrimSpace(s) == "" {
		return errors.New("cannot be blank")
	}
	return nil
})

// ValidateStartTurn validates a turn request.
func ValidateStartTurn(req *model.StartTurnRequest) error {
	return validation.ValidateStruct(req,
		validation.Field(&req.Question, notBlank, validation.RuneLength(1, maxQuestionRunes)),
		validation.Field(&req.KnowledgeBases,
			validation.Length(0, maxKnowledgeBases),
			validation.Each(validation.RuneLength(0, maxKBLabelRunes)),
		),
	)
}

// ValidateCreateSession validates a session creation request.
func ValidateCreateSession(req *model.CreateSessionRequest) error {
	return validation.ValidateStruct(req,
		validation.Field(&req.Title, validation.RuneLength(0, maxTitleRunes)),
	)
}

// ValidateUpdateSession validates a rename request.
func ValidateUpdateSession(req *model.UpdateSessionRequest) error {
	return validation.ValidateStruct(req,
		validation.Field(&req.Title, notBlank, validation.RuneLength(1, maxTitleRunes)),
	)
}

// ValidateID validates a session or turn ID.
func ValidateID(id string) error {
	return validation.Validate(id, validation.Required, is.UUID)
}
