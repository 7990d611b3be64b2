package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// CreateConversationRequest is the write payload for a new conversation.
type CreateConversationRequest struct {
	ParticipantIDs []UserID `json:"participantIds" validate:"required,min=1,dive,gt=0"`
	IsGroup        bool     `json:"isGroup"`
	Name           string   `json:"name,omitempty" validate:"max=120"`
}

// SendMessageRequest is the write payload for a new message.
type SendMessageRequest struct {
	ConversationID  string `json:"conversationId" validate:"required"`
	Content         string `json:"content" validate:"required,max=4000"`
	ClientMessageID string `json:"clientMessageId,omitempty" validate:"max=64"`
}

// MaxBatchUsers is the largest id list one directory batch lookup accepts.
// Keep in step with the max tag on BatchUsersRequest.IDs.
const MaxBatchUsers = 500

// BatchUsersRequest is the directory batch lookup payload.
type BatchUsersRequest struct {
	IDs []UserID `json:"ids" validate:"max=500"`
}

// Validate checks a write payload and wraps failures in ErrValidation.
func Validate(req any) error {
	if r, ok := req.(*SendMessageRequest); ok {
		r.Content = strings.TrimSpace(r.Content)
	}
	if err := validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return fmt.Errorf("%w: %s failed on %q", ErrValidation, fe.Field(), fe.Tag())
		}
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}
