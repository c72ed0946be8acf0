package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type selectPayload struct {
	QuestionID string `json:"question_id" validate:"required,uuid"`
	Op         string `json:"op" validate:"omitempty,oneof=copy paste cut"`
}

func TestStruct(t *testing.T) {
	Setup()

	assert.Nil(t, Struct(&selectPayload{QuestionID: "7b0c6f7e-2f7c-4a53-9d39-93b1f3c1a0de"}))

	fields := Struct(&selectPayload{Op: "print"})
	assert.Contains(t, fields, "question_id")
	assert.Contains(t, fields, "op")
	assert.Contains(t, fields["question_id"], "required")
}
