package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateBody(t *testing.T) {
	body, err := ValidateBody("  hello  ")
	require.NoError(t, err)
	assert.Equal(t, "hello", body)

	_, err = ValidateBody("   ")
	assert.Error(t, err)

	_, err = ValidateBody(strings.Repeat("x", MaxBodyLength+1))
	assert.Error(t, err)
}

func TestTopics(t *testing.T) {
	assert.Equal(t, "messages:conv-1", ConversationTopic("conv-1"))

	id, ok := TopicConversation("messages:conv-1")
	assert.True(t, ok)
	assert.Equal(t, "conv-1", id)

	_, ok = TopicConversation(AllMessagesTopic)
	assert.False(t, ok)
	_, ok = TopicConversation("invoices:1")
	assert.False(t, ok)

	assert.True(t, ValidTopic(AllMessagesTopic))
	assert.True(t, ValidTopic("messages:conv-1"))
	assert.False(t, ValidTopic("messages:"))
	assert.False(t, ValidTopic("messages:a b"))

	ev := ChangeEvent{ConversationID: "conv-9"}
	assert.Equal(t, []string{"messages:conv-9", AllMessagesTopic}, ev.Topics())
}

func TestAccountPassword(t *testing.T) {
	var a Account
	assert.Error(t, a.HashPassword("short"))
	require.NoError(t, a.HashPassword("correct horse"))
	assert.NoError(t, a.ValidatePassword("correct horse"))
	assert.Error(t, a.ValidatePassword("wrong horse"))
}

func TestProfileIsValid(t *testing.T) {
	p := Profile{DisplayName: "Ada", Role: RoleDesigner, Email: "ada@example.com"}
	assert.NoError(t, p.IsValid())

	p.Role = "owner"
	assert.Error(t, p.IsValid())

	p.Role = RoleClient
	p.Email = "not-an-email"
	assert.Error(t, p.IsValid())
}
