package core

import (
	"net/mail"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmailMessage_Render(t *testing.T) {
	msg := &EmailMessage{
		To:      []mail.Address{{Address: "awe@test.cd"}},
		Subject: "New enrollment",
		BodyStr: "stud enrolled in <Maths>.\nSee you",
		Link:    "http://localhost:3000/courses/1",
	}
	assert.True(t, msg.HasRecipients())
	assert.False(t, msg.HasContent())

	require.NoError(t, msg.Render())
	assert.True(t, msg.HasContent())
	assert.Equal(t, "stud enrolled in <Maths>.\nSee you\n\nhttp://localhost:3000/courses/1", msg.TextContent)
	assert.Contains(t, msg.HTMLContent, "<p>stud enrolled in &lt;Maths&gt;.</p><p>See you</p>")
	assert.Contains(t, msg.HTMLContent, `<a href="http://localhost:3000/courses/1">`)

	empty := &EmailMessage{}
	require.NoError(t, empty.Render())
	assert.False(t, empty.HasContent())
	assert.False(t, empty.HasRecipients())
}
