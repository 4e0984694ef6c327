package echoapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/elimu/core/status"
	"github.com/trezcool/elimu/core/user"
)

func (app *testApp) statusFeed(t *testing.T, usr user.User, query string) []status.Update {
	rec := app.do(http.MethodGet, "/v1/status"+query, app.token(t, usr), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var upds []status.Update
	decode(t, rec, &upds)
	return upds
}

func Test_statusApi(t *testing.T) {
	app := setup(t)
	student := app.createUser(t, "stud", user.RoleStudent)
	other := app.createUser(t, "other", user.RoleStudent)
	teacher := app.createUser(t, "teach", user.RoleTeacher)

	rec := app.do(http.MethodGet, "/v1/status", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = app.do(http.MethodGet, "/v1/status", app.token(t, student), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, "[]", rec.Body.String())

	t.Run("post", func(t *testing.T) {
		tests := []struct {
			name        string
			usr         user.User
			content     string
			wantCode    int
			wantField   string
			wantContent string
		}{
			{name: "blank", usr: student, content: "   ", wantCode: http.StatusBadRequest, wantField: "content"},
			{name: "teacher", usr: teacher, content: "hi", wantCode: http.StatusForbidden},
			{name: "student", usr: student, content: " revising for finals ", wantCode: http.StatusCreated, wantContent: "revising for finals"},
			{name: "other student", usr: other, content: "same", wantCode: http.StatusCreated, wantContent: "same"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				rec := app.do(http.MethodPost, "/v1/status", app.token(t, tt.usr), status.NewUpdate{Content: tt.content})
				require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
				switch {
				case tt.wantField != "":
					var fields map[string]string
					decode(t, rec, &fields)
					assert.Contains(t, fields, tt.wantField)
				case tt.wantCode == http.StatusCreated:
					var upd status.Update
					decode(t, rec, &upd)
					assert.Equal(t, tt.usr.ID, upd.AuthorID)
					assert.Equal(t, tt.wantContent, upd.Content)
				}
			})
		}
	})

	feed := app.statusFeed(t, teacher, "")
	require.Len(t, feed, 2)
	assert.Equal(t, other.ID, feed[0].AuthorID, "newest first")

	mine := app.statusFeed(t, other, "?author_id="+itoa(student.ID))
	require.Len(t, mine, 1)
	assert.Equal(t, "revising for finals", mine[0].Content)
	assert.Empty(t, app.statusFeed(t, other, "?author_id=lol"))

	t.Run("delete", func(t *testing.T) {
		path := "/v1/status/" + itoa(mine[0].ID)
		rec := app.do(http.MethodDelete, path, app.token(t, other), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
		rec = app.do(http.MethodDelete, "/v1/status/lol", app.token(t, student), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())

		rec = app.do(http.MethodDelete, path, app.token(t, student), nil)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
		assert.Empty(t, app.statusFeed(t, other, "?author_id="+itoa(student.ID)))
	})
}
