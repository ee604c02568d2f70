package middleware

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"neuroassess/common/response"
	"neuroassess/internal/auth"
	"neuroassess/internal/model"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chanWriter chan *model.CompletionLog

func (w chanWriter) Write(_ context.Context, log *model.CompletionLog) error {
	w <- log
	return nil
}

func (w chanWriter) next(t *testing.T) *model.CompletionLog {
	t.Helper()
	select {
	case log := <-w:
		return log
	case <-time.After(2 * time.Second):
		t.Fatal("audit row not written")
		return nil
	}
}

func TestCompletionAuditMiddleware(t *testing.T) {
	w := make(chanWriter, 2)
	app := fiber.New()
	app.Post("/assessment/:processInstanceId/tasks/:taskId",
		func(c *fiber.Ctx) error {
			auth.SetPrincipal(c, auth.NewPrincipal("paul", []string{"ROLE_practitioner"}, "ROLE_"))
			return c.Next()
		},
		CompletionAuditMiddleware(w, "assessment"),
		func(c *fiber.Ctx) error {
			if c.Params("taskId") == "bad" {
				return response.NotFound(c, "Task not found", nil)
			}
			return response.OK(c, response.Body{"message": "Task completed successfully"})
		})

	body := `{"burningPain":true}`
	resp, err := app.Test(httptest.NewRequest("POST", "/assessment/pi-1/tasks/t-1", strings.NewReader(body)))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	row := w.next(t)
	assert.Equal(t, "assessment", row.ProcessID)
	assert.Equal(t, "pi-1", row.ProcessInstanceID)
	assert.Equal(t, "t-1", row.TaskID)
	assert.Equal(t, "paul", row.Username)
	assert.Equal(t, "POST", row.Method)
	assert.Equal(t, body, row.Params)
	assert.Equal(t, fiber.StatusOK, row.HTTPStatus)
	assert.Equal(t, int8(1), row.Status)
	assert.Empty(t, row.ErrorMsg)

	resp, err = app.Test(httptest.NewRequest("POST", "/assessment/pi-1/tasks/bad", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	row = w.next(t)
	assert.Equal(t, "bad", row.TaskID)
	assert.Equal(t, fiber.StatusNotFound, row.HTTPStatus)
	assert.Equal(t, int8(0), row.Status)
	assert.Contains(t, row.ErrorMsg, "Task not found")
}
