package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crowdrank/crowdrank-backend/internal/ledger"
)

func buildTaskForm(t *testing.T, fields map[string]string, fileCount int) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	for i := 0; i < fileCount; i++ {
		part, err := writer.CreateFormFile("files", fmt.Sprintf("option-%d.png", i))
		require.NoError(t, err)
		_, err = part.Write([]byte(fmt.Sprintf("image-bytes-%d", i)))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestCreateTaskSuccess(t *testing.T) {
	env := newHandlerEnv(t)

	body, contentType := buildTaskForm(t, map[string]string{
		"title":       "pick the best thumbnail",
		"category":    "thumbnail",
		"review_tier": "5",
	}, 3)
	w := env.request(t, http.MethodPost, "/api/tasks", body, contentType)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var task ledger.Task
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &task))
	assert.Positive(t, task.ID)
	assert.Equal(t, "pick the best thumbnail", task.Title)
	assert.Equal(t, ledger.TaskStatusOpen, task.Status)
	assert.Equal(t, 5, task.RequiredReviews)
	assert.Equal(t, int64(2_000_000), task.PaymentAmount)

	require.Len(t, task.Options, 3)
	for i, option := range task.Options {
		assert.Equal(t, i, option.Position)
		assert.Equal(t, fmt.Sprintf("bafy-fake-%d", i+1), option.ContentReference)
		assert.Equal(t, ledger.MediaKindImage, option.MediaKind)
	}

	stored, err := env.store.GetTaskWithOptions(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Options, 3)
}

func TestCreateTaskVideoMediaKind(t *testing.T) {
	env := newHandlerEnv(t)

	body, contentType := buildTaskForm(t, map[string]string{
		"title":       "rank the trailers",
		"category":    "video",
		"review_tier": "5",
	}, 2)
	w := env.request(t, http.MethodPost, "/api/tasks", body, contentType)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var task ledger.Task
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &task))
	assert.Equal(t, int64(9_000_000), task.PaymentAmount)
	require.Len(t, task.Options, 2)
	for _, option := range task.Options {
		assert.Equal(t, ledger.MediaKindVideo, option.MediaKind)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	tests := []struct {
		name       string
		fields     map[string]string
		fileCount  int
		wantStatus int
		wantCode   string
	}{
		{
			name:       "missing title",
			fields:     map[string]string{"category": "thumbnail", "review_tier": "5"},
			fileCount:  2,
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_TITLE",
		},
		{
			name:       "non-numeric review tier",
			fields:     map[string]string{"title": "t", "category": "thumbnail", "review_tier": "abc"},
			fileCount:  2,
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_REVIEW_TIER",
		},
		{
			name:       "negative review tier",
			fields:     map[string]string{"title": "t", "category": "thumbnail", "review_tier": "-3"},
			fileCount:  2,
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_REVIEW_TIER",
		},
		{
			name:       "unknown category",
			fields:     map[string]string{"title": "t", "category": "podcast", "review_tier": "5"},
			fileCount:  2,
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_PRICING_TIER",
		},
		{
			name:       "tier not in price table",
			fields:     map[string]string{"title": "t", "category": "thumbnail", "review_tier": "7"},
			fileCount:  2,
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_PRICING_TIER",
		},
		{
			name:       "one file",
			fields:     map[string]string{"title": "t", "category": "thumbnail", "review_tier": "5"},
			fileCount:  1,
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_OPTION_COUNT",
		},
		{
			name:       "six files",
			fields:     map[string]string{"title": "t", "category": "thumbnail", "review_tier": "5"},
			fileCount:  6,
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_OPTION_COUNT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newHandlerEnv(t)
			body, contentType := buildTaskForm(t, tt.fields, tt.fileCount)
			w := env.request(t, http.MethodPost, "/api/tasks", body, contentType)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			assert.Equal(t, tt.wantCode, errorCode(t, w))
		})
	}
}

func TestCreateTaskUploadFailureUnpinsOrphans(t *testing.T) {
	env := newHandlerEnv(t)
	env.content.failAfter = 2

	body, contentType := buildTaskForm(t, map[string]string{
		"title":       "pick the best thumbnail",
		"category":    "thumbnail",
		"review_tier": "5",
	}, 3)
	w := env.request(t, http.MethodPost, "/api/tasks", body, contentType)
	require.Equal(t, http.StatusBadGateway, w.Code, w.Body.String())
	assert.Equal(t, "CONTENT_UPLOAD_FAILED", errorCode(t, w))

	// The two uploads that went through before the failure are unpinned.
	assert.Equal(t, []string{"bafy-fake-1", "bafy-fake-2"}, env.content.deletedCIDs())

	counts, err := env.store.CountTasksByStatus(context.Background())
	require.NoError(t, err)
	assert.Empty(t, counts)
}
