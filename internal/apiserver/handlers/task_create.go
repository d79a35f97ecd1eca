package handlers

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/crowdrank/crowdrank-backend/internal/ledger"
	"github.com/crowdrank/crowdrank-backend/pkg/pricing"
)

// maxContentFileBytes bounds a single uploaded option file.
const maxContentFileBytes = 25 << 20

// CreateTask accepts a multipart form with the task title, category, review
// tier, and two to five content files. Each file is pinned on the content
// store and becomes one option, positioned in upload order. The payment
// amount is fixed to the tier price at creation time.
func (h *Handler) CreateTask(c *gin.Context) {
	logger := h.requestLogger(c)

	title := strings.TrimSpace(c.PostForm("title"))
	if title == "" {
		writeError(c, http.StatusBadRequest, "INVALID_TITLE", "Title is required")
		return
	}

	category := strings.TrimSpace(c.PostForm("category"))
	reviewTier, err := strconv.Atoi(c.PostForm("review_tier"))
	if err != nil || reviewTier <= 0 {
		writeError(c, http.StatusBadRequest, "INVALID_REVIEW_TIER", "Review tier must be a positive integer")
		return
	}

	price, err := h.oracle.TaskPrice(pricing.Category(category), reviewTier)
	if err != nil {
		logger.Warnf("[CreateTask] Rejected tier %d for category %q: %v", reviewTier, category, err)
		h.respondError(c, err)
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_FORM", "Request is not a valid multipart form")
		return
	}

	files := form.File["files"]
	if len(files) < ledger.MinOptionsPerTask || len(files) > ledger.MaxOptionsPerTask {
		writeError(c, http.StatusBadRequest, "INVALID_OPTION_COUNT",
			fmt.Sprintf("A task needs between %d and %d content files", ledger.MinOptionsPerTask, ledger.MaxOptionsPerTask))
		return
	}

	mediaKind := ledger.MediaKindImage
	if pricing.Category(category) == pricing.CategoryVideo {
		mediaKind = ledger.MediaKindVideo
	}

	options := make([]ledger.Option, 0, len(files))
	uploaded := make([]string, 0, len(files))
	for _, file := range files {
		if file.Size > maxContentFileBytes {
			h.discardUploads(c, uploaded)
			writeError(c, http.StatusBadRequest, "FILE_TOO_LARGE",
				fmt.Sprintf("File %s exceeds the %d byte limit", file.Filename, maxContentFileBytes))
			return
		}

		data, err := readFormFile(file)
		if err != nil {
			h.discardUploads(c, uploaded)
			logger.Errorf("[CreateTask] Failed to read file %s: %v", file.Filename, err)
			writeError(c, http.StatusBadRequest, "INVALID_FILE", "Could not read uploaded file")
			return
		}

		cid, err := h.content.Upload(c.Request.Context(), file.Filename, data)
		if err != nil {
			h.discardUploads(c, uploaded)
			logger.Errorf("[CreateTask] Content upload failed for %s: %v", file.Filename, err)
			writeError(c, http.StatusBadGateway, "CONTENT_UPLOAD_FAILED", "Could not store task content")
			return
		}
		uploaded = append(uploaded, cid)

		options = append(options, ledger.Option{
			ContentReference: cid,
			MediaKind:        mediaKind,
		})
	}

	task := &ledger.Task{
		Title:           title,
		Category:        category,
		RequiredReviews: reviewTier,
		PaymentAmount:   price,
		Options:         options,
	}

	trackStore := h.metrics.TrackStoreOperation("create", "tasks")
	err = h.store.CreateTask(c.Request.Context(), task)
	trackStore(err)
	if err != nil {
		h.discardUploads(c, uploaded)
		logger.Errorf("[CreateTask] Failed to create task: %v", err)
		h.respondError(c, err)
		return
	}

	h.metrics.TasksCreatedTotal.Inc()
	logger.Infof("[CreateTask] Created task %d (%s, tier %d) with %d options", task.ID, category, reviewTier, len(options))
	c.JSON(http.StatusCreated, task)
}

// readFormFile loads one multipart file into memory.
func readFormFile(file *multipart.FileHeader) ([]byte, error) {
	reader, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = reader.Close()
	}()
	return io.ReadAll(io.LimitReader(reader, maxContentFileBytes+1))
}

// discardUploads unpins content left behind by a failed task creation.
func (h *Handler) discardUploads(c *gin.Context, cids []string) {
	for _, cid := range cids {
		if err := h.content.Delete(c.Request.Context(), cid); err != nil {
			h.logger.Warnf("Failed to unpin orphaned content %s: %v", cid, err)
		}
	}
}
