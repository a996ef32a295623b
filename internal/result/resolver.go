// Package result fetches finished task output and materializes binary
// payloads as files under the output directory. The result endpoint answers
// with either a file or a JSON not-ready body; classification is by content
// type, not by the last status the client saw, because the two can race.
package result

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"easel/internal/imageapi"
	"easel/internal/logging"
)

// ResultClient is the slice of the service API the resolver needs.
type ResultClient interface {
	Result(ctx context.Context, taskID string, wait bool, timeout time.Duration) (*http.Response, error)
}

// Payload is the classified result of a resolve: Image, Archive, or
// NotReady. The set is closed.
type Payload interface {
	payload()
}

// Image is a single generated image materialized on disk.
type Image struct {
	Handle *Handle
}

// Archive is a multi-image zip materialized on disk.
type Archive struct {
	Handle *Handle
	// ItemCount is the number of entries in the zip directory.
	ItemCount int
}

// NotReady reports that the task has not produced a file yet. It is a
// normal outcome, not an error: the status endpoint can report completed
// before the result endpoint serves the file.
type NotReady struct {
	Status          string
	Message         string
	PositionInQueue int
}

func (Image) payload()    {}
func (Archive) payload()  {}
func (NotReady) payload() {}

// Handle owns one materialized result file. Release removes the file;
// releasing twice is harmless.
type Handle struct {
	path string

	mu       sync.Mutex
	released bool
}

// Path returns the file location, or the empty string after release.
func (h *Handle) Path() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return ""
	}
	return h.path
}

// Release removes the backing file. Only the first call acts.
func (h *Handle) Release() error {
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return nil
	}
	h.released = true
	path := h.path
	h.mu.Unlock()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove result file: %w", err)
	}
	return nil
}

// Resolver fetches task results and tracks at most one live handle per
// named slot.
type Resolver struct {
	client    ResultClient
	outputDir string
	logger    *slog.Logger

	mu    sync.Mutex
	slots map[string]*Handle
}

// NewResolver creates a resolver writing files under outputDir.
func NewResolver(client ResultClient, outputDir string, logger *slog.Logger) *Resolver {
	return &Resolver{
		client:    client,
		outputDir: outputDir,
		logger:    logging.NewComponentLogger(logger, "result"),
		slots:     make(map[string]*Handle),
	}
}

// Resolve fetches the result for taskID. wait asks the server to block up to
// timeout for the task to finish before answering.
func (r *Resolver) Resolve(ctx context.Context, taskID string, wait bool, timeout time.Duration) (Payload, error) {
	resp, err := r.client.Result(ctx, taskID, wait, timeout)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	contentType := mediaType(resp.Header.Get("Content-Type"))
	if contentType == "application/json" {
		var body imageapi.NotReadyBody
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return nil, fmt.Errorf("decode not-ready body: %w", err)
		}
		return NotReady{Status: body.Status, Message: body.Message, PositionInQueue: body.PositionInQueue}, nil
	}

	archive := contentType == "application/zip" || contentType == "application/x-zip-compressed" ||
		contentType == "application/octet-stream"

	path, err := r.materialize(taskID, extensionFor(contentType, archive), resp.Body)
	if err != nil {
		return nil, err
	}
	handle := &Handle{path: path}

	if archive {
		count, err := archiveItemCount(path)
		if err != nil {
			handle.Release()
			return nil, err
		}
		r.logger.Debug("archive result saved",
			logging.Args(logging.String("task_id", taskID), logging.String("path", path), logging.Int("items", count))...)
		return Archive{Handle: handle, ItemCount: count}, nil
	}

	r.logger.Debug("image result saved",
		logging.Args(logging.String("task_id", taskID), logging.String("path", path))...)
	return Image{Handle: handle}, nil
}

// materialize streams the body to its final location. The name is the first
// eight characters of the task id plus the classified extension.
func (r *Resolver) materialize(taskID, ext string, body io.Reader) (string, error) {
	if err := os.MkdirAll(r.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	name := taskID
	if len(name) > 8 {
		name = name[:8]
	}
	path := filepath.Join(r.outputDir, name+ext)

	tmp, err := os.CreateTemp(r.outputDir, "."+name+"-*")
	if err != nil {
		return "", fmt.Errorf("create result file: %w", err)
	}
	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write result file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close result file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("place result file: %w", err)
	}
	return path, nil
}

// Assign stores handle under slot, releasing any previous occupant. A nil
// handle empties the slot.
func (r *Resolver) Assign(slot string, handle *Handle) {
	r.mu.Lock()
	previous := r.slots[slot]
	if handle == nil {
		delete(r.slots, slot)
	} else {
		r.slots[slot] = handle
	}
	r.mu.Unlock()

	if previous != nil && previous != handle {
		if err := previous.Release(); err != nil {
			r.logger.Warn("release replaced result", logging.Args(logging.String("slot", slot), logging.Error(err))...)
		}
	}
}

// ReleaseSlot empties slot and releases its handle, if any.
func (r *Resolver) ReleaseSlot(slot string) {
	r.Assign(slot, nil)
}

// Slot returns the live handle for slot.
func (r *Resolver) Slot(slot string) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	handle, ok := r.slots[slot]
	return handle, ok
}

func mediaType(header string) string {
	parsed, _, err := mime.ParseMediaType(header)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(header))
	}
	return parsed
}

func extensionFor(contentType string, archive bool) string {
	if archive {
		return ".zip"
	}
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}
