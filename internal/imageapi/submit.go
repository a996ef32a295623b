package imageapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"easel/internal/logging"
)

// TextToImageRequest describes a text-to-image submission.
type TextToImageRequest struct {
	Prompt         string
	NegativePrompt string
	AspectRatio    string
	InferenceSteps int
	CFGScale       float64
	Seed           int64
	NumImages      int
}

// Weight returns how much allowance the submission consumes.
func (r TextToImageRequest) Weight() int {
	if r.NumImages < 1 {
		return 1
	}
	return r.NumImages
}

// ImageEditRequest describes an image-edit submission. The service accepts
// one or two source images.
type ImageEditRequest struct {
	ImagePaths     []string
	Prompt         string
	NegativePrompt string
	InferenceSteps int
	CFGScale       float64
	GuidanceScale  float64
	Seed           int64
	NumImages      int
}

// Weight returns how much allowance the submission consumes.
func (r ImageEditRequest) Weight() int {
	if r.NumImages < 1 {
		return 1
	}
	return r.NumImages
}

// BatchEditRequest describes a batch image-edit submission. The server runs
// one edit per prompt against the same source image.
type BatchEditRequest struct {
	ImagePath      string
	Prompts        []string
	NegativePrompt string
	InferenceSteps int
	Seed           int64
}

// Weight returns how much allowance the submission consumes.
func (r BatchEditRequest) Weight() int {
	if len(r.Prompts) == 0 {
		return 1
	}
	return len(r.Prompts)
}

// SubmitTextToImage submits an asynchronous text-to-image task.
func (c *Client) SubmitTextToImage(ctx context.Context, req TextToImageRequest) (*SubmitResponse, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, errors.New("prompt is required")
	}

	var resp SubmitResponse
	err := c.http.PostMultipart(ctx, "/text-to-image", func(form *multipart.Writer) error {
		fields := map[string]string{
			"prompt":          req.Prompt,
			"negative_prompt": req.NegativePrompt,
			"async_mode":      "true",
		}
		if req.AspectRatio != "" {
			fields["aspect_ratio"] = req.AspectRatio
		}
		if req.InferenceSteps > 0 {
			fields["num_inference_steps"] = strconv.Itoa(req.InferenceSteps)
		}
		if req.CFGScale > 0 {
			fields["true_cfg_scale"] = strconv.FormatFloat(req.CFGScale, 'f', -1, 64)
		}
		fields["seed"] = strconv.FormatInt(req.Seed, 10)
		if req.NumImages > 0 {
			fields["num_images"] = strconv.Itoa(req.NumImages)
		}
		return writeFields(form, fields)
	}, &resp)
	if err != nil {
		return nil, err
	}
	c.logSubmitted("text_to_image", &resp)
	return &resp, nil
}

// SubmitImageEdit submits an asynchronous image-edit task. The endpoint
// takes its sources as a repeated "images" file field, one or two entries.
func (c *Client) SubmitImageEdit(ctx context.Context, req ImageEditRequest) (*SubmitResponse, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, errors.New("prompt is required")
	}
	if len(req.ImagePaths) == 0 {
		return nil, errors.New("image path is required")
	}
	if len(req.ImagePaths) > 2 {
		return nil, fmt.Errorf("at most 2 source images are accepted, got %d", len(req.ImagePaths))
	}

	var resp SubmitResponse
	err := c.http.PostMultipart(ctx, "/image-edit", func(form *multipart.Writer) error {
		for _, path := range req.ImagePaths {
			if err := attachImage(form, "images", path); err != nil {
				return err
			}
		}
		fields := map[string]string{
			"prompt":          req.Prompt,
			"negative_prompt": req.NegativePrompt,
			"async_mode":      "true",
			"seed":            strconv.FormatInt(req.Seed, 10),
		}
		if req.InferenceSteps > 0 {
			fields["num_inference_steps"] = strconv.Itoa(req.InferenceSteps)
		}
		if req.CFGScale > 0 {
			fields["true_cfg_scale"] = strconv.FormatFloat(req.CFGScale, 'f', -1, 64)
		}
		if req.GuidanceScale > 0 {
			fields["guidance_scale"] = strconv.FormatFloat(req.GuidanceScale, 'f', -1, 64)
		}
		if req.NumImages > 0 {
			fields["num_images"] = strconv.Itoa(req.NumImages)
		}
		return writeFields(form, fields)
	}, &resp)
	if err != nil {
		return nil, err
	}
	c.logSubmitted("image_edit", &resp)
	return &resp, nil
}

// SubmitBatchEdit submits one edit per prompt against the same source image.
// The server takes the prompts as a single pipe-separated field.
func (c *Client) SubmitBatchEdit(ctx context.Context, req BatchEditRequest) (*SubmitResponse, error) {
	if len(req.Prompts) == 0 {
		return nil, errors.New("at least one prompt is required")
	}
	for _, prompt := range req.Prompts {
		if strings.Contains(prompt, "|") {
			return nil, fmt.Errorf("prompt %q contains the separator character |", prompt)
		}
	}
	if req.ImagePath == "" {
		return nil, errors.New("image path is required")
	}

	var resp SubmitResponse
	err := c.http.PostMultipart(ctx, "/image-edit/batch", func(form *multipart.Writer) error {
		if err := attachImage(form, "image", req.ImagePath); err != nil {
			return err
		}
		fields := map[string]string{
			"prompts":         strings.Join(req.Prompts, "|"),
			"negative_prompt": req.NegativePrompt,
			"async_mode":      "true",
			"seed":            strconv.FormatInt(req.Seed, 10),
		}
		if req.InferenceSteps > 0 {
			fields["num_inference_steps"] = strconv.Itoa(req.InferenceSteps)
		}
		return writeFields(form, fields)
	}, &resp)
	if err != nil {
		return nil, err
	}
	c.logSubmitted("batch_edit", &resp)
	return &resp, nil
}

func (c *Client) logSubmitted(kind string, resp *SubmitResponse) {
	c.logger.Info("task submitted",
		logging.Args(
			logging.String("kind", kind),
			logging.String("task_id", resp.TaskID),
			logging.Int("queue_pending", resp.QueueInfo.PendingTasks),
			logging.Int("queue_running", resp.QueueInfo.RunningTasks),
		)...)
}

func writeFields(form *multipart.Writer, fields map[string]string) error {
	for key, value := range fields {
		if err := form.WriteField(key, value); err != nil {
			return fmt.Errorf("write field %s: %w", key, err)
		}
	}
	return nil
}

func attachImage(form *multipart.Writer, field, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open image: %w", err)
	}
	defer file.Close()

	part, err := form.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return fmt.Errorf("create image part: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("copy image: %w", err)
	}
	return nil
}
