package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"easel/internal/config"
	"easel/internal/imageapi"
	"easel/internal/logging"
)

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var req imageapi.TextToImageRequest
	var detach bool

	cmd := &cobra.Command{
		Use:   "generate <prompt>",
		Short: "Generate images from a text prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.requireAuth()
			if err != nil {
				return err
			}

			req.Prompt = args[0]
			if err := app.gate.Check(cmd.Context(), req.Weight()); err != nil {
				return err
			}

			resp, err := app.api.SubmitTextToImage(cmd.Context(), req)
			if err != nil {
				return err
			}
			return afterSubmit(cmd, app, resp, "text-to-image", req.Prompt, detach)
		},
	}

	cmd.Flags().StringVar(&req.NegativePrompt, "negative", "", "Negative prompt")
	cmd.Flags().StringVar(&req.AspectRatio, "aspect-ratio", "", "Aspect ratio, e.g. 16:9")
	cmd.Flags().IntVar(&req.InferenceSteps, "steps", 0, "Number of inference steps")
	cmd.Flags().Float64Var(&req.CFGScale, "cfg-scale", 0, "Classifier-free guidance scale")
	cmd.Flags().Int64Var(&req.Seed, "seed", -1, "Random seed (-1 for random)")
	cmd.Flags().IntVar(&req.NumImages, "num-images", 1, "Number of images to generate")
	cmd.Flags().BoolVar(&detach, "detach", false, "Submit without waiting for completion")
	return cmd
}

func newEditCommand(ctx *commandContext) *cobra.Command {
	var req imageapi.ImageEditRequest
	var secondImage string
	var detach bool

	cmd := &cobra.Command{
		Use:   "edit <image> <prompt>",
		Short: "Edit an image with a text instruction",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.requireAuth()
			if err != nil {
				return err
			}

			imagePath, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			req.ImagePaths = []string{imagePath}
			if secondImage != "" {
				expanded, err := config.ExpandPath(secondImage)
				if err != nil {
					return err
				}
				req.ImagePaths = append(req.ImagePaths, expanded)
			}
			req.Prompt = args[1]

			if err := app.gate.Check(cmd.Context(), req.Weight()); err != nil {
				return err
			}

			resp, err := app.api.SubmitImageEdit(cmd.Context(), req)
			if err != nil {
				return err
			}
			return afterSubmit(cmd, app, resp, "image-edit", req.Prompt, detach)
		},
	}

	cmd.Flags().StringVar(&secondImage, "with", "", "Second source image")
	cmd.Flags().StringVar(&req.NegativePrompt, "negative", "", "Negative prompt")
	cmd.Flags().IntVar(&req.InferenceSteps, "steps", 0, "Number of inference steps")
	cmd.Flags().Float64Var(&req.CFGScale, "cfg-scale", 0, "Classifier-free guidance scale")
	cmd.Flags().Float64Var(&req.GuidanceScale, "guidance-scale", 0, "Guidance scale")
	cmd.Flags().Int64Var(&req.Seed, "seed", -1, "Random seed (-1 for random)")
	cmd.Flags().IntVar(&req.NumImages, "num-images", 1, "Number of images to generate")
	cmd.Flags().BoolVar(&detach, "detach", false, "Submit without waiting for completion")
	return cmd
}

func newBatchEditCommand(ctx *commandContext) *cobra.Command {
	var req imageapi.BatchEditRequest
	var detach bool

	cmd := &cobra.Command{
		Use:   "batch-edit <image> <prompt>...",
		Short: "Apply several edit prompts to one image",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.requireAuth()
			if err != nil {
				return err
			}

			imagePath, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			req.ImagePath = imagePath
			req.Prompts = args[1:]

			if err := app.gate.Check(cmd.Context(), req.Weight()); err != nil {
				return err
			}

			resp, err := app.api.SubmitBatchEdit(cmd.Context(), req)
			if err != nil {
				return err
			}
			return afterSubmit(cmd, app, resp, "batch-edit", strings.Join(req.Prompts, " | "), detach)
		},
	}

	cmd.Flags().IntVar(&req.InferenceSteps, "steps", 0, "Number of inference steps")
	cmd.Flags().Int64Var(&req.Seed, "seed", -1, "Random seed (-1 for random)")
	cmd.Flags().BoolVar(&detach, "detach", false, "Submit without waiting for completion")
	return cmd
}

// afterSubmit records the submission, reports queue position, and follows
// the task to completion unless detached.
func afterSubmit(cmd *cobra.Command, app *application, resp *imageapi.SubmitResponse, kind, prompt string, detach bool) error {
	recordSubmission(cmd, app, resp.TaskID, kind, prompt)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Task %s submitted (%d pending, %d running)\n",
		resp.TaskID, resp.QueueInfo.PendingTasks, resp.QueueInfo.RunningTasks)

	if detach {
		fmt.Fprintf(out, "Check progress with `easel status %s`\n", resp.TaskID)
		return nil
	}
	return followToResult(cmd, app, resp.TaskID)
}

func recordSubmission(cmd *cobra.Command, app *application, taskID, kind, prompt string) {
	if app.history == nil {
		return
	}
	if _, err := app.history.Record(cmd.Context(), taskID, kind, prompt); err != nil {
		app.logger.Warn("record submission", logging.Args(logging.Error(err))...)
	}
}
