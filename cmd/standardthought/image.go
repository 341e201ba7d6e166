package main

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"standardthought/internal/ai"
)

func newImageCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "image",
		Short: "Image generation tools",
	}
	cmd.AddCommand(newImageGenerateCmd(c))
	return cmd
}

func newImageGenerateCmd(c *cli) *cobra.Command {
	var req ai.ImageRequest

	cmd := &cobra.Command{
		Use:   "generate <prompt>",
		Short: "Run a prompt through the image model chain",
		Long: `Runs the same fallback chain as the generate-image function and prints
the result as JSON. A degraded outcome prints the failure, including the
placeholder image URL, and exits non-zero.`,
		Example: `  standardthought image generate "a lighthouse at dawn, watercolor"
  standardthought image generate --size 1792x1024 --quality hd "city skyline"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Prompt = strings.Join(args, " ")

			svc := newImageService(c.cfg)
			result, err := svc.Generate(cmd.Context(), req)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")

			var failure *ai.ImageFailure
			switch {
			case err == nil:
				return enc.Encode(result)
			case errors.As(err, &failure):
				if encErr := enc.Encode(failure); encErr != nil {
					return encErr
				}
				return err
			default:
				return err
			}
		},
	}

	cmd.Flags().StringVar(&req.Size, "size", "", "Image size, e.g. 1024x1024")
	cmd.Flags().StringVar(&req.Quality, "quality", "", "standard or hd")
	cmd.Flags().StringVar(&req.Style, "style", "", "vivid or natural")

	return cmd
}
