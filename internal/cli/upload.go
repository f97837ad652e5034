package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"lgtmagic/internal/domain"
	"lgtmagic/pkg/codec"
)

func newUploadCmd(e *env) *cobra.Command {
	var (
		noCaption bool
		format    string
	)

	cmd := &cobra.Command{
		Use:   "upload <file|url>",
		Short: "Composite an image and publish it to the gallery",
		Long: `Run the full upload pipeline: daily quota, compositing, content
moderation and storage. The quota identity is this machine's public IP.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := e.services(ctx)
			if err != nil {
				return err
			}

			req := domain.UploadRequest{
				AddCaption: !noCaption,
				Settings:   domain.DefaultRenderSettings(),
			}
			if format != "" {
				req.MIMEType = codec.NormalizeMIME(format)
			}

			src := args[0]
			if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
				req.Source.URL = src
			} else {
				data, err := os.ReadFile(src)
				if err != nil {
					return fmt.Errorf("reading %s: %w", src, err)
				}
				req.Source.Data = data
			}

			caller := a.Services.Identity.Resolve(ctx, "", "")
			result, err := a.Services.Uploads.Upload(ctx, caller, req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, result.URL)
			fmt.Fprintf(out, "%dx%d, %d uploads left today\n", result.Width, result.Height, result.Remaining)
			return nil
		},
	}

	cmd.Flags().BoolVar(&noCaption, "no-caption", false, "upload without drawing the caption")
	cmd.Flags().StringVar(&format, "format", "", "output format: webp, png or jpeg")
	return cmd
}
