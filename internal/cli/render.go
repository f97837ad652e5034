package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"lgtmagic/internal/domain"
	"lgtmagic/pkg/codec"
	"lgtmagic/pkg/compositor"
)

type renderOptions struct {
	noCaption bool
	format    string
	quality   float64
	mainFont  string
	subFont   string
	textColor string
	bgColor   string
	bgOpacity float64
	noMain    bool
	noSub     bool
	noBg      bool
}

func (o renderOptions) settings() domain.RenderSettings {
	s := domain.DefaultRenderSettings()
	s.ShowMainText = !o.noMain
	s.ShowSubtext = !o.noSub
	s.ShowBackground = !o.noBg
	if o.mainFont != "" {
		s.MainFont = o.mainFont
	}
	if o.subFont != "" {
		s.SubFont = o.subFont
	}
	if o.textColor != "" {
		s.TextColor = o.textColor
	}
	if o.bgColor != "" {
		s.BackgroundColor = o.bgColor
	}
	s.BackgroundOpacity = o.bgOpacity
	return s
}

func newRenderCmd(e *env) *cobra.Command {
	var opts renderOptions

	cmd := &cobra.Command{
		Use:   "render <in> <out>",
		Short: "Composite an image locally without uploading it",
		Long: `Resize an image to the gallery width and draw the LGTM caption.

The output format follows --format, or the extension of <out> when unset.

Fonts: ` + strings.Join(compositor.Families(), ", "),
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd, e, args[0], args[1], opts)
		},
	}

	f := cmd.Flags()
	f.BoolVar(&opts.noCaption, "no-caption", false, "resize only, draw nothing")
	f.StringVar(&opts.format, "format", "", "output format: webp, png or jpeg")
	f.Float64Var(&opts.quality, "quality", domain.DefaultQuality, "JPEG quality in (0,1]")
	f.StringVar(&opts.mainFont, "main-font", "", "font family for the LGTM caption")
	f.StringVar(&opts.subFont, "sub-font", "", "font family for the subcaption")
	f.StringVar(&opts.textColor, "text-color", "", "caption color as #rgb or #rrggbb")
	f.StringVar(&opts.bgColor, "bg-color", "", "band color as #rgb or #rrggbb")
	f.Float64Var(&opts.bgOpacity, "bg-opacity", domain.DefaultRenderSettings().BackgroundOpacity, "band opacity in [0,1]")
	f.BoolVar(&opts.noMain, "no-main", false, "hide the LGTM caption")
	f.BoolVar(&opts.noSub, "no-sub", false, "hide the subcaption")
	f.BoolVar(&opts.noBg, "no-bg", false, "hide the band")

	return cmd
}

func runRender(cmd *cobra.Command, e *env, in, out string, opts renderOptions) error {
	data, err := os.ReadFile(in)
	if err != nil {
		return fmt.Errorf("reading %s: %w", in, err)
	}

	src, err := compositor.Decode(data)
	if err != nil {
		return err
	}
	img, err := compositor.Render(src, !opts.noCaption, opts.settings())
	if err != nil {
		return err
	}

	format := opts.format
	if format == "" {
		format = strings.TrimPrefix(filepath.Ext(out), ".")
	}
	payload, err := codec.NewEncoder(e.logger()).Encode(img, codec.NormalizeMIME(format), opts.quality)
	if err != nil {
		return err
	}

	if err := os.WriteFile(out, payload.Data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", out, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s %dx%d %s (%d bytes)\n",
		out, payload.Width, payload.Height, payload.ContentType, len(payload.Data))
	return nil
}
