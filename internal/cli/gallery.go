package cli

import (
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"
)

func newGalleryCmd(e *env) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:     "gallery",
		Aliases: []string{"ls"},
		Short:   "List recently published images, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.services(cmd.Context())
			if err != nil {
				return err
			}

			items, err := a.Services.Gallery.ListRecent(cmd.Context(), limit)
			if err != nil {
				return err
			}

			table := tablewriter.NewTable(cmd.OutOrStdout(),
				tablewriter.WithConfig(tablewriter.Config{
					Row: tw.CellConfig{
						Formatting: tw.CellFormatting{AutoWrap: tw.WrapNone},
						Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
					},
					Header: tw.CellConfig{
						Alignment: tw.CellAlignment{Global: tw.AlignLeft},
					},
				}),
				tablewriter.WithRendition(tw.Rendition{Borders: tw.BorderNone}),
			)
			table.Header("Created", "URL")
			for _, item := range items {
				if err := table.Append(item.CreatedAt.Format(time.DateTime), item.URL); err != nil {
					return err
				}
			}
			return table.Render()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of images (default from APP_GALLERY_LIMIT)")
	return cmd
}
