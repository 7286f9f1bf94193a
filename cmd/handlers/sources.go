package handlers

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"healthwire/internal/sources"
)

// NewSourcesCmd creates the sources command
func NewSourcesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Inspect configured news sources",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List sources with their fetch health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSourcesList(cmd.Context())
		},
	})

	return cmd
}

func runSourcesList(ctx context.Context) error {
	db, err := getDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	list, err := sources.NewManager(db, nil).ListSources(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("No sources configured. Run 'healthwire seed' first.")
		return nil
	}

	rows := make([][]string, 0, len(list))
	for _, src := range list {
		enabled := "yes"
		if !src.Enabled {
			enabled = "no"
		}
		fetched := "never"
		if src.LastFetchedAt != nil {
			fetched = src.LastFetchedAt.Local().Format("2006-01-02 15:04")
		}
		errs := strconv.Itoa(src.ErrorCount)
		if src.LastError != "" {
			errs = warnStyle.Render(errs)
		}
		rows = append(rows, []string{
			strconv.Itoa(src.Priority), src.Name, string(src.Kind), enabled, errs, fetched,
		})
	}

	fmt.Println(renderTable([]string{"Pri", "Name", "Kind", "Enabled", "Errors", "Last fetched"}, rows))
	return nil
}
