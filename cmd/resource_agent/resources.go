package main

import (
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/resource-pipeline/internal/db"
	"github.com/jonathan/resource-pipeline/internal/observability"
)

var (
	changelogLimit int
	changelogJSON  bool
)

var resourcesCmd = &cobra.Command{
	Use:   "resources",
	Short: "Manage catalog resources",
}

var resourcesImportCmd = &cobra.Command{
	Use:   "import <file.json>",
	Short: "Insert or update resources from a JSON array",
	Args:  cobra.ExactArgs(1),
	RunE:  runResourcesImport,
}

var resourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List resources",
	RunE:  runResourcesList,
}

var resourcesGetCmd = &cobra.Command{
	Use:   "get <slug>",
	Short: "Print a resource as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runResourcesGet,
}

var resourcesChangelogCmd = &cobra.Command{
	Use:   "changelog <slug>",
	Short: "Print applied changes, newest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runResourcesChangelog,
}

func init() {
	resourcesChangelogCmd.Flags().IntVar(&changelogLimit, "limit", 20, "Maximum entries")
	resourcesChangelogCmd.Flags().BoolVar(&changelogJSON, "json", false, "Print JSON")
	resourcesCmd.AddCommand(resourcesImportCmd, resourcesListCmd, resourcesGetCmd, resourcesChangelogCmd)
	rootCmd.AddCommand(resourcesCmd)
}

func runResourcesImport(cmd *cobra.Command, args []string) error {
	resources, err := loadResources(args[0])
	if err != nil {
		return err
	}
	a, err := reviewerApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	for i := range resources {
		if err := a.store.UpsertResource(cmd.Context(), &resources[i]); err != nil {
			return fmt.Errorf("failed to import %s: %w", resources[i].Slug, err)
		}
	}
	_, _ = fmt.Fprintf(os.Stdout, "Imported %d resource(s)\n", len(resources))
	return nil
}

func runResourcesList(cmd *cobra.Command, _ []string) error {
	a, err := reviewerApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	resources, err := a.store.ListResources(cmd.Context(), db.ResourceFilter{})
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(os.Stdout, "%-28s %-20s %s\n", "SLUG", "LAST VERIFIED", "TITLE")
	for _, r := range resources {
		verified := "never"
		if r.LastVerifiedAt != nil {
			verified = r.LastVerifiedAt.Format("2006-01-02 15:04")
		}
		_, _ = fmt.Fprintf(os.Stdout, "%-28s %-20s %s\n", r.Slug, verified, r.Title)
	}
	return nil
}

func runResourcesGet(cmd *cobra.Command, args []string) error {
	a, err := reviewerApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	resource, err := a.store.GetResourceBySlug(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return writeJSON(os.Stdout, resource)
}

func runResourcesChangelog(cmd *cobra.Command, args []string) error {
	a, err := reviewerApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	resource, err := a.store.GetResourceBySlug(ctx, args[0])
	if err != nil {
		return err
	}
	entries, err := a.store.ListChangelog(ctx, resource.ID, changelogLimit)
	if err != nil {
		return err
	}
	if changelogJSON {
		return writeJSON(os.Stdout, entries)
	}
	observability.NewPrinter(os.Stdout).PrintChangelog(entries)
	return nil
}

// redactURL hides the password of a connection URL for logging.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "(invalid url)"
	}
	return u.Redacted()
}
