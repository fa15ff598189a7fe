package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"

	"github.com/maruel/typeimage/internal/backup"
	"github.com/maruel/typeimage/internal/cards"
	"github.com/maruel/typeimage/internal/storage/blobstore"
)

func (c *cli) backupCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "backup", Short: "Export and restore backup documents"}

	var output string
	export := &cobra.Command{
		Use:   "export",
		Short: "Write a backup document",
		Args:  cobra.NoArgs,
		RunE: c.run(func(cmd *cobra.Command, _ []string, a *app) error {
			doc, err := a.buildBackup(cmd.Context())
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				return backup.Write(cmd.OutOrStdout(), doc)
			}
			if err := backup.WriteFileAtomic(output, doc); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.ErrOrStderr(), "%d words, %d categories, %d images written to %s\n", len(doc.Words), len(doc.Categories), len(doc.Images), output)
			return err
		}),
	}
	export.Flags().StringVarP(&output, "output", "o", "", "Output file, - for stdout")

	restore := &cobra.Command{
		Use:   "restore FILE",
		Short: "Merge a backup document into the collection",
		Long: "Merge a backup document into the collection.\n\n" +
			"Categories and words are merged by identifier; incoming records replace existing ones.",
		Args: cobra.ExactArgs(1),
		RunE: c.run(func(cmd *cobra.Command, args []string, a *app) error {
			r, err := backup.RestoreFile(cmd.Context(), args[0], a.meta, a.blobs)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "categories: %d added, %d replaced\nwords: %d added, %d replaced\nimages: %d written, %d failed\n",
				r.CategoriesAdded, r.CategoriesReplaced, r.WordsAdded, r.WordsReplaced, r.ImagesWritten, r.ImagesFailed)
			return err
		}),
	}
	cmd.AddCommand(export, restore)
	return cmd
}

func (c *cli) importCmd() *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import a {word, image} flashcard file",
		Args:  cobra.ExactArgs(1),
		RunE: c.run(func(cmd *cobra.Command, args []string, a *app) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			items, err := cards.Parse(f)
			if err2 := f.Close(); err == nil {
				err = err2
			}
			if err != nil {
				return err
			}
			t := a.importer().Import(cmd.Context(), items, category)
			if _, err := fmt.Fprintf(cmd.OutOrStdout(), "imported %d, failed %d\n", t.Succeeded, t.Failed); err != nil {
				return err
			}
			if t.Succeeded == 0 && t.Failed > 0 {
				return errors.New("nothing imported")
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&category, "category", "", "Category identifier for the imported words")
	return cmd
}

func (c *cli) gcCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Delete images no word references",
		Args:  cobra.NoArgs,
		RunE: c.run(func(cmd *cobra.Command, _ []string, a *app) error {
			ctx := cmd.Context()
			referenced := a.meta.ReferencedImages()
			if dryRun {
				ids, err := a.blobs.List(ctx)
				if err != nil {
					return err
				}
				keep := map[string]bool{}
				for _, id := range referenced {
					keep[id] = true
				}
				for _, id := range ids {
					if !keep[id] {
						_, _ = fmt.Fprintln(cmd.OutOrStdout(), id)
					}
				}
				return nil
			}
			deleted, err := blobstore.CollectOrphans(ctx, a.blobs, referenced)
			for _, id := range deleted {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return err
		}),
	}
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "Only print the orphans")
	return cmd
}

func (c *cli) schemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "schema [backup|cards]",
		Short:       "Print the JSON Schema of a file format",
		Args:        cobra.MaximumNArgs(1),
		ValidArgs:   []string{"backup", "cards"},
		Annotations: map[string]string{skipConfig: "1"},
		RunE: func(cmd *cobra.Command, args []string) error {
			s := backup.Schema()
			if len(args) == 1 {
				switch args[0] {
				case "backup":
				case "cards":
					r := jsonschema.Reflector{DoNotReference: true}
					s = r.Reflect(&[]cards.Item{})
				default:
					return fmt.Errorf("unknown format %q", args[0])
				}
			}
			return writeJSON(cmd.OutOrStdout(), s)
		},
	}
}
