package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/maruel/typeimage/internal/cards"
	"github.com/maruel/typeimage/internal/storage/meta"
)

func writeJSON(w io.Writer, v any) error {
	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	return e.Encode(v)
}

func readImage(path string, resize bool) ([]byte, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: user supplied path.
	if err != nil {
		return nil, err
	}
	if !resize {
		return data, nil
	}
	out, _, err := cards.Resize(data, cards.DefaultOptions)
	return out, err
}

func (c *cli) wordsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "words", Short: "Manage words"}

	var category string
	var asJSON bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List words, newest first",
		Args:  cobra.NoArgs,
		RunE: c.run(func(cmd *cobra.Command, _ []string, a *app) error {
			words := a.meta.Words()
			if category != "" {
				words = lo.Filter(words, func(w *meta.Word, _ int) bool { return w.Category() == category })
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), words)
			}
			names := lo.KeyBy(a.meta.Categories(), func(cat *meta.Category) string { return cat.ID })
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "ID\tWORD\tIMAGE\tCATEGORY")
			for _, w := range words {
				cat := w.Category()
				if named, ok := names[cat]; ok {
					cat = named.Name
				}
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", w.ID, w.Word, w.Image, lo.Ternary(cat == "", "-", cat))
			}
			return tw.Flush()
		}),
	}
	list.Flags().StringVar(&category, "category", "", "Only list words of this category")
	list.Flags().BoolVar(&asJSON, "json", false, "Print JSON")

	var addCategory string
	var addRaw bool
	add := &cobra.Command{
		Use:   "add WORD IMAGE",
		Short: "Add a word with its image file",
		Args:  cobra.ExactArgs(2),
		RunE: c.run(func(cmd *cobra.Command, args []string, a *app) error {
			data, err := readImage(args[1], !addRaw)
			if err != nil {
				return err
			}
			w, err := a.importer().AddWord(cmd.Context(), args[0], data, addCategory)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), w.ID)
			return err
		}),
	}
	add.Flags().StringVar(&addCategory, "category", "", "Category identifier")
	add.Flags().BoolVar(&addRaw, "raw", false, "Store the image as is instead of resizing it")

	var editWord, editImage, editCategory string
	edit := &cobra.Command{
		Use:   "edit ID",
		Short: "Change the text, image or category of a word",
		Args:  cobra.ExactArgs(1),
		RunE: c.run(func(cmd *cobra.Command, args []string, a *app) error {
			w, err := a.meta.Word(args[0])
			if err != nil {
				return err
			}
			cat := w.Category()
			if cmd.Flags().Changed("category") {
				cat = editCategory
			}
			var data []byte
			if editImage != "" {
				if data, err = readImage(editImage, true); err != nil {
					return err
				}
			}
			_, err = a.importer().EditWord(cmd.Context(), w.ID, editWord, cat, data)
			return err
		}),
	}
	edit.Flags().StringVar(&editWord, "word", "", "New text")
	edit.Flags().StringVar(&editImage, "image", "", "New image file")
	edit.Flags().StringVar(&editCategory, "category", "", "New category identifier, empty for none")

	del := &cobra.Command{
		Use:   "delete ID...",
		Short: "Delete words; their images are kept",
		Args:  cobra.MinimumNArgs(1),
		RunE: c.run(func(_ *cobra.Command, args []string, a *app) error {
			for _, id := range args {
				if err := a.meta.DeleteWord(id); err != nil {
					return err
				}
			}
			return nil
		}),
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every word and reset the categories",
		Args:  cobra.NoArgs,
		RunE: c.run(func(_ *cobra.Command, _ []string, a *app) error {
			return a.meta.Clear()
		}),
	}

	cmd.AddCommand(list, add, edit, del, clearCmd)
	return cmd
}

func (c *cli) categoriesCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "categories", Short: "Manage categories"}
	list := &cobra.Command{
		Use:   "list",
		Short: "List categories",
		Args:  cobra.NoArgs,
		RunE: c.run(func(cmd *cobra.Command, _ []string, a *app) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "ID\tNAME\tWORDS")
			byCat := lo.GroupBy(a.meta.Words(), func(w *meta.Word) string { return w.Category() })
			for _, cat := range a.meta.Categories() {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\n", cat.ID, cat.Name, len(byCat[cat.ID]))
			}
			return tw.Flush()
		}),
	}
	add := &cobra.Command{
		Use:   "add ID NAME",
		Short: "Add a category",
		Args:  cobra.ExactArgs(2),
		RunE: c.run(func(_ *cobra.Command, args []string, a *app) error {
			if _, _, err := a.meta.UpsertCategories([]*meta.Category{{ID: args[0], Name: args[1]}}); err != nil {
				return err
			}
			return nil
		}),
	}
	del := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a category; its words become uncategorized",
		Args:  cobra.ExactArgs(1),
		RunE: c.run(func(_ *cobra.Command, args []string, a *app) error {
			return a.meta.DeleteCategory(args[0])
		}),
	}
	cmd.AddCommand(list, add, del)
	return cmd
}

func (c *cli) settingsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "settings", Short: "Read and change settings"}
	get := &cobra.Command{
		Use:   "get [KEY]",
		Short: "Print settings",
		Args:  cobra.MaximumNArgs(1),
		RunE: c.run(func(cmd *cobra.Command, args []string, a *app) error {
			keys := meta.Keys()
			if len(args) == 1 {
				keys = args
			}
			for _, k := range keys {
				v, err := a.meta.Setting(k)
				if err != nil {
					return err
				}
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", k, v); err != nil {
					return err
				}
			}
			return nil
		}),
	}
	set := &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Change a setting",
		Args:  cobra.ExactArgs(2),
		RunE: c.run(func(_ *cobra.Command, args []string, a *app) error {
			return a.meta.SetSetting(args[0], args[1])
		}),
	}
	cmd.AddCommand(get, set)
	return cmd
}
