package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"stacnav/internal/entity"
	"stacnav/pkg/models"
)

func newSlugifyCmd(opts *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:     "slugify <uri>",
		Short:   "print the route slug of a catalog uri",
		Args:    cobra.ExactArgs(1),
		Example: `stacnav --catalog https://example.com/catalog.json slugify collections/a/collection.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, r, err := opts.codec(cmd)
			if err != nil {
				return err
			}
			u, err := r.ResolveRoot(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), c.Slugify(u))
			return nil
		},
	}
}

func newDecodeCmd(opts *rootOpts) *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "decode <token>",
		Short: "print the catalog uri a slug stands for",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := opts.codec(cmd)
			if err != nil {
				return err
			}
			if strict {
				u, err := c.DecodeStrict(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), u)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), c.Decode(args[0]))
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "fail instead of falling back to the root catalog")
	return cmd
}

func newResolveCmd(opts *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <href> [base]",
		Short: "resolve a link against a base (default: the root catalog)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := opts.resolver()
			if err != nil {
				return err
			}
			base := ""
			if len(args) == 2 {
				base = args[1]
			}
			u, err := r.Resolve(args[0], base)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), u)
			return nil
		},
	}
}

func newPrefetchCmd(opts *rootOpts) *cobra.Command {
	var hash string
	cmd := &cobra.Command{
		Use:     "prefetch <path>",
		Short:   "load every resource on a route's ancestor chain and print their states",
		Args:    cobra.ExactArgs(1),
		Example: `stacnav --catalog https://example.com/catalog.json prefetch /item/<slug>/<slug>`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.session(cmd)
			if err != nil {
				return err
			}
			route, d := s.Navigate(cmd.Context(), args[0], hash)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STATE\tURI\tDETAIL")
			for _, rec := range s.Chain(route) {
				fmt.Fprintf(w, "%s\t%s\t%s\n", rec.State, rec.URI, detail(rec))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			return d.Prefetch.Err()
		},
	}
	cmd.Flags().StringVar(&hash, "hash", "", "route fragment")
	return cmd
}

func newValidateCmd(opts *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <path>",
		Short: "validate the document a route shows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.session(cmd)
			if err != nil {
				return err
			}
			route, _ := s.Navigate(cmd.Context(), args[0], "")

			rec, _ := s.Store.Get(route.URL)
			if rec.State != models.StateLoaded {
				return fmt.Errorf("%s: %s", rec.URI, detail(rec))
			}

			errs, err := s.Dispatcher.For(route.Kind)(cmd.Context(), rec.Document)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if errs == nil {
				fmt.Fprintf(out, "%s: valid %s\n", rec.URI, route.Kind)
				return nil
			}
			for _, e := range errs {
				fmt.Fprintln(out, e.String())
			}
			return fmt.Errorf("%s: %d validation errors", rec.URI, len(errs))
		},
	}
}

func detail(rec models.EntityRecord) string {
	if rec.Err == nil {
		return rec.Document.String("title")
	}
	return entity.FailureKind(rec.Err) + ": " + strings.TrimSpace(rec.ErrorText())
}
