package main

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"stacnav/internal/entity"
	"stacnav/internal/session"
	"stacnav/internal/slug"
	"stacnav/internal/uri"
	"stacnav/internal/validate"
)

type rootOpts struct {
	catalog        string
	timeout        time.Duration
	concurrency    int
	schemaTemplate string
	debug          bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOpts{}

	cmd := &cobra.Command{
		Use:           "stacnav",
		Short:         "Inspect STAC catalogs through slug routes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.DisableAutoGenTag = true

	f := cmd.PersistentFlags()
	f.StringVar(&opts.catalog, "catalog", os.Getenv("STACNAV_CATALOG_URL"), "root catalog url")
	f.DurationVar(&opts.timeout, "timeout", 15*time.Second, "per-resource fetch timeout")
	f.IntVar(&opts.concurrency, "concurrency", 10, "max concurrent prefetches")
	f.StringVar(&opts.schemaTemplate, "schema-template", validate.DefaultSchemaURLTemplate, "schema url template with {kind} and {version}")
	f.BoolVarP(&opts.debug, "debug", "d", false, "turn on debug logging")

	cmd.AddCommand(
		newSlugifyCmd(opts),
		newDecodeCmd(opts),
		newResolveCmd(opts),
		newPrefetchCmd(opts),
		newValidateCmd(opts),
	)
	return cmd
}

func (o *rootOpts) logger(cmd *cobra.Command) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(cmd.ErrOrStderr())
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	if o.debug {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}

func (o *rootOpts) resolver() (*uri.Resolver, error) {
	if o.catalog == "" {
		return nil, fmt.Errorf("--catalog (or STACNAV_CATALOG_URL) is required")
	}
	return uri.NewResolver(o.catalog)
}

func (o *rootOpts) codec(cmd *cobra.Command) (*slug.Codec, *uri.Resolver, error) {
	r, err := o.resolver()
	if err != nil {
		return nil, nil, err
	}
	return slug.NewCodec(r, o.logger(cmd)), r, nil
}

// session builds a one-off browsing session with its root catalog loaded.
func (o *rootOpts) session(cmd *cobra.Command) (*session.Session, error) {
	if _, err := o.resolver(); err != nil {
		return nil, err
	}
	log := o.logger(cmd)

	s, err := session.New("cli", session.Config{
		RootURL:             o.catalog,
		FetchTimeout:        o.timeout,
		PrefetchConcurrency: o.concurrency,
	}, session.Deps{
		Fetcher:  entity.NewHTTPFetcher(o.timeout, "stacnav-cli", 0),
		Provider: validate.NewSchemaProvider(o.schemaTemplate, log),
		Logger:   log,
	})
	if err != nil {
		return nil, err
	}
	s.Start(cmd.Context())
	return s, nil
}
