package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/noah-isme/storefront/internal/cart"
	"github.com/noah-isme/storefront/internal/catalog"
	"github.com/noah-isme/storefront/internal/obs"
	"github.com/noah-isme/storefront/internal/storage"
)

const (
	backendFile   = "file"
	backendSQLite = "sqlite"
)

type options struct {
	backend  string
	path     string
	key      string
	catalog  string
	logLevel string
	json     bool

	logger zerolog.Logger
}

// session is one opened cart plus whatever must be released afterwards.
type session struct {
	store   *cart.Store
	backend cart.Storage
	close   func() error
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "cartctl",
		Short:         "Inspect and edit a locally persisted shopping cart",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			opts.logger = obs.NewLoggerTo(cmd.ErrOrStderr(), "console", opts.logLevel)
			switch opts.backend {
			case backendFile, backendSQLite:
				return nil
			default:
				return fmt.Errorf("unknown backend %q (want file or sqlite)", opts.backend)
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.backend, "backend", backendFile, "storage backend: file or sqlite")
	flags.StringVar(&opts.path, "path", defaultPath(), "directory (file backend) or database file (sqlite backend)")
	flags.StringVar(&opts.key, "key", cart.DefaultKey, "storage key of the cart")
	flags.StringVar(&opts.catalog, "catalog", os.Getenv("CATALOG_FILE"), "catalog YAML used to resolve products for add")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "log level")
	flags.BoolVar(&opts.json, "json", false, "print the cart as JSON")

	root.AddCommand(
		newShowCmd(opts),
		newAddCmd(opts),
		newRemoveCmd(opts),
		newSetCmd(opts),
		newIncCmd(opts),
		newDecCmd(opts),
		newClearCmd(opts),
		newWatchCmd(opts),
	)
	return root
}

func defaultPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "cartctl")
	}
	return ".cartctl"
}

func (o *options) open(ctx context.Context) (*session, error) {
	var (
		backend cart.Storage
		closer  = func() error { return nil }
	)
	switch o.backend {
	case backendSQLite:
		path := o.path
		if filepath.Ext(path) == "" {
			path = filepath.Join(path, "carts.db")
		}
		db, err := storage.OpenSQLite(ctx, path)
		if err != nil {
			return nil, err
		}
		backend, closer = db, db.Close
	default:
		f, err := storage.NewFile(o.path)
		if err != nil {
			return nil, err
		}
		backend = f
	}
	store, err := cart.OpenStore(ctx, cart.StoreConfig{Storage: backend, Key: o.key, Logger: o.logger})
	if err != nil {
		_ = closer()
		return nil, err
	}
	return &session{store: store, backend: backend, close: closer}, nil
}

// dispatch opens the cart, applies one action, prints the result and closes the backend.
func (o *options) dispatch(cmd *cobra.Command, build func(context.Context, cart.State) (cart.Action, error)) (err error) {
	s, err := o.open(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, s.close()) }()

	a, err := build(cmd.Context(), s.store.State())
	if err != nil {
		return err
	}
	state, err := s.store.Dispatch(cmd.Context(), a)
	if err != nil {
		return err
	}
	return o.print(cmd.OutOrStdout(), state)
}

func (o *options) print(w io.Writer, s cart.State) error {
	if o.json {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}
	if len(s.Items) == 0 {
		_, err := fmt.Fprintln(w, "cart is empty")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tPRICE\tDISC%\tQTY\tTOTAL")
	for _, li := range s.Items {
		title, _ := li.Attributes["title"].(string)
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%g\t%d\t%.2f\n", li.ID, title, li.ProductPrice, li.ProductDiscount, li.Quantity, li.Total())
	}
	fmt.Fprintf(tw, "\t\t\t\t%d\t%.2f\n", s.TotalQty, s.TotalPrice)
	return tw.Flush()
}

func (o *options) resolve(ctx context.Context, id string) (cart.Product, error) {
	if o.catalog == "" {
		return cart.Product{}, errors.New("no catalog configured; pass --catalog or --price")
	}
	p, err := catalog.YAMLSource{Path: o.catalog}.Get(ctx, id)
	if err != nil {
		return cart.Product{}, err
	}
	if !p.InStock {
		return cart.Product{}, fmt.Errorf("product %q is out of stock", id)
	}
	return p.CartProduct(), nil
}

func requireLine(s cart.State, id string) error {
	if s.Find(id) < 0 {
		return fmt.Errorf("%q is not in the cart", id)
	}
	return nil
}
