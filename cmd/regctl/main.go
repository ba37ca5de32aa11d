package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"regcore/internal/dnssec"
	"regcore/internal/ledger"
	ledgerstore "regcore/internal/ledger/store"
	"regcore/internal/platform/config"
	"regcore/internal/platform/database"
)

const usage = `usage: regctl <command> [flags]

commands:
  ds            derive DS records from a DNSKEY
  transactions  list recent ledger rows for a registrar
  migrate       apply the database schema
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	switch os.Args[1] {
	case "ds":
		err = runDS(os.Args[2:], os.Stdout)
	case "transactions":
		err = runTransactions(ctx, os.Args[2:], os.Stdout)
	case "migrate":
		err = runMigrate(ctx, os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "regctl %s: %v\n", os.Args[1], err)
		stop()
		os.Exit(1)
	}
}

// runDS accepts either one DNSKEY in presentation format as a positional
// argument or the individual fields as flags. Accepted algorithms come from
// --allow, then registry.dnssec_algorithms when --config is given.
func runDS(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("ds", pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", "", "path to a YAML configuration file")
	owner := fs.String("owner", "", "owner name of the key")
	flags := fs.Int("flags", 257, "DNSKEY flags (256 or 257)")
	protocol := fs.Int("protocol", 3, "DNSKEY protocol")
	algorithm := fs.Int("algorithm", 13, "DNSKEY algorithm")
	pubkey := fs.String("pubkey", "", "base64 public key")
	algorithms := fs.IntSlice("allow", nil, "accepted algorithms (default: all supported)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var key dnssec.Key
	if rr := strings.Join(fs.Args(), " "); rr != "" {
		parsed, err := dnssec.ParseDNSKEY(rr)
		if err != nil {
			return err
		}
		key = parsed
	} else {
		key = dnssec.Key{
			Owner:     strings.ToLower(*owner),
			Flags:     *flags,
			Protocol:  *protocol,
			Algorithm: *algorithm,
			PublicKey: *pubkey,
		}
		if key.Owner != "" && !strings.HasSuffix(key.Owner, ".") {
			key.Owner += "."
		}
	}

	allowed := *algorithms
	if !fs.Changed("allow") && *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		allowed = cfg.Registry.DNSSECAlgorithms
	}

	ds, err := dnssec.NewConverter(allowed).ComputeDS(key)
	if err != nil {
		return err
	}
	for _, d := range ds.Digests {
		fmt.Fprintf(out, "%s IN DS %d %d %d %s\n", ds.Owner, ds.KeyTag, ds.Algorithm, d.Type, d.Hash)
	}
	return nil
}

func runTransactions(ctx context.Context, args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("transactions", pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", "", "path to a YAML configuration file")
	registrarID := fs.Int64("registrar", 0, "registrar id")
	limit := fs.Int("limit", 20, "maximum rows")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *registrarID <= 0 {
		return errors.New("--registrar is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	rows, err := ledger.New(ledgerstore.NewPostgres(db)).ListByRegistrar(ctx, *registrarID, *limit)
	if err != nil {
		return err
	}
	printTransactions(out, rows)
	return nil
}

func printTransactions(out io.Writer, rows []*ledger.Transaction) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCLIENT DATE\tCOMMAND\tOBJECT\tCODE\tCL TRID\tSV TRID")
	for _, t := range rows {
		object := t.ObjectType
		if t.ObjectID != "" {
			object += ":" + t.ObjectID
		}
		code := "-"
		if t.Completed() {
			code = fmt.Sprint(t.Code)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.ClientDate.UTC().Format(time.RFC3339), t.Command, object, code, t.ClientTRID, t.ServerTRID)
	}
	_ = w.Flush()
}

func runMigrate(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("migrate", pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", "", "path to a YAML configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	return database.Migrate(ctx, db, cfg.Database.Driver)
}
