package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"lendledger/crypto"
	"lendledger/gateway/middleware"
	"lendledger/services/lending/client"
	"lendledger/services/lending/export"
	"lendledger/storage"
)

const (
	defaultPassEnv = "LEND_KEYSTORE_PASS"
	defaultSecret  = "LEND_AUTH_HMAC_SECRET"
	defaultServer  = "http://127.0.0.1:8080"
)

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(1)
	}
	if err := run(os.Args[1], os.Args[2:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(command string, args []string, out io.Writer) error {
	switch command {
	case "keygen":
		return runKeygen(args, out)
	case "address":
		return runAddress(args, out)
	case "token":
		return runToken(args, out)
	case "export-parquet":
		return runExport(args, out)
	case "config":
		return runConfig(args, out)
	case "position":
		return runPosition(args, out)
	default:
		usage(out)
		return fmt.Errorf("unknown command %q", command)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: lendctl <command> [flags]")
	fmt.Fprintln(w, "commands: keygen, address, token, export-parquet, config, position")
}

func runKeygen(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	dir := fs.String("dir", "./keystore", "Directory for the generated keystore file")
	passEnv := fs.String("pass-env", defaultPassEnv, "Environment variable containing the keystore passphrase")
	if err := fs.Parse(args); err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	path, err := crypto.WriteKeystore(*dir, key, os.Getenv(*passEnv))
	if err != nil {
		return fmt.Errorf("write keystore: %w", err)
	}
	fmt.Fprintf(out, "address:  %s\nkeystore: %s\n", key.PubKey().Address(crypto.AccountPrefix), path)
	return nil
}

func runAddress(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("address", flag.ContinueOnError)
	keystorePath := fs.String("keystore", "", "Derive the address from this keystore file")
	passEnv := fs.String("pass-env", defaultPassEnv, "Environment variable containing the keystore passphrase")
	rawHex := fs.String("hex", "", "Encode 20 raw bytes (hex) as an account identity")
	decode := fs.String("decode", "", "Decode an identity back to hex")
	if err := fs.Parse(args); err != nil {
		return err
	}
	switch {
	case *decode != "":
		addr, err := crypto.DecodeAddress(*decode)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s %s\n", addr.Prefix(), hex.EncodeToString(addr.Bytes()))
	case *rawHex != "":
		raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(*rawHex), "0x"))
		if err != nil {
			return fmt.Errorf("decode hex: %w", err)
		}
		addr, err := crypto.NewAddress(crypto.AccountPrefix, raw)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, addr.String())
	case *keystorePath != "":
		key, err := crypto.ReadKeystore(*keystorePath, os.Getenv(*passEnv))
		if err != nil {
			return fmt.Errorf("read keystore: %w", err)
		}
		fmt.Fprintln(out, key.PubKey().Address(crypto.AccountPrefix).String())
	default:
		return errors.New("one of -keystore, -hex or -decode is required")
	}
	return nil
}

func runToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	subject := fs.String("sub", "", "Account identity carried in the sub claim")
	secretEnv := fs.String("secret-env", defaultSecret, "Environment variable containing the HMAC secret")
	issuer := fs.String("iss", "", "Issuer claim")
	audience := fs.String("aud", "", "Audience claim")
	ttl := fs.Duration("ttl", time.Hour, "Token lifetime")
	scopes := fs.String("scopes", "", "Space separated scopes")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := crypto.ValidateAccount(*subject); err != nil {
		return fmt.Errorf("sub: %w", err)
	}
	token, err := middleware.IssueToken(os.Getenv(*secretEnv), *subject, *issuer, *audience, *ttl, strings.Fields(*scopes)...)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	return nil
}

func runExport(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("export-parquet", flag.ContinueOnError)
	backend := fs.String("backend", storage.BackendLevelDB, "Storage backend (leveldb, bolt, sqlite, postgres)")
	location := fs.String("db", "lendingd/ledger", "Store path or DSN")
	output := fs.String("out", "positions.parquet", "Output parquet file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	db, err := storage.Open(*backend, *location)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()
	count, err := export.WriteFile(db, *output)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote %d positions to %s\n", count, *output)
	return nil
}

func newClient(fs *flag.FlagSet, args []string) (*client.Client, error) {
	server := fs.String("server", defaultServer, "lendingd base URL")
	token := fs.String("token", "", "Bearer token")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	var opts []client.Option
	if *token != "" {
		opts = append(opts, client.WithToken(*token))
	}
	return client.New(*server, opts...)
}

func runConfig(args []string, out io.Writer) error {
	c, err := newClient(flag.NewFlagSet("config", flag.ContinueOnError), args)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cfg, err := c.Config(ctx)
	if err != nil {
		return err
	}
	return printJSON(out, cfg)
}

func runPosition(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("position", flag.ContinueOnError)
	account := fs.String("account", "", "Account identity to query")
	c, err := newClient(fs, args)
	if err != nil {
		return err
	}
	if *account == "" {
		return errors.New("-account is required")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pos, err := c.Position(ctx, *account)
	if err != nil {
		return err
	}
	return printJSON(out, pos)
}

func printJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
